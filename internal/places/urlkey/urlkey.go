// Package urlkey derives index keys from URLs without a full URL parse.
//
// The split functions locate separators by byte search and never allocate;
// they back the get_prefix, get_host_and_port and strip_prefix_and_userinfo
// SQL functions that run once per row.
package urlkey

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// maxPrefixSearch is how far into a URL the scheme separator is searched.
const maxPrefixSearch = 64

// ErrNotASCII is returned by ReverseHost for hosts that were not converted
// to their ASCII (punycode) form first.
var ErrNotASCII = errors.New("host is not ASCII")

// SplitAfterPrefix splits href after "scheme:" or "scheme://".
// Without a ':' in the first 64 bytes the prefix is empty.
func SplitAfterPrefix(href string) (prefix, rest string) {
	head := href
	if len(head) > maxPrefixSearch {
		head = head[:maxPrefixSearch]
	}
	colon := strings.IndexByte(head, ':')
	if colon < 0 {
		return "", href
	}
	end := colon + 1
	if strings.HasPrefix(href[end:], "//") {
		end += 2
	}
	return href[:end], href[end:]
}

// SplitAfterHostAndPort splits href after its authority and drops the
// scheme and any userinfo. The authority ends at the first '/', '?' or '#';
// userinfo ends at the last '@' before that point.
func SplitAfterHostAndPort(href string) (hostAndPort, rest string) {
	_, remainder := SplitAfterPrefix(href)

	authority := remainder
	if end := strings.IndexAny(remainder, "/?#"); end >= 0 {
		authority, rest = remainder[:end], remainder[end:]
	}
	if at := strings.LastIndexByte(authority, '@'); at >= 0 {
		authority = authority[at+1:]
	}
	return authority, rest
}

// Prefix returns the scheme and separator of href, e.g. "https://".
func Prefix(href string) string {
	prefix, _ := SplitAfterPrefix(href)
	return prefix
}

// HostAndPort returns the authority of href without userinfo.
func HostAndPort(href string) string {
	hostAndPort, _ := SplitAfterHostAndPort(href)
	return hostAndPort
}

// StripPrefixAndUserinfo returns href without "scheme://" and "user:pass@".
func StripPrefixAndUserinfo(href string) string {
	hostAndPort, rest := SplitAfterHostAndPort(href)
	return hostAndPort + rest
}

// ReverseHost lower-cases an ASCII host, reverses it and appends '.'.
// "WWW.Example.ORG" becomes "gro.elpmaxe.www.", and "" becomes ".".
// Reversed hosts turn "ends with domain" into an index prefix scan.
func ReverseHost(host string) (string, error) {
	buf := make([]byte, len(host)+1)
	for i := 0; i < len(host); i++ {
		c := host[i]
		if c >= 0x80 {
			return "", fmt.Errorf("%w: %q", ErrNotASCII, host)
		}
		if 'A' <= c && c <= 'Z' {
			c += 'a' - 'A'
		}
		buf[len(host)-1-i] = c
	}
	buf[len(host)] = '.'
	return string(buf), nil
}

// Key holds the derived columns of a place.
type Key struct {
	// URL is the canonical form stored in moz_places.url.
	URL string
	// Host is the ASCII host without port.
	Host string
	// RevHost is ReverseHost(Host).
	RevHost string
}

// Canonicalize parses raw as an absolute URL, converts its host to ASCII
// and derives the place key columns.
func Canonicalize(raw string) (Key, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Key{}, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme == "" {
		return Key{}, fmt.Errorf("invalid url %q: missing scheme", raw)
	}

	host := u.Hostname()
	if host != "" && net.ParseIP(host) == nil {
		port := u.Port()
		ascii, err := HostToASCII(host)
		if err != nil {
			return Key{}, err
		}
		host = ascii
		u.Host = host
		if port != "" {
			u.Host = net.JoinHostPort(host, port)
		}
	}

	revHost, err := ReverseHost(host)
	if err != nil {
		return Key{}, err
	}
	return Key{URL: u.String(), Host: host, RevHost: revHost}, nil
}

// HostToASCII converts a user supplied host to the lower-case ASCII form
// stored in rev_host. IP literals are returned unchanged.
func HostToASCII(host string) (string, error) {
	if net.ParseIP(host) != nil {
		return host, nil
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", fmt.Errorf("invalid host %q: %w", host, err)
	}
	return ascii, nil
}
