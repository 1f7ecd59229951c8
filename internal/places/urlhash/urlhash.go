// Package urlhash computes the 64-bit url_hash stored next to every place.
//
// A URL hash is laid out as
//
//	bits 63..48  zero
//	bits 47..32  low 16 bits of the scheme hash (when the URL has a scheme)
//	bits 31..0   hash of the whole URL
//
// so every URL with scheme s falls inside [Prefix(s, Lo), Prefix(s, Hi)] and
// "all https URLs" becomes a range scan over the url_hash index.
package urlhash

import (
	"fmt"
	"math/bits"
	"strings"
)

const (
	goldenRatio = 0x9E3779B9

	// maxHashedBytes bounds the work done for very long URLs.
	maxHashedBytes = 1500
	// maxSchemeBytes is how far into a URL the scheme separator is searched.
	maxSchemeBytes = 50

	schemeMask = 0x0000_ffff
	lowMask    = 0xffff_ffff
)

// Mode selects between the full hash and the two prefix bounds.
type Mode uint8

const (
	// Full hashes the complete value.
	Full Mode = iota
	// Lo is the smallest hash any URL with the prefix can have.
	Lo
	// Hi is the largest hash any URL with the prefix can have.
	Hi
)

// ParseMode maps the SQL mode argument to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "":
		return Full, nil
	case "prefix_lo":
		return Lo, nil
	case "prefix_hi":
		return Hi, nil
	default:
		return Full, fmt.Errorf("unknown hash mode %q", s)
	}
}

func (m Mode) String() string {
	switch m {
	case Lo:
		return "prefix_lo"
	case Hi:
		return "prefix_hi"
	default:
		return ""
	}
}

// String is the 32-bit rotate-xor-multiply hash over the bytes of s.
func String(s string) uint32 {
	var h uint32
	for i := 0; i < len(s); i++ {
		h = (bits.RotateLeft32(h, 5) ^ uint32(s[i])) * goldenRatio
	}
	return h
}

// URL returns the url_hash of u.
func URL(u string) uint64 {
	hashed := u
	if len(hashed) > maxHashedBytes {
		hashed = hashed[:maxHashedBytes]
	}
	strHash := uint64(String(hashed))

	head := u
	if len(head) > maxSchemeBytes {
		head = head[:maxSchemeBytes]
	}
	if pos := strings.IndexByte(head, ':'); pos >= 0 {
		return schemeHash(u[:pos]) + strHash
	}
	return strHash
}

// Prefix returns the bound selected by mode for URLs whose scheme is the text
// of prefix before its first ':'. Full behaves like URL.
func Prefix(prefix string, mode Mode) uint64 {
	if mode == Full {
		return URL(prefix)
	}
	if pos := strings.IndexByte(prefix, ':'); pos >= 0 {
		prefix = prefix[:pos]
	}
	lo := schemeHash(prefix)
	if mode == Hi {
		return lo | lowMask
	}
	return lo
}

func schemeHash(scheme string) uint64 {
	return uint64(String(scheme)&schemeMask) << 32
}
