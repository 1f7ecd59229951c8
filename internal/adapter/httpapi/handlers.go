package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"placesdb/internal/places"
	"placesdb/internal/places/match"
	"placesdb/internal/places/storage"
	"placesdb/internal/shared"
)

type placeJSON struct {
	GUID       string     `json:"guid"`
	URL        string     `json:"url"`
	Title      string     `json:"title,omitempty"`
	VisitCount int64      `json:"visit_count"`
	LastVisit  *time.Time `json:"last_visit,omitempty"`
	Typed      int64      `json:"typed"`
	Frecency   int64      `json:"frecency"`
}

func toPlaceJSON(p storage.Place) placeJSON {
	out := placeJSON{
		GUID:       p.GUID,
		URL:        p.URL,
		Title:      p.Title,
		VisitCount: p.VisitCount,
		Typed:      p.Typed,
		Frecency:   p.Frecency,
	}
	if !p.LastVisit.IsZero() {
		lv := p.LastVisit.UTC()
		out.LastVisit = &lv
	}
	return out
}

type bookmarkJSON struct {
	GUID              string    `json:"guid"`
	ParentGUID        string    `json:"parent_guid,omitempty"`
	Type              int       `json:"type"`
	Position          int       `json:"position"`
	Title             string    `json:"title,omitempty"`
	URL               string    `json:"url,omitempty"`
	DateAdded         time.Time `json:"date_added"`
	LastModified      time.Time `json:"last_modified"`
	SyncChangeCounter int64     `json:"sync_change_counter"`
}

func toBookmarkJSON(b storage.Bookmark) bookmarkJSON {
	return bookmarkJSON{
		GUID:              b.GUID,
		ParentGUID:        b.ParentGUID,
		Type:              b.Type,
		Position:          b.Position,
		Title:             b.Title,
		URL:               b.URL,
		DateAdded:         b.DateAdded.UTC(),
		LastModified:      b.LastModified.UTC(),
		SyncChangeCounter: b.SyncChangeCounter,
	}
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handler) status(c *gin.Context) {
	version, err := h.writer.DB().SchemaVersion(c.Request.Context())
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"path":           h.api.Path(),
		"owner":          int64(h.api.Owner()),
		"schema_version": version,
		"bookmark_epoch": h.api.BookmarkChangeTracker().Snapshot().Value,
	})
}

var sourceNames = map[string]match.SearchBehavior{
	"history":    match.History,
	"bookmark":   match.Bookmark,
	"tag":        match.Tag,
	"title":      match.Title,
	"url":        match.URL,
	"typed":      match.Typed,
	"javascript": match.Javascript,
	"openpage":   match.OpenPage,
	"restrict":   match.Restrict,
}

type autocompleteQuery struct {
	Q       string `form:"q" binding:"required"`
	Limit   int    `form:"limit" binding:"omitempty,min=1,max=100"`
	Match   string `form:"match"`
	Sources string `form:"sources"`
}

// autocomplete runs a search on the dedicated search connection after
// interrupting the previous one, so typing fast never queues stale searches.
func (h *handler) autocomplete(c *gin.Context) {
	var q autocompleteQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeBindError(c, err)
		return
	}

	params := storage.SearchParams{Search: q.Q, Limit: q.Limit}
	if q.Match != "" {
		mb, err := match.ParseMatchBehaviorName(q.Match)
		if err != nil {
			writeError(c, h.log, shared.MarkKind(err, shared.KindInvalidArgument))
			return
		}
		params.MatchBehavior = mb
	}
	for _, name := range strings.Split(q.Sources, ",") {
		if name = strings.TrimSpace(name); name == "" {
			continue
		}
		bit, ok := sourceNames[strings.ToLower(name)]
		if !ok {
			writeError(c, h.log, shared.InvalidArgumentf("unknown source %q", name))
			return
		}
		params.SearchBehavior |= bit
	}

	h.interrupt.Interrupt()
	results, err := h.search.Autocomplete(c.Request.Context(), params)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	type suggestion struct {
		URL        string   `json:"url"`
		Title      string   `json:"title,omitempty"`
		Tags       []string `json:"tags,omitempty"`
		Frecency   int64    `json:"frecency"`
		Bookmarked bool     `json:"bookmarked"`
	}
	out := make([]suggestion, 0, len(results))
	for _, r := range results {
		out = append(out, suggestion(r))
	}
	c.JSON(http.StatusOK, gin.H{"results": out})
}

func (h *handler) fetchPlace(c *gin.Context) {
	url := c.Query("url")
	if url == "" {
		writeError(c, h.log, shared.InvalidArgumentf("missing url"))
		return
	}
	p, err := h.reader.FetchPlace(c.Request.Context(), url)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, toPlaceJSON(p))
}

func (h *handler) placesWithScheme(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	list, err := h.reader.PlacesWithScheme(c.Request.Context(), c.Param("scheme"), limit)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	out := make([]placeJSON, 0, len(list))
	for _, p := range list {
		out = append(out, toPlaceJSON(p))
	}
	c.JSON(http.StatusOK, gin.H{"places": out})
}

func (h *handler) hostVisits(c *gin.Context) {
	count, err := h.reader.HostVisitCount(c.Request.Context(), c.Param("host"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"visits": count})
}

func (h *handler) folderChildren(c *gin.Context) {
	children, err := h.reader.BookmarksInFolder(c.Request.Context(), c.Param("guid"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	out := make([]bookmarkJSON, 0, len(children))
	for _, b := range children {
		out = append(out, toBookmarkJSON(b))
	}
	c.JSON(http.StatusOK, gin.H{"children": out})
}

func (h *handler) fetchBookmark(c *gin.Context) {
	b, err := h.reader.FetchBookmark(c.Request.Context(), c.Param("guid"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, toBookmarkJSON(b))
}

// bookmarksChanged reports whether bookmarks changed since the epoch a
// client saw earlier. Without since it only returns the current epoch.
func (h *handler) bookmarksChanged(c *gin.Context) {
	current := h.api.BookmarkChangeTracker().Snapshot()
	resp := gin.H{"epoch": current.Value}

	if raw := c.Query("since"); raw != "" {
		since, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(c, h.log, shared.InvalidArgumentf("invalid since %q", raw))
			return
		}
		resp["changed"] = h.api.Registry().ChangedSince(places.ChangeSnapshot{Owner: h.api.Owner(), Value: since})
	}
	c.JSON(http.StatusOK, resp)
}

type visitRequest struct {
	URL   string     `json:"url" binding:"required"`
	Title string     `json:"title"`
	Type  int        `json:"type" binding:"omitempty,min=1,max=9"`
	At    *time.Time `json:"at"`
}

func (h *handler) noteVisit(c *gin.Context) {
	var req visitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	v := storage.Visit{URL: req.URL, Title: req.Title, Type: storage.VisitType(req.Type)}
	if req.At != nil {
		v.At = *req.At
	}
	p, err := h.writer.NoteVisit(c.Request.Context(), v)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, toPlaceJSON(p))
}

type bookmarkRequest struct {
	ParentGUID string `json:"parent_guid" binding:"required"`
	Type       int    `json:"type" binding:"omitempty,oneof=1 2 3"`
	URL        string `json:"url"`
	Title      string `json:"title"`
	Position   *int   `json:"position"`
}

func (h *handler) insertBookmark(c *gin.Context) {
	var req bookmarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	nb := storage.NewBookmark{
		ParentGUID: req.ParentGUID,
		Type:       req.Type,
		URL:        req.URL,
		Title:      req.Title,
		Position:   req.Position,
	}
	b, err := h.writer.InsertBookmark(c.Request.Context(), nb)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, toBookmarkJSON(b))
}

type titleRequest struct {
	Title *string `json:"title" binding:"required"`
}

func (h *handler) updateBookmark(c *gin.Context) {
	var req titleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	b, err := h.writer.UpdateBookmarkTitle(c.Request.Context(), c.Param("guid"), *req.Title)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, toBookmarkJSON(b))
}

func (h *handler) deleteBookmark(c *gin.Context) {
	if err := h.writer.DeleteBookmark(c.Request.Context(), c.Param("guid")); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type tagRequest struct {
	URL string `json:"url" binding:"required"`
	Tag string `json:"tag" binding:"required"`
}

func (h *handler) tagURL(c *gin.Context) {
	var req tagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	if err := h.writer.TagURL(c.Request.Context(), req.URL, req.Tag); err != nil {
		writeError(c, h.log, err)
		return
	}
	tags, err := h.writer.TagsForURL(c.Request.Context(), req.URL)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": req.URL, "tags": tags})
}
