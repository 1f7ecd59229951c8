// Package httpapi exposes a places database over HTTP for inspection and
// ingest.
package httpapi

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"placesdb/internal/places"
	"placesdb/internal/places/storage"
	"placesdb/internal/platform/sqlite"
)

// Deps are the connections the handlers run on. Search is dedicated to
// autocomplete because every new search interrupts whatever runs on it.
type Deps struct {
	API    *places.API
	Writer *places.DB
	Reader *places.DB
	Search *places.DB
	Logger *slog.Logger
	// WriteRate limits ingest requests per client; zero disables the limit.
	WriteRate time.Duration
}

type handler struct {
	api    *places.API
	writer *storage.Store
	reader *storage.Store
	search *storage.Store
	// interrupt aborts the search in flight when a newer one arrives.
	interrupt *sqlite.InterruptHandle
	log       *slog.Logger
}

// NewRouter builds the gin engine serving d.
func NewRouter(d Deps) *gin.Engine {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "httpapi")

	h := &handler{
		api:       d.API,
		writer:    storage.New(d.Writer),
		reader:    storage.New(d.Reader),
		search:    storage.New(d.Search),
		interrupt: d.Search.NewInterruptHandle(),
		log:       log,
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))

	r.GET("/healthz", h.health)

	v1 := r.Group("/v1")
	v1.GET("/status", h.status)
	v1.GET("/autocomplete", h.autocomplete)
	v1.GET("/places", h.fetchPlace)
	v1.GET("/places/scheme/:scheme", h.placesWithScheme)
	v1.GET("/hosts/:host/visits", h.hostVisits)
	v1.GET("/folders/:guid/children", h.folderChildren)
	v1.GET("/bookmarks/changed", h.bookmarksChanged)
	v1.GET("/bookmarks/:guid", h.fetchBookmark)

	limit := NewRateLimiter(d.WriteRate).Middleware()
	ingest := v1.Group("", limit)
	ingest.POST("/visits", h.noteVisit)
	ingest.POST("/bookmarks", h.insertBookmark)
	ingest.PATCH("/bookmarks/:guid", h.updateBookmark)
	ingest.DELETE("/bookmarks/:guid", h.deleteBookmark)
	ingest.POST("/tags", h.tagURL)

	return r
}

// requestLogger logs one line per request at debug level. Query strings are
// left out; they carry searches.
func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("request",
			"method", c.Request.Method,
			"route", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
