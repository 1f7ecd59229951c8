package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"placesdb/internal/adapter/httpapi"
	"placesdb/internal/adapter/scheduler"
	"placesdb/internal/config"
	"placesdb/internal/places"
	"placesdb/internal/platform/logger"
)

const shutdownTimeout = 10 * time.Second

// App wires application components.
type App struct {
	cfg config.Config
	log *slog.Logger
}

// New loads configuration and builds the logger.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New(logger.Options{
		Env:          cfg.Env,
		ConsoleLevel: cfg.Log.ConsoleLevel,
		FileLevel:    cfg.Log.FileLevel,
		File:         cfg.Log.File,
		App:          "placesd",
	})
	return &App{cfg: cfg, log: log}, nil
}

// Run opens the database, serves HTTP and runs maintenance until SIGINT or
// SIGTERM.
func (a *App) Run() error {
	defer logger.Close(a.log)
	a.log.Info("starting", "db", a.cfg.Places.DBPath, "addr", a.cfg.HTTP.Addr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api, err := places.OpenAPI(ctx, a.cfg.Places.DBPath, places.Options{
		Logger:      a.log,
		BusyTimeout: a.cfg.Places.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("open places: %w", err)
	}
	defer api.Close()

	conns, err := openConnections(ctx, api)
	if err != nil {
		return err
	}
	defer conns.close(a.log)

	sched := scheduler.NewWithContext(ctx, scheduler.Config{Logger: a.log})
	if _, err := sched.AddCronJobWithOptions(a.cfg.Maintenance.Schedule,
		scheduler.MaintenanceJob(conns.writer, a.log),
		scheduler.JobOptions{
			Name:          "places-maintenance",
			Timeout:       a.cfg.Maintenance.Timeout,
			OverlapPolicy: scheduler.SkipIfRunning,
		}); err != nil {
		return err
	}
	sched.Start()

	srv := &http.Server{
		Addr: a.cfg.HTTP.Addr,
		Handler: httpapi.NewRouter(httpapi.Deps{
			API:       api,
			Writer:    conns.writer,
			Reader:    conns.reader,
			Search:    conns.search,
			Logger:    a.log,
			WriteRate: 10 * time.Millisecond,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			a.log.Error("http server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("http shutdown", "error", err)
	}
	if err := sched.StopContext(shutdownCtx); err != nil {
		a.log.Warn("scheduler shutdown", "error", err)
	}
	a.log.Info("stopped")
	return nil
}

type connections struct {
	writer *places.DB
	reader *places.DB
	search *places.DB
}

func openConnections(ctx context.Context, api *places.API) (*connections, error) {
	c := &connections{}
	var err error
	if c.writer, err = api.OpenConnection(ctx, places.ReadWrite); err != nil {
		return nil, fmt.Errorf("open writer: %w", err)
	}
	if c.reader, err = api.OpenConnection(ctx, places.ReadOnly); err != nil {
		_ = c.writer.Close()
		return nil, fmt.Errorf("open reader: %w", err)
	}
	if c.search, err = api.OpenConnection(ctx, places.ReadOnly); err != nil {
		_ = c.reader.Close()
		_ = c.writer.Close()
		return nil, fmt.Errorf("open search connection: %w", err)
	}
	return c, nil
}

func (c *connections) close(log *slog.Logger) {
	for _, db := range []*places.DB{c.search, c.reader, c.writer} {
		if err := db.Close(); err != nil {
			log.Warn("close connection", "conn", db.Kind().String(), "error", err)
		}
	}
}
