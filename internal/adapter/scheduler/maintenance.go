package scheduler

import (
	"context"
	"log/slog"

	"placesdb/internal/places"
)

// Maintainer is a connection that can optimize itself and checkpoint its WAL.
type Maintainer interface {
	RunMaintenance(ctx context.Context) (places.MaintenanceReport, error)
}

// MaintenanceJob returns a job running db maintenance. A checkpoint that
// could not complete because readers held the WAL is logged, not failed.
func MaintenanceJob(db Maintainer, logger *slog.Logger) JobFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context) error {
		report, err := db.RunMaintenance(ctx)
		if err != nil {
			return err
		}
		if report.Busy {
			logger.Warn("wal checkpoint incomplete", "wal_frames", report.WALFrames,
				"checkpointed", report.Checkpointed)
		}
		return nil
	}
}
