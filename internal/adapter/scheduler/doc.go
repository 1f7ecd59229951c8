// Package scheduler runs the daemon's periodic jobs on a cron schedule.
//
// Jobs receive a context bounded by the scheduler's lifetime and, when set,
// a per-job timeout. Overlapping runs of one job are allowed, skipped or
// delayed according to its OverlapPolicy. Job panics are recovered and
// logged.
//
//	s := scheduler.New(scheduler.Config{Logger: logger})
//	_, err := s.AddCronJobWithOptions("0 */30 * * * *",
//		scheduler.MaintenanceJob(db, logger),
//		scheduler.JobOptions{Name: "places-maintenance", Timeout: 2 * time.Minute, OverlapPolicy: scheduler.SkipIfRunning})
//	s.Start()
//	defer s.Stop()
package scheduler
