package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"placesdb/internal/places"
	"placesdb/internal/shared"
)

func waitForAtLeast(t *testing.T, counter *int64, expected int64, timeout time.Duration) {
	t.Helper()
	require.Eventually(t, func() bool {
		return atomic.LoadInt64(counter) >= expected
	}, timeout, 10*time.Millisecond, "counter did not reach %d", expected)
}

func TestScheduler_New(t *testing.T) {
	s := New(Config{})
	assert.NotNil(t, s.cron)
	assert.NotNil(t, s.logger)
	assert.True(t, s.IsRunning())
}

func TestScheduler_AddCronJob(t *testing.T) {
	s := New(Config{})
	defer s.Stop()

	var counter int64
	_, err := s.AddCronJob("@every 100ms", func(ctx context.Context) error {
		atomic.AddInt64(&counter, 1)
		return nil
	})
	require.NoError(t, err)
	s.Start()

	waitForAtLeast(t, &counter, 1, 2*time.Second)
}

func TestScheduler_Schedules(t *testing.T) {
	s := New(Config{})
	defer s.Stop()
	noop := func(context.Context) error { return nil }

	for _, schedule := range []string{"0 */30 * * * *", "*/5 * * * *", "@hourly"} {
		_, err := s.AddCronJob(schedule, noop)
		assert.NoError(t, err, schedule)
	}
	_, err := s.AddCronJob("invalid schedule", noop)
	assert.Error(t, err)
}

func TestScheduler_FailingAndPanickingJobsKeepRunning(t *testing.T) {
	var (
		mu       sync.Mutex
		finished = map[string]error{}
	)
	s := New(Config{JobHooks: JobHooks{
		OnJobFinish: func(name string, _ time.Duration, err error) {
			mu.Lock()
			defer mu.Unlock()
			finished[name] = err
		},
	}})
	defer s.Stop()

	var calls int64
	_, err := s.AddCronJobWithOptions("@every 100ms", func(ctx context.Context) error {
		atomic.AddInt64(&calls, 1)
		return errors.New("boom")
	}, JobOptions{Name: "failing"})
	require.NoError(t, err)
	_, err = s.AddCronJobWithOptions("@every 100ms", func(ctx context.Context) error {
		panic("kaboom")
	}, JobOptions{Name: "panicking"})
	require.NoError(t, err)
	s.Start()

	waitForAtLeast(t, &calls, 2, 3*time.Second)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(finished) == 2
	}, 3*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.EqualError(t, finished["failing"], "boom")
	assert.ErrorContains(t, finished["panicking"], "kaboom")
}

func TestScheduler_JobTimeout(t *testing.T) {
	s := New(Config{})
	defer s.Stop()

	var timedOut int64
	_, err := s.AddCronJobWithOptions("@every 100ms", func(ctx context.Context) error {
		<-ctx.Done()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			atomic.AddInt64(&timedOut, 1)
		}
		return ctx.Err()
	}, JobOptions{Name: "slow", Timeout: 50 * time.Millisecond})
	require.NoError(t, err)
	s.Start()

	waitForAtLeast(t, &timedOut, 1, 2*time.Second)
}

func TestScheduler_SkipIfRunning(t *testing.T) {
	s := New(Config{})
	defer s.Stop()

	var calls int64
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	job := s.wrap(func(ctx context.Context) error {
		atomic.AddInt64(&calls, 1)
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	}, JobOptions{Name: "exclusive", OverlapPolicy: SkipIfRunning})

	done := make(chan struct{})
	go func() {
		defer close(done)
		job.Run()
	}()
	<-started

	job.Run()
	assert.EqualValues(t, 1, atomic.LoadInt64(&calls), "overlapping run skipped")

	close(release)
	<-done
	job.Run()
	assert.EqualValues(t, 2, atomic.LoadInt64(&calls), "runs again once the first finished")
}

func TestScheduler_AllowOverlap(t *testing.T) {
	s := New(Config{})
	defer s.Stop()

	var calls int64
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	job := s.wrap(func(ctx context.Context) error {
		atomic.AddInt64(&calls, 1)
		started <- struct{}{}
		<-release
		return nil
	}, JobOptions{Name: "overlapping"})

	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job.Run()
		}()
	}
	<-started
	<-started
	assert.EqualValues(t, 2, atomic.LoadInt64(&calls))

	close(release)
	wg.Wait()
}

func TestScheduler_RemoveJob(t *testing.T) {
	s := New(Config{})
	defer s.Stop()

	var counter int64
	id, err := s.AddCronJob("@every 50ms", func(ctx context.Context) error {
		atomic.AddInt64(&counter, 1)
		return nil
	})
	require.NoError(t, err)
	s.Start()
	waitForAtLeast(t, &counter, 1, 2*time.Second)

	s.RemoveJob(id)
	time.Sleep(100 * time.Millisecond)
	baseline := atomic.LoadInt64(&counter)
	assert.Never(t, func() bool {
		return atomic.LoadInt64(&counter) > baseline
	}, 300*time.Millisecond, 10*time.Millisecond)
}

func TestScheduler_StopCancelsJobs(t *testing.T) {
	s := New(Config{})

	started := make(chan struct{})
	var canceled int64
	_, err := s.AddCronJobWithOptions("@every 50ms", func(ctx context.Context) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		atomic.AddInt64(&canceled, 1)
		return nil
	}, JobOptions{OverlapPolicy: SkipIfRunning})
	require.NoError(t, err)
	s.Start()
	s.Start()

	<-started
	require.NoError(t, s.StopContext(context.Background()))
	assert.False(t, s.IsRunning())
	assert.GreaterOrEqual(t, atomic.LoadInt64(&canceled), int64(1))
	s.Stop()
}

func TestScheduler_ParentContext(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	s := NewWithContext(parent, Config{})
	s.Start()

	cancel()
	assert.Eventually(t, func() bool { return !s.IsRunning() }, time.Second, 10*time.Millisecond)
}

type fakeMaintainer struct {
	report places.MaintenanceReport
	err    error
	calls  int
}

func (f *fakeMaintainer) RunMaintenance(context.Context) (places.MaintenanceReport, error) {
	f.calls++
	return f.report, f.err
}

func TestMaintenanceJob(t *testing.T) {
	ok := &fakeMaintainer{report: places.MaintenanceReport{Busy: true, WALFrames: 10}}
	require.NoError(t, MaintenanceJob(ok, nil)(context.Background()))
	assert.Equal(t, 1, ok.calls)

	failing := &fakeMaintainer{err: shared.ErrReadOnly}
	assert.ErrorIs(t, MaintenanceJob(failing, nil)(context.Background()), shared.ErrReadOnly)
}

func TestMaintenanceJob_RealDatabase(t *testing.T) {
	opts := places.Options{Registry: places.NewRegistry()}
	db, err := places.Open(context.Background(), filepath.Join(t.TempDir(), "places.sqlite"),
		places.ReadWrite, opts.Registry.NewOwnerID(), opts)
	require.NoError(t, err)
	defer db.Close()

	s := New(Config{})
	defer s.Stop()

	var runs int64
	_, err = s.AddCronJobWithOptions("@every 50ms", func(ctx context.Context) error {
		defer atomic.AddInt64(&runs, 1)
		return MaintenanceJob(db, nil)(ctx)
	}, JobOptions{Name: "maintenance", OverlapPolicy: SkipIfRunning, Timeout: time.Second})
	require.NoError(t, err)
	s.Start()

	waitForAtLeast(t, &runs, 2, 4*time.Second)
}
