package cron

import (
	"context"
	"errors"
	"slices"
	"testing"
)

type fakeLocker struct {
	held     bool
	fail     error
	unlocked int
}

func (f *fakeLocker) TryLock(context.Context) (func(context.Context) error, bool, error) {
	if f.fail != nil {
		return nil, false, f.fail
	}
	if f.held {
		return nil, false, nil
	}
	f.held = true
	return func(context.Context) error {
		f.held = false
		f.unlocked++
		return nil
	}, true, nil
}

type countingJob struct {
	name string
	err  error
	runs int
}

func (c *countingJob) Name() string { return c.name }

func (c *countingJob) Run(context.Context) error {
	c.runs++
	return c.err
}

func newTestService(t *testing.T, locker Locker, jobs ...Job) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{Logger: testLogger(), Locker: locker, Jobs: jobs})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestSweepContinuesPastFailingJob(t *testing.T) {
	failing := &countingJob{name: "ledger_audit", err: errors.New("boom")}
	next := &countingJob{name: "outbox_retention"}
	locker := &fakeLocker{}
	svc := newTestService(t, locker, failing, next)

	if err := svc.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if failing.runs != 1 || next.runs != 1 {
		t.Fatalf("runs = %d,%d; want 1,1", failing.runs, next.runs)
	}
	if locker.unlocked != 1 || locker.held {
		t.Fatalf("lease not released: unlocked=%d held=%v", locker.unlocked, locker.held)
	}
}

func TestSweepSkipsWithoutLease(t *testing.T) {
	job := &countingJob{name: "ledger_audit"}
	svc := newTestService(t, &fakeLocker{held: true}, job)

	if err := svc.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("job ran %d times without the lease", job.runs)
	}
}

func TestSweepReportsLockErrors(t *testing.T) {
	job := &countingJob{name: "ledger_audit"}
	svc := newTestService(t, &fakeLocker{fail: errors.New("redis down")}, job)

	if err := svc.Sweep(context.Background()); err == nil {
		t.Fatal("expected lock error")
	}
	if job.runs != 0 {
		t.Fatalf("job ran %d times after a lock error", job.runs)
	}
}

func TestRunSweepsBeforeHonoringCancel(t *testing.T) {
	job := &countingJob{name: "ledger_audit"}
	svc := newTestService(t, &fakeLocker{}, job)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := svc.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
	if job.runs != 1 {
		t.Fatalf("initial sweep ran %d jobs, want 1", job.runs)
	}
}

func TestNewServiceDropsNilJobs(t *testing.T) {
	var optional Job
	svc := newTestService(t, &fakeLocker{}, &countingJob{name: "a"}, optional, &countingJob{name: "b"})
	if got := svc.JobNames(); !slices.Equal(got, []string{"a", "b"}) {
		t.Fatalf("JobNames = %v", got)
	}
	if svc.interval != defaultInterval {
		t.Fatalf("interval = %s, want default", svc.interval)
	}
}

func TestNewServiceRequiresLocker(t *testing.T) {
	if _, err := NewService(ServiceParams{Logger: testLogger()}); err == nil {
		t.Fatal("expected error without a locker")
	}
}
