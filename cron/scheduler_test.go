package cron_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/xraph/cadence/cron"
	"github.com/xraph/cadence/job"
	"github.com/xraph/cadence/store/memory"
)

// stubEmitter records EmitCronTicked calls.
type stubEmitter struct {
	mu    sync.Mutex
	calls []*job.Job
}

func (e *stubEmitter) EmitCronTicked(_ context.Context, _ *job.Job, task *job.Job) {
	e.mu.Lock()
	e.calls = append(e.calls, task)
	e.mu.Unlock()
}

func (e *stubEmitter) getCalls() []*job.Job {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*job.Job, len(e.calls))
	copy(out, e.calls)
	return out
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func noop(_ context.Context) (any, error) { return nil, nil }

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	v, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return v
}

func paris(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

type fixture struct {
	store    *memory.Store
	registry *job.Registry
	emitter  *stubEmitter
	clock    *clock
}

func newFixture(t *testing.T, defs ...*cron.Definition) *fixture {
	t.Helper()
	r := job.NewRegistry()
	for _, d := range defs {
		if err := cron.RegisterDefinition(r, d); err != nil {
			t.Fatalf("RegisterDefinition(%s): %v", d.Name, err)
		}
	}
	return &fixture{
		store:    memory.New(),
		registry: r,
		emitter:  &stubEmitter{},
		clock:    &clock{now: mustTime(t, "2024-02-21T10:30:00Z")},
	}
}

func (f *fixture) scheduler(t *testing.T, opts ...cron.SchedulerOption) *cron.Scheduler {
	t.Helper()
	guard := job.NewGuard(f.store, f.registry, nil, nil)
	opts = append([]cron.SchedulerOption{cron.WithLocation(paris(t)), cron.WithClock(f.clock.Now)}, opts...)
	return cron.NewScheduler(f.store, f.registry, guard, f.emitter, nil, opts...)
}

func (f *fixture) tasks(t *testing.T, name string) []*job.Job {
	t.Helper()
	tasks, err := f.store.ListJobs(context.Background(), job.ListOpts{Types: []job.Type{job.TypeCronTask}, Name: name})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	return tasks
}

// ──────────────────────────────────────────────────
// Definitions
// ──────────────────────────────────────────────────

func TestRegisterDefinition_InvalidSchedule(t *testing.T) {
	r := job.NewRegistry()
	if err := cron.RegisterDefinition(r, cron.NewDefinition("bad", "not a cron", noop)); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
	if _, ok := r.Get(job.TypeCronTask, "bad"); ok {
		t.Fatal("invalid definition registered")
	}
}

func TestNextFire(t *testing.T) {
	sched, err := cron.ParseSchedule("0 9 * * *")
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}
	loc := paris(t)

	tests := []struct {
		name   string
		anchor string
		now    string
		want   string
	}{
		{"next day in Paris", "2024-02-21T10:30:00Z", "2024-02-21T10:40:00Z", "2024-02-22T08:00:00Z"},
		{"same day before fire time", "2024-02-21T06:00:00Z", "2024-02-21T06:00:00Z", "2024-02-21T08:00:00Z"},
		{"summer time offset", "2024-07-01T10:00:00Z", "2024-07-01T10:00:00Z", "2024-07-02T07:00:00Z"},
		{"clamped to now after downtime", "2024-02-01T10:00:00Z", "2024-02-10T12:00:00Z", "2024-02-10T12:00:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cron.NextFire(sched, mustTime(t, tt.anchor), mustTime(t, tt.now), loc)
			if want := mustTime(t, tt.want); !got.Equal(want) {
				t.Errorf("NextFire = %v, want %v", got, want)
			}
		})
	}
}

// ──────────────────────────────────────────────────
// Init
// ──────────────────────────────────────────────────

func TestInit_InsertsAndRemovesCrons(t *testing.T) {
	f := newFixture(t, cron.NewDefinition("daily", "0 9 * * *", noop))
	ctx := context.Background()

	if _, err := f.store.UpsertCron(ctx, "obsolete", "@hourly", f.clock.Now()); err != nil {
		t.Fatalf("UpsertCron: %v", err)
	}
	stale := job.NewCronTask("obsolete", f.clock.Now())
	if err := f.store.InsertJob(ctx, stale); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}

	if err := f.scheduler(t).Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}

	crons, _ := f.store.ListJobs(ctx, job.ListOpts{Types: []job.Type{job.TypeCron}})
	if len(crons) != 1 || crons[0].Name != "daily" {
		t.Fatalf("crons = %v, want [daily]", crons)
	}
	c := crons[0]
	if c.Status != job.StatusActive || c.CronString != "0 9 * * *" || !c.ScheduledFor.Equal(f.clock.Now()) {
		t.Errorf("cron = %+v", c)
	}
	if len(f.tasks(t, "obsolete")) != 0 {
		t.Error("pending task of removed cron kept")
	}
}

func TestInit_IdempotentKeepsSchedule(t *testing.T) {
	f := newFixture(t, cron.NewDefinition("daily", "0 9 * * *", noop))
	ctx := context.Background()
	s := f.scheduler(t)

	if err := s.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	first := f.clock.Now()
	f.clock.Set(first.Add(time.Hour))
	if err := s.Init(ctx); err != nil {
		t.Fatalf("second Init: %v", err)
	}

	crons, _ := f.store.ListCronsByName(ctx, "daily")
	if len(crons) != 1 {
		t.Fatalf("crons = %d, want 1", len(crons))
	}
	if !crons[0].ScheduledFor.Equal(first) {
		t.Errorf("ScheduledFor = %v, want unchanged %v", crons[0].ScheduledFor, first)
	}
}

func TestInit_ScheduleChangeResets(t *testing.T) {
	f := newFixture(t, cron.NewDefinition("daily", "0 10 * * *", noop))
	ctx := context.Background()

	old := f.clock.Now().Add(-48 * time.Hour)
	if _, err := f.store.UpsertCron(ctx, "daily", "0 9 * * *", old); err != nil {
		t.Fatalf("UpsertCron: %v", err)
	}
	pending := job.NewCronTask("daily", f.clock.Now().Add(time.Hour))
	if err := f.store.InsertJob(ctx, pending); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}

	if err := f.scheduler(t).Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}

	crons, _ := f.store.ListCronsByName(ctx, "daily")
	if len(crons) != 1 || crons[0].CronString != "0 10 * * *" {
		t.Fatalf("crons = %+v", crons)
	}
	if !crons[0].ScheduledFor.Equal(f.clock.Now()) {
		t.Errorf("ScheduledFor = %v, want reset to %v", crons[0].ScheduledFor, f.clock.Now())
	}
	if len(f.tasks(t, "daily")) != 0 {
		t.Error("pending tasks of changed cron kept")
	}
}

// ──────────────────────────────────────────────────
// Tick
// ──────────────────────────────────────────────────

func TestTick_FiresOnceAndAdvances(t *testing.T) {
	f := newFixture(t, cron.NewDefinition("daily", "0 9 * * *", noop))
	ctx := context.Background()
	s := f.scheduler(t)

	if err := s.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}

	f.clock.Set(mustTime(t, "2024-02-21T10:40:00Z"))
	if err := s.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	want := mustTime(t, "2024-02-22T08:00:00Z")
	tasks := f.tasks(t, "daily")
	if len(tasks) != 1 {
		t.Fatalf("tasks = %d, want 1", len(tasks))
	}
	if !tasks[0].ScheduledFor.Equal(want) || tasks[0].Status != job.StatusPending {
		t.Errorf("task = %+v, want pending at %v", tasks[0], want)
	}

	crons, _ := f.store.ListCronsByName(ctx, "daily")
	if !crons[0].ScheduledFor.Equal(want) {
		t.Errorf("cron ScheduledFor = %v, want %v", crons[0].ScheduledFor, want)
	}

	// Not due again until the next occurrence.
	if err := s.Tick(ctx); err != nil {
		t.Fatalf("second Tick: %v", err)
	}
	if n := len(f.tasks(t, "daily")); n != 1 {
		t.Errorf("tasks after second tick = %d, want 1", n)
	}
	if calls := f.emitter.getCalls(); len(calls) != 1 {
		t.Errorf("emitter calls = %d, want 1", len(calls))
	}
}

func TestTick_ManySchedulersFireOnce(t *testing.T) {
	f := newFixture(t, cron.NewDefinition("minutely", "* * * * *", noop))
	ctx := context.Background()

	schedulers := make([]*cron.Scheduler, 5)
	for i := range schedulers {
		schedulers[i] = f.scheduler(t)
	}
	if err := schedulers[0].Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}

	var wg sync.WaitGroup
	for _, s := range schedulers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Tick(ctx); err != nil {
				t.Errorf("Tick: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := len(f.tasks(t, "minutely")); n != 1 {
		t.Errorf("tasks = %d, want exactly 1", n)
	}
}

func TestTick_ExclusiveCronSkipsWhileActive(t *testing.T) {
	f := newFixture(t, cron.NewDefinition("report", "* * * * *", noop, job.WithConcurrency(job.ModeExclusive)))
	ctx := context.Background()
	s := f.scheduler(t)
	if err := s.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}

	if err := s.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	f.clock.Set(f.clock.Now().Add(2 * time.Minute))
	if err := s.Tick(ctx); err != nil {
		t.Fatalf("second Tick: %v", err)
	}

	tasks := f.tasks(t, "report")
	if len(tasks) != 2 {
		t.Fatalf("tasks = %d, want 2", len(tasks))
	}
	var skipped int
	for _, task := range tasks {
		if task.Status == job.StatusSkipped {
			skipped++
		}
	}
	if skipped != 1 {
		t.Errorf("skipped = %d, want 1", skipped)
	}
}

func TestRun_NoCronsReturnsImmediately(t *testing.T) {
	f := newFixture(t)
	s := f.scheduler(t)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return without crons")
	}
}

func TestRun_TicksUntilCancelled(t *testing.T) {
	f := newFixture(t, cron.NewDefinition("minutely", "* * * * *", noop))
	ctx, cancel := context.WithCancel(context.Background())
	s := f.scheduler(t, cron.WithTickInterval(10*time.Millisecond))
	if err := s.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for len(f.emitter.getCalls()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(f.emitter.getCalls()) == 0 {
		t.Fatal("cron never fired")
	}
}
