// Package storetest is a conformance suite for store.Store backends.
//
//	func TestConformance(t *testing.T) {
//	    storetest.Run(t, func(t *testing.T) store.Store { return newStore(t) })
//	}
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/cluster"
	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/job"
	"github.com/xraph/cadence/signal"
	"github.com/xraph/cadence/store"
)

// Factory returns an empty, migrated store.
type Factory func(t *testing.T) store.Store

// Run executes every conformance test against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"InsertAndGet", testInsertAndGet},
		{"ExclusiveConflict", testExclusiveConflict},
		{"FindLatestActive", testFindLatestActive},
		{"ClaimOrderAndScope", testClaimOrderAndScope},
		{"ClaimPreservesStartedAt", testClaimPreservesStartedAt},
		{"ClaimIsExclusive", testClaimIsExclusive},
		{"FinalizeConditional", testFinalizeConditional},
		{"ReclaimOrphaned", testReclaimOrphaned},
		{"KillInactive", testKillInactive},
		{"ListJobs", testListJobs},
		{"PurgeJobs", testPurgeJobs},
		{"CronUpsert", testCronUpsert},
		{"CronDeleteNotIn", testCronDeleteNotIn},
		{"CronAdvanceCAS", testCronAdvanceCAS},
		{"Workers", testWorkers},
		{"Signals", testSignals},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

// now is truncated to the coarsest precision of the supported backends.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func simple(name string, mode job.ConcurrencyMode, scheduledFor time.Time) *job.Job {
	j := job.NewSimple(name, json.RawMessage(`{"n":1}`), scheduledFor)
	j.Concurrency.Mode = mode
	j.CreatedAt = j.CreatedAt.Truncate(time.Millisecond)
	j.UpdatedAt = j.CreatedAt
	j.ScheduledFor = scheduledFor.Truncate(time.Millisecond)
	return j
}

func mustInsert(t *testing.T, s store.Store, j *job.Job) {
	t.Helper()
	if err := s.InsertJob(context.Background(), j); err != nil {
		t.Fatalf("InsertJob(%s): %v", j.Name, err)
	}
}

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

func testInsertAndGet(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := simple("send-email", job.ModeConcurrent, now().Add(-time.Minute))
	mustInsert(t, s, j)

	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.ID != j.ID || got.Name != "send-email" || got.Type != job.TypeSimple {
		t.Errorf("GetJob = %+v, want id %s", got, j.ID)
	}
	if got.Status != job.StatusPending {
		t.Errorf("Status = %q, want pending", got.Status)
	}
	if !got.ScheduledFor.Equal(j.ScheduledFor) {
		t.Errorf("ScheduledFor = %v, want %v", got.ScheduledFor, j.ScheduledFor)
	}
	var payload map[string]int
	if err := json.Unmarshal(got.Payload, &payload); err != nil || payload["n"] != 1 {
		t.Errorf("Payload = %s (%v), want {\"n\":1}", got.Payload, err)
	}
	if !got.WorkerID.IsNil() {
		t.Errorf("WorkerID = %s, want nil", got.WorkerID)
	}

	if _, err := s.GetJob(ctx, id.NewJobID()); !errors.Is(err, cadence.ErrJobNotFound) {
		t.Errorf("GetJob(unknown) error = %v, want ErrJobNotFound", err)
	}
}

func testExclusiveConflict(t *testing.T, s store.Store) {
	ctx := context.Background()
	first := simple("report", job.ModeExclusive, now())
	mustInsert(t, s, first)

	second := simple("report", job.ModeExclusive, now())
	if err := s.InsertJob(ctx, second); !errors.Is(err, cadence.ErrActiveConflict) {
		t.Fatalf("second exclusive insert error = %v, want ErrActiveConflict", err)
	}

	// Concurrent instances and skipped records never conflict.
	mustInsert(t, s, simple("report", job.ModeConcurrent, now()))
	skipped := simple("report", job.ModeExclusive, now())
	skipped.Status = job.StatusSkipped
	mustInsert(t, s, skipped)

	// A cron task with the same name is a different slot.
	task := job.NewCronTask("report", now())
	task.Concurrency.Mode = job.ModeExclusive
	mustInsert(t, s, task)

	// Once the active instance ends, the slot is free.
	if ok, err := s.KillInactiveJob(ctx, first.ID, now()); err != nil || !ok {
		t.Fatalf("KillInactiveJob = %v, %v", ok, err)
	}
	mustInsert(t, s, simple("report", job.ModeExclusive, now()))
}

func testFindLatestActive(t *testing.T, s store.Store) {
	ctx := context.Background()
	if _, err := s.FindLatestActive(ctx, job.TypeSimple, "none"); !errors.Is(err, cadence.ErrJobNotFound) {
		t.Fatalf("FindLatestActive(none) error = %v, want ErrJobNotFound", err)
	}

	older := simple("sync-crm", job.ModeConcurrent, now())
	mustInsert(t, s, older)
	newer := simple("sync-crm", job.ModeConcurrent, now())
	mustInsert(t, s, newer)
	done := simple("sync-crm", job.ModeConcurrent, now())
	done.Status = job.StatusFinished
	mustInsert(t, s, done)

	got, err := s.FindLatestActive(ctx, job.TypeSimple, "sync-crm")
	if err != nil {
		t.Fatalf("FindLatestActive: %v", err)
	}
	if got.ID != newer.ID {
		t.Errorf("FindLatestActive = %s, want %s", got.ID, newer.ID)
	}
}

func testClaimOrderAndScope(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := now()
	worker := id.NewWorkerID()

	late := simple("a", job.ModeConcurrent, base.Add(-1*time.Minute))
	early := simple("a", job.ModeConcurrent, base.Add(-5*time.Minute))
	future := simple("a", job.ModeConcurrent, base.Add(time.Hour))
	other := simple("b", job.ModeConcurrent, base.Add(-10*time.Minute))
	task := job.NewCronTask("nightly", base.Add(-2*time.Minute))
	task.ScheduledFor = task.ScheduledFor.Truncate(time.Millisecond)
	for _, j := range []*job.Job{late, early, future, other, task} {
		mustInsert(t, s, j)
	}

	scope := job.Scope{SimpleNames: []string{"a"}, CronTaskNames: []string{"nightly"}}
	want := []id.JobID{early.ID, task.ID, late.ID}
	for i, w := range want {
		got, err := s.ClaimNextJob(ctx, scope, worker, base)
		if err != nil {
			t.Fatalf("claim %d: %v", i, err)
		}
		if got == nil || got.ID != w {
			t.Fatalf("claim %d = %v, want %s", i, got, w)
		}
		if got.Status != job.StatusRunning || got.WorkerID != worker || got.StartedAt == nil {
			t.Errorf("claimed record not running for worker: %+v", got)
		}
	}

	got, err := s.ClaimNextJob(ctx, scope, worker, base)
	if err != nil || got != nil {
		t.Fatalf("claim after drain = %v, %v; want nil", got, err)
	}

	got, err = s.ClaimNextJob(ctx, job.Scope{All: true}, worker, base)
	if err != nil || got == nil || got.ID != other.ID {
		t.Fatalf("claim all = %v, %v; want %s", got, err, other.ID)
	}
}

func testClaimPreservesStartedAt(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := simple("resumable", job.ModeConcurrent, now().Add(-time.Minute))
	mustInsert(t, s, j)
	worker := id.NewWorkerID()

	first, err := s.ClaimNextJob(ctx, job.Scope{All: true}, worker, now())
	if err != nil || first == nil {
		t.Fatalf("first claim = %v, %v", first, err)
	}
	startedAt := *first.StartedAt

	ok, err := s.FinalizeJob(ctx, j.ID, worker, job.Finalization{Status: job.StatusPaused, UpdatedAt: now()})
	if err != nil || !ok {
		t.Fatalf("pause = %v, %v", ok, err)
	}

	next := id.NewWorkerID()
	second, err := s.ClaimNextJob(ctx, job.Scope{All: true}, next, now().Add(time.Hour))
	if err != nil || second == nil {
		t.Fatalf("second claim = %v, %v", second, err)
	}
	if second.WorkerID != next {
		t.Errorf("WorkerID = %s, want %s", second.WorkerID, next)
	}
	if !second.StartedAt.Equal(startedAt) {
		t.Errorf("StartedAt = %v, want preserved %v", second.StartedAt, startedAt)
	}
}

func testClaimIsExclusive(t *testing.T, s store.Store) {
	ctx := context.Background()
	const jobs = 10
	for range jobs {
		mustInsert(t, s, simple("race", job.ModeConcurrent, now().Add(-time.Minute)))
	}

	var (
		mu      sync.Mutex
		claimed = make(map[id.JobID]int)
		wg      sync.WaitGroup
	)
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker := id.NewWorkerID()
			for {
				j, err := s.ClaimNextJob(ctx, job.Scope{All: true}, worker, now())
				if err != nil {
					t.Errorf("ClaimNextJob: %v", err)
					return
				}
				if j == nil {
					return
				}
				mu.Lock()
				claimed[j.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(claimed) != jobs {
		t.Errorf("claimed %d distinct jobs, want %d", len(claimed), jobs)
	}
	for jid, n := range claimed {
		if n != 1 {
			t.Errorf("job %s claimed %d times", jid, n)
		}
	}
}

func testFinalizeConditional(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := simple("finalize", job.ModeConcurrent, now().Add(-time.Minute))
	mustInsert(t, s, j)
	worker := id.NewWorkerID()
	if _, err := s.ClaimNextJob(ctx, job.Scope{All: true}, worker, now()); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}

	end := now()
	fin := job.Finalization{
		Status:    job.StatusFinished,
		Output:    &job.Output{Duration: "1s", Result: json.RawMessage(`{"ok":true}`)},
		EndedAt:   &end,
		UpdatedAt: end,
	}

	if ok, err := s.FinalizeJob(ctx, j.ID, id.NewWorkerID(), fin); err != nil || ok {
		t.Fatalf("finalize by stranger = %v, %v; want false", ok, err)
	}
	if ok, err := s.FinalizeJob(ctx, j.ID, worker, fin); err != nil || !ok {
		t.Fatalf("finalize by owner = %v, %v; want true", ok, err)
	}
	if ok, err := s.FinalizeJob(ctx, j.ID, worker, job.Finalization{Status: job.StatusErrored, UpdatedAt: end}); err != nil || ok {
		t.Fatalf("second finalize = %v, %v; want false", ok, err)
	}

	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != job.StatusFinished || !got.WorkerID.IsNil() || got.EndedAt == nil {
		t.Errorf("finalized record = %+v", got)
	}
	if got.Output == nil || got.Output.Duration != "1s" {
		t.Fatalf("Output = %+v", got.Output)
	}
	var result map[string]bool
	if err := json.Unmarshal(got.Output.Result, &result); err != nil || !result["ok"] {
		t.Errorf("Output.Result = %s (%v)", got.Output.Result, err)
	}
}

func testReclaimOrphaned(t *testing.T, s store.Store) {
	ctx := context.Background()
	live := id.NewWorkerID()
	dead := id.NewWorkerID()

	orphan := simple("orphan", job.ModeConcurrent, now().Add(-time.Hour))
	owned := simple("owned", job.ModeConcurrent, now().Add(-time.Hour))
	mustInsert(t, s, orphan)
	mustInsert(t, s, owned)

	claimAt := now().Add(-10 * time.Minute)
	if j, err := s.ClaimNextJob(ctx, job.Scope{SimpleNames: []string{"orphan"}}, dead, claimAt); err != nil || j == nil {
		t.Fatalf("claim orphan = %v, %v", j, err)
	}
	if j, err := s.ClaimNextJob(ctx, job.Scope{SimpleNames: []string{"owned"}}, live, claimAt); err != nil || j == nil {
		t.Fatalf("claim owned = %v, %v", j, err)
	}

	// Within the grace period nothing is reclaimed.
	got, err := s.ReclaimOrphanedJob(ctx, []id.WorkerID{live}, claimAt, now())
	if err != nil || got != nil {
		t.Fatalf("reclaim within grace = %v, %v; want nil", got, err)
	}

	got, err = s.ReclaimOrphanedJob(ctx, []id.WorkerID{live}, now().Add(-5*time.Minute), now())
	if err != nil {
		t.Fatalf("ReclaimOrphanedJob: %v", err)
	}
	if got == nil || got.ID != orphan.ID {
		t.Fatalf("reclaimed = %v, want %s", got, orphan.ID)
	}
	if got.Status != job.StatusErrored || got.Output == nil || got.Output.Error != job.CrashedError || got.Output.Duration != job.DurationUnknown {
		t.Errorf("reclaimed record = %+v output %+v", got, got.Output)
	}
	if got.EndedAt == nil || !got.WorkerID.IsNil() {
		t.Errorf("reclaimed record not ended: %+v", got)
	}

	again, err := s.ReclaimOrphanedJob(ctx, []id.WorkerID{live}, now().Add(-5*time.Minute), now())
	if err != nil || again != nil {
		t.Fatalf("second reclaim = %v, %v; want nil", again, err)
	}
}

func testKillInactive(t *testing.T, s store.Store) {
	ctx := context.Background()
	pending := simple("kill-me", job.ModeConcurrent, now())
	mustInsert(t, s, pending)

	ok, err := s.KillInactiveJob(ctx, pending.ID, now())
	if err != nil || !ok {
		t.Fatalf("kill pending = %v, %v; want true", ok, err)
	}
	got, _ := s.GetJob(ctx, pending.ID)
	if got.Status != job.StatusKilled || got.EndedAt == nil {
		t.Errorf("Status = %q, EndedAt = %v; want killed with ended_at", got.Status, got.EndedAt)
	}

	running := simple("busy", job.ModeConcurrent, now().Add(-time.Minute))
	mustInsert(t, s, running)
	if _, err := s.ClaimNextJob(ctx, job.Scope{SimpleNames: []string{"busy"}}, id.NewWorkerID(), now()); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	ok, err = s.KillInactiveJob(ctx, running.ID, now())
	if err != nil || ok {
		t.Fatalf("kill running = %v, %v; want false", ok, err)
	}

	ok, err = s.KillInactiveJob(ctx, id.NewJobID(), now())
	if err != nil || ok {
		t.Fatalf("kill unknown = %v, %v; want false", ok, err)
	}
}

func testListJobs(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := now()
	a := simple("list", job.ModeConcurrent, base.Add(-3*time.Minute))
	b := simple("list", job.ModeConcurrent, base.Add(-1*time.Minute))
	c := simple("other", job.ModeConcurrent, base.Add(-2*time.Minute))
	c.Status = job.StatusFinished
	for _, j := range []*job.Job{a, b, c} {
		mustInsert(t, s, j)
	}

	all, err := s.ListJobs(ctx, job.ListOpts{})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(all) != 3 || all[0].ID != b.ID || all[1].ID != c.ID || all[2].ID != a.ID {
		t.Errorf("ListJobs order wrong: %v", ids(all))
	}

	named, _ := s.ListJobs(ctx, job.ListOpts{Name: "list"})
	if len(named) != 2 {
		t.Errorf("ListJobs(name) = %d, want 2", len(named))
	}

	active, _ := s.ListJobs(ctx, job.ListOpts{ExcludeStatuses: []job.Status{job.StatusFinished, job.StatusErrored}})
	if len(active) != 2 {
		t.Errorf("ListJobs(exclude) = %d, want 2", len(active))
	}

	finished, _ := s.ListJobs(ctx, job.ListOpts{Statuses: []job.Status{job.StatusFinished}, Types: []job.Type{job.TypeSimple}})
	if len(finished) != 1 || finished[0].ID != c.ID {
		t.Errorf("ListJobs(status) = %v, want [%s]", ids(finished), c.ID)
	}

	limited, _ := s.ListJobs(ctx, job.ListOpts{Limit: 1})
	if len(limited) != 1 {
		t.Errorf("ListJobs(limit) = %d, want 1", len(limited))
	}
}

func testPurgeJobs(t *testing.T, s store.Store) {
	ctx := context.Background()
	old := simple("old", job.ModeConcurrent, now().Add(-time.Hour))
	ended := now().Add(-100 * 24 * time.Hour)
	old.Status = job.StatusFinished
	old.EndedAt = &ended
	recent := simple("recent", job.ModeConcurrent, now())
	mustInsert(t, s, old)
	mustInsert(t, s, recent)

	n, err := s.PurgeJobs(ctx, now().Add(-90*24*time.Hour))
	if err != nil {
		t.Fatalf("PurgeJobs: %v", err)
	}
	if n != 1 {
		t.Errorf("PurgeJobs = %d, want 1", n)
	}
	if _, err := s.GetJob(ctx, old.ID); !errors.Is(err, cadence.ErrJobNotFound) {
		t.Errorf("purged job still present: %v", err)
	}
	if _, err := s.GetJob(ctx, recent.ID); err != nil {
		t.Errorf("recent job purged: %v", err)
	}
}

func ids(jobs []*job.Job) []string {
	out := make([]string, len(jobs))
	for i, j := range jobs {
		out[i] = j.ID.String()
	}
	return out
}

// ──────────────────────────────────────────────────
// Cron Store
// ──────────────────────────────────────────────────

func testCronUpsert(t *testing.T, s store.Store) {
	ctx := context.Background()
	at := now()

	prev, err := s.UpsertCron(ctx, "nightly", "0 9 * * *", at)
	if err != nil {
		t.Fatalf("UpsertCron insert: %v", err)
	}
	if prev != nil {
		t.Fatalf("insert returned previous record %+v", prev)
	}

	crons, err := s.ListCronsByName(ctx, "nightly")
	if err != nil || len(crons) != 1 {
		t.Fatalf("ListCronsByName = %v, %v", crons, err)
	}
	c := crons[0]
	if c.Type != job.TypeCron || c.Status != job.StatusActive || c.CronString != "0 9 * * *" {
		t.Errorf("cron record = %+v", c)
	}
	if !c.ScheduledFor.Equal(at) {
		t.Errorf("ScheduledFor = %v, want %v", c.ScheduledFor, at)
	}

	prev, err = s.UpsertCron(ctx, "nightly", "0 10 * * *", at.Add(time.Minute))
	if err != nil {
		t.Fatalf("UpsertCron update: %v", err)
	}
	if prev == nil || prev.CronString != "0 9 * * *" || prev.ID != c.ID {
		t.Fatalf("update previous = %+v", prev)
	}

	crons, _ = s.ListCronsByName(ctx, "nightly")
	if len(crons) != 1 || crons[0].CronString != "0 10 * * *" {
		t.Errorf("after update = %+v", crons)
	}

	reset := at.Add(2 * time.Minute)
	if err := s.ResetCronSchedule(ctx, c.ID, reset); err != nil {
		t.Fatalf("ResetCronSchedule: %v", err)
	}
	due, err := s.FindDueCrons(ctx, reset)
	if err != nil || len(due) != 1 || !due[0].ScheduledFor.Equal(reset) {
		t.Fatalf("FindDueCrons = %v, %v", due, err)
	}
	if due, _ := s.FindDueCrons(ctx, at.Add(time.Minute)); len(due) != 0 {
		t.Errorf("FindDueCrons before reset time = %d, want 0", len(due))
	}

	if err := s.DeleteCron(ctx, c.ID); err != nil {
		t.Fatalf("DeleteCron: %v", err)
	}
	if crons, _ := s.ListCronsByName(ctx, "nightly"); len(crons) != 0 {
		t.Errorf("cron still present after delete")
	}
}

func testCronDeleteNotIn(t *testing.T, s store.Store) {
	ctx := context.Background()
	at := now()
	for _, name := range []string{"keep", "drop"} {
		if _, err := s.UpsertCron(ctx, name, "@daily", at); err != nil {
			t.Fatalf("UpsertCron(%s): %v", name, err)
		}
	}
	dropTask := job.NewCronTask("drop", at)
	keepTask := job.NewCronTask("keep", at)
	mustInsert(t, s, dropTask)
	mustInsert(t, s, keepTask)

	n, err := s.DeleteCronsNotIn(ctx, []string{"keep"})
	if err != nil {
		t.Fatalf("DeleteCronsNotIn: %v", err)
	}
	if n != 1 {
		t.Errorf("DeleteCronsNotIn = %d, want 1", n)
	}
	if _, err := s.GetJob(ctx, dropTask.ID); !errors.Is(err, cadence.ErrJobNotFound) {
		t.Errorf("pending task of removed cron kept: %v", err)
	}
	if _, err := s.GetJob(ctx, keepTask.ID); err != nil {
		t.Errorf("pending task of kept cron removed: %v", err)
	}

	n, err = s.DeletePendingCronTasks(ctx, "keep")
	if err != nil || n != 1 {
		t.Errorf("DeletePendingCronTasks = %d, %v; want 1", n, err)
	}

	n, err = s.DeleteCronsNotIn(ctx, nil)
	if err != nil || n != 1 {
		t.Errorf("DeleteCronsNotIn(nil) = %d, %v; want 1", n, err)
	}
}

func testCronAdvanceCAS(t *testing.T, s store.Store) {
	ctx := context.Background()
	at := now()
	if _, err := s.UpsertCron(ctx, "tick", "* * * * *", at); err != nil {
		t.Fatalf("UpsertCron: %v", err)
	}
	due, err := s.FindDueCrons(ctx, at)
	if err != nil || len(due) != 1 {
		t.Fatalf("FindDueCrons = %v, %v", due, err)
	}
	c := due[0]
	next := at.Add(time.Minute)

	var (
		wins int
		mu   sync.Mutex
		wg   sync.WaitGroup
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.AdvanceCronSchedule(ctx, c.ID, c.ScheduledFor, next, at)
			if err != nil {
				t.Errorf("AdvanceCronSchedule: %v", err)
				return
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("AdvanceCronSchedule winners = %d, want 1", wins)
	}
	crons, _ := s.ListCronsByName(ctx, "tick")
	if len(crons) != 1 || !crons[0].ScheduledFor.Equal(next) {
		t.Errorf("scheduled_for = %v, want %v", crons, next)
	}
}

// ──────────────────────────────────────────────────
// Cluster Store
// ──────────────────────────────────────────────────

func testWorkers(t *testing.T, s store.Store) {
	ctx := context.Background()
	at := now()

	w := &cluster.Worker{ID: id.NewWorkerID(), Hostname: "host-a", LastSeen: at, Tags: []string{"billing"}}
	if err := s.UpsertWorker(ctx, w); err != nil {
		t.Fatalf("UpsertWorker: %v", err)
	}
	again := &cluster.Worker{ID: w.ID, Hostname: "host-b", LastSeen: at.Add(time.Second), Tags: []string{"billing", "mail"}}
	if err := s.UpsertWorker(ctx, again); err != nil {
		t.Fatalf("UpsertWorker again: %v", err)
	}

	untagged := &cluster.Worker{ID: id.NewWorkerID(), Hostname: "host-c", LastSeen: at.Add(-10 * time.Minute)}
	if err := s.UpsertWorker(ctx, untagged); err != nil {
		t.Fatalf("UpsertWorker untagged: %v", err)
	}

	live, err := s.ListWorkers(ctx, at.Add(-5*time.Minute))
	if err != nil {
		t.Fatalf("ListWorkers: %v", err)
	}
	if len(live) != 1 || live[0].ID != w.ID {
		t.Fatalf("ListWorkers = %+v, want [%s]", live, w.ID)
	}
	if live[0].Hostname != "host-a" {
		t.Errorf("Hostname = %q, want first write kept", live[0].Hostname)
	}
	if len(live[0].Tags) != 2 {
		t.Errorf("Tags = %v, want refreshed", live[0].Tags)
	}

	ok, err := s.TouchWorker(ctx, w.ID, at.Add(time.Minute))
	if err != nil || !ok {
		t.Fatalf("TouchWorker = %v, %v; want true", ok, err)
	}
	ok, err = s.TouchWorker(ctx, id.NewWorkerID(), at)
	if err != nil || ok {
		t.Fatalf("TouchWorker(missing) = %v, %v; want false", ok, err)
	}

	n, err := s.PurgeExpiredWorkers(ctx, at.Add(-5*time.Minute))
	if err != nil || n != 1 {
		t.Errorf("PurgeExpiredWorkers = %d, %v; want 1", n, err)
	}

	if err := s.RemoveWorker(ctx, w.ID); err != nil {
		t.Fatalf("RemoveWorker: %v", err)
	}
	if err := s.RemoveWorker(ctx, w.ID); err != nil {
		t.Fatalf("RemoveWorker twice: %v", err)
	}
	live, _ = s.ListWorkers(ctx, time.Time{})
	if len(live) != 0 {
		t.Errorf("ListWorkers after remove = %d, want 0", len(live))
	}
}

// ──────────────────────────────────────────────────
// Signal Store
// ──────────────────────────────────────────────────

func testSignals(t *testing.T, s store.Store) {
	ctx := context.Background()
	at := now()
	worker := id.NewWorkerID()

	first := signal.NewKill(id.NewJobID(), worker, at.Add(-time.Second))
	second := signal.NewKill(id.NewJobID(), worker, at)
	foreign := signal.NewKill(id.NewJobID(), id.NewWorkerID(), at)
	for _, sig := range []*signal.Signal{second, first, foreign} {
		if err := s.InsertSignal(ctx, sig); err != nil {
			t.Fatalf("InsertSignal: %v", err)
		}
	}

	pending, err := s.ListPendingSignals(ctx, worker)
	if err != nil {
		t.Fatalf("ListPendingSignals: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != first.ID || pending[1].ID != second.ID {
		t.Fatalf("ListPendingSignals = %+v", pending)
	}
	if pending[0].Type != signal.TypeKill || pending[0].JobID != first.JobID {
		t.Errorf("signal = %+v", pending[0])
	}

	if err := s.AckSignal(ctx, first.ID); err != nil {
		t.Fatalf("AckSignal: %v", err)
	}
	pending, _ = s.ListPendingSignals(ctx, worker)
	if len(pending) != 1 || pending[0].ID != second.ID {
		t.Errorf("after ack = %+v", pending)
	}

	n, err := s.PurgeSignals(ctx, at.Add(-500*time.Millisecond))
	if err != nil || n != 1 {
		t.Errorf("PurgeSignals = %d, %v; want 1", n, err)
	}
}
