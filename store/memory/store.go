package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/cluster"
	"github.com/xraph/cadence/cron"
	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/job"
	"github.com/xraph/cadence/signal"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle), so we verify each subsystem.
var (
	_ job.Store         = (*Store)(nil)
	_ cron.Store        = (*Store)(nil)
	_ cluster.Store     = (*Store)(nil)
	_ signal.Store      = (*Store)(nil)
	_ signal.Subscriber = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development.
type Store struct {
	mu sync.RWMutex

	jobs    map[id.JobID]*job.Job
	workers map[id.WorkerID]*cluster.Worker
	signals map[id.SignalID]*signal.Signal

	subMu       sync.Mutex
	subscribers map[id.WorkerID][]*subscriber
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs:        make(map[id.JobID]*job.Job),
		workers:     make(map[id.WorkerID]*cluster.Worker),
		signals:     make(map[id.SignalID]*signal.Signal),
		subscribers: make(map[id.WorkerID][]*subscriber),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle: Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// InsertJob persists a new record, enforcing per-name exclusivity.
func (m *Store) InsertJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if j.Exclusive() && j.Status.IsActive() {
		for _, other := range m.jobs {
			if other.Type == j.Type && other.Name == j.Name && other.Exclusive() && other.Status.IsActive() {
				return cadence.ErrActiveConflict
			}
		}
	}
	m.jobs[j.ID] = j.Clone()
	return nil
}

// GetJob retrieves a record by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID]
	if !ok {
		return nil, cadence.ErrJobNotFound
	}
	return j.Clone(), nil
}

// FindLatestActive returns the most recently created active instance.
func (m *Store) FindLatestActive(_ context.Context, t job.Type, name string) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *job.Job
	for _, j := range m.jobs {
		if j.Type != t || j.Name != name || !j.Status.IsActive() {
			continue
		}
		if latest == nil || j.ID.Compare(latest.ID) > 0 {
			latest = j
		}
	}
	if latest == nil {
		return nil, cadence.ErrJobNotFound
	}
	return latest.Clone(), nil
}

// ClaimNextJob claims the due claimable record with the smallest
// scheduled_for inside scope.
func (m *Store) ClaimNextJob(_ context.Context, scope job.Scope, workerID id.WorkerID, now time.Time) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var next *job.Job
	for _, j := range m.jobs {
		if !scope.Matches(j) {
			continue
		}
		if !slices.Contains(job.ClaimableStatuses, j.Status) || j.ScheduledFor.After(now) {
			continue
		}
		if next == nil || j.ScheduledFor.Before(next.ScheduledFor) ||
			(j.ScheduledFor.Equal(next.ScheduledFor) && j.ID.Compare(next.ID) < 0) {
			next = j
		}
	}
	if next == nil {
		return nil, nil
	}

	next.Status = job.StatusRunning
	next.WorkerID = workerID
	if next.StartedAt == nil {
		n := now
		next.StartedAt = &n
	}
	next.UpdatedAt = now
	return next.Clone(), nil
}

// FinalizeJob applies f when the record is still running for workerID.
func (m *Store) FinalizeJob(_ context.Context, jobID id.JobID, workerID id.WorkerID, f job.Finalization) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID]
	if !ok {
		return false, cadence.ErrJobNotFound
	}
	if j.Status != job.StatusRunning || j.WorkerID != workerID {
		return false, nil
	}

	j.Status = f.Status
	if f.Output != nil {
		o := *f.Output
		j.Output = &o
	}
	j.EndedAt = f.EndedAt
	j.WorkerID = id.Nil
	j.UpdatedAt = f.UpdatedAt
	return true, nil
}

// ReclaimOrphanedJob marks errored the oldest running record whose worker
// is not live.
func (m *Store) ReclaimOrphanedJob(_ context.Context, live []id.WorkerID, startedBefore, now time.Time) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var orphan *job.Job
	for _, j := range m.jobs {
		if !j.Type.Executable() || j.Status != job.StatusRunning {
			continue
		}
		if slices.Contains(live, j.WorkerID) {
			continue
		}
		if j.StartedAt == nil || !j.StartedAt.Before(startedBefore) {
			continue
		}
		if orphan == nil || j.StartedAt.Before(*orphan.StartedAt) {
			orphan = j
		}
	}
	if orphan == nil {
		return nil, nil
	}

	n := now
	orphan.Status = job.StatusErrored
	orphan.Output = job.CrashedOutput()
	orphan.EndedAt = &n
	orphan.WorkerID = id.Nil
	orphan.UpdatedAt = now
	return orphan.Clone(), nil
}

// KillInactiveJob kills a pending or paused executable record.
func (m *Store) KillInactiveJob(_ context.Context, jobID id.JobID, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID]
	if !ok || !j.Type.Executable() {
		return false, nil
	}
	if j.Status != job.StatusPending && j.Status != job.StatusPaused {
		return false, nil
	}
	n := now
	j.Status = job.StatusKilled
	j.EndedAt = &n
	j.UpdatedAt = now
	return true, nil
}

// ListJobs returns records matching opts ordered by scheduled_for
// descending.
func (m *Store) ListJobs(_ context.Context, opts job.ListOpts) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if len(opts.Types) > 0 && !slices.Contains(opts.Types, j.Type) {
			continue
		}
		if len(opts.Statuses) > 0 && !slices.Contains(opts.Statuses, j.Status) {
			continue
		}
		if slices.Contains(opts.ExcludeStatuses, j.Status) {
			continue
		}
		if opts.Name != "" && j.Name != opts.Name {
			continue
		}
		result = append(result, j.Clone())
	}

	sort.Slice(result, func(i, k int) bool {
		if !result[i].ScheduledFor.Equal(result[k].ScheduledFor) {
			return result[i].ScheduledFor.After(result[k].ScheduledFor)
		}
		return result[i].ID.Compare(result[k].ID) > 0
	})

	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}

// PurgeJobs deletes executable records that ended before the cutoff.
func (m *Store) PurgeJobs(_ context.Context, endedBefore time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for key, j := range m.jobs {
		if j.Type.Executable() && j.EndedAt != nil && j.EndedAt.Before(endedBefore) {
			delete(m.jobs, key)
			count++
		}
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// Cron Store
// ──────────────────────────────────────────────────

// DeleteCronsNotIn removes crons outside names and their pending tasks.
func (m *Store) DeleteCronsNotIn(_ context.Context, names []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for key, j := range m.jobs {
		if slices.Contains(names, j.Name) {
			continue
		}
		switch {
		case j.Type == job.TypeCron:
			delete(m.jobs, key)
			count++
		case j.Type == job.TypeCronTask && j.Status == job.StatusPending:
			delete(m.jobs, key)
		}
	}
	return count, nil
}

// UpsertCron sets the expression of a cron, inserting it when absent.
func (m *Store) UpsertCron(_ context.Context, name, cronString string, now time.Time) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, j := range m.jobs {
		if j.Type == job.TypeCron && j.Name == name {
			prev := j.Clone()
			j.CronString = cronString
			j.UpdatedAt = now
			return prev, nil
		}
	}

	c := &job.Job{
		Entity:       cadence.NewEntityAt(now),
		ID:           id.NewJobID(),
		Type:         job.TypeCron,
		Name:         name,
		Status:       job.StatusActive,
		ScheduledFor: now,
		CronString:   cronString,
	}
	m.jobs[c.ID] = c
	return nil, nil
}

// ListCronsByName returns the crons named name ordered by ID.
func (m *Store) ListCronsByName(_ context.Context, name string) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*job.Job
	for _, j := range m.jobs {
		if j.Type == job.TypeCron && j.Name == name {
			result = append(result, j.Clone())
		}
	}
	sort.Slice(result, func(i, k int) bool { return result[i].ID.Compare(result[k].ID) < 0 })
	return result, nil
}

// DeleteCron removes a cron record.
func (m *Store) DeleteCron(_ context.Context, cronID id.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[cronID]
	if !ok || j.Type != job.TypeCron {
		return cadence.ErrCronNotFound
	}
	delete(m.jobs, cronID)
	return nil
}

// ResetCronSchedule sets scheduled_for to now.
func (m *Store) ResetCronSchedule(_ context.Context, cronID id.JobID, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[cronID]
	if !ok || j.Type != job.TypeCron {
		return cadence.ErrCronNotFound
	}
	j.ScheduledFor = now
	j.UpdatedAt = now
	return nil
}

// DeletePendingCronTasks removes pending tasks named name.
func (m *Store) DeletePendingCronTasks(_ context.Context, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for key, j := range m.jobs {
		if j.Type == job.TypeCronTask && j.Name == name && j.Status == job.StatusPending {
			delete(m.jobs, key)
			count++
		}
	}
	return count, nil
}

// FindDueCrons returns the crons due at now, earliest first.
func (m *Store) FindDueCrons(_ context.Context, now time.Time) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*job.Job
	for _, j := range m.jobs {
		if j.Type == job.TypeCron && !j.ScheduledFor.After(now) {
			result = append(result, j.Clone())
		}
	}
	sort.Slice(result, func(i, k int) bool { return result[i].ScheduledFor.Before(result[k].ScheduledFor) })
	return result, nil
}

// AdvanceCronSchedule moves scheduled_for from prev to next.
func (m *Store) AdvanceCronSchedule(_ context.Context, cronID id.JobID, prev, next, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[cronID]
	if !ok || j.Type != job.TypeCron || !j.ScheduledFor.Equal(prev) {
		return false, nil
	}
	j.ScheduledFor = next
	j.UpdatedAt = now
	return true, nil
}

// ──────────────────────────────────────────────────
// Cluster Store
// ──────────────────────────────────────────────────

// UpsertWorker creates or refreshes a worker record.
func (m *Store) UpsertWorker(_ context.Context, w *cluster.Worker) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.workers[w.ID]; ok {
		existing.LastSeen = w.LastSeen
		existing.Tags = slices.Clone(w.Tags)
		return nil
	}
	cp := *w
	cp.Tags = slices.Clone(w.Tags)
	m.workers[w.ID] = &cp
	return nil
}

// TouchWorker refreshes the last-seen time of an existing record.
func (m *Store) TouchWorker(_ context.Context, workerID id.WorkerID, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.workers[workerID]
	if !ok {
		return false, nil
	}
	w.LastSeen = at
	return true, nil
}

// RemoveWorker deletes a worker record.
func (m *Store) RemoveWorker(_ context.Context, workerID id.WorkerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.workers, workerID)
	return nil
}

// ListWorkers returns workers seen after aliveAfter.
func (m *Store) ListWorkers(_ context.Context, aliveAfter time.Time) ([]*cluster.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*cluster.Worker, 0, len(m.workers))
	for _, w := range m.workers {
		if !w.LastSeen.After(aliveAfter) {
			continue
		}
		cp := *w
		cp.Tags = slices.Clone(w.Tags)
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, k int) bool { return result[i].ID.Compare(result[k].ID) < 0 })
	return result, nil
}

// PurgeExpiredWorkers deletes records last seen before cutoff.
func (m *Store) PurgeExpiredWorkers(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for key, w := range m.workers {
		if w.LastSeen.Before(cutoff) {
			delete(m.workers, key)
			count++
		}
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// Signal Store
// ──────────────────────────────────────────────────

// InsertSignal persists a signal and delivers it to local subscribers.
func (m *Store) InsertSignal(_ context.Context, s *signal.Signal) error {
	m.mu.Lock()
	cp := *s
	m.signals[s.ID] = &cp
	m.mu.Unlock()

	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, sub := range m.subscribers[s.WorkerID] {
		delivered := cp
		select {
		case sub.ch <- &delivered:
		default:
			// Slow subscriber: it re-reads the pending signals once it
			// catches up.
			select {
			case sub.overflow <- struct{}{}:
			default:
			}
		}
	}
	return nil
}

// ListPendingSignals returns unacknowledged signals for workerID.
func (m *Store) ListPendingSignals(_ context.Context, workerID id.WorkerID) ([]*signal.Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*signal.Signal
	for _, s := range m.signals {
		if s.WorkerID == workerID && !s.Ack {
			cp := *s
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, k int) bool { return result[i].CreatedAt.Before(result[k].CreatedAt) })
	return result, nil
}

// AckSignal marks a signal as handled.
func (m *Store) AckSignal(_ context.Context, signalID id.SignalID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.signals[signalID]
	if !ok {
		return cadence.ErrSignalNotFound
	}
	s.Ack = true
	return nil
}

// PurgeSignals deletes signals created before cutoff.
func (m *Store) PurgeSignals(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for key, s := range m.signals {
		if s.CreatedAt.Before(cutoff) {
			delete(m.signals, key)
			count++
		}
	}
	return count, nil
}

// SubscriptionSupported always reports true: inserts are delivered to
// in-process subscribers.
func (m *Store) SubscriptionSupported(_ context.Context) (bool, error) { return true, nil }

type subscriber struct {
	ch       chan *signal.Signal
	overflow chan struct{}
}

// SubscribeSignals delivers signals inserted for workerID until ctx is done.
// Signals dropped on a full buffer are recovered from the pending list.
func (m *Store) SubscribeSignals(ctx context.Context, workerID id.WorkerID, ready func(), handle signal.Handler) error {
	sub := &subscriber{
		ch:       make(chan *signal.Signal, 64),
		overflow: make(chan struct{}, 1),
	}

	m.subMu.Lock()
	m.subscribers[workerID] = append(m.subscribers[workerID], sub)
	m.subMu.Unlock()

	defer func() {
		m.subMu.Lock()
		subs := m.subscribers[workerID]
		for i, c := range subs {
			if c == sub {
				m.subscribers[workerID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		m.subMu.Unlock()
	}()

	if ready != nil {
		ready()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s := <-sub.ch:
			handle(ctx, s)
		case <-sub.overflow:
			// Everything buffered is also pending.
			for drained := false; !drained; {
				select {
				case <-sub.ch:
				default:
					drained = true
				}
			}
			pending, err := m.ListPendingSignals(ctx, workerID)
			if err != nil {
				return err
			}
			for _, s := range pending {
				handle(ctx, s)
			}
		}
	}
}
