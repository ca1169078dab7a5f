// Package monitoring builds the read model of a cadence deployment: which
// workers are alive and what they run, what is waiting in the queue, and
// the recent history of every job and cron name. It only reads the store.
package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/cadence/cluster"
	"github.com/xraph/cadence/job"
)

// Store is the read surface the Service needs.
type Store interface {
	ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error)
	ListWorkers(ctx context.Context, aliveAfter time.Time) ([]*cluster.Worker, error)
}

// WorkerStatus pairs a worker with the job it is executing, if any.
type WorkerStatus struct {
	Worker *cluster.Worker `json:"worker"`
	Task   *job.Job        `json:"task"`
}

// JobStatus groups the simple jobs of one name.
type JobStatus struct {
	Name  string     `json:"name"`
	Tasks []*job.Job `json:"tasks"`
}

// CronStatus groups the tasks of one cron by lifecycle phase.
type CronStatus struct {
	Cron      *job.Job   `json:"cron"`
	Scheduled []*job.Job `json:"scheduled"`
	Running   []*job.Job `json:"running"`
	History   []*job.Job `json:"history"`
}

// ProcessorStatus is the full snapshot.
type ProcessorStatus struct {
	Now     time.Time      `json:"now"`
	Workers []WorkerStatus `json:"workers"`
	Queue   []*job.Job     `json:"queue"`
	Jobs    []JobStatus    `json:"jobs"`
	Crons   []CronStatus   `json:"crons"`
}

// Healthcheck is the light snapshot, built from non-terminal records only.
type Healthcheck struct {
	Now     time.Time      `json:"now"`
	Workers []WorkerStatus `json:"workers"`
	Queue   []*job.Job     `json:"queue"`
}

// Option configures a Service.
type Option func(*Service)

// WithWorkerTTL only reports workers seen within ttl. Zero reports every
// stored worker record.
func WithWorkerTTL(ttl time.Duration) Option {
	return func(s *Service) { s.workerTTL = ttl }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service answers status queries.
type Service struct {
	store     Store
	workerTTL time.Duration
	now       func() time.Time
}

// New creates a Service reading from store.
func New(store Store, opts ...Option) *Service {
	s := &Service{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Status returns the full snapshot. Records are ordered by scheduled_for
// descending within every group.
func (s *Service) Status(ctx context.Context) (*ProcessorStatus, error) {
	now := s.now()
	workers, err := s.workers(ctx, now)
	if err != nil {
		return nil, err
	}
	jobs, err := s.store.ListJobs(ctx, job.ListOpts{})
	if err != nil {
		return nil, fmt.Errorf("monitoring: list jobs: %w", err)
	}

	return &ProcessorStatus{
		Now:     now,
		Workers: workerStatus(workers, jobs),
		Queue:   queue(jobs, now),
		Jobs:    jobStatus(jobs),
		Crons:   cronStatus(jobs),
	}, nil
}

// Healthcheck returns the light snapshot.
func (s *Service) Healthcheck(ctx context.Context) (*Healthcheck, error) {
	now := s.now()
	workers, err := s.workers(ctx, now)
	if err != nil {
		return nil, err
	}
	jobs, err := s.store.ListJobs(ctx, job.ListOpts{
		ExcludeStatuses: []job.Status{job.StatusFinished, job.StatusErrored},
	})
	if err != nil {
		return nil, fmt.Errorf("monitoring: list jobs: %w", err)
	}

	return &Healthcheck{
		Now:     now,
		Workers: workerStatus(workers, jobs),
		Queue:   queue(jobs, now),
	}, nil
}

func (s *Service) workers(ctx context.Context, now time.Time) ([]*cluster.Worker, error) {
	var aliveAfter time.Time
	if s.workerTTL > 0 {
		aliveAfter = now.Add(-s.workerTTL)
	}
	workers, err := s.store.ListWorkers(ctx, aliveAfter)
	if err != nil {
		return nil, fmt.Errorf("monitoring: list workers: %w", err)
	}
	return workers, nil
}

func workerStatus(workers []*cluster.Worker, jobs []*job.Job) []WorkerStatus {
	out := make([]WorkerStatus, 0, len(workers))
	for _, w := range workers {
		st := WorkerStatus{Worker: w}
		for _, j := range jobs {
			if j.Type.Executable() && j.Status == job.StatusRunning && j.WorkerID == w.ID {
				st.Task = j
				break
			}
		}
		out = append(out, st)
	}
	return out
}

// queue returns the pending executable records already due.
func queue(jobs []*job.Job, now time.Time) []*job.Job {
	out := []*job.Job{}
	for _, j := range jobs {
		if j.Type.Executable() && j.Status == job.StatusPending && !j.ScheduledFor.After(now) {
			out = append(out, j)
		}
	}
	return out
}

// jobStatus groups simple jobs by name in order of first appearance.
func jobStatus(jobs []*job.Job) []JobStatus {
	out := []JobStatus{}
	index := map[string]int{}
	for _, j := range jobs {
		if j.Type != job.TypeSimple {
			continue
		}
		i, ok := index[j.Name]
		if !ok {
			i = len(out)
			index[j.Name] = i
			out = append(out, JobStatus{Name: j.Name, Tasks: []*job.Job{}})
		}
		out[i].Tasks = append(out[i].Tasks, j)
	}
	return out
}

func cronStatus(jobs []*job.Job) []CronStatus {
	out := []CronStatus{}
	for _, c := range jobs {
		if c.Type != job.TypeCron {
			continue
		}
		st := CronStatus{
			Cron:      c,
			Scheduled: []*job.Job{},
			Running:   []*job.Job{},
			History:   []*job.Job{},
		}
		for _, t := range jobs {
			if t.Type != job.TypeCronTask || t.Name != c.Name {
				continue
			}
			switch t.Status {
			case job.StatusPending:
				st.Scheduled = append(st.Scheduled, t)
			case job.StatusRunning, job.StatusPaused:
				st.Running = append(st.Running, t)
			default:
				st.History = append(st.History, t)
			}
		}
		out = append(out, st)
	}
	return out
}
