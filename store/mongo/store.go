package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/cluster"
	"github.com/xraph/cadence/cron"
	"github.com/xraph/cadence/job"
	"github.com/xraph/cadence/signal"
	"github.com/xraph/cadence/store"
)

// Collection name constants.
const (
	colJobs    = "cadence_jobs"
	colWorkers = "cadence_workers"
	colSignals = "cadence_signals"
)

// Index names of the exclusivity guards.
const (
	simpleExclusiveIndex   = "simple_exclusive_unique"
	cronTaskExclusiveIndex = "cron_task_exclusive_unique"
)

// Server error codes the store reacts to.
const (
	codeIndexOptionsConflict  = 85
	codeIndexKeySpecsConflict = 86
	codeChangeStreamsDisabled = 40573
)

// Ensure Store implements all subsystem interfaces at compile time.
var (
	_ store.Store       = (*Store)(nil)
	_ job.Store         = (*Store)(nil)
	_ cron.Store        = (*Store)(nil)
	_ cluster.Store     = (*Store)(nil)
	_ signal.Store      = (*Store)(nil)
	_ signal.Subscriber = (*Store)(nil)
)

// Store is a MongoDB implementation of store.Store. The caller owns the
// client lifecycle; Store never disconnects it.
type Store struct {
	db     *mongod.Database
	logger *slog.Logger

	jobRetention time.Duration
	workerTTL    time.Duration
	signalTTL    time.Duration
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithTTL overrides the expiry of the TTL indexes created by Migrate:
// ended jobs, silent workers and signals.
func WithTTL(jobRetention, workerTTL, signalTTL time.Duration) Option {
	return func(s *Store) {
		s.jobRetention = jobRetention
		s.workerTTL = workerTTL
		s.signalTTL = signalTTL
	}
}

// New creates a new MongoDB store on db.
func New(db *mongod.Database, opts ...Option) *Store {
	s := &Store{
		db:           db,
		logger:       slog.Default(),
		jobRetention: 90 * 24 * time.Hour,
		workerTTL:    300 * time.Second,
		signalTTL:    time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying database for advanced usage.
func (s *Store) DB() *mongod.Database {
	return s.db
}

// Migrate backfills worker_id on executable records and creates the
// indexes of all cadence collections. An existing index whose options
// differ is kept and reported. Returns cadence.ErrMigrationFailed when the
// exclusivity guards are absent afterwards.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.Collection(colJobs).UpdateMany(ctx,
		bson.D{
			{Key: "type", Value: bson.D{{Key: "$in", Value: executableTypes()}}},
			{Key: "worker_id", Value: bson.D{{Key: "$exists", Value: false}}},
		},
		bson.D{{Key: "$set", Value: bson.D{{Key: "worker_id", Value: ""}}}},
	)
	if err != nil {
		return fmt.Errorf("cadence/mongo: backfill worker_id: %w", err)
	}

	for col, models := range s.migrationIndexes() {
		for _, model := range models {
			_, err := s.db.Collection(col).Indexes().CreateOne(ctx, model)
			if err == nil {
				continue
			}
			if isIndexConflict(err) {
				s.logger.Warn("existing index differs from the expected definition",
					"collection", col,
					"error", err,
				)
				continue
			}
			return fmt.Errorf("cadence/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return s.verifyExclusiveIndexes(ctx)
}

// verifyExclusiveIndexes fails when a guard index is missing.
func (s *Store) verifyExclusiveIndexes(ctx context.Context) error {
	cursor, err := s.db.Collection(colJobs).Indexes().List(ctx)
	if err != nil {
		return fmt.Errorf("cadence/mongo: list indexes: %w", err)
	}
	var specs []struct {
		Name   string `bson:"name"`
		Unique bool   `bson:"unique"`
	}
	if err := cursor.All(ctx, &specs); err != nil {
		return fmt.Errorf("cadence/mongo: decode indexes: %w", err)
	}

	found := map[string]bool{}
	for _, spec := range specs {
		if spec.Unique {
			found[spec.Name] = true
		}
	}
	for _, name := range []string{simpleExclusiveIndex, cronTaskExclusiveIndex} {
		if !found[name] {
			return fmt.Errorf("%w: unique index %s missing on %s", cadence.ErrMigrationFailed, name, colJobs)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}

// Close is a no-op because the caller owns the client lifecycle.
func (s *Store) Close() error {
	return nil
}

// ── helpers ──────────────────────────────────────────────────────

// isNoDocuments returns true when err indicates no MongoDB documents found.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

func isIndexConflict(err error) bool {
	var se mongod.ServerError
	if !errors.As(err, &se) {
		return false
	}
	return se.HasErrorCode(codeIndexOptionsConflict) || se.HasErrorCode(codeIndexKeySpecsConflict)
}

func executableTypes() bson.A {
	return bson.A{string(job.TypeSimple), string(job.TypeCronTask)}
}

func activeStatuses() bson.A {
	out := make(bson.A, len(job.ActiveStatuses))
	for i, st := range job.ActiveStatuses {
		out[i] = string(st)
	}
	return out
}

// exclusiveFilter is the partial filter of the exclusivity guard for t.
func exclusiveFilter(t job.Type) bson.D {
	return bson.D{
		{Key: "type", Value: string(t)},
		{Key: "concurrency.mode", Value: string(job.ModeExclusive)},
		{Key: "status", Value: bson.D{{Key: "$in", Value: activeStatuses()}}},
	}
}

// migrationIndexes returns the index definitions for all cadence collections.
func (s *Store) migrationIndexes() map[string][]mongod.IndexModel {
	return map[string][]mongod.IndexModel{
		colJobs: {
			{Keys: bson.D{{Key: "type", Value: 1}, {Key: "scheduled_for", Value: 1}}},
			// Claim index.
			{Keys: bson.D{
				{Key: "type", Value: 1},
				{Key: "status", Value: 1},
				{Key: "scheduled_for", Value: 1},
			}},
			{Keys: bson.D{
				{Key: "type", Value: 1},
				{Key: "name", Value: 1},
				{Key: "status", Value: 1},
				{Key: "scheduled_for", Value: 1},
			}},
			{Keys: bson.D{{Key: "type", Value: 1}, {Key: "name", Value: 1}}},
			// Crash detection index.
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "started_at", Value: 1}}},
			{
				Keys:    bson.D{{Key: "ended_at", Value: 1}},
				Options: options.Index().SetExpireAfterSeconds(seconds(s.jobRetention)),
			},
			{
				Keys: bson.D{{Key: "type", Value: 1}, {Key: "name", Value: 1}},
				Options: options.Index().
					SetName(simpleExclusiveIndex).
					SetUnique(true).
					SetPartialFilterExpression(exclusiveFilter(job.TypeSimple)),
			},
			{
				Keys: bson.D{{Key: "type", Value: 1}, {Key: "name", Value: 1}},
				Options: options.Index().
					SetName(cronTaskExclusiveIndex).
					SetUnique(true).
					SetPartialFilterExpression(exclusiveFilter(job.TypeCronTask)),
			},
		},
		colWorkers: {
			{
				Keys:    bson.D{{Key: "last_seen", Value: 1}},
				Options: options.Index().SetExpireAfterSeconds(seconds(s.workerTTL)),
			},
		},
		colSignals: {
			{
				Keys:    bson.D{{Key: "created_at", Value: 1}},
				Options: options.Index().SetExpireAfterSeconds(seconds(s.signalTTL)),
			},
			// Pending signals index.
			{Keys: bson.D{
				{Key: "worker_id", Value: 1},
				{Key: "ack", Value: 1},
				{Key: "created_at", Value: 1},
			}},
		},
	}
}

func seconds(d time.Duration) int32 {
	return int32(d / time.Second)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
