package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/job"
)

// InsertJob persists a new record. The partial unique indexes reject a
// second active exclusive instance.
func (s *Store) InsertJob(ctx context.Context, j *job.Job) error {
	_, err := s.db.Collection(colJobs).InsertOne(ctx, toJobModel(j))
	if err != nil {
		if mongod.IsDuplicateKeyError(err) {
			return cadence.ErrActiveConflict
		}
		return fmt.Errorf("cadence/mongo: insert job: %w", err)
	}
	return nil
}

// GetJob retrieves a record by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	var m jobModel
	err := s.db.Collection(colJobs).FindOne(ctx, bson.M{"_id": jobID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, cadence.ErrJobNotFound
		}
		return nil, fmt.Errorf("cadence/mongo: get job: %w", err)
	}
	return fromJobModel(&m)
}

// FindLatestActive returns the most recently created active instance.
func (s *Store) FindLatestActive(ctx context.Context, t job.Type, name string) (*job.Job, error) {
	filter := bson.D{
		{Key: "type", Value: string(t)},
		{Key: "name", Value: name},
		{Key: "status", Value: bson.D{{Key: "$in", Value: activeStatuses()}}},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "_id", Value: -1}})

	var m jobModel
	err := s.db.Collection(colJobs).FindOne(ctx, filter, opts).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, cadence.ErrJobNotFound
		}
		return nil, fmt.Errorf("cadence/mongo: find latest active: %w", err)
	}
	return fromJobModel(&m)
}

// ClaimNextJob atomically claims the oldest due record in scope with a
// single FindOneAndUpdate. started_at is kept when already set so a
// resumed job reports its original start.
func (s *Store) ClaimNextJob(ctx context.Context, scope job.Scope, workerID id.WorkerID, now time.Time) (*job.Job, error) {
	if scope.Empty() {
		return nil, nil
	}

	filter := bson.D{
		{Key: "status", Value: bson.D{{Key: "$in", Value: bson.A{
			string(job.StatusPending), string(job.StatusPaused),
		}}}},
		{Key: "scheduled_for", Value: bson.D{{Key: "$lte", Value: now}}},
	}
	if scope.All {
		filter = append(filter, bson.E{Key: "type", Value: bson.D{{Key: "$in", Value: executableTypes()}}})
	} else {
		filter = append(filter, bson.E{Key: "$or", Value: bson.A{
			bson.D{
				{Key: "type", Value: string(job.TypeSimple)},
				{Key: "name", Value: bson.D{{Key: "$in", Value: nonNil(scope.SimpleNames)}}},
			},
			bson.D{
				{Key: "type", Value: string(job.TypeCronTask)},
				{Key: "name", Value: bson.D{{Key: "$in", Value: nonNil(scope.CronTaskNames)}}},
			},
		}})
	}

	update := mongod.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "status", Value: string(job.StatusRunning)},
			{Key: "worker_id", Value: workerID.String()},
			{Key: "started_at", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$started_at", now}}}},
			{Key: "updated_at", Value: now},
		}}},
	}

	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetSort(bson.D{
			{Key: "scheduled_for", Value: 1},
			{Key: "_id", Value: 1},
		})

	var m jobModel
	err := s.db.Collection(colJobs).FindOneAndUpdate(ctx, filter, update, opts).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("cadence/mongo: claim job: %w", err)
	}
	return fromJobModel(&m)
}

// FinalizeJob applies f when the record is still running for workerID.
func (s *Store) FinalizeJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID, f job.Finalization) (bool, error) {
	set := bson.D{
		{Key: "status", Value: string(f.Status)},
		{Key: "worker_id", Value: ""},
		{Key: "updated_at", Value: f.UpdatedAt},
	}
	if f.Output != nil {
		set = append(set, bson.E{Key: "output", Value: toOutputModel(f.Output)})
	}
	update := bson.D{}
	if f.EndedAt != nil {
		set = append(set, bson.E{Key: "ended_at", Value: *f.EndedAt})
	} else {
		update = append(update, bson.E{Key: "$unset", Value: bson.D{{Key: "ended_at", Value: ""}}})
	}
	update = append(update, bson.E{Key: "$set", Value: set})

	res, err := s.db.Collection(colJobs).UpdateOne(ctx,
		bson.D{
			{Key: "_id", Value: jobID.String()},
			{Key: "status", Value: string(job.StatusRunning)},
			{Key: "worker_id", Value: workerID.String()},
		},
		update,
	)
	if err != nil {
		return false, fmt.Errorf("cadence/mongo: finalize job: %w", err)
	}
	return res.MatchedCount == 1, nil
}

// ReclaimOrphanedJob marks errored the oldest running record whose worker
// is not live.
func (s *Store) ReclaimOrphanedJob(ctx context.Context, live []id.WorkerID, startedBefore, now time.Time) (*job.Job, error) {
	filter := bson.D{
		{Key: "status", Value: string(job.StatusRunning)},
		{Key: "type", Value: bson.D{{Key: "$in", Value: executableTypes()}}},
		{Key: "started_at", Value: bson.D{{Key: "$lt", Value: startedBefore}}},
		{Key: "worker_id", Value: bson.D{{Key: "$nin", Value: workerStrings(live)}}},
	}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "status", Value: string(job.StatusErrored)},
		{Key: "output", Value: toOutputModel(job.CrashedOutput())},
		{Key: "ended_at", Value: now},
		{Key: "worker_id", Value: ""},
		{Key: "updated_at", Value: now},
	}}}
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetSort(bson.D{{Key: "started_at", Value: 1}})

	var m jobModel
	err := s.db.Collection(colJobs).FindOneAndUpdate(ctx, filter, update, opts).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("cadence/mongo: reclaim orphaned job: %w", err)
	}
	return fromJobModel(&m)
}

// KillInactiveJob kills a pending or paused executable record.
func (s *Store) KillInactiveJob(ctx context.Context, jobID id.JobID, now time.Time) (bool, error) {
	res, err := s.db.Collection(colJobs).UpdateOne(ctx,
		bson.D{
			{Key: "_id", Value: jobID.String()},
			{Key: "type", Value: bson.D{{Key: "$in", Value: executableTypes()}}},
			{Key: "status", Value: bson.D{{Key: "$in", Value: bson.A{
				string(job.StatusPending), string(job.StatusPaused),
			}}}},
		},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "status", Value: string(job.StatusKilled)},
			{Key: "ended_at", Value: now},
			{Key: "updated_at", Value: now},
		}}},
	)
	if err != nil {
		return false, fmt.Errorf("cadence/mongo: kill inactive job: %w", err)
	}
	return res.MatchedCount == 1, nil
}

// ListJobs returns records matching opts ordered by scheduled_for
// descending.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	filter := bson.D{}
	if len(opts.Types) > 0 {
		types := make(bson.A, len(opts.Types))
		for i, t := range opts.Types {
			types[i] = string(t)
		}
		filter = append(filter, bson.E{Key: "type", Value: bson.D{{Key: "$in", Value: types}}})
	}

	status := bson.D{}
	if len(opts.Statuses) > 0 {
		status = append(status, bson.E{Key: "$in", Value: statusArray(opts.Statuses)})
	}
	if len(opts.ExcludeStatuses) > 0 {
		status = append(status, bson.E{Key: "$nin", Value: statusArray(opts.ExcludeStatuses)})
	}
	if len(status) > 0 {
		filter = append(filter, bson.E{Key: "status", Value: status})
	}
	if opts.Name != "" {
		filter = append(filter, bson.E{Key: "name", Value: opts.Name})
	}

	findOpts := options.Find().SetSort(bson.D{
		{Key: "scheduled_for", Value: -1},
		{Key: "_id", Value: -1},
	})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}

	return s.findJobs(ctx, filter, findOpts)
}

// PurgeJobs deletes executable records that ended before the cutoff.
func (s *Store) PurgeJobs(ctx context.Context, endedBefore time.Time) (int64, error) {
	res, err := s.db.Collection(colJobs).DeleteMany(ctx, bson.D{
		{Key: "type", Value: bson.D{{Key: "$in", Value: executableTypes()}}},
		{Key: "ended_at", Value: bson.D{{Key: "$lt", Value: endedBefore}}},
	})
	if err != nil {
		return 0, fmt.Errorf("cadence/mongo: purge jobs: %w", err)
	}
	return res.DeletedCount, nil
}

// findJobs runs a find on the job collection and converts every document.
func (s *Store) findJobs(ctx context.Context, filter any, opts *options.FindOptionsBuilder) ([]*job.Job, error) {
	cursor, err := s.db.Collection(colJobs).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("cadence/mongo: find jobs: %w", err)
	}

	var models []jobModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("cadence/mongo: decode jobs: %w", err)
	}

	jobs := make([]*job.Job, 0, len(models))
	for i := range models {
		j, err := fromJobModel(&models[i])
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

func statusArray(statuses []job.Status) bson.A {
	out := make(bson.A, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return out
}

func workerStrings(ids []id.WorkerID) bson.A {
	out := make(bson.A, 0, len(ids))
	for _, w := range ids {
		out = append(out, w.String())
	}
	return out
}

// nonNil keeps $in operands arrays; a nil slice encodes as null.
func nonNil(names []string) []string {
	if names == nil {
		return []string{}
	}
	return names
}
