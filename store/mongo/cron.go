package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/job"
)

// DeleteCronsNotIn removes crons outside names and their pending tasks.
func (s *Store) DeleteCronsNotIn(ctx context.Context, names []string) (int64, error) {
	col := s.db.Collection(colJobs)
	res, err := col.DeleteMany(ctx, bson.D{
		{Key: "type", Value: string(job.TypeCron)},
		{Key: "name", Value: bson.D{{Key: "$nin", Value: nonNil(names)}}},
	})
	if err != nil {
		return 0, fmt.Errorf("cadence/mongo: delete crons: %w", err)
	}

	_, err = col.DeleteMany(ctx, bson.D{
		{Key: "type", Value: string(job.TypeCronTask)},
		{Key: "status", Value: string(job.StatusPending)},
		{Key: "name", Value: bson.D{{Key: "$nin", Value: nonNil(names)}}},
	})
	if err != nil {
		return 0, fmt.Errorf("cadence/mongo: delete orphan cron tasks: %w", err)
	}
	return res.DeletedCount, nil
}

// UpsertCron sets the expression of a cron, inserting it when absent.
// Two processes racing on a missing cron may both insert; the scheduler
// removes the extra record on its next registration.
func (s *Store) UpsertCron(ctx context.Context, name, cronString string, now time.Time) (*job.Job, error) {
	col := s.db.Collection(colJobs)

	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.Before).
		SetSort(bson.D{{Key: "_id", Value: 1}})

	var m jobModel
	err := col.FindOneAndUpdate(ctx,
		bson.D{
			{Key: "type", Value: string(job.TypeCron)},
			{Key: "name", Value: name},
		},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "cron_string", Value: cronString},
			{Key: "updated_at", Value: now},
		}}},
		opts,
	).Decode(&m)
	if err == nil {
		return fromJobModel(&m)
	}
	if !isNoDocuments(err) {
		return nil, fmt.Errorf("cadence/mongo: upsert cron: %w", err)
	}

	rec := &job.Job{
		Entity:       cadence.NewEntityAt(now),
		ID:           id.NewJobID(),
		Type:         job.TypeCron,
		Name:         name,
		Status:       job.StatusActive,
		ScheduledFor: now,
		CronString:   cronString,
	}
	if _, err := col.InsertOne(ctx, toJobModel(rec)); err != nil {
		return nil, fmt.Errorf("cadence/mongo: insert cron: %w", err)
	}
	return nil, nil
}

// ListCronsByName returns the crons named name ordered by ID.
func (s *Store) ListCronsByName(ctx context.Context, name string) ([]*job.Job, error) {
	return s.findJobs(ctx,
		bson.D{
			{Key: "type", Value: string(job.TypeCron)},
			{Key: "name", Value: name},
		},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}),
	)
}

// DeleteCron removes a cron record.
func (s *Store) DeleteCron(ctx context.Context, cronID id.JobID) error {
	res, err := s.db.Collection(colJobs).DeleteOne(ctx, bson.D{
		{Key: "_id", Value: cronID.String()},
		{Key: "type", Value: string(job.TypeCron)},
	})
	if err != nil {
		return fmt.Errorf("cadence/mongo: delete cron: %w", err)
	}
	if res.DeletedCount == 0 {
		return cadence.ErrCronNotFound
	}
	return nil
}

// ResetCronSchedule sets scheduled_for to now.
func (s *Store) ResetCronSchedule(ctx context.Context, cronID id.JobID, now time.Time) error {
	res, err := s.db.Collection(colJobs).UpdateOne(ctx,
		bson.D{
			{Key: "_id", Value: cronID.String()},
			{Key: "type", Value: string(job.TypeCron)},
		},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "scheduled_for", Value: now},
			{Key: "updated_at", Value: now},
		}}},
	)
	if err != nil {
		return fmt.Errorf("cadence/mongo: reset cron schedule: %w", err)
	}
	if res.MatchedCount == 0 {
		return cadence.ErrCronNotFound
	}
	return nil
}

// DeletePendingCronTasks removes pending tasks named name.
func (s *Store) DeletePendingCronTasks(ctx context.Context, name string) (int64, error) {
	res, err := s.db.Collection(colJobs).DeleteMany(ctx, bson.D{
		{Key: "type", Value: string(job.TypeCronTask)},
		{Key: "name", Value: name},
		{Key: "status", Value: string(job.StatusPending)},
	})
	if err != nil {
		return 0, fmt.Errorf("cadence/mongo: delete pending cron tasks: %w", err)
	}
	return res.DeletedCount, nil
}

// FindDueCrons returns the crons due at now, earliest first.
func (s *Store) FindDueCrons(ctx context.Context, now time.Time) ([]*job.Job, error) {
	return s.findJobs(ctx,
		bson.D{
			{Key: "type", Value: string(job.TypeCron)},
			{Key: "scheduled_for", Value: bson.D{{Key: "$lte", Value: now}}},
		},
		options.Find().SetSort(bson.D{{Key: "scheduled_for", Value: 1}}),
	)
}

// AdvanceCronSchedule moves scheduled_for from prev to next. The update
// matches on the previous value, so only one racing scheduler wins.
func (s *Store) AdvanceCronSchedule(ctx context.Context, cronID id.JobID, prev, next, now time.Time) (bool, error) {
	res, err := s.db.Collection(colJobs).UpdateOne(ctx,
		bson.D{
			{Key: "_id", Value: cronID.String()},
			{Key: "type", Value: string(job.TypeCron)},
			{Key: "scheduled_for", Value: prev},
		},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "scheduled_for", Value: next},
			{Key: "updated_at", Value: now},
		}}},
	)
	if err != nil {
		return false, fmt.Errorf("cadence/mongo: advance cron schedule: %w", err)
	}
	return res.MatchedCount == 1, nil
}
