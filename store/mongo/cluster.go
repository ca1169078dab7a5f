package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/cadence/cluster"
	"github.com/xraph/cadence/id"
)

// UpsertWorker creates or refreshes a worker record. The hostname of an
// existing record is kept.
func (s *Store) UpsertWorker(ctx context.Context, w *cluster.Worker) error {
	_, err := s.db.Collection(colWorkers).UpdateOne(ctx,
		bson.D{{Key: "_id", Value: w.ID.String()}},
		bson.D{
			{Key: "$set", Value: bson.D{
				{Key: "last_seen", Value: w.LastSeen},
				{Key: "tags", Value: w.Tags},
			}},
			{Key: "$setOnInsert", Value: bson.D{{Key: "hostname", Value: w.Hostname}}},
		},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("cadence/mongo: upsert worker: %w", err)
	}
	return nil
}

// TouchWorker refreshes the last-seen time of an existing record.
func (s *Store) TouchWorker(ctx context.Context, workerID id.WorkerID, at time.Time) (bool, error) {
	res, err := s.db.Collection(colWorkers).UpdateOne(ctx,
		bson.D{{Key: "_id", Value: workerID.String()}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "last_seen", Value: at}}}},
	)
	if err != nil {
		return false, fmt.Errorf("cadence/mongo: touch worker: %w", err)
	}
	return res.MatchedCount == 1, nil
}

// RemoveWorker deletes a worker record.
func (s *Store) RemoveWorker(ctx context.Context, workerID id.WorkerID) error {
	_, err := s.db.Collection(colWorkers).DeleteOne(ctx, bson.D{{Key: "_id", Value: workerID.String()}})
	if err != nil {
		return fmt.Errorf("cadence/mongo: remove worker: %w", err)
	}
	return nil
}

// ListWorkers returns workers seen after aliveAfter.
func (s *Store) ListWorkers(ctx context.Context, aliveAfter time.Time) ([]*cluster.Worker, error) {
	cursor, err := s.db.Collection(colWorkers).Find(ctx,
		bson.D{{Key: "last_seen", Value: bson.D{{Key: "$gt", Value: aliveAfter}}}},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("cadence/mongo: list workers: %w", err)
	}

	var models []workerModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("cadence/mongo: decode workers: %w", err)
	}

	workers := make([]*cluster.Worker, 0, len(models))
	for i := range models {
		w, err := fromWorkerModel(&models[i])
		if err != nil {
			return nil, err
		}
		workers = append(workers, w)
	}
	return workers, nil
}

// PurgeExpiredWorkers deletes records last seen before cutoff. The TTL
// index does the same on its own schedule.
func (s *Store) PurgeExpiredWorkers(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.Collection(colWorkers).DeleteMany(ctx,
		bson.D{{Key: "last_seen", Value: bson.D{{Key: "$lt", Value: cutoff}}}},
	)
	if err != nil {
		return 0, fmt.Errorf("cadence/mongo: purge workers: %w", err)
	}
	return res.DeletedCount, nil
}
