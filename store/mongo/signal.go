package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/signal"
)

// InsertSignal persists a signal.
func (s *Store) InsertSignal(ctx context.Context, sig *signal.Signal) error {
	if _, err := s.db.Collection(colSignals).InsertOne(ctx, toSignalModel(sig)); err != nil {
		return fmt.Errorf("cadence/mongo: insert signal: %w", err)
	}
	return nil
}

// ListPendingSignals returns unacknowledged signals for workerID, oldest
// first.
func (s *Store) ListPendingSignals(ctx context.Context, workerID id.WorkerID) ([]*signal.Signal, error) {
	cursor, err := s.db.Collection(colSignals).Find(ctx,
		bson.D{
			{Key: "worker_id", Value: workerID.String()},
			{Key: "ack", Value: false},
		},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("cadence/mongo: list signals: %w", err)
	}

	var models []signalModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("cadence/mongo: decode signals: %w", err)
	}

	out := make([]*signal.Signal, 0, len(models))
	for i := range models {
		sig, err := fromSignalModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, sig)
	}
	return out, nil
}

// AckSignal marks a signal as handled.
func (s *Store) AckSignal(ctx context.Context, signalID id.SignalID) error {
	res, err := s.db.Collection(colSignals).UpdateOne(ctx,
		bson.D{{Key: "_id", Value: signalID.String()}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "ack", Value: true}}}},
	)
	if err != nil {
		return fmt.Errorf("cadence/mongo: ack signal: %w", err)
	}
	if res.MatchedCount == 0 {
		return cadence.ErrSignalNotFound
	}
	return nil
}

// PurgeSignals deletes signals created before cutoff.
func (s *Store) PurgeSignals(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.Collection(colSignals).DeleteMany(ctx,
		bson.D{{Key: "created_at", Value: bson.D{{Key: "$lt", Value: cutoff}}}},
	)
	if err != nil {
		return 0, fmt.Errorf("cadence/mongo: purge signals: %w", err)
	}
	return res.DeletedCount, nil
}

// SubscriptionSupported opens a throwaway change stream on the signal
// collection. Standalone servers reject it with code 40573, in which case
// listeners fall back to polling.
func (s *Store) SubscriptionSupported(ctx context.Context) (bool, error) {
	cs, err := s.db.Collection(colSignals).Watch(ctx, mongod.Pipeline{})
	if err != nil {
		if isChangeStreamUnsupported(err) {
			return false, nil
		}
		return false, fmt.Errorf("cadence/mongo: check change stream: %w", err)
	}
	defer func() { _ = cs.Close(context.WithoutCancel(ctx)) }()

	cs.TryNext(ctx)
	if err := cs.Err(); err != nil {
		if isChangeStreamUnsupported(err) {
			return false, nil
		}
		return false, fmt.Errorf("cadence/mongo: check change stream: %w", err)
	}
	return true, nil
}

// SubscribeSignals watches inserts of unacknowledged signals addressed to
// workerID and delivers them until ctx is done or the stream fails.
func (s *Store) SubscribeSignals(ctx context.Context, workerID id.WorkerID, ready func(), handle signal.Handler) error {
	pipeline := mongod.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "operationType", Value: "insert"},
			{Key: "fullDocument.worker_id", Value: workerID.String()},
			{Key: "fullDocument.ack", Value: false},
		}}},
	}

	cs, err := s.db.Collection(colSignals).Watch(ctx, pipeline)
	if err != nil {
		return fmt.Errorf("cadence/mongo: watch signals: %w", err)
	}
	defer func() { _ = cs.Close(context.WithoutCancel(ctx)) }()

	if ready != nil {
		ready()
	}

	for cs.Next(ctx) {
		var event struct {
			FullDocument signalModel `bson:"fullDocument"`
		}
		if err := cs.Decode(&event); err != nil {
			s.logger.Warn("malformed signal change event", "error", err)
			continue
		}
		sig, err := fromSignalModel(&event.FullDocument)
		if err != nil {
			s.logger.Warn("malformed signal document", "error", err)
			continue
		}
		handle(ctx, sig)
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := cs.Err(); err != nil {
		return fmt.Errorf("cadence/mongo: signal change stream: %w", err)
	}
	return errors.New("cadence/mongo: signal change stream closed")
}

func isChangeStreamUnsupported(err error) bool {
	var se mongod.ServerError
	return errors.As(err, &se) && se.HasErrorCode(codeChangeStreamsDisabled)
}
