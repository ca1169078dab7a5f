package signal

import (
	"context"
	"time"

	"github.com/xraph/cadence/id"
)

// Store defines the persistence contract for signals.
type Store interface {
	// InsertSignal persists a new signal.
	InsertSignal(ctx context.Context, s *Signal) error

	// ListPendingSignals returns unacknowledged signals addressed to
	// workerID, oldest first.
	ListPendingSignals(ctx context.Context, workerID id.WorkerID) ([]*Signal, error)

	// AckSignal marks a signal as handled.
	AckSignal(ctx context.Context, signalID id.SignalID) error

	// PurgeSignals deletes signals created before cutoff.
	PurgeSignals(ctx context.Context, cutoff time.Time) (int64, error)
}

// Handler processes a received signal.
type Handler func(ctx context.Context, s *Signal)

// Subscriber delivers signals addressed to a worker as they are inserted.
type Subscriber interface {
	// SubscriptionSupported checks whether push delivery works against the
	// connected backend.
	SubscriptionSupported(ctx context.Context) (bool, error)

	// SubscribeSignals blocks delivering signals addressed to workerID
	// until ctx is done or the subscription fails. ready is called once
	// the subscription is attached.
	SubscribeSignals(ctx context.Context, workerID id.WorkerID, ready func(), handle Handler) error
}

// Publisher announces inserted signals to a Subscriber that does not
// observe the store itself.
type Publisher interface {
	PublishSignal(ctx context.Context, s *Signal) error
}
