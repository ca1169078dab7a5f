//go:build integration

package redisnotify_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/signal"
	"github.com/xraph/cadence/signal/redisnotify"
	"github.com/xraph/cadence/store/memory"
)

// setupTestClient starts a Redis container and returns a connected client.
func setupTestClient(t *testing.T) *goredis.Client {
	t.Helper()

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start redis container: %v", err)
	}
	t.Cleanup(func() {
		if termErr := container.Terminate(ctx); termErr != nil {
			t.Logf("terminate container: %v", termErr)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("get endpoint: %v", err)
	}

	client := goredis.NewClient(&goredis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestPublishSubscribe(t *testing.T) {
	n := redisnotify.New(setupTestClient(t), redisnotify.WithLogger(slog.Default()))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ok, err := n.SubscriptionSupported(ctx)
	if err != nil || !ok {
		t.Fatalf("SubscriptionSupported = %v, %v; want true", ok, err)
	}

	worker := id.NewWorkerID()
	ready := make(chan struct{})
	got := make(chan *signal.Signal, 2)
	done := make(chan error, 1)
	go func() {
		done <- n.SubscribeSignals(ctx, worker, func() { close(ready) }, func(_ context.Context, sig *signal.Signal) {
			got <- sig
		})
	}()

	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		t.Fatal("subscription never became ready")
	}

	if err := n.PublishSignal(ctx, signal.NewKill(id.NewJobID(), id.NewWorkerID(), time.Now())); err != nil {
		t.Fatalf("PublishSignal foreign: %v", err)
	}
	want := signal.NewKill(id.NewJobID(), worker, time.Now())
	if err := n.PublishSignal(ctx, want); err != nil {
		t.Fatalf("PublishSignal: %v", err)
	}

	select {
	case sig := <-got:
		if sig.ID != want.ID || sig.JobID != want.JobID || sig.Type != signal.TypeKill {
			t.Errorf("received %+v, want %+v", sig, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("signal not delivered")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("SubscribeSignals did not return after cancel")
	}
}

// killerSpy records kills raised by a Listener.
type killerSpy struct {
	killed chan id.JobID
}

func (k *killerSpy) Kill(_ context.Context, jobID id.JobID) error {
	select {
	case k.killed <- jobID:
	default:
	}
	return nil
}

func TestListenerOverRedis(t *testing.T) {
	n := redisnotify.New(setupTestClient(t))
	signals := memory.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	self := id.NewWorkerID()
	killer := &killerSpy{killed: make(chan id.JobID, 1)}
	l := signal.NewListener(signals, killer, self, slog.Default(), signal.WithSubscriber(n))
	go func() { _ = l.Run(ctx) }()

	sig := signal.NewKill(id.NewJobID(), self, time.Now())
	if err := signals.InsertSignal(ctx, sig); err != nil {
		t.Fatalf("InsertSignal: %v", err)
	}

	// Publish until the listener has attached; delivery is at-most-once.
	deadline := time.After(5 * time.Second)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if err := n.PublishSignal(ctx, sig); err != nil {
			t.Fatalf("PublishSignal: %v", err)
		}
		select {
		case jobID := <-killer.killed:
			if jobID != sig.JobID {
				t.Errorf("killed %s, want %s", jobID, sig.JobID)
			}
			return
		case <-ticker.C:
		case <-deadline:
			t.Fatal("listener never raised the kill")
		}
	}
}
