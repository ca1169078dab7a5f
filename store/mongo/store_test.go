//go:build integration

package mongo_test

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	mongomodule "github.com/testcontainers/testcontainers-go/modules/mongodb"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/job"
	"github.com/xraph/cadence/signal"
	"github.com/xraph/cadence/store"
	"github.com/xraph/cadence/store/mongo"
	"github.com/xraph/cadence/store/storetest"
)

// setupTestClient starts a single-node replica set so change streams work.
func setupTestClient(t *testing.T) *mongod.Client {
	t.Helper()

	ctx := context.Background()

	container, err := mongomodule.Run(ctx, "mongo:7", mongomodule.WithReplicaSet("rs0"))
	if err != nil {
		t.Fatalf("start mongo container: %v", err)
	}
	t.Cleanup(func() {
		if termErr := container.Terminate(ctx); termErr != nil {
			t.Logf("terminate container: %v", termErr)
		}
	})

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	client, err := mongod.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })
	return client
}

var dbSeq atomic.Int64

// newStore returns a migrated store on a fresh database. TTLs are long so
// the TTL monitor never races the assertions.
func newStore(t *testing.T, client *mongod.Client) *mongo.Store {
	t.Helper()
	ctx := context.Background()

	db := client.Database(fmt.Sprintf("cadence_test_%d", dbSeq.Add(1)))
	s := mongo.New(db,
		mongo.WithLogger(slog.Default()),
		mongo.WithTTL(90*24*time.Hour, 24*time.Hour, 24*time.Hour),
	)
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// Migrations are idempotent.
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	t.Cleanup(func() { _ = db.Drop(context.Background()) })
	return s
}

func TestConformance(t *testing.T) {
	client := setupTestClient(t)
	storetest.Run(t, func(t *testing.T) store.Store {
		return newStore(t, client)
	})
}

func TestMigrateBackfillsWorkerID(t *testing.T) {
	client := setupTestClient(t)
	s := newStore(t, client)
	ctx := context.Background()

	j := job.NewSimple("legacy", nil, time.Now().UTC())
	_, err := s.DB().Collection("cadence_jobs").InsertOne(ctx, map[string]any{
		"_id":           j.ID.String(),
		"type":          "simple",
		"name":          "legacy",
		"status":        "pending",
		"scheduled_for": j.ScheduledFor,
		"created_at":    j.CreatedAt,
		"updated_at":    j.UpdatedAt,
	})
	if err != nil {
		t.Fatalf("insert legacy document: %v", err)
	}

	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	n, err := s.DB().Collection("cadence_jobs").CountDocuments(ctx, map[string]any{
		"_id":       j.ID.String(),
		"worker_id": "",
	})
	if err != nil {
		t.Fatalf("CountDocuments: %v", err)
	}
	if n != 1 {
		t.Errorf("backfilled documents = %d, want 1", n)
	}
}

func TestSubscribeSignals(t *testing.T) {
	client := setupTestClient(t)
	s := newStore(t, client)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ok, err := s.SubscriptionSupported(ctx)
	if err != nil || !ok {
		t.Fatalf("SubscriptionSupported = %v, %v; want true", ok, err)
	}

	worker := id.NewWorkerID()
	ready := make(chan struct{})
	got := make(chan *signal.Signal, 1)
	go func() {
		_ = s.SubscribeSignals(ctx, worker, func() { close(ready) }, func(_ context.Context, sig *signal.Signal) {
			got <- sig
		})
	}()

	select {
	case <-ready:
	case <-time.After(10 * time.Second):
		t.Fatal("subscription never became ready")
	}

	if err := s.InsertSignal(ctx, signal.NewKill(id.NewJobID(), id.NewWorkerID(), time.Now())); err != nil {
		t.Fatalf("InsertSignal foreign: %v", err)
	}
	want := signal.NewKill(id.NewJobID(), worker, time.Now())
	if err := s.InsertSignal(ctx, want); err != nil {
		t.Fatalf("InsertSignal: %v", err)
	}

	select {
	case sig := <-got:
		if sig.ID != want.ID || sig.JobID != want.JobID || sig.Type != signal.TypeKill {
			t.Errorf("received %+v, want %+v", sig, want)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("signal not delivered")
	}
}
