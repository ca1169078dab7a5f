package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/cadence/store"
	"github.com/xraph/cadence/store/memory"
	"github.com/xraph/cadence/store/mongo"
	"github.com/xraph/cadence/store/postgres"
	"github.com/xraph/cadence/store/sqlite"
)

// openStore connects the backend selected by s.Store. The returned close
// function releases every connection opened here.
func openStore(ctx context.Context, s *settings, logger *slog.Logger) (store.Store, func() error, error) {
	switch s.Store {
	case "memory":
		st := memory.New()
		return st, st.Close, nil

	case "postgres":
		if s.DSN == "" {
			return nil, nil, errors.New("postgres store requires --dsn")
		}
		st, err := postgres.New(ctx, s.DSN, postgres.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil

	case "sqlite":
		if s.DSN == "" {
			return nil, nil, errors.New("sqlite store requires --dsn (a file path)")
		}
		st, err := sqlite.Open(s.DSN, sqlite.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil

	case "mongo":
		if s.DSN == "" {
			return nil, nil, errors.New("mongo store requires --dsn")
		}
		client, err := mongod.Connect(options.Client().ApplyURI(s.DSN))
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		st := mongo.New(client.Database(s.MongoDatabase),
			mongo.WithLogger(logger),
			mongo.WithTTL(s.JobRetention, s.WorkerTTL, s.SignalTTL),
		)
		closeFn := func() error {
			return client.Disconnect(context.Background())
		}
		return st, closeFn, nil

	default:
		return nil, nil, fmt.Errorf("unknown store %q (want memory, postgres, sqlite or mongo)", s.Store)
	}
}
