package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/cadence/amqphook"
	audithook "github.com/xraph/cadence/audit_hook"
	"github.com/xraph/cadence/api"
	"github.com/xraph/cadence/engine"
	"github.com/xraph/cadence/signal/redisnotify"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a worker and serve the HTTP status API",
	Long: `Run a worker process on the configured store and serve the read model
over HTTP. The worker detects crashed jobs, answers kill signals and keeps
its liveness record; it executes only the definitions registered in this
binary.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		opts, closeNotifier, err := notifierOptions(ctx)
		if err != nil {
			return err
		}
		defer closeNotifier()

		hookOpts, closeHook, err := amqpOptions()
		if err != nil {
			return err
		}
		defer closeHook()

		opts = append(opts, hookOpts...)
		if audit, _ := cmd.Flags().GetBool("audit"); audit {
			opts = append(opts, engine.WithExtension(audithook.New(
				audithook.LogRecorder(logger.With("component", "audit")),
				audithook.WithLogger(logger),
			)))
		}

		sess, err := openSession(ctx, opts...)
		if err != nil {
			return err
		}
		defer sess.close() //nolint:errcheck // best-effort cleanup

		if err := sess.eng.Store().Migrate(ctx); err != nil {
			return err
		}

		srv := &http.Server{
			Addr:              cfg.Listen,
			Handler:           api.New(sess.eng, logger).Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return sess.eng.Start(gctx)
		})
		g.Go(func() error {
			logger.Info("http server listening", slog.String("address", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		return g.Wait()
	},
}

func init() {
	flags := serveCmd.Flags()
	flags.String("listen", ":8080", "HTTP listen address")
	flags.String("amqp-url", "", "RabbitMQ URL lifecycle events are published to (optional)")
	flags.String("amqp-exchange", "cadence.events", "RabbitMQ exchange for lifecycle events")
	flags.StringSlice("worker-tags", nil, "only execute definitions carrying one of these tags")
	flags.Bool("audit", false, "log an audit record for every lifecycle event")

	bindFlags(v, flags, map[string]string{
		"listen":        "listen",
		"amqp-url":      "amqp_url",
		"amqp-exchange": "amqp_exchange",
		"worker-tags":   "worker_tags",
	})
}

// notifierOptions returns the engine option pushing kill signals over
// Redis when a Redis URL is configured.
func notifierOptions(ctx context.Context) ([]engine.Option, func(), error) {
	if cfg.RedisURL == "" {
		return nil, func() {}, nil
	}
	redisOpts, err := goredis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := goredis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	n := redisnotify.New(client, redisnotify.WithLogger(logger))
	return []engine.Option{engine.WithNotifier(n)}, func() { _ = client.Close() }, nil
}

// amqpOptions returns the engine option publishing lifecycle events to
// RabbitMQ when an AMQP URL is configured.
func amqpOptions() ([]engine.Option, func(), error) {
	if cfg.AMQPURL == "" {
		return nil, func() {}, nil
	}
	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if err := amqphook.DeclareExchange(ch, cfg.AMQPExchange); err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	hook := amqphook.New(ch,
		amqphook.WithExchange(cfg.AMQPExchange),
		amqphook.WithLogger(logger),
	)
	return []engine.Option{engine.WithExtension(hook)}, func() { _ = conn.Close() }, nil
}
