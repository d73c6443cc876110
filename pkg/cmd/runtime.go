package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dubaigit/task-mail-sub006/pkg/eventbus"
	"github.com/dubaigit/task-mail-sub006/pkg/metrics"
	"github.com/dubaigit/task-mail-sub006/pkg/notify"
	"github.com/dubaigit/task-mail-sub006/pkg/otelhelper"
	"github.com/redis/go-redis/v9"
	cli "github.com/urfave/cli/v3"
)

// Runtime holds the shared infrastructure of a binary, built from CommonFlags.
type Runtime struct {
	Store    *Store
	Channel  *Channel
	Bus      *eventbus.WatermillEventBus
	Notifier notify.Notifier
	Metrics  *metrics.Collector
	Core     *Core

	logger  *slog.Logger
	closers []func(ctx context.Context) error
}

func NewRuntime(ctx context.Context, command *cli.Command, serviceName string, logger *slog.Logger) (_ *Runtime, err error) {
	rt := &Runtime{logger: logger, Metrics: metrics.NewCollector()}

	defer func() {
		if err != nil {
			rt.Close(ctx)
		}
	}()

	if command.Bool("otel-enabled") {
		tracerProvider, err := otelhelper.NewTracerProvider(ctx, serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}

		rt.closers = append(rt.closers, tracerProvider.Shutdown)
	}

	rt.Store, err = NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return nil, err
	}

	rt.closers = append(rt.closers, rt.Store.Close)

	rt.Channel, err = NewChannel(command.String("event-bus"), command.String("kafka-brokers"), serviceName, logger)
	if err != nil {
		return nil, err
	}

	rt.closers = append(rt.closers, func(context.Context) error { return rt.Channel.Close() })
	rt.Bus = eventbus.NewWatermillEventBus(rt.Channel.Publisher, rt.Channel.Subscriber)

	rt.Notifier, err = NewNotifier(NotifierConfig{
		Kind:        command.String("notifier"),
		Store:       rt.Store,
		DatabaseURL: command.String("database-url"),
		RedisURL:    command.String("redis-url"),
		Channel:     rt.Channel,
	}, logger)
	if err != nil {
		return nil, err
	}

	if rt.Notifier != nil && command.String("notifier") != "watermill" {
		rt.closers = append(rt.closers, func(context.Context) error { return rt.Notifier.Close() })
	}

	var statsClient redis.UniversalClient

	if command.String("redis-url") != "" {
		client, err := NewRedisClient(command.String("redis-url"))
		if err != nil {
			return nil, err
		}

		statsClient = client
		rt.closers = append(rt.closers, func(context.Context) error { return client.Close() })
	}

	rt.Core = NewCore(CoreConfig{
		ClassifierURL:   command.String("classifier-url"),
		MessagingURL:    command.String("messaging-url"),
		Timeout:         command.Duration("collaborator-timeout"),
		MessagingRate:   command.Int("messaging-rate"),
		NotifyOverBus:   command.Bool("notify-over-bus"),
		SenderStatsPool: statsClient,
	}, rt.Store, rt.Bus, rt.Metrics, logger)

	return rt, nil
}

// Close releases everything in reverse order of creation.
func (r *Runtime) Close(ctx context.Context) {
	var errs []error

	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i](ctx))
	}

	r.closers = nil

	err := errors.Join(errs...)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to release resources", "error", err)
	}
}
