// Package cmd assembles the automation core for the command-line binaries.
package cmd

import (
	"log/slog"
	"time"

	"github.com/dubaigit/task-mail-sub006/pkg/actions"
	"github.com/dubaigit/task-mail-sub006/pkg/actions/forward"
	notifyaction "github.com/dubaigit/task-mail-sub006/pkg/actions/notify"
	"github.com/dubaigit/task-mail-sub006/pkg/actions/reply"
	"github.com/dubaigit/task-mail-sub006/pkg/actions/task"
	"github.com/dubaigit/task-mail-sub006/pkg/collaborators/classifier"
	"github.com/dubaigit/task-mail-sub006/pkg/collaborators/messaging"
	"github.com/dubaigit/task-mail-sub006/pkg/conditions"
	"github.com/dubaigit/task-mail-sub006/pkg/eventbus"
	"github.com/dubaigit/task-mail-sub006/pkg/metrics"
	"github.com/dubaigit/task-mail-sub006/pkg/otelhelper"
	"github.com/dubaigit/task-mail-sub006/pkg/persistence"
	"github.com/dubaigit/task-mail-sub006/pkg/workflow"
	"github.com/redis/go-redis/v9"
)

const senderStatsPrefix = "automation:senders"

// CoreConfig selects the collaborators of the executor. Empty URLs disable
// the features that need them.
type CoreConfig struct {
	ClassifierURL   string
	MessagingURL    string
	Timeout         time.Duration
	MessagingRate   int
	NotifyOverBus   bool
	SenderStatsPool redis.UniversalClient
}

// Core is the executor with everything it depends on.
type Core struct {
	Executor    *workflow.Executor
	Repository  *workflow.Repository
	SenderStats conditions.SenderStats
}

func NewCore(
	cfg CoreConfig,
	store persistence.Persistence,
	bus eventbus.EventPublisher,
	collector *metrics.Collector,
	logger *slog.Logger,
) *Core {
	var (
		judge     conditions.Classifier
		generator reply.Generator
		stats     conditions.SenderStats
	)

	if cfg.ClassifierURL != "" {
		client := classifier.NewClient(cfg.ClassifierURL, cfg.Timeout, logger)
		judge = client
		generator = client
	}

	if cfg.SenderStatsPool != nil {
		stats = conditions.NewRedisSenderStats(cfg.SenderStatsPool, senderStatsPrefix)
	} else {
		stats = conditions.NewMemorySenderStats()
	}

	handlers := []actions.Handler{task.NewHandler(store)}

	if cfg.MessagingURL != "" {
		client := messaging.NewClient(cfg.MessagingURL, cfg.Timeout, cfg.MessagingRate, logger)
		handlers = append(handlers, reply.NewHandler(client, generator), forward.NewHandler(client))

		if !cfg.NotifyOverBus {
			handlers = append(handlers, notifyaction.NewHandler(client))
		}
	}

	if cfg.NotifyOverBus && bus != nil {
		handlers = append(handlers, notifyaction.NewHandler(messaging.NewBusNotifier(bus)))
	}

	tracer := otelhelper.Tracer()

	dispatcher := actions.NewDispatcher(
		actions.NewRegistry(handlers...),
		logger,
		actions.WithActionLog(store),
		actions.WithMetrics(collector),
		actions.WithTracer(tracer),
	)

	executor := workflow.NewExecutor(
		conditions.NewDefaultRegistry(conditions.Dependencies{Classifier: judge, Stats: stats, Logger: logger}),
		dispatcher,
		logger,
		workflow.WithExecutionStore(store),
		workflow.WithExecutorMetrics(collector),
		workflow.WithExecutorTracer(tracer),
	)

	return &Core{
		Executor:    executor,
		Repository:  workflow.NewRepository(store, workflow.NewPlanCache(), logger),
		SenderStats: stats,
	}
}
