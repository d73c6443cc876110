package main

import (
	"context"
	"fmt"

	"github.com/dubaigit/task-mail-sub006/pkg/cmd"
	"github.com/dubaigit/task-mail-sub006/pkg/log"
	"github.com/dubaigit/task-mail-sub006/pkg/otelhelper"
	"github.com/dubaigit/task-mail-sub006/pkg/queue"
	"github.com/dubaigit/task-mail-sub006/pkg/workflow"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

func NewRunCommand() *cli.Command {
	flags := append(cmd.CommonFlags(),
		&cli.StringFlag{
			Name:    "worker-id",
			Aliases: []string{"id"},
			Usage:   "Custom worker ID (auto-generated if not provided)",
			Sources: cli.EnvVars("WORKER_ID"),
		},
		&cli.IntFlag{
			Name:    "workers",
			Usage:   "Number of concurrent queue workers",
			Value:   queue.DefaultWorkers,
			Sources: cli.EnvVars("WORKER_COUNT"),
		},
		&cli.DurationFlag{
			Name:    "poll-interval",
			Usage:   "How often idle workers poll the queue",
			Value:   queue.DefaultPollInterval,
			Sources: cli.EnvVars("POLL_INTERVAL"),
		},
		&cli.DurationFlag{
			Name:    "item-timeout",
			Usage:   "Longest a worker may spend on one claimed item",
			Value:   queue.DefaultItemTimeout,
			Sources: cli.EnvVars("ITEM_TIMEOUT"),
		},
		&cli.DurationFlag{
			Name:    "visibility-timeout",
			Usage:   "Age after which a claimed item is returned to the queue; must exceed the item timeout",
			Value:   queue.DefaultVisibilityTimeout,
			Sources: cli.EnvVars("VISIBILITY_TIMEOUT"),
		},
		&cli.StringFlag{
			Name:    "sweep-schedule",
			Usage:   "Cron schedule of the stale claim sweep",
			Value:   queue.DefaultSweepSchedule,
			Sources: cli.EnvVars("SWEEP_SCHEDULE"),
		},
		&cli.StringFlag{
			Name:    "definitions-dir",
			Usage:   "Directory of workflow definition files to import and watch",
			Sources: cli.EnvVars("DEFINITIONS_DIR"),
		},
	)

	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Start workers to execute workflows",
		Flags:   flags,
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("automation-worker").With("worker_id", workerID)

			itemTimeout := command.Duration("item-timeout")
			visibilityTimeout := command.Duration("visibility-timeout")

			err := queue.CheckVisibilityTimeout(visibilityTimeout, itemTimeout)
			if err != nil {
				return err
			}

			logger.InfoContext(ctx, "Initializing automation worker")

			runtime, err := cmd.NewRuntime(ctx, command, "automation-worker", logger)
			if err != nil {
				return fmt.Errorf("failed to initialize: %w", err)
			}
			defer runtime.Close(context.WithoutCancel(ctx))

			processor := queue.NewProcessor(
				runtime.Store,
				runtime.Core.Repository,
				runtime.Core.Executor,
				logger,
				queue.WithSenderStats(runtime.Core.SenderStats),
				queue.WithEventBus(runtime.Bus),
				queue.WithProcessorMetrics(runtime.Metrics),
				queue.WithProcessorTracer(otelhelper.Tracer()),
				queue.WithItemTimeout(itemTimeout),
			)

			poolOpts := []queue.PoolOption{
				queue.WithName(workerID),
				queue.WithWorkers(command.Int("workers")),
				queue.WithPollInterval(command.Duration("poll-interval")),
			}

			if runtime.Notifier != nil {
				poolOpts = append(poolOpts, queue.WithSubscriber(runtime.Notifier))
			}

			pool := queue.NewPool(processor, logger, poolOpts...)

			janitor, err := queue.NewJanitor(runtime.Store, command.String("sweep-schedule"), visibilityTimeout, logger)
			if err != nil {
				return err
			}

			var watcher *workflow.Watcher

			// Definitions are in place before any worker claims an item.
			if dir := command.String("definitions-dir"); dir != "" {
				watcher, err = prepareDefinitions(ctx, runtime.Core.Repository, dir, logger)
				if err != nil {
					return err
				}
			}

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return pool.Run(ctx) })
			g.Go(func() error { return janitor.Run(ctx) })

			if watcher != nil {
				g.Go(func() error { return watcher.Run(ctx) })
			}

			return g.Wait()
		},
	}
}
