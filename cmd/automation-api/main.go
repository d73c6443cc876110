// Command automation-api serves the HTTP API of the mail automation core.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dubaigit/task-mail-sub006/pkg/cmd"
	"github.com/dubaigit/task-mail-sub006/pkg/log"
	"github.com/dubaigit/task-mail-sub006/pkg/services"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	flags := append(cmd.CommonFlags(), &cli.IntFlag{
		Name:    "port",
		Aliases: []string{"p"},
		Usage:   "Port to run the API server on",
		Value:   defaultPort,
		Sources: cli.EnvVars("PORT"),
	})

	command := &cli.Command{
		Name:                  "automation-api",
		Usage:                 "Enqueue mail events and manage automation workflows",
		EnableShellCompletion: true,
		Flags:                 flags,
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("automation-api")

			logger.InfoContext(ctx, "Initializing automation API")

			runtime, err := cmd.NewRuntime(ctx, command, "automation-api", logger)
			if err != nil {
				return fmt.Errorf("failed to initialize: %w", err)
			}
			defer runtime.Close(context.WithoutCancel(ctx))

			opts := []services.Option{
				services.WithEventBus(runtime.Bus),
				services.WithMetrics(runtime.Metrics),
			}

			if runtime.Notifier != nil {
				opts = append(opts, services.WithNotifier(runtime.Notifier))
			}

			automation := services.NewAutomation(
				runtime.Store,
				runtime.Core.Repository,
				runtime.Core.Executor,
				logger,
				opts...,
			)

			return NewAPI(logger, automation, runtime.Metrics).Start(ctx, command.Int("port"))
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := command.Run(ctx, os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
