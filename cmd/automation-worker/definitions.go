package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dubaigit/task-mail-sub006/pkg/cmd"
	"github.com/dubaigit/task-mail-sub006/pkg/log"
	"github.com/dubaigit/task-mail-sub006/pkg/models"
	"github.com/dubaigit/task-mail-sub006/pkg/persistence/memory"
	"github.com/dubaigit/task-mail-sub006/pkg/workflow"
	cli "github.com/urfave/cli/v3"
)

var ErrInvalidDefinitions = errors.New("invalid workflow definitions")

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Compile workflow definition files without storing them",
		ArgsUsage: "<file or directory>...",
		Flags:     []cli.Flag{cmd.LogLevelFlag(), cmd.LogFormatFlag()},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("automation-worker")
			repo := workflow.NewRepository(memory.NewPersistence(), nil, logger)

			return validateDefinitions(os.Stdout, repo, command.Args().Slice())
		},
	}
}

func NewImportCommand() *cli.Command {
	flags := append(cmd.CommonFlags(), activateFlag())

	return &cli.Command{
		Name:      "import",
		Usage:     "Store workflow definition files",
		ArgsUsage: "<file or directory>...",
		Flags:     flags,
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("automation-worker")

			runtime, err := cmd.NewRuntime(ctx, command, "automation-worker", logger)
			if err != nil {
				return fmt.Errorf("failed to initialize: %w", err)
			}
			defer runtime.Close(context.WithoutCancel(ctx))

			saved, err := importDefinitions(ctx, runtime.Core.Repository, command.Args().Slice(), command.Bool("activate"), logger)
			if err != nil {
				return err
			}

			logger.InfoContext(ctx, "Imported workflow definitions", "count", saved)

			return nil
		},
	}
}

func NewWatchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Import a directory of workflow definitions and re-import files as they change",
		ArgsUsage: "<directory>",
		Flags:     cmd.CommonFlags(),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("automation-worker")

			dir := command.Args().First()
			if dir == "" {
				return errors.New("a directory is required")
			}

			runtime, err := cmd.NewRuntime(ctx, command, "automation-worker", logger)
			if err != nil {
				return fmt.Errorf("failed to initialize: %w", err)
			}
			defer runtime.Close(context.WithoutCancel(ctx))

			watcher, err := prepareDefinitions(ctx, runtime.Core.Repository, dir, logger)
			if err != nil {
				return err
			}

			return watcher.Run(ctx)
		},
	}
}

func activateFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "activate",
		Usage: "Activate every imported definition",
	}
}

// validateDefinitions reports every definition and fails when any is invalid.
func validateDefinitions(w io.Writer, repo *workflow.Repository, paths []string) error {
	if len(paths) == 0 {
		return errors.New("at least one file or directory is required")
	}

	invalid := 0

	for _, path := range paths {
		workflows, err := workflow.Load(path)
		if err != nil {
			fmt.Fprintf(w, "FAIL %s: %v\n", path, err)

			invalid++

			continue
		}

		for _, def := range workflows {
			err := repo.Validate(def)
			if err != nil {
				fmt.Fprintf(w, "FAIL %s (%s): %v\n", path, def.Name, err)

				invalid++

				continue
			}

			fmt.Fprintf(w, "ok   %s (%s)\n", path, def.Name)
		}
	}

	if invalid > 0 {
		return fmt.Errorf("%w: %d failed", ErrInvalidDefinitions, invalid)
	}

	return nil
}

// importDefinitions saves every definition under paths. Definitions without
// an id get a new one on every import.
func importDefinitions(ctx context.Context, repo *workflow.Repository, paths []string, activate bool, logger *slog.Logger) (int, error) {
	if len(paths) == 0 {
		return 0, errors.New("at least one file or directory is required")
	}

	saved := 0

	for _, path := range paths {
		workflows, err := workflow.Load(path)
		if err != nil {
			return saved, err
		}

		for _, def := range workflows {
			_, err := save(ctx, repo, def, activate)
			if err != nil {
				return saved, fmt.Errorf("%s (%s): %w", path, def.Name, err)
			}

			saved++
		}
	}

	logger.InfoContext(ctx, "Loaded workflow definitions", "paths", paths, "count", saved)

	return saved, nil
}

func save(ctx context.Context, repo *workflow.Repository, def *models.Workflow, activate bool) (*models.Workflow, error) {
	saved, err := repo.Save(ctx, def)
	if err != nil {
		return nil, err
	}

	if activate && !saved.IsActive {
		return repo.SetActive(ctx, saved.ID, true)
	}

	return saved, nil
}

// prepareDefinitions imports every definition in dir and returns a watcher
// that re-imports files as they change. Nothing is watched when the import fails.
func prepareDefinitions(ctx context.Context, repo *workflow.Repository, dir string, logger *slog.Logger) (*workflow.Watcher, error) {
	_, err := importDefinitions(ctx, repo, []string{dir}, false, logger)
	if err != nil {
		return nil, err
	}

	return workflow.NewWatcher(dir, 0, reloadDefinition(repo, logger), logger), nil
}

// reloadDefinition re-imports a changed file. Errors are logged so a bad edit
// does not stop the watcher.
func reloadDefinition(repo *workflow.Repository, logger *slog.Logger) func(ctx context.Context, path string) {
	return func(ctx context.Context, path string) {
		workflows, err := workflow.LoadFile(path)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to load changed definition", "path", path, "error", err)

			return
		}

		for _, def := range workflows {
			saved, err := save(ctx, repo, def, false)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to save changed definition", "path", path, "name", def.Name, "error", err)

				continue
			}

			logger.InfoContext(ctx, "Reloaded workflow definition", "path", path, "workflow_id", saved.ID, "version", saved.Version)
		}
	}
}
