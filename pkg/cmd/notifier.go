package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/dubaigit/task-mail-sub006/pkg/notify"
	"github.com/redis/go-redis/v9"
)

var ErrNotifierUnavailable = errors.New("notifier is not available with this configuration")

type NotifierConfig struct {
	Kind        string
	Store       *Store
	DatabaseURL string
	RedisURL    string
	Channel     *Channel
}

// NewNotifier returns nil for kind "none"; workers then rely on polling.
//
// nolint:ireturn // the notifier kind is chosen at runtime
func NewNotifier(cfg NotifierConfig, logger *slog.Logger) (notify.Notifier, error) {
	switch cfg.Kind {
	case "none", "":
		return nil, nil
	case "postgres":
		if cfg.Store == nil || cfg.Store.DB == nil {
			return nil, fmt.Errorf("%w: postgres notifier needs postgres persistence", ErrNotifierUnavailable)
		}

		return notify.NewPostgresNotifier(cfg.Store.DB, cfg.DatabaseURL, notify.Channel, logger), nil
	case "redis":
		client, err := NewRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, err
		}

		return notify.NewRedisNotifier(client, notify.Channel, logger), nil
	case "watermill":
		if cfg.Channel == nil {
			return nil, fmt.Errorf("%w: watermill notifier needs an event bus channel", ErrNotifierUnavailable)
		}

		return notify.NewWatermillNotifier(cfg.Channel.Publisher, cfg.Channel.Subscriber, notify.Channel, logger), nil
	default:
		return nil, fmt.Errorf("unsupported notifier: %s", cfg.Kind)
	}
}

func NewRedisClient(redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("%w: redis url is required", ErrNotifierUnavailable)
	}

	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	return redis.NewClient(options), nil
}
