package cmd

import (
	"time"

	cli "github.com/urfave/cli/v3"
)

const (
	defaultCollaboratorTimeout = 10 * time.Second
	defaultMessagingRate       = 10
)

// CommonFlags are shared by every binary that opens the store.
func CommonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "database-url",
			Usage:    "Database connection URL for persistence (postgres://... or memory://)",
			Required: true,
			Sources:  cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (gochannel, kafka)",
			Value:   "gochannel",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Comma separated Kafka brokers",
			Value:   "localhost:9092",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.StringFlag{
			Name:    "notifier",
			Usage:   "Queue notifier (none, postgres, redis, watermill)",
			Value:   "none",
			Sources: cli.EnvVars("NOTIFIER"),
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "Redis URL for the notifier and sender statistics",
			Sources: cli.EnvVars("REDIS_URL"),
		},
		&cli.StringFlag{
			Name:    "classifier-url",
			Usage:   "Base URL of the classifier service (AI conditions and generated replies)",
			Sources: cli.EnvVars("CLASSIFIER_URL"),
		},
		&cli.StringFlag{
			Name:    "messaging-url",
			Usage:   "Base URL of the messaging service (replies, forwards and notifications)",
			Sources: cli.EnvVars("MESSAGING_URL"),
		},
		&cli.DurationFlag{
			Name:    "collaborator-timeout",
			Usage:   "Timeout of a single classifier or messaging call",
			Value:   defaultCollaboratorTimeout,
			Sources: cli.EnvVars("COLLABORATOR_TIMEOUT"),
		},
		&cli.IntFlag{
			Name:    "messaging-rate",
			Usage:   "Maximum messaging calls per second",
			Value:   defaultMessagingRate,
			Sources: cli.EnvVars("MESSAGING_RATE"),
		},
		&cli.BoolFlag{
			Name:    "notify-over-bus",
			Usage:   "Publish ACTION_NOTIFY notifications on the event bus instead of the messaging service",
			Sources: cli.EnvVars("NOTIFY_OVER_BUS"),
		},
		&cli.BoolFlag{
			Name:    "otel-enabled",
			Usage:   "Export traces over OTLP/HTTP",
			Sources: cli.EnvVars("OTEL_ENABLED"),
		},
		LogLevelFlag(),
		LogFormatFlag(),
	}
}

func LogLevelFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "log-level",
		Usage:   "Log level (debug, info, warn, error)",
		Value:   "info",
		Sources: cli.EnvVars("LOG_LEVEL"),
	}
}

func LogFormatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "log-format",
		Usage:   "Log format (text, json)",
		Value:   "text",
		Sources: cli.EnvVars("LOG_FORMAT"),
	}
}
