package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dubaigit/task-mail-sub006/pkg/channels/gochannel"
	"github.com/dubaigit/task-mail-sub006/pkg/channels/kafka"
)

// Channel is a watermill publisher and subscriber pair.
type Channel struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

func (c *Channel) Close() error {
	err := c.Publisher.Close()
	if err != nil {
		return err
	}

	return c.Subscriber.Close()
}

// NewChannel creates the transport behind the event bus and the watermill
// notifier. gochannel only reaches subscribers in the same process.
func NewChannel(provider, brokers, serviceName string, logger *slog.Logger) (*Channel, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "gochannel", "":
		pub, sub, err := gochannel.CreateChannel(wmLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create go channel pub/sub: %w", err)
		}

		return &Channel{Publisher: pub, Subscriber: sub}, nil
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wmLogger, kafka.ParseBrokers(brokers), serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return &Channel{Publisher: pub, Subscriber: sub}, nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}
