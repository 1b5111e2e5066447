package pubsub

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	amqp "github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/webitel/im-private-chat/config"
	"go.uber.org/fx"
)

const (
	DriverNone      = "none"
	DriverGoChannel = "gochannel"
	DriverAMQP      = "amqp"
)

// Provider owns the bus transport. Both fields are nil for the "none" driver.
type Provider struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
	Driver     string
}

func NewProvider(cfg *config.Config, logger watermill.LoggerAdapter) (*Provider, error) {
	switch cfg.Bus.Driver {
	case DriverNone:
		return &Provider{Driver: DriverNone}, nil

	case DriverGoChannel:
		ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, logger)
		return &Provider{Publisher: ch, Subscriber: ch, Driver: DriverGoChannel}, nil

	case DriverAMQP:
		// [UNIQUE_NODE_QUEUE] every process gets its own queue bound to each topic exchange
		queueSuffix := "im-private-chat." + watermill.NewShortUUID()
		amqpCfg := amqp.NewDurablePubSubConfig(cfg.Bus.AMQPURI, amqp.GenerateQueueNameTopicNameWithSuffix(queueSuffix))

		pub, err := amqp.NewPublisher(amqpCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("amqp publisher: %w", err)
		}
		sub, err := amqp.NewSubscriber(amqpCfg, logger)
		if err != nil {
			_ = pub.Close()
			return nil, fmt.Errorf("amqp subscriber: %w", err)
		}
		return &Provider{Publisher: pub, Subscriber: sub, Driver: DriverAMQP}, nil

	default:
		return nil, fmt.Errorf("unsupported bus driver %q", cfg.Bus.Driver)
	}
}

// Enabled reports whether a transport is configured.
func (p *Provider) Enabled() bool {
	return p.Publisher != nil
}

func (p *Provider) Close() error {
	var errs []error
	if p.Subscriber != nil {
		errs = append(errs, p.Subscriber.Close())
	}
	// gochannel is both ends; closing twice is harmless but noisy.
	if p.Publisher != nil && p.Driver != DriverGoChannel {
		errs = append(errs, p.Publisher.Close())
	}
	return errors.Join(errs...)
}

var Module = fx.Module("pubsub",
	fx.Provide(
		NewProvider,
		NewEventDispatcher,
	),
	fx.Invoke(func(lc fx.Lifecycle, p *Provider) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return p.Close()
			},
		})
	}),
)
