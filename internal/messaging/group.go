package messaging

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"
)

// Runnable is a topic consumer managed by a ConsumerGroup.
type Runnable interface {
	Topic() string
	Start(ctx context.Context) error
	Shutdown() error
}

// ConsumerGroup runs the consumers sharing one subscriber and owns that
// subscriber's lifetime.
type ConsumerGroup struct {
	subscriber message.Subscriber
	logger     *zap.Logger
	consumers  []Runnable
	running    []Runnable
}

func NewConsumerGroup(subscriber message.Subscriber, logger *zap.Logger) *ConsumerGroup {
	return &ConsumerGroup{
		subscriber: subscriber,
		logger:     logger,
	}
}

// Add registers a consumer. Consumers added after Start are not started.
func (g *ConsumerGroup) Add(consumer Runnable) {
	g.consumers = append(g.consumers, consumer)
}

// Topics lists the topics of the registered consumers.
func (g *ConsumerGroup) Topics() []string {
	topics := make([]string, 0, len(g.consumers))
	for _, c := range g.consumers {
		topics = append(topics, c.Topic())
	}

	return topics
}

// Start starts every consumer. If one fails, those already running are
// stopped in reverse order and the group is left idle.
func (g *ConsumerGroup) Start(ctx context.Context) error {
	for _, consumer := range g.consumers {
		if err := consumer.Start(ctx); err != nil {
			stopErr := g.stopRunning()

			return errors.Join(fmt.Errorf("start consumer for %s: %w", consumer.Topic(), err), stopErr)
		}

		g.running = append(g.running, consumer)
	}

	g.logger.Info("consumer group started", zap.Strings("topics", g.Topics()))

	return nil
}

// Shutdown stops the running consumers, then closes the subscriber. Every
// step runs even when an earlier one fails; all errors are returned joined.
func (g *ConsumerGroup) Shutdown() error {
	g.logger.Info("shutting down consumer group", zap.Int("running", len(g.running)))

	return errors.Join(g.stopRunning(), g.subscriber.Close())
}

func (g *ConsumerGroup) stopRunning() error {
	var errs []error

	for i := len(g.running) - 1; i >= 0; i-- {
		if err := g.running[i].Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("stop consumer for %s: %w", g.running[i].Topic(), err))
		}
	}

	g.running = nil

	return errors.Join(errs...)
}
