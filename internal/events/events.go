// Package events carries scan batch notifications between components.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/erazemk/stockscan/internal/model"
)

// TopicBatchCompleted receives one message per commit with successful lines.
const TopicBatchCompleted = "scan.batch.completed"

// BatchHandler reacts to a completed batch.
type BatchHandler func(ctx context.Context, result model.BatchResult) error

// Bus is an in-process publish/subscribe bus.
type Bus struct {
	pubSub *gochannel.GoChannel
}

// NewBus creates an empty bus. Messages published with no subscriber are dropped.
func NewBus() *Bus {
	return &Bus{
		pubSub: gochannel.NewGoChannel(gochannel.Config{}, watermill.NewStdLogger(false, false)),
	}
}

// PublishBatch announces a completed batch.
func (b *Bus) PublishBatch(result model.BatchResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding batch result: %w", err)
	}
	if err := b.pubSub.Publish(TopicBatchCompleted, message.NewMessage(watermill.NewUUID(), payload)); err != nil {
		return fmt.Errorf("publishing batch result: %w", err)
	}
	return nil
}

// OnBatch runs h for every completed batch until ctx is done or the bus is closed.
// Handler errors are logged; the message is acknowledged either way.
func (b *Bus) OnBatch(ctx context.Context, name string, h BatchHandler) error {
	messages, err := b.pubSub.Subscribe(ctx, TopicBatchCompleted)
	if err != nil {
		return fmt.Errorf("subscribing %s: %w", name, err)
	}

	go func() {
		for msg := range messages {
			var result model.BatchResult
			if err := json.Unmarshal(msg.Payload, &result); err != nil {
				slog.Error("dropping malformed batch event", "handler", name, "error", err)
				msg.Ack()
				continue
			}
			if err := h(ctx, result); err != nil {
				slog.Warn("batch handler failed", "handler", name, "session", result.SessionID, "error", err)
			}
			msg.Ack()
		}
	}()
	return nil
}

// Close stops all subscriptions.
func (b *Bus) Close() error {
	return b.pubSub.Close()
}
