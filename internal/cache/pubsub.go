package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

const fillChannelPrefix = "perps:fills"

// FillEvent is published when the watcher sees a request account resolve.
type FillEvent struct {
	Request   string    `json:"request"`
	Market    string    `json:"market"`
	Side      string    `json:"side"`
	Closed    bool      `json:"closed"`
	Timestamp time.Time `json:"timestamp"`
}

// PublishFill broadcasts the event on the shared channel and a per-market
// one. Nil-safe.
func (c *Cache) PublishFill(ctx context.Context, ev *FillEvent) error {
	if c == nil {
		return nil
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal fill event: %w", err)
	}

	pipe := c.client.Pipeline()
	pipe.Publish(ctx, fillChannelPrefix, data)
	pipe.Publish(ctx, fmt.Sprintf("%s:%s", fillChannelPrefix, ev.Market), data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish fill event: %w", err)
	}
	return nil
}

// SubscribeFills delivers fill events to handler until the context ends.
func (c *Cache) SubscribeFills(ctx context.Context, market string, logger *logrus.Logger, handler func(*FillEvent)) error {
	if c == nil {
		return fmt.Errorf("cache not configured")
	}
	if logger == nil {
		logger = logrus.New()
	}
	channel := fillChannelPrefix
	if market != "" {
		channel = fmt.Sprintf("%s:%s", fillChannelPrefix, market)
	}

	pubsub := c.client.Subscribe(ctx, channel)
	defer pubsub.Close()

	logger.WithField("channel", channel).Info("subscribed to fill events")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev FillEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				logger.WithError(err).Warn("dropping malformed fill event")
				continue
			}
			handler(&ev)
		}
	}
}
