// Package relay subscribes to raw filesystem events, classifies them and
// republishes the ones that need an action as LibrettoEvents.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/obby/libretto/internal/classify"
	"github.com/obby/libretto/internal/fsevent"
	"github.com/obby/libretto/internal/metrics"
	"github.com/obby/libretto/internal/patterns"
	"github.com/obby/libretto/internal/pubsub"
)

// Publisher is the sending side of the relay.
type Publisher interface {
	Publish(ctx context.Context, topic string, msg any) error
	Close() error
}

// Client is the relay between the filesystem topic and the classified topic.
type Client struct {
	SubscribeAddr  string
	PublishAddr    string
	Layout         patterns.Layout
	PublishTimeout time.Duration
	Logger         *slog.Logger

	// Dial connects the publishing side. Nil dials PublishAddr.
	Dial func(ctx context.Context) (Publisher, error)

	pub Publisher
}

// Serve connects both sides and relays until ctx is cancelled. A broken
// subscription is returned as an error so the caller can reconnect.
func (c *Client) Serve(ctx context.Context) error {
	log := c.Logger
	if log == nil {
		log = slog.Default()
	}

	sub, err := pubsub.Subscribe[fsevent.Event](ctx, c.SubscribeAddr, pubsub.FilesystemTopic)
	if err != nil {
		return fmt.Errorf("relay: %w", err)
	}
	defer sub.Close()
	sub.SetLogger(log)

	c.pub, err = c.dial(ctx)
	if err != nil {
		return fmt.Errorf("relay: %w", err)
	}
	defer c.closePublisher()

	log.Info("Relay connected", "subscribe", c.SubscribeAddr, "publish", c.PublishAddr)

	for {
		if ctx.Err() != nil {
			return nil
		}
		events, err := sub.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("relay: %w", err)
		}
		for _, ev := range events {
			c.relay(ctx, ev, log)
		}
	}
}

// relay classifies and publishes one event. A failed publish closes the
// connection, since a timed out write may have left a partial frame on it;
// the next event redials.
func (c *Client) relay(ctx context.Context, ev fsevent.Event, log *slog.Logger) {
	le, ok := classify.NewLibrettoEvent(ev, c.Layout)
	if !ok {
		metrics.Classified.WithLabelValues("none").Inc()
		log.Debug("No action for event", "kind", ev.Kind, "path", ev.FirstPath())
		return
	}
	metrics.Classified.WithLabelValues(string(le.Action.Type)).Inc()

	pctx := context.WithoutCancel(ctx)
	if c.PublishTimeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(pctx, c.PublishTimeout)
		defer cancel()
	}
	if c.pub == nil {
		pub, err := c.dial(pctx)
		if err != nil {
			log.Error("Cannot connect publisher, dropping event", "kind", ev.Kind, "path", ev.FirstPath(), "action", le.Action, "error", err)
			return
		}
		c.pub = pub
	}
	if err := c.pub.Publish(pctx, pubsub.LibrettoTopic, le); err != nil {
		log.Error("Failed to publish classified event", "kind", ev.Kind, "path", ev.FirstPath(), "action", le.Action, "error", err)
		c.closePublisher()
		return
	}
	log.Debug("Relayed event", "kind", ev.Kind, "path", ev.FirstPath(), "action", le.Action, "instance", le.InstanceName)
}

func (c *Client) dial(ctx context.Context) (Publisher, error) {
	if c.Dial != nil {
		return c.Dial(ctx)
	}
	pub, err := pubsub.Dial(ctx, c.PublishAddr)
	if err != nil {
		return nil, err
	}
	pub.WriteTimeout = c.PublishTimeout
	return pub, nil
}

func (c *Client) closePublisher() {
	if c.pub == nil {
		return
	}
	c.pub.Close()
	c.pub = nil
}
