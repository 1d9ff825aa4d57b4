// Package watcher watches the storage root and publishes every relevant
// filesystem change on the raw filesystem topic.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/obby/libretto/internal/bridge"
	"github.com/obby/libretto/internal/fsevent"
	"github.com/obby/libretto/internal/metrics"
	"github.com/obby/libretto/internal/patterns"
	"github.com/obby/libretto/internal/pubsub"
)

// DefaultHeartbeatInterval is the liveness tick of the monitor loop.
const DefaultHeartbeatInterval = 20 * time.Second

// Publisher sends one message on a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, msg any) error
	Close() error
}

// Dialer opens a publisher connection.
type Dialer func(ctx context.Context) (Publisher, error)

// Heartbeater is told about every liveness tick.
type Heartbeater interface {
	Heartbeat(ctx context.Context) error
}

// Options configures a Monitor.
type Options struct {
	Root              string
	Source            Source
	Filter            *patterns.Filter
	Dial              Dialer
	QueueCapacity     int
	QueuePolicy       bridge.Policy
	HeartbeatInterval time.Duration
	PublishTimeout    time.Duration
	Heartbeater       Heartbeater
	Logger            *slog.Logger
}

// Monitor bridges the notification source to the publisher. The source
// callback only filters and enqueues; Serve dequeues and publishes.
type Monitor struct {
	opts  Options
	queue *bridge.Queue[fsevent.Event]
	pub   Publisher
	log   *slog.Logger
}

// NewMonitor creates a monitor.
func NewMonitor(opts Options) *Monitor {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	m := &Monitor{
		opts:  opts,
		queue: bridge.NewQueue[fsevent.Event](opts.QueueCapacity, opts.QueuePolicy),
		log:   log,
	}
	m.queue.OnDrop = func(ev fsevent.Event) {
		metrics.QueueDropped.Inc()
		m.log.Warn("Queue full, dropping event", "policy", opts.QueuePolicy, "kind", ev.Kind, "path", ev.FirstPath())
	}
	return m
}

// Serve starts watching and forwards events until ctx is cancelled. Failing
// to watch the root is returned immediately; publish failures are logged and
// the event is dropped. Events still queued on return are discarded, and a
// Monitor can only be served once.
func (m *Monitor) Serve(ctx context.Context) error {
	if err := m.opts.Source.Watch(m.opts.Root, m.enqueue); err != nil {
		return fmt.Errorf("watcher: watch %s: %w", m.opts.Root, err)
	}
	defer m.closePublisher()
	defer m.opts.Source.Close()
	// Closing the queue first releases a source callback blocked in Push, so
	// the source can stop.
	defer m.queue.Close()

	m.log.Info("Watching storage root", "root", m.opts.Root, "heartbeat", m.opts.HeartbeatInterval)

	ticker := time.NewTicker(m.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			m.log.Info("Filesystem monitor stopping", "pending", m.queue.Len())
			return nil
		}

		// A pending event wins over the tick, but the tick is still taken
		// between events so it cannot starve.
		if ev, ok := m.queue.TryPop(); ok {
			metrics.QueueDepth.Set(float64(m.queue.Len()))
			m.forward(ctx, ev)
			select {
			case <-ticker.C:
				m.heartbeat(ctx)
			default:
			}
			continue
		}

		select {
		case <-ctx.Done():
		case <-m.queue.Ready():
		case <-ticker.C:
			m.heartbeat(ctx)
		}
	}
}

// enqueue runs on the source goroutine.
func (m *Monitor) enqueue(ev fsevent.Event) {
	if !m.opts.Filter.Pass(ev.Paths) {
		metrics.WatchEvents.WithLabelValues("filtered").Inc()
		m.log.Debug("Ignoring event", "kind", ev.Kind, "paths", ev.Paths)
		return
	}
	if !m.queue.Push(ev) {
		metrics.WatchEvents.WithLabelValues("rejected").Inc()
		m.log.Warn("Event not queued", "kind", ev.Kind, "path", ev.FirstPath())
		return
	}
	metrics.WatchEvents.WithLabelValues("queued").Inc()
	metrics.QueueDepth.Set(float64(m.queue.Len()))
	m.log.Debug("Watcher discovered event", "kind", ev.Kind, "paths", ev.Paths)
}

// forward publishes one event. It runs to completion even if ctx is
// cancelled meanwhile, bounded by the publish timeout.
func (m *Monitor) forward(ctx context.Context, ev fsevent.Event) {
	ctx = context.WithoutCancel(ctx)
	if m.opts.PublishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.PublishTimeout)
		defer cancel()
	}

	if m.pub == nil {
		pub, err := m.opts.Dial(ctx)
		if err != nil {
			m.log.Error("Cannot connect publisher, dropping event", "kind", ev.Kind, "path", ev.FirstPath(), "error", err)
			return
		}
		m.pub = pub
	}

	if err := m.pub.Publish(ctx, pubsub.FilesystemTopic, ev); err != nil {
		m.log.Error("Failed to publish event", "kind", ev.Kind, "path", ev.FirstPath(), "error", err)
		m.closePublisher()
		return
	}
	m.log.Debug("Published event", "kind", ev.Kind, "path", ev.FirstPath())
}

func (m *Monitor) heartbeat(ctx context.Context) {
	metrics.Heartbeats.Inc()
	m.log.Info("Filesystem monitor still alive", "pending", m.queue.Len())
	if m.opts.Heartbeater == nil {
		return
	}
	hctx, cancel := context.WithTimeout(ctx, m.opts.HeartbeatInterval)
	defer cancel()
	if err := m.opts.Heartbeater.Heartbeat(hctx); err != nil {
		m.log.Warn("Heartbeat failed", "error", err)
	}
}

func (m *Monitor) closePublisher() {
	if m.pub == nil {
		return
	}
	m.pub.Close()
	m.pub = nil
}

// PubsubDialer dials a pubsub publisher at addr with the given write timeout.
func PubsubDialer(addr string, writeTimeout time.Duration) Dialer {
	return func(ctx context.Context) (Publisher, error) {
		p, err := pubsub.Dial(ctx, addr)
		if err != nil {
			return nil, err
		}
		p.WriteTimeout = writeTimeout
		return p, nil
	}
}
