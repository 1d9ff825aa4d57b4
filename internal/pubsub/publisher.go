// Package pubsub sends and receives topic-tagged JSON messages over a single
// stream connection using the wire framing.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/obby/libretto/internal/metrics"
	"github.com/obby/libretto/internal/wire"
)

// Topics used by the pipeline.
const (
	FilesystemTopic = "FilesystemTopic"
	LibrettoTopic   = "LibrettoTopic"
)

// Publisher writes frames to one connection. Each frame goes out in a single
// Write, so frames never interleave.
type Publisher struct {
	conn net.Conn

	// WriteTimeout bounds a single publish when non-zero, so a dead peer
	// cannot stall the caller forever.
	WriteTimeout time.Duration
}

// Dial connects a publisher to addr.
func Dial(ctx context.Context, addr string) (*Publisher, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("pubsub.Dial: %s: %w", addr, err)
	}
	return NewPublisher(conn), nil
}

// NewPublisher wraps an established connection.
func NewPublisher(conn net.Conn) *Publisher {
	return &Publisher{conn: conn}
}

// Publish serializes msg as JSON and writes it as one frame on topic.
func (p *Publisher) Publish(ctx context.Context, topic string, msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("pubsub.Publish: %s: encode: %w", topic, err)
	}
	return p.PublishRaw(ctx, topic, payload)
}

// PublishRaw writes payload as one frame on topic.
func (p *Publisher) PublishRaw(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Always reset the deadline; a zero deadline means none.
	deadline, _ := ctx.Deadline()
	if p.WriteTimeout > 0 {
		if d := time.Now().Add(p.WriteTimeout); deadline.IsZero() || d.Before(deadline) {
			deadline = d
		}
	}
	if err := p.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("pubsub.Publish: %s: %w", topic, err)
	}

	stop := context.AfterFunc(ctx, func() {
		p.conn.SetWriteDeadline(time.Now())
	})
	defer stop()

	if _, err := p.conn.Write(wire.Encode(topic, payload)); err != nil {
		metrics.PublishErrors.WithLabelValues(topic).Inc()
		return fmt.Errorf("pubsub.Publish: %s: %w", topic, err)
	}
	metrics.Published.WithLabelValues(topic).Inc()
	return nil
}

// Close closes the underlying connection.
func (p *Publisher) Close() error {
	return p.conn.Close()
}
