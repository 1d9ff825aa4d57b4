package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/obby/libretto/internal/metrics"
	"github.com/obby/libretto/internal/wire"
)

// ErrUnexpectedEOF is returned by Receive when the stream ends before a
// complete frame could be decoded.
var ErrUnexpectedEOF = fmt.Errorf("pubsub: no complete messages received: %w", io.ErrUnexpectedEOF)

const readBufferSize = 4096

// Subscriber receives messages of type T for one topic on one connection.
type Subscriber[T any] struct {
	conn  net.Conn
	topic string
	dec   wire.Decoder
	buf   []byte
	log   *slog.Logger
}

// Subscribe dials addr and announces topic as the first write. No
// acknowledgement is awaited.
func Subscribe[T any](ctx context.Context, addr, topic string) (*Subscriber[T], error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("pubsub.Subscribe: %s: %w", addr, err)
	}
	s, err := NewSubscriber[T](conn, topic)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// NewSubscriber performs the subscribe handshake on an established connection.
func NewSubscriber[T any](conn net.Conn, topic string) (*Subscriber[T], error) {
	if _, err := conn.Write([]byte(topic)); err != nil {
		return nil, fmt.Errorf("pubsub.Subscribe: %s: handshake: %w", topic, err)
	}
	return &Subscriber[T]{
		conn:  conn,
		topic: topic,
		buf:   make([]byte, readBufferSize),
		log:   slog.Default(),
	}, nil
}

// SetLogger replaces the logger used for dropped frames.
func (s *Subscriber[T]) SetLogger(l *slog.Logger) {
	s.log = l
}

// Topic returns the subscribed topic.
func (s *Subscriber[T]) Topic() string {
	return s.topic
}

// Receive blocks until at least one frame decodes into T and returns every
// message decoded from the data read so far. Frames whose payload does not
// decode are dropped. Cancelling ctx interrupts a blocked read.
func (s *Subscriber[T]) Receive(ctx context.Context) ([]T, error) {
	deadline, _ := ctx.Deadline()
	if err := s.conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("pubsub.Receive: %s: %w", s.topic, err)
	}
	stop := context.AfterFunc(ctx, func() {
		s.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := s.conn.Read(s.buf)
		if n > 0 {
			s.dec.Write(s.buf[:n])
			msgs, derr := s.decode()
			if len(msgs) > 0 {
				return msgs, nil
			}
			if derr != nil {
				return nil, fmt.Errorf("pubsub.Receive: %s: %w", s.topic, derr)
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return nil, ErrUnexpectedEOF
			}
			return nil, fmt.Errorf("pubsub.Receive: %s: %w", s.topic, err)
		}
		if n == 0 {
			return nil, ErrUnexpectedEOF
		}
	}
}

func (s *Subscriber[T]) decode() ([]T, error) {
	frames, err := s.dec.Frames()
	msgs := make([]T, 0, len(frames))
	for _, f := range frames {
		var msg T
		if uerr := json.Unmarshal(f.Payload, &msg); uerr != nil {
			metrics.FramesDiscarded.WithLabelValues(f.Topic).Inc()
			s.log.Debug("Dropping undecodable frame", "topic", f.Topic, "size", len(f.Payload), "error", uerr)
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, err
}

// Close closes the underlying connection.
func (s *Subscriber[T]) Close() error {
	return s.conn.Close()
}
