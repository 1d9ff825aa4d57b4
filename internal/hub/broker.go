package hub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/obby/libretto/internal/wire"
	"golang.org/x/sync/errgroup"
)

const (
	readBufferSize = 4096
	maxTopicSize   = 1024
)

// Broker accepts publisher and subscriber connections on two listeners and
// routes frames between them through a Hub.
type Broker struct {
	// PublishAddr and SubscribeAddr are used by ListenAndServe.
	PublishAddr   string
	SubscribeAddr string
	// MaxFrameSize bounds frames read from publishers. Zero means
	// wire.DefaultMaxFrameSize.
	MaxFrameSize uint64
	Logger       *slog.Logger

	once   sync.Once
	hub    *Hub
	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

func (b *Broker) init() {
	b.once.Do(func() {
		b.hub = NewHub(b.logger())
		b.conns = make(map[net.Conn]struct{})
	})
}

// ClientCount returns the number of registered subscribers.
func (b *Broker) ClientCount() int {
	b.init()
	return b.hub.ClientCount()
}

// ListenAndServe listens on PublishAddr and SubscribeAddr and serves until ctx
// is cancelled.
func (b *Broker) ListenAndServe(ctx context.Context) error {
	pubLn, err := net.Listen("tcp", b.PublishAddr)
	if err != nil {
		return fmt.Errorf("hub: listen %s: %w", b.PublishAddr, err)
	}
	subLn, err := net.Listen("tcp", b.SubscribeAddr)
	if err != nil {
		pubLn.Close()
		return fmt.Errorf("hub: listen %s: %w", b.SubscribeAddr, err)
	}
	return b.Serve(ctx, pubLn, subLn)
}

// Serve routes frames until ctx is cancelled, then closes both listeners and
// every open connection. A Broker serves once.
func (b *Broker) Serve(ctx context.Context, pubLn, subLn net.Listener) error {
	b.init()
	log := b.logger()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b.hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		pubLn.Close()
		subLn.Close()
		b.closeConns()
		return nil
	})
	g.Go(func() error {
		return b.accept(gctx, pubLn, b.handlePublisher)
	})
	g.Go(func() error {
		return b.accept(gctx, subLn, b.handleSubscriber)
	})

	log.Info("Broker listening", "publish", pubLn.Addr(), "subscribe", subLn.Addr())
	err := g.Wait()
	b.wg.Wait()
	return err
}

func (b *Broker) accept(ctx context.Context, ln net.Listener, handle func(net.Conn)) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("hub: accept %s: %w", ln.Addr(), err)
		}
		if !b.track(conn) {
			conn.Close()
			return nil
		}
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			defer b.untrack(conn)
			handle(conn)
		}()
	}
}

// handlePublisher reads frames from one publisher until it disconnects.
func (b *Broker) handlePublisher(conn net.Conn) {
	log := b.logger().With("publisher", conn.RemoteAddr())
	log.Debug("Publisher connected")

	dec := wire.Decoder{MaxFrameSize: b.MaxFrameSize}
	buf := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			dec.Write(buf[:n])
			frames, ferr := dec.Frames()
			for _, f := range frames {
				if !b.hub.Broadcast(f) {
					return
				}
			}
			if ferr != nil {
				log.Warn("Dropping publisher", "error", ferr)
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Warn("Publisher read failed", "error", err)
			}
			if dec.Buffered() > 0 {
				log.Debug("Publisher left a partial frame", "bytes", dec.Buffered())
			}
			return
		}
	}
}

// handleSubscriber reads the topic from the first read, then streams every
// frame on that topic until either side goes away.
func (b *Broker) handleSubscriber(conn net.Conn) {
	log := b.logger().With("subscriber", conn.RemoteAddr())

	buf := make([]byte, maxTopicSize)
	n, err := conn.Read(buf)
	if n == 0 {
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
			log.Warn("Subscriber handshake failed", "error", err)
		}
		return
	}
	client := b.hub.NewClient(string(buf[:n]))
	if !b.hub.Register(client) {
		return
	}

	// Subscribers never send after the handshake; a read returning means the
	// peer closed.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		io.Copy(io.Discard, conn)
	}()

	for {
		select {
		case msg, ok := <-client.Send:
			if !ok {
				conn.Close()
				<-gone
				return
			}
			if _, err := conn.Write(msg.Data); err != nil {
				log.Debug("Subscriber write failed", "id", client.ID, "error", err)
				b.hub.Unregister(client)
				conn.Close()
				<-gone
				return
			}
		case <-gone:
			b.hub.Unregister(client)
			return
		}
	}
}

func (b *Broker) track(conn net.Conn) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	b.conns[conn] = struct{}{}
	return true
}

func (b *Broker) untrack(conn net.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conns, conn)
	conn.Close()
}

func (b *Broker) closeConns() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for conn := range b.conns {
		conn.Close()
	}
}

func (b *Broker) logger() *slog.Logger {
	if b.Logger == nil {
		return slog.Default()
	}
	return b.Logger
}
