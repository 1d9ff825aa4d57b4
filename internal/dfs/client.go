package dfs

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ChunkSize is the largest payload sent in one stream message.
const ChunkSize = 64 << 10

// ErrNotAcknowledged is returned when the server answers false.
var ErrNotAcknowledged = errors.New("dfs: call not acknowledged")

// Client calls the storage service.
type Client struct {
	cc   grpc.ClientConnInterface
	conn *grpc.ClientConn

	// Node names this process in heartbeats.
	Node string
}

// Dial creates a client for addr. The connection is established lazily.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("dfs.Dial: %s: %w", addr, err)
	}
	return &Client{cc: conn, conn: conn}, nil
}

// NewClient wraps an existing connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Launch asks the service to start instance.
func (c *Client) Launch(ctx context.Context, instance string) error {
	return c.unary(ctx, LaunchMethod, instance)
}

// Heartbeat reports this node as alive.
func (c *Client) Heartbeat(ctx context.Context) error {
	return c.unary(ctx, HeartbeatMethod, c.Node)
}

// Store streams r to the service as the image of instance.
func (c *Client) Store(ctx context.Context, instance string, r io.Reader) error {
	return c.stream(ctx, 0, StoreMethod, instance, r)
}

// Replicate streams r to the service as replication data of instance.
func (c *Client) Replicate(ctx context.Context, instance string, r io.Reader) error {
	return c.stream(ctx, 1, ReplicateMethod, instance, r)
}

// Close closes the connection if the client owns it.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) unary(ctx context.Context, method, value string) error {
	out := new(wrapperspb.BoolValue)
	if err := c.cc.Invoke(ctx, method, wrapperspb.String(value), out); err != nil {
		return fmt.Errorf("dfs: %s: %w", method, err)
	}
	if !out.GetValue() {
		return fmt.Errorf("%w: %s", ErrNotAcknowledged, method)
	}
	return nil
}

func (c *Client) stream(ctx context.Context, desc int, method, instance string, r io.Reader) error {
	ctx = metadata.AppendToOutgoingContext(ctx, InstanceMetadataKey, instance)
	cs, err := c.cc.NewStream(ctx, &DfsService_ServiceDesc.Streams[desc], method)
	if err != nil {
		return fmt.Errorf("dfs: %s: %w", method, err)
	}
	stream := &grpc.GenericClientStream[wrapperspb.BytesValue, wrapperspb.BoolValue]{ClientStream: cs}

	// Every chunk but the last is exactly ChunkSize.
	buf := make([]byte, ChunkSize)
	for {
		n, rerr := io.ReadFull(r, buf)
		if n > 0 {
			if err := stream.Send(wrapperspb.Bytes(append([]byte(nil), buf[:n]...))); err != nil {
				// The real error surfaces from CloseAndRecv.
				if errors.Is(err, io.EOF) {
					break
				}
				return fmt.Errorf("dfs: %s: send: %w", method, err)
			}
		}
		if errors.Is(rerr, io.EOF) || errors.Is(rerr, io.ErrUnexpectedEOF) {
			break
		}
		if rerr != nil {
			return fmt.Errorf("dfs: %s: read: %w", method, rerr)
		}
	}

	out, err := stream.CloseAndRecv()
	if err != nil {
		return fmt.Errorf("dfs: %s: %w", method, err)
	}
	if !out.GetValue() {
		return fmt.Errorf("%w: %s", ErrNotAcknowledged, method)
	}
	return nil
}
