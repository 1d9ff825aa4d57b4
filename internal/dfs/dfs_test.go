package dfs

import (
	"bytes"
	"context"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/obby/libretto/internal/logutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func openLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := OpenLedger(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func startServer(t *testing.T, srv DfsServer) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	grpcServer := NewGRPCServer(srv)
	done := make(chan error, 1)
	go func() { done <- grpcServer.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		conn.Close()
		grpcServer.GracefulStop()
		<-done
	})
	return conn
}

func TestCallsAreAcknowledgedAndRecorded(t *testing.T) {
	ledger := openLedger(t)
	conn := startServer(t, NewServer(ledger, logutil.Discard()))
	c := NewClient(conn)
	c.Node = "node-a"
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := c.Launch(ctx, "vm1"); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if err := c.Heartbeat(ctx); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	image := bytes.Repeat([]byte{0xab}, 2*ChunkSize+10)
	if err := c.Store(ctx, "vm1", bytes.NewReader(image)); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := c.Replicate(ctx, "ct2", bytes.NewReader(nil)); err != nil {
		t.Fatalf("Replicate: %v", err)
	}

	calls, err := ledger.Calls(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	want := []Call{
		{Method: "Launch", Instance: "vm1"},
		{Method: "Heartbeat", Instance: "node-a"},
		{Method: "Store", Instance: "vm1", Chunks: 3, Bytes: int64(len(image))},
		{Method: "Replicate", Instance: "ct2"},
	}
	if diff := cmp.Diff(want, calls, cmpopts.IgnoreFields(Call{}, "ID", "Timestamp")); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}

	stores, err := ledger.Calls(ctx, "Store")
	if err != nil {
		t.Fatal(err)
	}
	if len(stores) != 1 || stores[0].Bytes != int64(len(image)) {
		t.Fatalf("got %+v", stores)
	}
}

func TestServerWithoutLedger(t *testing.T) {
	conn := startServer(t, NewServer(nil, logutil.Discard()))
	if err := NewClient(conn).Launch(context.Background(), "vm1"); err != nil {
		t.Fatal(err)
	}
}

func TestHealth(t *testing.T) {
	conn := startServer(t, NewServer(nil, logutil.Discard()))
	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatal(err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("status %v", resp.GetStatus())
	}
}

type refusingServer struct{ *Server }

func (refusingServer) Launch(context.Context, *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	return wrapperspb.Bool(false), nil
}

func TestNotAcknowledged(t *testing.T) {
	conn := startServer(t, refusingServer{NewServer(nil, logutil.Discard())})
	err := NewClient(conn).Launch(context.Background(), "vm1")
	if !errors.Is(err, ErrNotAcknowledged) {
		t.Fatalf("got %v", err)
	}
}

func TestLedgerTimestamps(t *testing.T) {
	l := openLedger(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	id, err := l.Record(ctx, Call{Method: "Launch", Instance: "vm1", Timestamp: at})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.Record(ctx, Call{Method: "Heartbeat", Instance: "n"}); err != nil {
		t.Fatal(err)
	}
	calls, err := l.Calls(ctx, "Launch")
	if err != nil {
		t.Fatal(err)
	}
	if len(calls) != 1 || calls[0].ID != id || !calls[0].Timestamp.Equal(at) {
		t.Fatalf("got %+v", calls)
	}
}

func TestServiceStopsOnCancel(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	svc := &Service{Server: NewServer(nil, logutil.Discard()), Logger: logutil.Discard()}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.ServeListener(ctx, lis) }()

	c, err := Dial(lis.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if err := c.Launch(ctx, "vm1"); err != nil {
		t.Fatal(err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("service did not stop")
	}
}
