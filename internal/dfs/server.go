package dfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/obby/libretto/internal/metrics"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Server implements DfsServer. It acknowledges every call and records it in
// the ledger when one is set.
type Server struct {
	ledger *Ledger
	log    *slog.Logger
}

// NewServer creates a storage server. ledger may be nil.
func NewServer(ledger *Ledger, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{ledger: ledger, log: log}
}

// Store implements the Store RPC
func (s *Server) Store(stream StoreServer) error {
	return s.receive("Store", stream)
}

// Replicate implements the Replicate RPC
func (s *Server) Replicate(stream ReplicateServer) error {
	return s.receive("Replicate", stream)
}

// Launch implements the Launch RPC
func (s *Server) Launch(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	s.record(ctx, Call{Method: "Launch", Instance: req.GetValue()})
	return wrapperspb.Bool(true), nil
}

// Heartbeat implements the Heartbeat RPC
func (s *Server) Heartbeat(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	s.record(ctx, Call{Method: "Heartbeat", Instance: req.GetValue()})
	return wrapperspb.Bool(true), nil
}

func (s *Server) receive(method string, stream grpc.ClientStreamingServer[wrapperspb.BytesValue, wrapperspb.BoolValue]) error {
	call := Call{Method: method, Instance: instanceFromContext(stream.Context())}
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		call.Chunks++
		call.Bytes += int64(len(chunk.GetValue()))
	}
	s.record(stream.Context(), call)
	return stream.SendAndClose(wrapperspb.Bool(true))
}

func (s *Server) record(ctx context.Context, c Call) {
	metrics.DFSCalls.WithLabelValues(c.Method).Inc()
	s.log.Info("Storage call", "method", c.Method, "instance", c.Instance, "chunks", c.Chunks, "bytes", c.Bytes)
	if s.ledger == nil {
		return
	}
	if _, err := s.ledger.Record(ctx, c); err != nil {
		s.log.Warn("Failed to record storage call", "method", c.Method, "error", err)
	}
}

func instanceFromContext(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if v := md.Get(InstanceMetadataKey); len(v) > 0 {
		return v[0]
	}
	return ""
}

// NewGRPCServer returns a gRPC server with the storage and health services
// registered.
func NewGRPCServer(srv DfsServer, opts ...grpc.ServerOption) *grpc.Server {
	grpcServer := grpc.NewServer(opts...)
	RegisterDfsServer(grpcServer, srv)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, hs)
	return grpcServer
}

// Service runs the storage server on Addr until its context is cancelled.
type Service struct {
	Addr   string
	Server *Server
	Logger *slog.Logger
}

// Serve listens on Addr and serves until ctx is cancelled.
func (s *Service) Serve(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("dfs: listen %s: %w", s.Addr, err)
	}
	return s.ServeListener(ctx, lis)
}

// ServeListener serves on lis until ctx is cancelled.
func (s *Service) ServeListener(ctx context.Context, lis net.Listener) error {
	log := s.Logger
	if log == nil {
		log = slog.Default()
	}
	grpcServer := NewGRPCServer(s.Server)
	stop := context.AfterFunc(ctx, grpcServer.GracefulStop)
	defer stop()

	log.Info("Storage service listening", "addr", lis.Addr())
	if err := grpcServer.Serve(lis); err != nil {
		return fmt.Errorf("dfs: serve: %w", err)
	}
	return nil
}
