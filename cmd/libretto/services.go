package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/obby/libretto/internal/metrics"
	"github.com/thejerf/suture/v4"
)

const serviceTimeout = 10 * time.Second

// fatalErr marks a setup failure that must take the whole process down
// instead of being retried by the supervisor.
type fatalErr struct {
	service string
	err     error
}

func (e *fatalErr) Error() string {
	return fmt.Sprintf("%s: %v", e.service, e.err)
}

func (e *fatalErr) Unwrap() error {
	return e.err
}

func (e *fatalErr) Is(target error) bool {
	return target == suture.ErrTerminateSupervisorTree
}

// service adapts a serve function to suture.Service.
type service struct {
	name  string
	serve func(ctx context.Context) error
	// fatal makes any error returned by serve terminate the tree.
	fatal bool
}

func (s *service) Serve(ctx context.Context) error {
	err := s.serve(ctx)
	if err != nil && s.fatal && ctx.Err() == nil {
		return &fatalErr{service: s.name, err: err}
	}
	return err
}

func (s *service) String() string {
	return s.name
}

// restartable returns a service the supervisor restarts with backoff when it
// fails.
func restartable(name string, fn func(ctx context.Context) error) suture.Service {
	return &service{name: name, serve: fn}
}

// fatalOnError returns a service whose failure stops the process.
func fatalOnError(name string, fn func(ctx context.Context) error) suture.Service {
	return &service{name: name, serve: fn, fatal: true}
}

// supervise runs services under one supervisor until ctx is cancelled or a
// service fails fatally.
func supervise(ctx context.Context, log *slog.Logger, services ...suture.Service) error {
	sup := suture.New("libretto", suture.Spec{
		EventHook: func(e suture.Event) {
			log.Warn("Service event", "event", e.String())
		},
		Timeout: serviceTimeout,
	})
	for _, svc := range services {
		sup.Add(svc)
	}

	err := sup.Serve(ctx)
	var ferr *fatalErr
	if errors.As(err, &ferr) {
		return ferr
	}
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// metricsService serves the prometheus endpoint.
func metricsService(addr string, log *slog.Logger) suture.Service {
	return fatalOnError("metrics", func(ctx context.Context) error {
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return err
		}

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.HandleFunc("/ping", func(w http.ResponseWriter, req *http.Request) {
			w.Write([]byte("OK"))
		})
		srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

		stop := context.AfterFunc(ctx, func() {
			sctx, cancel := context.WithTimeout(context.Background(), serviceTimeout)
			defer cancel()
			srv.Shutdown(sctx)
		})
		defer stop()

		log.Info("Metrics listening", "addr", lis.Addr())
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
}
