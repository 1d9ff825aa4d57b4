package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/obby/libretto/config"
	"github.com/obby/libretto/internal/classify"
	"github.com/obby/libretto/internal/dfs"
	"github.com/obby/libretto/internal/fsevent"
	"github.com/obby/libretto/internal/hub"
	"github.com/obby/libretto/internal/patterns"
	"github.com/obby/libretto/internal/pubsub"
	"github.com/obby/libretto/internal/relay"
	"github.com/obby/libretto/internal/watcher"
	"github.com/thejerf/suture/v4"
)

type runCmd struct{}

func (*runCmd) Run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	mon, closeFn, err := newMonitor(cfg, log)
	if err != nil {
		return err
	}
	defer closeFn()

	return supervise(ctx, log, withMetrics(cfg, log,
		brokerService(cfg, log),
		fatalOnError("watcher", mon.Serve),
		relayService(cfg, log),
	)...)
}

type watchCmd struct{}

func (*watchCmd) Run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	mon, closeFn, err := newMonitor(cfg, log)
	if err != nil {
		return err
	}
	defer closeFn()

	return supervise(ctx, log, withMetrics(cfg, log,
		fatalOnError("watcher", mon.Serve),
	)...)
}

type relayCmd struct{}

func (*relayCmd) Run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	return supervise(ctx, log, withMetrics(cfg, log, relayService(cfg, log))...)
}

type brokerCmd struct{}

func (*brokerCmd) Run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	return supervise(ctx, log, withMetrics(cfg, log, brokerService(cfg, log))...)
}

type dfsCmd struct {
	NoLedger bool `name:"no-ledger" help:"Acknowledge calls without recording them"`
}

func (c *dfsCmd) Run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	var ledger *dfs.Ledger
	if !c.NoLedger {
		var err error
		ledger, err = dfs.OpenLedger(cfg.DFS.DBPath)
		if err != nil {
			return fmt.Errorf("dfs: open ledger %s: %w", cfg.DFS.DBPath, err)
		}
		defer ledger.Close()
	}

	svc := &dfs.Service{
		Addr:   cfg.DFS.Addr,
		Server: dfs.NewServer(ledger, log),
		Logger: log,
	}
	return supervise(ctx, log, withMetrics(cfg, log, fatalOnError("dfs", svc.Serve))...)
}

type storeCmd struct {
	Instance  string `arg:"" help:"Instance the image belongs to"`
	Image     string `arg:"" type:"existingfile" help:"Image file to upload"`
	Replicate bool   `help:"Send as replication data instead of a stored image"`
}

// Run uploads an image to the storage service, for checking a deployment by
// hand.
func (c *storeCmd) Run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	client, err := dfs.Dial(cfg.DFS.Addr)
	if err != nil {
		return err
	}
	defer client.Close()

	f, err := os.Open(c.Image)
	if err != nil {
		return err
	}
	defer f.Close()

	send, method := client.Store, "store"
	if c.Replicate {
		send, method = client.Replicate, "replicate"
	}
	if err := send(ctx, c.Instance, f); err != nil {
		return err
	}
	log.Info("Image acknowledged", "method", method, "instance", c.Instance, "image", c.Image)
	return nil
}

type launchCmd struct {
	Instance string `arg:"" help:"Instance to launch"`
}

func (c *launchCmd) Run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	client, err := dfs.Dial(cfg.DFS.Addr)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Launch(ctx, c.Instance); err != nil {
		return err
	}
	log.Info("Launch acknowledged", "instance", c.Instance)
	return nil
}

type tailCmd struct {
	Raw bool `help:"Print raw filesystem events instead of classified events"`
}

func (c *tailCmd) Run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	if c.Raw {
		return tail[fsevent.Event](ctx, cfg.SubscribeAddr, pubsub.FilesystemTopic, os.Stdout, log)
	}
	return tail[classify.LibrettoEvent](ctx, cfg.SubscribeAddr, pubsub.LibrettoTopic, os.Stdout, log)
}

// tail writes every message received on topic to w as one JSON line.
func tail[T any](ctx context.Context, addr, topic string, w io.Writer, log *slog.Logger) error {
	sub, err := pubsub.Subscribe[T](ctx, addr, topic)
	if err != nil {
		return err
	}
	defer sub.Close()
	sub.SetLogger(log)

	enc := json.NewEncoder(w)
	for {
		msgs, err := sub.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		for _, msg := range msgs {
			if err := enc.Encode(msg); err != nil {
				return err
			}
		}
	}
}

func withMetrics(cfg *config.Config, log *slog.Logger, services ...suture.Service) []suture.Service {
	if cfg.Metrics.Disabled {
		return services
	}
	return append(services, metricsService(cfg.Metrics.Addr, log))
}

func brokerService(cfg *config.Config, log *slog.Logger) suture.Service {
	b := &hub.Broker{
		PublishAddr:   cfg.PublishAddr,
		SubscribeAddr: cfg.SubscribeAddr,
		Logger:        log,
	}
	return fatalOnError("broker", b.ListenAndServe)
}

func relayService(cfg *config.Config, log *slog.Logger) suture.Service {
	c := &relay.Client{
		SubscribeAddr:  cfg.SubscribeAddr,
		PublishAddr:    cfg.PublishAddr,
		Layout:         cfg.Layout(),
		PublishTimeout: cfg.PublishTimeout,
		Logger:         log,
	}
	return restartable("relay", c.Serve)
}

// newMonitor builds the watcher side of the pipeline. The returned function
// releases resources that outlive a single Serve.
func newMonitor(cfg *config.Config, log *slog.Logger) (*watcher.Monitor, func(), error) {
	matcher, err := patterns.NewMatcher(patterns.DefaultDenylist(), cfg.Watch.IgnorePatterns)
	if err != nil {
		return nil, nil, err
	}
	layout := cfg.Layout()
	filter := patterns.NewFilter(layout, matcher)

	src, err := watcher.NewSource(cfg.Watch.Backend, skipSystemDirs(layout, matcher))
	if err != nil {
		return nil, nil, fmt.Errorf("watcher: %w", err)
	}
	if l, ok := src.(interface{ SetLogger(*slog.Logger) }); ok {
		l.SetLogger(log)
	}

	opts := watcher.Options{
		Root:              cfg.StoragePath,
		Source:            src,
		Filter:            filter,
		Dial:              watcher.PubsubDialer(cfg.PublishAddr, cfg.PublishTimeout),
		QueueCapacity:     cfg.QueueCapacity(),
		QueuePolicy:       cfg.QueuePolicy(),
		HeartbeatInterval: cfg.HeartbeatInterval,
		PublishTimeout:    cfg.PublishTimeout,
		Logger:            log,
	}
	closeFn := func() {}
	if cfg.DFS.Heartbeat {
		client, err := dfs.Dial(cfg.DFS.Addr)
		if err != nil {
			src.Close()
			return nil, nil, err
		}
		client.Node = cfg.DFS.Node
		opts.Heartbeater = client
		closeFn = func() { client.Close() }
	}
	return watcher.NewMonitor(opts), closeFn, nil
}

// skipSystemDirs reports directories inside an instance filesystem whose
// whole subtree is denylisted, so backends can avoid watching them.
func skipSystemDirs(layout patterns.Layout, matcher *patterns.Matcher) func(string) bool {
	return func(dir string) bool {
		loc, ok := layout.Resolve(dir)
		if !ok || loc.Rel == "/" {
			return false
		}
		return matcher.IsSystemPath(loc.Rel + "/")
	}
}
