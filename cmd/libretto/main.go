// Command libretto watches container and VM filesystem state, classifies each
// change into a VMM action and relays it over the pub/sub wire protocol.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/obby/libretto/config"
	"github.com/obby/libretto/internal/logutil"
)

type CLI struct {
	Config   string `name:"config" placeholder:"PATH" env:"LIBRETTO_CONFIG" help:"YAML configuration file. Without it, configuration comes from the environment and .env."`
	LogLevel string `name:"log-level" placeholder:"LEVEL" help:"Override the configured log level (debug, info, warn, error)."`

	Run    runCmd    `cmd:"" default:"1" help:"Run broker, watcher and relay in one process"`
	Watch  watchCmd  `cmd:"" help:"Watch the storage root and publish filesystem events"`
	Relay  relayCmd  `cmd:"" help:"Classify filesystem events and publish libretto events"`
	Broker brokerCmd `cmd:"" help:"Run the topic broker"`
	DFS    dfsCmd    `cmd:"" name:"dfs" help:"Run the storage endpoint"`
	Tail   tailCmd   `cmd:"" help:"Print events from the broker as JSON lines"`
	Store  storeCmd  `cmd:"" help:"Upload an image to the storage service"`
	Launch launchCmd `cmd:"" help:"Ask the storage service to launch an instance"`
}

func (cli *CLI) AfterApply(kongCtx *kong.Context) error {
	var cfg *config.Config
	var err error
	if cli.Config != "" {
		cfg, err = config.Load(cli.Config)
	} else {
		cfg, err = config.LoadConfig()
	}
	if err != nil {
		return err
	}
	if cli.LogLevel != "" {
		cfg.LogLevel = cli.LogLevel
	}

	logger, err := logutil.New(cfg.LogLevel, os.Stderr)
	if err != nil {
		return fmt.Errorf("command line options: %w", err)
	}
	slog.SetDefault(logger)

	kongCtx.Bind(cfg, logger)
	return nil
}

func main() {
	var cli CLI
	kongCtx := kong.Parse(&cli,
		kong.Name("libretto"),
		kong.Description("Filesystem change relay for container and VM storage."),
		kong.UsageOnError(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	kongCtx.BindTo(ctx, (*context.Context)(nil))

	kongCtx.FatalIfErrorf(kongCtx.Run())
}
