// Package main provides nextstop, a terminal client for live departures and
// stopping patterns.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/nextstop/nextstop/internal/cache"
	"github.com/nextstop/nextstop/internal/provider/resilience"
	"github.com/nextstop/nextstop/internal/settings"
	"github.com/nextstop/nextstop/internal/transit"
	"github.com/nextstop/nextstop/internal/transit/ptv"
)

// Version is set at compile time via ldflags.
var Version = "dev"

// localOwner owns the preferences and recents of the local store.
const localOwner = "local"

func main() {
	_ = godotenv.Load()

	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "nextstop",
		Usage:   "Live departures and stopping patterns from the terminal",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "db",
				Usage:   "path of the local preferences database",
				EnvVars: []string{"NEXTSTOP_DB"},
				Value:   defaultDBPath(),
			},
			&cli.BoolFlag{
				Name:    "debug",
				Usage:   "log upstream requests",
				EnvVars: []string{"NEXTSTOP_DEBUG"},
			},
		},
		Commands: []*cli.Command{
			departuresCommand(),
			patternCommand(),
			searchCommand(),
			watchCommand(),
			recentsCommand(),
			settingsCommand(),
		},
	}
}

func defaultDBPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "nextstop.db"
	}
	return filepath.Join(dir, "nextstop", "nextstop.db")
}

// env is what every command works against.
type env struct {
	transit  *transit.Service
	settings *settings.Service
	logger   zerolog.Logger
	out      io.Writer

	close func() error
}

// openEnv wires the upstream client and the local store for one command.
func openEnv(c *cli.Context, needTransit bool) (*env, error) {
	level := zerolog.WarnLevel
	if c.Bool("debug") {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).
		With().
		Timestamp().
		Logger()

	path := c.String("db")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	repo, err := settings.OpenSQLite(path)
	if err != nil {
		return nil, err
	}

	e := &env{
		settings: settings.NewService(settings.ServiceConfig{
			Repository: repo,
			Logger:     logger,
		}),
		logger: logger,
		out:    c.App.Writer,
		close:  repo.Close,
	}

	if needTransit {
		ptvConfig, err := ptv.ConfigFromEnv()
		if err != nil {
			_ = repo.Close()
			return nil, err
		}
		httpConfig := resilience.DefaultClientConfig(ptv.ProviderName)
		httpConfig.Logger = logger
		ptvConfig.HTTPClient = resilience.NewClient(httpConfig)
		ptvConfig.Logger = logger

		e.transit = transit.NewService(transit.ServiceConfig{
			Provider: ptv.NewClient(ptvConfig),
			Cache:    cache.NewMemoryStore(),
			Logger:   logger,
		})
	}

	return e, nil
}

// resolveMode resolves the --mode flag, falling back to the stored default.
func (e *env) resolveMode(ctx context.Context, c *cli.Context) (transit.RouteType, error) {
	if !c.IsSet("mode") {
		return e.settings.DefaultMode(ctx, localOwner), nil
	}
	return transit.ParseRouteType(c.String("mode"))
}

// remember pushes item onto a recents list. Failures only warn.
func (e *env) remember(ctx context.Context, list string, item settings.RecentItem) {
	if _, err := e.settings.PushRecent(ctx, localOwner, list, item, 0); err != nil {
		e.logger.Warn().Err(err).Str("list", list).Msg("could not record recent item")
	}
}
