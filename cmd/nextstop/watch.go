package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/nextstop/nextstop/internal/pattern"
	"github.com/nextstop/nextstop/internal/settings"
	"github.com/nextstop/nextstop/internal/transit"
	"github.com/nextstop/nextstop/internal/watch"
)

const clearScreen = "\033[H\033[2J"

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Aliases:   []string{"w"},
		Usage:     "Follow a run live (p pause, r resume, e expand, q quit; then Enter)",
		ArgsUsage: "RUN_REF",
		Flags: []cli.Flag{
			modeFlag(),
			&cli.BoolFlag{Name: "expanded", Aliases: []string{"e"}, Usage: "start expanded (default: the stored expanded_pattern)"},
			&cli.IntFlag{Name: "from", Usage: "stop the pattern was opened from"},
			&cli.DurationFlag{Name: "interval", Usage: "delay between refreshes", Value: 30 * time.Second},
		},
		Action: func(c *cli.Context) error {
			runRef := strings.TrimSpace(c.Args().First())
			if runRef == "" {
				return errors.New("RUN_REF is required")
			}

			e, err := openEnv(c, true)
			if err != nil {
				return err
			}
			defer e.close() //nolint:errcheck // read-mostly store

			mode, err := e.resolveMode(c.Context, c)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			e.remember(ctx, settings.ListRuns, settings.RecentItem{Key: runRef, Title: "Run " + runRef, Subtitle: mode.String(), Ref: runRef})

			s := &liveScreen{
				out:    e.out,
				mode:   mode,
				layout: e.layout(c),
			}
			return s.run(ctx, e.transit, runRef, c.Duration("interval"), c.App.Reader, e.logger)
		},
	}
}

// liveScreen redraws a pattern on every refresh and on key presses.
type liveScreen struct {
	out  io.Writer
	mode transit.RouteType

	mu     sync.Mutex
	layout pattern.LayoutOptions
	last   *pattern.Snapshot
	status string
}

func (s *liveScreen) run(ctx context.Context, source watch.PatternSource, runRef string, interval time.Duration, in io.Reader, logger zerolog.Logger) error {
	w := watch.NewWatcher(watch.WatcherConfig[*pattern.Snapshot]{
		Name:     "run " + runRef,
		Interval: interval,
		Fetch: func(ctx context.Context) (*pattern.Snapshot, error) {
			resp, err := source.FreshPattern(ctx, runRef, s.mode)
			if err != nil {
				return nil, err
			}
			return pattern.NewSnapshot(resp, runRef, time.Now()), nil
		},
		OnUpdate: s.update,
		Logger:   logger,
	})
	w.Start(ctx)
	defer w.Stop()

	keys := readKeys(ctx, in)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.Done():
			return nil
		case key, ok := <-keys:
			if !ok {
				// Input ended; keep refreshing until interrupted.
				keys = nil
				continue
			}
			if quit := s.handleKey(w, key); quit {
				return nil
			}
		}
	}
}

// handleKey applies one key press and reports whether to quit.
func (s *liveScreen) handleKey(w *watch.Watcher[*pattern.Snapshot], key string) bool {
	switch key {
	case "q":
		return true
	case "p":
		w.SetVisible(false)
		s.setStatus("paused")
	case "r":
		w.SetVisible(true)
		s.setStatus("")
	case "e":
		s.mu.Lock()
		s.layout.Expanded = !s.layout.Expanded
		s.mu.Unlock()
		s.redraw()
	}
	return false
}

func (s *liveScreen) update(snap *pattern.Snapshot) {
	s.mu.Lock()
	s.last = snap
	s.mu.Unlock()
	s.redraw()
}

func (s *liveScreen) setStatus(status string) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
	s.redraw()
}

func (s *liveScreen) redraw() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.last == nil {
		return
	}
	fmt.Fprint(s.out, clearScreen)
	renderPattern(s.out, s.last, s.mode, s.layout, time.Now())

	fmt.Fprintln(s.out)
	if s.status != "" {
		fmt.Fprintf(s.out, "[%s] ", s.status)
	}
	fmt.Fprintf(s.out, "updated %s  p pause  r resume  e expand  q quit\n", s.last.BuiltAt.Local().Format("15:04:05"))
}

// readKeys delivers trimmed, lower-cased input lines until in is exhausted
// or ctx is done, then closes the channel.
func readKeys(ctx context.Context, in io.Reader) <-chan string {
	keys := make(chan string)
	go func() {
		defer close(keys)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case keys <- strings.ToLower(strings.TrimSpace(scanner.Text())):
			case <-ctx.Done():
				return
			}
		}
	}()
	return keys
}
