package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/nextstop/nextstop/internal/pattern"
	"github.com/nextstop/nextstop/internal/settings"
	"github.com/nextstop/nextstop/internal/transit"
)

func modeFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "mode",
		Aliases: []string{"m"},
		Usage:   "train, tram, bus, vline or nightbus (default: the stored default_mode)",
	}
}

func departuresCommand() *cli.Command {
	return &cli.Command{
		Name:      "departures",
		Aliases:   []string{"d"},
		Usage:     "Show upcoming departures from a stop",
		ArgsUsage: "STOP_ID",
		Flags: []cli.Flag{
			modeFlag(),
			&cli.IntFlag{Name: "max", Usage: "departures per route (default: the stored max_results)"},
			&cli.StringSliceFlag{Name: "platform", Aliases: []string{"p"}, Usage: "only these platforms"},
		},
		Action: func(c *cli.Context) error {
			stopID, err := strconv.Atoi(c.Args().First())
			if err != nil || stopID <= 0 {
				return errors.New("a numeric STOP_ID is required")
			}

			e, err := openEnv(c, true)
			if err != nil {
				return err
			}
			defer e.close() //nolint:errcheck // read-mostly store

			ctx := c.Context
			mode, err := e.resolveMode(ctx, c)
			if err != nil {
				return err
			}

			maxResults := c.Int("max")
			if !c.IsSet("max") {
				maxResults = e.settings.Int(ctx, localOwner, settings.KeyMaxResults, 5)
			}

			resp, err := e.transit.Departures(ctx, mode, stopID, transit.DeparturesOptions{
				MaxResults: maxResults,
				Platforms:  c.StringSlice("platform"),
			})
			if err != nil {
				return err
			}

			renderDepartures(e.out, resp, stopID, mode, time.Now())

			if stop, ok := resp.Stops[stopID]; ok && stop.Name != "" {
				e.remember(ctx, settings.ListStops, settings.RecentItem{
					Key:      strconv.Itoa(stopID),
					Title:    stop.Name,
					Subtitle: mode.String(),
					Ref:      strconv.Itoa(stopID),
				})
			}
			return nil
		},
	}
}

func patternCommand() *cli.Command {
	return &cli.Command{
		Name:      "pattern",
		Aliases:   []string{"p"},
		Usage:     "Show the stopping pattern of a run",
		ArgsUsage: "RUN_REF",
		Flags: []cli.Flag{
			modeFlag(),
			&cli.BoolFlag{Name: "expanded", Aliases: []string{"e"}, Usage: "show every stop (default: the stored expanded_pattern)"},
			&cli.IntFlag{Name: "from", Usage: "stop the pattern was opened from"},
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

			ctx := c.Context
			mode, err := e.resolveMode(ctx, c)
			if err != nil {
				return err
			}

			resp, err := e.transit.Pattern(ctx, runRef, mode)
			if err != nil {
				return err
			}

			now := time.Now()
			snap := pattern.NewSnapshot(resp, runRef, now)
			renderPattern(e.out, snap, mode, e.layout(c), now)

			if snap.Run != nil {
				e.remember(ctx, settings.ListRuns, settings.RecentItem{
					Key:      runRef,
					Title:    snap.Run.DestinationName,
					Subtitle: mode.String(),
					Ref:      runRef,
				})
			}
			return nil
		},
	}
}

// layout reads --expanded and --from, defaulting expanded to the stored
// preference.
func (e *env) layout(c *cli.Context) pattern.LayoutOptions {
	expanded := c.Bool("expanded")
	if !c.IsSet("expanded") {
		expanded = e.settings.Bool(c.Context, localOwner, settings.KeyExpandedPattern, false)
	}
	return pattern.LayoutOptions{Expanded: expanded, FromStop: c.Int("from")}
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Aliases:   []string{"s"},
		Usage:     "Find stops and routes",
		ArgsUsage: "TERM...",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "modes", Usage: "limit to these modes"},
		},
		Action: func(c *cli.Context) error {
			term := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if term == "" {
				return errors.New("a search TERM is required")
			}

			var modes []transit.RouteType
			for _, raw := range c.StringSlice("modes") {
				rt, err := transit.ParseRouteType(raw)
				if err != nil {
					return err
				}
				modes = append(modes, rt)
			}

			e, err := openEnv(c, true)
			if err != nil {
				return err
			}
			defer e.close() //nolint:errcheck // read-mostly store

			result, err := e.transit.Search(c.Context, term, modes)
			if err != nil {
				return err
			}

			renderSearch(e.out, result)
			e.remember(c.Context, settings.ListSearches, settings.RecentItem{Key: strings.ToLower(term), Title: term})
			return nil
		},
	}
}

func recentsCommand() *cli.Command {
	listFlag := func() cli.Flag {
		return &cli.StringFlag{
			Name:  "list",
			Usage: "stops, runs or searches",
			Value: settings.ListStops,
		}
	}

	return &cli.Command{
		Name:  "recents",
		Usage: "Show or clear recently used stops, runs and searches",
		Flags: []cli.Flag{listFlag()},
		Action: func(c *cli.Context) error {
			e, err := openEnv(c, false)
			if err != nil {
				return err
			}
			defer e.close() //nolint:errcheck // read-mostly store

			items, err := e.settings.Recents(c.Context, localOwner, c.String("list"))
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Fprintln(e.out, "Nothing recent.")
				return nil
			}

			tbl := newTable(e.out, "Key", "Title", "Detail", "Used")
			for _, it := range items {
				tbl.AddRow(it.Key, it.Title, it.Subtitle, it.AddedAt.Local().Format("2006-01-02 15:04"))
			}
			tbl.Print()
			return nil
		},
		Subcommands: []*cli.Command{
			{
				Name:  "clear",
				Usage: "Empty a recents list",
				Flags: []cli.Flag{listFlag()},
				Action: func(c *cli.Context) error {
					e, err := openEnv(c, false)
					if err != nil {
						return err
					}
					defer e.close() //nolint:errcheck // closed after the write

					return e.settings.ClearRecents(c.Context, localOwner, c.String("list"))
				},
			},
		},
	}
}

func settingsCommand() *cli.Command {
	return &cli.Command{
		Name:  "settings",
		Usage: "Show or change local preferences",
		Action: func(c *cli.Context) error {
			e, err := openEnv(c, false)
			if err != nil {
				return err
			}
			defer e.close() //nolint:errcheck // read-mostly store

			prefs, err := e.settings.List(c.Context, localOwner)
			if err != nil {
				return err
			}

			keys := make([]string, 0, len(prefs))
			for k := range prefs {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			tbl := newTable(e.out, "Key", "Value", "Source")
			for _, k := range keys {
				source := "set"
				if prefs[k].UpdatedAt.IsZero() {
					source = "default"
				}
				tbl.AddRow(k, prefs[k].Value, source)
			}
			tbl.Print()
			return nil
		},
		Subcommands: []*cli.Command{
			{
				Name:      "set",
				Usage:     "Set a preference",
				ArgsUsage: "KEY VALUE",
				Action: func(c *cli.Context) error {
					if c.NArg() != 2 {
						return errors.New("usage: nextstop settings set KEY VALUE")
					}

					e, err := openEnv(c, false)
					if err != nil {
						return err
					}
					defer e.close() //nolint:errcheck // closed after the write

					pref, err := e.settings.Put(c.Context, localOwner, c.Args().Get(0), parseValue(c.Args().Get(1)))
					if err != nil {
						return err
					}
					fmt.Fprintf(e.out, "%s = %v\n", pref.Key, pref.Value)
					return nil
				},
			},
			{
				Name:      "reset",
				Usage:     "Revert a preference to its default",
				ArgsUsage: "KEY",
				Action: func(c *cli.Context) error {
					e, err := openEnv(c, false)
					if err != nil {
						return err
					}
					defer e.close() //nolint:errcheck // closed after the write

					err = e.settings.Delete(c.Context, localOwner, c.Args().First())
					if errors.Is(err, settings.ErrPreferenceNotFound) {
						return nil
					}
					return err
				},
			},
		},
	}
}

// parseValue reads a command-line value as JSON (true, 5, "x"), falling
// back to the raw string.
func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}
