package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/rodaine/table"

	"github.com/nextstop/nextstop/internal/fleet"
	"github.com/nextstop/nextstop/internal/livery"
	"github.com/nextstop/nextstop/internal/pattern"
	"github.com/nextstop/nextstop/internal/transit"
)

const clockFormat = "15:04"

func newTable(w io.Writer, headers ...interface{}) table.Table {
	return table.New(headers...).WithWriter(w)
}

// renderDepartures prints the departures board of one stop, soonest first.
func renderDepartures(w io.Writer, resp *transit.Departures, stopID int, mode transit.RouteType, now time.Time) {
	if stop, ok := resp.Stops[stopID]; ok && stop.Name != "" {
		fmt.Fprintf(w, "%s (%s)\n\n", stop.Name, mode)
	}

	deps := append([]transit.Departure(nil), resp.Departures...)
	sort.SliceStable(deps, func(i, j int) bool {
		return deps[i].EstimatedOrScheduled().Before(deps[j].EstimatedOrScheduled())
	})

	if len(deps) == 0 {
		fmt.Fprintln(w, "No departures.")
		return
	}

	tbl := newTable(w, "Due", "Time", "Route", "Destination", "Plat", "Notes")
	for i := range deps {
		d := &deps[i]
		timing := d.TimingAt(mode, now)

		route := resp.Routes[d.RouteID]
		routeName := route.Number
		if routeName == "" {
			routeName = route.Name
		}

		var destination string
		var notes []string
		if run, ok := resp.Run(d.RunRef); ok {
			destination = run.DestinationName
			notes = runNotes(run, mode)
		}
		if timing.Delay != nil && *timing.Delay >= time.Minute {
			notes = append(notes, fmt.Sprintf("+%d min", int(timing.Delay.Minutes())))
		}

		tbl.AddRow(timing.Display, d.EstimatedOrScheduled().Local().Format(clockFormat), routeName, destination, d.Platform, strings.Join(notes, ", "))
	}
	tbl.Print()
}

// runNotes lists the run flags worth showing next to a departure.
func runNotes(run *transit.Run, mode transit.RouteType) []string {
	var notes []string
	if run.IsCancelled() {
		notes = append(notes, "cancelled")
	}
	if run.IsExpress() {
		notes = append(notes, "express")
	}
	if run.Vehicle != nil {
		r := *run
		r.RouteType = mode
		if class, ok := fleet.ClassifyRun(&r); ok {
			notes = append(notes, class.Name)
		}
	}
	return notes
}

// renderPattern prints a pattern snapshot laid out with opts.
func renderPattern(w io.Writer, snap *pattern.Snapshot, mode transit.RouteType, opts pattern.LayoutOptions, now time.Time) {
	if run := snap.Run; run != nil {
		colour := livery.For(mode, run.RouteID).Colour
		header := fmt.Sprintf("Run %s to %s [%s]", snap.RunRef, run.DestinationName, colour)
		if notes := runNotes(run, mode); len(notes) > 0 {
			header += " (" + strings.Join(notes, ", ") + ")"
		}
		fmt.Fprintln(w, header)
	} else {
		fmt.Fprintf(w, "Run %s\n", snap.RunRef)
	}
	if snap.Completed() {
		fmt.Fprintln(w, "This service has completed its run.")
	}
	fmt.Fprintln(w)

	tbl := newTable(w, "", "Stop", "Time", "Due", "Plat")
	for _, row := range snap.Rows(opts) {
		if row.Skipped != nil {
			tbl.AddRow("  ⋮", fmt.Sprintf("%d stops", row.Skipped.Count), "", "", "")
			continue
		}
		e := row.Entry
		if e.Kind.IsSkipped() {
			tbl.AddRow(kindGlyph(row.Kind, row.Next), e.Stop.Name+" (skipped)", "", "", "")
			continue
		}
		timing := e.Departure.TimingAt(mode, now)
		tbl.AddRow(kindGlyph(row.Kind, row.Next), e.Stop.Name, e.Time().Local().Format(clockFormat), timing.Display, e.Departure.Platform)
	}
	tbl.Print()
}

// kindGlyph draws the line diagram cell for a row.
func kindGlyph(kind pattern.StopKind, next bool) string {
	marker := " "
	if next {
		marker = "▶"
	}
	switch kind {
	case pattern.KindFirst:
		return marker + " ┬"
	case pattern.KindLast:
		return marker + " ┴"
	case pattern.KindSkipped:
		return marker + " │"
	case pattern.KindSkippedWithArrow:
		return marker + " ↓"
	case pattern.KindOutOfRange:
		return marker + " ·"
	case pattern.KindContinuesBefore, pattern.KindContinuesAfter:
		return marker + " ╎"
	default:
		return marker + " ●"
	}
}

// renderSearch prints matching stops and routes.
func renderSearch(w io.Writer, result *transit.SearchResult) {
	if len(result.Stops) == 0 && len(result.Routes) == 0 {
		fmt.Fprintln(w, "No matches.")
		return
	}

	if len(result.Stops) > 0 {
		tbl := newTable(w, "Stop ID", "Name", "Suburb", "Mode")
		for _, s := range result.Stops {
			tbl.AddRow(s.ID, s.Name, s.Suburb, s.RouteType)
		}
		tbl.Print()
	}

	if len(result.Routes) > 0 {
		if len(result.Stops) > 0 {
			fmt.Fprintln(w)
		}
		tbl := newTable(w, "Route ID", "Number", "Name", "Mode")
		for _, r := range result.Routes {
			tbl.AddRow(r.ID, r.Number, r.Name, r.Type)
		}
		tbl.Print()
	}
}
