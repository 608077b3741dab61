package pattern

// Row is one rendered line of a pattern. Summary rows have a nil Entry and a
// non-nil Skipped.
type Row struct {
	Entry   *Entry
	Kind    StopKind
	Next    bool
	Skipped *SkippedRange
}

// SkippedRange summarises entries hidden in a collapsed layout.
type SkippedRange struct {
	Count int
	Stops []string
}

// LayoutOptions selects the view.
type LayoutOptions struct {
	// Expanded shows every entry.
	Expanded bool

	// FromStop is the stop the pattern was opened from (0 for none). In the
	// expanded view, entries before it that are not always shown are
	// marked OutOfRange.
	FromStop int
}

// Layout produces the rows for entries at pos.
func Layout(entries []Entry, pos Position, opts LayoutOptions) []Row {
	if len(entries) == 0 {
		return nil
	}
	if opts.Expanded {
		return expanded(entries, pos, opts.FromStop)
	}
	return collapsed(entries, pos)
}

// alwaysShown returns the indices rendered in every view.
func alwaysShown(entries []Entry, pos Position) map[int]bool {
	shown := map[int]bool{0: true, len(entries) - 1: true}
	for _, i := range []int{pos.Previous, pos.Next, pos.Following} {
		if i >= 0 {
			shown[i] = true
		}
	}
	return shown
}

func expanded(entries []Entry, pos Position, fromStop int) []Row {
	shown := alwaysShown(entries, pos)

	boarding := -1
	if fromStop != 0 {
		for i := range entries {
			if entries[i].Stop.ID == fromStop && !entries[i].Kind.IsSkipped() {
				boarding = i
				break
			}
		}
	}

	rows := make([]Row, 0, len(entries))
	for i := range entries {
		kind := entries[i].Kind
		if i < boarding && !shown[i] {
			kind = KindOutOfRange
		}
		rows = append(rows, Row{
			Entry: &entries[i],
			Kind:  kind,
			Next:  i == pos.Next,
		})
	}
	return rows
}

func collapsed(entries []Entry, pos Position) []Row {
	last := len(entries) - 1

	if !pos.HasNext() {
		rows := []Row{{Entry: &entries[0], Kind: entries[0].Kind}}
		if last > 0 {
			rows = append(rows, Row{Entry: &entries[last], Kind: entries[last].Kind})
		}
		return rows
	}

	shown := alwaysShown(entries, pos)
	rows := make([]Row, 0, len(shown)+2)

	for i := range entries {
		if !shown[i] {
			continue
		}

		if i == pos.Next && pos.Previous >= 0 {
			rows = appendSummary(rows, entries, pos.Previous, pos.Next, shown)
		}

		kind := entries[i].Kind
		switch {
		case i == pos.Previous && kind == KindStop:
			kind = KindContinuesBefore
		case i == pos.Following && kind == KindStop:
			kind = KindContinuesAfter
		}
		rows = append(rows, Row{
			Entry: &entries[i],
			Kind:  kind,
			Next:  i == pos.Next,
		})

		if i == pos.Next && pos.Following >= 0 {
			rows = appendSummary(rows, entries, pos.Next, pos.Following, shown)
		}
	}

	return rows
}

// appendSummary adds a summary row for hidden entries strictly between from
// and to, if there are any.
func appendSummary(rows []Row, entries []Entry, from, to int, shown map[int]bool) []Row {
	var names []string
	for i := from + 1; i < to; i++ {
		if !shown[i] {
			names = append(names, entries[i].Stop.Name)
		}
	}
	if len(names) == 0 {
		return rows
	}
	return append(rows, Row{
		Kind:    KindSkipped,
		Skipped: &SkippedRange{Count: len(names), Stops: names},
	})
}
