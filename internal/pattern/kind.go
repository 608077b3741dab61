// Package pattern builds the stopping pattern of a run, locates the vehicle
// within it and lays it out as collapsed or expanded rows.
package pattern

import "fmt"

// StopKind classifies a pattern entry for display.
type StopKind int

// Stop kinds. ContinuesBefore and ContinuesAfter only appear in collapsed
// layouts; OutOfRange only in expanded layouts opened from a boarding stop.
const (
	KindFirst StopKind = iota + 1
	KindLast
	KindStop
	KindSkipped
	KindSkippedWithArrow
	KindOutOfRange
	KindContinuesBefore
	KindContinuesAfter
)

var kindNames = [...]string{
	KindFirst:            "first",
	KindLast:             "last",
	KindStop:             "stop",
	KindSkipped:          "skipped",
	KindSkippedWithArrow: "skipped_with_arrow",
	KindOutOfRange:       "out_of_range",
	KindContinuesBefore:  "continues_before",
	KindContinuesAfter:   "continues_after",
}

// String returns the snake_case kind name.
func (k StopKind) String() string {
	if k > 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("StopKind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k StopKind) MarshalText() ([]byte, error) {
	if k <= 0 || int(k) >= len(kindNames) {
		return nil, fmt.Errorf("invalid stop kind %d", int(k))
	}
	return []byte(kindNames[k]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *StopKind) UnmarshalText(b []byte) error {
	for i, name := range kindNames {
		if i > 0 && name == string(b) {
			*k = StopKind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown stop kind %q", string(b))
}

// IsSkipped reports whether the run passes the stop without calling.
func (k StopKind) IsSkipped() bool {
	return k == KindSkipped || k == KindSkippedWithArrow
}

// callsBefore reports whether k can be the previous real stop.
func (k StopKind) callsBefore() bool {
	return k == KindStop || k == KindFirst
}

// callsAfter reports whether k can be the following real stop.
func (k StopKind) callsAfter() bool {
	return k == KindStop || k == KindLast
}
