// Package schedule evaluates per-device time/action lists against the
// current time. Evaluation is pure: all state (fired markers, device state)
// is owned by the caller.
package schedule

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Action is the state a schedule entry wants the device in.
type Action string

const (
	ActionOn  Action = "on"
	ActionOff Action = "off"
)

func (a Action) Valid() bool {
	return a == ActionOn || a == ActionOff
}

// IsOn reports the target power state for the action.
func (a Action) IsOn() bool {
	return a == ActionOn
}

func (a Action) String() string {
	return string(a)
}

// An Entry switches a device on or off at a time of day ("HH:MM").
// Entries belong to a (device, situation) pair. Order in the list is not
// meaningful: consumers compare on minutes since midnight.
type Entry struct {
	Time   string `json:"time" yaml:"time"`
	Action Action `json:"action" yaml:"action"`
}

// Minutes converts the entry's time of day to minutes since midnight.
func (e Entry) Minutes() (int, error) {
	hh, mm, found := strings.Cut(e.Time, ":")
	if !found {
		return 0, fmt.Errorf("invalid time %q", e.Time)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q", e.Time)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q", e.Time)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("time %q out of range", e.Time)
	}
	return h*60 + m, nil
}

func (e Entry) String() string {
	return e.Action.String() + " at " + e.Time
}

// Sorted returns the entries ordered by time of day. Entries with an
// unparsable time sort last, preserving their relative order.
func Sorted(entries []Entry) []Entry {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, errA := sorted[i].Minutes()
		b, errB := sorted[j].Minutes()
		if errA != nil || errB != nil {
			return errB != nil && errA == nil
		}
		return a < b
	})
	return sorted
}
