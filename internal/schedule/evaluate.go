package schedule

import (
	"github.com/clambin/go-common/set"
	"log/slog"
)

// A Firing is the single entry that is due for execution right now, with the
// execution-marker key that dedupes it for the rest of the day.
type Firing struct {
	Entry Entry
	Key   string
}

// MarkerKey builds the per-day dedup key for a (device, entry) pair. A new
// day yields a new key; the key is never reused within a day.
func MarkerKey(deviceID string, e Entry, date string) string {
	return deviceID + "-" + e.Time + "-" + e.Action.String() + "-" + date
}

// An Evaluator determines which entry, if any, a device should execute at a
// given minute.
type Evaluator struct {
	Logger *slog.Logger
}

// Evaluate returns the entry due at nowMinutes (minutes since midnight) and
// true, or false if nothing is due. An entry is due if it falls within the
// most recent one-minute tick: entries hours in the past never fire, even if
// no trigger ran when they became due. If several entries land in the same
// window, the numerically latest wins; ties go to the earliest in the list.
// Entries whose key is already in fired are suppressed.
//
// Entries with an unparsable time or unknown action are skipped with a
// warning and do not affect the remaining entries.
func (ev Evaluator) Evaluate(nowMinutes int, entries []Entry, fired set.Set[string], date string, deviceID string) (Firing, bool) {
	best := -1
	var bestEntry Entry

	for _, entry := range entries {
		minutes, err := entry.Minutes()
		if err != nil {
			ev.Logger.Warn("skipping misconfigured schedule entry", "device", deviceID, "err", err)
			continue
		}
		if !entry.Action.Valid() {
			ev.Logger.Warn("skipping schedule entry with unknown action", "device", deviceID, "action", string(entry.Action))
			continue
		}
		if minutes <= nowMinutes && minutes > nowMinutes-1 && minutes > best {
			best = minutes
			bestEntry = entry
		}
	}

	if best < 0 {
		return Firing{}, false
	}

	key := MarkerKey(deviceID, bestEntry, date)
	if fired.Contains(key) {
		ev.Logger.Debug("entry already executed today", "device", deviceID, "entry", bestEntry.String())
		return Firing{}, false
	}
	return Firing{Entry: bestEntry, Key: key}, true
}
