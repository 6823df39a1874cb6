package schedule

import (
	"github.com/clambin/go-common/set"
	"github.com/stretchr/testify/assert"
	"log/slog"
	"testing"
)

func TestEvaluator_Evaluate(t *testing.T) {
	entries := []Entry{
		{Time: "09:00", Action: ActionOn},
		{Time: "22:00", Action: ActionOff},
	}

	tests := []struct {
		name       string
		nowMinutes int
		entries    []Entry
		fired      set.Set[string]
		wantOK     bool
		wantEntry  Entry
	}{
		{
			name:       "one minute early: nothing due",
			nowMinutes: 539,
			entries:    entries,
			fired:      set.New[string](),
			wantOK:     false,
		},
		{
			name:       "on the minute: entry fires",
			nowMinutes: 540,
			entries:    entries,
			fired:      set.New[string](),
			wantOK:     true,
			wantEntry:  Entry{Time: "09:00", Action: ActionOn},
		},
		{
			name:       "one minute late: stale entry does not fire",
			nowMinutes: 541,
			entries:    entries,
			fired:      set.New[string](),
			wantOK:     false,
		},
		{
			name:       "already fired today: suppressed",
			nowMinutes: 540,
			entries:    entries,
			fired:      set.New(MarkerKey("plug-1", Entry{Time: "09:00", Action: ActionOn}, "2025-06-01")),
			wantOK:     false,
		},
		{
			name:       "duplicate times in window: latest wins, ties to list order",
			nowMinutes: 540,
			entries: []Entry{
				{Time: "09:00", Action: ActionOff},
				{Time: "09:00", Action: ActionOn},
			},
			fired:     set.New[string](),
			wantOK:    true,
			wantEntry: Entry{Time: "09:00", Action: ActionOff},
		},
		{
			name:       "misconfigured entries are skipped",
			nowMinutes: 540,
			entries: []Entry{
				{Time: "9 am", Action: ActionOn},
				{Time: "09:00", Action: "toggle"},
				{Time: "09:00", Action: ActionOff},
			},
			fired:     set.New[string](),
			wantOK:    true,
			wantEntry: Entry{Time: "09:00", Action: ActionOff},
		},
		{
			name:       "no entries",
			nowMinutes: 540,
			entries:    nil,
			fired:      set.New[string](),
			wantOK:     false,
		},
	}

	ev := Evaluator{Logger: slog.Default()}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			firing, ok := ev.Evaluate(tt.nowMinutes, tt.entries, tt.fired, "2025-06-01", "plug-1")
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.wantEntry, firing.Entry)
				assert.Equal(t, MarkerKey("plug-1", tt.wantEntry, "2025-06-01"), firing.Key)
			}
		})
	}
}

func TestEvaluator_Evaluate_NoRefire(t *testing.T) {
	ev := Evaluator{Logger: slog.Default()}
	entries := []Entry{{Time: "09:00", Action: ActionOn}}
	fired := set.New[string]()

	firing, ok := ev.Evaluate(540, entries, fired, "2025-06-01", "plug-1")
	assert.True(t, ok)
	fired.Add(firing.Key)

	// second run in the same minute
	_, ok = ev.Evaluate(540, entries, fired, "2025-06-01", "plug-1")
	assert.False(t, ok)

	// next minute
	_, ok = ev.Evaluate(541, entries, fired, "2025-06-01", "plug-1")
	assert.False(t, ok)

	// a new day gets a new key
	_, ok = ev.Evaluate(540, entries, fired, "2025-06-02", "plug-1")
	assert.True(t, ok)
}
