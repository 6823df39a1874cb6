package dutycycle

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/homectl/plugsched/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type command struct {
	deviceID string
	code     string
	on       bool
}

type fakeCommander struct {
	commands []command
	err      error
}

func (f *fakeCommander) SendCommand(_ context.Context, deviceID string, code string, on bool) error {
	if f.err != nil {
		return f.err
	}
	f.commands = append(f.commands, command{deviceID: deviceID, code: code, on: on})
	return nil
}

func testEngine(s store.Store, commander DeviceCommander, now time.Time) *Engine {
	e := NewEngine(s, commander, "aircon", "switch_1", slog.New(slog.DiscardHandler))
	e.now = func() time.Time { return now }
	return e
}

func TestEngine_StartStop(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemStore()
	commander := &fakeCommander{}
	now := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	e := testEngine(s, commander, now)

	require.Error(t, e.Start(ctx, 0, 20*time.Minute))

	require.NoError(t, e.Start(ctx, 3*time.Minute, 20*time.Minute))
	require.Len(t, commander.commands, 1)
	assert.Equal(t, command{deviceID: "aircon", code: "switch_1", on: true}, commander.commands[0])

	cfg, found, err := s.GetIntervalConfig("aircon")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, cfg.IsActive)
	require.NotNil(t, cfg.StartTime)
	assert.True(t, now.Equal(*cfg.StartTime))
	require.NotNil(t, cfg.LastApplied)
	assert.True(t, *cfg.LastApplied)

	// stop always sends the off command, even mid on-phase
	require.NoError(t, e.Stop(ctx))
	require.Len(t, commander.commands, 2)
	assert.False(t, commander.commands[1].on)

	cfg, _, err = s.GetIntervalConfig("aircon")
	require.NoError(t, err)
	assert.False(t, cfg.IsActive)
	assert.Nil(t, cfg.StartTime)
	assert.Nil(t, cfg.LastApplied)
}

func TestEngine_Tick(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		cfg          store.IntervalConfig
		at           time.Time
		wantCommands int
		wantOn       bool
	}{
		{
			name: "no transition while phase matches last applied",
			cfg:  activeConfig(start, true, start),
			at:   start.Add(61 * time.Second),
		},
		{
			name:         "transition to off",
			cfg:          activeConfig(start, true, start),
			at:           start.Add(181 * time.Second),
			wantCommands: 1,
			wantOn:       false,
		},
		{
			name:         "transition to on in second cycle",
			cfg:          activeConfig(start, false, start.Add(3*time.Minute)),
			at:           start.Add(23*time.Minute + time.Second),
			wantCommands: 1,
			wantOn:       true,
		},
		{
			name: "debounce suppresses the command",
			cfg:  activeConfig(start, true, start.Add(179*time.Second)),
			at:   start.Add(181 * time.Second),
		},
		{
			name: "inactive config is a no-op",
			cfg:  store.IntervalConfig{DeviceID: "aircon"},
			at:   start.Add(time.Second),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := store.NewMemStore()
			require.NoError(t, s.UpsertIntervalConfig(tt.cfg))
			commander := &fakeCommander{}
			e := testEngine(s, commander, tt.at)

			require.NoError(t, e.tick(ctx))
			require.Len(t, commander.commands, tt.wantCommands)
			if tt.wantCommands > 0 {
				assert.Equal(t, tt.wantOn, commander.commands[0].on)
				cfg, _, err := s.GetIntervalConfig("aircon")
				require.NoError(t, err)
				require.NotNil(t, cfg.LastApplied)
				assert.Equal(t, tt.wantOn, *cfg.LastApplied)
				assert.True(t, tt.at.Equal(cfg.LastCommandAt))
			}
		})
	}
}

func TestEngine_ResumeDoesNotReissue(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	s := store.NewMemStore()
	commander := &fakeCommander{}
	e := testEngine(s, commander, start)

	require.NoError(t, e.Start(ctx, 3*time.Minute, 20*time.Minute))
	require.Len(t, commander.commands, 1)

	// a fresh engine (process restart) one minute in: still the on phase,
	// so nothing to reissue
	restarted := testEngine(s, commander, start.Add(time.Minute))
	require.NoError(t, restarted.tick(ctx))
	assert.Len(t, commander.commands, 1)
}

func TestEngine_TickWritesHeartbeat(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	s := store.NewMemStore()
	e := testEngine(s, &fakeCommander{}, start.Add(time.Minute))
	require.NoError(t, s.UpsertIntervalConfig(activeConfig(start, true, start)))

	_, found, err := HeartbeatAge(s, start)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, e.tick(ctx))

	age, found, err := HeartbeatAge(s, start.Add(90*time.Second))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 30*time.Second, age)
}

func TestEngine_Status(t *testing.T) {
	start := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	s := store.NewMemStore()
	e := testEngine(s, &fakeCommander{}, start.Add(time.Minute))

	_, _, active, err := e.Status()
	require.NoError(t, err)
	assert.False(t, active)

	require.NoError(t, s.UpsertIntervalConfig(activeConfig(start, true, start)))
	cfg, phase, active, err := e.Status()
	require.NoError(t, err)
	require.True(t, active)
	assert.Equal(t, 3*time.Minute, cfg.OnDuration)
	assert.True(t, phase.On)
	assert.Equal(t, 2*time.Minute, phase.Remaining)
}

func TestEngine_CommandFailure(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	s := store.NewMemStore()
	commander := &fakeCommander{err: errors.New("device unreachable")}
	e := testEngine(s, commander, start.Add(181*time.Second))
	require.NoError(t, s.UpsertIntervalConfig(activeConfig(start, true, start)))

	require.Error(t, e.tick(ctx))

	// the failed command is not recorded as applied, so the next tick retries
	cfg, _, err := s.GetIntervalConfig("aircon")
	require.NoError(t, err)
	require.NotNil(t, cfg.LastApplied)
	assert.True(t, *cfg.LastApplied)
}

func activeConfig(start time.Time, lastApplied bool, lastCommandAt time.Time) store.IntervalConfig {
	return store.IntervalConfig{
		DeviceID:      "aircon",
		IsActive:      true,
		OnDuration:    3 * time.Minute,
		OffDuration:   20 * time.Minute,
		StartTime:     &start,
		LastApplied:   &lastApplied,
		LastCommandAt: lastCommandAt,
	}
}
