package store

import (
	"github.com/homectl/plugsched/internal/schedule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"path/filepath"
	"testing"
	"time"
)

func TestFileStore_Calendar(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "state.json"))

	_, found, err := s.GetCalendarAssignment("2025-06-01")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.UpsertCalendarAssignment(CalendarAssignment{Date: "2025-06-01", Situation: "rest"}))
	assignment, found, err := s.GetCalendarAssignment("2025-06-01")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "rest", assignment.Situation)

	// upsert overwrites
	require.NoError(t, s.UpsertCalendarAssignment(CalendarAssignment{Date: "2025-06-01", Situation: "work"}))
	assignment, _, err = s.GetCalendarAssignment("2025-06-01")
	require.NoError(t, err)
	assert.Equal(t, "work", assignment.Situation)
}

func TestFileStore_DeviceSchedules(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "state.json"))

	entries := []schedule.Entry{
		{Time: "10:00", Action: schedule.ActionOn},
		{Time: "22:00", Action: schedule.ActionOff},
	}
	require.NoError(t, s.ReplaceDeviceSchedule("plug-1", "rest", entries))

	schedules, err := s.GetDeviceSchedules()
	require.NoError(t, err)
	assert.Equal(t, entries, schedules["plug-1"]["rest"])

	// wholesale replacement of one situation
	require.NoError(t, s.ReplaceDeviceSchedule("plug-1", "rest", entries[:1]))
	schedules, err = s.GetDeviceSchedules()
	require.NoError(t, err)
	assert.Len(t, schedules["plug-1"]["rest"], 1)

	// bulk replacement
	require.NoError(t, s.ReplaceAllDeviceSchedules(DeviceSchedules{"plug-2": {"work": entries}}))
	schedules, err = s.GetDeviceSchedules()
	require.NoError(t, err)
	assert.NotContains(t, schedules, "plug-1")
	assert.Contains(t, schedules, "plug-2")
}

func TestFileStore_ManualOverrides(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	now := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.SetManualOverride("plug-1", time.Hour))
	override, found, err := s.GetManualOverride("plug-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, now, override.SetAt)
	assert.True(t, override.Active(now.Add(59*time.Minute)))
	assert.False(t, override.Active(now.Add(61*time.Minute)))

	require.NoError(t, s.ClearManualOverride("plug-1"))
	_, found, err = s.GetManualOverride("plug-1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.SetManualOverride("plug-1", time.Hour))
	require.NoError(t, s.SetManualOverride("plug-2", time.Hour))
	require.NoError(t, s.ClearAllManualOverrides())
	_, found, err = s.GetManualOverride("plug-2")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFileStore_IntervalConfig(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "state.json"))

	_, found, err := s.GetIntervalConfig("aircon")
	require.NoError(t, err)
	assert.False(t, found)

	start := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	on := true
	require.NoError(t, s.UpsertIntervalConfig(IntervalConfig{
		DeviceID:    "aircon",
		IsActive:    true,
		OnDuration:  3 * time.Minute,
		OffDuration: 20 * time.Minute,
		StartTime:   &start,
		LastApplied: &on,
	}))

	cfg, found, err := s.GetIntervalConfig("aircon")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, cfg.IsActive)
	require.NotNil(t, cfg.StartTime)
	assert.True(t, start.Equal(*cfg.StartTime))
	require.NotNil(t, cfg.LastApplied)
	assert.True(t, *cfg.LastApplied)
}

func TestFileStore_Settings(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "state.json"))

	_, found, err := s.GetSetting(SettingDefaultSituation)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.SetSetting(SettingDefaultSituation, "rest"))
	value, found, err := s.GetSetting(SettingDefaultSituation)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "rest", value)
}

func TestFileStore_ExecutionMarkers(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	now := time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC)

	key := "plug-1-09:00-on-2025-06-01"
	found, err := s.HasExecutionMarker(key)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.RecordExecutionMarker(key, now))
	found, err = s.HasExecutionMarker(key)
	require.NoError(t, err)
	assert.True(t, found)

	markers, err := s.ExecutionMarkers("2025-06-01")
	require.NoError(t, err)
	assert.True(t, markers.Contains(key))
	markers, err = s.ExecutionMarkers("2025-06-02")
	require.NoError(t, err)
	assert.False(t, markers.Contains(key))

	// old markers are pruned as new ones are recorded
	require.NoError(t, s.RecordExecutionMarker("plug-1-09:00-on-2025-06-04", now.Add(72*time.Hour)))
	found, err = s.HasExecutionMarker(key)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFileStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	s := NewFileStore(path)
	require.NoError(t, s.UpsertCalendarAssignment(CalendarAssignment{Date: "2025-06-01", Situation: "rest"}))

	// a different process opening the same file sees the write
	s2 := NewFileStore(path)
	assignment, found, err := s2.GetCalendarAssignment("2025-06-01")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "rest", assignment.Situation)
}
