// Package store persists all cross-invocation scheduler state: calendar
// assignments, device schedules, manual overrides, interval-mode
// configuration, settings and execution markers. The store is the single
// source of truth between uncoordinated trigger sources; every write is a
// last-writer-wins upsert by natural key.
package store

import (
	"time"

	"github.com/clambin/go-common/set"
	"github.com/homectl/plugsched/internal/schedule"
)

// Setting keys used by the scheduler.
const (
	SettingDefaultSituation = "defaultSituation"
	SettingHeartbeat        = "dutycycle.heartbeat"
)

// SituationNone disables scheduling when used as the default situation.
const SituationNone = "none"

// A CalendarAssignment gives a date (YYYY-MM-DD) its situation.
type CalendarAssignment struct {
	Date      string `json:"date"`
	Situation string `json:"situation"`
}

// DeviceSchedules maps deviceID -> situation -> entries.
type DeviceSchedules map[string]map[string][]schedule.Entry

// A ManualOverride records that a device was recently hand-operated. It is
// informational: it never blocks a scheduled action whose time arrives.
type ManualOverride struct {
	DeviceID string    `json:"deviceId"`
	Until    time.Time `json:"until"`
	SetAt    time.Time `json:"setAt"`
}

// Active reports whether the override is still in effect at t.
func (o ManualOverride) Active(t time.Time) bool {
	return t.Before(o.Until)
}

// IntervalConfig is the persisted duty-cycle state for one device. Phase is
// always rederived from StartTime; no current-phase field exists on purpose.
type IntervalConfig struct {
	DeviceID      string        `json:"deviceId"`
	IsActive      bool          `json:"isActive"`
	OnDuration    time.Duration `json:"onDuration"`
	OffDuration   time.Duration `json:"offDuration"`
	StartTime     *time.Time    `json:"startTime"`
	LastApplied   *bool         `json:"lastApplied"`
	LastCommandAt time.Time     `json:"lastCommandAt"`
}

// Store is the durable schedule store. Any implementation with
// read-after-write consistency will do.
type Store interface {
	GetCalendarAssignment(date string) (CalendarAssignment, bool, error)
	UpsertCalendarAssignment(assignment CalendarAssignment) error
	GetDeviceSchedules() (DeviceSchedules, error)
	ReplaceDeviceSchedule(deviceID string, situation string, entries []schedule.Entry) error
	ReplaceAllDeviceSchedules(schedules DeviceSchedules) error
	GetManualOverride(deviceID string) (ManualOverride, bool, error)
	SetManualOverride(deviceID string, duration time.Duration) error
	ClearManualOverride(deviceID string) error
	ClearAllManualOverrides() error
	GetIntervalConfig(deviceID string) (IntervalConfig, bool, error)
	UpsertIntervalConfig(cfg IntervalConfig) error
	GetSetting(key string) (string, bool, error)
	SetSetting(key string, value string) error
	RecordExecutionMarker(key string, at time.Time) error
	HasExecutionMarker(key string) (bool, error)
	ExecutionMarkers(date string) (set.Set[string], error)
}
