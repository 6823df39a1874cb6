package store

import (
	"strings"
	"sync"
	"time"

	"github.com/clambin/go-common/set"
	"github.com/homectl/plugsched/internal/schedule"
)

var _ Store = &MemStore{}

// MemStore is an in-memory Store. State does not survive a restart; it's
// meant for development and tests.
type MemStore struct {
	NowFunc         func() time.Time
	calendar        map[string]CalendarAssignment
	deviceSchedules DeviceSchedules
	overrides       map[string]ManualOverride
	interval        map[string]IntervalConfig
	settings        map[string]string
	markers         map[string]time.Time
	lock            sync.RWMutex
}

func NewMemStore() *MemStore {
	return &MemStore{
		NowFunc:         time.Now,
		calendar:        make(map[string]CalendarAssignment),
		deviceSchedules: make(DeviceSchedules),
		overrides:       make(map[string]ManualOverride),
		interval:        make(map[string]IntervalConfig),
		settings:        make(map[string]string),
		markers:         make(map[string]time.Time),
	}
}

func (s *MemStore) GetCalendarAssignment(date string) (CalendarAssignment, bool, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	assignment, found := s.calendar[date]
	return assignment, found, nil
}

func (s *MemStore) UpsertCalendarAssignment(assignment CalendarAssignment) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.calendar[assignment.Date] = assignment
	return nil
}

func (s *MemStore) GetDeviceSchedules() (DeviceSchedules, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	schedules := make(DeviceSchedules, len(s.deviceSchedules))
	for deviceID, bySituation := range s.deviceSchedules {
		schedules[deviceID] = make(map[string][]schedule.Entry, len(bySituation))
		for situation, entries := range bySituation {
			schedules[deviceID][situation] = entries
		}
	}
	return schedules, nil
}

func (s *MemStore) ReplaceDeviceSchedule(deviceID string, situation string, entries []schedule.Entry) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.deviceSchedules[deviceID] == nil {
		s.deviceSchedules[deviceID] = make(map[string][]schedule.Entry)
	}
	s.deviceSchedules[deviceID][situation] = entries
	return nil
}

func (s *MemStore) ReplaceAllDeviceSchedules(schedules DeviceSchedules) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.deviceSchedules = schedules
	return nil
}

func (s *MemStore) GetManualOverride(deviceID string) (ManualOverride, bool, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	override, found := s.overrides[deviceID]
	return override, found, nil
}

func (s *MemStore) SetManualOverride(deviceID string, duration time.Duration) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	now := s.NowFunc()
	s.overrides[deviceID] = ManualOverride{DeviceID: deviceID, Until: now.Add(duration), SetAt: now}
	return nil
}

func (s *MemStore) ClearManualOverride(deviceID string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.overrides, deviceID)
	return nil
}

func (s *MemStore) ClearAllManualOverrides() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.overrides = make(map[string]ManualOverride)
	return nil
}

func (s *MemStore) GetIntervalConfig(deviceID string) (IntervalConfig, bool, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	cfg, found := s.interval[deviceID]
	return cfg, found, nil
}

func (s *MemStore) UpsertIntervalConfig(cfg IntervalConfig) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.interval[cfg.DeviceID] = cfg
	return nil
}

func (s *MemStore) GetSetting(key string) (string, bool, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	value, found := s.settings[key]
	return value, found, nil
}

func (s *MemStore) SetSetting(key string, value string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.settings[key] = value
	return nil
}

func (s *MemStore) RecordExecutionMarker(key string, at time.Time) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, found := s.markers[key]; !found {
		s.markers[key] = at
	}
	return nil
}

func (s *MemStore) HasExecutionMarker(key string) (bool, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	_, found := s.markers[key]
	return found, nil
}

func (s *MemStore) ExecutionMarkers(date string) (set.Set[string], error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	markers := set.New[string]()
	for key := range s.markers {
		if strings.HasSuffix(key, "-"+date) {
			markers.Add(key)
		}
	}
	return markers, nil
}
