package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/clambin/go-common/set"
	"github.com/homectl/plugsched/internal/schedule"
)

var _ Store = &FileStore{}

// FileStore is a JSON file-backed Store. Every operation rereads the file
// and writes it back atomically (temp file + rename), so concurrent
// invocations from different processes see each other's writes.
type FileStore struct {
	path string
	now  func() time.Time
	lock sync.Mutex
}

// markerRetention bounds the execution-marker backlog. Markers dedupe within
// one calendar day; anything older is dead weight.
const markerRetention = 48 * time.Hour

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

type fileData struct {
	Calendar        map[string]CalendarAssignment `json:"calendar"`
	DeviceSchedules DeviceSchedules               `json:"deviceSchedules"`
	Overrides       map[string]ManualOverride     `json:"manualOverrides"`
	Interval        map[string]IntervalConfig     `json:"intervalMode"`
	Settings        map[string]string             `json:"settings"`
	Markers         map[string]time.Time          `json:"executionMarkers"`
}

func newFileData() fileData {
	return fileData{
		Calendar:        make(map[string]CalendarAssignment),
		DeviceSchedules: make(DeviceSchedules),
		Overrides:       make(map[string]ManualOverride),
		Interval:        make(map[string]IntervalConfig),
		Settings:        make(map[string]string),
		Markers:         make(map[string]time.Time),
	}
}

func (s *FileStore) load() (fileData, error) {
	content, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return newFileData(), nil
		}
		return fileData{}, fmt.Errorf("read: %w", err)
	}
	data := newFileData()
	if err = json.Unmarshal(content, &data); err != nil {
		return fileData{}, fmt.Errorf("decode: %w", err)
	}
	return data, nil
}

func (s *FileStore) save(data fileData) error {
	content, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	tmp := s.path + ".tmp"
	if err = os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	if err = os.WriteFile(tmp, content, 0o644); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// update runs f against the current file contents and writes the result back.
func (s *FileStore) update(f func(*fileData)) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	data, err := s.load()
	if err != nil {
		return err
	}
	f(&data)
	return s.save(data)
}

// view runs f against a snapshot of the current file contents.
func (s *FileStore) view(f func(fileData)) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	data, err := s.load()
	if err != nil {
		return err
	}
	f(data)
	return nil
}

func (s *FileStore) GetCalendarAssignment(date string) (CalendarAssignment, bool, error) {
	var assignment CalendarAssignment
	var found bool
	err := s.view(func(data fileData) {
		assignment, found = data.Calendar[date]
	})
	return assignment, found, err
}

func (s *FileStore) UpsertCalendarAssignment(assignment CalendarAssignment) error {
	return s.update(func(data *fileData) {
		data.Calendar[assignment.Date] = assignment
	})
}

func (s *FileStore) GetDeviceSchedules() (DeviceSchedules, error) {
	var schedules DeviceSchedules
	err := s.view(func(data fileData) {
		schedules = data.DeviceSchedules
	})
	return schedules, err
}

func (s *FileStore) ReplaceDeviceSchedule(deviceID string, situation string, entries []schedule.Entry) error {
	return s.update(func(data *fileData) {
		if data.DeviceSchedules[deviceID] == nil {
			data.DeviceSchedules[deviceID] = make(map[string][]schedule.Entry)
		}
		data.DeviceSchedules[deviceID][situation] = entries
	})
}

func (s *FileStore) ReplaceAllDeviceSchedules(schedules DeviceSchedules) error {
	return s.update(func(data *fileData) {
		data.DeviceSchedules = schedules
	})
}

func (s *FileStore) GetManualOverride(deviceID string) (ManualOverride, bool, error) {
	var override ManualOverride
	var found bool
	err := s.view(func(data fileData) {
		override, found = data.Overrides[deviceID]
	})
	return override, found, err
}

func (s *FileStore) SetManualOverride(deviceID string, duration time.Duration) error {
	now := s.now()
	return s.update(func(data *fileData) {
		data.Overrides[deviceID] = ManualOverride{
			DeviceID: deviceID,
			Until:    now.Add(duration),
			SetAt:    now,
		}
	})
}

func (s *FileStore) ClearManualOverride(deviceID string) error {
	return s.update(func(data *fileData) {
		delete(data.Overrides, deviceID)
	})
}

func (s *FileStore) ClearAllManualOverrides() error {
	return s.update(func(data *fileData) {
		data.Overrides = make(map[string]ManualOverride)
	})
}

func (s *FileStore) GetIntervalConfig(deviceID string) (IntervalConfig, bool, error) {
	var cfg IntervalConfig
	var found bool
	err := s.view(func(data fileData) {
		cfg, found = data.Interval[deviceID]
	})
	return cfg, found, err
}

func (s *FileStore) UpsertIntervalConfig(cfg IntervalConfig) error {
	return s.update(func(data *fileData) {
		data.Interval[cfg.DeviceID] = cfg
	})
}

func (s *FileStore) GetSetting(key string) (string, bool, error) {
	var value string
	var found bool
	err := s.view(func(data fileData) {
		value, found = data.Settings[key]
	})
	return value, found, err
}

func (s *FileStore) SetSetting(key string, value string) error {
	return s.update(func(data *fileData) {
		data.Settings[key] = value
	})
}

func (s *FileStore) RecordExecutionMarker(key string, at time.Time) error {
	return s.update(func(data *fileData) {
		if _, ok := data.Markers[key]; ok {
			// first execution wins; the marker is never updated for that key
			return
		}
		data.Markers[key] = at
		for k, t := range data.Markers {
			if at.Sub(t) > markerRetention {
				delete(data.Markers, k)
			}
		}
	})
}

func (s *FileStore) HasExecutionMarker(key string) (bool, error) {
	var found bool
	err := s.view(func(data fileData) {
		_, found = data.Markers[key]
	})
	return found, err
}

func (s *FileStore) ExecutionMarkers(date string) (set.Set[string], error) {
	markers := set.New[string]()
	err := s.view(func(data fileData) {
		for key := range data.Markers {
			if strings.HasSuffix(key, "-"+date) {
				markers.Add(key)
			}
		}
	})
	return markers, err
}
