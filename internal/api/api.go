// Package api exposes the scheduler over HTTP: a check trigger for external
// cron, a status snapshot, and management of calendar assignments, device
// schedules, manual overrides and interval mode.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/homectl/plugsched/internal/coordinator"
	"github.com/homectl/plugsched/internal/device"
	"github.com/homectl/plugsched/internal/dutycycle"
	"github.com/homectl/plugsched/internal/schedule"
	"github.com/homectl/plugsched/internal/store"
	"github.com/homectl/plugsched/internal/tuya"
	"golang.org/x/sync/errgroup"
)

// A Checker runs one schedule check on demand.
type Checker interface {
	RunScheduleCheck(ctx context.Context) (coordinator.Result, error)
	ResolveSituation(date string) (string, bool, error)
}

// An IntervalEngine drives the duty-cycle device.
type IntervalEngine interface {
	Start(ctx context.Context, onDuration, offDuration time.Duration) error
	Stop(ctx context.Context) error
	Status() (store.IntervalConfig, dutycycle.Phase, bool, error)
}

// A StatusClient reads live device state.
type StatusClient interface {
	GetStatus(ctx context.Context, deviceID string, statusCode string) (tuya.DeviceState, error)
}

type Server struct {
	Store    store.Store
	Devices  device.Registry
	Checker  Checker
	Engine   IntervalEngine
	Client   StatusClient
	Logger   *slog.Logger
	timezone *time.Location

	// shared secret for the check trigger; empty disables authentication
	cronToken string
	now       func() time.Time
}

func New(s store.Store, registry device.Registry, checker Checker, engine IntervalEngine, client StatusClient, timezone *time.Location, cronToken string, logger *slog.Logger) *Server {
	return &Server{
		Store:     s,
		Devices:   registry,
		Checker:   checker,
		Engine:    engine,
		Client:    client,
		Logger:    logger,
		timezone:  timezone,
		cronToken: cronToken,
		now:       time.Now,
	}
}

// Router returns the http handler for all API endpoints.
func (s *Server) Router() *http.ServeMux {
	m := http.NewServeMux()
	m.HandleFunc("POST /api/v1/check", s.check)
	m.HandleFunc("GET /api/v1/status", s.status)
	m.HandleFunc("PUT /api/v1/calendar/{date}", s.upsertCalendar)
	m.HandleFunc("PUT /api/v1/schedules/{deviceID}/{situation}", s.replaceSchedule)
	m.HandleFunc("POST /api/v1/override/{deviceID}", s.setOverride)
	m.HandleFunc("DELETE /api/v1/override/{deviceID}", s.clearOverride)
	m.HandleFunc("DELETE /api/v1/overrides", s.clearAllOverrides)
	m.HandleFunc("GET /api/v1/interval", s.intervalStatus)
	m.HandleFunc("POST /api/v1/interval/start", s.startInterval)
	m.HandleFunc("POST /api/v1/interval/stop", s.stopInterval)
	return m
}

func (s *Server) check(w http.ResponseWriter, r *http.Request) {
	if s.cronToken != "" && r.Header.Get("Authorization") != "Bearer "+s.cronToken {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	result, err := s.Checker.RunScheduleCheck(r.Context())
	if err != nil {
		s.Logger.Error("check failed", "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, result)
}

type deviceStatus struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Online     *bool           `json:"online,omitempty"`
	On         *bool           `json:"on,omitempty"`
	NextAction *schedule.Entry `json:"nextAction,omitempty"`
	Override   *time.Time      `json:"overrideUntil,omitempty"`
}

type statusResponse struct {
	Date         string            `json:"date"`
	Situation    string            `json:"situation"`
	UsingDefault bool              `json:"usingDefault,omitempty"`
	Devices      []deviceStatus    `json:"devices"`
	Interval     *intervalResponse `json:"interval,omitempty"`
}

type intervalResponse struct {
	DeviceID  string  `json:"deviceId"`
	On        bool    `json:"on"`
	Remaining float64 `json:"remainingSeconds"`
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	now := s.now().In(s.timezone)
	nowMinutes := now.Hour()*60 + now.Minute()
	date := now.Format(time.DateOnly)

	situation, usingDefault, err := s.Checker.ResolveSituation(date)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	schedules, err := s.Store.GetDeviceSchedules()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	response := statusResponse{
		Date:         date,
		Situation:    situation,
		UsingDefault: usingDefault,
		Devices:      make([]deviceStatus, len(s.Devices.Devices)),
	}

	// fetch live state for all devices in parallel; a device that doesn't
	// answer just reports without live state
	var g errgroup.Group
	for i, dev := range s.Devices.Devices {
		response.Devices[i] = deviceStatus{ID: dev.ID, Name: dev.Name}
		if next, ok := schedule.NextEntry(nowMinutes, schedules[dev.ID][situation]); ok {
			response.Devices[i].NextAction = &next
		}
		if override, found, _ := s.Store.GetManualOverride(dev.ID); found && override.Active(now) {
			response.Devices[i].Override = &override.Until
		}
		if dev.StatusCode == "" {
			continue
		}
		g.Go(func() error {
			state, err := s.Client.GetStatus(r.Context(), dev.ID, dev.StatusCode)
			if err != nil {
				s.Logger.Warn("status fetch failed", "device", dev.ID, "err", err)
				return nil
			}
			response.Devices[i].Online = &state.Online
			response.Devices[i].On = &state.On
			return nil
		})
	}
	_ = g.Wait()

	if cfg, phase, active, err := s.Engine.Status(); err == nil && active {
		response.Interval = &intervalResponse{
			DeviceID:  cfg.DeviceID,
			On:        phase.On,
			Remaining: phase.Remaining.Seconds(),
		}
	}
	writeJSON(w, response)
}

func (s *Server) upsertCalendar(w http.ResponseWriter, r *http.Request) {
	date := r.PathValue("date")
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}
	var body struct {
		Situation string `json:"situation"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Situation == "" {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if err := s.Store.UpsertCalendarAssignment(store.CalendarAssignment{Date: date, Situation: body.Situation}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) replaceSchedule(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("deviceID")
	if _, found := s.Devices.Get(deviceID); !found {
		http.Error(w, "unknown device", http.StatusNotFound)
		return
	}
	var entries []schedule.Entry
	if err := json.NewDecoder(r.Body).Decode(&entries); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	for _, entry := range entries {
		if _, err := entry.Minutes(); err != nil || !entry.Action.Valid() {
			http.Error(w, "invalid entry "+entry.String(), http.StatusBadRequest)
			return
		}
	}
	if err := s.Store.ReplaceDeviceSchedule(deviceID, r.PathValue("situation"), entries); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setOverride(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("deviceID")
	if _, found := s.Devices.Get(deviceID); !found {
		http.Error(w, "unknown device", http.StatusNotFound)
		return
	}
	body := struct {
		DurationMinutes int `json:"durationMinutes"`
	}{DurationMinutes: 60}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.DurationMinutes <= 0 {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
	}
	if err := s.Store.SetManualOverride(deviceID, time.Duration(body.DurationMinutes)*time.Minute); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) clearOverride(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.ClearManualOverride(r.PathValue("deviceID")); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) clearAllOverrides(w http.ResponseWriter, _ *http.Request) {
	if err := s.Store.ClearAllManualOverrides(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) intervalStatus(w http.ResponseWriter, _ *http.Request) {
	cfg, phase, active, err := s.Engine.Status()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !active {
		writeJSON(w, map[string]any{"active": false})
		return
	}
	writeJSON(w, map[string]any{
		"active":           true,
		"deviceId":         cfg.DeviceID,
		"onSeconds":        cfg.OnDuration.Seconds(),
		"offSeconds":       cfg.OffDuration.Seconds(),
		"on":               phase.On,
		"remainingSeconds": phase.Remaining.Seconds(),
	})
}

func (s *Server) startInterval(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OnSeconds  int `json:"onSeconds"`
		OffSeconds int `json:"offSeconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.OnSeconds <= 0 || body.OffSeconds <= 0 {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if err := s.Engine.Start(r.Context(), time.Duration(body.OnSeconds)*time.Second, time.Duration(body.OffSeconds)*time.Second); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) stopInterval(w http.ResponseWriter, r *http.Request) {
	if err := s.Engine.Stop(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
