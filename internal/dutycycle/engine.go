package dutycycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/homectl/plugsched/internal/store"
)

// HeartbeatMaxAge is how stale the live engine's heartbeat may be before a
// secondary trigger (cron) takes over duty-cycle actuation.
const HeartbeatMaxAge = 120 * time.Second

// A DeviceCommander issues power commands to a device.
type DeviceCommander interface {
	SendCommand(ctx context.Context, deviceID string, code string, on bool) error
}

// The Engine is the primary duty-cycle driver: a once-per-second ticker that
// persists a heartbeat and issues the on/off command whenever the computed
// phase disagrees with the last applied state. Restarting the process does
// not reset the cycle: phase is recomputed from the persisted start time and
// no command is reissued on resume.
type Engine struct {
	Store       store.Store
	Commander   DeviceCommander
	DeviceID    string
	ControlCode string
	Logger      *slog.Logger
	now         func() time.Time
}

func NewEngine(s store.Store, commander DeviceCommander, deviceID, controlCode string, logger *slog.Logger) *Engine {
	return &Engine{
		Store:       s,
		Commander:   commander,
		DeviceID:    deviceID,
		ControlCode: controlCode,
		Logger:      logger,
		now:         time.Now,
	}
}

// Run ticks every second while the context is live.
func (e *Engine) Run(ctx context.Context) error {
	e.Logger.Debug("started")
	defer e.Logger.Debug("stopped")

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := e.tick(ctx); err != nil {
				e.Logger.Error("duty-cycle tick failed", "err", err)
			}
		}
	}
}

func (e *Engine) tick(ctx context.Context) error {
	cfg, found, err := e.Store.GetIntervalConfig(e.DeviceID)
	if err != nil {
		return fmt.Errorf("interval config: %w", err)
	}
	if !found || !cfg.IsActive || cfg.StartTime == nil {
		return nil
	}
	now := e.now()
	if err = WriteHeartbeat(e.Store, now); err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	phase := Compute(now, *cfg.StartTime, cfg.OnDuration, cfg.OffDuration)
	return Apply(ctx, e.Store, e.Commander, e.ControlCode, cfg, phase.On, now, e.Logger)
}

// Start begins a new cycle at now and forces the device ON.
func (e *Engine) Start(ctx context.Context, onDuration, offDuration time.Duration) error {
	if onDuration <= 0 || offDuration <= 0 {
		return fmt.Errorf("invalid durations: on %s, off %s", onDuration, offDuration)
	}
	now := e.now()
	if err := e.Commander.SendCommand(ctx, e.DeviceID, e.ControlCode, true); err != nil {
		return fmt.Errorf("send on: %w", err)
	}
	on := true
	cfg := store.IntervalConfig{
		DeviceID:      e.DeviceID,
		IsActive:      true,
		OnDuration:    onDuration,
		OffDuration:   offDuration,
		StartTime:     &now,
		LastApplied:   &on,
		LastCommandAt: now,
	}
	if err := e.Store.UpsertIntervalConfig(cfg); err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	e.Logger.Info("interval mode started", "on", onDuration, "off", offDuration)
	return nil
}

// Stop destroys the cycle and forces the device OFF. The OFF command is a
// guaranteed side effect, not just a flag flip.
func (e *Engine) Stop(ctx context.Context) error {
	if err := e.Commander.SendCommand(ctx, e.DeviceID, e.ControlCode, false); err != nil {
		return fmt.Errorf("send off: %w", err)
	}
	cfg, _, err := e.Store.GetIntervalConfig(e.DeviceID)
	if err != nil {
		return fmt.Errorf("interval config: %w", err)
	}
	cfg.DeviceID = e.DeviceID
	cfg.IsActive = false
	cfg.StartTime = nil
	cfg.LastApplied = nil
	cfg.LastCommandAt = e.now()
	if err = e.Store.UpsertIntervalConfig(cfg); err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	e.Logger.Info("interval mode stopped")
	return nil
}

// Status returns the current configuration and, if the cycle is active, its
// phase at this moment.
func (e *Engine) Status() (store.IntervalConfig, Phase, bool, error) {
	cfg, found, err := e.Store.GetIntervalConfig(e.DeviceID)
	if err != nil || !found || !cfg.IsActive || cfg.StartTime == nil {
		return cfg, Phase{}, false, err
	}
	return cfg, Compute(e.now(), *cfg.StartTime, cfg.OnDuration, cfg.OffDuration), true, nil
}

// Apply issues the command for target if it differs from the last applied
// state, respecting the command debounce. It is shared by the live engine
// and the coordinator's cron fallback so the two cannot drift.
func Apply(ctx context.Context, s store.Store, commander DeviceCommander, controlCode string, cfg store.IntervalConfig, target bool, now time.Time, logger *slog.Logger) error {
	if cfg.LastApplied != nil && *cfg.LastApplied == target {
		return nil
	}
	if now.Sub(cfg.LastCommandAt) < Debounce {
		logger.Debug("command debounced", "target", target)
		return nil
	}
	if err := commander.SendCommand(ctx, cfg.DeviceID, controlCode, target); err != nil {
		return fmt.Errorf("send command: %w", err)
	}
	logger.Info("duty-cycle transition", "state", map[bool]string{true: "on", false: "off"}[target])
	cfg.LastApplied = &target
	cfg.LastCommandAt = now
	if err := s.UpsertIntervalConfig(cfg); err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	return nil
}

// WriteHeartbeat records the live engine's liveness timestamp.
func WriteHeartbeat(s store.Store, now time.Time) error {
	return s.SetSetting(store.SettingHeartbeat, now.Format(time.RFC3339Nano))
}

// HeartbeatAge returns the age of the last heartbeat. ok is false if no
// heartbeat was ever recorded.
func HeartbeatAge(s store.Store, now time.Time) (time.Duration, bool, error) {
	value, found, err := s.GetSetting(store.SettingHeartbeat)
	if err != nil || !found {
		return 0, false, err
	}
	at, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return 0, false, fmt.Errorf("invalid heartbeat %q: %w", value, err)
	}
	return now.Sub(at), true, nil
}
