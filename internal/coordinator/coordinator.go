// Package coordinator runs the schedule check: resolve today's situation,
// evaluate every device's schedule, issue the commands that are due and
// record execution markers so that concurrent trigger sources cannot
// double-fire. The coordinator holds no state between runs; all
// cross-invocation coordination goes through the store.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/homectl/plugsched/internal/coordinator/notifier"
	"github.com/homectl/plugsched/internal/device"
	"github.com/homectl/plugsched/internal/dutycycle"
	"github.com/homectl/plugsched/internal/schedule"
	"github.com/homectl/plugsched/internal/store"
	"github.com/homectl/plugsched/internal/tuya"
	"github.com/homectl/plugsched/pkg/pubsub"
)

// A DeviceClient reads and switches devices through the vendor cloud.
type DeviceClient interface {
	GetStatus(ctx context.Context, deviceID string, statusCode string) (tuya.DeviceState, error)
	SendCommand(ctx context.Context, deviceID string, code string, on bool) error
}

type Coordinator struct {
	Store     store.Store
	Devices   device.Registry
	Client    DeviceClient
	Publisher *pubsub.Publisher[Result]
	Notifier  notifier.Notifier
	Logger    *slog.Logger

	timezone  *time.Location
	evaluator schedule.Evaluator
	now       func() time.Time
}

func New(s store.Store, registry device.Registry, client DeviceClient, timezone *time.Location, publisher *pubsub.Publisher[Result], n notifier.Notifier, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		Store:     s,
		Devices:   registry,
		Client:    client,
		Publisher: publisher,
		Notifier:  n,
		Logger:    logger,
		timezone:  timezone,
		evaluator: schedule.Evaluator{Logger: logger},
		now:       time.Now,
	}
}

// RunScheduleCheck performs one check. Safe to invoke concurrently and
// repeatedly: execution markers and the live-state gate make redundant
// invocations no-ops. Per-device failures are recorded in the result; only
// store failures abort the run.
func (c *Coordinator) RunScheduleCheck(ctx context.Context) (Result, error) {
	// one consistent timezone across all trigger sources, so a cron on UTC
	// infra agrees with everything else about the current day and minute
	now := c.now().In(c.timezone)
	nowMinutes := now.Hour()*60 + now.Minute()
	date := now.Format(time.DateOnly)

	result := Result{
		RunID:    uuid.NewString(),
		Time:     now,
		Executed: []ExecutedAction{},
		Errors:   []ActionError{},
	}
	logger := c.Logger.With("run", result.RunID)

	situation, usingDefault, err := c.ResolveSituation(date)
	if err != nil {
		return result, err
	}
	result.Situation = situation
	result.UsingDefault = usingDefault
	if situation == store.SituationNone {
		logger.Info("no situation for today, nothing to do", "date", date)
		c.publish(result)
		return result, nil
	}

	schedules, err := c.Store.GetDeviceSchedules()
	if err != nil {
		return result, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	fired, err := c.Store.ExecutionMarkers(date)
	if err != nil {
		return result, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	for _, dev := range c.Devices.Devices {
		entries := schedules[dev.ID][situation]
		firing, due := c.evaluator.Evaluate(nowMinutes, entries, fired, date, dev.ID)
		if !due {
			continue
		}
		if err = c.execute(ctx, dev, firing, now, &result, logger); err != nil {
			return result, err
		}
	}

	if err = c.checkDutyCycle(ctx, now, &result, logger); err != nil {
		return result, err
	}

	logger.Info("schedule check complete",
		"situation", result.Situation,
		"executed", len(result.Executed),
		"errors", len(result.Errors),
	)
	c.publish(result)
	return result, nil
}

// ResolveSituation looks up the calendar assignment for the date, falling
// back to the configured default situation.
func (c *Coordinator) ResolveSituation(date string) (string, bool, error) {
	assignment, found, err := c.Store.GetCalendarAssignment(date)
	if err != nil {
		return "", false, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if found && assignment.Situation != "" {
		return assignment.Situation, false, nil
	}
	fallback, found, err := c.Store.GetSetting(store.SettingDefaultSituation)
	if err != nil {
		return "", false, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if !found || fallback == "" {
		return store.SituationNone, false, nil
	}
	return fallback, fallback != store.SituationNone, nil
}

// execute issues one due action: live-state gate, command, execution marker,
// override cleanup. Device failures are recorded in the result; store
// failures abort.
func (c *Coordinator) execute(ctx context.Context, dev device.Device, firing schedule.Firing, now time.Time, result *Result, logger *slog.Logger) error {
	target := firing.Entry.Action.IsOn()

	// re-check the marker right before acting: another invocation may have
	// fired this entry after we loaded the marker set
	done, err := c.Store.HasExecutionMarker(firing.Key)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if done {
		logger.Debug("entry already executed, skipping", "device", dev.ID, "entry", firing.Entry.String())
		return nil
	}

	if dev.StatusCode != "" {
		state, err := c.Client.GetStatus(ctx, dev.ID, dev.StatusCode)
		if err != nil {
			logger.Warn("status check failed, sending command anyway", "device", dev.ID, "err", err)
		} else if state.On == target {
			// already in the target state: suppress the command but record
			// the marker so this entry stays settled for the rest of the day
			logger.Info("device already in target state", "device", dev.ID, "entry", firing.Entry.String())
			if err = c.Store.RecordExecutionMarker(firing.Key, now); err != nil {
				return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
			}
			return nil
		}
	}

	if err = c.Client.SendCommand(ctx, dev.ID, dev.ControlCode, target); err != nil {
		logger.Error("device command failed", "device", dev.ID, "entry", firing.Entry.String(), "err", err)
		result.Errors = append(result.Errors, ActionError{DeviceID: dev.ID, Error: err.Error()})
		return nil
	}
	if err = c.Store.RecordExecutionMarker(firing.Key, now); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	// a scheduled action supersedes any manual override for the device
	if err = c.Store.ClearManualOverride(dev.ID); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	result.Executed = append(result.Executed, ExecutedAction{
		DeviceID: dev.ID,
		Device:   dev.Name,
		Time:     firing.Entry.Time,
		Action:   firing.Entry.Action,
	})
	if c.Notifier != nil {
		c.Notifier.Notify(notifier.Message{
			Device: dev.Name,
			Action: firing.Entry.Action,
			Time:   firing.Entry.Time,
			Reason: result.Situation + " schedule",
		})
	}
	return nil
}

// checkDutyCycle actuates the interval-mode device when no live engine is
// doing so. A fresh heartbeat means an in-process engine owns the cycle and
// this run stays hands-off.
func (c *Coordinator) checkDutyCycle(ctx context.Context, now time.Time, result *Result, logger *slog.Logger) error {
	dev, found := c.Devices.IntervalDevice()
	if !found {
		return nil
	}
	cfg, found, err := c.Store.GetIntervalConfig(dev.ID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if !found || !cfg.IsActive || cfg.StartTime == nil {
		return nil
	}

	age, found, err := dutycycle.HeartbeatAge(c.Store, now)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if found && age < dutycycle.HeartbeatMaxAge {
		logger.Debug("live duty-cycle engine active, skipping", "heartbeat_age", age)
		return nil
	}

	phase := dutycycle.Compute(now, *cfg.StartTime, cfg.OnDuration, cfg.OffDuration)
	if err = dutycycle.Apply(ctx, c.Store, c.Client, dev.ControlCode, cfg, phase.On, now, logger); err != nil {
		logger.Error("duty-cycle actuation failed", "device", dev.ID, "err", err)
		result.Errors = append(result.Errors, ActionError{DeviceID: dev.ID, Error: err.Error()})
	}
	return nil
}

func (c *Coordinator) publish(result Result) {
	if c.Publisher != nil {
		c.Publisher.Publish(result)
	}
}
