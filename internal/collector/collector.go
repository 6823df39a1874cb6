// Package collector exports schedule-check and duty-cycle metrics in
// Prometheus format.
package collector

import (
	"context"
	"log/slog"
	"sync"

	"github.com/homectl/plugsched/internal/coordinator"
	"github.com/homectl/plugsched/internal/dutycycle"
	"github.com/homectl/plugsched/internal/store"
	"github.com/homectl/plugsched/pkg/pubsub"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	checkTimestamp = prometheus.NewDesc(
		prometheus.BuildFQName("plugsched", "check", "timestamp_seconds"),
		"Time of the last schedule check (unix seconds)",
		nil,
		nil,
	)
	checkActionsTotal = prometheus.NewDesc(
		prometheus.BuildFQName("plugsched", "check", "actions_total"),
		"Total number of executed device actions",
		[]string{"device"},
		nil,
	)
	checkErrorsTotal = prometheus.NewDesc(
		prometheus.BuildFQName("plugsched", "check", "errors_total"),
		"Total number of failed device actions",
		[]string{"device"},
		nil,
	)
	dutyCycleState = prometheus.NewDesc(
		prometheus.BuildFQName("plugsched", "dutycycle", "state"),
		"Duty-cycle phase. 1 if the device should be on",
		nil,
		nil,
	)
	dutyCycleRemaining = prometheus.NewDesc(
		prometheus.BuildFQName("plugsched", "dutycycle", "remaining_seconds"),
		"Seconds until the duty cycle flips state",
		nil,
		nil,
	)
)

// DutyCycle reports the current duty-cycle phase, if one is active.
type DutyCycle interface {
	Status() (store.IntervalConfig, dutycycle.Phase, bool, error)
}

type Collector struct {
	Publisher *pubsub.Publisher[coordinator.Result]
	DutyCycle DutyCycle
	Logger    *slog.Logger

	lock       sync.RWMutex
	lastResult *coordinator.Result
	actions    map[string]float64
	errors     map[string]float64
}

func (c *Collector) Run(ctx context.Context) error {
	c.Logger.Debug("started")
	defer c.Logger.Debug("stopped")

	ch := c.Publisher.Subscribe()
	defer c.Publisher.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case result := <-ch:
			c.process(result)
		}
	}
}

func (c *Collector) process(result coordinator.Result) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.lastResult = &result
	if c.actions == nil {
		c.actions = make(map[string]float64)
		c.errors = make(map[string]float64)
	}
	for _, executed := range result.Executed {
		c.actions[executed.DeviceID]++
	}
	for _, failed := range result.Errors {
		c.errors[failed.DeviceID]++
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- checkTimestamp
	ch <- checkActionsTotal
	ch <- checkErrorsTotal
	ch <- dutyCycleState
	ch <- dutyCycleRemaining
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	if c.lastResult != nil {
		ch <- prometheus.MustNewConstMetric(checkTimestamp, prometheus.GaugeValue, float64(c.lastResult.Time.Unix()))
	}
	for deviceID, count := range c.actions {
		ch <- prometheus.MustNewConstMetric(checkActionsTotal, prometheus.CounterValue, count, deviceID)
	}
	for deviceID, count := range c.errors {
		ch <- prometheus.MustNewConstMetric(checkErrorsTotal, prometheus.CounterValue, count, deviceID)
	}
	c.collectDutyCycle(ch)
}

func (c *Collector) collectDutyCycle(ch chan<- prometheus.Metric) {
	if c.DutyCycle == nil {
		return
	}
	_, phase, active, err := c.DutyCycle.Status()
	if err != nil {
		c.Logger.Error("failed to get duty-cycle status", "err", err)
		return
	}
	if !active {
		return
	}
	var state float64
	if phase.On {
		state = 1
	}
	ch <- prometheus.MustNewConstMetric(dutyCycleState, prometheus.GaugeValue, state)
	ch <- prometheus.MustNewConstMetric(dutyCycleRemaining, prometheus.GaugeValue, phase.Remaining.Seconds())
}
