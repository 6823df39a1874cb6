package coordinator

import (
	"time"

	"github.com/homectl/plugsched/internal/schedule"
)

// An ExecutedAction records one device command issued during a check.
type ExecutedAction struct {
	DeviceID string          `json:"deviceId"`
	Device   string          `json:"device"`
	Time     string          `json:"time"`
	Action   schedule.Action `json:"action"`
}

// An ActionError records one isolated per-device failure.
type ActionError struct {
	DeviceID string `json:"deviceId"`
	Error    string `json:"error"`
}

// Result is the outcome of one schedule check.
type Result struct {
	RunID        string           `json:"runId"`
	Time         time.Time        `json:"time"`
	Situation    string           `json:"situation"`
	UsingDefault bool             `json:"usingDefault,omitempty"`
	Executed     []ExecutedAction `json:"executed"`
	Errors       []ActionError    `json:"errors"`
}
