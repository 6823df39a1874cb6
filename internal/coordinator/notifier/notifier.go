// Package notifier announces executed schedule actions to one or more
// sinks (log, Slack).
package notifier

import (
	"github.com/homectl/plugsched/internal/schedule"
)

// A Message describes one executed action.
type Message struct {
	Device string
	Action schedule.Action
	Time   string
	Reason string
}

func (m Message) title() string {
	return m.Device + ": switched " + m.Action.String() + " (scheduled for " + m.Time + ")"
}

type Notifier interface {
	Notify(Message)
}

type Notifiers []Notifier

func (n Notifiers) Notify(msg Message) {
	for _, l := range n {
		l.Notify(msg)
	}
}
