package daemon

import (
	"os"

	"reins/pkg/logging"
)

// EventType tags runtime lifecycle events.
type EventType string

const (
	EventServiceRegistered EventType = "service-registered"
	EventStartRequested    EventType = "start-requested"
	EventStopRequested     EventType = "stop-requested"
	EventSignalReceived    EventType = "signal-received"
	EventStateTransition   EventType = "state-transition"
	EventError             EventType = "error"
)

// Event is one runtime lifecycle event.
type Event struct {
	Type    EventType
	Service string
	Signal  os.Signal
	Err     error
	Message string
}

// EventLogger receives runtime lifecycle events. Injectable so tests and
// alternative frontends can observe the runtime.
type EventLogger interface {
	Event(event Event)
}

// logEventLogger writes events through the structured logger.
type logEventLogger struct{}

func (logEventLogger) Event(event Event) {
	switch event.Type {
	case EventError:
		logging.Error("Runtime", event.Err, "%s %s: %s", event.Type, event.Service, event.Message)
	case EventSignalReceived:
		logging.Info("Runtime", "Received signal %v", event.Signal)
	default:
		if event.Service != "" {
			logging.Info("Runtime", "%s: %s %s", event.Type, event.Service, event.Message)
		} else {
			logging.Info("Runtime", "%s %s", event.Type, event.Message)
		}
	}
}
