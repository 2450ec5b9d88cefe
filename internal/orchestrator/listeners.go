package orchestrator

import (
	"github.com/ShayCichocki/loom/internal/store"
	"github.com/ShayCichocki/loom/pkg/events"
)

// EventLogListener persists every published event to the durable log.
// It registers at OrderMutation: if the log append fails, the publish
// fails, so no fact is observable on the bus without being replayable
// from the log.
type EventLogListener struct {
	log store.EventLog
}

// NewEventLogListener creates the listener over an event log.
func NewEventLogListener(log store.EventLog) *EventLogListener {
	return &EventLogListener{log: log}
}

func (l *EventLogListener) ListenerID() string { return "event-log" }

func (l *EventLogListener) Order() int { return events.OrderMutation }

func (l *EventLogListener) InterestedIn(events.Type) bool { return true }

func (l *EventLogListener) OnEvent(e events.Event) error {
	return l.log.Append(e)
}

// DebugLogListener mirrors the event stream into the debug log.
type DebugLogListener struct {
	logger *DebugLogger
}

// NewDebugLogListener creates the listener over a debug logger.
func NewDebugLogListener(logger *DebugLogger) *DebugLogListener {
	return &DebugLogListener{logger: logger}
}

func (l *DebugLogListener) ListenerID() string { return "debug-log" }

func (l *DebugLogListener) Order() int { return events.OrderDefault }

func (l *DebugLogListener) InterestedIn(events.Type) bool { return true }

func (l *DebugLogListener) OnEvent(e events.Event) error {
	l.logger.Log("event %s id=%s node=%s", e.Type(), e.EventID(), events.NodeKey(e))
	return nil
}
