package types

import "time"

// Event types.
const (
	EventInformation = "I"
	EventWarning     = "W"
	EventError       = "E"
)

// Event is one event log record.
type Event struct {
	EventID   int64
	EventType string // I, W or E.
	Source    string
	Code      string
	Message   string
	URL       string
	UserID    int64
	UserName  string
	SiteID    int64
	CreatedAt time.Time
}

// EventLog records diagnostic events. Implementations never fail the
// caller: errors writing the log are swallowed.
type EventLog interface {
	LogException(component, action string, err error)
	LogEvent(e Event)
}

// NopEventLog discards everything.
type NopEventLog struct{}

// LogException implements EventLog.
func (NopEventLog) LogException(string, string, error) {}

// LogEvent implements EventLog.
func (NopEventLog) LogEvent(Event) {}
