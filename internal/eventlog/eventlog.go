// Package eventlog implements the event log over zerolog, with an optional
// asynchronous sink that persists events.
package eventlog

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mesh-intelligence/folio/pkg/types"
)

// Sink persists events. *sqlite.Store implements it.
type Sink interface {
	InsertEvent(ctx context.Context, e *types.Event) error
}

// Options configures New.
type Options struct {
	Level  string    // debug, info, warn, error
	Pretty bool      // console output for terminals
	Output io.Writer // defaults to os.Stderr

	// Sink, when set, receives every event on a background goroutine.
	Sink Sink
	// Buffer is the number of events queued for the sink; defaults to 256.
	// Events are dropped when the queue is full.
	Buffer int
}

// Log is a types.EventLog. Logging never fails the caller.
type Log struct {
	zlog zerolog.Logger
	now  func() time.Time

	sink   Sink
	queue  chan types.Event
	done   chan struct{}
	mu     sync.RWMutex
	closed bool
}

// New creates an event log.
func New(opts Options) *Log {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	if opts.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}

	l := &Log{
		zlog: zerolog.New(out).Level(level).With().Timestamp().Str("service", "folio").Logger(),
		now:  time.Now,
	}
	if opts.Sink != nil {
		buf := opts.Buffer
		if buf <= 0 {
			buf = 256
		}
		l.sink = opts.Sink
		l.queue = make(chan types.Event, buf)
		l.done = make(chan struct{})
		go l.drain()
	}
	return l
}

// Nop returns a log that discards everything.
func Nop() *Log {
	return &Log{zlog: zerolog.Nop(), now: time.Now}
}

// Logger returns the underlying zerolog logger.
func (l *Log) Logger() zerolog.Logger {
	return l.zlog
}

// LogException records err raised by action in component as an error event.
func (l *Log) LogException(component, action string, err error) {
	if err == nil {
		return
	}
	l.LogEvent(types.Event{
		EventType: types.EventError,
		Source:    component,
		Code:      action,
		Message:   err.Error(),
	})
}

// LogEvent records e.
func (l *Log) LogEvent(e types.Event) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = l.now().UTC()
	}

	var ev *zerolog.Event
	switch e.EventType {
	case types.EventError:
		ev = l.zlog.Error()
	case types.EventWarning:
		ev = l.zlog.Warn()
	default:
		ev = l.zlog.Info()
	}
	ev = ev.Str("source", e.Source).Str("code", e.Code)
	if e.UserID != 0 {
		ev = ev.Int64("user_id", e.UserID).Str("user_name", e.UserName)
	}
	if e.SiteID != 0 {
		ev = ev.Int64("site_id", e.SiteID)
	}
	if e.URL != "" {
		ev = ev.Str("url", e.URL)
	}
	ev.Msg(e.Message)

	l.enqueue(e)
}

func (l *Log) enqueue(e types.Event) {
	if l.sink == nil {
		return
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- e:
	default:
		l.zlog.Warn().Str("source", e.Source).Str("code", e.Code).Msg("event log queue full, event dropped")
	}
}

func (l *Log) drain() {
	defer close(l.done)
	for e := range l.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := l.sink.InsertEvent(ctx, &e); err != nil {
			l.zlog.Warn().Err(err).Str("source", e.Source).Str("code", e.Code).Msg("persisting event failed")
		}
		cancel()
	}
}

// Close flushes queued events to the sink and stops the writer. Events
// logged afterwards only reach zerolog.
func (l *Log) Close() error {
	if l.sink == nil {
		return nil
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()
	<-l.done
	return nil
}

var _ types.EventLog = (*Log)(nil)
