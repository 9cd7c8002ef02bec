package eventlog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/folio/internal/sqlite"
	"github.com/mesh-intelligence/folio/pkg/types"
)

type memorySink struct {
	mu     sync.Mutex
	events []types.Event
	err    error
}

func (s *memorySink) InsertEvent(_ context.Context, e *types.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, *e)
	return nil
}

func TestLog_WritesStructuredLines(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Output: &buf})

	l.LogException("ObjectVersionManager", "CREATEVERSION", errors.New("disk full"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "error", line["level"])
	assert.Equal(t, "ObjectVersionManager", line["source"])
	assert.Equal(t, "CREATEVERSION", line["code"])
	assert.Equal(t, "disk full", line["message"])
}

func TestLog_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Output: &buf, Level: "error"})

	l.LogEvent(types.Event{EventType: types.EventInformation, Source: "x", Code: "y", Message: "quiet"})
	assert.Zero(t, buf.Len())
}

func TestLog_SinkReceivesEventsOnClose(t *testing.T) {
	sink := &memorySink{}
	l := New(Options{Output: &bytes.Buffer{}, Sink: sink})

	for i := 0; i < 10; i++ {
		l.LogEvent(types.Event{EventType: types.EventInformation, Source: "test", Code: "TICK"})
	}
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	assert.Len(t, sink.events, 10)
	assert.False(t, sink.events[0].CreatedAt.IsZero())

	// After Close events only reach zerolog.
	l.LogEvent(types.Event{Source: "late"})
	assert.Len(t, sink.events, 10)
}

func TestLog_SinkFailureIsSwallowed(t *testing.T) {
	var buf bytes.Buffer
	sink := &memorySink{err: errors.New("locked")}
	l := New(Options{Output: &buf, Sink: sink})

	l.LogException("c", "a", errors.New("boom"))
	require.NoError(t, l.Close())
	assert.Contains(t, buf.String(), "persisting event failed")
}

func TestLog_PersistsToSQLite(t *testing.T) {
	b := sqlite.NewBackend()
	require.NoError(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}))
	defer b.Detach()
	store, err := b.Store()
	require.NoError(t, err)

	l := New(Options{Output: &bytes.Buffer{}, Sink: store})
	l.LogEvent(types.Event{EventType: types.EventWarning, Source: "PruneTask", Code: "EXECUTE", Message: "slow", UserID: 1, UserName: "administrator"})
	require.NoError(t, l.Close())

	events, err := store.ListEvents(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "PruneTask", events[0].Source)
	assert.Equal(t, "administrator", events[0].UserName)
}
