package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/mesh-intelligence/folio/pkg/types"
)

// InsertEvent appends an event log record.
func (s *Store) InsertEvent(ctx context.Context, e *types.Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO event_log (event_type, source, code, message, url, user_id, user_name, site_id, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.EventType, e.Source, e.Code, e.Message, e.URL, e.UserID, e.UserName, e.SiteID, formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}
	if e.EventID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("reading event ID: %w", err)
	}
	return nil
}

// ListEvents returns the most recent events, newest first. A limit <= 0
// returns everything.
func (s *Store) ListEvents(ctx context.Context, limit int) ([]*types.Event, error) {
	query := `SELECT event_id, event_type, source, code, message, url, user_id, user_name, site_id, created_at
        FROM event_log ORDER BY event_id DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	defer rows.Close()

	var events []*types.Event
	for rows.Next() {
		var e types.Event
		var created string
		if err := rows.Scan(&e.EventID, &e.EventType, &e.Source, &e.Code, &e.Message, &e.URL,
			&e.UserID, &e.UserName, &e.SiteID, &created); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		if e.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}
	return events, nil
}
