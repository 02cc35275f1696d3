package imessage

import (
	"context"
	"fmt"
)

// Activity is a message's metadata without its body.
type Activity struct {
	Date      int64
	FromMe    bool
	Transport Transport
	Sender    string
}

// HandleActivity returns metadata for every message on the given handles
// since the threshold, newest first.
func (s *Store) HandleActivity(ctx context.Context, handleIDs []int64, since int64) ([]Activity, error) {
	if len(handleIDs) == 0 {
		return nil, nil
	}
	in, args := int64Placeholders(handleIDs)
	args = append(args, since)
	return s.queryActivity(ctx, `
		SELECT COALESCE(m.date, 0), COALESCE(m.is_from_me, 0), COALESCE(m.service, ''), COALESCE(h.id, '')
		FROM message m
		LEFT JOIN handle h ON h.ROWID = m.handle_id
		WHERE m.handle_id IN (`+in+`) AND m.date > ?
		ORDER BY m.date DESC
	`, args...)
}

// GroupActivity returns metadata for every message in a chat since the threshold.
func (s *Store) GroupActivity(ctx context.Context, groupID int64, since int64) ([]Activity, error) {
	return s.queryActivity(ctx, `
		SELECT COALESCE(m.date, 0), COALESCE(m.is_from_me, 0), COALESCE(m.service, ''), COALESCE(h.id, '')
		FROM message m
		JOIN chat_message_join cmj ON cmj.message_id = m.ROWID
		LEFT JOIN handle h ON h.ROWID = m.handle_id
		WHERE cmj.chat_id = ? AND m.date > ?
		ORDER BY m.date DESC
	`, groupID, since)
}

func (s *Store) queryActivity(ctx context.Context, query string, args ...any) ([]Activity, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity: %w", err)
	}
	defer rows.Close()

	var out []Activity
	for rows.Next() {
		var a Activity
		var fromMe int
		var service string
		if err := rows.Scan(&a.Date, &fromMe, &service, &a.Sender); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		a.FromMe = fromMe == 1
		if a.FromMe {
			a.Sender = ""
		}
		a.Transport = ParseTransport(service)
		out = append(out, a)
	}
	return out, rows.Err()
}
