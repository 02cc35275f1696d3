// Package imessage reads handles, chats and messages from the Messages store
// (chat.db). Every query is read-only.
package imessage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Napageneral/recall/internal/db"
	"github.com/Napageneral/recall/internal/identify"
)

// Transport is the delivery channel of a handle or message.
type Transport string

const (
	TransportSMS      Transport = "sms"
	TransportIMessage Transport = "imessage"
	TransportRCS      Transport = "rcs"
	TransportOther    Transport = "other"
)

// ParseTransport maps chat.db service names (SMS, iMessage, RCS) to a Transport.
func ParseTransport(service string) Transport {
	switch strings.ToLower(strings.TrimSpace(service)) {
	case "sms":
		return TransportSMS
	case "imessage":
		return TransportIMessage
	case "rcs":
		return TransportRCS
	default:
		return TransportOther
	}
}

// Handle is one raw addressable endpoint.
type Handle struct {
	ID         int64     `json:"id"`
	Identifier string    `json:"identifier"`
	Transport  Transport `json:"transport"`
	Region     string    `json:"region,omitempty"`
}

// Group is a multi-party chat.
type Group struct {
	ID          int64
	Identifier  string
	DisplayName string
	Style       int
}

// GroupStyle is the chat.style value for multi-party chats.
const GroupStyle = 43

// Message is a message row as stored. Sender is the raw identifier of the
// sending handle and is empty for messages sent by the owner.
type Message struct {
	ID        int64
	Date      int64
	Text      string
	Body      []byte
	FromMe    bool
	Transport Transport
	HandleID  int64
	Sender    string
}

// Filter bounds a message fetch.
type Filter struct {
	// Since excludes messages with date <= Since.
	Since int64
	// Limit caps the number of rows; zero means no cap.
	Limit int
	// IncludeSent keeps messages sent by the owner.
	IncludeSent bool
	// TextOnly requires non-empty plain text (encoded-body-only rows are skipped).
	TextOnly bool
}

// Store wraps a read-only chat.db handle.
type Store struct {
	db *sql.DB
}

// Open opens chat.db read-only. Failures wrap db.ErrStoreUnavailable.
func Open(ctx context.Context, driver, path string) (*Store, error) {
	conn, err := db.OpenReadOnly(ctx, driver, path)
	if err != nil {
		return nil, fmt.Errorf("messages store (Full Disk Access required for this process): %w", err)
	}
	return &Store{db: conn}, nil
}

// New wraps an already-open database.
func New(conn *sql.DB) *Store {
	return &Store{db: conn}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// FindHandles returns handles whose raw identifier contains the term, its
// digits, or "+" followed by its digits. No match is an empty result, not an error.
func (s *Store) FindHandles(ctx context.Context, term string) ([]Handle, error) {
	patterns := identify.SearchPatterns(term)
	if len(patterns) == 0 {
		return nil, nil
	}

	clauses := make([]string, 0, len(patterns))
	args := make([]any, 0, len(patterns))
	for _, p := range patterns {
		clauses = append(clauses, `id LIKE ? ESCAPE '\'`)
		args = append(args, "%"+likeEscaper.Replace(p)+"%")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT ROWID, id, COALESCE(service, ''), COALESCE(country, '')
		FROM handle
		WHERE `+strings.Join(clauses, " OR ")+`
		ORDER BY ROWID
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query handles: %w", err)
	}
	defer rows.Close()

	var out []Handle
	for rows.Next() {
		var h Handle
		var service string
		if err := rows.Scan(&h.ID, &h.Identifier, &service, &h.Region); err != nil {
			return nil, fmt.Errorf("failed to scan handle: %w", err)
		}
		h.Transport = ParseTransport(service)
		out = append(out, h)
	}
	return out, rows.Err()
}

const messageColumns = `
	m.ROWID,
	COALESCE(m.date, 0),
	COALESCE(m.text, ''),
	m.attributedBody,
	COALESCE(m.is_from_me, 0),
	COALESCE(m.service, ''),
	COALESCE(m.handle_id, 0),
	COALESCE(h.id, '')
`

func (f Filter) where() (string, []any) {
	conds := []string{"m.date > ?"}
	args := []any{f.Since}
	if f.TextOnly {
		conds = append(conds, "m.text IS NOT NULL AND TRIM(m.text) != ''")
	} else {
		conds = append(conds, "((m.text IS NOT NULL AND TRIM(m.text) != '') OR m.attributedBody IS NOT NULL)")
	}
	if !f.IncludeSent {
		conds = append(conds, "m.is_from_me = 0")
	}
	return strings.Join(conds, " AND "), args
}

func (f Filter) limit() (string, []any) {
	if f.Limit <= 0 {
		return "", nil
	}
	return " LIMIT ?", []any{f.Limit}
}

// HandleMessages fetches every message on a set of handle ids in a single
// query, newest first, whichever chat it was posted in.
func (s *Store) HandleMessages(ctx context.Context, handleIDs []int64, f Filter) ([]Message, error) {
	if len(handleIDs) == 0 {
		return nil, nil
	}
	in, inArgs := int64Placeholders(handleIDs)
	where, whereArgs := f.where()
	lim, limArgs := f.limit()

	args := append(inArgs, whereArgs...)
	args = append(args, limArgs...)
	return s.queryMessages(ctx, `
		SELECT `+messageColumns+`
		FROM message m
		LEFT JOIN handle h ON h.ROWID = m.handle_id
		WHERE m.handle_id IN (`+in+`) AND `+where+`
		ORDER BY m.date DESC, m.ROWID DESC`+lim, args...)
}

// GroupMessages fetches a chat's messages via chat_message_join, newest first.
func (s *Store) GroupMessages(ctx context.Context, groupID int64, f Filter) ([]Message, error) {
	where, whereArgs := f.where()
	lim, limArgs := f.limit()

	args := append([]any{groupID}, whereArgs...)
	args = append(args, limArgs...)
	return s.queryMessages(ctx, `
		SELECT `+messageColumns+`
		FROM message m
		JOIN chat_message_join cmj ON cmj.message_id = m.ROWID
		LEFT JOIN handle h ON h.ROWID = m.handle_id
		WHERE cmj.chat_id = ? AND `+where+`
		ORDER BY m.date DESC, m.ROWID DESC`+lim, args...)
}

func (s *Store) queryMessages(ctx context.Context, query string, args ...any) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var fromMe int
		var service string
		if err := rows.Scan(&m.ID, &m.Date, &m.Text, &m.Body, &fromMe, &service, &m.HandleID, &m.Sender); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.FromMe = fromMe == 1
		if m.FromMe {
			m.Sender = ""
		}
		m.Transport = ParseTransport(service)
		out = append(out, m)
	}
	return out, rows.Err()
}

// FindGroups returns multi-party chats whose display name or chat identifier
// contains query (case-sensitive), most recently active first.
func (s *Store) FindGroups(ctx context.Context, query string, limit int) ([]Group, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.ROWID, COALESCE(c.chat_identifier, ''), COALESCE(c.display_name, ''), COALESCE(c.style, 0)
		FROM chat c
		WHERE c.style = ?
		  AND (instr(COALESCE(c.display_name, ''), ?) > 0 OR instr(COALESCE(c.chat_identifier, ''), ?) > 0)
		ORDER BY (SELECT MAX(cmj.message_date) FROM chat_message_join cmj WHERE cmj.chat_id = c.ROWID) DESC, c.ROWID DESC
		LIMIT ?
	`, GroupStyle, query, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	defer rows.Close()

	var out []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.Identifier, &g.DisplayName, &g.Style); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// GroupByID looks up a chat by ROWID. ok is false when it does not exist.
func (s *Store) GroupByID(ctx context.Context, id int64) (g Group, ok bool, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT ROWID, COALESCE(chat_identifier, ''), COALESCE(display_name, ''), COALESCE(style, 0)
		FROM chat
		WHERE ROWID = ?
	`, id).Scan(&g.ID, &g.Identifier, &g.DisplayName, &g.Style)
	if err == sql.ErrNoRows {
		return Group{}, false, nil
	}
	if err != nil {
		return Group{}, false, fmt.Errorf("failed to get group %d: %w", id, err)
	}
	return g, true, nil
}

// GroupParticipants returns the handles joined to a chat.
func (s *Store) GroupParticipants(ctx context.Context, groupID int64) ([]Handle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT h.ROWID, h.id, COALESCE(h.service, ''), COALESCE(h.country, '')
		FROM chat_handle_join chj
		JOIN handle h ON h.ROWID = chj.handle_id
		WHERE chj.chat_id = ?
		ORDER BY h.ROWID
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query group participants: %w", err)
	}
	defer rows.Close()

	var out []Handle
	for rows.Next() {
		var h Handle
		var service string
		if err := rows.Scan(&h.ID, &h.Identifier, &service, &h.Region); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		h.Transport = ParseTransport(service)
		out = append(out, h)
	}
	return out, rows.Err()
}

func int64Placeholders(ids []int64) (string, []any) {
	marks := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		marks[i] = "?"
		args[i] = id
	}
	return strings.Join(marks, ", "), args
}
