package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/Austin-rgb/messages/internal/event"
)

// MessageFilter narrows history reads. Zero values mean "no constraint";
// Limit defaults to 1000.
type MessageFilter struct {
	Source  string
	ReplyTo string
	Limit   int
	Offset  int
}

func (f MessageFilter) limit() int {
	if f.Limit <= 0 {
		return 1000
	}
	return f.Limit
}

// UpsertMessage persists a message keyed by its id. Re-applying the same
// message is a no-op, which is what makes redelivery from the log safe.
func (s *Store) UpsertMessage(ctx context.Context, m event.Message) error {
	var replyTo any
	if m.ReplyTo != "" {
		replyTo = m.ReplyTo
	}
	return retryOnContention(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO messages (id, conversation, source, text, reply_to, created)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING`,
			m.ID, m.Conversation, m.Source, m.Text, replyTo, m.CreatedMs)
		return err
	})
}

// GetMessage fetches one message by id.
func (s *Store) GetMessage(ctx context.Context, id string) (event.Message, error) {
	var m event.Message
	var replyTo sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, conversation, source, text, reply_to, created FROM messages WHERE id = ?`, id,
	).Scan(&m.ID, &m.Conversation, &m.Source, &m.Text, &replyTo, &m.CreatedMs)
	if errors.Is(err, sql.ErrNoRows) {
		return event.Message{}, ErrNotFound
	}
	if err != nil {
		return event.Message{}, err
	}
	m.ReplyTo = replyTo.String
	return m, nil
}

// Messages returns conversation history in creation order, with optional
// filters and paging.
func (s *Store) Messages(ctx context.Context, conversation string, f MessageFilter) ([]event.Message, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT id, conversation, source, text, reply_to, created FROM messages WHERE conversation = ?`)
	args := []any{conversation}
	if f.ReplyTo != "" {
		sb.WriteString(` AND reply_to = ?`)
		args = append(args, f.ReplyTo)
	}
	if f.Source != "" {
		sb.WriteString(` AND source = ?`)
		args = append(args, f.Source)
	}
	sb.WriteString(` ORDER BY created, id LIMIT ? OFFSET ?`)
	args = append(args, f.limit(), f.Offset)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []event.Message
	for rows.Next() {
		var m event.Message
		var replyTo sql.NullString
		if err := rows.Scan(&m.ID, &m.Conversation, &m.Source, &m.Text, &replyTo, &m.CreatedMs); err != nil {
			return nil, err
		}
		m.ReplyTo = replyTo.String
		out = append(out, m)
	}
	return out, rows.Err()
}

// CountMessages returns the number of rows stored for a message id.
// Used by tests asserting upsert idempotence.
func (s *Store) CountMessages(ctx context.Context, id string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE id = ?`, id).Scan(&n)
	return n, err
}

// IsSender reports whether user sent the message with the given id.
func (s *Store) IsSender(ctx context.Context, messageID, user string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM messages WHERE id = ? AND source = ?)`,
		messageID, user,
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists == 1, nil
}
