package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrConversationExists is returned when creating a conversation whose name
// is already taken.
var ErrConversationExists = errors.New("store: conversation exists")

// Conversation is a named multi-participant mailbox. The name is immutable
// once created.
type Conversation struct {
	Name      string `json:"name"`
	Admin     string `json:"admin"`
	Title     string `json:"title,omitempty"`
	CreatedMs int64  `json:"created"`
}

// CreateConversation inserts the conversation and its participant set in one
// transaction. The admin is always a participant.
func (s *Store) CreateConversation(ctx context.Context, name, title, admin string, participants []string) (Conversation, error) {
	created := nowMs()
	conv := Conversation{Name: name, Admin: admin, Title: title, CreatedMs: created}

	err := retryOnContention(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		var exists int
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM conversations WHERE name = ?)`, name,
		).Scan(&exists); err != nil {
			return err
		}
		if exists == 1 {
			return ErrConversationExists
		}

		var titleArg any
		if title != "" {
			titleArg = title
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO conversations (name, admin, title, created) VALUES (?, ?, ?, ?)`,
			name, admin, titleArg, created,
		); err != nil {
			return err
		}

		seen := map[string]bool{}
		for _, p := range append([]string{admin}, participants...) {
			if p == "" || seen[p] {
				continue
			}
			seen[p] = true
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO participants (conversation, participant, created) VALUES (?, ?, ?)`,
				name, p, created,
			); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return Conversation{}, err
	}
	return conv, nil
}

// GetConversation fetches one conversation by name.
func (s *Store) GetConversation(ctx context.Context, name string) (Conversation, error) {
	var c Conversation
	var title sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT name, admin, title, created FROM conversations WHERE name = ?`, name,
	).Scan(&c.Name, &c.Admin, &title, &c.CreatedMs)
	if errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, err
	}
	c.Title = title.String
	return c, nil
}

// ListConversations returns the conversations user participates in, newest
// first.
func (s *Store) ListConversations(ctx context.Context, user string) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.name, c.admin, c.title, c.created
		FROM conversations c
		JOIN participants p ON p.conversation = c.name
		WHERE p.participant = ?
		ORDER BY c.created DESC`, user)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		var title sql.NullString
		if err := rows.Scan(&c.Name, &c.Admin, &title, &c.CreatedMs); err != nil {
			return nil, err
		}
		c.Title = title.String
		out = append(out, c)
	}
	return out, rows.Err()
}

// AddParticipant inserts a membership row; adding an existing member is a
// no-op.
func (s *Store) AddParticipant(ctx context.Context, conversation, user string) error {
	return retryOnContention(func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO participants (conversation, participant, created) VALUES (?, ?, ?)`,
			conversation, user, nowMs())
		return err
	})
}

// Participants returns the member set of a conversation.
func (s *Store) Participants(ctx context.Context, conversation string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT participant FROM participants WHERE conversation = ? ORDER BY id`, conversation)
	if err != nil {
		return nil, fmt.Errorf("participants: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// IsParticipant reports whether user is a member of conversation.
func (s *Store) IsParticipant(ctx context.Context, conversation, user string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM participants WHERE conversation = ? AND participant = ?)`,
		conversation, user,
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists == 1, nil
}
