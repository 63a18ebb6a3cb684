package store

import (
	"context"
	"database/sql"
)

// Receipt is the persisted per-recipient state of one message.
type Receipt struct {
	Message       string `json:"message"`
	User          string `json:"user"`
	DeliveredAtMs *int64 `json:"delivered_at,omitempty"`
	ReadAtMs      *int64 `json:"read_at,omitempty"`
	Reaction      *int64 `json:"reaction,omitempty"`
	UpdatedMs     int64  `json:"updated"`
}

// ReceiptUpdate is one receipt event flattened for persistence. A nil field
// leaves the corresponding column untouched by the merge.
type ReceiptUpdate struct {
	Message       string
	User          string
	DeliveredAtMs *int64
	ReadAtMs      *int64
	Reaction      *int64
	TsMs          int64
}

// UpsertReceipt merges one receipt update into the (message, user) row.
//
// The merge is what absorbs at-least-once redelivery: delivered_at and
// read_at keep their first value once set (flags never revert), while the
// reaction takes the event with the newest timestamp and is never cleared by
// an event that carries no reaction. A redelivered DeliveryMarked therefore
// cannot un-set a later ReadMarked or wipe a reaction.
func (s *Store) UpsertReceipt(ctx context.Context, u ReceiptUpdate) error {
	return retryOnContention(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO message_receipts (message, user, delivered_at, read_at, reaction, updated)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(message, user) DO UPDATE SET
				delivered_at = COALESCE(message_receipts.delivered_at, excluded.delivered_at),
				read_at      = COALESCE(message_receipts.read_at, excluded.read_at),
				reaction     = CASE
					WHEN excluded.reaction IS NOT NULL AND excluded.updated >= message_receipts.updated
						THEN excluded.reaction
					ELSE message_receipts.reaction
				END,
				updated      = MAX(message_receipts.updated, excluded.updated)`,
			u.Message, u.User, nullableInt(u.DeliveredAtMs), nullableInt(u.ReadAtMs), nullableInt(u.Reaction), u.TsMs)
		return err
	})
}

// Receipts returns all per-recipient receipts for a message.
func (s *Store) Receipts(ctx context.Context, messageID string) ([]Receipt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message, user, delivered_at, read_at, reaction, updated
		 FROM message_receipts WHERE message = ? ORDER BY user`, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Receipt
	for rows.Next() {
		var r Receipt
		var deliveredAt, readAt, reaction sql.NullInt64
		if err := rows.Scan(&r.Message, &r.User, &deliveredAt, &readAt, &reaction, &r.UpdatedMs); err != nil {
			return nil, err
		}
		r.DeliveredAtMs = intPtr(deliveredAt)
		r.ReadAtMs = intPtr(readAt)
		r.Reaction = intPtr(reaction)
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetReceipt returns the receipt row for (message, user), or ErrNotFound.
func (s *Store) GetReceipt(ctx context.Context, messageID, user string) (Receipt, error) {
	var r Receipt
	var deliveredAt, readAt, reaction sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT message, user, delivered_at, read_at, reaction, updated
		 FROM message_receipts WHERE message = ? AND user = ?`, messageID, user,
	).Scan(&r.Message, &r.User, &deliveredAt, &readAt, &reaction, &r.UpdatedMs)
	if err == sql.ErrNoRows {
		return Receipt{}, ErrNotFound
	}
	if err != nil {
		return Receipt{}, err
	}
	r.DeliveredAtMs = intPtr(deliveredAt)
	r.ReadAtMs = intPtr(readAt)
	r.Reaction = intPtr(reaction)
	return r, nil
}

func nullableInt(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func intPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}
