package storage

import (
	"context"

	"CityOps/model"
	"CityOps/tools/errs"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

type MessageStore struct {
	pool *pgxpool.Pool
}

func NewMessageStore(pool *pgxpool.Pool) *MessageStore {
	return &MessageStore{pool: pool}
}

func (s *MessageStore) Insert(ctx context.Context, senderID, recipientID int64, body string) (model.Message, error) {
	m := model.Message{SenderID: senderID, RecipientID: recipientID, Body: body}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO messages (sender_id, recipient_id, body) VALUES ($1, $2, $3)
		 RETURNING id, sent_at`,
		senderID, recipientID, body).Scan(&m.ID, &m.SentAt)
	return m, errs.Wrap(err, "insert message")
}

func (s *MessageStore) Get(ctx context.Context, id int64) (model.Message, error) {
	var m model.Message
	err := s.pool.QueryRow(ctx,
		`SELECT id, sender_id, recipient_id, body, sent_at, read, edited
		 FROM messages WHERE id = $1`, id).
		Scan(&m.ID, &m.SenderID, &m.RecipientID, &m.Body, &m.SentAt, &m.Read, &m.Edited)
	if errors.Is(err, pgx.ErrNoRows) {
		return m, errs.ErrNotFound
	}
	return m, errs.Wrap(err, "get message")
}

// Thread returns both directions of the (viewer, peer) conversation, oldest
// first.
func (s *MessageStore) Thread(ctx context.Context, viewerID, peerID int64) ([]model.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, sender_id, recipient_id, body, sent_at, read, edited
		 FROM messages
		 WHERE (sender_id = $1 AND recipient_id = $2)
		    OR (sender_id = $2 AND recipient_id = $1)
		 ORDER BY sent_at, id`,
		viewerID, peerID)
	if err != nil {
		return nil, errs.Wrap(err, "query thread")
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.SenderID, &m.RecipientID, &m.Body, &m.SentAt, &m.Read, &m.Edited); err != nil {
			return nil, errs.Wrap(err, "scan message")
		}
		out = append(out, m)
	}
	return out, errs.Wrap(rows.Err(), "iterate thread")
}

// UpdateBody rewrites the body and flips the edited flag. Ownership is the
// caller's problem; the store runs whatever the REST layer decided.
func (s *MessageStore) UpdateBody(ctx context.Context, id int64, body string) (model.Message, error) {
	var m model.Message
	err := s.pool.QueryRow(ctx,
		`UPDATE messages SET body = $2, edited = true WHERE id = $1
		 RETURNING id, sender_id, recipient_id, body, sent_at, read, edited`,
		id, body).
		Scan(&m.ID, &m.SenderID, &m.RecipientID, &m.Body, &m.SentAt, &m.Read, &m.Edited)
	if errors.Is(err, pgx.ErrNoRows) {
		return m, errs.ErrNotFound
	}
	return m, errs.Wrap(err, "update message body")
}

func (s *MessageStore) Delete(ctx context.Context, id int64) error {
	ct, err := s.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return errs.Wrap(err, "delete message")
	}
	if ct.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// MarkThreadRead flips read on everything the peer sent the viewer; returns
// how many rows flipped.
func (s *MessageStore) MarkThreadRead(ctx context.Context, viewerID, peerID int64) (int64, error) {
	ct, err := s.pool.Exec(ctx,
		`UPDATE messages SET read = true
		 WHERE sender_id = $2 AND recipient_id = $1 AND NOT read`,
		viewerID, peerID)
	if err != nil {
		return 0, errs.Wrap(err, "mark thread read")
	}
	return ct.RowsAffected(), nil
}

// Summaries recomputes the per-counterpart aggregate from the message set.
// The unread column is counted, never cached, so a summary can always be
// rebuilt from messages alone.
func (s *MessageStore) Summaries(ctx context.Context, viewerID int64) ([]model.ConversationSummary, error) {
	rows, err := s.pool.Query(ctx, `
		WITH pairs AS (
			SELECT CASE WHEN sender_id = $1 THEN recipient_id ELSE sender_id END AS peer_id,
			       id, body, sent_at,
			       CASE WHEN recipient_id = $1 AND NOT read THEN 1 ELSE 0 END AS unread
			FROM messages
			WHERE sender_id = $1 OR recipient_id = $1
		), ranked AS (
			SELECT peer_id, body, sent_at,
			       ROW_NUMBER() OVER (PARTITION BY peer_id ORDER BY sent_at DESC, id DESC) AS rn,
			       SUM(unread)  OVER (PARTITION BY peer_id) AS unread_count
			FROM pairs
		)
		SELECT r.peer_id, u.name, r.body, r.sent_at, r.unread_count
		FROM ranked r
		JOIN users u ON u.id = r.peer_id
		WHERE r.rn = 1
		ORDER BY r.sent_at DESC`,
		viewerID)
	if err != nil {
		return nil, errs.Wrap(err, "query summaries")
	}
	defer rows.Close()

	var out []model.ConversationSummary
	for rows.Next() {
		var c model.ConversationSummary
		if err := rows.Scan(&c.PeerID, &c.PeerName, &c.LastBody, &c.LastAt, &c.Unread); err != nil {
			return nil, errs.Wrap(err, "scan summary")
		}
		out = append(out, c)
	}
	return out, errs.Wrap(rows.Err(), "iterate summaries")
}
