package storage

import (
	"context"

	"CityOps/model"
	"CityOps/tools/errs"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

type NotificationStore struct {
	pool *pgxpool.Pool
}

func NewNotificationStore(pool *pgxpool.Pool) *NotificationStore {
	return &NotificationStore{pool: pool}
}

func (s *NotificationStore) Insert(ctx context.Context, n model.Notification) (model.Notification, error) {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO notifications (target_id, category, title, body, link)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		n.TargetID, n.Category, n.Title, n.Body, n.Link).Scan(&n.ID, &n.CreatedAt)
	return n, errs.Wrap(err, "insert notification")
}

func (s *NotificationStore) Get(ctx context.Context, id int64) (model.Notification, error) {
	var n model.Notification
	err := s.pool.QueryRow(ctx,
		`SELECT id, target_id, category, title, body, link, created_at
		 FROM notifications WHERE id = $1`, id).
		Scan(&n.ID, &n.TargetID, &n.Category, &n.Title, &n.Body, &n.Link, &n.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return n, errs.ErrNotFound
	}
	return n, errs.Wrap(err, "get notification")
}

// FeedFor lists what the viewer can see: their private notifications plus
// every broadcast, each joined with the viewer's own read receipt. Rows the
// viewer hid are filtered out; other viewers keep seeing them.
func (s *NotificationStore) FeedFor(ctx context.Context, viewerID int64) ([]model.Notification, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT n.id, n.target_id, n.category, n.title, n.body, n.link, n.created_at,
		        (r.user_id IS NOT NULL AND NOT r.hidden) AS read
		 FROM notifications n
		 LEFT JOIN notification_reads r
		   ON r.notification_id = n.id AND r.user_id = $1
		 WHERE (n.target_id = $1 OR n.target_id IS NULL)
		   AND COALESCE(r.hidden, false) = false
		 ORDER BY n.created_at DESC, n.id DESC`,
		viewerID)
	if err != nil {
		return nil, errs.Wrap(err, "query feed")
	}
	defer rows.Close()

	var out []model.Notification
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.TargetID, &n.Category, &n.Title, &n.Body, &n.Link, &n.CreatedAt, &n.Read); err != nil {
			return nil, errs.Wrap(err, "scan notification")
		}
		out = append(out, n)
	}
	return out, errs.Wrap(rows.Err(), "iterate feed")
}

// MarkRead upserts the viewer's receipt. Read state is per viewer even for
// broadcast rows.
func (s *NotificationStore) MarkRead(ctx context.Context, id, viewerID int64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO notification_reads (notification_id, user_id)
		 VALUES ($1, $2)
		 ON CONFLICT (notification_id, user_id) DO UPDATE SET read_at = now()`,
		id, viewerID)
	return errs.Wrap(err, "mark notification read")
}

// MarkAllRead writes receipts for every visible unread notification.
func (s *NotificationStore) MarkAllRead(ctx context.Context, viewerID int64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO notification_reads (notification_id, user_id)
		 SELECT n.id, $1 FROM notifications n
		 WHERE (n.target_id = $1 OR n.target_id IS NULL)
		 ON CONFLICT (notification_id, user_id) DO NOTHING`,
		viewerID)
	return errs.Wrap(err, "mark all notifications read")
}

// Hide makes a broadcast notification invisible to this viewer only.
func (s *NotificationStore) Hide(ctx context.Context, id, viewerID int64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO notification_reads (notification_id, user_id, hidden)
		 VALUES ($1, $2, true)
		 ON CONFLICT (notification_id, user_id) DO UPDATE SET hidden = true`,
		id, viewerID)
	return errs.Wrap(err, "hide notification")
}

// Delete hard-deletes a private notification; receipts cascade.
func (s *NotificationStore) Delete(ctx context.Context, id int64) error {
	ct, err := s.pool.Exec(ctx, `DELETE FROM notifications WHERE id = $1`, id)
	if err != nil {
		return errs.Wrap(err, "delete notification")
	}
	if ct.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
