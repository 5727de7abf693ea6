package storage

import (
	"context"
	"time"

	"CityOps/model"
	"CityOps/tools/errs"

	"github.com/jackc/pgx/v5/pgxpool"
)

type UserStore struct {
	pool *pgxpool.Pool
}

func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

// SetActivityStatus persists the presence flip; the caller treats failures as
// best-effort and only logs them.
func (s *UserStore) SetActivityStatus(ctx context.Context, userID int64, status model.ActivityStatus, lastSeen time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE users SET activity_status = $2, last_seen = $3 WHERE id = $1`,
		userID, string(status), lastSeen)
	return errs.Wrap(err, "set activity status")
}

func (s *UserStore) Exists(ctx context.Context, userID int64) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&ok)
	return ok, errs.Wrap(err, "user exists")
}

// List returns the directory used by clients to map ids to display names.
func (s *UserStore) List(ctx context.Context) ([]model.User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, role, activity_status, last_seen FROM users ORDER BY name`)
	if err != nil {
		return nil, errs.Wrap(err, "list users")
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		var u model.User
		var status string
		if err := rows.Scan(&u.ID, &u.Name, &u.Role, &status, &u.LastSeen); err != nil {
			return nil, errs.Wrap(err, "scan user")
		}
		u.ActivityStatus = model.ActivityStatus(status)
		out = append(out, u)
	}
	return out, errs.Wrap(rows.Err(), "iterate users")
}
