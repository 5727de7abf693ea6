package storage

import (
	"context"

	"CityOps/tools/errs"

	"github.com/jackc/pgx/v5/pgxpool"
)

// OpenPG connects a pgx pool and verifies it with a ping.
func OpenPG(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, errs.Wrap(err, "pgxpool new")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errs.Wrap(err, "pg ping")
	}
	return pool, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id              BIGSERIAL PRIMARY KEY,
	name            TEXT        NOT NULL,
	role            TEXT        NOT NULL DEFAULT 'tech',
	activity_status TEXT        NOT NULL DEFAULT 'offline',
	last_seen       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS messages (
	id           BIGSERIAL PRIMARY KEY,
	sender_id    BIGINT      NOT NULL REFERENCES users(id),
	recipient_id BIGINT      NOT NULL REFERENCES users(id),
	body         TEXT        NOT NULL,
	sent_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	read         BOOLEAN     NOT NULL DEFAULT false,
	edited       BOOLEAN     NOT NULL DEFAULT false
);
CREATE INDEX IF NOT EXISTS idx_messages_pair
	ON messages (sender_id, recipient_id, sent_at);

CREATE TABLE IF NOT EXISTS notifications (
	id         BIGSERIAL PRIMARY KEY,
	target_id  BIGINT       REFERENCES users(id),
	category   TEXT         NOT NULL,
	title      TEXT         NOT NULL DEFAULT '',
	body       TEXT         NOT NULL,
	link       TEXT         NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS notification_reads (
	notification_id BIGINT      NOT NULL REFERENCES notifications(id) ON DELETE CASCADE,
	user_id         BIGINT      NOT NULL REFERENCES users(id),
	hidden          BOOLEAN     NOT NULL DEFAULT false,
	read_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (notification_id, user_id)
);
`

// EnsureSchema creates the tables on boot; all statements are idempotent.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return errs.Wrap(err, "ensure schema")
}
