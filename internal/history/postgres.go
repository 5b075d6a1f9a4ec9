package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ Store = (*PostgresStore)(nil)

const ddlPlayHistory = `
CREATE TABLE IF NOT EXISTS play_history (
    id              BIGSERIAL    PRIMARY KEY,
    guild_id        TEXT         NOT NULL,
    title           TEXT         NOT NULL,
    query           TEXT         NOT NULL DEFAULT '',
    duration_ns     BIGINT       NOT NULL DEFAULT 0,
    requester_id    TEXT         NOT NULL DEFAULT '',
    requester_name  TEXT         NOT NULL DEFAULT '',
    source          TEXT         NOT NULL DEFAULT '',
    played_at       TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_play_history_guild_played
    ON play_history (guild_id, played_at DESC);
`

// PostgresStore is a [Store] backed by a play_history table.
// All methods are safe for concurrent use.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to the database at dsn and runs [Migrate].
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("history: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("history: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

// Migrate creates the play_history table if it does not exist. It is
// idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlPlayHistory); err != nil {
		return fmt.Errorf("history: migrate: %w", err)
	}
	return nil
}

// Record implements [Store].
func (s *PostgresStore) Record(ctx context.Context, e Entry) error {
	const q = `
		INSERT INTO play_history
		    (guild_id, title, query, duration_ns, requester_id, requester_name, source, played_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, q,
		e.GuildID,
		e.Title,
		e.Query,
		e.Duration.Nanoseconds(),
		e.Requester.ID,
		e.Requester.Name,
		e.Source,
		e.PlayedAt,
	)
	if err != nil {
		return fmt.Errorf("history: record: %w", err)
	}
	return nil
}

// Recent implements [Store].
func (s *PostgresStore) Recent(ctx context.Context, guildID string, limit int) ([]Entry, error) {
	const q = `
		SELECT guild_id, title, query, duration_ns, requester_id, requester_name, source, played_at
		FROM   play_history
		WHERE  guild_id = $1
		ORDER  BY played_at DESC, id DESC
		LIMIT  $2`

	if limit <= 0 {
		limit = defaultMemoryCapacity
	}
	rows, err := s.pool.Query(ctx, q, guildID, limit)
	if err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var (
			e          Entry
			durationNS int64
		)
		if err := row.Scan(
			&e.GuildID,
			&e.Title,
			&e.Query,
			&durationNS,
			&e.Requester.ID,
			&e.Requester.Name,
			&e.Source,
			&e.PlayedAt,
		); err != nil {
			return Entry{}, err
		}
		e.Duration = time.Duration(durationNS)
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("history: scan rows: %w", err)
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close implements [Store].
func (s *PostgresStore) Close() {
	s.pool.Close()
}
