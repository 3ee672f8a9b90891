package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore is the Postgres-backed Store. Records live in kv_records with a
// version column; compare-and-swap is a conditional UPDATE checked via
// RowsAffected, so concurrent writers serialize without explicit locks.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a Postgres-backed store over the given pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) Get(ctx context.Context, key string) (*Record, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT value, version
		FROM kv_records
		WHERE key = $1 AND (expires_at IS NULL OR expires_at > now())`, key)

	var rec Record
	if err := row.Scan(&rec.Value, &rec.Version); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return &rec, nil
}

func (s *PGStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt *time.Time
	if ttl > 0 {
		t := time.Now().Add(ttl)
		expiresAt = &t
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO kv_records (key, value, version, expires_at)
		VALUES ($1, $2, 1, $3)
		ON CONFLICT (key) DO UPDATE SET value = $2, version = 1, expires_at = $3`,
		key, value, expiresAt)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (s *PGStore) CompareAndSwap(ctx context.Context, key string, expectedVersion int64, value []byte) (*Record, error) {
	if expectedVersion == 0 {
		tag, err := s.pool.Exec(ctx, `
			INSERT INTO kv_records (key, value, version)
			VALUES ($1, $2, 1)
			ON CONFLICT (key) DO NOTHING`, key, value)
		if err != nil {
			return nil, fmt.Errorf("cas create %s: %w", key, err)
		}
		if tag.RowsAffected() == 0 {
			return nil, ErrVersionConflict
		}
		return &Record{Value: value, Version: 1}, nil
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE kv_records
		SET value = $2, version = version + 1
		WHERE key = $1 AND version = $3`, key, value, expectedVersion)
	if err != nil {
		return nil, fmt.Errorf("cas %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing key from a lost race.
		if _, err := s.Get(ctx, key); err != nil {
			return nil, err
		}
		return nil, ErrVersionConflict
	}
	return &Record{Value: value, Version: expectedVersion + 1}, nil
}

func (s *PGStore) Append(ctx context.Context, key string, value []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO kv_lists (key, value) VALUES ($1, $2)`, key, value)
	if err != nil {
		return fmt.Errorf("append %s: %w", key, err)
	}
	return nil
}

func (s *PGStore) List(ctx context.Context, key string) ([][]byte, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT value FROM kv_lists WHERE key = $1 ORDER BY ord ASC`, key)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", key, err)
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var v []byte
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan list %s: %w", key, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *PGStore) Trim(ctx context.Context, key string, n int) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM kv_lists
		WHERE key = $1 AND ord IN (
			SELECT ord FROM kv_lists WHERE key = $1 ORDER BY ord ASC LIMIT $2)`,
		key, n)
	if err != nil {
		return fmt.Errorf("trim %s: %w", key, err)
	}
	return nil
}

func (s *PGStore) AddMember(ctx context.Context, key, member string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO kv_sets (key, member) VALUES ($1, $2)
		ON CONFLICT (key, member) DO NOTHING`, key, member)
	if err != nil {
		return fmt.Errorf("add member %s: %w", key, err)
	}
	return nil
}

func (s *PGStore) Members(ctx context.Context, key string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT member FROM kv_sets WHERE key = $1 ORDER BY member ASC`, key)
	if err != nil {
		return nil, fmt.Errorf("members %s: %w", key, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, fmt.Errorf("scan member %s: %w", key, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PGStore) Delete(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM kv_records WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
