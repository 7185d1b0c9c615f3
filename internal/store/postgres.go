package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// PGConfig mirrors the pool knobs we care about for a blob store.
type PGConfig struct {
	DSN             string
	MaxConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS objects (
	key  TEXT PRIMARY KEY,
	data BYTEA NOT NULL
);`

// NewPGStore creates a pgx pool and returns an ObjectStore backed by a
// single bytea table. The schema is created on open.
func NewPGStore(ctx context.Context, cfg PGConfig, logger *slog.Logger) (ObjectStore, *pgxpool.Pool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "docingest"

	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		logger.Error("failed to connect to postgres store", "error", err)
		return nil, nil, err
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("create objects table: %w", err)
	}
	logger.Info("connected to postgres object store")
	return &pgStore{pool: pool, logger: logger}, pool, nil
}

func (s *pgStore) GetObjectBuffer(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM objects WHERE key = $1`, key).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("object %q: %w", key, ErrNotFound)
	}
	if err != nil {
		s.logger.Error("postgres store read failed", "key", key, "error", err)
		return nil, err
	}
	return data, nil
}

func (s *pgStore) PutObjectBuffer(ctx context.Context, key string, data []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO objects (key, data) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data`, key, data)
	if err != nil {
		s.logger.Error("postgres store write failed", "key", key, "error", err)
	}
	return err
}
