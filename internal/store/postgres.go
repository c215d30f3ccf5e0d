package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/quickcal/quickcal-server-go/internal/config"
	"github.com/quickcal/quickcal-server-go/internal/model"
)

// PostgresStore keeps the snapshot as a single JSONB row, upserted whole on
// every save. That preserves the same last-writer-wins whole-record semantics
// as the file store.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	db.SetMaxOpenConns(config.DBMaxOpenConns)
	db.SetMaxIdleConns(config.DBMaxIdleConns)
	db.SetConnMaxLifetime(config.DBConnMaxLifetime)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS registry_snapshot (
			id INT PRIMARY KEY,
			data JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure snapshot table: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Save(ctx context.Context, snapshot model.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO registry_snapshot (id, data, updated_at)
		VALUES (1, $1, NOW())
		ON CONFLICT (id) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = NOW()
	`, data)
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context) (model.Snapshot, error) {
	var data []byte
	err := s.db.GetContext(ctx, &data, `SELECT data FROM registry_snapshot WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Snapshot{}, nil
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to read snapshot row, starting empty")
		return model.Snapshot{}, nil
	}

	var snapshot model.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		log.Error().Err(err).Msg("corrupt snapshot row, starting empty")
		return model.Snapshot{}, nil
	}
	if snapshot == nil {
		snapshot = model.Snapshot{}
	}
	return snapshot, nil
}
