package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const scenarioSchema = `
	CREATE TABLE IF NOT EXISTS scenario_runs (
		id              BIGSERIAL PRIMARY KEY,
		locality        TEXT        NOT NULL,
		horizon_years   INTEGER     NOT NULL,
		actions         JSONB       NOT NULL,
		final_state     JSONB       NOT NULL,
		explanations    JSONB       NOT NULL,
		trees_needed    INTEGER     NOT NULL,
		overall_status  TEXT        NOT NULL,
		recorded_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`

type PostgresRepository struct {
	DB *sqlx.DB
}

func NewPostgresRepository(ctx context.Context, connStr string) (*PostgresRepository, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return &PostgresRepository{DB: db}, nil
}

// EnsureSchema creates the tables the recorder writes to.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.DB.ExecContext(ctx, scenarioSchema); err != nil {
		return fmt.Errorf("failed to create scenario_runs: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Close() error {
	return r.DB.Close()
}
