package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"twin_service/internal/domain/model"
)

// Scenario is one applied prediction together with the inputs that produced it.
type Scenario struct {
	Locality      string
	HorizonYears  int
	Actions       model.Actions
	FinalState    model.TimePoint
	Explanations  []string
	TreesNeeded   int
	OverallStatus string
}

type ScenarioRecorder interface {
	RecordScenario(ctx context.Context, s Scenario) error
}

type PostgresScenarioRecorder struct {
	db *sqlx.DB
}

func NewPostgresScenarioRecorder(db *sqlx.DB) *PostgresScenarioRecorder {
	return &PostgresScenarioRecorder{db: db}
}

func (r *PostgresScenarioRecorder) RecordScenario(ctx context.Context, s Scenario) error {
	const query = `
		INSERT INTO scenario_runs (
			locality, horizon_years,
			actions, final_state, explanations,
			trees_needed, overall_status
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)`

	actionsJSON, err := json.Marshal(s.Actions)
	if err != nil {
		return fmt.Errorf("failed to marshal actions: %w", err)
	}
	finalJSON, err := json.Marshal(s.FinalState)
	if err != nil {
		return fmt.Errorf("failed to marshal final state: %w", err)
	}
	explanations := s.Explanations
	if explanations == nil {
		explanations = []string{}
	}
	explanationsJSON, err := json.Marshal(explanations)
	if err != nil {
		return fmt.Errorf("failed to marshal explanations: %w", err)
	}

	_, err = r.db.ExecContext(ctx, query,
		s.Locality, s.HorizonYears,
		actionsJSON, finalJSON, explanationsJSON,
		s.TreesNeeded, s.OverallStatus,
	)
	if err != nil {
		return fmt.Errorf("failed to insert scenario: %w", err)
	}
	return nil
}

// RecentScenario is a row read back from scenario_runs.
type RecentScenario struct {
	Locality      string    `db:"locality"`
	HorizonYears  int       `db:"horizon_years"`
	TreesNeeded   int       `db:"trees_needed"`
	OverallStatus string    `db:"overall_status"`
	RecordedAt    time.Time `db:"recorded_at"`
}

// Recent returns the latest recorded runs for a locality, newest first.
func (r *PostgresScenarioRecorder) Recent(ctx context.Context, locality string, limit int) ([]RecentScenario, error) {
	const query = `
		SELECT locality, horizon_years, trees_needed, overall_status, recorded_at
		FROM scenario_runs
		WHERE locality = $1
		ORDER BY recorded_at DESC
		LIMIT $2`

	var rows []RecentScenario
	if err := r.db.SelectContext(ctx, &rows, query, locality, limit); err != nil {
		return nil, fmt.Errorf("failed to query scenarios: %w", err)
	}
	return rows, nil
}
