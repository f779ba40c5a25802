package runrepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domain "github.com/yanqian/qa-trainer/internal/domain/training"
)

// PostgresSchema creates the run registry table.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS training_runs (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	model_class TEXT NOT NULL,
	status TEXT NOT NULL,
	serialization_prefix TEXT NOT NULL,
	config_key TEXT NOT NULL,
	epochs JSONB NOT NULL DEFAULT '[]'::jsonb,
	best_epoch INTEGER,
	failure_reason TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_training_runs_created ON training_runs (created_at DESC);
`

// PostgresRepository persists runs in Postgres.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository constructs the repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Migrate applies PostgresSchema.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, PostgresSchema)
	return err
}

func (r *PostgresRepository) Create(ctx context.Context, run domain.Run) error {
	epochs, err := encodeEpochs(run.Epochs)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO training_runs (id, name, model_class, status, serialization_prefix, config_key, epochs, best_epoch, failure_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9, $10, $11)
	`, run.ID, run.Name, run.ModelClass, string(run.Status), run.SerializationPrefix, run.ConfigKey,
		epochs, run.BestEpoch, run.FailureReason, run.CreatedAt, run.UpdatedAt)
	return err
}

func (r *PostgresRepository) Update(ctx context.Context, run domain.Run) error {
	epochs, err := encodeEpochs(run.Epochs)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE training_runs
		SET name = $1, status = $2, epochs = $3::jsonb, best_epoch = $4, failure_reason = $5, updated_at = $6
		WHERE id = $7
	`, run.Name, string(run.Status), epochs, run.BestEpoch, run.FailureReason, run.UpdatedAt, run.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const postgresColumns = `id, name, model_class, status, serialization_prefix, config_key, epochs, best_epoch, failure_reason, created_at, updated_at`

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (domain.Run, bool, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+postgresColumns+` FROM training_runs WHERE id = $1 LIMIT 1`, id)
	run, err := scanPostgresRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Run{}, false, nil
		}
		return domain.Run{}, false, err
	}
	return run, true, nil
}

func (r *PostgresRepository) List(ctx context.Context, filter domain.RunFilter) ([]domain.Run, error) {
	query := `SELECT ` + postgresColumns + ` FROM training_runs`
	var args []any
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, statuses)
		query += ` WHERE status = ANY($1)`
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Run
	for rows.Next() {
		run, err := scanPostgresRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func scanPostgresRun(row pgx.Row) (domain.Run, error) {
	var (
		run    domain.Run
		status string
		epochs []byte
	)
	if err := row.Scan(&run.ID, &run.Name, &run.ModelClass, &status, &run.SerializationPrefix, &run.ConfigKey,
		&epochs, &run.BestEpoch, &run.FailureReason, &run.CreatedAt, &run.UpdatedAt); err != nil {
		return domain.Run{}, err
	}
	run.Status = domain.RunStatus(status)
	if err := json.Unmarshal(epochs, &run.Epochs); err != nil {
		return domain.Run{}, fmt.Errorf("decode epochs: %w", err)
	}
	return run, nil
}

var _ domain.RunRepository = (*PostgresRepository)(nil)
