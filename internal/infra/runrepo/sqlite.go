package runrepo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	domain "github.com/yanqian/qa-trainer/internal/domain/training"
)

// SQLiteSchema creates the run registry table.
const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS training_runs (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	model_class TEXT NOT NULL,
	status TEXT NOT NULL,
	serialization_prefix TEXT NOT NULL,
	config_key TEXT NOT NULL,
	epochs TEXT NOT NULL DEFAULT '[]',
	best_epoch INTEGER,
	failure_reason TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_training_runs_created ON training_runs (created_at DESC);
`

// SQLiteRepository stores runs in a local SQLite file.
type SQLiteRepository struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies the schema.
func OpenSQLite(path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer at a time
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(SQLiteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

// Close releases the database handle.
func (r *SQLiteRepository) Close() error { return r.db.Close() }

func (r *SQLiteRepository) Create(ctx context.Context, run domain.Run) error {
	epochs, err := encodeEpochs(run.Epochs)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO training_runs (id, name, model_class, status, serialization_prefix, config_key, epochs, best_epoch, failure_reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID.String(), run.Name, run.ModelClass, string(run.Status), run.SerializationPrefix, run.ConfigKey,
		epochs, run.BestEpoch, run.FailureReason, formatTime(run.CreatedAt), formatTime(run.UpdatedAt))
	return err
}

func (r *SQLiteRepository) Update(ctx context.Context, run domain.Run) error {
	epochs, err := encodeEpochs(run.Epochs)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE training_runs
		SET name = ?, status = ?, epochs = ?, best_epoch = ?, failure_reason = ?, updated_at = ?
		WHERE id = ?
	`, run.Name, string(run.Status), epochs, run.BestEpoch, run.FailureReason, formatTime(run.UpdatedAt), run.ID.String())
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

const sqliteColumns = `id, name, model_class, status, serialization_prefix, config_key, epochs, best_epoch, failure_reason, created_at, updated_at`

func (r *SQLiteRepository) Get(ctx context.Context, id uuid.UUID) (domain.Run, bool, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sqliteColumns+` FROM training_runs WHERE id = ? LIMIT 1`, id.String())
	run, err := scanSQLiteRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Run{}, false, nil
		}
		return domain.Run{}, false, err
	}
	return run, true, nil
}

func (r *SQLiteRepository) List(ctx context.Context, filter domain.RunFilter) ([]domain.Run, error) {
	query := `SELECT ` + sqliteColumns + ` FROM training_runs`
	var args []any
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, string(s))
		}
		query += ` WHERE status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Run
	for rows.Next() {
		run, err := scanSQLiteRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRun(s scanner) (domain.Run, error) {
	var (
		run                  domain.Run
		id, status, epochs   string
		createdAt, updatedAt string
		bestEpoch            sql.NullInt64
		failureReason        sql.NullString
	)
	if err := s.Scan(&id, &run.Name, &run.ModelClass, &status, &run.SerializationPrefix, &run.ConfigKey,
		&epochs, &bestEpoch, &failureReason, &createdAt, &updatedAt); err != nil {
		return domain.Run{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return domain.Run{}, fmt.Errorf("bad run id %q: %w", id, err)
	}
	run.ID = parsed
	run.Status = domain.RunStatus(status)
	if err := json.Unmarshal([]byte(epochs), &run.Epochs); err != nil {
		return domain.Run{}, fmt.Errorf("decode epochs: %w", err)
	}
	if bestEpoch.Valid {
		v := int(bestEpoch.Int64)
		run.BestEpoch = &v
	}
	if failureReason.Valid {
		v := failureReason.String
		run.FailureReason = &v
	}
	if run.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return domain.Run{}, err
	}
	if run.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return domain.Run{}, err
	}
	return run, nil
}

func encodeEpochs(epochs []domain.EpochResult) (string, error) {
	if epochs == nil {
		epochs = []domain.EpochResult{}
	}
	data, err := json.Marshal(epochs)
	if err != nil {
		return "", fmt.Errorf("encode epochs: %w", err)
	}
	return string(data), nil
}

// formatTime keeps a fixed width so text ordering matches time ordering.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}

var _ domain.RunRepository = (*SQLiteRepository)(nil)
