package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"groundwork/internal/fault"
)

type Repository interface {
	Create(ctx context.Context, j *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	List(ctx context.Context) ([]Job, error)
	Claim(ctx context.Context, id string) (*Job, error)
	SetChunkCount(ctx context.Context, id string, count int) error
	AddProcessed(ctx context.Context, id string, delta int) error
	Complete(ctx context.Context, id string, seconds float64) error
	Fail(ctx context.Context, id string, cause string) error
	Count(ctx context.Context) (int, error)
	CountByStatus(ctx context.Context, status string) (int, error)
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const jobColumns = `id, source, status, chunk_count, processed_chunks, error, metadata, processing_time_seconds, created_at, updated_at`

func (r *PostgresRepo) Create(ctx context.Context, j *Job) error {
	meta, err := json.Marshal(j.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	query := `INSERT INTO jobs (source, status, metadata) VALUES ($1, 'pending', $2) RETURNING id, status, created_at, updated_at`
	return r.db.QueryRowContext(ctx, query, j.Source, meta).
		Scan(&j.ID, &j.Status, &j.CreatedAt, &j.UpdatedAt)
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	j, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, fault.ErrNotFound)
	}
	return j, err
}

func (r *PostgresRepo) List(ctx context.Context) ([]Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// Claim is the exclusive pending→processing transition. The conditional
// update is the arbiter: of N concurrent claimants exactly one sees a row.
func (r *PostgresRepo) Claim(ctx context.Context, id string) (*Job, error) {
	query := `UPDATE jobs SET status = 'processing', updated_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + jobColumns
	j, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		// Either the id is unknown or another worker won.
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("job %s: %w", id, ErrAlreadyClaimed)
	}
	return j, err
}

// SetChunkCount is write-once: it only lands while the job is processing
// and the count is still unset.
func (r *PostgresRepo) SetChunkCount(ctx context.Context, id string, count int) error {
	query := `UPDATE jobs SET chunk_count = $2, updated_at = now()
		WHERE id = $1 AND status = 'processing' AND chunk_count = 0`
	return r.mustAffect(ctx, query, "set chunk count", id, count)
}

// AddProcessed advances the progress counter monotonically, bounded by
// chunk_count.
func (r *PostgresRepo) AddProcessed(ctx context.Context, id string, delta int) error {
	query := `UPDATE jobs SET processed_chunks = processed_chunks + $2, updated_at = now()
		WHERE id = $1 AND status = 'processing' AND processed_chunks + $2 <= chunk_count`
	return r.mustAffect(ctx, query, "add processed", id, delta)
}

func (r *PostgresRepo) Complete(ctx context.Context, id string, seconds float64) error {
	query := `UPDATE jobs SET status = 'completed', processing_time_seconds = $2, updated_at = now()
		WHERE id = $1 AND status = 'processing' AND processed_chunks = chunk_count`
	return r.mustAffect(ctx, query, "complete", id, seconds)
}

// Fail records the terminal failure. Guarded so a terminal state never
// regresses: completing and failing are both one-way doors.
func (r *PostgresRepo) Fail(ctx context.Context, id string, cause string) error {
	query := `UPDATE jobs SET status = 'failed', error = $2, updated_at = now()
		WHERE id = $1 AND status NOT IN ('completed', 'failed')`
	return r.mustAffect(ctx, query, "fail", id, cause)
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&count)
	return count, err
}

func (r *PostgresRepo) CountByStatus(ctx context.Context, status string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs WHERE status = $1`, status).Scan(&count)
	return count, err
}

func (r *PostgresRepo) mustAffect(ctx context.Context, query, op string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: no eligible job row", op)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*Job, error) {
	j := &Job{}
	var errMsg sql.NullString
	var seconds sql.NullFloat64
	var meta []byte

	err := row.Scan(&j.ID, &j.Source, &j.Status, &j.ChunkCount, &j.ProcessedChunks,
		&errMsg, &meta, &seconds, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if errMsg.Valid {
		j.Error = errMsg.String
	}
	if seconds.Valid {
		s := seconds.Float64
		j.ProcessingTime = &s
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &j.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return j, nil
}
