// Package postgres provides PostgreSQL database adapters.
//
// It implements repository interfaces for data persistence.
// The package provides type-safe database operations with
// connection pooling and transaction support.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fossil-proof/proof-pipeline/internal/domain"
)

// JobRequestRepo persists Gateway job_requests rows using a pgx pool,
// keyed on a content fingerprint used for submission deduplication rather
// than a foreign key into an upstream document/project record.
type JobRequestRepo struct{ Pool *pgxpool.Pool }

// NewJobRequestRepo constructs a JobRequestRepo with the given pool.
func NewJobRequestRepo(p *pgxpool.Pool) *JobRequestRepo { return &JobRequestRepo{Pool: p} }

// Create inserts a new job_requests row and returns its id.
func (r *JobRequestRepo) Create(ctx context.Context, jr domain.JobRequest) (string, error) {
	tracer := otel.Tracer("repo.job_requests")
	ctx, span := tracer.Start(ctx, "job_requests.Create")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "job_requests"),
	)

	id := jr.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()
	q := `INSERT INTO job_requests (id, job_group_id, fingerprint, status, error, created_at, updated_at)
	      VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err := r.Pool.Exec(ctx, q, id, jr.JobGroupID, jr.Fingerprint, jr.Status, jr.Error, now, now)
	if err != nil {
		return "", fmt.Errorf("op=job_requests.create: %w", err)
	}
	return id, nil
}

// FindByFingerprint loads a job_requests row by its content fingerprint,
// used by the Gateway to detect duplicate submissions before enqueuing.
func (r *JobRequestRepo) FindByFingerprint(ctx context.Context, fingerprint string) (domain.JobRequest, error) {
	tracer := otel.Tracer("repo.job_requests")
	ctx, span := tracer.Start(ctx, "job_requests.FindByFingerprint")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "job_requests"),
	)
	q := `SELECT id, job_group_id, fingerprint, status, COALESCE(error,''), created_at, updated_at
	      FROM job_requests WHERE fingerprint=$1 ORDER BY created_at DESC LIMIT 1`
	return scanJobRequestRow(r.Pool.QueryRow(ctx, q, fingerprint), "job_requests.find_by_fingerprint")
}

// UpdateStatus updates a job_requests row's status and optional error
// message with explicit transaction management: read-committed isolation
// and an explicit commit/rollback so a failed update never leaves the row
// half-written.
func (r *JobRequestRepo) UpdateStatus(ctx context.Context, id string, status domain.JobRequestStatus, errMsg *string) error {
	tracer := otel.Tracer("repo.job_requests")
	ctx, span := tracer.Start(ctx, "job_requests.UpdateStatus")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.sql.table", "job_requests"),
	)

	errVal := ""
	if errMsg != nil {
		errVal = *errMsg
	}

	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("op=job_requests.update_status.begin_tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(ctx); err != nil {
				slog.Error("failed to rollback job_requests status update",
					slog.String("job_request_id", id), slog.Any("error", err))
			}
		}
	}()

	q := `UPDATE job_requests SET status=$2, error=$3, updated_at=$4 WHERE id=$1`
	result, err := tx.Exec(ctx, q, id, status, errVal, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=job_requests.update_status.exec: %w", err)
	}
	if result.RowsAffected() == 0 {
		slog.Warn("job_requests status update affected 0 rows",
			slog.String("job_request_id", id), slog.String("status", string(status)))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("op=job_requests.update_status.commit: %w", err)
	}
	committed = true
	return nil
}

// Get loads a job_requests row by id.
func (r *JobRequestRepo) Get(ctx context.Context, id string) (domain.JobRequest, error) {
	tracer := otel.Tracer("repo.job_requests")
	ctx, span := tracer.Start(ctx, "job_requests.Get")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "job_requests"),
	)
	q := `SELECT id, job_group_id, fingerprint, status, COALESCE(error,''), created_at, updated_at
	      FROM job_requests WHERE id=$1`
	return scanJobRequestRow(r.Pool.QueryRow(ctx, q, id), "job_requests.get")
}

// ListWithFilters returns a paginated list of job_requests rows, optionally
// filtered by status.
func (r *JobRequestRepo) ListWithFilters(ctx context.Context, offset, limit int, status string) ([]domain.JobRequest, error) {
	tracer := otel.Tracer("repo.job_requests")
	ctx, span := tracer.Start(ctx, "job_requests.ListWithFilters")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "job_requests"),
	)

	baseQuery := `SELECT id, job_group_id, fingerprint, status, COALESCE(error,''), created_at, updated_at FROM job_requests`
	args := []interface{}{}
	if status != "" {
		baseQuery += " WHERE status = $1"
		args = append(args, status)
	}
	baseQuery += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.Pool.Query(ctx, baseQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("op=job_requests.list_with_filters: %w", err)
	}
	defer rows.Close()

	var out []domain.JobRequest
	for rows.Next() {
		var jr domain.JobRequest
		if err := rows.Scan(&jr.ID, &jr.JobGroupID, &jr.Fingerprint, &jr.Status, &jr.Error, &jr.CreatedAt, &jr.UpdatedAt); err != nil {
			return nil, fmt.Errorf("op=job_requests.list_with_filters_scan: %w", err)
		}
		out = append(out, jr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=job_requests.list_with_filters_rows: %w", err)
	}
	return out, nil
}

// row is satisfied by both pgx.Row and pgx.Rows's single-row Scan signature.
type row interface {
	Scan(dest ...interface{}) error
}

func scanJobRequestRow(rw row, op string) (domain.JobRequest, error) {
	var jr domain.JobRequest
	if err := rw.Scan(&jr.ID, &jr.JobGroupID, &jr.Fingerprint, &jr.Status, &jr.Error, &jr.CreatedAt, &jr.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return domain.JobRequest{}, fmt.Errorf("op=%s: %w", op, domain.ErrNotFound)
		}
		return domain.JobRequest{}, fmt.Errorf("op=%s: %w", op, err)
	}
	return jr, nil
}
