package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chatguard-lab/internal/domain/models"
)

const importColumns = `id, owner_id, platform, status, file_name, file_size, content_hash,
	message_count, participant_count, risk_score, risk_level, summary, key_findings,
	date_from, date_to, processing_time_ms, error, warnings, created_at, updated_at`

// ImportRepository handles import-record persistence
type ImportRepository struct {
	pool *pgxpool.Pool
}

// NewImportRepository creates a new import repository
func NewImportRepository(pool *pgxpool.Pool) *ImportRepository {
	return &ImportRepository{pool: pool}
}

// Create inserts a new import record
func (r *ImportRepository) Create(ctx context.Context, rec *models.ImportRecord) error {
	query := `
		INSERT INTO imports (` + importColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`

	_, err := r.pool.Exec(ctx, query,
		rec.ID, rec.OwnerID, rec.Platform, rec.Status, rec.FileName, rec.FileSize, rec.ContentHash,
		rec.MessageCount, rec.ParticipantCount, rec.RiskScore, rec.RiskLevel, rec.Summary,
		toJSON(rec.KeyFindings), rec.DateFrom, rec.DateTo, rec.ProcessingTime.Milliseconds(),
		rec.Error, toJSON(rec.Warnings), rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create import: %w", err)
	}
	return nil
}

// Get retrieves an import record by id
func (r *ImportRepository) Get(ctx context.Context, id uuid.UUID) (*models.ImportRecord, error) {
	query := `SELECT ` + importColumns + ` FROM imports WHERE id = $1`
	rec, err := scanImport(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("%w: import %s", models.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get import: %w", err)
	}
	return rec, nil
}

// Update rewrites all mutable fields of an import record
func (r *ImportRepository) Update(ctx context.Context, rec *models.ImportRecord) error {
	query := `
		UPDATE imports SET
			platform = $2, status = $3, file_size = $4, content_hash = $5,
			message_count = $6, participant_count = $7, risk_score = $8, risk_level = $9,
			summary = $10, key_findings = $11, date_from = $12, date_to = $13,
			processing_time_ms = $14, error = $15, warnings = $16, updated_at = $17
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query,
		rec.ID, rec.Platform, rec.Status, rec.FileSize, rec.ContentHash,
		rec.MessageCount, rec.ParticipantCount, rec.RiskScore, rec.RiskLevel,
		rec.Summary, toJSON(rec.KeyFindings), rec.DateFrom, rec.DateTo,
		rec.ProcessingTime.Milliseconds(), rec.Error, toJSON(rec.Warnings), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to update import: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: import %s", models.ErrNotFound, rec.ID)
	}
	return nil
}

// Delete removes an import record
func (r *ImportRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM imports WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete import: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: import %s", models.ErrNotFound, id)
	}
	return nil
}

// FindCompletedByHash returns a COMPLETED import with the same content hash
// for the same owner, or nil when none exists
func (r *ImportRepository) FindCompletedByHash(ctx context.Context, ownerID, contentHash string) (*models.ImportRecord, error) {
	query := `
		SELECT ` + importColumns + `
		FROM imports
		WHERE owner_id = $1 AND content_hash = $2 AND status = 'COMPLETED'
		ORDER BY created_at DESC
		LIMIT 1`

	rec, err := scanImport(r.pool.QueryRow(ctx, query, ownerID, contentHash))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find import by hash: %w", err)
	}
	return rec, nil
}

// ListByOwner returns an owner's imports, newest first
func (r *ImportRepository) ListByOwner(ctx context.Context, ownerID string, offset, limit int) ([]models.ImportRecord, error) {
	query := `
		SELECT ` + importColumns + `
		FROM imports
		WHERE owner_id = $1
		ORDER BY created_at DESC
		OFFSET $2 LIMIT $3`

	rows, err := r.pool.Query(ctx, query, ownerID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list imports: %w", err)
	}
	defer rows.Close()

	var out []models.ImportRecord
	for rows.Next() {
		rec, err := scanImport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan import row: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func scanImport(row pgx.Row) (*models.ImportRecord, error) {
	rec := &models.ImportRecord{}
	var findings, warnings []byte
	var processingMS int64

	err := row.Scan(
		&rec.ID, &rec.OwnerID, &rec.Platform, &rec.Status, &rec.FileName, &rec.FileSize, &rec.ContentHash,
		&rec.MessageCount, &rec.ParticipantCount, &rec.RiskScore, &rec.RiskLevel, &rec.Summary, &findings,
		&rec.DateFrom, &rec.DateTo, &processingMS, &rec.Error, &warnings, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.ProcessingTime = time.Duration(processingMS) * time.Millisecond
	fromJSON(findings, &rec.KeyFindings)
	fromJSON(warnings, &rec.Warnings)
	return rec, nil
}
