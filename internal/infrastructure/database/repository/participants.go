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

// ParticipantRepository handles participant persistence, scoped by import
type ParticipantRepository struct {
	pool *pgxpool.Pool
}

// NewParticipantRepository creates a new participant repository
func NewParticipantRepository(pool *pgxpool.Pool) *ParticipantRepository {
	return &ParticipantRepository{pool: pool}
}

// CreateBatch bulk-inserts an import's participants in first-seen order
func (r *ParticipantRepository) CreateBatch(ctx context.Context, importID uuid.UUID, ps []models.ParsedParticipant) error {
	if len(ps) == 0 {
		return nil
	}

	columns := []string{
		"import_id", "participant_id", "name", "username", "phone_number", "role",
		"message_count", "first_message", "last_message",
	}

	rows := make([][]any, len(ps))
	for i := range ps {
		p := &ps[i]
		rows[i] = []any{
			importID, p.ID, p.Name, p.Username, p.PhoneNumber, p.Role,
			p.MessageCount, nullTime(p.FirstMessage), nullTime(p.LastMessage),
		}
	}

	_, err := r.pool.CopyFrom(ctx, pgx.Identifier{"import_participants"}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to insert participant batch: %w", err)
	}
	return nil
}

// List returns all participants of an import in insertion order
func (r *ParticipantRepository) List(ctx context.Context, importID uuid.UUID) ([]models.ParsedParticipant, error) {
	query := `
		SELECT participant_id, name, username, phone_number, role,
			   message_count, first_message, last_message, risk_score, risk_flags
		FROM import_participants
		WHERE import_id = $1
		ORDER BY message_count DESC, participant_id`

	rows, err := r.pool.Query(ctx, query, importID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	var out []models.ParsedParticipant
	for rows.Next() {
		var p models.ParsedParticipant
		var first, last *time.Time
		var score *int
		var flags []byte

		err := rows.Scan(
			&p.ID, &p.Name, &p.Username, &p.PhoneNumber, &p.Role,
			&p.MessageCount, &first, &last, &score, &flags,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant row: %w", err)
		}

		if first != nil {
			p.FirstMessage = *first
		}
		if last != nil {
			p.LastMessage = *last
		}
		if score != nil {
			p.Risk = &models.RiskAssessment{Score: *score}
			fromJSON(flags, &p.Risk.Flags)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateRisk writes the computed risk assessment onto one participant
func (r *ParticipantRepository) UpdateRisk(ctx context.Context, importID uuid.UUID, participantID string, risk *models.RiskAssessment) error {
	query := `
		UPDATE import_participants SET risk_score = $3, risk_flags = $4
		WHERE import_id = $1 AND participant_id = $2`

	tag, err := r.pool.Exec(ctx, query, importID, participantID, risk.Score, toJSON(risk.Flags))
	if err != nil {
		return fmt.Errorf("failed to update participant risk: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: participant %s in import %s", models.ErrNotFound, participantID, importID)
	}
	return nil
}

// DeleteByImport removes all participants belonging to an import
func (r *ParticipantRepository) DeleteByImport(ctx context.Context, importID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM import_participants WHERE import_id = $1`, importID)
	if err != nil {
		return fmt.Errorf("failed to delete participants: %w", err)
	}
	return nil
}
