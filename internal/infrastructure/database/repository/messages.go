package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chatguard-lab/internal/domain/models"
)

// MessageRepository handles parsed-message persistence, scoped by import
type MessageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

// CreateBatch bulk-inserts one batch of messages in source order using the
// binary copy protocol
func (r *MessageRepository) CreateBatch(ctx context.Context, importID uuid.UUID, msgs []models.ParsedMessage) error {
	if len(msgs) == 0 {
		return nil
	}

	columns := []string{
		"import_id", "message_id", "ts", "sender_id", "sender_name", "content", "type",
		"is_edited", "is_deleted", "is_forwarded", "reply_to_id", "attachments", "entities",
	}

	rows := make([][]any, len(msgs))
	for i := range msgs {
		m := &msgs[i]
		rows[i] = []any{
			importID, m.ID, m.Timestamp, m.SenderID, m.SenderName, m.Content, m.Type,
			m.IsEdited, m.IsDeleted, m.IsForwarded, m.ReplyToID,
			toJSON(m.Attachments), toJSON(m.Entities),
		}
	}

	_, err := r.pool.CopyFrom(ctx, pgx.Identifier{"import_messages"}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to insert message batch: %w", err)
	}
	return nil
}

// List returns one page of an import's messages in source order
func (r *MessageRepository) List(ctx context.Context, importID uuid.UUID, offset, limit int) ([]models.ParsedMessage, error) {
	query := `
		SELECT message_id, ts, sender_id, sender_name, content, type,
			   is_edited, is_deleted, is_forwarded, reply_to_id,
			   attachments, entities, risk_score, risk_flags
		FROM import_messages
		WHERE import_id = $1
		ORDER BY seq
		OFFSET $2 LIMIT $3`

	rows, err := r.pool.Query(ctx, query, importID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var out []models.ParsedMessage
	for rows.Next() {
		var m models.ParsedMessage
		var attachments, entities, flags []byte
		var score *int

		err := rows.Scan(
			&m.ID, &m.Timestamp, &m.SenderID, &m.SenderName, &m.Content, &m.Type,
			&m.IsEdited, &m.IsDeleted, &m.IsForwarded, &m.ReplyToID,
			&attachments, &entities, &score, &flags,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}

		fromJSON(attachments, &m.Attachments)
		fromJSON(entities, &m.Entities)
		if score != nil {
			m.Risk = &models.RiskAssessment{Score: *score}
			fromJSON(flags, &m.Risk.Flags)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpdateRisk writes the computed risk assessment onto one message
func (r *MessageRepository) UpdateRisk(ctx context.Context, importID uuid.UUID, messageID string, risk *models.RiskAssessment) error {
	query := `
		UPDATE import_messages SET risk_score = $3, risk_flags = $4
		WHERE import_id = $1 AND message_id = $2`

	tag, err := r.pool.Exec(ctx, query, importID, messageID, risk.Score, toJSON(risk.Flags))
	if err != nil {
		return fmt.Errorf("failed to update message risk: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: message %s in import %s", models.ErrNotFound, messageID, importID)
	}
	return nil
}

// DeleteByImport removes all messages belonging to an import
func (r *MessageRepository) DeleteByImport(ctx context.Context, importID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM import_messages WHERE import_id = $1`, importID)
	if err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	return nil
}
