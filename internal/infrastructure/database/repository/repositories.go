package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repositories bundles all repositories over one shared pool
type Repositories struct {
	Imports      *ImportRepository
	Messages     *MessageRepository
	Participants *ParticipantRepository
}

// New creates the repository bundle
func New(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		Imports:      NewImportRepository(pool),
		Messages:     NewMessageRepository(pool),
		Participants: NewParticipantRepository(pool),
	}
}
