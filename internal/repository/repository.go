package repository

import (
	"context"
	"database/sql"
	"time"

	"tv_bridge/internal/models"
)

// JournalRepo stores the append-only command journal.
type JournalRepo interface {
	Append(ctx context.Context, e models.JournalEvent) error
	List(ctx context.Context, from, to time.Time, typ string) ([]models.JournalEvent, error)
}

type Repository struct {
	Journal JournalRepo
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		Journal: NewJournalSQLite(db),
	}
}
