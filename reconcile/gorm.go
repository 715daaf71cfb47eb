package reconcile

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/ripkitten-co/tether"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// documentMark maps the document projection's own mark table. Read-only
// here: the document subsystem owns these rows.
type documentMark struct {
	ID         string `gorm:"primaryKey;column:id"`
	DocumentID string `gorm:"column:document_id"`
	Deleted    bool   `gorm:"column:deleted"`
}

func (documentMark) TableName() string { return "document_marks" }

// MarkSource reads the document projection's existence signals through gorm.
type MarkSource struct {
	db *gorm.DB
}

// NewMarkSource wraps an existing *sql.DB pointed at the document
// projection's database.
func NewMarkSource(sqldb *sql.DB) (*MarkSource, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqldb}), &gorm.Config{
		Logger: logger.Discard,
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile: open mark source: %w", err)
	}
	return &MarkSource{db: db}, nil
}

// NewMarkSourceFromStore reads the document tables through the tether
// store's own pool, for deployments where both live in one database.
func NewMarkSourceFromStore(s *tether.Store) (*MarkSource, error) {
	return NewMarkSource(stdlib.OpenDBFromPool(s.PgxPool()))
}

func (s *MarkSource) States(ctx context.Context, containerID string) (map[string]EntityState, error) {
	var rows []documentMark
	err := s.db.WithContext(ctx).
		Select("id", "document_id", "deleted").
		Where("document_id = ?", containerID).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("reconcile: mark states %s: %w", containerID, err)
	}

	out := make(map[string]EntityState, len(rows))
	for _, m := range rows {
		out[m.ID] = EntityState{Exists: true, Deleted: m.Deleted}
	}
	return out, nil
}
