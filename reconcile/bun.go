package reconcile

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/ripkitten-co/tether"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

// canvasElement maps the canvas projection's own element table. Read-only
// here: the canvas subsystem owns these rows.
type canvasElement struct {
	bun.BaseModel `bun:"table:canvas_elements"`

	ID       string `bun:"id,pk"`
	CanvasID string `bun:"canvas_id"`
	Deleted  bool   `bun:"deleted"`
}

// ElementSource reads the canvas projection's existence signals through bun.
type ElementSource struct {
	db *bun.DB
}

// NewElementSource wraps an existing *sql.DB pointed at the canvas
// projection's database.
func NewElementSource(sqldb *sql.DB) *ElementSource {
	return &ElementSource{db: bun.NewDB(sqldb, pgdialect.New())}
}

// NewElementSourceFromStore reads the canvas tables through the tether
// store's own pool, for deployments where both live in one database.
func NewElementSourceFromStore(s *tether.Store) *ElementSource {
	return NewElementSource(stdlib.OpenDBFromPool(s.PgxPool()))
}

func (s *ElementSource) States(ctx context.Context, containerID string) (map[string]EntityState, error) {
	var rows []canvasElement
	err := s.db.NewSelect().
		Model(&rows).
		Column("id", "canvas_id", "deleted").
		Where("canvas_id = ?", containerID).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile: element states %s: %w", containerID, err)
	}

	out := make(map[string]EntityState, len(rows))
	for _, e := range rows {
		out[e.ID] = EntityState{Exists: true, Deleted: e.Deleted}
	}
	return out, nil
}
