package projector

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresOffsetStore persists the projector's offset in the
// projector_offsets table (internal/journal/migrations/0002_*.sql), keyed
// by name so multiple projector instances (e.g. one per tag) don't collide.
type PostgresOffsetStore struct {
	pool *pgxpool.Pool
	name string
}

func NewPostgresOffsetStore(pool *pgxpool.Pool, name string) *PostgresOffsetStore {
	return &PostgresOffsetStore{pool: pool, name: name}
}

func (p *PostgresOffsetStore) Load(ctx context.Context) (int64, error) {
	var offset int64
	err := p.pool.QueryRow(ctx, `SELECT offset_seq FROM projector_offsets WHERE name = $1`, p.name).Scan(&offset)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("projector: load offset: %w", err)
	}
	return offset, nil
}

func (p *PostgresOffsetStore) Save(ctx context.Context, offset int64) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO projector_offsets (name, offset_seq, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE SET offset_seq = $2, updated_at = now()`,
		p.name, offset)
	if err != nil {
		return fmt.Errorf("projector: save offset: %w", err)
	}
	return nil
}
