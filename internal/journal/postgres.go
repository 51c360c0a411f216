package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jermoo/realms-core/internal/realmdomain"
)

// PostgresJournal implements EventJournal and SnapshotStore against the
// realm_events/realm_snapshots tables, using a pgxpool connection pool
// rather than a hand-rolled driver.
type PostgresJournal struct {
	pool *pgxpool.Pool
	tag  string
}

// NewPostgresJournal wraps an already-initialized pool. Callers own the
// pool's lifecycle (open it with OpenPool, close it with pool.Close).
func NewPostgresJournal(pool *pgxpool.Pool) *PostgresJournal {
	return &PostgresJournal{pool: pool, tag: "realm"}
}

// OpenPool parses databaseURL and opens a connection pool, pinging it
// before returning.
func OpenPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("journal: parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("journal: create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("journal: ping database: %w", err)
	}
	return pool, nil
}

// Append implements EventJournal. The row is only inserted when the
// event's revision is exactly one past the highest stored revision for
// persistenceID; otherwise ErrRevisionConflict is returned. A concurrent
// writer inserting the same revision trips the table's (persistence_id,
// rev) primary key, and that unique_violation is also reported as
// ErrRevisionConflict.
func (p *PostgresJournal) Append(ctx context.Context, persistenceID string, event realmdomain.Event) error {
	payload, err := MarshalEvent(event)
	if err != nil {
		return err
	}

	tag, err := p.pool.Exec(ctx, `
		INSERT INTO realm_events (persistence_id, rev, event_type, tag, payload, instant, subject)
		SELECT $1::text, $2::integer, $3::text, $4::text, $5::jsonb, $6::timestamptz, $7::text
		WHERE (SELECT COALESCE(MAX(rev), 0) FROM realm_events WHERE persistence_id = $1::text) = $2::integer - 1`,
		persistenceID, event.EventRev(), eventTypeOf(event), p.tag, payload, event.Instant(), event.Subject())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return ErrRevisionConflict
		}
		return fmt.Errorf("journal: append event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRevisionConflict
	}
	return nil
}

// Load implements EventJournal.
func (p *PostgresJournal) Load(ctx context.Context, persistenceID string, afterRev int) ([]realmdomain.Event, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT payload FROM realm_events
		WHERE persistence_id = $1 AND rev > $2
		ORDER BY rev ASC`, persistenceID, afterRev)
	if err != nil {
		return nil, fmt.Errorf("journal: load events: %w", err)
	}
	defer rows.Close()

	var events []realmdomain.Event
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("journal: scan event: %w", err)
		}
		event, err := UnmarshalEvent(payload)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// Tail implements EventJournal for the projector, filtering by the realm
// tag.
func (p *PostgresJournal) Tail(ctx context.Context, after int64, limit int) ([]TailEntry, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT sequence_nr, persistence_id, payload FROM realm_events
		WHERE tag = $1 AND sequence_nr > $2
		ORDER BY sequence_nr ASC
		LIMIT $3`, p.tag, after, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: tail events: %w", err)
	}
	defer rows.Close()

	var entries []TailEntry
	for rows.Next() {
		var seq int64
		var persistenceID string
		var payload []byte
		if err := rows.Scan(&seq, &persistenceID, &payload); err != nil {
			return nil, fmt.Errorf("journal: scan tail entry: %w", err)
		}
		event, err := UnmarshalEvent(payload)
		if err != nil {
			return nil, err
		}
		entries = append(entries, TailEntry{
			Sequence: seq, PersistenceID: persistenceID, Label: event.EventLabel(), Event: event,
		})
	}
	return entries, rows.Err()
}

// SaveSnapshot implements SnapshotStore with an upsert, since a later
// snapshot always supersedes an earlier one for the same persistence id.
func (p *PostgresJournal) SaveSnapshot(ctx context.Context, persistenceID string, state realmdomain.State) error {
	payload, err := MarshalState(state)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO realm_snapshots (persistence_id, rev, state, instant)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (persistence_id) DO UPDATE SET rev = $2, state = $3, instant = $4`,
		persistenceID, state.Rev(), payload, time.Now())
	if err != nil {
		return fmt.Errorf("journal: save snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot implements SnapshotStore.
func (p *PostgresJournal) LoadSnapshot(ctx context.Context, persistenceID string) (realmdomain.State, bool, error) {
	var payload []byte
	err := p.pool.QueryRow(ctx, `
		SELECT state FROM realm_snapshots WHERE persistence_id = $1`, persistenceID).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("journal: load snapshot: %w", err)
	}
	state, err := UnmarshalState(payload)
	if err != nil {
		return nil, false, err
	}
	return state, true, nil
}

func eventTypeOf(event realmdomain.Event) string {
	switch event.(type) {
	case realmdomain.RealmCreated:
		return "RealmCreated"
	case realmdomain.RealmUpdated:
		return "RealmUpdated"
	case realmdomain.RealmDeprecated:
		return "RealmDeprecated"
	default:
		return "Unknown"
	}
}
