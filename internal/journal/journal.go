// Package journal defines the EventJournal and SnapshotStore interfaces
// the aggregate runtime persists through, plus an in-memory implementation
// for tests and a Postgres-backed implementation for production.
package journal

import (
	"context"

	"github.com/jermoo/realms-core/internal/realmdomain"
)

// Record is a single persisted event row: the event itself plus the
// persistence id it belongs to. PersistenceID follows the scheme
// "realms-{label}".
type Record struct {
	PersistenceID string
	Event         realmdomain.Event
}

// EventJournal is the append-only, per-persistence-id-ordered event log.
// Strictly increasing revision with no gaps is enforced by Append:
// implementations must reject an Append whose event's revision is not
// exactly one more than the last persisted revision for that persistence
// id.
type EventJournal interface {
	// Append persists event for persistenceID, enforcing strict
	// monotonic revision. Returns ErrRevisionConflict if another writer
	// already appended at or past event's revision, or if event's
	// revision would leave a gap.
	Append(ctx context.Context, persistenceID string, event realmdomain.Event) error

	// Load replays every event for persistenceID in revision order,
	// starting strictly after afterRev (0 to read from the beginning).
	Load(ctx context.Context, persistenceID string, afterRev int) ([]realmdomain.Event, error)

	// Tail returns events with a global sequence number greater than
	// after, across all persistence ids, for the projector. The returned
	// sequence is journal-assigned and monotonic but otherwise opaque.
	Tail(ctx context.Context, after int64, limit int) ([]TailEntry, error)
}

// TailEntry is one row of the projector's journal tail.
type TailEntry struct {
	Sequence      int64
	PersistenceID string
	Label         realmdomain.Label
	Event         realmdomain.Event
}

// SnapshotStore persists periodic full-state snapshots so recovery does not
// need to replay a realm's entire event history.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, persistenceID string, state realmdomain.State) error
	LoadSnapshot(ctx context.Context, persistenceID string) (realmdomain.State, bool, error)
}

// PersistenceID derives a realm's journal persistence id from its label.
func PersistenceID(label realmdomain.Label) string {
	return "realms-" + string(label)
}

// ErrRevisionConflict is returned by Append when persistenceID's current
// revision has already advanced past (or to) the event being appended, or
// when the event's revision would leave a gap — the aggregate runtime
// treats this as a signal to reload state and fail the in-flight command
// rather than retry.
var ErrRevisionConflict = journalError("journal: revision conflict")

type journalError string

func (e journalError) Error() string { return string(e) }
