// Package projector implements the event projector: a background task
// tailing the journal's realm-tagged events and upserting the read index.
// Every PollInterval it reads at most BatchSize entries past its offset and
// projects them as one batch; Config.BatchTimeout is not read by Run.
package projector

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/jermoo/realms-core/internal/aggregate"
	"github.com/jermoo/realms-core/internal/index"
	"github.com/jermoo/realms-core/internal/journal"
	"github.com/jermoo/realms-core/internal/realmdomain"
	"github.com/jermoo/realms-core/internal/retry"
)

// Config holds the projector's batching and offset-persistence tunables.
type Config struct {
	BatchSize        int
	BatchTimeout     time.Duration
	PersistEvery     int
	PersistWallclock time.Duration
	PollInterval     time.Duration
}

// DefaultConfig returns the projector's default tunables.
func DefaultConfig() Config {
	return Config{
		BatchSize:        100,
		BatchTimeout:     2 * time.Second,
		PersistEvery:     50,
		PersistWallclock: 30 * time.Second,
		PollInterval:     250 * time.Millisecond,
	}
}

// OffsetStore persists the projector's journal-tail offset. Best-effort:
// the projector must stay correct under replay from any older offset,
// including 0, so a failed Save never blocks progress.
type OffsetStore interface {
	Load(ctx context.Context) (int64, error)
	Save(ctx context.Context, offset int64) error
}

// Projector tails j and upserts into idx.
type Projector struct {
	journal journal.EventJournal
	index   index.Index
	runtime *aggregate.Runtime
	offsets OffsetStore
	cfg     Config
	retry   retry.Policy
	log     zerolog.Logger
}

// New constructs a Projector. runtime is used to fetch the authoritative
// current state for an id after a batch, since the journal tail only tells
// the projector which ids changed, not their full projected Resource.
func New(j journal.EventJournal, idx index.Index, runtime *aggregate.Runtime, offsets OffsetStore, cfg Config, retryPolicy retry.Policy, log zerolog.Logger) *Projector {
	return &Projector{journal: j, index: idx, runtime: runtime, offsets: offsets, cfg: cfg, retry: retryPolicy, log: log}
}

// Run tails the journal until ctx is cancelled, processing batches and
// persisting its offset periodically. Exactly-once delivery is not
// required: the index's last-writer-wins-by-rev makes re-projection
// idempotent.
func (p *Projector) Run(ctx context.Context) error {
	offset, err := p.offsets.Load(ctx)
	if err != nil {
		p.log.Warn().Err(err).Msg("projector: failed to load offset, resuming from 0")
		offset = 0
	}

	poll := p.cfg.PollInterval
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	lastPersist := time.Now()
	processedSincePersist := 0

	for {
		select {
		case <-ctx.Done():
			p.persistOffset(context.Background(), offset)
			return ctx.Err()

		case <-ticker.C:
			entries, err := p.journal.Tail(ctx, offset, p.cfg.BatchSize)
			if err != nil {
				p.log.Warn().Err(err).Msg("projector: tail read failed, will retry next tick")
				continue
			}
			if len(entries) == 0 {
				continue
			}

			distinct := distinctLabels(entries)
			if err := p.projectBatch(ctx, distinct); err != nil {
				p.log.Error().Err(err).Msg("projector: batch projection failed")
				continue
			}

			offset = entries[len(entries)-1].Sequence
			processedSincePersist += len(entries)

			persistDue := (p.cfg.PersistEvery > 0 && processedSincePersist >= p.cfg.PersistEvery) ||
				(p.cfg.PersistWallclock > 0 && time.Since(lastPersist) >= p.cfg.PersistWallclock)
			if persistDue {
				p.persistOffset(ctx, offset)
				lastPersist = time.Now()
				processedSincePersist = 0
			}
		}
	}
}

func (p *Projector) projectBatch(ctx context.Context, labels []realmdomain.Label) error {
	return p.retry.Do(ctx, func(ctx context.Context) error {
		for _, id := range labels {
			state, err := p.runtime.CurrentState(ctx, id)
			if err != nil {
				return retry.MarkRetriable(err)
			}
			resource, ok := index.FromState(id, state)
			if !ok {
				continue // Initial: nothing to project yet
			}
			if err := p.index.Put(ctx, resource); err != nil {
				return retry.MarkRetriable(err)
			}
		}
		return nil
	})
}

func (p *Projector) persistOffset(ctx context.Context, offset int64) {
	if err := p.offsets.Save(ctx, offset); err != nil {
		p.log.Warn().Err(err).Int64("offset", offset).Msg("projector: offset persistence failed (best-effort)")
	}
}

func distinctLabels(entries []journal.TailEntry) []realmdomain.Label {
	seen := make(map[realmdomain.Label]bool, len(entries))
	var out []realmdomain.Label
	for _, e := range entries {
		if !seen[e.Label] {
			seen[e.Label] = true
			out = append(out, e.Label)
		}
	}
	return out
}
