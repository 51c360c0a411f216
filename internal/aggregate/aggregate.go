// Package aggregate implements the per-realm aggregate runtime: a
// single-writer-per-label actor that serializes commands, persists events
// before acknowledging the caller, rehydrates from the snapshot store and
// journal tail, and passivates when idle.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jermoo/realms-core/internal/clock"
	"github.com/jermoo/realms-core/internal/journal"
	"github.com/jermoo/realms-core/internal/realmdomain"
	"github.com/jermoo/realms-core/internal/retry"
)

// ErrEvaluationTimedOut is returned when a command does not complete
// within Config.CommandTimeout.
var ErrEvaluationTimedOut = runtimeError("aggregate: command evaluation timed out")

type runtimeError string

func (e runtimeError) Error() string { return string(e) }

type request struct {
	cmd    realmdomain.Command
	result chan<- result
}

type result struct {
	event realmdomain.Event
	err   error
}

// shard is a single realm's actor: its own goroutine, own mailbox, own
// in-memory state. Nothing outside the shard's goroutine ever reads or
// writes state directly.
type shard struct {
	id       realmdomain.Label
	inbox    chan request
	done     chan struct{}
	cfg      Config
	clk      clock.Clock
	journal  journal.EventJournal
	snaps    journal.SnapshotStore
	resolver realmdomain.Resolver
	issuers  realmdomain.IssuerIndex
	retry    retry.Policy
	log      zerolog.Logger
}

// Runtime owns the shard map and dispatches commands to the right shard,
// spinning one up on demand.
type Runtime struct {
	mu       sync.Mutex
	shards   map[realmdomain.Label]*shard
	cfg      Config
	clk      clock.Clock
	journal  journal.EventJournal
	snaps    journal.SnapshotStore
	resolver realmdomain.Resolver
	issuers  realmdomain.IssuerIndex
	retry    retry.Policy
	log      zerolog.Logger
}

// NewRuntime constructs a Runtime. retryPolicy governs retries of transient
// journal I/O only; domain rejections returned by Evaluate are never
// retried.
func NewRuntime(
	cfg Config,
	clk clock.Clock,
	j journal.EventJournal,
	snaps journal.SnapshotStore,
	resolver realmdomain.Resolver,
	issuers realmdomain.IssuerIndex,
	retryPolicy retry.Policy,
	log zerolog.Logger,
) *Runtime {
	return &Runtime{
		shards: make(map[realmdomain.Label]*shard),
		cfg:    cfg, clk: clk, journal: j, snaps: snaps,
		resolver: resolver, issuers: issuers, retry: retryPolicy, log: log,
	}
}

// Evaluate submits cmd to id's shard and waits for the outcome. The
// returned event is nil and err non-nil on rejection or infrastructure
// failure; otherwise the event just persisted is returned.
func (r *Runtime) Evaluate(ctx context.Context, id realmdomain.Label, cmd realmdomain.Command) (realmdomain.Event, error) {
	s := r.acquire(id)

	resultCh := make(chan result, 1)
	select {
	case s.inbox <- request{cmd: cmd, result: resultCh}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	timeout := r.cfg.CommandTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	select {
	case res := <-resultCh:
		return res.event, res.err
	case <-time.After(timeout):
		return nil, ErrEvaluationTimedOut
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CurrentState rehydrates id's latest state from the last snapshot plus
// the journal tail, without going through the shard's mailbox.
func (r *Runtime) CurrentState(ctx context.Context, id realmdomain.Label) (realmdomain.State, error) {
	return r.foldFromStore(ctx, id, 0)
}

// FoldLeft replays the event prefix up to and including rev onto Initial,
// for fetch-by-revision. Snapshots are deliberately skipped: the latest
// snapshot may already be past the requested revision.
func (r *Runtime) FoldLeft(ctx context.Context, id realmdomain.Label, rev int) (realmdomain.State, error) {
	events, err := r.journal.Load(ctx, journal.PersistenceID(id), 0)
	if err != nil {
		return nil, err
	}
	var state realmdomain.State = realmdomain.Initial{}
	for _, e := range events {
		if rev > 0 && e.EventRev() > rev {
			break
		}
		state = realmdomain.Next(state, e)
	}
	return state, nil
}

func (r *Runtime) foldFromStore(ctx context.Context, id realmdomain.Label, afterRev int) (realmdomain.State, error) {
	pid := journal.PersistenceID(id)
	var base realmdomain.State = realmdomain.Initial{}
	startRev := afterRev

	if afterRev == 0 {
		if snap, ok, err := r.snaps.LoadSnapshot(ctx, pid); err != nil {
			return nil, err
		} else if ok {
			base = snap
			startRev = snap.Rev()
		}
	}

	events, err := r.journal.Load(ctx, pid, startRev)
	if err != nil {
		return nil, err
	}
	state := base
	for _, e := range events {
		state = realmdomain.Next(state, e)
	}
	return state, nil
}

func (r *Runtime) acquire(id realmdomain.Label) *shard {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.shards[id]; ok {
		return s
	}

	s := &shard{
		id: id, inbox: make(chan request, r.cfg.Inbox), done: make(chan struct{}),
		cfg: r.cfg, clk: r.clk, journal: r.journal, snaps: r.snaps,
		resolver: r.resolver, issuers: r.issuers, retry: r.retry,
		log: r.log.With().Str("realm", string(id)).Logger(),
	}
	r.shards[id] = s
	go r.run(s)
	return s
}

// run is the shard's goroutine: it owns state exclusively, recovering it
// once on startup and then serializing commands off the inbox until
// passivated.
func (r *Runtime) run(s *shard) {
	ctx := context.Background()
	state, eventsSinceSnapshot, err := recover_(ctx, s)
	if err != nil {
		s.log.Error().Err(err).Msg("aggregate: recovery failed, shard will not start")
		r.remove(s.id)
		return
	}

	idle := s.cfg.IdleTimeout
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	lifetime := s.cfg.MaxLifetime
	var lifetimeCh <-chan time.Time
	if lifetime > 0 {
		timer := time.NewTimer(lifetime)
		defer timer.Stop()
		lifetimeCh = timer.C
	}

	idleTimer := time.NewTimer(idle)
	defer idleTimer.Stop()

	for {
		select {
		case req := <-s.inbox:
			if !idleTimer.Stop() {
				select {
				case <-idleTimer.C:
				default:
				}
			}

			evalCtx, cancel := context.WithTimeout(ctx, commandTimeoutOr(s.cfg))
			event, evalErr := evaluateAndPersist(evalCtx, s, state, req.cmd)
			if evalErr != nil && errors.Is(evalCtx.Err(), context.DeadlineExceeded) {
				evalErr = ErrEvaluationTimedOut
			}
			cancel()

			if errors.Is(evalErr, journal.ErrRevisionConflict) {
				// Another writer advanced this id: reload so the next command
				// is evaluated against the persisted revision.
				if reloaded, n, recErr := recover_(ctx, s); recErr != nil {
					s.log.Warn().Err(recErr).Msg("aggregate: reload after revision conflict failed")
				} else {
					state, eventsSinceSnapshot = reloaded, n
				}
			}

			if evalErr == nil {
				state = realmdomain.Next(state, event)
				eventsSinceSnapshot++
				if s.cfg.SnapshotEvery > 0 && eventsSinceSnapshot >= s.cfg.SnapshotEvery {
					if snapErr := s.snaps.SaveSnapshot(ctx, journal.PersistenceID(s.id), state); snapErr != nil {
						s.log.Warn().Err(snapErr).Msg("aggregate: snapshot save failed")
					} else {
						eventsSinceSnapshot = 0
					}
				}
			}

			req.result <- result{event: event, err: evalErr}
			idleTimer.Reset(idle)

		case <-idleTimer.C:
			r.remove(s.id)
			return

		case <-lifetimeCh:
			r.remove(s.id)
			return
		}
	}
}

func (r *Runtime) remove(id realmdomain.Label) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.shards, id)
}

func commandTimeoutOr(cfg Config) time.Duration {
	if cfg.CommandTimeout > 0 {
		return cfg.CommandTimeout
	}
	return 5 * time.Second
}

// recover_ rehydrates a shard's state from the last snapshot plus the
// journal tail after it.
func recover_(ctx context.Context, s *shard) (realmdomain.State, int, error) {
	pid := journal.PersistenceID(s.id)

	var state realmdomain.State = realmdomain.Initial{}
	afterRev := 0

	if snap, ok, err := s.snaps.LoadSnapshot(ctx, pid); err != nil {
		return nil, 0, fmt.Errorf("aggregate: load snapshot: %w", err)
	} else if ok {
		state = snap
		afterRev = snap.Rev()
	}

	events, err := s.journal.Load(ctx, pid, afterRev)
	if err != nil {
		return nil, 0, fmt.Errorf("aggregate: load events: %w", err)
	}
	for _, e := range events {
		state = realmdomain.Next(state, e)
	}
	return state, len(events), nil
}

// evaluateAndPersist runs the pure state machine and, on success, appends
// the resulting event to the journal with transient-failure retry. Domain
// rejections are never retried.
func evaluateAndPersist(ctx context.Context, s *shard, state realmdomain.State, cmd realmdomain.Command) (realmdomain.Event, error) {
	event, err := realmdomain.Evaluate(ctx, state, cmd, s.clk, s.resolver, s.issuers)
	if err != nil {
		return nil, err
	}

	pid := journal.PersistenceID(s.id)
	appendErr := s.retry.Do(ctx, func(ctx context.Context) error {
		err := s.journal.Append(ctx, pid, event)
		if errors.Is(err, journal.ErrRevisionConflict) {
			return err // permanent: a concurrent writer already advanced this id
		}
		if err != nil {
			return retry.MarkRetriable(err)
		}
		return nil
	})
	if appendErr != nil {
		return nil, appendErr
	}
	return event, nil
}
