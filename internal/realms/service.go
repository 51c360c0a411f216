// Package realms implements the realms façade: the
// stateless orchestration layer that checks ACLs, submits commands to the
// aggregate runtime, refreshes the read index, and projects results into
// the wire-level Resource/Metadata shapes.
package realms

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/jermoo/realms-core/internal/acl"
	"github.com/jermoo/realms-core/internal/aggregate"
	"github.com/jermoo/realms-core/internal/index"
	"github.com/jermoo/realms-core/internal/journal"
	"github.com/jermoo/realms-core/internal/realmdomain"
	"github.com/jermoo/realms-core/internal/retry"
	"github.com/jermoo/realms-core/internal/token"
)

const realmsPath = "/v1/realms"

// Service is the public realms contract: create, update, deprecate,
// fetch, list, gated by ACL permissions.
type Service struct {
	aggregates *aggregate.Runtime
	index      index.Index
	acls       acl.Acls
	log        zerolog.Logger
}

// New constructs a Service.
func New(aggregates *aggregate.Runtime, idx index.Index, acls acl.Acls, log zerolog.Logger) *Service {
	return &Service{aggregates: aggregates, index: idx, acls: acls, log: log}
}

// List implements "list returns the index values sorted by createdAt
// ascending", gated by realms/read.
func (s *Service) List(ctx context.Context, caller token.Caller) ([]index.Resource, error) {
	if !s.acls.HasPermission(realmsPath, acl.RealmsRead, caller) {
		return nil, AccessDenied{Resource: realmsPath, Permission: acl.RealmsRead}
	}
	resources, err := s.index.List(ctx)
	if err != nil {
		return nil, translateIndexErr(err)
	}
	return resources, nil
}

// Get reads a single realm by label, gated by realms/read. If rev is
// non-nil, the aggregate's foldLeft rehydrates the state as of that
// revision rather than reading the (possibly stale) index.
func (s *Service) Get(ctx context.Context, caller token.Caller, id realmdomain.Label, rev *int) (index.Resource, error) {
	if !s.acls.HasPermission(realmsPath, acl.RealmsRead, caller) {
		return index.Resource{}, AccessDenied{Resource: realmsPath, Permission: acl.RealmsRead}
	}

	if rev != nil {
		state, err := s.aggregates.FoldLeft(ctx, id, *rev)
		if err != nil {
			return index.Resource{}, translateAggregateErr(err)
		}
		if state.Rev() != *rev {
			return index.Resource{}, realmdomain.RealmNotFound
		}
		resource, ok := index.FromState(id, state)
		if !ok {
			return index.Resource{}, realmdomain.RealmNotFound
		}
		return resource, nil
	}

	resource, ok, err := s.index.Get(ctx, id)
	if err != nil {
		return index.Resource{}, translateIndexErr(err)
	}
	if !ok {
		return index.Resource{}, realmdomain.RealmNotFound
	}
	return resource, nil
}

// CreateOrUpdateInput is the PUT /realms/{id} request body.
type CreateOrUpdateInput struct {
	Name         string
	OpenIDConfig string
	Logo         string
}

// Put implements PUT /realms/{id}: rev == nil means create (201), rev != nil
// means update at that revision (200).
func (s *Service) Put(ctx context.Context, caller token.Caller, id realmdomain.Label, rev *int, subject string, in CreateOrUpdateInput) (index.Metadata, bool, error) {
	if !s.acls.HasPermission(realmsPath, acl.RealmsWrite, caller) {
		return index.Metadata{}, false, AccessDenied{Resource: realmsPath, Permission: acl.RealmsWrite}
	}

	var cmd realmdomain.Command
	created := rev == nil
	if created {
		cmd = realmdomain.CreateRealm{ID: id, Subject: subject, Name: in.Name, OpenIDConfig: in.OpenIDConfig, Logo: in.Logo}
	} else {
		cmd = realmdomain.UpdateRealm{ID: id, Rev: *rev, Subject: subject, Name: in.Name, OpenIDConfig: in.OpenIDConfig, Logo: in.Logo}
	}

	event, err := s.aggregates.Evaluate(ctx, id, cmd)
	if err != nil {
		return index.Metadata{}, false, translateAggregateErr(err)
	}

	return s.refreshAndReturn(ctx, id, event), created, nil
}

// Delete implements DELETE /realms/{id}?rev=: there is no hard-delete
// operation, "delete" freezes the realm (deprecation).
func (s *Service) Delete(ctx context.Context, caller token.Caller, id realmdomain.Label, rev int, subject string) (index.Metadata, error) {
	if !s.acls.HasPermission(realmsPath, acl.RealmsWrite, caller) {
		return index.Metadata{}, AccessDenied{Resource: realmsPath, Permission: acl.RealmsWrite}
	}

	event, err := s.aggregates.Evaluate(ctx, id, realmdomain.DeprecateRealm{ID: id, Rev: rev, Subject: subject})
	if err != nil {
		return index.Metadata{}, translateAggregateErr(err)
	}

	return s.refreshAndReturn(ctx, id, event), nil
}

// refreshAndReturn synchronously refreshes the index for id, best-effort
// (failures logged, not surfaced), then returns ResourceMetadata built
// straight from the just-applied event's resulting state so the caller
// never observes index staleness for its own write.
func (s *Service) refreshAndReturn(ctx context.Context, id realmdomain.Label, event realmdomain.Event) index.Metadata {
	state, err := s.aggregates.CurrentState(ctx, id)
	if err != nil {
		s.log.Warn().Err(err).Str("realm", string(id)).Msg("realms: could not refresh state after write")
		return metadataFromEvent(id, event)
	}

	resource, ok := index.FromState(id, state)
	if !ok {
		return metadataFromEvent(id, event)
	}

	if err := s.index.Put(ctx, resource); err != nil {
		s.log.Warn().Err(err).Str("realm", string(id)).Msg("realms: index refresh failed (best-effort)")
	}
	return index.Meta(resource)
}

func metadataFromEvent(id realmdomain.Label, event realmdomain.Event) index.Metadata {
	return index.Metadata{
		ID: id, Rev: event.EventRev(), Types: []string{index.ResourceType},
		UpdatedAt: event.Instant(), UpdatedBy: event.Subject(),
	}
}

func translateAggregateErr(err error) error {
	switch {
	case errors.Is(err, aggregate.ErrEvaluationTimedOut):
		return OperationTimedOut{Reason: "aggregate command evaluation"}
	case errors.Is(err, context.DeadlineExceeded):
		return OperationTimedOut{Reason: "context deadline exceeded"}
	case errors.Is(err, journal.ErrRevisionConflict):
		// Lost the optimistic-concurrency race between recovery and
		// append; the command failed with no event persisted.
		return InternalError{Reason: "revision conflict, retry"}
	}

	var retriable *retry.Retriable
	if errors.As(err, &retriable) {
		return InternalError{Reason: err.Error()}
	}

	var rejection realmdomain.Rejection
	if errors.As(err, &rejection) {
		return rejection
	}

	// A wellknown.Rejection surfaces here when Create/Update triggers
	// discovery (resolveAndCheckIssuer); it is domain validation, not an
	// infrastructure fault, so it passes through as-is rather than being
	// wrapped in InternalError. The HTTP layer renders any error that is
	// neither an IamError nor a realmdomain.Rejection as 400.
	return err
}

func translateIndexErr(err error) error {
	switch {
	case errors.Is(err, index.ErrOperationTimedOut):
		return OperationTimedOut{Reason: "index read"}
	case errors.Is(err, index.ErrInternal):
		return InternalError{Reason: err.Error()}
	default:
		return InternalError{Reason: err.Error()}
	}
}
