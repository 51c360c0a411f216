// Package index implements the realm read index: a cluster-replicated
// Label -> Resource map with last-writer-wins by revision. Reads are local
// and non-blocking; writes are idempotent against replay. Two
// implementations are provided: Memory for a single process and tests, and
// Redis for a replicated deployment.
package index

import (
	"context"
	"time"

	"github.com/go-jose/go-jose/v4"

	"github.com/jermoo/realms-core/internal/realmdomain"
)

// ResourceType is always "nxv:Realm" in this domain; it is modeled as a
// set for forward compatibility with other resource kinds sharing the index.
const ResourceType = "nxv:Realm"

// ActiveProjection is the Resource payload for an Active realm, carrying
// everything the token verifier and API clients need.
type ActiveProjection struct {
	Name         string
	OpenIDConfig string
	Issuer       string
	Keys         jose.JSONWebKeySet
	GrantTypes   []string
	Logo         string
	Endpoints    realmdomain.Endpoints
}

// DeprecatedProjection is the Resource payload for a Deprecated realm: no
// keys, no endpoints.
type DeprecatedProjection struct {
	Name         string
	OpenIDConfig string
	Logo         string
}

// Resource is the read model a Current aggregate state projects to.
// Exactly one of Active/Frozen is populated, selected by Deprecated.
type Resource struct {
	ID        realmdomain.Label
	Rev       int
	Types     []string
	CreatedAt time.Time
	CreatedBy string
	UpdatedAt time.Time
	UpdatedBy string
	Deprecated bool
	Active    *ActiveProjection
	Frozen    *DeprecatedProjection
}

// Metadata narrows a Resource to the fields the façade returns from write
// operations.
type Metadata struct {
	ID         realmdomain.Label
	Rev        int
	Types      []string
	Deprecated bool
	CreatedAt  time.Time
	CreatedBy  string
	UpdatedAt  time.Time
	UpdatedBy  string
}

// Meta projects r down to its Metadata.
func Meta(r Resource) Metadata {
	return Metadata{
		ID: r.ID, Rev: r.Rev, Types: r.Types, Deprecated: r.Deprecated,
		CreatedAt: r.CreatedAt, CreatedBy: r.CreatedBy, UpdatedAt: r.UpdatedAt, UpdatedBy: r.UpdatedBy,
	}
}

// FromState projects an aggregate State into a Resource, the conversion
// the projector and the façade both perform after a successful write.
func FromState(id realmdomain.Label, s realmdomain.State) (Resource, bool) {
	switch st := s.(type) {
	case realmdomain.Active:
		return Resource{
			ID: id, Rev: st.RevNumber, Types: []string{ResourceType},
			CreatedAt: st.CreatedAt, CreatedBy: st.CreatedBy,
			UpdatedAt: st.UpdatedAt, UpdatedBy: st.UpdatedBy,
			Deprecated: false,
			Active: &ActiveProjection{
				Name: st.Fields.Name, OpenIDConfig: st.Fields.OpenIDConfig, Issuer: st.Fields.Issuer,
				Keys: st.Fields.Keys, GrantTypes: st.Fields.GrantTypes, Logo: st.Fields.Logo,
				Endpoints: st.Fields.Endpoints,
			},
		}, true
	case realmdomain.Deprecated:
		return Resource{
			ID: id, Rev: st.RevNumber, Types: []string{ResourceType},
			CreatedAt: st.CreatedAt, CreatedBy: st.CreatedBy,
			UpdatedAt: st.UpdatedAt, UpdatedBy: st.UpdatedBy,
			Deprecated: true,
			Frozen: &DeprecatedProjection{
				Name: st.Name, OpenIDConfig: st.OpenIDConfig, Logo: st.Logo,
			},
		}, true
	default:
		return Resource{}, false
	}
}

// Index is the cluster-replicated read model. Put is idempotent under
// replay: implementations must treat upserting an equal or lower rev for
// id as a no-op.
type Index interface {
	Put(ctx context.Context, r Resource) error
	Get(ctx context.Context, id realmdomain.Label) (Resource, bool, error)
	List(ctx context.Context) ([]Resource, error)
}

// ErrOperationTimedOut and ErrInternal are the two failure classes the
// underlying replicator can surface; the façade maps both into IamError.
var (
	ErrOperationTimedOut = indexError("index: operation timed out")
	ErrInternal          = indexError("index: internal replicator fault")
)

type indexError string

func (e indexError) Error() string { return string(e) }
