package index_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jermoo/realms-core/internal/index"
	"github.com/jermoo/realms-core/internal/realmdomain"
)

func TestMemory_Put_LastWriterWinsByRevision(t *testing.T) {
	idx := index.NewMemory()
	ctx := context.Background()

	require.NoError(t, idx.Put(ctx, index.Resource{ID: "google", Rev: 2}))
	require.NoError(t, idx.Put(ctx, index.Resource{ID: "google", Rev: 1})) // stale, no-op

	got, ok, err := idx.Get(ctx, "google")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, got.Rev)
}

func TestMemory_Put_EqualRevisionIsNoOp(t *testing.T) {
	idx := index.NewMemory()
	ctx := context.Background()

	require.NoError(t, idx.Put(ctx, index.Resource{ID: "google", Rev: 1, CreatedBy: "first"}))
	require.NoError(t, idx.Put(ctx, index.Resource{ID: "google", Rev: 1, CreatedBy: "second"}))

	got, _, _ := idx.Get(ctx, "google")
	assert.Equal(t, "first", got.CreatedBy)
}

func TestMemory_List_SortedByCreatedAtAscending(t *testing.T) {
	idx := index.NewMemory()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, idx.Put(ctx, index.Resource{ID: "b", Rev: 1, CreatedAt: now.Add(2 * time.Minute)}))
	require.NoError(t, idx.Put(ctx, index.Resource{ID: "a", Rev: 1, CreatedAt: now}))
	require.NoError(t, idx.Put(ctx, index.Resource{ID: "c", Rev: 1, CreatedAt: now.Add(time.Minute)}))

	list, err := idx.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, realmdomain.Label("a"), list[0].ID)
	assert.Equal(t, realmdomain.Label("c"), list[1].ID)
	assert.Equal(t, realmdomain.Label("b"), list[2].ID)
}

func TestMemory_ActiveRealmByIssuer_ExcludesDeprecated(t *testing.T) {
	idx := index.NewMemory()
	ctx := context.Background()

	require.NoError(t, idx.Put(ctx, index.Resource{
		ID: "google", Rev: 1, Deprecated: true,
		Frozen: &index.DeprecatedProjection{Name: "Google"},
	}))

	_, found, err := idx.ActiveRealmByIssuer(ctx, "https://accounts.google.com")
	require.NoError(t, err)
	assert.False(t, found, "a deprecated realm must never be returned to the token verifier")
}

func TestMemory_ActiveRealmByIssuer_FindsActive(t *testing.T) {
	idx := index.NewMemory()
	ctx := context.Background()

	require.NoError(t, idx.Put(ctx, index.Resource{
		ID: "google", Rev: 1,
		Active: &index.ActiveProjection{Issuer: "https://accounts.google.com"},
	}))

	realm, found, err := idx.ActiveRealmByIssuer(ctx, "https://accounts.google.com")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "google", realm.ID)
}

func TestMemory_ActiveLabelWithIssuer_ExcludesOwnLabel(t *testing.T) {
	idx := index.NewMemory()
	ctx := context.Background()

	require.NoError(t, idx.Put(ctx, index.Resource{
		ID: "google", Rev: 1,
		Active: &index.ActiveProjection{Issuer: "https://accounts.google.com"},
	}))

	_, found, err := idx.ActiveLabelWithIssuer(ctx, "https://accounts.google.com", "google")
	require.NoError(t, err)
	assert.False(t, found, "a realm checking against its own prior issuer must not conflict with itself")

	owner, found, err := idx.ActiveLabelWithIssuer(ctx, "https://accounts.google.com", "other")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, realmdomain.Label("google"), owner)
}

func TestFromState_Active_And_Deprecated(t *testing.T) {
	active := realmdomain.Active{
		ID: "google", RevNumber: 1,
		Fields: realmdomain.Fields{Name: "Google", Issuer: "https://accounts.google.com"},
	}
	resource, ok := index.FromState("google", active)
	require.True(t, ok)
	assert.False(t, resource.Deprecated)
	require.NotNil(t, resource.Active)
	assert.Equal(t, "https://accounts.google.com", resource.Active.Issuer)

	deprecated := realmdomain.Deprecated{ID: "google", RevNumber: 3, Name: "Google"}
	resource, ok = index.FromState("google", deprecated)
	require.True(t, ok)
	assert.True(t, resource.Deprecated)
	require.NotNil(t, resource.Frozen)
	assert.Nil(t, resource.Active)

	_, ok = index.FromState("google", realmdomain.Initial{})
	assert.False(t, ok)
}
