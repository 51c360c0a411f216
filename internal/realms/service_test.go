package realms_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jermoo/realms-core/internal/acl"
	"github.com/jermoo/realms-core/internal/aggregate"
	"github.com/jermoo/realms-core/internal/clock"
	"github.com/jermoo/realms-core/internal/index"
	"github.com/jermoo/realms-core/internal/journal"
	"github.com/jermoo/realms-core/internal/realmdomain"
	"github.com/jermoo/realms-core/internal/realms"
	"github.com/jermoo/realms-core/internal/retry"
	"github.com/jermoo/realms-core/internal/token"
	"github.com/jermoo/realms-core/internal/wellknown"
)

type fakeResolver struct{}

func (fakeResolver) Resolve(_ context.Context, url string) (wellknown.Document, error) {
	return wellknown.Document{
		Issuer:                "https://accounts.google.com",
		AuthorizationEndpoint: "https://accounts.google.com/authorize",
		TokenEndpoint:         "https://accounts.google.com/token",
		UserInfoEndpoint:      "https://accounts.google.com/userinfo",
		GrantTypes:            []string{"authorization_code", "refresh_token"},
	}, nil
}

func newTestService(t *testing.T) (*realms.Service, *index.Memory) {
	t.Helper()
	j := journal.NewMemoryJournal()
	idx := index.NewMemory()
	rt := aggregate.NewRuntime(aggregate.DefaultConfig(), clock.System{}, j, j, fakeResolver{}, idx, retry.Never(), zerolog.Nop())
	return realms.New(rt, idx, acl.AllowAll{}, zerolog.Nop()), idx
}

// TestRealmsLifecycle_SeedScenario exercises the realm lifecycle end to
// end: create, update, stale update rejected, deprecate.
func TestRealmsLifecycle_SeedScenario(t *testing.T) {
	svc, idx := newTestService(t)
	ctx := context.Background()
	caller := token.AnonymousCaller()

	meta, created, err := svc.Put(ctx, caller, "google", nil, "admin", realms.CreateOrUpdateInput{
		Name: "Google", OpenIDConfig: "https://accounts.google.com/.well-known/openid-configuration",
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 1, meta.Rev)
	assert.False(t, meta.Deprecated)

	got, err := svc.Get(ctx, caller, "google", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Rev)
	require.NotNil(t, got.Active)
	assert.Equal(t, "https://accounts.google.com", got.Active.Issuer)

	rev1 := 1
	meta, created, err = svc.Put(ctx, caller, "google", &rev1, "admin", realms.CreateOrUpdateInput{
		Name: "Google v2", OpenIDConfig: "https://accounts.google.com/.well-known/openid-configuration",
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 2, meta.Rev)

	old, err := svc.Get(ctx, caller, "google", &rev1)
	require.NoError(t, err)
	assert.Equal(t, "Google", old.Active.Name)

	current, err := svc.Get(ctx, caller, "google", nil)
	require.NoError(t, err)
	assert.Equal(t, "Google v2", current.Active.Name)

	_, _, err = svc.Put(ctx, caller, "google", &rev1, "admin", realms.CreateOrUpdateInput{
		Name: "Stale", OpenIDConfig: "https://accounts.google.com/.well-known/openid-configuration",
	})
	require.Error(t, err)
	var incorrect realmdomain.IncorrectRev
	require.ErrorAs(t, err, &incorrect)
	assert.Equal(t, 1, incorrect.Provided)
	assert.Equal(t, 2, incorrect.Expected)

	rev2 := 2
	meta, err = svc.Delete(ctx, caller, "google", rev2, "admin")
	require.NoError(t, err)
	assert.Equal(t, 3, meta.Rev)
	assert.True(t, meta.Deprecated)

	deprecated, err := svc.Get(ctx, caller, "google", nil)
	require.NoError(t, err)
	assert.True(t, deprecated.Deprecated)

	_, found, err := idx.ActiveRealmByIssuer(ctx, "https://accounts.google.com")
	require.NoError(t, err)
	assert.False(t, found, "a deprecated realm must no longer resolve for token verification")
}

func TestService_Put_AccessDenied(t *testing.T) {
	j := journal.NewMemoryJournal()
	idx := index.NewMemory()
	rt := aggregate.NewRuntime(aggregate.DefaultConfig(), clock.System{}, j, j, fakeResolver{}, idx, retry.Never(), zerolog.Nop())
	denyAll := acl.NewStatic(map[string][]token.Identity{})
	svc := realms.New(rt, idx, denyAll, zerolog.Nop())

	_, _, err := svc.Put(context.Background(), token.AnonymousCaller(), "google", nil, "admin", realms.CreateOrUpdateInput{
		Name: "Google", OpenIDConfig: "https://accounts.google.com/.well-known/openid-configuration",
	})
	require.Error(t, err)
	var denied realms.AccessDenied
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, acl.RealmsWrite, denied.Permission)
}

func TestService_Get_NotFound(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Get(context.Background(), token.AnonymousCaller(), "missing", nil)
	assert.ErrorIs(t, err, realmdomain.RealmNotFound)
}

func TestService_List_SortedByCreatedAt(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	caller := token.AnonymousCaller()

	_, _, err := svc.Put(ctx, caller, "first", nil, "admin", realms.CreateOrUpdateInput{Name: "First", OpenIDConfig: "https://accounts.google.com/.well-known/openid-configuration"})
	require.NoError(t, err)

	list, err := svc.List(ctx, caller)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, realmdomain.Label("first"), list[0].ID)
}
