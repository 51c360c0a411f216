package journal_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jermoo/realms-core/internal/journal"
	"github.com/jermoo/realms-core/internal/realmdomain"
)

func sampleFields() realmdomain.Fields {
	return realmdomain.Fields{
		Name:         "Google",
		OpenIDConfig: "https://accounts.google.com/.well-known/openid-configuration",
		Issuer:       "https://accounts.google.com",
		Keys:         jose.JSONWebKeySet{},
		GrantTypes:   []string{"authorization_code", "refresh_token"},
		Logo:         "https://accounts.google.com/logo.png",
		Endpoints: realmdomain.Endpoints{
			AuthorizationEndpoint: "https://accounts.google.com/authorize",
			TokenEndpoint:         "https://accounts.google.com/token",
			UserInfoEndpoint:      "https://accounts.google.com/userinfo",
			RevocationEndpoint:    "https://accounts.google.com/revoke",
			EndSessionEndpoint:    "https://accounts.google.com/logout",
		},
	}
}

func TestEventCodec_RoundTrip_RealmCreated(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	original := realmdomain.NewCreated("google", now, "admin", sampleFields())

	data, err := journal.MarshalEvent(original)
	require.NoError(t, err)

	decoded, err := journal.UnmarshalEvent(data)
	require.NoError(t, err)

	created, ok := decoded.(realmdomain.RealmCreated)
	require.True(t, ok)
	assert.Equal(t, original.EventLabel(), created.EventLabel())
	assert.Equal(t, original.EventRev(), created.EventRev())
	assert.True(t, original.Instant().Equal(created.Instant()))
	assert.Equal(t, original.Subject(), created.Subject())
	assert.Equal(t, original.Fields, created.Fields)
}

func TestEventCodec_RoundTrip_RealmUpdated(t *testing.T) {
	now := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	original := realmdomain.NewUpdated("google", 2, now, "admin", sampleFields())

	data, err := journal.MarshalEvent(original)
	require.NoError(t, err)
	decoded, err := journal.UnmarshalEvent(data)
	require.NoError(t, err)

	updated, ok := decoded.(realmdomain.RealmUpdated)
	require.True(t, ok)
	assert.Equal(t, 2, updated.EventRev())
	assert.Equal(t, original.Fields, updated.Fields)
}

func TestEventCodec_RoundTrip_RealmDeprecated(t *testing.T) {
	now := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
	original := realmdomain.NewDeprecated("google", 3, now, "admin")

	data, err := journal.MarshalEvent(original)
	require.NoError(t, err)
	decoded, err := journal.UnmarshalEvent(data)
	require.NoError(t, err)

	deprecated, ok := decoded.(realmdomain.RealmDeprecated)
	require.True(t, ok)
	assert.Equal(t, 3, deprecated.EventRev())
	assert.Equal(t, "admin", deprecated.Subject())
}

func TestStateCodec_RoundTrip_Active(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	original := realmdomain.Active{
		ID: "google", RevNumber: 1, Fields: sampleFields(),
		CreatedAt: now, CreatedBy: "admin", UpdatedAt: now, UpdatedBy: "admin",
	}

	data, err := journal.MarshalState(original)
	require.NoError(t, err)
	decoded, err := journal.UnmarshalState(data)
	require.NoError(t, err)

	active, ok := decoded.(realmdomain.Active)
	require.True(t, ok)
	assert.Equal(t, original.ID, active.ID)
	assert.Equal(t, original.RevNumber, active.RevNumber)
	assert.Equal(t, original.Fields, active.Fields)
}

func TestStateCodec_RoundTrip_Deprecated(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	original := realmdomain.Deprecated{
		ID: "google", RevNumber: 3, Name: "Google", OpenIDConfig: "https://accounts.google.com/.well-known/openid-configuration",
		Logo: "logo.png", CreatedAt: now, CreatedBy: "admin", UpdatedAt: now, UpdatedBy: "admin",
	}

	data, err := journal.MarshalState(original)
	require.NoError(t, err)
	decoded, err := journal.UnmarshalState(data)
	require.NoError(t, err)

	deprecated, ok := decoded.(realmdomain.Deprecated)
	require.True(t, ok)
	assert.Equal(t, original, deprecated)
}

func TestMemoryJournal_RoundTrip_AppendLoad(t *testing.T) {
	j := journal.NewMemoryJournal()
	ctx := context.Background()

	created := realmdomain.NewCreated("google", time.Now(), "admin", sampleFields())
	require.NoError(t, j.Append(ctx, journal.PersistenceID("google"), created))

	updated := realmdomain.NewUpdated("google", 2, time.Now(), "admin", sampleFields())
	require.NoError(t, j.Append(ctx, journal.PersistenceID("google"), updated))

	events, err := j.Load(ctx, journal.PersistenceID("google"), 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, 1, events[0].EventRev())
	assert.Equal(t, 2, events[1].EventRev())
}

func TestMemoryJournal_Append_RejectsRevisionGap(t *testing.T) {
	j := journal.NewMemoryJournal()
	ctx := context.Background()

	skipped := realmdomain.NewUpdated("google", 2, time.Now(), "admin", sampleFields())
	err := j.Append(ctx, journal.PersistenceID("google"), skipped)
	assert.ErrorIs(t, err, journal.ErrRevisionConflict)
}
