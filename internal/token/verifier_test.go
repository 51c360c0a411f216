package token_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	josejwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jermoo/realms-core/internal/token"
)

type fakeLookup struct {
	realms map[string]token.ActiveRealm
}

func (f fakeLookup) ActiveRealmByIssuer(_ context.Context, issuer string) (token.ActiveRealm, bool, error) {
	r, ok := f.realms["issuer:"+issuer]
	return r, ok, nil
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims interface{}) string {
	t.Helper()
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: key},
		(&jose.SignerOptions{}).WithType("JWT").WithHeader("kid", kid),
	)
	require.NoError(t, err)

	raw, err := josejwt.Signed(signer).Claims(claims).Serialize()
	require.NoError(t, err)
	return raw
}

func publicKeySet(key *rsa.PrivateKey, kid string) jose.JSONWebKeySet {
	return jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
		Key: key.Public(), KeyID: kid, Algorithm: string(jose.RS256), Use: "sig",
	}}}
}

func genKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

type rawClaims struct {
	josejwt.Claims
	PreferredUsername string      `json:"preferred_username,omitempty"`
	Groups            interface{} `json:"groups,omitempty"`
}

func TestVerify_ValidToken_ComposesCaller(t *testing.T) {
	key := genKey(t)
	lookup := fakeLookup{realms: map[string]token.ActiveRealm{
		"issuer:https://idp.example": {ID: "google", Keys: publicKeySet(key, "k1")},
	}}
	v := token.NewVerifier(lookup)

	raw := signToken(t, key, "k1", rawClaims{
		Claims:            josejwt.Claims{Issuer: "https://idp.example", Subject: "u1"},
		PreferredUsername: "alice",
		Groups:            []string{"g1", "g2"},
	})

	caller, err := v.Verify(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, token.User{Subject: "alice", Realm: "google"}, caller.Subject)
	assert.True(t, caller.Has(token.Anonymous{}))
	assert.True(t, caller.Has(token.Authenticated{Realm: "google"}))
	assert.True(t, caller.Has(token.User{Subject: "alice", Realm: "google"}))
	assert.True(t, caller.Has(token.Group{Name: "g1", Realm: "google"}))
	assert.True(t, caller.Has(token.Group{Name: "g2", Realm: "google"}))
	assert.Len(t, caller.Identities, 5)
}

func TestVerify_CommaSeparatedGroups_Trimmed(t *testing.T) {
	key := genKey(t)
	lookup := fakeLookup{realms: map[string]token.ActiveRealm{
		"issuer:https://idp.example": {ID: "google", Keys: publicKeySet(key, "k1")},
	}}
	v := token.NewVerifier(lookup)

	raw := signToken(t, key, "k1", rawClaims{
		Claims: josejwt.Claims{Issuer: "https://idp.example", Subject: "u1"},
		Groups: "g1, g2,  g3",
	})

	caller, err := v.Verify(context.Background(), raw)
	require.NoError(t, err)
	assert.True(t, caller.Has(token.Group{Name: "g1", Realm: "google"}))
	assert.True(t, caller.Has(token.Group{Name: "g2", Realm: "google"}))
	assert.True(t, caller.Has(token.Group{Name: "g3", Realm: "google"}))
	assert.Len(t, caller.Identities, 6)
}

func TestVerify_UnknownIssuer_Rejected(t *testing.T) {
	key := genKey(t)
	lookup := fakeLookup{realms: map[string]token.ActiveRealm{}}
	v := token.NewVerifier(lookup)

	raw := signToken(t, key, "k1", rawClaims{Claims: josejwt.Claims{Issuer: "https://unknown.example", Subject: "u1"}})

	_, err := v.Verify(context.Background(), raw)
	require.Error(t, err)
	assert.ErrorIs(t, err, token.ErrUnknownIssuer)
}

func TestVerify_WrongSigningKey_InvalidSignature(t *testing.T) {
	key := genKey(t)
	otherKey := genKey(t)
	lookup := fakeLookup{realms: map[string]token.ActiveRealm{
		// realm's published keys don't include the key that actually signed the token
		"issuer:https://idp.example": {ID: "google", Keys: publicKeySet(otherKey, "k1")},
	}}
	v := token.NewVerifier(lookup)

	raw := signToken(t, key, "k1", rawClaims{Claims: josejwt.Claims{Issuer: "https://idp.example", Subject: "u1"}})

	_, err := v.Verify(context.Background(), raw)
	require.Error(t, err)
	assert.ErrorIs(t, err, token.ErrInvalidSignature)
}

func TestVerify_ExpiredToken_Rejected(t *testing.T) {
	key := genKey(t)
	lookup := fakeLookup{realms: map[string]token.ActiveRealm{
		"issuer:https://idp.example": {ID: "google", Keys: publicKeySet(key, "k1")},
	}}
	v := token.NewVerifier(lookup)

	past := josejwt.NewNumericDate(time.Now().Add(-time.Hour))
	raw := signToken(t, key, "k1", rawClaims{
		Claims: josejwt.Claims{Issuer: "https://idp.example", Subject: "u1", Expiry: past},
	})

	_, err := v.Verify(context.Background(), raw)
	require.Error(t, err)
	assert.ErrorIs(t, err, token.ErrInvalidSignature)
}

func TestVerify_NoIssuer_Rejected(t *testing.T) {
	key := genKey(t)
	lookup := fakeLookup{}
	v := token.NewVerifier(lookup)

	raw := signToken(t, key, "k1", rawClaims{Claims: josejwt.Claims{Subject: "u1"}})

	_, err := v.Verify(context.Background(), raw)
	assert.ErrorIs(t, err, token.ErrNoIssuer)
}

func TestVerify_NoSubject_Rejected(t *testing.T) {
	key := genKey(t)
	lookup := fakeLookup{realms: map[string]token.ActiveRealm{
		"issuer:https://idp.example": {ID: "google", Keys: publicKeySet(key, "k1")},
	}}
	v := token.NewVerifier(lookup)

	raw := signToken(t, key, "k1", rawClaims{Claims: josejwt.Claims{Issuer: "https://idp.example"}})

	_, err := v.Verify(context.Background(), raw)
	assert.ErrorIs(t, err, token.ErrNoSubject)
}

func TestVerify_MalformedToken_InvalidFormat(t *testing.T) {
	v := token.NewVerifier(fakeLookup{})
	_, err := v.Verify(context.Background(), "not-a-jwt")
	assert.ErrorIs(t, err, token.ErrInvalidFormat)
}

func TestVerify_EmptyBearer_InvalidFormat(t *testing.T) {
	v := token.NewVerifier(fakeLookup{})
	_, err := v.Verify(context.Background(), "  ")
	assert.ErrorIs(t, err, token.ErrInvalidFormat)
}
