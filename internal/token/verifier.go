package token

import (
	"context"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

// ActiveRealm is the subset of an Active realm the verifier needs: its
// identity and its current signature-verification key set. Deprecated
// realms are never handed to the verifier.
type ActiveRealm struct {
	ID   string
	Keys jose.JSONWebKeySet
}

// RealmLookup resolves the issuer claim of a bearer token to the Active
// realm that should verify it. Implementations must only ever return realms
// in the Active state.
type RealmLookup interface {
	ActiveRealmByIssuer(ctx context.Context, issuer string) (ActiveRealm, bool, error)
}

// claims is the subset of standard and Keycloak-style OIDC claims the
// verifier reads. There is no fixed audience/clientID to check — a realm's
// trust boundary is "signed by this realm's keys", not "issued for this
// client".
type claims struct {
	jwt.Claims
	PreferredUsername string      `json:"preferred_username"`
	Groups            interface{} `json:"groups"`
}

// Verifier parses a bearer token, verifies its RS256 signature against the
// issuing realm's key set, and extracts a Caller.
type Verifier struct {
	realms RealmLookup
}

// NewVerifier constructs a Verifier backed by the given realm lookup,
// typically the read index.
func NewVerifier(realms RealmLookup) *Verifier {
	return &Verifier{realms: realms}
}

// Verify parses the bearer token, extracts its claims, reads the issuer,
// resolves the Active realm, verifies the RS256 signature (enforcing
// exp/nbf), extracts the subject and groups, and composes the Caller.
func (v *Verifier) Verify(ctx context.Context, bearer string) (Caller, error) {
	bearer = strings.TrimSpace(bearer)
	if bearer == "" {
		return Caller{}, reject(ErrInvalidFormat)
	}

	parsed, err := jwt.ParseSigned(bearer, []jose.SignatureAlgorithm{jose.RS256})
	if err != nil {
		return Caller{}, reject(ErrInvalidFormat)
	}

	// A first, unverified parse is needed only to read the issuer so we
	// know which realm's keys to check the signature against.
	var unverified claims
	if err := parsed.UnsafeClaimsWithoutVerification(&unverified); err != nil {
		return Caller{}, reject(ErrInvalidFormat)
	}
	if unverified.Issuer == "" {
		return Caller{}, reject(ErrNoIssuer)
	}

	realm, ok, err := v.realms.ActiveRealmByIssuer(ctx, unverified.Issuer)
	if err != nil {
		return Caller{}, err
	}
	if !ok {
		return Caller{}, reject(ErrUnknownIssuer)
	}

	var verified claims
	signatureOK := false
	for _, key := range selectKeys(realm.Keys, keyIDOf(parsed)) {
		if err := parsed.Claims(key, &verified); err == nil {
			signatureOK = true
			break
		}
	}
	if !signatureOK {
		return Caller{}, reject(ErrInvalidSignature)
	}

	if err := verified.Claims.Validate(jwt.Expected{Time: time.Now()}); err != nil {
		return Caller{}, reject(ErrInvalidSignature)
	}

	subject := verified.PreferredUsername
	if subject == "" {
		subject = verified.Subject
	}
	if subject == "" {
		return Caller{}, reject(ErrNoSubject)
	}

	groups := extractGroups(verified.Groups)

	identities := make([]Identity, 0, 3+len(groups))
	identities = append(identities,
		Anonymous{},
		Authenticated{Realm: realm.ID},
		User{Subject: subject, Realm: realm.ID},
	)
	for _, g := range groups {
		identities = append(identities, Group{Name: g, Realm: realm.ID})
	}

	return Caller{
		Subject:    User{Subject: subject, Realm: realm.ID},
		Identities: identities,
	}, nil
}

// keyIDOf returns the kid header of the first signature on the token, or ""
// if absent.
func keyIDOf(tok *jwt.JSONWebToken) string {
	if len(tok.Headers) == 0 {
		return ""
	}
	return tok.Headers[0].KeyID
}

// selectKeys narrows the key set to the matching kid when present,
// otherwise falls back to trying every key.
func selectKeys(ks jose.JSONWebKeySet, kid string) []jose.JSONWebKey {
	if kid != "" {
		if matches := ks.Key(kid); len(matches) > 0 {
			return matches
		}
	}
	return ks.Keys
}

// extractGroups tries a string array first, then falls back to splitting a
// single comma-separated string, trimming each element. Any other shape
// (or absence) yields an empty set. The comma-separated form is treated as
// opaque: no quoting/escaping is supported, so a group name containing a
// literal comma cannot be represented this way.
func extractGroups(raw interface{}) []string {
	switch v := raw.(type) {
	case []interface{}:
		groups := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				groups = append(groups, s)
			}
		}
		return groups
	case string:
		if v == "" {
			return nil
		}
		parts := strings.Split(v, ",")
		groups := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				groups = append(groups, p)
			}
		}
		return groups
	default:
		return nil
	}
}
