package wellknown

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-jose/go-jose/v4"

	"github.com/jermoo/realms-core/internal/retry"
)

// recognizedGrantTypes is the set grant_types_supported is filtered to;
// any other value fails validation.
var recognizedGrantTypes = map[string]bool{
	"authorization_code": true,
	"implicit":           true,
	"password":           true,
	"client_credentials": true,
	"refresh_token":      true,
	"device_code":        true,
	"jwt_bearer":         true,
	"saml2_bearer":       true,
}

// Document is the validated result of resolving a realm's discovery
// document and JWKS.
type Document struct {
	Issuer                string
	AuthorizationEndpoint string
	TokenEndpoint         string
	UserInfoEndpoint      string
	RevocationEndpoint    string
	EndSessionEndpoint    string
	GrantTypes            []string
	Keys                  jose.JSONWebKeySet
}

// HTTPDoer is the minimal HTTP capability the resolver needs, satisfied by
// *http.Client. Tests inject a fake.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Resolver fetches and validates an OIDC discovery document and its JWKS.
type Resolver struct {
	http  HTTPDoer
	retry retry.Policy
}

// NewResolver constructs a Resolver using client for HTTP and policy to
// retry transient fetch failures (not validation failures — those are
// permanent Rejections, never retried).
func NewResolver(client HTTPDoer, policy retry.Policy) *Resolver {
	return &Resolver{http: client, retry: policy}
}

type discoveryResponse struct {
	Issuer                string   `json:"issuer"`
	JWKSURI               string   `json:"jwks_uri"`
	AuthorizationEndpoint string   `json:"authorization_endpoint"`
	TokenEndpoint         string   `json:"token_endpoint"`
	UserInfoEndpoint      string   `json:"userinfo_endpoint"`
	RevocationEndpoint    string   `json:"revocation_endpoint"`
	EndSessionEndpoint    string   `json:"end_session_endpoint"`
	GrantTypesSupported   []string `json:"grant_types_supported"`
}

// Resolve fetches and validates the discovery document at url, then its
// JWKS, validating fields in a deterministic order: issuer -> jwks_uri ->
// authorization -> token -> userinfo -> grant_types (optional) ->
// revocation (optional) -> end_session (optional).
func (r *Resolver) Resolve(ctx context.Context, url string) (Document, error) {
	var body []byte
	err := r.retry.Do(ctx, func(ctx context.Context) error {
		b, ferr := r.fetch(ctx, url)
		if ferr != nil {
			return retry.MarkRetriable(ferr)
		}
		body = b
		return nil
	})
	if err != nil {
		return Document{}, UnsuccessfulOpenIDConfigResponse
	}

	var disc discoveryResponse
	if jsonErr := json.Unmarshal(body, &disc); jsonErr != nil {
		return Document{}, IllegalOpenIDConfigFormat
	}

	doc, rejection := validateDiscovery(disc)
	if rejection != nil {
		return Document{}, rejection
	}

	var jwksBody []byte
	err = r.retry.Do(ctx, func(ctx context.Context) error {
		b, ferr := r.fetch(ctx, disc.JWKSURI)
		if ferr != nil {
			return retry.MarkRetriable(ferr)
		}
		jwksBody = b
		return nil
	})
	if err != nil {
		return Document{}, UnsuccessfulJWKSResponse
	}

	var keySet jose.JSONWebKeySet
	if jsonErr := json.Unmarshal(jwksBody, &keySet); jsonErr != nil {
		return Document{}, IllegalJWKSFormat
	}

	doc.Keys = filterSigningKeys(keySet)
	if len(doc.Keys.Keys) == 0 {
		return Document{}, NoValidKeysFound
	}

	return doc, nil
}

func (r *Resolver) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("wellknown: %s returned status %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func validateDiscovery(disc discoveryResponse) (Document, Rejection) {
	if strings.TrimSpace(disc.Issuer) == "" {
		return Document{}, IllegalIssuer
	}
	if !isAbsoluteHTTPURL(disc.JWKSURI) {
		return Document{}, IllegalOpenIDConfigFormat
	}
	if !isAbsoluteHTTPURL(disc.AuthorizationEndpoint) {
		return Document{}, IllegalEndpoint{Name: "authorization_endpoint"}
	}
	if !isAbsoluteHTTPURL(disc.TokenEndpoint) {
		return Document{}, IllegalEndpoint{Name: "token_endpoint"}
	}
	if !isAbsoluteHTTPURL(disc.UserInfoEndpoint) {
		return Document{}, IllegalEndpoint{Name: "userinfo_endpoint"}
	}

	grantTypes := make([]string, 0, len(disc.GrantTypesSupported))
	for _, gt := range disc.GrantTypesSupported {
		if !recognizedGrantTypes[gt] {
			return Document{}, IllegalGrantType{GrantType: gt}
		}
		grantTypes = append(grantTypes, gt)
	}

	if disc.RevocationEndpoint != "" && !isAbsoluteHTTPURL(disc.RevocationEndpoint) {
		return Document{}, IllegalEndpoint{Name: "revocation_endpoint"}
	}
	if disc.EndSessionEndpoint != "" && !isAbsoluteHTTPURL(disc.EndSessionEndpoint) {
		return Document{}, IllegalEndpoint{Name: "end_session_endpoint"}
	}

	return Document{
		Issuer:                disc.Issuer,
		AuthorizationEndpoint: disc.AuthorizationEndpoint,
		TokenEndpoint:         disc.TokenEndpoint,
		UserInfoEndpoint:      disc.UserInfoEndpoint,
		RevocationEndpoint:    disc.RevocationEndpoint,
		EndSessionEndpoint:    disc.EndSessionEndpoint,
		GrantTypes:            grantTypes,
	}, nil
}

func isAbsoluteHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// filterSigningKeys keeps only RS256 keys usable for signature verification
// (use=sig or unset).
func filterSigningKeys(ks jose.JSONWebKeySet) jose.JSONWebKeySet {
	var filtered jose.JSONWebKeySet
	for _, k := range ks.Keys {
		if k.Algorithm != "" && k.Algorithm != string(jose.RS256) {
			continue
		}
		if k.Use != "" && k.Use != "sig" {
			continue
		}
		if _, isRSA := k.Key.(*rsa.PublicKey); !isRSA {
			continue
		}
		filtered.Keys = append(filtered.Keys, k)
	}
	return filtered
}
