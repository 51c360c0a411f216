package wellknown_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jermoo/realms-core/internal/retry"
	"github.com/jermoo/realms-core/internal/wellknown"
)

// roundTripFunc lets a test supply canned responses keyed by URL instead of
// hitting a real HTTP collaborator.
type roundTripFunc struct {
	responses map[string]string
	statuses  map[string]int
}

func (f *roundTripFunc) Do(req *http.Request) (*http.Response, error) {
	url := req.URL.String()
	body, ok := f.responses[url]
	if !ok {
		return &http.Response{StatusCode: 404, Body: io.NopCloser(bytes.NewBufferString(""))}, nil
	}
	status := f.statuses[url]
	if status == 0 {
		status = 200
	}
	return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewBufferString(body))}, nil
}

const discoveryURL = "https://idp.example/.well-known/openid-configuration"
const jwksURL = "https://idp.example/jwks"

const validDiscovery = `{
	"issuer": "https://idp.example",
	"jwks_uri": "https://idp.example/jwks",
	"authorization_endpoint": "https://idp.example/authorize",
	"token_endpoint": "https://idp.example/token",
	"userinfo_endpoint": "https://idp.example/userinfo",
	"grant_types_supported": ["authorization_code", "refresh_token"]
}`

const validJWKS = `{"keys":[{
	"kty":"RSA","use":"sig","alg":"RS256","kid":"k1",
	"n":"xjpVOhUWzBXQVcoQCdJ3uE0qO4kXXUq0xo9YuKV8zFJsJkq8cRYH_RNR8QJZlx8M",
	"e":"AQAB"
}]}`

func TestResolve_Success(t *testing.T) {
	transport := &roundTripFunc{responses: map[string]string{
		discoveryURL: validDiscovery,
		jwksURL:      validJWKS,
	}}
	resolver := wellknown.NewResolver(transport, retry.Never())

	doc, err := resolver.Resolve(context.Background(), discoveryURL)
	require.NoError(t, err)
	assert.Equal(t, "https://idp.example", doc.Issuer)
	assert.Equal(t, []string{"authorization_code", "refresh_token"}, doc.GrantTypes)
}

func TestResolve_UnsuccessfulOpenIDConfigResponse(t *testing.T) {
	transport := &roundTripFunc{
		responses: map[string]string{discoveryURL: "not found"},
		statuses:  map[string]int{discoveryURL: 500},
	}
	resolver := wellknown.NewResolver(transport, retry.Never())

	_, err := resolver.Resolve(context.Background(), discoveryURL)
	assert.ErrorIs(t, err, wellknown.UnsuccessfulOpenIDConfigResponse)
}

func TestResolve_IllegalOpenIDConfigFormat(t *testing.T) {
	transport := &roundTripFunc{responses: map[string]string{discoveryURL: "not json"}}
	resolver := wellknown.NewResolver(transport, retry.Never())

	_, err := resolver.Resolve(context.Background(), discoveryURL)
	assert.ErrorIs(t, err, wellknown.IllegalOpenIDConfigFormat)
}

func TestResolve_IllegalIssuer(t *testing.T) {
	transport := &roundTripFunc{responses: map[string]string{
		discoveryURL: `{"issuer":"","jwks_uri":"https://idp.example/jwks","authorization_endpoint":"https://idp.example/authorize","token_endpoint":"https://idp.example/token","userinfo_endpoint":"https://idp.example/userinfo"}`,
	}}
	resolver := wellknown.NewResolver(transport, retry.Never())

	_, err := resolver.Resolve(context.Background(), discoveryURL)
	assert.ErrorIs(t, err, wellknown.IllegalIssuer)
}

func TestResolve_IllegalEndpoint(t *testing.T) {
	transport := &roundTripFunc{responses: map[string]string{
		discoveryURL: `{"issuer":"https://idp.example","jwks_uri":"https://idp.example/jwks","authorization_endpoint":"not-a-url","token_endpoint":"https://idp.example/token","userinfo_endpoint":"https://idp.example/userinfo"}`,
	}}
	resolver := wellknown.NewResolver(transport, retry.Never())

	_, err := resolver.Resolve(context.Background(), discoveryURL)
	var illegal wellknown.IllegalEndpoint
	require.ErrorAs(t, err, &illegal)
	assert.Equal(t, "authorization_endpoint", illegal.Name)
}

func TestResolve_IllegalGrantType(t *testing.T) {
	transport := &roundTripFunc{responses: map[string]string{
		discoveryURL: `{"issuer":"https://idp.example","jwks_uri":"https://idp.example/jwks","authorization_endpoint":"https://idp.example/authorize","token_endpoint":"https://idp.example/token","userinfo_endpoint":"https://idp.example/userinfo","grant_types_supported":["made_up"]}`,
	}}
	resolver := wellknown.NewResolver(transport, retry.Never())

	_, err := resolver.Resolve(context.Background(), discoveryURL)
	var illegal wellknown.IllegalGrantType
	require.ErrorAs(t, err, &illegal)
	assert.Equal(t, "made_up", illegal.GrantType)
}

func TestResolve_UnsuccessfulJWKSResponse(t *testing.T) {
	transport := &roundTripFunc{
		responses: map[string]string{discoveryURL: validDiscovery, jwksURL: "gone"},
		statuses:  map[string]int{jwksURL: 500},
	}
	resolver := wellknown.NewResolver(transport, retry.Never())

	_, err := resolver.Resolve(context.Background(), discoveryURL)
	assert.ErrorIs(t, err, wellknown.UnsuccessfulJWKSResponse)
}

func TestResolve_IllegalJWKSFormat(t *testing.T) {
	transport := &roundTripFunc{responses: map[string]string{
		discoveryURL: validDiscovery, jwksURL: "not json",
	}}
	resolver := wellknown.NewResolver(transport, retry.Never())

	_, err := resolver.Resolve(context.Background(), discoveryURL)
	assert.ErrorIs(t, err, wellknown.IllegalJWKSFormat)
}

func TestResolve_NoValidKeysFound_FiltersNonSigKeys(t *testing.T) {
	encKeys := `{"keys":[{"kty":"RSA","use":"enc","alg":"RS256","kid":"k1","n":"xjpVOhUWzBXQVcoQCdJ3uE0qO4kXXUq0xo9YuKV8zFJsJkq8cRYH_RNR8QJZlx8M","e":"AQAB"}]}`
	transport := &roundTripFunc{responses: map[string]string{
		discoveryURL: validDiscovery, jwksURL: encKeys,
	}}
	resolver := wellknown.NewResolver(transport, retry.Never())

	_, err := resolver.Resolve(context.Background(), discoveryURL)
	assert.ErrorIs(t, err, wellknown.NoValidKeysFound)
}
