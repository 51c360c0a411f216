package httpapi

import (
	"time"

	"github.com/jermoo/realms-core/internal/index"
)

// wireEndpoints mirrors realmdomain.Endpoints for the Resource JSON body.
type wireEndpoints struct {
	AuthorizationEndpoint string `json:"authorizationEndpoint,omitempty"`
	TokenEndpoint         string `json:"tokenEndpoint,omitempty"`
	UserInfoEndpoint      string `json:"userInfoEndpoint,omitempty"`
	RevocationEndpoint    string `json:"revocationEndpoint,omitempty"`
	EndSessionEndpoint    string `json:"endSessionEndpoint,omitempty"`
}

// wireResource is the HTTP-facing Resource shape:
// {id, rev, types, createdAt/By, updatedAt/By, deprecated, value}.
type wireResource struct {
	ID         string    `json:"id"`
	Rev        int       `json:"rev"`
	Types      []string  `json:"types"`
	CreatedAt  time.Time `json:"createdAt"`
	CreatedBy  string    `json:"createdBy"`
	UpdatedAt  time.Time `json:"updatedAt"`
	UpdatedBy  string    `json:"updatedBy"`
	Deprecated bool      `json:"deprecated"`
	Value      any       `json:"value"`
}

type wireActiveValue struct {
	Name         string        `json:"name"`
	OpenIDConfig string        `json:"openIdConfig"`
	Issuer       string        `json:"issuer"`
	GrantTypes   []string      `json:"grantTypes,omitempty"`
	Logo         string        `json:"logo,omitempty"`
	Endpoints    wireEndpoints `json:"endpoints"`
}

type wireDeprecatedValue struct {
	Name         string `json:"name"`
	OpenIDConfig string `json:"openIdConfig"`
	Logo         string `json:"logo,omitempty"`
}

func toWireResource(r index.Resource) wireResource {
	out := wireResource{
		ID: string(r.ID), Rev: r.Rev, Types: r.Types,
		CreatedAt: r.CreatedAt, CreatedBy: r.CreatedBy, UpdatedAt: r.UpdatedAt, UpdatedBy: r.UpdatedBy,
		Deprecated: r.Deprecated,
	}
	if r.Active != nil {
		out.Value = wireActiveValue{
			Name: r.Active.Name, OpenIDConfig: r.Active.OpenIDConfig, Issuer: r.Active.Issuer,
			GrantTypes: r.Active.GrantTypes, Logo: r.Active.Logo,
			Endpoints: wireEndpoints{
				AuthorizationEndpoint: r.Active.Endpoints.AuthorizationEndpoint,
				TokenEndpoint:         r.Active.Endpoints.TokenEndpoint,
				UserInfoEndpoint:      r.Active.Endpoints.UserInfoEndpoint,
				RevocationEndpoint:    r.Active.Endpoints.RevocationEndpoint,
				EndSessionEndpoint:    r.Active.Endpoints.EndSessionEndpoint,
			},
		}
	} else if r.Frozen != nil {
		out.Value = wireDeprecatedValue{Name: r.Frozen.Name, OpenIDConfig: r.Frozen.OpenIDConfig, Logo: r.Frozen.Logo}
	}
	return out
}

// wireMetadata is ResourceMetadata.
type wireMetadata struct {
	ID         string    `json:"id"`
	Rev        int       `json:"rev"`
	Types      []string  `json:"types"`
	Deprecated bool      `json:"deprecated"`
	CreatedAt  time.Time `json:"createdAt,omitzero"`
	CreatedBy  string    `json:"createdBy,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
	UpdatedBy  string    `json:"updatedBy"`
}

func toWireMetadata(m index.Metadata) wireMetadata {
	return wireMetadata{
		ID: string(m.ID), Rev: m.Rev, Types: m.Types, Deprecated: m.Deprecated,
		CreatedAt: m.CreatedAt, CreatedBy: m.CreatedBy, UpdatedAt: m.UpdatedAt, UpdatedBy: m.UpdatedBy,
	}
}
