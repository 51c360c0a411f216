package journal

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"

	"github.com/jermoo/realms-core/internal/realmdomain"
)

// wireFields mirrors realmdomain.Fields for JSON (de)serialization; the
// domain type itself carries no json tags so the wire shape is explicit
// and independent of internal field names.
type wireFields struct {
	Name         string             `json:"name"`
	OpenIDConfig string             `json:"openIdConfig"`
	Issuer       string             `json:"issuer"`
	Keys         jose.JSONWebKeySet `json:"keys"`
	GrantTypes   []string           `json:"grantTypes"`
	Logo         string             `json:"logo"`
	Endpoints    wireEndpoints      `json:"endpoints"`
}

type wireEndpoints struct {
	AuthorizationEndpoint string `json:"authorizationEndpoint"`
	TokenEndpoint         string `json:"tokenEndpoint"`
	UserInfoEndpoint      string `json:"userInfoEndpoint"`
	RevocationEndpoint    string `json:"revocationEndpoint,omitempty"`
	EndSessionEndpoint    string `json:"endSessionEndpoint,omitempty"`
}

type wireEnvelope struct {
	Type    string      `json:"type"`
	ID      string      `json:"id"`
	Rev     int         `json:"rev"`
	Instant time.Time   `json:"instant"`
	Subject string      `json:"subject"`
	Fields  *wireFields `json:"fields,omitempty"`
}

func toWireFields(f realmdomain.Fields) *wireFields {
	return &wireFields{
		Name: f.Name, OpenIDConfig: f.OpenIDConfig, Issuer: f.Issuer,
		Keys: f.Keys, GrantTypes: f.GrantTypes, Logo: f.Logo,
		Endpoints: wireEndpoints{
			AuthorizationEndpoint: f.Endpoints.AuthorizationEndpoint,
			TokenEndpoint:         f.Endpoints.TokenEndpoint,
			UserInfoEndpoint:      f.Endpoints.UserInfoEndpoint,
			RevocationEndpoint:    f.Endpoints.RevocationEndpoint,
			EndSessionEndpoint:    f.Endpoints.EndSessionEndpoint,
		},
	}
}

func fromWireFields(w *wireFields) realmdomain.Fields {
	if w == nil {
		return realmdomain.Fields{}
	}
	return realmdomain.Fields{
		Name: w.Name, OpenIDConfig: w.OpenIDConfig, Issuer: w.Issuer,
		Keys: w.Keys, GrantTypes: w.GrantTypes, Logo: w.Logo,
		Endpoints: realmdomain.Endpoints{
			AuthorizationEndpoint: w.Endpoints.AuthorizationEndpoint,
			TokenEndpoint:         w.Endpoints.TokenEndpoint,
			UserInfoEndpoint:      w.Endpoints.UserInfoEndpoint,
			RevocationEndpoint:    w.Endpoints.RevocationEndpoint,
			EndSessionEndpoint:    w.Endpoints.EndSessionEndpoint,
		},
	}
}

// MarshalEvent encodes event to its wire envelope. Round-tripping through
// MarshalEvent/UnmarshalEvent preserves every field.
func MarshalEvent(event realmdomain.Event) ([]byte, error) {
	env := wireEnvelope{
		ID:      string(event.EventLabel()),
		Rev:     event.EventRev(),
		Instant: event.Instant(),
		Subject: event.Subject(),
	}
	switch e := event.(type) {
	case realmdomain.RealmCreated:
		env.Type = "RealmCreated"
		env.Fields = toWireFields(e.Fields)
	case realmdomain.RealmUpdated:
		env.Type = "RealmUpdated"
		env.Fields = toWireFields(e.Fields)
	case realmdomain.RealmDeprecated:
		env.Type = "RealmDeprecated"
	default:
		return nil, fmt.Errorf("journal: unknown event type %T", event)
	}
	return json.Marshal(env)
}

// UnmarshalEvent decodes a wire envelope back into the concrete event type
// it was marshaled from.
func UnmarshalEvent(data []byte) (realmdomain.Event, error) {
	var env wireEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("journal: decode event: %w", err)
	}
	id := realmdomain.Label(env.ID)
	switch env.Type {
	case "RealmCreated":
		return realmdomain.NewCreated(id, env.Instant, env.Subject, fromWireFields(env.Fields)), nil
	case "RealmUpdated":
		return realmdomain.NewUpdated(id, env.Rev, env.Instant, env.Subject, fromWireFields(env.Fields)), nil
	case "RealmDeprecated":
		return realmdomain.NewDeprecated(id, env.Rev, env.Instant, env.Subject), nil
	default:
		return nil, fmt.Errorf("journal: unknown event type %q", env.Type)
	}
}

// snapshotEnvelope mirrors State for JSON (de)serialization.
type snapshotEnvelope struct {
	Type         string      `json:"type"`
	ID           string      `json:"id"`
	Rev          int         `json:"rev"`
	Fields       *wireFields `json:"fields,omitempty"`
	Name         string      `json:"name,omitempty"`
	OpenIDConfig string      `json:"openIdConfig,omitempty"`
	Logo         string      `json:"logo,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
	CreatedBy    string      `json:"createdBy"`
	UpdatedAt    time.Time   `json:"updatedAt"`
	UpdatedBy    string      `json:"updatedBy"`
}

// MarshalState encodes a realm State (Active or Deprecated) for snapshot
// storage. Initial is never snapshotted.
func MarshalState(state realmdomain.State) ([]byte, error) {
	switch s := state.(type) {
	case realmdomain.Active:
		return json.Marshal(snapshotEnvelope{
			Type: "Active", ID: string(s.ID), Rev: s.RevNumber, Fields: toWireFields(s.Fields),
			CreatedAt: s.CreatedAt, CreatedBy: s.CreatedBy, UpdatedAt: s.UpdatedAt, UpdatedBy: s.UpdatedBy,
		})
	case realmdomain.Deprecated:
		return json.Marshal(snapshotEnvelope{
			Type: "Deprecated", ID: string(s.ID), Rev: s.RevNumber, Name: s.Name,
			OpenIDConfig: s.OpenIDConfig, Logo: s.Logo,
			CreatedAt: s.CreatedAt, CreatedBy: s.CreatedBy, UpdatedAt: s.UpdatedAt, UpdatedBy: s.UpdatedBy,
		})
	default:
		return nil, fmt.Errorf("journal: cannot snapshot state %T", state)
	}
}

// UnmarshalState decodes a snapshot back into its concrete State type.
func UnmarshalState(data []byte) (realmdomain.State, error) {
	var env snapshotEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("journal: decode snapshot: %w", err)
	}
	id := realmdomain.Label(env.ID)
	switch env.Type {
	case "Active":
		return realmdomain.Active{
			ID: id, RevNumber: env.Rev, Fields: fromWireFields(env.Fields),
			CreatedAt: env.CreatedAt, CreatedBy: env.CreatedBy, UpdatedAt: env.UpdatedAt, UpdatedBy: env.UpdatedBy,
		}, nil
	case "Deprecated":
		return realmdomain.Deprecated{
			ID: id, RevNumber: env.Rev, Name: env.Name, OpenIDConfig: env.OpenIDConfig, Logo: env.Logo,
			CreatedAt: env.CreatedAt, CreatedBy: env.CreatedBy, UpdatedAt: env.UpdatedAt, UpdatedBy: env.UpdatedBy,
		}, nil
	default:
		return nil, fmt.Errorf("journal: unknown state type %q", env.Type)
	}
}
