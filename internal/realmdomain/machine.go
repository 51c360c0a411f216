package realmdomain

import (
	"context"

	"github.com/jermoo/realms-core/internal/clock"
	"github.com/jermoo/realms-core/internal/wellknown"
)

// Resolver is the capability Evaluate uses to turn a well-known URL into
// validated Fields.
type Resolver interface {
	Resolve(ctx context.Context, url string) (wellknown.Document, error)
}

// IssuerIndex lets Evaluate enforce global issuer uniqueness across Active
// realms.
// Implementations must exclude other of the same label from the check.
type IssuerIndex interface {
	ActiveLabelWithIssuer(ctx context.Context, issuer string, excluding Label) (Label, bool, error)
}

// Next is total: unexpected (state, event) combinations are a no-op so
// replaying a truncated or reordered prefix of a realm's event log never
// panics.
func Next(state State, event Event) State {
	switch e := event.(type) {
	case RealmCreated:
		if _, ok := state.(Initial); ok {
			return Active{
				ID: e.ID, RevNumber: e.RevNum, Fields: e.Fields,
				CreatedAt: e.At, CreatedBy: e.By, UpdatedAt: e.At, UpdatedBy: e.By,
			}
		}
		return state
	case RealmUpdated:
		switch s := state.(type) {
		case Active:
			return Active{
				ID: e.ID, RevNumber: e.RevNum, Fields: e.Fields,
				CreatedAt: s.CreatedAt, CreatedBy: s.CreatedBy, UpdatedAt: e.At, UpdatedBy: e.By,
			}
		case Deprecated:
			return Active{
				ID: e.ID, RevNumber: e.RevNum, Fields: e.Fields,
				CreatedAt: s.CreatedAt, CreatedBy: s.CreatedBy, UpdatedAt: e.At, UpdatedBy: e.By,
			}
		default:
			return state
		}
	case RealmDeprecated:
		if s, ok := state.(Active); ok {
			return Deprecated{
				ID: e.ID, RevNumber: e.RevNum, Name: s.Fields.Name, OpenIDConfig: s.Fields.OpenIDConfig,
				Logo: s.Fields.Logo, CreatedAt: s.CreatedAt, CreatedBy: s.CreatedBy,
				UpdatedAt: e.At, UpdatedBy: e.By,
			}
		}
		return state
	default:
		return state
	}
}

// Fold replays events onto Initial{} in order, for rehydration and
// fetch-by-revision.
func Fold(events []Event) State {
	var state State = Initial{}
	for _, e := range events {
		state = Next(state, e)
	}
	return state
}

// Evaluate runs the command table below. clk is read exactly once per
// call. resolver and issuers are only consulted for Create/Update.
func Evaluate(ctx context.Context, state State, cmd Command, clk clock.Clock, resolver Resolver, issuers IssuerIndex) (Event, error) {
	now := clk.Now()

	switch c := cmd.(type) {
	case CreateRealm:
		if IsCurrent(state) {
			return nil, RealmAlreadyExists
		}
		doc, err := resolveAndCheckIssuer(ctx, c.ID, c.OpenIDConfig, resolver, issuers)
		if err != nil {
			return nil, err
		}
		fields := fieldsFromDocument(c.Name, c.OpenIDConfig, c.Logo, doc)
		return NewCreated(c.ID, now, c.Subject, fields), nil

	case UpdateRealm:
		switch s := state.(type) {
		case Initial:
			return nil, RealmNotFound
		case Active:
			if c.Rev != s.RevNumber {
				return nil, IncorrectRev{Provided: c.Rev, Expected: s.RevNumber}
			}
			doc, err := resolveAndCheckIssuer(ctx, c.ID, c.OpenIDConfig, resolver, issuers)
			if err != nil {
				return nil, err
			}
			fields := fieldsFromDocument(c.Name, c.OpenIDConfig, c.Logo, doc)
			return NewUpdated(c.ID, s.RevNumber+1, now, c.Subject, fields), nil
		case Deprecated:
			if c.Rev != s.RevNumber {
				return nil, IncorrectRev{Provided: c.Rev, Expected: s.RevNumber}
			}
			// Update revives a Deprecated realm.
			doc, err := resolveAndCheckIssuer(ctx, c.ID, c.OpenIDConfig, resolver, issuers)
			if err != nil {
				return nil, err
			}
			fields := fieldsFromDocument(c.Name, c.OpenIDConfig, c.Logo, doc)
			return NewUpdated(c.ID, s.RevNumber+1, now, c.Subject, fields), nil
		}

	case DeprecateRealm:
		switch s := state.(type) {
		case Initial:
			return nil, RealmNotFound
		case Active:
			if c.Rev != s.RevNumber {
				return nil, IncorrectRev{Provided: c.Rev, Expected: s.RevNumber}
			}
			return NewDeprecated(c.ID, s.RevNumber+1, now, c.Subject), nil
		case Deprecated:
			return nil, RealmAlreadyDeprecated
		}
	}

	return nil, RealmNotFound
}

func resolveAndCheckIssuer(ctx context.Context, id Label, url string, resolver Resolver, issuers IssuerIndex) (wellknown.Document, error) {
	doc, err := resolver.Resolve(ctx, url)
	if err != nil {
		return wellknown.Document{}, err
	}
	if owner, found, err := issuers.ActiveLabelWithIssuer(ctx, doc.Issuer, id); err != nil {
		return wellknown.Document{}, err
	} else if found {
		return wellknown.Document{}, RealmIssuerAlreadyInUse{Issuer: doc.Issuer, Owner: owner}
	}
	return doc, nil
}

func fieldsFromDocument(name, openIDConfig, logo string, doc wellknown.Document) Fields {
	return Fields{
		Name:         name,
		OpenIDConfig: openIDConfig,
		Issuer:       doc.Issuer,
		Keys:         doc.Keys,
		GrantTypes:   doc.GrantTypes,
		Logo:         logo,
		Endpoints: Endpoints{
			AuthorizationEndpoint: doc.AuthorizationEndpoint,
			TokenEndpoint:         doc.TokenEndpoint,
			UserInfoEndpoint:      doc.UserInfoEndpoint,
			RevocationEndpoint:    doc.RevocationEndpoint,
			EndSessionEndpoint:    doc.EndSessionEndpoint,
		},
	}
}
