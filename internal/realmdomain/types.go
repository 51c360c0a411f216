// Package realmdomain implements the realm state machine: the closed State/Event/Command/Rejection families and the two pure
// functions Next and Evaluate. Nothing in this package performs I/O besides
// reading the injected clock and calling the WellKnown and IssuerIndex
// capabilities.
package realmdomain

import (
	"regexp"
	"time"

	"github.com/go-jose/go-jose/v4"
)

// Label is a realm identifier: non-empty, matching [A-Za-z0-9_-]{1,32}.
// It doubles as the shard key and as part of the persistence id, so the
// format is enforced at the boundary via ParseLabel rather than trusted.
type Label string

var labelPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,32}$`)

// ParseLabel validates s against the label format.
func ParseLabel(s string) (Label, error) {
	if !labelPattern.MatchString(s) {
		return "", IllegalLabelFormat{Value: s}
	}
	return Label(s), nil
}

// Endpoints carries the OIDC endpoints discovered for a realm.
type Endpoints struct {
	AuthorizationEndpoint string
	TokenEndpoint         string
	UserInfoEndpoint      string
	RevocationEndpoint    string
	EndSessionEndpoint    string
}

// Fields holds everything a Created or Updated event (equivalently, an
// Active state) carries beyond identity and revision. Keys holds the
// realm's public RS256 signature-verification key set exactly as resolved
// from its JWKS document; the verifier pulls its key set from here.
type Fields struct {
	Name         string
	OpenIDConfig string // the .well-known URL
	Issuer       string
	Keys         jose.JSONWebKeySet
	GrantTypes   []string
	Logo         string
	Endpoints    Endpoints
}

// State is the closed sum type over a realm's lifecycle.
type State interface {
	isState()
	Rev() int
}

// Initial is the state before any event has been observed for a label.
type Initial struct{}

func (Initial) isState() {}
func (Initial) Rev() int { return 0 }

// Active is a realm currently trusted for token verification.
type Active struct {
	ID        Label
	RevNumber int
	Fields    Fields
	CreatedAt time.Time
	CreatedBy string
	UpdatedAt time.Time
	UpdatedBy string
}

func (Active) isState()   {}
func (a Active) Rev() int { return a.RevNumber }

// Deprecated is a frozen realm: it contributes no keys to verification and
// cannot itself be deprecated again.
type Deprecated struct {
	ID           Label
	RevNumber    int
	Name         string
	OpenIDConfig string
	Logo         string
	CreatedAt    time.Time
	CreatedBy    string
	UpdatedAt    time.Time
	UpdatedBy    string
}

func (Deprecated) isState()   {}
func (d Deprecated) Rev() int { return d.RevNumber }

// IsCurrent reports whether s is Active or Deprecated (i.e. not Initial).
func IsCurrent(s State) bool {
	switch s.(type) {
	case Active, Deprecated:
		return true
	default:
		return false
	}
}

// Event is the closed sum type of persisted realm events.
type Event interface {
	isEvent()
	EventLabel() Label
	EventRev() int
	Instant() time.Time
	Subject() string
}

type eventBase struct {
	ID     Label
	RevNum int
	At     time.Time
	By     string
}

func (e eventBase) EventLabel() Label  { return e.ID }
func (e eventBase) EventRev() int      { return e.RevNum }
func (e eventBase) Instant() time.Time { return e.At }
func (e eventBase) Subject() string    { return e.By }

// RealmCreated is always the first event for a label; RevNum is always 1.
type RealmCreated struct {
	eventBase
	Fields Fields
}

func (RealmCreated) isEvent() {}

// RealmUpdated carries the same shape as RealmCreated with RevNum > 1.
type RealmUpdated struct {
	eventBase
	Fields Fields
}

func (RealmUpdated) isEvent() {}

// RealmDeprecated freezes the realm.
type RealmDeprecated struct {
	eventBase
}

func (RealmDeprecated) isEvent() {}

// NewCreated constructs the RealmCreated event for label id.
func NewCreated(id Label, at time.Time, subject string, fields Fields) RealmCreated {
	return RealmCreated{eventBase: eventBase{ID: id, RevNum: 1, At: at, By: subject}, Fields: fields}
}

// NewUpdated constructs a RealmUpdated event at the given post-update revision.
func NewUpdated(id Label, rev int, at time.Time, subject string, fields Fields) RealmUpdated {
	return RealmUpdated{eventBase: eventBase{ID: id, RevNum: rev, At: at, By: subject}, Fields: fields}
}

// NewDeprecated constructs a RealmDeprecated event at the given post-deprecation revision.
func NewDeprecated(id Label, rev int, at time.Time, subject string) RealmDeprecated {
	return RealmDeprecated{eventBase: eventBase{ID: id, RevNum: rev, At: at, By: subject}}
}
