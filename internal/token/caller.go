// Package token implements the JWT verifier: parsing an
// RS256 bearer token, checking its signature against the issuing realm's key
// set, and producing the Caller identity that the rest of the service
// authorizes against.
package token

// Identity is one facet of an authenticated caller. A Caller always carries
// Anonymous plus whatever facets its token established.
type Identity interface {
	isIdentity()
	String() string
}

// Anonymous identifies an unauthenticated or not-yet-realm-scoped caller.
// Every Caller's identity set contains it, authenticated or not.
type Anonymous struct{}

func (Anonymous) isIdentity()    {}
func (Anonymous) String() string { return "Anonymous" }

// Authenticated identifies any caller holding a valid token for the given
// realm, regardless of subject.
type Authenticated struct{ Realm string }

func (Authenticated) isIdentity()      {}
func (a Authenticated) String() string { return "Authenticated(" + a.Realm + ")" }

// User identifies a specific subject within a realm.
type User struct {
	Subject string
	Realm   string
}

func (User) isIdentity()      {}
func (u User) String() string { return "User(" + u.Subject + "," + u.Realm + ")" }

// Group identifies membership in a named group within a realm.
type Group struct {
	Name  string
	Realm string
}

func (Group) isIdentity()      {}
func (g Group) String() string { return "Group(" + g.Name + "," + g.Realm + ")" }

// Caller is the authenticated principal plus every identity it is allowed to
// be authorized under. ACL checks test membership in Identities, never
// Subject alone.
type Caller struct {
	Subject    Identity
	Identities []Identity
}

// AnonymousCaller is the caller produced when a request carries no bearer
// token at all.
func AnonymousCaller() Caller {
	return Caller{Subject: Anonymous{}, Identities: []Identity{Anonymous{}}}
}

// Has reports whether the caller holds the given identity (compared by
// value, since every Identity variant here is comparable).
func (c Caller) Has(id Identity) bool {
	for _, have := range c.Identities {
		if have == id {
			return true
		}
	}
	return false
}
