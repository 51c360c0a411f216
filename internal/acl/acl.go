// Package acl implements the permission check the realms façade consults
// before every operation. The façade depends on Acls, so Acls must not in
// turn depend on the façade — this package only depends on internal/token.
package acl

import "github.com/jermoo/realms-core/internal/token"

// Permission names used on the realms resource path.
const (
	RealmsRead  = "realms/read"
	RealmsWrite = "realms/write"
)

// Acls answers whether caller may perform permission on path.
type Acls interface {
	HasPermission(path string, permission string, caller token.Caller) bool
}

// Static grants permission to any caller holding one of the configured
// identities, keyed by path prefix. It exists for single-tenant and test
// deployments where ACL policy does not need its own store; a production
// deployment backed by a policy engine implements the same interface.
type Static struct {
	grants map[string][]token.Identity
}

// NewStatic builds a Static ACL from a path -> allowed-identities map.
func NewStatic(grants map[string][]token.Identity) *Static {
	return &Static{grants: grants}
}

// HasPermission implements Acls. permission is currently unused by Static
// (it grants or denies per path regardless of read/write) — a policy-engine
// backed implementation would consult it.
func (s *Static) HasPermission(path string, _ string, caller token.Caller) bool {
	for _, id := range s.grants[path] {
		if caller.Has(id) {
			return true
		}
	}
	return false
}

// AllowAll grants every permission to every caller, useful for local
// development and tests that don't exercise ACL denial paths.
type AllowAll struct{}

func (AllowAll) HasPermission(string, string, token.Caller) bool { return true }
