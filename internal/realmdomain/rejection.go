package realmdomain

import "fmt"

// Rejection is the domain error taxonomy. Unlike IamError, rejections are
// ordinary values the aggregate returns rather than infrastructure
// failures it raises, so evaluating the same command twice against the
// same state always yields the same Rejection.
type Rejection interface {
	error
	isRejection()
}

type simpleRejection string

func (r simpleRejection) Error() string { return string(r) }
func (simpleRejection) isRejection()    {}

const (
	RealmAlreadyExists     simpleRejection = "realm already exists"
	RealmNotFound          simpleRejection = "realm not found"
	RealmAlreadyDeprecated simpleRejection = "realm already deprecated"
)

// IllegalLabelFormat is returned when a realm id does not match
// [A-Za-z0-9_-]{1,32}.
type IllegalLabelFormat struct {
	Value string
}

func (e IllegalLabelFormat) Error() string {
	return fmt.Sprintf("illegal realm label %q", e.Value)
}
func (IllegalLabelFormat) isRejection() {}

// IncorrectRev is returned when a command's Rev does not match the
// aggregate's current revision.
type IncorrectRev struct {
	Provided int
	Expected int
}

func (e IncorrectRev) Error() string {
	return fmt.Sprintf("incorrect revision: provided %d, expected %d", e.Provided, e.Expected)
}
func (IncorrectRev) isRejection() {}

// RealmIssuerAlreadyInUse is returned when a Create/Update would leave two
// Active realms sharing an issuer.
type RealmIssuerAlreadyInUse struct {
	Issuer string
	Owner  Label
}

func (e RealmIssuerAlreadyInUse) Error() string {
	return fmt.Sprintf("issuer %q already in use by realm %q", e.Issuer, e.Owner)
}
func (RealmIssuerAlreadyInUse) isRejection() {}

// Evaluate can also fail with a wellknown.Rejection when CreateRealm/UpdateRealm triggers discovery; that error
// is not a Rejection here, it is simply an error — both families collapse
// to plain `error` at the Evaluate boundary while staying closed within
// their own packages.
