// Package access holds the authorization policies. Both checks are pure
// decision functions: no I/O, deterministic, composed in a fixed order so
// an anonymous caller is always reported as unauthenticated, never as
// forbidden.
package access

import "errors"

var (
	ErrUnauthenticated = errors.New("not authenticated")
	ErrForbidden       = errors.New("forbidden")
)

// Identity is the caller resolved from a verified session claim. The zero
// value means no identity was resolved.
type Identity struct {
	Username string
}

func (id Identity) IsAnonymous() bool {
	return id.Username == ""
}

// Grant proves an ownership check has passed. It can only be produced by
// RequireOwner, so owner-scoped reads cannot be reached without the check.
type Grant struct {
	username string
}

// Username is the owner the grant was issued for.
func (g Grant) Username() string {
	return g.username
}

// RequireLoggedIn fails with ErrUnauthenticated unless an identity was
// resolved upstream.
func RequireLoggedIn(id Identity) (Identity, error) {
	if id.IsAnonymous() {
		return Identity{}, ErrUnauthenticated
	}

	return id, nil
}

// RequireOwner fails with ErrForbidden unless the caller is the resource
// owner. The logged-in check runs first: an anonymous caller gets
// ErrUnauthenticated even when it is also not the owner.
func RequireOwner(id Identity, resourceOwner string) (Grant, error) {
	id, err := RequireLoggedIn(id)
	if err != nil {
		return Grant{}, err
	}

	if id.Username != resourceOwner {
		return Grant{}, ErrForbidden
	}

	return Grant{username: resourceOwner}, nil
}
