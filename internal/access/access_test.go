package access

import (
	"errors"
	"testing"
)

func TestRequireLoggedIn(t *testing.T) {
	t.Parallel()

	id, err := RequireLoggedIn(Identity{Username: "alice"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.Username != "alice" {
		t.Fatalf("identity mismatch: got %q", id.Username)
	}

	_, err = RequireLoggedIn(Identity{})
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestRequireOwner(t *testing.T) {
	t.Parallel()

	grant, err := RequireOwner(Identity{Username: "alice"}, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if grant.Username() != "alice" {
		t.Fatalf("grant owner mismatch: got %q", grant.Username())
	}

	_, err = RequireOwner(Identity{Username: "alice"}, "bob")
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

// An anonymous caller hitting an owner-scoped resource must see
// ErrUnauthenticated, never ErrForbidden.
func TestRequireOwner_AnonymousBeatsOwnership(t *testing.T) {
	t.Parallel()

	_, err := RequireOwner(Identity{}, "bob")
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if errors.Is(err, ErrForbidden) {
		t.Fatalf("anonymous caller must not be reported as forbidden")
	}
}
