package auth

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"messagely/internal/access"
	tokens "messagely/internal/lib/jwt"
	"messagely/internal/models"
	"messagely/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- fakes ---

type fakeUserStore struct {
	users   map[string]models.User
	touched []string
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: map[string]models.User{}}
}

func (f *fakeUserStore) SaveUser(ctx context.Context, user models.User) (models.Profile, error) {
	if _, ok := f.users[user.Username]; ok {
		return models.Profile{}, storage.ErrUserExists
	}

	now := time.Now()
	user.JoinedAt = now
	user.LastLoginAt = now
	f.users[user.Username] = user

	return models.Profile{
		Username:    user.Username,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		Phone:       user.Phone,
		JoinedAt:    user.JoinedAt,
		LastLoginAt: user.LastLoginAt,
	}, nil
}

func (f *fakeUserStore) TouchLogin(ctx context.Context, username string) error {
	u, ok := f.users[username]
	if !ok {
		return storage.ErrUserNotFound
	}

	u.LastLoginAt = time.Now()
	f.users[username] = u
	f.touched = append(f.touched, username)

	return nil
}

func (f *fakeUserStore) User(ctx context.Context, username string) (models.User, error) {
	u, ok := f.users[username]
	if !ok {
		return models.User{}, storage.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeUserStore) Profile(ctx context.Context, username string) (models.Profile, error) {
	u, ok := f.users[username]
	if !ok {
		return models.Profile{}, storage.ErrUserNotFound
	}
	return models.Profile{
		Username:    u.Username,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Phone:       u.Phone,
		JoinedAt:    u.JoinedAt,
		LastLoginAt: u.LastLoginAt,
	}, nil
}

func (f *fakeUserStore) AllUsers(ctx context.Context) ([]models.UserSummary, error) {
	out := []models.UserSummary{}
	for _, u := range f.users {
		out = append(out, models.UserSummary{
			Username:  u.Username,
			FirstName: u.FirstName,
			LastName:  u.LastName,
		})
	}
	return out, nil
}

type fakeRevoker struct {
	revoked map[string]bool
}

func newFakeRevoker() *fakeRevoker {
	return &fakeRevoker{revoked: map[string]bool{}}
}

func (f *fakeRevoker) RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) error {
	f.revoked[tokenID] = true
	return nil
}

func (f *fakeRevoker) IsTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	return f.revoked[tokenID], nil
}

const testSecret = "test-secret"

func newTestAuth(store *fakeUserStore, revoker *fakeRevoker) *Auth {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(log, store, store, revoker, testSecret, time.Hour)
}

// --- tests ---

func TestRegister_StoresVerifierNotPassword(t *testing.T) {
	t.Parallel()

	store := newFakeUserStore()
	a := newTestAuth(store, newFakeRevoker())

	profile, token, err := a.Register(context.Background(), "alice", "secret1", "Alice", "Ames", "555-0100")
	require.NoError(t, err)
	assert.Equal(t, "alice", profile.Username)
	assert.NotEmpty(t, token)

	stored := store.users["alice"]
	assert.NotEqual(t, "secret1", string(stored.PassHash))
	require.NoError(t, bcrypt.CompareHashAndPassword(stored.PassHash, []byte("secret1")))

	claim, err := tokens.ParseToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "alice", claim.Username)
}

func TestRegister_Duplicate(t *testing.T) {
	t.Parallel()

	store := newFakeUserStore()
	a := newTestAuth(store, newFakeRevoker())

	_, _, err := a.Register(context.Background(), "alice", "secret1", "Alice", "Ames", "555-0100")
	require.NoError(t, err)

	original := store.users["alice"]

	_, _, err = a.Register(context.Background(), "alice", "other", "Other", "Person", "555-0199")
	require.ErrorIs(t, err, ErrUserExists)

	// the original record is untouched
	assert.Equal(t, original, store.users["alice"])
}

func TestLogin_Success(t *testing.T) {
	t.Parallel()

	store := newFakeUserStore()
	a := newTestAuth(store, newFakeRevoker())

	_, _, err := a.Register(context.Background(), "alice", "secret1", "Alice", "Ames", "555-0100")
	require.NoError(t, err)

	token, err := a.Login(context.Background(), "alice", "secret1")
	require.NoError(t, err)

	claim, err := tokens.ParseToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "alice", claim.Username)

	assert.Equal(t, []string{"alice"}, store.touched)
}

// Wrong password and unknown username must be indistinguishable from the
// outside.
func TestLogin_FailuresNormalized(t *testing.T) {
	t.Parallel()

	store := newFakeUserStore()
	a := newTestAuth(store, newFakeRevoker())

	_, _, err := a.Register(context.Background(), "alice", "secret1", "Alice", "Ames", "555-0100")
	require.NoError(t, err)

	_, errWrongPass := a.Login(context.Background(), "alice", "wrong")
	require.ErrorIs(t, errWrongPass, ErrInvalidCredentials)

	_, errUnknownUser := a.Login(context.Background(), "nobody", "secret1")
	require.ErrorIs(t, errUnknownUser, ErrInvalidCredentials)

	assert.Equal(t, errWrongPass.Error(), errUnknownUser.Error())
	assert.Empty(t, store.touched)
}

func TestVerifyToken_ResolvesIdentity(t *testing.T) {
	t.Parallel()

	store := newFakeUserStore()
	a := newTestAuth(store, newFakeRevoker())

	_, token, err := a.Register(context.Background(), "alice", "secret1", "Alice", "Ames", "555-0100")
	require.NoError(t, err)

	id, err := a.VerifyToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, access.Identity{Username: "alice"}, id)
}

func TestLogout_RevokesToken(t *testing.T) {
	t.Parallel()

	store := newFakeUserStore()
	revoker := newFakeRevoker()
	a := newTestAuth(store, revoker)

	_, token, err := a.Register(context.Background(), "alice", "secret1", "Alice", "Ames", "555-0100")
	require.NoError(t, err)

	require.NoError(t, a.Logout(context.Background(), token))

	_, err = a.VerifyToken(context.Background(), token)
	require.ErrorIs(t, err, storage.ErrTokenRevoked)
}

func TestLogout_GarbageToken(t *testing.T) {
	t.Parallel()

	a := newTestAuth(newFakeUserStore(), newFakeRevoker())

	err := a.Logout(context.Background(), "not.a.token")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestVerifyToken_WrongSecret(t *testing.T) {
	t.Parallel()

	a := newTestAuth(newFakeUserStore(), newFakeRevoker())

	forged, err := tokens.NewToken("alice", "other-secret", time.Hour)
	require.NoError(t, err)

	_, err = a.VerifyToken(context.Background(), forged)
	require.ErrorIs(t, err, tokens.ErrInvalidToken)
}

func TestProfile_NeverExposesVerifier(t *testing.T) {
	t.Parallel()

	store := newFakeUserStore()
	a := newTestAuth(store, newFakeRevoker())

	_, _, err := a.Register(context.Background(), "alice", "secret1", "Alice", "Ames", "555-0100")
	require.NoError(t, err)

	grant, err := access.RequireOwner(access.Identity{Username: "alice"}, "alice")
	require.NoError(t, err)

	profile, err := a.Profile(context.Background(), grant)
	require.NoError(t, err)
	assert.Equal(t, "alice", profile.Username)
	assert.Equal(t, "555-0100", profile.Phone)
	assert.False(t, profile.JoinedAt.IsZero())
}
