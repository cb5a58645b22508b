package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"messagely/internal/access"
	tokens "messagely/internal/lib/jwt"
	sl "messagely/internal/lib/logger"
	"messagely/internal/models"
	"messagely/internal/storage"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserExists         = errors.New("user already exists")
)

type Auth struct {
	log         *slog.Logger
	usrSaver    UserSaver
	usrProvider UserProvider
	revoker     TokenRevoker
	tokenSecret string
	tokenTTL    time.Duration
}

type UserSaver interface {
	SaveUser(ctx context.Context, user models.User) (models.Profile, error)
	TouchLogin(ctx context.Context, username string) error
}

type UserProvider interface {
	User(ctx context.Context, username string) (models.User, error)
	Profile(ctx context.Context, username string) (models.Profile, error)
	AllUsers(ctx context.Context) ([]models.UserSummary, error)
}

type TokenRevoker interface {
	RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) error
	IsTokenRevoked(ctx context.Context, tokenID string) (bool, error)
}

func New(
	log *slog.Logger,
	userSaver UserSaver,
	userProvider UserProvider,
	revoker TokenRevoker,
	tokenSecret string,
	tokenTTL time.Duration,
) *Auth {
	return &Auth{
		log:         log,
		usrSaver:    userSaver,
		usrProvider: userProvider,
		revoker:     revoker,
		tokenSecret: tokenSecret,
		tokenTTL:    tokenTTL,
	}
}

// Register creates a user with a bcrypt verifier derived from pass and,
// like the login path, issues a session token for the fresh account. The
// raw password is never stored or logged.
func (a *Auth) Register(
	ctx context.Context,
	username, pass, firstName, lastName, phone string,
) (models.Profile, string, error) {
	const op = "auth.Register"

	log := a.log.With(
		slog.String("op", op),
	)

	log.Info("Registering new user")

	passHash, err := bcrypt.GenerateFromPassword([]byte(pass), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return models.Profile{}, "", fmt.Errorf("%s: %w", op, err)
	}

	profile, err := a.usrSaver.SaveUser(ctx, models.User{
		Username:  username,
		PassHash:  passHash,
		FirstName: firstName,
		LastName:  lastName,
		Phone:     phone,
	})
	if err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			log.Warn("User already exists")

			return models.Profile{}, "", fmt.Errorf("%s: %w", op, ErrUserExists)
		}

		log.Error("Failed to save user", sl.Err(err))

		return models.Profile{}, "", fmt.Errorf("%s: %w", op, err)
	}

	token, err := tokens.NewToken(username, a.tokenSecret, a.tokenTTL)
	if err != nil {
		log.Error("failed to generate session token", sl.Err(err))
		return models.Profile{}, "", fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user registered", slog.String("username", username))

	return profile, token, nil
}

// Login verifies the credentials and returns a signed session token.
// Unknown username and wrong password collapse into ErrInvalidCredentials
// so the response never reveals which one it was.
func (a *Auth) Login(ctx context.Context, username, pass string) (string, error) {
	const op = "auth.Login"

	log := a.log.With(slog.String("op", op))

	user, err := a.usrProvider.User(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("user not found")
			return "", ErrInvalidCredentials
		}

		log.Error("failed to get user", sl.Err(err))
		return "", err
	}

	if err := bcrypt.CompareHashAndPassword(user.PassHash, []byte(pass)); err != nil {
		log.Info("invalid credentials")
		return "", ErrInvalidCredentials
	}

	token, err := tokens.NewToken(user.Username, a.tokenSecret, a.tokenTTL)
	if err != nil {
		log.Error("failed to generate session token", sl.Err(err))
		return "", err
	}

	if err := a.usrSaver.TouchLogin(ctx, user.Username); err != nil {
		log.Error("failed to update login timestamp", sl.Err(err))
		return "", err
	}

	log.Info("user logged in successfully", slog.String("username", user.Username))

	return token, nil
}

// Logout puts the presented claim's issuance id on the revocation list
// for the remainder of its lifetime.
func (a *Auth) Logout(ctx context.Context, token string) error {
	const op = "auth.Logout"

	log := a.log.With(slog.String("op", op))

	claim, err := tokens.ParseToken(token, a.tokenSecret)
	if err != nil {
		log.Warn("invalid token presented", sl.Err(err))
		return ErrInvalidCredentials
	}

	if err := a.revoker.RevokeToken(ctx, claim.TokenID, time.Until(claim.ExpiresAt)); err != nil {
		log.Error("failed to revoke token", sl.Err(err))
		return err
	}

	log.Info("logout successful")

	return nil
}

// VerifyToken resolves an inbound bearer token to an identity. This is
// the only gate between a request and an authenticated caller: signature,
// expiry, and the revocation list are all checked here, on every request.
func (a *Auth) VerifyToken(ctx context.Context, token string) (access.Identity, error) {
	const op = "auth.VerifyToken"

	claim, err := tokens.ParseToken(token, a.tokenSecret)
	if err != nil {
		return access.Identity{}, fmt.Errorf("%s: %w", op, err)
	}

	revoked, err := a.revoker.IsTokenRevoked(ctx, claim.TokenID)
	if err != nil {
		return access.Identity{}, fmt.Errorf("%s: %w", op, err)
	}
	if revoked {
		return access.Identity{}, fmt.Errorf("%s: %w", op, storage.ErrTokenRevoked)
	}

	return access.Identity{Username: claim.Username}, nil
}

// Users returns the minimal-exposure listing for every registered user.
func (a *Auth) Users(ctx context.Context) ([]models.UserSummary, error) {
	const op = "auth.Users"

	users, err := a.usrProvider.AllUsers(ctx)
	if err != nil {
		a.log.With(slog.String("op", op)).Error("failed to list users", sl.Err(err))
		return nil, err
	}

	return users, nil
}

// Profile returns the full profile of the grant's owner. The grant proves
// the ownership check already ran.
func (a *Auth) Profile(ctx context.Context, grant access.Grant) (models.Profile, error) {
	const op = "auth.Profile"

	profile, err := a.usrProvider.Profile(ctx, grant.Username())
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return models.Profile{}, err
		}

		a.log.With(slog.String("op", op)).Error("failed to get profile", sl.Err(err))
		return models.Profile{}, err
	}

	return profile, nil
}
