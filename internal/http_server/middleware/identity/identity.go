// Package identity resolves the Authorization header into an
// access.Identity stored on the request context. A request without a
// token proceeds anonymously; the access policies reject it later where
// it matters. A request with a bad token is rejected here.
package identity

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"messagely/internal/access"
	resp "messagely/internal/lib/api/response"
	sl "messagely/internal/lib/logger"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type ctxKey struct{}

type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (access.Identity, error)
}

func New(log *slog.Logger, verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			const op = "middleware.identity.New"

			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("invalid authorization header"))

				return
			}

			id, err := verifier.VerifyToken(r.Context(), token)
			if err != nil {
				log.Warn("token rejected", sl.Err(err))

				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("invalid token"))

				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		}

		return http.HandlerFunc(fn)
	}
}

func WithIdentity(ctx context.Context, id access.Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the resolved identity, or the anonymous zero value
// when the request carried no token.
func FromContext(ctx context.Context) access.Identity {
	id, _ := ctx.Value(ctxKey{}).(access.Identity)
	return id
}
