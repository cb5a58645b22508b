// Package users serves the user listing, profile detail, and the two
// owner-scoped message listings. The profile and message endpoints hand
// the access check's grant straight to the service layer so the listing
// queries can only run for the owner they were authorized for.
package users

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"messagely/internal/access"
	"messagely/internal/auth"
	httpmw "messagely/internal/http_server/middleware/identity"
	resp "messagely/internal/lib/api/response"
	sl "messagely/internal/lib/logger"
	msgdir "messagely/internal/messages"
	"messagely/internal/models"
	"messagely/internal/storage"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type ListResponse struct {
	resp.Response
	Users []models.UserSummary `json:"users"`
}

type GetResponse struct {
	resp.Response
	User models.Profile `json:"user"`
}

type MessagesToResponse struct {
	resp.Response
	Messages []models.ReceivedMessage `json:"messages"`
}

type MessagesFromResponse struct {
	resp.Response
	Messages []models.SentMessage `json:"messages"`
}

// NewList serves GET /users: the minimal summary of every user, for any
// logged-in caller.
func NewList(log *slog.Logger, authService *auth.Auth) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.users.NewList"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		if _, err := access.RequireLoggedIn(httpmw.FromContext(r.Context())); err != nil {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, resp.Error("authentication required"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		users, err := authService.Users(ctx)
		if err != nil {
			renderStoreError(w, r, log, err)
			return
		}

		render.JSON(w, r, ListResponse{
			Response: resp.OK(),
			Users:    users,
		})
	}
}

// NewGet serves GET /users/{username}: the full profile, owner only.
func NewGet(log *slog.Logger, authService *auth.Auth) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.users.NewGet"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		grant, ok := ownerGrant(w, r)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		profile, err := authService.Profile(ctx, grant)
		if err != nil {
			if errors.Is(err, storage.ErrUserNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("user not found"))

				return
			}

			renderStoreError(w, r, log, err)
			return
		}

		render.JSON(w, r, GetResponse{
			Response: resp.OK(),
			User:     profile,
		})
	}
}

// NewMessagesTo serves GET /users/{username}/to: inbound messages with
// each sender's summary, owner only.
func NewMessagesTo(log *slog.Logger, directory *msgdir.Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.users.NewMessagesTo"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		grant, ok := ownerGrant(w, r)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		msgs, err := directory.ReceivedBy(ctx, grant)
		if err != nil {
			renderStoreError(w, r, log, err)
			return
		}

		render.JSON(w, r, MessagesToResponse{
			Response: resp.OK(),
			Messages: msgs,
		})
	}
}

// NewMessagesFrom serves GET /users/{username}/from: outbound messages
// with each recipient's summary, owner only.
func NewMessagesFrom(log *slog.Logger, directory *msgdir.Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.users.NewMessagesFrom"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		grant, ok := ownerGrant(w, r)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		msgs, err := directory.SentBy(ctx, grant)
		if err != nil {
			renderStoreError(w, r, log, err)
			return
		}

		render.JSON(w, r, MessagesFromResponse{
			Response: resp.OK(),
			Messages: msgs,
		})
	}
}

// ownerGrant runs the logged-in and ownership checks against the
// {username} route param. Policy order is fixed: an anonymous caller is
// told to authenticate, never that it lacks rights.
func ownerGrant(w http.ResponseWriter, r *http.Request) (access.Grant, bool) {
	username := chi.URLParam(r, "username")

	grant, err := access.RequireOwner(httpmw.FromContext(r.Context()), username)
	if err != nil {
		if errors.Is(err, access.ErrUnauthenticated) {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, resp.Error("authentication required"))

			return access.Grant{}, false
		}

		render.Status(r, http.StatusForbidden)
		render.JSON(w, r, resp.Error("access denied"))

		return access.Grant{}, false
	}

	return grant, true
}

func renderStoreError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	if errors.Is(err, storage.ErrStoreUnavailable) {
		log.Error("store unavailable", sl.Err(err))

		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, resp.Error("service unavailable"))

		return
	}

	log.Error("request failed", sl.Err(err))

	render.Status(r, http.StatusInternalServerError)
	render.JSON(w, r, resp.Error("Internal error"))
}
