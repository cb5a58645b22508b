// Package messages serves single-message lookup, sending, and the
// mark-read transition. Every endpoint requires a logged-in caller;
// sender-or-recipient visibility is enforced by the directory service.
package messages

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"messagely/internal/access"
	httpmw "messagely/internal/http_server/middleware/identity"
	resp "messagely/internal/lib/api/response"
	sl "messagely/internal/lib/logger"
	msgdir "messagely/internal/messages"
	"messagely/internal/models"
	"messagely/internal/rabbitmq"
	"messagely/internal/storage"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type SendRequest struct {
	ToUsername string `json:"to_username" validate:"required"`
	Body       string `json:"body" validate:"required"`
}

type SendResponse struct {
	resp.Response
	Message SentView `json:"message"`
}

// SentView is the creation response shape: ids and raw usernames, no
// counterpart enrichment yet.
type SentView struct {
	ID           int64     `json:"id"`
	FromUsername string    `json:"from_username"`
	ToUsername   string    `json:"to_username"`
	Body         string    `json:"body"`
	SentAt       time.Time `json:"sent_at"`
}

type DetailResponse struct {
	resp.Response
	Message models.MessageDetail `json:"message"`
}

type EventSender interface {
	SendEvent(ctx context.Context, event models.Event) error
}

// NewGet serves GET /messages/{id}.
func NewGet(log *slog.Logger, directory *msgdir.Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.messages.NewGet"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		id, ok := messageID(w, r)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		msg, err := directory.Get(ctx, id, httpmw.FromContext(r.Context()))
		if err != nil {
			renderDirectoryError(w, r, log, err)
			return
		}

		render.JSON(w, r, DetailResponse{
			Response: resp.OK(),
			Message:  msg,
		})
	}
}

// NewSend serves POST /messages.
func NewSend(
	log *slog.Logger,
	validate *validator.Validate,
	directory *msgdir.Directory,
	events EventSender,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.messages.NewSend"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req SendRequest

		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			log.Error("Failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Failed to decode request"))

			return
		}

		if err := validate.Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)

			log.Error("Invalid request", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		msg, err := directory.Send(ctx, httpmw.FromContext(r.Context()), req.ToUsername, req.Body)
		if err != nil {
			if errors.Is(err, storage.ErrUserNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("recipient not found"))

				return
			}

			renderDirectoryError(w, r, log, err)
			return
		}

		if err := events.SendEvent(ctx, models.Event{
			Type:      rabbitmq.EventMessageSent,
			Username:  msg.FromUsername,
			MessageID: msg.ID,
			At:        time.Now(),
		}); err != nil {
			log.Error("Failed to publish message event", sl.Err(err))
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, SendResponse{
			Response: resp.OK(),
			Message: SentView{
				ID:           msg.ID,
				FromUsername: msg.FromUsername,
				ToUsername:   msg.ToUsername,
				Body:         msg.Body,
				SentAt:       msg.SentAt,
			},
		})
	}
}

// NewMarkRead serves POST /messages/{id}/read.
func NewMarkRead(log *slog.Logger, directory *msgdir.Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.messages.NewMarkRead"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		id, ok := messageID(w, r)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		msg, err := directory.MarkRead(ctx, id, httpmw.FromContext(r.Context()))
		if err != nil {
			renderDirectoryError(w, r, log, err)
			return
		}

		render.JSON(w, r, DetailResponse{
			Response: resp.OK(),
			Message:  msg,
		})
	}
}

func messageID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, resp.Error("invalid message id"))

		return 0, false
	}

	return id, true
}

func renderDirectoryError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, access.ErrUnauthenticated):
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, resp.Error("authentication required"))

	case errors.Is(err, access.ErrForbidden):
		render.Status(r, http.StatusForbidden)
		render.JSON(w, r, resp.Error("access denied"))

	case errors.Is(err, storage.ErrMessageNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, resp.Error("message not found"))

	case errors.Is(err, storage.ErrStoreUnavailable):
		log.Error("store unavailable", sl.Err(err))

		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, resp.Error("service unavailable"))

	default:
		log.Error("request failed", sl.Err(err))

		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, resp.Error("Internal error"))
	}
}
