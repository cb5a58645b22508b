package register

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"messagely/internal/auth"
	resp "messagely/internal/lib/api/response"
	sl "messagely/internal/lib/logger"
	"messagely/internal/models"
	"messagely/internal/rabbitmq"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	Username  string `json:"username" validate:"required"`
	Pass      string `json:"password" validate:"required"`
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	Phone     string `json:"phone" validate:"required"`
}

type Response struct {
	resp.Response
	User  models.Profile `json:"user"`
	Token string         `json:"token"`
}

type EventSender interface {
	SendEvent(ctx context.Context, event models.Event) error
}

func New(
	log *slog.Logger,
	validate *validator.Validate,
	authService *auth.Auth,
	events EventSender,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.register.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request

		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			log.Error("Failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Failed to decode request"))

			return
		}

		log.Info("Request body decoded")

		if err := validate.Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)

			log.Error("Invalid request", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		profile, token, err := authService.Register(
			ctx, req.Username, req.Pass, req.FirstName, req.LastName, req.Phone,
		)
		if err != nil {
			if errors.Is(err, auth.ErrUserExists) {
				render.Status(r, http.StatusConflict)
				render.JSON(w, r, resp.Error("username already taken"))

				return
			}

			log.Error("failed to register user", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("User registered", slog.String("username", profile.Username))

		if err := events.SendEvent(ctx, models.Event{
			Type:     rabbitmq.EventUserRegistered,
			Username: profile.Username,
			At:       time.Now(),
		}); err != nil {
			log.Error("Failed to publish registration event", sl.Err(err))
		}

		render.Status(r, http.StatusCreated)
		ResponseOK(w, r, profile, token)
	}
}

func ResponseOK(w http.ResponseWriter, r *http.Request, profile models.Profile, token string) {
	render.JSON(w, r, Response{
		Response: resp.OK(),
		User:     profile,
		Token:    token,
	})
}
