// Package messages implements the message directory: the two owner-scoped
// listing queries, single-message lookup, sending, and the read-marking
// transition. Visibility is always sender-or-recipient; the owner-scoped
// listings additionally require an access.Grant so they cannot be called
// without the ownership check having run.
package messages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"messagely/internal/access"
	sl "messagely/internal/lib/logger"
	"messagely/internal/models"
	"messagely/internal/storage"
)

type Directory struct {
	log      *slog.Logger
	provider MessageProvider
}

type MessageProvider interface {
	MessagesSentBy(ctx context.Context, username string) ([]models.SentMessage, error)
	MessagesReceivedBy(ctx context.Context, username string) ([]models.ReceivedMessage, error)
	MessageByID(ctx context.Context, id int64) (models.MessageDetail, error)
	SaveMessage(ctx context.Context, from, to, body string) (models.Message, error)
	MarkMessageRead(ctx context.Context, id int64, recipient string) error
}

func New(log *slog.Logger, provider MessageProvider) *Directory {
	return &Directory{
		log:      log,
		provider: provider,
	}
}

// SentBy lists the grant owner's outbound messages with each recipient's
// summary. An owner with no messages gets an empty slice, not an error.
func (d *Directory) SentBy(ctx context.Context, grant access.Grant) ([]models.SentMessage, error) {
	const op = "messages.SentBy"

	msgs, err := d.provider.MessagesSentBy(ctx, grant.Username())
	if err != nil {
		d.log.With(slog.String("op", op)).Error("failed to list sent messages", sl.Err(err))
		return nil, err
	}

	return msgs, nil
}

// ReceivedBy mirrors SentBy for the inbound direction.
func (d *Directory) ReceivedBy(ctx context.Context, grant access.Grant) ([]models.ReceivedMessage, error) {
	const op = "messages.ReceivedBy"

	msgs, err := d.provider.MessagesReceivedBy(ctx, grant.Username())
	if err != nil {
		d.log.With(slog.String("op", op)).Error("failed to list received messages", sl.Err(err))
		return nil, err
	}

	return msgs, nil
}

// Get returns a single message, visible only to its sender or recipient.
func (d *Directory) Get(ctx context.Context, id int64, caller access.Identity) (models.MessageDetail, error) {
	const op = "messages.Get"

	caller, err := access.RequireLoggedIn(caller)
	if err != nil {
		return models.MessageDetail{}, err
	}

	msg, err := d.provider.MessageByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrMessageNotFound) {
			return models.MessageDetail{}, err
		}

		d.log.With(slog.String("op", op)).Error("failed to get message", sl.Err(err))
		return models.MessageDetail{}, err
	}

	if caller.Username != msg.FromUser.Username && caller.Username != msg.ToUser.Username {
		return models.MessageDetail{}, access.ErrForbidden
	}

	return msg, nil
}

// Send creates a message from the caller to toUsername. The recipient
// must exist; storage.ErrUserNotFound surfaces when it does not.
func (d *Directory) Send(ctx context.Context, caller access.Identity, toUsername, body string) (models.Message, error) {
	const op = "messages.Send"

	log := d.log.With(slog.String("op", op))

	caller, err := access.RequireLoggedIn(caller)
	if err != nil {
		return models.Message{}, err
	}

	msg, err := d.provider.SaveMessage(ctx, caller.Username, toUsername, body)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("recipient does not exist", slog.String("to", toUsername))
			return models.Message{}, err
		}

		log.Error("failed to save message", sl.Err(err))
		return models.Message{}, err
	}

	log.Info("message sent",
		slog.Int64("id", msg.ID),
		slog.String("from", msg.FromUsername),
		slog.String("to", msg.ToUsername),
	)

	return msg, nil
}

// MarkRead sets read_at on a message addressed to the caller. The store
// performs the transition as one conditional update, so marking twice, or
// from two requests at once, keeps the first timestamp. The updated
// message is returned either way.
func (d *Directory) MarkRead(ctx context.Context, id int64, caller access.Identity) (models.MessageDetail, error) {
	const op = "messages.MarkRead"

	caller, err := access.RequireLoggedIn(caller)
	if err != nil {
		return models.MessageDetail{}, err
	}

	err = d.provider.MarkMessageRead(ctx, id, caller.Username)
	if err != nil {
		if errors.Is(err, storage.ErrMessageNotFound) {
			// The guarded update matched nothing: either the message does
			// not exist, or the caller is not its recipient.
			msg, lookupErr := d.provider.MessageByID(ctx, id)
			if lookupErr != nil {
				return models.MessageDetail{}, fmt.Errorf("%s: %w", op, lookupErr)
			}
			if msg.ToUser.Username != caller.Username {
				return models.MessageDetail{}, access.ErrForbidden
			}

			return models.MessageDetail{}, err
		}

		d.log.With(slog.String("op", op)).Error("failed to mark message read", sl.Err(err))
		return models.MessageDetail{}, err
	}

	return d.provider.MessageByID(ctx, id)
}
