package messages

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"messagely/internal/access"
	"messagely/internal/models"
	"messagely/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type fakeMessageStore struct {
	nextID   int64
	users    map[string]models.CounterpartSummary
	messages map[int64]*models.Message
}

func newFakeMessageStore(usernames ...string) *fakeMessageStore {
	users := map[string]models.CounterpartSummary{}
	for _, name := range usernames {
		users[name] = models.CounterpartSummary{Username: name, FirstName: "F", LastName: "L", Phone: "555"}
	}
	return &fakeMessageStore{
		nextID:   1,
		users:    users,
		messages: map[int64]*models.Message{},
	}
}

func (f *fakeMessageStore) MessagesSentBy(ctx context.Context, username string) ([]models.SentMessage, error) {
	out := []models.SentMessage{}
	for _, m := range f.messages {
		if m.FromUsername == username {
			out = append(out, models.SentMessage{
				ID:     m.ID,
				ToUser: f.users[m.ToUsername],
				Body:   m.Body,
				SentAt: m.SentAt,
				ReadAt: m.ReadAt,
			})
		}
	}
	return out, nil
}

func (f *fakeMessageStore) MessagesReceivedBy(ctx context.Context, username string) ([]models.ReceivedMessage, error) {
	out := []models.ReceivedMessage{}
	for _, m := range f.messages {
		if m.ToUsername == username {
			out = append(out, models.ReceivedMessage{
				ID:       m.ID,
				FromUser: f.users[m.FromUsername],
				Body:     m.Body,
				SentAt:   m.SentAt,
				ReadAt:   m.ReadAt,
			})
		}
	}
	return out, nil
}

func (f *fakeMessageStore) MessageByID(ctx context.Context, id int64) (models.MessageDetail, error) {
	m, ok := f.messages[id]
	if !ok {
		return models.MessageDetail{}, storage.ErrMessageNotFound
	}
	return models.MessageDetail{
		ID:       m.ID,
		FromUser: f.users[m.FromUsername],
		ToUser:   f.users[m.ToUsername],
		Body:     m.Body,
		SentAt:   m.SentAt,
		ReadAt:   m.ReadAt,
	}, nil
}

func (f *fakeMessageStore) SaveMessage(ctx context.Context, from, to, body string) (models.Message, error) {
	if _, ok := f.users[to]; !ok {
		return models.Message{}, storage.ErrUserNotFound
	}

	m := &models.Message{
		ID:           f.nextID,
		FromUsername: from,
		ToUsername:   to,
		Body:         body,
		SentAt:       time.Now(),
	}
	f.messages[m.ID] = m
	f.nextID++

	return *m, nil
}

// Mirrors the store's guarded update: no match on id+recipient means no
// write, and an already-set read_at is kept.
func (f *fakeMessageStore) MarkMessageRead(ctx context.Context, id int64, recipient string) error {
	m, ok := f.messages[id]
	if !ok || m.ToUsername != recipient {
		return storage.ErrMessageNotFound
	}

	if m.ReadAt == nil {
		now := time.Now()
		m.ReadAt = &now
	}

	return nil
}

func newTestDirectory(store *fakeMessageStore) *Directory {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)), store)
}

func grantFor(t *testing.T, username string) access.Grant {
	t.Helper()
	grant, err := access.RequireOwner(access.Identity{Username: username}, username)
	require.NoError(t, err)
	return grant
}

// --- tests ---

func TestListings_EmptyIsNotAnError(t *testing.T) {
	t.Parallel()

	d := newTestDirectory(newFakeMessageStore("alice"))

	sent, err := d.SentBy(context.Background(), grantFor(t, "alice"))
	require.NoError(t, err)
	assert.Empty(t, sent)

	received, err := d.ReceivedBy(context.Background(), grantFor(t, "alice"))
	require.NoError(t, err)
	assert.Empty(t, received)
}

// A message from alice to bob is outbound for alice and inbound for bob,
// never the other way around.
func TestListings_DirectionalVisibility(t *testing.T) {
	t.Parallel()

	store := newFakeMessageStore("alice", "bob")
	d := newTestDirectory(store)

	msg, err := d.Send(context.Background(), access.Identity{Username: "alice"}, "bob", "hi")
	require.NoError(t, err)

	bobOutbound, err := d.SentBy(context.Background(), grantFor(t, "bob"))
	require.NoError(t, err)
	assert.Empty(t, bobOutbound)

	bobInbound, err := d.ReceivedBy(context.Background(), grantFor(t, "bob"))
	require.NoError(t, err)
	require.Len(t, bobInbound, 1)
	assert.Equal(t, msg.ID, bobInbound[0].ID)
	assert.Equal(t, "alice", bobInbound[0].FromUser.Username)

	aliceOutbound, err := d.SentBy(context.Background(), grantFor(t, "alice"))
	require.NoError(t, err)
	require.Len(t, aliceOutbound, 1)
	assert.Equal(t, "bob", aliceOutbound[0].ToUser.Username)
}

func TestGet_ParticipantsOnly(t *testing.T) {
	t.Parallel()

	store := newFakeMessageStore("alice", "bob", "carol")
	d := newTestDirectory(store)

	msg, err := d.Send(context.Background(), access.Identity{Username: "alice"}, "bob", "hi")
	require.NoError(t, err)

	for _, caller := range []string{"alice", "bob"} {
		detail, err := d.Get(context.Background(), msg.ID, access.Identity{Username: caller})
		require.NoError(t, err)
		assert.Equal(t, "alice", detail.FromUser.Username)
		assert.Equal(t, "bob", detail.ToUser.Username)
	}

	_, err = d.Get(context.Background(), msg.ID, access.Identity{Username: "carol"})
	require.ErrorIs(t, err, access.ErrForbidden)

	_, err = d.Get(context.Background(), msg.ID, access.Identity{})
	require.ErrorIs(t, err, access.ErrUnauthenticated)

	_, err = d.Get(context.Background(), 999, access.Identity{Username: "alice"})
	require.ErrorIs(t, err, storage.ErrMessageNotFound)
}

func TestMarkRead_RecipientOnlyAndIdempotent(t *testing.T) {
	t.Parallel()

	store := newFakeMessageStore("alice", "bob")
	d := newTestDirectory(store)

	msg, err := d.Send(context.Background(), access.Identity{Username: "alice"}, "bob", "hi")
	require.NoError(t, err)

	// the sender cannot mark it read
	_, err = d.MarkRead(context.Background(), msg.ID, access.Identity{Username: "alice"})
	require.ErrorIs(t, err, access.ErrForbidden)

	first, err := d.MarkRead(context.Background(), msg.ID, access.Identity{Username: "bob"})
	require.NoError(t, err)
	require.NotNil(t, first.ReadAt)

	second, err := d.MarkRead(context.Background(), msg.ID, access.Identity{Username: "bob"})
	require.NoError(t, err)
	require.NotNil(t, second.ReadAt)
	assert.Equal(t, *first.ReadAt, *second.ReadAt)

	_, err = d.MarkRead(context.Background(), 999, access.Identity{Username: "bob"})
	require.ErrorIs(t, err, storage.ErrMessageNotFound)
}

func TestSend_Checks(t *testing.T) {
	t.Parallel()

	d := newTestDirectory(newFakeMessageStore("alice"))

	_, err := d.Send(context.Background(), access.Identity{}, "alice", "hi")
	require.ErrorIs(t, err, access.ErrUnauthenticated)

	_, err = d.Send(context.Background(), access.Identity{Username: "alice"}, "nobody", "hi")
	require.ErrorIs(t, err, storage.ErrUserNotFound)
}
