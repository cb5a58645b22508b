package models

import "time"

type User struct {
	Username    string
	PassHash    []byte
	FirstName   string
	LastName    string
	Phone       string
	JoinedAt    time.Time
	LastLoginAt time.Time
}

// Profile is the outward view of a User. It never carries the password hash.
type Profile struct {
	Username    string    `json:"username"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	Phone       string    `json:"phone"`
	JoinedAt    time.Time `json:"joined_at"`
	LastLoginAt time.Time `json:"last_login_at"`
}

// UserSummary is the minimal-exposure listing shape: no contact or
// timestamp fields.
type UserSummary struct {
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// CounterpartSummary identifies the other side of a message.
type CounterpartSummary struct {
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

type Message struct {
	ID           int64
	FromUsername string
	ToUsername   string
	Body         string
	SentAt       time.Time
	ReadAt       *time.Time
}

// SentMessage is a message from the sender's point of view, joined with
// the recipient's summary.
type SentMessage struct {
	ID     int64              `json:"id"`
	ToUser CounterpartSummary `json:"to_user"`
	Body   string             `json:"body"`
	SentAt time.Time          `json:"sent_at"`
	ReadAt *time.Time         `json:"read_at"`
}

// ReceivedMessage is a message from the recipient's point of view, joined
// with the sender's summary.
type ReceivedMessage struct {
	ID       int64              `json:"id"`
	FromUser CounterpartSummary `json:"from_user"`
	Body     string             `json:"body"`
	SentAt   time.Time          `json:"sent_at"`
	ReadAt   *time.Time         `json:"read_at"`
}

// MessageDetail joins both participant summaries for a single lookup.
type MessageDetail struct {
	ID       int64              `json:"id"`
	FromUser CounterpartSummary `json:"from_user"`
	ToUser   CounterpartSummary `json:"to_user"`
	Body     string             `json:"body"`
	SentAt   time.Time          `json:"sent_at"`
	ReadAt   *time.Time         `json:"read_at"`
}

// Event is published to the broker on auth and messaging activity.
type Event struct {
	Type      string    `json:"type"`
	Username  string    `json:"username"`
	MessageID int64     `json:"message_id,omitempty"`
	At        time.Time `json:"at"`
}
