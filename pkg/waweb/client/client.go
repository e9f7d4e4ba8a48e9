// Package client defines the Messaging Client consumed by the session
// lifecycle manager, and provides the whatsmeow-backed implementation.
// The session layer only ever sees this interface, so tests can drive it
// with a fake client and the whatsmeow dependency stays in one place.
package client

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// EventKind names the raw events a Messaging Client emits.
type EventKind string

const (
	EventQR            EventKind = "qr"
	EventReady         EventKind = "ready"
	EventAuthenticated EventKind = "authenticated"
	EventAuthFailure   EventKind = "auth_failure"
	EventDisconnected  EventKind = "disconnected"
	EventMessage       EventKind = "message"
	EventError         EventKind = "error"
)

// RawKind is the coarse content category of a raw protocol message.
type RawKind string

const (
	RawText  RawKind = "text"
	RawMedia RawKind = "media"
	RawOther RawKind = "other"
)

// Event is a single raw event from the Messaging Client. Only the fields
// relevant to the Kind are populated.
type Event struct {
	Kind EventKind

	// Code is the scannable pairing code (EventQR).
	Code string

	// Reason describes why (EventAuthFailure, EventDisconnected).
	Reason string

	// Err carries the underlying error (EventError).
	Err error

	// Message is the raw inbound/outbound message (EventMessage).
	Message *RawMessage
}

// RawMessage is a protocol message before normalization.
type RawMessage struct {
	// ID is the protocol's canonical message id, stable across redelivery.
	ID string

	// Chat is the conversation address the message belongs to.
	Chat string

	// Sender is the authoring participant's address.
	Sender string

	// Self is the account's own address.
	Self string

	// PushName is the sender's display name as pushed by the protocol.
	PushName string

	// Body is the text content, or the caption for media.
	Body string

	// Timestamp is the protocol's original send time.
	Timestamp time.Time

	// IsGroup comes from the protocol's own group-address marker.
	IsGroup bool

	// FromMe marks messages authored by this account.
	FromMe bool

	Kind RawKind
}

// SendReceipt is the protocol acknowledgement for an outbound send.
type SendReceipt struct {
	ID        string
	Timestamp time.Time
}

// Conversation describes an addressable chat context.
type Conversation struct {
	ID      string
	Name    string
	IsGroup bool
}

// Errors returned by client implementations.
var (
	// ErrNotConnected is returned by operations that need a live connection.
	ErrNotConnected = errors.New("client is not connected")

	// ErrHistoryUnavailable is returned by FetchRecent when the underlying
	// protocol only delivers history through its own sync events.
	ErrHistoryUnavailable = errors.New("message history not available on demand")
)

// Client is the Messaging Client contract. Implementations own the wire
// protocol, authentication handshake and transport; callers own lifecycle
// ordering (Connect before sends, Destroy exactly once).
type Client interface {
	// Connect starts the connection. If the session is not yet linked the
	// pairing flow runs in the background and EventQR events are emitted.
	Connect(ctx context.Context) error

	// Destroy tears the connection down and releases resources.
	Destroy() error

	// SendText sends a text message to the given address.
	SendText(ctx context.Context, address, text string) (SendReceipt, error)

	// ResolveAddress formats a raw phone number into a protocol address.
	// Returns an empty string and an error when the number is unusable.
	ResolveAddress(raw string) (string, error)

	// GetConversation looks up a chat context by id.
	GetConversation(ctx context.Context, id string) (*Conversation, error)

	// FetchRecent returns up to limit recent messages of a conversation.
	FetchRecent(ctx context.Context, conversationID string, limit int) ([]RawMessage, error)

	// SetEventHandler installs the single event callback. Must be called
	// before Connect. Events are delivered one at a time, in order.
	SetEventHandler(fn func(Event))

	// IsLoggedIn reports whether a linked session exists.
	IsLoggedIn() bool
}

// Factory constructs a fresh Client bound to a session directory. The
// session manager calls it on every (re)start so ownership transfer is
// explicit: old client destroyed, new client created.
type Factory func(sessionDir string, logger *slog.Logger) (Client, error)
