// Package session – manager.go is the session lifecycle manager: it owns
// the one Messaging Client instance, converts its raw events into the
// session state machine, and exposes the start/stop/status/send surface.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AsafBen179/WhatsAppWebAPI/pkg/waweb/client"
	"github.com/AsafBen179/WhatsAppWebAPI/pkg/waweb/message"
)

// DefaultMaxTextLength bounds outbound message text.
const DefaultMaxTextLength = 4096

// DefaultCountryCode is applied to bare local numbers.
const DefaultCountryCode = "972"

// ErrNotReady is returned by send operations outside the Ready state.
var ErrNotReady = fmt.Errorf("session is not ready")

// Config holds session manager configuration.
type Config struct {
	// Dir is the persistent session directory.
	Dir string `yaml:"dir"`

	// CountryCode is prepended when validating bare local numbers.
	CountryCode string `yaml:"country_code"`

	// MaxTextLength caps outbound message text, in bytes.
	MaxTextLength int `yaml:"max_text_length"`

	// AutoStart connects the session as soon as the daemon boots.
	AutoStart bool `yaml:"auto_start"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Dir:           "./sessions/whatsapp",
		CountryCode:   DefaultCountryCode,
		MaxTextLength: DefaultMaxTextLength,
		AutoStart:     true,
	}
}

// Status is a point-in-time, side-effect-free view of the session.
type Status struct {
	State           State     `json:"state"`
	HasAuthArtifact bool      `json:"has_auth_artifact"`
	HandlerCount    int       `json:"handler_count"`
	AsOf            time.Time `json:"as_of"`
}

// SendResult reports the outcome of a send operation.
type SendResult struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
	SentAt  int64  `json:"sent_at,omitempty"` // epoch seconds
	Note    string `json:"note,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Manager is the process-wide session lifecycle manager. One Messaging
// Client exists at a time; Start and Stop are serialized internally so
// concurrent callers cannot double-initialize or orphan a client.
type Manager struct {
	cfg     Config
	factory client.Factory
	logger  *slog.Logger

	// lifecycle serializes start/stop; at most one in flight.
	lifecycle sync.Mutex

	mu       sync.RWMutex
	cli      client.Client
	state    State
	artifact *AuthArtifact

	dispatcher *message.Dispatcher
}

// NewManager builds a manager around a client factory. The dispatcher may
// be attached later with SetDispatcher, but must be set before Start.
func NewManager(cfg Config, factory client.Factory, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CountryCode == "" {
		cfg.CountryCode = DefaultCountryCode
	}
	if cfg.MaxTextLength <= 0 {
		cfg.MaxTextLength = DefaultMaxTextLength
	}
	return &Manager{
		cfg:     cfg,
		factory: factory,
		logger:  logger.With("component", "session"),
		state:   StateDisconnected,
	}
}

// SetDispatcher attaches the inbound message pipeline.
func (m *Manager) SetDispatcher(d *message.Dispatcher) {
	m.mu.Lock()
	m.dispatcher = d
	m.mu.Unlock()
}

// Start (re)initializes the session: any existing client is destroyed
// best-effort, session state is cleared, stale directory locks are
// reclaimed, and a fresh client is constructed and connected.
func (m *Manager) Start(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	old := m.cli
	m.cli = nil
	m.state = StateConnecting
	m.artifact = nil
	m.mu.Unlock()

	if old != nil {
		// A wedged old client must not block the restart.
		if err := old.Destroy(); err != nil {
			m.logger.Warn("session: destroying previous client failed", "error", err)
		}
	}

	ReclaimLocks(m.cfg.Dir, m.logger)

	cli, err := m.factory(m.cfg.Dir, m.logger)
	if err != nil {
		m.setState(StateDisconnected)
		return fmt.Errorf("creating client: %w", err)
	}
	cli.SetEventHandler(m.handleEvent)

	if err := cli.Connect(ctx); err != nil {
		m.setState(StateDisconnected)
		_ = cli.Destroy()
		return fmt.Errorf("connecting client: %w", err)
	}

	m.mu.Lock()
	m.cli = cli
	m.mu.Unlock()

	m.logger.Info("session: client initialized", "dir", m.cfg.Dir)
	return nil
}

// Stop tears down the client and clears session state. No-op without a
// client.
func (m *Manager) Stop() error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	cli := m.cli
	m.cli = nil
	m.state = StateDisconnected
	m.artifact = nil
	m.mu.Unlock()

	if cli == nil {
		return nil
	}
	if err := cli.Destroy(); err != nil {
		return fmt.Errorf("destroying client: %w", err)
	}
	m.logger.Info("session: stopped")
	return nil
}

// State returns the current session state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// Status returns a snapshot of the session. Pure read.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	if m.dispatcher != nil {
		count = m.dispatcher.HandlerCount()
	}
	return Status{
		State:           m.state,
		HasAuthArtifact: m.artifact != nil,
		HandlerCount:    count,
		AsOf:            time.Now(),
	}
}

// AuthArtifact returns the live pairing artifact, if any. Absence is a
// valid result whenever the session is not awaiting a scan.
func (m *Manager) AuthArtifact() (*AuthArtifact, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.artifact, m.artifact != nil
}

// RegisterHandler appends a callback to the ordered chain invoked for
// every inbound message.
func (m *Manager) RegisterHandler(fn message.Handler) {
	m.mu.RLock()
	d := m.dispatcher
	m.mu.RUnlock()
	if d != nil {
		d.RegisterHandler(fn)
	}
}

// SendDirect validates and sends text to a phone number. Text is checked
// before anything else so an empty message is rejected regardless of
// session state; the address is then formatted under the configured
// country code.
func (m *Manager) SendDirect(ctx context.Context, address, text string) (SendResult, error) {
	if err := validateText(text, m.cfg.MaxTextLength); err != nil {
		return SendResult{Error: err.Error()}, err
	}

	jid, err := ValidateAddress(address, m.cfg.CountryCode)
	if err != nil {
		return SendResult{Error: err.Error()}, err
	}
	return m.send(ctx, jid, text)
}

// SendToConversation sends text to an existing conversation id (direct or
// group), taken as-is apart from requiring a full protocol address.
func (m *Manager) SendToConversation(ctx context.Context, conversationID, text string) (SendResult, error) {
	if err := validateText(text, m.cfg.MaxTextLength); err != nil {
		return SendResult{Error: err.Error()}, err
	}
	if !strings.Contains(conversationID, "@") {
		err := fmt.Errorf("%w: conversation id %q has no server suffix", ErrInvalidAddress, conversationID)
		return SendResult{Error: err.Error()}, err
	}
	return m.send(ctx, conversationID, text)
}

func (m *Manager) send(ctx context.Context, address, text string) (SendResult, error) {
	m.mu.RLock()
	cli := m.cli
	state := m.state
	m.mu.RUnlock()

	if state != StateReady || cli == nil {
		err := fmt.Errorf("%w: state is %s", ErrNotReady, state)
		return SendResult{Error: err.Error()}, err
	}

	receipt, err := cli.SendText(ctx, address, text)
	if err != nil {
		if isSpuriousSendError(err) {
			// The client is known to raise this on otherwise-successful
			// sends. Treat as success with a placeholder id; delivery is
			// probable but unconfirmed.
			res := SendResult{
				Success: true,
				ID:      "pending-" + uuid.NewString(),
				SentAt:  time.Now().Unix(),
				Note:    "delivery probable but unconfirmed (client markedUnread quirk)",
			}
			m.logger.Warn("session: send hit markedUnread quirk, treating as success",
				"to", address, "id", res.ID)
			return res, nil
		}
		m.logger.Error("session: send failed", "to", address, "error", err)
		return SendResult{Error: err.Error()}, err
	}

	return SendResult{
		Success: true,
		ID:      receipt.ID,
		SentAt:  receipt.Timestamp.Unix(),
	}, nil
}

// isSpuriousSendError recognizes the client's known markedUnread bug: a
// send that actually went through but surfaces an error mentioning the
// markedUnread field. Kept as a single policy function so the heuristic
// can be revisited without touching the send path.
func isSpuriousSendError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "markedUnread")
}

// handleEvent converts one raw client event into a state transition or an
// inbound dispatch. Events are delivered by the client one at a time, so
// a message is fully dispatched before the next event is processed.
func (m *Manager) handleEvent(evt client.Event) {
	switch evt.Kind {
	case client.EventMessage:
		m.handleInbound(evt.Message)
		return
	case client.EventError:
		m.logger.Warn("session: client error event", "error", evt.Err)
		return
	}

	m.mu.Lock()
	cur := m.state
	next, ok := transition(cur, evt.Kind)
	if !ok {
		m.mu.Unlock()
		m.logger.Info("session: ignoring event with no transition",
			"event", string(evt.Kind), "state", string(cur))
		return
	}
	m.state = next

	switch evt.Kind {
	case client.EventQR:
		m.artifact = NewAuthArtifact(evt.Code)
	case client.EventAuthenticated, client.EventReady, client.EventDisconnected, client.EventAuthFailure:
		m.artifact = nil
	}
	m.mu.Unlock()

	m.logger.Info("session: state changed",
		"from", string(cur), "to", string(next),
		"event", string(evt.Kind), "reason", evt.Reason)
}

// handleInbound normalizes and dispatches one raw message.
func (m *Manager) handleInbound(raw *client.RawMessage) {
	if raw == nil {
		return
	}
	m.mu.RLock()
	d := m.dispatcher
	m.mu.RUnlock()
	if d == nil {
		m.logger.Warn("session: message received with no dispatcher attached", "id", raw.ID)
		return
	}
	d.Dispatch(context.Background(), message.Normalize(raw))
}
