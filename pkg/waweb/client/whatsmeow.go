// Package client – whatsmeow.go implements the Client interface on top of
// whatsmeow, the native Go WhatsApp Web library. Session credentials live
// in a SQLite container inside the session directory, so a relink is only
// needed when the directory is wiped or the session is invalidated.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for the session store.
)

// sessionDBFile is the SQLite file holding whatsmeow device credentials.
const sessionDBFile = "session.db"

// Whatsmeow is the whatsmeow-backed Messaging Client.
type Whatsmeow struct {
	dir    string
	logger *slog.Logger

	mu      sync.Mutex
	cli     *whatsmeow.Client
	handler func(Event)

	ctx    context.Context
	cancel context.CancelFunc
}

// NewWhatsmeow returns a Factory-compatible constructor result. The client
// is inert until Connect is called.
func NewWhatsmeow(sessionDir string, logger *slog.Logger) (Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if sessionDir == "" {
		return nil, fmt.Errorf("session directory is required")
	}
	return &Whatsmeow{
		dir:    sessionDir,
		logger: logger.With("component", "client"),
	}, nil
}

// SetEventHandler installs the event callback.
func (w *Whatsmeow) SetEventHandler(fn func(Event)) {
	w.mu.Lock()
	w.handler = fn
	w.mu.Unlock()
}

// emit delivers one event to the installed handler, if any.
func (w *Whatsmeow) emit(evt Event) {
	w.mu.Lock()
	fn := w.handler
	w.mu.Unlock()
	if fn != nil {
		fn(evt)
	}
}

// Connect opens the session store, builds the whatsmeow client and starts
// the connection. With no linked device the QR pairing loop runs in the
// background and qr events stream to the handler.
func (w *Whatsmeow) Connect(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}

	dbPath := filepath.Join(w.dir, sessionDBFile)
	container, err := sqlstore.New(w.ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=1&_journal_mode=WAL", dbPath),
		waLog.Noop)
	if err != nil {
		return fmt.Errorf("creating session store: %w", err)
	}

	device, err := w.getDevice(w.ctx, container)
	if err != nil {
		return fmt.Errorf("getting device: %w", err)
	}

	// Device name shown in the WhatsApp linked devices list.
	store.SetOSInfo("WhatsAppWebAPI", [3]uint32{1, 0, 0})

	cli := whatsmeow.NewClient(device, waLog.Noop)
	cli.AddEventHandler(w.handleEvent)
	cli.EnableAutoReconnect = true
	cli.InitialAutoReconnect = true

	w.mu.Lock()
	w.cli = cli
	w.mu.Unlock()

	if cli.Store.ID == nil {
		w.logger.Info("client: no linked session, starting pairing flow")
		go func() {
			if err := w.pairWithQR(w.ctx, cli); err != nil {
				w.logger.Warn("client: pairing flow ended", "error", err)
			}
		}()
		return nil
	}

	if err := cli.Connect(); err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	w.logger.Info("client: connecting with existing session", "jid", cli.Store.ID.String())
	return nil
}

// Destroy disconnects and releases the client. Safe to call more than once.
func (w *Whatsmeow) Destroy() error {
	if w.cancel != nil {
		w.cancel()
	}
	w.mu.Lock()
	cli := w.cli
	w.cli = nil
	w.mu.Unlock()
	if cli != nil {
		cli.Disconnect()
	}
	return nil
}

// IsLoggedIn reports whether a linked device session exists.
func (w *Whatsmeow) IsLoggedIn() bool {
	w.mu.Lock()
	cli := w.cli
	w.mu.Unlock()
	return cli != nil && cli.Store.ID != nil
}

// SendText sends a plain text message.
func (w *Whatsmeow) SendText(ctx context.Context, address, text string) (SendReceipt, error) {
	w.mu.Lock()
	cli := w.cli
	w.mu.Unlock()
	if cli == nil || !cli.IsConnected() {
		return SendReceipt{}, ErrNotConnected
	}

	jid, err := parseJID(address)
	if err != nil {
		return SendReceipt{}, fmt.Errorf("invalid address %q: %w", address, err)
	}

	resp, err := cli.SendMessage(ctx, jid, &waProto.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		return SendReceipt{}, fmt.Errorf("sending message: %w", err)
	}
	return SendReceipt{ID: string(resp.ID), Timestamp: resp.Timestamp}, nil
}

// ResolveAddress formats a raw phone number into a user JID string.
func (w *Whatsmeow) ResolveAddress(raw string) (string, error) {
	jid, err := parseJID(raw)
	if err != nil {
		return "", err
	}
	return jid.String(), nil
}

// GetConversation looks up a chat context. Group names come from the
// server; direct chats are returned as-is.
func (w *Whatsmeow) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	jid, err := parseJID(id)
	if err != nil {
		return nil, fmt.Errorf("invalid conversation id %q: %w", id, err)
	}

	conv := &Conversation{ID: jid.String(), IsGroup: jid.Server == types.GroupServer}
	if !conv.IsGroup {
		return conv, nil
	}

	w.mu.Lock()
	cli := w.cli
	w.mu.Unlock()
	if cli == nil || !cli.IsConnected() {
		return nil, ErrNotConnected
	}
	info, err := cli.GetGroupInfo(ctx, jid)
	if err != nil {
		return nil, fmt.Errorf("fetching group info: %w", err)
	}
	conv.Name = info.Name
	return conv, nil
}

// FetchRecent is not supported by whatsmeow: the protocol pushes history
// through its own sync events rather than serving it on demand. Recency
// queries are answered by the message log instead.
func (w *Whatsmeow) FetchRecent(_ context.Context, _ string, _ int) ([]RawMessage, error) {
	return nil, ErrHistoryUnavailable
}

// getDevice retrieves an existing device or creates a new one.
func (w *Whatsmeow) getDevice(ctx context.Context, container *sqlstore.Container) (*store.Device, error) {
	devices, err := container.GetAllDevices(ctx)
	if err != nil {
		return nil, err
	}
	if len(devices) > 0 {
		return devices[0], nil
	}
	return container.NewDevice(), nil
}

// pairWithQR runs the QR pairing loop, forwarding each code to the event
// handler. Pairing completion itself arrives as PairSuccess/Connected
// events through handleEvent.
func (w *Whatsmeow) pairWithQR(ctx context.Context, cli *whatsmeow.Client) error {
	qrChan, err := cli.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("getting QR channel: %w", err)
	}
	if err := cli.Connect(); err != nil {
		return fmt.Errorf("connecting for pairing: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-qrChan:
			if !ok {
				return nil
			}
			switch evt.Event {
			case "code":
				w.emit(Event{Kind: EventQR, Code: evt.Code})
			case "success":
				w.logger.Info("client: pairing code scanned")
				return nil
			case "timeout":
				w.emit(Event{Kind: EventDisconnected, Reason: "qr_timeout"})
				return fmt.Errorf("pairing code expired")
			default:
				if evt.Error != nil {
					w.emit(Event{Kind: EventAuthFailure, Reason: evt.Error.Error()})
					return fmt.Errorf("pairing error: %w", evt.Error)
				}
			}
		}
	}
}

// handleEvent maps whatsmeow events onto the Client event stream.
func (w *Whatsmeow) handleEvent(rawEvt interface{}) {
	switch evt := rawEvt.(type) {
	case *events.PairSuccess:
		w.logger.Info("client: device paired", "jid", evt.ID.String(), "platform", evt.Platform)
		w.emit(Event{Kind: EventAuthenticated})

	case *events.Connected:
		w.emit(Event{Kind: EventReady})

	case *events.Disconnected:
		w.emit(Event{Kind: EventDisconnected, Reason: "connection_lost"})

	case *events.StreamReplaced:
		w.logger.Error("client: stream replaced, another device took over")
		w.emit(Event{Kind: EventDisconnected, Reason: "stream_replaced"})

	case *events.LoggedOut:
		reason := "logged_out"
		if evt.Reason != 0 {
			reason = evt.Reason.String()
		}
		w.emit(Event{Kind: EventAuthFailure, Reason: reason})

	case *events.ConnectFailure:
		reason := "connect_failure"
		if evt.Reason != 0 {
			reason = evt.Reason.String()
		}
		w.emit(Event{Kind: EventAuthFailure, Reason: reason})

	case *events.TemporaryBan:
		w.emit(Event{Kind: EventDisconnected, Reason: "temporary_ban: " + evt.Code.String()})

	case *events.Message:
		if msg := w.convertMessage(evt); msg != nil {
			w.emit(Event{Kind: EventMessage, Message: msg})
		}

	case *events.KeepAliveTimeout:
		w.logger.Warn("client: keep-alive timeout", "error_count", evt.ErrorCount)

	case *events.StreamError:
		w.emit(Event{Kind: EventError, Err: fmt.Errorf("stream error code %s", evt.Code)})
	}
}

// convertMessage turns a whatsmeow message event into a RawMessage.
// Status broadcasts are dropped here; everything else is forwarded.
func (w *Whatsmeow) convertMessage(evt *events.Message) *RawMessage {
	if evt.Info.Chat.Server == "broadcast" {
		return nil
	}

	self := ""
	w.mu.Lock()
	if w.cli != nil && w.cli.Store.ID != nil {
		self = w.cli.Store.ID.ToNonAD().String()
	}
	w.mu.Unlock()

	raw := &RawMessage{
		ID:        string(evt.Info.ID),
		Chat:      w.resolveLID(evt.Info.Chat),
		Sender:    w.resolveLID(evt.Info.Sender),
		Self:      self,
		PushName:  evt.Info.PushName,
		Timestamp: evt.Info.Timestamp,
		IsGroup:   evt.Info.IsGroup,
		FromMe:    evt.Info.IsFromMe,
	}
	raw.Kind, raw.Body = extractContent(evt.Message)
	return raw
}

// resolveLID maps a LID (linked identity) JID back to the phone JID when
// the store knows the mapping, mirroring the protocol's own addressing.
func (w *Whatsmeow) resolveLID(jid types.JID) string {
	if jid.Server != "lid" {
		return jid.ToNonAD().String()
	}
	w.mu.Lock()
	cli := w.cli
	w.mu.Unlock()
	if cli != nil && cli.Store != nil {
		if alt, err := cli.Store.GetAltJID(w.ctx, jid); err == nil && !alt.IsEmpty() {
			return alt.ToNonAD().String()
		}
	}
	return jid.ToNonAD().String()
}

// extractContent classifies the protocol message and pulls out its text.
func extractContent(msg *waProto.Message) (RawKind, string) {
	if msg == nil {
		return RawOther, ""
	}
	switch {
	case msg.Conversation != nil:
		return RawText, msg.GetConversation()
	case msg.ExtendedTextMessage != nil:
		return RawText, msg.ExtendedTextMessage.GetText()
	case msg.ImageMessage != nil:
		return RawMedia, msg.ImageMessage.GetCaption()
	case msg.VideoMessage != nil:
		return RawMedia, msg.VideoMessage.GetCaption()
	case msg.AudioMessage != nil:
		return RawMedia, ""
	case msg.DocumentMessage != nil:
		return RawMedia, msg.DocumentMessage.GetCaption()
	case msg.StickerMessage != nil:
		return RawMedia, ""
	default:
		return RawOther, ""
	}
}

// parseJID converts a string to a whatsmeow JID. Accepts bare phone
// numbers ("972501234567"), full user JIDs and group JIDs.
func parseJID(s string) (types.JID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return types.JID{}, fmt.Errorf("empty address")
	}
	if strings.Contains(s, "@") {
		return types.ParseJID(s)
	}

	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	if len(digits) < 10 {
		return types.JID{}, fmt.Errorf("phone number too short: %s", s)
	}
	return types.NewJID(digits, types.DefaultUserServer), nil
}

// Compile-time interface check.
var _ Client = (*Whatsmeow)(nil)
