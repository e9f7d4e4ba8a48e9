// Package gateway exposes the HTTP API: session control, sending,
// responder management and message introspection. The interesting logic
// lives in the session, responder and store packages; this layer is
// routing, auth and JSON.
package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/AsafBen179/WhatsAppWebAPI/pkg/waweb/message"
	"github.com/AsafBen179/WhatsAppWebAPI/pkg/waweb/responder"
	"github.com/AsafBen179/WhatsAppWebAPI/pkg/waweb/session"
	"github.com/AsafBen179/WhatsAppWebAPI/pkg/waweb/store"
)

// SessionController is the slice of the session manager the API needs.
type SessionController interface {
	Start(ctx context.Context) error
	Stop() error
	Status() session.Status
	AuthArtifact() (*session.AuthArtifact, bool)
	SendDirect(ctx context.Context, address, text string) (session.SendResult, error)
	SendToConversation(ctx context.Context, conversationID, text string) (session.SendResult, error)
}

// ResponderRegistry is the slice of the auto-response engine the API
// needs. Predicate triggers are in-process only and not reachable here.
type ResponderRegistry interface {
	Add(trigger responder.Trigger, response responder.Response, opts responder.AddOptions) (string, error)
	Remove(id string) bool
	Toggle(id string, enabled bool) bool
	List() []responder.RuleView
}

// MessageLog is the slice of the persistence store the API needs.
type MessageLog interface {
	Search(c store.SearchCriteria) ([]*message.Record, error)
	Stats() (*store.Stats, error)
}

// Config configures the HTTP server. The serve command maps the root
// configuration's gateway section onto it.
type Config struct {
	Address   string
	AuthToken string
}

// Gateway is the HTTP API server.
type Gateway struct {
	cfg        Config
	sess       SessionController
	responders ResponderRegistry
	messages   MessageLog
	buffer     *message.LogBuffer
	server     *http.Server
	logger     *slog.Logger
	startedAt  time.Time
}

// New creates a Gateway. messages and buffer may be nil; the affected
// endpoints then return 503.
func New(cfg Config, sess SessionController, responders ResponderRegistry, messages MessageLog, buffer *message.LogBuffer, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Address == "" {
		cfg.Address = ":8080"
	}
	return &Gateway{
		cfg:        cfg,
		sess:       sess,
		responders: responders,
		messages:   messages,
		buffer:     buffer,
		logger:     logger.With("component", "gateway"),
	}
}

// routes builds the handler tree.
func (g *Gateway) routes() http.Handler {
	mux := http.NewServeMux()

	// Health is always public.
	mux.HandleFunc("/health", g.handleHealth)

	mux.HandleFunc("/api/session/start", g.handleSessionStart)
	mux.HandleFunc("/api/session/stop", g.handleSessionStop)
	mux.HandleFunc("/api/session/status", g.handleSessionStatus)
	mux.HandleFunc("/api/session/qr", g.handleSessionQR)

	mux.HandleFunc("/api/send", g.handleSend)

	mux.HandleFunc("/api/responders", g.handleResponders)
	mux.HandleFunc("/api/responders/", g.handleResponderByID)

	mux.HandleFunc("/api/messages/recent", g.handleRecent)
	mux.HandleFunc("/api/messages/search", g.handleSearch)
	mux.HandleFunc("/api/messages/stats", g.handleStats)

	return g.securityHeadersMiddleware(g.corsMiddleware(g.authMiddleware(mux)))
}

// Start begins serving in the background.
func (g *Gateway) Start(_ context.Context) error {
	g.startedAt = time.Now()
	g.server = &http.Server{
		Addr:    g.cfg.Address,
		Handler: g.routes(),
	}

	g.warnIfUnprotected()

	go func() {
		if err := g.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			g.logger.Error("gateway: server error", "error", err)
		}
	}()
	g.logger.Info("gateway: started", "address", g.cfg.Address)
	return nil
}

// Stop gracefully shuts the server down.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	g.logger.Info("gateway: stopping")
	return g.server.Shutdown(ctx)
}
