// Package responder – engine.go holds the rule registry and the
// match-and-respond path invoked by the dispatcher.
package responder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/AsafBen179/WhatsAppWebAPI/pkg/waweb/message"
	"github.com/AsafBen179/WhatsAppWebAPI/pkg/waweb/session"
)

// Sender is the slice of the session manager the engine needs to reply.
type Sender interface {
	SendDirect(ctx context.Context, address, text string) (session.SendResult, error)
}

// Marker confirms a reply against the persistence store.
type Marker interface {
	MarkProcessed(id string) error
}

// Rule pairs a trigger with a response. Rules are evaluated in insertion
// order; the first enabled match wins.
type Rule struct {
	ID        string
	Trigger   Trigger
	Response  Response
	Enabled   bool
	CreatedAt time.Time
}

// RuleView is the listing form of a rule, with the trigger rendered to a
// display string.
type RuleView struct {
	ID        string    `json:"id"`
	Trigger   string    `json:"trigger"`
	Response  string    `json:"response"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}

// AddOptions tunes rule registration.
type AddOptions struct {
	// ID overrides the time-derived default id.
	ID string

	// Disabled registers the rule switched off.
	Disabled bool
}

// Engine is the auto-response engine. The registry lives in memory for
// the process lifetime.
type Engine struct {
	sender Sender
	marker Marker
	logger *slog.Logger

	mu    sync.RWMutex
	rules []*Rule
	byID  map[string]*Rule
}

// NewEngine builds an engine. marker may be nil when no persistence store
// is attached.
func NewEngine(sender Sender, marker Marker, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		sender: sender,
		marker: marker,
		logger: logger.With("component", "responder"),
		byID:   make(map[string]*Rule),
	}
}

// Add registers a rule and returns its id. The trigger and response must
// be valid tagged variants; a missing id defaults to responder_<millis>.
func (e *Engine) Add(trigger Trigger, response Response, opts AddOptions) (string, error) {
	if !trigger.valid() {
		return "", fmt.Errorf("unsupported trigger")
	}
	if !response.valid() {
		return "", fmt.Errorf("unsupported response")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	id := opts.ID
	if id == "" {
		id = fmt.Sprintf("responder_%d", time.Now().UnixMilli())
		for i := 2; ; i++ {
			if _, taken := e.byID[id]; !taken {
				break
			}
			id = fmt.Sprintf("responder_%d_%d", time.Now().UnixMilli(), i)
		}
	}
	if _, taken := e.byID[id]; taken {
		return "", fmt.Errorf("responder id %q already registered", id)
	}

	rule := &Rule{
		ID:        id,
		Trigger:   trigger,
		Response:  response,
		Enabled:   !opts.Disabled,
		CreatedAt: time.Now(),
	}
	e.rules = append(e.rules, rule)
	e.byID[id] = rule

	e.logger.Info("responder: rule added", "id", id, "trigger", trigger.Display(), "enabled", rule.Enabled)
	return id, nil
}

// Remove deletes a rule. Returns false when the id is unknown.
func (e *Engine) Remove(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.byID[id]; !ok {
		return false
	}
	delete(e.byID, id)
	for i, r := range e.rules {
		if r.ID == id {
			e.rules = append(e.rules[:i], e.rules[i+1:]...)
			break
		}
	}
	e.logger.Info("responder: rule removed", "id", id)
	return true
}

// Toggle enables or disables a rule. Idempotent; returns false when the
// id is unknown.
func (e *Engine) Toggle(id string, enabled bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	rule, ok := e.byID[id]
	if !ok {
		return false
	}
	rule.Enabled = enabled
	e.logger.Info("responder: rule toggled", "id", id, "enabled", enabled)
	return true
}

// List returns all rules in insertion order, triggers rendered for
// display.
func (e *Engine) List() []RuleView {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]RuleView, 0, len(e.rules))
	for _, r := range e.rules {
		out = append(out, RuleView{
			ID:        r.ID,
			Trigger:   r.Trigger.Display(),
			Response:  r.Response.Display(),
			Enabled:   r.Enabled,
			CreatedAt: r.CreatedAt,
		})
	}
	return out
}

// MatchAndRespond evaluates the registry against one inbound record and
// sends at most one reply. Only plain chat messages are considered. A
// throwing trigger or producer is contained and treated as no-match.
func (e *Engine) MatchAndRespond(ctx context.Context, rec *message.Record) {
	if rec.Kind != message.KindChat {
		return
	}
	body := strings.ToLower(strings.TrimSpace(rec.Body))

	e.mu.RLock()
	rules := make([]*Rule, len(e.rules))
	copy(rules, e.rules)
	e.mu.RUnlock()

	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		if !e.safeMatch(rule, body) {
			continue
		}

		// First match wins; no further rule fires for this message.
		reply := e.safeResolve(rule, rec)
		if reply == "" {
			return
		}

		to := session.StripConversationSuffix(rec.SenderAddress())
		res, err := e.sender.SendDirect(ctx, to, reply)
		if err != nil {
			e.logger.Error("responder: reply failed", "rule", rule.ID, "to", to, "error", err)
			return
		}
		e.logger.Info("responder: replied", "rule", rule.ID, "to", to, "send_id", res.ID)

		if e.marker != nil {
			if err := e.marker.MarkProcessed(rec.ID); err != nil {
				e.logger.Warn("responder: marking message processed failed", "id", rec.ID, "error", err)
			}
		}
		return
	}
}

// safeMatch evaluates a trigger, containing panics.
func (e *Engine) safeMatch(rule *Rule, body string) (matched bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("responder: trigger panicked", "rule", rule.ID, "panic", r)
			matched = false
		}
	}()
	return rule.Trigger.matches(body)
}

// safeResolve resolves a response, containing panics.
func (e *Engine) safeResolve(rule *Rule, rec *message.Record) (reply string) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("responder: response producer panicked", "rule", rule.ID, "panic", r)
			reply = ""
		}
	}()
	return rule.Response.resolve(rec)
}
