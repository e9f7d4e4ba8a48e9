package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/AsafBen179/WhatsAppWebAPI/pkg/waweb/message"
	"github.com/AsafBen179/WhatsAppWebAPI/pkg/waweb/responder"
	"github.com/AsafBen179/WhatsAppWebAPI/pkg/waweb/session"
	"github.com/AsafBen179/WhatsAppWebAPI/pkg/waweb/store"
)

func newTestGateway(t *testing.T, cfg Config) (*Gateway, *fakeSession, *fakeRegistry) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	sess := &fakeSession{status: session.Status{State: session.StateDisconnected}}
	reg := &fakeRegistry{known: map[string]bool{}}
	buffer := message.NewLogBuffer(10)
	return New(cfg, sess, reg, &fakeLog{}, buffer, logger), sess, reg
}

func doRequest(t *testing.T, g *Gateway, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reqBody *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encoding body: %v", err)
		}
		reqBody = bytes.NewReader(data)
	} else {
		reqBody = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reqBody)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	g.routes().ServeHTTP(rec, req)
	return rec
}

func TestAuth(t *testing.T) {
	t.Run("no token configured leaves the API open", func(t *testing.T) {
		g, _, _ := newTestGateway(t, Config{})
		rec := doRequest(t, g, http.MethodGet, "/api/session/status", "", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("missing token rejected when configured", func(t *testing.T) {
		g, _, _ := newTestGateway(t, Config{AuthToken: "secret"})
		rec := doRequest(t, g, http.MethodGet, "/api/session/status", "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("wrong token rejected", func(t *testing.T) {
		g, _, _ := newTestGateway(t, Config{AuthToken: "secret"})
		rec := doRequest(t, g, http.MethodGet, "/api/session/status", "wrong", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("correct token accepted", func(t *testing.T) {
		g, _, _ := newTestGateway(t, Config{AuthToken: "secret"})
		rec := doRequest(t, g, http.MethodGet, "/api/session/status", "secret", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("bcrypt hash compared against presented token", func(t *testing.T) {
		hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
		if err != nil {
			t.Fatalf("hashing: %v", err)
		}
		g, _, _ := newTestGateway(t, Config{AuthToken: string(hash)})

		if rec := doRequest(t, g, http.MethodGet, "/api/session/status", "secret", nil); rec.Code != http.StatusOK {
			t.Errorf("expected 200 with correct token, got %d", rec.Code)
		}
		if rec := doRequest(t, g, http.MethodGet, "/api/session/status", "wrong", nil); rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401 with wrong token, got %d", rec.Code)
		}
	})

	t.Run("health stays public", func(t *testing.T) {
		g, _, _ := newTestGateway(t, Config{AuthToken: "secret"})
		rec := doRequest(t, g, http.MethodGet, "/health", "", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
	})
}

func TestSessionEndpoints(t *testing.T) {
	t.Run("status returns the snapshot", func(t *testing.T) {
		g, sess, _ := newTestGateway(t, Config{})
		sess.status = session.Status{State: session.StateReady, HandlerCount: 2}

		rec := doRequest(t, g, http.MethodGet, "/api/session/status", "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var got session.Status
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("decoding: %v", err)
		}
		if got.State != session.StateReady || got.HandlerCount != 2 {
			t.Errorf("unexpected status: %+v", got)
		}
	})

	t.Run("start requires POST", func(t *testing.T) {
		g, _, _ := newTestGateway(t, Config{})
		rec := doRequest(t, g, http.MethodGet, "/api/session/start", "", nil)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", rec.Code)
		}
	})

	t.Run("start and stop call through", func(t *testing.T) {
		g, sess, _ := newTestGateway(t, Config{})
		if rec := doRequest(t, g, http.MethodPost, "/api/session/start", "", nil); rec.Code != http.StatusOK {
			t.Errorf("start: expected 200, got %d", rec.Code)
		}
		if rec := doRequest(t, g, http.MethodPost, "/api/session/stop", "", nil); rec.Code != http.StatusOK {
			t.Errorf("stop: expected 200, got %d", rec.Code)
		}
		if sess.startCalls != 1 || sess.stopCalls != 1 {
			t.Errorf("expected 1 start and 1 stop, got %d/%d", sess.startCalls, sess.stopCalls)
		}
	})

	t.Run("qr returns 404 without an artifact", func(t *testing.T) {
		g, _, _ := newTestGateway(t, Config{})
		rec := doRequest(t, g, http.MethodGet, "/api/session/qr", "", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("qr returns code and image when pairing", func(t *testing.T) {
		g, sess, _ := newTestGateway(t, Config{})
		sess.artifact = session.NewAuthArtifact("pairing-code")

		rec := doRequest(t, g, http.MethodGet, "/api/session/qr", "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var got map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("decoding: %v", err)
		}
		if got["code"] != "pairing-code" {
			t.Errorf("expected code, got %v", got["code"])
		}
		uri, _ := got["dataUri"].(string)
		if len(uri) == 0 || uri[:22] != "data:image/png;base64," {
			t.Errorf("expected PNG data URI, got %.40s", uri)
		}
	})
}

func TestSendEndpoint(t *testing.T) {
	t.Run("direct send by address", func(t *testing.T) {
		g, sess, _ := newTestGateway(t, Config{})
		rec := doRequest(t, g, http.MethodPost, "/api/send", "", sendRequest{Address: "0501234567", Text: "hi"})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if sess.lastAddress != "0501234567" || sess.lastText != "hi" {
			t.Errorf("unexpected send args: %s %q", sess.lastAddress, sess.lastText)
		}
	})

	t.Run("conversation send wins over address", func(t *testing.T) {
		g, sess, _ := newTestGateway(t, Config{})
		doRequest(t, g, http.MethodPost, "/api/send", "", sendRequest{Conversation: "1234@g.us", Text: "hi"})
		if sess.lastConversation != "1234@g.us" {
			t.Errorf("expected conversation send, got %q", sess.lastConversation)
		}
	})

	t.Run("missing target is a bad request", func(t *testing.T) {
		g, _, _ := newTestGateway(t, Config{})
		rec := doRequest(t, g, http.MethodPost, "/api/send", "", sendRequest{Text: "hi"})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("validation errors map to 400", func(t *testing.T) {
		g, sess, _ := newTestGateway(t, Config{})
		sess.sendErr = fmt.Errorf("wrap: %w", session.ErrEmptyMessage)
		rec := doRequest(t, g, http.MethodPost, "/api/send", "", sendRequest{Address: "0501234567", Text: ""})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("not ready maps to 409", func(t *testing.T) {
		g, sess, _ := newTestGateway(t, Config{})
		sess.sendErr = fmt.Errorf("wrap: %w", session.ErrNotReady)
		rec := doRequest(t, g, http.MethodPost, "/api/send", "", sendRequest{Address: "0501234567", Text: "hi"})
		if rec.Code != http.StatusConflict {
			t.Errorf("expected 409, got %d", rec.Code)
		}
	})

	t.Run("other failures map to 500", func(t *testing.T) {
		g, sess, _ := newTestGateway(t, Config{})
		sess.sendErr = fmt.Errorf("socket closed")
		rec := doRequest(t, g, http.MethodPost, "/api/send", "", sendRequest{Address: "0501234567", Text: "hi"})
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", rec.Code)
		}
	})
}

func TestResponderEndpoints(t *testing.T) {
	t.Run("create with keyword", func(t *testing.T) {
		g, _, reg := newTestGateway(t, Config{})
		rec := doRequest(t, g, http.MethodPost, "/api/responders", "",
			responderRequest{Keyword: "hello", Reply: "hi!"})
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if reg.addCalls != 1 {
			t.Errorf("expected 1 add, got %d", reg.addCalls)
		}
	})

	t.Run("create with invalid pattern rejected", func(t *testing.T) {
		g, _, _ := newTestGateway(t, Config{})
		rec := doRequest(t, g, http.MethodPost, "/api/responders", "",
			responderRequest{Pattern: "([", Reply: "x"})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("create without trigger rejected", func(t *testing.T) {
		g, _, _ := newTestGateway(t, Config{})
		rec := doRequest(t, g, http.MethodPost, "/api/responders", "",
			responderRequest{Reply: "x"})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("delete unknown id is 404", func(t *testing.T) {
		g, _, _ := newTestGateway(t, Config{})
		rec := doRequest(t, g, http.MethodDelete, "/api/responders/nope", "", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("delete known id succeeds", func(t *testing.T) {
		g, _, reg := newTestGateway(t, Config{})
		reg.known["r1"] = true
		rec := doRequest(t, g, http.MethodDelete, "/api/responders/r1", "", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("toggle known id", func(t *testing.T) {
		g, _, reg := newTestGateway(t, Config{})
		reg.known["r1"] = true
		rec := doRequest(t, g, http.MethodPost, "/api/responders/r1/toggle", "",
			map[string]bool{"enabled": false})
		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
		if reg.lastToggleID != "r1" || reg.lastToggleOn {
			t.Errorf("unexpected toggle args: %s %v", reg.lastToggleID, reg.lastToggleOn)
		}
	})

	t.Run("list returns registered rules", func(t *testing.T) {
		g, _, reg := newTestGateway(t, Config{})
		reg.views = []responder.RuleView{{ID: "r1", Trigger: `text:"hello"`, Enabled: true}}

		rec := doRequest(t, g, http.MethodGet, "/api/responders", "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var got []responder.RuleView
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("decoding: %v", err)
		}
		if len(got) != 1 || got[0].ID != "r1" {
			t.Errorf("unexpected list: %+v", got)
		}
	})
}

func TestMessageEndpoints(t *testing.T) {
	t.Run("recent served from the buffer", func(t *testing.T) {
		g, _, _ := newTestGateway(t, Config{})
		g.buffer.Append(&message.Record{ID: "m1", Body: "hi"})

		rec := doRequest(t, g, http.MethodGet, "/api/messages/recent?limit=5", "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var got []*message.Record
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("decoding: %v", err)
		}
		if len(got) != 1 || got[0].ID != "m1" {
			t.Errorf("unexpected records: %+v", got)
		}
	})

	t.Run("search forwards criteria", func(t *testing.T) {
		g, _, _ := newTestGateway(t, Config{})
		log := g.messages.(*fakeLog)

		rec := doRequest(t, g, http.MethodGet,
			"/api/messages/search?from=972501234567@s.whatsapp.net&contains=order&kind=chat&since=100&until=200", "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		c := log.lastCriteria
		if c.From != "972501234567@s.whatsapp.net" || c.Contains != "order" ||
			c.Kind != "chat" || c.Since != 100 || c.Until != 200 {
			t.Errorf("unexpected criteria: %+v", c)
		}
	})

	t.Run("stats served from the store", func(t *testing.T) {
		g, _, _ := newTestGateway(t, Config{})
		g.messages.(*fakeLog).stats = &store.Stats{Total: 7}

		rec := doRequest(t, g, http.MethodGet, "/api/messages/stats", "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var got store.Stats
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("decoding: %v", err)
		}
		if got.Total != 7 {
			t.Errorf("expected total 7, got %d", got.Total)
		}
	})

	t.Run("store-less gateway returns 503", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
		g := New(Config{}, &fakeSession{}, &fakeRegistry{}, nil, nil, logger)
		rec := doRequest(t, g, http.MethodGet, "/api/messages/stats", "", nil)
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("expected 503, got %d", rec.Code)
		}
	})
}

func TestSecurityHeaders(t *testing.T) {
	g, _, _ := newTestGateway(t, Config{})
	rec := doRequest(t, g, http.MethodGet, "/health", "", nil)

	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected nosniff header")
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("expected frame options header")
	}
}

// Test helper types

type fakeSession struct {
	status           session.Status
	artifact         *session.AuthArtifact
	startCalls       int
	stopCalls        int
	lastAddress      string
	lastConversation string
	lastText         string
	sendErr          error
}

func (f *fakeSession) Start(context.Context) error {
	f.startCalls++
	return nil
}

func (f *fakeSession) Stop() error {
	f.stopCalls++
	return nil
}

func (f *fakeSession) Status() session.Status { return f.status }

func (f *fakeSession) AuthArtifact() (*session.AuthArtifact, bool) {
	return f.artifact, f.artifact != nil
}

func (f *fakeSession) SendDirect(_ context.Context, address, text string) (session.SendResult, error) {
	f.lastAddress = address
	f.lastText = text
	if f.sendErr != nil {
		return session.SendResult{Error: f.sendErr.Error()}, f.sendErr
	}
	return session.SendResult{Success: true, ID: "sent-1"}, nil
}

func (f *fakeSession) SendToConversation(_ context.Context, conversationID, text string) (session.SendResult, error) {
	f.lastConversation = conversationID
	f.lastText = text
	if f.sendErr != nil {
		return session.SendResult{Error: f.sendErr.Error()}, f.sendErr
	}
	return session.SendResult{Success: true, ID: "sent-1"}, nil
}

type fakeRegistry struct {
	addCalls     int
	known        map[string]bool
	views        []responder.RuleView
	lastToggleID string
	lastToggleOn bool
}

func (f *fakeRegistry) Add(_ responder.Trigger, _ responder.Response, opts responder.AddOptions) (string, error) {
	f.addCalls++
	if opts.ID != "" {
		return opts.ID, nil
	}
	return "generated", nil
}

func (f *fakeRegistry) Remove(id string) bool { return f.known[id] }

func (f *fakeRegistry) Toggle(id string, enabled bool) bool {
	f.lastToggleID = id
	f.lastToggleOn = enabled
	return f.known[id]
}

func (f *fakeRegistry) List() []responder.RuleView { return f.views }

type fakeLog struct {
	lastCriteria store.SearchCriteria
	records      []*message.Record
	stats        *store.Stats
}

func (f *fakeLog) Search(c store.SearchCriteria) ([]*message.Record, error) {
	f.lastCriteria = c
	return f.records, nil
}

func (f *fakeLog) Stats() (*store.Stats, error) {
	if f.stats == nil {
		return &store.Stats{ByKind: map[string]int64{}}, nil
	}
	return f.stats, nil
}
