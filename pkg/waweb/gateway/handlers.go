package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/AsafBen179/WhatsAppWebAPI/pkg/waweb/responder"
	"github.com/AsafBen179/WhatsAppWebAPI/pkg/waweb/session"
	"github.com/AsafBen179/WhatsAppWebAPI/pkg/waweb/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(g.startedAt).Round(time.Second).String(),
	})
}

func (g *Gateway) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := g.sess.Start(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, g.sess.Status())
}

func (g *Gateway) handleSessionStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := g.sess.Stop(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, g.sess.Status())
}

func (g *Gateway) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, g.sess.Status())
}

func (g *Gateway) handleSessionQR(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	artifact, ok := g.sess.AuthArtifact()
	if !ok {
		writeError(w, http.StatusNotFound, "no pairing code available")
		return
	}
	uri, err := artifact.DataURI()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"code":        artifact.Code,
		"dataUri":     uri,
		"generatedAt": artifact.GeneratedAt.Unix(),
	})
}

type sendRequest struct {
	Address      string `json:"address"`
	Conversation string `json:"conversation"`
	Text         string `json:"text"`
}

func (g *Gateway) handleSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var (
		res session.SendResult
		err error
	)
	switch {
	case req.Conversation != "":
		res, err = g.sess.SendToConversation(r.Context(), req.Conversation, req.Text)
	case req.Address != "":
		res, err = g.sess.SendDirect(r.Context(), req.Address, req.Text)
	default:
		writeError(w, http.StatusBadRequest, "address or conversation is required")
		return
	}
	if err != nil {
		writeError(w, sendErrorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func sendErrorStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrInvalidAddress),
		errors.Is(err, session.ErrEmptyMessage),
		errors.Is(err, session.ErrMessageTooLong):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNotReady):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type responderRequest struct {
	ID       string `json:"id"`
	Keyword  string `json:"keyword"`
	Pattern  string `json:"pattern"`
	Reply    string `json:"reply"`
	Disabled bool   `json:"disabled"`
}

func (g *Gateway) handleResponders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, g.responders.List())
	case http.MethodPost:
		var req responderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		var trigger responder.Trigger
		switch {
		case req.Keyword != "":
			trigger = responder.NewLiteralTrigger(req.Keyword)
		case req.Pattern != "":
			re, err := regexp.Compile(req.Pattern)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid pattern: "+err.Error())
				return
			}
			trigger = responder.NewPatternTrigger(re)
		default:
			writeError(w, http.StatusBadRequest, "keyword or pattern is required")
			return
		}
		id, err := g.responders.Add(trigger, responder.NewStaticResponse(req.Reply), responder.AddOptions{
			ID:       req.ID,
			Disabled: req.Disabled,
		})
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": id})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (g *Gateway) handleResponderByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/responders/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "responder id is required")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodDelete:
		if !g.responders.Remove(id) {
			writeError(w, http.StatusNotFound, "responder not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "removed"})
	case action == "toggle" && r.Method == http.MethodPost:
		var req struct {
			Enabled bool `json:"enabled"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if !g.responders.Toggle(id, req.Enabled) {
			writeError(w, http.StatusNotFound, "responder not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "enabled": req.Enabled})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (g *Gateway) handleRecent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if g.buffer == nil {
		writeError(w, http.StatusServiceUnavailable, "message log unavailable")
		return
	}
	limit := queryInt(r, "limit", 50)
	writeJSON(w, http.StatusOK, g.buffer.Recent(limit))
}

func (g *Gateway) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if g.messages == nil {
		writeError(w, http.StatusServiceUnavailable, "message store unavailable")
		return
	}
	criteria := store.SearchCriteria{
		From:     r.URL.Query().Get("from"),
		Contains: r.URL.Query().Get("contains"),
		Kind:     r.URL.Query().Get("kind"),
		Limit:    queryInt(r, "limit", 100),
	}
	if v := queryInt(r, "since", 0); v > 0 {
		criteria.Since = int64(v)
	}
	if v := queryInt(r, "until", 0); v > 0 {
		criteria.Until = int64(v)
	}
	records, err := g.messages.Search(criteria)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if g.messages == nil {
		writeError(w, http.StatusServiceUnavailable, "message store unavailable")
		return
	}
	stats, err := g.messages.Stats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
