package gateway

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// publicPaths are reachable without a token.
var publicPaths = map[string]bool{
	"/health": true,
}

func (g *Gateway) warnIfUnprotected() {
	if g.cfg.AuthToken == "" {
		g.logger.Warn("gateway: no auth token configured, API is unauthenticated")
	}
}

// authMiddleware enforces bearer-token auth on /api routes when a token
// is configured. Tokens starting with the bcrypt prefix are treated as
// hashes, anything else as a plain token compared in constant time.
func (g *Gateway) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.cfg.AuthToken == "" || publicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		auth := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || !g.tokenMatches(token) {
			writeError(w, http.StatusUnauthorized, "invalid or missing token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *Gateway) tokenMatches(presented string) bool {
	if strings.HasPrefix(g.cfg.AuthToken, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(g.cfg.AuthToken), []byte(presented)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(g.cfg.AuthToken), []byte(presented)) == 1
}

func (g *Gateway) securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

func (g *Gateway) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
