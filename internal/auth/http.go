// ABOUTME: HTTP middleware guarding operator endpoints.
// ABOUTME: Accepts the shared secret as a query parameter or a minted bearer token.

package auth

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const maxSecretBodyBytes = 1 << 20

// RequireOperator returns middleware that rejects requests lacking
// operator credentials. A request authenticates with the shared secret
// in the "secret" query parameter or JSON body field, or with a minted
// bearer token in the Authorization header.
func RequireOperator(issuer *TokenIssuer, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "auth")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if issuer.EqualSecret(r.URL.Query().Get("secret")) {
				next.ServeHTTP(w, r)
				return
			}

			if issuer.EqualSecret(bodySecret(r)) {
				next.ServeHTTP(w, r)
				return
			}

			token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				logger.Warn("operator request rejected", "path", r.URL.Path, "reason", errMsg)
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}

			operator, err := issuer.Verify(token)
			if err != nil {
				logger.Warn("operator token rejected", "path", r.URL.Path, "error", err)
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}

			logger.Debug("operator authenticated", "operator", operator, "path", r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}
}

// bodySecret extracts the "secret" field from a JSON request body, leaving
// the body readable for the downstream handler.
func bodySecret(r *http.Request) string {
	if r.Body == nil || r.Method != http.MethodPost {
		return ""
	}
	if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		return ""
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxSecretBodyBytes))
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(data))
	if err != nil {
		return ""
	}

	var probe struct {
		Secret string `json:"secret"`
	}
	if json.Unmarshal(data, &probe) != nil {
		return ""
	}
	return probe.Secret
}

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}
