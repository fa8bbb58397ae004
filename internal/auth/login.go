package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// LoginRequest represents the login request payload.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse represents the login response payload.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Credentials is the single dashboard account.
type Credentials struct {
	Username     string
	PasswordHash string
}

// Enabled reports whether a password has been configured.
func (c Credentials) Enabled() bool { return c.PasswordHash != "" }

// Verify checks username and password against the account.
func (c Credentials) Verify(username, password string) error {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(c.Username)) == 1
	// bcrypt runs even when the username is wrong.
	passOK := CheckPasswordHash(password, c.PasswordHash)
	if !userOK || !passOK {
		return ErrInvalidCredentials
	}
	return nil
}

// LoginHandler handles POST /api/auth/login.
func LoginHandler(creds Credentials, issuer *Issuer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if issuer == nil || !creds.Enabled() {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "authentication is disabled"})
			return
		}
		var req LoginRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if req.Username == "" || req.Password == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "username and password are required"})
			return
		}
		if err := creds.Verify(req.Username, req.Password); err != nil {
			logger.Warn("login failed", zap.String("username", req.Username), zap.String("remote", r.RemoteAddr))
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
			return
		}
		token, exp, err := issuer.Issue(req.Username)
		if err != nil {
			logger.Error("issue token", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not issue token"})
			return
		}
		logger.Info("login", zap.String("username", req.Username))
		writeJSON(w, http.StatusOK, LoginResponse{Token: token, ExpiresAt: exp})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
