package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/maxkornevpro/key/internal/keys"
	"github.com/maxkornevpro/key/internal/model"
	"github.com/maxkornevpro/key/internal/service"
	"github.com/maxkornevpro/key/internal/store"
)

// SecretHeader carries the optional shared secret for validation calls.
const SecretHeader = "X-API-Secret"

// KeyHandler serves the public validation endpoints used by client
// applications.
type KeyHandler struct {
	keys   *keys.Service
	auth   *service.AuthService
	logger *slog.Logger
}

// NewKeyHandler creates a new KeyHandler.
func NewKeyHandler(svc *keys.Service, auth *service.AuthService, logger *slog.Logger) *KeyHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &KeyHandler{keys: svc, auth: auth, logger: logger}
}

// Validate checks a key and reports the owner when it is usable.
// GET|POST /api/validate
//
// The key comes from the JSON body field "key" on POST, falling back to the
// "key" query parameter. A missing key is reported before the secret is
// checked.
func (h *KeyHandler) Validate(w http.ResponseWriter, r *http.Request) {
	key, err := keyFromRequest(w, r)
	if err != nil {
		writeValidateError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if key == "" {
		writeValidateError(w, http.StatusBadRequest, keys.ReasonMissing.Message())
		return
	}

	if err := h.auth.CheckSecret(r.Header.Get(SecretHeader)); err != nil {
		writeValidateError(w, http.StatusUnauthorized, "Invalid API secret")
		return
	}

	res, err := h.keys.Validate(r.Context(), key)
	if err != nil {
		h.logger.Error("validate key", "error", err)
		msg := "Internal error"
		if errors.Is(err, store.ErrMalformedData) {
			msg = "Key store is malformed"
		}
		writeValidateError(w, http.StatusInternalServerError, msg)
		return
	}

	switch res.Reason {
	case keys.ReasonNone:
		writeJSON(w, http.StatusOK, model.ValidateResponse{
			Valid:     true,
			UserID:    res.UserID,
			Username:  res.Username,
			ExpiresAt: res.ExpiresAt,
		})
	case keys.ReasonNotFound:
		writeValidateError(w, http.StatusNotFound, res.Reason.Message())
	default:
		writeValidateError(w, http.StatusForbidden, res.Reason.Message())
	}
}

// Health reports whether the key store can be read.
// GET /api/health
func (h *KeyHandler) Health(w http.ResponseWriter, r *http.Request) {
	n, err := h.keys.Count(r.Context())
	if err != nil {
		h.logger.Error("health check", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "error",
			"keys_file": h.keys.StorePath(),
			"error":     err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"keys_file":  h.keys.StorePath(),
		"keys_count": n,
	})
}

// Index lists the public endpoints.
// GET /
func (h *KeyHandler) Index(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service": "Key Validation API",
		"endpoints": map[string]string{
			"/api/validate": "POST/GET - validate a key (parameter: key)",
			"/api/health":   "GET - store health",
			"/api/admin":    "Key administration (Bearer token)",
			"/openapi.json": "GET - OpenAPI document",
		},
	})
}

func writeValidateError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ValidateError{Valid: false, Error: msg})
}

func keyFromRequest(w http.ResponseWriter, r *http.Request) (string, error) {
	if r.Method == http.MethodPost && r.Body != nil {
		defer r.Body.Close()
		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
		if err != nil {
			return "", err
		}
		if len(bytes.TrimSpace(data)) > 0 {
			var body struct {
				Key string `json:"key"`
			}
			if err := json.Unmarshal(data, &body); err != nil {
				return "", err
			}
			if body.Key != "" {
				return body.Key, nil
			}
		}
	}
	return r.URL.Query().Get("key"), nil
}
