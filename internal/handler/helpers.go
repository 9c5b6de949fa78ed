package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/maxkornevpro/key/internal/keys"
	"github.com/maxkornevpro/key/internal/model"
	"github.com/maxkornevpro/key/internal/store"
)

// maxBodySize caps request bodies; every payload here is a handful of fields.
const maxBodySize = 64 * 1024

// writeJSON serializes v as JSON and writes it to the response with the given
// HTTP status code. The Content-Type header is set to application/json.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a structured error response using the standard error
// envelope. The optional ctx map provides additional context fields.
func writeError(w http.ResponseWriter, code int, message string, ctx ...map[string]interface{}) {
	var ctxMap map[string]interface{}
	if len(ctx) > 0 {
		ctxMap = ctx[0]
	}
	writeJSON(w, code, model.ErrorResponse{
		Error: model.ErrorDetail{
			Code:    code,
			Message: message,
			Context: ctxMap,
		},
	})
}

// writeServiceError maps a keys/store error to a status code and writes it.
// Unexpected errors are logged.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	code, msg := classifyError(err)
	if code >= http.StatusInternalServerError {
		logger.Error("key service failure", "error", err)
	}
	writeError(w, code, msg)
}

// classifyError maps the key service error taxonomy to HTTP status codes.
// Returns (httpStatus, cleanMessage).
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, keys.ErrNotFound):
		return http.StatusNotFound, "Key not found"
	case errors.Is(err, keys.ErrInvalidDuration):
		return http.StatusBadRequest, "Invalid duration: use N followed by s, m, h, d, w or year (e.g. 30d, 1year)"
	case errors.Is(err, keys.ErrKeyCollision):
		return http.StatusInternalServerError, "Could not generate a unique key"
	case errors.Is(err, store.ErrMalformedData):
		return http.StatusInternalServerError, "Key store is malformed and was left untouched"
	case errors.Is(err, store.ErrWriteFailed):
		return http.StatusInternalServerError, "Failed to write key store"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// readJSON decodes the request body as JSON into v. The body is closed after
// decoding regardless of success or failure.
func readJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(v)
}

// queryInt extracts an integer query parameter, returning defaultVal if the
// parameter is missing or cannot be parsed.
func queryInt(r *http.Request, key string, defaultVal int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// clampInt constrains val to be within [min, max].
func clampInt(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

func keyToMap(rec *model.KeyRecord, now time.Time) map[string]interface{} {
	m := map[string]interface{}{
		"key":              rec.Key,
		"user_id":          rec.UserID,
		"username":         rec.Username,
		"created_at":       rec.CreatedAt,
		"duration":         rec.Duration,
		"active":           rec.Active,
		"created_by_admin": rec.CreatedByAdmin,
		"valid":            keys.IsValid(rec, now),
	}
	if rec.ExpiresAt != nil {
		m["expires_at"] = rec.ExpiresAt
	}
	return m
}

func userStatToMap(s model.UserStat) map[string]interface{} {
	return map[string]interface{}{
		"user_id":     s.UserID,
		"username":    s.Username,
		"keys_count":  s.KeysCount,
		"active_keys": s.ActiveKeysCount,
	}
}

func auditEventToMap(ev model.AuditEvent) map[string]interface{} {
	m := map[string]interface{}{
		"id":      ev.ID,
		"action":  ev.Action,
		"key":     ev.Key,
		"user_id": ev.UserID,
		"actor":   ev.Actor,
		"at":      ev.At,
	}
	if ev.Detail != "" {
		m["detail"] = ev.Detail
	}
	return m
}
