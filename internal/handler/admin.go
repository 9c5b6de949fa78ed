package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/maxkornevpro/key/internal/keys"
	"github.com/maxkornevpro/key/internal/model"
)

// defaultListLimit matches the chat front end's listing size.
const defaultListLimit = 20

// AuditReader exposes the audit log to the admin API.
type AuditReader interface {
	List(ctx context.Context, limit int) ([]model.AuditEvent, error)
	ListForKey(ctx context.Context, key string) ([]model.AuditEvent, error)
}

// AdminHandler serves the /api/admin endpoints. Authentication is applied by
// the router.
type AdminHandler struct {
	keys   *keys.Service
	audit  AuditReader
	logger *slog.Logger
}

// NewAdminHandler creates a new AdminHandler. audit may be nil when the audit
// log is disabled.
func NewAdminHandler(svc *keys.Service, audit AuditReader, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &AdminHandler{keys: svc, audit: audit, logger: logger}
}

// ListKeys returns keys in store order.
// GET /api/admin/keys?limit=20
func (h *AdminHandler) ListKeys(w http.ResponseWriter, r *http.Request) {
	limit := clampInt(queryInt(r, "limit", defaultListLimit), 0, 10000)

	res, err := h.keys.List(r.Context(), limit)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	now := h.keys.Now()
	resources := make([]map[string]interface{}, 0, len(res.Keys))
	for i := range res.Keys {
		resources = append(resources, keyToMap(&res.Keys[i], now))
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: resources,
		Meta: &model.ResponseMeta{
			Count:   len(resources),
			Total:   res.Total,
			Limit:   limit,
			Omitted: res.Omitted,
		},
	})
}

// createKeyRequest is the expected payload for CreateKey.
type createKeyRequest struct {
	UserID    *int64 `json:"user_id"`
	Duration  string `json:"duration"`
	Perpetual bool   `json:"perpetual"`
}

// CreateKey issues an admin key.
// POST /api/admin/keys
func (h *AdminHandler) CreateKey(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body: "+err.Error())
		return
	}
	if req.UserID == nil {
		writeError(w, http.StatusBadRequest, "Field 'user_id' is required")
		return
	}
	if req.Perpetual && req.Duration != "" {
		writeError(w, http.StatusBadRequest, "Specify either 'duration' or 'perpetual', not both")
		return
	}

	var (
		rec model.KeyRecord
		err error
	)
	if req.Perpetual {
		rec, err = h.keys.IssuePerpetual(r.Context(), *req.UserID)
	} else {
		rec, err = h.keys.IssueAdmin(r.Context(), *req.UserID, req.Duration)
	}
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, keyToMap(&rec, h.keys.Now()))
}

// GetKey returns one key and, when the audit log is enabled, its history.
// GET /api/admin/keys/{key}
func (h *AdminHandler) GetKey(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	rec, err := h.keys.Get(r.Context(), key)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	m := keyToMap(&rec, h.keys.Now())
	if h.audit != nil {
		events, err := h.audit.ListForKey(r.Context(), key)
		if err != nil {
			h.logger.Warn("read audit history", "key", key, "error", err)
		} else {
			history := make([]map[string]interface{}, 0, len(events))
			for _, ev := range events {
				history = append(history, auditEventToMap(ev))
			}
			m["history"] = history
		}
	}
	writeJSON(w, http.StatusOK, m)
}

// DeleteKey removes a key.
// DELETE /api/admin/keys/{key}
func (h *AdminHandler) DeleteKey(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := h.keys.Delete(r.Context(), key); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"key":     key,
		"deleted": true,
	})
}

// RevokeKey marks a key inactive.
// POST /api/admin/keys/{key}/revoke
func (h *AdminHandler) RevokeKey(w http.ResponseWriter, r *http.Request) {
	rec, err := h.keys.Revoke(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, keyToMap(&rec, h.keys.Now()))
}

// RestoreKey marks a revoked key active again.
// POST /api/admin/keys/{key}/restore
func (h *AdminHandler) RestoreKey(w http.ResponseWriter, r *http.Request) {
	rec, err := h.keys.Restore(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, keyToMap(&rec, h.keys.Now()))
}

// UserStats returns per-user key counts.
// GET /api/admin/users
func (h *AdminHandler) UserStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.keys.UserStats(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	limit := clampInt(queryInt(r, "limit", 0), 0, 10000)
	total := len(stats)
	if limit > 0 && total > limit {
		stats = stats[:limit]
	}
	resources := make([]map[string]interface{}, 0, len(stats))
	for _, s := range stats {
		resources = append(resources, userStatToMap(s))
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: resources,
		Meta: &model.ResponseMeta{
			Count:   len(resources),
			Total:   total,
			Limit:   limit,
			Omitted: total - len(resources),
		},
	})
}

// UserKeys returns every key held by one user.
// GET /api/admin/users/{userID}/keys
func (h *AdminHandler) UserKeys(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	list, err := h.keys.UserKeys(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	now := h.keys.Now()
	resources := make([]map[string]interface{}, 0, len(list))
	for i := range list {
		m := keyToMap(&list[i].KeyRecord, now)
		m["usable"] = list[i].Usable
		resources = append(resources, m)
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: resources,
		Meta:     &model.ResponseMeta{Count: len(resources), Total: len(resources)},
	})
}

// Audit returns recent key mutations.
// GET /api/admin/audit?limit=50
func (h *AdminHandler) Audit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeError(w, http.StatusNotFound, "Audit log is disabled")
		return
	}
	limit := clampInt(queryInt(r, "limit", 50), 0, 10000)
	events, err := h.audit.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("list audit events", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to read audit log")
		return
	}
	resources := make([]map[string]interface{}, 0, len(events))
	for _, ev := range events {
		resources = append(resources, auditEventToMap(ev))
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: resources,
		Meta:     &model.ResponseMeta{Count: len(resources), Limit: limit},
	})
}

// issueKeyRequest is the expected payload for IssueKey.
type issueKeyRequest struct {
	UserID   *int64 `json:"user_id"`
	Username string `json:"username"`
}

// IssueKey performs self-service issuance on behalf of a user, returning the
// user's existing valid key when there is one.
// POST /api/issue
func (h *AdminHandler) IssueKey(w http.ResponseWriter, r *http.Request) {
	var req issueKeyRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body: "+err.Error())
		return
	}
	if req.UserID == nil {
		writeError(w, http.StatusBadRequest, "Field 'user_id' is required")
		return
	}

	res, err := h.keys.IssueSelfService(r.Context(), *req.UserID, req.Username)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	m := keyToMap(&res.Record, h.keys.Now())
	m["created"] = res.Created
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, m)
}
