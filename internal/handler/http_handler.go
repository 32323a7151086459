// Package handler exposes the HTTP/JSON binding of the workflow intents.
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pesio-ai/be-wh-repairs/internal/errors"
	"github.com/pesio-ai/be-wh-repairs/internal/logger"
	"github.com/pesio-ai/be-wh-repairs/internal/repository"
	"github.com/pesio-ai/be-wh-repairs/internal/service"
)

// HTTPHandler handles HTTP requests.
type HTTPHandler struct {
	service *service.RepairService
	log     *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(svc *service.RepairService, log *logger.Logger) *HTTPHandler {
	return &HTTPHandler{service: svc, log: log}
}

// Routes mounts the repair routes on a chi router.
func (h *HTTPHandler) Routes(r chi.Router) {
	r.Route("/api/v1/repairs", func(r chi.Router) {
		r.Get("/", h.ListRepairs)
		r.Post("/", h.CreateRepair)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetRepair)
			r.Put("/", h.EditRepair)
			r.Delete("/", h.DeleteRepair)
			r.Post("/approve", h.ApproveRepair)
			r.Post("/assign", h.AssignItems)
			r.Post("/status", h.UpdateItemStatus)
			r.Get("/audit", h.GetAuditTrail)
		})
	})
	r.Get("/api/v1/assignable-items", h.ListAssignableItems)
}

// CreateRepair handles POST /api/v1/repairs.
func (h *HTTPHandler) CreateRepair(w http.ResponseWriter, r *http.Request) {
	var req service.CreateRepairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.New(errors.ErrCodeValidation, "invalid request body"))
		return
	}

	repair, err := h.service.CreateRepair(r.Context(), &req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, repair)
}

// GetRepair handles GET /api/v1/repairs/{id}.
func (h *HTTPHandler) GetRepair(w http.ResponseWriter, r *http.Request) {
	repair, err := h.service.GetRepair(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, repair)
}

// ListRepairs handles GET /api/v1/repairs.
func (h *HTTPHandler) ListRepairs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.ListFilter{}

	if v := q.Get("status"); v != "" {
		status := repository.RepairStatus(v)
		if !status.Valid() {
			h.writeError(w, errors.InvalidInput("status", "unknown repair status"))
			return
		}
		filter.Status = &status
	}
	if v := q.Get("approval_status"); v != "" {
		approval := repository.ApprovalStatus(v)
		filter.ApprovalStatus = &approval
	}
	if v := q.Get("reported_by"); v != "" {
		filter.ReportedBy = &v
	}
	if v := q.Get("assigned_to"); v != "" {
		filter.AssignedTo = &v
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.writeError(w, errors.InvalidInput("from", "invalid timestamp, expected RFC 3339"))
			return
		}
		filter.From = &t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.writeError(w, errors.InvalidInput("to", "invalid timestamp, expected RFC 3339"))
			return
		}
		filter.To = &t
	}

	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(q.Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 50
	}
	filter.Limit = pageSize
	filter.Offset = (page - 1) * pageSize

	repairs, total, err := h.service.ListRepairs(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"repairs":  repairs,
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
	})
}

// EditRepair handles PUT /api/v1/repairs/{id}.
func (h *HTTPHandler) EditRepair(w http.ResponseWriter, r *http.Request) {
	var req service.EditRepairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.New(errors.ErrCodeValidation, "invalid request body"))
		return
	}
	req.RepairID = chi.URLParam(r, "id")

	repair, err := h.service.EditRepair(r.Context(), &req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, repair)
}

// DeleteRepair handles DELETE /api/v1/repairs/{id}.
func (h *HTTPHandler) DeleteRepair(w http.ResponseWriter, r *http.Request) {
	req := service.DeleteRepairRequest{
		RepairID: chi.URLParam(r, "id"),
		ActedBy:  r.URL.Query().Get("acted_by"),
	}

	if err := h.service.DeleteRepair(r.Context(), &req); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ApproveRepair handles POST /api/v1/repairs/{id}/approve.
func (h *HTTPHandler) ApproveRepair(w http.ResponseWriter, r *http.Request) {
	var req service.ApproveRepairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.New(errors.ErrCodeValidation, "invalid request body"))
		return
	}
	req.RepairID = chi.URLParam(r, "id")

	repair, err := h.service.ApproveRepair(r.Context(), &req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, repair)
}

// AssignItems handles POST /api/v1/repairs/{id}/assign.
func (h *HTTPHandler) AssignItems(w http.ResponseWriter, r *http.Request) {
	var req service.AssignItemsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.New(errors.ErrCodeValidation, "invalid request body"))
		return
	}
	req.RepairID = chi.URLParam(r, "id")

	repair, err := h.service.AssignItems(r.Context(), &req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, repair)
}

// UpdateItemStatus handles POST /api/v1/repairs/{id}/status.
func (h *HTTPHandler) UpdateItemStatus(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateItemStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.New(errors.ErrCodeValidation, "invalid request body"))
		return
	}
	req.RepairID = chi.URLParam(r, "id")

	repair, err := h.service.UpdateItemStatus(r.Context(), &req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, repair)
}

// GetAuditTrail handles GET /api/v1/repairs/{id}/audit.
func (h *HTTPHandler) GetAuditTrail(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.GetAuditTrail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// ListAssignableItems handles GET /api/v1/assignable-items.
func (h *HTTPHandler) ListAssignableItems(w http.ResponseWriter, r *http.Request) {
	actorID := r.URL.Query().Get("actor_id")
	if actorID == "" {
		h.writeError(w, errors.InvalidInput("actor_id", "actor is required"))
		return
	}

	items, err := h.service.ListAssignableItems(r.Context(), actorID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// ── Response helpers ─────────────────────────────────────────────────────────

type errorBody struct {
	Code    errors.Code       `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// writeError maps the error taxonomy onto HTTP statuses. Validation (400) and
// forbidden transition (412) stay distinguishable so clients can tell "fix my
// input" from "this repair's state already moved on".
func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	status := errors.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("request failed")
	}

	body := errorBody{
		Code:    errors.CodeOf(err),
		Message: err.Error(),
		Fields:  errors.FieldsOf(err),
	}
	h.writeJSON(w, status, map[string]any{"error": body})
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error().Err(err).Msg("failed to encode response")
	}
}
