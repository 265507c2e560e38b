// Package httptransport is the admin API for moderation tooling. It is a
// thin layer over the punishment service: parse, delegate, translate errors.
package httptransport

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"netban/internal/adapter"
	"netban/internal/platform/middleware"
	"netban/internal/punish/models"
	"netban/internal/punish/service"
	"netban/pkg/domain"
	"netban/pkg/platform/sentinel"
	"netban/pkg/timeparse"
)

type Handler struct {
	svc    *service.Service
	gate   *adapter.Gate
	logger *slog.Logger
}

func NewHandler(svc *service.Service, gate *adapter.Gate, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, gate: gate, logger: logger}
}

type issueRequest struct {
	Subject  string `json:"subject"`
	Kind     string `json:"kind"`
	Scope    string `json:"scope"`
	ServerID string `json:"serverId,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Duration string `json:"duration,omitempty"`
}

type liftRequest struct {
	Subject string `json:"subject"`
	Kind    string `json:"kind"`
}

type activeResponse struct {
	Active []*models.Punishment `json:"active"`
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	subject, err := domain.ParseSubjectKey(req.Subject)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	kind, err := models.ParseKind(req.Kind)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	scope := models.ScopeGlobal
	if req.Scope != "" {
		if scope, err = models.ParseScope(req.Scope); err != nil {
			writeBadRequest(w, err.Error())
			return
		}
	}

	now := time.Now()
	expiresAt, err := timeparse.ExpiryFrom(now, req.Duration)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	p := &models.Punishment{
		Subject:   subject,
		Kind:      kind,
		Scope:     scope,
		ServerID:  req.ServerID,
		Reason:    req.Reason,
		IssuedBy:  operatorFrom(r),
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	}

	stored, err := h.svc.Issue(r.Context(), p)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

func (h *Handler) handleLift(w http.ResponseWriter, r *http.Request) {
	var req liftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	subject, err := domain.ParseSubjectKey(req.Subject)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	kind, err := models.ParseKind(req.Kind)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if err := h.svc.Lift(r.Context(), subject, kind, operatorFrom(r)); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	subject, err := domain.ParseSubjectKey(chi.URLParam(r, "subject"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	view, err := h.svc.CheckActive(r.Context(), subject)
	if err != nil {
		h.writeError(w, err)
		return
	}
	resp := activeResponse{Active: view.Records}
	if resp.Active == nil {
		resp.Active = []*models.Punishment{}
	}
	writeJSON(w, http.StatusOK, resp)
}

type joinCheckResponse struct {
	Allowed  bool   `json:"allowed"`
	Message  string `json:"message,omitempty"`
	Degraded bool   `json:"degraded,omitempty"`
}

// handleJoinCheck is the hook proxies without an embedded core call on every
// connection attempt. It applies the deployment's fail-open/fail-closed
// policy, so it answers 200 even when the store is down.
func (h *Handler) handleJoinCheck(w http.ResponseWriter, r *http.Request) {
	subject, err := domain.ParseSubjectKey(chi.URLParam(r, "subject"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	d := h.gate.CheckJoin(r.Context(), subject, r.URL.Query().Get("server"))
	writeJSON(w, http.StatusOK, joinCheckResponse{
		Allowed:  d.Allowed,
		Message:  d.Message,
		Degraded: d.Degraded,
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// operatorFrom builds the issuing operator from the authenticated token,
// falling back to console for unauthenticated paths (tests, local runs).
func operatorFrom(r *http.Request) domain.Operator {
	claims, ok := middleware.OperatorFromContext(r.Context())
	if !ok {
		return domain.Console
	}
	op := domain.Operator{Name: claims.OperatorName}
	if id, err := uuid.Parse(claims.OperatorID); err == nil {
		op.ID = id
	}
	if op.Name == "" {
		op.Name = claims.OperatorID
	}
	return op
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sentinel.ErrStoreUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errBody("store_unavailable"))
	case errors.Is(err, sentinel.ErrConflict):
		writeJSON(w, http.StatusConflict, errBody("conflict"))
	default:
		h.logger.Error("admin request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errBody("internal"))
	}
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "detail": msg})
}

func errBody(code string) map[string]string {
	return map[string]string{"error": code}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
