package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/warstack/warroom-engine/internal/services"
	"github.com/warstack/warroom-engine/internal/store"
)

// Handler maps HTTP routes onto the war room service.
type Handler struct {
	logger *slog.Logger
	svc    *services.WarRoomService
}

// NewHandler constructs the HTTP handler set.
func NewHandler(logger *slog.Logger, svc *services.WarRoomService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, svc: svc}
}

// Routes returns the routed mux for the JSON API.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.health)

	mux.HandleFunc("POST /api/v1/incidents", h.createIncident)
	mux.HandleFunc("GET /api/v1/incidents", h.listIncidents)
	mux.HandleFunc("GET /api/v1/incidents/{id}", h.getIncident)

	mux.HandleFunc("POST /api/v1/incidents/{id}/message", h.postMessage)
	mux.HandleFunc("GET /api/v1/incidents/{id}/threads/{thread}/messages", h.getMessages)
	mux.HandleFunc("GET /api/v1/incidents/{id}/findings", h.getFindings)
	mux.HandleFunc("GET /api/v1/incidents/{id}/timeline", h.getTimeline)

	mux.HandleFunc("POST /api/v1/incidents/{id}/analyze", h.analyze)
	mux.HandleFunc("PATCH /api/v1/incidents/{id}/actions/{actionID}", h.updateAction)
	mux.HandleFunc("POST /api/v1/incidents/{id}/resolve", h.resolve)
	mux.HandleFunc("POST /api/v1/incidents/{id}/escalate", h.escalate)

	mux.HandleFunc("GET /api/v1/incidents/{id}/summary", h.summary)
	mux.HandleFunc("GET /api/v1/incidents/{id}/stats", h.stats)

	return mux
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) createIncident(w http.ResponseWriter, r *http.Request) {
	var req services.CreateIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	inc, err := h.svc.CreateIncident(r.Context(), req)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, inc)
}

func (h *Handler) listIncidents(w http.ResponseWriter, r *http.Request) {
	incidents, err := h.svc.ListIncidents(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"incidents": incidents})
}

func (h *Handler) getIncident(w http.ResponseWriter, r *http.Request) {
	inc, err := h.svc.GetIncident(r.Context(), r.PathValue("id"))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, inc)
}

type postMessageRequest struct {
	Thread   string `json:"thread"`
	Engineer string `json:"engineer"`
	Content  string `json:"content"`
}

func (h *Handler) postMessage(w http.ResponseWriter, r *http.Request) {
	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	result, err := h.svc.ProcessEngineerInput(r.Context(), r.PathValue("id"), req.Thread, req.Engineer, req.Content)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, result)
}

func (h *Handler) getMessages(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	msgs, err := h.svc.GetMessages(r.Context(), r.PathValue("id"), r.PathValue("thread"), limit)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (h *Handler) getFindings(w http.ResponseWriter, r *http.Request) {
	findings, err := h.svc.GetFindings(r.Context(), r.PathValue("id"), r.URL.Query().Get("thread"))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"findings": findings})
}

func (h *Handler) getTimeline(w http.ResponseWriter, r *http.Request) {
	timeline, err := h.svc.Timeline(r.Context(), r.PathValue("id"))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"timeline": timeline})
}

func (h *Handler) analyze(w http.ResponseWriter, r *http.Request) {
	assessment, err := h.svc.RunAnalysisCycle(r.Context(), r.PathValue("id"))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, assessment)
}

type updateActionRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

func (h *Handler) updateAction(w http.ResponseWriter, r *http.Request) {
	var req updateActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	action, err := h.svc.UpdateActionStatus(r.Context(), r.PathValue("id"), r.PathValue("actionID"), req.Status, req.Notes)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, action)
}

type resolveRequest struct {
	ResolvedBy string `json:"resolved_by"`
	Note       string `json:"note"`
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if r.Body != nil {
		// Body is optional for resolve.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	inc, err := h.svc.ResolveIncident(r.Context(), r.PathValue("id"), req.ResolvedBy, req.Note)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, inc)
}

type escalateRequest struct {
	Target string `json:"target"`
	Reason string `json:"reason"`
}

func (h *Handler) escalate(w http.ResponseWriter, r *http.Request) {
	var req escalateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	inc, err := h.svc.EscalateIncident(r.Context(), r.PathValue("id"), req.Target, req.Reason)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, inc)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	text, err := h.svc.ExecutiveSummary(r.Context(), r.PathValue("id"))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"summary": text})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context(), r.PathValue("id"))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, services.ErrInvalidArgument):
		h.writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("request failed", slog.Any("error", err))
		h.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("encode response", slog.Any("error", err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}
