package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"example.com/matchday/internal/domain"
)

func (h *Handler) forceJoin(kind domain.RosterKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ForceJoinRequest
		if !decode(w, r, &req) {
			return
		}
		var desired *domain.ParticipantStatus
		if req.Status != "" {
			status := domain.ParticipantStatus(req.Status)
			desired = &status
		}
		res, err := h.service.ForceJoin(r.Context(), rosterRef(r, kind), req.UserID, desired)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toParticipationResponse(res))
	}
}

func (h *Handler) forceLeave(kind domain.RosterKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := h.service.ForceLeave(r.Context(), rosterRef(r, kind), chi.URLParam(r, "userID"))
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toStatsView(stats))
	}
}

func (h *Handler) replace(kind domain.RosterKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ReplaceRequest
		if !decode(w, r, &req) {
			return
		}
		res, err := h.service.Replace(r.Context(), rosterRef(r, kind), req.FromUserID, req.ToUserID)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toParticipationResponse(res))
	}
}

func (h *Handler) generateAll(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if !decode(w, r, &req) {
		return
	}
	h.generate(w, r, "", req)
}

func (h *Handler) completeSessions(w http.ResponseWriter, r *http.Request) {
	var req CompleteRequest
	if !decode(w, r, &req) {
		return
	}
	buffer := h.cfg.CompletionBuffer
	if req.BufferMinutes != nil {
		buffer = time.Duration(*req.BufferMinutes) * time.Minute
	}
	n, err := h.service.UpdateCompletedSessions(r.Context(), buffer)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"completed": n})
}

func (h *Handler) cleanupSessions(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.CleanupOldSessions(r.Context(), h.cfg.Retention)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CleanupResponse(report))
}
