package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"example.com/matchday/internal/domain"
)

func rosterRef(r *http.Request, kind domain.RosterKind) domain.RosterRef {
	return domain.RosterRef{Kind: kind, ID: chi.URLParam(r, "id")}
}

func (h *Handler) stats(kind domain.RosterKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := h.service.Stats(r.Context(), rosterRef(r, kind))
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toStatsView(stats))
	}
}

func (h *Handler) participants(kind domain.RosterKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		participants, err := h.service.Participants(r.Context(), rosterRef(r, kind))
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		views := make([]ParticipantView, 0, len(participants))
		for _, p := range participants {
			views = append(views, ParticipantView{UserID: p.UserID, Status: string(p.Status), JoinedAt: p.JoinedAt})
		}
		writeJSON(w, http.StatusOK, views)
	}
}

func (h *Handler) join(kind domain.RosterKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := h.service.Join(r.Context(), rosterRef(r, kind), actorFrom(r).UserID)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toParticipationResponse(res))
	}
}

func (h *Handler) leave(kind domain.RosterKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := h.service.Leave(r.Context(), rosterRef(r, kind), actorFrom(r).UserID)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toStatsView(stats))
	}
}
