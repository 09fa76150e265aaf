package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"example.com/matchday/internal/domain"
	"example.com/matchday/internal/persistence"
)

func (h *Handler) createActivity(w http.ResponseWriter, r *http.Request) {
	var req CreateActivityRequest
	if !decode(w, r, &req) {
		return
	}
	input, err := req.input(actorFrom(r).UserID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	activity, err := h.service.CreateActivity(r.Context(), input)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toActivityView(*activity))
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_cursor", err.Error())
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	activities, next, err := h.service.ListPublicActivities(r.Context(), cursor, limit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	resp := ListActivitiesResponse{Items: make([]ActivityView, 0, len(activities)), NextCursor: persistence.EncodeCursor(next)}
	for _, a := range activities {
		resp.Items = append(resp.Items, toActivityView(a))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getActivity(w http.ResponseWriter, r *http.Request) {
	activity, err := h.service.GetActivity(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityView(*activity))
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	from := h.cfg.Now()
	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "from must be an RFC 3339 timestamp")
			return
		}
		from = parsed
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	sessions, err := h.service.ListSessions(r.Context(), chi.URLParam(r, "id"), from, limit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	views := make([]SessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, toSessionView(s))
	}
	writeJSON(w, http.StatusOK, views)
}

// generateForActivity is open to the activity owner as well as admins.
func (h *Handler) generateForActivity(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if !decode(w, r, &req) {
		return
	}
	activityID := chi.URLParam(r, "id")
	activity, err := h.service.GetActivity(r.Context(), activityID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if !activity.ManageableBy(actorFrom(r)) {
		writeDomainError(w, r, fmt.Errorf("generate sessions for %s: %w", activityID, domain.ErrForbidden))
		return
	}
	h.generate(w, r, activityID, req)
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request, activityID string, req GenerateRequest) {
	weeks := req.WeeksAhead
	if weeks == 0 {
		weeks = h.cfg.DefaultWeeksAhead
	}
	report, err := h.service.GenerateUpcomingSessions(r.Context(), activityID, weeks)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toGenerationResponse(report))
}

func (h *Handler) subscribe(w http.ResponseWriter, r *http.Request) {
	sub, err := h.service.Subscribe(r.Context(), chi.URLParam(r, "id"), actorFrom(r).UserID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, SubscriptionView{ActivityID: sub.ActivityID, UserID: sub.UserID, CreatedAt: sub.CreatedAt})
}

func (h *Handler) unsubscribe(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Unsubscribe(r.Context(), chi.URLParam(r, "id"), actorFrom(r).UserID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, UnsubscribeResponse(res))
}

func (h *Handler) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.service.ListSubscriptions(r.Context(), actorFrom(r).UserID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	views := make([]SubscriptionView, 0, len(subs))
	for _, s := range subs {
		views = append(views, SubscriptionView{ActivityID: s.ActivityID, UserID: s.UserID, CreatedAt: s.CreatedAt})
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionView(*session))
}

func (h *Handler) cancelSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.CancelSession(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionView(*session))
}

func (h *Handler) createMatch(w http.ResponseWriter, r *http.Request) {
	var req CreateMatchRequest
	if !decode(w, r, &req) {
		return
	}
	match, err := h.service.CreateMatch(r.Context(), domain.CreateMatchInput{
		Title:           req.Title,
		Sport:           domain.Sport(req.Sport),
		Date:            req.Date,
		DurationMinutes: req.DurationMinutes,
		MaxPlayers:      req.MaxPlayers,
		CreatedBy:       actorFrom(r).UserID,
		Location:        req.Location,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMatchView(*match))
}

func (h *Handler) getMatch(w http.ResponseWriter, r *http.Request) {
	match, err := h.service.GetMatch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMatchView(*match))
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a non-negative integer")
		return 0, false
	}
	return limit, true
}
