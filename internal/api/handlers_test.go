package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"example.com/matchday/internal/auth"
	"example.com/matchday/internal/domain"
	"example.com/matchday/internal/persistence/memory"
)

var (
	testAuth = auth.Config{Secret: "api-secret", Issuer: "matchday-test"}
	// Monday noon; the activity fixtures recur on Tuesdays.
	testNow = time.Date(2025, time.March, 3, 12, 0, 0, 0, time.UTC)
)

func newTestRouter(t *testing.T, mutate func(*Config)) http.Handler {
	t.Helper()
	clock := func() time.Time { return testNow }
	svc := domain.NewService(memory.NewStore(), domain.WithClock(clock), domain.WithLocation(time.UTC))
	cfg := Config{
		Auth:             testAuth,
		CompletionBuffer: time.Hour,
		Retention:        domain.RetentionPolicy{EmptySessionRetention: 24 * time.Hour, ParticipantRetention: 30 * 24 * time.Hour},
		Now:              clock,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewHandler(svc, cfg).Router()
}

func token(t *testing.T, subject string, admin bool) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": subject,
		"iss": testAuth.Issuer,
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	if admin {
		claims["role"] = auth.RoleAdmin
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testAuth.Secret))
	require.NoError(t, err)
	return signed
}

func do(t *testing.T, h http.Handler, method, path, bearer string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst))
}

func activityPayload(name string) CreateActivityRequest {
	return CreateActivityRequest{
		Name:          name,
		Sport:         "football",
		MinPlayers:    2,
		MaxPlayers:    2,
		IsPublic:      true,
		RecurringDays: []string{"tuesday"},
		StartTime:     "18:00",
		EndTime:       "19:30",
	}
}

// createSession creates an activity owned by owner and generates one session.
func createSession(t *testing.T, h http.Handler, owner string) (ActivityView, SessionView) {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/v1/activities", token(t, owner, false), activityPayload("Tuesday Football"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var activity ActivityView
	decodeBody(t, rec, &activity)

	rec = do(t, h, http.MethodPost, "/v1/activities/"+activity.ID+"/sessions/generate", token(t, owner, false), GenerateRequest{WeeksAhead: 1})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/v1/activities/"+activity.ID+"/sessions", token(t, owner, false), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var sessions []SessionView
	decodeBody(t, rec, &sessions)
	require.Len(t, sessions, 1)
	return activity, sessions[0]
}

func TestHealthzAndMetricsSkipAuth(t *testing.T) {
	h := newTestRouter(t, nil)

	rec := do(t, h, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
	require.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec = do(t, h, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestV1RequiresBearerToken(t *testing.T) {
	h := newTestRouter(t, nil)

	rec := do(t, h, http.MethodGet, "/v1/activities", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
	var body ErrorResponse
	decodeBody(t, rec, &body)
	require.Equal(t, "unauthorized", body.Type)

	rec = do(t, h, http.MethodGet, "/v1/activities", "not-a-jwt", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateActivityValidation(t *testing.T) {
	h := newTestRouter(t, nil)
	bad := activityPayload("")
	bad.MaxPlayers = 1
	bad.RecurringDays = []string{"funday"}
	bad.StartTime = "25:00"

	rec := do(t, h, http.MethodPost, "/v1/activities", token(t, "owner", false), bad)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body ErrorResponse
	decodeBody(t, rec, &body)
	require.Equal(t, "validation_failed", body.Type)

	fields := make(map[string]bool)
	for _, f := range body.Fields {
		fields[f.Field] = true
	}
	require.True(t, fields["name"])
	require.True(t, fields["max_players"])
	require.True(t, fields["start_time"])

	rec = do(t, h, http.MethodGet, "/v1/activities/missing", token(t, "owner", false), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGenerateRequiresOwnerOrAdmin(t *testing.T) {
	h := newTestRouter(t, nil)
	rec := do(t, h, http.MethodPost, "/v1/activities", token(t, "owner", false), activityPayload("Volley night"))
	require.Equal(t, http.StatusCreated, rec.Code)
	var activity ActivityView
	decodeBody(t, rec, &activity)
	require.Equal(t, "owner", activity.CreatedBy)
	require.Equal(t, "weekly", activity.RecurringType)
	require.Equal(t, []string{"tuesday"}, activity.RecurringDays)

	path := "/v1/activities/" + activity.ID + "/sessions/generate"
	rec = do(t, h, http.MethodPost, path, token(t, "stranger", false), GenerateRequest{WeeksAhead: 2})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, http.MethodPost, path, token(t, "owner", false), GenerateRequest{WeeksAhead: 9})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, path, token(t, "owner", false), GenerateRequest{WeeksAhead: 2})
	require.Equal(t, http.StatusOK, rec.Code)
	var report GenerationResponse
	decodeBody(t, rec, &report)
	require.Equal(t, 2, report.Created)
	require.Empty(t, report.Failures)

	rec = do(t, h, http.MethodPost, "/v1/admin/sessions/generate", token(t, "root", true), GenerateRequest{WeeksAhead: 2})
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &report)
	require.Equal(t, 0, report.Created)
	require.Equal(t, 1, report.Activities)
}

func TestGenerateDefaultsToTwoWeeks(t *testing.T) {
	h := newTestRouter(t, nil)
	owner := token(t, "owner", false)
	rec := do(t, h, http.MethodPost, "/v1/activities", owner, activityPayload("Tuesday Football"))
	require.Equal(t, http.StatusCreated, rec.Code)
	var activity ActivityView
	decodeBody(t, rec, &activity)

	rec = do(t, h, http.MethodPost, "/v1/activities/"+activity.ID+"/sessions/generate", owner, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report GenerationResponse
	decodeBody(t, rec, &report)
	// Tuesdays 4 and 11 March fall inside the two-week window from Monday 3 March.
	require.Equal(t, 2, report.Created)

	rec = do(t, h, http.MethodPost, "/v1/admin/sessions/generate", token(t, "root", true), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &report)
	require.Equal(t, 0, report.Created)
}

func TestSessionJoinLeaveFlow(t *testing.T) {
	h := newTestRouter(t, nil)
	_, session := createSession(t, h, "owner")
	base := "/v1/sessions/" + session.ID

	for _, user := range []string{"u1", "u2", "u3"} {
		rec := do(t, h, http.MethodPost, base+"/participants", token(t, user, false), nil)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := do(t, h, http.MethodPost, base+"/participants", token(t, "u1", false), nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	var errBody ErrorResponse
	decodeBody(t, rec, &errBody)
	require.Equal(t, "already_joined", errBody.Type)

	rec = do(t, h, http.MethodGet, base+"/stats", token(t, "u1", false), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats StatsView
	decodeBody(t, rec, &stats)
	require.Equal(t, StatsView{ConfirmedCount: 2, WaitingCount: 1, TotalCount: 3, MaxPlayers: 2}, stats)

	rec = do(t, h, http.MethodDelete, base+"/participants/me", token(t, "u1", false), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, base+"/participants", token(t, "u2", false), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var participants []ParticipantView
	decodeBody(t, rec, &participants)
	require.Len(t, participants, 2)
	require.Equal(t, "u3", participants[1].UserID)
	require.Equal(t, "confirmed", participants[1].Status)

	rec = do(t, h, http.MethodDelete, base+"/participants/me", token(t, "u1", false), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/v1/sessions/missing/stats", token(t, "u1", false), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelSession(t *testing.T) {
	h := newTestRouter(t, nil)
	_, session := createSession(t, h, "owner")
	base := "/v1/sessions/" + session.ID

	rec := do(t, h, http.MethodPost, base+"/cancel", token(t, "stranger", false), nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, http.MethodPost, base+"/cancel", token(t, "owner", false), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view SessionView
	decodeBody(t, rec, &view)
	require.True(t, view.IsCancelled)

	rec = do(t, h, http.MethodPost, base+"/participants", token(t, "u1", false), nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAdminRosterRoutes(t *testing.T) {
	h := newTestRouter(t, nil)
	_, session := createSession(t, h, "owner")
	admin := token(t, "root", true)
	base := "/v1/admin/sessions/" + session.ID

	rec := do(t, h, http.MethodPost, base+"/participants", token(t, "owner", false), ForceJoinRequest{UserID: "u9"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	for _, user := range []string{"u1", "u2", "u3"} {
		rec = do(t, h, http.MethodPost, base+"/participants", admin, ForceJoinRequest{UserID: user, Status: "confirmed"})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	var res ParticipationResponse
	decodeBody(t, rec, &res)
	require.Equal(t, 3, res.Stats.ConfirmedCount)

	rec = do(t, h, http.MethodPost, base+"/replace", admin, ReplaceRequest{FromUserID: "u1", ToUserID: "u1"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, base+"/replace", admin, ReplaceRequest{FromUserID: "u1", ToUserID: "u7"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decodeBody(t, rec, &res)
	require.Equal(t, "u7", res.Participant.UserID)
	require.Equal(t, "confirmed", res.Participant.Status)

	rec = do(t, h, http.MethodDelete, base+"/participants/u2", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats StatsView
	decodeBody(t, rec, &stats)
	require.Equal(t, 2, stats.ConfirmedCount)

	rec = do(t, h, http.MethodDelete, base+"/participants/nobody", admin, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMatchFillsUp(t *testing.T) {
	h := newTestRouter(t, nil)
	rec := do(t, h, http.MethodPost, "/v1/matches", token(t, "owner", false), CreateMatchRequest{
		Title:           "Five-a-side",
		Sport:           "football",
		Date:            testNow.Add(2 * time.Hour),
		DurationMinutes: 60,
		MaxPlayers:      1,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var match MatchView
	decodeBody(t, rec, &match)
	require.Equal(t, "open", match.Status)
	base := "/v1/matches/" + match.ID

	rec = do(t, h, http.MethodPost, base+"/participants", token(t, "u1", false), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = do(t, h, http.MethodPost, base+"/participants", token(t, "u2", false), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var res ParticipationResponse
	decodeBody(t, rec, &res)
	require.Equal(t, "waiting", res.Participant.Status)

	rec = do(t, h, http.MethodGet, base, token(t, "u1", false), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &match)
	require.Equal(t, "full", match.Status)
}

func TestSubscriptions(t *testing.T) {
	h := newTestRouter(t, nil)
	activity, session := createSession(t, h, "owner")
	user := token(t, "u1", false)
	path := "/v1/activities/" + activity.ID + "/subscription"

	rec := do(t, h, http.MethodPut, path, user, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = do(t, h, http.MethodPut, path, user, nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodGet, "/v1/me/subscriptions", user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var subs []SubscriptionView
	decodeBody(t, rec, &subs)
	require.Len(t, subs, 1)
	require.Equal(t, activity.ID, subs[0].ActivityID)

	rec = do(t, h, http.MethodPost, "/v1/sessions/"+session.ID+"/participants", user, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h, http.MethodDelete, path, user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var res UnsubscribeResponse
	decodeBody(t, rec, &res)
	require.Equal(t, UnsubscribeResponse{Removed: true, ParticipationsRemoved: 1}, res)

	rec = do(t, h, http.MethodDelete, path, user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &res)
	require.False(t, res.Removed)
}

func TestListActivitiesPaginates(t *testing.T) {
	h := newTestRouter(t, nil)
	user := token(t, "owner", false)
	for _, name := range []string{"one", "two", "three"} {
		rec := do(t, h, http.MethodPost, "/v1/activities", user, activityPayload(name))
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := do(t, h, http.MethodGet, "/v1/activities?limit=2", user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var first ListActivitiesResponse
	decodeBody(t, rec, &first)
	require.Len(t, first.Items, 2)
	require.NotEmpty(t, first.NextCursor)

	rec = do(t, h, http.MethodGet, "/v1/activities?limit=2&cursor="+first.NextCursor, user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var second ListActivitiesResponse
	decodeBody(t, rec, &second)
	require.Len(t, second.Items, 1)
	require.Empty(t, second.NextCursor)
	for _, a := range first.Items {
		require.NotEqual(t, a.ID, second.Items[0].ID)
	}

	rec = do(t, h, http.MethodGet, "/v1/activities?cursor=not*base64", user, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodGet, "/v1/activities?limit=-1", user, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMaintenanceEndpoints(t *testing.T) {
	h := newTestRouter(t, nil)
	createSession(t, h, "owner")
	admin := token(t, "root", true)

	rec := do(t, h, http.MethodPost, "/v1/admin/maintenance/complete", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var completed map[string]int
	decodeBody(t, rec, &completed)
	require.Equal(t, 0, completed["completed"])

	rec = do(t, h, http.MethodPost, "/v1/admin/maintenance/cleanup", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/v1/admin/maintenance/cleanup", token(t, "owner", false), nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRateLimitIsPerRouter(t *testing.T) {
	limited := func(cfg *Config) {
		cfg.RateLimitRequests = 2
		cfg.RateLimitWindow = time.Minute
	}
	first := newTestRouter(t, limited)
	second := newTestRouter(t, limited)
	user := token(t, "u1", false)

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, do(t, first, http.MethodGet, "/v1/activities", user, nil).Code)
	}
	rec := do(t, first, http.MethodGet, "/v1/activities", user, nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	var body ErrorResponse
	decodeBody(t, rec, &body)
	require.Equal(t, "rate_limited", body.Type)

	require.Equal(t, http.StatusOK, do(t, second, http.MethodGet, "/v1/activities", user, nil).Code)
}
