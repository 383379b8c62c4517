package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quizhub/quizhub/internal/app/progression"
	"github.com/quizhub/quizhub/internal/domain"
	"github.com/quizhub/quizhub/internal/health"
	"github.com/quizhub/quizhub/internal/infra/sqlite"
)

// fixedNow is 2026-03-10 09:00 UTC.
var fixedNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, policy progression.Policy) (*Server, *sqlite.DB) {
	t.Helper()
	dir := t.TempDir()
	db, err := sqlite.Open(dir)
	if err != nil {
		t.Fatalf("Open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	tracker := progression.NewTracker(policy, zap.NewNop())
	svc := progression.NewService(db, tracker, progression.DefaultLadder(), zap.NewNop(), 3)

	srv := NewServer(svc, time.UTC, zap.NewNop())
	srv.SetHealth(health.NewChecker(zap.NewNop(), health.StorageChecks(db, dir)...))
	srv.now = func() time.Time { return fixedNow }
	return srv, db
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v), "body: %s", w.Body.String())
	return v
}

type errorBody struct {
	Error apiError `json:"error"`
}

// ─── Health Check ───────────────────────────────────────────────────────────

func TestAPI_Health(t *testing.T) {
	srv, _ := newTestServer(t, progression.DefaultPolicy())

	w := do(t, srv, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]interface{}](t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Len(t, body["checks"], 2)
}

func TestAPI_Health_StorageDown(t *testing.T) {
	srv, db := newTestServer(t, progression.DefaultPolicy())
	require.NoError(t, db.Close())

	w := do(t, srv, "GET", "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAPI_Metrics(t *testing.T) {
	srv, _ := newTestServer(t, progression.DefaultPolicy())

	assert.Equal(t, http.StatusNotFound, do(t, srv, "GET", "/metrics", "").Code)

	srv.EnableMetrics()
	do(t, srv, "GET", "/health", "")
	w := do(t, srv, "GET", "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "quizhub_http_request_duration_seconds")
}

func TestAPI_CORS(t *testing.T) {
	srv, _ := newTestServer(t, progression.DefaultPolicy())
	srv.SetCORSOrigins([]string{"https://quiz.example"})

	req := httptest.NewRequest("OPTIONS", "/api/titles", nil)
	req.Header.Set("Origin", "https://quiz.example")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://quiz.example", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest("GET", "/api/titles", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

// ─── Titles ─────────────────────────────────────────────────────────────────

func TestAPI_Titles(t *testing.T) {
	srv, _ := newTestServer(t, progression.DefaultPolicy())

	w := do(t, srv, "GET", "/api/titles", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode[map[string][]domain.TitleRank](t, w)
	require.Len(t, body["titles"], 7)
	assert.Equal(t, "Nowicjusz", body["titles"][0].Title)
	assert.Equal(t, "Legenda", body["titles"][6].Title)
}

func TestAPI_TitleLookup(t *testing.T) {
	srv, _ := newTestServer(t, progression.DefaultPolicy())

	w := do(t, srv, "GET", "/api/titles/lookup?xp=450", "")
	require.Equal(t, http.StatusOK, w.Code)

	st := decode[domain.TitleStatus](t, w)
	assert.Equal(t, "Ambitny", st.Current.Title)
	require.NotNil(t, st.Next)
	assert.Equal(t, "Czeladnik", st.Next.Title)
	assert.Equal(t, int64(350), st.Next.XPNeeded)

	w = do(t, srv, "GET", "/api/titles/lookup?xp=99999", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, decode[domain.TitleStatus](t, w).Next)

	w = do(t, srv, "GET", "/api/titles/lookup?xp=lots", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// ─── Streaks ────────────────────────────────────────────────────────────────

func TestAPI_StreakLifecycle(t *testing.T) {
	srv, _ := newTestServer(t, progression.DefaultPolicy())

	w := do(t, srv, "GET", "/api/users/u1/streak", "")
	require.Equal(t, http.StatusOK, w.Code)
	v := decode[domain.StreakView](t, w)
	assert.Equal(t, domain.StreakNone, v.Status)
	assert.True(t, v.Today.Equal(domain.NewDate(2026, 3, 10)), "defaults to today")

	w = do(t, srv, "POST", "/api/users/u1/streak/complete", `{"date":"2026-03-07"}`)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[progression.CompletionResult](t, w)
	assert.Equal(t, progression.OutcomeStarted, res.Outcome)

	w = do(t, srv, "POST", "/api/users/u1/streak/complete", `{"date":"2026-03-08"}`)
	require.Equal(t, http.StatusOK, w.Code)
	res = decode[progression.CompletionResult](t, w)
	assert.Equal(t, 2, res.Streak.CurrentStreak)

	// Missed the 9th; on the 10th it is at risk.
	w = do(t, srv, "GET", "/api/users/u1/streak?date=2026-03-10", "")
	require.Equal(t, http.StatusOK, w.Code)
	v = decode[domain.StreakView](t, w)
	assert.Equal(t, domain.StreakAtRisk, v.Status)
	assert.True(t, v.CanUseFreeze)

	// Empty body means today.
	w = do(t, srv, "POST", "/api/users/u1/streak/freeze", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	v = decode[domain.StreakView](t, w)
	assert.Equal(t, domain.StreakActive, v.Status)
	assert.Equal(t, 1, v.FreezesRemaining)

	w = do(t, srv, "POST", "/api/users/u1/streak/complete", "{}")
	require.Equal(t, http.StatusOK, w.Code)
	res = decode[progression.CompletionResult](t, w)
	assert.Equal(t, progression.OutcomeBridged, res.Outcome)
	assert.Equal(t, 3, res.Streak.CurrentStreak)
	assert.True(t, res.Streak.HasCompletedToday)
}

func TestAPI_CompletionDays(t *testing.T) {
	srv, _ := newTestServer(t, progression.DefaultPolicy())

	w := do(t, srv, "GET", "/api/users/u1/streak/days", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"days":[],"total":0}`, w.Body.String())

	for _, day := range []string{"2026-03-08", "2026-03-05", "2026-03-10", "2026-03-10"} {
		w = do(t, srv, "POST", "/api/users/u1/streak/complete", `{"date":"`+day+`"}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	// 03-05 is stale after 03-08, and 03-10 is recorded once.
	w = do(t, srv, "GET", "/api/users/u1/streak/days", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"days":["2026-03-08","2026-03-10"],"total":2}`, w.Body.String())

	w = do(t, srv, "GET", "/api/users/u1/streak", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, decode[domain.StreakView](t, w).TotalQuizDays)
}

func TestAPI_FreezeRefused(t *testing.T) {
	srv, _ := newTestServer(t, progression.DefaultPolicy())

	w := do(t, srv, "POST", "/api/users/u1/streak/freeze", "")
	require.Equal(t, http.StatusConflict, w.Code)
	body := decode[errorBody](t, w)
	assert.Equal(t, "invalid_freeze_use", body.Error.Type)
	assert.Equal(t, string(domain.FreezeNoStreak), body.Error.Reason)

	do(t, srv, "POST", "/api/users/u1/streak/complete", `{"date":"2026-03-09"}`)
	w = do(t, srv, "POST", "/api/users/u1/streak/freeze", "")
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, string(domain.FreezeNoGap), decode[errorBody](t, w).Error.Reason)
}

func TestAPI_BadInput(t *testing.T) {
	srv, _ := newTestServer(t, progression.DefaultPolicy())
	longID := strings.Repeat("x", 129)

	tests := []struct {
		name, method, path, body string
	}{
		{"bad query date", "GET", "/api/users/u1/streak?date=2026-13-40", ""},
		{"bad body date", "POST", "/api/users/u1/streak/complete", `{"date":"tomorrow"}`},
		{"bad json", "POST", "/api/users/u1/streak/freeze", `{"date":`},
		{"long user id", "GET", "/api/users/" + longID + "/streak", ""},
		{"zero xp", "POST", "/api/users/u1/xp", `{"amount":0}`},
		{"unknown source", "POST", "/api/users/u1/xp", `{"amount":5,"source":"bribe"}`},
		{"xp bad json", "POST", "/api/users/u1/xp", `nope`},
		{"bad limit", "GET", "/api/users/u1/xp/events?limit=0", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, srv, tt.method, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Equal(t, "invalid_request", decode[errorBody](t, w).Error.Type)
		})
	}
}

func TestAPI_StrictMalformedState(t *testing.T) {
	srv, db := newTestServer(t, progression.Policy{MaxFreezes: 2, Strict: true})

	_, err := db.SaveStreak(context.Background(), "u1", domain.StreakState{
		CurrentStreak:  5,
		LongestStreak:  2,
		LastCompletion: domain.NewDate(2026, 3, 9),
	}, 0)
	require.NoError(t, err)

	w := do(t, srv, "GET", "/api/users/u1/streak", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "malformed_state", decode[errorBody](t, w).Error.Type)
}

func TestAPI_StorageFailureIsInternal(t *testing.T) {
	srv, db := newTestServer(t, progression.DefaultPolicy())
	require.NoError(t, db.Close())

	w := do(t, srv, "GET", "/api/users/u1/streak", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode[errorBody](t, w)
	assert.Equal(t, "internal_error", body.Error.Type)
	assert.NotContains(t, body.Error.Message, "sql", "storage details stay in the log")
}

// ─── XP ─────────────────────────────────────────────────────────────────────

func TestAPI_AwardXP(t *testing.T) {
	srv, _ := newTestServer(t, progression.DefaultPolicy())

	w := do(t, srv, "POST", "/api/users/u1/xp", `{"amount":120,"source":"quiz_completed"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	award := decode[domain.XPAward](t, w)
	assert.True(t, award.RankedUp)
	assert.Equal(t, "Ambitny", award.Title.Current.Title)
	assert.Equal(t, int64(120), award.Title.TotalXP)

	do(t, srv, "POST", "/api/users/u1/xp", `{"amount":30}`)

	w = do(t, srv, "GET", "/api/users/u1/title", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(150), decode[domain.TitleStatus](t, w).TotalXP)

	w = do(t, srv, "GET", "/api/users/u1/xp/events?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	events := decode[map[string][]domain.XPEvent](t, w)["events"]
	require.Len(t, events, 1)
	assert.Equal(t, domain.XPManual, events[0].Source)
}

func TestAPI_XPEvents_EmptyIsArray(t *testing.T) {
	srv, _ := newTestServer(t, progression.DefaultPolicy())

	w := do(t, srv, "GET", "/api/users/nobody/xp/events", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"events":[]}`, w.Body.String())
}
