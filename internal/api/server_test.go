package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/talgya/veramatrix/internal/agents"
	"github.com/talgya/veramatrix/internal/engine"
	"github.com/talgya/veramatrix/internal/entropy"
	"github.com/talgya/veramatrix/internal/persistence"
	"github.com/talgya/veramatrix/internal/tech"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestServer(t *testing.T, withDB bool) *Server {
	t.Helper()

	opts := engine.Options{
		Population:   5,
		Technologies: tech.FromNames([]string{"Fire", "Wheel"}),
		Start:        time.Date(2001, 3, 1, 0, 0, 0, 0, time.UTC),
		Dice:         entropy.NewSeeded(11),
		Rules:        agents.Rules{Event: 1, HealthDecay: 0.01},
		Rates:        engine.Rates{Discovery: 1},
	}
	var db *persistence.DB
	if withDB {
		var err error
		db, err = persistence.Open(filepath.Join(t.TempDir(), "api.db"))
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		opts.Recorder = db
	}

	sim, err := engine.NewSimulation(opts)
	require.NoError(t, err)
	if db != nil {
		require.NoError(t, db.StartRun(context.Background(), sim))
	}
	require.NoError(t, sim.Run(context.Background(), 3))

	return &Server{Sim: sim, Eng: engine.NewEngine(), DB: db, AdminKey: "secret"}
}

func get(t *testing.T, s *Server, path string, out any) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if out != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec
}

func TestStatus(t *testing.T) {
	s := newTestServer(t, false)

	var status map[string]any
	rec := get(t, s, "/api/v1/status", &status)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "VeraMatrix", status["name"])
	assert.EqualValues(t, 3, status["day"])
	assert.Equal(t, "2001-03-04", status["date"])
	assert.EqualValues(t, 5, status["population"])
	assert.EqualValues(t, 2, status["discovered"])
	assert.Equal(t, "0s", status["pace"])
	assert.Equal(t, false, status["running"])
}

func TestAgentsAndAgentDetail(t *testing.T) {
	s := newTestServer(t, true)

	var list []agentRow
	rec := get(t, s, "/api/v1/agents", &list)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, list, 5)

	var detail map[string]json.RawMessage
	rec = get(t, s, "/api/v1/agent/"+jsonNumber(list[0].ID), &detail)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, detail, "agent")
	assert.Contains(t, detail, "summary")

	var events []persistence.LifeEventRow
	require.NoError(t, json.Unmarshal(detail["life_events"], &events))
	assert.Len(t, events, 3)

	assert.Equal(t, http.StatusNotFound, get(t, s, "/api/v1/agent/9999", nil).Code)
	assert.Equal(t, http.StatusBadRequest, get(t, s, "/api/v1/agent/abc", nil).Code)
	assert.Equal(t, http.StatusBadRequest, get(t, s, "/api/v1/agent/", nil).Code)
}

func TestAgentsFilter(t *testing.T) {
	s := newTestServer(t, false)

	var all, filtered []agentRow
	get(t, s, "/api/v1/agents", &all)
	get(t, s, "/api/v1/agents?subregion=USA", &filtered)

	want := 0
	for _, a := range all {
		if strings.HasSuffix(a.Location, ", USA") {
			want++
		}
	}
	assert.Len(t, filtered, want)
}

func TestTechnologiesAndEvents(t *testing.T) {
	s := newTestServer(t, false)

	var techs []map[string]string
	get(t, s, "/api/v1/technologies", &techs)
	require.Len(t, techs, 2)
	assert.Equal(t, "Fire", techs[0]["name"])
	assert.Equal(t, "2001-03-02", techs[0]["discovered_on"])

	var events []engine.Event
	get(t, s, "/api/v1/events?category=technology", &events)
	assert.Len(t, events, 2)

	get(t, s, "/api/v1/events?category=technology&limit=1", &events)
	assert.Len(t, events, 1)
}

func TestStatsHistory(t *testing.T) {
	for _, withDB := range []bool{false, true} {
		s := newTestServer(t, withDB)

		var rows []persistence.StatsRow
		get(t, s, "/api/v1/stats/history", &rows)
		require.Len(t, rows, 3)
		assert.EqualValues(t, 1, rows[0].Day)

		get(t, s, "/api/v1/stats/history?limit=2", &rows)
		require.Len(t, rows, 2)
		assert.EqualValues(t, 2, rows[0].Day)
		assert.EqualValues(t, 3, rows[1].Day)
		assert.Equal(t, "2001-03-04", rows[1].Date)
	}
}

func TestPaceRequiresAdmin(t *testing.T) {
	s := newTestServer(t, false)
	h := s.Handler()

	post := func(token, body string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/pace", strings.NewReader(body))
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, post("", `{"pace":"250ms"}`))
	assert.Equal(t, http.StatusUnauthorized, post("wrong", `{"pace":"250ms"}`))
	assert.Equal(t, http.StatusBadRequest, post("secret", `{"pace":"1h"}`))
	assert.Equal(t, http.StatusBadRequest, post("secret", `{"pace":"soon"}`))
	assert.Equal(t, http.StatusOK, post("secret", `{"pace":"250ms"}`))
	assert.Equal(t, 250*time.Millisecond, s.Eng.Interval())

	s.AdminKey = ""
	assert.Equal(t, http.StatusForbidden, post("secret", `{"pace":"1s"}`))

	var pace map[string]string
	get(t, s, "/api/v1/pace", &pace)
	assert.Equal(t, "250ms", pace["pace"])
}

func TestAgentsCachedUnderDayTheyWereReadOn(t *testing.T) {
	s := newTestServer(t, false)
	s.Handler()

	v := s.cached("agents", 3, func() (uint64, any) {
		// A tick lands between reading the day and reading the agents.
		s.Sim.AdvanceDay(context.Background())
		day, list := s.Sim.AgentListDay()
		return day, len(list)
	})

	_, stale := s.cache.Get(cacheKey("agents", 3))
	assert.False(t, stale)
	got, ok := s.cache.Get(cacheKey("agents", 4))
	require.True(t, ok)
	assert.Equal(t, v, got)
}

func TestCORS(t *testing.T) {
	s := newTestServer(t, false)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/status", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

// agentRow is the subset of agentSummary the tests decode.
type agentRow struct {
	ID       agents.AgentID `json:"id"`
	Location string         `json:"location"`
	Mood     string         `json:"mood"`
}

func jsonNumber(id agents.AgentID) string {
	b, _ := json.Marshal(id)
	return string(b)
}
