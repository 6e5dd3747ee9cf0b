/*
scenarios_test.go - Unit tests for demo scenarios

PURPOSE:
	Tests that each scenario leaves the ledger in the documented state and
	that the ledger is consistent afterwards. These double as end-to-end
	checks of the engine through the HTTP layer.
*/
package api

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/arena-ledger/ledger"
	"github.com/warp/arena-ledger/ledger/store"
)

func (ts *testServer) load(t *testing.T, id string) {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": id})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

// playersByName indexes the active players by first name.
func (ts *testServer) playersByName(t *testing.T) map[string]PlayerDTO {
	t.Helper()
	out := make(map[string]PlayerDTO)
	for _, p := range decode[[]PlayerDTO](t, ts.do(t, http.MethodGet, "/api/players", nil)) {
		out[p.FirstName] = p
	}
	return out
}

func (ts *testServer) requireClean(t *testing.T) {
	t.Helper()
	report, err := ts.h.Engine.Audit(context.Background())
	require.NoError(t, err)
	require.True(t, report.OK(), "%v", report.Violations)
}

func TestScenario_ShortFunds(t *testing.T) {
	// GIVEN: The short-funds scenario
	// WHEN: Alice and Bob try a 6.00 match
	// THEN: 402 and balances stay 10.00 / 5.00
	ts := newTestServer(t)
	ts.load(t, "short-funds")

	players := ts.playersByName(t)
	alice, bob := players["Alice"], players["Bob"]

	rec := ts.createMatch(t, alice.ID, bob.ID, "6.00", "8.00")
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	players = ts.playersByName(t)
	assert.Equal(t, "10.00", players["Alice"].Balance.String())
	assert.Equal(t, "5.00", players["Bob"].Balance.String())
	ts.requireClean(t)
}

func TestScenario_ActiveMatch(t *testing.T) {
	ts := newTestServer(t)
	ts.load(t, "active-match")

	players := ts.playersByName(t)
	assert.Equal(t, "5.00", players["Alice"].Balance.String())
	assert.Equal(t, "0.00", players["Bob"].Balance.String())
	require.NotNil(t, players["Alice"].InActiveMatch)
	require.NotNil(t, players["Bob"].InActiveMatch)
	assert.Equal(t, *players["Alice"].InActiveMatch, *players["Bob"].InActiveMatch)

	matches := decode[[]MatchDTO](t, ts.do(t, http.MethodGet, "/api/matches", nil))
	require.Len(t, matches, 1)
	assert.Equal(t, "active", matches[0].State)
	ts.requireClean(t)
}

func TestScenario_Settled(t *testing.T) {
	ts := newTestServer(t)
	ts.load(t, "settled")

	players := ts.playersByName(t)
	alice, bob := players["Alice"], players["Bob"]
	assert.Equal(t, "13.00", alice.Balance.String())
	assert.Equal(t, 1, alice.NumWon)
	assert.Equal(t, 3, alice.TotalPoints)
	assert.Equal(t, "8.00", alice.TotalPrize.String())
	assert.Equal(t, 1, bob.NumJoin)
	assert.Equal(t, 0, bob.NumWon)

	matches := decode[[]MatchDTO](t, ts.do(t, http.MethodGet, "/api/matches", nil))
	require.Len(t, matches, 1)
	assert.Equal(t, "settled_won", matches[0].State)
	require.NotNil(t, matches[0].WinnerID)
	assert.Equal(t, alice.ID, *matches[0].WinnerID)
	ts.requireClean(t)
}

func TestScenario_Forfeit(t *testing.T) {
	ts := newTestServer(t)
	ts.load(t, "forfeit")

	players := ts.playersByName(t)
	assert.Equal(t, "13.00", players["Alice"].Balance.String())
	assert.Equal(t, 1, players["Bob"].NumDQ)
	assert.Equal(t, 1, players["Bob"].NumJoin)

	matches := decode[[]MatchDTO](t, ts.do(t, http.MethodGet, "/api/matches", nil))
	require.Len(t, matches, 1)
	assert.Equal(t, "settled_forfeited", matches[0].State)
	assert.Equal(t, http.StatusConflict, ts.award(t, matches[0].ID, players["Alice"].ID, 1).Code)
	ts.requireClean(t)
}

func TestScenario_League(t *testing.T) {
	ts := newTestServer(t)
	ts.load(t, "league")

	players := ts.playersByName(t)
	require.Len(t, players, 6)
	assert.Equal(t, "38.00", players["Alice"].Balance.String())
	assert.Equal(t, "18.00", players["Dev"].Balance.String())
	assert.Equal(t, "20.00", players["Eun"].Balance.String())
	assert.Equal(t, 1, players["Femi"].NumDQ)

	matches := decode[[]MatchDTO](t, ts.do(t, http.MethodGet, "/api/matches", nil))
	require.Len(t, matches, 5)
	// Active first, largest prize first.
	assert.Equal(t, "10.00", matches[0].Prize.String())
	assert.Equal(t, "3.00", matches[1].Prize.String())
	for _, m := range matches[2:] {
		assert.False(t, m.IsActive)
	}
	ts.requireClean(t)
}

func TestLoadScenario_ReplacesPreviousData(t *testing.T) {
	ts := newTestServer(t)
	ts.load(t, "league")
	ts.load(t, "short-funds")

	assert.Len(t, ts.playersByName(t), 2)

	current := decode[ScenarioDTO](t, ts.do(t, http.MethodGet, "/api/scenarios/current", nil))
	assert.Equal(t, "short-funds", current.ID)
}

func TestLoadScenario_Unknown(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/scenarios/load", `{"scenario_id":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListScenarios(t *testing.T) {
	ts := newTestServer(t)
	list := decode[[]ScenarioDTO](t, ts.do(t, http.MethodGet, "/api/scenarios", nil))
	require.Len(t, list, len(scenarioLoaders))
	for _, s := range list {
		assert.Contains(t, scenarioLoaders, s.ID)
	}
}

func TestResetDatabase(t *testing.T) {
	ts := newTestServer(t)
	ts.load(t, "settled")

	rec := ts.do(t, http.MethodPost, "/api/scenarios/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Empty(t, ts.playersByName(t))
	assert.Equal(t, "null\n", ts.do(t, http.MethodGet, "/api/scenarios/current", nil).Body.String())
}

func TestScenarios_WithoutResetter(t *testing.T) {
	h := NewHandler(ledger.NewEngine(store.NewTxMemory()), log.New(io.Discard))
	ts := &testServer{h: h, router: NewRouter(h, RouterOptions{})}

	rec := ts.do(t, http.MethodPost, "/api/scenarios/load", `{"scenario_id":"settled"}`)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
	rec = ts.do(t, http.MethodPost, "/api/scenarios/reset", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}
