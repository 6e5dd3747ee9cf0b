/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Provides pre-built scenarios that populate the store with players and
  matches in a known state. Every scenario goes through the engine, so the
  data it leaves behind obeys the same rules as live traffic.

AVAILABLE SCENARIOS:
  short-funds:    Alice 10.00, Bob 5.00; a 6.00 match cannot be created
  active-match:   Alice vs Bob, 5.00 entry fee each, 8.00 prize, in play
  settled:        The active match scored 3-1 and ended, Alice wins
  forfeit:        The active match with Bob disqualified
  league:         Six players, a mix of active and settled matches

HOW SCENARIOS WORK:
  1. Reset the store (clear all data)
  2. Create players with opening balances
  3. Create matches, award points, settle

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "settled"}

NOTE:
  Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler and error mapping
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/warp/arena-ledger/currency"
	"github.com/warp/arena-ledger/ledger"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "short-funds",
		Name:        "Short Funds",
		Description: "Alice 10.00 and Bob 5.00; a 6.00 entry fee is rejected",
	},
	{
		ID:          "active-match",
		Name:        "Active Match",
		Description: "Alice vs Bob with 5.00 escrowed from each and an 8.00 prize",
	},
	{
		ID:          "settled",
		Name:        "Settled By Score",
		Description: "Alice beats Bob 3-1 and collects the 8.00 prize",
	},
	{
		ID:          "forfeit",
		Name:        "Forfeit",
		Description: "Bob is disqualified; Alice collects the prize",
	},
	{
		ID:          "league",
		Name:        "League Night",
		Description: "Six players with active and settled matches",
	},
}

type scenarioLoader func(h *Handler, ctx context.Context) error

var scenarioLoaders = map[string]scenarioLoader{
	"short-funds":  (*Handler).loadShortFundsScenario,
	"active-match": (*Handler).loadActiveMatchScenario,
	"settled":      (*Handler).loadSettledScenario,
	"forfeit":      (*Handler).loadForfeitScenario,
	"league":       (*Handler).loadLeagueScenario,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the store and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	if h.Resetter == nil {
		notImplemented(w, "Scenario loading")
		return
	}

	var req LoadScenarioRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	load, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	h.currentScenario = ""
	if err := h.Resetter.Reset(ctx); err != nil {
		h.Logger.Error("reset failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to reset store", nil)
		return
	}
	if err := load(h, ctx); err != nil {
		h.Logger.Error("scenario load failed", "scenario", req.ScenarioID, "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}
	h.currentScenario = req.ScenarioID

	h.Logger.Info("scenario loaded", "scenario", req.ScenarioID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all players and matches.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if h.Resetter == nil {
		notImplemented(w, "Reset")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Resetter.Reset(r.Context()); err != nil {
		h.Logger.Error("reset failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to reset store", nil)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) seedPlayer(ctx context.Context, fname, lname string, handed ledger.Handedness, balance string) (ledger.Player, error) {
	p, err := h.Engine.Players().CreatePlayer(ctx, ledger.NewPlayer{
		FirstName:      fname,
		LastName:       lname,
		Handed:         handed,
		InitialBalance: currency.MustParse(balance),
	})
	if err != nil {
		return ledger.Player{}, fmt.Errorf("create %s: %w", fname, err)
	}
	return p, nil
}

func (h *Handler) seedAliceAndBob(ctx context.Context) (alice, bob ledger.Player, err error) {
	if alice, err = h.seedPlayer(ctx, "Alice", "Archer", ledger.HandedRight, "10.00"); err != nil {
		return
	}
	bob, err = h.seedPlayer(ctx, "Bob", "Baker", ledger.HandedLeft, "5.00")
	return
}

func (h *Handler) loadShortFundsScenario(ctx context.Context) error {
	_, _, err := h.seedAliceAndBob(ctx)
	return err
}

// activeMatch seeds Alice and Bob and starts their match. The settling
// scenarios build on it.
func (h *Handler) activeMatch(ctx context.Context) (ledger.Match, ledger.Player, ledger.Player, error) {
	alice, bob, err := h.seedAliceAndBob(ctx)
	if err != nil {
		return ledger.Match{}, ledger.Player{}, ledger.Player{}, err
	}
	m, err := h.Engine.CreateMatch(ctx, ledger.CreateMatchRequest{
		P1ID:     alice.ID,
		P2ID:     bob.ID,
		EntryFee: currency.MustParse("5.00"),
		Prize:    currency.MustParse("8.00"),
	})
	if err != nil {
		return ledger.Match{}, ledger.Player{}, ledger.Player{}, fmt.Errorf("create match: %w", err)
	}
	return m, alice, bob, nil
}

func (h *Handler) loadActiveMatchScenario(ctx context.Context) error {
	_, _, _, err := h.activeMatch(ctx)
	return err
}

func (h *Handler) loadSettledScenario(ctx context.Context) error {
	m, alice, bob, err := h.activeMatch(ctx)
	if err != nil {
		return err
	}
	if _, err := h.Engine.AwardPoints(ctx, m.ID, alice.ID, 3); err != nil {
		return err
	}
	if _, err := h.Engine.AwardPoints(ctx, m.ID, bob.ID, 1); err != nil {
		return err
	}
	_, err = h.Engine.EndMatch(ctx, m.ID)
	return err
}

func (h *Handler) loadForfeitScenario(ctx context.Context) error {
	m, _, bob, err := h.activeMatch(ctx)
	if err != nil {
		return err
	}
	_, err = h.Engine.Disqualify(ctx, m.ID, bob.ID)
	return err
}

func (h *Handler) loadLeagueScenario(ctx context.Context) error {
	roster := []struct {
		fname, lname string
		handed       ledger.Handedness
		balance      string
	}{
		{"Alice", "Archer", ledger.HandedRight, "40.00"},
		{"Bob", "Baker", ledger.HandedLeft, "25.00"},
		{"Carmen", "Cruz", ledger.HandedAmbi, "30.00"},
		{"Dev", "Desai", ledger.HandedRight, "15.00"},
		{"Eun", "Eom", ledger.HandedRight, "20.00"},
		{"Femi", "Falana", ledger.HandedLeft, "12.00"},
	}
	players := make([]ledger.Player, 0, len(roster))
	for _, r := range roster {
		p, err := h.seedPlayer(ctx, r.fname, r.lname, r.handed, r.balance)
		if err != nil {
			return err
		}
		players = append(players, p)
	}

	const (
		inPlay = iota
		byScore
		p2Forfeits
	)
	games := []struct {
		p1, p2       int
		fee, prize   string
		p1Pts, p2Pts int
		outcome      int
	}{
		{p1: 0, p2: 1, fee: "5.00", prize: "9.00", p1Pts: 11, p2Pts: 7, outcome: byScore},
		{p1: 2, p2: 3, fee: "4.00", prize: "7.00", p1Pts: 5, p2Pts: 11, outcome: byScore},
		{p1: 4, p2: 5, fee: "3.00", prize: "5.00", outcome: p2Forfeits},
		{p1: 0, p2: 2, fee: "6.00", prize: "10.00", p1Pts: 4, p2Pts: 6, outcome: inPlay},
		{p1: 1, p2: 4, fee: "2.00", prize: "3.00", outcome: inPlay},
	}
	for _, g := range games {
		p1, p2 := players[g.p1].ID, players[g.p2].ID
		m, err := h.Engine.CreateMatch(ctx, ledger.CreateMatchRequest{
			P1ID:     p1,
			P2ID:     p2,
			EntryFee: currency.MustParse(g.fee),
			Prize:    currency.MustParse(g.prize),
		})
		if err != nil {
			return fmt.Errorf("create match: %w", err)
		}
		if g.p1Pts > 0 {
			if _, err := h.Engine.AwardPoints(ctx, m.ID, p1, g.p1Pts); err != nil {
				return err
			}
		}
		if g.p2Pts > 0 {
			if _, err := h.Engine.AwardPoints(ctx, m.ID, p2, g.p2Pts); err != nil {
				return err
			}
		}
		switch g.outcome {
		case byScore:
			_, err = h.Engine.EndMatch(ctx, m.ID)
		case p2Forfeits:
			_, err = h.Engine.Disqualify(ctx, m.ID, p2)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
