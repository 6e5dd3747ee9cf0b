/*
Package ledger is the match ledger and player economy engine.

PURPOSE:
  Moves money between player balances and match escrow, drives the match
  lifecycle (create, score, settle, forfeit) and keeps player statistics in
  step with match outcomes, all under concurrent access.

KEY CONCEPTS IN THIS FILE (types.go):
  - Player: balance, counters and the single active-match pointer
  - Match: participants, fee/prize, running score, settlement timestamp
  - MatchState: Active -> SettledWon | SettledForfeited

INVARIANTS (hold after every operation):
  1. Player.Balance >= 0
  2. Player.InActiveMatch != nil  <=>  player is in a match with EndedAt == nil
  3. A player holds at most one active match
  4. Match.EndedAt goes nil -> timestamp exactly once; settled matches are frozen
  5. The prize is credited to exactly one participant, once, at settlement
  6. The entry fee is debited from both participants once, at creation

DERIVED VALUES:
  Efficiency, Name, State, WinnerID and Age are computed from stored fields
  on every read. Nothing derived is persisted.

SEE ALSO:
  - player_ledger.go: balance and statistic mutations
  - engine.go: match state machine
  - store.go: persistence contract
*/
package ledger

import (
	"strings"
	"time"

	"github.com/warp/arena-ledger/currency"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type PlayerID string
type MatchID string

// =============================================================================
// PLAYER
// =============================================================================

type Handedness string

const (
	HandedLeft  Handedness = "left"
	HandedRight Handedness = "right"
	HandedAmbi  Handedness = "ambi"
)

// ParseHandedness accepts the full names case-insensitively, and the single
// letters L, R and A.
func ParseHandedness(s string) (Handedness, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "left", "l":
		return HandedLeft, true
	case "right", "r":
		return HandedRight, true
	case "ambi", "a":
		return HandedAmbi, true
	}
	return "", false
}

type Player struct {
	ID        PlayerID
	FirstName string
	LastName  string
	Handed    Handedness
	IsActive  bool

	Balance currency.Amount

	NumJoin int
	NumWon  int
	NumDQ   int

	TotalPoints int
	TotalPrize  currency.Amount

	// InActiveMatch is set while the player has an unsettled match.
	InActiveMatch *MatchID

	CreatedAt time.Time

	// Version is bumped by the store on every update.
	Version int64
}

// Name is "First Last", or just "First" when there is no last name.
func (p Player) Name() string {
	if p.LastName == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// Efficiency is NumWon/NumJoin, or nil before the first settled match.
func (p Player) Efficiency() *float64 {
	if p.NumJoin == 0 {
		return nil
	}
	e := float64(p.NumWon) / float64(p.NumJoin)
	return &e
}

// =============================================================================
// MATCH
// =============================================================================

type MatchState string

const (
	MatchActive           MatchState = "active"
	MatchSettledWon       MatchState = "settled_won"
	MatchSettledForfeited MatchState = "settled_forfeited"
)

type Match struct {
	ID   MatchID
	P1ID PlayerID
	P2ID PlayerID

	EntryFee currency.Amount
	Prize    currency.Amount

	P1Points int
	P2Points int

	IsDQ      bool
	CreatedAt time.Time
	EndedAt   *time.Time

	Version int64
}

func (m Match) IsActive() bool { return m.EndedAt == nil }

func (m Match) State() MatchState {
	switch {
	case m.EndedAt == nil:
		return MatchActive
	case m.IsDQ:
		return MatchSettledForfeited
	default:
		return MatchSettledWon
	}
}

// HasParticipant reports whether id is p1 or p2.
func (m Match) HasParticipant(id PlayerID) bool {
	return id == m.P1ID || id == m.P2ID
}

// WinnerID is the participant with more points, once the match is settled.
func (m Match) WinnerID() *PlayerID {
	if m.EndedAt == nil {
		return nil
	}
	w := m.P1ID
	if m.P2Points > m.P1Points {
		w = m.P2ID
	}
	return &w
}

// Age is the time from creation to settlement, or to now while active.
func (m Match) Age(now time.Time) time.Duration {
	end := now
	if m.EndedAt != nil {
		end = *m.EndedAt
	}
	if end.Before(m.CreatedAt) {
		return 0
	}
	return end.Sub(m.CreatedAt)
}

// =============================================================================
// FILTERS - FindMany arguments
// =============================================================================

type PlayerFilter struct {
	ActiveOnly bool
}

type MatchFilter struct {
	// Participant limits results to matches involving this player.
	Participant *PlayerID
	// Unsettled limits results to matches with EndedAt == nil.
	Unsettled bool
}

func (f MatchFilter) Matches(m Match) bool {
	if f.Participant != nil && !m.HasParticipant(*f.Participant) {
		return false
	}
	if f.Unsettled && !m.IsActive() {
		return false
	}
	return true
}

func (f PlayerFilter) Matches(p Player) bool {
	return !f.ActiveOnly || p.IsActive
}
