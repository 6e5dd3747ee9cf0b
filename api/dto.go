/*
dto.go - Wire shapes for the HTTP API

PURPOSE:
  The ledger types never leave the api package directly. Everything the
  API reads or writes goes through one of the structs below so field names
  stay stable when the ledger changes.

CONVENTIONS:
  - Money is a two-decimal string with a "_usd" suffix ("13.00").
  - Ids are strings: "pid" for players, "mid" for matches.
  - Optional values are pointers and encode as null.
  - Timestamps are RFC 3339 in UTC.
*/
package api

import (
	"encoding/json"
	"time"

	"github.com/warp/arena-ledger/currency"
	"github.com/warp/arena-ledger/ledger"
)

// =============================================================================
// PLAYER DTOs
// =============================================================================

type PlayerDTO struct {
	ID            string          `json:"pid"`
	FirstName     string          `json:"fname"`
	LastName      string          `json:"lname"`
	Name          string          `json:"name"`
	Handed        string          `json:"handed"`
	IsActive      bool            `json:"is_active"`
	Balance       currency.Amount `json:"balance_usd"`
	NumJoin       int             `json:"num_join"`
	NumWon        int             `json:"num_won"`
	NumDQ         int             `json:"num_dq"`
	TotalPoints   int             `json:"total_points"`
	TotalPrize    currency.Amount `json:"total_prize_usd"`
	Efficiency    *float64        `json:"efficiency"`
	InActiveMatch *string         `json:"in_active_match"`
	CreatedAt     time.Time       `json:"created_at"`
}

// CreatePlayerRequest keeps the opening balance raw; a bad amount is a
// profile error (422) rather than a malformed body.
type CreatePlayerRequest struct {
	FirstName      string          `json:"fname"`
	LastName       string          `json:"lname"`
	Handed         string          `json:"handed"`
	InitialBalance json.RawMessage `json:"initial_balance_usd"`
}

// UpdatePlayerRequest only touches the fields that are present.
type UpdatePlayerRequest struct {
	IsActive  *bool   `json:"is_active"`
	FirstName *string `json:"fname"`
	LastName  *string `json:"lname"`
	Handed    *string `json:"handed"`
}

type DepositRequest struct {
	Amount currency.Amount `json:"amount_usd"`
}

type DepositResponse struct {
	OldBalance currency.Amount `json:"old_balance_usd"`
	NewBalance currency.Amount `json:"new_balance_usd"`
}

// =============================================================================
// MATCH DTOs
// =============================================================================

type MatchDTO struct {
	ID        string          `json:"mid"`
	P1ID      string          `json:"p1_id"`
	P1Name    string          `json:"p1_name"`
	P1Points  int             `json:"p1_points"`
	P2ID      string          `json:"p2_id"`
	P2Name    string          `json:"p2_name"`
	P2Points  int             `json:"p2_points"`
	EntryFee  currency.Amount `json:"entry_fee_usd"`
	Prize     currency.Amount `json:"prize_usd"`
	WinnerID  *string         `json:"winner_pid"`
	IsDQ      bool            `json:"is_dq"`
	IsActive  bool            `json:"is_active"`
	State     string          `json:"state"`
	Age       int64           `json:"age"` // seconds
	CreatedAt time.Time       `json:"created_at"`
	EndedAt   *time.Time      `json:"ended_at"`
}

// CreateMatchRequest requires both amounts; absent and null stay nil so the
// handler can reject them instead of opening a free match.
type CreateMatchRequest struct {
	P1ID     string           `json:"p1_id"`
	P2ID     string           `json:"p2_id"`
	EntryFee *currency.Amount `json:"entry_fee_usd"`
	Prize    *currency.Amount `json:"prize_usd"`
}

// AwardPointsRequest keeps points as the raw number so fractions and
// exponents can be rejected instead of silently truncated.
type AwardPointsRequest struct {
	Points json.Number `json:"points"`
}

// =============================================================================
// AUDIT & SCENARIO DTOs
// =============================================================================

type ViolationDTO struct {
	Entity string `json:"entity"`
	ID     string `json:"id"`
	Rule   string `json:"rule"`
	Detail string `json:"detail"`
}

type AuditReportDTO struct {
	OK         bool           `json:"ok"`
	Players    int            `json:"players"`
	Matches    int            `json:"matches"`
	Active     int            `json:"active_matches"`
	Violations []ViolationDTO `json:"violations"`
	RanAt      time.Time      `json:"ran_at"`
}

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toPlayerDTO(p ledger.Player) PlayerDTO {
	dto := PlayerDTO{
		ID:          string(p.ID),
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		Name:        p.Name(),
		Handed:      string(p.Handed),
		IsActive:    p.IsActive,
		Balance:     p.Balance,
		NumJoin:     p.NumJoin,
		NumWon:      p.NumWon,
		NumDQ:       p.NumDQ,
		TotalPoints: p.TotalPoints,
		TotalPrize:  p.TotalPrize,
		Efficiency:  p.Efficiency(),
		CreatedAt:   p.CreatedAt.UTC(),
	}
	if p.InActiveMatch != nil {
		mid := string(*p.InActiveMatch)
		dto.InActiveMatch = &mid
	}
	return dto
}

func toPlayerDTOs(players []ledger.Player) []PlayerDTO {
	out := make([]PlayerDTO, 0, len(players))
	for _, p := range players {
		out = append(out, toPlayerDTO(p))
	}
	return out
}

// toMatchDTO needs the participants' names; names maps player id to display
// name and may miss players that have since been deleted.
func toMatchDTO(m ledger.Match, names map[ledger.PlayerID]string, now time.Time) MatchDTO {
	dto := MatchDTO{
		ID:        string(m.ID),
		P1ID:      string(m.P1ID),
		P1Name:    names[m.P1ID],
		P1Points:  m.P1Points,
		P2ID:      string(m.P2ID),
		P2Name:    names[m.P2ID],
		P2Points:  m.P2Points,
		EntryFee:  m.EntryFee,
		Prize:     m.Prize,
		IsDQ:      m.IsDQ,
		IsActive:  m.IsActive(),
		State:     string(m.State()),
		Age:       int64(m.Age(now) / time.Second),
		CreatedAt: m.CreatedAt.UTC(),
	}
	if w := m.WinnerID(); w != nil {
		pid := string(*w)
		dto.WinnerID = &pid
	}
	if m.EndedAt != nil {
		ended := m.EndedAt.UTC()
		dto.EndedAt = &ended
	}
	return dto
}

func toAuditReportDTO(r ledger.AuditReport, ranAt time.Time) AuditReportDTO {
	dto := AuditReportDTO{
		OK:         r.OK(),
		Players:    r.Players,
		Matches:    r.Matches,
		Active:     r.Active,
		Violations: make([]ViolationDTO, 0, len(r.Violations)),
		RanAt:      ranAt.UTC(),
	}
	for _, v := range r.Violations {
		dto.Violations = append(dto.Violations, ViolationDTO{
			Entity: v.Entity,
			ID:     v.ID,
			Rule:   v.Rule,
			Detail: v.Detail,
		})
	}
	return dto
}
