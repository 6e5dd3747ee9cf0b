/*
engine.go - Match state machine

PURPOSE:
  Drives a match from creation to settlement and moves the money that goes
  with it: entry fees into escrow at creation, the prize to the winner at
  settlement.

STATES:
  Active ──EndMatch──────> SettledWon
     └────Disqualify─────> SettledForfeited

  Both settled states are terminal. Any mutation of a settled match fails
  with Conflict.

CHECK ORDER (first failure wins):
  CreateMatch  InvalidRequest (ids, amounts) -> NotFound -> Conflict
               (already in a match) -> InsufficientFunds
  AwardPoints  NotFound (match, then player) -> Conflict (settled)
               -> InvalidRequest (non-participant, points <= 0)
  EndMatch     NotFound -> Conflict (settled, tied)
  Disqualify   NotFound (match, then player) -> Conflict (settled)
               -> InvalidRequest (non-participant)

LOCKING:
  A match operation reads the match once, outside any lock, to learn its
  participants (they never change). It then locks the match and both
  players, opens a transaction and re-reads everything before deciding.
  CreateMatch locks the two players only; the match does not exist yet.

SETTLEMENT:
  Clears both active-match pointers, records a join for both players, adds
  final points to both totals, pays the prize to the winner and records the
  win. A disqualification additionally records the forfeit on the loser.
  Each player record is written once per operation.

SEE ALSO:
  - player_ledger.go: the primitives used here
  - locks.go: lock ordering
*/
package ledger

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/warp/arena-ledger/currency"
)

// RecentSettledLimit is how many settled matches ListMatches returns.
const RecentSettledLimit = 4

type Engine struct {
	*core
	players *PlayerLedger
}

func NewEngine(store TxStore, opts ...Option) *Engine {
	c := newCore(store, opts...)
	return &Engine{core: c, players: &PlayerLedger{core: c}}
}

// Players returns the ledger sharing this engine's store and locks.
func (e *Engine) Players() *PlayerLedger { return e.players }

// =============================================================================
// CREATE
// =============================================================================

type CreateMatchRequest struct {
	P1ID     PlayerID
	P2ID     PlayerID
	EntryFee currency.Amount
	Prize    currency.Amount
}

func (r CreateMatchRequest) validate() error {
	switch {
	case r.P1ID == "":
		return invalid("p1_id", "is required")
	case r.P2ID == "":
		return invalid("p2_id", "is required")
	case r.P1ID == r.P2ID:
		return invalid("p2_id", "a player cannot face themselves")
	case r.EntryFee.IsNegative():
		return invalid("entry_fee", "must not be negative")
	case r.Prize.IsNegative():
		return invalid("prize", "must not be negative")
	}
	return nil
}

// CreateMatch escrows the entry fee from both players and opens the match.
// Nothing is written unless every check passes.
func (e *Engine) CreateMatch(ctx context.Context, req CreateMatchRequest) (Match, error) {
	if err := req.validate(); err != nil {
		e.metrics.IncOperationErrors("create_match", string(KindInvalidRequest))
		return Match{}, err
	}

	var out Match
	err := e.run(ctx, "create_match", func(ctx context.Context) error {
		keys := []string{playerKey(req.P1ID), playerKey(req.P2ID)}
		return e.locked(ctx, keys, func(s Store) error {
			p1, err := s.FindPlayer(ctx, req.P1ID)
			if err != nil {
				return err
			}
			p2, err := s.FindPlayer(ctx, req.P2ID)
			if err != nil {
				return err
			}

			for _, p := range []Player{p1, p2} {
				if p.InActiveMatch != nil {
					return conflict("player %s is already in active match %s", p.ID, *p.InActiveMatch)
				}
			}

			if err := escrow(&p1, req.EntryFee); err != nil {
				return err
			}
			if err := escrow(&p2, req.EntryFee); err != nil {
				return err
			}

			id, err := s.InsertMatch(ctx, Match{
				P1ID:      req.P1ID,
				P2ID:      req.P2ID,
				EntryFee:  req.EntryFee,
				Prize:     req.Prize,
				CreatedAt: e.now(),
			})
			if err != nil {
				return internal("insert match", err)
			}

			p1.InActiveMatch = &id
			p2.InActiveMatch = &id
			if err := writePlayers(ctx, s, p1, p2); err != nil {
				return err
			}

			out, err = s.FindMatch(ctx, id)
			return err
		})
	})
	if err != nil {
		return Match{}, err
	}

	e.metrics.IncMatchesCreated()
	e.metrics.AddEscrowed(2 * req.EntryFee.Cents())
	e.logger.Info("match created", "match_id", out.ID, "p1", out.P1ID, "p2", out.P2ID,
		"entry_fee", out.EntryFee, "prize", out.Prize)
	return out, nil
}

// =============================================================================
// SCORE
// =============================================================================

// AwardPoints adds points to one participant's running score.
func (e *Engine) AwardPoints(ctx context.Context, matchID MatchID, playerID PlayerID, points int) (Match, error) {
	var out Match
	err := e.run(ctx, "award_points", func(ctx context.Context) error {
		return e.withMatch(ctx, matchID, func(s Store, m Match) error {
			if !m.HasParticipant(playerID) {
				if _, err := s.FindPlayer(ctx, playerID); err != nil {
					return err
				}
			}
			if !m.IsActive() {
				return conflict("match %s is already settled", m.ID)
			}
			if !m.HasParticipant(playerID) {
				return invalid("player_id", fmt.Sprintf("player %s is not in match %s", playerID, m.ID))
			}
			if points <= 0 {
				return invalid("points", "must be a positive integer")
			}

			score := &m.P2Points
			if playerID == m.P1ID {
				score = &m.P1Points
			}
			if points > math.MaxInt-*score {
				return invalid("points", "would overflow the score")
			}
			*score += points
			if err := s.UpdateMatch(ctx, m); err != nil {
				return internal("update match", err)
			}

			var err error
			out, err = s.FindMatch(ctx, m.ID)
			return err
		})
	})
	if err != nil {
		return Match{}, err
	}
	e.logger.Debug("points awarded", "match_id", matchID, "player_id", playerID, "points", points)
	return out, nil
}

// =============================================================================
// SETTLE
// =============================================================================

// EndMatch settles an active, untied match in favour of the higher score.
func (e *Engine) EndMatch(ctx context.Context, matchID MatchID) (Match, error) {
	var out Match
	err := e.run(ctx, "end_match", func(ctx context.Context) error {
		return e.withMatch(ctx, matchID, func(s Store, m Match) error {
			if !m.IsActive() {
				return conflict("match %s is already settled", m.ID)
			}
			if m.P1Points == m.P2Points {
				return conflict("match %s is tied at %d", m.ID, m.P1Points)
			}

			var err error
			out, err = e.settle(ctx, s, m, nil)
			return err
		})
	})
	if err != nil {
		return Match{}, err
	}

	e.metrics.IncMatchesSettled(string(MatchSettledWon))
	e.metrics.AddPaidOut(out.Prize.Cents())
	e.logger.Info("match ended", "match_id", out.ID, "winner", *out.WinnerID(), "prize", out.Prize)
	return out, nil
}

// Disqualify forfeits the match against playerID. Scores are forced to 0
// for the disqualified player and 1 for the opponent, who takes the prize.
func (e *Engine) Disqualify(ctx context.Context, matchID MatchID, playerID PlayerID) (Match, error) {
	var out Match
	err := e.run(ctx, "disqualify", func(ctx context.Context) error {
		return e.withMatch(ctx, matchID, func(s Store, m Match) error {
			if !m.HasParticipant(playerID) {
				if _, err := s.FindPlayer(ctx, playerID); err != nil {
					return err
				}
			}
			if !m.IsActive() {
				return conflict("match %s is already settled", m.ID)
			}
			if !m.HasParticipant(playerID) {
				return invalid("player_id", fmt.Sprintf("player %s is not in match %s", playerID, m.ID))
			}

			if playerID == m.P1ID {
				m.P1Points, m.P2Points = 0, 1
			} else {
				m.P1Points, m.P2Points = 1, 0
			}
			m.IsDQ = true

			var err error
			out, err = e.settle(ctx, s, m, &playerID)
			return err
		})
	})
	if err != nil {
		return Match{}, err
	}

	e.metrics.IncMatchesSettled(string(MatchSettledForfeited))
	e.metrics.AddPaidOut(out.Prize.Cents())
	e.logger.Info("player disqualified", "match_id", out.ID, "player_id", playerID, "winner", *out.WinnerID())
	return out, nil
}

// settle writes the terminal state of m. The score in m decides the winner.
func (e *Engine) settle(ctx context.Context, s Store, m Match, disqualified *PlayerID) (Match, error) {
	p1, err := s.FindPlayer(ctx, m.P1ID)
	if err != nil {
		return Match{}, corrupt(m, err)
	}
	p2, err := s.FindPlayer(ctx, m.P2ID)
	if err != nil {
		return Match{}, corrupt(m, err)
	}

	for _, p := range []*Player{&p1, &p2} {
		if p.InActiveMatch == nil || *p.InActiveMatch != m.ID {
			return Match{}, fmt.Errorf("%w: player %s does not point at active match %s", ErrInternal, p.ID, m.ID)
		}
		p.InActiveMatch = nil
		recordJoin(p)
	}
	if p1.TotalPoints > math.MaxInt-m.P1Points || p2.TotalPoints > math.MaxInt-m.P2Points {
		return Match{}, invalid("points", "would overflow a player's total points")
	}
	p1.TotalPoints += m.P1Points
	p2.TotalPoints += m.P2Points

	winner, loser := &p1, &p2
	if m.P2Points > m.P1Points {
		winner, loser = &p2, &p1
	}
	if err := release(winner, m.Prize); err != nil {
		return Match{}, err
	}
	if winner.TotalPrize, err = winner.TotalPrize.CheckedAdd(m.Prize); err != nil {
		return Match{}, invalid("prize", "would overflow the winner's total prize")
	}
	recordWin(winner)
	if disqualified != nil {
		recordDisqualification(loser)
	}

	now := e.now()
	m.EndedAt = &now
	if err := s.UpdateMatch(ctx, m); err != nil {
		return Match{}, internal("update match", err)
	}
	if err := writePlayers(ctx, s, p1, p2); err != nil {
		return Match{}, err
	}
	return s.FindMatch(ctx, m.ID)
}

// =============================================================================
// READ
// =============================================================================

func (e *Engine) GetMatch(ctx context.Context, id MatchID) (Match, error) {
	return e.store.FindMatch(ctx, id)
}

// ListMatches returns active matches by prize (highest first), followed by
// the most recently settled matches, newest first.
func (e *Engine) ListMatches(ctx context.Context) ([]Match, error) {
	all, err := e.store.FindMatches(ctx, MatchFilter{})
	if err != nil {
		return nil, internal("list matches", err)
	}

	var active, settled []Match
	for _, m := range all {
		if m.IsActive() {
			active = append(active, m)
		} else {
			settled = append(settled, m)
		}
	}

	slices.SortFunc(active, func(a, b Match) int {
		return cmp.Or(
			b.Prize.Cmp(a.Prize),
			a.CreatedAt.Compare(b.CreatedAt),
			cmp.Compare(a.ID, b.ID),
		)
	})
	slices.SortFunc(settled, func(a, b Match) int {
		return cmp.Or(
			b.EndedAt.Compare(*a.EndedAt),
			cmp.Compare(a.ID, b.ID),
		)
	})
	if len(settled) > RecentSettledLimit {
		settled = settled[:RecentSettledLimit]
	}
	return append(active, settled...), nil
}

// =============================================================================
// HELPERS
// =============================================================================

// withMatch resolves the participants of id, locks the match and both
// players, and runs fn on a fresh read inside a transaction.
func (e *Engine) withMatch(ctx context.Context, id MatchID, fn func(Store, Match) error) error {
	m, err := e.store.FindMatch(ctx, id)
	if err != nil {
		return err
	}
	keys := []string{matchKey(m.ID), playerKey(m.P1ID), playerKey(m.P2ID)}
	return e.locked(ctx, keys, func(s Store) error {
		m, err := s.FindMatch(ctx, id)
		if err != nil {
			return err
		}
		return fn(s, m)
	})
}

func writePlayers(ctx context.Context, s Store, players ...Player) error {
	for _, p := range players {
		if err := s.UpdatePlayer(ctx, p); err != nil {
			return internal("update player", err)
		}
	}
	return nil
}

// corrupt reports a participant that vanished while its match is stored.
func corrupt(m Match, err error) error {
	if KindOf(err) == KindNotFound {
		return fmt.Errorf("%w: match %s references missing player: %v", ErrInternal, m.ID, err)
	}
	return err
}
