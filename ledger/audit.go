package ledger

import (
	"context"
	"fmt"
)

// Violation is one broken invariant found by Audit.
type Violation struct {
	Entity string `json:"entity"`
	ID     string `json:"id"`
	Rule   string `json:"rule"`
	Detail string `json:"detail"`
}

// AuditReport is the result of a full consistency pass.
type AuditReport struct {
	Players    int         `json:"players"`
	Matches    int         `json:"matches"`
	Active     int         `json:"active_matches"`
	Violations []Violation `json:"violations"`
}

func (r AuditReport) OK() bool { return len(r.Violations) == 0 }

// Audit checks every player and match against the ledger invariants. It
// reads inside one transaction, so the picture is consistent.
func (e *Engine) Audit(ctx context.Context) (AuditReport, error) {
	var report AuditReport
	err := e.store.WithTx(ctx, func(s Store) error {
		players, err := s.FindPlayers(ctx, PlayerFilter{})
		if err != nil {
			return internal("audit players", err)
		}
		matches, err := s.FindMatches(ctx, MatchFilter{})
		if err != nil {
			return internal("audit matches", err)
		}
		report = audit(players, matches)
		return nil
	})
	if err != nil {
		return AuditReport{}, err
	}

	e.metrics.IncAuditRuns()
	e.metrics.SetAuditViolations(len(report.Violations))
	for _, v := range report.Violations {
		e.logger.Error("invariant violated", "entity", v.Entity, "id", v.ID, "rule", v.Rule, "detail", v.Detail)
	}
	return report, nil
}

func audit(players []Player, matches []Match) AuditReport {
	r := AuditReport{Players: len(players), Matches: len(matches)}
	add := func(entity, id, rule, format string, args ...any) {
		r.Violations = append(r.Violations, Violation{
			Entity: entity, ID: id, Rule: rule, Detail: fmt.Sprintf(format, args...),
		})
	}

	byID := make(map[MatchID]Match, len(matches))
	activeOf := make(map[PlayerID][]MatchID)
	for _, m := range matches {
		byID[m.ID] = m
		if m.IsActive() {
			r.Active++
			activeOf[m.P1ID] = append(activeOf[m.P1ID], m.ID)
			activeOf[m.P2ID] = append(activeOf[m.P2ID], m.ID)
			if m.IsDQ {
				add("match", string(m.ID), "dq_settles", "disqualified match has no end time")
			}
		} else if !m.IsDQ && m.P1Points == m.P2Points {
			add("match", string(m.ID), "no_tied_settlement", "settled with tied score %d", m.P1Points)
		}
		if m.P1ID == m.P2ID {
			add("match", string(m.ID), "distinct_participants", "player %s on both sides", m.P1ID)
		}
		if m.P1Points < 0 || m.P2Points < 0 {
			add("match", string(m.ID), "non_negative_points", "points %d/%d", m.P1Points, m.P2Points)
		}
	}

	for _, p := range players {
		id := string(p.ID)
		if p.Balance.IsNegative() {
			add("player", id, "non_negative_balance", "balance %s", p.Balance)
		}
		if p.NumWon > p.NumJoin || p.NumDQ > p.NumJoin {
			add("player", id, "counters", "join=%d won=%d dq=%d", p.NumJoin, p.NumWon, p.NumDQ)
		}

		active := activeOf[p.ID]
		if len(active) > 1 {
			add("player", id, "single_active_match", "active in %d matches", len(active))
		}
		switch {
		case p.InActiveMatch == nil && len(active) > 0:
			add("player", id, "active_pointer", "no pointer but active in match %s", active[0])
		case p.InActiveMatch != nil:
			m, ok := byID[*p.InActiveMatch]
			switch {
			case !ok:
				add("player", id, "active_pointer", "points at missing match %s", *p.InActiveMatch)
			case !m.IsActive():
				add("player", id, "active_pointer", "points at settled match %s", m.ID)
			case !m.HasParticipant(p.ID):
				add("player", id, "active_pointer", "points at match %s it is not in", m.ID)
			}
		}
	}
	return r
}
