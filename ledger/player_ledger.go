/*
player_ledger.go - Balance and statistic mutations for one player

PURPOSE:
  Every change to a player's money or counters goes through this file. The
  mutations exist twice:

    primitives (deposit, escrow, release, recordJoin, ...)
        operate on a *Player value that the caller has read inside an open
        transaction. The match engine composes several of them and writes
        each touched player once, so one logical operation commits together.

    PlayerLedger methods (Deposit, Escrow, ...)
        lock the player, open a transaction, read, apply one primitive,
        write. These are the standalone single-player operations.

BALANCE RULE:
  No primitive leaves Balance below zero. escrow checks before it debits and
  reports the shortfall; everything else only credits, and a credit that
  would overflow int64 cents is rejected.

PROFILE:
  Players also carry a profile (names, handedness, active flag) edited via
  CreatePlayer/UpdatePlayer. Profile validation failures wrap
  ErrInvalidProfile. Balance is never written by a profile update.

SEE ALSO:
  - engine.go: composes the primitives for match operations
*/
package ledger

import (
	"cmp"
	"context"
	"slices"
	"unicode"

	"github.com/warp/arena-ledger/currency"
)

// =============================================================================
// PRIMITIVES - In-transaction mutations on a loaded record
// =============================================================================

func deposit(p *Player, amount currency.Amount) error {
	if !amount.IsPositive() {
		return invalid("amount", "must be greater than zero")
	}
	return credit(p, amount)
}

func escrow(p *Player, amount currency.Amount) error {
	if amount.IsNegative() {
		return invalid("amount", "must not be negative")
	}
	if p.Balance.LessThan(amount) {
		return &InsufficientFundsError{
			PlayerID:  p.ID,
			Available: p.Balance,
			Requested: amount,
			Shortfall: amount.Sub(p.Balance),
		}
	}
	p.Balance = p.Balance.Sub(amount)
	return nil
}

func release(p *Player, amount currency.Amount) error {
	if amount.IsNegative() {
		return invalid("amount", "must not be negative")
	}
	return credit(p, amount)
}

func credit(p *Player, amount currency.Amount) error {
	balance, err := p.Balance.CheckedAdd(amount)
	if err != nil {
		return invalid("amount", "would overflow the balance")
	}
	p.Balance = balance
	return nil
}

func recordJoin(p *Player)             { p.NumJoin++ }
func recordWin(p *Player)              { p.NumWon++ }
func recordDisqualification(p *Player) { p.NumDQ++ }

// =============================================================================
// PLAYER LEDGER
// =============================================================================

type PlayerLedger struct {
	*core
}

// NewPlayerLedger builds a standalone ledger. Use Engine.Players when match
// operations run against the same store, so both share one lock manager.
func NewPlayerLedger(store TxStore, opts ...Option) *PlayerLedger {
	return &PlayerLedger{core: newCore(store, opts...)}
}

// DepositResult reports the balance on both sides of a deposit.
type DepositResult struct {
	OldBalance currency.Amount
	NewBalance currency.Amount
	Player     Player
}

// Deposit credits a positive amount.
func (l *PlayerLedger) Deposit(ctx context.Context, id PlayerID, amount currency.Amount) (DepositResult, error) {
	var res DepositResult
	p, err := l.mutate(ctx, "deposit", id, func(p *Player) error {
		res.OldBalance = p.Balance
		return deposit(p, amount)
	})
	if err != nil {
		return DepositResult{}, err
	}
	res.NewBalance = p.Balance
	res.Player = p
	l.metrics.AddDeposited(amount.Cents())
	l.logger.Info("deposit", "player_id", id, "amount", amount, "balance", p.Balance)
	return res, nil
}

// Escrow debits amount, failing with InsufficientFunds if the balance is short.
func (l *PlayerLedger) Escrow(ctx context.Context, id PlayerID, amount currency.Amount) (Player, error) {
	return l.mutate(ctx, "escrow", id, func(p *Player) error { return escrow(p, amount) })
}

// Release credits a non-negative amount.
func (l *PlayerLedger) Release(ctx context.Context, id PlayerID, amount currency.Amount) (Player, error) {
	return l.mutate(ctx, "release", id, func(p *Player) error { return release(p, amount) })
}

func (l *PlayerLedger) RecordJoin(ctx context.Context, id PlayerID) (Player, error) {
	return l.mutate(ctx, "record_join", id, func(p *Player) error { recordJoin(p); return nil })
}

func (l *PlayerLedger) RecordWin(ctx context.Context, id PlayerID) (Player, error) {
	return l.mutate(ctx, "record_win", id, func(p *Player) error { recordWin(p); return nil })
}

func (l *PlayerLedger) RecordDisqualification(ctx context.Context, id PlayerID) (Player, error) {
	return l.mutate(ctx, "record_dq", id, func(p *Player) error { recordDisqualification(p); return nil })
}

func (l *PlayerLedger) mutate(ctx context.Context, op string, id PlayerID, fn func(*Player) error) (Player, error) {
	var out Player
	err := l.run(ctx, op, func(ctx context.Context) error {
		return l.locked(ctx, []string{playerKey(id)}, func(s Store) error {
			p, err := s.FindPlayer(ctx, id)
			if err != nil {
				return err
			}
			if err := fn(&p); err != nil {
				return err
			}
			if err := s.UpdatePlayer(ctx, p); err != nil {
				return internal("update player", err)
			}
			out, err = s.FindPlayer(ctx, id)
			return err
		})
	})
	return out, err
}

// =============================================================================
// PROFILE
// =============================================================================

type NewPlayer struct {
	FirstName      string
	LastName       string
	Handed         Handedness
	InitialBalance currency.Amount
}

// PlayerUpdate holds optional profile changes. Nil fields are left alone.
type PlayerUpdate struct {
	Active    *bool
	FirstName *string
	LastName  *string
	Handed    *Handedness
}

func validateName(field, name string, required bool) error {
	if name == "" {
		if required {
			return invalidProfile(field, "is required")
		}
		return nil
	}
	for _, r := range name {
		if !unicode.IsLetter(r) {
			return invalidProfile(field, "must contain letters only")
		}
	}
	return nil
}

func validateHanded(h Handedness) error {
	switch h {
	case HandedLeft, HandedRight, HandedAmbi:
		return nil
	case "":
		return invalidProfile("handed", "is required")
	default:
		return invalidProfile("handed", "must be left, right or ambi")
	}
}

// CreatePlayer validates the profile and stores an active player with zero
// counters and the given opening balance.
func (l *PlayerLedger) CreatePlayer(ctx context.Context, np NewPlayer) (Player, error) {
	if err := validateName("fname", np.FirstName, true); err != nil {
		return Player{}, err
	}
	if err := validateName("lname", np.LastName, false); err != nil {
		return Player{}, err
	}
	if err := validateHanded(np.Handed); err != nil {
		return Player{}, err
	}
	if np.InitialBalance.IsNegative() {
		return Player{}, invalidProfile("initial_balance", "must not be negative")
	}

	var out Player
	err := l.run(ctx, "create_player", func(ctx context.Context) error {
		return l.store.WithTx(ctx, func(s Store) error {
			id, err := s.InsertPlayer(ctx, Player{
				FirstName: np.FirstName,
				LastName:  np.LastName,
				Handed:    np.Handed,
				IsActive:  true,
				Balance:   np.InitialBalance,
				CreatedAt: l.now(),
			})
			if err != nil {
				return internal("insert player", err)
			}
			out, err = s.FindPlayer(ctx, id)
			return err
		})
	})
	if err != nil {
		return Player{}, err
	}
	l.logger.Info("player created", "player_id", out.ID, "name", out.Name())
	return out, nil
}

// UpdatePlayer applies profile changes only.
func (l *PlayerLedger) UpdatePlayer(ctx context.Context, id PlayerID, u PlayerUpdate) (Player, error) {
	if u.FirstName != nil {
		if err := validateName("fname", *u.FirstName, true); err != nil {
			return Player{}, err
		}
	}
	if u.LastName != nil {
		if err := validateName("lname", *u.LastName, false); err != nil {
			return Player{}, err
		}
	}
	if u.Handed != nil {
		if err := validateHanded(*u.Handed); err != nil {
			return Player{}, err
		}
	}

	return l.mutate(ctx, "update_player", id, func(p *Player) error {
		if u.Active != nil {
			p.IsActive = *u.Active
		}
		if u.FirstName != nil {
			p.FirstName = *u.FirstName
		}
		if u.LastName != nil {
			p.LastName = *u.LastName
		}
		if u.Handed != nil {
			p.Handed = *u.Handed
		}
		return nil
	})
}

// DeletePlayer removes a player that holds no active match.
func (l *PlayerLedger) DeletePlayer(ctx context.Context, id PlayerID) error {
	err := l.run(ctx, "delete_player", func(ctx context.Context) error {
		return l.locked(ctx, []string{playerKey(id)}, func(s Store) error {
			p, err := s.FindPlayer(ctx, id)
			if err != nil {
				return err
			}
			if p.InActiveMatch != nil {
				return conflict("player %s is in active match %s", id, *p.InActiveMatch)
			}
			return s.DeletePlayer(ctx, id)
		})
	})
	if err == nil {
		l.logger.Info("player deleted", "player_id", id)
	}
	return err
}

func (l *PlayerLedger) GetPlayer(ctx context.Context, id PlayerID) (Player, error) {
	return l.store.FindPlayer(ctx, id)
}

// ListPlayers returns active players ordered by first name, then last name.
func (l *PlayerLedger) ListPlayers(ctx context.Context) ([]Player, error) {
	players, err := l.store.FindPlayers(ctx, PlayerFilter{ActiveOnly: true})
	if err != nil {
		return nil, internal("list players", err)
	}
	slices.SortFunc(players, func(a, b Player) int {
		return cmp.Or(
			cmp.Compare(a.FirstName, b.FirstName),
			cmp.Compare(a.LastName, b.LastName),
			cmp.Compare(a.ID, b.ID),
		)
	})
	return players, nil
}
