package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/arena-ledger/ledger"
	"github.com/warp/arena-ledger/ledger/store"
)

func TestDeposit_ReportsOldAndNewBalance(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	p := newPlayer(t, e, "Alice", "1.50")

	res, err := e.Players().Deposit(ctx, p.ID, usd("2.25"))
	require.NoError(t, err)
	assert.Equal(t, usd("1.50"), res.OldBalance)
	assert.Equal(t, usd("3.75"), res.NewBalance)
	assert.Equal(t, usd("3.75"), reload(t, e, p.ID).Balance)
}

func TestDeposit_RejectsNonPositive(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	p := newPlayer(t, e, "Alice", "1.00")

	for _, amt := range []string{"0", "0.00"} {
		_, err := e.Players().Deposit(ctx, p.ID, usd(amt))
		assert.ErrorIs(t, err, ledger.ErrInvalidRequest)
	}
	_, err := e.Players().Deposit(ctx, p.ID, -100)
	assert.ErrorIs(t, err, ledger.ErrInvalidRequest)

	_, err = e.Players().Deposit(ctx, "missing", usd("1"))
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	assert.Equal(t, usd("1.00"), reload(t, e, p.ID).Balance)
}

func TestDeposit_RejectsOverflow(t *testing.T) {
	// GIVEN: A player at the largest representable balance
	// WHEN: One more cent is deposited
	// THEN: InvalidRequest and the balance is untouched
	e := newTestEngine(t)
	ctx := context.Background()
	p := newPlayer(t, e, "Alice", "92233720368547758.07")

	_, err := e.Players().Deposit(ctx, p.ID, usd("0.01"))
	assert.ErrorIs(t, err, ledger.ErrInvalidRequest)

	got := reload(t, e, p.ID)
	assert.False(t, got.Balance.IsNegative())
	assert.Equal(t, usd("92233720368547758.07"), got.Balance)
	requireClean(t, e)
}

func TestEscrowAndRelease(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	l := e.Players()
	p := newPlayer(t, e, "Alice", "5.00")

	got, err := l.Escrow(ctx, p.ID, usd("5.00"))
	require.NoError(t, err)
	assert.True(t, got.Balance.IsZero())

	_, err = l.Escrow(ctx, p.ID, usd("0.01"))
	var ife *ledger.InsufficientFundsError
	require.True(t, errors.As(err, &ife))
	assert.Equal(t, usd("0.01"), ife.Shortfall)

	got, err = l.Release(ctx, p.ID, usd("0.75"))
	require.NoError(t, err)
	assert.Equal(t, usd("0.75"), got.Balance)

	_, err = l.Release(ctx, p.ID, -1)
	assert.ErrorIs(t, err, ledger.ErrInvalidRequest)
}

func TestRecordCounters_KeepEfficiencyDerived(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	l := e.Players()
	p := newPlayer(t, e, "Alice", "0")

	assert.Nil(t, p.Efficiency())

	for i := 0; i < 4; i++ {
		_, err := l.RecordJoin(ctx, p.ID)
		require.NoError(t, err)
	}
	_, err := l.RecordWin(ctx, p.ID)
	require.NoError(t, err)
	got, err := l.RecordDisqualification(ctx, p.ID)
	require.NoError(t, err)

	assert.Equal(t, 4, got.NumJoin)
	assert.Equal(t, 1, got.NumWon)
	assert.Equal(t, 1, got.NumDQ)
	require.NotNil(t, got.Efficiency())
	assert.InDelta(t, 0.25, *got.Efficiency(), 1e-9)
}

func TestConcurrentDeposits_AllApplied(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	p := newPlayer(t, e, "Alice", "0")

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Players().Deposit(ctx, p.ID, usd("0.01"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, usd("1.00"), reload(t, e, p.ID).Balance)
}

// =============================================================================
// PROFILE
// =============================================================================

func TestCreatePlayer_Validation(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	tests := []struct {
		name string
		np   ledger.NewPlayer
	}{
		{"missing fname", ledger.NewPlayer{Handed: ledger.HandedLeft}},
		{"digits in fname", ledger.NewPlayer{FirstName: "R2D2", Handed: ledger.HandedLeft}},
		{"space in lname", ledger.NewPlayer{FirstName: "Ann", LastName: "van Dyke", Handed: ledger.HandedLeft}},
		{"bad handed", ledger.NewPlayer{FirstName: "Ann", Handed: "both"}},
		{"missing handed", ledger.NewPlayer{FirstName: "Ann"}},
		{"negative balance", ledger.NewPlayer{FirstName: "Ann", Handed: ledger.HandedLeft, InitialBalance: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Players().CreatePlayer(ctx, tt.np)
			assert.ErrorIs(t, err, ledger.ErrInvalidProfile)
			assert.ErrorIs(t, err, ledger.ErrInvalidRequest)
		})
	}
}

func TestCreatePlayer_Defaults(t *testing.T) {
	e := newTestEngine(t)
	p, err := e.Players().CreatePlayer(context.Background(), ledger.NewPlayer{
		FirstName: "Zoë", LastName: "Ng", Handed: ledger.HandedAmbi, InitialBalance: usd("12.30"),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, p.ID)
	assert.True(t, p.IsActive)
	assert.Equal(t, "Zoë Ng", p.Name())
	assert.Equal(t, usd("12.30"), p.Balance)
	assert.Zero(t, p.NumJoin)
	assert.Nil(t, p.InActiveMatch)
	assert.Equal(t, int64(1), p.Version)
}

func TestUpdatePlayer_ProfileOnly(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	p := newPlayer(t, e, "Alice", "4.00")

	inactive := false
	lname := "Smith"
	handed := ledger.HandedLeft
	got, err := e.Players().UpdatePlayer(ctx, p.ID, ledger.PlayerUpdate{
		Active: &inactive, LastName: &lname, Handed: &handed,
	})
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, "Alice Smith", got.Name())
	assert.Equal(t, ledger.HandedLeft, got.Handed)
	assert.Equal(t, usd("4.00"), got.Balance)

	for _, bad := range []string{"4lice", ""} {
		_, err = e.Players().UpdatePlayer(ctx, p.ID, ledger.PlayerUpdate{FirstName: &bad})
		assert.ErrorIs(t, err, ledger.ErrInvalidProfile, "fname %q", bad)
	}
	assert.Equal(t, "Alice", reload(t, e, p.ID).FirstName)

	_, err = e.Players().UpdatePlayer(ctx, "missing", ledger.PlayerUpdate{Active: &inactive})
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestDeletePlayer_RefusedWhileInMatch(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a, b, m := activeMatch(t, e)

	err := e.Players().DeletePlayer(ctx, a.ID)
	require.ErrorIs(t, err, ledger.ErrConflict)

	_, err = e.Disqualify(ctx, m.ID, a.ID)
	require.NoError(t, err)
	require.NoError(t, e.Players().DeletePlayer(ctx, a.ID))

	_, err = e.Players().GetPlayer(ctx, a.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	_, err = e.Players().GetPlayer(ctx, b.ID)
	assert.NoError(t, err)
}

func TestListPlayers_ActiveSortedByName(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	l := e.Players()

	mk := func(f, last string) ledger.Player {
		p, err := l.CreatePlayer(ctx, ledger.NewPlayer{FirstName: f, LastName: last, Handed: ledger.HandedRight})
		require.NoError(t, err)
		return p
	}
	mk("Bob", "Young")
	mk("Alice", "Zed")
	mk("Bob", "Adams")
	hidden := mk("Aaron", "Hidden")
	off := false
	_, err := l.UpdatePlayer(ctx, hidden.ID, ledger.PlayerUpdate{Active: &off})
	require.NoError(t, err)

	players, err := l.ListPlayers(ctx)
	require.NoError(t, err)

	var names []string
	for _, p := range players {
		names = append(names, p.Name())
	}
	assert.Equal(t, []string{"Alice Zed", "Bob Adams", "Bob Young"}, names)
}

func TestStandalonePlayerLedger(t *testing.T) {
	l := ledger.NewPlayerLedger(store.NewTxMemory(), ledger.WithMaxRetries(-1))
	p, err := l.CreatePlayer(context.Background(), ledger.NewPlayer{FirstName: "Solo", Handed: ledger.HandedRight})
	require.NoError(t, err)

	res, err := l.Deposit(context.Background(), p.ID, usd("9.99"))
	require.NoError(t, err)
	assert.Equal(t, "9.99", res.NewBalance.String())
}
