package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/arena-ledger/currency"
	"github.com/warp/arena-ledger/ledger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNew_AppliesMigrations(t *testing.T) {
	s := newTestStore(t)

	v, err := SchemaVersion(context.Background(), s.db)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	// Running again is a no-op.
	applied, err := Migrate(context.Background(), s.db)
	require.NoError(t, err)
	assert.Empty(t, applied)
}

func TestPlayer_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	created := time.Date(2025, 4, 2, 10, 30, 0, 123, time.UTC)
	mid := ledger.MatchID("m-1")

	id, err := s.InsertPlayer(ctx, ledger.Player{
		FirstName:     "Ann",
		LastName:      "Lee",
		Handed:        ledger.HandedAmbi,
		IsActive:      true,
		Balance:       currency.MustParse("12.34"),
		NumJoin:       3,
		NumWon:        2,
		NumDQ:         1,
		TotalPoints:   17,
		TotalPrize:    currency.MustParse("5.00"),
		InActiveMatch: &mid,
		CreatedAt:     created,
	})
	require.NoError(t, err)

	p, err := s.FindPlayer(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Ann Lee", p.Name())
	assert.Equal(t, ledger.HandedAmbi, p.Handed)
	assert.True(t, p.IsActive)
	assert.Equal(t, int64(1234), p.Balance.Cents())
	assert.Equal(t, 3, p.NumJoin)
	assert.Equal(t, 2, p.NumWon)
	assert.Equal(t, 1, p.NumDQ)
	assert.Equal(t, 17, p.TotalPoints)
	assert.Equal(t, "5.00", p.TotalPrize.String())
	require.NotNil(t, p.InActiveMatch)
	assert.Equal(t, mid, *p.InActiveMatch)
	assert.True(t, created.Equal(p.CreatedAt))
	assert.Equal(t, int64(1), p.Version)

	_, err = s.FindPlayer(ctx, "missing")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestMatch_RoundTripAndFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	active, err := s.InsertMatch(ctx, ledger.Match{
		P1ID: "a", P2ID: "b", EntryFee: 500, Prize: 800, CreatedAt: now,
	})
	require.NoError(t, err)
	settledID, err := s.InsertMatch(ctx, ledger.Match{P1ID: "b", P2ID: "c", CreatedAt: now})
	require.NoError(t, err)

	m, err := s.FindMatch(ctx, settledID)
	require.NoError(t, err)
	m.P1Points, m.P2Points, m.IsDQ = 0, 1, true
	m.EndedAt = &now
	require.NoError(t, s.UpdateMatch(ctx, m))

	got, err := s.FindMatch(ctx, settledID)
	require.NoError(t, err)
	assert.True(t, got.IsDQ)
	assert.Equal(t, ledger.MatchSettledForfeited, got.State())
	require.NotNil(t, got.EndedAt)
	assert.True(t, now.Equal(*got.EndedAt))
	assert.Equal(t, int64(2), got.Version)

	unsettled, err := s.FindMatches(ctx, ledger.MatchFilter{Unsettled: true})
	require.NoError(t, err)
	require.Len(t, unsettled, 1)
	assert.Equal(t, active, unsettled[0].ID)
	assert.Equal(t, int64(800), unsettled[0].Prize.Cents())

	b := ledger.PlayerID("b")
	both, err := s.FindMatches(ctx, ledger.MatchFilter{Participant: &b})
	require.NoError(t, err)
	assert.Len(t, both, 2)

	_, err = s.FindMatch(ctx, "missing")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestUpdate_VersionConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id, err := s.InsertPlayer(ctx, ledger.Player{FirstName: "Ann", Handed: ledger.HandedLeft, CreatedAt: time.Now()})
	require.NoError(t, err)

	p, _ := s.FindPlayer(ctx, id)
	stale := p
	p.Balance = 100
	require.NoError(t, s.UpdatePlayer(ctx, p))

	err = s.UpdatePlayer(ctx, stale)
	assert.ErrorIs(t, err, ledger.ErrConcurrentModification)

	stale.ID = "missing"
	err = s.UpdatePlayer(ctx, stale)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestBalanceCheckConstraint(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id, err := s.InsertPlayer(ctx, ledger.Player{FirstName: "Ann", Handed: ledger.HandedLeft, CreatedAt: time.Now()})
	require.NoError(t, err)

	p, _ := s.FindPlayer(ctx, id)
	p.Balance = -1
	err = s.UpdatePlayer(ctx, p)
	require.Error(t, err)
	assert.Equal(t, ledger.KindInternal, ledger.KindOf(err))
}

func TestWithTx_RollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id, err := s.InsertPlayer(ctx, ledger.Player{FirstName: "Ann", Handed: ledger.HandedLeft, Balance: 100, CreatedAt: time.Now()})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.WithTx(ctx, func(tx ledger.Store) error {
		p, err := tx.FindPlayer(ctx, id)
		require.NoError(t, err)
		p.Balance = 0
		require.NoError(t, tx.UpdatePlayer(ctx, p))

		again, err := tx.FindPlayer(ctx, id)
		require.NoError(t, err)
		assert.True(t, again.Balance.IsZero())

		_, err = tx.InsertMatch(ctx, ledger.Match{P1ID: id, P2ID: "x", CreatedAt: time.Now()})
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	p, err := s.FindPlayer(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(100), p.Balance.Cents())
	matches, err := s.FindMatches(ctx, ledger.MatchFilter{})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestDeletePlayer(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id, err := s.InsertPlayer(ctx, ledger.Player{FirstName: "Ann", Handed: ledger.HandedLeft, CreatedAt: time.Now()})
	require.NoError(t, err)

	require.NoError(t, s.DeletePlayer(ctx, id))
	assert.ErrorIs(t, s.DeletePlayer(ctx, id), ledger.ErrNotFound)
}

func TestReset(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.InsertPlayer(ctx, ledger.Player{FirstName: "Ann", Handed: ledger.HandedLeft, CreatedAt: time.Now()})
	require.NoError(t, err)

	require.NoError(t, s.Reset(ctx))
	players, err := s.FindPlayers(ctx, ledger.PlayerFilter{})
	require.NoError(t, err)
	assert.Empty(t, players)
}

// =============================================================================
// ENGINE ON SQLITE
// =============================================================================

func TestEngine_FullMatchOnFile(t *testing.T) {
	// GIVEN: A file-backed store
	// WHEN: A match is created, scored and ended
	// THEN: Balances and counters survive a reopen
	path := filepath.Join(t.TempDir(), "arena.db")
	s, err := New(path)
	require.NoError(t, err)

	ctx := context.Background()
	e := ledger.NewEngine(s)
	a, err := e.Players().CreatePlayer(ctx, ledger.NewPlayer{FirstName: "Alice", Handed: ledger.HandedRight, InitialBalance: currency.MustParse("10.00")})
	require.NoError(t, err)
	b, err := e.Players().CreatePlayer(ctx, ledger.NewPlayer{FirstName: "Bob", Handed: ledger.HandedLeft, InitialBalance: currency.MustParse("5.00")})
	require.NoError(t, err)

	m, err := e.CreateMatch(ctx, ledger.CreateMatchRequest{P1ID: a.ID, P2ID: b.ID, EntryFee: currency.MustParse("5.00"), Prize: currency.MustParse("8.00")})
	require.NoError(t, err)
	_, err = e.AwardPoints(ctx, m.ID, b.ID, 2)
	require.NoError(t, err)
	_, err = e.EndMatch(ctx, m.ID)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = New(path)
	require.NoError(t, err)
	defer s.Close()

	gotB, err := s.FindPlayer(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "8.00", gotB.Balance.String())
	assert.Equal(t, 1, gotB.NumWon)
	assert.Nil(t, gotB.InActiveMatch)

	report, err := ledger.NewEngine(s).Audit(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK())
}

func TestEngine_ConcurrentCreateMatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e := ledger.NewEngine(s)

	a, err := e.Players().CreatePlayer(ctx, ledger.NewPlayer{FirstName: "Alice", Handed: ledger.HandedRight, InitialBalance: currency.MustParse("3.00")})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 8; i++ {
		opp, err := e.Players().CreatePlayer(ctx, ledger.NewPlayer{FirstName: "Opp", Handed: ledger.HandedLeft, InitialBalance: currency.MustParse("3.00")})
		require.NoError(t, err)
		wg.Add(1)
		go func(opp ledger.PlayerID) {
			defer wg.Done()
			_, err := e.CreateMatch(ctx, ledger.CreateMatchRequest{P1ID: a.ID, P2ID: opp, EntryFee: currency.MustParse("3.00")})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(opp.ID)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	got, err := s.FindPlayer(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.IsZero())
}
