// Package store provides in-process ledger.Store implementations.
package store

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/warp/arena-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	players map[ledger.PlayerID]ledger.Player
	matches map[ledger.MatchID]ledger.Match

	// undo is non-nil while a transaction is open; each write appends the
	// inverse of itself.
	undo []func()
}

func NewMemory() *Memory {
	return &Memory{
		players: make(map[ledger.PlayerID]ledger.Player),
		matches: make(map[ledger.MatchID]ledger.Match),
	}
}

// Reset drops every player and match.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.players)
	clear(m.matches)
	return nil
}

func (m *Memory) FindPlayer(_ context.Context, id ledger.PlayerID) (ledger.Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findPlayerLocked(id)
}

func (m *Memory) FindPlayers(_ context.Context, f ledger.PlayerFilter) ([]ledger.Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findPlayersLocked(f), nil
}

func (m *Memory) InsertPlayer(_ context.Context, p ledger.Player) (ledger.PlayerID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertPlayerLocked(p), nil
}

func (m *Memory) UpdatePlayer(_ context.Context, p ledger.Player) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updatePlayerLocked(p)
}

func (m *Memory) DeletePlayer(_ context.Context, id ledger.PlayerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deletePlayerLocked(id)
}

func (m *Memory) FindMatch(_ context.Context, id ledger.MatchID) (ledger.Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findMatchLocked(id)
}

func (m *Memory) FindMatches(_ context.Context, f ledger.MatchFilter) ([]ledger.Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findMatchesLocked(f), nil
}

func (m *Memory) InsertMatch(_ context.Context, match ledger.Match) (ledger.MatchID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertMatchLocked(match), nil
}

func (m *Memory) UpdateMatch(_ context.Context, match ledger.Match) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateMatchLocked(match)
}

// =============================================================================
// LOCKED OPERATIONS - Caller holds mu
// =============================================================================

func (m *Memory) findPlayerLocked(id ledger.PlayerID) (ledger.Player, error) {
	p, ok := m.players[id]
	if !ok {
		return ledger.Player{}, &ledger.NotFoundError{Kind: "player", ID: string(id)}
	}
	return clonePlayer(p), nil
}

func (m *Memory) findPlayersLocked(f ledger.PlayerFilter) []ledger.Player {
	var out []ledger.Player
	for _, id := range slices.Sorted(maps.Keys(m.players)) {
		if p := m.players[id]; f.Matches(p) {
			out = append(out, clonePlayer(p))
		}
	}
	return out
}

func (m *Memory) insertPlayerLocked(p ledger.Player) ledger.PlayerID {
	p.ID = ledger.PlayerID(uuid.NewString())
	p.Version = 1
	m.players[p.ID] = clonePlayer(p)
	m.record(func() { delete(m.players, p.ID) })
	return p.ID
}

func (m *Memory) updatePlayerLocked(p ledger.Player) error {
	prev, ok := m.players[p.ID]
	if !ok {
		return &ledger.NotFoundError{Kind: "player", ID: string(p.ID)}
	}
	if prev.Version != p.Version {
		return ledger.ErrConcurrentModification
	}
	p.Version++
	m.players[p.ID] = clonePlayer(p)
	m.record(func() { m.players[prev.ID] = prev })
	return nil
}

func (m *Memory) deletePlayerLocked(id ledger.PlayerID) error {
	prev, ok := m.players[id]
	if !ok {
		return &ledger.NotFoundError{Kind: "player", ID: string(id)}
	}
	delete(m.players, id)
	m.record(func() { m.players[id] = prev })
	return nil
}

func (m *Memory) findMatchLocked(id ledger.MatchID) (ledger.Match, error) {
	match, ok := m.matches[id]
	if !ok {
		return ledger.Match{}, &ledger.NotFoundError{Kind: "match", ID: string(id)}
	}
	return cloneMatch(match), nil
}

func (m *Memory) findMatchesLocked(f ledger.MatchFilter) []ledger.Match {
	var out []ledger.Match
	for _, id := range slices.Sorted(maps.Keys(m.matches)) {
		if match := m.matches[id]; f.Matches(match) {
			out = append(out, cloneMatch(match))
		}
	}
	return out
}

func (m *Memory) insertMatchLocked(match ledger.Match) ledger.MatchID {
	match.ID = ledger.MatchID(uuid.NewString())
	match.Version = 1
	m.matches[match.ID] = cloneMatch(match)
	m.record(func() { delete(m.matches, match.ID) })
	return match.ID
}

func (m *Memory) updateMatchLocked(match ledger.Match) error {
	prev, ok := m.matches[match.ID]
	if !ok {
		return &ledger.NotFoundError{Kind: "match", ID: string(match.ID)}
	}
	if prev.Version != match.Version {
		return ledger.ErrConcurrentModification
	}
	match.Version++
	m.matches[match.ID] = cloneMatch(match)
	m.record(func() { m.matches[prev.ID] = prev })
	return nil
}

func (m *Memory) record(undo func()) {
	if m.undo != nil {
		m.undo = append(m.undo, undo)
	}
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn while holding the store exclusively. Writes land
// directly; on error they are undone newest first.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tm.undo = make([]func(), 0, 8)
	defer func() { tm.undo = nil }()

	if err := fn(&txMemoryView{parent: tm.Memory}); err != nil {
		tm.rollback()
		return err
	}
	return nil
}

func (tm *TxMemory) rollback() {
	for i := len(tm.undo) - 1; i >= 0; i-- {
		tm.undo[i]()
	}
}

// txMemoryView is the Store handed to WithTx callbacks. The parent lock is
// already held, so it calls the locked variants directly.
type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) FindPlayer(_ context.Context, id ledger.PlayerID) (ledger.Player, error) {
	return tv.parent.findPlayerLocked(id)
}

func (tv *txMemoryView) FindPlayers(_ context.Context, f ledger.PlayerFilter) ([]ledger.Player, error) {
	return tv.parent.findPlayersLocked(f), nil
}

func (tv *txMemoryView) InsertPlayer(_ context.Context, p ledger.Player) (ledger.PlayerID, error) {
	return tv.parent.insertPlayerLocked(p), nil
}

func (tv *txMemoryView) UpdatePlayer(_ context.Context, p ledger.Player) error {
	return tv.parent.updatePlayerLocked(p)
}

func (tv *txMemoryView) DeletePlayer(_ context.Context, id ledger.PlayerID) error {
	return tv.parent.deletePlayerLocked(id)
}

func (tv *txMemoryView) FindMatch(_ context.Context, id ledger.MatchID) (ledger.Match, error) {
	return tv.parent.findMatchLocked(id)
}

func (tv *txMemoryView) FindMatches(_ context.Context, f ledger.MatchFilter) ([]ledger.Match, error) {
	return tv.parent.findMatchesLocked(f), nil
}

func (tv *txMemoryView) InsertMatch(_ context.Context, match ledger.Match) (ledger.MatchID, error) {
	return tv.parent.insertMatchLocked(match), nil
}

func (tv *txMemoryView) UpdateMatch(_ context.Context, match ledger.Match) error {
	return tv.parent.updateMatchLocked(match)
}

// =============================================================================
// COPY HELPERS - Stored records never alias caller memory
// =============================================================================

func clonePlayer(p ledger.Player) ledger.Player {
	if p.InActiveMatch != nil {
		id := *p.InActiveMatch
		p.InActiveMatch = &id
	}
	return p
}

func cloneMatch(m ledger.Match) ledger.Match {
	if m.EndedAt != nil {
		t := *m.EndedAt
		m.EndedAt = &t
	}
	return m
}
