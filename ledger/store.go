/*
store.go - Persistence interface for players and matches

PURPOSE:
  Defines the boundary between the ledger and the database. The ledger never
  talks to a driver directly; it receives a TxStore and runs every logical
  operation inside WithTx so all of its writes commit together.

KEY INTERFACES:
  Store:   typed per-collection find/insert/update
  TxStore: Store plus atomic WithTx

CONTRACT:
  - Find* on a missing id returns an error wrapping ErrNotFound.
  - Insert* assigns the id (UUID) and sets Version = 1.
  - Update* is a compare-and-swap on Version: the stored record must carry
    the same Version as the argument, otherwise ErrConcurrentModification.
    On success the stored Version is argument.Version + 1.
  - Reads inside WithTx see the transaction's own writes.
  - If fn returns an error, nothing it wrote is visible afterwards.

IMPLEMENTATIONS:
  - ledger/store/memory.go: in-process, for tests and :memory: demos
  - store/sqlite/sqlite.go: SQLite with goose migrations

SEE ALSO:
  - engine.go: the main Store consumer
*/
package ledger

import "context"

// =============================================================================
// STORE - Typed collections
// =============================================================================

type Store interface {
	FindPlayer(ctx context.Context, id PlayerID) (Player, error)
	FindPlayers(ctx context.Context, filter PlayerFilter) ([]Player, error)
	InsertPlayer(ctx context.Context, p Player) (PlayerID, error)
	UpdatePlayer(ctx context.Context, p Player) error
	DeletePlayer(ctx context.Context, id PlayerID) error

	FindMatch(ctx context.Context, id MatchID) (Match, error)
	FindMatches(ctx context.Context, filter MatchFilter) ([]Match, error)
	InsertMatch(ctx context.Context, m Match) (MatchID, error)
	UpdateMatch(ctx context.Context, m Match) error
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
