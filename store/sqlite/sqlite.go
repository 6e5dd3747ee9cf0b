/*
Package sqlite provides a SQLite-backed implementation of ledger.TxStore.

PURPOSE:
  Durable storage for players and matches. The ledger engine only sees the
  ledger.Store interface; this package maps it onto two tables.

KEY TABLES:
  players: profile, balance, counters, active-match pointer
  matches: participants, fee/prize, score, settlement timestamp

  Money is stored as integer cents. Both tables carry a version column.

OPTIMISTIC CONCURRENCY:
  UpdatePlayer/UpdateMatch run
      UPDATE ... SET ..., version = version + 1 WHERE id = ? AND version = ?
  and report ledger.ErrConcurrentModification when no row matched but the id
  exists. This protects the ledger when several processes share one file;
  inside one process the engine's entity locks already serialise writers.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety: plain reads share the lock, WithTx
  holds it exclusively for the life of the sql.Tx. Calls made through the
  Store handed to a WithTx callback go to the sql.Tx and never touch mu.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

MIGRATION:
  Schema lives in migrations/*.sql, embedded and applied with goose on New().
  The server's `migrate` command runs the same migrations standalone.

USAGE:
  store, err := sqlite.New("./arena.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := ledger.NewEngine(store)

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/warp/arena-ledger/currency"
	"github.com/warp/arena-ledger/ledger"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store implements ledger.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens the database without migrating it.
// Use ":memory:" for an in-memory database.
func Open(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if strings.Contains(dbPath, ":memory:") {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// New opens the database at dbPath and applies pending migrations.
func New(dbPath string) (*Store, error) {
	db, err := Open(dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := Migrate(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// MIGRATIONS
// =============================================================================

func provider(db *sql.DB) (*goose.Provider, error) {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return nil, err
	}
	return goose.NewProvider(goose.DialectSQLite3, db, fsys)
}

// Migrate applies every pending migration and returns the versions applied.
func Migrate(ctx context.Context, db *sql.DB) ([]int64, error) {
	p, err := provider(db)
	if err != nil {
		return nil, err
	}
	results, err := p.Up(ctx)
	if err != nil {
		return nil, err
	}
	applied := make([]int64, 0, len(results))
	for _, r := range results {
		applied = append(applied, r.Source.Version)
	}
	return applied, nil
}

// SchemaVersion reports the current migration version.
func SchemaVersion(ctx context.Context, db *sql.DB) (int64, error) {
	p, err := provider(db)
	if err != nil {
		return 0, err
	}
	return p.GetDBVersion(ctx)
}

// =============================================================================
// QUERIES - Shared by Store and txStore
// =============================================================================

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const playerColumns = `id, fname, lname, handed, is_active, balance_cents, num_join, num_won, num_dq,
	total_points, total_prize_cents, in_active_match, created_at, version`

const matchColumns = `id, p1_id, p2_id, entry_fee_cents, prize_cents, p1_points, p2_points,
	is_dq, created_at, ended_at, version`

type scanner interface {
	Scan(dest ...any) error
}

func scanPlayer(row scanner) (ledger.Player, error) {
	var (
		p         ledger.Player
		handed    string
		balance   int64
		prize     int64
		active    sql.NullString
		createdAt string
	)
	err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &handed, &p.IsActive, &balance,
		&p.NumJoin, &p.NumWon, &p.NumDQ, &p.TotalPoints, &prize, &active, &createdAt, &p.Version)
	if err != nil {
		return p, err
	}
	p.Handed = ledger.Handedness(handed)
	p.Balance = currency.FromCents(balance)
	p.TotalPrize = currency.FromCents(prize)
	if active.Valid {
		id := ledger.MatchID(active.String)
		p.InActiveMatch = &id
	}
	p.CreatedAt, err = parseTime(createdAt)
	return p, err
}

func scanMatch(row scanner) (ledger.Match, error) {
	var (
		m         ledger.Match
		fee       int64
		prize     int64
		createdAt string
		endedAt   sql.NullString
	)
	err := row.Scan(&m.ID, &m.P1ID, &m.P2ID, &fee, &prize, &m.P1Points, &m.P2Points,
		&m.IsDQ, &createdAt, &endedAt, &m.Version)
	if err != nil {
		return m, err
	}
	m.EntryFee = currency.FromCents(fee)
	m.Prize = currency.FromCents(prize)
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return m, err
	}
	if endedAt.Valid {
		t, err := parseTime(endedAt.String)
		if err != nil {
			return m, err
		}
		m.EndedAt = &t
	}
	return m, nil
}

func findPlayer(ctx context.Context, q querier, id ledger.PlayerID) (ledger.Player, error) {
	row := q.QueryRowContext(ctx, `SELECT `+playerColumns+` FROM players WHERE id = ?`, id)
	p, err := scanPlayer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return p, &ledger.NotFoundError{Kind: "player", ID: string(id)}
	}
	if err != nil {
		return p, fmt.Errorf("failed to load player: %w", err)
	}
	return p, nil
}

func findPlayers(ctx context.Context, q querier, f ledger.PlayerFilter) ([]ledger.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players`
	if f.ActiveOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY id`

	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query players: %w", err)
	}
	defer rows.Close()

	var players []ledger.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan player: %w", err)
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

func insertPlayer(ctx context.Context, q querier, p ledger.Player) (ledger.PlayerID, error) {
	p.ID = ledger.PlayerID(uuid.NewString())
	_, err := q.ExecContext(ctx, `
		INSERT INTO players (`+playerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		p.ID, p.FirstName, p.LastName, string(p.Handed), p.IsActive, p.Balance.Cents(),
		p.NumJoin, p.NumWon, p.NumDQ, p.TotalPoints, p.TotalPrize.Cents(),
		nullMatchID(p.InActiveMatch), formatTime(p.CreatedAt),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert player: %w", err)
	}
	return p.ID, nil
}

func updatePlayer(ctx context.Context, q querier, p ledger.Player) error {
	res, err := q.ExecContext(ctx, `
		UPDATE players SET
			fname = ?, lname = ?, handed = ?, is_active = ?, balance_cents = ?,
			num_join = ?, num_won = ?, num_dq = ?, total_points = ?, total_prize_cents = ?,
			in_active_match = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		p.FirstName, p.LastName, string(p.Handed), p.IsActive, p.Balance.Cents(),
		p.NumJoin, p.NumWon, p.NumDQ, p.TotalPoints, p.TotalPrize.Cents(),
		nullMatchID(p.InActiveMatch), p.ID, p.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update player: %w", err)
	}
	return checkSwapped(ctx, q, res, "players", "player", string(p.ID))
}

func deletePlayer(ctx context.Context, q querier, id ledger.PlayerID) error {
	res, err := q.ExecContext(ctx, `DELETE FROM players WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete player: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ledger.NotFoundError{Kind: "player", ID: string(id)}
	}
	return nil
}

func findMatch(ctx context.Context, q querier, id ledger.MatchID) (ledger.Match, error) {
	row := q.QueryRowContext(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = ?`, id)
	m, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return m, &ledger.NotFoundError{Kind: "match", ID: string(id)}
	}
	if err != nil {
		return m, fmt.Errorf("failed to load match: %w", err)
	}
	return m, nil
}

func findMatches(ctx context.Context, q querier, f ledger.MatchFilter) ([]ledger.Match, error) {
	var (
		where []string
		args  []any
	)
	if f.Participant != nil {
		where = append(where, `(p1_id = ? OR p2_id = ?)`)
		args = append(args, *f.Participant, *f.Participant)
	}
	if f.Unsettled {
		where = append(where, `ended_at IS NULL`)
	}

	query := `SELECT ` + matchColumns + ` FROM matches`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY id`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches: %w", err)
	}
	defer rows.Close()

	var matches []ledger.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func insertMatch(ctx context.Context, q querier, m ledger.Match) (ledger.MatchID, error) {
	m.ID = ledger.MatchID(uuid.NewString())
	_, err := q.ExecContext(ctx, `
		INSERT INTO matches (`+matchColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		m.ID, m.P1ID, m.P2ID, m.EntryFee.Cents(), m.Prize.Cents(), m.P1Points, m.P2Points,
		m.IsDQ, formatTime(m.CreatedAt), nullTime(m.EndedAt),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert match: %w", err)
	}
	return m.ID, nil
}

func updateMatch(ctx context.Context, q querier, m ledger.Match) error {
	res, err := q.ExecContext(ctx, `
		UPDATE matches SET
			p1_points = ?, p2_points = ?, is_dq = ?, ended_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		m.P1Points, m.P2Points, m.IsDQ, nullTime(m.EndedAt), m.ID, m.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update match: %w", err)
	}
	return checkSwapped(ctx, q, res, "matches", "match", string(m.ID))
}

// checkSwapped turns a zero-row UPDATE into NotFound or a version conflict.
func checkSwapped(ctx context.Context, q querier, res sql.Result, table, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists int
	err = q.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table+` WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check %s: %w", kind, err)
	}
	if exists == 0 {
		return &ledger.NotFoundError{Kind: kind, ID: id}
	}
	return ledger.ErrConcurrentModification
}

// =============================================================================
// STORE (ledger.Store interface)
// =============================================================================

func (s *Store) FindPlayer(ctx context.Context, id ledger.PlayerID) (ledger.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findPlayer(ctx, s.db, id)
}

func (s *Store) FindPlayers(ctx context.Context, f ledger.PlayerFilter) ([]ledger.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findPlayers(ctx, s.db, f)
}

func (s *Store) InsertPlayer(ctx context.Context, p ledger.Player) (ledger.PlayerID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertPlayer(ctx, s.db, p)
}

func (s *Store) UpdatePlayer(ctx context.Context, p ledger.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updatePlayer(ctx, s.db, p)
}

func (s *Store) DeletePlayer(ctx context.Context, id ledger.PlayerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deletePlayer(ctx, s.db, id)
}

func (s *Store) FindMatch(ctx context.Context, id ledger.MatchID) (ledger.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findMatch(ctx, s.db, id)
}

func (s *Store) FindMatches(ctx context.Context, f ledger.MatchFilter) ([]ledger.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findMatches(ctx, s.db, f)
}

func (s *Store) InsertMatch(ctx context.Context, m ledger.Match) (ledger.MatchID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertMatch(ctx, s.db, m)
}

func (s *Store) UpdateMatch(ctx context.Context, m ledger.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateMatch(ctx, s.db, m)
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) FindPlayer(ctx context.Context, id ledger.PlayerID) (ledger.Player, error) {
	return findPlayer(ctx, ts.tx, id)
}

func (ts *txStore) FindPlayers(ctx context.Context, f ledger.PlayerFilter) ([]ledger.Player, error) {
	return findPlayers(ctx, ts.tx, f)
}

func (ts *txStore) InsertPlayer(ctx context.Context, p ledger.Player) (ledger.PlayerID, error) {
	return insertPlayer(ctx, ts.tx, p)
}

func (ts *txStore) UpdatePlayer(ctx context.Context, p ledger.Player) error {
	return updatePlayer(ctx, ts.tx, p)
}

func (ts *txStore) DeletePlayer(ctx context.Context, id ledger.PlayerID) error {
	return deletePlayer(ctx, ts.tx, id)
}

func (ts *txStore) FindMatch(ctx context.Context, id ledger.MatchID) (ledger.Match, error) {
	return findMatch(ctx, ts.tx, id)
}

func (ts *txStore) FindMatches(ctx context.Context, f ledger.MatchFilter) ([]ledger.Match, error) {
	return findMatches(ctx, ts.tx, f)
}

func (ts *txStore) InsertMatch(ctx context.Context, m ledger.Match) (ledger.MatchID, error) {
	return insertMatch(ctx, ts.tx, m)
}

func (ts *txStore) UpdateMatch(ctx context.Context, m ledger.Match) error {
	return updateMatch(ctx, ts.tx, m)
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"matches", "players"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func nullMatchID(id *ledger.MatchID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*id), Valid: true}
}
