package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrAlreadyClaimed is returned when a checkpoint name was already claimed in
// the same run.
var ErrAlreadyClaimed = errors.New("checkpoint already claimed")

// MemoryLedger is the DSN of a process-private in-memory ledger.
const MemoryLedger = ":memory:"

// Entry is one ledger row.
type Entry struct {
	RunID        string
	Name         string
	ObjectPath   string
	OriginalSeed int64
	Chunk        string
	Steps        int
	Status       string
	SizeBytes    int64
	CreatedAt    time.Time
}

// Ledger records claimed and written checkpoints in SQLite.
type Ledger struct {
	db *sql.DB
	mu sync.Mutex

	claimStmt *sql.Stmt
	markStmt  *sql.Stmt
	listStmt  *sql.Stmt
}

// OpenLedger opens (or creates) the ledger at dbPath. MemoryLedger keeps the
// ledger for the lifetime of the process only.
func OpenLedger(dbPath string) (*Ledger, error) {
	dsn := dbPath
	if dbPath != MemoryLedger {
		dsn = dbPath + "?_journal_mode=WAL&_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: failed to open ledger: %w", err)
	}
	// A single connection keeps an in-memory database alive and serializes
	// writers on a file-backed one.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	l := &Ledger{db: db}
	if err := l.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("checkpoint: failed to initialize ledger schema: %w", err)
	}
	if err := l.prepare(); err != nil {
		db.Close()
		return nil, fmt.Errorf("checkpoint: failed to prepare ledger statements: %w", err)
	}
	return l, nil
}

func (l *Ledger) initSchema() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, stmt := range AllSchemaSQL() {
		if _, err := l.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

func (l *Ledger) prepare() error {
	var err error
	l.claimStmt, err = l.db.Prepare(`
		INSERT INTO checkpoints (run_id, name, object_path, original_seed, chunk, steps, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, name) DO NOTHING`)
	if err != nil {
		return err
	}
	l.markStmt, err = l.db.Prepare(`
		UPDATE checkpoints SET status = ?, size_bytes = ?, written_at = ?
		WHERE run_id = ? AND name = ?`)
	if err != nil {
		return err
	}
	l.listStmt, err = l.db.Prepare(`
		SELECT run_id, name, object_path, original_seed, chunk, steps, status, size_bytes, created_at
		FROM checkpoints WHERE run_id = ? ORDER BY created_at, rowid`)
	return err
}

// Claim reserves e.Name for e.RunID. It fails with ErrAlreadyClaimed if the
// name was claimed before in the same run.
func (l *Ledger) Claim(ctx context.Context, e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	result, err := l.claimStmt.ExecContext(ctx,
		e.RunID, e.Name, e.ObjectPath, e.OriginalSeed, e.Chunk, e.Steps,
		StatusPending, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("checkpoint: claim %s: %w", e.Name, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checkpoint: claim %s: %w", e.Name, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrAlreadyClaimed, e.Name)
	}
	return nil
}

// MarkWritten records that the claimed checkpoint reached the store.
func (l *Ledger) MarkWritten(ctx context.Context, runID, name string, size int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	result, err := l.markStmt.ExecContext(ctx, StatusWritten, size, time.Now().UnixNano(), runID, name)
	if err != nil {
		return fmt.Errorf("checkpoint: mark %s written: %w", name, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("checkpoint: mark %s written: no claim", name)
	}
	return nil
}

// List returns the run's entries in claim order.
func (l *Ledger) List(ctx context.Context, runID string) ([]Entry, error) {
	rows, err := l.listStmt.QueryContext(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: list %s: %w", runID, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			createdAt int64
		)
		if err := rows.Scan(&e.RunID, &e.Name, &e.ObjectPath, &e.OriginalSeed, &e.Chunk,
			&e.Steps, &e.Status, &e.SizeBytes, &createdAt); err != nil {
			return nil, fmt.Errorf("checkpoint: scan ledger row: %w", err)
		}
		e.CreatedAt = time.Unix(0, createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Summary counts the run's entries by status.
func (l *Ledger) Summary(ctx context.Context, runID string) (map[string]int, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM checkpoints WHERE run_id = ? GROUP BY status`, runID)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: summarize %s: %w", runID, err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[strings.ToLower(status)] = n
	}
	return out, rows.Err()
}

// Close releases prepared statements and the database.
func (l *Ledger) Close() error {
	for _, stmt := range []*sql.Stmt{l.claimStmt, l.markStmt, l.listStmt} {
		if stmt != nil {
			stmt.Close()
		}
	}
	return l.db.Close()
}
