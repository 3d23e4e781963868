package checkpoint

// CreateCheckpointsTableSQL creates the checkpoint ledger.
// A (run_id, name) pair is claimed before the blob is written, so a
// checkpoint name is written at most once per run even if an operation
// misbehaves. Rows stay 'pending' if the store write fails.
const CreateCheckpointsTableSQL = `
CREATE TABLE IF NOT EXISTS checkpoints (
    run_id TEXT NOT NULL,
    name TEXT NOT NULL,
    object_path TEXT NOT NULL,
    original_seed INTEGER NOT NULL,
    chunk TEXT NOT NULL,
    steps INTEGER NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    size_bytes INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    written_at INTEGER,
    PRIMARY KEY (run_id, name)
)`

// CreateCheckpointsIndexesSQL creates ledger indexes.
var CreateCheckpointsIndexesSQL = []string{
	// Index for per-record lookups when resuming from a checkpoint series
	`CREATE INDEX IF NOT EXISTS idx_checkpoints_seed ON checkpoints(run_id, original_seed)`,
}

// Ledger row statuses.
const (
	StatusPending = "pending"
	StatusWritten = "written"
)

// AllSchemaSQL returns the ledger schema in execution order.
func AllSchemaSQL() []string {
	stmts := []string{CreateCheckpointsTableSQL}
	return append(stmts, CreateCheckpointsIndexesSQL...)
}
