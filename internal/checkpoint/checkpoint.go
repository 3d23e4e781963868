// Package checkpoint persists intermediate inference states during chunked
// analysis.
//
// A checkpoint is named from the run's filename prefix, the record's
// original seed and the chunk ordinal (or FINAL for the terminal
// checkpoint), encoded as a snappy-compressed protobuf Struct, claimed in a
// SQLite ledger so each name is written at most once per run, and then put
// to the blob store.
package checkpoint

import (
	"fmt"
	"strconv"

	"github.com/arkilian/xcat/pkg/types"
)

// FinalOrdinal names the terminal checkpoint of a chunked run.
const FinalOrdinal = "FINAL"

// DefaultSuffix is appended to checkpoint names to form object names.
const DefaultSuffix = ".pb.sz"

// Checkpoint is an immutable snapshot of a record's state after a chunk.
type Checkpoint struct {
	Prefix string
	// OriginalSeed is the record's seed before any chunk ran.
	OriginalSeed int64
	// Ordinal is the decimal chunk index or FinalOrdinal.
	Ordinal string
	// Seed is the seed to continue from.
	Seed int64
	// Steps is the number of transitions in this chunk; for the terminal
	// checkpoint it is the total across all chunks.
	Steps int
	State types.State
}

// ChunkOrdinal formats chunk index i.
func ChunkOrdinal(i int) string {
	return strconv.Itoa(i)
}

// IsFinal reports whether c is the terminal checkpoint.
func (c *Checkpoint) IsFinal() bool {
	return c.Ordinal == FinalOrdinal
}

// Name is the checkpoint name without object suffix.
func (c *Checkpoint) Name() string {
	return Name(c.Prefix, c.OriginalSeed, c.Ordinal)
}

// Name formats "{prefix}_seed_{seed}_chunk_{ordinal}".
func Name(prefix string, seed int64, ordinal string) string {
	return fmt.Sprintf("%s_seed_%d_chunk_%s", prefix, seed, ordinal)
}
