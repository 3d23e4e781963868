// Package engine defines the inference primitive the worker drives and ships
// a reference collapsed-Gibbs implementation for normal-inverse-gamma
// columns.
//
// Engine calls are not cancellable: a call runs to completion or until its
// own time budget expires. Every call returns the seed to thread into the
// next call on the same record.
package engine

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/spaolacci/murmur3"

	"github.com/arkilian/xcat/pkg/types"
)

// Initialization modes.
const (
	InitFromThePrior = "from_the_prior"
	InitApart        = "apart"
	InitTogether     = "together"
)

// Transition kernels understood by the reference engine.
const (
	KernelColumnPartitionAssignments    = "column_partition_assignments"
	KernelColumnPartitionHyperparameter = "column_partition_hyperparameter"
	KernelColumnHyperparameters         = "column_hyperparameters"
	KernelRowPartitionHyperparameters   = "row_partition_hyperparameters"
	KernelRowPartitionAssignments       = "row_partition_assignments"
)

// DefaultKernels is the transition order used when a caller passes no
// kernels.
var DefaultKernels = []string{
	KernelColumnPartitionAssignments,
	KernelColumnPartitionHyperparameter,
	KernelColumnHyperparameters,
	KernelRowPartitionHyperparameters,
	KernelRowPartitionAssignments,
}

var (
	ErrUnknownInitialization = errors.New("unknown initialization mode")
	ErrUnknownKernel         = errors.New("unknown transition kernel")
	ErrInvalidState          = errors.New("state does not fit table")
)

// AnalyzeOptions control one Analyze call.
type AnalyzeOptions struct {
	Steps   int
	Kernels []string
	// Rows and Cols restrict the row and column kernels; empty means all.
	Rows []int
	Cols []int
	// MaxTime bounds wall-clock time; zero means unbounded.
	MaxTime time.Duration
}

// Engine produces and advances latent partition states.
type Engine interface {
	Initialize(table *types.TableContext, seed int64, mode string) (types.State, int64, error)
	Analyze(table *types.TableContext, state types.State, seed int64, opts AnalyzeOptions) (types.State, int64, error)
}

const seedSalt = 0x5eed

// NextSeed derives the seed that follows seed. It is a pure function of its
// input, never returns its input, and stays within the signed 32-bit range so
// seeds survive the JSON record format exactly.
func NextSeed(seed int64) int64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(seed))
	next := int64(murmur3.Sum32WithSeed(buf[:], seedSalt) & 0x7fffffff)
	if next == seed {
		next = (next + 1) & 0x7fffffff
	}
	return next
}

// ValidateKernels resolves an empty list to DefaultKernels and rejects
// unknown names.
func ValidateKernels(kernels []string) ([]string, error) {
	if len(kernels) == 0 {
		return DefaultKernels, nil
	}
	for _, k := range kernels {
		switch k {
		case KernelColumnPartitionAssignments, KernelColumnPartitionHyperparameter,
			KernelColumnHyperparameters, KernelRowPartitionHyperparameters,
			KernelRowPartitionAssignments:
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownKernel, k)
		}
	}
	return kernels, nil
}
