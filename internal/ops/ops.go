// Package ops implements the per-record operations a worker process can run.
//
// The operation is chosen once per process from the command descriptor and
// applied to every input record. Operations are built from an immutable
// Registry, which validates the descriptor for the chosen operation before
// the first record is read.
package ops

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/arkilian/xcat/internal/checkpoint"
	"github.com/arkilian/xcat/internal/codec"
	"github.com/arkilian/xcat/internal/engine"
	xerr "github.com/arkilian/xcat/internal/errors"
	"github.com/arkilian/xcat/internal/metrics"
	"github.com/arkilian/xcat/pkg/types"
)

// Kind names an operation.
type Kind string

const (
	KindInitialize  Kind = "initialize"
	KindAnalyze     Kind = "analyze"
	KindChunk       Kind = "chunk_analyze"
	KindTime        Kind = "time_analyze"
	KindConvergence Kind = "convergence_analyze"
	KindMI          Kind = "mi_analyze"
)

var aliases = map[string]Kind{
	"chunked_analyze": KindChunk,
	"timed_analyze":   KindTime,
}

// ParseKind resolves a command name, accepting the long-form aliases.
func ParseKind(name string) (Kind, bool) {
	if k, ok := aliases[name]; ok {
		return k, true
	}
	switch k := Kind(name); k {
	case KindInitialize, KindAnalyze, KindChunk, KindTime, KindConvergence, KindMI:
		return k, true
	}
	return "", false
}

// Operation transforms one input record payload into one result payload.
type Operation interface {
	Kind() Kind
	Execute(ctx context.Context, key string, in codec.Payload) (codec.Payload, error)
}

// CheckpointSink persists chunk checkpoints under a destination location.
type CheckpointSink interface {
	Put(ctx context.Context, dest string, cp checkpoint.Checkpoint) error
}

// Env is the read-only process context shared by every record.
type Env struct {
	Table   *types.TableContext
	Command *types.CommandDescriptor
	Engine  engine.Engine
	// Checkpoints is required by chunk_analyze only.
	Checkpoints CheckpointSink
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
	// Now defaults to time.Now.
	Now func() time.Time
}

func (e *Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Env) since(start time.Time) float64 {
	return e.now().Sub(start).Seconds()
}

type factory func(env *Env) (Operation, error)

// Registry maps operation kinds to their constructors. It is not modified
// after NewRegistry returns.
type Registry struct {
	factories map[Kind]factory
}

// NewRegistry returns the registry of all supported operations.
func NewRegistry() *Registry {
	return &Registry{factories: map[Kind]factory{
		KindInitialize:  newInitialize,
		KindAnalyze:     newAnalyze,
		KindChunk:       newChunk,
		KindTime:        newTime,
		KindConvergence: newConvergence,
		KindMI:          newMI,
	}}
}

// Kinds lists the registered operations in name order.
func (r *Registry) Kinds() []Kind {
	out := make([]Kind, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Build constructs the operation named by env.Command. An unknown name fails
// with UNKNOWN_OPERATION and an invalid descriptor with INVALID_COMMAND.
func (r *Registry) Build(env Env) (Operation, error) {
	if env.Command == nil {
		return nil, xerr.NewCommandError("no command descriptor", nil)
	}
	if err := env.Command.Validate(); err != nil {
		return nil, xerr.NewCommandError("invalid command descriptor", err)
	}
	kind, ok := ParseKind(env.Command.Command)
	if !ok {
		return nil, xerr.NewUnknownOperation(env.Command.Command)
	}
	f, ok := r.factories[kind]
	if !ok {
		return nil, xerr.NewUnknownOperation(env.Command.Command)
	}
	if env.Engine == nil {
		return nil, xerr.NewInternalError("no engine configured", nil)
	}
	if env.Logger == nil {
		env.Logger = zap.NewNop()
	}
	env.Logger = env.Logger.With(zap.String("operation", string(kind)))

	op, err := f(&env)
	if err != nil {
		var xe *xerr.XcatError
		if errors.As(err, &xe) {
			return nil, err
		}
		return nil, xerr.NewCommandError(fmt.Sprintf("invalid descriptor for %s", kind), err)
	}
	return op, nil
}

// requireTable checks the table context for operations that read it.
func requireTable(env *Env) error {
	if env.Table == nil {
		return xerr.NewContextError("no table context loaded", nil)
	}
	if err := env.Table.Validate(); err != nil {
		return xerr.NewContextError("invalid table context", err)
	}
	return nil
}

// checkSubset rejects row or column indices outside [0, n).
func checkSubset(name string, idx []int, n int) error {
	for _, i := range idx {
		if i < 0 || i >= n {
			return fmt.Errorf("%s index %d out of range [0, %d)", name, i, n)
		}
	}
	return nil
}

// engineFailure wraps an engine error for the dispatch loop.
func engineFailure(call string, err error) error {
	return xerr.NewEngineError(call+" failed", err)
}

// encode converts a result struct into an output payload.
func encode(v any) (codec.Payload, error) {
	return codec.FromValue(v)
}
