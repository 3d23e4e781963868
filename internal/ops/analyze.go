package ops

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/arkilian/xcat/internal/checkpoint"
	"github.com/arkilian/xcat/internal/codec"
	"github.com/arkilian/xcat/internal/engine"
	xerr "github.com/arkilian/xcat/internal/errors"
)

type initializeOp struct {
	env  *Env
	mode string
}

func newInitialize(env *Env) (Operation, error) {
	if err := requireTable(env); err != nil {
		return nil, err
	}
	mode := env.Command.Initialization
	switch mode {
	case "":
		mode = engine.InitFromThePrior
	case engine.InitFromThePrior, engine.InitApart, engine.InitTogether:
	default:
		return nil, fmt.Errorf("%w: %q", engine.ErrUnknownInitialization, mode)
	}
	return &initializeOp{env: env, mode: mode}, nil
}

func (op *initializeOp) Kind() Kind { return KindInitialize }

func (op *initializeOp) Execute(_ context.Context, _ string, in codec.Payload) (codec.Payload, error) {
	seed, err := decodeSeed(in)
	if err != nil {
		return nil, err
	}
	st, next, err := op.env.Engine.Initialize(op.env.Table, seed, op.mode)
	if err != nil {
		return nil, engineFailure("initialize", err)
	}
	return encode(newStateResult(st, next))
}

// analyzeParams are the descriptor-derived options of every analyze call.
func analyzeParams(env *Env) (engine.AnalyzeOptions, error) {
	kernels, err := engine.ValidateKernels(env.Command.KernelList)
	if err != nil {
		return engine.AnalyzeOptions{}, err
	}
	opts := engine.AnalyzeOptions{
		Steps:   env.Command.NSteps,
		Kernels: kernels,
		Rows:    env.Command.R,
		Cols:    env.Command.C,
		MaxTime: env.Command.TimeBudget(),
	}
	if env.Table != nil {
		if err := checkSubset("row", opts.Rows, env.Table.NumRows()); err != nil {
			return engine.AnalyzeOptions{}, err
		}
		if err := checkSubset("column", opts.Cols, env.Table.NumCols()); err != nil {
			return engine.AnalyzeOptions{}, err
		}
	}
	return opts, nil
}

type analyzeOp struct {
	env  *Env
	opts engine.AnalyzeOptions
}

func newAnalyze(env *Env) (Operation, error) {
	if err := requireTable(env); err != nil {
		return nil, err
	}
	opts, err := analyzeParams(env)
	if err != nil {
		return nil, err
	}
	return &analyzeOp{env: env, opts: opts}, nil
}

func (op *analyzeOp) Kind() Kind { return KindAnalyze }

func (op *analyzeOp) Execute(_ context.Context, _ string, in codec.Payload) (codec.Payload, error) {
	st, seed, err := decodeState(in, op.env.Table)
	if err != nil {
		return nil, err
	}
	st, seed, err = op.env.Engine.Analyze(op.env.Table, st, seed, op.opts)
	if err != nil {
		return nil, engineFailure("analyze", err)
	}
	op.env.Metrics.AddEngineSteps(string(KindAnalyze), op.opts.Steps)
	return encode(newStateResult(st, seed))
}

type chunkOp struct {
	env       *Env
	opts      engine.AnalyzeOptions
	chunkSize int
	prefix    string
	dest      string
}

func newChunk(env *Env) (Operation, error) {
	if err := requireTable(env); err != nil {
		return nil, err
	}
	if err := env.Command.ValidateChunking(); err != nil {
		return nil, err
	}
	if env.Checkpoints == nil {
		return nil, fmt.Errorf("chunk_analyze requires a checkpoint store")
	}
	opts, err := analyzeParams(env)
	if err != nil {
		return nil, err
	}
	return &chunkOp{
		env:       env,
		opts:      opts,
		chunkSize: env.Command.ChunkSize,
		prefix:    env.Command.ChunkFilenamePrefix,
		dest:      env.Command.ChunkDestDir,
	}, nil
}

func (op *chunkOp) Kind() Kind { return KindChunk }

// Execute runs n_steps transitions in chunks of at most chunk_size, putting
// a checkpoint after every chunk and a FINAL checkpoint at the end.
func (op *chunkOp) Execute(ctx context.Context, key string, in codec.Payload) (codec.Payload, error) {
	st, seed, err := decodeState(in, op.env.Table)
	if err != nil {
		return nil, err
	}
	originalSeed := seed
	total := op.opts.Steps

	done := 0
	for done < total {
		opts := op.opts
		opts.Steps = min(op.chunkSize, total-done)
		st, seed, err = op.env.Engine.Analyze(op.env.Table, st, seed, opts)
		if err != nil {
			return nil, engineFailure("analyze", err)
		}
		op.env.Metrics.AddEngineSteps(string(KindChunk), opts.Steps)

		cp := checkpoint.Checkpoint{
			Prefix:       op.prefix,
			OriginalSeed: originalSeed,
			Ordinal:      checkpoint.ChunkOrdinal(done / op.chunkSize),
			Seed:         seed,
			Steps:        opts.Steps,
			State:        st,
		}
		if err := op.put(ctx, key, cp); err != nil {
			return nil, err
		}
		done += opts.Steps
	}

	final := checkpoint.Checkpoint{
		Prefix:       op.prefix,
		OriginalSeed: originalSeed,
		Ordinal:      checkpoint.FinalOrdinal,
		Seed:         seed,
		Steps:        total,
		State:        st,
	}
	if err := op.put(ctx, key, final); err != nil {
		return nil, err
	}
	op.env.Logger.Debug("chunked analysis complete",
		zap.String("key", key),
		zap.Int64("original_seed", originalSeed),
		zap.Int("steps", total))
	return encode(newStateResult(st, seed))
}

// put writes one checkpoint. Names derive from the record's seed, so a
// collision means two input records in this run share a SEED.
func (op *chunkOp) put(ctx context.Context, key string, cp checkpoint.Checkpoint) error {
	err := op.env.Checkpoints.Put(ctx, op.dest, cp)
	if errors.Is(err, xerr.ErrCheckpointExists) {
		op.env.Logger.Error("checkpoint already written in this run; another record has the same SEED",
			zap.String("key", key),
			zap.Int64("original_seed", cp.OriginalSeed),
			zap.String("name", cp.Name()))
	}
	return err
}
