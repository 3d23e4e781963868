package ops

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/arkilian/xcat/internal/codec"
	"github.com/arkilian/xcat/internal/diagnostics"
	"github.com/arkilian/xcat/internal/engine"
	xerr "github.com/arkilian/xcat/internal/errors"
	"github.com/arkilian/xcat/internal/model"
	"github.com/arkilian/xcat/internal/synth"
	"github.com/arkilian/xcat/pkg/types"
)

// Fixed generator settings of the benchmarking operations.
const (
	timeMaxMean       = 10.0
	timeMaxStd        = 1.0
	convergenceMaxStd = 1.0
	testSetSeed       = 0
	miMeanRangeFactor = 2.0
)

// timeRecord holds the analyze parameters a time_analyze record may
// override.
type timeRecord struct {
	Seed       *int64   `json:"SEED"`
	NSteps     *int     `json:"n_steps"`
	KernelList []string `json:"kernel_list"`
	MaxTime    *float64 `json:"max_time"`
}

type timeResult struct {
	TableShape  [2]int      `json:"table_shape"`
	StartDims   types.Shape `json:"start_dims"`
	EndDims     types.Shape `json:"end_dims"`
	ElapsedSecs float64     `json:"elapsed_secs"`
	KernelList  []string    `json:"kernel_list"`
	NSteps      int         `json:"n_steps"`
}

type timeOp struct {
	env  *Env
	opts engine.AnalyzeOptions
}

func newTime(env *Env) (Operation, error) {
	kernels, err := engine.ValidateKernels(env.Command.KernelList)
	if err != nil {
		return nil, err
	}
	return &timeOp{env: env, opts: engine.AnalyzeOptions{
		Steps:   env.Command.NSteps,
		Kernels: kernels,
		MaxTime: env.Command.TimeBudget(),
	}}, nil
}

func (op *timeOp) Kind() Kind { return KindTime }

// Execute generates a clean table and state, then times one analyze call on
// them. The process table context is not used.
func (op *timeOp) Execute(_ context.Context, key string, in codec.Payload) (codec.Payload, error) {
	var rec timeRecord
	if err := in.Decode(&rec); err != nil {
		return nil, xerr.NewMalformedRecord("cannot decode record", err)
	}
	if rec.Seed == nil {
		return nil, xerr.NewMalformedRecord("record has no SEED", nil)
	}
	gen, err := decodeGeneration(in, op.env.Command.Generation)
	if err != nil {
		return nil, err
	}
	gen.MaxMean, gen.MaxStd = timeMaxMean, timeMaxStd

	opts := op.opts
	if rec.NSteps != nil {
		opts.Steps = *rec.NSteps
	}
	if rec.KernelList != nil {
		if opts.Kernels, err = engine.ValidateKernels(rec.KernelList); err != nil {
			return nil, xerr.NewMalformedRecord("invalid kernel_list", err)
		}
	}
	if rec.MaxTime != nil {
		cmd := types.CommandDescriptor{MaxTime: *rec.MaxTime}
		opts.MaxTime = cmd.TimeBudget()
	}
	if opts.Steps < 0 {
		return nil, xerr.NewMalformedRecord(fmt.Sprintf("n_steps must be non-negative, got %d", opts.Steps), nil)
	}

	table, st, err := synth.CleanState(*rec.Seed, gen)
	if err != nil {
		return nil, xerr.NewMalformedRecord("invalid generation parameters", err)
	}
	startDims := st.Shape()

	start := op.env.now()
	end, _, err := op.env.Engine.Analyze(table, st, *rec.Seed, opts)
	if err != nil {
		return nil, engineFailure("analyze", err)
	}
	elapsed := op.env.since(start)
	op.env.Metrics.AddEngineSteps(string(KindTime), opts.Steps)

	op.env.Logger.Debug("timed analyze",
		zap.String("key", key),
		zap.Int("rows", gen.NumRows),
		zap.Int("cols", gen.NumCols),
		zap.Float64("elapsed_secs", elapsed))
	return encode(timeResult{
		TableShape:  table.Shape(),
		StartDims:   startDims,
		EndDims:     end.Shape(),
		ElapsedSecs: elapsed,
		KernelList:  opts.Kernels,
		NSteps:      opts.Steps,
	})
}

type convergenceRecord struct {
	Seed   *int64 `json:"SEED"`
	NSteps *int   `json:"n_steps"`
}

type convergenceResult struct {
	NumRows              int       `json:"num_rows"`
	NumCols              int       `json:"num_cols"`
	NumViews             int       `json:"num_views"`
	NumClusters          int       `json:"num_clusters"`
	MaxMean              float64   `json:"max_mean"`
	ColumnARIList        []float64 `json:"column_ari_list"`
	MeanTestLLList       []float64 `json:"mean_test_ll_list"`
	GenerativeMeanTestLL float64   `json:"generative_mean_test_log_likelihood"`
	ElapsedSecondsList   []float64 `json:"elapsed_seconds_list"`
	NSteps               int       `json:"n_steps"`
	BlockSize            int       `json:"block_size"`
}

type convergenceOp struct {
	env *Env
}

func newConvergence(env *Env) (Operation, error) {
	return &convergenceOp{env: env}, nil
}

func (op *convergenceOp) Kind() Kind { return KindConvergence }

// Execute tracks column ARI and held-out log-likelihood against a known
// generative clustering across blocks of transitions. Blocks run until the
// completed transition count reaches n_steps; the last block may overshoot.
func (op *convergenceOp) Execute(_ context.Context, key string, in codec.Payload) (codec.Payload, error) {
	var rec convergenceRecord
	if err := in.Decode(&rec); err != nil {
		return nil, xerr.NewMalformedRecord("cannot decode record", err)
	}
	if rec.Seed == nil {
		return nil, xerr.NewMalformedRecord("record has no SEED", nil)
	}
	gen, err := decodeGeneration(in, op.env.Command.Generation)
	if err != nil {
		return nil, err
	}
	if gen.MaxStd <= 0 {
		gen.MaxStd = convergenceMaxStd
	}
	total := op.env.Command.NSteps
	if rec.NSteps != nil {
		total = *rec.NSteps
	}
	switch {
	case total < 0:
		return nil, xerr.NewMalformedRecord(fmt.Sprintf("n_steps must be non-negative, got %d", total), nil)
	case gen.BlockSize <= 0:
		return nil, xerr.NewMalformedRecord(fmt.Sprintf("block_size must be positive, got %d", gen.BlockSize), nil)
	case gen.NTest <= 0:
		return nil, xerr.NewMalformedRecord(fmt.Sprintf("n_test must be positive, got %d", gen.NTest), nil)
	}

	ds, err := synth.Factorial(*rec.Seed, gen)
	if err != nil {
		return nil, xerr.NewMalformedRecord("invalid generation parameters", err)
	}
	genState := ds.GenerativeState()
	test := diagnostics.SimulateRows(model.NewRand(testSetSeed), ds.Table, genState, gen.NTest)
	generativeLL := diagnostics.MeanTestLogLikelihood(ds.Table, genState, test)

	res := convergenceResult{
		NumRows:              gen.NumRows,
		NumCols:              gen.NumCols,
		NumViews:             gen.NumViews,
		NumClusters:          gen.NumClusters,
		MaxMean:              gen.MaxMean,
		GenerativeMeanTestLL: generativeLL,
		NSteps:               total,
		BlockSize:            gen.BlockSize,
	}
	record := func(st types.State, elapsed float64) error {
		ari, err := diagnostics.ColumnARI(st, ds.ColumnViews)
		if err != nil {
			return engineFailure("column ARI", err)
		}
		res.ColumnARIList = append(res.ColumnARIList, ari)
		res.MeanTestLLList = append(res.MeanTestLLList, diagnostics.MeanTestLogLikelihood(ds.Table, st, test))
		res.ElapsedSecondsList = append(res.ElapsedSecondsList, elapsed)
		return nil
	}

	seed := gen.InitSeed
	start := op.env.now()
	st, seed, err := op.env.Engine.Initialize(ds.Table, seed, engine.InitFromThePrior)
	if err != nil {
		return nil, engineFailure("initialize", err)
	}
	if err := record(st, op.env.since(start)); err != nil {
		return nil, err
	}

	opts := engine.AnalyzeOptions{Steps: min(gen.BlockSize, total)}
	for completed := 0; completed < total; completed += gen.BlockSize {
		start = op.env.now()
		st, seed, err = op.env.Engine.Analyze(ds.Table, st, seed, opts)
		if err != nil {
			return nil, engineFailure("analyze", err)
		}
		op.env.Metrics.AddEngineSteps(string(KindConvergence), opts.Steps)
		if err := record(st, op.env.since(start)); err != nil {
			return nil, err
		}
	}

	op.env.Logger.Debug("convergence run complete",
		zap.String("key", key),
		zap.Int("blocks", len(res.ColumnARIList)-1),
		zap.Float64("final_column_ari", res.ColumnARIList[len(res.ColumnARIList)-1]))
	return encode(res)
}

type miRecord struct {
	Seed    *int64 `json:"SEED"`
	CCSeed  *int64 `json:"CCSEED"`
	ID      any    `json:"id"`
	Dataset any    `json:"dataset"`
	Sample  any    `json:"sample"`
}

type miResult struct {
	ID      any     `json:"id"`
	Dataset any     `json:"dataset"`
	Sample  any     `json:"sample"`
	MI      float64 `json:"mi"`
}

type miOp struct {
	env     *Env
	samples int
}

func newMI(env *Env) (Operation, error) {
	if env.Command.MISamples < 0 {
		return nil, fmt.Errorf("mi_samples must be non-negative, got %d", env.Command.MISamples)
	}
	return &miOp{env: env, samples: env.Command.MISamples}, nil
}

func (op *miOp) Kind() Kind { return KindMI }

// Execute burns in an engine on correlated synthetic data starting from the
// generating state, then averages mutual information over every pair of
// columns that share a view in the inferred partition.
func (op *miOp) Execute(_ context.Context, key string, in codec.Payload) (codec.Payload, error) {
	var rec miRecord
	if err := in.Decode(&rec); err != nil {
		return nil, xerr.NewMalformedRecord("cannot decode record", err)
	}
	switch {
	case rec.Seed == nil:
		return nil, xerr.NewMalformedRecord("record has no SEED", nil)
	case rec.CCSeed == nil:
		return nil, xerr.NewMalformedRecord("record has no CCSEED", nil)
	}
	gen, err := decodeGeneration(in, op.env.Command.Generation)
	if err != nil {
		return nil, err
	}
	if gen.BurnIn < 0 {
		return nil, xerr.NewMalformedRecord(fmt.Sprintf("burn_in must be non-negative, got %d", gen.BurnIn), nil)
	}

	ds, err := synth.Correlated(*rec.Seed, gen, miMeanRangeFactor*float64(gen.NumClusters))
	if err != nil {
		return nil, xerr.NewMalformedRecord("invalid generation parameters", err)
	}

	st, seed, err := op.env.Engine.Analyze(ds.Table, ds.GenerativeState(), *rec.CCSeed,
		engine.AnalyzeOptions{Steps: gen.BurnIn})
	if err != nil {
		return nil, engineFailure("analyze", err)
	}
	op.env.Metrics.AddEngineSteps(string(KindMI), gen.BurnIn)

	mi, pairs := diagnostics.NewMIEstimator(ds.Table, st, op.samples).MeanSameViewMI(model.NewRand(seed))
	op.env.Logger.Debug("mutual information estimated",
		zap.String("key", key),
		zap.Int("pairs", pairs),
		zap.Float64("mi", mi))
	return encode(miResult{ID: rec.ID, Dataset: rec.Dataset, Sample: rec.Sample, MI: mi})
}
