// Package synth generates synthetic tables with a known latent structure for
// the benchmarking and diagnostic operations.
//
// Columns are split into contiguous view blocks and, within every view, rows
// are split into equal clusters whose order is shuffled independently per
// view. The generative assignments are kept so callers can score inferred
// states against ground truth.
package synth

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/arkilian/xcat/internal/model"
	"github.com/arkilian/xcat/pkg/types"
)

// Dataset is a generated table together with its ground-truth structure.
type Dataset struct {
	Table *types.TableContext
	// ColumnViews maps each column to its generating view.
	ColumnViews []int
	// RowClusters holds, per view, the generating cluster of every row.
	RowClusters [][]int
}

// ColumnViews returns the ground-truth view of each column when numCols
// columns are split into numViews contiguous blocks.
func ColumnViews(numCols, numViews int) []int {
	out := make([]int, numCols)
	for v := 0; v < numViews; v++ {
		lo, hi := blockBounds(v, numCols, numViews)
		for c := lo; c < hi; c++ {
			out[c] = v
		}
	}
	return out
}

func blockBounds(i, n, blocks int) (int, int) {
	return i * n / blocks, (i + 1) * n / blocks
}

// rowClusters draws a shuffled equal-size clustering of numRows rows for each
// view.
func rowClusters(rng *rand.Rand, numRows, numClusters, numViews int) [][]int {
	out := make([][]int, numViews)
	for v := range out {
		perm := rng.Perm(numRows)
		assign := make([]int, numRows)
		for k := 0; k < numClusters; k++ {
			lo, hi := blockBounds(k, numRows, numClusters)
			for i := lo; i < hi; i++ {
				assign[perm[i]] = k
			}
		}
		out[v] = assign
	}
	return out
}

// Factorial generates independent normal columns whose means depend on the
// row's cluster in the column's view. Means are uniform on [0, maxMean] and
// standard deviations uniform on [maxStd/2, maxStd].
func Factorial(seed int64, p types.GenerationParams) (*Dataset, error) {
	if err := p.ValidateLayout(); err != nil {
		return nil, err
	}
	if p.MaxMean < 0 || p.MaxStd <= 0 {
		return nil, fmt.Errorf("%w: max_mean=%v max_std=%v", types.ErrInvalidGeneration, p.MaxMean, p.MaxStd)
	}
	rng := model.NewRand(seed)
	ds := &Dataset{
		ColumnViews: ColumnViews(p.NumCols, p.NumViews),
		RowClusters: rowClusters(rng, p.NumRows, p.NumClusters, p.NumViews),
	}

	means := make([][]float64, p.NumCols)
	stds := make([][]float64, p.NumCols)
	for c := range means {
		means[c] = make([]float64, p.NumClusters)
		stds[c] = make([]float64, p.NumClusters)
		for k := range means[c] {
			means[c][k] = rng.Float64() * p.MaxMean
			stds[c][k] = p.MaxStd * (0.5 + 0.5*rng.Float64())
		}
	}

	data := make([][]float64, p.NumRows)
	for r := range data {
		row := make([]float64, p.NumCols)
		for c := range row {
			k := ds.RowClusters[ds.ColumnViews[c]][r]
			row[c] = means[c][k] + stds[c][k]*rng.NormFloat64()
		}
		data[r] = row
	}
	ds.Table = types.NewTableContext(data)
	return ds, nil
}

// Correlated generates columns that, within each cluster of a view, are
// jointly normal with unit variance and pairwise correlation corr. Cluster
// means are uniform on [0, meanRange].
func Correlated(seed int64, p types.GenerationParams, meanRange float64) (*Dataset, error) {
	if err := p.ValidateLayout(); err != nil {
		return nil, err
	}
	if p.Corr < 0 || p.Corr >= 1 || math.IsNaN(p.Corr) {
		return nil, fmt.Errorf("%w: corr=%v not in [0, 1)", types.ErrInvalidGeneration, p.Corr)
	}
	rng := model.NewRand(seed)
	ds := &Dataset{
		ColumnViews: ColumnViews(p.NumCols, p.NumViews),
		RowClusters: rowClusters(rng, p.NumRows, p.NumClusters, p.NumViews),
	}

	means := make([][]float64, p.NumCols)
	for c := range means {
		means[c] = make([]float64, p.NumClusters)
		for k := range means[c] {
			means[c][k] = rng.Float64() * meanRange
		}
	}

	shared, own := math.Sqrt(p.Corr), math.Sqrt(1-p.Corr)
	data := make([][]float64, p.NumRows)
	for r := range data {
		data[r] = make([]float64, p.NumCols)
	}
	for v := 0; v < p.NumViews; v++ {
		lo, hi := blockBounds(v, p.NumCols, p.NumViews)
		for r := range data {
			z := rng.NormFloat64()
			k := ds.RowClusters[v][r]
			for c := lo; c < hi; c++ {
				data[r][c] = means[c][k] + shared*z + own*rng.NormFloat64()
			}
		}
	}
	ds.Table = types.NewTableContext(data)
	return ds, nil
}

// GenerativeState builds the latent state that generated ds, with default
// hyperparameters derived from the data.
func (ds *Dataset) GenerativeState() types.State {
	numCols := len(ds.ColumnViews)
	numViews := len(ds.RowClusters)
	st := types.State{
		XL: types.XL{
			ColumnPartition: types.ColumnPartition{
				Assignments: append([]int(nil), ds.ColumnViews...),
				Counts:      make([]int, numViews),
				Hypers:      types.CRPHypers{Alpha: 1},
			},
			ColumnHypers: make([]types.ColumnHypers, numCols),
			ViewState:    make([]types.ViewState, numViews),
		},
		XD: make(types.XD, numViews),
	}
	for c, v := range ds.ColumnViews {
		st.XL.ColumnPartition.Counts[v]++
		st.XL.ColumnHypers[c] = model.DefaultHypers(ds.Table.Column(c))
		st.XL.ViewState[v].ColumnIndices = append(st.XL.ViewState[v].ColumnIndices, c)
	}
	for v, assign := range ds.RowClusters {
		numClusters := 0
		for _, k := range assign {
			numClusters = max(numClusters, k+1)
		}
		counts := make([]int, numClusters)
		for _, k := range assign {
			counts[k]++
		}
		st.XL.ViewState[v].RowPartitionModel = types.RowPartitionModel{
			Counts: counts,
			Hypers: types.CRPHypers{Alpha: 1},
		}
		st.XD[v] = append([]int(nil), assign...)
	}
	return st
}

// CleanState generates a factorial table and the state that generated it.
func CleanState(seed int64, p types.GenerationParams) (*types.TableContext, types.State, error) {
	ds, err := Factorial(seed, p)
	if err != nil {
		return nil, types.State{}, err
	}
	return ds.Table, ds.GenerativeState(), nil
}
