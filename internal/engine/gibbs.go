package engine

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/arkilian/xcat/internal/model"
	"github.com/arkilian/xcat/pkg/types"
)

// hyperGridPoints is the size of the grid the column hyperparameter kernel
// evaluates for the prior scale s.
const hyperGridPoints = 15

// Gibbs is the reference collapsed Gibbs engine.
type Gibbs struct {
	now func() time.Time
}

// NewGibbs returns a Gibbs engine using the wall clock for time budgets.
func NewGibbs() *Gibbs {
	return &Gibbs{now: time.Now}
}

var _ Engine = (*Gibbs)(nil)

type cluster struct {
	n     int
	stats []model.SuffStats // indexed by table column
}

type view struct {
	alpha    float64
	cols     []int
	assign   []int
	clusters []*cluster
}

type sampler struct {
	data     [][]float64
	numCols  int
	hypers   []types.ColumnHypers
	colAlpha float64
	colView  []int
	views    []*view
	rng      *rand.Rand
}

// Initialize draws a fresh state for table using the given initialization
// mode. An empty mode means from_the_prior.
func (g *Gibbs) Initialize(table *types.TableContext, seed int64, mode string) (types.State, int64, error) {
	if err := table.Validate(); err != nil {
		return types.State{}, seed, err
	}
	s := &sampler{
		data:     table.T,
		numCols:  table.NumCols(),
		hypers:   make([]types.ColumnHypers, table.NumCols()),
		colAlpha: 1,
		rng:      model.NewRand(seed),
	}
	for c := range s.hypers {
		s.hypers[c] = model.DefaultHypers(table.Column(c))
	}

	numRows := table.NumRows()
	switch mode {
	case "", InitFromThePrior:
		colAssign, colCounts := model.SampleCRP(s.rng, s.numCols, s.colAlpha)
		s.colView = colAssign
		for range colCounts {
			rows, _ := model.SampleCRP(s.rng, numRows, 1)
			s.views = append(s.views, &view{alpha: 1, assign: rows})
		}
	case InitTogether:
		s.colView = make([]int, s.numCols)
		s.views = []*view{{alpha: 1, assign: make([]int, numRows)}}
	case InitApart:
		s.colView = make([]int, s.numCols)
		for c := range s.colView {
			s.colView[c] = c
			rows := make([]int, numRows)
			for r := range rows {
				rows[r] = r
			}
			s.views = append(s.views, &view{alpha: 1, assign: rows})
		}
	default:
		return types.State{}, seed, fmt.Errorf("%w: %q", ErrUnknownInitialization, mode)
	}
	for c, v := range s.colView {
		s.views[v].cols = append(s.views[v].cols, c)
	}
	for _, v := range s.views {
		s.rebuildClusters(v)
	}
	return s.export(), NextSeed(seed), nil
}

// Analyze runs opts.Steps sweeps of the requested kernels over state. When a
// time budget is set the sweep loop stops early once it is exhausted; at
// least one sweep always runs when Steps is positive.
func (g *Gibbs) Analyze(table *types.TableContext, state types.State, seed int64, opts AnalyzeOptions) (types.State, int64, error) {
	if err := table.Validate(); err != nil {
		return types.State{}, seed, err
	}
	if err := state.Validate(table.NumRows(), table.NumCols()); err != nil {
		return types.State{}, seed, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	kernels, err := ValidateKernels(opts.Kernels)
	if err != nil {
		return types.State{}, seed, err
	}
	rows, err := indexSubset(opts.Rows, table.NumRows(), types.ErrRowOutOfRange)
	if err != nil {
		return types.State{}, seed, err
	}
	cols, err := indexSubset(opts.Cols, table.NumCols(), types.ErrColumnOutOfRange)
	if err != nil {
		return types.State{}, seed, err
	}

	now := g.now
	if now == nil {
		now = time.Now
	}
	s := load(table, state, model.NewRand(seed))
	start := now()
	for step := 0; step < opts.Steps; step++ {
		if step > 0 && opts.MaxTime > 0 && now().Sub(start) >= opts.MaxTime {
			break
		}
		for _, k := range kernels {
			switch k {
			case KernelColumnPartitionAssignments:
				for _, c := range cols {
					s.transitionColumn(c)
				}
			case KernelColumnPartitionHyperparameter:
				s.colAlpha = s.sampleAlpha(s.viewCounts(), s.numCols)
			case KernelColumnHyperparameters:
				for _, c := range cols {
					s.transitionColumnHypers(c)
				}
			case KernelRowPartitionHyperparameters:
				for _, v := range s.views {
					v.alpha = s.sampleAlpha(v.counts(), len(v.assign))
				}
			case KernelRowPartitionAssignments:
				for _, v := range s.views {
					for _, r := range rows {
						s.transitionRow(v, r)
					}
				}
			}
		}
	}
	return s.export(), NextSeed(seed), nil
}

func indexSubset(subset []int, n int, outOfRange error) ([]int, error) {
	if len(subset) == 0 {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return all, nil
	}
	for _, i := range subset {
		if i < 0 || i >= n {
			return nil, fmt.Errorf("%w: %d not in [0, %d)", outOfRange, i, n)
		}
	}
	return subset, nil
}

func load(table *types.TableContext, state types.State, rng *rand.Rand) *sampler {
	st := state.Clone()
	s := &sampler{
		data:     table.T,
		numCols:  table.NumCols(),
		hypers:   st.XL.ColumnHypers,
		colAlpha: st.XL.ColumnPartition.Hypers.Alpha,
		colView:  st.XL.ColumnPartition.Assignments,
		rng:      rng,
	}
	if s.colAlpha <= 0 {
		s.colAlpha = 1
	}
	for i, vs := range st.XL.ViewState {
		alpha := vs.RowPartitionModel.Hypers.Alpha
		if alpha <= 0 {
			alpha = 1
		}
		s.views = append(s.views, &view{alpha: alpha, assign: st.XD[i]})
	}
	for c, v := range s.colView {
		s.views[v].cols = append(s.views[v].cols, c)
	}
	for _, v := range s.views {
		s.rebuildClusters(v)
	}
	return s
}

func (s *sampler) newCluster() *cluster {
	return &cluster{stats: make([]model.SuffStats, s.numCols)}
}

// rebuildClusters recomputes cluster statistics of v from its assignments.
func (s *sampler) rebuildClusters(v *view) {
	numClusters := 0
	for _, k := range v.assign {
		if k+1 > numClusters {
			numClusters = k + 1
		}
	}
	v.clusters = make([]*cluster, numClusters)
	for k := range v.clusters {
		v.clusters[k] = s.newCluster()
	}
	for r, k := range v.assign {
		cl := v.clusters[k]
		cl.n++
		for _, c := range v.cols {
			cl.stats[c].Add(s.data[r][c])
		}
	}
	v.compact()
}

// compact removes empty clusters and renumbers assignments densely.
func (v *view) compact() {
	remap := make([]int, len(v.clusters))
	kept := v.clusters[:0]
	for k, cl := range v.clusters {
		if cl.n == 0 {
			remap[k] = -1
			continue
		}
		remap[k] = len(kept)
		kept = append(kept, cl)
	}
	v.clusters = kept
	for r, k := range v.assign {
		v.assign[r] = remap[k]
	}
}

func (v *view) counts() []int {
	out := make([]int, len(v.clusters))
	for k, cl := range v.clusters {
		out[k] = cl.n
	}
	return out
}

func (s *sampler) viewCounts() []int {
	out := make([]int, len(s.views))
	for i, v := range s.views {
		out[i] = len(v.cols)
	}
	return out
}

func (s *sampler) transitionRow(v *view, r int) {
	row := s.data[r]
	old := v.clusters[v.assign[r]]
	old.n--
	for _, c := range v.cols {
		old.stats[c].Remove(row[c])
	}
	if old.n == 0 {
		v.compact()
	}

	logW := make([]float64, len(v.clusters)+1)
	for k, cl := range v.clusters {
		lw := math.Log(float64(cl.n))
		for _, c := range v.cols {
			lw += model.LogPredictive(s.hypers[c], cl.stats[c], row[c])
		}
		logW[k] = lw
	}
	lw := math.Log(v.alpha)
	for _, c := range v.cols {
		lw += model.LogPredictive(s.hypers[c], model.SuffStats{}, row[c])
	}
	logW[len(v.clusters)] = lw

	k := model.Categorical(s.rng, logW)
	if k == len(v.clusters) {
		v.clusters = append(v.clusters, s.newCluster())
	}
	cl := v.clusters[k]
	cl.n++
	for _, c := range v.cols {
		cl.stats[c].Add(row[c])
	}
	v.assign[r] = k
}

// columnStats summarizes column c under the row partition of v.
func (s *sampler) columnStats(v *view, c int) []model.SuffStats {
	stats := make([]model.SuffStats, len(v.clusters))
	for r, k := range v.assign {
		stats[k].Add(s.data[r][c])
	}
	return stats
}

func (s *sampler) columnScore(c int, stats []model.SuffStats) float64 {
	total := 0.0
	for _, st := range stats {
		total += model.LogMarginal(s.hypers[c], st)
	}
	return total
}

func (s *sampler) transitionColumn(c int) {
	old := s.views[s.colView[c]]
	old.cols = removeInt(old.cols, c)
	for _, cl := range old.clusters {
		cl.stats[c] = model.SuffStats{}
	}
	if len(old.cols) == 0 {
		s.removeView(s.colView[c])
	}

	logW := make([]float64, len(s.views)+1)
	for i, v := range s.views {
		logW[i] = math.Log(float64(len(v.cols))) + s.columnScore(c, s.columnStats(v, c))
	}
	assign, _ := model.SampleCRP(s.rng, len(s.data), 1)
	fresh := &view{alpha: 1, assign: assign}
	logW[len(s.views)] = math.Log(s.colAlpha) + s.columnScore(c, s.columnStatsOf(assign, c))

	i := model.Categorical(s.rng, logW)
	if i == len(s.views) {
		s.views = append(s.views, fresh)
		fresh.cols = []int{c}
		s.rebuildClusters(fresh)
	} else {
		v := s.views[i]
		v.cols = insertSorted(v.cols, c)
		for r, k := range v.assign {
			v.clusters[k].stats[c].Add(s.data[r][c])
		}
	}
	s.colView[c] = i
}

func (s *sampler) columnStatsOf(assign []int, c int) []model.SuffStats {
	var stats []model.SuffStats
	for r, k := range assign {
		for k >= len(stats) {
			stats = append(stats, model.SuffStats{})
		}
		stats[k].Add(s.data[r][c])
	}
	return stats
}

func (s *sampler) removeView(i int) {
	s.views = append(s.views[:i], s.views[i+1:]...)
	for c, v := range s.colView {
		if v > i {
			s.colView[c] = v - 1
		}
	}
}

// sampleAlpha draws a CRP concentration from its griddy posterior under a
// uniform prior over AlphaGrid(n).
func (s *sampler) sampleAlpha(counts []int, n int) float64 {
	grid := model.AlphaGrid(n)
	logW := make([]float64, len(grid))
	for i, a := range grid {
		logW[i] = model.CRPLogProb(counts, a)
	}
	return grid[model.Categorical(s.rng, logW)]
}

// transitionColumnHypers resamples the prior scale s of column c on a grid
// spanning two orders of magnitude around the column's empirical scatter.
func (s *sampler) transitionColumnHypers(c int) {
	v := s.views[s.colView[c]]
	base := model.DefaultHypers(columnOf(s.data, c)).S
	lo, hi := math.Log(base/10), math.Log(base*10)
	step := (hi - lo) / float64(hyperGridPoints-1)

	logW := make([]float64, hyperGridPoints)
	candidates := make([]types.ColumnHypers, hyperGridPoints)
	for i := range candidates {
		h := s.hypers[c]
		h.S = math.Exp(lo + float64(i)*step)
		candidates[i] = h
		for _, cl := range v.clusters {
			logW[i] += model.LogMarginal(h, cl.stats[c])
		}
	}
	s.hypers[c] = candidates[model.Categorical(s.rng, logW)]
}

func (s *sampler) export() types.State {
	st := types.State{
		XL: types.XL{
			ColumnPartition: types.ColumnPartition{
				Assignments: append([]int(nil), s.colView...),
				Counts:      s.viewCounts(),
				Hypers:      types.CRPHypers{Alpha: s.colAlpha},
			},
			ColumnHypers: append([]types.ColumnHypers(nil), s.hypers...),
			ViewState:    make([]types.ViewState, len(s.views)),
		},
		XD: make(types.XD, len(s.views)),
	}
	for i, v := range s.views {
		cols := append([]int(nil), v.cols...)
		sort.Ints(cols)
		st.XL.ViewState[i] = types.ViewState{
			RowPartitionModel: types.RowPartitionModel{
				Counts: v.counts(),
				Hypers: types.CRPHypers{Alpha: v.alpha},
			},
			ColumnIndices: cols,
		}
		st.XD[i] = append([]int(nil), v.assign...)
	}
	return st
}

func columnOf(data [][]float64, c int) []float64 {
	out := make([]float64, len(data))
	for r, row := range data {
		out[r] = row[c]
	}
	return out
}

func removeInt(xs []int, x int) []int {
	for i, v := range xs {
		if v == x {
			return append(xs[:i], xs[i+1:]...)
		}
	}
	return xs
}

func insertSorted(xs []int, x int) []int {
	i := sort.SearchInts(xs, x)
	xs = append(xs, 0)
	copy(xs[i+1:], xs[i:])
	xs[i] = x
	return xs
}
