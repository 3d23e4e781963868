package diagnostics

import (
	"math/rand/v2"

	"github.com/arkilian/xcat/internal/model"
	"github.com/arkilian/xcat/pkg/types"
)

// DefaultMISamples is the number of joint draws per column pair.
const DefaultMISamples = 1000

// ColumnPair is an unordered pair of column indices.
type ColumnPair struct {
	A, B int
}

// SameViewPairs lists every pair of distinct columns that st places in the
// same view, ordered by view and then by column.
func SameViewPairs(st types.State) []ColumnPair {
	byView := make([][]int, len(st.XL.ViewState))
	for c, v := range st.XL.ColumnPartition.Assignments {
		byView[v] = append(byView[v], c)
	}
	var pairs []ColumnPair
	for _, cols := range byView {
		for i := 0; i < len(cols); i++ {
			for j := i + 1; j < len(cols); j++ {
				pairs = append(pairs, ColumnPair{A: cols[i], B: cols[j]})
			}
		}
	}
	return pairs
}

// MIEstimator estimates mutual information between columns of one state.
type MIEstimator struct {
	table   *types.TableContext
	state   types.State
	views   []viewSummary
	samples int
}

// NewMIEstimator prepares an estimator drawing samples joint values per
// pair. A non-positive sample count selects DefaultMISamples.
func NewMIEstimator(table *types.TableContext, st types.State, samples int) *MIEstimator {
	if samples <= 0 {
		samples = DefaultMISamples
	}
	return &MIEstimator{table: table, state: st, views: summarize(table, st), samples: samples}
}

// Pair estimates I(A; B) in nats by Monte Carlo: joint values are drawn from
// the view's predictive mixture and the estimate averages
// log p(a,b) - log p(a) - log p(b). Columns in different views are
// independent under the state and score 0. Estimates are clamped at 0.
func (e *MIEstimator) Pair(rng *rand.Rand, p ColumnPair) float64 {
	assign := e.state.XL.ColumnPartition.Assignments
	if p.A == p.B || assign[p.A] != assign[p.B] {
		return 0
	}
	vs := &e.views[assign[p.A]]
	ia, ib := indexOf(vs.cols, p.A), indexOf(vs.cols, p.B)
	ha, hb := e.state.XL.ColumnHypers[p.A], e.state.XL.ColumnHypers[p.B]

	numClusters := len(vs.logWeights)
	joint := make([]float64, numClusters)
	margA := make([]float64, numClusters)
	margB := make([]float64, numClusters)

	total := 0.0
	for i := 0; i < e.samples; i++ {
		k := model.Categorical(rng, vs.logWeights)
		a := model.SamplePredictive(rng, ha, vs.stats[k][ia])
		b := model.SamplePredictive(rng, hb, vs.stats[k][ib])
		for j, lw := range vs.logWeights {
			la := model.LogPredictive(ha, vs.stats[j][ia], a)
			lb := model.LogPredictive(hb, vs.stats[j][ib], b)
			joint[j] = lw + la + lb
			margA[j] = lw + la
			margB[j] = lw + lb
		}
		total += model.LogSumExp(joint) - model.LogSumExp(margA) - model.LogSumExp(margB)
	}
	mi := total / float64(e.samples)
	if mi < 0 {
		return 0
	}
	return mi
}

// MeanSameViewMI averages the pairwise estimate over every same-view column
// pair of st. It returns 0 and a pair count of 0 when no view holds more than
// one column.
func (e *MIEstimator) MeanSameViewMI(rng *rand.Rand) (float64, int) {
	pairs := SameViewPairs(e.state)
	if len(pairs) == 0 {
		return 0, 0
	}
	total := 0.0
	for _, p := range pairs {
		total += e.Pair(rng, p)
	}
	return total / float64(len(pairs)), len(pairs)
}

func indexOf(xs []int, x int) int {
	for i, v := range xs {
		if v == x {
			return i
		}
	}
	return -1
}
