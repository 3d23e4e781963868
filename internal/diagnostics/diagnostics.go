// Package diagnostics scores latent partition states: agreement with a
// ground-truth partition, held-out log-likelihood, and sampled mutual
// information between columns.
package diagnostics

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/arkilian/xcat/internal/model"
	"github.com/arkilian/xcat/pkg/types"
)

// ARI is the adjusted Rand index between two labelings of the same items.
// Two labelings that are both trivial (a single group, or all singletons,
// in both) agree perfectly and score 1.
func ARI(a, b []int) float64 {
	if len(a) != len(b) {
		panic("diagnostics: ARI of labelings with different lengths")
	}
	n := len(a)
	if n < 2 {
		return 1
	}
	type pair struct{ x, y int }
	joint := map[pair]int{}
	rows := map[int]int{}
	cols := map[int]int{}
	for i := range a {
		joint[pair{a[i], b[i]}]++
		rows[a[i]]++
		cols[b[i]]++
	}
	choose2 := func(k int) float64 { return float64(k) * float64(k-1) / 2 }

	var index, sumRows, sumCols float64
	for _, c := range joint {
		index += choose2(c)
	}
	for _, c := range rows {
		sumRows += choose2(c)
	}
	for _, c := range cols {
		sumCols += choose2(c)
	}
	expected := sumRows * sumCols / choose2(n)
	maxIndex := (sumRows + sumCols) / 2
	if maxIndex == expected {
		return 1
	}
	return (index - expected) / (maxIndex - expected)
}

// ColumnARI scores the column-to-view partition of st against truth.
func ColumnARI(st types.State, truth []int) (float64, error) {
	assign := st.XL.ColumnPartition.Assignments
	if len(assign) != len(truth) {
		return 0, fmt.Errorf("column ARI: state has %d columns, ground truth %d", len(assign), len(truth))
	}
	return ARI(assign, truth), nil
}

// viewSummary caches what predictive queries need for one view: the log CRP
// weight of every existing cluster plus a trailing new cluster, and per
// cluster statistics for each of the view's columns.
type viewSummary struct {
	cols       []int
	logWeights []float64
	stats      [][]model.SuffStats // [cluster][position in cols]
}

func summarize(table *types.TableContext, st types.State) []viewSummary {
	out := make([]viewSummary, len(st.XL.ViewState))
	for v, vs := range st.XL.ViewState {
		counts := vs.RowPartitionModel.Counts
		alpha := vs.RowPartitionModel.Hypers.Alpha
		if alpha <= 0 {
			alpha = 1
		}
		var cols []int
		for c, cv := range st.XL.ColumnPartition.Assignments {
			if cv == v {
				cols = append(cols, c)
			}
		}
		total := float64(len(st.XD[v])) + alpha
		logWeights := make([]float64, len(counts)+1)
		for k, n := range counts {
			logWeights[k] = math.Log(float64(n) / total)
		}
		logWeights[len(counts)] = math.Log(alpha / total)

		stats := make([][]model.SuffStats, len(counts)+1)
		for k := range stats {
			stats[k] = make([]model.SuffStats, len(cols))
		}
		for r, k := range st.XD[v] {
			for j, c := range cols {
				stats[k][j].Add(table.T[r][c])
			}
		}
		out[v] = viewSummary{cols: cols, logWeights: logWeights, stats: stats}
	}
	return out
}

// logProbRow is log p(row restricted to the view's columns).
func (vs *viewSummary) logProbRow(hypers []types.ColumnHypers, row []float64) float64 {
	terms := make([]float64, len(vs.logWeights))
	for k, lw := range vs.logWeights {
		terms[k] = lw
		for j, c := range vs.cols {
			terms[k] += model.LogPredictive(hypers[c], vs.stats[k][j], row[c])
		}
	}
	return model.LogSumExp(terms)
}

// MeanTestLogLikelihood is the average log predictive probability st assigns
// to the held-out rows.
func MeanTestLogLikelihood(table *types.TableContext, st types.State, test [][]float64) float64 {
	if len(test) == 0 {
		return 0
	}
	views := summarize(table, st)
	total := 0.0
	for _, row := range test {
		for i := range views {
			total += views[i].logProbRow(st.XL.ColumnHypers, row)
		}
	}
	return total / float64(len(test))
}

// SimulateRows draws n rows from the posterior predictive of st.
func SimulateRows(rng *rand.Rand, table *types.TableContext, st types.State, n int) [][]float64 {
	views := summarize(table, st)
	out := make([][]float64, n)
	for i := range out {
		row := make([]float64, table.NumCols())
		for _, vs := range views {
			k := model.Categorical(rng, vs.logWeights)
			for j, c := range vs.cols {
				row[c] = model.SamplePredictive(rng, st.XL.ColumnHypers[c], vs.stats[k][j])
			}
		}
		out[i] = row
	}
	return out
}
