package engine

import (
	"testing"

	"github.com/arkilian/xcat/internal/synth"
	"github.com/arkilian/xcat/pkg/types"
)

// BenchmarkGibbsAnalyze measures transition throughput on a synthetic table
// with known structure.
func BenchmarkGibbsAnalyze(b *testing.B) {
	ds, err := synth.Factorial(0, types.GenerationParams{
		NumRows: 200, NumCols: 8, NumViews: 2, NumClusters: 4, MaxMean: 10, MaxStd: 1,
	})
	if err != nil {
		b.Fatal(err)
	}
	g := NewGibbs()
	state, seed, err := g.Initialize(ds.Table, 1, InitFromThePrior)
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		state, seed, err = g.Analyze(ds.Table, state, seed, AnalyzeOptions{Steps: 1})
		if err != nil {
			b.Fatal(err)
		}
	}
	b.ReportMetric(float64(b.N)/b.Elapsed().Seconds(), "steps/sec")
}
