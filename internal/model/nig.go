// Package model implements the normal-inverse-gamma component model used for
// continuous columns: sufficient statistics, marginal likelihoods, posterior
// predictive densities and draws.
//
// Parameterization: precision tau ~ Gamma(nu/2, rate s/2) and
// mu | tau ~ Normal(m, 1/(r*tau)).
package model

import (
	"math"
	"math/rand/v2"

	"github.com/arkilian/xcat/pkg/types"
)

const (
	logTwoPi = 1.8378770664093453 // log(2*pi)
	minS     = 1e-12
)

// SuffStats are the sufficient statistics of a set of observations.
type SuffStats struct {
	N     int
	Sum   float64
	SumSq float64
}

// Add includes x.
func (s *SuffStats) Add(x float64) {
	s.N++
	s.Sum += x
	s.SumSq += x * x
}

// Remove excludes x. The caller guarantees x was previously added.
func (s *SuffStats) Remove(x float64) {
	s.N--
	if s.N == 0 {
		*s = SuffStats{}
		return
	}
	s.Sum -= x
	s.SumSq -= x * x
}

// Merge adds other into s.
func (s *SuffStats) Merge(other SuffStats) {
	s.N += other.N
	s.Sum += other.Sum
	s.SumSq += other.SumSq
}

// Posterior returns the hyperparameters after observing s.
func Posterior(h types.ColumnHypers, s SuffStats) types.ColumnHypers {
	if s.N == 0 {
		return h
	}
	n := float64(s.N)
	rPost := h.R + n
	nuPost := h.Nu + n
	mean := s.Sum / n
	scatter := s.SumSq - s.Sum*mean
	if scatter < 0 {
		scatter = 0
	}
	dev := mean - h.Mu
	sPost := h.S + scatter + h.R*n*dev*dev/rPost
	if sPost < minS {
		sPost = minS
	}
	return types.ColumnHypers{
		Mu: (h.R*h.Mu + s.Sum) / rPost,
		R:  rPost,
		Nu: nuPost,
		S:  sPost,
	}
}

// logZ is the log normalizer of the normal-gamma density.
func logZ(h types.ColumnHypers) float64 {
	a := h.Nu / 2
	lg, _ := math.Lgamma(a)
	return lg - a*math.Log(h.S/2) + 0.5*logTwoPi - 0.5*math.Log(h.R)
}

// LogMarginal is log p(x_1..x_n) with the mean and precision integrated out.
func LogMarginal(h types.ColumnHypers, s SuffStats) float64 {
	if s.N == 0 {
		return 0
	}
	return logZ(Posterior(h, s)) - logZ(h) - float64(s.N)/2*logTwoPi
}

// LogPredictive is log p(x | observations summarized by s).
func LogPredictive(h types.ColumnHypers, s SuffStats, x float64) float64 {
	post := Posterior(h, s)
	df := post.Nu
	scale2 := post.S * (post.R + 1) / (post.R * post.Nu)
	return studentTLogPDF(x, df, post.Mu, scale2)
}

// SamplePredictive draws x from the posterior predictive given s.
func SamplePredictive(rng *rand.Rand, h types.ColumnHypers, s SuffStats) float64 {
	post := Posterior(h, s)
	df := post.Nu
	scale := math.Sqrt(post.S * (post.R + 1) / (post.R * post.Nu))
	return post.Mu + scale*StudentT(rng, df)
}

func studentTLogPDF(x, df, loc, scale2 float64) float64 {
	z := (x - loc) * (x - loc) / scale2
	lgA, _ := math.Lgamma((df + 1) / 2)
	lgB, _ := math.Lgamma(df / 2)
	return lgA - lgB - 0.5*math.Log(df*math.Pi*scale2) - (df+1)/2*math.Log1p(z/df)
}

// DefaultHypers derives weakly informative hyperparameters from a column:
// centered on the empirical mean with a prior scale matching its variance.
func DefaultHypers(column []float64) types.ColumnHypers {
	var s SuffStats
	for _, x := range column {
		s.Add(x)
	}
	mu, variance := 0.0, 1.0
	if s.N > 0 {
		mu = s.Sum / float64(s.N)
	}
	if s.N > 1 {
		variance = (s.SumSq - s.Sum*mu) / float64(s.N-1)
	}
	if variance < 1e-6 {
		variance = 1e-6
	}
	const nu = 2.0
	return types.ColumnHypers{Mu: mu, R: 1, Nu: nu, S: variance * nu}
}
