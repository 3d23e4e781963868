package model

import (
	"math"
	"math/rand/v2"

	"github.com/spaolacci/murmur3"
)

// NewRand returns a deterministic generator for seed. The stream key is
// derived from the seed so neighbouring seeds produce unrelated streams.
func NewRand(seed int64) *rand.Rand {
	var buf [8]byte
	u := uint64(seed)
	for i := range buf {
		buf[i] = byte(u >> (8 * i))
	}
	hi, lo := murmur3.Sum128(buf[:])
	return rand.New(rand.NewPCG(hi, lo))
}

// Gamma draws from Gamma(shape, 1) using Marsaglia and Tsang's method.
func Gamma(rng *rand.Rand, shape float64) float64 {
	if shape < 1 {
		u := rng.Float64()
		for u == 0 {
			u = rng.Float64()
		}
		return Gamma(rng, shape+1) * math.Pow(u, 1/shape)
	}
	d := shape - 1.0/3
	c := 1 / math.Sqrt(9*d)
	for {
		x := rng.NormFloat64()
		v := 1 + c*x
		if v <= 0 {
			continue
		}
		v = v * v * v
		u := rng.Float64()
		if u < 1-0.0331*x*x*x*x {
			return d * v
		}
		if u > 0 && math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}

// StudentT draws a standard Student-t variate with df degrees of freedom.
func StudentT(rng *rand.Rand, df float64) float64 {
	chi2 := 2 * Gamma(rng, df/2)
	return rng.NormFloat64() / math.Sqrt(chi2/df)
}

// Categorical samples an index proportional to exp(logWeights).
func Categorical(rng *rand.Rand, logWeights []float64) int {
	maxW := math.Inf(-1)
	for _, w := range logWeights {
		if w > maxW {
			maxW = w
		}
	}
	total := 0.0
	probs := make([]float64, len(logWeights))
	for i, w := range logWeights {
		probs[i] = math.Exp(w - maxW)
		total += probs[i]
	}
	u := rng.Float64() * total
	for i, p := range probs {
		u -= p
		if u < 0 {
			return i
		}
	}
	return len(logWeights) - 1
}

// LogSumExp computes log(sum(exp(xs))) stably.
func LogSumExp(xs []float64) float64 {
	maxX := math.Inf(-1)
	for _, x := range xs {
		if x > maxX {
			maxX = x
		}
	}
	if math.IsInf(maxX, -1) {
		return maxX
	}
	sum := 0.0
	for _, x := range xs {
		sum += math.Exp(x - maxX)
	}
	return maxX + math.Log(sum)
}

// CRPLogProb is the log probability of a partition with the given cluster
// counts under a Chinese restaurant process with concentration alpha.
func CRPLogProb(counts []int, alpha float64) float64 {
	n := 0
	lp := float64(len(counts)) * math.Log(alpha)
	for _, c := range counts {
		n += c
		lg, _ := math.Lgamma(float64(c))
		lp += lg
	}
	lgA, _ := math.Lgamma(alpha)
	lgAN, _ := math.Lgamma(alpha + float64(n))
	return lp + lgA - lgAN
}

// SampleCRP draws a partition of n items from a CRP with concentration alpha,
// returning assignments and counts.
func SampleCRP(rng *rand.Rand, n int, alpha float64) ([]int, []int) {
	assignments := make([]int, n)
	var counts []int
	for i := 0; i < n; i++ {
		weights := make([]float64, len(counts)+1)
		for k, c := range counts {
			weights[k] = math.Log(float64(c))
		}
		weights[len(counts)] = math.Log(alpha)
		k := Categorical(rng, weights)
		if k == len(counts) {
			counts = append(counts, 0)
		}
		counts[k]++
		assignments[i] = k
	}
	return assignments, counts
}

// AlphaGrid is the grid of CRP concentrations explored by the hyperparameter
// kernels.
func AlphaGrid(n int) []float64 {
	const points = 31
	hi := math.Max(float64(n), 2)
	grid := make([]float64, points)
	lo := 1.0 / hi
	step := (math.Log(hi) - math.Log(lo)) / float64(points-1)
	for i := range grid {
		grid[i] = math.Exp(math.Log(lo) + float64(i)*step)
	}
	return grid
}
