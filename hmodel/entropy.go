package hmodel

import (
	"math"

	"github.com/gonum/mathext"
	"github.com/gonum/matrix/mat64"
	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/stat"
)

// logUnitBallVolume returns the log-volume of a d-dimensional unit ball.
func logUnitBallVolume(d int) float64 {
	lg, _ := math.Lgamma(float64(d)/2 + 1)
	return float64(d)/2*math.Log(math.Pi) - lg
}

// Entropy estimates the differential entropy of a sample cloud (one
// sample per row) using the Kozachenko-Leonenko nearest-neighbour
// estimator. Repeated consecutive rows (rejected MCMC proposals) are
// counted once. Rows less than or equal to lag positions apart in the
// deduplicated chain are never neighbours of each other, lag 0 gives
// the usual estimator. The standard error of the estimate is returned
// as well.
func Entropy(x *mat64.Dense, lag int) (h, se float64) {
	r, d := x.Dims()
	points := make(kdtree.Points, 0, r)
	for i := 0; i < r; i++ {
		row := x.RawRowView(i)
		if i > 0 && equalRows(row, x.RawRowView(i-1)) {
			continue
		}
		points = append(points, kdtree.Point(append([]float64(nil), row...)))
	}
	n := len(points)
	if lag > (n-2)/2 {
		lag = (n - 2) / 2
	}
	if n < 2 || lag < 0 {
		return math.Inf(-1), 0
	}
	// the tree reorders points but not their backing arrays
	index := make(map[*float64]int, n)
	for i, p := range points {
		index[&p[0]] = i
	}
	queries := append(kdtree.Points(nil), points...)
	tree := kdtree.New(points, false)

	terms := make([]float64, 0, n)
	for i, q := range queries {
		dist2 := nearestOutsideLag(tree, q, i, lag, n, index)
		if dist2 == 0 || math.IsInf(dist2, 0) {
			continue
		}
		terms = append(terms, float64(d)*math.Log(dist2)/2)
	}
	if len(terms) == 0 {
		return math.Inf(-1), 0
	}
	mean, sd := stat.MeanStdDev(terms, nil)
	h = mathext.Digamma(float64(n-2*lag)) - mathext.Digamma(1) + logUnitBallVolume(d) + mean
	if len(terms) > 1 {
		se = sd / math.Sqrt(float64(len(terms)))
	}
	return h, se
}

// nearestOutsideLag returns the squared distance from the i-th point
// to its nearest neighbour at least lag+1 positions away.
func nearestOutsideLag(tree *kdtree.Tree, q kdtree.Point, i, lag, n int, index map[*float64]int) float64 {
	for k := 2*lag + 2; ; k *= 2 {
		keeper := kdtree.NewNKeeper(k)
		tree.NearestSet(keeper, q)
		best := math.Inf(1)
		for _, c := range keeper.Heap {
			if c.Comparable == nil || c.Dist >= best {
				continue
			}
			p := c.Comparable.(kdtree.Point)
			j := index[&p[0]]
			if j-i > lag || i-j > lag {
				best = c.Dist
			}
		}
		if !math.IsInf(best, 1) || k >= n {
			return best
		}
	}
}

func equalRows(a, b []float64) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
