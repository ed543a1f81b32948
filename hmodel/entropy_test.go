package hmodel

import (
	"math"
	"testing"

	"github.com/gonum/matrix/mat64"
	"golang.org/x/exp/rand"
)

func TestEntropyGaussian(tst *testing.T) {
	rng := rand.New(rand.NewSource(4))
	for _, sd := range [][]float64{{1, 1}, {0.5, 2, 1}} {
		d := len(sd)
		x := normalSamples(rng, 2000, make([]float64, d), sd)
		exp := float64(d) / 2 * math.Log(2*math.Pi*math.E)
		for _, s := range sd {
			exp += math.Log(s)
		}
		for _, lag := range []int{0, 10} {
			if h, _ := Entropy(x, lag); math.Abs(h-exp) > 0.15 {
				tst.Errorf("Wrong entropy estimate %v (lag %d), expected %v", h, lag, exp)
			}
		}
	}
}

func TestEntropyRepeatedRows(tst *testing.T) {
	rng := rand.New(rand.NewSource(5))
	x := normalSamples(rng, 300, []float64{0, 0}, []float64{1, 1})
	doubled := mat64.NewDense(600, 2, nil)
	for i := 0; i < 300; i++ {
		doubled.SetRow(2*i, x.RawRowView(i))
		doubled.SetRow(2*i+1, x.RawRowView(i))
	}
	for _, lag := range []int{0, 3} {
		h1, _ := Entropy(x, lag)
		h2, _ := Entropy(doubled, lag)
		if !appreq(h1, h2, 1e-9) {
			tst.Error("Repeated rows change the estimate:", h1, h2)
		}
	}
	if h, _ := Entropy(mat64.NewDense(5, 2, nil), 0); !math.IsInf(h, -1) {
		tst.Error("Entropy of a single point should be -Inf, got", h)
	}
}

func TestEntropyChainNeighbours(tst *testing.T) {
	rng := rand.New(rand.NewSource(6))
	x := normalSamples(rng, 1000, []float64{0, 0}, []float64{1, 1})
	// every sample is followed by a nearly identical one
	chain := mat64.NewDense(2000, 2, nil)
	for i := 0; i < 1000; i++ {
		row := x.RawRowView(i)
		chain.SetRow(2*i, row)
		chain.SetRow(2*i+1, []float64{row[0] + 1e-6*rng.NormFloat64(), row[1] + 1e-6*rng.NormFloat64()})
	}
	exp := math.Log(2 * math.Pi * math.E)
	if h, _ := Entropy(chain, 0); h > exp-5 {
		tst.Error("Chain neighbours should dominate without a lag window:", h)
	}
	if h, _ := Entropy(chain, 1); math.Abs(h-exp) > 1 {
		tst.Errorf("Wrong entropy estimate with a lag window: %v, expected %v", h, exp)
	}
	h, se := Entropy(x, 0)
	if se <= 0 || se > 0.2 || math.Abs(h-exp) > 5*se+0.1 {
		tst.Error("Wrong entropy standard error:", h, se)
	}
}
