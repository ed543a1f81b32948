package hmodel

import (
	"math"
	"testing"

	"github.com/gonum/matrix/mat64"
	"github.com/op/go-logging"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"

	"bitbucket.org/Davydov/pcmodel/obs"
)

func init() {
	logging.SetLevel(logging.WARNING, "hmodel")
	logging.SetLevel(logging.WARNING, "optimize")
	logging.SetLevel(logging.WARNING, "obs")
}

func appreq(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}

func threeObjectLayout() *obs.Layout {
	return &obs.Layout{
		Objects:           []string{"ref", "A", "B"},
		TestConditions:    []obs.TestCondition{{"quiet"}, {"noise"}},
		NDifferenceGrades: 2,
		ForcedChoice:      true,
		Attributes:        []string{"preference", "loudness"},
	}
}

func simpleLayout() *obs.Layout {
	return &obs.Layout{
		Objects:           []string{"ref", "A", "B"},
		NDifferenceGrades: 1,
		ForcedChoice:      true,
		Attributes:        []string{"preference", "loudness"},
	}
}

// normalSamples returns n rows drawn from N(loc, sd^2) per column.
func normalSamples(rng *rand.Rand, n int, loc, sd []float64) *mat64.Dense {
	x := mat64.NewDense(n, len(loc), nil)
	for i := 0; i < n; i++ {
		for j := range loc {
			x.Set(i, j, loc[j]+sd[j]*rng.NormFloat64())
		}
	}
	return x
}

func TestPriorKL(tst *testing.T) {
	layout := threeObjectLayout()
	prior := NewPopulationPrior(layout, NewPriorSettings(), false)
	pop := NewPopulationPosterior(prior, layout.NQ(), 1)
	if kl := pop.KL(); math.Abs(kl) > 1e-12 {
		tst.Error("KL to itself should be zero, got", kl)
	}

	rng := rand.New(rand.NewSource(1))
	d := layout.NParameters()
	loc := make([]float64, d)
	sd := make([]float64, d)
	for i := range loc {
		loc[i] = rng.NormFloat64()
		sd[i] = 0.5
	}
	var samples []*mat64.Dense
	for s := 0; s < 10; s++ {
		samples = append(samples, RecenterWidths(normalSamples(rng, 50, loc, sd), layout.NQ()))
	}
	adapted := pop.Adapt(samples)
	if kl := adapted.KL(); kl <= 0 {
		tst.Error("KL should be positive after adaptation, got", kl)
	}
	if adapted.Prior() != prior {
		tst.Error("Adapted population should keep the shared prior")
	}
}

func TestPopulationAdapt(tst *testing.T) {
	layout := &obs.Layout{
		Objects:           []string{"ref", "A"},
		NDifferenceGrades: 1,
		ForcedChoice:      true,
		Attributes:        []string{"preference"},
	}
	ps := NewPriorSettings()
	prior := NewPopulationPrior(layout, ps, false)
	pop := NewPopulationPosterior(prior, layout.NQ(), ps.LearnedWeight)

	// two subjects with constant samples 1 and 3
	s1 := mat64.NewDense(2, 2, []float64{1, 0, 1, 0})
	s2 := mat64.NewDense(2, 2, []float64{3, 0, 3, 0})
	p := pop.Adapt([]*mat64.Dense{s1, s2})

	beta := ps.Beta0 + 2
	if !appreq(p.Beta[0], beta, 1e-12) {
		tst.Error("Wrong beta:", p.Beta[0])
	}
	if !appreq(p.Loc[0], 2*2/beta, 1e-12) {
		tst.Error("Wrong location:", p.Loc[0])
	}
	if !appreq(p.Shape[0], ps.Shape0+1, 1e-12) {
		tst.Error("Wrong shape:", p.Shape[0])
	}
	rate := ps.Shape0 + 2.0/2 + ps.Beta0*2*4/(2*beta)
	if !appreq(p.Rate[0], rate, 1e-12) {
		tst.Error("Wrong rate:", p.Rate[0], "expected", rate)
	}
}

func TestNullQualityPopulation(tst *testing.T) {
	layout := threeObjectLayout()
	prior := NewPopulationPrior(layout, NewPriorSettings(), true)
	pop := NewPopulationPosterior(prior, layout.NQ(), 1)
	rng := rand.New(rand.NewSource(2))
	d := layout.NParameters()
	loc := make([]float64, d)
	sd := make([]float64, d)
	for i := range loc {
		loc[i] = 2
		sd[i] = 0.3
	}
	var samples []*mat64.Dense
	for s := 0; s < 5; s++ {
		samples = append(samples, normalSamples(rng, 30, loc, sd))
	}
	p := pop.Adapt(samples)
	for i := 0; i < layout.NQ(); i++ {
		if p.Loc[i] != 0 {
			tst.Error("Fixed quality mean moved:", p.Loc[i])
		}
		// scatter is computed around zero
		if p.MeanPrecision()[i] > 1 {
			tst.Error("Precision should reflect the distance from zero, got", p.MeanPrecision()[i])
		}
	}
	means := p.MeanPredictive(100, rng)
	for i := 0; i < layout.NQ(); i++ {
		for k := 0; k < 100; k++ {
			if means.At(k, i) != 0 {
				tst.Fatal("Population mean quality samples should be zero")
			}
		}
	}
}

func TestGradMeanLogPdf(tst *testing.T) {
	g := (&GaussGamma{
		Loc:   []float64{0.5, -1, 2},
		Beta:  []float64{1, 2, 3},
		Shape: []float64{2, 3, 4},
		Rate:  []float64{1, 0.5, 2},
		Fixed: []bool{false, true, false},
	}).complete()
	x := []float64{0.1, 0.7, -0.4}
	grad := make([]float64, 3)
	g.GradMeanLogPdf(x, grad)
	for i := range x {
		xi := x[i]
		x[i] = xi + 1e-6
		l2 := g.MeanLogPdf(x)
		x[i] = xi - 1e-6
		l1 := g.MeanLogPdf(x)
		x[i] = xi
		fd := (l2 - l1) / 2e-6
		if !appreq(fd, grad[i], 1e-5) {
			tst.Errorf("grad[%d]=%v, finite difference %v", i, grad[i], fd)
		}
	}
}

func TestPredictiveVariance(tst *testing.T) {
	pop := &PopulationPosterior{
		GaussGamma: (&GaussGamma{
			Loc:   []float64{1},
			Beta:  []float64{1},
			Shape: []float64{10},
			Rate:  []float64{10},
		}).complete(),
	}
	rng := rand.New(rand.NewSource(3))
	n := 20000
	x := pop.Predictive(n, rng)
	col := mat64.Col(nil, 0, x)
	mean, variance := stat.MeanVariance(col, nil)
	// scale^2 = b(beta+1)/(a beta) = 2, variance = scale^2 nu/(nu-2)
	exp := 2 * 20.0 / 18
	if math.Abs(mean-1) > 0.05 {
		tst.Error("Wrong predictive mean:", mean)
	}
	if !appreq(variance, exp, 0.1) {
		tst.Error("Wrong predictive variance:", variance, "expected", exp)
	}

	x = pop.MeanPredictive(n, rng)
	col = mat64.Col(nil, 0, x)
	_, variance = stat.MeanVariance(col, nil)
	exp = 1 * 20.0 / 18
	if !appreq(variance, exp, 0.1) {
		tst.Error("Wrong mean predictive variance:", variance, "expected", exp)
	}
	if p := pop.MeanProbPositive(0); p < 0.75 || p > 0.9 {
		tst.Error("Wrong probability of a positive mean:", p)
	}
}

func TestRecenterWidths(tst *testing.T) {
	x := mat64.NewDense(2, 4, []float64{
		1, 2, 3, 4,
		5, 1, 1, 1,
	})
	r := RecenterWidths(x, 1)
	for i := 0; i < 2; i++ {
		row := r.RawRowView(i)
		if row[0] != x.At(i, 0) {
			tst.Error("Quality changed")
		}
		if s := row[1] + row[2] + row[3]; math.Abs(s) > 1e-12 {
			tst.Error("Widths do not sum to zero:", row)
		}
	}
	if x.At(0, 1) != 2 {
		tst.Error("Input matrix modified")
	}
}
