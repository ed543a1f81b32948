package hmodel

import (
	"math"

	"github.com/gonum/matrix/mat64"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"bitbucket.org/Davydov/pcmodel/dist"
	"bitbucket.org/Davydov/pcmodel/obs"
)

const ln2pi = 1.8378770664093453

// GaussGamma is a diagonal Normal-Gamma distribution over the mean and
// precision of every parameter: lambda ~ Gamma(Shape, Rate),
// mu | lambda ~ N(Loc, 1/(Beta*lambda)). Fixed dimensions have the
// mean fixed at Loc, only their precision is learned.
type GaussGamma struct {
	Loc   []float64 `json:"loc"`
	Beta  []float64 `json:"beta"`
	Shape []float64 `json:"shape"`
	Rate  []float64 `json:"rate"`
	Fixed []bool    `json:"fixed"`

	// cached moments, read concurrently by subjects
	expPrec    []float64
	expLogPrec []float64
}

// Dim returns the number of dimensions.
func (g *GaussGamma) Dim() int {
	return len(g.Loc)
}

// complete computes cached moments. It must be called after the
// hyperparameters change.
func (g *GaussGamma) complete() *GaussGamma {
	d := g.Dim()
	if g.Fixed == nil {
		g.Fixed = make([]bool, d)
	}
	g.expPrec = make([]float64, d)
	g.expLogPrec = make([]float64, d)
	for i := range g.Loc {
		g.expPrec[i] = g.Shape[i] / g.Rate[i]
		g.expLogPrec[i] = dist.GammaExpLog(g.Shape[i], g.Rate[i])
	}
	return g
}

// clone returns a deep copy.
func (g *GaussGamma) clone() *GaussGamma {
	return (&GaussGamma{
		Loc:   append([]float64(nil), g.Loc...),
		Beta:  append([]float64(nil), g.Beta...),
		Shape: append([]float64(nil), g.Shape...),
		Rate:  append([]float64(nil), g.Rate...),
		Fixed: append([]bool(nil), g.Fixed...),
	}).complete()
}

// MeanPrecision returns the expected precision of every dimension.
func (g *GaussGamma) MeanPrecision() []float64 {
	return append([]float64(nil), g.expPrec...)
}

// MeanLogPdf returns the log-density of an individual parameter
// vector x averaged over the population mean and precision.
func (g *GaussGamma) MeanLogPdf(x []float64) (res float64) {
	for i, v := range x {
		d := v - g.Loc[i]
		res += g.expLogPrec[i] - ln2pi - g.expPrec[i]*d*d
		if !g.Fixed[i] {
			res -= 1 / g.Beta[i]
		}
	}
	return res / 2
}

// GradMeanLogPdf stores the gradient of MeanLogPdf in grad.
func (g *GaussGamma) GradMeanLogPdf(x, grad []float64) {
	for i, v := range x {
		grad[i] = -g.expPrec[i] * (v - g.Loc[i])
	}
}

// RelativeEntropy returns KL(g || q).
func (g *GaussGamma) RelativeEntropy(q *GaussGamma) (kl float64) {
	for i := range g.Loc {
		kl += dist.GammaKL(g.Shape[i], g.Rate[i], q.Shape[i], q.Rate[i])
		if g.Fixed[i] {
			continue
		}
		d := g.Loc[i] - q.Loc[i]
		r := q.Beta[i] / g.Beta[i]
		kl += 0.5 * (r + q.Beta[i]*g.expPrec[i]*d*d - 1 - math.Log(r))
	}
	return
}

// NewPopulationPrior creates the non-informative population prior for
// a layout. With nullQuality all quality dimensions have their mean
// fixed at zero.
func NewPopulationPrior(layout *obs.Layout, s *PriorSettings, nullQuality bool) *GaussGamma {
	d := layout.NParameters()
	nq := layout.NQ()
	g := &GaussGamma{
		Loc:   make([]float64, d),
		Beta:  make([]float64, d),
		Shape: make([]float64, d),
		Rate:  make([]float64, d),
		Fixed: make([]bool, d),
	}
	for i := 0; i < d; i++ {
		g.Beta[i] = s.Beta0
		g.Shape[i] = s.Shape0
		g.Rate[i] = s.Shape0 * s.Scale * s.Scale
		g.Fixed[i] = nullQuality && i < nq
	}
	return g.complete()
}

// PopulationPosterior is the population distribution of a group. It
// keeps a reference to the prior shared by all groups.
type PopulationPosterior struct {
	*GaussGamma
	// NQ is the length of the quality sub-vector.
	NQ int `json:"nq"`
	// LearnedWeight scales the subject contribution.
	LearnedWeight float64 `json:"learnedWeight"`
	prior         *GaussGamma
}

// NewPopulationPosterior creates a population posterior equal to the
// prior.
func NewPopulationPosterior(prior *GaussGamma, nq int, learnedWeight float64) *PopulationPosterior {
	return &PopulationPosterior{
		GaussGamma:    prior.clone(),
		NQ:            nq,
		LearnedWeight: learnedWeight,
		prior:         prior,
	}
}

// Prior returns the prior the population was learned against.
func (p *PopulationPosterior) Prior() *GaussGamma {
	return p.prior
}

// KL returns the divergence from the prior.
func (p *PopulationPosterior) KL() float64 {
	return p.RelativeEntropy(p.prior)
}

// RecenterWidths returns a copy of the samples where the log-width
// slice of every row sums to zero.
func RecenterWidths(x *mat64.Dense, nq int) *mat64.Dense {
	res := mat64.DenseCopyOf(x)
	r, c := res.Dims()
	if c <= nq {
		return res
	}
	for i := 0; i < r; i++ {
		w := res.RawRowView(i)[nq:]
		var m float64
		for _, v := range w {
			m += v
		}
		m /= float64(len(w))
		for j := range w {
			w[j] -= m
		}
	}
	return res
}

// Adapt returns the population posterior given the subjects' samples.
// Every matrix holds the samples of one subject, one per row, with
// log-widths already recentered.
func (p *PopulationPosterior) Adapt(samples []*mat64.Dense) *PopulationPosterior {
	prior := p.prior
	d := prior.Dim()
	nSubj := float64(len(samples))
	w := p.LearnedWeight
	nEff := w * nSubj

	means := make([][]float64, len(samples))
	xbar := make([]float64, d)
	for s, x := range samples {
		means[s] = make([]float64, d)
		r, _ := x.Dims()
		for n := 0; n < r; n++ {
			row := x.RawRowView(n)
			for i, v := range row {
				means[s][i] += v
			}
		}
		for i := range means[s] {
			means[s][i] /= float64(r)
			xbar[i] += means[s][i] / nSubj
		}
	}

	// scatter around xbar, or around the fixed mean
	scatter := make([]float64, d)
	for _, x := range samples {
		r, _ := x.Dims()
		for n := 0; n < r; n++ {
			row := x.RawRowView(n)
			for i, v := range row {
				c := xbar[i]
				if prior.Fixed[i] {
					c = prior.Loc[i]
				}
				scatter[i] += (v - c) * (v - c) / float64(r)
			}
		}
	}

	g := &GaussGamma{
		Loc:   make([]float64, d),
		Beta:  make([]float64, d),
		Shape: make([]float64, d),
		Rate:  make([]float64, d),
		Fixed: append([]bool(nil), prior.Fixed...),
	}
	for i := 0; i < d; i++ {
		g.Shape[i] = prior.Shape[i] + nEff/2
		if prior.Fixed[i] || nSubj == 0 {
			g.Loc[i] = prior.Loc[i]
			g.Beta[i] = prior.Beta[i]
			g.Rate[i] = prior.Rate[i] + w*scatter[i]/2
			continue
		}
		g.Beta[i] = prior.Beta[i] + nEff
		g.Loc[i] = (prior.Beta[i]*prior.Loc[i] + nEff*xbar[i]) / g.Beta[i]
		dm := xbar[i] - prior.Loc[i]
		g.Rate[i] = prior.Rate[i] + w*scatter[i]/2 + prior.Beta[i]*nEff*dm*dm/(2*g.Beta[i])
	}
	return &PopulationPosterior{
		GaussGamma:    g.complete(),
		NQ:            p.NQ,
		LearnedWeight: w,
		prior:         prior,
	}
}

// predictiveScale returns the Student-t scale of the individual
// predictive distribution of dimension i.
func (p *PopulationPosterior) predictiveScale(i int) float64 {
	if p.Fixed[i] {
		return math.Sqrt(p.Rate[i] / p.Shape[i])
	}
	return math.Sqrt(p.Rate[i] * (p.Beta[i] + 1) / (p.Shape[i] * p.Beta[i]))
}

// meanScale returns the Student-t scale of the population mean of
// dimension i, zero for fixed dimensions.
func (p *PopulationPosterior) meanScale(i int) float64 {
	if p.Fixed[i] {
		return 0
	}
	return math.Sqrt(p.Rate[i] / (p.Shape[i] * p.Beta[i]))
}

// draw fills n rows with Student-t draws with given scales.
func (p *PopulationPosterior) draw(n int, scale func(int) float64, rng *rand.Rand) *mat64.Dense {
	d := p.Dim()
	res := mat64.NewDense(n, d, nil)
	for i := 0; i < d; i++ {
		sigma := scale(i)
		if sigma == 0 {
			for k := 0; k < n; k++ {
				res.Set(k, i, p.Loc[i])
			}
			continue
		}
		t := distuv.StudentsT{
			Mu:    p.Loc[i],
			Sigma: sigma,
			Nu:    2 * p.Shape[i],
			Src:   rng,
		}
		for k := 0; k < n; k++ {
			res.Set(k, i, t.Rand())
		}
	}
	return res
}

// Predictive draws n parameter vectors of new random individuals.
func (p *PopulationPosterior) Predictive(n int, rng *rand.Rand) *mat64.Dense {
	return p.draw(n, p.predictiveScale, rng)
}

// MeanPredictive draws n population mean vectors.
func (p *PopulationPosterior) MeanPredictive(n int, rng *rand.Rand) *mat64.Dense {
	return p.draw(n, p.meanScale, rng)
}

// MeanProbPositive returns the posterior probability that the
// population mean of dimension i is positive.
func (p *PopulationPosterior) MeanProbPositive(i int) float64 {
	return 1 - dist.StudentTCDF(0, p.Loc[i], p.meanScale(i), 2*p.Shape[i])
}

// QualityLoc returns the population mean quality as
// [test condition][object], the reference object is zero.
func (p *PopulationPosterior) QualityLoc(layout *obs.Layout) [][]float64 {
	res := make([][]float64, layout.NTestConditions())
	for tc := range res {
		res[tc] = make([]float64, layout.NObjects())
		for o := 1; o < layout.NObjects(); o++ {
			res[tc][o] = p.Loc[layout.Slot(o, tc)]
		}
	}
	return res
}
