package hmodel

import (
	"errors"
	"math"

	"github.com/gonum/matrix/mat64"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"

	"bitbucket.org/Davydov/pcmodel/dist"
	"bitbucket.org/Davydov/pcmodel/obs"
	"bitbucket.org/Davydov/pcmodel/optimize"
)

// IndividualPosterior is a subject's posterior represented by equally
// weighted samples and the MAP point. Values are never modified after
// creation, Adapt returns a new posterior.
type IndividualPosterior struct {
	// Samples stores one parameter vector per row.
	Samples *mat64.Dense
	// Map is the posterior mode.
	Map []float64
	// Step is the adapted HMC step size.
	Step float64
}

// AdaptResult holds diagnostics of one Adapt call.
type AdaptResult struct {
	// LogLikelihood is minus the mean potential of the chain.
	LogLikelihood float64
	// DataLogLikelihood is the mean log-likelihood of the
	// responses over the samples.
	DataLogLikelihood float64
	// DataLogLikelihoodErr is the batch means standard error of
	// DataLogLikelihood.
	DataLogLikelihoodErr float64
	// Acceptance is the HMC acceptance rate.
	Acceptance float64
}

// NewIndividualPosterior creates an empty posterior. The first Adapt
// call starts from the zero vector.
func NewIndividualPosterior() *IndividualPosterior {
	return &IndividualPosterior{}
}

// posteriorPotential is the negative unnormalized log-posterior of one
// subject given the population.
type posteriorPotential struct {
	enc *obs.Encoder
	pop *GaussGamma
	rv  dist.LatentVariable
	tmp []float64
}

func (p *posteriorPotential) Func(x []float64) float64 {
	return -p.pop.MeanLogPdf(x) - p.enc.LogLikelihood(x, p.rv)
}

func (p *posteriorPotential) Grad(grad, x []float64) {
	if p.tmp == nil {
		p.tmp = make([]float64, len(x))
	}
	p.enc.GradLogLikelihood(x, p.rv, grad)
	p.pop.GradMeanLogPdf(x, p.tmp)
	for i := range grad {
		grad[i] = -grad[i] - p.tmp[i]
	}
}

// Adapt updates the posterior against a population: it finds the MAP
// point and samples the posterior with HMC. The receiver is not
// modified.
func (ip *IndividualPosterior) Adapt(enc *obs.Encoder, pop *GaussGamma, rv dist.LatentVariable,
	s *Settings, rng *rand.Rand) (*IndividualPosterior, *AdaptResult, error) {
	d := enc.NParameters()
	pot := &posteriorPotential{enc: enc, pop: pop, rv: rv}

	x0 := make([]float64, d)
	if ip.Map != nil {
		copy(x0, ip.Map)
	}
	minimizer, err := optimize.NewMinimizer(s.Method, s.Minimizer)
	if err != nil {
		return nil, nil, err
	}
	xMap, _, err := minimizer.Minimize(pot, x0)
	if err != nil {
		return nil, nil, &OptimizationFailure{Err: err}
	}
	log.Debugf("MAP found after %d potential evaluations", minimizer.Calls())

	// previous chain shifted by the MAP change
	start := xMap
	if ip.Samples != nil && ip.Map != nil {
		r, _ := ip.Samples.Dims()
		last := ip.Samples.RawRowView(r - 1)
		shifted := make([]float64, d)
		for i := range shifted {
			shifted[i] = last[i] + xMap[i] - ip.Map[i]
		}
		if f := pot.Func(shifted); !math.IsNaN(f) && !math.IsInf(f, 0) {
			start = shifted
		}
	}

	hs := *s.HMC
	sampler := optimize.NewHMC(&hs, rng)
	if ip.Step > 0 {
		sampler.Step = ip.Step
	}
	samples, potential, acc, err := sampler.Run(pot, start, s.NSamples)
	if err != nil {
		return nil, nil, err
	}

	res := &AdaptResult{Acceptance: acc}
	for _, u := range potential {
		res.LogLikelihood -= u
	}
	res.LogLikelihood /= float64(len(potential))
	res.DataLogLikelihood, res.DataLogLikelihoodErr = batchMeans(enc.LogLikelihoodRows(samples, rv))

	return &IndividualPosterior{
		Samples: samples,
		Map:     xMap,
		Step:    sampler.Step,
	}, res, nil
}

// nBatches is the number of batches used for chain standard errors.
const nBatches = 20

// batchMeans returns the mean of a chain trace and its batch means
// standard error. Short chains give a zero error.
func batchMeans(trace []float64) (mean, se float64) {
	mean = stat.Mean(trace, nil)
	size := len(trace) / nBatches
	if size < 2 {
		return mean, 0
	}
	means := make([]float64, nBatches)
	for b := range means {
		means[b] = stat.Mean(trace[b*size:(b+1)*size], nil)
	}
	return mean, stat.StdDev(means, nil) / math.Sqrt(nBatches)
}

// NSamples returns the number of samples.
func (ip *IndividualPosterior) NSamples() int {
	if ip.Samples == nil {
		return 0
	}
	r, _ := ip.Samples.Dims()
	return r
}

// Add pools the samples of two posteriors of the same subject. The
// MAP point of the receiver is kept.
func (ip *IndividualPosterior) Add(other *IndividualPosterior) *IndividualPosterior {
	return &IndividualPosterior{
		Samples: stackRows([]*mat64.Dense{ip.Samples, other.Samples}),
		Map:     append([]float64(nil), ip.Map...),
		Step:    ip.Step,
	}
}

// stackRows concatenates matrices vertically, nil matrices are skipped.
func stackRows(ms []*mat64.Dense) *mat64.Dense {
	rows, cols := 0, 0
	for _, m := range ms {
		if m == nil {
			continue
		}
		r, c := m.Dims()
		rows += r
		cols = c
	}
	if rows == 0 {
		return nil
	}
	res := mat64.NewDense(rows, cols, nil)
	i := 0
	for _, m := range ms {
		if m == nil {
			continue
		}
		r, _ := m.Dims()
		for k := 0; k < r; k++ {
			res.SetRow(i, m.RawRowView(k))
			i++
		}
	}
	return res
}

// MergeSubjects merges subject dictionaries. Subjects present in more
// than one dictionary are pooled with Add, in argument order.
func MergeSubjects(dicts ...map[string]*IndividualPosterior) map[string]*IndividualPosterior {
	res := make(map[string]*IndividualPosterior)
	for _, d := range dicts {
		for name, ip := range d {
			if old, ok := res[name]; ok {
				res[name] = old.Add(ip)
			} else {
				res[name] = ip
			}
		}
	}
	return res
}

// JoinSubjects stacks the samples of subjects in the given order.
func JoinSubjects(subjects map[string]*IndividualPosterior, order []string) (*mat64.Dense, error) {
	ms := make([]*mat64.Dense, 0, len(order))
	for _, name := range order {
		ip, ok := subjects[name]
		if !ok {
			return nil, errors.New("unknown subject: " + name)
		}
		ms = append(ms, ip.Samples)
	}
	res := stackRows(ms)
	if res == nil {
		return nil, errors.New("no samples to join")
	}
	return res, nil
}

// QualitySamples returns the quality tensor of the posterior samples.
func (ip *IndividualPosterior) QualitySamples(layout *obs.Layout) *QualityTensor {
	return NewQualityTensor(layout, ip.Samples)
}

// CatLimitSamples returns upper response interval limits for every
// sample.
func (ip *IndividualPosterior) CatLimitSamples(layout *obs.Layout) *mat64.Dense {
	return catLimitSamples(layout, ip.Samples)
}

// catLimitSamples transforms the log-width slice of every row.
func catLimitSamples(layout *obs.Layout, x *mat64.Dense) *mat64.Dense {
	r, _ := x.Dims()
	nq, m := layout.NQ(), layout.NDifferenceGrades
	res := mat64.NewDense(r, m, nil)
	for i := 0; i < r; i++ {
		obs.CatLimitsTransform(x.RawRowView(i)[nq:], res.RawRowView(i))
	}
	return res
}
