package hmodel

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"

	"github.com/gonum/matrix/mat64"
	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"

	"bitbucket.org/Davydov/pcmodel/dist"
	"bitbucket.org/Davydov/pcmodel/obs"
)

// GroupModel is the fit of one attribute for one group of subjects. A
// GroupModel is not modified by learning steps, they return a new one.
type GroupModel struct {
	Group     string
	Attribute string
	// Subjects maps subject names to their posteriors.
	Subjects map[string]*IndividualPosterior
	// Population is the population posterior.
	Population *PopulationPosterior
	// LL is the lower bound trace, one value per iteration.
	LL []float64
	// LLErr is the Monte Carlo standard error of every LL value.
	LLErr []float64

	layout   *obs.Layout
	encoders map[string]*obs.Encoder
	names    []string
	rv       dist.LatentVariable
	settings *Settings
}

// InitLearn creates a non-informative GroupModel: every subject is
// empty and the population equals the prior.
func InitLearn(group, attribute string, layout *obs.Layout, data map[string][]obs.Record,
	prior *GaussGamma, rv dist.LatentVariable, settings *Settings) (*GroupModel, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("group %s, attribute %s: no subjects", group, attribute)
	}
	g := &GroupModel{
		Group:      group,
		Attribute:  attribute,
		Subjects:   make(map[string]*IndividualPosterior, len(data)),
		Population: NewPopulationPosterior(prior, layout.NQ(), settings.Prior.LearnedWeight),
		layout:     layout,
		encoders:   make(map[string]*obs.Encoder, len(data)),
		rv:         rv,
		settings:   settings,
	}
	for name, records := range data {
		enc, err := obs.NewEncoder(layout, records)
		if err != nil {
			return nil, fmt.Errorf("subject %s: %v", name, err)
		}
		g.encoders[name] = enc
		g.Subjects[name] = NewIndividualPosterior()
		g.names = append(g.names, name)
	}
	sort.Strings(g.names)
	return g, nil
}

// Layout returns the experiment layout.
func (g *GroupModel) Layout() *obs.Layout {
	return g.layout
}

// SubjectNames returns sorted subject names.
func (g *GroupModel) SubjectNames() []string {
	return append([]string(nil), g.names...)
}

// Key returns the checkpoint key of the model. Models of different
// latent variables, and models learned with fixed population
// dimensions, are stored separately.
func (g *GroupModel) Key() []byte {
	key := g.rv.Name() + "/" + g.Group + "/" + g.Attribute
	for _, f := range g.Population.Prior().Fixed {
		if f {
			return []byte("null/" + key)
		}
	}
	return []byte(key)
}

// withState returns a shallow copy sharing encoders and settings.
func (g *GroupModel) withState(subjects map[string]*IndividualPosterior,
	pop *PopulationPosterior, ll, llErr []float64) *GroupModel {
	ng := *g
	ng.Subjects = subjects
	ng.Population = pop
	ng.LL = ll
	ng.LLErr = llErr
	return &ng
}

type subjectStep struct {
	ip         *IndividualPosterior
	res        *AdaptResult
	entropy    float64
	entropyErr float64
}

// OneLearnStep runs one VI iteration: every subject is adapted against
// the current population, then the population is adapted to the new
// subject samples. The lower bound of the iteration is appended to LL
// of the returned model.
func (g *GroupModel) OneLearnStep(rng *rand.Rand) (*GroupModel, error) {
	seeds := make([]uint64, len(g.names))
	for i := range seeds {
		seeds[i] = rng.Uint64()
	}
	workers := g.settings.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	steps := make([]subjectStep, len(g.names))
	var eg errgroup.Group
	eg.SetLimit(workers)
	for i, name := range g.names {
		i, name := i, name
		eg.Go(func() error {
			srng := rand.New(rand.NewSource(seeds[i]))
			ip, res, err := g.Subjects[name].Adapt(g.encoders[name], g.Population.GaussGamma, g.rv, g.settings, srng)
			if err != nil {
				var of *OptimizationFailure
				if errors.As(err, &of) {
					of.Subject = name
					return of
				}
				return fmt.Errorf("subject %s: %w", name, err)
			}
			h, hErr := Entropy(ip.Samples, g.settings.EntropyLag)
			steps[i] = subjectStep{
				ip:         ip,
				res:        res,
				entropy:    h,
				entropyErr: hErr,
			}
			log.Debugf("%s/%s subject %s: lnL=%.3f, acceptance %.2f%%", g.Group, g.Attribute,
				name, res.LogLikelihood, 100*res.Acceptance)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	subjects := make(map[string]*IndividualPosterior, len(g.names))
	recentered := make([]*mat64.Dense, len(g.names))
	var dataLL, entropy, variance float64
	for i, name := range g.names {
		subjects[name] = steps[i].ip
		recentered[i] = RecenterWidths(steps[i].ip.Samples, g.layout.NQ())
		dataLL += steps[i].res.DataLogLikelihood
		entropy += steps[i].entropy
		variance += steps[i].res.DataLogLikelihoodErr*steps[i].res.DataLogLikelihoodErr +
			steps[i].entropyErr*steps[i].entropyErr
	}

	pop := g.Population.Adapt(recentered)
	var priorLL float64
	for _, x := range recentered {
		r, _ := x.Dims()
		var s float64
		for n := 0; n < r; n++ {
			s += pop.MeanLogPdf(x.RawRowView(n))
		}
		priorLL += s / float64(r)
	}
	kl := pop.KL()
	bound := dataLL + priorLL + entropy - kl
	boundErr := math.Sqrt(variance)
	log.Infof("%s/%s iteration %d: bound=%.3f±%.3f (lnL=%.3f, prior=%.3f, entropy=%.3f, KL=%.3f)",
		g.Group, g.Attribute, len(g.LL)+1, bound, boundErr, dataLL, priorLL, entropy, kl)

	ll := append(append([]float64(nil), g.LL...), bound)
	llErr := append(append([]float64(nil), g.LLErr...), boundErr)
	return g.withState(subjects, pop, ll, llErr), nil
}

// Converged returns true if learning should stop: after MaxIter
// iterations, or once at least MinIter iterations are done and the
// bound improved by less than MinStep across the last MinIter values.
func (g *GroupModel) Converged() bool {
	n := len(g.LL)
	if n >= g.settings.MaxIter {
		return true
	}
	m := g.settings.MinIter
	if m < 2 {
		m = 2
	}
	return n >= m && g.LL[n-1]-g.LL[n-m] < g.settings.MinStep
}

// Learn iterates OneLearnStep until convergence. Cancellation is
// checked before every iteration; on cancellation the last complete
// model is returned together with the error. If cp is not nil, the
// model is restored from and saved to checkpoints.
func (g *GroupModel) Learn(ctx context.Context, rng *rand.Rand, cp Checkpointer) (*GroupModel, error) {
	cur := g
	if cp != nil {
		restored, final, err := cur.restore(cp)
		if err != nil {
			return nil, err
		}
		if restored != nil {
			cur = restored
			if final && cur.Converged() {
				log.Noticef("%s/%s: found finished checkpoint (iterations=%d)", g.Group, g.Attribute, len(cur.LL))
				return cur, nil
			}
			log.Noticef("%s/%s: resuming from checkpoint (iterations=%d)", g.Group, g.Attribute, len(cur.LL))
		}
	}
	log.Infof("Learning %s/%s: %d subject(s)", g.Group, g.Attribute, len(g.names))

	for !cur.Converged() {
		if err := ctx.Err(); err != nil {
			return cur, fmt.Errorf("learning %s/%s interrupted after %d iteration(s): %w",
				g.Group, g.Attribute, len(cur.LL), err)
		}
		next, err := cur.OneLearnStep(rng)
		if err != nil {
			return nil, err
		}
		cur = next
		if cp != nil && cp.Old() && !cur.Converged() {
			if err := cur.save(cp, false); err != nil {
				log.Error("Error saving checkpoint:", err)
			}
		}
	}
	if cp != nil {
		if err := cur.save(cp, true); err != nil {
			log.Error("Error saving checkpoint:", err)
		}
	}
	if n := len(cur.LL); n > 0 {
		log.Infof("%s/%s converged after %d iteration(s), bound=%.3f", g.Group, g.Attribute, n, cur.LL[n-1])
	}
	return cur, nil
}
