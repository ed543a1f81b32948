// Package hmodel implements the hierarchical paired-comparison model:
// individual posteriors sampled with HMC, a conjugate population
// posterior, and the variational loop fitting both for every group
// and attribute of an experiment.
package hmodel

import (
	"github.com/op/go-logging"

	"bitbucket.org/Davydov/pcmodel/optimize"
)

// log is the global logging variable.
var log = logging.MustGetLogger("hmodel")

// Settings are the model fitting settings.
type Settings struct {
	// NSamples is the number of posterior samples per subject.
	NSamples int
	// MinIter is the minimum number of VI iterations, it is also
	// the window used to check convergence.
	MinIter int
	// MaxIter is the maximum number of VI iterations.
	MaxIter int
	// MinStep is the minimal lower bound improvement over MinIter
	// iterations.
	MinStep float64
	// MinSubjects is the number of subjects below which the
	// population estimate is considered unreliable.
	MinSubjects int
	// Workers limits the number of subjects adapted in parallel,
	// zero means GOMAXPROCS.
	Workers int
	// Method is the MAP minimizer name.
	Method string
	// Minimizer are the MAP minimizer settings.
	Minimizer *optimize.MinimizerSettings
	// EntropyLag is the chain distance below which samples are not
	// used as nearest neighbours in the entropy estimate.
	EntropyLag int
	// HMC are the sampler settings.
	HMC *optimize.HMCSettings
	// Prior are the population prior settings.
	Prior *PriorSettings
}

// NewSettings creates default settings.
func NewSettings() *Settings {
	return &Settings{
		NSamples:    1000,
		MinIter:     5,
		MaxIter:     50,
		MinStep:     0.1,
		MinSubjects: 3,
		Method:      optimize.MethodLBFGSB,
		Minimizer:   optimize.NewMinimizerSettings(),
		EntropyLag:  10,
		HMC:         optimize.NewHMCSettings(),
		Prior:       NewPriorSettings(),
	}
}

// PriorSettings describe the non-informative population prior.
type PriorSettings struct {
	// Beta0 is the prior weight of the population mean.
	Beta0 float64
	// Shape0 is the shape of the population precision prior.
	Shape0 float64
	// Scale is the expected spread of individual parameters.
	Scale float64
	// LearnedWeight scales the contribution of observed subjects
	// to the population update.
	LearnedWeight float64
}

// NewPriorSettings creates default prior settings.
func NewPriorSettings() *PriorSettings {
	return &PriorSettings{
		Beta0:         0.1,
		Shape0:        0.5,
		Scale:         1,
		LearnedWeight: 1,
	}
}
