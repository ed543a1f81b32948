package main

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/exp/rand"

	"bitbucket.org/Davydov/pcmodel/dist"
	"bitbucket.org/Davydov/pcmodel/hmodel"
	"bitbucket.org/Davydov/pcmodel/obs"
	"bitbucket.org/Davydov/pcmodel/optimize"
)

// fitSettings stores everything needed to fit a ResultSet.
type fitSettings struct {
	data     *obs.Dataset
	rv       dist.LatentVariable
	settings *hmodel.Settings
	seed     int64
	nPred    int
}

// newFitSettings initializes fitSettings from global variables
// (command-line arguments).
func newFitSettings(data *obs.Dataset) *fitSettings {
	rv, err := dist.NewLatentVariable(*rvName)
	if err != nil {
		log.Fatal(err)
	}
	s := hmodel.NewSettings()
	s.NSamples = *nSamples
	s.MinIter = *minIter
	s.MaxIter = *maxIter
	s.MinStep = *minStep
	s.MinSubjects = *minSubjects
	s.Workers = *nThreads
	s.Method = *method
	s.Minimizer = optimize.NewMinimizerSettings()
	s.Minimizer.MaxIterations = *mapIter
	s.Minimizer.GTolerance = *gtol
	s.EntropyLag = *nnLag

	s.HMC = optimize.NewHMCSettings()
	s.HMC.StepSize = *stepSize
	s.HMC.LeapfrogSteps = *leapfrog
	s.HMC.BurnIn = *burnIn
	s.HMC.AccPeriod = *accPeriod

	s.Prior = &hmodel.PriorSettings{
		Beta0:         *beta0,
		Shape0:        *shape0,
		Scale:         *scale,
		LearnedWeight: *learnedWeight,
	}

	return &fitSettings{
		data:     data,
		rv:       rv,
		settings: s,
		seed:     *seed,
		nPred:    *nPredictive,
	}
}

// run fits a ResultSet and summarizes it. On interruption the summary
// of models learned so far is returned together with the error.
func (fs *fitSettings) run(ctx context.Context, null bool, cp hmodel.Checkpointer) (*RunSummary, error) {
	startTime := time.Now()
	hypothesis := "full"
	if null {
		hypothesis = "null"
	}
	log.Noticef("Fitting %s model (%s latent variable, %d samples per subject)",
		hypothesis, fs.rv.Name(), fs.settings.NSamples)

	rng := rand.New(rand.NewSource(uint64(fs.seed)))
	rs, err := hmodel.Learn(ctx, fs.data, fs.rv, null, fs.settings, rng, cp)
	if rs == nil {
		return nil, err
	}
	if err != nil {
		err = fmt.Errorf("%s model: %w", hypothesis, err)
	}

	summary := summarize(rs, fs.nPred, rng)
	summary.Hypothesis = hypothesis
	summary.Time = time.Since(startTime).Seconds()
	summary.print()
	return summary, err
}
