package main

import (
	"golang.org/x/exp/rand"

	"bitbucket.org/Davydov/pcmodel/hmodel"
)

// Summary is storing pcfit run summary information.
type Summary struct {
	// Version stores pcfit version.
	Version string `json:"version"`
	// CommandLine is an array storing binary name and all command-line parameters.
	CommandLine []string `json:"commandLine"`
	// Seed is the seed used for random number generation initialization.
	Seed int64 `json:"seed"`
	// NThreads is the number of processes used.
	NThreads int `json:"nThreads"`
	// Time is the computations time in seconds.
	Time float64 `json:"time"`
	// Runs stores summaries of all fitted models.
	Runs []*RunSummary `json:"runs"`
	// Tests stores likelihood ratio tests (-lrt).
	Tests []*TestSummary `json:"tests,omitempty"`
}

// RunSummary summarizes one ResultSet.
type RunSummary struct {
	// Hypothesis is null or full.
	Hypothesis string `json:"hypothesis"`
	// LatentVariable is the latent variable model name.
	LatentVariable string `json:"latentVariable"`
	// Time is the fitting time in seconds.
	Time float64 `json:"fitTime"`
	// Models maps group -> attribute -> model summary.
	Models map[string]map[string]*ModelSummary `json:"models"`
	// Related stores if group samples are related across
	// attributes.
	Related map[string]bool `json:"related"`
	// Warnings are non-fatal problems.
	Warnings []string `json:"warnings,omitempty"`
}

// ModelSummary summarizes one GroupModel.
type ModelSummary struct {
	// Subjects is the number of subjects.
	Subjects int `json:"subjects"`
	// Iterations is the number of VI iterations.
	Iterations int `json:"iterations,omitempty"`
	// LowerBound is the final lower bound.
	LowerBound float64 `json:"lowerBound,omitempty"`
	// LowerBoundErr is the Monte Carlo error of LowerBound.
	LowerBoundErr float64 `json:"lowerBoundErr,omitempty"`
	// QualityMean is the population mean quality [test condition][object].
	QualityMean [][]float64 `json:"qualityMean"`
	// ProbPositive is the posterior probability of a positive
	// population mean quality [test condition][object].
	ProbPositive [][]float64 `json:"probPositive"`
	// IndividualMean is the mean quality of a new random
	// individual [test condition][object].
	IndividualMean [][]float64 `json:"individualMean"`
	// GroupMean is the mean quality over the group subjects
	// [test condition][object].
	GroupMean [][]float64 `json:"groupMean,omitempty"`
}

// summarize creates a run summary of a ResultSet.
func summarize(rs *hmodel.ResultSet, nPred int, rng *rand.Rand) *RunSummary {
	layout := rs.Layout
	summary := &RunSummary{
		LatentVariable: rs.RV.Name(),
		Models:         make(map[string]map[string]*ModelSummary),
	}
	for _, w := range rs.Warnings {
		summary.Warnings = append(summary.Warnings, w.Error())
	}

	groupInd := rs.PredictiveGroupIndividual()
	popInd := rs.PredictivePopulationIndividual(nPred, rng)
	summary.Related = groupInd.Related
	for _, w := range groupInd.Warnings {
		summary.Warnings = append(summary.Warnings, w.Error())
	}

	for group, attrs := range rs.Models {
		summary.Models[group] = make(map[string]*ModelSummary)
		for attr, g := range attrs {
			ms := &ModelSummary{
				Subjects:    len(g.Subjects),
				Iterations:  len(g.LL),
				QualityMean: g.Population.QualityLoc(layout),
			}
			if n := len(g.LL); n > 0 {
				ms.LowerBound = g.LL[n-1]
				if len(g.LLErr) == n {
					ms.LowerBoundErr = g.LLErr[n-1]
				}
			}
			ms.ProbPositive = make([][]float64, layout.NTestConditions())
			for tc := range ms.ProbPositive {
				ms.ProbPositive[tc] = make([]float64, layout.NObjects())
				for o := 1; o < layout.NObjects(); o++ {
					ms.ProbPositive[tc][o] = g.Population.MeanProbPositive(layout.Slot(o, tc))
				}
			}
			if m, ok := popInd.Models[group][attr]; ok {
				ms.IndividualMean = m.QualitySamples.Mean()
			}
			if m, ok := groupInd.Models[group][attr]; ok {
				ms.GroupMean = m.QualitySamples.Mean()
			}
			summary.Models[group][attr] = ms
		}
	}
	return summary
}

// print logs the summary.
func (s *RunSummary) print() {
	for group, attrs := range s.Models {
		for attr, ms := range attrs {
			log.Noticef("%s model, group %s, attribute %s: %d subject(s), %d iteration(s), bound=%.3f",
				s.Hypothesis, group, attr, ms.Subjects, ms.Iterations, ms.LowerBound)
			for tc, q := range ms.QualityMean {
				log.Noticef("  test condition %d: quality=%v, P(q>0)=%v", tc, q, ms.ProbPositive[tc])
			}
		}
	}
}
