package main

import (
	"context"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"bitbucket.org/Davydov/pcmodel/hmodel"
)

// minLrt is the minimal tolerated LRT value.
const minLrt = 1e-6

// TestSummary is the comparison of the null and the full models of
// one group and attribute.
type TestSummary struct {
	Group     string  `json:"group"`
	Attribute string  `json:"attribute"`
	H0        float64 `json:"h0"`
	H1        float64 `json:"h1"`
	// D is twice the lower bound difference.
	D float64 `json:"d"`
	// DF is the number of quality parameters.
	DF int `json:"df"`
	// PValue is the approximate chi-squared p-value.
	PValue float64 `json:"pValue"`
}

// hypTest fits the null and the full models and compares their lower
// bounds for every group and attribute.
func hypTest(ctx context.Context, fs *fitSettings, cp hmodel.Checkpointer) ([]*RunSummary, []*TestSummary, error) {
	var runs []*RunSummary
	h0, err := fs.run(ctx, true, cp)
	if h0 != nil {
		runs = append(runs, h0)
	}
	if err != nil {
		return runs, nil, err
	}
	h1, err := fs.run(ctx, false, cp)
	if h1 != nil {
		runs = append(runs, h1)
	}
	if err != nil {
		return runs, nil, err
	}

	df := fs.data.Layout.NQ()
	chi2 := distuv.ChiSquared{K: float64(df)}
	var tests []*TestSummary
	for group, attrs := range h1.Models {
		for attr, m1 := range attrs {
			m0, ok := h0.Models[group][attr]
			if !ok || m1.Iterations == 0 || m0.Iterations == 0 {
				continue
			}
			d := 2 * (m1.LowerBound - m0.LowerBound)
			if d < -minLrt {
				log.Warningf("Group %s, attribute %s: null model bound is larger (D=%v)", group, attr, d)
			}
			t := &TestSummary{
				Group:     group,
				Attribute: attr,
				H0:        m0.LowerBound,
				H1:        m1.LowerBound,
				D:         d,
				DF:        df,
				PValue:    chi2.Survival(math.Max(d, 0)),
			}
			log.Noticef("Group %s, attribute %s: lnL0=%.3f, lnL1=%.3f, D=%.3f, p=%.4g",
				group, attr, t.H0, t.H1, t.D, t.PValue)
			tests = append(tests, t)
		}
	}
	return runs, tests, nil
}
