package hmodel

import (
	"github.com/gonum/matrix/mat64"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"

	"bitbucket.org/Davydov/pcmodel/obs"
)

// QualityTensor stores quality samples indexed by
// [sample, test condition, object]. The reference object column is
// zero.
type QualityTensor struct {
	NSamples        int
	NTestConditions int
	NObjects        int
	Data            []float64
}

// NewQualityTensor materializes the quality part of parameter vectors
// stored in the rows of x.
func NewQualityTensor(layout *obs.Layout, x *mat64.Dense) *QualityTensor {
	r, _ := x.Dims()
	q := &QualityTensor{
		NSamples:        r,
		NTestConditions: layout.NTestConditions(),
		NObjects:        layout.NObjects(),
	}
	q.Data = make([]float64, r*q.NTestConditions*q.NObjects)
	for s := 0; s < r; s++ {
		row := x.RawRowView(s)
		for tc := 0; tc < q.NTestConditions; tc++ {
			for o := 1; o < q.NObjects; o++ {
				q.Data[q.index(s, tc, o)] = row[layout.Slot(o, tc)]
			}
		}
	}
	return q
}

func (q *QualityTensor) index(s, tc, o int) int {
	return (s*q.NTestConditions+tc)*q.NObjects + o
}

// At returns a quality sample.
func (q *QualityTensor) At(s, tc, o int) float64 {
	return q.Data[q.index(s, tc, o)]
}

// Cell returns all samples of an object in a test condition.
func (q *QualityTensor) Cell(tc, o int) []float64 {
	res := make([]float64, q.NSamples)
	for s := range res {
		res[s] = q.At(s, tc, o)
	}
	return res
}

// Mean returns the sample mean as [test condition][object].
func (q *QualityTensor) Mean() [][]float64 {
	res := make([][]float64, q.NTestConditions)
	for tc := range res {
		res[tc] = make([]float64, q.NObjects)
		for o := range res[tc] {
			res[tc][o] = stat.Mean(q.Cell(tc, o), nil)
		}
	}
	return res
}

// PredictiveModel holds samples of a predictive distribution.
type PredictiveModel struct {
	QualitySamples *QualityTensor
	// CatLimitSamples are upper response interval limits, one
	// sample per row. It is nil for population mean predictions.
	CatLimitSamples *mat64.Dense
}

// NewPredictiveModel creates a predictive model from parameter
// vectors stored in the rows of x.
func NewPredictiveModel(layout *obs.Layout, x *mat64.Dense, withLimits bool) *PredictiveModel {
	m := &PredictiveModel{QualitySamples: NewQualityTensor(layout, x)}
	if withLimits {
		m.CatLimitSamples = catLimitSamples(layout, x)
	}
	return m
}

// PredictiveResultSet holds predictive models of every group and
// attribute.
type PredictiveResultSet struct {
	Layout *obs.Layout
	// Models maps group -> attribute -> model.
	Models map[string]map[string]*PredictiveModel
	// Related is true for groups whose samples are aligned across
	// attributes.
	Related  map[string]bool
	Warnings []error
}

func newPredictiveResultSet(layout *obs.Layout) *PredictiveResultSet {
	return &PredictiveResultSet{
		Layout:  layout,
		Models:  make(map[string]map[string]*PredictiveModel),
		Related: make(map[string]bool),
	}
}

// groupKeys returns all group keys including the merged one.
func (rs *ResultSet) groupKeys() []string {
	keys := append([]string(nil), rs.Groups...)
	if rs.Merged != "" {
		keys = append(keys, rs.Merged)
	}
	return keys
}

// attributes returns fitted attributes of a group in layout order.
func (rs *ResultSet) attributes(group string) []string {
	var res []string
	for _, attr := range rs.Layout.Attributes {
		if _, ok := rs.Models[group][attr]; ok {
			res = append(res, attr)
		}
	}
	return res
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// PredictiveGroupIndividual joins the fitted subject posteriors of
// every group. If a group has the same subjects for all attributes,
// subjects are joined in the same order and samples are related
// across attributes.
func (rs *ResultSet) PredictiveGroupIndividual() *PredictiveResultSet {
	prs := newPredictiveResultSet(rs.Layout)
	for _, group := range rs.groupKeys() {
		attrs := rs.attributes(group)
		related := true
		var order []string
		for _, attr := range attrs {
			names := rs.Models[group][attr].SubjectNames()
			if order == nil {
				order = names
			} else if !equalStrings(order, names) {
				related = false
			}
		}
		if !related {
			w := &UnrelatedSamplesWarning{Group: group}
			log.Warning(w)
			prs.Warnings = append(prs.Warnings, w)
		}
		prs.Related[group] = related
		prs.Models[group] = make(map[string]*PredictiveModel)
		for _, attr := range attrs {
			g := rs.Models[group][attr]
			names := order
			if !related {
				names = g.SubjectNames()
			}
			x, err := JoinSubjects(g.Subjects, names)
			if err != nil {
				log.Warningf("Group %s, attribute %s: %v", group, attr, err)
				continue
			}
			prs.Models[group][attr] = NewPredictiveModel(rs.Layout, x, true)
		}
	}
	return prs
}

// PredictivePopulationIndividual draws n parameter vectors of new
// random individuals for every group and attribute.
func (rs *ResultSet) PredictivePopulationIndividual(n int, rng *rand.Rand) *PredictiveResultSet {
	return rs.predictivePopulation(n, rng, false)
}

// PredictivePopulationMean draws n population means for every group
// and attribute.
func (rs *ResultSet) PredictivePopulationMean(n int, rng *rand.Rand) *PredictiveResultSet {
	return rs.predictivePopulation(n, rng, true)
}

func (rs *ResultSet) predictivePopulation(n int, rng *rand.Rand, mean bool) *PredictiveResultSet {
	prs := newPredictiveResultSet(rs.Layout)
	for _, group := range rs.groupKeys() {
		prs.Models[group] = make(map[string]*PredictiveModel)
		prs.Related[group] = false
		for _, attr := range rs.attributes(group) {
			pop := rs.Models[group][attr].Population
			if mean {
				prs.Models[group][attr] = NewPredictiveModel(rs.Layout, pop.MeanPredictive(n, rng), false)
			} else {
				prs.Models[group][attr] = NewPredictiveModel(rs.Layout, pop.Predictive(n, rng), true)
			}
		}
	}
	return prs
}

// AttributeCorrelation returns correlation matrices between
// attributes of a group, indexed by [test condition][object-1], the
// reference object is omitted. It returns nil if samples are not
// related or their numbers differ between attributes.
func (prs *PredictiveResultSet) AttributeCorrelation(group string) [][]*mat64.SymDense {
	if !prs.Related[group] {
		return nil
	}
	var models []*PredictiveModel
	for _, attr := range prs.Layout.Attributes {
		if m, ok := prs.Models[group][attr]; ok {
			models = append(models, m)
		}
	}
	if len(models) < 2 {
		return nil
	}
	n := models[0].QualitySamples.NSamples
	for _, m := range models[1:] {
		if m.QualitySamples.NSamples != n {
			log.Infof("Group %s: sample numbers differ between attributes, no correlation", group)
			return nil
		}
	}
	nAttr := len(models)
	res := make([][]*mat64.SymDense, prs.Layout.NTestConditions())
	for tc := range res {
		res[tc] = make([]*mat64.SymDense, prs.Layout.NObjects()-1)
		for o := 1; o < prs.Layout.NObjects(); o++ {
			cells := make([][]float64, nAttr)
			for i, m := range models {
				cells[i] = m.QualitySamples.Cell(tc, o)
			}
			c := mat64.NewSymDense(nAttr, nil)
			for i := 0; i < nAttr; i++ {
				c.SetSym(i, i, 1)
				for j := i + 1; j < nAttr; j++ {
					c.SetSym(i, j, stat.Correlation(cells[i], cells[j], nil))
				}
			}
			res[tc][o-1] = c
		}
	}
	return res
}
