package hmodel

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/gonum/matrix/mat64"
	"golang.org/x/exp/rand"

	"bitbucket.org/Davydov/pcmodel/dist"
	"bitbucket.org/Davydov/pcmodel/obs"
)

// ResultSet holds fitted models of every group and attribute.
type ResultSet struct {
	Layout      *obs.Layout
	RV          dist.LatentVariable
	NullQuality bool
	// Prior is the population prior shared by all models.
	Prior *GaussGamma
	// Models maps group -> attribute -> model.
	Models map[string]map[string]*GroupModel
	// Groups lists the real groups in sorted order.
	Groups []string
	// Merged is the key of the pooled pseudo-group, empty if there
	// is a single group.
	Merged string
	// Warnings are non-fatal problems found while learning.
	Warnings []error
}

// MergedGroupName returns the key of the pooled pseudo-group.
func MergedGroupName(groups []string) string {
	return "(" + strings.Join(groups, ", ") + ")"
}

// Learn fits a ResultSet. With nullQuality the population mean of all
// quality parameters is fixed at zero. On cancellation the models
// learned so far are returned together with the error.
func Learn(ctx context.Context, ds *obs.Dataset, rv dist.LatentVariable, nullQuality bool,
	settings *Settings, rng *rand.Rand, cp Checkpointer) (*ResultSet, error) {
	layout := ds.Layout
	rs := &ResultSet{
		Layout:      layout,
		RV:          rv,
		NullQuality: nullQuality,
		Prior:       NewPopulationPrior(layout, settings.Prior, nullQuality),
		Models:      make(map[string]map[string]*GroupModel),
		Groups:      ds.GroupNames(),
	}
	log.Infof("Learning %d group(s) with %s latent variable (null quality: %v)",
		len(rs.Groups), rv.Name(), nullQuality)

	for _, group := range rs.Groups {
		rs.Models[group] = make(map[string]*GroupModel)
		for _, attr := range layout.Attributes {
			data := ds.Groups[group][attr]
			if len(data) == 0 {
				log.Warningf("Group %s has no data for attribute %s", group, attr)
				continue
			}
			if len(data) < settings.MinSubjects {
				w := &LowSampleWarning{Group: group, Attribute: attr, N: len(data), Min: settings.MinSubjects}
				log.Warning(w)
				rs.Warnings = append(rs.Warnings, w)
			}
			g, err := InitLearn(group, attr, layout, data, rs.Prior, rv, settings)
			if err != nil {
				return nil, err
			}
			g, err = g.Learn(ctx, rng, cp)
			if g != nil {
				rs.Models[group][attr] = g
			}
			if err != nil {
				return rs, err
			}
		}
	}

	if len(rs.Groups) > 1 {
		rs.Merged = MergedGroupName(rs.Groups)
		rs.Models[rs.Merged] = make(map[string]*GroupModel)
		for _, attr := range layout.Attributes {
			if m := rs.mergeGroups(attr, settings); m != nil {
				rs.Models[rs.Merged][attr] = m
			}
		}
	}
	return rs, nil
}

// mergeGroups pools subjects of all groups for an attribute and refits
// the population only.
func (rs *ResultSet) mergeGroups(attr string, settings *Settings) *GroupModel {
	var dicts []map[string]*IndividualPosterior
	for _, group := range rs.Groups {
		if g, ok := rs.Models[group][attr]; ok {
			dicts = append(dicts, g.Subjects)
		}
	}
	if len(dicts) == 0 {
		return nil
	}
	subjects := MergeSubjects(dicts...)
	names := make([]string, 0, len(subjects))
	for name := range subjects {
		names = append(names, name)
	}
	sort.Strings(names)

	nq := rs.Layout.NQ()
	samples := make([]*mat64.Dense, len(names))
	for i, name := range names {
		samples[i] = RecenterWidths(subjects[name].Samples, nq)
	}
	pop := NewPopulationPosterior(rs.Prior, nq, settings.Prior.LearnedWeight).Adapt(samples)
	log.Infof("Merged %d group(s) for attribute %s: %d subject(s)", len(dicts), attr, len(names))
	return &GroupModel{
		Group:      rs.Merged,
		Attribute:  attr,
		Subjects:   subjects,
		Population: pop,
		layout:     rs.Layout,
		names:      names,
		rv:         rs.RV,
		settings:   settings,
	}
}

// LogLikelihood returns the final lower bound of a model.
func (rs *ResultSet) LogLikelihood(group, attr string) (float64, error) {
	g, ok := rs.Models[group][attr]
	if !ok || len(g.LL) == 0 {
		return 0, fmt.Errorf("no fitted model for group %s, attribute %s", group, attr)
	}
	return g.LL[len(g.LL)-1], nil
}
