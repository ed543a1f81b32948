package hmodel

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gonum/matrix/mat64"
)

// Checkpointer stores serialized model snapshots.
type Checkpointer interface {
	// Old returns true if the last save was long enough ago.
	Old() bool
	// Save stores data under a key.
	Save(key, data []byte) error
	// Load returns data stored under a key, or nil.
	Load(key []byte) ([]byte, error)
}

// ErrSnapshotMismatch is returned for snapshots stored by a model with
// different settings.
var ErrSnapshotMismatch = errors.New("snapshot does not match the model")

// SubjectSnapshot is a serialized IndividualPosterior.
type SubjectSnapshot struct {
	Samples [][]float64 `json:"samples"`
	Map     []float64   `json:"map"`
	Step    float64     `json:"step"`
}

// Snapshot is a serialized GroupModel state.
type Snapshot struct {
	Model      string                      `json:"model"`
	NSamples   int                         `json:"nSamples"`
	LL         []float64                   `json:"ll"`
	LLErr      []float64                   `json:"llErr"`
	Population *GaussGamma                 `json:"population"`
	Subjects   map[string]*SubjectSnapshot `json:"subjects"`
	Final      bool                        `json:"final"`
}

// Snapshot returns the serializable state of the model.
func (g *GroupModel) Snapshot(final bool) *Snapshot {
	s := &Snapshot{
		Model:      g.rv.Name(),
		NSamples:   g.settings.NSamples,
		LL:         g.LL,
		LLErr:      g.LLErr,
		Population: g.Population.GaussGamma,
		Subjects:   make(map[string]*SubjectSnapshot, len(g.Subjects)),
		Final:      final,
	}
	for name, ip := range g.Subjects {
		ss := &SubjectSnapshot{Map: ip.Map, Step: ip.Step}
		for i := 0; i < ip.NSamples(); i++ {
			ss.Samples = append(ss.Samples, ip.Samples.RawRowView(i))
		}
		s.Subjects[name] = ss
	}
	return s
}

// FromSnapshot returns a model with the state of a snapshot. The
// snapshot must match the subjects and the layout of the model. A
// snapshot of another latent variable model or sample size gives
// ErrSnapshotMismatch.
func (g *GroupModel) FromSnapshot(s *Snapshot) (*GroupModel, error) {
	if s.Model != g.rv.Name() {
		return nil, fmt.Errorf("%w: latent variable %q, expected %q", ErrSnapshotMismatch, s.Model, g.rv.Name())
	}
	if s.NSamples != g.settings.NSamples {
		return nil, fmt.Errorf("%w: %d samples, expected %d", ErrSnapshotMismatch, s.NSamples, g.settings.NSamples)
	}
	d := g.layout.NParameters()
	if s.Population == nil || s.Population.Dim() != d {
		return nil, fmt.Errorf("snapshot population does not match the layout")
	}
	if len(s.Subjects) != len(g.names) {
		return nil, fmt.Errorf("snapshot has %d subject(s), expected %d", len(s.Subjects), len(g.names))
	}
	subjects := make(map[string]*IndividualPosterior, len(g.names))
	for _, name := range g.names {
		ss, ok := s.Subjects[name]
		if !ok {
			return nil, fmt.Errorf("subject %s not found in snapshot", name)
		}
		ip := &IndividualPosterior{Map: ss.Map, Step: ss.Step}
		if len(ss.Samples) > 0 && len(ss.Samples) != g.settings.NSamples {
			return nil, fmt.Errorf("%w: subject %s has %d samples", ErrSnapshotMismatch, name, len(ss.Samples))
		}
		if len(ss.Samples) > 0 {
			ip.Samples = mat64.NewDense(len(ss.Samples), d, nil)
			for i, row := range ss.Samples {
				if len(row) != d {
					return nil, fmt.Errorf("subject %s: wrong sample length %d", name, len(row))
				}
				ip.Samples.SetRow(i, row)
			}
		}
		subjects[name] = ip
	}
	pop := &PopulationPosterior{
		GaussGamma:    s.Population.clone(),
		NQ:            g.Population.NQ,
		LearnedWeight: g.Population.LearnedWeight,
		prior:         g.Population.prior,
	}
	return g.withState(subjects, pop, append([]float64(nil), s.LL...), append([]float64(nil), s.LLErr...)), nil
}

// save stores the model snapshot.
func (g *GroupModel) save(cp Checkpointer, final bool) error {
	data, err := json.Marshal(g.Snapshot(final))
	if err != nil {
		return err
	}
	return cp.Save(g.Key(), data)
}

// restore loads the model from a checkpoint. It returns nil if there
// is no checkpoint or if it was stored with different settings.
func (g *GroupModel) restore(cp Checkpointer) (*GroupModel, bool, error) {
	data, err := cp.Load(g.Key())
	if err != nil || data == nil {
		return nil, false, err
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, false, fmt.Errorf("checkpoint %s: %v", g.Key(), err)
	}
	ng, err := g.FromSnapshot(&s)
	if errors.Is(err, ErrSnapshotMismatch) {
		log.Warningf("Ignoring checkpoint %s: %v", g.Key(), err)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("checkpoint %s: %v", g.Key(), err)
	}
	return ng, s.Final, nil
}
