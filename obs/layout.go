// Package obs provides the experiment layout, raw paired-comparison
// records and the encoder turning one subject's records into a
// likelihood over the model parameter vector.
package obs

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/op/go-logging"
)

// log is the global logging variable.
var log = logging.MustGetLogger("obs")

// TestCondition is a tuple of test factor levels.
type TestCondition []string

// Key returns a string uniquely identifying the test condition.
func (tc TestCondition) Key() string {
	return strings.Join(tc, "\x1f")
}

// String returns a human-readable test condition.
func (tc TestCondition) String() string {
	return "(" + strings.Join(tc, ", ") + ")"
}

// Layout describes the experiment. Objects[0] is the reference object,
// its quality is zero by definition and never estimated.
type Layout struct {
	// Objects are the compared stimuli.
	Objects []string `json:"objects"`
	// TestConditions enumerates test-factor combinations. An empty
	// list means a single condition without factors.
	TestConditions []TestCondition `json:"testConditions,omitempty"`
	// NDifferenceGrades is the number of response intervals. With
	// forced choice the response magnitudes are 1..NDifferenceGrades,
	// otherwise 0..NDifferenceGrades-1 where 0 means "no difference".
	NDifferenceGrades int `json:"nDifferenceGrades"`
	// ForcedChoice is true if ties are not allowed.
	ForcedChoice bool `json:"forcedChoice"`
	// Attributes are perceptual attributes judged in the experiment.
	Attributes []string `json:"attributes"`
}

// Check verifies layout consistency.
func (l *Layout) Check() error {
	if len(l.Objects) < 2 {
		return errors.New("at least two objects are required")
	}
	if l.NDifferenceGrades < 1 {
		return errors.New("number of difference grades should be at least 1")
	}
	if !l.ForcedChoice && l.NDifferenceGrades < 2 {
		return errors.New("at least two response intervals are required when ties are allowed")
	}
	if len(l.Attributes) == 0 {
		return errors.New("no attributes")
	}
	seen := make(map[string]bool, len(l.Objects))
	for _, o := range l.Objects {
		if seen[o] {
			return fmt.Errorf("duplicate object: %s", o)
		}
		seen[o] = true
	}
	seen = make(map[string]bool, len(l.TestConditions))
	for _, tc := range l.TestConditions {
		if seen[tc.Key()] {
			return fmt.Errorf("duplicate test condition: %s", tc)
		}
		seen[tc.Key()] = true
	}
	return nil
}

// NObjects returns the number of objects including the reference.
func (l *Layout) NObjects() int {
	return len(l.Objects)
}

// NTestConditions returns the number of test conditions.
func (l *Layout) NTestConditions() int {
	if len(l.TestConditions) == 0 {
		return 1
	}
	return len(l.TestConditions)
}

// NQ returns the length of the quality sub-vector.
func (l *Layout) NQ() int {
	return (l.NObjects() - 1) * l.NTestConditions()
}

// NParameters returns the length of the full parameter vector.
func (l *Layout) NParameters() int {
	return l.NQ() + l.NDifferenceGrades
}

// ObjectIndex returns the object index by name.
func (l *Layout) ObjectIndex(name string) (int, bool) {
	for i, o := range l.Objects {
		if o == name {
			return i, true
		}
	}
	return -1, false
}

// TestConditionIndex returns the test condition index.
func (l *Layout) TestConditionIndex(tc TestCondition) (int, bool) {
	if len(l.TestConditions) == 0 {
		return 0, len(tc) == 0
	}
	key := tc.Key()
	for i, t := range l.TestConditions {
		if t.Key() == key {
			return i, true
		}
	}
	return -1, false
}

// Slot returns the quality sub-vector index of an object in a test
// condition, or -1 for the reference object.
func (l *Layout) Slot(object, tc int) int {
	if object == 0 {
		return -1
	}
	return tc*(l.NObjects()-1) + object - 1
}

// Record is one paired-comparison trial.
type Record struct {
	// Pair is the presented pair of objects.
	Pair [2]string `json:"pair"`
	// Response is the signed response magnitude, positive if the
	// second object was preferred.
	Response int `json:"response"`
	// TestCondition is the condition of the trial.
	TestCondition TestCondition `json:"testCondition,omitempty"`
}

// Dataset stores all records of an experiment.
type Dataset struct {
	Layout *Layout `json:"layout"`
	// Groups maps group -> attribute -> subject -> records.
	Groups map[string]map[string]map[string][]Record `json:"groups"`
}

// ReadDataset decodes a JSON dataset and checks its layout.
func ReadDataset(r io.Reader) (*Dataset, error) {
	ds := &Dataset{}
	if err := json.NewDecoder(r).Decode(ds); err != nil {
		return nil, err
	}
	if ds.Layout == nil {
		return nil, errors.New("dataset has no layout")
	}
	if err := ds.Layout.Check(); err != nil {
		return nil, err
	}
	if len(ds.Groups) == 0 {
		return nil, errors.New("dataset has no groups")
	}
	log.Infof("Read %d group(s), %d object(s), %d test condition(s)",
		len(ds.Groups), ds.Layout.NObjects(), ds.Layout.NTestConditions())
	return ds, nil
}

// GroupNames returns sorted group names.
func (ds *Dataset) GroupNames() []string {
	names := make([]string, 0, len(ds.Groups))
	for g := range ds.Groups {
		names = append(names, g)
	}
	sort.Strings(names)
	return names
}
