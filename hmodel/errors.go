package hmodel

import "fmt"

// OptimizationFailure is returned when the MAP search fails for a
// subject. It aborts the group fit.
type OptimizationFailure struct {
	Subject string
	Err     error
}

func (e *OptimizationFailure) Error() string {
	return fmt.Sprintf("MAP search failed for subject %s: %v", e.Subject, e.Err)
}

func (e *OptimizationFailure) Unwrap() error {
	return e.Err
}

// LowSampleWarning reports a population fitted on too few subjects.
type LowSampleWarning struct {
	Group     string
	Attribute string
	N         int
	Min       int
}

func (w *LowSampleWarning) Error() string {
	return fmt.Sprintf("group %s, attribute %s: only %d subject(s), population estimate needs at least %d",
		w.Group, w.Attribute, w.N, w.Min)
}

// UnrelatedSamplesWarning reports a group where subjects differ
// between attributes, so samples cannot be aligned across attributes.
type UnrelatedSamplesWarning struct {
	Group string
}

func (w *UnrelatedSamplesWarning) Error() string {
	return fmt.Sprintf("group %s: subjects differ between attributes, samples are unrelated", w.Group)
}
