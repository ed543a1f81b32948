package dist

import (
	"fmt"
	"math"
	"strings"
)

// LatentVariable is a probability model of the random decision
// variable Z, which is added to the quality difference between two
// objects before the subject reports an ordinal response. Both
// implementations are symmetric around zero.
//
// LogCDFDiff and DLogCDFDiff require a < b; b may be +Inf.
type LatentVariable interface {
	// Name returns the model name.
	Name() string
	// LogCDFDiff returns log Prob{a < Z <= b}.
	LogCDFDiff(a, b float64) float64
	// DLogCDFDiff returns partial derivatives of LogCDFDiff with
	// respect to a and b.
	DLogCDFDiff(a, b float64) (da, db float64)
}

// Thurstone is the Thurstone Case V model, Z is normal with variance
// 2, i.e. a difference of two standard normal variables.
type Thurstone struct{}

// Name returns "thurstone".
func (Thurstone) Name() string {
	return "thurstone"
}

// LogCDFDiff returns log Prob{a < Z <= b}.
func (Thurstone) LogCDFDiff(a, b float64) float64 {
	return logDiff(LogNormCDF, a/math.Sqrt2, b/math.Sqrt2)
}

// DLogCDFDiff returns derivatives of log Prob{a < Z <= b}.
func (Thurstone) DLogCDFDiff(a, b float64) (da, db float64) {
	a /= math.Sqrt2
	b /= math.Sqrt2
	lp := logDiff(LogNormCDF, a, b)
	da = -math.Exp(LogNormPDF(a)-lp) / math.Sqrt2
	db = math.Exp(LogNormPDF(b)-lp) / math.Sqrt2
	return
}

// Bradley is the Bradley-Terry-Luce model, Z has the standard
// logistic distribution.
type Bradley struct{}

// Name returns "bradley".
func (Bradley) Name() string {
	return "bradley"
}

// LogCDFDiff returns log Prob{a < Z <= b}.
func (Bradley) LogCDFDiff(a, b float64) float64 {
	return logDiff(LogSigmoid, a, b)
}

// DLogCDFDiff returns derivatives of log Prob{a < Z <= b}.
func (Bradley) DLogCDFDiff(a, b float64) (da, db float64) {
	lp := logDiff(LogSigmoid, a, b)
	da = -math.Exp(LogLogisticPDF(a) - lp)
	db = math.Exp(LogLogisticPDF(b) - lp)
	return
}

// NewLatentVariable returns a latent variable model by name.
func NewLatentVariable(name string) (LatentVariable, error) {
	switch strings.ToLower(name) {
	case "thurstone":
		return Thurstone{}, nil
	case "bradley":
		return Bradley{}, nil
	}
	return nil, fmt.Errorf("Unknown latent variable model: %s", name)
}

// LogCDFDiffSlice computes rv.LogCDFDiff element-wise. If res is
// nil, a new slice is allocated.
func LogCDFDiffSlice(rv LatentVariable, a, b, res []float64) []float64 {
	if len(a) != len(b) {
		panic("slice lengths don't match")
	}
	if res == nil {
		res = make([]float64, len(a))
	}
	for i := range a {
		res[i] = rv.LogCDFDiff(a[i], b[i])
	}
	return res
}

// DLogCDFDiffSlice computes rv.DLogCDFDiff element-wise.
func DLogCDFDiffSlice(rv LatentVariable, a, b, da, db []float64) ([]float64, []float64) {
	if len(a) != len(b) {
		panic("slice lengths don't match")
	}
	if da == nil {
		da = make([]float64, len(a))
	}
	if db == nil {
		db = make([]float64, len(a))
	}
	for i := range a {
		da[i], db[i] = rv.DLogCDFDiff(a[i], b[i])
	}
	return da, db
}
