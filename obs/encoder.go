package obs

import (
	"fmt"

	"github.com/gonum/floats"
	"github.com/gonum/matrix/mat64"

	"bitbucket.org/Davydov/pcmodel/dist"
)

// comparison identifies a unique (slot a, slot b, category) triple.
type comparison struct {
	a, b, cat int
}

// Encoder stores one subject's responses aggregated into counts of
// unique comparisons. The response always indicates that object b was
// preferred over object a (or a tie).
type Encoder struct {
	nq     int
	nw     int
	forced bool
	slotA  []int
	slotB  []int
	cat    []int
	count  []float64
	nObs   int
}

// NewEncoder creates an Encoder for one subject's records.
func NewEncoder(layout *Layout, records []Record) (*Encoder, error) {
	e := &Encoder{
		nq:     layout.NQ(),
		nw:     layout.NDifferenceGrades,
		forced: layout.ForcedChoice,
	}
	index := make(map[comparison]int)
	for _, rec := range records {
		a, ok := layout.ObjectIndex(rec.Pair[0])
		if !ok {
			return nil, fmt.Errorf("unknown object: %s", rec.Pair[0])
		}
		b, ok := layout.ObjectIndex(rec.Pair[1])
		if !ok {
			return nil, fmt.Errorf("unknown object: %s", rec.Pair[1])
		}
		if a == b {
			return nil, fmt.Errorf("object %s compared to itself", rec.Pair[0])
		}
		tc, ok := layout.TestConditionIndex(rec.TestCondition)
		if !ok {
			return nil, fmt.Errorf("unknown test condition: %s", rec.TestCondition)
		}
		r := rec.Response
		if r < 0 {
			a, b = b, a
			r = -r
		}
		cat := r
		if e.forced {
			if r == 0 {
				return nil, fmt.Errorf("zero response for pair %v with forced choice", rec.Pair)
			}
			cat = r - 1
		}
		if cat >= e.nw {
			return nil, fmt.Errorf("response %d out of range for pair %v", rec.Response, rec.Pair)
		}
		c := comparison{layout.Slot(a, tc), layout.Slot(b, tc), cat}
		i, ok := index[c]
		if !ok {
			i = len(e.cat)
			index[c] = i
			e.slotA = append(e.slotA, c.a)
			e.slotB = append(e.slotB, c.b)
			e.cat = append(e.cat, c.cat)
			e.count = append(e.count, 0)
		}
		e.count[i]++
		e.nObs++
	}
	log.Debugf("Encoded %d records into %d unique comparisons", e.nObs, len(e.cat))
	return e, nil
}

// Len returns the number of unique comparisons.
func (e *Encoder) Len() int {
	return len(e.cat)
}

// NObservations returns the number of encoded records.
func (e *Encoder) NObservations() int {
	return e.nObs
}

// NParameters returns the expected parameter vector length.
func (e *Encoder) NParameters() int {
	return e.nq + e.nw
}

// quality returns the quality value at a slot.
func quality(x []float64, slot int) float64 {
	if slot < 0 {
		return 0
	}
	return x[slot]
}

// QDiff returns q_b - q_a for every unique comparison.
func (e *Encoder) QDiff(x, res []float64) []float64 {
	if res == nil {
		res = make([]float64, len(e.cat))
	}
	for i := range e.cat {
		res[i] = quality(x, e.slotB[i]) - quality(x, e.slotA[i])
	}
	return res
}

// limits returns the response interval of a category given the
// upper limits u.
func (e *Encoder) limits(u []float64, cat int) (lower, upper float64) {
	upper = u[cat]
	switch {
	case cat > 0:
		lower = u[cat-1]
	case e.forced:
		lower = 0
	default:
		lower = -u[0]
	}
	return
}

// CatLimits returns lower and upper response interval limits for every
// unique comparison.
func (e *Encoder) CatLimits(x, lower, upper []float64) ([]float64, []float64) {
	if lower == nil {
		lower = make([]float64, len(e.cat))
	}
	if upper == nil {
		upper = make([]float64, len(e.cat))
	}
	u := CatLimitsTransform(x[e.nq:], nil)
	for i, c := range e.cat {
		lower[i], upper[i] = e.limits(u, c)
	}
	return lower, upper
}

// shiftedLimits returns the response intervals of every unique
// comparison on the latent variable scale, (lower - d, upper - d] with
// d = q_b - q_a.
func (e *Encoder) shiftedLimits(x []float64) (a, b []float64) {
	d := e.QDiff(x, nil)
	a, b = e.CatLimits(x, nil, nil)
	floats.Sub(a, d)
	floats.Sub(b, d)
	return a, b
}

// LogLikelihood returns the log-likelihood of the subject's responses
// given a parameter vector x.
func (e *Encoder) LogLikelihood(x []float64, rv dist.LatentVariable) float64 {
	a, b := e.shiftedLimits(x)
	return floats.Dot(e.count, dist.LogCDFDiffSlice(rv, a, b, nil))
}

// GradLogLikelihood stores the gradient of LogLikelihood in grad and
// returns the log-likelihood.
func (e *Encoder) GradLogLikelihood(x []float64, rv dist.LatentVariable, grad []float64) float64 {
	a, b := e.shiftedLimits(x)
	ll := floats.Dot(e.count, dist.LogCDFDiffSlice(rv, a, b, nil))
	ga, gb := dist.DLogCDFDiffSlice(rv, a, b, nil, nil)
	jac := DCatLimitsTransform(x[e.nq:], nil)
	for i := range grad {
		grad[i] = 0
	}
	// accumulated derivatives with respect to the upper limits
	du := make([]float64, e.nw)
	for i, c := range e.cat {
		sa, sb := e.slotA[i], e.slotB[i]
		n := e.count[i]

		gd := -n * (ga[i] + gb[i])
		if sb >= 0 {
			grad[sb] += gd
		}
		if sa >= 0 {
			grad[sa] -= gd
		}

		du[c] += n * gb[i]
		switch {
		case c > 0:
			du[c-1] += n * ga[i]
		case !e.forced:
			du[0] -= n * ga[i]
		}
	}
	gw := grad[e.nq:]
	for k, v := range du {
		if v == 0 {
			continue
		}
		row := jac.RawRowView(k)
		for j := range gw {
			gw[j] += v * row[j]
		}
	}
	return ll
}

// LogLikelihoodRows returns the log-likelihood of every row of x.
func (e *Encoder) LogLikelihoodRows(x *mat64.Dense, rv dist.LatentVariable) []float64 {
	r, _ := x.Dims()
	res := make([]float64, r)
	for i := range res {
		res[i] = e.LogLikelihood(x.RawRowView(i), rv)
	}
	return res
}
