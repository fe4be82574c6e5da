// Package throttle implements load-adaptive admission gating.
package throttle

import "math"

// floorEpsilon absorbs float64 representation error before flooring, so
// products that are whole numbers in exact arithmetic (5 * 0.8 = 4) do
// not come back one low (3.999... -> 3).
const floorEpsilon = 1e-9

// GateResult is the outcome of the adaptive pre-check for one rule.
type GateResult struct {
	// Overloaded means the request must be denied with reason
	// system_overload before the algorithm primitive is touched.
	Overloaded bool
	// Reduction is the capacity factor computed from the load excess.
	Reduction float64
	// AdjustedMax is floor(maxRequests * Reduction). It is a gating
	// threshold only; the primitive always keeps the rule's original
	// maxRequests. Callers must not use it to resize capacity.
	AdjustedMax int
}

// Evaluate runs the adaptive gate. It applies only when the rule is
// adaptive and systemLoad exceeds the rule's threshold; otherwise the
// request proceeds untouched with AdjustedMax = maxRequests.
func Evaluate(adaptive bool, loadThreshold float64, maxRequests int, systemLoad float64) GateResult {
	if !adaptive || systemLoad <= loadThreshold {
		return GateResult{Reduction: 1, AdjustedMax: maxRequests}
	}

	reduction := 1 - (systemLoad - loadThreshold)
	adjusted := int(math.Floor(float64(maxRequests)*reduction + floorEpsilon))

	return GateResult{
		Overloaded:  adjusted < 1,
		Reduction:   reduction,
		AdjustedMax: adjusted,
	}
}
