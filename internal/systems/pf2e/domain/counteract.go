package domain

import "math"

// Degree is a degree of success for a check.
type Degree int

const (
	DegreeCriticalFailure Degree = iota
	DegreeFailure
	DegreeSuccess
	DegreeCriticalSuccess
)

func (d Degree) String() string {
	switch d {
	case DegreeCriticalSuccess:
		return "Critical Success"
	case DegreeSuccess:
		return "Success"
	case DegreeFailure:
		return "Failure"
	case DegreeCriticalFailure:
		return "Critical Failure"
	default:
		return "Unknown"
	}
}

// Code returns the stable machine identifier for the degree.
func (d Degree) Code() string {
	switch d {
	case DegreeCriticalSuccess:
		return "CRITICAL_SUCCESS"
	case DegreeSuccess:
		return "SUCCESS"
	case DegreeFailure:
		return "FAILURE"
	case DegreeCriticalFailure:
		return "CRITICAL_FAILURE"
	default:
		return "UNKNOWN"
	}
}

// IsSuccess reports whether the degree is a success or critical success.
func (d Degree) IsSuccess() bool {
	return d == DegreeSuccess || d == DegreeCriticalSuccess
}

const (
	// criticalMargin is how far a total must beat or miss the DC to be critical.
	criticalMargin = 10

	// criticalSuccessRankCap is the highest rank gap a critical success can counteract.
	criticalSuccessRankCap = 3

	// successRankCap is the highest rank gap a success can counteract.
	successRankCap = 1
)

// CounteractInput describes one counteract check. RollTotal already includes
// the die result and every modifier.
type CounteractInput struct {
	RollTotal int
	DC        int
	YourRank  int
	OppRank   int
}

// CounteractResult is the outcome of a counteract check.
type CounteractResult struct {
	Degree       Degree
	Counteracted bool
}

// EvaluateCounteract resolves a counteract check.
//
// The degree is classified from RollTotal-DC with first-match precedence:
// +10 or better is a critical success, 0 or better a success, -10 or worse a
// critical failure, anything else a failure. A plain failure is upgraded to a
// success when YourRank exceeds OppRank; critical failures are never upgraded.
// The counteract then only lands when the rank gap is within the cap for the
// final degree: OppRank+3 on a critical success, OppRank+1 on a success.
//
// EvaluateCounteract is total over all integers and never fails.
func EvaluateCounteract(input CounteractInput) CounteractResult {
	degree := ClassifyDegree(clampedDiff(input.RollTotal, input.DC))
	degree = applyRankUpgrade(degree, input.YourRank, input.OppRank)
	return CounteractResult{
		Degree:       degree,
		Counteracted: withinRankCap(degree, input.YourRank, input.OppRank),
	}
}

// ClassifyDegree maps a total-minus-DC difference to a degree of success.
func ClassifyDegree(diff int) Degree {
	switch {
	case diff >= criticalMargin:
		return DegreeCriticalSuccess
	case diff >= 0:
		return DegreeSuccess
	case diff <= -criticalMargin:
		return DegreeCriticalFailure
	default:
		return DegreeFailure
	}
}

func applyRankUpgrade(degree Degree, yourRank, oppRank int) Degree {
	if yourRank > oppRank && degree == DegreeFailure {
		return DegreeSuccess
	}
	return degree
}

func withinRankCap(degree Degree, yourRank, oppRank int) bool {
	gap := clampedDiff(yourRank, oppRank)
	switch degree {
	case DegreeCriticalSuccess:
		return gap <= criticalSuccessRankCap
	case DegreeSuccess:
		return gap <= successRankCap
	default:
		return false
	}
}

// clampedDiff is a-b saturated to the int range, so comparisons against the
// difference hold at the extremes.
func clampedDiff(a, b int) int {
	d := a - b
	if (a >= 0) != (b >= 0) && (d >= 0) != (a >= 0) {
		if a >= 0 {
			return math.MaxInt
		}
		return math.MinInt
	}
	return d
}
