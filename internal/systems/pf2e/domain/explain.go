package domain

// ExplainStep is one deterministic evaluation step.
type ExplainStep struct {
	Code    string
	Message string
	Data    map[string]any
}

// CounteractExplanation carries a counteract result with the steps that produced it.
type CounteractExplanation struct {
	CounteractResult
	Diff         int
	BaseDegree   Degree
	Upgraded     bool
	RulesVersion string
	Steps        []ExplainStep
}

// ExplainCounteract evaluates a counteract check and records each rule it applied.
func ExplainCounteract(input CounteractInput) CounteractExplanation {
	diff := clampedDiff(input.RollTotal, input.DC)
	base := ClassifyDegree(diff)
	final := applyRankUpgrade(base, input.YourRank, input.OppRank)
	counteracted := withinRankCap(final, input.YourRank, input.OppRank)

	rankCap := ""
	switch final {
	case DegreeCriticalSuccess:
		rankCap = "opp_rank + 3"
	case DegreeSuccess:
		rankCap = "opp_rank + 1"
	}

	steps := []ExplainStep{
		{
			Code:    "COMPUTE_DIFF",
			Message: "Subtract DC from roll total",
			Data: map[string]any{
				"roll_total": input.RollTotal,
				"dc":         input.DC,
				"diff":       diff,
			},
		},
		{
			Code:    "CLASSIFY_DEGREE",
			Message: "Classify degree of success by first matching threshold",
			Data: map[string]any{
				"diff":        diff,
				"degree_code": base.Code(),
				"degree":      base.String(),
			},
		},
		{
			Code:    "RANK_UPGRADE",
			Message: "Upgrade failure to success when your rank exceeds the opposing rank",
			Data: map[string]any{
				"your_rank": input.YourRank,
				"opp_rank":  input.OppRank,
				"upgraded":  final != base,
				"degree":    final.String(),
			},
		},
		{
			Code:    "LEVEL_CAP",
			Message: "Check the rank cap for the final degree",
			Data: map[string]any{
				"degree":       final.String(),
				"rank_cap":     rankCap,
				"counteracted": counteracted,
			},
		},
	}

	return CounteractExplanation{
		CounteractResult: CounteractResult{
			Degree:       final,
			Counteracted: counteracted,
		},
		Diff:         diff,
		BaseDegree:   base,
		Upgraded:     final != base,
		RulesVersion: RulesVersion().RulesVersion,
		Steps:        steps,
	}
}
