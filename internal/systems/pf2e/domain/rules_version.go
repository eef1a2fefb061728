package domain

// RulesMetadata describes the static ruleset implemented by this package.
type RulesMetadata struct {
	System          string
	Module          string
	RulesVersion    string
	DiceModel       string
	TotalFormula    string
	DegreeRule      string
	RankUpgradeRule string
	LevelCapRule    string
	Degrees         []Degree
}

// RulesVersion returns the static ruleset metadata for counteract checks.
func RulesVersion() RulesMetadata {
	return RulesMetadata{
		System:          "Pathfinder 2e",
		Module:          "Counteract",
		RulesVersion:    "1.0.0",
		DiceModel:       "1d20",
		TotalFormula:    "d20 + modifier + bonus",
		DegreeRule:      "diff >= 10 critical success; diff >= 0 success; diff <= -10 critical failure; otherwise failure",
		RankUpgradeRule: "failure becomes success when your rank exceeds the opposing rank; critical failure is never upgraded",
		LevelCapRule:    "critical success counteracts up to opposing rank + 3; success up to opposing rank + 1",
		Degrees: []Degree{
			DegreeCriticalSuccess,
			DegreeSuccess,
			DegreeFailure,
			DegreeCriticalFailure,
		},
	}
}
