package domain

import "testing"

func TestExplainCounteractMatchesEvaluate(t *testing.T) {
	input := CounteractInput{RollTotal: 12, DC: 20, YourRank: 3, OppRank: 1}
	explained := ExplainCounteract(input)

	if explained.CounteractResult != EvaluateCounteract(input) {
		t.Fatalf("explained result = %+v, want %+v", explained.CounteractResult, EvaluateCounteract(input))
	}
	if explained.Diff != -8 {
		t.Fatalf("diff = %d, want -8", explained.Diff)
	}
	if explained.BaseDegree != DegreeFailure {
		t.Fatalf("base degree = %s, want Failure", explained.BaseDegree)
	}
	if !explained.Upgraded {
		t.Fatal("expected rank upgrade to be recorded")
	}
	if explained.RulesVersion != RulesVersion().RulesVersion {
		t.Fatalf("rules version = %q", explained.RulesVersion)
	}

	wantCodes := []string{"COMPUTE_DIFF", "CLASSIFY_DEGREE", "RANK_UPGRADE", "LEVEL_CAP"}
	if len(explained.Steps) != len(wantCodes) {
		t.Fatalf("steps = %d, want %d", len(explained.Steps), len(wantCodes))
	}
	for i, code := range wantCodes {
		if explained.Steps[i].Code != code {
			t.Fatalf("step %d code = %q, want %q", i, explained.Steps[i].Code, code)
		}
	}
	if explained.Steps[3].Data["counteracted"] != false {
		t.Fatalf("level cap step counteracted = %v, want false", explained.Steps[3].Data["counteracted"])
	}
}

func TestExplainCounteractCriticalFailureHasNoCap(t *testing.T) {
	explained := ExplainCounteract(CounteractInput{RollTotal: 1, DC: 20, YourRank: 9, OppRank: 1})
	if explained.Upgraded {
		t.Fatal("critical failure must not be upgraded")
	}
	if explained.Steps[3].Data["rank_cap"] != "" {
		t.Fatalf("rank cap = %v, want empty", explained.Steps[3].Data["rank_cap"])
	}
}
