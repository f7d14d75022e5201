package pipeline

import "testing"

func TestStageCovers(t *testing.T) {
	tests := []struct {
		name  string
		last  Stage
		stage Stage
		want  bool
	}{
		{"fresh job covers nothing", StageNone, StageDownload, false},
		{"earlier stage covered", StageAnalyze, StageDownload, true},
		{"same stage covered", StageAnalyze, StageAnalyze, true},
		{"later stage not covered", StageAnalyze, StageUnify, false},
		{"publish covers everything", StagePublish, StageVision, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.last.Covers(tt.stage); got != tt.want {
				t.Errorf("(%q).Covers(%q) = %v, want %v", tt.last, tt.stage, got, tt.want)
			}
		})
	}
}

func TestStageOrderIsStrict(t *testing.T) {
	for i := 1; i < len(stageOrder); i++ {
		if !stageOrder[i].Covers(stageOrder[i-1]) {
			t.Errorf("stage %q should cover its predecessor %q", stageOrder[i], stageOrder[i-1])
		}
		if stageOrder[i-1].Covers(stageOrder[i]) {
			t.Errorf("stage %q should not cover its successor %q", stageOrder[i-1], stageOrder[i])
		}
	}
}

func TestStageValid(t *testing.T) {
	if !StageNone.Valid() {
		t.Error("empty stage should be valid (fresh checkpoint)")
	}
	if !StageUnify.Valid() {
		t.Error("unify should be valid")
	}
	if Stage("bogus").Valid() {
		t.Error("unknown stage should be invalid")
	}
}
