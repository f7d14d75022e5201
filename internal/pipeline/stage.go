// Package pipeline drives one document-extraction job through its stages,
// checkpointing after each so a crashed job resumes where it stopped.
package pipeline

// Stage names one pipeline step. Stages are strictly ordered; the
// checkpoint records the last completed one.
type Stage string

const (
	StageNone         Stage = ""
	StageDownload     Stage = "download"
	StageConvert      Stage = "convert"
	StageClassify     Stage = "classify"
	StageRotate       Stage = "rotate"
	StageUpload       Stage = "upload"
	StageAnalyze      Stage = "analyze"
	StageRenderVision Stage = "render_vision"
	StageVision       Stage = "vision"
	StageUnify        Stage = "unify"
	StagePublish      Stage = "publish"
)

var stageOrder = []Stage{
	StageDownload,
	StageConvert,
	StageClassify,
	StageRotate,
	StageUpload,
	StageAnalyze,
	StageRenderVision,
	StageVision,
	StageUnify,
	StagePublish,
}

func (s Stage) index() int {
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// Covers reports whether completing s implies other is already done.
func (s Stage) Covers(other Stage) bool {
	return s.index() >= other.index() && other != StageNone
}

// Valid reports whether s names a real stage.
func (s Stage) Valid() bool {
	return s == StageNone || s.index() >= 0
}
