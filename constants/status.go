package constants

// RunStatus is the canonical lifecycle status for a pipeline run.
type RunStatus string

// Stable values (store these exact strings in DB).
const (
	RunStatusPending     RunStatus = "pending"
	RunStatusProcessing  RunStatus = "processing"
	RunStatusCompleted   RunStatus = "completed"
	RunStatusFailed      RunStatus = "failed"
	RunStatusNeedsReview RunStatus = "needs_manual_review"
	RunStatusCancelled   RunStatus = "cancelled"
)

// Terminal reports whether a run in this status will never progress again.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusNeedsReview, RunStatusCancelled:
		return true
	}
	return false
}

// Stage identifies one of the seven ordered pipeline stages.
type Stage string

const (
	StageIngestion       Stage = "ingestion"
	StageTextExtraction  Stage = "text_extraction"
	StageTableExtraction Stage = "table_extraction"
	StageLabeling        Stage = "labeling"
	StageNormalization   Stage = "normalization"
	StageValidation      Stage = "validation"
	StageOutputAssembly  Stage = "output_assembly"
)

// StageOrder is the strict forward order the orchestrator drives.
var StageOrder = []Stage{
	StageIngestion,
	StageTextExtraction,
	StageTableExtraction,
	StageLabeling,
	StageNormalization,
	StageValidation,
	StageOutputAssembly,
}

// NextStage returns the stage after s, or "" when s is the last stage.
func NextStage(s Stage) Stage {
	for i, st := range StageOrder {
		if st == s && i+1 < len(StageOrder) {
			return StageOrder[i+1]
		}
	}
	return ""
}

// StageIndex returns the position of s in StageOrder, or -1 if unknown.
func StageIndex(s Stage) int {
	for i, st := range StageOrder {
		if st == s {
			return i
		}
	}
	return -1
}
