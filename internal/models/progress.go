package models

// Stage is the coarse pipeline stage reported to progress observers.
type Stage string

const (
	StageUploading Stage = "uploading"
	StageParsing   Stage = "parsing"
	StageComplete  Stage = "complete"
	StageError     Stage = "error"
)

// ProcessingProgress is a snapshot of pipeline advancement. It is emitted
// to observers and never stored on the result.
type ProcessingProgress struct {
	Stage            Stage  `json:"stage"`
	Progress         int    `json:"progress"`
	CurrentStep      string `json:"currentStep"`
	TotalSteps       int    `json:"totalSteps"`
	CurrentStepIndex int    `json:"currentStepIndex"`
}
