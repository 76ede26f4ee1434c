package logging

// Field names used across the pipeline so log output stays filterable.
const (
	FieldFile         = "file_path"
	FieldURI          = "uri"
	FieldFormat       = "format"
	FieldBank         = "bank"
	FieldStage        = "stage"
	FieldState        = "state"
	FieldStep         = "step"
	FieldProgress     = "progress"
	FieldAttempt      = "attempt"
	FieldLine         = "line"
	FieldSeverity     = "severity"
	FieldInvocationID = "invocation_id"
	FieldEngine       = "ocr_engine"
	FieldConfidence   = "confidence"
	FieldAccount      = "account_id"
	FieldStatus       = "status"
	FieldError        = "error"
	FieldDuration     = "duration_ms"
	FieldCount        = "count"
	FieldOutputFile   = "output_file"
)
