package domain

// JobStatus tracks each pipeline stage for a single conversion job.
type JobStatus string

const (
	JobStatusIdle         JobStatus = "idle"
	JobStatusCreatingTemp JobStatus = "creating_temp"
	JobStatusRasterizing  JobStatus = "rasterizing"
	JobStatusTracing      JobStatus = "tracing"
	JobStatusDone         JobStatus = "done"
	JobStatusFailed       JobStatus = "failed"
)

// Settings contains user-selectable runtime configuration.
type Settings struct {
	RasterizerCommand string `json:"rasterizerCommand"`
	TracerPath        string `json:"tracerPath,omitempty"`
	LogLevel          string `json:"logLevel"`
	LastInputDir      string `json:"lastInputDir,omitempty"`
	LastOutputDir     string `json:"lastOutputDir,omitempty"`
}

// Job stores the current job identity and lifecycle status.
type Job struct {
	ID         string    `json:"id"`
	Status     JobStatus `json:"status"`
	InputPath  string    `json:"inputPath,omitempty"`
	OutputPath string    `json:"outputPath,omitempty"`
}

// Severity selects the modal message style.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityError Severity = "error"
)

// Notice is one modal message shown to the user.
type Notice struct {
	Severity Severity `json:"severity"`
	Title    string   `json:"title"`
	Body     string   `json:"body"`
}

// Status lines pushed to the UI during a conversion.
const (
	StatusConverting = "Converting image..."
	StatusTracing    = "Tracing bitmap..."
	StatusCompleted  = "Conversion completed."
	StatusFailed     = "Conversion failed."
)
