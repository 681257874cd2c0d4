package pipeline

import (
	"github.com/refset/prevd-classifier/internal/classifier"
	"github.com/refset/prevd-classifier/internal/intake"
)

// Event types streamed while a job runs.
const (
	EventStart    = "start"
	EventProgress = "progress"
	EventComplete = "complete"
	EventError    = "error"
)

// Job is one upload to classify.
type Job struct {
	Filename       string
	Upload         *intake.Upload
	Criteria       classifier.Criteria
	SampleCount    int
	RowConcurrency int
}

// RowRequest reclassifies a single row outside any upload.
type RowRequest struct {
	RowIndex    int
	RawData     map[string]string
	RawEntries  []classifier.RawEntry
	Criteria    classifier.Criteria
	SampleCount int
}

// RunMeta records how a row was classified.
type RunMeta struct {
	ModelName         string  `json:"modelName"`
	PromptVersion     string  `json:"promptVersion"`
	SampleCount       int     `json:"sampleCount"`
	RowConcurrency    int     `json:"rowConcurrency,omitempty"`
	Temperature       float64 `json:"temperature"`
	SystemCriteria    string  `json:"systemCriteria"`
	UserCriteria      *string `json:"userCriteria"`
	CoreValue         *string `json:"coreValue"`
	AbuserCriteria    *string `json:"abuserCriteria"`
	DiscoveryCriteria *string `json:"discoveryCriteria"`
	LatencyMs         int64   `json:"latencyMs"`
}

// ClassifiedRow is the stored and streamed form of one row. ModelLabel keeps
// the engine's answer; FinalLabel may later be overridden by a reviewer.
type ClassifiedRow struct {
	ID         string                `json:"id,omitempty"`
	RowIndex   int                   `json:"rowIndex,omitempty"`
	RawData    map[string]string     `json:"rawData,omitempty"`
	RawEntries []classifier.RawEntry `json:"rawEntries,omitempty"`
	ModelLabel classifier.Label      `json:"modelLabel"`
	*classifier.Result
	RunMeta *RunMeta `json:"runMeta,omitempty"`
}

// RowResponse is the answer to a single-row request.
type RowResponse struct {
	Row     ClassifiedRow `json:"row"`
	RunMeta RunMeta       `json:"runMeta"`
}

// Analysis is the completed result of a job.
type Analysis struct {
	UploadID       string          `json:"uploadId"`
	Filename       string          `json:"filename"`
	ModelName      string          `json:"modelName"`
	RowConcurrency int             `json:"rowConcurrency"`
	Headers        []string        `json:"headers"`
	TotalRows      int             `json:"totalRows"`
	ProcessedRows  int             `json:"processedRows"`
	Rows           []ClassifiedRow `json:"rows"`
}

// Event is one line of the job stream. Fields not used by a type are omitted.
type Event struct {
	Type           string           `json:"type"`
	Filename       string           `json:"filename,omitempty"`
	TotalRows      int              `json:"totalRows,omitempty"`
	SampleCount    int              `json:"sampleCount,omitempty"`
	RowConcurrency int              `json:"rowConcurrency,omitempty"`
	ProcessedRows  int              `json:"processedRows,omitempty"`
	Percent        float64          `json:"percent,omitempty"`
	RowIndex       int              `json:"rowIndex,omitempty"`
	CurrentLabel   classifier.Label `json:"currentLabel,omitempty"`
	Payload        *Analysis        `json:"payload,omitempty"`
	Message        string           `json:"message,omitempty"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
