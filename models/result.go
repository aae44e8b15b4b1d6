package models

type SourceStatus string

const (
	SourceStatusOK      SourceStatus = "ok"
	SourceStatusFailed  SourceStatus = "failed"
	SourceStatusTimeout SourceStatus = "timeout"
)

// SourceReport explains what one source contributed to a search.
type SourceReport struct {
	Source       string       `json:"source"`
	Status       SourceStatus `json:"status"`
	Count        int          `json:"count"` // records in the final, pre-pagination set
	Raw          int          `json:"raw"`
	Pages        int          `json:"pages"`
	Skipped      int          `json:"skipped"`
	Rejected     int          `json:"rejected"`
	PostFiltered []string     `json:"postFiltered,omitempty"`
	Error        string       `json:"error,omitempty"`
	DurationMs   int64        `json:"durationMs"`
}

func (r SourceReport) Failed() bool {
	return r.Status != SourceStatusOK
}

type PossibleDuplicate struct {
	LeftID     string   `json:"leftId"`
	RightID    string   `json:"rightId"`
	Confidence float64  `json:"confidence"`
	Reasons    []string `json:"reasons"`
}

type Diagnostics struct {
	ExtractionSkips    int                 `json:"extractionSkips"`
	NormalizeRejects   int                 `json:"normalizeRejects"`
	HardRejects        int                 `json:"hardRejects"`
	DuplicatesRemoved  int                 `json:"duplicatesRemoved"`
	PossibleDuplicates []PossibleDuplicate `json:"possibleDuplicates,omitempty"`
}

type SearchResult struct {
	RunID           string                  `json:"runId"`
	Properties      []ScoredProperty        `json:"properties"`
	Total           int                     `json:"total"`
	Page            int                     `json:"page"`
	Limit           int                     `json:"limit"`
	SourceBreakdown map[string]SourceReport `json:"sourceBreakdown"`
	ExecutionTimeMs int64                   `json:"executionTimeMs"`
	Diagnostics     Diagnostics             `json:"diagnostics"`

	// Matched is every deduplicated hard match in sort order, before
	// pagination. It feeds the property snapshot and is not serialized.
	Matched []ScoredProperty `json:"-"`
}

func (r *SearchResult) FailedSources() []string {
	var failed []string
	for name, rep := range r.SourceBreakdown {
		if rep.Failed() {
			failed = append(failed, name)
		}
	}
	return failed
}
