package domain

// Document statuses reported by ingestion.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// DocumentReport is the outcome of ingesting one document.
type DocumentReport struct {
	Origin      string `json:"url"`
	Status      string `json:"status"`
	Passages    int    `json:"chunks_stored"`
	ArchivePath string `json:"markdown_file,omitempty"`
	Error       string `json:"error,omitempty"`
	Field       string `json:"field,omitempty"`

	Err error `json:"-"`
}

// IngestSummary aggregates a batch of DocumentReports.
type IngestSummary struct {
	Total          int `json:"total_urls"`
	Successful     int `json:"successful"`
	Failed         int `json:"failed"`
	PassagesStored int `json:"total_chunks_stored"`
}

// IngestReport is returned by the ingestion entry point.
type IngestReport struct {
	Results []DocumentReport `json:"results"`
	Summary IngestSummary    `json:"summary"`
}

// Summarize recomputes the summary from the per-document results. Passages
// written by a document that later failed still count as stored.
func (r *IngestReport) Summarize() {
	s := IngestSummary{Total: len(r.Results)}
	for _, d := range r.Results {
		if d.Status == StatusSuccess {
			s.Successful++
		} else {
			s.Failed++
		}
		s.PassagesStored += d.Passages
	}
	r.Summary = s
}
