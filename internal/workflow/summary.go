package workflow

import (
	"subguard/internal/pipeline"
	"subguard/internal/services"
)

// Summary counts batch outcomes.
type Summary struct {
	Total     int `json:"total"`
	Approved  int `json:"approved"`
	Rejected  int `json:"rejected"`
	Cached    int `json:"cached"`
	Failed    int `json:"failed"`
	Retryable int `json:"retryable"`
}

// Summarize tallies reports. Cached verdicts count toward their verdict and
// toward Cached.
func Summarize(reports []Report) Summary {
	s := Summary{Total: len(reports)}
	for _, r := range reports {
		if r.Err != nil {
			s.Failed++
			if services.Retryable(r.Err) {
				s.Retryable++
			}
			continue
		}
		switch r.Outcome.State {
		case pipeline.StateApproved:
			s.Approved++
		case pipeline.StateRejected:
			s.Rejected++
		}
		if r.Outcome.Cached {
			s.Cached++
		}
	}
	return s
}
