package model

import (
	"encoding/json"
	"fmt"
)

// History is the exported run history
type History struct {
	Overall OverallHistory `json:"overall"`
	Runs    []Run          `json:"runs"`
}

// OverallHistory summarizes every run in the export
type OverallHistory struct {
	TotalRuns   int     `json:"totalRuns"`
	FailedRuns  int     `json:"failedRuns"`
	FailureRate float64 `json:"failureRate"`
	TotalErrors int     `json:"totalErrors"`
}

// NewHistory computes the overall figures for runs.
func NewHistory(runs []Run) History {
	h := History{Runs: runs}
	if h.Runs == nil {
		h.Runs = []Run{}
	}
	for _, r := range runs {
		h.Overall.TotalRuns++
		h.Overall.TotalErrors += r.ErrorsFound
		if r.Conclusion == "failure" {
			h.Overall.FailedRuns++
		}
	}
	if h.Overall.TotalRuns > 0 {
		h.Overall.FailureRate = float64(h.Overall.FailedRuns) / float64(h.Overall.TotalRuns)
	}
	return h
}

func HistoryToJson(runs []Run) ([]byte, error) {
	jsonData, err := json.MarshalIndent(NewHistory(runs), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal history to JSON: %w", err)
	}
	return jsonData, nil
}
