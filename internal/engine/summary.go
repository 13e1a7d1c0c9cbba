package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/allofdaniel/shopping-helper/internal/common"
)

// Stage names one step of a collection run.
type Stage string

// Run stages in execution order.
const (
	StageDiscover   Stage = "discover"
	StageTranscript Stage = "transcript"
	StageExtract    Stage = "extract"
	StageMatch      Stage = "match"
	StagePersist    Stage = "persist"
)

// Stages lists every stage in execution order.
var Stages = []Stage{StageDiscover, StageTranscript, StageExtract, StageMatch, StagePersist}

// StageStats counts the items a stage handled. Skipped items were neither
// processed nor failed (no transcript, rejected transcript, unmatched).
type StageStats struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// RunSummary is the outcome of one collection run. A run always yields a
// summary; per-item failures are counted here instead of being returned.
type RunSummary struct {
	StartedAt         time.Time             `json:"started_at"`
	Stages            map[Stage]*StageStats `json:"stages"`
	Errors            common.ErrorSummary   `json:"errors"`
	RunID             string                `json:"run_id"`
	Domain            string                `json:"domain"`
	Query             string                `json:"query"`
	AbortReason       string                `json:"abort_reason,omitempty"`
	Duration          time.Duration         `json:"duration"`
	VideosDiscovered  int                   `json:"videos_discovered"`
	DuplicatesSkipped int                   `json:"duplicates_skipped"`
	Candidates        int                   `json:"candidates"`
	Matched           int                   `json:"matched"`
	NeedsReview       int                   `json:"needs_review"`
	Inserted          int                   `json:"inserted"`
	AlreadyPresent    int                   `json:"already_present"`
	Aborted           bool                  `json:"aborted"`
}

func newRunSummary(runID, domain, query string, started time.Time) *RunSummary {
	s := &RunSummary{
		RunID:     runID,
		Domain:    domain,
		Query:     query,
		StartedAt: started,
		Stages:    make(map[Stage]*StageStats, len(Stages)),
	}
	for _, st := range Stages {
		s.Stages[st] = &StageStats{}
	}
	return s
}

// Stage returns the counters for st.
func (s *RunSummary) Stage(st Stage) StageStats {
	if c, ok := s.Stages[st]; ok {
		return *c
	}
	return StageStats{}
}

// JSON renders the summary for machine consumption.
func (s *RunSummary) JSON() string {
	type alias RunSummary
	data, err := json.Marshal(struct {
		*alias
		Duration string `json:"duration"`
	}{alias: (*alias)(s), Duration: s.Duration.Round(time.Millisecond).String()})
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal summary: %v"}`, err)
	}
	return string(data)
}
