package pipeline

import (
	"fmt"
	"strings"

	"github.com/ktappdev/ytstats/resolver"
)

// Stage names one step of a run. Persist stages are named after their
// target, "persist local" and "persist spreadsheet".
type Stage string

const (
	StageResolve          Stage = "resolve"
	StageFetchPlaylist    Stage = "fetch uploads playlist"
	StageFetchVideoIDs    Stage = "fetch video ids"
	StageFetchStatistics  Stage = "fetch statistics"
	StageFetchTranscripts Stage = "fetch transcripts"
	StagePersistLocal     Stage = "persist local"
	StagePersistSheet     Stage = "persist spreadsheet"
)

// StageError ties a failure to the stage it happened in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// TargetResult is what an optional target did.
type TargetResult struct {
	Target  string
	Outcome Outcome
	// Err is a *StageError when the export failed.
	Err error
}

// Summary reports one run.
type Summary struct {
	RunID  string
	Target resolver.Ref
	// Found is the number of distinct video IDs listed for the target.
	Found int
	// Processed is the number of videos with statistics.
	Processed int
	// Dropped is Found minus Processed.
	Dropped     int
	Transcripts int
	// Written is the number of rows written by required targets.
	Written int
	// Exports lists optional targets in the order they ran.
	Exports []TargetResult
}

// Warnings returns the failures of optional targets.
func (s Summary) Warnings() []string {
	var out []string
	for _, e := range s.Exports {
		if e.Err != nil {
			out = append(out, e.Err.Error())
		}
	}
	return out
}

func (s Summary) String() string {
	noun := "videos"
	if s.Processed == 1 {
		noun = "video"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d %s processed", s.Processed, noun)

	// The spreadsheet is the only optional target.
	if len(s.Exports) == 0 {
		b.WriteString(", spreadsheet export skipped")
	}
	for _, e := range s.Exports {
		if e.Err != nil {
			fmt.Fprintf(&b, ", %s export failed: %v", e.Target, e.Err)
			continue
		}
		fmt.Fprintf(&b, ", %d rows exported to %s", e.Outcome.Written, e.Target)
	}
	return b.String()
}
