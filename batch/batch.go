// Package batch runs the pipeline over a list of identifiers read from a
// file.
package batch

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ktappdev/ytstats/pipeline"
)

// headerNames are first-column titles treated as a CSV header row.
var headerNames = map[string]bool{
	"channel":    true,
	"channel_id": true,
	"channel id": true,
	"video":      true,
	"video_id":   true,
	"video id":   true,
	"url":        true,
	"identifier": true,
	"input":      true,
}

// ReadInputs reads identifiers from path. Files ending in .csv contribute
// their first column, with an optional header row; any other file is read one
// identifier per line. Blank lines and lines starting with # are skipped.
func ReadInputs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return readCSV(f)
	}
	return readLines(f)
}

func readLines(r io.Reader) ([]string, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}

	var inputs []string
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		inputs = append(inputs, line)
	}
	return inputs, nil
}

func readCSV(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.Comment = '#'
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("error reading CSV file: %w", err)
	}

	var inputs []string
	for i, record := range records {
		if len(record) == 0 {
			continue
		}
		cell := strings.TrimSpace(record[0])
		if i == 0 && headerNames[strings.ToLower(cell)] {
			continue
		}
		if cell != "" {
			inputs = append(inputs, cell)
		}
	}
	return inputs, nil
}

// Runner processes a single identifier.
type Runner interface {
	Run(ctx context.Context, input string) (pipeline.Summary, error)
}

// Result is the outcome of one input.
type Result struct {
	Input   string
	Summary pipeline.Summary
	Err     error
}

// Report collects the results of a batch.
type Report struct {
	Results []Result
}

// Failed returns the number of inputs that did not complete.
func (r Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Err != nil {
			n++
		}
	}
	return n
}

// Processed returns the total number of videos processed across inputs.
func (r Report) Processed() int {
	n := 0
	for _, res := range r.Results {
		n += res.Summary.Processed
	}
	return n
}

// Run processes inputs one after another. A failing input is logged and the
// batch moves on; only context cancellation stops it early.
func Run(ctx context.Context, runner Runner, inputs []string, logger zerolog.Logger) Report {
	var report Report
	logger.Info().Int("inputs", len(inputs)).Msg("starting batch")

	for i, input := range inputs {
		if err := ctx.Err(); err != nil {
			logger.Warn().Int("remaining", len(inputs)-i).Msg("batch cancelled")
			break
		}

		logger.Info().Int("n", i+1).Str("input", input).Msg("processing input")
		summary, err := runner.Run(ctx, input)
		report.Results = append(report.Results, Result{Input: input, Summary: summary, Err: err})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			logger.Error().Err(err).Str("input", input).Msg("input failed")
			continue
		}
		logger.Info().Str("input", input).Msg(summary.String())
	}

	logger.Info().
		Int("inputs", len(report.Results)).
		Int("failed", report.Failed()).
		Int("videos", report.Processed()).
		Msg("batch finished")
	return report
}
