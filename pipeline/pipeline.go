// Package pipeline sequences one run: resolve the input, list the channel's
// uploads, fetch statistics, persist locally and optionally export to a
// spreadsheet.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"slices"

	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"

	"github.com/ktappdev/ytstats/model"
	"github.com/ktappdev/ytstats/resolver"
	"github.com/ktappdev/ytstats/youtube"
)

// ErrVideoNotFound is returned when a single-video target has no data.
var ErrVideoNotFound = errors.New("video not found")

// Resolver turns user input into a channel or video reference.
type Resolver interface {
	Resolve(ctx context.Context, input string) (resolver.Ref, error)
}

// Source is the remote data the pipeline reads.
type Source interface {
	UploadsPlaylistID(ctx context.Context, channelID string) (string, error)
	PlaylistVideoIDs(ctx context.Context, playlistID string) iter.Seq2[string, error]
	VideoStatistics(ctx context.Context, ids []string, onChunk youtube.ChunkFunc) ([]model.VideoRecord, error)
}

// Transcripts fetches transcript text for a video.
type Transcripts interface {
	Transcript(ctx context.Context, videoID string) (string, error)
}

// Deps are the collaborators of a Pipeline. Transcripts may be nil.
type Deps struct {
	Resolver    Resolver
	Source      Source
	Transcripts Transcripts
	Targets     []Target
}

// Options tune a run.
type Options struct {
	RunID           string
	SkipTranscripts bool
	// Progress receives progress bars. Nil hides them.
	Progress io.Writer
}

// Pipeline runs targets through the stages in order.
type Pipeline struct {
	deps   Deps
	opts   Options
	logger zerolog.Logger
}

// New returns a Pipeline.
func New(deps Deps, opts Options, logger zerolog.Logger) *Pipeline {
	if opts.Progress == nil {
		opts.Progress = io.Discard
	}
	// Required targets are written first: optional ones only see records a
	// required target accepted.
	deps.Targets = slices.Clone(deps.Targets)
	slices.SortStableFunc(deps.Targets, func(a, b Target) int {
		switch {
		case a.Required() == b.Required():
			return 0
		case a.Required():
			return -1
		default:
			return 1
		}
	})
	return &Pipeline{deps: deps, opts: opts, logger: logger}
}

// Run processes one input. Failures up to and including a required target
// abort the run with a *StageError. An optional target's failure is recorded
// in the Summary and does not fail the run.
func (p *Pipeline) Run(ctx context.Context, input string) (Summary, error) {
	summary := Summary{RunID: p.opts.RunID}

	ref, err := p.deps.Resolver.Resolve(ctx, input)
	if err != nil {
		return summary, &StageError{Stage: StageResolve, Err: err}
	}
	summary.Target = ref
	log := p.logger.With().Str("target", ref.ID).Logger()
	log.Info().Str("kind", ref.Kind.String()).Msg("resolved input")

	ids := []string{ref.ID}
	if !ref.IsVideo() {
		playlistID, err := p.deps.Source.UploadsPlaylistID(ctx, ref.ID)
		if err != nil {
			return summary, &StageError{Stage: StageFetchPlaylist, Err: err}
		}
		ids, err = p.videoIDs(ctx, playlistID)
		if err != nil {
			return summary, &StageError{Stage: StageFetchVideoIDs, Err: err}
		}
		log.Info().Int("videos", len(ids)).Msg("found videos in uploads playlist")
	}
	summary.Found = len(ids)

	records, err := p.statistics(ctx, ids)
	if err != nil {
		return summary, &StageError{Stage: StageFetchStatistics, Err: err}
	}
	if ref.IsVideo() && len(records) == 0 {
		return summary, &StageError{Stage: StageFetchStatistics, Err: fmt.Errorf("%w: %s", ErrVideoNotFound, ref.ID)}
	}
	summary.Processed = len(records)
	summary.Dropped = len(ids) - len(records)
	if summary.Dropped > 0 {
		log.Warn().Int("dropped", summary.Dropped).Msg("some videos returned no data (private or deleted)")
	}

	if p.deps.Transcripts != nil && !p.opts.SkipTranscripts {
		n, err := p.transcripts(ctx, records)
		if err != nil {
			return summary, &StageError{Stage: StageFetchTranscripts, Err: err}
		}
		summary.Transcripts = n
	}

	for _, t := range p.deps.Targets {
		out, err := t.Write(ctx, records)
		stage := persistStage(t)
		if err != nil && t.Required() {
			return summary, &StageError{Stage: stage, Err: err}
		}
		if t.Required() {
			summary.Written += out.Written
			continue
		}

		res := TargetResult{Target: t.Name(), Outcome: out}
		if err != nil {
			res.Err = &StageError{Stage: stage, Err: err}
			log.Warn().Err(err).Str("target", t.Name()).Msg("export failed, local data was saved")
		}
		summary.Exports = append(summary.Exports, res)
	}

	log.Info().
		Int("found", summary.Found).
		Int("processed", summary.Processed).
		Int("written", summary.Written).
		Int("exports", len(summary.Exports)).
		Msg("run finished")
	return summary, nil
}

// videoIDs drains the playlist, dropping repeated IDs.
func (p *Pipeline) videoIDs(ctx context.Context, playlistID string) ([]string, error) {
	var ids []string
	seen := make(map[string]bool)
	for id, err := range p.deps.Source.PlaylistVideoIDs(ctx, playlistID) {
		if err != nil {
			return nil, err
		}
		if seen[id] {
			p.logger.Debug().Str("video_id", id).Msg("skipping duplicate playlist entry")
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, nil
}

func (p *Pipeline) statistics(ctx context.Context, ids []string) ([]model.VideoRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	bar := progressbar.NewOptions(len(ids),
		progressbar.OptionSetWriter(p.opts.Progress),
		progressbar.OptionSetDescription("Fetching statistics"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	defer bar.Finish()

	return p.deps.Source.VideoStatistics(ctx, ids, func(requested, _ int) {
		_ = bar.Add(requested)
	})
}

// transcripts fills in transcripts where one is available and returns how
// many were found. Only context cancellation is fatal.
func (p *Pipeline) transcripts(ctx context.Context, records []model.VideoRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	bar := progressbar.NewOptions(len(records),
		progressbar.OptionSetWriter(p.opts.Progress),
		progressbar.OptionSetDescription("Fetching transcripts"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	defer bar.Finish()

	found := 0
	for i := range records {
		text, err := p.deps.Transcripts.Transcript(ctx, records[i].VideoID)
		_ = bar.Add(1)
		switch {
		case err == nil:
			records[i].Transcript = text
			found++
		case ctx.Err() != nil:
			return found, ctx.Err()
		case errors.Is(err, youtube.ErrNoTranscript):
			p.logger.Debug().Str("video_id", records[i].VideoID).Msg("no transcript available")
		default:
			p.logger.Warn().Err(err).Str("video_id", records[i].VideoID).Msg("transcript fetch failed")
		}
	}
	return found, nil
}
