package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/ktappdev/ytstats/batch"
	"github.com/ktappdev/ytstats/config"
	"github.com/ktappdev/ytstats/logging"
	"github.com/ktappdev/ytstats/model"
	"github.com/ktappdev/ytstats/pipeline"
	"github.com/ktappdev/ytstats/resolver"
	"github.com/ktappdev/ytstats/sheets"
	"github.com/ktappdev/ytstats/store"
	"github.com/ktappdev/ytstats/youtube"
)

const (
	exitOK                = 0
	exitFailure           = 1
	exitInvalidIdentifier = 2
)

func main() {
	os.Exit(realMain(os.Args[1:], os.Getenv))
}

func realMain(args []string, getenv func(string) string) int {
	cfg, err := config.Load(args, getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		config.ShowHelp(os.Stderr)
		return exitFailure
	}
	if cfg.ShowHelp {
		config.ShowHelp(os.Stdout)
		return exitOK
	}
	// A malformed identifier is reported before anything else is checked or
	// opened.
	if cfg.Input != "" && cfg.FilePath == "" && !cfg.ListMode {
		if _, err := resolver.Parse(cfg.Input); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return exitCode(err)
		}
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitFailure
	}

	runID := uuid.NewString()
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat == config.LogFormatConsole, runID)
	if cfg.ConfigFile != "" {
		logger.Debug().Str("path", cfg.ConfigFile).Msg("loaded settings file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = run(ctx, cfg, runID, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return exitCode(err)
}

// exitCode maps a run error onto the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, resolver.ErrInvalidIdentifier):
		return exitInvalidIdentifier
	default:
		return exitFailure
	}
}

// run executes the main program logic based on the provided configuration
func run(ctx context.Context, cfg *config.Config, runID string, logger zerolog.Logger) error {
	if cfg.ListMode {
		st, err := openStore(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer st.Close()
		return listVideos(ctx, cfg, st, os.Stdout, logger)
	}

	var err error
	input := cfg.Input
	if cfg.FilePath == "" && input == "" {
		input, err = promptInput(os.Stdin, os.Stdout, term.IsTerminal(int(os.Stdin.Fd())))
		if err != nil {
			return err
		}
	}

	// Reject malformed input before the database or any client is opened.
	if cfg.FilePath == "" {
		if _, err := resolver.Parse(input); err != nil {
			return err
		}
	}

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	p, err := newPipeline(ctx, cfg, runID, st, logger)
	if err != nil {
		return err
	}

	if cfg.FilePath != "" {
		return processFile(ctx, cfg.FilePath, p, os.Stdout, logger)
	}

	summary, err := p.Run(ctx, input)
	if err != nil {
		return err
	}
	fmt.Printf("Success! %s\n", summary)
	for _, w := range summary.Warnings() {
		fmt.Printf("Warning: %s\n", w)
	}
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return st, nil
}

func newPipeline(ctx context.Context, cfg *config.Config, runID string, st store.Store, logger zerolog.Logger) (*pipeline.Pipeline, error) {
	client, err := youtube.NewClient(ctx, youtube.Config{
		APIKey:            cfg.APIKey,
		Retry:             cfg.RetryPolicy(),
		RequestsPerSecond: cfg.RequestsPerSecond,
	}, logger)
	if err != nil {
		return nil, err
	}

	deps := pipeline.Deps{
		Resolver: resolver.New(client, logger),
		Source:   client,
		Targets:  []pipeline.Target{pipeline.LocalTarget(st)},
	}
	if !cfg.NoTranscripts {
		deps.Transcripts = youtube.NewCaptionFetcher(nil, nil, logger)
	}

	switch {
	case cfg.NoSheets:
		logger.Info().Msg("spreadsheet export disabled")
	case !cfg.SheetsEnabled():
		logger.Info().Msg("no spreadsheet configured, saving to database only")
	default:
		sink, err := sheets.New(ctx, sheets.Config{
			SpreadsheetID:   cfg.SpreadsheetID,
			Worksheet:       cfg.Worksheet,
			CredentialsFile: cfg.CredentialsFile,
		}, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("Google Sheets not available, data will only be saved to the database")
			deps.Targets = append(deps.Targets, pipeline.SheetTarget(unavailableSheet{err: err}))
		} else {
			logger.Info().Msg("Google Sheets connected")
			deps.Targets = append(deps.Targets, pipeline.SheetTarget(sink))
		}
	}

	opts := pipeline.Options{
		RunID:           runID,
		SkipTranscripts: cfg.NoTranscripts,
	}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		opts.Progress = os.Stderr
	}
	return pipeline.New(deps, opts, logger), nil
}

// unavailableSheet reports a sink that could not be set up, so the failure
// shows in the run summary.
type unavailableSheet struct {
	err error
}

func (u unavailableSheet) ExportBatch(context.Context, []model.VideoRecord) (sheets.Outcome, error) {
	return sheets.Outcome{}, u.err
}

// processFile runs every identifier listed in path and fails if any did.
func processFile(ctx context.Context, path string, runner batch.Runner, out io.Writer, logger zerolog.Logger) error {
	inputs, err := batch.ReadInputs(path)
	if err != nil {
		return err
	}
	logger.Info().Str("file", path).Int("inputs", len(inputs)).Msg("read inputs from file")

	report := batch.Run(ctx, runner, inputs, logger)
	for _, res := range report.Results {
		if res.Err != nil {
			fmt.Fprintf(out, "FAILED  %s: %v\n", res.Input, res.Err)
			continue
		}
		fmt.Fprintf(out, "OK      %s: %s\n", res.Input, res.Summary)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if n := report.Failed(); n > 0 {
		return fmt.Errorf("%d of %d inputs failed", n, len(inputs))
	}
	return nil
}

// promptInput asks for an identifier on in. The banner is shown only when in
// is a terminal.
func promptInput(in io.Reader, out io.Writer, interactive bool) (string, error) {
	if interactive {
		fmt.Fprintln(out, "Enter a YouTube channel ID, video ID, URL or @handle:")
		fmt.Fprint(out, "> ")
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		if errors.Is(err, io.EOF) {
			return "", fmt.Errorf("%w: no input given", resolver.ErrInvalidIdentifier)
		}
		return "", fmt.Errorf("error reading input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// listVideos displays the stored videos, optionally for one channel
func listVideos(ctx context.Context, cfg *config.Config, st store.Store, out io.Writer, logger zerolog.Logger) error {
	channelID := ""
	if cfg.Input != "" {
		var lookup resolver.ChannelLookup
		if cfg.APIKey != "" {
			client, err := youtube.NewClient(ctx, youtube.Config{APIKey: cfg.APIKey, Retry: cfg.RetryPolicy()}, logger)
			if err != nil {
				return err
			}
			lookup = client
		}
		ref, err := resolver.New(lookup, logger).Resolve(ctx, cfg.Input)
		if err != nil {
			return err
		}
		if ref.IsVideo() {
			return fmt.Errorf("--list takes a channel, got video %s", ref.ID)
		}
		channelID = ref.ID
	}

	videos, err := st.List(ctx, channelID)
	if err != nil {
		return err
	}
	printVideos(out, videos)
	return nil
}

func printVideos(out io.Writer, videos []model.VideoRecord) {
	if len(videos) == 0 {
		fmt.Fprintln(out, "No videos found.")
		return
	}
	for _, v := range videos {
		fmt.Fprintf(out, "Title: %s\nID: %s\nURL: %s\n", v.Title, v.VideoID, v.URL())
		fmt.Fprintf(out, "Published: %s\nViews: %d  Likes: %d  Comments: %d\n\n",
			v.PublishedString(), v.ViewCount, v.LikeCount, v.CommentCount)
	}
	fmt.Fprintf(out, "%d videos\n", len(videos))
}
