package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	ytdl "github.com/kkdai/youtube/v2"
	"github.com/rs/zerolog"
)

// DefaultCaptionLanguages is the fallback order for transcripts.
var DefaultCaptionLanguages = []string{"en", "es", "fr", "de", "pt", "ja", "ko", "zh", "ar"}

// CaptionTrack describes one caption track of a video.
type CaptionTrack struct {
	LanguageCode string
	// Generated is true for automatic speech recognition tracks.
	Generated bool
}

// PickCaptionLanguage chooses a track language: manual English first, then
// manual in the order of languages, then generated English, then generated in
// the order of languages.
func PickCaptionLanguage(tracks []CaptionTrack, languages []string) (string, bool) {
	find := func(generated bool, langs []string) (string, bool) {
		for _, lang := range langs {
			for _, t := range tracks {
				if t.Generated == generated && strings.EqualFold(baseLanguage(t.LanguageCode), lang) {
					return t.LanguageCode, true
				}
			}
		}
		return "", false
	}

	for _, generated := range []bool{false, true} {
		if lang, ok := find(generated, []string{"en"}); ok {
			return lang, true
		}
		if lang, ok := find(generated, languages); ok {
			return lang, true
		}
	}
	return "", false
}

// baseLanguage strips a region suffix, "en-GB" -> "en".
func baseLanguage(code string) string {
	base, _, _ := strings.Cut(code, "-")
	return base
}

// CaptionFetcher downloads transcripts from the public watch page. It needs
// no API key and costs no Data API quota.
type CaptionFetcher struct {
	client    *ytdl.Client
	languages []string
	logger    zerolog.Logger
}

// NewCaptionFetcher returns a CaptionFetcher. A nil httpClient uses the
// library default; empty languages use DefaultCaptionLanguages.
func NewCaptionFetcher(httpClient *http.Client, languages []string, logger zerolog.Logger) *CaptionFetcher {
	if len(languages) == 0 {
		languages = DefaultCaptionLanguages
	}
	return &CaptionFetcher{
		client:    &ytdl.Client{HTTPClient: httpClient},
		languages: languages,
		logger:    logger,
	}
}

// Transcript returns the transcript text of a video, or ErrNoTranscript.
func (f *CaptionFetcher) Transcript(ctx context.Context, videoID string) (string, error) {
	video, err := f.client.GetVideoContext(ctx, videoID)
	if err != nil {
		return "", fmt.Errorf("error getting video info: %w", err)
	}

	tracks := make([]CaptionTrack, 0, len(video.CaptionTracks))
	for _, t := range video.CaptionTracks {
		tracks = append(tracks, CaptionTrack{LanguageCode: t.LanguageCode, Generated: t.Kind == "asr"})
	}
	lang, ok := PickCaptionLanguage(tracks, f.languages)
	if !ok {
		return "", ErrNoTranscript
	}
	f.logger.Debug().Str("video_id", videoID).Str("lang", lang).Msg("fetching transcript")

	transcript, err := f.client.GetTranscriptCtx(ctx, video, lang)
	if err != nil {
		if errors.Is(err, ytdl.ErrTranscriptDisabled) {
			return "", ErrNoTranscript
		}
		return "", fmt.Errorf("error getting transcript: %w", err)
	}

	parts := make([]string, 0, len(transcript))
	for _, seg := range transcript {
		parts = append(parts, seg.Text)
	}
	text := JoinTranscript(parts)
	if text == "" {
		return "", ErrNoTranscript
	}
	return text, nil
}

// JoinTranscript joins caption segments into one line of text.
func JoinTranscript(segments []string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		s = strings.Join(strings.Fields(s), " ")
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}
