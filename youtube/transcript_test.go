package youtube

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPickCaptionLanguage(t *testing.T) {
	tests := []struct {
		name   string
		tracks []CaptionTrack
		want   string
		wantOK bool
	}{
		{
			name:   "no tracks",
			tracks: nil,
			wantOK: false,
		},
		{
			name: "manual english beats generated english",
			tracks: []CaptionTrack{
				{LanguageCode: "en", Generated: true},
				{LanguageCode: "en", Generated: false},
			},
			want:   "en",
			wantOK: true,
		},
		{
			name: "manual in fallback list beats generated english",
			tracks: []CaptionTrack{
				{LanguageCode: "en", Generated: true},
				{LanguageCode: "fr", Generated: false},
			},
			want:   "fr",
			wantOK: true,
		},
		{
			name: "fallback order is respected",
			tracks: []CaptionTrack{
				{LanguageCode: "ja"},
				{LanguageCode: "de"},
			},
			want:   "de",
			wantOK: true,
		},
		{
			name: "regional variant",
			tracks: []CaptionTrack{
				{LanguageCode: "en-GB"},
			},
			want:   "en-GB",
			wantOK: true,
		},
		{
			name: "generated only",
			tracks: []CaptionTrack{
				{LanguageCode: "es", Generated: true},
				{LanguageCode: "en", Generated: true},
			},
			want:   "en",
			wantOK: true,
		},
		{
			name: "unsupported language",
			tracks: []CaptionTrack{
				{LanguageCode: "nl"},
			},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := PickCaptionLanguage(tt.tracks, DefaultCaptionLanguages)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJoinTranscript(t *testing.T) {
	got := JoinTranscript([]string{"  never gonna\n give you up ", "", "never gonna   let you down"})
	assert.Equal(t, "never gonna give you up never gonna let you down", got)
	assert.Equal(t, "", JoinTranscript(nil))
}
