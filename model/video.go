package model

import "time"

// VideoRecord is the normalized shape of one video, shared by every sink.
type VideoRecord struct {
	VideoID      string
	ChannelID    string
	Title        string
	PublishedAt  time.Time
	ViewCount    int64
	LikeCount    int64
	CommentCount int64
	ThumbnailURL string
	Duration     string
	Transcript   string
}

// URL returns the canonical watch URL for the video.
func (v VideoRecord) URL() string {
	return WatchURL(v.VideoID)
}

// PublishedString formats PublishedAt as RFC 3339, or "" when unset.
func (v VideoRecord) PublishedString() string {
	if v.PublishedAt.IsZero() {
		return ""
	}
	return v.PublishedAt.UTC().Format(time.RFC3339)
}

// WatchURL builds a watch URL for a video ID.
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}
