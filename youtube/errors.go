package youtube

import (
	"errors"
	"fmt"
)

var (
	// ErrChannelNotFound means the API returned no matching channel.
	ErrChannelNotFound = errors.New("channel not found")
	// ErrRateLimited marks an APIError caused by rate limiting that outlasted
	// the retry policy.
	ErrRateLimited = errors.New("rate limited")
	// ErrSequenceConsumed is yielded when a playlist sequence is ranged over
	// a second time.
	ErrSequenceConsumed = errors.New("playlist sequence already consumed")
	// ErrNoTranscript means the video has no usable caption track.
	ErrNoTranscript = errors.New("no transcript available")
)

// APIError is a fatal failure of a Data API call.
type APIError struct {
	// Endpoint is the API method, e.g. "videos.list".
	Endpoint string
	// StatusCode is the HTTP status, or 0 when no response was received.
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("youtube %s: %v", e.Endpoint, e.Err)
	}
	if e.Message == "" {
		return fmt.Sprintf("youtube %s: status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("youtube %s: status %d: %s", e.Endpoint, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}
