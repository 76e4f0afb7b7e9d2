package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/ktappdev/ytstats/retry"
)

// Config holds the settings of the Data API client.
type Config struct {
	APIKey string
	Retry  retry.Policy
	// RequestsPerSecond paces calls to the API. Zero or less disables pacing.
	RequestsPerSecond float64
}

// Client wraps the YouTube Data API v3.
type Client struct {
	service *youtube.Service
	retry   retry.Policy
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewClient creates a Data API client authenticated with cfg.APIKey. Extra
// options are applied after the key, which lets tests point the client at a
// fake server.
func NewClient(ctx context.Context, cfg Config, logger zerolog.Logger, opts ...option.ClientOption) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("youtube: API key required")
	}

	opts = append([]option.ClientOption{option.WithAPIKey(cfg.APIKey)}, opts...)
	service, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("error creating YouTube client: %w", err)
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	policy := cfg.Retry
	if policy.MaxAttempts < 1 {
		policy = retry.DefaultPolicy()
	}

	return &Client{
		service: service,
		retry:   policy,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}, nil
}

// do runs one API call under pacing and rate-limit retries, and maps failures
// onto the package error types.
func (c *Client) do(ctx context.Context, endpoint string, call func(context.Context) error) error {
	attempt := 0
	err := retry.Do(ctx, c.retry, IsRateLimited, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		attempt++
		err := call(ctx)
		if err != nil && IsRateLimited(err) {
			c.logger.Warn().Str("endpoint", endpoint).Int("attempt", attempt).Msg("rate limited by YouTube API")
		}
		return err
	})
	if err == nil {
		return nil
	}
	return classify(endpoint, err)
}

func classify(endpoint string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, ErrChannelNotFound) || errors.Is(err, ErrSequenceConsumed) {
		return err
	}

	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return &APIError{Endpoint: endpoint, Err: err}
	}

	apiErr := &APIError{
		Endpoint:   endpoint,
		StatusCode: gerr.Code,
		Message:    gerr.Message,
		Err:        gerr,
	}
	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		apiErr.Err = fmt.Errorf("%w after %d attempts: %w", ErrRateLimited, exhausted.Attempts, gerr)
	}
	return apiErr
}

// IsRateLimited reports whether err is a recoverable rate-limit response.
// The daily quotaExceeded reason is not recoverable within a run.
func IsRateLimited(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	if gerr.Code == http.StatusTooManyRequests {
		return true
	}
	if gerr.Code == http.StatusForbidden {
		for _, item := range gerr.Errors {
			switch item.Reason {
			case "rateLimitExceeded", "userRateLimitExceeded":
				return true
			}
		}
	}
	return false
}
