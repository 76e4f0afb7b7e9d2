package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/ktappdev/ytstats/retry"
)

const (
	testChannelID  = "UCPix8N6PMRI4KzgyjuZeF0g"
	testPlaylistID = "UUPix8N6PMRI4KzgyjuZeF0g"
)

type fakePage struct {
	ids  []string
	next string
}

// fakeAPI is an in-memory stand-in for the Data API endpoints the client uses.
type fakeAPI struct {
	mu sync.Mutex

	uploads   map[string]string
	handles   map[string]string
	usernames map[string]string
	search    map[string]string
	pages     map[string]fakePage
	videos    map[string]*youtube.Video

	// failures are served, in order, before normal responses.
	failures []apiFailure

	pageTokens []string
	videoCalls [][]string
	calls      map[string]int
}

type apiFailure struct {
	status int
	reason string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		uploads:   map[string]string{},
		handles:   map[string]string{},
		usernames: map[string]string{},
		search:    map[string]string{},
		pages:     map[string]fakePage{},
		videos:    map[string]*youtube.Video{},
		calls:     map[string]int{},
	}
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	endpoint := strings.TrimPrefix(r.URL.Path, "/youtube/v3/")
	f.calls[endpoint]++

	if len(f.failures) > 0 {
		fail := f.failures[0]
		f.failures = f.failures[1:]
		writeAPIError(w, fail.status, fail.reason)
		return
	}

	q := r.URL.Query()
	switch endpoint {
	case "channels":
		f.serveChannels(w, q.Get("id"), q.Get("forHandle"), q.Get("forUsername"))
	case "playlistItems":
		token := q.Get("pageToken")
		f.pageTokens = append(f.pageTokens, token)
		page, ok := f.pages[token]
		if !ok {
			writeAPIError(w, http.StatusNotFound, "playlistNotFound")
			return
		}
		resp := &youtube.PlaylistItemListResponse{NextPageToken: page.next}
		for _, id := range page.ids {
			resp.Items = append(resp.Items, &youtube.PlaylistItem{
				ContentDetails: &youtube.PlaylistItemContentDetails{VideoId: id},
			})
		}
		writeJSON(w, resp)
	case "videos":
		var ids []string
		for _, v := range q["id"] {
			ids = append(ids, strings.Split(v, ",")...)
		}
		f.videoCalls = append(f.videoCalls, ids)
		resp := &youtube.VideoListResponse{}
		// Answer in reverse order to make sure the client restores input order.
		for i := len(ids) - 1; i >= 0; i-- {
			if v, ok := f.videos[ids[i]]; ok {
				resp.Items = append(resp.Items, v)
			}
		}
		writeJSON(w, resp)
	case "search":
		resp := &youtube.SearchListResponse{}
		if id, ok := f.search[q.Get("q")]; ok {
			resp.Items = []*youtube.SearchResult{{Id: &youtube.ResourceId{Kind: "youtube#channel", ChannelId: id}}}
		}
		writeJSON(w, resp)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeAPI) serveChannels(w http.ResponseWriter, id, handle, username string) {
	resp := &youtube.ChannelListResponse{}
	switch {
	case id != "":
		if uploads, ok := f.uploads[id]; ok {
			resp.Items = []*youtube.Channel{{
				Id: id,
				ContentDetails: &youtube.ChannelContentDetails{
					RelatedPlaylists: &youtube.ChannelContentDetailsRelatedPlaylists{Uploads: uploads},
				},
			}}
		}
	case handle != "":
		if channelID, ok := f.handles[handle]; ok {
			resp.Items = []*youtube.Channel{{Id: channelID}}
		}
	case username != "":
		if channelID, ok := f.usernames[username]; ok {
			resp.Items = []*youtube.Channel{{Id: channelID}}
		}
	}
	writeJSON(w, resp)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, status int, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":{"code":%d,"message":"fake %s","errors":[{"reason":%q,"message":"fake %s"}]}}`,
		status, reason, reason, reason)
}

func testPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Multiplier:     2,
	}
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	c, err := NewClient(context.Background(), Config{APIKey: "test-key", Retry: testPolicy()}, zerolog.Nop(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return c
}

func video(id string, views uint64) *youtube.Video {
	return &youtube.Video{
		Id: id,
		Snippet: &youtube.VideoSnippet{
			ChannelId:   testChannelID,
			Title:       "Video " + id,
			PublishedAt: "2024-03-01T12:00:00Z",
			Thumbnails: &youtube.ThumbnailDetails{
				Default: &youtube.Thumbnail{Url: "https://i.ytimg.com/vi/" + id + "/default.jpg"},
				High:    &youtube.Thumbnail{Url: "https://i.ytimg.com/vi/" + id + "/hqdefault.jpg"},
			},
		},
		Statistics:     &youtube.VideoStatistics{ViewCount: views, LikeCount: views / 10, CommentCount: views / 100},
		ContentDetails: &youtube.VideoContentDetails{Duration: "PT3M33S"},
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(context.Background(), Config{}, zerolog.Nop())
	require.Error(t, err)
}

func TestUploadsPlaylistID(t *testing.T) {
	api := newFakeAPI()
	api.uploads[testChannelID] = testPlaylistID
	c := newTestClient(t, api)

	id, err := c.UploadsPlaylistID(context.Background(), testChannelID)
	require.NoError(t, err)
	assert.Equal(t, testPlaylistID, id)
}

func TestUploadsPlaylistIDChannelNotFound(t *testing.T) {
	c := newTestClient(t, newFakeAPI())

	_, err := c.UploadsPlaylistID(context.Background(), testChannelID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrChannelNotFound)
}

func TestAllVideoIDsFollowsContinuationTokens(t *testing.T) {
	api := newFakeAPI()
	api.pages[""] = fakePage{ids: []string{"a", "b"}, next: "t1"}
	api.pages["t1"] = fakePage{ids: []string{"c"}, next: "t2"} // short page, not the end
	api.pages["t2"] = fakePage{ids: []string{}, next: "t3"}    // empty page, not the end
	api.pages["t3"] = fakePage{ids: []string{"d", "e"}}
	c := newTestClient(t, api)

	ids, err := c.AllVideoIDs(context.Background(), testPlaylistID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, ids)
	assert.Equal(t, []string{"", "t1", "t2", "t3"}, api.pageTokens)
}

func TestPlaylistVideoIDsIsLazy(t *testing.T) {
	api := newFakeAPI()
	api.pages[""] = fakePage{ids: []string{"a", "b"}, next: "t1"}
	api.pages["t1"] = fakePage{ids: []string{"c"}}
	c := newTestClient(t, api)

	for id, err := range c.PlaylistVideoIDs(context.Background(), testPlaylistID) {
		require.NoError(t, err)
		assert.Equal(t, "a", id)
		break
	}
	assert.Equal(t, []string{""}, api.pageTokens)
}

func TestPlaylistVideoIDsIsNotRestartable(t *testing.T) {
	api := newFakeAPI()
	api.pages[""] = fakePage{ids: []string{"a"}}
	c := newTestClient(t, api)

	seq := c.PlaylistVideoIDs(context.Background(), testPlaylistID)
	var first []string
	for id, err := range seq {
		require.NoError(t, err)
		first = append(first, id)
	}
	assert.Equal(t, []string{"a"}, first)

	var secondErr error
	for _, err := range seq {
		secondErr = err
	}
	assert.ErrorIs(t, secondErr, ErrSequenceConsumed)
	assert.Len(t, api.pageTokens, 1)
}

func TestAllVideoIDsRepeatedToken(t *testing.T) {
	api := newFakeAPI()
	api.pages[""] = fakePage{ids: []string{"a"}, next: "loop"}
	api.pages["loop"] = fakePage{ids: []string{"b"}, next: "loop"}
	c := newTestClient(t, api)

	_, err := c.AllVideoIDs(context.Background(), testPlaylistID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "repeated")
	assert.Equal(t, []string{"", "loop"}, api.pageTokens)
}

func TestAllVideoIDsPlaylistNotFound(t *testing.T) {
	c := newTestClient(t, newFakeAPI())

	_, err := c.AllVideoIDs(context.Background(), "PLmissing")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "playlistItems.list", apiErr.Endpoint)
}

func TestVideoStatisticsPreservesInputOrder(t *testing.T) {
	api := newFakeAPI()
	for _, id := range []string{"aaaaaaaaaaa", "bbbbbbbbbbb", "ccccccccccc"} {
		api.videos[id] = video(id, 1000)
	}
	c := newTestClient(t, api)

	records, err := c.VideoStatistics(context.Background(),
		[]string{"ccccccccccc", "aaaaaaaaaaa", "deleted0000", "bbbbbbbbbbb"}, nil)
	require.NoError(t, err)

	var got []string
	for _, r := range records {
		got = append(got, r.VideoID)
	}
	assert.Equal(t, []string{"ccccccccccc", "aaaaaaaaaaa", "bbbbbbbbbbb"}, got)
}

func TestVideoStatisticsMapsFields(t *testing.T) {
	api := newFakeAPI()
	api.videos["dQw4w9WgXcQ"] = video("dQw4w9WgXcQ", 1500)
	c := newTestClient(t, api)

	records, err := c.VideoStatistics(context.Background(), []string{"dQw4w9WgXcQ"}, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, "dQw4w9WgXcQ", r.VideoID)
	assert.Equal(t, testChannelID, r.ChannelID)
	assert.Equal(t, "Video dQw4w9WgXcQ", r.Title)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), r.PublishedAt.UTC())
	assert.Equal(t, int64(1500), r.ViewCount)
	assert.Equal(t, int64(150), r.LikeCount)
	assert.Equal(t, int64(15), r.CommentCount)
	assert.Equal(t, "https://i.ytimg.com/vi/dQw4w9WgXcQ/hqdefault.jpg", r.ThumbnailURL)
	assert.Equal(t, "PT3M33S", r.Duration)
	assert.Equal(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", r.URL())
}

func TestVideoStatisticsChunksAtBatchLimit(t *testing.T) {
	api := newFakeAPI()
	ids := make([]string, 120)
	for i := range ids {
		ids[i] = fmt.Sprintf("vid%08d", i)
		if i%7 != 0 {
			api.videos[ids[i]] = video(ids[i], uint64(i))
		}
	}
	c := newTestClient(t, api)

	var requested, resolved []int
	records, err := c.VideoStatistics(context.Background(), ids, func(req, res int) {
		requested = append(requested, req)
		resolved = append(resolved, res)
	})
	require.NoError(t, err)

	require.Len(t, api.videoCalls, 3)
	assert.Len(t, api.videoCalls[0], 50)
	assert.Len(t, api.videoCalls[1], 50)
	assert.Len(t, api.videoCalls[2], 20)
	assert.Equal(t, []int{50, 50, 20}, requested)

	total := 0
	for _, n := range resolved {
		total += n
	}
	assert.Equal(t, len(records), total)
	assert.Len(t, records, len(api.videos))

	for i := 1; i < len(records); i++ {
		assert.Less(t, records[i-1].VideoID, records[i].VideoID)
	}
}

func TestVideoStatisticsEmpty(t *testing.T) {
	api := newFakeAPI()
	c := newTestClient(t, api)

	records, err := c.VideoStatistics(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Empty(t, api.videoCalls)
}

func TestRateLimitRetriedThenSucceeds(t *testing.T) {
	api := newFakeAPI()
	api.videos["dQw4w9WgXcQ"] = video("dQw4w9WgXcQ", 1)
	api.failures = []apiFailure{
		{http.StatusTooManyRequests, "rateLimitExceeded"},
		{http.StatusForbidden, "userRateLimitExceeded"},
	}
	c := newTestClient(t, api)

	records, err := c.VideoStatistics(context.Background(), []string{"dQw4w9WgXcQ"}, nil)
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, 3, api.calls["videos"])
}

func TestRateLimitExhaustedIsFatal(t *testing.T) {
	api := newFakeAPI()
	for i := 0; i < 10; i++ {
		api.failures = append(api.failures, apiFailure{http.StatusTooManyRequests, "rateLimitExceeded"})
	}
	c := newTestClient(t, api)

	_, err := c.UploadsPlaylistID(context.Background(), testChannelID)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, "channels.list", apiErr.Endpoint)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 3, api.calls["channels"])
}

func TestNonRateLimitErrorsAreNotRetried(t *testing.T) {
	tests := []struct {
		name   string
		status int
		reason string
	}{
		{"daily quota", http.StatusForbidden, "quotaExceeded"},
		{"bad key", http.StatusBadRequest, "keyInvalid"},
		{"server error", http.StatusInternalServerError, "backendError"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeAPI()
			api.failures = []apiFailure{{tt.status, tt.reason}}
			c := newTestClient(t, api)

			_, err := c.VideoStatistics(context.Background(), []string{"dQw4w9WgXcQ"}, nil)
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, "videos.list", apiErr.Endpoint)
			assert.Contains(t, apiErr.Error(), tt.reason)
			assert.NotErrorIs(t, err, ErrRateLimited)
			assert.Equal(t, 1, api.calls["videos"])
		})
	}
}

func TestChannelLookups(t *testing.T) {
	api := newFakeAPI()
	api.handles["@PixelChannel"] = testChannelID
	api.usernames["pixeluser"] = testChannelID
	api.search["PixelCustom"] = testChannelID
	api.search["FallbackHandle"] = testChannelID
	c := newTestClient(t, api)
	ctx := context.Background()

	id, err := c.ChannelIDForHandle(ctx, "PixelChannel")
	require.NoError(t, err)
	assert.Equal(t, testChannelID, id)

	id, err = c.ChannelIDForUsername(ctx, "pixeluser")
	require.NoError(t, err)
	assert.Equal(t, testChannelID, id)

	id, err = c.ChannelIDForCustomName(ctx, "PixelCustom")
	require.NoError(t, err)
	assert.Equal(t, testChannelID, id)

	id, err = c.ChannelIDForHandle(ctx, "FallbackHandle")
	require.NoError(t, err)
	assert.Equal(t, testChannelID, id)
	assert.Equal(t, 2, api.calls["search"])

	_, err = c.ChannelIDForHandle(ctx, "Nobody")
	assert.ErrorIs(t, err, ErrChannelNotFound)
}

func TestIsRateLimited(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"429", &googleapi.Error{Code: 429}, true},
		{"403 rate", &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "rateLimitExceeded"}}}, true},
		{"403 user rate", &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "userRateLimitExceeded"}}}, true},
		{"403 quota", &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "quotaExceeded"}}}, false},
		{"403 forbidden", &googleapi.Error{Code: 403}, false},
		{"500", &googleapi.Error{Code: 500}, false},
		{"wrapped 429", fmt.Errorf("call: %w", &googleapi.Error{Code: 429}), true},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRateLimited(tt.err))
		})
	}
}

func TestAPIErrorMessage(t *testing.T) {
	err := &APIError{Endpoint: "videos.list", StatusCode: 500, Message: "backend"}
	assert.Equal(t, "youtube videos.list: status 500: backend", err.Error())

	err = &APIError{Endpoint: "videos.list", Err: errors.New("dial tcp: refused")}
	assert.Equal(t, "youtube videos.list: dial tcp: refused", err.Error())
}
