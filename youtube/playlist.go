package youtube

import (
	"context"
	"fmt"
	"iter"

	"google.golang.org/api/youtube/v3"
)

// MaxPageSize is the largest page served by playlistItems.list.
const MaxPageSize = 50

// PlaylistVideoIDs returns the video IDs of a playlist as a lazy sequence.
// Pages are requested one at a time as the sequence is consumed, following
// the continuation token until the API stops returning one. A short page does
// not end the sequence. The sequence can be ranged over once; a second range
// yields ErrSequenceConsumed.
func (c *Client) PlaylistVideoIDs(ctx context.Context, playlistID string) iter.Seq2[string, error] {
	consumed := false
	return func(yield func(string, error) bool) {
		if consumed {
			yield("", ErrSequenceConsumed)
			return
		}
		consumed = true

		token := ""
		seen := make(map[string]bool)
		for page := 1; ; page++ {
			resp, err := c.playlistPage(ctx, playlistID, token)
			if err != nil {
				yield("", err)
				return
			}
			c.logger.Debug().
				Str("playlist_id", playlistID).
				Int("page", page).
				Int("items", len(resp.Items)).
				Msg("fetched playlist page")

			for _, item := range resp.Items {
				id := playlistItemVideoID(item)
				if id == "" {
					continue
				}
				if !yield(id, nil) {
					return
				}
			}

			if resp.NextPageToken == "" {
				return
			}
			if seen[resp.NextPageToken] {
				yield("", fmt.Errorf("playlist %s: continuation token repeated after page %d", playlistID, page))
				return
			}
			seen[resp.NextPageToken] = true
			token = resp.NextPageToken
		}
	}
}

// AllVideoIDs drains PlaylistVideoIDs into a slice.
func (c *Client) AllVideoIDs(ctx context.Context, playlistID string) ([]string, error) {
	var ids []string
	for id, err := range c.PlaylistVideoIDs(ctx, playlistID) {
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (c *Client) playlistPage(ctx context.Context, playlistID, token string) (*youtube.PlaylistItemListResponse, error) {
	var resp *youtube.PlaylistItemListResponse
	err := c.do(ctx, "playlistItems.list", func(ctx context.Context) error {
		call := c.service.PlaylistItems.List([]string{"contentDetails"}).
			PlaylistId(playlistID).
			MaxResults(MaxPageSize)
		if token != "" {
			call = call.PageToken(token)
		}
		r, err := call.Context(ctx).Do()
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	return resp, err
}

func playlistItemVideoID(item *youtube.PlaylistItem) string {
	if item.ContentDetails != nil && item.ContentDetails.VideoId != "" {
		return item.ContentDetails.VideoId
	}
	if item.Snippet != nil && item.Snippet.ResourceId != nil {
		return item.Snippet.ResourceId.VideoId
	}
	return ""
}
