package youtube

import (
	"context"
	"time"

	"google.golang.org/api/youtube/v3"

	"github.com/ktappdev/ytstats/model"
)

// MaxIDsPerCall is the most video IDs videos.list accepts in one request.
const MaxIDsPerCall = 50

// ChunkFunc is told how many IDs a chunk asked for and how many came back.
type ChunkFunc func(requested, resolved int)

// VideoStatistics fetches snippet, statistics and content details for ids,
// one request per MaxIDsPerCall IDs. Records come back in input order. IDs the
// API does not return (deleted or private videos) are left out without error.
// onChunk may be nil.
func (c *Client) VideoStatistics(ctx context.Context, ids []string, onChunk ChunkFunc) ([]model.VideoRecord, error) {
	records := make([]model.VideoRecord, 0, len(ids))
	for start := 0; start < len(ids); start += MaxIDsPerCall {
		chunk := ids[start:min(start+MaxIDsPerCall, len(ids))]

		got, err := c.videoChunk(ctx, chunk)
		if err != nil {
			return nil, err
		}
		if len(got) < len(chunk) {
			c.logger.Debug().
				Int("requested", len(chunk)).
				Int("resolved", len(got)).
				Msg("videos.list returned a partial chunk")
		}
		records = append(records, got...)
		if onChunk != nil {
			onChunk(len(chunk), len(got))
		}
	}
	return records, nil
}

func (c *Client) videoChunk(ctx context.Context, chunk []string) ([]model.VideoRecord, error) {
	var items []*youtube.Video
	err := c.do(ctx, "videos.list", func(ctx context.Context) error {
		resp, err := c.service.Videos.List([]string{"snippet", "statistics", "contentDetails"}).
			Id(chunk...).
			Context(ctx).
			Do()
		if err != nil {
			return err
		}
		items = resp.Items
		return nil
	})
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*youtube.Video, len(items))
	for _, item := range items {
		byID[item.Id] = item
	}

	records := make([]model.VideoRecord, 0, len(items))
	for _, id := range chunk {
		if item, ok := byID[id]; ok {
			records = append(records, toRecord(item))
		}
	}
	return records, nil
}

func toRecord(v *youtube.Video) model.VideoRecord {
	rec := model.VideoRecord{VideoID: v.Id}

	if s := v.Snippet; s != nil {
		rec.ChannelID = s.ChannelId
		rec.Title = s.Title
		if t, err := time.Parse(time.RFC3339, s.PublishedAt); err == nil {
			rec.PublishedAt = t
		}
		rec.ThumbnailURL = bestThumbnail(s.Thumbnails)
	}
	if st := v.Statistics; st != nil {
		rec.ViewCount = int64(st.ViewCount)
		rec.LikeCount = int64(st.LikeCount)
		rec.CommentCount = int64(st.CommentCount)
	}
	if cd := v.ContentDetails; cd != nil {
		rec.Duration = cd.Duration
	}
	return rec
}

// bestThumbnail prefers maxres, then high, then default.
func bestThumbnail(t *youtube.ThumbnailDetails) string {
	if t == nil {
		return ""
	}
	for _, th := range []*youtube.Thumbnail{t.Maxres, t.High, t.Default} {
		if th != nil && th.Url != "" {
			return th.Url
		}
	}
	return ""
}
