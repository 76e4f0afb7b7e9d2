package youtube

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/youtube/v3"
)

// UploadsPlaylistID returns the ID of the playlist holding every upload of
// the channel.
func (c *Client) UploadsPlaylistID(ctx context.Context, channelID string) (string, error) {
	c.logger.Debug().Str("channel_id", channelID).Msg("fetching uploads playlist ID")

	var playlistID string
	err := c.do(ctx, "channels.list", func(ctx context.Context) error {
		resp, err := c.service.Channels.List([]string{"contentDetails"}).
			Id(channelID).
			Context(ctx).
			Do()
		if err != nil {
			return err
		}
		if len(resp.Items) == 0 {
			return fmt.Errorf("%w: %s", ErrChannelNotFound, channelID)
		}
		details := resp.Items[0].ContentDetails
		if details == nil || details.RelatedPlaylists == nil || details.RelatedPlaylists.Uploads == "" {
			return fmt.Errorf("%w: %s has no uploads playlist", ErrChannelNotFound, channelID)
		}
		playlistID = details.RelatedPlaylists.Uploads
		return nil
	})
	if err != nil {
		return "", err
	}
	return playlistID, nil
}

// ChannelIDForHandle maps an @handle (without the @) to a channel ID.
func (c *Client) ChannelIDForHandle(ctx context.Context, handle string) (string, error) {
	id, err := c.channelIDBy(ctx, func(call *youtube.ChannelsListCall) *youtube.ChannelsListCall {
		return call.ForHandle("@" + handle)
	})
	if errors.Is(err, ErrChannelNotFound) {
		return c.searchChannel(ctx, handle)
	}
	return id, err
}

// ChannelIDForUsername maps a legacy /user/ name to a channel ID.
func (c *Client) ChannelIDForUsername(ctx context.Context, username string) (string, error) {
	id, err := c.channelIDBy(ctx, func(call *youtube.ChannelsListCall) *youtube.ChannelsListCall {
		return call.ForUsername(username)
	})
	if errors.Is(err, ErrChannelNotFound) {
		return c.searchChannel(ctx, username)
	}
	return id, err
}

// ChannelIDForCustomName maps a /c/ custom name to a channel ID. The API has
// no direct lookup for custom names, so this is a one-result search.
func (c *Client) ChannelIDForCustomName(ctx context.Context, name string) (string, error) {
	return c.searchChannel(ctx, name)
}

func (c *Client) channelIDBy(ctx context.Context, filter func(*youtube.ChannelsListCall) *youtube.ChannelsListCall) (string, error) {
	var channelID string
	err := c.do(ctx, "channels.list", func(ctx context.Context) error {
		resp, err := filter(c.service.Channels.List([]string{"id"})).Context(ctx).Do()
		if err != nil {
			return err
		}
		if len(resp.Items) == 0 {
			return ErrChannelNotFound
		}
		channelID = resp.Items[0].Id
		return nil
	})
	return channelID, err
}

func (c *Client) searchChannel(ctx context.Context, query string) (string, error) {
	c.logger.Debug().Str("query", query).Msg("searching for channel")

	var channelID string
	err := c.do(ctx, "search.list", func(ctx context.Context) error {
		resp, err := c.service.Search.List([]string{"snippet"}).
			Q(query).
			Type("channel").
			MaxResults(1).
			Context(ctx).
			Do()
		if err != nil {
			return err
		}
		for _, item := range resp.Items {
			if item.Id != nil && item.Id.ChannelId != "" {
				channelID = item.Id.ChannelId
				return nil
			}
			if item.Snippet != nil && item.Snippet.ChannelId != "" {
				channelID = item.Snippet.ChannelId
				return nil
			}
		}
		return fmt.Errorf("%w: no search result for %q", ErrChannelNotFound, query)
	})
	return channelID, err
}
