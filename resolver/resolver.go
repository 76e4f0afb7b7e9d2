// Package resolver turns the many ways people paste a YouTube channel or
// video (bare IDs, URLs, short links, handles, legacy usernames, custom
// names) into a canonical resource reference.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
)

// ErrInvalidIdentifier is returned when the input matches none of the
// recognized shapes.
var ErrInvalidIdentifier = errors.New("invalid identifier")

var (
	channelIDRe = regexp.MustCompile(`^UC[0-9A-Za-z_-]{22}$`)
	videoIDRe   = regexp.MustCompile(`^[0-9A-Za-z_-]{11}$`)
	handleRe    = regexp.MustCompile(`^@[\p{L}\p{N}._-]{3,30}$`)
	nameRe      = regexp.MustCompile(`^[\p{L}\p{N}._-]+$`)
)

// Kind is the type of an identifier.
type Kind int

const (
	KindChannel Kind = iota
	KindVideo
	KindHandle
	KindUsername
	KindCustomName
)

func (k Kind) String() string {
	switch k {
	case KindChannel:
		return "channel"
	case KindVideo:
		return "video"
	case KindHandle:
		return "handle"
	case KindUsername:
		return "username"
	case KindCustomName:
		return "custom name"
	}
	return "unknown"
}

// Identifier is the parsed, not yet resolved, form of user input.
type Identifier struct {
	Kind  Kind
	Value string
	Raw   string
}

// Canonical reports whether Value is already a platform ID.
func (id Identifier) Canonical() bool {
	return id.Kind == KindChannel || id.Kind == KindVideo
}

// Ref is a resolved channel or video.
type Ref struct {
	Kind Kind
	Raw  string
	ID   string
}

// IsVideo reports whether the ref targets a single video.
func (r Ref) IsVideo() bool { return r.Kind == KindVideo }

func (r Ref) String() string {
	return fmt.Sprintf("%s %s", r.Kind, r.ID)
}

// IsChannelID reports whether s has the shape of a channel ID.
func IsChannelID(s string) bool { return channelIDRe.MatchString(s) }

// IsVideoID reports whether s has the shape of a video ID.
func IsVideoID(s string) bool { return videoIDRe.MatchString(s) }

// Parse classifies input. Shapes are checked in order: bare channel ID, bare
// video ID, channel URL, video URL, bare @handle.
func Parse(input string) (Identifier, error) {
	s := strings.TrimSpace(input)
	invalid := fmt.Errorf("%w: %q", ErrInvalidIdentifier, input)

	if s == "" {
		return Identifier{}, invalid
	}
	if channelIDRe.MatchString(s) {
		return Identifier{Kind: KindChannel, Value: s, Raw: input}, nil
	}
	if videoIDRe.MatchString(s) {
		return Identifier{Kind: KindVideo, Value: s, Raw: input}, nil
	}
	if u, ok := parseURL(s); ok {
		id, ok := fromURL(u)
		if !ok {
			return Identifier{}, invalid
		}
		id.Raw = input
		return id, nil
	}
	if handleRe.MatchString(s) {
		return Identifier{Kind: KindHandle, Value: s[1:], Raw: input}, nil
	}
	return Identifier{}, invalid
}

var knownHosts = map[string]bool{
	"youtube.com":       true,
	"www.youtube.com":   true,
	"m.youtube.com":     true,
	"music.youtube.com": true,
	"youtu.be":          true,
	"www.youtu.be":      true,
}

// parseURL accepts URLs on known hosts, with or without a scheme.
func parseURL(s string) (*url.URL, bool) {
	if strings.ContainsAny(s, " \t\n") {
		return nil, false
	}
	lower := strings.ToLower(s)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		host, _, _ := strings.Cut(lower, "/")
		if !knownHosts[host] {
			return nil, false
		}
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return nil, false
	}
	if !knownHosts[strings.ToLower(u.Hostname())] {
		return nil, false
	}
	return u, true
}

func fromURL(u *url.URL) (Identifier, bool) {
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")

	if host == "youtu.be" {
		return videoIdentifier(segs[0])
	}

	second := ""
	if len(segs) > 1 {
		second = segs[1]
	}

	switch first := segs[0]; {
	case first == "watch":
		return videoIdentifier(u.Query().Get("v"))
	case first == "shorts", first == "embed", first == "live":
		return videoIdentifier(second)
	case first == "channel":
		if !channelIDRe.MatchString(second) {
			return Identifier{}, false
		}
		return Identifier{Kind: KindChannel, Value: second}, true
	case strings.HasPrefix(first, "@"):
		if !handleRe.MatchString(first) {
			return Identifier{}, false
		}
		return Identifier{Kind: KindHandle, Value: first[1:]}, true
	case first == "c":
		return nameIdentifier(KindCustomName, second)
	case first == "user":
		return nameIdentifier(KindUsername, second)
	}
	return Identifier{}, false
}

func videoIdentifier(id string) (Identifier, bool) {
	if !videoIDRe.MatchString(id) {
		return Identifier{}, false
	}
	return Identifier{Kind: KindVideo, Value: id}, true
}

func nameIdentifier(kind Kind, name string) (Identifier, bool) {
	if !nameRe.MatchString(name) {
		return Identifier{}, false
	}
	return Identifier{Kind: kind, Value: name}, true
}

// ChannelLookup maps human-readable channel names to channel IDs.
type ChannelLookup interface {
	ChannelIDForHandle(ctx context.Context, handle string) (string, error)
	ChannelIDForUsername(ctx context.Context, username string) (string, error)
	ChannelIDForCustomName(ctx context.Context, name string) (string, error)
}

// Resolver resolves identifiers, looking up names through a ChannelLookup.
// Lookups are cached for the lifetime of the Resolver, which is one run.
type Resolver struct {
	lookup ChannelLookup
	cache  map[string]string
	logger zerolog.Logger
}

// New returns a Resolver. lookup may be nil when only canonical IDs are
// expected.
func New(lookup ChannelLookup, logger zerolog.Logger) *Resolver {
	return &Resolver{
		lookup: lookup,
		cache:  make(map[string]string),
		logger: logger,
	}
}

// Resolve parses input and returns a canonical reference.
func (r *Resolver) Resolve(ctx context.Context, input string) (Ref, error) {
	id, err := Parse(input)
	if err != nil {
		return Ref{}, err
	}
	if id.Canonical() {
		return Ref{Kind: id.Kind, Raw: input, ID: id.Value}, nil
	}

	key := id.Kind.String() + ":" + strings.ToLower(id.Value)
	if channelID, ok := r.cache[key]; ok {
		r.logger.Debug().Str("name", id.Value).Str("channel_id", channelID).Msg("channel lookup cache hit")
		return Ref{Kind: KindChannel, Raw: input, ID: channelID}, nil
	}
	if r.lookup == nil {
		return Ref{}, fmt.Errorf("cannot look up %s %q: no channel lookup configured", id.Kind, id.Value)
	}

	r.logger.Info().Str("kind", id.Kind.String()).Str("name", id.Value).Msg("looking up channel ID")
	var channelID string
	switch id.Kind {
	case KindHandle:
		channelID, err = r.lookup.ChannelIDForHandle(ctx, id.Value)
	case KindUsername:
		channelID, err = r.lookup.ChannelIDForUsername(ctx, id.Value)
	default:
		channelID, err = r.lookup.ChannelIDForCustomName(ctx, id.Value)
	}
	if err != nil {
		return Ref{}, fmt.Errorf("look up %s %q: %w", id.Kind, id.Value, err)
	}
	if !channelIDRe.MatchString(channelID) {
		return Ref{}, fmt.Errorf("look up %s %q: unexpected channel ID %q", id.Kind, id.Value, channelID)
	}

	r.cache[key] = channelID
	return Ref{Kind: KindChannel, Raw: input, ID: channelID}, nil
}
