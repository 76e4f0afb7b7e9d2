// Package store persists video records into a local relational table keyed
// by video ID. SQLite is the default backend; a postgres:// DSN selects
// PostgreSQL.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ktappdev/ytstats/model"
)

// ErrIncompatibleSchema is returned when an existing videos table cannot be
// upgraded in place.
var ErrIncompatibleSchema = errors.New("incompatible videos table")

// Store is the local persistence capability.
type Store interface {
	// Upsert writes records in one transaction and returns how many rows
	// were written. On conflict the mutable fields are replaced; video_id,
	// channel_id and published_at keep their first value.
	Upsert(ctx context.Context, records []model.VideoRecord) (int, error)
	// List returns stored videos, newest first. An empty channelID lists
	// every channel.
	List(ctx context.Context, channelID string) ([]model.VideoRecord, error)
	// Count returns the number of stored videos.
	Count(ctx context.Context) (int, error)
	Close() error
}

// Open picks a backend from the DSN.
func Open(ctx context.Context, dsn string, logger zerolog.Logger) (Store, error) {
	if driverFor(dsn) == "postgres" {
		pg, err := OpenPostgres(ctx, dsn, logger)
		if err != nil {
			return nil, err
		}
		return pg, nil
	}
	lite, err := OpenSQLite(ctx, dsn, logger)
	if err != nil {
		return nil, err
	}
	return lite, nil
}

func driverFor(dsn string) string {
	lower := strings.ToLower(dsn)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return "postgres"
	}
	return "sqlite"
}

// column is one column of the videos table with its type per backend.
type column struct {
	name     string
	sqlite   string
	postgres string
}

var videoColumns = []column{
	{"video_id", "TEXT PRIMARY KEY", "TEXT PRIMARY KEY"},
	{"channel_id", "TEXT NOT NULL DEFAULT ''", "TEXT NOT NULL DEFAULT ''"},
	{"title", "TEXT", "TEXT"},
	{"video_url", "TEXT", "TEXT"},
	{"thumbnail_url", "TEXT", "TEXT"},
	{"published_at", "TEXT", "TEXT"},
	{"duration", "TEXT", "TEXT"},
	{"view_count", "INTEGER", "BIGINT"},
	{"like_count", "INTEGER", "BIGINT"},
	{"comment_count", "INTEGER", "BIGINT"},
	{"transcript", "TEXT", "TEXT"},
}

func createTableSQL(postgres bool) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS videos (\n")
	for i, c := range videoColumns {
		typ := c.sqlite
		if postgres {
			typ = c.postgres
		}
		b.WriteString("\t" + c.name + " " + typ)
		if i < len(videoColumns)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(")")
	return b.String()
}

const selectColumns = `video_id, channel_id, title, thumbnail_url, published_at, duration,
	view_count, like_count, comment_count, transcript`

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func parsePublished(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
