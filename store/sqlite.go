package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/ktappdev/ytstats/model"
)

const sqliteUpsert = `
	INSERT INTO videos (video_id, channel_id, title, video_url, thumbnail_url, published_at,
		duration, view_count, like_count, comment_count, transcript)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(video_id) DO UPDATE SET
		title         = excluded.title,
		thumbnail_url = excluded.thumbnail_url,
		duration      = excluded.duration,
		view_count    = excluded.view_count,
		like_count    = excluded.like_count,
		comment_count = excluded.comment_count,
		transcript    = COALESCE(excluded.transcript, videos.transcript)`

// SQLite is the default Store.
type SQLite struct {
	db     *sql.DB
	logger zerolog.Logger
}

// OpenSQLite opens (or creates) the database at path and brings the videos
// table up to date.
func OpenSQLite(ctx context.Context, path string, logger zerolog.Logger) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite: single writer

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite busy_timeout: %w", err)
	}

	s := &SQLite{db: db, logger: logger}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func (s *SQLite) migrate(ctx context.Context) error {
	existing, err := s.columns(ctx)
	if err != nil {
		return err
	}

	switch {
	case len(existing) == 0:
		_, err := s.db.ExecContext(ctx, createTableSQL(false))
		return err
	case !existing["video_id"] && existing["id"]:
		return s.rebuildLegacy(ctx, existing)
	case !existing["video_id"]:
		return fmt.Errorf("%w: videos table has neither video_id nor id", ErrIncompatibleSchema)
	}

	for _, c := range videoColumns {
		if existing[c.name] {
			continue
		}
		s.logger.Info().Str("column", c.name).Msg("adding missing column to videos table")
		if _, err := s.db.ExecContext(ctx, "ALTER TABLE videos ADD COLUMN "+c.name+" "+c.sqlite); err != nil {
			return fmt.Errorf("add column %s: %w", c.name, err)
		}
	}
	return nil
}

func (s *SQLite) columns(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM pragma_table_info('videos')")
	if err != nil {
		return nil, fmt.Errorf("read table info: %w", err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

// rebuildLegacy migrates a table keyed by "id" into the current layout,
// carrying over every column the two layouts share.
func (s *SQLite) rebuildLegacy(ctx context.Context, existing map[string]bool) error {
	s.logger.Info().Msg("updating legacy videos table schema")

	shared := []string{}
	for _, c := range videoColumns {
		if c.name != "video_id" && existing[c.name] {
			shared = append(shared, c.name)
		}
	}
	dst := strings.Join(append([]string{"video_id"}, shared...), ", ")
	src := strings.Join(append([]string{"id"}, shared...), ", ")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmts := []string{
		"ALTER TABLE videos RENAME TO videos_old",
		createTableSQL(false),
		"INSERT INTO videos (" + dst + ") SELECT " + src + " FROM videos_old",
		"DROP TABLE videos_old",
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate legacy table: %w", err)
		}
	}
	return tx.Commit()
}

// Upsert implements Store.
func (s *SQLite) Upsert(ctx context.Context, records []model.VideoRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, sqliteUpsert)
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	written := 0
	for _, r := range records {
		_, err := stmt.ExecContext(ctx,
			r.VideoID, r.ChannelID, r.Title, r.URL(), r.ThumbnailURL, r.PublishedString(),
			r.Duration, r.ViewCount, r.LikeCount, r.CommentCount, nullIfEmpty(r.Transcript),
		)
		if err != nil {
			return 0, fmt.Errorf("upsert video %s: %w", r.VideoID, err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	s.logger.Debug().Int("rows", written).Msg("upserted videos")
	return written, nil
}

// List implements Store.
func (s *SQLite) List(ctx context.Context, channelID string) ([]model.VideoRecord, error) {
	query := "SELECT " + selectColumns + " FROM videos"
	var args []any
	if channelID != "" {
		query += " WHERE channel_id = ?"
		args = append(args, channelID)
	}
	query += " ORDER BY published_at DESC, video_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	defer rows.Close()

	var videos []model.VideoRecord
	for rows.Next() {
		var (
			v                                        model.VideoRecord
			title, thumb, published, dur, transcript sql.NullString
			views, likes, comments                   sql.NullInt64
		)
		err := rows.Scan(&v.VideoID, &v.ChannelID, &title, &thumb, &published, &dur,
			&views, &likes, &comments, &transcript)
		if err != nil {
			return nil, err
		}
		v.Title = title.String
		v.ThumbnailURL = thumb.String
		v.PublishedAt = parsePublished(published.String)
		v.Duration = dur.String
		v.ViewCount = views.Int64
		v.LikeCount = likes.Int64
		v.CommentCount = comments.Int64
		v.Transcript = transcript.String
		videos = append(videos, v)
	}
	return videos, rows.Err()
}

// Count implements Store.
func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM videos").Scan(&n); err != nil {
		return 0, fmt.Errorf("count videos: %w", err)
	}
	return n, nil
}

// Close implements Store.
func (s *SQLite) Close() error {
	return s.db.Close()
}
