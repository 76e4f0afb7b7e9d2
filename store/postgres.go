package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/ktappdev/ytstats/model"
)

const postgresUpsert = `
	INSERT INTO videos (video_id, channel_id, title, video_url, thumbnail_url, published_at,
		duration, view_count, like_count, comment_count, transcript)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (video_id) DO UPDATE SET
		title         = EXCLUDED.title,
		thumbnail_url = EXCLUDED.thumbnail_url,
		duration      = EXCLUDED.duration,
		view_count    = EXCLUDED.view_count,
		like_count    = EXCLUDED.like_count,
		comment_count = EXCLUDED.comment_count,
		transcript    = COALESCE(EXCLUDED.transcript, videos.transcript)`

// Postgres is a Store backed by a pgx connection pool.
type Postgres struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// OpenPostgres connects to dsn, retrying the initial ping while the server
// comes up, and ensures the videos table exists.
func OpenPostgres(ctx context.Context, dsn string, logger zerolog.Logger) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	for attempt := 1; ; attempt++ {
		err = pool.Ping(ctx)
		if err == nil {
			break
		}
		if attempt == 5 {
			pool.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		logger.Warn().Err(err).Int("attempt", attempt).Msg("postgres not ready, retrying")
		select {
		case <-ctx.Done():
			pool.Close()
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * time.Second):
		}
	}

	p := &Postgres{pool: pool, logger: logger}
	if err := p.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return p, nil
}

func (p *Postgres) migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, createTableSQL(true)); err != nil {
		return err
	}
	for _, c := range videoColumns[1:] {
		stmt := "ALTER TABLE videos ADD COLUMN IF NOT EXISTS " + c.name + " " + c.postgres
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("add column %s: %w", c.name, err)
		}
	}
	return nil
}

// Upsert implements Store.
func (p *Postgres) Upsert(ctx context.Context, records []model.VideoRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(postgresUpsert,
			r.VideoID, r.ChannelID, r.Title, r.URL(), r.ThumbnailURL, r.PublishedString(),
			r.Duration, r.ViewCount, r.LikeCount, r.CommentCount, nullIfEmpty(r.Transcript),
		)
	}

	results := tx.SendBatch(ctx, batch)
	for _, r := range records {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return 0, fmt.Errorf("upsert video %s: %w", r.VideoID, err)
		}
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("upsert batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	p.logger.Debug().Int("rows", len(records)).Msg("upserted videos")
	return len(records), nil
}

// List implements Store.
func (p *Postgres) List(ctx context.Context, channelID string) ([]model.VideoRecord, error) {
	query := "SELECT " + selectColumns + " FROM videos"
	var args []any
	if channelID != "" {
		query += " WHERE channel_id = $1"
		args = append(args, channelID)
	}
	query += " ORDER BY published_at DESC, video_id"

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	defer rows.Close()

	var videos []model.VideoRecord
	for rows.Next() {
		var (
			v                                        model.VideoRecord
			title, thumb, published, dur, transcript *string
			views, likes, comments                   *int64
		)
		err := rows.Scan(&v.VideoID, &v.ChannelID, &title, &thumb, &published, &dur,
			&views, &likes, &comments, &transcript)
		if err != nil {
			return nil, err
		}
		v.Title = deref(title)
		v.ThumbnailURL = deref(thumb)
		v.PublishedAt = parsePublished(deref(published))
		v.Duration = deref(dur)
		v.ViewCount = deref(views)
		v.LikeCount = deref(likes)
		v.CommentCount = deref(comments)
		v.Transcript = deref(transcript)
		videos = append(videos, v)
	}
	return videos, rows.Err()
}

// Count implements Store.
func (p *Postgres) Count(ctx context.Context) (int, error) {
	var n int
	if err := p.pool.QueryRow(ctx, "SELECT COUNT(*) FROM videos").Scan(&n); err != nil {
		return 0, fmt.Errorf("count videos: %w", err)
	}
	return n, nil
}

// Close implements Store.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func deref[T any](v *T) T {
	var zero T
	if v == nil {
		return zero
	}
	return *v
}
