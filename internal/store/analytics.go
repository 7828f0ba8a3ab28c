package store

import (
	"context"
	"fmt"
)

// Sortable column whitelists for the analytics tables. Anything else
// falls back to created_at.
var channelSortColumns = map[string]string{
	"subscriber_count":     "subscriber_count",
	"view_count":           "view_count",
	"video_count":          "video_count",
	"channel_published_at": "channel_published_at",
	"created_at":           "created_at",
}

var videoSortColumns = map[string]string{
	"view_count":         "view_count",
	"like_count":         "like_count",
	"comment_count":      "comment_count",
	"video_published_at": "video_published_at",
	"created_at":         "created_at",
}

func orderClause(columns map[string]string, sortBy string, descending bool) string {
	column, ok := columns[sortBy]
	if !ok {
		column = "created_at"
	}
	direction := "ASC"
	if descending {
		direction = "DESC"
	}
	return fmt.Sprintf("ORDER BY %s %s", column, direction)
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (s *PostgresStore) ListChannels(ctx context.Context, sortBy string, descending bool, limit, offset int) ([]Channel, int, error) {
	limit, offset = clampPage(limit, offset)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM channels`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count channels: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, channel_id, channel_title, channel_description, channel_avatar_url,
			subscriber_count, view_count, video_count, channel_published_at,
			channel_country, created_at, updated_at
		FROM channels
		`+orderClause(channelSortColumns, sortBy, descending)+`
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	items := make([]Channel, 0, limit)
	for rows.Next() {
		var c Channel
		if err := rows.Scan(&c.ID, &c.ChannelID, &c.ChannelTitle, &c.ChannelDescription,
			&c.ChannelAvatarURL, &c.SubscriberCount, &c.ViewCount, &c.VideoCount,
			&c.ChannelPublishedAt, &c.ChannelCountry, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan channel: %w", err)
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate channels: %w", err)
	}
	return items, total, nil
}

func (s *PostgresStore) DeleteChannel(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM channels WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListVideos(ctx context.Context, sortBy string, descending bool, limit, offset int) ([]Video, int, error) {
	limit, offset = clampPage(limit, offset)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM videos`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count videos: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, video_id, channel_id, video_title, video_description,
			video_thumbnail_url, video_url, video_published_at, view_count,
			like_count, comment_count, duration, tags, created_at, updated_at
		FROM videos
		`+orderClause(videoSortColumns, sortBy, descending)+`
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list videos: %w", err)
	}
	defer rows.Close()

	items := make([]Video, 0, limit)
	for rows.Next() {
		var v Video
		if err := rows.Scan(&v.ID, &v.VideoID, &v.ChannelID, &v.VideoTitle,
			&v.VideoDescription, &v.VideoThumbnailURL, &v.VideoURL, &v.VideoPublishedAt,
			&v.ViewCount, &v.LikeCount, &v.CommentCount, &v.Duration, &v.Tags,
			&v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan video: %w", err)
		}
		items = append(items, v)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate videos: %w", err)
	}
	return items, total, nil
}

func (s *PostgresStore) DeleteVideo(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM videos WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete video: %w", err)
	}
	return nil
}
