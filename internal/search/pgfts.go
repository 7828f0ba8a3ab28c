package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a
// fallback when Meilisearch is unavailable.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down the whole app is
// down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across script_ideas, videos, and
// channels using plainto_tsquery and ts_rank, with ts_headline for
// snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}
	argN := 2

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultIdea {
		ideaWhere := "i.fts @@ " + tsQuery
		if q.UserID != "" {
			ideaWhere += fmt.Sprintf(" AND i.user_id = $%d", argN)
			args = append(args, q.UserID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'idea'::text AS type, i.id, i.title,
				ts_headline('english', coalesce(i.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				i.status, ''::text AS channel_id,
				ts_rank(i.fts, %s) AS rank
			FROM script_ideas i
			WHERE %s`, tsQuery, tsQuery, ideaWhere))
	}

	if q.FilterType == "" || q.FilterType == ResultVideo {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'video'::text AS type, v.id, v.video_title AS title,
				ts_headline('english', coalesce(v.video_description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				''::text AS status, v.channel_id,
				ts_rank(v.fts, %s) AS rank
			FROM videos v
			WHERE v.fts @@ %s`, tsQuery, tsQuery, tsQuery))
	}

	if q.FilterType == "" || q.FilterType == ResultChannel {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'channel'::text AS type, c.id, c.channel_title AS title,
				ts_headline('english', coalesce(c.channel_description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				''::text AS status, c.channel_id,
				ts_rank(c.fts, %s) AS rank
			FROM channels c
			WHERE c.fts @@ %s`, tsQuery, tsQuery, tsQuery))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, status, channel_id
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.Status, &r.ChannelID); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]IdeaRecord, []VideoRecord, []ChannelRecord, error) {
	ideaRows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, title, description, notes, status, account
		FROM script_ideas
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load ideas: %w", err)
	}
	defer ideaRows.Close()

	ideas := make([]IdeaRecord, 0)
	for ideaRows.Next() {
		var rec IdeaRecord
		if err := ideaRows.Scan(&rec.ID, &rec.UserID, &rec.Title, &rec.Description, &rec.Notes, &rec.Status, &rec.Account); err != nil {
			return nil, nil, nil, fmt.Errorf("scan idea: %w", err)
		}
		ideas = append(ideas, rec)
	}
	if err := ideaRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate ideas: %w", err)
	}

	videoRows, err := p.db.QueryContext(ctx, `
		SELECT id, video_title, video_description, channel_id
		FROM videos
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load videos: %w", err)
	}
	defer videoRows.Close()

	videos := make([]VideoRecord, 0)
	for videoRows.Next() {
		var rec VideoRecord
		if err := videoRows.Scan(&rec.ID, &rec.Title, &rec.Description, &rec.ChannelID); err != nil {
			return nil, nil, nil, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, rec)
	}
	if err := videoRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate videos: %w", err)
	}

	channelRows, err := p.db.QueryContext(ctx, `
		SELECT id, channel_title, channel_description
		FROM channels
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load channels: %w", err)
	}
	defer channelRows.Close()

	channels := make([]ChannelRecord, 0)
	for channelRows.Next() {
		var rec ChannelRecord
		if err := channelRows.Scan(&rec.ID, &rec.Title, &rec.Description); err != nil {
			return nil, nil, nil, fmt.Errorf("scan channel: %w", err)
		}
		channels = append(channels, rec)
	}
	if err := channelRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate channels: %w", err)
	}

	return ideas, videos, channels, nil
}
