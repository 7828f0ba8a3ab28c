package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"scriptflow/api/internal/audience"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash)
		VALUES ($1, $2, $3, $4)
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, avatar_url
		FROM users WHERE email=$1
	`, email).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.AvatarURL)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, avatar_url
		FROM users WHERE id=$1
	`, userID).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.AvatarURL)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) UpdateUserAvatar(ctx context.Context, userID, avatarURL string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET avatar_url=$2, updated_at=NOW() WHERE id=$1
	`, userID, avatarURL)
	if err != nil {
		return fmt.Errorf("update avatar: %w", err)
	}
	return nil
}

const scriptIdeaColumns = `
	id, user_id, title, description, target_duration, account, status,
	target_audiences, generated_title, generated_script_link, generated_thumbnail,
	generated_thumbnail_prompt, video_type, notes, publish_date, age_group, gender,
	created_at
`

func scanScriptIdea(row interface{ Scan(...any) error }) (ScriptIdea, error) {
	var item ScriptIdea
	err := row.Scan(
		&item.ID, &item.UserID, &item.Title, &item.Description, &item.TargetDuration,
		&item.Account, &item.Status, &item.TargetAudiences, &item.GeneratedTitle,
		&item.GeneratedScriptLink, &item.GeneratedThumbnail, &item.GeneratedThumbnailPrompt,
		&item.VideoType, &item.Notes, &item.PublishDate, &item.AgeGroup, &item.Gender,
		&item.CreatedAt,
	)
	if err != nil {
		return ScriptIdea{}, err
	}
	// Legacy rows may carry a JSON-encoded audience list; nothing past
	// this boundary sees that form.
	item.TargetAudiences = audience.Normalize(item.TargetAudiences)
	return item, nil
}

// ListScriptIdeas returns every idea owned by the user, newest first.
func (s *PostgresStore) ListScriptIdeas(ctx context.Context, userID string) ([]ScriptIdea, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+scriptIdeaColumns+`
		FROM script_ideas
		WHERE user_id=$1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list script ideas: %w", err)
	}
	defer rows.Close()

	items := make([]ScriptIdea, 0)
	for rows.Next() {
		item, err := scanScriptIdea(rows)
		if err != nil {
			return nil, fmt.Errorf("scan script idea: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate script ideas: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetScriptIdea(ctx context.Context, id string) (ScriptIdea, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+scriptIdeaColumns+`
		FROM script_ideas
		WHERE id=$1
	`, id)
	return scanScriptIdea(row)
}

// GetScriptIdeaStatus is the cheap read used by the
// Content Generated transition's read-before-write.
func (s *PostgresStore) GetScriptIdeaStatus(ctx context.Context, id string) (string, error) {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM script_ideas WHERE id=$1`, id).Scan(&status)
	if err != nil {
		return "", err
	}
	return status, nil
}

func (s *PostgresStore) InsertScriptIdea(ctx context.Context, item ScriptIdea) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO script_ideas (
			id, user_id, title, description, target_duration, account, status,
			target_audiences, generated_title, generated_script_link, generated_thumbnail,
			generated_thumbnail_prompt, video_type, notes, publish_date, age_group, gender,
			created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`,
		item.ID, item.UserID, item.Title, item.Description, item.TargetDuration,
		item.Account, item.Status, item.TargetAudiences, item.GeneratedTitle,
		item.GeneratedScriptLink, item.GeneratedThumbnail, item.GeneratedThumbnailPrompt,
		item.VideoType, item.Notes, item.PublishDate, item.AgeGroup, item.Gender,
		item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert script idea: %w", err)
	}
	return nil
}

// UpdateScriptIdea writes every mutable column; the service resolves
// the merged row before calling.
func (s *PostgresStore) UpdateScriptIdea(ctx context.Context, item ScriptIdea) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE script_ideas
		SET title=$2, description=$3, target_duration=$4, account=$5, status=$6,
			target_audiences=$7, generated_title=$8, generated_script_link=$9,
			generated_thumbnail=$10, generated_thumbnail_prompt=$11, video_type=$12,
			notes=$13, publish_date=$14, age_group=$15, gender=$16, created_at=$17
		WHERE id=$1
	`,
		item.ID, item.Title, item.Description, item.TargetDuration, item.Account,
		item.Status, item.TargetAudiences, item.GeneratedTitle, item.GeneratedScriptLink,
		item.GeneratedThumbnail, item.GeneratedThumbnailPrompt, item.VideoType,
		item.Notes, item.PublishDate, item.AgeGroup, item.Gender, item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("update script idea: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update script idea rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) DeleteScriptIdea(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM script_ideas WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete script idea: %w", err)
	}
	return nil
}

// ListGeneratedByIDs fetches, in a single query, the ideas from the
// given id set that have reached Content Generated with a script link
// attached. The completion poller batches all pending ids through
// here.
func (s *PostgresStore) ListGeneratedByIDs(ctx context.Context, ids []string) ([]ScriptIdea, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+scriptIdeaColumns+`
		FROM script_ideas
		WHERE id IN (`+strings.Join(placeholders, ", ")+`)
			AND status = 'Content Generated'
			AND generated_script_link <> ''
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("list generated ideas: %w", err)
	}
	defer rows.Close()

	items := make([]ScriptIdea, 0, len(ids))
	for rows.Next() {
		item, err := scanScriptIdea(rows)
		if err != nil {
			return nil, fmt.Errorf("scan generated idea: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate generated ideas: %w", err)
	}
	return items, nil
}

// ListRecentSubmitted returns the newest ideas still at
// Idea Submitted, used to spot rows created by the external
// idea-generation job.
func (s *PostgresStore) ListRecentSubmitted(ctx context.Context, userID string, limit int) ([]ScriptIdea, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+scriptIdeaColumns+`
		FROM script_ideas
		WHERE user_id=$1 AND status = 'Idea Submitted'
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent submitted: %w", err)
	}
	defer rows.Close()

	items := make([]ScriptIdea, 0, limit)
	for rows.Next() {
		item, err := scanScriptIdea(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recent submitted: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent submitted: %w", err)
	}
	return items, nil
}

// PipelineCounts reports how many of the user's ideas sit in each
// stage, for the analytics overview.
func (s *PostgresStore) PipelineCounts(ctx context.Context, userID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM script_ideas
		WHERE user_id=$1
		GROUP BY status
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("pipeline counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan pipeline count: %w", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pipeline counts: %w", err)
	}
	return counts, nil
}

// GetAudienceProfileByName resolves a profile by its logical key. The
// name is not unique at the schema level; the newest row wins, and a
// dangling name yields sql.ErrNoRows for the caller to render blank.
func (s *PostgresStore) GetAudienceProfileByName(ctx context.Context, userID, name string) (AudienceProfile, error) {
	if strings.TrimSpace(name) == "" {
		return AudienceProfile{}, sql.ErrNoRows
	}
	var p AudienceProfile
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, audience_profile_name, age_group, geographic_region,
			gender, interests, primary_motivation, created_at, updated_at
		FROM audience_profiles
		WHERE user_id=$1 AND audience_profile_name=$2
		ORDER BY updated_at DESC
		LIMIT 1
	`, userID, name).Scan(
		&p.ID, &p.UserID, &p.AudienceProfileName, &p.AgeGroup, &p.GeographicRegion,
		&p.Gender, &p.Interests, &p.PrimaryMotivation, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return AudienceProfile{}, err
	}
	return p, nil
}

// IsNotFound reports whether err means the row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// touch is shared by the settings tables that track updated_at.
func touch() time.Time {
	return time.Now().UTC()
}
