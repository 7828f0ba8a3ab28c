package store

import (
	"context"
	"database/sql"
	"fmt"

	"scriptflow/api/internal/audience"
)

func (s *PostgresStore) ListChannelAccounts(ctx context.Context, userID string) ([]ChannelAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, channel_id, channel_url, status, target_audiences, created_at
		FROM channel_accounts
		WHERE user_id=$1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list channel accounts: %w", err)
	}
	defer rows.Close()

	items := make([]ChannelAccount, 0)
	for rows.Next() {
		var item ChannelAccount
		if err := rows.Scan(&item.ID, &item.UserID, &item.ChannelID, &item.ChannelURL,
			&item.Status, &item.TargetAudiences, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan channel account: %w", err)
		}
		item.TargetAudiences = audience.Normalize(item.TargetAudiences)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate channel accounts: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetChannelAccount(ctx context.Context, id string) (ChannelAccount, error) {
	var item ChannelAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, channel_id, channel_url, status, target_audiences, created_at
		FROM channel_accounts WHERE id=$1
	`, id).Scan(&item.ID, &item.UserID, &item.ChannelID, &item.ChannelURL,
		&item.Status, &item.TargetAudiences, &item.CreatedAt)
	if err != nil {
		return ChannelAccount{}, err
	}
	item.TargetAudiences = audience.Normalize(item.TargetAudiences)
	return item, nil
}

func (s *PostgresStore) InsertChannelAccount(ctx context.Context, item ChannelAccount) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO channel_accounts (id, user_id, channel_id, channel_url, status, target_audiences)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, item.ID, item.UserID, item.ChannelID, item.ChannelURL, item.Status, item.TargetAudiences)
	if err != nil {
		return fmt.Errorf("insert channel account: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateChannelAccount(ctx context.Context, item ChannelAccount) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE channel_accounts
		SET channel_id=$2, channel_url=$3, status=$4, target_audiences=$5
		WHERE id=$1
	`, item.ID, item.ChannelID, item.ChannelURL, item.Status, item.TargetAudiences)
	if err != nil {
		return fmt.Errorf("update channel account: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) DeleteChannelAccount(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM channel_accounts WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete channel account: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAudienceProfiles(ctx context.Context, userID string) ([]AudienceProfile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, audience_profile_name, age_group, geographic_region,
			gender, interests, primary_motivation, created_at, updated_at
		FROM audience_profiles
		WHERE user_id=$1
		ORDER BY audience_profile_name
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list audience profiles: %w", err)
	}
	defer rows.Close()

	items := make([]AudienceProfile, 0)
	for rows.Next() {
		var p AudienceProfile
		if err := rows.Scan(&p.ID, &p.UserID, &p.AudienceProfileName, &p.AgeGroup,
			&p.GeographicRegion, &p.Gender, &p.Interests, &p.PrimaryMotivation,
			&p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan audience profile: %w", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audience profiles: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertAudienceProfile(ctx context.Context, p AudienceProfile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audience_profiles (id, user_id, audience_profile_name, age_group,
			geographic_region, gender, interests, primary_motivation)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, p.ID, p.UserID, p.AudienceProfileName, p.AgeGroup, p.GeographicRegion,
		p.Gender, p.Interests, p.PrimaryMotivation)
	if err != nil {
		return fmt.Errorf("insert audience profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateAudienceProfile(ctx context.Context, p AudienceProfile) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE audience_profiles
		SET audience_profile_name=$2, age_group=$3, geographic_region=$4, gender=$5,
			interests=$6, primary_motivation=$7, updated_at=$8
		WHERE id=$1
	`, p.ID, p.AudienceProfileName, p.AgeGroup, p.GeographicRegion, p.Gender,
		p.Interests, p.PrimaryMotivation, touch())
	if err != nil {
		return fmt.Errorf("update audience profile: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) DeleteAudienceProfile(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM audience_profiles WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete audience profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListTrackedURLs(ctx context.Context, userID string) ([]TrackedURL, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, video_channel_url, url_type, is_tracked, reference_for,
			created_at, updated_at
		FROM tracked_urls
		WHERE user_id=$1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list tracked urls: %w", err)
	}
	defer rows.Close()

	items := make([]TrackedURL, 0)
	for rows.Next() {
		var u TrackedURL
		if err := rows.Scan(&u.ID, &u.UserID, &u.VideoChannelURL, &u.URLType,
			&u.IsTracked, &u.ReferenceFor, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan tracked url: %w", err)
		}
		items = append(items, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tracked urls: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertTrackedURL(ctx context.Context, u TrackedURL) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tracked_urls (id, user_id, video_channel_url, url_type, is_tracked, reference_for)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, u.ID, u.UserID, u.VideoChannelURL, u.URLType, u.IsTracked, u.ReferenceFor)
	if err != nil {
		return fmt.Errorf("insert tracked url: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateTrackedURL(ctx context.Context, u TrackedURL) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE tracked_urls
		SET video_channel_url=$2, url_type=$3, is_tracked=$4, reference_for=$5, updated_at=$6
		WHERE id=$1
	`, u.ID, u.VideoChannelURL, u.URLType, u.IsTracked, u.ReferenceFor, touch())
	if err != nil {
		return fmt.Errorf("update tracked url: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) DeleteTrackedURL(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tracked_urls WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete tracked url: %w", err)
	}
	return nil
}
