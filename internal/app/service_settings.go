package app

import (
	"context"
	"io"
	"strings"
	"time"

	"scriptflow/api/internal/search"
	"scriptflow/api/internal/store"
	"scriptflow/api/internal/util"
)

// Settings entities share the optimistic write path with script ideas,
// each list under its own cache key.

// --- channel accounts ---

func (s *Service) ListAccounts(ctx context.Context, userID string) ([]store.ChannelAccount, error) {
	snapshot, err := s.cache.Fetch(ctx, accountsKey(userID), func(ctx context.Context) (any, error) {
		accounts, err := s.store.ListChannelAccounts(ctx, userID)
		if err != nil {
			return nil, err
		}
		return accounts, nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot.([]store.ChannelAccount), nil
}

func (s *Service) CreateAccount(ctx context.Context, userID string, input AccountInput) (store.ChannelAccount, error) {
	if strings.TrimSpace(input.ChannelID) == "" {
		return store.ChannelAccount{}, domainError(422, "VALIDATION_ERROR", "channel_id is required", nil)
	}
	account := store.ChannelAccount{
		ID:              util.NewRowID(),
		UserID:          userID,
		ChannelID:       input.ChannelID,
		ChannelURL:      input.ChannelURL,
		Status:          input.Status,
		TargetAudiences: input.TargetAudiences,
		CreatedAt:       time.Now(),
	}
	err := s.runOptimistic(ctx, accountsKey(userID),
		func(current any) any {
			return append([]store.ChannelAccount{account}, current.([]store.ChannelAccount)...)
		},
		func(ctx context.Context) error { return s.store.InsertChannelAccount(ctx, account) },
		"Account created")
	if err != nil {
		return store.ChannelAccount{}, err
	}
	return account, nil
}

func (s *Service) UpdateAccount(ctx context.Context, userID, id string, input AccountInput) (store.ChannelAccount, error) {
	current, err := s.store.GetChannelAccount(ctx, id)
	if err != nil {
		return store.ChannelAccount{}, err
	}
	if current.UserID != userID {
		return store.ChannelAccount{}, domainError(404, "NOT_FOUND", "Not found", nil)
	}
	next := current
	next.ChannelID = input.ChannelID
	next.ChannelURL = input.ChannelURL
	next.Status = input.Status
	next.TargetAudiences = input.TargetAudiences

	err = s.runOptimistic(ctx, accountsKey(userID),
		func(currentSnap any) any {
			accounts := currentSnap.([]store.ChannelAccount)
			out := make([]store.ChannelAccount, len(accounts))
			copy(out, accounts)
			for i := range out {
				if out[i].ID == next.ID {
					out[i] = next
				}
			}
			return out
		},
		func(ctx context.Context) error { return s.store.UpdateChannelAccount(ctx, next) },
		"Account updated")
	if err != nil {
		return store.ChannelAccount{}, err
	}
	return next, nil
}

func (s *Service) DeleteAccount(ctx context.Context, userID, id string) error {
	current, err := s.store.GetChannelAccount(ctx, id)
	if err != nil {
		return err
	}
	if current.UserID != userID {
		return domainError(404, "NOT_FOUND", "Not found", nil)
	}
	return s.runOptimistic(ctx, accountsKey(userID),
		func(currentSnap any) any {
			accounts := currentSnap.([]store.ChannelAccount)
			out := accounts[:0:0]
			for _, account := range accounts {
				if account.ID != id {
					out = append(out, account)
				}
			}
			return out
		},
		func(ctx context.Context) error { return s.store.DeleteChannelAccount(ctx, id) },
		"Account deleted")
}

// --- audience profiles ---

func (s *Service) ListAudiences(ctx context.Context, userID string) ([]store.AudienceProfile, error) {
	snapshot, err := s.cache.Fetch(ctx, profilesKey(userID), func(ctx context.Context) (any, error) {
		profiles, err := s.store.ListAudienceProfiles(ctx, userID)
		if err != nil {
			return nil, err
		}
		return profiles, nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot.([]store.AudienceProfile), nil
}

func audienceNameKey(userID, name string) string {
	return "audience_profile:" + userID + ":" + name
}

func (s *Service) GetAudienceByName(ctx context.Context, userID, name string) (store.AudienceProfile, error) {
	snapshot, err := s.cache.Fetch(ctx, audienceNameKey(userID, name), func(ctx context.Context) (any, error) {
		profile, err := s.store.GetAudienceProfileByName(ctx, userID, name)
		if err != nil {
			return nil, err
		}
		return profile, nil
	})
	if err != nil {
		return store.AudienceProfile{}, err
	}
	return snapshot.(store.AudienceProfile), nil
}

func (s *Service) CreateAudience(ctx context.Context, userID string, input AudienceInput) (store.AudienceProfile, error) {
	if strings.TrimSpace(input.AudienceProfileName) == "" {
		return store.AudienceProfile{}, domainError(422, "VALIDATION_ERROR", "audience_profile_name is required", nil)
	}
	now := time.Now()
	profile := store.AudienceProfile{
		ID:                  util.NewRowID(),
		UserID:              userID,
		AudienceProfileName: input.AudienceProfileName,
		AgeGroup:            input.AgeGroup,
		GeographicRegion:    input.GeographicRegion,
		Gender:              input.Gender,
		Interests:           input.Interests,
		PrimaryMotivation:   input.PrimaryMotivation,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	err := s.runOptimistic(ctx, profilesKey(userID),
		func(current any) any {
			return append([]store.AudienceProfile{profile}, current.([]store.AudienceProfile)...)
		},
		func(ctx context.Context) error { return s.store.InsertAudienceProfile(ctx, profile) },
		"Audience profile created")
	if err != nil {
		return store.AudienceProfile{}, err
	}
	return profile, nil
}

func (s *Service) UpdateAudience(ctx context.Context, userID, id string, input AudienceInput) (store.AudienceProfile, error) {
	profiles, err := s.store.ListAudienceProfiles(ctx, userID)
	if err != nil {
		return store.AudienceProfile{}, err
	}
	var current store.AudienceProfile
	found := false
	for _, p := range profiles {
		if p.ID == id {
			current = p
			found = true
			break
		}
	}
	if !found {
		return store.AudienceProfile{}, domainError(404, "NOT_FOUND", "Not found", nil)
	}

	next := current
	next.AudienceProfileName = input.AudienceProfileName
	next.AgeGroup = input.AgeGroup
	next.GeographicRegion = input.GeographicRegion
	next.Gender = input.Gender
	next.Interests = input.Interests
	next.PrimaryMotivation = input.PrimaryMotivation
	next.UpdatedAt = time.Now()

	err = s.runOptimistic(ctx, profilesKey(userID),
		func(currentSnap any) any {
			list := currentSnap.([]store.AudienceProfile)
			out := make([]store.AudienceProfile, len(list))
			copy(out, list)
			for i := range out {
				if out[i].ID == next.ID {
					out[i] = next
				}
			}
			return out
		},
		func(ctx context.Context) error { return s.store.UpdateAudienceProfile(ctx, next) },
		"Audience profile updated")
	if err != nil {
		return store.AudienceProfile{}, err
	}
	// The mirrored age_group/gender columns on ideas may now be stale,
	// as may any by-name lookup under either name.
	s.cache.Invalidate(ideasKey(userID))
	s.cache.Invalidate(audienceNameKey(userID, current.AudienceProfileName))
	s.cache.Invalidate(audienceNameKey(userID, next.AudienceProfileName))
	return next, nil
}

func (s *Service) DeleteAudience(ctx context.Context, userID, id string) error {
	if snapshot, ok := s.cache.Read(profilesKey(userID)); ok {
		for _, p := range snapshot.([]store.AudienceProfile) {
			if p.ID == id {
				s.cache.Invalidate(audienceNameKey(userID, p.AudienceProfileName))
				break
			}
		}
	}
	return s.runOptimistic(ctx, profilesKey(userID),
		func(currentSnap any) any {
			list := currentSnap.([]store.AudienceProfile)
			out := list[:0:0]
			for _, p := range list {
				if p.ID != id {
					out = append(out, p)
				}
			}
			return out
		},
		func(ctx context.Context) error { return s.store.DeleteAudienceProfile(ctx, id) },
		"Audience profile deleted")
}

// --- tracked urls ---

func (s *Service) ListURLs(ctx context.Context, userID string) ([]store.TrackedURL, error) {
	snapshot, err := s.cache.Fetch(ctx, urlsKey(userID), func(ctx context.Context) (any, error) {
		urls, err := s.store.ListTrackedURLs(ctx, userID)
		if err != nil {
			return nil, err
		}
		return urls, nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot.([]store.TrackedURL), nil
}

func (s *Service) CreateURL(ctx context.Context, userID string, input TrackedURLInput) (store.TrackedURL, error) {
	if strings.TrimSpace(input.VideoChannelURL) == "" {
		return store.TrackedURL{}, domainError(422, "VALIDATION_ERROR", "video_channel_url is required", nil)
	}
	now := time.Now()
	tracked := store.TrackedURL{
		ID:              util.NewRowID(),
		UserID:          userID,
		VideoChannelURL: input.VideoChannelURL,
		URLType:         input.URLType,
		IsTracked:       true,
		ReferenceFor:    input.ReferenceFor,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if input.IsTracked != nil {
		tracked.IsTracked = *input.IsTracked
	}
	err := s.runOptimistic(ctx, urlsKey(userID),
		func(current any) any {
			return append([]store.TrackedURL{tracked}, current.([]store.TrackedURL)...)
		},
		func(ctx context.Context) error { return s.store.InsertTrackedURL(ctx, tracked) },
		"URL added")
	if err != nil {
		return store.TrackedURL{}, err
	}
	return tracked, nil
}

func (s *Service) UpdateURL(ctx context.Context, userID, id string, input TrackedURLInput) (store.TrackedURL, error) {
	urls, err := s.store.ListTrackedURLs(ctx, userID)
	if err != nil {
		return store.TrackedURL{}, err
	}
	var current store.TrackedURL
	found := false
	for _, u := range urls {
		if u.ID == id {
			current = u
			found = true
			break
		}
	}
	if !found {
		return store.TrackedURL{}, domainError(404, "NOT_FOUND", "Not found", nil)
	}

	next := current
	if input.VideoChannelURL != "" {
		next.VideoChannelURL = input.VideoChannelURL
	}
	if input.URLType != "" {
		next.URLType = input.URLType
	}
	if input.IsTracked != nil {
		next.IsTracked = *input.IsTracked
	}
	if input.ReferenceFor != nil {
		next.ReferenceFor = input.ReferenceFor
	}
	next.UpdatedAt = time.Now()

	err = s.runOptimistic(ctx, urlsKey(userID),
		func(currentSnap any) any {
			list := currentSnap.([]store.TrackedURL)
			out := make([]store.TrackedURL, len(list))
			copy(out, list)
			for i := range out {
				if out[i].ID == next.ID {
					out[i] = next
				}
			}
			return out
		},
		func(ctx context.Context) error { return s.store.UpdateTrackedURL(ctx, next) },
		"URL updated")
	if err != nil {
		return store.TrackedURL{}, err
	}
	return next, nil
}

func (s *Service) DeleteURL(ctx context.Context, userID, id string) error {
	return s.runOptimistic(ctx, urlsKey(userID),
		func(currentSnap any) any {
			list := currentSnap.([]store.TrackedURL)
			out := list[:0:0]
			for _, u := range list {
				if u.ID != id {
					out = append(out, u)
				}
			}
			return out
		},
		func(ctx context.Context) error { return s.store.DeleteTrackedURL(ctx, id) },
		"URL removed")
}

// --- analytics ---

// Channel and video rows come from an external scraping job. The
// service exposes read and delete only; pagination and sorting happen
// in the store.

func (s *Service) ListChannels(ctx context.Context, sortBy string, descending bool, limit, offset int) ([]store.Channel, int, error) {
	return s.store.ListChannels(ctx, sortBy, descending, limit, offset)
}

func (s *Service) DeleteChannel(ctx context.Context, id string) error {
	if err := s.store.DeleteChannel(ctx, id); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteChannel(id)
	}
	return nil
}

func (s *Service) ListVideos(ctx context.Context, sortBy string, descending bool, limit, offset int) ([]store.Video, int, error) {
	return s.store.ListVideos(ctx, sortBy, descending, limit, offset)
}

func (s *Service) DeleteVideo(ctx context.Context, id string) error {
	if err := s.store.DeleteVideo(ctx, id); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteVideo(id)
	}
	return nil
}

// --- profile ---

func (s *Service) Profile(ctx context.Context, userID string) (store.User, error) {
	return s.store.GetUserByID(ctx, userID)
}

func (s *Service) UploadAvatar(ctx context.Context, userID, contentType string, body io.Reader, size int64) (string, error) {
	if s.avatars == nil {
		return "", domainError(503, "UNAVAILABLE", "avatar storage is not configured", nil)
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return "", err
	}
	avatarURL, err := s.avatars.Upload(ctx, userID, contentType, body, size)
	if err != nil {
		return "", err
	}
	if err := s.store.UpdateUserAvatar(ctx, userID, avatarURL); err != nil {
		return "", err
	}
	if user.AvatarURL != "" {
		if err := s.avatars.Remove(ctx, user.AvatarURL); err != nil {
			s.notifier.Failure("Avatar cleanup failed", err.Error())
		}
	}
	return avatarURL, nil
}

// --- search ---

func (s *Service) Search(q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(q)
}
