package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"scriptflow/api/internal/auth"
	"scriptflow/api/internal/authpw"
	"scriptflow/api/internal/avatars"
	"scriptflow/api/internal/cache"
	"scriptflow/api/internal/config"
	"scriptflow/api/internal/feed"
	"scriptflow/api/internal/notify"
	"scriptflow/api/internal/pipeline"
	"scriptflow/api/internal/poller"
	"scriptflow/api/internal/search"
	"scriptflow/api/internal/session"
	"scriptflow/api/internal/store"
	"scriptflow/api/internal/util"
	"scriptflow/api/internal/webhook"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	Email        string
	DisplayName  string
	JTI          string
	ExpiresAt    time.Time
}

// IdeaInput carries the editable fields of a script idea. Approved is
// a pointer so "not sent" stays distinct from an explicit withdrawal.
type IdeaInput struct {
	Title                    string `json:"title"`
	Description              string `json:"description"`
	TargetDuration           string `json:"target_duration"`
	Account                  string `json:"account"`
	Status                   string `json:"status"`
	TargetAudiences          string `json:"target_audiences"`
	GeneratedTitle           string `json:"generated_title"`
	GeneratedScriptLink      string `json:"generated_script_link"`
	GeneratedThumbnail       string `json:"generated_thumbnail"`
	GeneratedThumbnailPrompt string `json:"generated_thumbnail_prompt"`
	VideoType                string `json:"video_type"`
	Notes                    string `json:"notes"`
	PublishDate              string `json:"publish_date"`
	Approved                 *bool  `json:"approved,omitempty"`
}

// GenerateIdeaInput describes an idea-generation request. The user
// picks a channel, duration and audience; title and description come
// back asynchronously through the record store.
type GenerateIdeaInput struct {
	Account        string `json:"account"`
	Duration       string `json:"duration"`
	TargetAudience string `json:"target_audience"`
}

type AccountInput struct {
	ChannelID       string `json:"channel_id"`
	ChannelURL      string `json:"channel_url"`
	Status          string `json:"status"`
	TargetAudiences string `json:"target_audiences"`
}

type AudienceInput struct {
	AudienceProfileName string `json:"audience_profile_name"`
	AgeGroup            string `json:"age_group"`
	GeographicRegion    string `json:"geographic_region"`
	Gender              string `json:"gender"`
	Interests           string `json:"interests"`
	PrimaryMotivation   string `json:"primary_motivation"`
}

type TrackedURLInput struct {
	VideoChannelURL string  `json:"video_channel_url"`
	URLType         string  `json:"url_type"`
	IsTracked       *bool   `json:"is_tracked,omitempty"`
	ReferenceFor    *string `json:"reference_for,omitempty"`
}

type dataStore interface {
	Ping(ctx context.Context) error

	GetUserByID(ctx context.Context, id string) (store.User, error)
	UpdateUserAvatar(ctx context.Context, userID, avatarURL string) error

	ListScriptIdeas(ctx context.Context, userID string) ([]store.ScriptIdea, error)
	GetScriptIdea(ctx context.Context, id string) (store.ScriptIdea, error)
	GetScriptIdeaStatus(ctx context.Context, id string) (string, error)
	InsertScriptIdea(ctx context.Context, item store.ScriptIdea) error
	UpdateScriptIdea(ctx context.Context, item store.ScriptIdea) error
	DeleteScriptIdea(ctx context.Context, id string) error
	PipelineCounts(ctx context.Context, userID string) (map[string]int, error)
	GetAudienceProfileByName(ctx context.Context, userID, name string) (store.AudienceProfile, error)

	ListChannelAccounts(ctx context.Context, userID string) ([]store.ChannelAccount, error)
	GetChannelAccount(ctx context.Context, id string) (store.ChannelAccount, error)
	InsertChannelAccount(ctx context.Context, item store.ChannelAccount) error
	UpdateChannelAccount(ctx context.Context, item store.ChannelAccount) error
	DeleteChannelAccount(ctx context.Context, id string) error

	ListAudienceProfiles(ctx context.Context, userID string) ([]store.AudienceProfile, error)
	InsertAudienceProfile(ctx context.Context, p store.AudienceProfile) error
	UpdateAudienceProfile(ctx context.Context, p store.AudienceProfile) error
	DeleteAudienceProfile(ctx context.Context, id string) error

	ListTrackedURLs(ctx context.Context, userID string) ([]store.TrackedURL, error)
	InsertTrackedURL(ctx context.Context, u store.TrackedURL) error
	UpdateTrackedURL(ctx context.Context, u store.TrackedURL) error
	DeleteTrackedURL(ctx context.Context, id string) error

	ListChannels(ctx context.Context, sortBy string, descending bool, limit, offset int) ([]store.Channel, int, error)
	DeleteChannel(ctx context.Context, id string) error
	ListVideos(ctx context.Context, sortBy string, descending bool, limit, offset int) ([]store.Video, int, error)
	DeleteVideo(ctx context.Context, id string) error
}

type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type eventPublisher interface {
	Publish(ctx context.Context, event feed.Event) error
}

type completionPoller interface {
	RegisterScript(userID, ideaID string)
	RegisterIdea(userID string)
}

type avatarStore interface {
	Upload(ctx context.Context, userID, contentType string, body io.Reader, size int64) (string, error)
	Remove(ctx context.Context, avatarURL string) error
}

func ideasKey(userID string) string    { return "script_ideas:" + userID }
func accountsKey(userID string) string { return "channel_accounts:" + userID }
func profilesKey(userID string) string { return "audience_profiles:" + userID }
func urlsKey(userID string) string     { return "tracked_urls:" + userID }

// IdeasCacheKey exposes the idea-list cache key for wiring the poller
// and reconciler to the same entries the service reads.
func IdeasCacheKey(userID string) string { return ideasKey(userID) }

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	authpw   *authpw.Service
	cache    *cache.Store
	events   eventPublisher
	bus      *feed.Bus
	poller   completionPoller
	notifier notify.Notifier
	webhooks webhook.Trigger
	search   *search.Service
	avatars  avatarStore

	reconcileMu   sync.Mutex
	reconcileStop map[string]func()
}

func New(
	cfg config.Config,
	dataStore *store.PostgresStore,
	sessions *session.RedisStore,
	authService *authpw.Service,
	cacheStore *cache.Store,
	bus *feed.Bus,
	completion *poller.Poller,
	notifier notify.Notifier,
	webhooks webhook.Trigger,
	searchService *search.Service,
	avatarStore *avatars.Store,
) *Service {
	return &Service{
		cfg:           cfg,
		store:         dataStore,
		sessions:      sessions,
		authpw:        authService,
		cache:         cacheStore,
		events:        bus,
		bus:           bus,
		poller:        completion,
		notifier:      notifier,
		webhooks:      webhooks,
		search:        searchService,
		avatars:       avatarStore,
		reconcileStop: map[string]func(){},
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authpw
}

// --- sessions ---

func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (Session, error) {
	user, err := s.authpw.SignUp(ctx, req)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, req authpw.SignInRequest) (Session, error) {
	user, err := s.authpw.SignIn(ctx, req)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	full, err := s.store.GetUserByID(ctx, user.ID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, full)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:   user.ID,
		Email: user.Email,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user, refreshExpires); err != nil {
		return Session{}, err
	}

	s.startReconcile(user.ID)

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		Email:        user.Email,
		DisplayName:  user.DisplayName,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:       token,
		UserID:      user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		JTI:         claims.JTI,
		ExpiresAt:   time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, sess Session, refreshToken string) error {
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	if sess.UserID != "" {
		s.stopReconcile(sess.UserID)
	}
	return nil
}

// startReconcile wires the user's idea list to the change feed. One
// reconciler per user; a second login reuses the running one.
func (s *Service) startReconcile(userID string) {
	if s.bus == nil {
		return
	}
	s.reconcileMu.Lock()
	defer s.reconcileMu.Unlock()
	if _, ok := s.reconcileStop[userID]; ok {
		return
	}
	rec := feed.NewReconciler(s.cache, ideasKey(userID), userID, s.notifier)
	s.reconcileStop[userID] = s.bus.StartReconciler(context.Background(), rec)
}

func (s *Service) stopReconcile(userID string) {
	s.reconcileMu.Lock()
	stop, ok := s.reconcileStop[userID]
	if ok {
		delete(s.reconcileStop, userID)
	}
	s.reconcileMu.Unlock()
	if ok {
		stop()
	}
}

// Shutdown tears down every live feed subscription.
func (s *Service) Shutdown() {
	s.reconcileMu.Lock()
	stops := make([]func(), 0, len(s.reconcileStop))
	for userID, stop := range s.reconcileStop {
		stops = append(stops, stop)
		delete(s.reconcileStop, userID)
	}
	s.reconcileMu.Unlock()
	for _, stop := range stops {
		stop()
	}
}

// --- mutation executor ---

// runOptimistic is the shared write path: apply the expected outcome
// to the cached snapshot first, then run the remote write. Success
// invalidates the key so the next read reconciles server-assigned
// fields; failure restores the pre-mutation snapshot byte for byte.
// The notification fires after the cache has settled.
func (s *Service) runOptimistic(ctx context.Context, key string, apply cache.PatchFunc, commit func(context.Context) error, action string) error {
	snapshot, had := s.cache.Read(key)
	wasFresh := s.cache.Valid(key)
	if had && apply != nil {
		s.cache.Patch(key, apply)
	}

	if err := commit(ctx); err != nil {
		if had {
			s.cache.Write(key, snapshot)
			if !wasFresh {
				s.cache.Invalidate(key)
			}
		}
		s.notifier.Failure(action+" failed", err.Error())
		return err
	}

	s.cache.Invalidate(key)
	s.notifier.Success(action, "")
	return nil
}

// --- script ideas ---

func (s *Service) ListIdeas(ctx context.Context, userID string) ([]store.ScriptIdea, error) {
	snapshot, err := s.cache.Fetch(ctx, ideasKey(userID), func(ctx context.Context) (any, error) {
		ideas, err := s.store.ListScriptIdeas(ctx, userID)
		if err != nil {
			return nil, err
		}
		return ideas, nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot.([]store.ScriptIdea), nil
}

func (s *Service) CreateIdea(ctx context.Context, userID string, input IdeaInput) (store.ScriptIdea, error) {
	if strings.TrimSpace(input.Title) == "" {
		return store.ScriptIdea{}, domainError(422, "VALIDATION_ERROR", "title is required", nil)
	}

	idea := store.ScriptIdea{
		ID:              util.NewRowID(),
		UserID:          userID,
		Title:           input.Title,
		Description:     input.Description,
		TargetDuration:  pipeline.FormatDuration(input.TargetDuration),
		Account:         input.Account,
		Status:          pipeline.StatusIdeaSubmitted,
		TargetAudiences: input.TargetAudiences,
		VideoType:       input.VideoType,
		Notes:           input.Notes,
		CreatedAt:       time.Now(),
	}
	s.mirrorAudience(ctx, userID, &idea)

	err := s.runOptimistic(ctx, ideasKey(userID),
		func(current any) any {
			return append([]store.ScriptIdea{idea}, current.([]store.ScriptIdea)...)
		},
		func(ctx context.Context) error {
			if err := s.store.InsertScriptIdea(ctx, idea); err != nil {
				return err
			}
			s.publishEvent(ctx, feed.Event{Type: feed.EventInsert, New: recordPtr(idea)})
			return nil
		},
		"Idea created")
	if err != nil {
		return store.ScriptIdea{}, err
	}
	s.indexIdea(idea)
	return idea, nil
}

// GetIdea loads a single idea, hiding rows that belong to other users
// behind the same not-found error as a missing id.
func (s *Service) GetIdea(ctx context.Context, userID, id string) (store.ScriptIdea, error) {
	idea, err := s.store.GetScriptIdea(ctx, id)
	if err != nil {
		return store.ScriptIdea{}, err
	}
	if idea.UserID != userID {
		return store.ScriptIdea{}, domainError(404, "NOT_FOUND", "Not found", nil)
	}
	return idea, nil
}

func (s *Service) UpdateIdea(ctx context.Context, userID, id string, input IdeaInput) (store.ScriptIdea, error) {
	current, err := s.store.GetScriptIdea(ctx, id)
	if err != nil {
		return store.ScriptIdea{}, err
	}
	if current.UserID != userID {
		return store.ScriptIdea{}, domainError(404, "NOT_FOUND", "Not found", nil)
	}

	next := current
	next.Title = input.Title
	next.Description = input.Description
	next.TargetDuration = pipeline.FormatDuration(input.TargetDuration)
	next.Account = input.Account
	next.TargetAudiences = input.TargetAudiences
	next.GeneratedTitle = input.GeneratedTitle
	next.GeneratedScriptLink = input.GeneratedScriptLink
	next.GeneratedThumbnail = input.GeneratedThumbnail
	next.GeneratedThumbnailPrompt = input.GeneratedThumbnailPrompt
	next.VideoType = input.VideoType
	next.Notes = input.Notes
	next.PublishDate = input.PublishDate

	if input.Status != "" {
		if !pipeline.CanMove(current.Status, input.Status) {
			return store.ScriptIdea{}, domainError(422, "VALIDATION_ERROR", "unknown pipeline stage", input.Status)
		}
		next.Status = input.Status
	}
	// Approval only means something once the card has reached review.
	// Earlier stages ignore the flag so a stray approved field on an
	// ordinary edit cannot skip the pipeline.
	if input.Approved != nil && (current.Status == pipeline.StatusReviewed || current.Status == pipeline.StatusScheduled) {
		next.Status, next.PublishDate = pipeline.ResolveApproval(*input.Approved, input.PublishDate)
	}
	if pipeline.BackdatesCreatedAt(current.Status, next.Status) {
		next.CreatedAt = time.Now()
	}
	s.mirrorAudience(ctx, userID, &next)

	err = s.runOptimistic(ctx, ideasKey(userID),
		replaceByID(next),
		func(ctx context.Context) error {
			if err := s.store.UpdateScriptIdea(ctx, next); err != nil {
				return err
			}
			s.publishEvent(ctx, feed.Event{Type: feed.EventUpdate, New: recordPtr(next), Old: recordPtr(current)})
			return nil
		},
		"Idea updated")
	if err != nil {
		return store.ScriptIdea{}, err
	}
	s.indexIdea(next)
	return next, nil
}

func (s *Service) DeleteIdea(ctx context.Context, userID, id string) error {
	current, err := s.store.GetScriptIdea(ctx, id)
	if err != nil {
		return err
	}
	if current.UserID != userID {
		return domainError(404, "NOT_FOUND", "Not found", nil)
	}

	err = s.runOptimistic(ctx, ideasKey(userID),
		removeByID(id),
		func(ctx context.Context) error {
			if err := s.store.DeleteScriptIdea(ctx, id); err != nil {
				return err
			}
			s.publishEvent(ctx, feed.Event{Type: feed.EventDelete, Old: recordPtr(current)})
			return nil
		},
		"Idea deleted")
	if err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteIdea(id)
	}
	return nil
}

// GenerateScript starts script generation for an idea. The webhook is
// the transition gate: if it fails, the status stays where it was and
// nothing is registered with the poller.
func (s *Service) GenerateScript(ctx context.Context, userID, id string) (store.ScriptIdea, error) {
	idea, err := s.store.GetScriptIdea(ctx, id)
	if err != nil {
		return store.ScriptIdea{}, err
	}
	if idea.UserID != userID {
		return store.ScriptIdea{}, domainError(404, "NOT_FOUND", "Not found", nil)
	}
	if strings.TrimSpace(idea.Title) == "" {
		s.notifier.Failure("Script generation failed", "the idea needs a title first")
		return store.ScriptIdea{}, domainError(422, "VALIDATION_ERROR", "cannot generate a script for an idea without a title", nil)
	}

	if err := s.webhooks.SendScript(ctx, webhook.ScriptRequest{
		ID:              idea.ID,
		Title:           idea.Title,
		Description:     idea.Description,
		TargetDuration:  idea.TargetDuration,
		Status:          idea.Status,
		Account:         idea.Account,
		TargetAudiences: idea.TargetAudiences,
	}); err != nil {
		s.notifier.Failure("Script generation failed", err.Error())
		return store.ScriptIdea{}, fmt.Errorf("trigger script generation: %w", err)
	}

	// The webhook call can take a while; re-read the status so a
	// concurrent move does not get a spurious created_at refresh.
	previousStatus, err := s.store.GetScriptIdeaStatus(ctx, id)
	if err != nil {
		previousStatus = idea.Status
	}
	next := idea
	next.Status = pipeline.StatusContentGenerated
	if pipeline.BackdatesCreatedAt(previousStatus, next.Status) {
		next.CreatedAt = time.Now()
	}

	err = s.runOptimistic(ctx, ideasKey(userID),
		replaceByID(next),
		func(ctx context.Context) error {
			if err := s.store.UpdateScriptIdea(ctx, next); err != nil {
				return err
			}
			s.publishEvent(ctx, feed.Event{Type: feed.EventUpdate, New: recordPtr(next), Old: recordPtr(idea)})
			return nil
		},
		"Script generation started")
	if err != nil {
		return store.ScriptIdea{}, err
	}

	s.poller.RegisterScript(userID, id)
	s.indexIdea(next)
	return next, nil
}

// GenerateIdea triggers the idea-generation webhook. The resulting row
// appears asynchronously; completion is detected purely by polling.
func (s *Service) GenerateIdea(ctx context.Context, userID string, input GenerateIdeaInput) error {
	if strings.TrimSpace(input.Account) == "" {
		return domainError(422, "VALIDATION_ERROR", "account is required", nil)
	}

	req := webhook.IdeaRequest{
		Duration:       pipeline.FormatDuration(input.Duration),
		Account:        input.Account,
		TargetAudience: input.TargetAudience,
	}

	// Enrich from the linked channel account and audience profile.
	// Either reference may dangle; blanks are sent rather than failing.
	if accounts, err := s.store.ListChannelAccounts(ctx, userID); err == nil {
		for _, account := range accounts {
			if account.ChannelID == input.Account {
				req.ChannelURL = account.ChannelURL
				if req.TargetAudience == "" {
					req.TargetAudience = account.TargetAudiences
				}
				break
			}
		}
	}
	if req.TargetAudience != "" {
		if profile, err := s.store.GetAudienceProfileByName(ctx, userID, req.TargetAudience); err == nil {
			req.AgeGroup = profile.AgeGroup
			req.Gender = profile.Gender
			req.GeographicRegion = profile.GeographicRegion
			req.Interests = profile.Interests
			req.PrimaryMotivation = profile.PrimaryMotivation
		}
	}

	if err := s.webhooks.SendIdea(ctx, req); err != nil {
		s.notifier.Failure("Idea generation failed", err.Error())
		return fmt.Errorf("trigger idea generation: %w", err)
	}

	s.poller.RegisterIdea(userID)
	s.notifier.Success("Idea generation started", "the new idea will appear shortly")
	return nil
}

func (s *Service) PipelineCounts(ctx context.Context, userID string) (map[string]int, error) {
	counts, err := s.store.PipelineCounts(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, stage := range pipeline.Stages {
		if _, ok := counts[stage]; !ok {
			counts[stage] = 0
		}
	}
	return counts, nil
}

// mirrorAudience copies age group and gender from the linked audience
// profile onto the idea. A dangling name leaves the mirrors blank.
func (s *Service) mirrorAudience(ctx context.Context, userID string, idea *store.ScriptIdea) {
	name := strings.TrimSpace(idea.TargetAudiences)
	if name == "" {
		idea.AgeGroup = ""
		idea.Gender = ""
		return
	}
	profile, err := s.store.GetAudienceProfileByName(ctx, userID, name)
	if err != nil {
		idea.AgeGroup = ""
		idea.Gender = ""
		return
	}
	idea.AgeGroup = profile.AgeGroup
	idea.Gender = profile.Gender
}

func (s *Service) publishEvent(ctx context.Context, event feed.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.notifier.Failure("Change feed publish failed", err.Error())
	}
}

func (s *Service) indexIdea(idea store.ScriptIdea) {
	if s.search == nil {
		return
	}
	s.search.IndexIdea(search.IdeaRecord{
		ID:          idea.ID,
		UserID:      idea.UserID,
		Title:       idea.Title,
		Description: idea.Description,
		Notes:       idea.Notes,
		Status:      idea.Status,
		Account:     idea.Account,
	})
}

func recordPtr(idea store.ScriptIdea) *feed.Record {
	record := feed.RecordFromIdea(idea)
	return &record
}

func replaceByID(next store.ScriptIdea) cache.PatchFunc {
	return func(current any) any {
		ideas := current.([]store.ScriptIdea)
		out := make([]store.ScriptIdea, len(ideas))
		copy(out, ideas)
		for i := range out {
			if out[i].ID == next.ID {
				out[i] = next
			}
		}
		return out
	}
}

func removeByID(id string) cache.PatchFunc {
	return func(current any) any {
		ideas := current.([]store.ScriptIdea)
		out := ideas[:0:0]
		for _, idea := range ideas {
			if idea.ID != id {
				out = append(out, idea)
			}
		}
		return out
	}
}
