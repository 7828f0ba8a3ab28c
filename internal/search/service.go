package search

import (
	"context"

	"github.com/charmbracelet/log"
)

// Service is the facade that tries Meilisearch first and falls back to
// Postgres FTS.
type Service struct {
	meili *Meili
	pgfts *PgFTS
}

// NewService creates a search service. meili may be nil if Meilisearch
// is not configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Warn("meilisearch error, falling back to pgfts", "error", err)
	}

	results, total, err := s.pgfts.Search(q)
	if err != nil {
		log.Error("pgfts search", "error", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexIdea pushes one script idea into Meilisearch, fire-and-forget.
func (s *Service) IndexIdea(rec IdeaRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexIdea(rec); err != nil {
			log.Warn("index idea", "id", rec.ID, "error", err)
		}
	}()
}

// DeleteIdea removes a script idea from the index, fire-and-forget.
func (s *Service) DeleteIdea(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteIdea(id); err != nil {
			log.Warn("delete idea from index", "id", id, "error", err)
		}
	}()
}

// DeleteVideo removes a video from the index, fire-and-forget.
func (s *Service) DeleteVideo(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteVideo(id); err != nil {
			log.Warn("delete video from index", "id", id, "error", err)
		}
	}()
}

// DeleteChannel removes a channel from the index, fire-and-forget.
func (s *Service) DeleteChannel(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteChannel(id); err != nil {
			log.Warn("delete channel from index", "id", id, "error", err)
		}
	}()
}

// ReindexAllFromPG reads every searchable row from Postgres and pushes
// it into Meilisearch. Called at startup when Meilisearch is healthy.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	ideas, videos, channels, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		log.Error("reindex load", "error", err)
		return
	}
	if err := s.meili.IndexIdeas(ideas); err != nil {
		log.Warn("reindex ideas", "error", err)
	}
	if err := s.meili.IndexVideos(videos); err != nil {
		log.Warn("reindex videos", "error", err)
	}
	if err := s.meili.IndexChannels(channels); err != nil {
		log.Warn("reindex channels", "error", err)
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
