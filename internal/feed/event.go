// Package feed carries row-level change events for script ideas from
// writers to every connected session, and applies them to the local
// snapshot cache in arrival order.
package feed

import (
	"time"

	"scriptflow/api/internal/store"
)

const (
	EventInsert = "insert"
	EventUpdate = "update"
	EventDelete = "delete"
)

// Record is the wire shape of one script idea row inside a change
// event.
type Record struct {
	ID                       string    `json:"id"`
	UserID                   string    `json:"user_id"`
	Title                    string    `json:"title"`
	Description              string    `json:"description"`
	TargetDuration           string    `json:"target_duration"`
	Account                  string    `json:"account"`
	Status                   string    `json:"status"`
	TargetAudiences          string    `json:"target_audiences"`
	GeneratedTitle           string    `json:"generated_title"`
	GeneratedScriptLink      string    `json:"generated_script_link"`
	GeneratedThumbnail       string    `json:"generated_thumbnail"`
	GeneratedThumbnailPrompt string    `json:"generated_thumbnail_prompt"`
	VideoType                string    `json:"video_type"`
	Notes                    string    `json:"notes"`
	PublishDate              string    `json:"publish_date"`
	AgeGroup                 string    `json:"age_group"`
	Gender                   string    `json:"gender"`
	CreatedAt                time.Time `json:"created_at"`
}

// Event is one change-feed message. New is set for inserts and
// updates, Old for updates and deletes.
type Event struct {
	Type string  `json:"event_type"`
	New  *Record `json:"new,omitempty"`
	Old  *Record `json:"old,omitempty"`
}

func RecordFromIdea(idea store.ScriptIdea) Record {
	return Record{
		ID:                       idea.ID,
		UserID:                   idea.UserID,
		Title:                    idea.Title,
		Description:              idea.Description,
		TargetDuration:           idea.TargetDuration,
		Account:                  idea.Account,
		Status:                   idea.Status,
		TargetAudiences:          idea.TargetAudiences,
		GeneratedTitle:           idea.GeneratedTitle,
		GeneratedScriptLink:      idea.GeneratedScriptLink,
		GeneratedThumbnail:       idea.GeneratedThumbnail,
		GeneratedThumbnailPrompt: idea.GeneratedThumbnailPrompt,
		VideoType:                idea.VideoType,
		Notes:                    idea.Notes,
		PublishDate:              idea.PublishDate,
		AgeGroup:                 idea.AgeGroup,
		Gender:                   idea.Gender,
		CreatedAt:                idea.CreatedAt,
	}
}

// Idea converts the wire record back to the storage shape.
func (r Record) Idea() store.ScriptIdea {
	return store.ScriptIdea{
		ID:                       r.ID,
		UserID:                   r.UserID,
		Title:                    r.Title,
		Description:              r.Description,
		TargetDuration:           r.TargetDuration,
		Account:                  r.Account,
		Status:                   r.Status,
		TargetAudiences:          r.TargetAudiences,
		GeneratedTitle:           r.GeneratedTitle,
		GeneratedScriptLink:      r.GeneratedScriptLink,
		GeneratedThumbnail:       r.GeneratedThumbnail,
		GeneratedThumbnailPrompt: r.GeneratedThumbnailPrompt,
		VideoType:                r.VideoType,
		Notes:                    r.Notes,
		PublishDate:              r.PublishDate,
		AgeGroup:                 r.AgeGroup,
		Gender:                   r.Gender,
		CreatedAt:                r.CreatedAt,
	}
}
