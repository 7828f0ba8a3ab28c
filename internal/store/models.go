package store

import "time"

type User struct {
	ID           string
	DisplayName  string
	Email        string
	PasswordHash string
	AvatarURL    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ScriptIdea is one card on the pipeline board. publish_date is kept
// as entered (a local ISO datetime string) and is non-empty only for
// Scheduled records. age_group and gender mirror the linked audience
// profile and are never hand-edited.
type ScriptIdea struct {
	ID                       string
	UserID                   string
	Title                    string
	Description              string
	TargetDuration           string
	Account                  string
	Status                   string
	TargetAudiences          string
	GeneratedTitle           string
	GeneratedScriptLink      string
	GeneratedThumbnail       string
	GeneratedThumbnailPrompt string
	VideoType                string
	Notes                    string
	PublishDate              string
	AgeGroup                 string
	Gender                   string
	CreatedAt                time.Time
}

// ChannelAccount references an audience profile by name, not id. A
// dangling reference is possible and tolerated downstream.
type ChannelAccount struct {
	ID              string
	UserID          string
	ChannelID       string
	ChannelURL      string
	Status          string
	TargetAudiences string
	CreatedAt       time.Time
}

type AudienceProfile struct {
	ID                  string
	UserID              string
	AudienceProfileName string
	AgeGroup            string
	GeographicRegion    string
	Gender              string
	Interests           string
	PrimaryMotivation   string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type TrackedURL struct {
	ID              string
	UserID          string
	VideoChannelURL string
	URLType         string
	IsTracked       bool
	ReferenceFor    *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Channel rows are written by an external scraping job; this service
// only reads and deletes them.
type Channel struct {
	ID                 string
	ChannelID          string
	ChannelTitle       string
	ChannelDescription string
	ChannelAvatarURL   string
	SubscriberCount    int64
	ViewCount          int64
	VideoCount         int64
	ChannelPublishedAt *time.Time
	ChannelCountry     string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Video rows are written by the same external scraping job.
type Video struct {
	ID                string
	VideoID           string
	ChannelID         string
	VideoTitle        string
	VideoDescription  string
	VideoThumbnailURL string
	VideoURL          string
	VideoPublishedAt  *time.Time
	ViewCount         int64
	LikeCount         int64
	CommentCount      int64
	Duration          string
	Tags              string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
