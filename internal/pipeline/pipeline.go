// Package pipeline defines the four production stages a script idea
// moves through and the rules attached to stage changes.
package pipeline

import "strings"

// Status values are stored verbatim; the display labels and the
// database values are the same strings.
const (
	StatusIdeaSubmitted    = "Idea Submitted"
	StatusContentGenerated = "Content Generated"
	StatusReviewed         = "Reviewed"
	StatusScheduled        = "Scheduled"
)

// Stages lists the pipeline columns in board order.
var Stages = []string{
	StatusIdeaSubmitted,
	StatusContentGenerated,
	StatusReviewed,
	StatusScheduled,
}

var validStatuses = map[string]struct{}{
	StatusIdeaSubmitted:    {},
	StatusContentGenerated: {},
	StatusReviewed:         {},
	StatusScheduled:        {},
}

// ValidStatus reports whether s is one of the four pipeline stages.
func ValidStatus(s string) bool {
	_, ok := validStatuses[s]
	return ok
}

// CanMove reports whether a card may be dragged from one stage to
// another. Any stage is reachable from any stage; the board allows
// manual correction and the state machine does not enforce linear
// ordering.
func CanMove(from, to string) bool {
	return ValidStatus(to)
}

// BackdatesCreatedAt reports whether a transition to Content Generated
// resets created_at to now. Only the Idea Submitted origin sorts the
// card to the top of its new column; every other origin keeps its
// timestamp.
func BackdatesCreatedAt(previous, next string) bool {
	return next == StatusContentGenerated && previous == StatusIdeaSubmitted
}

// ResolveApproval applies the review-dialog rules for a record sitting
// at Reviewed: approval plus a publish date schedules it, anything
// else keeps (or returns) it to Reviewed with the publish date
// cleared.
func ResolveApproval(approved bool, publishDate string) (status, resolvedPublishDate string) {
	if approved && strings.TrimSpace(publishDate) != "" {
		return StatusScheduled, publishDate
	}
	return StatusReviewed, ""
}

// FormatDuration appends the conventional "mins" suffix when the
// value is a bare number.
func FormatDuration(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return trimmed
	}
	if strings.Contains(trimmed, "mins") {
		return trimmed
	}
	for _, r := range trimmed {
		if r < '0' || r > '9' {
			return trimmed
		}
	}
	return trimmed + " mins"
}
