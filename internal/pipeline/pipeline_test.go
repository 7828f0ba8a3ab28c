package pipeline

import "testing"

func TestValidStatus(t *testing.T) {
	for _, s := range Stages {
		if !ValidStatus(s) {
			t.Fatalf("expected %q to be valid", s)
		}
	}
	if ValidStatus("Idea Generation") {
		t.Fatal("expected unknown status to be invalid")
	}
	if ValidStatus("") {
		t.Fatal("expected empty status to be invalid")
	}
}

func TestCanMoveIsLoose(t *testing.T) {
	// Drag-and-drop permits any stage-to-stage move, including
	// backwards ones.
	if !CanMove(StatusScheduled, StatusIdeaSubmitted) {
		t.Fatal("expected backwards move to be allowed")
	}
	if CanMove(StatusIdeaSubmitted, "Archived") {
		t.Fatal("expected move to unknown stage to be rejected")
	}
}

func TestBackdatesCreatedAt(t *testing.T) {
	if !BackdatesCreatedAt(StatusIdeaSubmitted, StatusContentGenerated) {
		t.Fatal("expected backdate for Idea Submitted -> Content Generated")
	}
	if BackdatesCreatedAt(StatusReviewed, StatusContentGenerated) {
		t.Fatal("expected no backdate from Reviewed")
	}
	if BackdatesCreatedAt(StatusIdeaSubmitted, StatusReviewed) {
		t.Fatal("expected no backdate for other targets")
	}
}

func TestResolveApproval(t *testing.T) {
	status, date := ResolveApproval(true, "2025-01-01T10:00")
	if status != StatusScheduled || date != "2025-01-01T10:00" {
		t.Fatalf("expected Scheduled with date preserved, got %q %q", status, date)
	}

	status, date = ResolveApproval(false, "2025-01-01T10:00")
	if status != StatusReviewed || date != "" {
		t.Fatalf("expected Reviewed with cleared date, got %q %q", status, date)
	}

	status, date = ResolveApproval(true, "  ")
	if status != StatusReviewed || date != "" {
		t.Fatalf("expected approval without date to stay Reviewed, got %q %q", status, date)
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct{ in, want string }{
		{"10", "10 mins"},
		{"10 mins", "10 mins"},
		{"about 10", "about 10"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := FormatDuration(tc.in); got != tc.want {
			t.Fatalf("FormatDuration(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
