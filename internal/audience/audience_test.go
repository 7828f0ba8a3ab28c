package audience

import (
	"reflect"
	"testing"
)

func TestParsePlainName(t *testing.T) {
	ref := Parse("Tech Founders")
	if ref.Kind != Plain {
		t.Fatalf("expected Plain kind, got %v", ref.Kind)
	}
	if ref.Name != "Tech Founders" {
		t.Fatalf("expected name preserved, got %q", ref.Name)
	}
}

func TestParseLegacyJSONList(t *testing.T) {
	ref := Parse(`["Gamers","Parents"]`)
	if ref.Kind != LegacyList {
		t.Fatalf("expected LegacyList kind, got %v", ref.Kind)
	}
	if ref.Name != "Gamers" {
		t.Fatalf("expected first entry as primary name, got %q", ref.Name)
	}
	if !reflect.DeepEqual(ref.List(), []string{"Gamers", "Parents"}) {
		t.Fatalf("unexpected list: %v", ref.List())
	}
}

func TestParseMalformedJSONFallsBackToPlain(t *testing.T) {
	ref := Parse(`[not json at all`)
	if ref.Kind != Plain {
		t.Fatalf("expected Plain fallback, got %v", ref.Kind)
	}
	if ref.Name != "[not json at all" {
		t.Fatalf("expected raw value kept, got %q", ref.Name)
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"", ""},
		{"  Fitness Fans  ", "Fitness Fans"},
		{`["Fitness Fans"]`, "Fitness Fans"},
		{`[]`, ""},
		{`"Quoted Name"`, "Quoted Name"},
	}
	for _, tc := range cases {
		if got := Normalize(tc.raw); got != tc.want {
			t.Fatalf("Normalize(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestListForPlainAndEmpty(t *testing.T) {
	if got := Parse("Solo").List(); !reflect.DeepEqual(got, []string{"Solo"}) {
		t.Fatalf("unexpected list: %v", got)
	}
	if got := Parse("").List(); got != nil {
		t.Fatalf("expected nil list for empty value, got %v", got)
	}
}
