// Package audience normalizes the target_audiences column.
//
// Historically the column held either a plain profile name or a
// JSON-encoded list of names. Normalization happens once at the
// data-access boundary; the rest of the code only ever sees the
// plain form.
package audience

import (
	"encoding/json"
	"strings"
)

type Kind int

const (
	Plain Kind = iota
	LegacyList
)

// Ref is the parsed form of a target_audiences value.
type Ref struct {
	Kind  Kind
	Name  string
	Names []string // populated only for LegacyList
}

// Parse classifies a raw target_audiences value. Malformed JSON is
// treated as a plain name, never an error.
func Parse(raw string) Ref {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Ref{Kind: Plain}
	}
	if strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{") {
		var names []string
		if err := json.Unmarshal([]byte(trimmed), &names); err == nil {
			return Ref{Kind: LegacyList, Name: first(names), Names: names}
		}
		var single string
		if err := json.Unmarshal([]byte(trimmed), &single); err == nil {
			return Ref{Kind: Plain, Name: single}
		}
		return Ref{Kind: Plain, Name: trimmed}
	}
	return Ref{Kind: Plain, Name: trimmed}
}

// Normalize collapses a raw value to the single profile name stored
// going forward. Legacy lists collapse to their first entry.
func Normalize(raw string) string {
	return Parse(raw).Name
}

// List returns all referenced profile names, one for the plain form.
func (r Ref) List() []string {
	if r.Kind == LegacyList {
		return r.Names
	}
	if r.Name == "" {
		return nil
	}
	return []string{r.Name}
}

func first(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return strings.TrimSpace(names[0])
}
