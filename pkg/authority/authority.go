// Package authority decides which source type is authoritative for each
// entity field. The baseline order is fixed by source type; deployments may
// raise a source for specific field patterns, but a user correction always
// outranks every other source.
package authority

import (
	"path/filepath"

	"github.com/agentstation/ecomap/pkg/entity"
)

// correctionRank sits above any configurable priority.
const correctionRank = 1 << 20

// Authority ranks sources per field
type Authority interface {
	// Rank returns the priority of a source type for a field. Higher wins.
	Rank(field string, sourceType entity.SourceType) int

	// Find returns the override for a field and source type, if any
	Find(field string, sourceType entity.SourceType) *Field

	// List returns all configured overrides
	List() []Field
}

// Field raises (or lowers) a source type for fields matching Path
type Field struct {
	Path     string            `json:"path" yaml:"path"`         // e.g. "location", "funding_*"
	Source   entity.SourceType `json:"source" yaml:"source"`     // Which source the override applies to
	Priority int               `json:"priority" yaml:"priority"` // Replaces the source type's base priority
}

type authorities struct {
	fields []Field
}

// New creates an Authority with the given overrides on top of the source type order.
func New(overrides ...Field) Authority {
	return &authorities{fields: append([]Field(nil), overrides...)}
}

// Rank returns the priority of a source type for a field
func (a *authorities) Rank(field string, sourceType entity.SourceType) int {
	if sourceType == entity.SourceUserCorrection {
		return correctionRank
	}
	if f := a.Find(field, sourceType); f != nil {
		return f.Priority
	}
	return sourceType.Priority()
}

// Find returns the most specific override for field and source type
func (a *authorities) Find(field string, sourceType entity.SourceType) *Field {
	var candidates []Field
	for _, f := range a.fields {
		if f.Source == sourceType {
			candidates = append(candidates, f)
		}
	}
	return ByField(field, candidates)
}

// List returns all configured overrides
func (a *authorities) List() []Field {
	return append([]Field(nil), a.fields...)
}

// ByField returns the best matching authority for a given field path.
// Longer patterns are more specific; ties go to the higher priority.
func ByField(fieldPath string, authorities []Field) *Field {
	var bestMatch *Field
	bestLength := -1

	for i, auth := range authorities {
		if !MatchesPattern(fieldPath, auth.Path) {
			continue
		}
		length := len(auth.Path)
		if length > bestLength || (length == bestLength && auth.Priority > bestMatch.Priority) {
			bestMatch = &authorities[i]
			bestLength = length
		}
	}
	return bestMatch
}

// MatchesPattern checks if a field path matches a pattern (supports * wildcards)
func MatchesPattern(fieldPath, pattern string) bool {
	if fieldPath == pattern {
		return true
	}
	if len(pattern) > 0 && pattern[len(pattern)-1] == '*' {
		prefix := pattern[:len(pattern)-1]
		return len(fieldPath) >= len(prefix) && fieldPath[:len(prefix)] == prefix
	}
	matched, err := filepath.Match(pattern, fieldPath)
	if err != nil {
		return false
	}
	return matched
}
