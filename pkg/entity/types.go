// Package entity defines the data model shared by every stage of the pipeline:
// raw and normalized records, canonical entities, funding rounds, growth
// signals, user corrections and quality audit events.
package entity

import "strings"

// Type is the kind of real-world organization or happening an entity describes.
type Type string

// Entity types.
const (
	TypeStartup     Type = "startup"
	TypeInvestor    Type = "investor"
	TypeAccelerator Type = "accelerator"
	TypeSpace       Type = "space"
	TypeEvent       Type = "event"
)

// Types lists every valid entity type.
var Types = []Type{TypeStartup, TypeInvestor, TypeAccelerator, TypeSpace, TypeEvent}

// Valid reports whether t is one of the known entity types.
func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// String returns the string representation of the type.
func (t Type) String() string {
	return string(t)
}

// SourceType classifies where a record came from. It fixes the priority used
// for field-level conflict resolution.
type SourceType string

// Source types, highest priority first.
const (
	SourceUserCorrection  SourceType = "user_correction"
	SourcePermissionedAPI SourceType = "permissioned_api"
	SourceGovernment      SourceType = "government"
	SourceWebCrawl        SourceType = "web_crawl"
	SourceInferred        SourceType = "inferred"
)

// SourceTypes lists every source type, highest priority first.
var SourceTypes = []SourceType{
	SourceUserCorrection,
	SourcePermissionedAPI,
	SourceGovernment,
	SourceWebCrawl,
	SourceInferred,
}

var sourceTypeAliases = map[string]SourceType{
	"user_correction":  SourceUserCorrection,
	"user":             SourceUserCorrection,
	"correction":       SourceUserCorrection,
	"permissioned_api": SourcePermissionedAPI,
	"api":              SourcePermissionedAPI,
	"partner":          SourcePermissionedAPI,
	"government":       SourceGovernment,
	"gov":              SourceGovernment,
	"public_data":      SourceGovernment,
	"web_crawl":        SourceWebCrawl,
	"crawl":            SourceWebCrawl,
	"scraper":          SourceWebCrawl,
	"inferred":         SourceInferred,
	"derived":          SourceInferred,
}

// ParseSourceType maps a raw source type label to a SourceType.
func ParseSourceType(s string) (SourceType, bool) {
	st, ok := sourceTypeAliases[strings.ToLower(strings.TrimSpace(s))]
	return st, ok
}

// Priority returns the merge priority of the source type. Higher wins.
func (s SourceType) Priority() int {
	switch s {
	case SourceUserCorrection:
		return 5
	case SourcePermissionedAPI:
		return 4
	case SourceGovernment:
		return 3
	case SourceWebCrawl:
		return 2
	case SourceInferred:
		return 1
	default:
		return 0
	}
}

// Confidence returns the default confidence of a record from this source type.
func (s SourceType) Confidence() float64 {
	switch s {
	case SourceUserCorrection:
		return 1.0
	case SourcePermissionedAPI:
		return 0.9
	case SourceGovernment:
		return 0.8
	case SourceWebCrawl:
		return 0.6
	case SourceInferred:
		return 0.4
	default:
		return 0
	}
}

// Valid reports whether s is a known source type.
func (s SourceType) Valid() bool {
	return s.Priority() > 0
}

// Status is the quality lifecycle state of an entity.
type Status string

// Entity statuses.
const (
	StatusActive   Status = "active"
	StatusFlagged  Status = "flagged"
	StatusArchived Status = "archived"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusFlagged || s == StatusArchived
}
