package store

import (
	"sort"

	"github.com/agentstation/ecomap/pkg/entity"
)

// SortByID orders entities by ID in place.
func SortByID(es []*entity.Entity) {
	sort.Slice(es, func(i, j int) bool { return es[i].ID < es[j].ID })
}

// SortByScore orders entities by growth score, highest first, then by ID.
func SortByScore(es []*entity.Entity) {
	sort.SliceStable(es, func(i, j int) bool {
		si, sj := scoreOf(es[i]), scoreOf(es[j])
		if si != sj {
			return si > sj
		}
		return es[i].ID < es[j].ID
	})
}

// InScoreRange reports whether e has a score within [min, max].
func InScoreRange(e *entity.Entity, min, max float64) bool {
	return e.GrowthScore != nil && *e.GrowthScore >= min && *e.GrowthScore <= max
}

func scoreOf(e *entity.Entity) float64 {
	if e.GrowthScore == nil {
		return -1
	}
	return *e.GrowthScore
}
