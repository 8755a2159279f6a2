package entity

import (
	"sort"
	"strings"
	"time"
)

// RoundType is a normalized funding round label.
type RoundType string

// Funding round types.
const (
	RoundPreSeed     RoundType = "pre_seed"
	RoundSeed        RoundType = "seed"
	RoundSeriesA     RoundType = "series_a"
	RoundSeriesB     RoundType = "series_b"
	RoundSeriesC     RoundType = "series_c"
	RoundSeriesD     RoundType = "series_d"
	RoundSeriesEPlus RoundType = "series_e_plus"
	RoundIPO         RoundType = "ipo"
	RoundGrant       RoundType = "grant"
	RoundOther       RoundType = "other"
)

// ParseRoundType normalizes labels such as "Series A", "series-a" or "Pre-Seed".
// Unknown labels map to RoundOther.
func ParseRoundType(s string) RoundType {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	switch key {
	case "pre_seed", "preseed", "angel":
		return RoundPreSeed
	case "seed":
		return RoundSeed
	case "series_a", "a":
		return RoundSeriesA
	case "series_b", "b":
		return RoundSeriesB
	case "series_c", "c":
		return RoundSeriesC
	case "series_d", "d":
		return RoundSeriesD
	case "series_e", "series_f", "series_g", "series_e_plus":
		return RoundSeriesEPlus
	case "ipo", "public":
		return RoundIPO
	case "grant", "government_grant":
		return RoundGrant
	default:
		return RoundOther
	}
}

// FundingRound is a single financing event reported by one source.
type FundingRound struct {
	RoundType RoundType `json:"round_type" yaml:"round_type"`
	Amount    *float64  `json:"amount,omitempty" yaml:"amount,omitempty"`
	Currency  string    `json:"currency,omitempty" yaml:"currency,omitempty"`
	Date      time.Time `json:"date" yaml:"date"`
	SourceID  string    `json:"source_id" yaml:"source_id"`
}

// SameRound reports whether two rounds describe the same event: equal round
// type and dates no further apart than tolerance.
func (f FundingRound) SameRound(other FundingRound, tolerance time.Duration) bool {
	if f.RoundType != other.RoundType {
		return false
	}
	d := f.Date.Sub(other.Date)
	if d < 0 {
		d = -d
	}
	return d <= tolerance
}

// SortRounds orders rounds chronologically, breaking ties by type then source.
func SortRounds(rounds []FundingRound) {
	sort.SliceStable(rounds, func(i, j int) bool {
		if !rounds[i].Date.Equal(rounds[j].Date) {
			return rounds[i].Date.Before(rounds[j].Date)
		}
		if rounds[i].RoundType != rounds[j].RoundType {
			return rounds[i].RoundType < rounds[j].RoundType
		}
		return rounds[i].SourceID < rounds[j].SourceID
	})
}
