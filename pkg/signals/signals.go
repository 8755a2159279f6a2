// Package signals turns raw growth indicators into a bounded composite growth
// score. Every raw signal is normalized on its own, grouped into weighted
// components, and the weights of missing components are redistributed over
// the present ones, so sparse entities are not penalized for what nobody
// measured. Scoring is a pure function of the entity and its signal bundle.
package signals

import (
	"maps"
	"slices"

	"github.com/agentstation/ecomap/pkg/entity"
	"github.com/agentstation/ecomap/pkg/errors"
)

// Component is a weighted group of related signals.
type Component string

// Score components.
const (
	Headcount Component = "headcount"
	Traffic   Component = "traffic"
	Code      Component = "code"
	Hiring    Component = "hiring"
	Press     Component = "press"
)

// Components lists every component in scoring order.
var Components = []Component{Headcount, Traffic, Code, Hiring, Press}

// Raw signal names.
const (
	HeadcountGrowth     = "headcount_growth_12m_pct"
	WebTrafficTrend     = "web_traffic_trend"
	GitHubStars         = "github_stars"
	GitHubCommits       = "github_commits_90d"
	GitHubReleases      = "github_releases_90d"
	HiringPosts         = "hiring_posts"
	HiringRoleDiversity = "hiring_role_diversity"
	PressMentions       = "press_mentions_90d"
)

// Definition binds a raw signal to its component and transform.
type Definition struct {
	Name      string
	Component Component
	Transform Transform
}

// Definitions is the default signal set. Ceilings are where a signal stops
// adding to its sub-score.
var Definitions = []Definition{
	{Name: HeadcountGrowth, Component: Headcount, Transform: Saturating(100)},
	{Name: WebTrafficTrend, Component: Traffic, Transform: Linear(-1, 1)},
	{Name: GitHubStars, Component: Code, Transform: Saturating(10_000)},
	{Name: GitHubCommits, Component: Code, Transform: Saturating(500)},
	{Name: GitHubReleases, Component: Code, Transform: Saturating(12)},
	{Name: HiringPosts, Component: Hiring, Transform: Saturating(50)},
	{Name: HiringRoleDiversity, Component: Hiring, Transform: Saturating(10)},
	{Name: PressMentions, Component: Press, Transform: Saturating(20)},
}

// Weights maps components to their share of the composite.
type Weights map[Component]float64

// DefaultWeights returns the standard component weights.
func DefaultWeights() Weights {
	return Weights{
		Headcount: 0.35,
		Traffic:   0.25,
		Code:      0.15,
		Hiring:    0.15,
		Press:     0.10,
	}
}

// Validate checks that every weight is non-negative and at least one is positive.
func (w Weights) Validate() error {
	total := 0.0
	for c, v := range w {
		if !slices.Contains(Components, c) {
			return errors.NewValidationError("weights", c, "unknown component")
		}
		if v < 0 {
			return errors.NewValidationError("weights", v, "weight of "+string(c)+" is negative")
		}
		total += v
	}
	if total <= 0 {
		return errors.NewValidationError("weights", w, "no positive weight")
	}
	return nil
}

// Score is a composite growth score with the share of the total weight it rests on.
type Score struct {
	Value      float64               `json:"value" yaml:"value"`
	Confidence float64               `json:"confidence" yaml:"confidence"`
	Components map[Component]float64 `json:"components" yaml:"components"`
}

// Scorer computes growth scores for one weight configuration.
type Scorer struct {
	weights     Weights
	definitions []Definition
}

// NewScorer creates a Scorer. Nil weights select the defaults.
func NewScorer(weights Weights) (*Scorer, error) {
	if weights == nil {
		weights = DefaultWeights()
	}
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{weights: maps.Clone(weights), definitions: Definitions}, nil
}

var defaultScorer, _ = NewScorer(nil)

// ComputeGrowthScore scores e with the default weights. It reports false when
// no signal is present.
func ComputeGrowthScore(e *entity.Entity, bundle entity.SignalBundle) (Score, bool) {
	return defaultScorer.Score(e, bundle)
}

// Score computes the composite score of e from bundle, falling back to the
// entity's own headcount and hiring fields for signals the bundle lacks.
func (s *Scorer) Score(e *entity.Entity, bundle entity.SignalBundle) (Score, bool) {
	return s.Composite(s.SubScores(e, bundle))
}

// SubScores returns the sub-score of every component that has at least one
// present signal: the mean of its transformed raw values.
func (s *Scorer) SubScores(e *entity.Entity, bundle entity.SignalBundle) map[Component]float64 {
	raw := Observed(e, bundle)
	sums := make(map[Component]float64)
	counts := make(map[Component]int)
	for _, d := range s.definitions {
		v, ok := raw[d.Name]
		if !ok {
			continue
		}
		sums[d.Component] += d.Transform(v)
		counts[d.Component]++
	}
	out := make(map[Component]float64, len(counts))
	for c, n := range counts {
		out[c] = sums[c] / float64(n)
	}
	return out
}

// Composite combines component sub-scores: the weighted mean over present
// components, scaled to [0,100]. Confidence is the present weight over the
// total weight. It reports false when no weighted component is present.
func (s *Scorer) Composite(sub map[Component]float64) (Score, bool) {
	var total, present, weighted float64
	for _, c := range Components {
		w := s.weights[c]
		total += w
		v, ok := sub[c]
		if !ok || w == 0 {
			continue
		}
		present += w
		weighted += w * clamp(v, 0, 1)
	}
	if present == 0 {
		return Score{}, false
	}
	return Score{
		Value:      clamp(weighted/present*100, 0, 100),
		Confidence: present / total,
		Components: maps.Clone(sub),
	}, true
}

// Observed returns the raw value of every known signal: the bundle's value,
// or the entity's own field when the bundle lacks one. Unknown stays absent;
// a zero observation is kept.
func Observed(e *entity.Entity, bundle entity.SignalBundle) map[string]float64 {
	out := make(map[string]float64, len(bundle)+2)
	for name, sig := range bundle {
		out[name] = sig.Value
	}
	if e == nil {
		return out
	}
	if _, ok := out[HeadcountGrowth]; !ok && e.HeadcountGrowth12mPct != nil {
		out[HeadcountGrowth] = *e.HeadcountGrowth12mPct
	}
	if _, ok := out[HiringRoleDiversity]; !ok && e.IsHiring != nil && *e.IsHiring && len(e.HiringRoles) > 0 {
		out[HiringRoleDiversity] = float64(len(e.HiringRoles))
	}
	return out
}
