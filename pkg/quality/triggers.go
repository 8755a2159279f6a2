package quality

import (
	"slices"
	"time"

	"github.com/agentstation/ecomap/pkg/entity"
)

// Flag reasons stored in Entity.QualityFlags.
const (
	FlagMissingFields      = "missing_display_fields"
	FlagImplausibleFunding = "implausible_funding"
	FlagDisputedPrefix     = "disputed:"
	FlagRulePrefix         = "rule:"
)

// missingFields reports a name-only entity older than the grace period.
func (m *Manager) missingFields(e *entity.Entity, now time.Time) bool {
	return e.MissingDisplayFields() && now.Sub(e.CreatedAt.Time) > m.opts.missingFieldsAfter
}

// implausibleFunding reports a round with a negative or outsized amount or a
// date in the future.
func (m *Manager) implausibleFunding(e *entity.Entity, now time.Time) bool {
	return slices.ContainsFunc(e.FundingRounds, func(r entity.FundingRound) bool {
		if r.Amount != nil && (*r.Amount < 0 || *r.Amount > m.opts.maxFunding) {
			return true
		}
		return r.Date.After(now)
	})
}

// disputedFields returns the fields disputed by enough distinct submitters in
// unresolved reports, sorted.
func (m *Manager) disputedFields(reports []entity.UserReport) []string {
	submitters := make(map[string]map[string]struct{})
	for _, r := range reports {
		if r.Resolved() {
			continue
		}
		if submitters[r.Field] == nil {
			submitters[r.Field] = make(map[string]struct{})
		}
		submitters[r.Field][r.SubmitterRef] = struct{}{}
	}
	var fields []string
	for field, who := range submitters {
		if len(who) >= m.opts.disputeReports {
			fields = append(fields, field)
		}
	}
	slices.Sort(fields)
	return fields
}

// flags evaluates every flag trigger against e. Rule evaluation errors are
// returned alongside the flags that could be computed.
func (m *Manager) flags(e *entity.Entity, reports []entity.UserReport, now time.Time) ([]string, error) {
	var out []string
	if m.missingFields(e, now) {
		out = append(out, FlagMissingFields)
	}
	if m.implausibleFunding(e, now) {
		out = append(out, FlagImplausibleFunding)
	}
	for _, f := range m.disputedFields(reports) {
		out = append(out, FlagDisputedPrefix+f)
	}
	matched, err := m.opts.rules.Evaluate(e, now)
	for _, name := range matched {
		out = append(out, FlagRulePrefix+name)
	}
	return out, err
}

// stale reports an entity without source updates for the staleness window
// and without a growth score above the archive threshold.
func (m *Manager) stale(e *entity.Entity, now time.Time) bool {
	if now.Sub(e.SourcesUpdatedAt.Time) <= m.opts.staleness {
		return false
	}
	return e.GrowthScore == nil || *e.GrowthScore < m.opts.archiveThreshold
}

// reactivates reports whether a confident record was merged into an archived
// entity after it was archived. A record fetched before the archival but
// merged after it counts.
func (m *Manager) reactivates(e *entity.Entity, members []entity.NormalizedRecord) bool {
	if e.Absorbed() || e.ArchivedAt == nil {
		return false
	}
	return slices.ContainsFunc(members, func(r entity.NormalizedRecord) bool {
		return r.Confidence >= m.opts.reactivation && r.LandedAt().After(e.ArchivedAt.Time)
	})
}
