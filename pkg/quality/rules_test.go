package quality

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/ecomap/pkg/entity"
	"github.com/agentstation/ecomap/pkg/errors"
	"github.com/agentstation/ecomap/pkg/store/storetest"
)

func TestCompileRules(t *testing.T) {
	tests := []struct {
		name    string
		rules   []Rule
		wantErr func(error) bool
	}{
		{
			name:  "valid",
			rules: []Rule{{Name: "a", Expression: `entity.sources < 2`}, {Name: "b", Expression: `entity.name == ""`}},
		},
		{
			name:  "dyn output is accepted",
			rules: []Rule{{Name: "a", Expression: `entity.has_location`}},
		},
		{
			name:    "missing name",
			rules:   []Rule{{Expression: `true`}},
			wantErr: errors.IsValidationError,
		},
		{
			name:    "duplicate name",
			rules:   []Rule{{Name: "a", Expression: `true`}, {Name: "a", Expression: `false`}},
			wantErr: errors.IsValidationError,
		},
		{
			name:    "non-bool output",
			rules:   []Rule{{Name: "a", Expression: `1 + 2`}},
			wantErr: errors.IsValidationError,
		},
		{
			name:  "syntax error",
			rules: []Rule{{Name: "a", Expression: `entity.name ==`}},
			wantErr: func(err error) bool {
				var pe *errors.ParseError
				return errors.As(err, &pe) && pe.Format == "cel"
			},
		},
		{
			name:  "unknown variable",
			rules: []Rule{{Name: "a", Expression: `company.name == ""`}},
			wantErr: func(err error) bool {
				var pe *errors.ParseError
				return errors.As(err, &pe)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs, err := CompileRules(tt.rules)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, tt.wantErr(err), "unexpected error: %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, len(tt.rules), rs.Len())
		})
	}
}

func TestRuleSetEvaluate(t *testing.T) {
	now := created.AddDate(0, 0, 45)
	rs, err := CompileRules([]Rule{
		{Name: "zeta_old", Expression: `entity.age_days > 30.0`},
		{Name: "alpha_unscored", Expression: `entity.growth_score < 0.0`},
		{Name: "never", Expression: `entity.status == "archived"`},
		{Name: "broken", Expression: `entity.missing_key == 1`},
	})
	require.NoError(t, err)

	e := storetest.TestEntity(t, "e", "Acme")
	matched, err := rs.Evaluate(e, now)
	assert.Equal(t, []string{"alpha_unscored", "zeta_old"}, matched)
	require.Error(t, err, "a rule referencing an absent key fails on its own")

	e.GrowthScore = entity.Ptr(40.0)
	matched, _ = rs.Evaluate(e, now)
	assert.Equal(t, []string{"zeta_old"}, matched)

	var empty *RuleSet
	matched, err = empty.Evaluate(e, now)
	assert.NoError(t, err)
	assert.Empty(t, matched)
}

func TestFacts(t *testing.T) {
	now := created.Add(72 * time.Hour)
	e := storetest.TestEntity(t, "e", "Acme")
	e.FoundedYear = 2019
	e.Lat, e.Lon = entity.Ptr(37.5), entity.Ptr(127.0)
	e.FundingRounds = []entity.FundingRound{
		{RoundType: entity.RoundSeed, Amount: entity.Ptr(1e6), Date: created},
		{RoundType: entity.RoundSeriesA, Date: created},
	}

	f := Facts(e, now)
	assert.Equal(t, "startup", f["type"])
	assert.Equal(t, int64(2019), f["founded_year"])
	assert.Equal(t, true, f["has_location"])
	assert.Equal(t, int64(2), f["funding_rounds"])
	assert.Equal(t, 1e6, f["funding_total"])
	assert.Equal(t, -1.0, f["growth_score"])
	assert.Equal(t, int64(1), f["sources"])
	assert.InDelta(t, 3.0, f["age_days"], 1e-9)
	assert.InDelta(t, 3.0, f["stale_days"], 1e-9)
}

func TestLoadRules(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid file", func(t *testing.T) {
		path := filepath.Join(dir, "rules.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`rules:
  - name: investor_without_funding
    expression: entity.type == "investor" && entity.funding_rounds == 0
    description: Investors should list at least one round
  - name: unlocated_space
    expression: entity.type == "space" && !entity.has_location
`), 0o600))

		rs, err := LoadRules(path)
		require.NoError(t, err)
		assert.Equal(t, 2, rs.Len())
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadRules(filepath.Join(dir, "nope.yaml"))
		var ioErr *errors.IOError
		assert.True(t, errors.As(err, &ioErr))
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("rules: [\n  - name: x\n"), 0o600))
		_, err := LoadRules(path)
		var pe *errors.ParseError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, "yaml", pe.Format)
	})
}
