// Package provenance records which source supplied every merged field value
// and why it won, so any canonical value can be traced back to a raw record.
package provenance

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/agentstation/ecomap/pkg/constants"
	"github.com/agentstation/ecomap/pkg/entity"
	"github.com/agentstation/ecomap/pkg/errors"
)

// Provenance describes one field-level decision.
type Provenance struct {
	SourceID      string            `yaml:"source_id"`
	SourceType    entity.SourceType `yaml:"source_type"`
	Field         string            `yaml:"field"`
	Value         any               `yaml:"value"`
	Timestamp     time.Time         `yaml:"timestamp"`
	Confidence    float64           `yaml:"confidence"`
	Reason        string            `yaml:"reason"`
	Candidates    []string          `yaml:"candidates,omitempty"` // competing source IDs with a different value
	PreviousValue any               `yaml:"previous_value,omitempty"`
}

// Map holds provenance keyed by "entityID:field".
type Map map[string][]Provenance

// Tracker collects provenance during a run. Implementations are safe for
// concurrent use by resolver workers.
type Tracker interface {
	// Track records provenance for a field
	Track(entityID, field string, p Provenance)

	// FindByField retrieves provenance for a specific field
	FindByField(entityID, field string) []Provenance

	// FindByEntity retrieves all provenance for an entity keyed by field
	FindByEntity(entityID string) map[string][]Provenance

	// Map returns a copy of the complete provenance map
	Map() Map

	// Clear removes all provenance data
	Clear()
}

type tracker struct {
	mu         sync.RWMutex
	provenance Map
	enabled    bool
}

// NewTracker creates a new provenance tracker. A disabled tracker drops everything.
func NewTracker(enabled bool) Tracker {
	return &tracker{
		provenance: make(Map),
		enabled:    enabled,
	}
}

func (t *tracker) Track(entityID, field string, p Provenance) {
	if !t.enabled {
		return
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now()
	}
	if p.Field == "" {
		p.Field = field
	}
	key := makeKey(entityID, field)

	t.mu.Lock()
	t.provenance[key] = append(t.provenance[key], p)
	t.mu.Unlock()
}

func (t *tracker) FindByField(entityID, field string) []Provenance {
	if !t.enabled {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Provenance(nil), t.provenance[makeKey(entityID, field)]...)
}

func (t *tracker) FindByEntity(entityID string) map[string][]Provenance {
	if !t.enabled {
		return nil
	}
	prefix := entityID + ":"
	result := make(map[string][]Provenance)

	t.mu.RLock()
	defer t.mu.RUnlock()
	for key, info := range t.provenance {
		if field, found := strings.CutPrefix(key, prefix); found {
			result[field] = append([]Provenance(nil), info...)
		}
	}
	return result
}

func (t *tracker) Map() Map {
	if !t.enabled {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	result := make(Map, len(t.provenance))
	for k, v := range t.provenance {
		result[k] = append([]Provenance(nil), v...)
	}
	return result
}

func (t *tracker) Clear() {
	t.mu.Lock()
	t.provenance = make(Map)
	t.mu.Unlock()
}

func makeKey(entityID, field string) string {
	return entityID + ":" + field
}

// Report groups provenance per entity and field.
type Report struct {
	Entities map[string]EntityProvenance
}

// EntityProvenance holds the field decisions for one entity.
type EntityProvenance struct {
	ID     string
	Fields map[string]Field
}

// Field contains provenance history for a single field.
type Field struct {
	Current   Provenance
	History   []Provenance
	Conflicts []ConflictInfo
}

// ConflictInfo describes a decision where sources disagreed.
type ConflictInfo struct {
	Sources        []string
	SelectedSource string
	Resolution     string
}

// GenerateReport creates a report from a Map. Newest decisions come first.
func GenerateReport(m Map) *Report {
	report := &Report{Entities: make(map[string]EntityProvenance)}

	for key, infos := range m {
		entityID, field, ok := strings.Cut(key, ":")
		if !ok {
			continue
		}
		ep, exists := report.Entities[entityID]
		if !exists {
			ep = EntityProvenance{ID: entityID, Fields: make(map[string]Field)}
		}

		history := append([]Provenance(nil), infos...)
		sort.SliceStable(history, func(i, j int) bool {
			return history[i].Timestamp.After(history[j].Timestamp)
		})

		fp := Field{History: history}
		if len(history) > 0 {
			fp.Current = history[0]
		}
		for _, p := range history {
			if len(p.Candidates) == 0 {
				continue
			}
			fp.Conflicts = append(fp.Conflicts, ConflictInfo{
				Sources:        append([]string{p.SourceID}, p.Candidates...),
				SelectedSource: p.SourceID,
				Resolution:     p.Reason,
			})
		}
		ep.Fields[field] = fp
		report.Entities[entityID] = ep
	}
	return report
}

// String renders the report for terminals.
func (r *Report) String() string {
	var sb strings.Builder
	sb.WriteString("Provenance Report\n")
	sb.WriteString("=================\n\n")

	ids := make([]string, 0, len(r.Entities))
	for id := range r.Entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		ep := r.Entities[id]
		sb.WriteString(fmt.Sprintf("entity: %s\n", id))
		sb.WriteString(strings.Repeat("-", 40))
		sb.WriteString("\n")

		fields := make([]string, 0, len(ep.Fields))
		for f := range ep.Fields {
			fields = append(fields, f)
		}
		sort.Strings(fields)

		for _, f := range fields {
			fp := ep.Fields[f]
			sb.WriteString(fmt.Sprintf("  %s: %v (from %s, %s)\n", f, fp.Current.Value, fp.Current.SourceID, fp.Current.SourceType))
			for _, c := range fp.Conflicts {
				sb.WriteString(fmt.Sprintf("    conflict %v -> %s: %s\n", c.Sources, c.SelectedSource, c.Resolution))
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// File is the on-disk form of a provenance map.
type File struct {
	Provenance Map `yaml:"provenance"`
}

// Save writes a provenance map as YAML.
func Save(path string, m Map) error {
	data, err := yaml.Marshal(File{Provenance: m})
	if err != nil {
		return errors.WrapParse("yaml", path, err)
	}
	if err := os.WriteFile(path, data, constants.FilePermissions); err != nil {
		return errors.WrapIO("write", path, err)
	}
	return nil
}

// Load reads a provenance file. A missing file returns nil, nil.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from CLI configuration
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WrapIO("read", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.WrapParse("yaml", path, err)
	}
	return &f, nil
}
