// Package table converts pipeline results into rows for CLI tables.
package table

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/agentstation/ecomap/pkg/entity"
	"github.com/agentstation/ecomap/pkg/scheduler"
)

// Align represents column alignment in tables.
type Align int

const (
	// AlignDefault uses the default alignment (skip).
	AlignDefault Align = iota
	// AlignLeft aligns content to the left.
	AlignLeft
	// AlignCenter centers content.
	AlignCenter
	// AlignRight aligns content to the right.
	AlignRight
)

// Data represents table formatting data to avoid import cycles.
type Data struct {
	Headers         []string
	Rows            [][]string
	ColumnAlignment []Align // Optional: column alignment
}

// EntitiesToTableData converts ranked entities to table format.
func EntitiesToTableData(entities []*entity.Entity, wide bool) Data {
	headers := []string{"Rank", "Name", "Type", "Score", "Status", "Country"}
	align := []Align{AlignRight, AlignLeft, AlignLeft, AlignRight, AlignLeft, AlignLeft}
	if wide {
		headers = append(headers, "Confidence", "Sources", "Flags", "ID")
		align = append(align, AlignRight, AlignRight, AlignLeft, AlignLeft)
	}

	rows := make([][]string, 0, len(entities))
	for i, e := range entities {
		row := []string{
			strconv.Itoa(i + 1),
			e.Name,
			string(e.Type),
			FormatScore(e.GrowthScore),
			string(e.Status),
			dash(e.Country),
		}
		if wide {
			row = append(row,
				strconv.FormatFloat(e.ScoreConfidence, 'f', 2, 64),
				strconv.Itoa(len(e.ContributingSources)),
				dash(strings.Join(e.QualityFlags, ",")),
				e.ID,
			)
		}
		rows = append(rows, row)
	}
	return Data{Headers: headers, Rows: rows, ColumnAlignment: align}
}

// EntityDetails converts one entity to a property table.
func EntityDetails(e *entity.Entity) Data {
	rows := [][]string{
		{"ID", e.ID},
		{"Name", e.Name},
		{"Type", string(e.Type)},
		{"Status", string(e.Status)},
		{"Growth Score", FormatScore(e.GrowthScore)},
		{"Score Confidence", strconv.FormatFloat(e.ScoreConfidence, 'f', 2, 64)},
		{"Website", dash(e.Website)},
		{"Location", dash(strings.Trim(e.City+", "+e.Country, ", "))},
		{"Founded", dash(yearOrEmpty(e.FoundedYear))},
		{"Funding Rounds", strconv.Itoa(len(e.FundingRounds))},
		{"Sources", strings.Join(e.ContributingSources, ", ")},
		{"Flags", dash(strings.Join(e.QualityFlags, ", "))},
		{"Updated", e.UpdatedAt.Time.Format(time.RFC3339)},
	}
	if e.MergedInto != "" {
		rows = append(rows, []string{"Merged Into", e.MergedInto})
	}
	return Data{Headers: []string{"Property", "Value"}, Rows: rows}
}

// RunsToTableData converts job runs to table format.
func RunsToTableData(runs []scheduler.Run) Data {
	headers := []string{"Run", "Job", "Trigger", "Status", "Started", "Duration", "Error"}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.ID,
			string(r.Class),
			r.Trigger,
			string(r.Status),
			r.StartedAt.Format(time.RFC3339),
			r.Duration().Round(time.Millisecond).String(),
			dash(r.Error),
		})
	}
	return Data{Headers: headers, Rows: rows}
}

// EntriesToTableData converts schedule entries to table format.
func EntriesToTableData(entries []scheduler.Entry) Data {
	headers := []string{"Job", "Schedule", "Next", "Running"}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			string(e.Class),
			dash(e.Schedule),
			timeOrDash(e.Next),
			dash(e.Running),
		})
	}
	return Data{Headers: headers, Rows: rows}
}

// MembersToTableData converts the source records of an entity to table format.
func MembersToTableData(members []entity.NormalizedRecord) Data {
	headers := []string{"Source", "Type", "Confidence", "Fetched", "Merged", "Name", "Website"}
	align := []Align{AlignLeft, AlignLeft, AlignRight, AlignLeft, AlignLeft, AlignLeft, AlignLeft}
	rows := make([][]string, 0, len(members))
	for _, m := range members {
		rows = append(rows, []string{
			m.SourceID,
			string(m.SourceType),
			strconv.FormatFloat(m.Confidence, 'f', 2, 64),
			m.FetchedAt.Format(time.RFC3339),
			timeOrDash(m.MergedAt),
			dash(m.Name),
			dash(m.Website),
		})
	}
	return Data{Headers: headers, Rows: rows, ColumnAlignment: align}
}

// Properties lists the exported fields of a struct, or pointer to one, as a
// property table labelled by json name. It reports false for other values.
func Properties(v any) (Data, bool) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return Data{}, false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return Data{}, false
	}

	rt := rv.Type()
	rows := make([][]string, 0, rt.NumField())
	for i := range rt.NumField() {
		field := rt.Field(i)
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if !field.IsExported() || name == "-" {
			continue
		}
		if name == "" {
			name = field.Name
		}
		rows = append(rows, []string{title.String(strings.ReplaceAll(name, "_", " ")), cell(rv.Field(i))})
	}
	return Data{Headers: []string{"Property", "Value"}, Rows: rows}, true
}

var title = cases.Title(language.English)

func cell(v reflect.Value) string {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return "-"
		}
		if err, ok := v.Interface().(error); ok {
			return err.Error()
		}
		return cell(v.Elem())
	case reflect.String:
		return dash(v.String())
	case reflect.Slice, reflect.Array:
		parts := make([]string, v.Len())
		for i := range parts {
			parts[i] = cell(v.Index(i))
		}
		return dash(strings.Join(parts, ", "))
	}
	switch x := v.Interface().(type) {
	case time.Time:
		return timeOrDash(x)
	case time.Duration:
		return x.String()
	}
	return fmt.Sprint(v.Interface())
}

func timeOrDash(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.RFC3339)
}

// FormatScore renders a growth score, or a dash when unscored.
func FormatScore(score *float64) string {
	if score == nil {
		return "-"
	}
	return strconv.FormatFloat(*score, 'f', 1, 64)
}

func yearOrEmpty(y int) string {
	if y == 0 {
		return ""
	}
	return strconv.Itoa(y)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
