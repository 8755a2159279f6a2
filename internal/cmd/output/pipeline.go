package output

import (
	"io"

	"github.com/agentstation/ecomap/internal/cmd/table"
	"github.com/agentstation/ecomap/pkg/entity"
	"github.com/agentstation/ecomap/pkg/scheduler"
)

// Entities writes ranked entities. Structured formats always get a list.
func Entities(w io.Writer, f Format, entities []*entity.Entity) error {
	if entities == nil {
		entities = []*entity.Entity{}
	}
	return write(w, f, entities, func() table.Data {
		return table.EntitiesToTableData(entities, f == FormatWide)
	})
}

// Entity writes one entity.
func Entity(w io.Writer, f Format, e *entity.Entity) error {
	return write(w, f, e, func() table.Data { return table.EntityDetails(e) })
}

// Members writes the source records of an entity.
func Members(w io.Writer, f Format, members []entity.NormalizedRecord) error {
	if members == nil {
		members = []entity.NormalizedRecord{}
	}
	return write(w, f, members, func() table.Data { return table.MembersToTableData(members) })
}

// Runs writes job runs.
func Runs(w io.Writer, f Format, runs []scheduler.Run) error {
	if runs == nil {
		runs = []scheduler.Run{}
	}
	return write(w, f, runs, func() table.Data { return table.RunsToTableData(runs) })
}

// Entries writes schedule entries.
func Entries(w io.Writer, f Format, entries []scheduler.Entry) error {
	return write(w, f, entries, func() table.Data { return table.EntriesToTableData(entries) })
}

// Any writes a summary struct. Tables list its fields as properties; data
// that is not a struct is written as JSON instead.
func Any(w io.Writer, f Format, data any) error {
	if f.tabular() {
		props, ok := table.Properties(data)
		if !ok {
			return write(w, FormatJSON, data, nil)
		}
		return render(w, props)
	}
	return write(w, f, data, nil)
}
