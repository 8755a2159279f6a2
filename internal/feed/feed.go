// Package feed reads input batches for the pipeline from JSON, JSON Lines
// or YAML files. A feed path is a single file or a directory whose feed files
// are read in lexical order.
package feed

import (
	"bufio"
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/agentstation/ecomap/pkg/entity"
	"github.com/agentstation/ecomap/pkg/errors"
)

// Extensions lists the file extensions a feed directory is scanned for.
var Extensions = []string{".json", ".jsonl", ".ndjson", ".yaml", ".yml"}

// Source is an opened feed.
type Source struct {
	fsys  fs.FS
	files []string
}

// Open opens a feed file or directory on disk.
func Open(p string) (*Source, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, errors.WrapIO("open", p, err)
	}
	if info.IsDir() {
		return FromFS(os.DirFS(p), ".")
	}
	return FromFS(os.DirFS(filepath.Dir(p)), filepath.Base(p))
}

// FromFS opens root within fsys. Root may name a file or a directory.
func FromFS(fsys fs.FS, root string) (*Source, error) {
	info, err := fs.Stat(fsys, root)
	if err != nil {
		return nil, errors.WrapIO("open", root, err)
	}
	if !info.IsDir() {
		if !supported(root) {
			return nil, errors.NewValidationError("path", root, "unsupported feed format")
		}
		return &Source{fsys: fsys, files: []string{root}}, nil
	}

	var files []string
	err = fs.WalkDir(fsys, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && supported(p) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, errors.WrapIO("walk", root, err)
	}
	slices.Sort(files)
	return &Source{fsys: fsys, files: files}, nil
}

func supported(p string) bool {
	return slices.Contains(Extensions, strings.ToLower(path.Ext(p)))
}

// Files returns the feed files in read order.
func (s *Source) Files() []string {
	return slices.Clone(s.files)
}

// Records reads raw source records.
func (s *Source) Records() ([]entity.RawRecord, error) {
	return readAll[entity.RawRecord](s)
}

// Corrections reads user corrections.
func (s *Source) Corrections() ([]entity.UserCorrection, error) {
	return readAll[entity.UserCorrection](s)
}

// Reports reads user disputes.
func (s *Source) Reports() ([]entity.UserReport, error) {
	return readAll[entity.UserReport](s)
}

// SignalBatch carries growth signal observations for one entity.
type SignalBatch struct {
	EntityID string              `json:"entity_id" yaml:"entity_id"`
	Signals  entity.SignalBundle `json:"signals" yaml:"signals"`
}

// Signals reads signal batches and merges them per entity, keeping the most
// recent observation of each signal.
func (s *Source) Signals() (map[string]entity.SignalBundle, error) {
	batches, err := readAll[SignalBatch](s)
	if err != nil {
		return nil, err
	}
	out := make(map[string]entity.SignalBundle)
	for i, b := range batches {
		if b.EntityID == "" {
			return nil, errors.NewValidationError("entity_id", i, "signal batch has no entity")
		}
		out[b.EntityID] = out[b.EntityID].Merge(b.Signals)
	}
	return out, nil
}

func readAll[T any](s *Source) ([]T, error) {
	var out []T
	for _, name := range s.files {
		items, err := readFile[T](s.fsys, name)
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
	}
	return out, nil
}

// readFile decodes one file. JSON and YAML files hold a list or a single
// item. JSON Lines files hold one item per line.
func readFile[T any](fsys fs.FS, name string) ([]T, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, errors.WrapIO("read", name, err)
	}
	return decode[T](name, strings.TrimPrefix(strings.ToLower(path.Ext(name)), "."), data)
}

// ParseRecords decodes raw records held in memory. Format is one of json,
// jsonl, ndjson, yaml or yml; name only labels errors.
func ParseRecords(name, format string, data []byte) ([]entity.RawRecord, error) {
	format = strings.TrimPrefix(strings.ToLower(format), ".")
	if !supported("." + format) {
		return nil, errors.NewValidationError("format", format, "unsupported feed format")
	}
	return decode[entity.RawRecord](name, format, data)
}

func decode[T any](name, format string, data []byte) ([]T, error) {
	switch format {
	case "jsonl", "ndjson":
		return readLines[T](name, data)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var items []T
	listErr := yaml.Unmarshal(data, &items)
	if listErr == nil {
		return items, nil
	}
	var item T
	if err := yaml.Unmarshal(data, &item); err != nil {
		return nil, errors.WrapParse(format, name, listErr)
	}
	return []T{item}, nil
}

func readLines[T any](name string, data []byte) ([]T, error) {
	var out []T
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for n := 1; sc.Scan(); n++ {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var item T
		if err := yaml.Unmarshal(line, &item); err != nil {
			return nil, errors.NewParseError("jsonl", name, fmt.Sprintf("line %d: %v", n, err), err)
		}
		out = append(out, item)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.WrapIO("read", name, err)
	}
	return out, nil
}
