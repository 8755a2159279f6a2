package save

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"

	"github.com/agentstation/ecomap/pkg/constants"
	"github.com/agentstation/ecomap/pkg/errors"
)

// Write encodes v and writes it to the configured writer, or to the
// configured path. A path write goes through a temp file and a rename so
// readers never see a partial snapshot.
func Write(v any, opts ...Option) error {
	o := Defaults().Apply(opts...)
	if o.Writer() == nil && o.Path() == "" {
		return errors.NewValidationError("path", "", "a path or writer is required")
	}

	data, err := Encode(v, o.Format())
	if err != nil {
		return err
	}

	if w := o.Writer(); w != nil {
		_, err := io.Copy(w, bytes.NewReader(data))
		return errors.WrapIO("write", o.Path(), err)
	}

	path := o.Path()
	if err := os.MkdirAll(filepath.Dir(path), constants.DirPermissions); err != nil {
		return errors.WrapIO("create", filepath.Dir(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, constants.FilePermissions); err != nil {
		return errors.WrapIO("write", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.WrapIO("rename", path, err)
	}
	return nil
}

// Encode marshals v in the given format.
func Encode(v any, f Format) ([]byte, error) {
	switch f {
	case FormatYAML:
		data, err := yaml.MarshalWithOptions(v, yaml.Indent(2), yaml.IndentSequence(false))
		if err != nil {
			return nil, errors.WrapParse("yaml", "", err)
		}
		return data, nil
	case FormatJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return nil, errors.WrapParse("json", "", err)
		}
		return append(data, '\n'), nil
	default:
		return nil, errors.NewValidationError("format", f.String(), "unsupported format")
	}
}
