package entity

import "time"

// Signal is one observed growth indicator.
type Signal struct {
	Value      float64   `json:"value" yaml:"value"`
	ObservedAt time.Time `json:"observed_at" yaml:"observed_at"`
	SourceID   string    `json:"source_id" yaml:"source_id"`
}

// SignalBundle maps signal names to observations. A missing key means
// unknown, which is never the same as a zero value.
type SignalBundle map[string]Signal

// Has reports whether the named signal is present.
func (b SignalBundle) Has(name string) bool {
	_, ok := b[name]
	return ok
}

// Clone returns a copy of the bundle.
func (b SignalBundle) Clone() SignalBundle {
	if b == nil {
		return nil
	}
	out := make(SignalBundle, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Merge returns a new bundle holding, per key, the most recently observed
// value from b and fresh.
func (b SignalBundle) Merge(fresh SignalBundle) SignalBundle {
	out := b.Clone()
	if out == nil {
		out = make(SignalBundle, len(fresh))
	}
	for k, v := range fresh {
		if cur, ok := out[k]; ok && cur.ObservedAt.After(v.ObservedAt) {
			continue
		}
		out[k] = v
	}
	return out
}
