// Package manifest builds checksum manifests for the payload files of a
// record.
//
// A manifest is a new value on every build. It only replaces the one stored
// in a record through Attach, after the build has succeeded, so a failed
// build leaves the record's previous manifest in place.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ddrkit/ddrsync/internal/record"
)

// Field is the record field manifests are stored in.
const Field = "files"

// Entry describes one payload file. JSON fields are declared in
// alphabetical order so a manifest read back from a record re-encodes to
// the same bytes.
type Entry struct {
	Basename string `json:"basename"`
	Blake2b  string `json:"blake2b,omitempty"`
	MD5      string `json:"md5,omitempty"`
	Path     string `json:"path"`
	SHA1     string `json:"sha1"`
	SHA256   string `json:"sha256"`
	Size     int64  `json:"size"`
}

// Manifest is a list of entries sorted by Path.
type Manifest []Entry

// Paths returns the relative paths in manifest order.
func (m Manifest) Paths() []string {
	out := make([]string, len(m))
	for i, e := range m {
		out[i] = e.Path
	}
	return out
}

// Lookup returns the entry for a relative path.
func (m Manifest) Lookup(path string) (Entry, bool) {
	i := sort.Search(len(m), func(i int) bool { return m[i].Path >= path })
	if i < len(m) && m[i].Path == path {
		return m[i], true
	}
	return Entry{}, false
}

// Equal reports whether two manifests list the same files with the same
// sizes and digests.
func (m Manifest) Equal(o Manifest) bool {
	if len(m) != len(o) {
		return false
	}
	for i := range m {
		if m[i] != o[i] {
			return false
		}
	}
	return true
}

// MarshalIndent renders the manifest the way the builder's idempotency is
// judged: two-space indented JSON.
func (m Manifest) MarshalIndent() ([]byte, error) {
	if m == nil {
		m = Manifest{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Attach stores m in the record's manifest field, replacing whatever was
// there.
func (m Manifest) Attach(r *record.Record) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v []any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if v == nil {
		v = []any{}
	}
	r.Set(Field, v)
	return nil
}

// FromRecord reads the manifest stored in a record. A record without one
// has an empty manifest.
func FromRecord(r *record.Record) (Manifest, error) {
	v, ok := r.Get(Field)
	if !ok || v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest of %s: %w", r.ID(), err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to read manifest of %s: %w", r.ID(), err)
	}
	sort.SliceStable(m, func(i, j int) bool { return m[i].Path < m[j].Path })
	return m, nil
}

// Difference is one discrepancy between a stored manifest and the files.
type Difference struct {
	Path   string
	Reason string
}

func (d Difference) String() string {
	return d.Path + ": " + d.Reason
}

// Diff compares a stored manifest against a freshly built one.
func Diff(stored, fresh Manifest) []Difference {
	var out []Difference
	for _, e := range stored {
		f, ok := fresh.Lookup(e.Path)
		switch {
		case !ok:
			out = append(out, Difference{Path: e.Path, Reason: "missing"})
		case f.Size != e.Size:
			out = append(out, Difference{Path: e.Path, Reason: fmt.Sprintf("size %d, manifest says %d", f.Size, e.Size)})
		case f.SHA1 != e.SHA1 || f.SHA256 != e.SHA256:
			out = append(out, Difference{Path: e.Path, Reason: "content changed"})
		case e.MD5 != "" && f.MD5 != "" && f.MD5 != e.MD5:
			out = append(out, Difference{Path: e.Path, Reason: "md5 mismatch"})
		case e.Blake2b != "" && f.Blake2b != "" && f.Blake2b != e.Blake2b:
			out = append(out, Difference{Path: e.Path, Reason: "blake2b mismatch"})
		}
	}
	for _, f := range fresh {
		if _, ok := stored.Lookup(f.Path); !ok {
			out = append(out, Difference{Path: f.Path, Reason: "not in manifest"})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
