// Package record holds the in-memory form of collection, entity and file
// metadata documents and the storage contract the batch engine uses to load
// and persist them.
//
// A Record keeps its fields in document order so that a load/save cycle
// leaves the JSON file byte-for-byte stable under version control.
package record

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Record is one metadata document: an ordered mapping of field name to a
// JSON value.
type Record struct {
	Kind Kind

	keys   []string
	values map[string]any
}

// New creates an empty record of the given kind carrying its identifier.
// File records also get their parent entity in "id".
func New(kind Kind, id string) (*Record, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(kind))
	}
	r := &Record{Kind: kind, values: map[string]any{}}
	if kind == KindFile {
		parent, err := ParentOf(id)
		if err != nil {
			return nil, err
		}
		r.Set("id", parent)
		r.Set("file_id", id)
		return r, nil
	}
	r.Set("id", id)
	return r, nil
}

// ID returns the record's own identifier.
func (r *Record) ID() string {
	return r.String(r.Kind.IDField())
}

// Keys returns field names in document order.
func (r *Record) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Has reports whether the field is present.
func (r *Record) Has(name string) bool {
	_, ok := r.values[name]
	return ok
}

// Get returns the raw JSON value of a field.
func (r *Record) Get(name string) (any, bool) {
	v, ok := r.values[name]
	return v, ok
}

// String returns a field as a string, or "" when it is absent, null or not a
// string.
func (r *Record) String(name string) string {
	s, _ := r.values[name].(string)
	return s
}

// Set assigns a field, appending it to the key order when new.
func (r *Record) Set(name string, v any) {
	if r.values == nil {
		r.values = map[string]any{}
	}
	if _, ok := r.values[name]; !ok {
		r.keys = append(r.keys, name)
	}
	r.values[name] = v
}

// Delete removes a field.
func (r *Record) Delete(name string) {
	if _, ok := r.values[name]; !ok {
		return
	}
	delete(r.values, name)
	for i, k := range r.keys {
		if k == name {
			r.keys = append(r.keys[:i], r.keys[i+1:]...)
			break
		}
	}
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	data, err := r.MarshalJSON()
	if err != nil {
		// Values came from JSON or from Set with marshalable values.
		panic(fmt.Sprintf("record: clone of unmarshalable record %s: %v", r.ID(), err))
	}
	c := &Record{Kind: r.Kind}
	if err := c.UnmarshalJSON(data); err != nil {
		panic(fmt.Sprintf("record: clone of %s: %v", r.ID(), err))
	}
	return c
}

// MarshalJSON writes the fields as a JSON object in document order.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := marshalValue(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := marshalValue(r.values[k])
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// marshalValue encodes v without HTML escaping so stored text such as
// "<b>" is not rewritten as unicode escapes.
func marshalValue(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// UnmarshalJSON reads a JSON object, keeping its key order. Numbers are kept
// as json.Number so they are written back exactly as read.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("record document must be a JSON object")
	}

	r.keys = nil
	r.values = map[string]any{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected token %v", tok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("field %s: %w", key, err)
		}
		r.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// Document renders the record the way it is stored on disk: indented JSON
// with a trailing newline.
func (r *Record) Document() ([]byte, error) {
	raw, err := r.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return nil, err
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// Parse reads a stored document of the given kind.
func Parse(kind Kind, data []byte) (*Record, error) {
	r := &Record{Kind: kind}
	if err := r.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return r, nil
}
