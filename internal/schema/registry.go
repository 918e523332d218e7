package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/ddrkit/ddrsync/internal/record"
)

// Registry maps each record kind to its schema.
type Registry struct {
	schemas map[record.Kind]*Schema
}

// NewRegistry builds a registry from per-kind schemas.
func NewRegistry(schemas ...*Schema) (*Registry, error) {
	r := &Registry{schemas: make(map[record.Kind]*Schema, len(schemas))}
	for _, s := range schemas {
		if !s.Kind.Valid() {
			return nil, fmt.Errorf("%w: %d", record.ErrUnknownKind, int(s.Kind))
		}
		if _, dup := r.schemas[s.Kind]; dup {
			return nil, fmt.Errorf("schema for %s registered twice", s.Kind)
		}
		if err := s.validate(); err != nil {
			return nil, err
		}
		r.schemas[s.Kind] = s
	}
	return r, nil
}

// Schema returns the schema of a kind.
func (r *Registry) Schema(kind record.Kind) (*Schema, error) {
	s, ok := r.schemas[kind]
	if !ok {
		return nil, fmt.Errorf("%w: no schema for %s", ErrSchema, kind)
	}
	return s, nil
}

// FieldsFor returns the exportable field names of a kind in schema order,
// optionally only the required ones. Excluded fields never appear. File
// tables start with a synthetic file_id column so a file's own identifier
// is kept apart from its parent entity's id.
func (r *Registry) FieldsFor(kind record.Kind, requiredOnly bool) ([]string, error) {
	s, err := r.Schema(kind)
	if err != nil {
		return nil, err
	}

	var out []string
	if kind == record.KindFile {
		out = append(out, "file_id")
	}
	for _, f := range s.Fields {
		if f.Exclude || (requiredOnly && !f.Required) {
			continue
		}
		if kind == record.KindFile && f.Name == "file_id" {
			continue
		}
		out = append(out, f.Name)
	}
	return out, nil
}

// ExportHeader returns the header of an exported table: FieldsFor with an
// "id" column guaranteed at position 0 for collections and entities, and
// right after file_id for files.
func (r *Registry) ExportHeader(kind record.Kind, requiredOnly bool) ([]string, error) {
	fields, err := r.FieldsFor(kind, requiredOnly)
	if err != nil {
		return nil, err
	}

	pos := 0
	if kind == record.KindFile {
		pos = 1
	}
	rest := make([]string, 0, len(fields))
	for i, name := range fields {
		if name == "id" || (kind == record.KindFile && i == 0) {
			continue
		}
		rest = append(rest, name)
	}
	header := make([]string, 0, len(rest)+2)
	header = append(header, fields[:pos]...)
	header = append(header, "id")
	return append(header, rest...), nil
}

// file is the on-disk layout of a schema configuration file.
type file struct {
	Collection *Schema `yaml:"collection" toml:"collection"`
	Entity     *Schema `yaml:"entity" toml:"entity"`
	File       *Schema `yaml:"file" toml:"file"`
}

// Load reads a schema file. The format follows the extension: .yaml/.yml or
// .toml. Kinds missing from the file keep their built-in default.
func Load(path string) (*Registry, error) {
	// #nosec G304 - path comes from configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}

	var f file
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("failed to parse schema file %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &f); err != nil {
			return nil, fmt.Errorf("failed to parse schema file %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported schema file extension %q (want .yaml, .yml or .toml)", ext)
	}

	defaults := Defaults()
	pick := func(kind record.Kind, s *Schema) *Schema {
		if s == nil {
			s, _ = defaults.Schema(kind)
			return s
		}
		s.Kind = kind
		return s
	}
	return NewRegistry(
		pick(record.KindCollection, f.Collection),
		pick(record.KindEntity, f.Entity),
		pick(record.KindFile, f.File),
	)
}

// Defaults returns the built-in schemas.
func Defaults() *Registry {
	text := func(name string, required bool) Field {
		return Field{Name: name, Type: TypeText, Required: required}
	}
	js := func(name string) Field {
		return Field{Name: name, Type: TypeJSON}
	}

	r, err := NewRegistry(
		&Schema{
			Kind: record.KindCollection,
			Fields: []Field{
				text("id", true),
				text("record_created", false),
				text("record_lastmod", false),
				text("status", true),
				text("public", true),
				text("title", true),
				text("unitdateinclusive", false),
				text("unitdatebulk", false),
				text("creators", false),
				text("extent", false),
				text("language", false),
				text("contributor", false),
				text("description", false),
				text("notes", false),
				text("rights", false),
			},
		},
		&Schema{
			Kind: record.KindEntity,
			Fields: []Field{
				text("id", true),
				text("record_created", false),
				text("record_lastmod", false),
				text("status", true),
				text("public", true),
				text("title", true),
				text("description", false),
				text("creation", false),
				text("location", false),
				js("creators"),
				js("language"),
				text("genre", false),
				text("format", false),
				text("extent", false),
				text("contributor", false),
				js("topics"),
				js("persons"),
				js("facility"),
				text("rights", false),
				text("notes", false),
				{Name: "files", Type: TypeJSON, Exclude: true},
			},
			Exceptions: []string{"parent", "signature_id"},
		},
		&Schema{
			Kind: record.KindFile,
			Fields: []Field{
				text("id", true),
				text("role", true),
				text("public", false),
				text("rights", false),
				text("sort", false),
				text("label", false),
				text("digitize_person", false),
				text("tech_notes", false),
				text("external_urls", false),
				text("links", false),
				{Name: "basename_orig", Type: TypeText},
				{Name: "sha1", Type: TypeText, Exclude: true},
				{Name: "sha256", Type: TypeText, Exclude: true},
				{Name: "md5", Type: TypeText, Exclude: true},
				{Name: "size", Type: TypeJSON, Exclude: true},
				{Name: "files", Type: TypeJSON, Exclude: true},
			},
			Exceptions: []string{"xmp"},
		},
	)
	if err != nil {
		panic(fmt.Sprintf("schema: built-in defaults are invalid: %v", err))
	}
	return r
}
