// Package schema describes which fields each record kind exchanges in
// tabular form, and checks tables against those descriptions.
//
// Column sets are configuration: a Registry is built from a YAML or TOML
// file (or the built-in defaults) and never guesses per-kind special cases.
package schema

import (
	"fmt"

	"github.com/ddrkit/ddrsync/internal/record"
)

// FieldType controls how a field is rendered in a table and parsed back.
type FieldType string

const (
	// TypeText is free text. Exported cells are trimmed and line breaks are
	// folded to a literal \n so the row stays on one line.
	TypeText FieldType = "text"
	// TypeJSON holds structured values (lists, objects, numbers) written
	// as compact JSON.
	TypeJSON FieldType = "json"
)

// Field is one column of a kind's schema.
type Field struct {
	Name     string    `yaml:"name" toml:"name"`
	Type     FieldType `yaml:"type,omitempty" toml:"type,omitempty"`
	Required bool      `yaml:"required,omitempty" toml:"required,omitempty"`
	// Exclude keeps the field out of exported tables (e.g. the manifest).
	Exclude bool `yaml:"exclude,omitempty" toml:"exclude,omitempty"`
}

// Schema is the ordered field list of one record kind.
type Schema struct {
	Kind   record.Kind `yaml:"-" toml:"-"`
	Fields []Field     `yaml:"fields" toml:"fields"`
	// Exceptions are header columns tolerated on import although they are
	// not schema fields, such as legacy columns.
	Exceptions []string `yaml:"exceptions,omitempty" toml:"exceptions,omitempty"`
}

// Field looks a field up by name.
func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// TypeOf returns the declared type of a column; undeclared columns (the
// synthetic id columns, exceptions) are text.
func (s *Schema) TypeOf(name string) FieldType {
	if f, ok := s.Field(name); ok && f.Type != "" {
		return f.Type
	}
	return TypeText
}

// Names returns every field name in schema order, excluded ones included.
func (s *Schema) Names() []string {
	out := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		out = append(out, f.Name)
	}
	return out
}

// Required returns the names of required fields in schema order.
func (s *Schema) Required() []string {
	var out []string
	for _, f := range s.Fields {
		if f.Required {
			out = append(out, f.Name)
		}
	}
	return out
}

func (s *Schema) validate() error {
	seen := make(map[string]bool, len(s.Fields))
	for i, f := range s.Fields {
		if f.Name == "" {
			return fmt.Errorf("%s schema: field %d has no name", s.Kind, i)
		}
		if seen[f.Name] {
			return fmt.Errorf("%s schema: field %q declared twice", s.Kind, f.Name)
		}
		seen[f.Name] = true
		switch f.Type {
		case "", TypeText, TypeJSON:
		default:
			return fmt.Errorf("%s schema: field %q has unknown type %q", s.Kind, f.Name, f.Type)
		}
		if f.Required && f.Exclude {
			return fmt.Errorf("%s schema: field %q cannot be both required and excluded", s.Kind, f.Name)
		}
	}
	return nil
}
