package schema

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSchema is the sentinel for header/schema mismatches.
	ErrSchema = errors.New("schema mismatch")

	// ErrMissingRequired is the sentinel for rows lacking required values.
	ErrMissingRequired = errors.New("missing required field")
)

// SchemaError reports one problem with a table header.
type SchemaError struct {
	Column string
	Msg    string
}

func (e *SchemaError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("header: %s", e.Msg)
	}
	return fmt.Sprintf("header column %q: %s", e.Column, e.Msg)
}

func (e *SchemaError) Unwrap() error {
	return ErrSchema
}

// MissingRequiredFieldError lists the required fields a row left blank.
type MissingRequiredFieldError struct {
	ID     string
	Fields []string
}

func (e *MissingRequiredFieldError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("missing required fields: %s", strings.Join(e.Fields, ", "))
	}
	return fmt.Sprintf("%s: missing required fields: %s", e.ID, strings.Join(e.Fields, ", "))
}

func (e *MissingRequiredFieldError) Unwrap() error {
	return ErrMissingRequired
}
