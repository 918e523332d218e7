package schema

import (
	"errors"
	"strings"

	"github.com/ddrkit/ddrsync/internal/record"
)

// ValidateHeader checks a table header against the schema's field names.
// Every column must be a schema field or a listed exception, appear once,
// and the identifier column must be present. All problems are returned;
// an empty result means the header is acceptable.
func ValidateHeader(header, schemaFields, exceptions []string) []error {
	return validateHeader(header, schemaFields, exceptions, "id")
}

func validateHeader(header, schemaFields, exceptions []string, idColumn string) []error {
	known := make(map[string]bool, len(schemaFields)+len(exceptions))
	for _, f := range schemaFields {
		known[f] = true
	}
	for _, f := range exceptions {
		known[f] = true
	}

	var errs []error
	seen := make(map[string]bool, len(header))
	for _, col := range header {
		switch {
		case strings.TrimSpace(col) == "":
			errs = append(errs, &SchemaError{Msg: "blank column name"})
		case seen[col]:
			errs = append(errs, &SchemaError{Column: col, Msg: "duplicate column"})
		case !known[col]:
			errs = append(errs, &SchemaError{Column: col, Msg: "not a schema field"})
		}
		seen[col] = true
	}
	if !seen[idColumn] {
		errs = append(errs, &SchemaError{Column: idColumn, Msg: "identifier column missing"})
	}
	return errs
}

// CheckHeader validates an import header for kind against the registry.
// File tables must carry file_id; entity and collection tables carry id.
func (r *Registry) CheckHeader(kind record.Kind, header []string) error {
	s, err := r.Schema(kind)
	if err != nil {
		return err
	}
	fields := s.Names()
	if kind == record.KindFile {
		fields = append([]string{"file_id"}, fields...)
	}
	return errors.Join(validateHeader(header, fields, s.Exceptions, kind.IDField())...)
}

// AccountRow returns the required fields that are absent or blank in row,
// in the order they are listed in required.
func AccountRow(required []string, row map[string]string) []string {
	var missing []string
	for _, name := range required {
		if v, ok := row[name]; !ok || strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}
