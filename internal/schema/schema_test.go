package schema

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddrkit/ddrsync/internal/record"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(
		&Schema{Kind: record.KindCollection, Fields: []Field{
			{Name: "id", Required: true},
			{Name: "title", Required: true},
		}},
		&Schema{Kind: record.KindEntity, Fields: []Field{
			{Name: "title", Required: true},
			{Name: "id", Required: true},
			{Name: "description"},
			{Name: "topics", Type: TypeJSON},
			{Name: "files", Type: TypeJSON, Exclude: true},
		}},
		&Schema{Kind: record.KindFile, Fields: []Field{
			{Name: "id", Required: true},
			{Name: "role", Required: true},
			{Name: "label"},
			{Name: "sha1", Exclude: true},
		}},
	)
	require.NoError(t, err)
	return r
}

func TestFieldsFor(t *testing.T) {
	r := testRegistry(t)

	tests := []struct {
		kind         record.Kind
		requiredOnly bool
		want         []string
	}{
		{record.KindCollection, false, []string{"id", "title"}},
		{record.KindEntity, false, []string{"title", "id", "description", "topics"}},
		{record.KindEntity, true, []string{"title", "id"}},
		{record.KindFile, false, []string{"file_id", "id", "role", "label"}},
		{record.KindFile, true, []string{"file_id", "id", "role"}},
	}
	for _, tt := range tests {
		got, err := r.FieldsFor(tt.kind, tt.requiredOnly)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s requiredOnly=%v", tt.kind, tt.requiredOnly)
	}
}

func TestExportHeaderPutsIDFirst(t *testing.T) {
	r := testRegistry(t)

	h, err := r.ExportHeader(record.KindEntity, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "title", "description", "topics"}, h)

	h, err = r.ExportHeader(record.KindFile, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"file_id", "id", "role", "label"}, h)

	noID, err := NewRegistry(&Schema{Kind: record.KindCollection, Fields: []Field{{Name: "title"}}})
	require.NoError(t, err)
	h, err = noID.ExportHeader(record.KindCollection, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "title"}, h)
}

func TestRegistryRejectsBadSchemas(t *testing.T) {
	_, err := NewRegistry(&Schema{Kind: record.KindEntity, Fields: []Field{{Name: "a"}, {Name: "a"}}})
	assert.Error(t, err)

	_, err = NewRegistry(&Schema{Kind: record.KindEntity, Fields: []Field{{Name: "a", Type: "blob"}}})
	assert.Error(t, err)

	_, err = NewRegistry(&Schema{Kind: record.KindEntity, Fields: []Field{{Name: "a", Required: true, Exclude: true}}})
	assert.Error(t, err)

	_, err = NewRegistry(&Schema{Kind: record.Kind(42)})
	assert.ErrorIs(t, err, record.ErrUnknownKind)

	_, err = testRegistry(t).Schema(record.Kind(0))
	assert.ErrorIs(t, err, ErrSchema)
}

func TestDefaults(t *testing.T) {
	r := Defaults()
	for _, k := range record.Kinds {
		fields, err := r.FieldsFor(k, false)
		require.NoError(t, err)
		assert.NotContains(t, fields, "files", "%s exports its manifest", k)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
entity:
  fields:
    - name: id
      required: true
    - name: title
      required: true
    - name: topics
      type: json
  exceptions: [notused]
`), 0644))

	r, err := Load(path)
	require.NoError(t, err)

	s, err := r.Schema(record.KindEntity)
	require.NoError(t, err)
	assert.Equal(t, record.KindEntity, s.Kind)
	assert.Equal(t, []string{"id", "title", "topics"}, s.Names())
	assert.Equal(t, []string{"id", "title"}, s.Required())
	assert.Equal(t, TypeJSON, s.TypeOf("topics"))
	assert.Equal(t, TypeText, s.TypeOf("title"))
	assert.Equal(t, []string{"notused"}, s.Exceptions)

	// collection falls back to the defaults
	c, err := r.Schema(record.KindCollection)
	require.NoError(t, err)
	assert.Contains(t, c.Names(), "unitdateinclusive")
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[file]
exceptions = ["xmp"]

[[file.fields]]
name = "id"
required = true

[[file.fields]]
name = "role"
required = true

[[file.fields]]
name = "sha1"
exclude = true
`), 0644))

	r, err := Load(path)
	require.NoError(t, err)
	fields, err := r.FieldsFor(record.KindFile, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"file_id", "id", "role"}, fields)
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.ini")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateHeader(t *testing.T) {
	schemaFields := []string{"id", "title", "notused"}

	errs := ValidateHeader([]string{"id", "title"}, schemaFields, []string{"notused"})
	assert.Empty(t, errs)

	errs = ValidateHeader([]string{"id", "title", "legacy"}, []string{"id", "title"}, []string{"legacy"})
	assert.Empty(t, errs)

	errs = ValidateHeader([]string{"id", "titl"}, schemaFields, nil)
	require.Len(t, errs, 1)
	var se *SchemaError
	require.True(t, errors.As(errs[0], &se))
	assert.Equal(t, "titl", se.Column)
	assert.ErrorIs(t, errs[0], ErrSchema)

	errs = ValidateHeader([]string{"id", "title", "title"}, schemaFields, nil)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "duplicate")

	errs = ValidateHeader([]string{"title"}, schemaFields, nil)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "identifier column missing")
}

func TestCheckHeaderFileKind(t *testing.T) {
	r := testRegistry(t)

	assert.NoError(t, r.CheckHeader(record.KindFile, []string{"file_id", "id", "role"}))

	err := r.CheckHeader(record.KindFile, []string{"id", "role"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchema)
	assert.Contains(t, err.Error(), "file_id")
}

func TestAccountRow(t *testing.T) {
	required := []string{"id", "title", "status"}
	row := map[string]string{"id": "ddr-test-1", "title": "  ", "extra": "x"}

	assert.Equal(t, []string{"title", "status"}, AccountRow(required, row))
	assert.Empty(t, AccountRow(required, map[string]string{"id": "a", "title": "b", "status": "c"}))
	assert.Empty(t, AccountRow(nil, row))
}

func TestMissingRequiredFieldError(t *testing.T) {
	err := &MissingRequiredFieldError{ID: "ddr-test-2", Fields: []string{"title"}}
	assert.ErrorIs(t, err, ErrMissingRequired)
	assert.Equal(t, "ddr-test-2: missing required fields: title", err.Error())
}
