package entity

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/workset/internal/errs"
)

// MappingFile is the top-level structure of a mapping file.
//
//	entities:
//	  - name: Person
//	    table: persons
//	    id: {column: id, strategy: sequence}
//	    columns:
//	      - {column: first_name}
//	      - {column: last_name}
type MappingFile struct {
	Entities []Mapping `yaml:"entities" json:"entities"`
}

// Mapping describes one entity backed by *Row records.
type Mapping struct {
	Name    string          `yaml:"name" json:"name"`
	Table   string          `yaml:"table" json:"table"`
	ID      IDMapping       `yaml:"id" json:"id"`
	Columns []ColumnMapping `yaml:"columns" json:"columns"`
}

// IDMapping describes the identifier column.
type IDMapping struct {
	Column   string `yaml:"column" json:"column"`
	Field    string `yaml:"field,omitempty" json:"field,omitempty"`
	Strategy string `yaml:"strategy" json:"strategy"`
}

// ColumnMapping describes a non-identifier column. Field defaults to Column.
type ColumnMapping struct {
	Column string `yaml:"column" json:"column"`
	Field  string `yaml:"field,omitempty" json:"field,omitempty"`
}

// FromMapping builds a descriptor whose records are *Row values.
func FromMapping(m Mapping) (*Descriptor, error) {
	if strings.TrimSpace(m.ID.Column) == "" {
		return nil, errs.Configuration("entity has no identifier column").For(m.Name, nil)
	}
	strategy, err := ParseStrategy(m.ID.Strategy)
	if err != nil {
		return nil, err.(*errs.Error).For(m.Name, nil)
	}

	specs := make([]columnSpec, 0, len(m.Columns)+1)
	specs = append(specs, columnSpec{
		field:    fieldOrColumn(m.ID.Field, m.ID.Column),
		name:     m.ID.Column,
		id:       true,
		strategy: strategy,
		ref:      rowRef(m.ID.Column),
	})
	for _, c := range m.Columns {
		specs = append(specs, columnSpec{
			field: fieldOrColumn(c.Field, c.Column),
			name:  c.Column,
			ref:   rowRef(c.Column),
		})
	}

	d, err := newDescriptor(m.Name, m.Table, nil, specs)
	if err != nil {
		return nil, err
	}
	d.newRecord = func() any { return newRow(d) }
	d.accepts = func(record any) bool {
		r, ok := record.(*Row)
		return ok && r != nil && r.desc == d
	}
	return d, nil
}

func fieldOrColumn(field, column string) string {
	if field != "" {
		return field
	}
	return column
}

// LoadMappings reads a mapping file, or every .yaml, .yml and .cue file in a
// directory, and returns the descriptors in file then declaration order.
func LoadMappings(path string) ([]*Descriptor, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, mappingError(path, "stat mapping path", err)
	}

	files := []string{path}
	if info.IsDir() {
		files, err = FindMappingFiles(path)
		if err != nil {
			return nil, mappingError(path, "scan mapping directory", err)
		}
		if len(files) == 0 {
			return nil, errs.Configuration("no mapping files found in %s", path)
		}
	}

	var out []*Descriptor
	for _, file := range files {
		mf, err := ParseMappingFile(file)
		if err != nil {
			return nil, err
		}
		for _, m := range mf.Entities {
			d, err := FromMapping(m)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", file, err)
			}
			out = append(out, d)
		}
	}
	return out, nil
}

// FindMappingFiles walks dir and returns mapping file paths in lexical order.
func FindMappingFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		switch filepath.Ext(path) {
		case ".yaml", ".yml", ".cue":
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

// ParseMappingFile decodes one YAML or CUE mapping file.
func ParseMappingFile(path string) (*MappingFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, mappingError(path, "read mapping file", err)
	}
	if filepath.Ext(path) == ".cue" {
		return parseCUEMapping(path, data)
	}
	var mf MappingFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, mappingError(path, "decode YAML mapping", err)
	}
	return &mf, nil
}

func parseCUEMapping(path string, data []byte) (*MappingFile, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return nil, mappingError(path, "compile CUE mapping", err)
	}
	var mf MappingFile
	entities := v.LookupPath(cue.ParsePath("entities"))
	if !entities.Exists() {
		return &mf, nil
	}
	if err := entities.Decode(&mf.Entities); err != nil {
		return nil, mappingError(path, "decode CUE mapping", err)
	}
	return &mf, nil
}

func mappingError(path, message string, err error) *errs.Error {
	return &errs.Error{
		Code:    errs.CodeConfiguration,
		Message: fmt.Sprintf("%s %s", message, path),
		Err:     err,
	}
}
