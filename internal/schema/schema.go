// Package schema loads the external table schema that drives materialization:
// which legacy tables exist, their record size, and the offset/type of every
// column. The registry is read once at process start and never mutated.
package schema

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Column describes one field of a legacy .dat record.
type Column struct {
	Name      string `toml:"name"`
	FieldType string `toml:"field_type"`
	Offset    uint32 `toml:"offset"`
}

// Table describes one legacy .dat file's record layout.
type Table struct {
	RecordSize uint32   `toml:"record_size"`
	Columns    []Column `toml:"columns"`
}

// ConfigError wraps a failure to load or parse the schema document.
type ConfigError struct {
	Path  string
	Cause error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("schema: failed to load %s: %v", e.Path, e.Cause)
}

func (e *ConfigError) Unwrap() error { return e.Cause }

// Registry is a case-insensitive, immutable mapping of table name to config.
type Registry struct {
	tables map[string]Table
}

// Load parses a TOML document shaped as:
//
//	[<table_name>]
//	record_size = <u32>
//	[[<table_name>.columns]]
//	name = "<string>"
//	field_type = "I" | "F" | "D" | "<anything else>"
//	offset = <u32>
func Load(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Cause: err}
	}

	var parsed map[string]Table
	if _, err := toml.Decode(string(raw), &parsed); err != nil {
		return nil, &ConfigError{Path: path, Cause: err}
	}

	tables := make(map[string]Table, len(parsed))
	for name, cfg := range parsed {
		if err := validate(name, cfg); err != nil {
			return nil, &ConfigError{Path: path, Cause: err}
		}
		tables[strings.ToLower(name)] = cfg
	}

	return &Registry{tables: tables}, nil
}

func validate(name string, cfg Table) error {
	var lastOffset int64 = -1
	for _, col := range cfg.Columns {
		off := int64(col.Offset)
		if off <= lastOffset {
			return fmt.Errorf("table %s: column %q offset %d is not strictly increasing", name, col.Name, col.Offset)
		}
		if off >= int64(cfg.RecordSize)-1 {
			return fmt.Errorf("table %s: column %q offset %d must be < record_size-1 (%d)", name, col.Name, col.Offset, cfg.RecordSize-1)
		}
		lastOffset = off
	}
	return nil
}

// Lookup resolves a table name case-insensitively.
func (r *Registry) Lookup(name string) (Table, bool) {
	t, ok := r.tables[strings.ToLower(name)]
	return t, ok
}

// ColumnsByName returns the subset of cfg.Columns matching the requested
// names (case-insensitively), preserving the declaration order in cfg —
// never the order the names were requested in. A nil/empty requested slice
// with star=true returns every column.
func ColumnsByName(cfg Table, requested []string, star bool) []Column {
	if star {
		out := make([]Column, len(cfg.Columns))
		copy(out, cfg.Columns)
		return out
	}

	wanted := make(map[string]bool, len(requested))
	for _, name := range requested {
		wanted[strings.ToLower(strings.TrimSpace(name))] = true
	}

	var out []Column
	for _, col := range cfg.Columns {
		if wanted[strings.ToLower(col.Name)] {
			out = append(out, col)
		}
	}
	return out
}
