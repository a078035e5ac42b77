// Package reportfile loads the saved-report JSON documents an external UI
// shell persists. The core engine never reads these itself (spec scopes
// report-file persistence out as an external collaborator); this package
// exists so cmd/zecao's demo CLI has a realistic way to hand a SQL document
// to the engine.
package reportfile

import (
	"encoding/json"
	"fmt"
	"os"
)

// Report mirrors the JSON shape an external shell persists: a description
// and the SQL string (which is expected to carry a [SYNC: ...] directive,
// typically in a leading comment).
type Report struct {
	Descricao string `json:"descricao"`
	QuerySQL  string `json:"query_sql"`
}

// Load reads and parses a report file from path.
func Load(path string) (*Report, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reportfile: read %s: %w", path, err)
	}

	var r Report
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("reportfile: parse %s: %w", path, err)
	}
	if r.QuerySQL == "" {
		return nil, fmt.Errorf("reportfile: %s has no query_sql", path)
	}
	return &r, nil
}

// Save writes a report document to path, formatted for readability.
func Save(path string, r *Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("reportfile: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("reportfile: write %s: %w", path, err)
	}
	return nil
}
