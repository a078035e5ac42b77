// Package query strips the ingest directive from user SQL, runs any
// preparatory statements, and prepares the final SELECT for the caller.
package query

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/bmsoft/zecao/internal/directive"
)

// EmptySQL is returned when no fragment remains after stripping the
// directive and splitting on ';'.
var EmptySQL = fmt.Errorf("query: no SQL remains after stripping the directive")

// ExecError wraps a failure running one of the preparatory statements.
// Fragment is the trimmed statement text that failed, for callers that want
// to highlight it in a presentation layer; no byte position within the
// original SQL is recorded.
type ExecError struct {
	Fragment string
	Cause    error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("query: statement %q failed: %v", e.Fragment, e.Cause)
}
func (e *ExecError) Unwrap() error { return e.Cause }

// PrepareError wraps a failure preparing the final SELECT fragment.
type PrepareError struct {
	Fragment string
	Cause    error
}

func (e *PrepareError) Error() string {
	return fmt.Sprintf("query: prepare %q failed: %v", e.Fragment, e.Cause)
}
func (e *PrepareError) Unwrap() error { return e.Cause }

// Execute strips [SYNC: ...] occurrences, splits the remainder on ';',
// executes every fragment but the last, and prepares the last fragment
// (expected to be the report's SELECT), returning the prepared statement.
//
// PRAGMA schema_version is deliberately not issued between statements: the
// original implementation does this with no observable effect on
// correctness, and profiling has not shown a reason to keep it.
func Execute(db *sql.DB, userSQL string) (*sql.Stmt, error) {
	clean := directive.Strip(userSQL)

	var fragments []string
	for _, f := range strings.Split(clean, ";") {
		f = strings.TrimSpace(f)
		if f != "" {
			fragments = append(fragments, f)
		}
	}

	if len(fragments) == 0 {
		return nil, EmptySQL
	}

	for _, frag := range fragments[:len(fragments)-1] {
		if _, err := db.Exec(frag); err != nil {
			return nil, &ExecError{Fragment: frag, Cause: err}
		}
	}

	last := fragments[len(fragments)-1]
	stmt, err := db.Prepare(last)
	if err != nil {
		return nil, &PrepareError{Fragment: last, Cause: err}
	}
	return stmt, nil
}
