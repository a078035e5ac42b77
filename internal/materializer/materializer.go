// Package materializer drops, recreates, and bulk-loads one destination
// table in the embedded database from its legacy .dat file, by memory-
// mapping the file and decoding fixed-offset fields per the schema.
package materializer

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"sync/atomic"

	"golang.org/x/exp/mmap"

	"github.com/bmsoft/zecao/internal/codec"
	"github.com/bmsoft/zecao/internal/schema"
)

const (
	headerRowCountOffset   = 0x29
	headerFieldCountOffset = 0x2F
	headerDataAreaBase     = 0x200
	fieldDescriptorSize    = 768
	statusByteSize         = 1
)

// IoError wraps a filesystem failure opening or mapping a .dat file.
type IoError struct {
	Path  string
	Cause error
}

func (e *IoError) Error() string { return fmt.Sprintf("materializer: %s: %v", e.Path, e.Cause) }
func (e *IoError) Unwrap() error { return e.Cause }

// HeaderCorrupt indicates the .dat file's header describes a data area
// beyond the file's actual length.
type HeaderCorrupt struct {
	Path string
}

func (e *HeaderCorrupt) Error() string { return fmt.Sprintf("materializer: %s: header corrupt", e.Path) }

// MaterializeError wraps any SQL-engine failure while creating or populating
// the destination table.
type MaterializeError struct {
	Table string
	Cause error
}

func (e *MaterializeError) Error() string {
	return fmt.Sprintf("materializer: table %s: %v", e.Table, e.Cause)
}
func (e *MaterializeError) Unwrap() error { return e.Cause }

// Cancelled is returned when the cancellation flag fires mid-materialization.
var Cancelled = fmt.Errorf("materializer: cancelled")

// ReaderAt is the minimal contract Materialize needs from a mapped file; it
// is satisfied by *mmap.ReaderAt and by any buffered positional-read
// fallback with the same shape (spec allows degrading to this when mmap is
// unavailable).
type ReaderAt interface {
	ReadAt(p []byte, off int64) (int, error)
	Len() int
}

// Materialize drops and recreates table `name` in db, then bulk-inserts every
// live record from <basePath>/<name>.dat, restricted to the selected columns
// (declaration order). cancel is polled between records; ctx is honored at
// statement-execution boundaries.
func Materialize(ctx context.Context, db *sql.DB, basePath, name string, cfg schema.Table, selected []schema.Column, cancel *atomic.Bool) error {
	path := filepath.Join(basePath, name+".dat")

	r, err := mmap.Open(path)
	if err != nil {
		return &IoError{Path: path, Cause: err}
	}
	defer r.Close()

	totalFields, expectedRows, dataOffset, err := readHeader(r)
	if err != nil {
		return &HeaderCorrupt{Path: path}
	}
	_ = totalFields

	if err := createTable(db, name, selected); err != nil {
		return &MaterializeError{Table: name, Cause: err}
	}

	if len(selected) == 0 {
		// Column resolution produced nothing: the subsequent insert has no
		// columns to target. Report this rather than silently no-op.
		return &MaterializeError{Table: name, Cause: fmt.Errorf("no requested columns matched the schema")}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return &MaterializeError{Table: name, Cause: err}
	}

	if err := insertRecords(ctx, tx, r, cfg, selected, name, dataOffset, expectedRows, cancel); err != nil {
		_ = tx.Rollback()
		if err == Cancelled {
			return Cancelled
		}
		return &MaterializeError{Table: name, Cause: err}
	}

	if err := tx.Commit(); err != nil {
		return &MaterializeError{Table: name, Cause: err}
	}
	return nil
}

func readHeader(r ReaderAt) (totalFields uint16, expectedRows uint32, dataOffset int, err error) {
	var rowCountBuf [4]byte
	if _, err = r.ReadAt(rowCountBuf[:], headerRowCountOffset); err != nil {
		return 0, 0, 0, err
	}
	expectedRows = binary.LittleEndian.Uint32(rowCountBuf[:])

	var fieldCountBuf [2]byte
	if _, err = r.ReadAt(fieldCountBuf[:], headerFieldCountOffset); err != nil {
		return 0, 0, 0, err
	}
	totalFields = binary.LittleEndian.Uint16(fieldCountBuf[:])

	dataOffset = headerDataAreaBase + int(totalFields)*fieldDescriptorSize
	if dataOffset > r.Len() {
		return 0, 0, 0, fmt.Errorf("data offset %d exceeds file length %d", dataOffset, r.Len())
	}
	return totalFields, expectedRows, dataOffset, nil
}

func sqlType(fieldType string) string {
	switch fieldType {
	case "I":
		return "INTEGER"
	case "F":
		return "REAL"
	case "D":
		return "TEXT"
	default:
		return "TEXT"
	}
}

func createTable(db *sql.DB, name string, cols []schema.Column) error {
	if _, err := db.Exec(fmt.Sprintf(`DROP TABLE IF EXISTS "%s"`, name)); err != nil {
		return err
	}
	if len(cols) == 0 {
		return nil
	}

	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = fmt.Sprintf(`"%s" %s`, c.Name, sqlType(c.FieldType))
	}
	createSQL := fmt.Sprintf(`CREATE TABLE "%s" (%s)`, name, strings.Join(defs, ", "))
	_, err := db.Exec(createSQL)
	return err
}

func insertRecords(ctx context.Context, tx *sql.Tx, r ReaderAt, cfg schema.Table, selected []schema.Column, name string, dataOffset int, expectedRows uint32, cancel *atomic.Bool) error {
	placeholders := strings.Repeat("?, ", len(selected))
	placeholders = strings.TrimSuffix(placeholders, ", ")
	insertSQL := fmt.Sprintf(`INSERT INTO "%s" VALUES (%s)`, name, placeholders)

	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return err
	}
	defer stmt.Close()

	recordSize := int(cfg.RecordSize)
	row := make([]byte, recordSize)

	var count uint32
	for i := dataOffset; i+recordSize <= r.Len(); i += recordSize {
		if cancel != nil && cancel.Load() {
			return Cancelled
		}

		if _, err := r.ReadAt(row, int64(i)); err != nil {
			return err
		}

		if row[0] != 0 {
			continue // tombstoned record
		}

		args := decodeRow(row, cfg, selected)
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return err
		}

		count++
		if count >= expectedRows {
			break
		}
	}
	return nil
}

func decodeRow(row []byte, cfg schema.Table, selected []schema.Column) []any {
	args := make([]any, len(selected))
	for i, col := range selected {
		start := statusByteSize + int(col.Offset)

		switch col.FieldType {
		case "I":
			args[i] = int64(readInt32(row, start))
		case "F":
			args[i] = readFloat64(row, start)
		case "D":
			days := readInt32(row, start)
			if iso, ok := codec.DBISAMToISO(days); ok {
				args[i] = iso
			} else {
				args[i] = nil
			}
		default:
			end := stringEnd(cfg, col, len(row))
			if end < start {
				end = start
			}
			args[i] = codec.DecodeString(row[start:end])
		}
	}
	return args
}

// readInt32 treats an overrunning fixed-width field as zero rather than
// failing, per the "silent clamp" policy for truncated records.
func readInt32(row []byte, start int) int32 {
	if start+4 > len(row) {
		return 0
	}
	return int32(binary.LittleEndian.Uint32(row[start : start+4]))
}

func readFloat64(row []byte, start int) float64 {
	if start+8 > len(row) {
		return 0
	}
	bits := binary.LittleEndian.Uint64(row[start : start+8])
	return math.Float64frombits(bits)
}

// stringEnd computes a string field's end as the next larger offset among
// ALL of the table's columns (not just the selected subset), or
// record_size-1, whichever is smaller — preserving the source's behavior so
// subset projections don't read past a string's intended end.
func stringEnd(cfg schema.Table, current schema.Column, rowLen int) int {
	next := uint32(rowLen - statusByteSize)
	for _, c := range cfg.Columns {
		if c.Offset > current.Offset && c.Offset < next {
			next = c.Offset
		}
	}
	return statusByteSize + int(next)
}
