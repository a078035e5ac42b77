package query

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "zecao.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestExecuteStripsDirectiveAndPreparesSelect(t *testing.T) {
	db := openDB(t)
	if _, err := db.Exec(`CREATE TABLE pessoas (id INTEGER, nome TEXT)`); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`INSERT INTO pessoas VALUES (1, 'ANA')`); err != nil {
		t.Fatal(err)
	}

	stmt, err := Execute(db, "-- [SYNC: pessoas(*)]\nSELECT nome FROM pessoas WHERE id = 1")
	if err != nil {
		t.Fatal(err)
	}
	defer stmt.Close()

	var nome string
	if err := stmt.QueryRow().Scan(&nome); err != nil {
		t.Fatal(err)
	}
	if nome != "ANA" {
		t.Errorf("got %q", nome)
	}
}

func TestExecuteRunsPreludeStatements(t *testing.T) {
	db := openDB(t)
	if _, err := db.Exec(`CREATE TABLE pessoas (id INTEGER, nome TEXT)`); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`INSERT INTO pessoas VALUES (1, 'ANA')`); err != nil {
		t.Fatal(err)
	}

	sql := `[SYNC: pessoas(*)]
CREATE TEMP VIEW v_pessoas AS SELECT * FROM pessoas;
SELECT nome FROM v_pessoas`

	stmt, err := Execute(db, sql)
	if err != nil {
		t.Fatal(err)
	}
	defer stmt.Close()

	var nome string
	if err := stmt.QueryRow().Scan(&nome); err != nil {
		t.Fatal(err)
	}
	if nome != "ANA" {
		t.Errorf("got %q", nome)
	}
}

func TestExecuteEmptySQLAfterStrippingIsError(t *testing.T) {
	db := openDB(t)
	_, err := Execute(db, "[SYNC: pessoas(*)]")
	if err != EmptySQL {
		t.Fatalf("got %v, want EmptySQL", err)
	}
}

func TestExecuteBadPreludeStatementIsExecError(t *testing.T) {
	db := openDB(t)
	_, err := Execute(db, "NOT VALID SQL; SELECT 1")
	var execErr *ExecError
	if ee, ok := err.(*ExecError); !ok {
		t.Fatalf("got %T: %v", err, err)
	} else {
		execErr = ee
	}
	if execErr.Fragment != "NOT VALID SQL" {
		t.Errorf("got fragment %q", execErr.Fragment)
	}
}

func TestExecuteBadFinalStatementIsPrepareError(t *testing.T) {
	db := openDB(t)
	_, err := Execute(db, "SELECT NOT VALID")
	if _, ok := err.(*PrepareError); !ok {
		t.Fatalf("got %T: %v", err, err)
	}
}

func TestExecuteSucceedsOnInputThatDiffersOnlyByDirective(t *testing.T) {
	db := openDB(t)
	if _, err := db.Exec(`CREATE TABLE pessoas (id INTEGER)`); err != nil {
		t.Fatal(err)
	}

	plain := "SELECT id FROM pessoas"
	withDirective := "-- [SYNC: pessoas(*)]\n" + plain

	s1, err := Execute(db, plain)
	if err != nil {
		t.Fatal(err)
	}
	s1.Close()

	s2, err := Execute(db, withDirective)
	if err != nil {
		t.Fatal(err)
	}
	s2.Close()
}
