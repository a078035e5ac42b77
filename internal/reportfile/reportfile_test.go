package reportfile

import (
	"path/filepath"
	"testing"
)

func TestSaveThenLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.json")

	want := &Report{
		Descricao: "Relatorio de pessoas",
		QuerySQL:  "-- [SYNC: pessoas(*)]\nSELECT * FROM pessoas",
	}
	if err := Save(path, want); err != nil {
		t.Fatal(err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Descricao != want.Descricao || got.QuerySQL != want.QuerySQL {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestLoadMissingQuerySQLIsError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.json")
	if err := Save(path, &Report{Descricao: "no sql"}); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for missing query_sql")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err == nil {
		t.Fatal("expected error")
	}
}
