// Package engine owns the embedded database connection, the schema
// registry, and the base filesystem path for legacy .dat files — the single
// facade external callers (a UI shell, a CLI) construct once and hold for
// the life of the process.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	_ "modernc.org/sqlite"

	"github.com/bmsoft/zecao/internal/ingest"
	"github.com/bmsoft/zecao/internal/query"
	"github.com/bmsoft/zecao/internal/schema"
)

const (
	defaultDBPath      = "zecao.db"
	defaultSchemaPath  = "schema.toml"
	defaultDatabaseDir = "."
)

// ConfigError wraps a failure loading environment or the schema document.
type ConfigError struct {
	Step  string
	Cause error
}

func (e *ConfigError) Error() string { return fmt.Sprintf("engine: %s: %v", e.Step, e.Cause) }
func (e *ConfigError) Unwrap() error { return e.Cause }

// DBOpenError wraps a failure opening the embedded database file.
type DBOpenError struct {
	Path  string
	Cause error
}

func (e *DBOpenError) Error() string { return fmt.Sprintf("engine: open %s: %v", e.Path, e.Cause) }
func (e *DBOpenError) Unwrap() error { return e.Cause }

// Options configures construction. DBPath and SchemaPath fall back to an
// environment variable and then a built-in default, and an empty EnvFile
// loads no extra file, so the zero value is a valid, working configuration.
type Options struct {
	// EnvFile, if set, is an additional .env-shaped config file to load
	// (mirrors the original implementation's dotenv step).
	EnvFile string
	// DBPath overrides the embedded database file location.
	DBPath string
	// SchemaPath overrides the schema.toml location.
	SchemaPath string
}

// Engine is the facade: DB connection, schema registry, and base path.
// It exclusively owns db — callers must not share it across other
// connections, and must not use Engine concurrently from multiple writers.
type Engine struct {
	db       *sql.DB
	schema   atomic.Pointer[schema.Registry]
	basePath string
	watcher  *fsnotify.Watcher
}

// New constructs the engine: loads environment configuration, resolves the
// base path for .dat files from DATABASE_PATH (or a platform default),
// opens/creates the embedded DB file, and loads the schema document. Any
// step failing aborts construction.
func New(opts Options) (*Engine, error) {
	v := viper.New()
	v.SetEnvPrefix("")
	v.AutomaticEnv()

	if opts.EnvFile != "" {
		v.SetConfigFile(opts.EnvFile)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, &ConfigError{Step: "load environment", Cause: err}
			}
		}
	}

	basePath := v.GetString("DATABASE_PATH")
	if basePath == "" {
		basePath = defaultDatabaseDir
	}

	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = v.GetString("ZECAO_DB_PATH")
	}
	if dbPath == "" {
		dbPath = defaultDBPath
	}

	schemaPath := opts.SchemaPath
	if schemaPath == "" {
		schemaPath = v.GetString("ZECAO_SCHEMA_PATH")
	}
	if schemaPath == "" {
		schemaPath = defaultSchemaPath
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, &DBOpenError{Path: dbPath, Cause: err}
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &DBOpenError{Path: dbPath, Cause: err}
	}

	reg, err := schema.Load(schemaPath)
	if err != nil {
		db.Close()
		return nil, &ConfigError{Step: "load schema", Cause: err}
	}

	log.Info("engine constructed", "db_path", dbPath, "schema_path", schemaPath, "base_path", basePath)

	e := &Engine{db: db, basePath: basePath}
	e.schema.Store(reg)
	return e, nil
}

// Close releases the embedded DB connection and any file watcher.
func (e *Engine) Close() error {
	if e.watcher != nil {
		e.watcher.Close()
	}
	return e.db.Close()
}

// ProcessReport runs the ingest pipeline for sql: parses the [SYNC: ...]
// directive, materializes each requested table, and reports progress.
func (e *Engine) ProcessReport(ctx context.Context, sql string, cancel *atomic.Bool, onProgress func(float32)) (ingest.Summary, error) {
	return ingest.Process(ctx, e.db, e.schema.Load(), e.basePath, sql, cancel, onProgress)
}

// ExecuteUserSQL strips the directive from sql, runs any preparatory
// statements, and returns a prepared handle for the final SELECT.
func (e *Engine) ExecuteUserSQL(sql string) (*sql.Stmt, error) {
	return query.Execute(e.db, sql)
}

// Schema exposes the loaded schema registry for read-only inspection.
func (e *Engine) Schema() *schema.Registry { return e.schema.Load() }

// BasePath returns the resolved base directory for legacy .dat files.
func (e *Engine) BasePath() string { return e.basePath }

// WatchSchema re-loads the schema document whenever it changes on disk,
// calling onReload with the new registry (or the load error). Optional —
// callers that don't need hot-reload never call it.
func (e *Engine) WatchSchema(schemaPath string, onReload func(*schema.Registry, error)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	e.watcher = w

	go func() {
		for event := range w.Events {
			if event.Op&fsnotify.Write == fsnotify.Write {
				reg, err := schema.Load(schemaPath)
				if err == nil {
					e.schema.Store(reg)
				}
				onReload(reg, err)
			}
		}
	}()

	return w.Add(schemaPath)
}
