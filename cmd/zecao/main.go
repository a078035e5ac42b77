// zecao runs SQL reports against a legacy DBISAM-style table store by
// materializing requested tables into an embedded database first.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/bmsoft/zecao/internal/engine"
	"github.com/bmsoft/zecao/internal/reportfile"
)

const version = "0.1.0"

var (
	flagDBPath     string
	flagSchemaPath string
)

func main() {
	root := &cobra.Command{
		Use:     "zecao",
		Short:   "Run reports against legacy DBISAM .dat tables via an embedded database",
		Version: version,
	}
	root.PersistentFlags().StringVar(&flagDBPath, "db", "", "embedded database path (default: zecao.db)")
	root.PersistentFlags().StringVar(&flagSchemaPath, "schema", "", "schema.toml path (default: schema.toml)")

	root.AddCommand(syncCmd(), queryCmd(), consoleCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newEngine() (*engine.Engine, error) {
	return engine.New(engine.Options{DBPath: flagDBPath, SchemaPath: flagSchemaPath})
}

func syncCmd() *cobra.Command {
	var reportPath string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Materialize the tables a report's [SYNC: ...] directive requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := reportfile.Load(reportPath)
			if err != nil {
				return err
			}

			eng, err := newEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			var cancel atomic.Bool
			summary, err := eng.ProcessReport(context.Background(), report.QuerySQL, &cancel, func(pct float32) {
				fmt.Printf("progress: %.1f%%\n", pct)
			})
			if err != nil {
				return err
			}

			for _, t := range summary.Tables {
				fmt.Printf("%s: %d rows\n", t.Table, t.Rows)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&reportPath, "report", "", "path to a report .json file")
	cmd.MarkFlagRequired("report")
	return cmd
}

func queryCmd() *cobra.Command {
	var reportPath string
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run a report's final SELECT against the already-materialized database",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := reportfile.Load(reportPath)
			if err != nil {
				return err
			}

			eng, err := newEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			stmt, err := eng.ExecuteUserSQL(report.QuerySQL)
			if err != nil {
				return err
			}
			defer stmt.Close()

			return printRows(stmt)
		},
	}
	cmd.Flags().StringVar(&reportPath, "report", "", "path to a report .json file")
	cmd.MarkFlagRequired("report")
	return cmd
}

func consoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Interactively read SQL documents, sync, and print results",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := newEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			rl, err := readline.New("zecao> ")
			if err != nil {
				return err
			}
			defer rl.Close()

			for {
				line, err := rl.Readline()
				if err != nil {
					return nil
				}
				line = strings.TrimSpace(line)
				if line == "" {
					continue
				}
				if line == "exit" || line == "quit" {
					return nil
				}

				runInteractive(eng, line)
			}
		},
	}
}

func runInteractive(eng *engine.Engine, sqlDoc string) {
	var cancel atomic.Bool
	if _, err := eng.ProcessReport(context.Background(), sqlDoc, &cancel, func(pct float32) {
		fmt.Printf("progress: %.1f%%\n", pct)
	}); err != nil {
		fmt.Fprintln(os.Stderr, "sync error:", err)
		return
	}

	stmt, err := eng.ExecuteUserSQL(sqlDoc)
	if err != nil {
		fmt.Fprintln(os.Stderr, "query error:", err)
		return
	}
	defer stmt.Close()

	if err := printRows(stmt); err != nil {
		fmt.Fprintln(os.Stderr, "print error:", err)
	}
}

func printRows(stmt *sql.Stmt) error {
	rows, err := stmt.Query()
	if err != nil {
		return err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}

	fmt.Println(strings.Join(cols, "\t"))

	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		parts := make([]string, len(cols))
		for i, v := range vals {
			parts[i] = fmt.Sprintf("%v", v)
		}
		fmt.Println(strings.Join(parts, "\t"))
	}
	return rows.Err()
}
