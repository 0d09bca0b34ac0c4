package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/formpath/internal/config"
	"github.com/hyperengineering/formpath/internal/formdef"
	"github.com/hyperengineering/formpath/internal/store"
	"github.com/hyperengineering/formpath/internal/types"
	"github.com/hyperengineering/formpath/internal/validation"
)

var (
	formDBOverride string
	formJSONOutput bool
)

var formCmd = &cobra.Command{
	Use:   "form",
	Short: "Manage form definitions",
	Long:  "Import, list, inspect, validate and delete forms without running the server.",
}

func init() {
	formCmd.PersistentFlags().StringVar(&formDBOverride, "db", "",
		"Database path (overrides config and FORMPATH_DB_PATH)")
	formCmd.PersistentFlags().BoolVar(&formJSONOutput, "json", false,
		"Output in JSON format")

	formCmd.AddCommand(formImportCmd)
	formCmd.AddCommand(formListCmd)
	formCmd.AddCommand(formShowCmd)
	formCmd.AddCommand(formDeleteCmd)
	formCmd.AddCommand(formValidateCmd)
}

// openStore opens the configured database, or the --db override.
func openStore() (*store.SQLiteStore, error) {
	path := formDBOverride
	if path == "" {
		dbCfg, err := config.LoadDatabaseConfig()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		path = dbCfg.Path
	}
	return store.NewSQLiteStore(path)
}

// loadDefinition reads, parses and compiles a definition file.
func loadDefinition(path string) (*types.Form, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definition: %w", err)
	}
	def, err := formdef.Parse(data)
	if err != nil {
		return nil, err
	}
	return formdef.Build(def)
}

// printValidationErrors lists per-field errors, one per line, when err
// carries them.
func printValidationErrors(w io.Writer, err error) {
	var failed *validation.FailedError
	if !errors.As(err, &failed) {
		return
	}
	for _, e := range failed.Errors {
		fmt.Fprintf(w, "  %s: %s\n", e.Field, e.Message)
	}
}

// printJSON marshals v to JSON and writes to the given writer.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newTabWriter returns a configured tabwriter for aligned columns.
func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

// countFields returns the number of fields across all pages.
func countFields(form *types.Form) int {
	n := 0
	for _, p := range form.Pages {
		n += len(p.Fields)
	}
	return n
}
