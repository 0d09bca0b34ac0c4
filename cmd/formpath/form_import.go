package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/formpath/internal/store"
)

var importIfNotExists bool

var formImportCmd = &cobra.Command{
	Use:   "import <definition.yaml>",
	Short: "Import a form definition",
	Long:  "Validate a YAML or JSON form definition and store it. Pages refer to each other by key and fields by name; ids are assigned on import unless the definition carries one.",
	Args:  cobra.ExactArgs(1),
	RunE:  runFormImport,
}

func init() {
	formImportCmd.Flags().BoolVar(&importIfNotExists, "if-not-exists", false,
		"Exit 0 if a form with the definition's id already exists")
}

func runFormImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	form, err := loadDefinition(args[0])
	if err != nil {
		printValidationErrors(cmd.ErrOrStderr(), err)
		return err
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	result, err := st.ImportForm(ctx, form)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateForm) && importIfNotExists {
			if formJSONOutput {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"id":              form.ID,
					"title":           form.Title,
					"already_existed": true,
				})
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Form %q already exists\n", form.ID)
			return nil
		}
		return err
	}

	if formJSONOutput {
		return printJSON(cmd.OutOrStdout(), result)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Imported form %q (id: %s, pages: %d)\n", result.Title, result.ID, result.PageCount)
	return nil
}
