package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var formValidateCmd = &cobra.Command{
	Use:   "validate <definition.yaml>",
	Short: "Check a form definition without importing it",
	Args:  cobra.ExactArgs(1),
	RunE:  runFormValidate,
}

func runFormValidate(cmd *cobra.Command, args []string) error {
	form, err := loadDefinition(args[0])
	if err != nil {
		if formJSONOutput {
			printJSON(cmd.OutOrStdout(), map[string]any{
				"valid": false,
				"error": err.Error(),
			})
		}
		printValidationErrors(cmd.ErrOrStderr(), err)
		return err
	}

	if formJSONOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"valid":  true,
			"title":  form.Title,
			"pages":  len(form.Pages),
			"fields": countFields(form),
		})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Form %q is valid (%d pages, %d fields)\n", form.Title, len(form.Pages), countFields(form))
	return nil
}
