package main

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var deleteForce bool

var formDeleteCmd = &cobra.Command{
	Use:   "delete <form-id>",
	Short: "Delete a form and all its sessions",
	Long:  "Permanently delete a form together with its sessions and recorded answers. Requires --force or interactive confirmation.",
	Args:  cobra.ExactArgs(1),
	RunE:  runFormDelete,
}

func init() {
	formDeleteCmd.Flags().BoolVar(&deleteForce, "force", false,
		"Skip confirmation prompt")
}

func runFormDelete(cmd *cobra.Command, args []string) error {
	formID := args[0]
	ctx := context.Background()

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	// Fail on unknown ids before prompting
	form, err := st.LoadFormGraph(ctx, formID)
	if err != nil {
		return err
	}

	// Interactive confirmation unless --force
	if !deleteForce {
		errOut := cmd.ErrOrStderr()
		fmt.Fprintf(errOut, "WARNING: This will permanently delete form %q (%s) and all its responses.\n", form.Title, formID)
		fmt.Fprint(errOut, "Type the form ID to confirm: ")

		reader := bufio.NewReader(cmd.InOrStdin())
		input, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read confirmation: %w", err)
		}

		if strings.TrimSpace(input) != formID {
			fmt.Fprintln(errOut, "Aborted. Form ID did not match.")
			return nil
		}
	}

	if err := st.DeleteForm(ctx, formID); err != nil {
		return err
	}

	if formJSONOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"id":      formID,
			"deleted": true,
		})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Deleted form %q\n", formID)
	return nil
}
