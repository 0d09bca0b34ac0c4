package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var formListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all forms",
	Args:  cobra.NoArgs,
	RunE:  runFormList,
}

func runFormList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	forms, err := st.ListForms(ctx)
	if err != nil {
		return fmt.Errorf("list forms: %w", err)
	}

	if formJSONOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"forms": forms,
			"total": len(forms),
		})
	}

	if len(forms) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No forms found.")
		return nil
	}

	w := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintln(w, "ID\tTITLE\tPAGES\tACTIVE\tCREATED")
	for _, f := range forms {
		fmt.Fprintf(w, "%s\t%s\t%d\t%t\t%s\n",
			f.ID,
			f.Title,
			f.PageCount,
			f.IsActive,
			f.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	w.Flush()

	return nil
}
