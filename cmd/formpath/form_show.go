package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/formpath/internal/formdef"
)

var formShowCmd = &cobra.Command{
	Use:   "show <form-id>",
	Short: "Print a stored form as a definition",
	Long:  "Print a stored form as an editable YAML definition, or with --json as the full stored graph including ids.",
	Args:  cobra.ExactArgs(1),
	RunE:  runFormShow,
}

func runFormShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	form, err := st.LoadFormGraph(ctx, args[0])
	if err != nil {
		return err
	}

	if formJSONOutput {
		return printJSON(cmd.OutOrStdout(), form)
	}

	data, err := formdef.Marshal(formdef.Export(form))
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
