package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hyperengineering/formpath/internal/answer"
	"github.com/hyperengineering/formpath/internal/engine"
	"github.com/hyperengineering/formpath/internal/store"
)

// maxPreviewSteps bounds the walk so cyclic navigation terminates.
const maxPreviewSteps = 100

var previewAnswersFile string

var previewCmd = &cobra.Command{
	Use:   "preview <definition.yaml>",
	Short: "Walk a form definition with scripted answers",
	Long: `Load a definition into a throwaway in-memory store and walk it page by page.
On each page the answers file supplies values for the fields shown there,
then the session advances. The walk stops when the form completes, a
required field is left unanswered, or navigation stops moving.`,
	Args: cobra.ExactArgs(1),
	RunE: runPreview,
}

func init() {
	previewCmd.Flags().StringVar(&previewAnswersFile, "answers", "",
		"YAML or JSON file mapping field names to answers")
	previewCmd.Flags().BoolVar(&formJSONOutput, "json", false,
		"Output in JSON format")
}

// previewStep records one rendered page and what advancing it did.
type previewStep struct {
	PageID     string   `json:"page_id"`
	PageTitle  string   `json:"page_title"`
	Progress   float64  `json:"progress"`
	Visible    []string `json:"visible_fields"`
	Hidden     []string `json:"hidden_fields,omitempty"`
	Required   []string `json:"required_fields,omitempty"`
	Answered   []string `json:"answered,omitempty"`
	Missing    []string `json:"missing_fields,omitempty"`
	NextPageID *string  `json:"next_page_id"`
}

// previewResult is the full walk.
type previewResult struct {
	FormTitle string        `json:"form_title"`
	Steps     []previewStep `json:"steps"`
	Outcome   string        `json:"outcome"`
}

const (
	outcomeComplete = "complete"
	outcomeBlocked  = "blocked"
	outcomeStalled  = "stalled"
	outcomeLooping  = "step limit reached"
)

func runPreview(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	form, err := loadDefinition(args[0])
	if err != nil {
		printValidationErrors(cmd.ErrOrStderr(), err)
		return err
	}

	scripted := answer.Map{}
	if previewAnswersFile != "" {
		scripted, err = loadAnswers(previewAnswersFile)
		if err != nil {
			return err
		}
	}

	st, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		return err
	}
	defer st.Close()

	imported, err := st.ImportForm(ctx, form)
	if err != nil {
		return err
	}

	result, err := walkForm(ctx, engine.New(st), imported.ID, scripted)
	if err != nil {
		return err
	}

	if formJSONOutput {
		return printJSON(cmd.OutOrStdout(), result)
	}
	printPreview(cmd.OutOrStdout(), result)
	return nil
}

// walkForm drives a fresh session through the form, answering each page
// from scripted.
func walkForm(ctx context.Context, eng *engine.Engine, formID string, scripted answer.Map) (*previewResult, error) {
	sess, err := eng.CreateSession(ctx, formID, "")
	if err != nil {
		return nil, err
	}

	result := &previewResult{Outcome: outcomeLooping}
	for i := 0; i < maxPreviewSteps; i++ {
		rendered, err := eng.Render(ctx, formID, sess.ID, nil)
		if err != nil {
			return nil, err
		}
		result.FormTitle = rendered.FormTitle

		// Type this page's answers in, then re-render so field state
		// reflects them the way a live client would.
		typed := answer.Map{}
		for _, f := range rendered.CurrentPage.Fields {
			if v, ok := scripted[f.Name]; ok {
				typed[f.Name] = v
			}
		}
		if len(typed) > 0 {
			rendered, err = eng.Render(ctx, formID, sess.ID, typed)
			if err != nil {
				return nil, err
			}
		}

		step := previewStep{
			PageID:    rendered.CurrentPage.ID,
			PageTitle: rendered.CurrentPage.Title,
			Progress:  rendered.Progress,
		}
		pageAnswers := answer.Map{}
		for _, f := range rendered.CurrentPage.Fields {
			if !f.IsVisible {
				step.Hidden = append(step.Hidden, f.Name)
				continue
			}
			step.Visible = append(step.Visible, f.Name)
			if f.IsRequired {
				step.Required = append(step.Required, f.Name)
			}
			if v, ok := typed[f.Name]; ok {
				pageAnswers[f.Name] = v
				step.Answered = append(step.Answered, f.Name)
			}
		}

		adv, err := eng.Advance(ctx, formID, sess.ID, pageAnswers)
		if err != nil {
			return nil, fmt.Errorf("page %q: %w", step.PageTitle, err)
		}
		step.Missing = adv.MissingFields
		step.NextPageID = adv.NextPageID
		result.Steps = append(result.Steps, step)

		switch {
		case adv.IsComplete:
			result.Outcome = outcomeComplete
			return result, nil
		case len(adv.MissingFields) > 0:
			result.Outcome = outcomeBlocked
			return result, nil
		case !adv.Moved:
			result.Outcome = outcomeStalled
			return result, nil
		}
	}
	return result, nil
}

// loadAnswers reads a name-to-value mapping. JSON is valid YAML, so one
// decoder serves both.
func loadAnswers(path string) (answer.Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read answers: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse answers: %w", err)
	}
	m := make(answer.Map, len(raw))
	for name, v := range raw {
		m[name] = answer.FromAny(v)
	}
	return m, nil
}

func printPreview(w io.Writer, result *previewResult) {
	fmt.Fprintf(w, "Form: %s\n\n", result.FormTitle)

	tw := newTabWriter(w)
	fmt.Fprintln(tw, "STEP\tPAGE\tPROGRESS\tVISIBLE\tANSWERED\tMISSING")
	for i, s := range result.Steps {
		fmt.Fprintf(tw, "%d\t%s\t%.0f%%\t%s\t%s\t%s\n",
			i+1,
			s.PageTitle,
			s.Progress,
			listOrDash(s.Visible),
			listOrDash(s.Answered),
			listOrDash(s.Missing),
		)
	}
	tw.Flush()

	fmt.Fprintf(w, "\nOutcome: %s\n", result.Outcome)
}

func listOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ",")
}
