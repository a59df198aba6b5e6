package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/datagenie/internal/model"
	"github.com/sells-group/datagenie/internal/store"
	"github.com/sells-group/datagenie/internal/tabular"
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Inspect and export the results log",
}

// -- results list --

var resultsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List results log entries",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("results"); err != nil {
			return err
		}
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		filter, err := resultFilterFromFlags(cmd)
		if err != nil {
			return err
		}
		recs, err := st.ListResults(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "results list")
		}
		if len(recs) == 0 {
			fmt.Fprintln(os.Stderr, "No results found.")
			return nil
		}

		formatResultsList(os.Stdout, recs)
		return nil
	},
}

// -- results export --

var resultsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the results log to CSV or XLSX",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("results"); err != nil {
			return err
		}

		out, _ := cmd.Flags().GetString("out")
		name, _ := cmd.Flags().GetString("format")
		format, err := tabular.ParseFormat(name, out)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		filter, err := resultFilterFromFlags(cmd)
		if err != nil {
			return err
		}
		recs, err := st.ListResults(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "results export")
		}

		f, err := os.Create(out)
		if err != nil {
			return eris.Wrapf(err, "results export: create %s", out)
		}
		if err := tabular.WriteResults(f, format, recs); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return eris.Wrapf(err, "results export: close %s", out)
		}

		zap.L().Info("results exported",
			zap.String("path", out),
			zap.String("format", string(format)),
			zap.Int("records", len(recs)),
		)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{resultsListCmd, resultsExportCmd} {
		c.Flags().String("run", "", "filter by run ID")
		c.Flags().String("question", "", "filter by question substring")
	}
	resultsListCmd.Flags().Int("limit", 50, "max number of entries to display")
	resultsExportCmd.Flags().Int("limit", 10000, "max number of entries to export")

	resultsExportCmd.Flags().String("out", "", "output file path")
	resultsExportCmd.Flags().String("format", "", "csv or xlsx (default from --out extension)")
	_ = resultsExportCmd.MarkFlagRequired("out")

	resultsCmd.AddCommand(resultsListCmd)
	resultsCmd.AddCommand(resultsExportCmd)
	rootCmd.AddCommand(resultsCmd)
}

func resultFilterFromFlags(cmd *cobra.Command) (store.ResultFilter, error) {
	runID, err := cmd.Flags().GetString("run")
	if err != nil {
		return store.ResultFilter{}, err
	}
	question, _ := cmd.Flags().GetString("question")
	limit, _ := cmd.Flags().GetInt("limit")
	return store.ResultFilter{RunID: runID, Question: question, Limit: limit}, nil
}

// formatResultsList writes a tabular list of results log entries to w.
func formatResultsList(out io.Writer, recs []model.ResultRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tRUN\tQUESTION\tSTATUS\tROWS\tREPAIRED\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t---\t--------\t------\t----\t--------\t-------")

	for _, r := range recs {
		question := r.Question
		if len(question) > 40 {
			question = question[:37] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%t\t%s\n",
			truncateID(r.ID),
			truncateID(r.RunID),
			question,
			r.Status,
			r.RowCount,
			r.Repaired,
			r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}
