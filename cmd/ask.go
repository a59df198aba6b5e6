package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/datagenie/internal/model"
)

// askFunc runs the pipeline for one question.
type askFunc func(ctx context.Context, question string) (*model.PipelineState, error)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer one business question",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		question := strings.TrimSpace(strings.Join(args, " "))
		if question == "" {
			return eris.New("ask: question is required")
		}

		env, err := initPipeline(ctx, "ask")
		if err != nil {
			return err
		}
		defer env.Close()

		state, runErr := env.Pipeline.Run(ctx, question)
		if err := writeState(os.Stdout, state, true); err != nil {
			return err
		}
		return runErr
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
}

// writeState encodes state as JSON to w. A nil state writes nothing.
func writeState(w io.Writer, state *model.PipelineState, indent bool) error {
	if state == nil {
		return nil
	}
	enc := json.NewEncoder(w)
	if indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(state); err != nil {
		return eris.Wrap(err, "encode state")
	}
	return nil
}
