package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/datagenie/internal/model"
	"github.com/sells-group/datagenie/internal/tabular"
)

var (
	batchFile        string
	batchLimit       int
	batchConcurrency int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Answer every question in a file",
	Long:  "Reads questions from a text, CSV or XLSX file (first column) and prints one pipeline state per line in file order.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		questions, err := tabular.ReadQuestions(ctx, batchFile)
		if err != nil {
			return eris.Wrap(err, "batch: read questions")
		}

		env, err := initPipeline(ctx, "ask")
		if err != nil {
			return err
		}
		defer env.Close()

		return processBatch(ctx, questions, batchLimit, batchConcurrency, os.Stdout, env.Pipeline.Run)
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchFile, "file", "", "questions file (.txt, .csv or .xlsx)")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of questions to process (0 = all)")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 1, "questions processed in parallel")
	_ = batchCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(batchCmd)
}

// batchLine is one JSON line of batch output.
type batchLine struct {
	Index    int                  `json:"index"`
	Question string               `json:"question"`
	State    *model.PipelineState `json:"state,omitempty"`
	Error    string               `json:"error,omitempty"`
}

// processBatch applies limit, runs the questions with at most concurrency in
// flight and writes one line per question to out in input order. Individual
// failures are reported in their line and never abort the batch.
func processBatch(ctx context.Context, questions []string, limit, concurrency int, out io.Writer, ask askFunc) error {
	if len(questions) == 0 {
		zap.L().Info("no questions found")
		return nil
	}

	if limit > 0 && len(questions) > limit {
		questions = questions[:limit]
	}
	if concurrency < 1 {
		concurrency = 1
	}

	zap.L().Info("processing batch",
		zap.Int("questions", len(questions)),
		zap.Int("concurrency", concurrency),
	)

	lines := make([]batchLine, len(questions))
	var succeeded, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, q := range questions {
		g.Go(func() error {
			line := batchLine{Index: i, Question: q}
			state, err := ask(gctx, q)
			line.State = state
			if err != nil {
				failed.Add(1)
				line.Error = err.Error()
				zap.L().Error("question failed", zap.Int("index", i), zap.String("question", q), zap.Error(err))
			} else {
				succeeded.Add(1)
			}
			lines[i] = line
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "batch processing")
	}

	enc := json.NewEncoder(out)
	for _, line := range lines {
		if err := enc.Encode(line); err != nil {
			return eris.Wrap(err, "batch: write output")
		}
	}

	zap.L().Info("batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return ctx.Err()
}
