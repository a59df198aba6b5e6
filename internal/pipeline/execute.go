package pipeline

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/datagenie/internal/model"
	"github.com/sells-group/datagenie/internal/oracle"
	"github.com/sells-group/datagenie/internal/store"
	"github.com/sells-group/datagenie/internal/warehouse"
)

// ExecutionResult is what one execute stage produced.
type ExecutionResult struct {
	Outcome model.ExecutionOutcome
	Repair  *model.RepairAttempt
	Usage   model.TokenUsage
}

// Executor runs a synthesized statement, repairs it at most once, and logs
// the terminal outcome to the results log.
type Executor struct {
	engine      warehouse.Engine
	oracle      oracle.Oracle
	results     store.Store
	context     string
	previewRows int
}

// NewExecutor creates an Executor.
func NewExecutor(eng warehouse.Engine, o oracle.Oracle, st store.Store, catalogText string, previewRows int) *Executor {
	if previewRows <= 0 {
		previewRows = 5
	}
	return &Executor{engine: eng, oracle: o, results: st, context: catalogText, previewRows: previewRows}
}

// Execute runs artifact. The sentinel artifact never reaches the engine.
// A failed first execution gets one repair call and at most one more
// execution; the second outcome is final whatever it is.
func (e *Executor) Execute(ctx context.Context, runID, question string, artifact model.SQLArtifact) (*ExecutionResult, error) {
	log := zap.L().With(zap.String("stage", "execute"), zap.String("run_id", runID))

	if !artifact.IsUsable {
		out := model.ExecutionOutcome{
			Status:      model.ExecutionEngineError,
			Statement:   artifact.Statement,
			ErrorDetail: ErrSynthesisExhausted.Error(),
		}
		log.Warn("pipeline: skipping execution of unusable statement", zap.Int("attempts", artifact.Attempts))
		e.record(ctx, runID, question, out, false)
		return &ExecutionResult{Outcome: out}, nil
	}

	first, err := e.run(ctx, artifact.Statement)
	if err != nil {
		return nil, err
	}
	if first.Succeeded() {
		e.record(ctx, runID, question, first, false)
		return &ExecutionResult{Outcome: first}, nil
	}

	log.Info("pipeline: execution failed, attempting repair",
		zap.String("status", string(first.Status)),
		zap.String("detail", first.FailureDetail()),
	)

	repaired, usage, err := e.repair(ctx, question, first)
	if err != nil {
		return nil, err
	}
	res := &ExecutionResult{
		Usage: usage,
		Repair: &model.RepairAttempt{
			InputQuestion:   question,
			FailedStatement: first.Statement,
			FailureDetail:   first.FailureDetail(),
			Repaired:        repaired,
		},
	}

	if !repaired.IsUsable {
		log.Warn("pipeline: repair produced no usable statement")
		res.Outcome = first
		e.record(ctx, runID, question, first, false)
		return res, nil
	}

	second, err := e.run(ctx, repaired.Statement)
	if err != nil {
		return nil, err
	}
	res.Outcome = second
	e.record(ctx, runID, question, second, true)
	return res, nil
}

// run executes one statement and classifies the result. Engine failures
// become outcomes; only cancellation of ctx is returned as an error.
func (e *Executor) run(ctx context.Context, stmt string) (model.ExecutionOutcome, error) {
	table, err := e.engine.Execute(ctx, stmt)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return model.ExecutionOutcome{}, eris.Wrap(ctxErr, "pipeline: execute")
		}
		return model.ExecutionOutcome{
			Status:      model.ExecutionEngineError,
			Statement:   stmt,
			ErrorDetail: warehouse.Detail(err),
		}, nil
	}
	if table.Len() == 0 {
		return model.ExecutionOutcome{Status: model.ExecutionEmptyResult, Statement: stmt, Rows: table}, nil
	}
	return model.ExecutionOutcome{
		Status:    model.ExecutionSuccess,
		Statement: stmt,
		Rows:      table,
		RowCount:  table.Len(),
	}, nil
}

// repair makes the single repair call. An unusable reply yields an unusable
// artifact, not an error.
func (e *Executor) repair(ctx context.Context, question string, failed model.ExecutionOutcome) (model.SQLArtifact, model.TokenUsage, error) {
	resp, err := e.oracle.Complete(ctx, oracle.Request{
		Stage:   "repair",
		Context: e.context,
		Turns: []oracle.Turn{
			oracle.System(repairSystemPrompt),
			oracle.User(fmt.Sprintf(repairUserPrompt, question, failed.Statement, failed.FailureDetail())),
		},
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return model.SQLArtifact{}, model.TokenUsage{}, eris.Wrap(ctxErr, "pipeline: repair")
		}
		zap.L().Warn("pipeline: repair call failed", zap.Error(err))
		return model.SQLArtifact{Statement: model.SentinelStatement, Attempts: 1}, model.TokenUsage{}, nil
	}

	stmt, reason := extractStatement(resp.Text)
	if reason != "" {
		zap.L().Debug("pipeline: repair discarded", zap.String("reason", reason))
		return model.SQLArtifact{Statement: model.SentinelStatement, Attempts: 1}, usageOf(resp), nil
	}
	return model.SQLArtifact{Statement: stmt, IsUsable: true, Attempts: 1}, usageOf(resp), nil
}

// record appends the terminal outcome to the results log. Logging failures
// never change the outcome.
func (e *Executor) record(ctx context.Context, runID, question string, out model.ExecutionOutcome, repaired bool) {
	if e.results == nil {
		return
	}
	rec := model.NewResultRecord(runID, question, out, repaired, e.previewRows)
	if _, err := e.results.AppendResult(context.WithoutCancel(ctx), rec); err != nil {
		zap.L().Warn("pipeline: append result failed",
			zap.String("run_id", runID),
			zap.Error(err),
		)
	}
}
