// Package pipeline turns a natural-language question into SQL, executes it
// against the warehouse and charts the result, or fans a broad question out
// into a dashboard of sub-questions.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/datagenie/internal/catalog"
	"github.com/sells-group/datagenie/internal/config"
	"github.com/sells-group/datagenie/internal/cost"
	"github.com/sells-group/datagenie/internal/model"
	"github.com/sells-group/datagenie/internal/oracle"
	"github.com/sells-group/datagenie/internal/render"
	"github.com/sells-group/datagenie/internal/store"
	"github.com/sells-group/datagenie/internal/warehouse"
)

// Pipeline routes one question through the stages.
type Pipeline struct {
	cfg         *config.Config
	store       store.Store
	renderer    render.Renderer
	classifier  *Classifier
	synthesizer *Synthesizer
	executor    *Executor
	visualizer  *Visualizer
	decomposer  *Decomposer
	costCalc    *cost.Calculator
}

// New creates a Pipeline. The catalog text is shared read-only grounding
// context for every oracle call.
func New(
	cfg *config.Config,
	st store.Store,
	orc oracle.Oracle,
	eng warehouse.Engine,
	rnd render.Renderer,
	cat *catalog.Catalog,
) *Pipeline {
	text := cat.Text()
	return &Pipeline{
		cfg:         cfg,
		store:       st,
		renderer:    rnd,
		classifier:  NewClassifier(orc, text),
		synthesizer: NewSynthesizer(orc, text, cfg.Pipeline.SynthesisAttempts),
		executor:    NewExecutor(eng, orc, st, text, cfg.Pipeline.PreviewRows),
		visualizer:  NewVisualizer(orc, rnd, cfg.Pipeline.SampleRows),
		decomposer:  NewDecomposer(orc, text, cfg.Dashboard.MinQuestions, cfg.Dashboard.MaxQuestions),
		costCalc:    cost.NewCalculator(cost.RatesFromConfig(cfg.Pricing)),
	}
}

type runOptions struct {
	prefix           string
	nested           bool
	defaultVisualize bool
}

// Run answers one question and returns the final state. Expected failures
// (rejection, synthesis exhaustion, execution failure, empty dashboard) are
// state outcomes. An error is returned only when the run record cannot be
// created, classification output is unparseable, or ctx is done.
func (p *Pipeline) Run(ctx context.Context, question string) (*model.PipelineState, error) {
	run, err := p.store.CreateRun(ctx, question)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}

	log := zap.L().With(zap.String("run_id", run.ID), zap.String("question", question))
	log.Info("pipeline: starting run")

	tr := newRunTracker(p.store, run.ID)
	state, runErr := p.runQuestion(ctx, tr, model.PipelineState{RunID: run.ID, Question: question}, runOptions{})
	if runErr != nil && state.Reason == "" {
		state = state.Merge(model.PipelineState{Reason: runErr.Error()})
	}

	usage := tr.totalUsage()
	result := &model.RunResult{
		Outcome:     state.Outcome,
		Reason:      state.Reason,
		State:       &state,
		Stages:      tr.results(),
		TotalTokens: usage.Total(),
		TotalCost: p.costCalc.Cost(p.cfg.Oracle.Model, cost.Usage{
			Input:      usage.InputTokens,
			Output:     usage.OutputTokens,
			CacheWrite: usage.CacheWriteTokens,
			CacheRead:  usage.CacheReadTokens,
		}),
	}
	if saveErr := p.store.UpdateRunResult(context.WithoutCancel(ctx), run.ID, result); saveErr != nil {
		log.Warn("pipeline: failed to save run result", zap.Error(saveErr))
	}

	log.Info("pipeline: run complete",
		zap.String("outcome", string(state.Outcome)),
		zap.Int("tokens", result.TotalTokens),
		zap.Int("oracle_calls", usage.Calls),
		zap.Float64("cost_usd", result.TotalCost),
	)
	return &state, runErr
}

// runQuestion drives the router until it reports done. Sub-pipelines share
// the tracker of their parent run.
func (p *Pipeline) runQuestion(ctx context.Context, tr *runTracker, state model.PipelineState, opts runOptions) (model.PipelineState, error) {
	for {
		next := route(state, p.cfg.Pipeline.Visualize)
		if next == stageDone {
			break
		}
		if !opts.nested {
			tr.setStatus(ctx, next.runStatus())
		}

		delta, err := p.step(ctx, tr, next, state, opts)
		state = state.Merge(delta)
		if err != nil {
			return state, err
		}
	}

	if state.Outcome == model.OutcomePending {
		state = state.Merge(model.PipelineState{Outcome: model.OutcomeAnswered})
	}
	return state, nil
}

// step runs one stage and returns its delta.
func (p *Pipeline) step(ctx context.Context, tr *runTracker, next stage, state model.PipelineState, opts runOptions) (model.PipelineState, error) {
	var delta model.PipelineState
	name := opts.prefix + string(next)

	switch next {
	case stageClassify:
		err := tr.track(ctx, name, func(ctx context.Context) (model.TokenUsage, map[string]any, error) {
			cls, usage, err := p.classifier.Classify(ctx, state.Question, opts.defaultVisualize)
			if err != nil {
				return usage, nil, err
			}
			delta.Classification = cls
			return usage, map[string]any{
				"accepted":  cls.Accepted(),
				"visualize": cls.WantsVisualization,
				"dashboard": cls.WantsDashboard,
			}, nil
		})
		if err != nil {
			if eris.Is(err, ErrClassificationParse) {
				delta.Outcome = model.OutcomeClassificationErr
				delta.Reason = err.Error()
			}
			return delta, err
		}
		switch {
		case !delta.Classification.Accepted():
			delta.Outcome = model.OutcomeRejected
			delta.Reason = delta.Classification.RejectionReason
		case opts.nested && delta.Classification.WantsDashboard:
			delta.Outcome = model.OutcomeRejected
			delta.Reason = "nested dashboard requests are not supported"
		}

	case stageSynthesize:
		err := tr.track(ctx, name, func(ctx context.Context) (model.TokenUsage, map[string]any, error) {
			art, usage, err := p.synthesizer.Synthesize(ctx, state.Question, *state.Classification)
			if err != nil {
				return usage, nil, err
			}
			delta.SQL = &art
			return usage, map[string]any{"attempts": art.Attempts, "usable": art.IsUsable}, nil
		})
		if err != nil {
			return delta, err
		}

	case stageExecute:
		err := tr.track(ctx, name, func(ctx context.Context) (model.TokenUsage, map[string]any, error) {
			res, err := p.executor.Execute(ctx, state.RunID, state.Question, *state.SQL)
			if err != nil {
				return model.TokenUsage{}, nil, err
			}
			out := res.Outcome
			delta.Execution = &out
			delta.Repair = res.Repair
			return res.Usage, map[string]any{
				"status":    string(out.Status),
				"row_count": out.RowCount,
				"repaired":  res.Repair != nil,
			}, nil
		})
		if err != nil {
			return delta, err
		}
		switch {
		case !state.SQL.IsUsable:
			delta.Outcome = model.OutcomeSynthesisFailed
			delta.Reason = ErrSynthesisExhausted.Error()
		case !delta.Execution.Succeeded():
			delta.Outcome = model.OutcomeExecutionFailed
			delta.Reason = delta.Execution.FailureDetail()
		}

	case stageVisualize:
		var vizErr error
		err := tr.track(ctx, name, func(ctx context.Context) (model.TokenUsage, map[string]any, error) {
			res, err := p.visualizer.Visualize(ctx, state.Question, state.Classification.AnalysisGoal, state.Execution.Rows)
			delta.Visualization = res.Spec
			delta.Chart = res.Chart
			if err != nil {
				vizErr = err
				return res.Usage, nil, err
			}
			return res.Usage, map[string]any{"path": res.Chart.StoragePath, "kind": string(res.Spec.ChartKind)}, nil
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return delta, eris.Wrap(ctxErr, "pipeline: visualize")
			}
			delta.VisualizationError = vizErr.Error()
		}

	case stageDashboard:
		var d model.PipelineState
		err := tr.track(ctx, name, func(ctx context.Context) (model.TokenUsage, map[string]any, error) {
			var err error
			d, err = p.dashboard(ctx, tr, state)
			if err != nil {
				return model.TokenUsage{}, nil, err
			}
			meta := map[string]any{"outcome": string(d.Outcome)}
			if d.Dashboard != nil {
				meta["charts"] = len(d.Dashboard.ChartArtifacts)
			}
			return model.TokenUsage{}, meta, nil
		})
		if err != nil {
			return d, err
		}
		delta = d
	}
	return delta, nil
}

// runTracker records stage results for one run, including the stages of
// concurrently running dashboard sub-pipelines.
type runTracker struct {
	store store.Store
	runID string

	mu     sync.Mutex
	stages []model.StageResult
	usage  model.TokenUsage
}

func newRunTracker(st store.Store, runID string) *runTracker {
	return &runTracker{store: st, runID: runID}
}

func (t *runTracker) setStatus(ctx context.Context, status model.RunStatus) {
	if err := t.store.UpdateRunStatus(ctx, t.runID, status); err != nil {
		zap.L().Warn("pipeline: failed to update status",
			zap.String("run_id", t.runID),
			zap.Error(err),
		)
	}
}

// track runs fn as the named stage and persists its result. Store failures
// are logged and never fail the stage.
func (t *runTracker) track(ctx context.Context, name string, fn func(context.Context) (model.TokenUsage, map[string]any, error)) error {
	log := zap.L().With(zap.String("run_id", t.runID), zap.String("stage", name))

	rs, createErr := t.store.CreateStage(ctx, t.runID, name)
	if createErr != nil {
		log.Warn("pipeline: failed to create stage", zap.Error(createErr))
	}

	start := time.Now()
	usage, meta, fnErr := fn(ctx)
	duration := time.Since(start).Milliseconds()

	result := &model.StageResult{
		Name:       name,
		Status:     model.StageStatusComplete,
		Duration:   duration,
		TokenUsage: usage,
		Metadata:   meta,
	}
	if fnErr != nil {
		result.Status = model.StageStatusFailed
		result.Error = fnErr.Error()
		log.Warn("pipeline: stage failed",
			zap.Int64("duration_ms", duration),
			zap.Error(fnErr),
		)
	} else {
		log.Info("pipeline: stage complete",
			zap.Int64("duration_ms", duration),
			zap.Int("input_tokens", usage.InputTokens),
			zap.Int("output_tokens", usage.OutputTokens),
		)
	}

	if rs != nil {
		if err := t.store.CompleteStage(context.WithoutCancel(ctx), rs.ID, result); err != nil {
			log.Warn("pipeline: failed to complete stage", zap.Error(err))
		}
	}

	t.mu.Lock()
	t.stages = append(t.stages, *result)
	t.usage.Add(usage)
	t.mu.Unlock()
	return fnErr
}

func (t *runTracker) results() []model.StageResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.StageResult, len(t.stages))
	copy(out, t.stages)
	return out
}

func (t *runTracker) totalUsage() model.TokenUsage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.usage
}
