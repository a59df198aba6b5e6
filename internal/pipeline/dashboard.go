package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/datagenie/internal/model"
	"github.com/sells-group/datagenie/internal/oracle"
)

type decompositionWire struct {
	Questions []string `json:"questions"`
}

// Decomposer splits a broad question into independent sub-questions.
type Decomposer struct {
	oracle  oracle.Oracle
	context string
	min     int
	max     int
}

// NewDecomposer creates a Decomposer producing between min and max
// sub-questions.
func NewDecomposer(o oracle.Oracle, catalogText string, min, max int) *Decomposer {
	if min < 1 {
		min = 5
	}
	if max < min {
		max = min
	}
	return &Decomposer{oracle: o, context: catalogText, min: min, max: max}
}

// Decompose returns the dashboard request for question. Zero usable
// sub-questions is ErrDecomposition.
func (d *Decomposer) Decompose(ctx context.Context, question string) (*model.DashboardRequest, model.TokenUsage, error) {
	resp, err := d.oracle.Complete(ctx, oracle.Request{
		Stage:   "decompose",
		Context: d.context,
		Turns: []oracle.Turn{
			oracle.System(fmt.Sprintf(decomposeSystemPrompt, d.min, d.max)),
			oracle.User(question),
		},
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, model.TokenUsage{}, eris.Wrap(ctxErr, "pipeline: decompose")
		}
		return nil, model.TokenUsage{}, eris.Wrapf(ErrDecomposition, "pipeline: decompose: %v", err)
	}
	usage := usageOf(resp)

	var w decompositionWire
	if err := oracle.Decode(resp.Text, &w); err != nil {
		return nil, usage, eris.Wrapf(ErrDecomposition, "pipeline: decompose: %v", err)
	}

	subs := normalizeQuestions(w.Questions, d.max)
	if len(subs) == 0 {
		return nil, usage, eris.Wrap(ErrDecomposition, "pipeline: decompose: no sub-questions")
	}
	if len(subs) < d.min {
		zap.L().Warn("pipeline: fewer sub-questions than requested",
			zap.Int("got", len(subs)),
			zap.Int("min", d.min),
		)
	}
	return &model.DashboardRequest{SourceQuestion: question, SubQuestions: subs}, usage, nil
}

// normalizeQuestions trims, drops empties and case-insensitive duplicates,
// and caps the list at max while keeping the oracle's order.
func normalizeQuestions(in []string, max int) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, q := range in {
		q = strings.TrimSpace(q)
		key := strings.ToLower(q)
		if q == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, q)
		if max > 0 && len(out) == max {
			break
		}
	}
	return out
}

// dashboard decomposes the question, runs one sub-pipeline per
// sub-question and assembles the charts in sub-question order. A failing
// sub-question is skipped; it never cancels its siblings.
func (p *Pipeline) dashboard(ctx context.Context, tr *runTracker, state model.PipelineState) (model.PipelineState, error) {
	log := zap.L().With(zap.String("run_id", state.RunID))

	var req *model.DashboardRequest
	err := tr.track(ctx, "decompose", func(ctx context.Context) (model.TokenUsage, map[string]any, error) {
		r, usage, err := p.decomposer.Decompose(ctx, state.Question)
		if err != nil {
			return usage, nil, err
		}
		req = r
		return usage, map[string]any{"sub_questions": len(r.SubQuestions)}, nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return model.PipelineState{}, eris.Wrap(ctxErr, "pipeline: dashboard")
		}
		return model.PipelineState{Outcome: model.OutcomeDashboardFailed, Reason: err.Error()}, nil
	}

	items := make([]model.DashboardItem, len(req.SubQuestions))
	limit := p.cfg.Dashboard.MaxConcurrency
	if limit < 1 {
		limit = 1
	}
	g := new(errgroup.Group)
	g.SetLimit(limit)
	for i, q := range req.SubQuestions {
		g.Go(func() error {
			items[i] = p.subPipeline(ctx, tr, state.RunID, i, q)
			return nil
		})
	}
	_ = g.Wait()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return model.PipelineState{}, eris.Wrap(ctxErr, "pipeline: dashboard")
	}

	art := &model.DashboardArtifact{Request: *req, Items: items, ChartArtifacts: []model.ChartArtifact{}}
	for _, it := range items {
		if it.Status == model.DashboardItemCharted && it.RunState != nil && it.RunState.Chart != nil {
			art.ChartArtifacts = append(art.ChartArtifacts, *it.RunState.Chart)
		}
	}

	log.Info("pipeline: dashboard sub-questions complete",
		zap.Int("sub_questions", len(items)),
		zap.Int("charts", len(art.ChartArtifacts)),
	)

	if len(art.ChartArtifacts) == 0 {
		return model.PipelineState{
			Dashboard: art,
			Outcome:   model.OutcomeDashboardEmpty,
			Reason:    ErrDashboardEmpty.Error(),
		}, nil
	}

	title := p.cfg.Dashboard.Title
	if title == "" {
		title = state.Question
	}
	err = tr.track(ctx, "build_dashboard", func(ctx context.Context) (model.TokenUsage, map[string]any, error) {
		path, err := p.renderer.BuildDashboard(ctx, title, art.ChartArtifacts)
		if err != nil {
			return model.TokenUsage{}, nil, err
		}
		art.StoragePath = path
		return model.TokenUsage{}, map[string]any{"path": path, "charts": len(art.ChartArtifacts)}, nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return model.PipelineState{}, eris.Wrap(ctxErr, "pipeline: dashboard")
		}
		return model.PipelineState{
			Dashboard: art,
			Outcome:   model.OutcomeDashboardFailed,
			Reason:    err.Error(),
		}, nil
	}
	return model.PipelineState{Dashboard: art, Outcome: model.OutcomeDashboard}, nil
}

// subPipeline runs one sub-question through classify → visualize and
// reports what it contributed.
func (p *Pipeline) subPipeline(ctx context.Context, tr *runTracker, runID string, i int, question string) model.DashboardItem {
	item := model.DashboardItem{Index: i, Question: question}
	sub := model.PipelineState{RunID: runID, Question: question}

	final, err := p.runQuestion(ctx, tr, sub, runOptions{
		prefix:           fmt.Sprintf("dashboard[%d]/", i),
		nested:           true,
		defaultVisualize: true,
	})
	item.RunState = &final
	if err != nil {
		item.Status = model.DashboardItemSkipped
		item.Reason = err.Error()
		zap.L().Warn("pipeline: dashboard sub-question failed",
			zap.Int("index", i),
			zap.String("question", question),
			zap.Error(err),
		)
		return item
	}

	switch {
	case final.Chart != nil:
		item.Status = model.DashboardItemCharted
	case final.Outcome == model.OutcomeAnswered:
		item.Status = model.DashboardItemAnswered
		item.Reason = final.VisualizationError
	default:
		item.Status = model.DashboardItemSkipped
		item.Reason = final.Reason
	}
	return item
}
