package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/datagenie/internal/model"
	"github.com/sells-group/datagenie/internal/oracle"
	"github.com/sells-group/datagenie/internal/render"
)

type visualizationWire struct {
	ChartType *string `json:"chart_type"`
	X         *string `json:"x"`
	Y         *string `json:"y"`
	Title     *string `json:"title"`
}

// VisualizationResult is what one visualize stage produced. Chart is nil
// when rendering was skipped or failed.
type VisualizationResult struct {
	Spec  *model.VisualizationSpec
	Chart *model.ChartArtifact
	Usage model.TokenUsage
}

// Visualizer maps a successful result onto a chart and renders it.
type Visualizer struct {
	oracle     oracle.Oracle
	renderer   render.Renderer
	sampleRows int
}

// NewVisualizer creates a Visualizer.
func NewVisualizer(o oracle.Oracle, r render.Renderer, sampleRows int) *Visualizer {
	if sampleRows <= 0 {
		sampleRows = 2
	}
	return &Visualizer{oracle: o, renderer: r, sampleRows: sampleRows}
}

// Visualize requests a visualization spec for table and renders it. Fields
// that do not name result columns fail with ErrInvalidFieldMapping before
// anything is rendered. Oracle and render failures are
// ErrVisualizationUnavailable. Neither affects the execution outcome.
func (v *Visualizer) Visualize(ctx context.Context, question, goal string, table *model.Table) (*VisualizationResult, error) {
	res := &VisualizationResult{}
	if table.Len() == 0 {
		return res, eris.Wrap(ErrVisualizationUnavailable, "pipeline: visualize: empty result")
	}

	resp, err := v.oracle.Complete(ctx, oracle.Request{
		Stage: "visualize",
		Turns: []oracle.Turn{
			oracle.System(visualizeSystemPrompt),
			oracle.User(fmt.Sprintf(visualizeUserPrompt,
				goal,
				table.Head(v.sampleRows).String(),
				strings.Join(table.Columns, ", "),
			)),
		},
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, eris.Wrap(ctxErr, "pipeline: visualize")
		}
		return res, eris.Wrapf(ErrVisualizationUnavailable, "pipeline: visualize: %v", err)
	}
	res.Usage = usageOf(resp)

	spec, err := parseVisualization(resp.Text, table)
	if err != nil {
		return res, err
	}
	res.Spec = spec

	path, err := v.renderer.Render(ctx, *spec, table)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, eris.Wrap(ctxErr, "pipeline: visualize")
		}
		return res, eris.Wrapf(ErrVisualizationUnavailable, "pipeline: render: %v", err)
	}
	zap.L().Debug("pipeline: chart rendered",
		zap.String("path", path),
		zap.String("kind", string(spec.ChartKind)),
	)
	res.Chart = &model.ChartArtifact{StoragePath: path, Spec: *spec, Question: question}
	return res, nil
}

// parseVisualization decodes the oracle record and validates the field
// mapping against table.
func parseVisualization(raw string, table *model.Table) (*model.VisualizationSpec, error) {
	var w visualizationWire
	if err := oracle.Decode(raw, &w); err != nil {
		return nil, eris.Wrapf(ErrVisualizationUnavailable, "pipeline: visualize: %v", err)
	}

	var missing []string
	if w.ChartType == nil {
		missing = append(missing, "chart_type")
	}
	if w.X == nil {
		missing = append(missing, "x")
	}
	if w.Y == nil {
		missing = append(missing, "y")
	}
	if w.Title == nil {
		missing = append(missing, "title")
	}
	if len(missing) > 0 {
		return nil, eris.Wrapf(ErrVisualizationUnavailable, "pipeline: visualize: %v", oracle.Missing(missing...))
	}

	spec := &model.VisualizationSpec{
		ChartKind: model.ParseChartKind(*w.ChartType),
		XField:    strings.TrimSpace(*w.X),
		YField:    strings.TrimSpace(*w.Y),
		Title:     strings.TrimSpace(*w.Title),
	}

	var bad []string
	if !table.HasColumn(spec.XField) {
		bad = append(bad, spec.XField)
	}
	if !table.HasColumn(spec.YField) {
		bad = append(bad, spec.YField)
	}
	if len(bad) > 0 {
		return nil, eris.Wrapf(ErrInvalidFieldMapping, "pipeline: visualize: %q not in columns %v", bad, table.Columns)
	}
	return spec, nil
}
