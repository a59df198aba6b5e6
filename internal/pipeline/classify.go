package pipeline

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/datagenie/internal/model"
	"github.com/sells-group/datagenie/internal/oracle"
)

const defaultRejectionReason = "the question is not about the available dataset"

// classificationWire is the oracle's classification record. Pointer fields
// distinguish "absent" from false/empty.
type classificationWire struct {
	IsValid       *bool   `json:"is_valid"`
	IsAnalytics   *bool   `json:"is_analytics"`
	AnalysisGoal  *string `json:"analysis_goal"`
	RequireSQL    *bool   `json:"require_sql"`
	Visualization *bool   `json:"visualization"`
	Dashboard     *bool   `json:"dashboard"`
}

// Classifier produces the single ClassificationResult of a question.
type Classifier struct {
	oracle  oracle.Oracle
	context string
}

// NewClassifier creates a Classifier grounded on the catalog text.
func NewClassifier(o oracle.Oracle, catalogText string) *Classifier {
	return &Classifier{oracle: o, context: catalogText}
}

// Classify asks the oracle to classify question. When the oracle omits the
// visualization flag it defaults to defaultVisualize (dashboard sub-questions
// default to charting). Any oracle or parse failure is ErrClassificationParse.
func (c *Classifier) Classify(ctx context.Context, question string, defaultVisualize bool) (*model.ClassificationResult, model.TokenUsage, error) {
	var usage model.TokenUsage

	resp, err := c.oracle.Complete(ctx, oracle.Request{
		Stage:   "classify",
		Context: c.context,
		Turns:   []oracle.Turn{oracle.System(classifySystemPrompt), oracle.User(question)},
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, usage, eris.Wrap(ctxErr, "pipeline: classify")
		}
		return nil, usage, eris.Wrapf(ErrClassificationParse, "pipeline: classify: %v", err)
	}
	usage = usageOf(resp)

	result, err := parseClassification(resp.Text, defaultVisualize)
	if err != nil {
		return nil, usage, eris.Wrapf(ErrClassificationParse, "pipeline: classify: %v", err)
	}
	return result, usage, nil
}

// parseClassification strictly decodes and normalizes the oracle record.
// is_valid, is_analytics and analysis_goal are required.
func parseClassification(raw string, defaultVisualize bool) (*model.ClassificationResult, error) {
	var w classificationWire
	if err := oracle.Decode(raw, &w); err != nil {
		return nil, err
	}

	var missing []string
	if w.IsValid == nil {
		missing = append(missing, "is_valid")
	}
	if w.IsAnalytics == nil {
		missing = append(missing, "is_analytics")
	}
	if w.AnalysisGoal == nil {
		missing = append(missing, "analysis_goal")
	}
	if len(missing) > 0 {
		return nil, oracle.Missing(missing...)
	}

	goal := strings.TrimSpace(*w.AnalysisGoal)
	res := &model.ClassificationResult{
		IsValid:      *w.IsValid,
		IsAnalytics:  *w.IsAnalytics,
		AnalysisGoal: goal,
	}

	if !res.Accepted() {
		res.RejectionReason = goal
		if res.RejectionReason == "" {
			res.RejectionReason = defaultRejectionReason
		}
		return res, nil
	}
	if goal == "" {
		return nil, eris.Wrap(ErrMalformedModelOutput, "pipeline: classify: empty analysis_goal for an analytics question")
	}

	res.WantsDashboard = boolOr(w.Dashboard, false)
	res.RequiresSQL = boolOr(w.RequireSQL, true)
	res.WantsVisualization = boolOr(w.Visualization, defaultVisualize)
	if res.WantsDashboard {
		res.RequiresSQL = false
	}
	return res, nil
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

func usageOf(c *oracle.Completion) model.TokenUsage {
	if c == nil {
		return model.TokenUsage{}
	}
	return model.TokenUsage{
		InputTokens:      c.Usage.InputTokens,
		OutputTokens:     c.Usage.OutputTokens,
		CacheWriteTokens: c.Usage.CacheWriteTokens,
		CacheReadTokens:  c.Usage.CacheReadTokens,
		Calls:            1,
	}
}
