package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/datagenie/internal/model"
	"github.com/sells-group/datagenie/internal/oracle"
	"github.com/sells-group/datagenie/internal/warehouse"
)

// DefaultSynthesisAttempts is the retry bound R.
const DefaultSynthesisAttempts = 3

// inabilityMarkers flag a response that admits it could not write a query.
var inabilityMarkers = []string{
	"unable to generate",
	"cannot generate",
	"can't generate",
	"could not generate",
	"not possible to generate",
}

// sqlWire is the oracle's statement record. A JSON null is a refusal.
type sqlWire struct {
	SQL *string `json:"sql"`
}

type synthState int

const (
	synthAttempting synthState = iota
	synthUsable
	synthExhausted
)

func (s synthState) String() string {
	switch s {
	case synthAttempting:
		return "attempting"
	case synthUsable:
		return "usable"
	default:
		return "exhausted"
	}
}

// Synthesizer turns a classification into one read-only statement, with at
// most attempts oracle calls per question.
type Synthesizer struct {
	oracle   oracle.Oracle
	context  string
	attempts int
}

// NewSynthesizer creates a Synthesizer. attempts < 1 uses the default bound.
func NewSynthesizer(o oracle.Oracle, catalogText string, attempts int) *Synthesizer {
	if attempts < 1 {
		attempts = DefaultSynthesisAttempts
	}
	return &Synthesizer{oracle: o, context: catalogText, attempts: attempts}
}

// Synthesize runs the bounded attempt loop. The first usable statement is
// returned immediately; after the bound the sentinel artifact is returned.
// Only context cancellation is returned as an error.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, cls model.ClassificationResult) (model.SQLArtifact, model.TokenUsage, error) {
	var usage model.TokenUsage
	log := zap.L().With(zap.String("stage", "synthesize"))

	state, n := synthAttempting, 0
	var stmt string
	for state == synthAttempting {
		if n >= s.attempts {
			state = synthExhausted
			break
		}
		n++

		candidate, u, reason, err := s.attempt(ctx, question, cls)
		usage.Add(u)
		if err != nil {
			return model.SQLArtifact{}, usage, err
		}
		if reason != "" {
			log.Debug("pipeline: synthesis attempt discarded",
				zap.Int("attempt", n),
				zap.String("reason", reason),
			)
			continue
		}
		stmt, state = candidate, synthUsable
	}

	if state == synthExhausted {
		log.Warn("pipeline: synthesis exhausted", zap.Int("attempts", n))
		return model.ExhaustedArtifact(n), usage, nil
	}
	return model.SQLArtifact{Statement: stmt, IsUsable: true, Attempts: n}, usage, nil
}

// attempt performs one oracle call. A non-empty reason means the attempt is
// discarded; err is set only when ctx is done.
func (s *Synthesizer) attempt(ctx context.Context, question string, cls model.ClassificationResult) (string, model.TokenUsage, string, error) {
	resp, err := s.oracle.Complete(ctx, oracle.Request{
		Stage:   "synthesize",
		Context: s.context,
		Turns: []oracle.Turn{
			oracle.System(synthesizeSystemPrompt),
			oracle.User(fmt.Sprintf(synthesizeUserPrompt, question, cls.AnalysisGoal)),
		},
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", model.TokenUsage{}, "", eris.Wrap(ctxErr, "pipeline: synthesize")
		}
		return "", model.TokenUsage{}, "oracle error: " + err.Error(), nil
	}
	stmt, reason := extractStatement(resp.Text)
	return stmt, usageOf(resp), reason, nil
}

// extractStatement applies the sanitize/parse contract shared by synthesis
// and repair. It returns the normalized statement, or a discard reason.
func extractStatement(raw string) (string, string) {
	var w sqlWire
	if err := oracle.Decode(raw, &w); err != nil {
		return "", err.Error()
	}
	if w.SQL == nil {
		return "", "null statement"
	}
	stmt := strings.TrimSpace(*w.SQL)
	if reason := discardReason(stmt); reason != "" {
		return "", reason
	}
	normalized, err := warehouse.Guard(stmt)
	if err != nil {
		return "", err.Error()
	}
	return normalized, ""
}

func discardReason(stmt string) string {
	if stmt == "" {
		return "empty statement"
	}
	if strings.EqualFold(stmt, "null") {
		return "null statement"
	}
	lower := strings.ToLower(stmt)
	for _, m := range inabilityMarkers {
		if strings.Contains(lower, m) {
			return "inability marker"
		}
	}
	return ""
}
