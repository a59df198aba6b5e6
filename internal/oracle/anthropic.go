package oracle

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/datagenie/internal/config"
	"github.com/sells-group/datagenie/internal/resilience"
	"github.com/sells-group/datagenie/pkg/anthropic"
)

// AnthropicOracle calls the Anthropic Messages API. The grounding context is
// sent as a cached system block so the catalog is billed once per run.
type AnthropicOracle struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
}

// NewAnthropic creates an AnthropicOracle over client.
func NewAnthropic(client anthropic.Client, cfg config.OracleConfig) *AnthropicOracle {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &AnthropicOracle{
		client:      client,
		model:       cfg.Model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
	}
}

// Complete implements Oracle.
func (o *AnthropicOracle) Complete(ctx context.Context, req Request) (*Completion, error) {
	var msgs []anthropic.Message
	for _, t := range req.Turns {
		switch t.Role {
		case RoleUser:
			msgs = append(msgs, anthropic.Message{Role: "user", Content: t.Content})
		case RoleAssistant:
			msgs = append(msgs, anthropic.Message{Role: "assistant", Content: t.Content})
		}
	}
	if len(msgs) == 0 {
		return nil, eris.New("oracle: anthropic request has no user turn")
	}

	temp := o.temperature
	resp, err := o.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       o.model,
		MaxTokens:   o.maxTokens,
		System:      anthropic.BuildCachedSystemBlocks(req.Context, systemText(req)),
		Messages:    msgs,
		Temperature: &temp,
	})
	if err != nil {
		if code, ok := anthropic.StatusCode(err); ok && resilience.IsTransientHTTPStatus(code) {
			return nil, resilience.NewTransientError(err, code)
		}
		return nil, err
	}
	if resp.Truncated() {
		// Truncated JSON fails to decode downstream and counts as a failed call.
		zap.L().Warn("oracle response truncated",
			zap.String("stage", req.Stage),
			zap.Int64("max_tokens", o.maxTokens),
		)
	}

	model := resp.Model
	if model == "" {
		model = o.model
	}
	return &Completion{
		Text:  resp.Text,
		Model: model,
		Usage: Usage{
			InputTokens:      int(resp.Usage.InputTokens),
			OutputTokens:     int(resp.Usage.OutputTokens),
			CacheWriteTokens: int(resp.Usage.CacheCreationInputTokens),
			CacheReadTokens:  int(resp.Usage.CacheReadInputTokens),
		},
	}, nil
}
