package oracle

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tmc/langchaingo/llms"

	"github.com/sells-group/datagenie/internal/config"
	"github.com/sells-group/datagenie/internal/resilience"
)

// statusPattern finds the HTTP status the OpenAI client embeds in its errors.
var statusPattern = regexp.MustCompile(`status code: (\d{3})`)

// LangchainOracle calls any langchaingo model (OpenAI, Ollama). Providers
// without prompt caching receive the grounding context inline in the system
// message.
type LangchainOracle struct {
	llm         llms.Model
	provider    string
	model       string
	maxTokens   int
	temperature float64
}

// NewLangchain creates a LangchainOracle over llm.
func NewLangchain(llm llms.Model, cfg config.OracleConfig) *LangchainOracle {
	maxTokens := int(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &LangchainOracle{
		llm:         llm,
		provider:    cfg.Provider,
		model:       cfg.Model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
	}
}

// Complete implements Oracle.
func (o *LangchainOracle) Complete(ctx context.Context, req Request) (*Completion, error) {
	var messages []llms.MessageContent

	system := strings.TrimSpace(strings.Join([]string{req.Context, systemText(req)}, "\n\n"))
	if system != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, system))
	}
	for _, t := range req.Turns {
		switch t.Role {
		case RoleUser:
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, t.Content))
		case RoleAssistant:
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeAI, t.Content))
		}
	}

	resp, err := o.llm.GenerateContent(ctx, messages,
		llms.WithTemperature(o.temperature),
		llms.WithMaxTokens(o.maxTokens),
	)
	if err != nil {
		return nil, o.classifyError(ctx, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, eris.New("oracle: no response choices")
	}

	choice := resp.Choices[0]
	return &Completion{
		Text:  choice.Content,
		Model: o.model,
		Usage: Usage{
			InputTokens:  infoInt(choice.GenerationInfo, "PromptTokens"),
			OutputTokens: infoInt(choice.GenerationInfo, "CompletionTokens"),
		},
	}, nil
}

// classifyError wraps err and marks rate-limit and availability failures as
// transient. Cancellation of ctx is never transient.
func (o *LangchainOracle) classifyError(ctx context.Context, err error) error {
	wrapped := eris.Wrapf(err, "oracle: %s generate", o.provider)
	if ctx.Err() != nil {
		return wrapped
	}

	if m := statusPattern.FindStringSubmatch(err.Error()); m != nil {
		code, _ := strconv.Atoi(m[1])
		if resilience.IsTransientHTTPStatus(code) {
			return resilience.NewTransientError(wrapped, code)
		}
		return wrapped
	}

	var llmErr *llms.Error
	if !errors.As(err, &llmErr) {
		mapped := llms.NewErrorMapper(o.provider).Map(err)
		if !errors.As(mapped, &llmErr) {
			return wrapped
		}
	}
	switch llmErr.Code {
	case llms.ErrCodeRateLimit:
		return resilience.NewTransientError(wrapped, 429)
	case llms.ErrCodeProviderUnavailable:
		return resilience.NewTransientError(wrapped, 503)
	}
	return wrapped
}

// infoInt reads a numeric token count from langchaingo generation info,
// whose value types differ per provider.
func infoInt(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
