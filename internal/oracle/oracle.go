// Package oracle adapts language-model providers to the single
// request/response contract the pipeline stages consume.
package oracle

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/datagenie/internal/config"
	"github.com/sells-group/datagenie/internal/resilience"
	"github.com/sells-group/datagenie/pkg/anthropic"
)

// Role tags a turn of an oracle request.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one role-tagged text turn.
type Turn struct {
	Role    Role
	Content string
}

// Request is an ordered list of turns plus the grounding context shared by
// every call in a run. Context is prepended to the system instruction and is
// cacheable on providers that support prompt caching.
type Request struct {
	Stage   string
	Context string
	Turns   []Turn
}

// System returns a system turn.
func System(text string) Turn { return Turn{Role: RoleSystem, Content: text} }

// User returns a user turn.
func User(text string) Turn { return Turn{Role: RoleUser, Content: text} }

// Usage is the token accounting of one completion.
type Usage struct {
	InputTokens      int
	OutputTokens     int
	CacheWriteTokens int
	CacheReadTokens  int
}

// Completion is the single text blob an oracle returns.
type Completion struct {
	Text  string
	Model string
	Usage Usage
}

// Oracle turns a request into text.
type Oracle interface {
	Complete(ctx context.Context, req Request) (*Completion, error)
}

// systemText joins the system turns of req in order.
func systemText(req Request) string {
	var parts []string
	for _, t := range req.Turns {
		if t.Role == RoleSystem && t.Content != "" {
			parts = append(parts, t.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}

// New builds the configured provider and wraps it with rate limiting,
// transport retries, a circuit breaker and a per-call timeout.
func New(cfg config.OracleConfig, breakers *resilience.Breakers) (Oracle, error) {
	var base Oracle
	switch cfg.Provider {
	case "anthropic":
		base = NewAnthropic(anthropic.NewClient(cfg.Key, cfg.BaseURL), cfg)
	case "openai":
		opts := []openai.Option{openai.WithToken(cfg.Key), openai.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, eris.Wrap(err, "oracle: create openai model")
		}
		base = NewLangchain(llm, cfg)
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		llm, err := ollama.New(opts...)
		if err != nil {
			return nil, eris.Wrap(err, "oracle: create ollama model")
		}
		base = NewLangchain(llm, cfg)
	default:
		return nil, eris.Errorf("oracle: unsupported provider %q", cfg.Provider)
	}

	if breakers == nil {
		breakers = NewBreakers(cfg)
	}

	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Guarded{
		Oracle:   base,
		Provider: cfg.Provider,
		Limiter:  rate.NewLimiter(limit, burst),
		Breaker:  breakers.For(cfg.Provider),
		Retry:    resilience.FromRetryConfig(cfg.Retry),
		Timeout:  cfg.Timeout(),
	}, nil
}

// NewBreakers returns the breaker registry for oracle providers. Only
// availability failures trip a breaker; a malformed request does not.
func NewBreakers(cfg config.OracleConfig) *resilience.Breakers {
	cbCfg := resilience.FromCircuitConfig(cfg.Circuit)
	cbCfg.ShouldTrip = resilience.IsTransient
	cbCfg.OnStateChange = func(from, to resilience.CircuitState) {
		zap.L().Warn("oracle circuit state change",
			zap.String("provider", cfg.Provider),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
	return resilience.NewBreakers(cbCfg)
}
