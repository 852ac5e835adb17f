// Package llm abstracts the language model providers used for extraction,
// scoring and drafting.
package llm

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pharmhunter/internal/config"
	"github.com/sells-group/pharmhunter/pkg/anthropic"
	"github.com/sells-group/pharmhunter/pkg/deepseek"
)

// Tier selects between the provider's reasoning and chat models.
type Tier int

const (
	// Chat is the fast model used for extraction and drafting.
	Chat Tier = iota
	// Reasoning is the stronger model used for scoring.
	Reasoning
)

// Prompt is a single-turn completion request.
type Prompt struct {
	System      string
	User        string
	Tier        Tier
	Temperature float64
	MaxTokens   int
	// Stage labels usage logs (extraction, scoring, drafting).
	Stage string
}

// Completer returns the model's text reply to a prompt.
type Completer interface {
	Complete(ctx context.Context, p Prompt) (string, error)
}

// New builds the configured provider.
func New(cfg *config.Config) (Completer, error) {
	switch cfg.LLM.Provider {
	case "deepseek", "":
		if cfg.DeepSeek.Key == "" {
			return nil, eris.New("llm: deepseek api key is missing")
		}
		var opts []deepseek.Option
		if cfg.DeepSeek.BaseURL != "" {
			opts = append(opts, deepseek.WithBaseURL(cfg.DeepSeek.BaseURL))
		}
		return NewDeepSeek(deepseek.NewClient(cfg.DeepSeek.Key, opts...), ModelSet{
			Reasoning: cfg.DeepSeek.ReasoningModel,
			Chat:      cfg.DeepSeek.ChatModel,
			MaxTokens: cfg.DeepSeek.MaxTokens,
		}), nil
	case "anthropic":
		if cfg.Anthropic.Key == "" {
			return nil, eris.New("llm: anthropic api key is missing")
		}
		return NewAnthropic(anthropic.NewClient(cfg.Anthropic.Key), ModelSet{
			Reasoning: cfg.Anthropic.ReasoningModel,
			Chat:      cfg.Anthropic.ChatModel,
			MaxTokens: int(cfg.Anthropic.MaxTokens),
		}), nil
	default:
		return nil, eris.Errorf("llm: unknown provider %q", cfg.LLM.Provider)
	}
}

// ModelSet names the models a provider uses per tier.
type ModelSet struct {
	Reasoning string
	Chat      string
	MaxTokens int
}

func (m ModelSet) model(t Tier) string {
	if t == Reasoning {
		return m.Reasoning
	}
	return m.Chat
}

func (m ModelSet) maxTokens(p Prompt) int {
	if p.MaxTokens > 0 {
		return p.MaxTokens
	}
	if m.MaxTokens > 0 {
		return m.MaxTokens
	}
	return 4096
}
