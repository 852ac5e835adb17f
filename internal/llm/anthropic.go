package llm

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pharmhunter/pkg/anthropic"
)

// Anthropic adapts pkg/anthropic to Completer. System prompts are sent as
// cached blocks since the ICP rubric repeats across a hunt.
type Anthropic struct {
	client anthropic.Client
	models ModelSet
}

// NewAnthropic wraps an Anthropic client.
func NewAnthropic(client anthropic.Client, models ModelSet) *Anthropic {
	if models.Reasoning == "" {
		models.Reasoning = "claude-sonnet-4-5-20250929"
	}
	if models.Chat == "" {
		models.Chat = "claude-haiku-4-5-20251001"
	}
	return &Anthropic{client: client, models: models}
}

// Complete implements Completer.
func (a *Anthropic) Complete(ctx context.Context, p Prompt) (string, error) {
	model := a.models.model(p.Tier)
	temp := p.Temperature

	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       model,
		MaxTokens:   int64(a.models.maxTokens(p)),
		System:      anthropic.BuildCachedSystemBlocks(p.System),
		Messages:    []anthropic.Message{{Role: "user", Content: p.User}},
		Temperature: &temp,
	})
	if err != nil {
		return "", err
	}
	resp.Usage.LogCost(model, p.Stage)

	text := resp.Text()
	if text == "" {
		return "", eris.New("llm: anthropic returned no text")
	}
	return text, nil
}
