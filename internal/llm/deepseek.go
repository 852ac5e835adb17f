package llm

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pharmhunter/pkg/deepseek"
)

// DeepSeek adapts pkg/deepseek to Completer.
type DeepSeek struct {
	client deepseek.Client
	models ModelSet
}

// NewDeepSeek wraps a DeepSeek client.
func NewDeepSeek(client deepseek.Client, models ModelSet) *DeepSeek {
	if models.Reasoning == "" {
		models.Reasoning = deepseek.ReasonerModel
	}
	if models.Chat == "" {
		models.Chat = deepseek.ChatModel
	}
	return &DeepSeek{client: client, models: models}
}

// Complete implements Completer.
func (d *DeepSeek) Complete(ctx context.Context, p Prompt) (string, error) {
	model := d.models.model(p.Tier)

	var msgs []deepseek.Message
	if p.System != "" {
		msgs = append(msgs, deepseek.Message{Role: "system", Content: p.System})
	}
	msgs = append(msgs, deepseek.Message{Role: "user", Content: p.User})

	resp, err := d.client.ChatCompletion(ctx, deepseek.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: float32(p.Temperature),
		MaxTokens:   d.models.maxTokens(p),
	})
	if err != nil {
		return "", err
	}
	resp.Usage.LogUsage(model, p.Stage)

	if resp.Content == "" {
		return "", eris.New("llm: deepseek returned no content")
	}
	return resp.Content, nil
}
