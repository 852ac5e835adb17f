package extract

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pharmhunter/internal/llm"
	"github.com/sells-group/pharmhunter/internal/model"
	"github.com/sells-group/pharmhunter/internal/resilience"
)

// Extractor structures search results into candidates. Returned candidates
// carry no provenance; the caller attributes them.
type Extractor interface {
	Extract(ctx context.Context, resultsContext string, count int, criteria model.HuntParams) ([]model.Candidate, error)
}

// LLMExtractor asks a language model to pick companies out of the results.
type LLMExtractor struct {
	llm   llm.Completer
	retry resilience.RetryConfig
}

// NewLLMExtractor creates an extractor. Both the model call and the parse
// are retried under retry.
func NewLLMExtractor(c llm.Completer, retry resilience.RetryConfig) *LLMExtractor {
	retry.ShouldRetry = resilience.RetryAll
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("llm", "extract")
	}
	return &LLMExtractor{llm: c, retry: retry}
}

// Extract implements Extractor.
func (e *LLMExtractor) Extract(ctx context.Context, resultsContext string, count int, criteria model.HuntParams) ([]model.Candidate, error) {
	if strings.TrimSpace(resultsContext) == "" {
		return nil, nil
	}
	system, user := buildPrompts(resultsContext, count, criteria)

	leads, err := resilience.DoVal(ctx, e.retry, func(ctx context.Context) ([]model.Candidate, error) {
		reply, err := e.llm.Complete(ctx, llm.Prompt{
			System:      system,
			User:        user,
			Tier:        llm.Chat,
			Temperature: 0.7,
			Stage:       "extraction",
		})
		if err != nil {
			return nil, err
		}
		return ParseLeads(reply)
	})
	if err != nil {
		return nil, eris.Wrap(err, "extract: leads")
	}

	zap.L().Debug("extracted leads", zap.Int("count", len(leads)))
	return leads, nil
}

// ParseLeads decodes a model reply. Besides a bare array it accepts an
// object wrapping the array under "companies" or "leads", and a single lead
// object.
func ParseLeads(reply string) ([]model.Candidate, error) {
	var raw json.RawMessage
	if err := llm.DecodeJSON(reply, &raw); err != nil {
		return nil, err
	}

	var leads []model.Candidate
	if err := json.Unmarshal(raw, &leads); err == nil {
		return leads, nil
	}

	var wrapper struct {
		Companies []model.Candidate `json:"companies"`
		Leads     []model.Candidate `json:"leads"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return nil, eris.Wrap(err, "extract: decode leads")
	}
	switch {
	case wrapper.Companies != nil:
		return wrapper.Companies, nil
	case wrapper.Leads != nil:
		return wrapper.Leads, nil
	}

	var single model.Candidate
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, eris.Wrap(err, "extract: decode lead")
	}
	if single.CompanyName == "" {
		return nil, nil
	}
	return []model.Candidate{single}, nil
}
