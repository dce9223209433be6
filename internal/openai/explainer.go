package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	oa "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const explainPrompt = `You are a portfolio analyst explaining the output of a mean-variance optimizer to a retail investor.
You will receive a run summary with CAPM expected returns, betas, the optimized weights and the equal-weight baseline.

Your response must follow this structure:

*Allocation:*
[Why the optimizer favoured the largest weights, in terms of expected return, beta and diversification]

*Risk:*
[Volatility and drawdown versus the equal-weight baseline]

*Caveats:*
[Estimation error in betas and historical returns, the lookback window, anything flagged as skipped or not converged]

Guidelines:
- Plain text with the section headers above, no tables or links
- Quote numbers from the summary, do not invent new ones
- No buy or sell advice
- Keep it under 250 words`

// maxSummary caps the run summary sent to the model.
const maxSummary = 6000

var ErrNoAPIKey = errors.New("openai api key not configured")

// Explainer turns a rendered run summary into a short narrative.
type Explainer struct {
	cli   oa.Client
	model string
}

func NewExplainer(apiKey string, opts ...option.RequestOption) (*Explainer, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Explainer{cli: oa.NewClient(opts...), model: "gpt-4"}, nil
}

func (e *Explainer) Explain(ctx context.Context, summary string) (string, error) {
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return "", errors.New("empty run summary")
	}
	if len(summary) > maxSummary {
		summary = summary[:maxSummary]
	}

	resp, err := e.cli.Chat.Completions.New(ctx, oa.ChatCompletionNewParams{
		Model: e.model,
		Messages: []oa.ChatCompletionMessageParamUnion{
			oa.SystemMessage(explainPrompt),
			oa.UserMessage("Explain this optimization run:\n" + summary),
		},
		MaxTokens: oa.Int(800), // Limit response length for telegram
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from OpenAI")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
