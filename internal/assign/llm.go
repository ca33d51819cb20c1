package assign

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/righthand-talent/placement-cli/pkg/anthropic"
)

const rankingSystem = `You rank the decision makers of a company by how suitable they are as the first outreach contact for a job candidate.

You will receive a JSON array of people with email, seniority, title, and headline. Respond with a single JSON array of zero-based indices into that array, best contact first, each index at most once.

Rules:
- A person with an empty headline must come after every person with a headline.
- Prefer owners and founders over c-suite when headlines are comparable.
Respond with the JSON array only.`

// LLMOracle ranks prospects with a language model. Responses that violate
// the ranking contract are rejected by the caller, which falls back to the
// deterministic comparator.
type LLMOracle struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewLLMOracle creates an oracle backed by the Anthropic API.
func NewLLMOracle(client anthropic.Client, modelID string, maxTokens int64) *LLMOracle {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &LLMOracle{client: client, model: modelID, maxTokens: maxTokens}
}

func (o *LLMOracle) Rank(ctx context.Context, prospects []Prospect) ([]int, error) {
	payload, err := json.Marshal(prospects)
	if err != nil {
		return nil, eris.Wrap(err, "assign: marshal prospects")
	}

	resp, err := o.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     o.model,
		MaxTokens: o.maxTokens,
		System:    rankingSystem,
		Messages: []anthropic.Message{
			{Role: "user", Content: string(payload)},
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "assign: rank prospects")
	}
	resp.Usage.LogUsage(o.model, "ranking")

	var ranking []int
	text := trimToArray(resp.Text())
	if err := json.Unmarshal([]byte(text), &ranking); err != nil {
		return nil, eris.Wrap(err, "assign: parse ranking")
	}
	return ranking, nil
}

// trimToArray slices the response down to the outermost JSON array, past any
// markdown fencing or prose.
func trimToArray(text string) string {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return strings.TrimSpace(text)
}
