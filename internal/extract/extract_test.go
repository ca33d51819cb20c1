package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/righthand-talent/placement-cli/internal/model"
	"github.com/righthand-talent/placement-cli/pkg/anthropic"
)

// stubClient returns a canned response and records the request.
type stubClient struct {
	response string
	err      error
	lastReq  anthropic.MessageRequest
}

func (s *stubClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: s.response}},
	}, nil
}

func testCandidate() *model.Candidate {
	return &model.Candidate{
		ID:        1,
		FirstName: "Ada",
		LastName:  "Lovelace",
		Role:      "Staff Engineer",
	}
}

func TestExtract_ParsesProfileAndPreferences(t *testing.T) {
	stub := &stubClient{response: `{
		"profile": {"summary": "Backend engineer", "years_of_experience": 8},
		"company_preferences": {"funding_stages": ["seed", "series_a"], "locations": ["Remote"], "categories": ["fintech"]}
	}`}
	e := NewClaudeExtractor(stub, "claude-sonnet-4-5-20250929", 0)

	res, err := e.Extract(context.Background(), testCandidate(), model.CandidateDocuments{
		ResumeText:     "Worked on payments infrastructure.",
		TranscriptText: "Wants early stage fintech.",
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"summary": "Backend engineer", "years_of_experience": 8}`, string(res.Profile))
	require.NotNil(t, res.Preferences)
	assert.Equal(t, []string{"seed", "series_a"}, res.Preferences.FundingStages)

	assert.Contains(t, stub.lastReq.Messages[0].Content, "RESUME")
	assert.Contains(t, stub.lastReq.Messages[0].Content, "payments infrastructure")
}

func TestExtract_StripsMarkdownFences(t *testing.T) {
	stub := &stubClient{response: "```json\n{\"profile\": {\"summary\": \"x\"}, \"company_preferences\": {}}\n```"}
	e := NewClaudeExtractor(stub, "claude-sonnet-4-5-20250929", 0)

	res, err := e.Extract(context.Background(), testCandidate(), model.CandidateDocuments{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"summary": "x"}`, string(res.Profile))
}

func TestExtract_MissingPreferencesDefaultsEmpty(t *testing.T) {
	stub := &stubClient{response: `{"profile": {"summary": "x"}}`}
	e := NewClaudeExtractor(stub, "claude-sonnet-4-5-20250929", 0)

	res, err := e.Extract(context.Background(), testCandidate(), model.CandidateDocuments{})
	require.NoError(t, err)
	require.NotNil(t, res.Preferences)
	assert.Empty(t, res.Preferences.FundingStages)
}

func TestExtract_MissingProfileFails(t *testing.T) {
	stub := &stubClient{response: `{"company_preferences": {}}`}
	e := NewClaudeExtractor(stub, "claude-sonnet-4-5-20250929", 0)

	_, err := e.Extract(context.Background(), testCandidate(), model.CandidateDocuments{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing profile")
}

func TestExtract_UnparseableResponseFails(t *testing.T) {
	stub := &stubClient{response: "I could not find a resume in the input."}
	e := NewClaudeExtractor(stub, "claude-sonnet-4-5-20250929", 0)

	_, err := e.Extract(context.Background(), testCandidate(), model.CandidateDocuments{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse response")
}

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", `{"a": 1}`, `{"a": 1}`},
		{"json_fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"bare_fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"leading_prose", "Here is the JSON:\n{\"a\": 1}", `{"a": 1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanJSON(tt.input))
		})
	}
}
