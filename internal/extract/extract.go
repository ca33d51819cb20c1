// Package extract turns a candidate's resume and call transcript into a
// structured profile and company search preferences.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/righthand-talent/placement-cli/internal/model"
	"github.com/righthand-talent/placement-cli/pkg/anthropic"
)

// Result is the structured output of a document extraction.
type Result struct {
	// Profile is the model's free-form candidate summary, stored verbatim.
	Profile json.RawMessage
	// Preferences drive the company search. May be empty but never nil on
	// success.
	Preferences *model.CompanyPreferences
}

// Extractor produces a Result from candidate documents.
type Extractor interface {
	Extract(ctx context.Context, candidate *model.Candidate, docs model.CandidateDocuments) (*Result, error)
}

const extractionSystem = `You are an assistant that reads a job candidate's resume and intake call transcript and produces a JSON object describing the candidate and the companies they want to work for.

Respond with a single JSON object and nothing else:
{
  "profile": {
    "summary": "...",
    "years_of_experience": 0,
    "skills": ["..."],
    "target_roles": ["..."]
  },
  "company_preferences": {
    "funding_stages": ["seed", "series_a", ...],
    "locations": ["..."],
    "categories": ["..."]
  }
}

Use only funding stage names from: seed, series_a, series_b, series_c, series_d, series_e, series_f, venture, angel, private_equity, debt_financing, convertible_note, other. Use "Remote" as a location when the candidate wants remote work. Leave arrays empty when the documents give no signal.`

// ClaudeExtractor implements Extractor on the Anthropic API.
type ClaudeExtractor struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewClaudeExtractor creates an extractor using the given model.
func NewClaudeExtractor(client anthropic.Client, modelID string, maxTokens int64) *ClaudeExtractor {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &ClaudeExtractor{client: client, model: modelID, maxTokens: maxTokens}
}

func (e *ClaudeExtractor) Extract(ctx context.Context, candidate *model.Candidate, docs model.CandidateDocuments) (*Result, error) {
	resp, err := e.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     e.model,
		MaxTokens: e.maxTokens,
		System:    extractionSystem,
		Messages: []anthropic.Message{
			{Role: "user", Content: buildPrompt(candidate, docs)},
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "extract: create message")
	}
	resp.Usage.LogUsage(e.model, "extraction")

	var parsed struct {
		Profile            json.RawMessage           `json:"profile"`
		CompanyPreferences *model.CompanyPreferences `json:"company_preferences"`
	}
	cleaned := cleanJSON(resp.Text())
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		zap.L().Debug("unparseable extraction response",
			zap.Int64("candidate_id", candidate.ID),
			zap.Error(err))
		return nil, eris.Wrap(err, "extract: parse response")
	}
	if len(parsed.Profile) == 0 {
		return nil, eris.New("extract: response missing profile")
	}

	prefs := parsed.CompanyPreferences
	if prefs == nil {
		prefs = &model.CompanyPreferences{}
	}
	return &Result{Profile: parsed.Profile, Preferences: prefs}, nil
}

func buildPrompt(candidate *model.Candidate, docs model.CandidateDocuments) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Candidate: %s %s\n", candidate.FirstName, candidate.LastName)
	if candidate.Role != "" {
		fmt.Fprintf(&sb, "Target role: %s\n", candidate.Role)
	}
	if candidate.AdditionalInfo != "" {
		fmt.Fprintf(&sb, "Notes from the placement team: %s\n", candidate.AdditionalInfo)
	}
	if docs.ResumeText != "" {
		fmt.Fprintf(&sb, "\n--- RESUME ---\n%s\n", docs.ResumeText)
	}
	if docs.TranscriptText != "" {
		fmt.Fprintf(&sb, "\n--- INTAKE CALL TRANSCRIPT ---\n%s\n", docs.TranscriptText)
	}
	return sb.String()
}

// cleanJSON strips markdown fences and trims to the outermost JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}
