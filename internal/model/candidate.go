package model

import (
	"encoding/json"
	"time"
)

// ResumeSource identifies where a candidate's resume came from.
type ResumeSource string

const (
	ResumeSourceAshby ResumeSource = "ashby"
	ResumeSourceLocal ResumeSource = "local"
)

// TranscriptSource identifies where a candidate's call transcript came from.
type TranscriptSource string

const (
	TranscriptSourceFathom TranscriptSource = "fathom"
	TranscriptSourceLocal  TranscriptSource = "local"
)

// SearchStrategy selects how companies are discovered for a candidate.
type SearchStrategy string

const (
	StrategySmart  SearchStrategy = "default"
	StrategyHybrid SearchStrategy = "hybrid"
	StrategyManual SearchStrategy = "manual"
)

// CompanyPreferences holds the preference filters extracted from a
// candidate's documents, used to drive the company search.
type CompanyPreferences struct {
	FundingStages []string `json:"funding_stages"`
	Locations     []string `json:"locations"`
	Categories    []string `json:"categories"`
}

// Candidate is the record moved through the outreach pipeline. Its
// ProcessingStatus is the single piece of coordination state; only pipeline
// stages and the two approval actions are allowed to advance it.
type Candidate struct {
	ID                 int64               `json:"id"`
	FirstName          string              `json:"first_name"`
	LastName           string              `json:"last_name"`
	Email              string              `json:"email"`
	LinkedInURL        string              `json:"linkedin_url"`
	Role               string              `json:"role"`
	AdditionalInfo     string              `json:"additional_info"`
	ProcessingStatus   Status              `json:"processing_status"`
	ExtractedData      json.RawMessage     `json:"extracted_data,omitempty"`
	CompanyPreferences *CompanyPreferences `json:"company_preferences,omitempty"`

	ResumeSource       ResumeSource     `json:"resume_source"`
	ResumeFilename     string           `json:"resume_filename"`
	TranscriptSource   TranscriptSource `json:"call_transcript_source"`
	TranscriptFilename string           `json:"call_transcript_filename"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CandidateDocuments carries the raw text the extraction collaborator
// consumes. PDF/transcript decoding happens upstream and is out of scope.
type CandidateDocuments struct {
	ResumeText     string `json:"resume_text"`
	TranscriptText string `json:"transcript_text"`
}
