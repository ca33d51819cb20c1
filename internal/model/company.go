package model

import "time"

// Company is an enrichment snapshot of an organization, keyed by the vendor
// id (ApolloID). Re-enrichment overwrites every mutable field but preserves
// the internal id so selections and decision makers keep their foreign keys.
type Company struct {
	ID                 int64     `json:"id"`
	ApolloID           string    `json:"apollo_id"`
	Name               string    `json:"name"`
	PrimaryDomain      string    `json:"primary_domain"`
	WebsiteURL         string    `json:"website_url"`
	LinkedInURL        string    `json:"linkedin_url"`
	LogoURL            string    `json:"logo_url"`
	ShortDescription   string    `json:"short_description"`
	Industry           string    `json:"industry"`
	City               string    `json:"city"`
	State              string    `json:"state"`
	Country            string    `json:"country"`
	FoundedYear        int       `json:"founded_year"`
	LatestFundingStage string    `json:"latest_funding_stage"`
	TotalFunding       string    `json:"total_funding_printed"`
	EmployeeCount      int       `json:"estimated_num_employees"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// DecisionMaker is a person at a company considered for outreach, keyed by
// the vendor id. A nil Email disqualifies the person from outreach.
type DecisionMaker struct {
	ID          int64   `json:"id"`
	ApolloID    string  `json:"apollo_id"`
	CompanyID   int64   `json:"company_id"`
	FirstName   string  `json:"first_name"`
	LastName    string  `json:"last_name"`
	Title       string  `json:"title"`
	Seniority   string  `json:"seniority"`
	Headline    string  `json:"headline"`
	Email       *string `json:"email,omitempty"`
	LinkedInURL string  `json:"linkedin_url"`
	PhotoURL    string  `json:"photo_url"`
}

// Selection associates a candidate with a discovered company. Approved is
// tri-state: nil means the candidate has not decided yet.
type Selection struct {
	ID          int64     `json:"id"`
	CandidateID int64     `json:"candidate_id"`
	CompanyID   int64     `json:"company_id"`
	Approved    *bool     `json:"approved_by_candidate,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// CampaignLink ties a candidate to its single outbound campaign. The row's
// existence is the idempotency guard against duplicate campaign creation.
type CampaignLink struct {
	ID          int64     `json:"id"`
	CandidateID int64     `json:"candidate_id"`
	CampaignID  string    `json:"lemlist_campaign_id"`
	CreatedAt   time.Time `json:"created_at"`
}
