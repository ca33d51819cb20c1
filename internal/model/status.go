package model

import "github.com/rotisserie/eris"

// Status represents the processing state of a candidate's outreach pipeline.
type Status string

const (
	StatusNotStarted            Status = "not_started"
	StatusExtractingData        Status = "extracting_candidate_data"
	StatusDataExtracted         Status = "candidate_data_extracted"
	StatusSearchingCompanies    Status = "searching_companies"
	StatusCompaniesMatched      Status = "companies_matched"
	StatusNoCompaniesMatched    Status = "no_companies_matched"
	StatusApprovalPending       Status = "candidate_approval_pending"
	StatusCandidateApproved     Status = "candidate_approved"
	StatusFindingDecisionMakers Status = "finding_decision_makers"
	StatusDecisionMakersFound   Status = "decision_makers_found"
	StatusNoDecisionMakersFound Status = "no_decision_makers_found"
	StatusCampaignCreating      Status = "campaign_creating"
	StatusCampaignCreated       Status = "campaign_created"
	StatusFailed                Status = "failed"
)

// ErrInvalidTransition is returned when a status change does not follow a
// defined edge. Callers treat it as a conflict: the event is stale or
// duplicated and no state is changed.
var ErrInvalidTransition = eris.New("model: invalid status transition")

// transitions defines the legal forward edges of the candidate lifecycle.
// Terminal states (no_companies_matched, no_decision_makers_found,
// campaign_created, failed) have no outgoing edges.
var transitions = map[Status][]Status{
	StatusNotStarted:            {StatusExtractingData},
	StatusExtractingData:        {StatusDataExtracted},
	StatusDataExtracted:         {StatusSearchingCompanies},
	StatusSearchingCompanies:    {StatusCompaniesMatched, StatusNoCompaniesMatched},
	StatusCompaniesMatched:      {StatusApprovalPending},
	StatusApprovalPending:       {StatusCandidateApproved},
	StatusCandidateApproved:     {StatusFindingDecisionMakers},
	StatusFindingDecisionMakers: {StatusDecisionMakersFound, StatusNoDecisionMakersFound},
	StatusDecisionMakersFound:   {StatusCampaignCreating},
	StatusCampaignCreating:      {StatusCampaignCreated},
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	if _, ok := transitions[s]; ok {
		return true
	}
	switch s {
	case StatusNoCompaniesMatched, StatusNoDecisionMakersFound, StatusCampaignCreated, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s has no outgoing edges.
func (s Status) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// CanTransition reports whether the edge from → to is defined. Any
// non-terminal status may move to failed.
func CanTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if to == StatusFailed {
		return !from.Terminal()
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NonTerminalStatuses returns every status that may still move to failed,
// in declaration order.
func NonTerminalStatuses() []Status {
	return []Status{
		StatusNotStarted,
		StatusExtractingData,
		StatusDataExtracted,
		StatusSearchingCompanies,
		StatusCompaniesMatched,
		StatusApprovalPending,
		StatusCandidateApproved,
		StatusFindingDecisionMakers,
		StatusDecisionMakersFound,
		StatusCampaignCreating,
	}
}

// Transition validates the edge from → to and returns the new status, or
// ErrInvalidTransition if the edge is not defined. It never mutates anything;
// the store applies the result atomically.
func Transition(from, to Status) (Status, error) {
	if !CanTransition(from, to) {
		return from, eris.Wrapf(ErrInvalidTransition, "%s -> %s", from, to)
	}
	return to, nil
}
