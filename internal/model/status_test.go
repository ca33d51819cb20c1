package model

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransition_LegalEdges(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from Status
		to   Status
	}{
		{StatusNotStarted, StatusExtractingData},
		{StatusExtractingData, StatusDataExtracted},
		{StatusDataExtracted, StatusSearchingCompanies},
		{StatusSearchingCompanies, StatusCompaniesMatched},
		{StatusSearchingCompanies, StatusNoCompaniesMatched},
		{StatusCompaniesMatched, StatusApprovalPending},
		{StatusApprovalPending, StatusCandidateApproved},
		{StatusCandidateApproved, StatusFindingDecisionMakers},
		{StatusFindingDecisionMakers, StatusDecisionMakersFound},
		{StatusFindingDecisionMakers, StatusNoDecisionMakersFound},
		{StatusDecisionMakersFound, StatusCampaignCreating},
		{StatusCampaignCreating, StatusCampaignCreated},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			t.Parallel()
			got, err := Transition(tt.from, tt.to)
			require.NoError(t, err)
			assert.Equal(t, tt.to, got)
		})
	}
}

func TestTransition_RejectsUndefinedEdges(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		from Status
		to   Status
	}{
		{"approval while extracting", StatusExtractingData, StatusCandidateApproved},
		{"skip search", StatusDataExtracted, StatusCompaniesMatched},
		{"backwards", StatusCompaniesMatched, StatusExtractingData},
		{"re-enter same stage", StatusExtractingData, StatusExtractingData},
		{"campaign before decision makers", StatusCandidateApproved, StatusCampaignCreating},
		{"out of terminal", StatusCampaignCreated, StatusCampaignCreating},
		{"unknown status", Status("bogus"), StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Transition(tt.from, tt.to)
			require.Error(t, err)
			assert.True(t, eris.Is(err, ErrInvalidTransition))
			assert.Equal(t, tt.from, got, "status must be unchanged on conflict")
		})
	}
}

func TestTransition_FailedReachableFromNonTerminalOnly(t *testing.T) {
	t.Parallel()

	nonTerminal := []Status{
		StatusNotStarted, StatusExtractingData, StatusDataExtracted,
		StatusSearchingCompanies, StatusCompaniesMatched, StatusApprovalPending,
		StatusCandidateApproved, StatusFindingDecisionMakers,
		StatusDecisionMakersFound, StatusCampaignCreating,
	}
	for _, s := range nonTerminal {
		assert.True(t, CanTransition(s, StatusFailed), "from %s", s)
	}

	terminal := []Status{
		StatusNoCompaniesMatched, StatusNoDecisionMakersFound,
		StatusCampaignCreated, StatusFailed,
	}
	for _, s := range terminal {
		assert.True(t, s.Terminal(), "%s should be terminal", s)
		assert.False(t, CanTransition(s, StatusFailed), "from %s", s)
	}
}

func TestStatusValid(t *testing.T) {
	t.Parallel()

	assert.True(t, StatusNotStarted.Valid())
	assert.True(t, StatusFailed.Valid())
	assert.False(t, Status("").Valid())
	assert.False(t, Status("done").Valid())
}
