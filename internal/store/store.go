package store

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/righthand-talent/placement-cli/internal/model"
)

// ErrStatusConflict is returned when a compare-and-set status transition
// finds the candidate in an unexpected state. It is the duplicate-delivery
// and stale-client signal: no work was done and no state changed.
var ErrStatusConflict = eris.New("store: status conflict")

// ErrCampaignExists is returned when a campaign link already exists for a
// candidate. It guards against duplicate vendor campaigns.
var ErrCampaignExists = eris.New("store: campaign already exists for candidate")

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = eris.New("store: not found")

// Store defines the persistence interface for the outreach pipeline.
type Store interface {
	// Candidates
	CreateCandidate(ctx context.Context, c *model.Candidate) (int64, error)
	GetCandidate(ctx context.Context, id int64) (*model.Candidate, error)
	ListCandidates(ctx context.Context) ([]model.Candidate, error)
	UpdateCandidateProfile(ctx context.Context, c *model.Candidate) error
	SetExtractedData(ctx context.Context, id int64, data json.RawMessage, prefs *model.CompanyPreferences) error
	DeleteCandidate(ctx context.Context, id int64) error

	// TransitionStatus atomically moves the candidate from one of the
	// expected pre-states to the target state. Every (from, to) pair must be
	// a legal registry edge; finding the candidate in any other state
	// returns ErrStatusConflict and changes nothing.
	TransitionStatus(ctx context.Context, id int64, from []model.Status, to model.Status) error

	// ResetStatus puts the candidate back to not_started regardless of the
	// current state. It exists only for the reset-on-edit update path and
	// deliberately bypasses the edge registry.
	ResetStatus(ctx context.Context, id int64) error

	// Companies (vendor-key upsert: existing internal id is preserved)
	UpsertCompany(ctx context.Context, c model.Company) (int64, error)
	GetCompany(ctx context.Context, id int64) (*model.Company, error)

	// Selections
	EnsureSelection(ctx context.Context, candidateID, companyID int64) error
	SetSelectionApproval(ctx context.Context, candidateID, companyID int64, approved bool) error
	ListApprovedCompanies(ctx context.Context, candidateID int64) ([]model.Company, error)
	ListSelections(ctx context.Context, candidateID int64) ([]model.Selection, error)

	// Decision makers (vendor-key upsert)
	UpsertDecisionMaker(ctx context.Context, dm model.DecisionMaker) (int64, error)
	ListDecisionMakers(ctx context.Context, companyID int64) ([]model.DecisionMaker, error)

	// Campaign links
	CreateCampaignLink(ctx context.Context, candidateID int64, campaignID string) error
	GetCampaignLink(ctx context.Context, candidateID int64) (*model.CampaignLink, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// validateEdges checks that every requested pre-state can legally move to
// the target, so an illegal CAS can never be expressed.
func validateEdges(from []model.Status, to model.Status) error {
	if len(from) == 0 {
		return eris.New("store: transition requires at least one expected pre-state")
	}
	for _, f := range from {
		if !model.CanTransition(f, to) {
			return eris.Wrapf(model.ErrInvalidTransition, "%s -> %s", f, to)
		}
	}
	return nil
}
