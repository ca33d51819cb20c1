// Package pipeline drives a candidate through the outreach chain
// extract → search-companies → find-decision-makers → create-campaign as
// Temporal workflows. Every activity asserts the candidate's pre-state with
// an atomic compare-and-set before doing work, so duplicate or late task
// deliveries collapse into no-ops instead of double side effects.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/activity"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/righthand-talent/placement-cli/internal/assign"
	"github.com/righthand-talent/placement-cli/internal/config"
	"github.com/righthand-talent/placement-cli/internal/enrich"
	"github.com/righthand-talent/placement-cli/internal/extract"
	"github.com/righthand-talent/placement-cli/internal/model"
	"github.com/righthand-talent/placement-cli/internal/store"
	"github.com/righthand-talent/placement-cli/pkg/apollo"
	"github.com/righthand-talent/placement-cli/pkg/lemlist"
)

// Activities bundles the pipeline stages with their collaborators. One
// instance is registered on the worker.
type Activities struct {
	Store     store.Store
	Documents DocumentLoader
	Extractor extract.Extractor
	Apollo    apollo.Client
	Lemlist   lemlist.Client
	Oracle    assign.Oracle
	Sequence  config.Sequence

	// SearchPerPage bounds the company search result size.
	SearchPerPage int
}

// StageResult reports what a stage did. Skipped means the pre-state
// assertion failed: the event was a duplicate or arrived late, no work was
// done, and the chain stops silently.
type StageResult struct {
	Skipped bool
	// Matched counts the stage's output items (companies found, companies
	// with decision makers, leads created).
	Matched int
}

// SearchInput carries the company-search parameters chosen at intake.
type SearchInput struct {
	CandidateID int64
	Strategy    model.SearchStrategy
	// Domains is the manual/hybrid domain list. Ignored for the default
	// strategy.
	Domains []string
}

// enterStage asserts a stage's pre-state with a compare-and-set and reports
// whether the stage should be skipped as a duplicate or late delivery. On a
// Temporal retry attempt the candidate may already hold the stage's
// in-progress status from the failed attempt; that is a resume, not a
// duplicate, so the assertion is satisfied without a second transition.
func (a *Activities) enterStage(ctx context.Context, candidateID int64, pre, inProgress model.Status) (bool, error) {
	if activity.IsActivity(ctx) && activity.GetInfo(ctx).Attempt > 1 {
		candidate, err := a.Store.GetCandidate(ctx, candidateID)
		if err != nil {
			return false, err
		}
		if candidate.ProcessingStatus == inProgress {
			return false, nil
		}
	}
	err := a.Store.TransitionStatus(ctx, candidateID, []model.Status{pre}, inProgress)
	if errors.Is(err, store.ErrStatusConflict) {
		return true, nil
	}
	return false, err
}

// ExtractActivity runs document extraction for a candidate.
func (a *Activities) ExtractActivity(ctx context.Context, candidateID int64) (StageResult, error) {
	skipped, err := a.enterStage(ctx, candidateID, model.StatusNotStarted, model.StatusExtractingData)
	if skipped {
		zap.L().Info("extract stage skipped, candidate not in pre-state",
			zap.Int64("candidate_id", candidateID))
		return StageResult{Skipped: true}, nil
	}
	if err != nil {
		return StageResult{}, err
	}

	candidate, err := a.Store.GetCandidate(ctx, candidateID)
	if err != nil {
		return StageResult{}, err
	}
	docs, err := a.Documents.Load(ctx, candidate)
	if err != nil {
		return StageResult{}, err
	}

	res, err := a.Extractor.Extract(ctx, candidate, docs)
	if err != nil {
		return StageResult{}, err
	}
	if err := a.Store.SetExtractedData(ctx, candidateID, res.Profile, res.Preferences); err != nil {
		return StageResult{}, err
	}

	err = a.Store.TransitionStatus(ctx, candidateID,
		[]model.Status{model.StatusExtractingData}, model.StatusDataExtracted)
	if err != nil {
		return StageResult{}, err
	}
	return StageResult{Matched: 1}, nil
}

// SearchCompaniesActivity discovers companies for a candidate and records
// them with selection rows. Zero matches is a legitimate terminal outcome,
// not an error.
func (a *Activities) SearchCompaniesActivity(ctx context.Context, in SearchInput) (StageResult, error) {
	skipped, err := a.enterStage(ctx, in.CandidateID, model.StatusDataExtracted, model.StatusSearchingCompanies)
	if skipped {
		zap.L().Info("search stage skipped, candidate not in pre-state",
			zap.Int64("candidate_id", in.CandidateID))
		return StageResult{Skipped: true}, nil
	}
	if err != nil {
		return StageResult{}, err
	}

	candidate, err := a.Store.GetCandidate(ctx, in.CandidateID)
	if err != nil {
		return StageResult{}, err
	}

	orgs, err := a.searchOrganizations(ctx, candidate, in)
	if err != nil {
		return StageResult{}, err
	}

	if len(orgs) == 0 {
		err = a.Store.TransitionStatus(ctx, in.CandidateID,
			[]model.Status{model.StatusSearchingCompanies}, model.StatusNoCompaniesMatched)
		return StageResult{}, err
	}

	ids, err := enrich.Reconcile(ctx, orgs,
		func(o apollo.Organization) string { return o.ID },
		func(ctx context.Context, o apollo.Organization) (int64, error) {
			return a.Store.UpsertCompany(ctx, enrich.CompanyFromOrganization(o))
		})
	if err != nil {
		return StageResult{}, err
	}

	matched := 0
	for _, id := range ids {
		if id == nil {
			continue
		}
		if err := a.Store.EnsureSelection(ctx, in.CandidateID, *id); err != nil {
			return StageResult{}, err
		}
		matched++
	}

	err = a.Store.TransitionStatus(ctx, in.CandidateID,
		[]model.Status{model.StatusSearchingCompanies}, model.StatusCompaniesMatched)
	if err != nil {
		return StageResult{}, err
	}
	return StageResult{Matched: matched}, nil
}

func (a *Activities) searchOrganizations(ctx context.Context, candidate *model.Candidate, in SearchInput) ([]apollo.Organization, error) {
	if in.Strategy == model.StrategyManual {
		// Manual: enrich the explicit domain list, skipping domains the
		// vendor does not know.
		var orgs []apollo.Organization
		for _, domain := range in.Domains {
			org, err := a.Apollo.EnrichOrganization(ctx, domain)
			if err != nil {
				zap.L().Warn("manual domain enrichment failed, skipping",
					zap.Int64("candidate_id", candidate.ID),
					zap.String("domain", domain),
					zap.Error(err))
				continue
			}
			if org != nil {
				orgs = append(orgs, *org)
			}
		}
		return orgs, nil
	}

	req := apollo.SearchOrganizationsRequest{PerPage: a.SearchPerPage}
	if prefs := candidate.CompanyPreferences; prefs != nil {
		req.FundingStages = prefs.FundingStages
		req.Locations = prefs.Locations
		req.Keywords = prefs.Categories
	}
	if in.Strategy == model.StrategyHybrid {
		req.Domains = in.Domains
	}
	return a.Apollo.SearchOrganizations(ctx, req)
}

// FindDecisionMakersActivity discovers and assigns decision makers for each
// approved company. A single company failing is logged and skipped; the
// stage fails only when the approved list itself cannot be processed.
func (a *Activities) FindDecisionMakersActivity(ctx context.Context, candidateID int64) (StageResult, error) {
	skipped, err := a.enterStage(ctx, candidateID, model.StatusCandidateApproved, model.StatusFindingDecisionMakers)
	if skipped {
		zap.L().Info("decision-maker stage skipped, candidate not in pre-state",
			zap.Int64("candidate_id", candidateID))
		return StageResult{Skipped: true}, nil
	}
	if err != nil {
		return StageResult{}, err
	}

	companies, err := a.Store.ListApprovedCompanies(ctx, candidateID)
	if err != nil {
		return StageResult{}, err
	}

	assignable := 0
	for _, company := range companies {
		ok, err := a.findCompanyDecisionMakers(ctx, company)
		if err != nil {
			zap.L().Warn("company decision-maker discovery failed, skipping",
				zap.Int64("candidate_id", candidateID),
				zap.Int64("company_id", company.ID),
				zap.String("company", company.Name),
				zap.Error(err))
			continue
		}
		if ok {
			assignable++
		}
	}

	to := model.StatusDecisionMakersFound
	if assignable == 0 {
		to = model.StatusNoDecisionMakersFound
	}
	err = a.Store.TransitionStatus(ctx, candidateID,
		[]model.Status{model.StatusFindingDecisionMakers}, to)
	if err != nil {
		return StageResult{}, err
	}
	return StageResult{Matched: assignable}, nil
}

// findCompanyDecisionMakers stores a company's decision makers and reports
// whether the company has a usable outreach assignment.
func (a *Activities) findCompanyDecisionMakers(ctx context.Context, company model.Company) (bool, error) {
	people, err := a.Apollo.SearchPeople(ctx, []string{company.ApolloID})
	if err != nil {
		return false, err
	}
	if len(people) == 0 {
		return false, nil
	}

	ids := make([]string, len(people))
	for i, p := range people {
		ids[i] = p.ID
	}
	enriched, err := a.Apollo.EnrichPeople(ctx, ids)
	if err != nil {
		return false, err
	}

	if _, err := enrich.Reconcile(ctx, enriched,
		func(p apollo.Person) string { return p.ID },
		func(ctx context.Context, p apollo.Person) (int64, error) {
			return a.Store.UpsertDecisionMaker(ctx, enrich.DecisionMakerFromPerson(p, company.ID))
		}); err != nil {
		return false, err
	}

	dms, err := a.Store.ListDecisionMakers(ctx, company.ID)
	if err != nil {
		return false, err
	}
	assignment, err := assign.Assign(ctx, a.Oracle, dms)
	if err != nil {
		return false, err
	}
	return assignment != nil, nil
}

// CreateCampaignActivity creates the vendor campaign, its sequence steps,
// and one lead per approved company. The CampaignLink row plus the status
// guard make duplicate requests conflicts, not second campaigns. The link is
// recorded right after the vendor create so an interruption anywhere later
// leaves a resumable row instead of an orphaned vendor campaign.
func (a *Activities) CreateCampaignActivity(ctx context.Context, candidateID int64) (StageResult, error) {
	candidate, err := a.Store.GetCandidate(ctx, candidateID)
	if err != nil {
		return StageResult{}, err
	}

	link, err := a.Store.GetCampaignLink(ctx, candidateID)
	if err != nil {
		return StageResult{}, err
	}
	if link != nil {
		if candidate.ProcessingStatus == model.StatusCampaignCreating {
			// A previous attempt created the vendor campaign but did not
			// finish the leads. Reuse it rather than create a second one.
			zap.L().Info("resuming interrupted campaign creation",
				zap.Int64("candidate_id", candidateID),
				zap.String("campaign_id", link.CampaignID))
			return a.finishCampaign(ctx, candidate, link.CampaignID)
		}
		zap.L().Info("campaign already exists, rejecting duplicate request",
			zap.Int64("candidate_id", candidateID),
			zap.String("campaign_id", link.CampaignID))
		return StageResult{Skipped: true}, nil
	}

	skipped, err := a.enterStage(ctx, candidateID, model.StatusDecisionMakersFound, model.StatusCampaignCreating)
	if skipped {
		zap.L().Info("campaign stage skipped, candidate not in pre-state",
			zap.Int64("candidate_id", candidateID))
		return StageResult{Skipped: true}, nil
	}
	if err != nil {
		return StageResult{}, err
	}

	campaign, err := a.Lemlist.CreateCampaign(ctx,
		fmt.Sprintf("%s %s - Outreach", candidate.FirstName, candidate.LastName))
	if err != nil {
		return StageResult{}, err
	}
	if err := a.Store.CreateCampaignLink(ctx, candidateID, campaign.ID); err != nil {
		if errors.Is(err, store.ErrCampaignExists) {
			return StageResult{Skipped: true}, nil
		}
		return StageResult{}, err
	}

	for _, step := range a.Sequence.Steps {
		err := a.Lemlist.CreateSequenceStep(ctx, campaign.ID, lemlist.SequenceStep{
			Subject:   step.Subject,
			Message:   step.Message,
			DelayDays: step.DelayDays,
		})
		if err != nil {
			return StageResult{}, err
		}
	}

	return a.finishCampaign(ctx, candidate, campaign.ID)
}

// finishCampaign runs the lead fan-out for every approved company and moves
// the candidate to the terminal campaign_created state.
func (a *Activities) finishCampaign(ctx context.Context, candidate *model.Candidate, campaignID string) (StageResult, error) {
	companies, err := a.Store.ListApprovedCompanies(ctx, candidate.ID)
	if err != nil {
		return StageResult{}, err
	}

	leads := 0
	for _, company := range companies {
		created, err := a.createCompanyLead(ctx, candidate, company, campaignID)
		if err != nil {
			zap.L().Warn("lead creation failed, skipping company",
				zap.Int64("candidate_id", candidate.ID),
				zap.Int64("company_id", company.ID),
				zap.String("company", company.Name),
				zap.Error(err))
			continue
		}
		if created {
			leads++
		}
	}

	err = a.Store.TransitionStatus(ctx, candidate.ID,
		[]model.Status{model.StatusCampaignCreating}, model.StatusCampaignCreated)
	if err != nil {
		return StageResult{}, err
	}
	return StageResult{Matched: leads}, nil
}

// createCompanyLead assigns the company's decision makers to roles and
// creates the fixed-field lead for the primary contact.
func (a *Activities) createCompanyLead(ctx context.Context, candidate *model.Candidate, company model.Company, campaignID string) (bool, error) {
	dms, err := a.Store.ListDecisionMakers(ctx, company.ID)
	if err != nil {
		return false, err
	}
	assignment, err := assign.Assign(ctx, a.Oracle, dms)
	if err != nil {
		return false, err
	}
	if assignment == nil {
		zap.L().Info("no usable decision makers, company skipped",
			zap.Int64("company_id", company.ID),
			zap.String("company", company.Name))
		return false, nil
	}

	lead, err := a.Lemlist.CreateLeadInCampaign(ctx, campaignID, buildLead(candidate, company, assignment))
	if err != nil {
		return false, err
	}
	if lead == nil {
		zap.L().Info("lead already enrolled in another campaign, skipped",
			zap.Int64("company_id", company.ID))
		return false, nil
	}
	return true, nil
}

var titleCaser = cases.Title(language.English, cases.NoLower)

// buildLead constructs the vendor payload. The payload shape is fixed:
// every role variable is present, with unassigned roles serialized as
// explicit empty strings.
func buildLead(candidate *model.Candidate, company model.Company, assignment *assign.Assignment) lemlist.Lead {
	primary := assignment.Assigned[assign.RolePrimary]
	lead := lemlist.Lead{
		Email:       *primary.Email,
		FirstName:   titleCaser.String(primary.FirstName),
		LastName:    titleCaser.String(primary.LastName),
		CompanyName: company.Name,
		Variables: map[string]string{
			"candidateName": titleCaser.String(candidate.FirstName + " " + candidate.LastName),
			"candidateRole": candidate.Role,
		},
	}
	for _, role := range []assign.Role{assign.RoleCC1, assign.RoleCC2, assign.RoleAlt1, assign.RoleAlt2} {
		name, email := "", ""
		if dm, ok := assignment.Assigned[role]; ok {
			name = titleCaser.String(dm.FirstName + " " + dm.LastName)
			if dm.Email != nil {
				email = *dm.Email
			}
		}
		lead.Variables[string(role)+"Name"] = name
		lead.Variables[string(role)+"Email"] = email
	}
	return lead
}

// MarkFailedActivity moves a candidate to the failed terminal state from any
// non-terminal state. Workflows run it after a stage exhausts its retries.
func (a *Activities) MarkFailedActivity(ctx context.Context, candidateID int64) error {
	err := a.Store.TransitionStatus(ctx, candidateID,
		model.NonTerminalStatuses(), model.StatusFailed)
	if errors.Is(err, store.ErrStatusConflict) {
		// Already terminal; nothing to mark.
		return nil
	}
	return eris.Wrapf(err, "pipeline: mark candidate %d failed", candidateID)
}
