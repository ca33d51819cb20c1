package pipeline

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/righthand-talent/placement-cli/internal/assign"
	"github.com/righthand-talent/placement-cli/internal/config"
	"github.com/righthand-talent/placement-cli/internal/extract"
	"github.com/righthand-talent/placement-cli/internal/model"
	"github.com/righthand-talent/placement-cli/internal/store"
	"github.com/righthand-talent/placement-cli/pkg/apollo"
	"github.com/righthand-talent/placement-cli/pkg/lemlist"
)

type testEnv struct {
	activities *Activities
	store      store.Store
	apollo     *mockApolloClient
	lemlist    *mockLemlistClient
	extractor  *mockExtractor
	documents  *mockDocumentLoader
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	env := &testEnv{
		store:     st,
		apollo:    &mockApolloClient{},
		lemlist:   &mockLemlistClient{},
		extractor: &mockExtractor{},
		documents: &mockDocumentLoader{},
	}
	env.activities = &Activities{
		Store:         st,
		Documents:     env.documents,
		Extractor:     env.extractor,
		Apollo:        env.apollo,
		Lemlist:       env.lemlist,
		Oracle:        assign.Comparator{},
		SearchPerPage: 20,
		Sequence: config.Sequence{Steps: []config.SequenceStep{
			{Subject: "Intro", Message: "Hi {{firstName}}", DelayDays: 0},
			{Subject: "Follow up", Message: "Bump", DelayDays: 2},
			{Subject: "Last try", Message: "Closing the loop", DelayDays: 3},
		}},
	}
	return env
}

func (e *testEnv) newCandidate(t *testing.T) int64 {
	t.Helper()
	id, err := e.store.CreateCandidate(context.Background(), &model.Candidate{
		FirstName:        "Ada",
		LastName:         "Lovelace",
		Email:            "ada@example.com",
		Role:             "Staff Engineer",
		ResumeSource:     model.ResumeSourceLocal,
		TranscriptSource: model.TranscriptSourceLocal,
	})
	require.NoError(t, err)
	return id
}

// advance walks the candidate along legal edges to the target pre-state.
func (e *testEnv) advance(t *testing.T, id int64, path ...model.Status) {
	t.Helper()
	ctx := context.Background()
	from := model.StatusNotStarted
	for _, to := range path {
		require.NoError(t, e.store.TransitionStatus(ctx, id, []model.Status{from}, to))
		from = to
	}
}

func (e *testEnv) status(t *testing.T, id int64) model.Status {
	t.Helper()
	c, err := e.store.GetCandidate(context.Background(), id)
	require.NoError(t, err)
	return c.ProcessingStatus
}

func emailOf(s string) *string { return &s }

// --- Extract ---

func TestExtractActivity_HappyPath(t *testing.T) {
	env := newTestEnv(t)
	id := env.newCandidate(t)
	ctx := context.Background()

	env.documents.On("Load", mock.Anything, mock.Anything).
		Return(model.CandidateDocuments{ResumeText: "resume text"}, nil)
	env.extractor.On("Extract", mock.Anything, mock.Anything, mock.Anything).
		Return(&extract.Result{
			Profile:     json.RawMessage(`{"summary": "engineer"}`),
			Preferences: &model.CompanyPreferences{FundingStages: []string{"seed"}},
		}, nil)

	res, err := env.activities.ExtractActivity(ctx, id)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, model.StatusDataExtracted, env.status(t, id))

	c, err := env.store.GetCandidate(ctx, id)
	require.NoError(t, err)
	assert.JSONEq(t, `{"summary": "engineer"}`, string(c.ExtractedData))
	require.NotNil(t, c.CompanyPreferences)
}

func TestExtractActivity_WrongPreState_Skips(t *testing.T) {
	env := newTestEnv(t)
	id := env.newCandidate(t)
	env.advance(t, id, model.StatusExtractingData)

	res, err := env.activities.ExtractActivity(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, model.StatusExtractingData, env.status(t, id), "conflict leaves status unchanged")
	env.extractor.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything, mock.Anything)
}

// --- Search ---

func TestSearchCompaniesActivity_UpsertsAndSelects(t *testing.T) {
	env := newTestEnv(t)
	id := env.newCandidate(t)
	env.advance(t, id, model.StatusExtractingData, model.StatusDataExtracted)
	require.NoError(t, env.store.SetExtractedData(context.Background(), id, nil,
		&model.CompanyPreferences{FundingStages: []string{"seed"}, Locations: []string{"Remote"}}))

	env.apollo.On("SearchOrganizations", mock.Anything, mock.MatchedBy(func(req apollo.SearchOrganizationsRequest) bool {
		return len(req.FundingStages) == 1 && req.FundingStages[0] == "seed"
	})).Return([]apollo.Organization{
		{ID: "org-1", Name: "Acme"},
		{ID: "org-2", Name: "Globex"},
	}, nil)

	res, err := env.activities.SearchCompaniesActivity(context.Background(), SearchInput{
		CandidateID: id,
		Strategy:    model.StrategySmart,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Matched)
	assert.Equal(t, model.StatusCompaniesMatched, env.status(t, id))

	sels, err := env.store.ListSelections(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, sels, 2)
}

func TestSearchCompaniesActivity_ZeroResults_TerminalNotFailed(t *testing.T) {
	env := newTestEnv(t)
	id := env.newCandidate(t)
	env.advance(t, id, model.StatusExtractingData, model.StatusDataExtracted)

	env.apollo.On("SearchOrganizations", mock.Anything, mock.Anything).
		Return([]apollo.Organization{}, nil)

	res, err := env.activities.SearchCompaniesActivity(context.Background(), SearchInput{
		CandidateID: id,
		Strategy:    model.StrategySmart,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Matched)
	assert.Equal(t, model.StatusNoCompaniesMatched, env.status(t, id))
}

func TestSearchCompaniesActivity_ManualStrategy(t *testing.T) {
	env := newTestEnv(t)
	id := env.newCandidate(t)
	env.advance(t, id, model.StatusExtractingData, model.StatusDataExtracted)

	env.apollo.On("EnrichOrganization", mock.Anything, "acme.com").
		Return(&apollo.Organization{ID: "org-1", Name: "Acme"}, nil)
	env.apollo.On("EnrichOrganization", mock.Anything, "unknown.example").
		Return(nil, eris.New("not found"))

	res, err := env.activities.SearchCompaniesActivity(context.Background(), SearchInput{
		CandidateID: id,
		Strategy:    model.StrategyManual,
		Domains:     []string{"acme.com", "unknown.example"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Matched, "unknown domain is skipped, not fatal")
	assert.Equal(t, model.StatusCompaniesMatched, env.status(t, id))
	env.apollo.AssertNotCalled(t, "SearchOrganizations", mock.Anything, mock.Anything)
}

func TestSearchCompaniesActivity_Rerun_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	id := env.newCandidate(t)
	env.advance(t, id, model.StatusExtractingData, model.StatusDataExtracted)

	env.apollo.On("SearchOrganizations", mock.Anything, mock.Anything).
		Return([]apollo.Organization{{ID: "org-1", Name: "Acme"}}, nil)

	in := SearchInput{CandidateID: id, Strategy: model.StrategySmart}
	_, err := env.activities.SearchCompaniesActivity(context.Background(), in)
	require.NoError(t, err)

	// Duplicate delivery: status is past searching, so the stage no-ops.
	res, err := env.activities.SearchCompaniesActivity(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	sels, err := env.store.ListSelections(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, sels, 1, "no duplicate selection rows")
}

// --- Decision makers ---

// approveCompany inserts a company, selects it for the candidate, and marks
// it approved.
func (e *testEnv) approveCompany(t *testing.T, candidateID int64, c model.Company) int64 {
	t.Helper()
	ctx := context.Background()
	companyID, err := e.store.UpsertCompany(ctx, c)
	require.NoError(t, err)
	require.NoError(t, e.store.EnsureSelection(ctx, candidateID, companyID))
	require.NoError(t, e.store.SetSelectionApproval(ctx, candidateID, companyID, true))
	return companyID
}

func TestFindDecisionMakersActivity_MixedCompanies(t *testing.T) {
	env := newTestEnv(t)
	id := env.newCandidate(t)
	env.advance(t, id,
		model.StatusExtractingData, model.StatusDataExtracted,
		model.StatusSearchingCompanies, model.StatusCompaniesMatched,
		model.StatusApprovalPending, model.StatusCandidateApproved)

	env.approveCompany(t, id, model.Company{ApolloID: "org-a", Name: "A Corp"})
	env.approveCompany(t, id, model.Company{ApolloID: "org-b", Name: "B Corp"})

	// Company A: two decision makers with email and headline.
	env.apollo.On("SearchPeople", mock.Anything, []string{"org-a"}).
		Return([]apollo.Person{{ID: "p-1"}, {ID: "p-2"}}, nil)
	env.apollo.On("EnrichPeople", mock.Anything, []string{"p-1", "p-2"}).
		Return([]apollo.Person{
			{ID: "p-1", FirstName: "Grace", Seniority: "founder", Headline: "Founder", Email: emailOf("grace@a.com")},
			{ID: "p-2", FirstName: "Alan", Seniority: "c_suite", Headline: "CTO", Email: emailOf("alan@a.com")},
		}, nil)

	// Company B: one decision maker without an email.
	env.apollo.On("SearchPeople", mock.Anything, []string{"org-b"}).
		Return([]apollo.Person{{ID: "p-3"}}, nil)
	env.apollo.On("EnrichPeople", mock.Anything, []string{"p-3"}).
		Return([]apollo.Person{{ID: "p-3", FirstName: "Bob", Seniority: "owner", Headline: "Owner"}}, nil)

	res, err := env.activities.FindDecisionMakersActivity(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Matched, "only company A has a usable assignment")
	assert.Equal(t, model.StatusDecisionMakersFound, env.status(t, id))
}

func TestFindDecisionMakersActivity_OneCompanyFails_StageSucceeds(t *testing.T) {
	env := newTestEnv(t)
	id := env.newCandidate(t)
	env.advance(t, id,
		model.StatusExtractingData, model.StatusDataExtracted,
		model.StatusSearchingCompanies, model.StatusCompaniesMatched,
		model.StatusApprovalPending, model.StatusCandidateApproved)

	env.approveCompany(t, id, model.Company{ApolloID: "org-a", Name: "A Corp"})
	env.approveCompany(t, id, model.Company{ApolloID: "org-b", Name: "B Corp"})

	env.apollo.On("SearchPeople", mock.Anything, []string{"org-a"}).
		Return(nil, eris.New("503 from vendor"))
	env.apollo.On("SearchPeople", mock.Anything, []string{"org-b"}).
		Return([]apollo.Person{{ID: "p-3"}}, nil)
	env.apollo.On("EnrichPeople", mock.Anything, []string{"p-3"}).
		Return([]apollo.Person{{ID: "p-3", FirstName: "Bob", Seniority: "owner", Headline: "Owner", Email: emailOf("bob@b.com")}}, nil)

	res, err := env.activities.FindDecisionMakersActivity(context.Background(), id)
	require.NoError(t, err, "per-company failure is isolated")
	assert.Equal(t, 1, res.Matched)
	assert.Equal(t, model.StatusDecisionMakersFound, env.status(t, id))
}

func TestFindDecisionMakersActivity_NoneAssignable(t *testing.T) {
	env := newTestEnv(t)
	id := env.newCandidate(t)
	env.advance(t, id,
		model.StatusExtractingData, model.StatusDataExtracted,
		model.StatusSearchingCompanies, model.StatusCompaniesMatched,
		model.StatusApprovalPending, model.StatusCandidateApproved)

	env.approveCompany(t, id, model.Company{ApolloID: "org-a", Name: "A Corp"})
	env.apollo.On("SearchPeople", mock.Anything, []string{"org-a"}).
		Return([]apollo.Person{}, nil)

	res, err := env.activities.FindDecisionMakersActivity(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Matched)
	assert.Equal(t, model.StatusNoDecisionMakersFound, env.status(t, id))
}

// --- Campaign ---

func (e *testEnv) readyForCampaign(t *testing.T) (int64, int64) {
	t.Helper()
	id := e.newCandidate(t)
	e.advance(t, id,
		model.StatusExtractingData, model.StatusDataExtracted,
		model.StatusSearchingCompanies, model.StatusCompaniesMatched,
		model.StatusApprovalPending, model.StatusCandidateApproved,
		model.StatusFindingDecisionMakers, model.StatusDecisionMakersFound)
	companyID := e.approveCompany(t, id, model.Company{ApolloID: "org-a", Name: "A Corp"})

	ctx := context.Background()
	_, err := e.store.UpsertDecisionMaker(ctx, model.DecisionMaker{
		ApolloID: "p-1", CompanyID: companyID,
		FirstName: "grace", LastName: "hopper",
		Seniority: "founder", Headline: "Founder", Email: emailOf("grace@a.com"),
	})
	require.NoError(t, err)
	return id, companyID
}

func TestCreateCampaignActivity_HappyPath(t *testing.T) {
	env := newTestEnv(t)
	id, _ := env.readyForCampaign(t)

	env.lemlist.On("CreateCampaign", mock.Anything, "Ada Lovelace - Outreach").
		Return(&lemlist.Campaign{ID: "cam_1"}, nil)
	env.lemlist.On("CreateSequenceStep", mock.Anything, "cam_1", mock.Anything).
		Return(nil).Times(3)

	var gotLead lemlist.Lead
	env.lemlist.On("CreateLeadInCampaign", mock.Anything, "cam_1", mock.Anything).
		Run(func(args mock.Arguments) { gotLead = args.Get(2).(lemlist.Lead) }).
		Return(&lemlist.Lead{Email: "grace@a.com"}, nil)

	res, err := env.activities.CreateCampaignActivity(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Matched)
	assert.Equal(t, model.StatusCampaignCreated, env.status(t, id))

	link, err := env.store.GetCampaignLink(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, link)
	assert.Equal(t, "cam_1", link.CampaignID)

	// Fixed-field payload: unassigned roles are explicit empties, names are
	// title cased.
	assert.Equal(t, "grace@a.com", gotLead.Email)
	assert.Equal(t, "Grace", gotLead.FirstName)
	assert.Equal(t, "", gotLead.Variables["cc_1Name"])
	assert.Equal(t, "", gotLead.Variables["alt_2Email"])
	assert.Equal(t, "Ada Lovelace", gotLead.Variables["candidateName"])
}

func TestCreateCampaignActivity_DuplicateRequest_Conflict(t *testing.T) {
	env := newTestEnv(t)
	id, _ := env.readyForCampaign(t)

	env.lemlist.On("CreateCampaign", mock.Anything, mock.Anything).
		Return(&lemlist.Campaign{ID: "cam_1"}, nil).Once()
	env.lemlist.On("CreateSequenceStep", mock.Anything, "cam_1", mock.Anything).Return(nil)
	env.lemlist.On("CreateLeadInCampaign", mock.Anything, "cam_1", mock.Anything).
		Return(&lemlist.Lead{}, nil)

	_, err := env.activities.CreateCampaignActivity(context.Background(), id)
	require.NoError(t, err)

	res, err := env.activities.CreateCampaignActivity(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, res.Skipped, "second request is rejected, not a second campaign")

	link, err := env.store.GetCampaignLink(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "cam_1", link.CampaignID)
	env.lemlist.AssertNumberOfCalls(t, "CreateCampaign", 1)
}

func TestCreateCampaignActivity_LeadFailure_Isolated(t *testing.T) {
	env := newTestEnv(t)
	id, _ := env.readyForCampaign(t)

	// Second approved company whose lead is already enrolled elsewhere.
	otherID := env.approveCompany(t, id, model.Company{ApolloID: "org-b", Name: "B Corp"})
	_, err := env.store.UpsertDecisionMaker(context.Background(), model.DecisionMaker{
		ApolloID: "p-2", CompanyID: otherID,
		FirstName: "alan", Seniority: "c_suite", Headline: "CTO", Email: emailOf("alan@b.com"),
	})
	require.NoError(t, err)

	env.lemlist.On("CreateCampaign", mock.Anything, mock.Anything).
		Return(&lemlist.Campaign{ID: "cam_1"}, nil)
	env.lemlist.On("CreateSequenceStep", mock.Anything, "cam_1", mock.Anything).Return(nil)
	env.lemlist.On("CreateLeadInCampaign", mock.Anything, "cam_1", mock.MatchedBy(func(l lemlist.Lead) bool {
		return l.Email == "grace@a.com"
	})).Return(&lemlist.Lead{}, nil)
	// Already enrolled elsewhere: nil lead, nil error.
	env.lemlist.On("CreateLeadInCampaign", mock.Anything, "cam_1", mock.MatchedBy(func(l lemlist.Lead) bool {
		return l.Email == "alan@b.com"
	})).Return(nil, nil)

	res, err := env.activities.CreateCampaignActivity(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Matched)
	assert.Equal(t, model.StatusCampaignCreated, env.status(t, id))
}

func TestCreateCampaignActivity_LeadError_OtherCompaniesProceed(t *testing.T) {
	env := newTestEnv(t)
	id, _ := env.readyForCampaign(t)

	otherID := env.approveCompany(t, id, model.Company{ApolloID: "org-b", Name: "B Corp"})
	_, err := env.store.UpsertDecisionMaker(context.Background(), model.DecisionMaker{
		ApolloID: "p-2", CompanyID: otherID,
		FirstName: "alan", Seniority: "c_suite", Headline: "CTO", Email: emailOf("alan@b.com"),
	})
	require.NoError(t, err)

	env.lemlist.On("CreateCampaign", mock.Anything, mock.Anything).
		Return(&lemlist.Campaign{ID: "cam_1"}, nil)
	env.lemlist.On("CreateSequenceStep", mock.Anything, "cam_1", mock.Anything).Return(nil)
	env.lemlist.On("CreateLeadInCampaign", mock.Anything, "cam_1", mock.MatchedBy(func(l lemlist.Lead) bool {
		return l.Email == "grace@a.com"
	})).Return(&lemlist.Lead{}, nil)
	// A hard vendor error for one company must not fail the whole stage.
	env.lemlist.On("CreateLeadInCampaign", mock.Anything, "cam_1", mock.MatchedBy(func(l lemlist.Lead) bool {
		return l.Email == "alan@b.com"
	})).Return(nil, eris.New("lead endpoint returned 500"))

	res, err := env.activities.CreateCampaignActivity(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Matched)
	assert.Equal(t, model.StatusCampaignCreated, env.status(t, id))
}

func TestCreateCampaignActivity_InterruptedAfterVendorCreate_Resumes(t *testing.T) {
	env := newTestEnv(t)
	id, _ := env.readyForCampaign(t)

	env.lemlist.On("CreateCampaign", mock.Anything, mock.Anything).
		Return(&lemlist.Campaign{ID: "cam_1"}, nil)
	env.lemlist.On("CreateSequenceStep", mock.Anything, "cam_1", mock.Anything).
		Return(eris.New("sequence endpoint timed out"))

	_, err := env.activities.CreateCampaignActivity(context.Background(), id)
	require.Error(t, err)
	assert.Equal(t, model.StatusCampaignCreating, env.status(t, id))

	// The link was recorded before the sequence work, so the interrupted run
	// left a resumable row instead of an orphaned vendor campaign.
	link, err := env.store.GetCampaignLink(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, link)
	assert.Equal(t, "cam_1", link.CampaignID)

	env.lemlist.On("CreateLeadInCampaign", mock.Anything, "cam_1", mock.Anything).
		Return(&lemlist.Lead{}, nil)

	res, err := env.activities.CreateCampaignActivity(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, 1, res.Matched)
	assert.Equal(t, model.StatusCampaignCreated, env.status(t, id))
	env.lemlist.AssertNumberOfCalls(t, "CreateCampaign", 1)
}

func TestCreateCampaignActivity_WrongPreState_Skips(t *testing.T) {
	env := newTestEnv(t)
	id := env.newCandidate(t)

	res, err := env.activities.CreateCampaignActivity(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	env.lemlist.AssertNotCalled(t, "CreateCampaign", mock.Anything, mock.Anything)
}

// --- MarkFailed ---

func TestMarkFailedActivity(t *testing.T) {
	env := newTestEnv(t)
	id := env.newCandidate(t)
	env.advance(t, id, model.StatusExtractingData)

	require.NoError(t, env.activities.MarkFailedActivity(context.Background(), id))
	assert.Equal(t, model.StatusFailed, env.status(t, id))

	// Terminal already: a second mark is a silent no-op.
	require.NoError(t, env.activities.MarkFailedActivity(context.Background(), id))
	assert.Equal(t, model.StatusFailed, env.status(t, id))
}
