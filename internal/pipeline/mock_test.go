package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/righthand-talent/placement-cli/internal/extract"
	"github.com/righthand-talent/placement-cli/internal/model"
	"github.com/righthand-talent/placement-cli/pkg/apollo"
	"github.com/righthand-talent/placement-cli/pkg/lemlist"
)

// --- Apollo Mock ---

type mockApolloClient struct {
	mock.Mock
}

func (m *mockApolloClient) SearchOrganizations(ctx context.Context, req apollo.SearchOrganizationsRequest) ([]apollo.Organization, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]apollo.Organization), args.Error(1)
}

func (m *mockApolloClient) EnrichOrganization(ctx context.Context, domain string) (*apollo.Organization, error) {
	args := m.Called(ctx, domain)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*apollo.Organization), args.Error(1)
}

func (m *mockApolloClient) SearchPeople(ctx context.Context, organizationIDs []string) ([]apollo.Person, error) {
	args := m.Called(ctx, organizationIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]apollo.Person), args.Error(1)
}

func (m *mockApolloClient) EnrichPeople(ctx context.Context, personIDs []string) ([]apollo.Person, error) {
	args := m.Called(ctx, personIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]apollo.Person), args.Error(1)
}

// --- Lemlist Mock ---

type mockLemlistClient struct {
	mock.Mock
}

func (m *mockLemlistClient) CreateCampaign(ctx context.Context, name string) (*lemlist.Campaign, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*lemlist.Campaign), args.Error(1)
}

func (m *mockLemlistClient) GetCampaign(ctx context.Context, campaignID string) (*lemlist.Campaign, error) {
	args := m.Called(ctx, campaignID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*lemlist.Campaign), args.Error(1)
}

func (m *mockLemlistClient) PauseCampaign(ctx context.Context, campaignID string) error {
	args := m.Called(ctx, campaignID)
	return args.Error(0)
}

func (m *mockLemlistClient) CreateSequenceStep(ctx context.Context, campaignID string, step lemlist.SequenceStep) error {
	args := m.Called(ctx, campaignID, step)
	return args.Error(0)
}

func (m *mockLemlistClient) CreateLeadInCampaign(ctx context.Context, campaignID string, lead lemlist.Lead) (*lemlist.Lead, error) {
	args := m.Called(ctx, campaignID, lead)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*lemlist.Lead), args.Error(1)
}

// --- Extractor Mock ---

type mockExtractor struct {
	mock.Mock
}

func (m *mockExtractor) Extract(ctx context.Context, candidate *model.Candidate, docs model.CandidateDocuments) (*extract.Result, error) {
	args := m.Called(ctx, candidate, docs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*extract.Result), args.Error(1)
}

// --- Document Loader Mock ---

type mockDocumentLoader struct {
	mock.Mock
}

func (m *mockDocumentLoader) Load(ctx context.Context, c *model.Candidate) (model.CandidateDocuments, error) {
	args := m.Called(ctx, c)
	return args.Get(0).(model.CandidateDocuments), args.Error(1)
}
