package store

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/righthand-talent/placement-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetCandidate_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .* FROM candidates WHERE id = \$1`).
		WithArgs(int64(99)).
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetCandidate(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateCandidate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`INSERT INTO candidates`).
		WithArgs("Ada", "Lovelace", "ada@example.com", "", "Engineer", "",
			"not_started", "local", "", "local", "", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))

	id, err := s.CreateCandidate(context.Background(), &model.Candidate{
		FirstName:        "Ada",
		LastName:         "Lovelace",
		Email:            "ada@example.com",
		Role:             "Engineer",
		ResumeSource:     model.ResumeSourceLocal,
		TranscriptSource: model.TranscriptSourceLocal,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_TransitionStatus_Guarded(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE candidates SET processing_status = \$1, updated_at = \$2 WHERE id = \$3 AND processing_status = ANY\(\$4\)`).
		WithArgs("extracting_candidate_data", pgxmock.AnyArg(), int64(1), []string{"not_started"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.TransitionStatus(context.Background(), 1, []model.Status{model.StatusNotStarted}, model.StatusExtractingData)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_TransitionStatus_Conflict(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE candidates SET processing_status`).
		WithArgs("extracting_candidate_data", pgxmock.AnyArg(), int64(1), []string{"not_started"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.TransitionStatus(context.Background(), 1, []model.Status{model.StatusNotStarted}, model.StatusExtractingData)
	assert.ErrorIs(t, err, ErrStatusConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_TransitionStatus_IllegalEdge(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	// Rejected before any SQL runs.
	err := s.TransitionStatus(context.Background(), 1, []model.Status{model.StatusNotStarted}, model.StatusCampaignCreated)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertCompany_ReturnsID(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`INSERT INTO companies .*ON CONFLICT \(apollo_id\) DO UPDATE`).
		WithArgs("apollo-1", "Acme", "acme.com", "", "", "", "", "", "", "", "",
			0, "", "", 25, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(3)))

	id, err := s.UpsertCompany(context.Background(), model.Company{
		ApolloID:      "apollo-1",
		Name:          "Acme",
		PrimaryDomain: "acme.com",
		EmployeeCount: 25,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_EnsureSelection_Idempotent(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	// ON CONFLICT DO NOTHING means zero rows affected is still success.
	mock.ExpectExec(`INSERT INTO candidate_company_selections .*DO NOTHING`).
		WithArgs(int64(1), int64(3)).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	err := s.EnsureSelection(context.Background(), 1, 3)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateCampaignLink_Duplicate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO campaign_links .*DO NOTHING`).
		WithArgs(int64(1), "cam_abc", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	err := s.CreateCampaignLink(context.Background(), 1, "cam_abc")
	assert.ErrorIs(t, err, ErrCampaignExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetCampaignLink_Missing(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, candidate_id, lemlist_campaign_id, created_at FROM campaign_links`).
		WithArgs(int64(42)).
		WillReturnError(pgx.ErrNoRows)

	link, err := s.GetCampaignLink(context.Background(), 42)
	require.NoError(t, err)
	assert.Nil(t, link)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListDecisionMakers(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	email := "vp@acme.com"
	rows := pgxmock.NewRows([]string{"id", "apollo_id", "company_id", "first_name", "last_name", "title", "seniority", "headline", "email", "linkedin_url", "photo_url"}).
		AddRow(int64(1), "person-1", int64(3), "Grace", "Hopper", "VP Engineering", "vp", "Engineering leader", &email, "", "").
		AddRow(int64(2), "person-2", int64(3), "Alan", "Turing", "CTO", "c_suite", "", (*string)(nil), "", "")

	mock.ExpectQuery(`SELECT .* FROM decision_makers WHERE company_id = \$1`).
		WithArgs(int64(3)).
		WillReturnRows(rows)

	dms, err := s.ListDecisionMakers(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, dms, 2)
	require.NotNil(t, dms[0].Email)
	assert.Equal(t, email, *dms[0].Email)
	assert.Nil(t, dms[1].Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetSelectionApproval_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE candidate_company_selections SET approved_by_candidate`).
		WithArgs(true, int64(1), int64(9)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.SetSelectionApproval(context.Background(), 1, 9, true)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
