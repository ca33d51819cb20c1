package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/righthand-talent/placement-cli/internal/db"
	"github.com/righthand-talent/placement-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// preparedStatements lists queries to prepare on each new connection for
// the hottest store operations.
var preparedStatements = map[string]string{
	"get_candidate":       `SELECT id, first_name, last_name, email, linkedin_url, role, additional_info, processing_status, extracted_data, company_preferences, resume_source, resume_filename, call_transcript_source, call_transcript_filename, created_at, updated_at FROM candidates WHERE id = $1`,
	"transition_status":   `UPDATE candidates SET processing_status = $1, updated_at = $2 WHERE id = $3 AND processing_status = ANY($4)`,
	"upsert_company":      upsertCompanySQL,
	"ensure_selection":    `INSERT INTO candidate_company_selections (candidate_id, company_id) VALUES ($1, $2) ON CONFLICT (candidate_id, company_id) DO NOTHING`,
	"upsert_dm":           upsertDecisionMakerSQL,
	"create_campaign_link": `INSERT INTO campaign_links (candidate_id, lemlist_campaign_id, created_at) VALUES ($1, $2, $3) ON CONFLICT (candidate_id) DO NOTHING`,
}

const upsertCompanySQL = `INSERT INTO companies (apollo_id, name, primary_domain, website_url, linkedin_url, logo_url, short_description, industry, city, state, country, founded_year, latest_funding_stage, total_funding_printed, estimated_num_employees, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
ON CONFLICT (apollo_id) DO UPDATE SET
	name = EXCLUDED.name,
	primary_domain = EXCLUDED.primary_domain,
	website_url = EXCLUDED.website_url,
	linkedin_url = EXCLUDED.linkedin_url,
	logo_url = EXCLUDED.logo_url,
	short_description = EXCLUDED.short_description,
	industry = EXCLUDED.industry,
	city = EXCLUDED.city,
	state = EXCLUDED.state,
	country = EXCLUDED.country,
	founded_year = EXCLUDED.founded_year,
	latest_funding_stage = EXCLUDED.latest_funding_stage,
	total_funding_printed = EXCLUDED.total_funding_printed,
	estimated_num_employees = EXCLUDED.estimated_num_employees,
	updated_at = EXCLUDED.updated_at
RETURNING id`

const upsertDecisionMakerSQL = `INSERT INTO decision_makers (apollo_id, company_id, first_name, last_name, title, seniority, headline, email, linkedin_url, photo_url)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (apollo_id) DO UPDATE SET
	company_id = EXCLUDED.company_id,
	first_name = EXCLUDED.first_name,
	last_name = EXCLUDED.last_name,
	title = EXCLUDED.title,
	seniority = EXCLUDED.seniority,
	headline = EXCLUDED.headline,
	email = EXCLUDED.email,
	linkedin_url = EXCLUDED.linkedin_url,
	photo_url = EXCLUDED.photo_url
RETURNING id`

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, maxConns, minConns int32) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	if maxConns <= 0 {
		maxConns = 10
	}
	if minConns <= 0 {
		minConns = 2
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS candidates (
	id                       BIGSERIAL PRIMARY KEY,
	first_name               TEXT NOT NULL,
	last_name                TEXT NOT NULL,
	email                    TEXT NOT NULL UNIQUE,
	linkedin_url             TEXT NOT NULL DEFAULT '',
	role                     TEXT NOT NULL DEFAULT '',
	additional_info          TEXT NOT NULL DEFAULT '',
	processing_status        TEXT NOT NULL DEFAULT 'not_started',
	extracted_data           JSONB,
	company_preferences      JSONB,
	resume_source            TEXT NOT NULL DEFAULT 'local',
	resume_filename          TEXT NOT NULL DEFAULT '',
	call_transcript_source   TEXT NOT NULL DEFAULT 'local',
	call_transcript_filename TEXT NOT NULL DEFAULT '',
	created_at               TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at               TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS companies (
	id                      BIGSERIAL PRIMARY KEY,
	apollo_id               TEXT NOT NULL UNIQUE,
	name                    TEXT NOT NULL DEFAULT '',
	primary_domain          TEXT NOT NULL DEFAULT '',
	website_url             TEXT NOT NULL DEFAULT '',
	linkedin_url            TEXT NOT NULL DEFAULT '',
	logo_url                TEXT NOT NULL DEFAULT '',
	short_description       TEXT NOT NULL DEFAULT '',
	industry                TEXT NOT NULL DEFAULT '',
	city                    TEXT NOT NULL DEFAULT '',
	state                   TEXT NOT NULL DEFAULT '',
	country                 TEXT NOT NULL DEFAULT '',
	founded_year            INTEGER NOT NULL DEFAULT 0,
	latest_funding_stage    TEXT NOT NULL DEFAULT '',
	total_funding_printed   TEXT NOT NULL DEFAULT '',
	estimated_num_employees INTEGER NOT NULL DEFAULT 0,
	updated_at              TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS candidate_company_selections (
	id                    BIGSERIAL PRIMARY KEY,
	candidate_id          BIGINT NOT NULL REFERENCES candidates(id) ON DELETE CASCADE,
	company_id            BIGINT NOT NULL REFERENCES companies(id),
	approved_by_candidate BOOLEAN,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (candidate_id, company_id)
);

CREATE TABLE IF NOT EXISTS decision_makers (
	id           BIGSERIAL PRIMARY KEY,
	apollo_id    TEXT NOT NULL UNIQUE,
	company_id   BIGINT NOT NULL REFERENCES companies(id),
	first_name   TEXT NOT NULL DEFAULT '',
	last_name    TEXT NOT NULL DEFAULT '',
	title        TEXT NOT NULL DEFAULT '',
	seniority    TEXT NOT NULL DEFAULT '',
	headline     TEXT NOT NULL DEFAULT '',
	email        TEXT,
	linkedin_url TEXT NOT NULL DEFAULT '',
	photo_url    TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS campaign_links (
	id                  BIGSERIAL PRIMARY KEY,
	candidate_id        BIGINT NOT NULL UNIQUE REFERENCES candidates(id) ON DELETE CASCADE,
	lemlist_campaign_id TEXT NOT NULL,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_candidates_status ON candidates(processing_status);
CREATE INDEX IF NOT EXISTS idx_selections_candidate ON candidate_company_selections(candidate_id);
CREATE INDEX IF NOT EXISTS idx_decision_makers_company ON decision_makers(company_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateCandidate(ctx context.Context, c *model.Candidate) (int64, error) {
	now := time.Now().UTC()
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO candidates (first_name, last_name, email, linkedin_url, role, additional_info, processing_status, resume_source, resume_filename, call_transcript_source, call_transcript_filename, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13) RETURNING id`,
		c.FirstName, c.LastName, c.Email, c.LinkedInURL, c.Role, c.AdditionalInfo,
		string(model.StatusNotStarted),
		string(c.ResumeSource), c.ResumeFilename,
		string(c.TranscriptSource), c.TranscriptFilename,
		now, now,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert candidate")
	}
	return id, nil
}

func (s *PostgresStore) GetCandidate(ctx context.Context, id int64) (*model.Candidate, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, first_name, last_name, email, linkedin_url, role, additional_info, processing_status, extracted_data, company_preferences, resume_source, resume_filename, call_transcript_source, call_transcript_filename, created_at, updated_at FROM candidates WHERE id = $1`,
		id,
	)
	c, err := scanCandidate(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "candidate %d", id)
		}
		return nil, eris.Wrapf(err, "postgres: get candidate %d", id)
	}
	return c, nil
}

func (s *PostgresStore) ListCandidates(ctx context.Context) ([]model.Candidate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, first_name, last_name, email, linkedin_url, role, additional_info, processing_status, extracted_data, company_preferences, resume_source, resume_filename, call_transcript_source, call_transcript_filename, created_at, updated_at FROM candidates ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list candidates")
	}
	defer rows.Close()

	var out []model.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan candidate")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list candidates")
}

func (s *PostgresStore) UpdateCandidateProfile(ctx context.Context, c *model.Candidate) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE candidates SET first_name = $1, last_name = $2, email = $3, linkedin_url = $4, role = $5, additional_info = $6, resume_source = $7, resume_filename = $8, call_transcript_source = $9, call_transcript_filename = $10, updated_at = $11 WHERE id = $12`,
		c.FirstName, c.LastName, c.Email, c.LinkedInURL, c.Role, c.AdditionalInfo,
		string(c.ResumeSource), c.ResumeFilename,
		string(c.TranscriptSource), c.TranscriptFilename,
		time.Now().UTC(), c.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update candidate %d", c.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "candidate %d", c.ID)
	}
	return nil
}

func (s *PostgresStore) SetExtractedData(ctx context.Context, id int64, data json.RawMessage, prefs *model.CompanyPreferences) error {
	var prefsJSON []byte
	if prefs != nil {
		var err error
		prefsJSON, err = json.Marshal(prefs)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal preferences")
		}
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE candidates SET extracted_data = COALESCE($1, extracted_data), company_preferences = COALESCE($2, company_preferences), updated_at = $3 WHERE id = $4`,
		[]byte(data), prefsJSON, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set extracted data %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "candidate %d", id)
	}
	return nil
}

func (s *PostgresStore) DeleteCandidate(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM candidates WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete candidate %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "candidate %d", id)
	}
	return nil
}

func (s *PostgresStore) TransitionStatus(ctx context.Context, id int64, from []model.Status, to model.Status) error {
	if err := validateEdges(from, to); err != nil {
		return err
	}
	fromStrs := make([]string, len(from))
	for i, f := range from {
		fromStrs[i] = string(f)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE candidates SET processing_status = $1, updated_at = $2 WHERE id = $3 AND processing_status = ANY($4)`,
		string(to), time.Now().UTC(), id, fromStrs,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: transition candidate %d to %s", id, to)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrStatusConflict, "candidate %d, wanted one of %v", id, from)
	}
	return nil
}

func (s *PostgresStore) ResetStatus(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE candidates SET processing_status = $1, updated_at = $2 WHERE id = $3`,
		string(model.StatusNotStarted), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: reset candidate %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "candidate %d", id)
	}
	return nil
}

func (s *PostgresStore) UpsertCompany(ctx context.Context, c model.Company) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, upsertCompanySQL,
		c.ApolloID, c.Name, c.PrimaryDomain, c.WebsiteURL, c.LinkedInURL, c.LogoURL,
		c.ShortDescription, c.Industry, c.City, c.State, c.Country,
		c.FoundedYear, c.LatestFundingStage, c.TotalFunding, c.EmployeeCount,
		time.Now().UTC(),
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: upsert company %s", c.ApolloID)
	}
	return id, nil
}

func (s *PostgresStore) GetCompany(ctx context.Context, id int64) (*model.Company, error) {
	var c model.Company
	err := s.pool.QueryRow(ctx,
		`SELECT id, apollo_id, name, primary_domain, website_url, linkedin_url, logo_url, short_description, industry, city, state, country, founded_year, latest_funding_stage, total_funding_printed, estimated_num_employees, updated_at FROM companies WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.ApolloID, &c.Name, &c.PrimaryDomain, &c.WebsiteURL, &c.LinkedInURL, &c.LogoURL,
		&c.ShortDescription, &c.Industry, &c.City, &c.State, &c.Country,
		&c.FoundedYear, &c.LatestFundingStage, &c.TotalFunding, &c.EmployeeCount, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "company %d", id)
		}
		return nil, eris.Wrapf(err, "postgres: get company %d", id)
	}
	return &c, nil
}

func (s *PostgresStore) EnsureSelection(ctx context.Context, candidateID, companyID int64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO candidate_company_selections (candidate_id, company_id) VALUES ($1, $2) ON CONFLICT (candidate_id, company_id) DO NOTHING`,
		candidateID, companyID,
	)
	return eris.Wrapf(err, "postgres: ensure selection (%d, %d)", candidateID, companyID)
}

func (s *PostgresStore) SetSelectionApproval(ctx context.Context, candidateID, companyID int64, approved bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE candidate_company_selections SET approved_by_candidate = $1 WHERE candidate_id = $2 AND company_id = $3`,
		approved, candidateID, companyID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set approval (%d, %d)", candidateID, companyID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "selection (%d, %d)", candidateID, companyID)
	}
	return nil
}

func (s *PostgresStore) ListApprovedCompanies(ctx context.Context, candidateID int64) ([]model.Company, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT c.id, c.apollo_id, c.name, c.primary_domain, c.website_url, c.linkedin_url, c.logo_url, c.short_description, c.industry, c.city, c.state, c.country, c.founded_year, c.latest_funding_stage, c.total_funding_printed, c.estimated_num_employees, c.updated_at
		 FROM companies c
		 JOIN candidate_company_selections s ON s.company_id = c.id
		 WHERE s.candidate_id = $1 AND s.approved_by_candidate = TRUE
		 ORDER BY c.id`,
		candidateID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list approved companies for %d", candidateID)
	}
	defer rows.Close()

	var out []model.Company
	for rows.Next() {
		var c model.Company
		if err := rows.Scan(&c.ID, &c.ApolloID, &c.Name, &c.PrimaryDomain, &c.WebsiteURL, &c.LinkedInURL, &c.LogoURL,
			&c.ShortDescription, &c.Industry, &c.City, &c.State, &c.Country,
			&c.FoundedYear, &c.LatestFundingStage, &c.TotalFunding, &c.EmployeeCount, &c.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan company")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list approved companies")
}

func (s *PostgresStore) ListSelections(ctx context.Context, candidateID int64) ([]model.Selection, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, candidate_id, company_id, approved_by_candidate, created_at FROM candidate_company_selections WHERE candidate_id = $1 ORDER BY id`,
		candidateID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list selections for %d", candidateID)
	}
	defer rows.Close()

	var out []model.Selection
	for rows.Next() {
		var sel model.Selection
		if err := rows.Scan(&sel.ID, &sel.CandidateID, &sel.CompanyID, &sel.Approved, &sel.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan selection")
		}
		out = append(out, sel)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list selections")
}

func (s *PostgresStore) UpsertDecisionMaker(ctx context.Context, dm model.DecisionMaker) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, upsertDecisionMakerSQL,
		dm.ApolloID, dm.CompanyID, dm.FirstName, dm.LastName, dm.Title,
		dm.Seniority, dm.Headline, dm.Email, dm.LinkedInURL, dm.PhotoURL,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: upsert decision maker %s", dm.ApolloID)
	}
	return id, nil
}

func (s *PostgresStore) ListDecisionMakers(ctx context.Context, companyID int64) ([]model.DecisionMaker, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, apollo_id, company_id, first_name, last_name, title, seniority, headline, email, linkedin_url, photo_url FROM decision_makers WHERE company_id = $1 ORDER BY id`,
		companyID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list decision makers for company %d", companyID)
	}
	defer rows.Close()

	var out []model.DecisionMaker
	for rows.Next() {
		var dm model.DecisionMaker
		if err := rows.Scan(&dm.ID, &dm.ApolloID, &dm.CompanyID, &dm.FirstName, &dm.LastName,
			&dm.Title, &dm.Seniority, &dm.Headline, &dm.Email, &dm.LinkedInURL, &dm.PhotoURL); err != nil {
			return nil, eris.Wrap(err, "postgres: scan decision maker")
		}
		out = append(out, dm)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list decision makers")
}

func (s *PostgresStore) CreateCampaignLink(ctx context.Context, candidateID int64, campaignID string) error {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO campaign_links (candidate_id, lemlist_campaign_id, created_at) VALUES ($1, $2, $3) ON CONFLICT (candidate_id) DO NOTHING`,
		candidateID, campaignID, time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: create campaign link for %d", candidateID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrCampaignExists, "candidate %d", candidateID)
	}
	return nil
}

func (s *PostgresStore) GetCampaignLink(ctx context.Context, candidateID int64) (*model.CampaignLink, error) {
	var link model.CampaignLink
	err := s.pool.QueryRow(ctx,
		`SELECT id, candidate_id, lemlist_campaign_id, created_at FROM campaign_links WHERE candidate_id = $1`,
		candidateID,
	).Scan(&link.ID, &link.CandidateID, &link.CampaignID, &link.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get campaign link for %d", candidateID)
	}
	return &link, nil
}

// scanCandidate reads a candidate row from either QueryRow or Query results.
func scanCandidate(row pgx.Row) (*model.Candidate, error) {
	var c model.Candidate
	var extracted, prefsJSON []byte
	err := row.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.LinkedInURL, &c.Role,
		&c.AdditionalInfo, &c.ProcessingStatus, &extracted, &prefsJSON,
		&c.ResumeSource, &c.ResumeFilename, &c.TranscriptSource, &c.TranscriptFilename,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(extracted) > 0 {
		c.ExtractedData = json.RawMessage(extracted)
	}
	if len(prefsJSON) > 0 {
		var prefs model.CompanyPreferences
		if err := json.Unmarshal(prefsJSON, &prefs); err != nil {
			return nil, eris.Wrap(err, "unmarshal company preferences")
		}
		c.CompanyPreferences = &prefs
	}
	return &c, nil
}
