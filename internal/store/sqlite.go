package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/righthand-talent/placement-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It is the dev and
// test backend; production runs on Postgres.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given DSN and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS candidates (
	id                       INTEGER PRIMARY KEY AUTOINCREMENT,
	first_name               TEXT NOT NULL,
	last_name                TEXT NOT NULL,
	email                    TEXT NOT NULL UNIQUE,
	linkedin_url             TEXT NOT NULL DEFAULT '',
	role                     TEXT NOT NULL DEFAULT '',
	additional_info          TEXT NOT NULL DEFAULT '',
	processing_status        TEXT NOT NULL DEFAULT 'not_started',
	extracted_data           TEXT,
	company_preferences      TEXT,
	resume_source            TEXT NOT NULL DEFAULT 'local',
	resume_filename          TEXT NOT NULL DEFAULT '',
	call_transcript_source   TEXT NOT NULL DEFAULT 'local',
	call_transcript_filename TEXT NOT NULL DEFAULT '',
	created_at               DATETIME NOT NULL,
	updated_at               DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS companies (
	id                      INTEGER PRIMARY KEY AUTOINCREMENT,
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
	updated_at              DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS candidate_company_selections (
	id                    INTEGER PRIMARY KEY AUTOINCREMENT,
	candidate_id          INTEGER NOT NULL REFERENCES candidates(id) ON DELETE CASCADE,
	company_id            INTEGER NOT NULL REFERENCES companies(id),
	approved_by_candidate BOOLEAN,
	created_at            DATETIME NOT NULL,
	UNIQUE (candidate_id, company_id)
);

CREATE TABLE IF NOT EXISTS decision_makers (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	apollo_id    TEXT NOT NULL UNIQUE,
	company_id   INTEGER NOT NULL REFERENCES companies(id),
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
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	candidate_id        INTEGER NOT NULL UNIQUE REFERENCES candidates(id) ON DELETE CASCADE,
	lemlist_campaign_id TEXT NOT NULL,
	created_at          DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_candidates_status ON candidates(processing_status);
CREATE INDEX IF NOT EXISTS idx_selections_candidate ON candidate_company_selections(candidate_id);
CREATE INDEX IF NOT EXISTS idx_decision_makers_company ON decision_makers(company_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return eris.Wrap(s.db.Close(), "sqlite: close")
}

func (s *SQLiteStore) CreateCandidate(ctx context.Context, c *model.Candidate) (int64, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO candidates (first_name, last_name, email, linkedin_url, role, additional_info, processing_status, resume_source, resume_filename, call_transcript_source, call_transcript_filename, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.FirstName, c.LastName, c.Email, c.LinkedInURL, c.Role, c.AdditionalInfo,
		string(model.StatusNotStarted),
		string(c.ResumeSource), c.ResumeFilename,
		string(c.TranscriptSource), c.TranscriptFilename,
		now, now,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: insert candidate")
	}
	id, err := res.LastInsertId()
	return id, eris.Wrap(err, "sqlite: insert candidate id")
}

const candidateColumns = `id, first_name, last_name, email, linkedin_url, role, additional_info, processing_status, extracted_data, company_preferences, resume_source, resume_filename, call_transcript_source, call_transcript_filename, created_at, updated_at`

func (s *SQLiteStore) GetCandidate(ctx context.Context, id int64) (*model.Candidate, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+candidateColumns+` FROM candidates WHERE id = ?`, id)
	c, err := scanSQLiteCandidate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "candidate %d", id)
		}
		return nil, eris.Wrapf(err, "sqlite: get candidate %d", id)
	}
	return c, nil
}

func (s *SQLiteStore) ListCandidates(ctx context.Context) ([]model.Candidate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+candidateColumns+` FROM candidates ORDER BY created_at DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list candidates")
	}
	defer rows.Close()

	var out []model.Candidate
	for rows.Next() {
		c, err := scanSQLiteCandidate(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan candidate")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list candidates")
}

func (s *SQLiteStore) UpdateCandidateProfile(ctx context.Context, c *model.Candidate) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE candidates SET first_name = ?, last_name = ?, email = ?, linkedin_url = ?, role = ?, additional_info = ?, resume_source = ?, resume_filename = ?, call_transcript_source = ?, call_transcript_filename = ?, updated_at = ? WHERE id = ?`,
		c.FirstName, c.LastName, c.Email, c.LinkedInURL, c.Role, c.AdditionalInfo,
		string(c.ResumeSource), c.ResumeFilename,
		string(c.TranscriptSource), c.TranscriptFilename,
		time.Now().UTC(), c.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update candidate %d", c.ID)
	}
	return rowsAffectedOr(res, eris.Wrapf(ErrNotFound, "candidate %d", c.ID))
}

func (s *SQLiteStore) SetExtractedData(ctx context.Context, id int64, data json.RawMessage, prefs *model.CompanyPreferences) error {
	var dataVal, prefsVal any
	if len(data) > 0 {
		dataVal = string(data)
	}
	if prefs != nil {
		prefsJSON, err := json.Marshal(prefs)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal preferences")
		}
		prefsVal = string(prefsJSON)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE candidates SET extracted_data = COALESCE(?, extracted_data), company_preferences = COALESCE(?, company_preferences), updated_at = ? WHERE id = ?`,
		dataVal, prefsVal, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set extracted data %d", id)
	}
	return rowsAffectedOr(res, eris.Wrapf(ErrNotFound, "candidate %d", id))
}

func (s *SQLiteStore) DeleteCandidate(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM candidates WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete candidate %d", id)
	}
	return rowsAffectedOr(res, eris.Wrapf(ErrNotFound, "candidate %d", id))
}

func (s *SQLiteStore) TransitionStatus(ctx context.Context, id int64, from []model.Status, to model.Status) error {
	if err := validateEdges(from, to); err != nil {
		return err
	}
	placeholders := make([]string, len(from))
	args := []any{string(to), time.Now().UTC(), id}
	for i, f := range from {
		placeholders[i] = "?"
		args = append(args, string(f))
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE candidates SET processing_status = ?, updated_at = ? WHERE id = ? AND processing_status IN (`+strings.Join(placeholders, ", ")+`)`,
		args...,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: transition candidate %d to %s", id, to)
	}
	return rowsAffectedOr(res, eris.Wrapf(ErrStatusConflict, "candidate %d, wanted one of %v", id, from))
}

func (s *SQLiteStore) ResetStatus(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE candidates SET processing_status = ?, updated_at = ? WHERE id = ?`,
		string(model.StatusNotStarted), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: reset candidate %d", id)
	}
	return rowsAffectedOr(res, eris.Wrapf(ErrNotFound, "candidate %d", id))
}

func (s *SQLiteStore) UpsertCompany(ctx context.Context, c model.Company) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO companies (apollo_id, name, primary_domain, website_url, linkedin_url, logo_url, short_description, industry, city, state, country, founded_year, latest_funding_stage, total_funding_printed, estimated_num_employees, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (apollo_id) DO UPDATE SET
			name = excluded.name,
			primary_domain = excluded.primary_domain,
			website_url = excluded.website_url,
			linkedin_url = excluded.linkedin_url,
			logo_url = excluded.logo_url,
			short_description = excluded.short_description,
			industry = excluded.industry,
			city = excluded.city,
			state = excluded.state,
			country = excluded.country,
			founded_year = excluded.founded_year,
			latest_funding_stage = excluded.latest_funding_stage,
			total_funding_printed = excluded.total_funding_printed,
			estimated_num_employees = excluded.estimated_num_employees,
			updated_at = excluded.updated_at
		 RETURNING id`,
		c.ApolloID, c.Name, c.PrimaryDomain, c.WebsiteURL, c.LinkedInURL, c.LogoURL,
		c.ShortDescription, c.Industry, c.City, c.State, c.Country,
		c.FoundedYear, c.LatestFundingStage, c.TotalFunding, c.EmployeeCount,
		time.Now().UTC(),
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: upsert company %s", c.ApolloID)
	}
	return id, nil
}

func (s *SQLiteStore) GetCompany(ctx context.Context, id int64) (*model.Company, error) {
	var c model.Company
	err := s.db.QueryRowContext(ctx,
		`SELECT id, apollo_id, name, primary_domain, website_url, linkedin_url, logo_url, short_description, industry, city, state, country, founded_year, latest_funding_stage, total_funding_printed, estimated_num_employees, updated_at FROM companies WHERE id = ?`,
		id,
	).Scan(&c.ID, &c.ApolloID, &c.Name, &c.PrimaryDomain, &c.WebsiteURL, &c.LinkedInURL, &c.LogoURL,
		&c.ShortDescription, &c.Industry, &c.City, &c.State, &c.Country,
		&c.FoundedYear, &c.LatestFundingStage, &c.TotalFunding, &c.EmployeeCount, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "company %d", id)
		}
		return nil, eris.Wrapf(err, "sqlite: get company %d", id)
	}
	return &c, nil
}

func (s *SQLiteStore) EnsureSelection(ctx context.Context, candidateID, companyID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO candidate_company_selections (candidate_id, company_id, created_at) VALUES (?, ?, ?) ON CONFLICT (candidate_id, company_id) DO NOTHING`,
		candidateID, companyID, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: ensure selection (%d, %d)", candidateID, companyID)
}

func (s *SQLiteStore) SetSelectionApproval(ctx context.Context, candidateID, companyID int64, approved bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE candidate_company_selections SET approved_by_candidate = ? WHERE candidate_id = ? AND company_id = ?`,
		approved, candidateID, companyID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set approval (%d, %d)", candidateID, companyID)
	}
	return rowsAffectedOr(res, eris.Wrapf(ErrNotFound, "selection (%d, %d)", candidateID, companyID))
}

func (s *SQLiteStore) ListApprovedCompanies(ctx context.Context, candidateID int64) ([]model.Company, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.apollo_id, c.name, c.primary_domain, c.website_url, c.linkedin_url, c.logo_url, c.short_description, c.industry, c.city, c.state, c.country, c.founded_year, c.latest_funding_stage, c.total_funding_printed, c.estimated_num_employees, c.updated_at
		 FROM companies c
		 JOIN candidate_company_selections s ON s.company_id = c.id
		 WHERE s.candidate_id = ? AND s.approved_by_candidate = 1
		 ORDER BY c.id`,
		candidateID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list approved companies for %d", candidateID)
	}
	defer rows.Close()

	var out []model.Company
	for rows.Next() {
		var c model.Company
		if err := rows.Scan(&c.ID, &c.ApolloID, &c.Name, &c.PrimaryDomain, &c.WebsiteURL, &c.LinkedInURL, &c.LogoURL,
			&c.ShortDescription, &c.Industry, &c.City, &c.State, &c.Country,
			&c.FoundedYear, &c.LatestFundingStage, &c.TotalFunding, &c.EmployeeCount, &c.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan company")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list approved companies")
}

func (s *SQLiteStore) ListSelections(ctx context.Context, candidateID int64) ([]model.Selection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, candidate_id, company_id, approved_by_candidate, created_at FROM candidate_company_selections WHERE candidate_id = ? ORDER BY id`,
		candidateID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list selections for %d", candidateID)
	}
	defer rows.Close()

	var out []model.Selection
	for rows.Next() {
		var sel model.Selection
		if err := rows.Scan(&sel.ID, &sel.CandidateID, &sel.CompanyID, &sel.Approved, &sel.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan selection")
		}
		out = append(out, sel)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list selections")
}

func (s *SQLiteStore) UpsertDecisionMaker(ctx context.Context, dm model.DecisionMaker) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO decision_makers (apollo_id, company_id, first_name, last_name, title, seniority, headline, email, linkedin_url, photo_url)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (apollo_id) DO UPDATE SET
			company_id = excluded.company_id,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			title = excluded.title,
			seniority = excluded.seniority,
			headline = excluded.headline,
			email = excluded.email,
			linkedin_url = excluded.linkedin_url,
			photo_url = excluded.photo_url
		 RETURNING id`,
		dm.ApolloID, dm.CompanyID, dm.FirstName, dm.LastName, dm.Title,
		dm.Seniority, dm.Headline, dm.Email, dm.LinkedInURL, dm.PhotoURL,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: upsert decision maker %s", dm.ApolloID)
	}
	return id, nil
}

func (s *SQLiteStore) ListDecisionMakers(ctx context.Context, companyID int64) ([]model.DecisionMaker, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, apollo_id, company_id, first_name, last_name, title, seniority, headline, email, linkedin_url, photo_url FROM decision_makers WHERE company_id = ? ORDER BY id`,
		companyID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list decision makers for company %d", companyID)
	}
	defer rows.Close()

	var out []model.DecisionMaker
	for rows.Next() {
		var dm model.DecisionMaker
		if err := rows.Scan(&dm.ID, &dm.ApolloID, &dm.CompanyID, &dm.FirstName, &dm.LastName,
			&dm.Title, &dm.Seniority, &dm.Headline, &dm.Email, &dm.LinkedInURL, &dm.PhotoURL); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan decision maker")
		}
		out = append(out, dm)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list decision makers")
}

func (s *SQLiteStore) CreateCampaignLink(ctx context.Context, candidateID int64, campaignID string) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO campaign_links (candidate_id, lemlist_campaign_id, created_at) VALUES (?, ?, ?) ON CONFLICT (candidate_id) DO NOTHING`,
		candidateID, campaignID, time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: create campaign link for %d", candidateID)
	}
	return rowsAffectedOr(res, eris.Wrapf(ErrCampaignExists, "candidate %d", candidateID))
}

func (s *SQLiteStore) GetCampaignLink(ctx context.Context, candidateID int64) (*model.CampaignLink, error) {
	var link model.CampaignLink
	err := s.db.QueryRowContext(ctx,
		`SELECT id, candidate_id, lemlist_campaign_id, created_at FROM campaign_links WHERE candidate_id = ?`,
		candidateID,
	).Scan(&link.ID, &link.CandidateID, &link.CampaignID, &link.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get campaign link for %d", candidateID)
	}
	return &link, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSQLiteCandidate(row scanner) (*model.Candidate, error) {
	var c model.Candidate
	var extracted, prefsJSON sql.NullString
	err := row.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.LinkedInURL, &c.Role,
		&c.AdditionalInfo, &c.ProcessingStatus, &extracted, &prefsJSON,
		&c.ResumeSource, &c.ResumeFilename, &c.TranscriptSource, &c.TranscriptFilename,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if extracted.Valid && extracted.String != "" {
		c.ExtractedData = json.RawMessage(extracted.String)
	}
	if prefsJSON.Valid && prefsJSON.String != "" {
		var prefs model.CompanyPreferences
		if err := json.Unmarshal([]byte(prefsJSON.String), &prefs); err != nil {
			return nil, eris.Wrap(err, "unmarshal company preferences")
		}
		c.CompanyPreferences = &prefs
	}
	return &c, nil
}

func rowsAffectedOr(res sql.Result, conflict error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return conflict
	}
	return nil
}
