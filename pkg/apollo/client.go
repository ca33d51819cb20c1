// Package apollo is a client for the Apollo.io REST API covering the company
// and people operations the pipeline needs.
package apollo

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/righthand-talent/placement-cli/internal/resilience"
)

const (
	defaultBaseURL = "https://api.apollo.io/api/v1"

	// peopleSearchPageSize is the vendor maximum we request per page when
	// searching decision makers.
	peopleSearchPageSize = 40

	// defaultEnrichChunkSize is the vendor limit on ids per bulk enrichment
	// call.
	defaultEnrichChunkSize = 10

	// defaultEnrichConcurrency bounds the bulk-enrichment fan-out.
	defaultEnrichConcurrency = 4
)

// decisionMakerSeniorities are the seniority filters applied to every people
// search. Outreach targets people who can make a hiring call.
var decisionMakerSeniorities = []string{"owner", "founder", "c_suite"}

// fundingStageCodes maps funding stage names to the vendor's numeric codes.
var fundingStageCodes = map[string]string{
	"seed":             "0",
	"series_a":         "1",
	"series_b":         "2",
	"series_c":         "3",
	"series_d":         "4",
	"series_e":         "5",
	"series_f":         "6",
	"venture":          "7",
	"angel":            "8",
	"private_equity":   "9",
	"debt_financing":   "10",
	"convertible_note": "11",
	"other":            "12",
}

// Client defines the Apollo API operations used by the pipeline.
type Client interface {
	SearchOrganizations(ctx context.Context, req SearchOrganizationsRequest) ([]Organization, error)
	EnrichOrganization(ctx context.Context, domain string) (*Organization, error)
	SearchPeople(ctx context.Context, organizationIDs []string) ([]Person, error)
	EnrichPeople(ctx context.Context, personIDs []string) ([]Person, error)
}

// SearchOrganizationsRequest captures the company search filters. Empty
// fields are omitted from the query.
type SearchOrganizationsRequest struct {
	FundingStages  []string
	Locations      []string
	Keywords       []string
	EmployeeRanges []string
	Domains        []string
	Page           int
	PerPage        int
}

// Organization is a company record as returned by the vendor.
type Organization struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	PrimaryDomain      string `json:"primary_domain"`
	WebsiteURL         string `json:"website_url"`
	LinkedInURL        string `json:"linkedin_url"`
	LogoURL            string `json:"logo_url"`
	ShortDescription   string `json:"short_description"`
	Industry           string `json:"industry"`
	City               string `json:"city"`
	State              string `json:"state"`
	Country            string `json:"country"`
	FoundedYear        int    `json:"founded_year"`
	LatestFundingStage string `json:"latest_funding_stage"`
	TotalFunding       string `json:"total_funding_printed"`
	EmployeeCount      int    `json:"estimated_num_employees"`
}

// Person is a contact record as returned by the vendor. Email is only
// populated by enrichment, never by search.
type Person struct {
	ID             string  `json:"id"`
	FirstName      string  `json:"first_name"`
	LastName       string  `json:"last_name"`
	Title          string  `json:"title"`
	Seniority      string  `json:"seniority"`
	Headline       string  `json:"headline"`
	Email          *string `json:"email,omitempty"`
	LinkedInURL    string  `json:"linkedin_url"`
	PhotoURL       string  `json:"photo_url"`
	OrganizationID string  `json:"organization_id"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = u }
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithRateLimit overrides the default request rate limit.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *httpClient) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// WithRetryConfig overrides the default retry behavior.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) { c.retry = cfg }
}

// WithEnrichChunkSize overrides the ids-per-call chunk size for bulk people
// enrichment. Non-positive values are ignored.
func WithEnrichChunkSize(n int) Option {
	return func(c *httpClient) {
		if n > 0 {
			c.enrichChunkSize = n
		}
	}
}

// WithEnrichConcurrency overrides how many enrichment chunks are in flight
// at once. Non-positive values are ignored.
func WithEnrichConcurrency(n int) Option {
	return func(c *httpClient) {
		if n > 0 {
			c.enrichConcurrency = n
		}
	}
}

type httpClient struct {
	apiKey            string
	baseURL           string
	http              *http.Client
	limiter           *rate.Limiter
	retry             resilience.RetryConfig
	enrichChunkSize   int
	enrichConcurrency int
}

// NewClient creates an Apollo API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter:           rate.NewLimiter(rate.Limit(2), 4),
		retry:             resilience.DefaultRetryConfig(),
		enrichChunkSize:   defaultEnrichChunkSize,
		enrichConcurrency: defaultEnrichConcurrency,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) SearchOrganizations(ctx context.Context, req SearchOrganizationsRequest) ([]Organization, error) {
	if req.PerPage <= 0 {
		req.PerPage = 25
	}
	if req.Page <= 0 {
		req.Page = 1
	}

	body := map[string]any{
		"page":     req.Page,
		"per_page": req.PerPage,
	}
	if codes := toFundingCodes(req.FundingStages); len(codes) > 0 {
		body["organization_latest_funding_stage_cd"] = codes
	}
	if locs := filterRemote(req.Locations); len(locs) > 0 {
		body["organization_locations"] = locs
	}
	if len(req.Keywords) > 0 {
		body["q_organization_keyword_tags"] = req.Keywords
	}
	if len(req.EmployeeRanges) > 0 {
		body["organization_num_employees_ranges"] = req.EmployeeRanges
	}
	if len(req.Domains) > 0 {
		body["q_organization_domains_list"] = req.Domains
	}

	var resp struct {
		Organizations []Organization `json:"organizations"`
	}
	if err := c.post(ctx, "/mixed_companies/search", body, &resp); err != nil {
		return nil, eris.Wrap(err, "apollo: search organizations")
	}
	return resp.Organizations, nil
}

func (c *httpClient) EnrichOrganization(ctx context.Context, domain string) (*Organization, error) {
	var resp struct {
		Organization *Organization `json:"organization"`
	}
	path := "/organizations/enrich?domain=" + url.QueryEscape(domain)
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, eris.Wrapf(err, "apollo: enrich organization %s", domain)
	}
	return resp.Organization, nil
}

func (c *httpClient) SearchPeople(ctx context.Context, organizationIDs []string) ([]Person, error) {
	if len(organizationIDs) == 0 {
		return nil, nil
	}
	body := map[string]any{
		"organization_ids":   organizationIDs,
		"person_seniorities": decisionMakerSeniorities,
		"page":               1,
		"per_page":           peopleSearchPageSize,
	}
	var resp struct {
		People []Person `json:"people"`
	}
	if err := c.post(ctx, "/mixed_people/search", body, &resp); err != nil {
		return nil, eris.Wrap(err, "apollo: search people")
	}
	return resp.People, nil
}

func (c *httpClient) EnrichPeople(ctx context.Context, personIDs []string) ([]Person, error) {
	if len(personIDs) == 0 {
		return nil, nil
	}

	chunks := chunkStrings(personIDs, c.enrichChunkSize)
	results := make([][]Person, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.enrichConcurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			details := make([]map[string]string, len(chunk))
			for j, id := range chunk {
				details[j] = map[string]string{"id": id}
			}
			body := map[string]any{
				"details":                details,
				"reveal_personal_emails": false,
			}
			var resp struct {
				Matches []Person `json:"matches"`
			}
			if err := c.post(gctx, "/people/bulk_match", body, &resp); err != nil {
				return eris.Wrap(err, "apollo: enrich people")
			}
			results[i] = resp.Matches
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Person
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

func (c *httpClient) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return eris.Wrap(err, "marshal request")
	}
	return c.do(ctx, http.MethodPost, path, payload, out)
}

func (c *httpClient) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *httpClient) do(ctx context.Context, method, path string, payload []byte, out any) error {
	cfg := c.retry
	cfg.OnRetry = resilience.RetryLogger("apollo", method+" "+path)
	return resilience.Do(ctx, cfg, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "rate limit wait")
		}

		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
		if err != nil {
			return eris.Wrap(err, "create request")
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Api-Key", c.apiKey)

		resp, err := c.http.Do(req)
		if err != nil {
			return eris.Wrap(err, "send request")
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return eris.Wrap(err, "read response")
		}

		if resp.StatusCode != http.StatusOK {
			err := eris.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return resilience.NewTransientError(err, resp.StatusCode)
			}
			return err
		}

		return eris.Wrap(json.Unmarshal(respBody, out), "unmarshal response")
	})
}

// toFundingCodes translates stage names to vendor codes, skipping unknowns.
func toFundingCodes(stages []string) []string {
	var out []string
	for _, s := range stages {
		if code, ok := fundingStageCodes[strings.ToLower(strings.TrimSpace(s))]; ok {
			out = append(out, code)
		}
	}
	return out
}

// filterRemote drops remote pseudo-locations, which the vendor cannot filter
// on and which would otherwise empty the result set.
func filterRemote(locations []string) []string {
	var out []string
	for _, l := range locations {
		if strings.EqualFold(strings.TrimSpace(l), "remote") {
			continue
		}
		out = append(out, l)
	}
	return out
}

func chunkStrings(in []string, size int) [][]string {
	var out [][]string
	for len(in) > size {
		out = append(out, in[:size])
		in = in[size:]
	}
	if len(in) > 0 {
		out = append(out, in)
	}
	return out
}
