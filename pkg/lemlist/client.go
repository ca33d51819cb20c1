// Package lemlist is a client for the lemlist outreach API covering campaign
// creation, sequence steps, and lead insertion.
package lemlist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/righthand-talent/placement-cli/internal/resilience"
)

const defaultBaseURL = "https://api.lemlist.com/api"

// Client defines the lemlist operations used by the pipeline.
type Client interface {
	CreateCampaign(ctx context.Context, name string) (*Campaign, error)
	GetCampaign(ctx context.Context, campaignID string) (*Campaign, error)
	PauseCampaign(ctx context.Context, campaignID string) error
	CreateSequenceStep(ctx context.Context, campaignID string, step SequenceStep) error
	CreateLeadInCampaign(ctx context.Context, campaignID string, lead Lead) (*Lead, error)
}

// Campaign is an outreach campaign.
type Campaign struct {
	ID     string `json:"_id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// SequenceStep is a single email in a campaign sequence.
type SequenceStep struct {
	Subject   string `json:"subject"`
	Message   string `json:"message"`
	DelayDays int    `json:"delay"`
}

// Lead is a recipient added to a campaign. Variables carries campaign
// template substitutions and is flattened into the request body.
type Lead struct {
	Email       string            `json:"email"`
	FirstName   string            `json:"firstName"`
	LastName    string            `json:"lastName"`
	CompanyName string            `json:"companyName"`
	Variables   map[string]string `json:"-"`
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

// WithRetryConfig overrides the default retry behavior.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) { c.retry = cfg }
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	retry   resilience.RetryConfig
}

// NewClient creates a lemlist API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		retry: resilience.DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) CreateCampaign(ctx context.Context, name string) (*Campaign, error) {
	var campaign Campaign
	err := c.do(ctx, http.MethodPost, "/campaigns", map[string]any{"name": name}, &campaign)
	if err != nil {
		return nil, eris.Wrapf(err, "lemlist: create campaign %q", name)
	}
	return &campaign, nil
}

func (c *httpClient) GetCampaign(ctx context.Context, campaignID string) (*Campaign, error) {
	var campaign Campaign
	err := c.do(ctx, http.MethodGet, "/campaigns/"+url.PathEscape(campaignID), nil, &campaign)
	if err != nil {
		return nil, eris.Wrapf(err, "lemlist: get campaign %s", campaignID)
	}
	return &campaign, nil
}

func (c *httpClient) PauseCampaign(ctx context.Context, campaignID string) error {
	err := c.do(ctx, http.MethodPost, "/campaigns/"+url.PathEscape(campaignID)+"/pause", nil, nil)
	return eris.Wrapf(err, "lemlist: pause campaign %s", campaignID)
}

func (c *httpClient) CreateSequenceStep(ctx context.Context, campaignID string, step SequenceStep) error {
	err := c.do(ctx, http.MethodPost, "/campaigns/"+url.PathEscape(campaignID)+"/sequences", step, nil)
	return eris.Wrapf(err, "lemlist: create sequence step for %s", campaignID)
}

// APIError is a non-2xx response from the vendor.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// CreateLeadInCampaign adds a lead to a campaign. A lead already enrolled in
// another campaign is skipped and reported as (nil, nil); the pipeline treats
// that as a non-fatal gap rather than a failure.
func (c *httpClient) CreateLeadInCampaign(ctx context.Context, campaignID string, lead Lead) (*Lead, error) {
	body := map[string]any{
		"email":       lead.Email,
		"firstName":   lead.FirstName,
		"lastName":    lead.LastName,
		"companyName": lead.CompanyName,
	}
	for k, v := range lead.Variables {
		body[k] = v
	}

	var created Lead
	err := c.do(ctx, http.MethodPost,
		"/campaigns/"+url.PathEscape(campaignID)+"/leads/"+url.PathEscape(lead.Email),
		body, &created)
	if err != nil {
		if isAlreadyEnrolled(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "lemlist: create lead %s in campaign %s", lead.Email, campaignID)
	}
	return &created, nil
}

// isAlreadyEnrolled reports whether the lead create was rejected because the
// address is already enrolled in a campaign. Keyed to the conflict status so
// an unrelated vendor message containing the phrase cannot mask a real
// failure as a skip.
func isAlreadyEnrolled(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusConflict &&
		strings.Contains(strings.ToLower(apiErr.Body), "already in")
}

func (c *httpClient) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return eris.Wrap(err, "marshal request")
		}
	}

	cfg := c.retry
	cfg.OnRetry = resilience.RetryLogger("lemlist", method+" "+path)
	return resilience.Do(ctx, cfg, func(ctx context.Context) error {
		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
		if err != nil {
			return eris.Wrap(err, "create request")
		}
		req.Header.Set("Content-Type", "application/json")
		req.SetBasicAuth("", c.apiKey)

		resp, err := c.http.Do(req)
		if err != nil {
			return eris.Wrap(err, "send request")
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return eris.Wrap(err, "read response")
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return resilience.NewTransientError(apiErr, resp.StatusCode)
			}
			return apiErr
		}

		if out == nil || len(respBody) == 0 {
			return nil
		}
		return eris.Wrap(json.Unmarshal(respBody, out), "unmarshal response")
	})
}
