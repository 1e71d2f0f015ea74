// Package registry provides a client for an authoritative business
// registry (Companies House style REST API) and fuzzy matching of noisy
// business listings against it.
//
// The registry enforces a hard call quota, so every request waits on a
// shared token-bucket limiter; exceeding the quota blocks instead of
// failing. An HTTP 429 triggers a single fixed-cooldown retry. Any other
// non-2xx response is logged and treated as "no result" — registry
// lookups are an enhancement, never a precondition.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/listings-cli/internal/resilience"
)

const (
	// DefaultBaseURL is the Companies House public API.
	DefaultBaseURL = "https://api.company-information.service.gov.uk"

	// DefaultQuotaCalls / DefaultQuotaPeriod mirror the published API
	// limit of 600 calls per 5-minute window.
	DefaultQuotaCalls  = 600
	DefaultQuotaPeriod = 5 * time.Minute

	// DefaultCooldown is how long to wait after an HTTP 429 before the
	// single retry.
	DefaultCooldown = 60 * time.Second
)

// Candidate is one company returned by the registry search endpoint.
type Candidate struct {
	Title          string   `json:"title"`
	CompanyNumber  string   `json:"company_number"`
	CompanyStatus  string   `json:"company_status"`
	AddressSnippet string   `json:"address_snippet"`
	SICCodes       []string `json:"sic_codes,omitempty"`
}

// CompanyProfile is the full registry record for one company.
type CompanyProfile struct {
	CompanyName    string   `json:"company_name"`
	CompanyNumber  string   `json:"company_number"`
	CompanyStatus  string   `json:"company_status"`
	DateOfCreation string   `json:"date_of_creation"`
	CompanyType    string   `json:"type"`
	SICCodes       []string `json:"sic_codes"`
}

// Officer is one company officer from the registry.
type Officer struct {
	Name        string `json:"name"`
	Role        string `json:"officer_role"`
	AppointedOn string `json:"appointed_on,omitempty"`
}

// Client is the registry search and retrieval surface the matcher needs.
type Client interface {
	// SearchCompanies queries the company-search endpoint. An empty
	// result is not an error.
	SearchCompanies(ctx context.Context, query string, itemsPerPage int) ([]Candidate, error)

	// GetCompanyProfile fetches the full record for a company number.
	// Returns nil (not an error) when the registry has no usable answer.
	GetCompanyProfile(ctx context.Context, companyNumber string) (*CompanyProfile, error)

	// GetOfficers lists the officers registered for a company.
	GetOfficers(ctx context.Context, companyNumber string) ([]Officer, error)
}

// Option configures the HTTP client.
type Option func(*httpClient)

// WithBaseURL overrides the registry endpoint, mainly for tests.
func WithBaseURL(baseURL string) Option {
	return func(c *httpClient) { c.baseURL = baseURL }
}

// WithHTTPClient sets a custom underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithQuota sets the call quota enforced client-side. Calls beyond the
// quota block until the token bucket refills. Burst equals the full
// quota, mirroring the registry's fixed-window accounting: a rolling
// window spanning two fixed windows can see up to 2x calls, the same
// worst case the registry itself permits.
func WithQuota(calls int, period time.Duration) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(float64(calls)/period.Seconds()), calls)
	}
}

// WithCooldown sets the sleep before the single retry after an HTTP 429.
func WithCooldown(d time.Duration) Option {
	return func(c *httpClient) { c.cooldown = d }
}

type httpClient struct {
	baseURL  string
	apiKey   string
	http     *http.Client
	limiter  *rate.Limiter
	cooldown time.Duration
}

// NewClient creates a registry client authenticated with apiKey.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		baseURL:  DefaultBaseURL,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 30 * time.Second},
		limiter:  rate.NewLimiter(rate.Limit(float64(DefaultQuotaCalls)/DefaultQuotaPeriod.Seconds()), DefaultQuotaCalls),
		cooldown: DefaultCooldown,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) SearchCompanies(ctx context.Context, query string, itemsPerPage int) ([]Candidate, error) {
	params := url.Values{
		"q":              {query},
		"items_per_page": {fmt.Sprintf("%d", itemsPerPage)},
	}

	body, err := c.get(ctx, "/search/companies?"+params.Encode())
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, nil
	}

	var resp struct {
		Items []struct {
			Title          string `json:"title"`
			CompanyNumber  string `json:"company_number"`
			CompanyStatus  string `json:"company_status"`
			AddressSnippet string `json:"address_snippet"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(err, "registry: parse search response")
	}

	candidates := make([]Candidate, 0, len(resp.Items))
	for _, item := range resp.Items {
		candidates = append(candidates, Candidate{
			Title:          item.Title,
			CompanyNumber:  item.CompanyNumber,
			CompanyStatus:  item.CompanyStatus,
			AddressSnippet: item.AddressSnippet,
		})
	}
	return candidates, nil
}

func (c *httpClient) GetCompanyProfile(ctx context.Context, companyNumber string) (*CompanyProfile, error) {
	body, err := c.get(ctx, "/company/"+url.PathEscape(companyNumber))
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, nil
	}

	var profile CompanyProfile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, eris.Wrap(err, "registry: parse company profile")
	}
	return &profile, nil
}

func (c *httpClient) GetOfficers(ctx context.Context, companyNumber string) ([]Officer, error) {
	body, err := c.get(ctx, "/company/"+url.PathEscape(companyNumber)+"/officers")
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, nil
	}

	var resp struct {
		Items []Officer `json:"items"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(err, "registry: parse officers response")
	}
	return resp.Items, nil
}

// get performs a quota-limited GET. A 429 is retried exactly once after
// the cooldown. Other non-2xx statuses are logged and reported as a nil
// body with a nil error. Only transport failures surface as errors.
func (c *httpClient) get(ctx context.Context, path string) ([]byte, error) {
	body, err := resilience.DoVal(ctx, resilience.RetryConfig{
		MaxAttempts: 2,
		Delay:       c.cooldown,
		ShouldRetry: resilience.IsRateLimited,
		OnRetry:     resilience.RetryLogger("registry", path),
	}, func(ctx context.Context) ([]byte, error) {
		return c.getOnce(ctx, path)
	})

	if err != nil {
		if resilience.IsRateLimited(err) {
			// Retried once already; give up on this call, not the batch.
			zap.L().Warn("registry: still rate limited after cooldown", zap.String("path", path))
			return nil, nil
		}
		return nil, err
	}
	return body, nil
}

func (c *httpClient) getOnce(ctx context.Context, path string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "registry: quota wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, eris.Wrap(err, "registry: build request")
	}
	req.SetBasicAuth(c.apiKey, "")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "registry: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, eris.Wrap(readErr, "registry: read body")
		}
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &resilience.StatusError{Service: "registry", StatusCode: resp.StatusCode}
	default:
		zap.L().Error("registry: request failed",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return nil, nil
	}
}
