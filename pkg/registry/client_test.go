package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient("test-key",
		WithBaseURL(srv.URL),
		WithCooldown(10*time.Millisecond),
	)
	return c, srv
}

func TestSearchCompanies(t *testing.T) {
	var gotPath, gotQuery, gotUser string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("q")
		gotUser, _, _ = r.BasicAuth()
		w.Write([]byte(`{"items": [
			{"title": "CORNER CAFE LTD", "company_number": "01234567", "company_status": "active", "address_snippet": "12 High Street, Leeds, LS1 4DY"},
			{"title": "OTHER CAFE LIMITED", "company_number": "07654321", "company_status": "dissolved", "address_snippet": "1 Low Road"}
		]}`))
	})

	candidates, err := c.SearchCompanies(context.Background(), "corner cafe", 20)
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	assert.Equal(t, "/search/companies", gotPath)
	assert.Equal(t, "corner cafe", gotQuery)
	assert.Equal(t, "test-key", gotUser)

	assert.Equal(t, "CORNER CAFE LTD", candidates[0].Title)
	assert.Equal(t, "01234567", candidates[0].CompanyNumber)
	assert.Equal(t, "active", candidates[0].CompanyStatus)
	assert.Equal(t, "dissolved", candidates[1].CompanyStatus)
}

func TestGetCompanyProfile(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/company/01234567", r.URL.Path)
		w.Write([]byte(`{
			"company_name": "CORNER CAFE LTD",
			"company_number": "01234567",
			"company_status": "active",
			"date_of_creation": "2015-03-02",
			"type": "ltd",
			"sic_codes": ["56102"]
		}`))
	})

	profile, err := c.GetCompanyProfile(context.Background(), "01234567")
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, "CORNER CAFE LTD", profile.CompanyName)
	assert.Equal(t, "2015-03-02", profile.DateOfCreation)
	assert.Equal(t, []string{"56102"}, profile.SICCodes)
}

func TestGetOfficers(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/company/01234567/officers", r.URL.Path)
		w.Write([]byte(`{"items": [{"name": "DOE, Jane", "officer_role": "director", "appointed_on": "2015-03-02"}]}`))
	})

	officers, err := c.GetOfficers(context.Background(), "01234567")
	require.NoError(t, err)
	require.Len(t, officers, 1)
	assert.Equal(t, "DOE, Jane", officers[0].Name)
	assert.Equal(t, "director", officers[0].Role)
}

func TestRateLimitRetriesOnceAfterCooldown(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"items": [{"title": "CORNER CAFE LTD", "company_number": "01234567"}]}`))
	})

	candidates, err := c.SearchCompanies(context.Background(), "corner cafe", 20)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRateLimitGivesUpAfterOneRetry(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	// Persistent rate limiting costs this call, not the batch: no error,
	// no result, exactly one retry.
	candidates, err := c.SearchCompanies(context.Background(), "corner cafe", 20)
	require.NoError(t, err)
	assert.Nil(t, candidates)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOtherHTTPErrorsAreNoResult(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	})

	profile, err := c.GetCompanyProfile(context.Background(), "00000000")
	require.NoError(t, err)
	assert.Nil(t, profile)
	assert.Equal(t, int32(1), calls.Load(), "non-429 errors are not retried")
}

func TestQuotaBlocksInsteadOfFailing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items": []}`))
	}))
	t.Cleanup(srv.Close)

	c := NewClient("test-key",
		WithBaseURL(srv.URL),
		WithQuota(1, 200*time.Millisecond),
	)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := c.SearchCompanies(context.Background(), "corner cafe", 20)
		require.NoError(t, err)
	}
	// Burst of 1, so calls two and three each wait a full refill.
	assert.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)
}

func TestQuotaWaitRespectsCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items": []}`))
	}))
	t.Cleanup(srv.Close)

	c := NewClient("test-key",
		WithBaseURL(srv.URL),
		WithQuota(1, time.Hour),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.SearchCompanies(ctx, "first", 20)
	require.NoError(t, err)

	_, err = c.SearchCompanies(ctx, "second", 20)
	require.Error(t, err)
}
