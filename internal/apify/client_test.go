package apify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMockAPI serves the three-call actor flow: start run, poll status,
// fetch dataset items.
func newMockAPI(t *testing.T, runStatus string, items string) (*httptest.Server, *[]string) {
	t.Helper()
	var inputs []string

	mux := http.NewServeMux()
	mux.HandleFunc("/acts/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		raw, _ := json.Marshal(body)
		inputs = append(inputs, string(raw))

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]string{"id": "run-1"},
		})
	})
	mux.HandleFunc("/actor-runs/run-1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]string{
				"status":           runStatus,
				"defaultDatasetId": "ds-1",
			},
		})
	})
	mux.HandleFunc("/datasets/ds-1/items", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(items))
	})

	return httptest.NewServer(mux), &inputs
}

func newTestClient(srv *httptest.Server) *Client {
	c := NewClient("test-token", 10*time.Second)
	c.SetBaseURL(srv.URL)
	c.SetPollInterval(time.Millisecond)
	return c
}

func TestScrapeReviews(t *testing.T) {
	srv, inputs := newMockAPI(t, "SUCCEEDED", `[
		{"reviewId":"R1","title":"Great","rating":"5.0 out of 5 stars","productTitle":"Widget"},
		{"reviewId":"R2","title":"Bad","rating":"1.0 out of 5 stars"}
	]`)
	defer srv.Close()

	c := newTestClient(srv)
	records, err := c.ScrapeReviews(context.Background(), ReviewRequest{
		ASIN:        "B0ABC12345",
		Marketplace: "com",
		StarFilter:  "all_stars",
		MaxReviews:  25,
	})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "R1", records[0].ReviewID)
	assert.Equal(t, "Widget", records[0].ProductTitle)
	require.NotNil(t, records[0].Rating())
	assert.Equal(t, 5.0, *records[0].Rating())
	assert.NotEmpty(t, records[0].Raw)

	// 25 reviews at 10 per page rounds up to 3 pages.
	require.Len(t, *inputs, 1)
	assert.Contains(t, (*inputs)[0], `"maxPages":3`)
	assert.Contains(t, (*inputs)[0], `"sortBy":"recent"`)
	assert.Contains(t, (*inputs)[0], `"reviewerType":"all_reviews"`)
	// all_stars means no star filter at all.
	assert.NotContains(t, (*inputs)[0], "filterByStar")
}

func TestScrapeReviewsFilters(t *testing.T) {
	srv, inputs := newMockAPI(t, "SUCCEEDED", `[]`)
	defer srv.Close()

	c := newTestClient(srv)
	_, err := c.ScrapeReviews(context.Background(), ReviewRequest{
		ASIN:          "B0ABC12345",
		Marketplace:   "com",
		StarFilter:    "one_star",
		MaxReviews:    10,
		SortBy:        "helpful",
		KeywordFilter: "battery",
		ReviewerType:  "avp_only_reviews",
	})
	require.NoError(t, err)
	require.Len(t, *inputs, 1)
	assert.Contains(t, (*inputs)[0], `"filterByStar":"one_star"`)
	assert.Contains(t, (*inputs)[0], `"filterByKeyword":"battery"`)
	assert.Contains(t, (*inputs)[0], `"sortBy":"helpful"`)
	assert.Contains(t, (*inputs)[0], `"reviewerType":"avp_only_reviews"`)
}

func TestScrapeProducts(t *testing.T) {
	srv, inputs := newMockAPI(t, "SUCCEEDED", `[
		{"asin":"B0ABC12345","statusCode":200,"productTitle":"Widget","price":12.99,"countReview":42},
		{"asin":"B0DEF67890","statusCode":404}
	]`)
	defer srv.Close()

	c := newTestClient(srv)
	records, err := c.ScrapeProducts(context.Background(), ProductRequest{
		ASINs:       []string{"B0ABC12345", "B0DEF67890"},
		Marketplace: "de",
	})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.True(t, records[0].OK())
	require.NotNil(t, records[0].Price)
	assert.Equal(t, 12.99, *records[0].Price)
	assert.False(t, records[1].OK())

	require.Len(t, *inputs, 1)
	assert.Contains(t, (*inputs)[0], `"domainCode":"de"`)
}

func TestScrapeFailedRun(t *testing.T) {
	srv, _ := newMockAPI(t, "FAILED", `[]`)
	defer srv.Close()

	c := newTestClient(srv)
	_, err := c.ScrapeReviews(context.Background(), ReviewRequest{ASIN: "B0ABC12345", Marketplace: "com"})
	require.Error(t, err)

	var apifyErr *Error
	require.ErrorAs(t, err, &apifyErr)
	assert.Equal(t, "FAILED", apifyErr.Status)
}

func TestScrapeRunTimeout(t *testing.T) {
	// A run that never leaves RUNNING must stop at the client timeout, not
	// poll forever, and the failure reads as a provider error.
	srv, _ := newMockAPI(t, "RUNNING", `[]`)
	defer srv.Close()

	c := NewClient("test-token", 50*time.Millisecond)
	c.SetBaseURL(srv.URL)
	c.SetPollInterval(time.Millisecond)

	start := time.Now()
	_, err := c.ScrapeReviews(context.Background(), ReviewRequest{ASIN: "B0ABC12345", Marketplace: "com"})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	var apifyErr *Error
	require.ErrorAs(t, err, &apifyErr)
	assert.Equal(t, "timeout", apifyErr.Status)
}

func TestScrapeStartRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/acts/") {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := newTestClient(srv)
	_, err := c.ScrapeProducts(context.Background(), ProductRequest{ASINs: []string{"B0ABC12345"}, Marketplace: "com"})
	var apifyErr *Error
	require.ErrorAs(t, err, &apifyErr)
	assert.Equal(t, "start", apifyErr.Op)
}
