package apify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultBaseURL = "https://api.apify.com/v2"

	reviewsActorID = "axesso_data~amazon-reviews-scraper"
	productActorID = "axesso_data~amazon-product-details-scraper"

	reviewsPerPage = 10
)

// Client implements Provider against the Apify REST API. A scrape starts
// an actor run, polls its status until it reaches a terminal state, then
// fetches the run's default dataset.
type Client struct {
	token        string
	baseURL      string
	timeout      time.Duration
	pollInterval time.Duration
	httpClient   *http.Client
}

// NewClient creates a Client. timeout bounds a whole scrape including the
// actor run; individual HTTP calls inherit it through the context.
func NewClient(token string, timeout time.Duration) *Client {
	return &Client{
		token:        token,
		baseURL:      defaultBaseURL,
		timeout:      timeout,
		pollInterval: 3 * time.Second,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

// SetBaseURL overrides the API endpoint. Used in tests.
func (c *Client) SetBaseURL(u string) { c.baseURL = u }

// SetPollInterval overrides the run status poll interval. Used in tests.
func (c *Client) SetPollInterval(d time.Duration) { c.pollInterval = d }

// ScrapeReviews runs the reviews actor for one ASIN and star filter.
func (c *Client) ScrapeReviews(ctx context.Context, req ReviewRequest) ([]ReviewRecord, error) {
	maxPages := (req.MaxReviews + reviewsPerPage - 1) / reviewsPerPage
	if maxPages < 1 {
		maxPages = 1
	}
	sortBy := req.SortBy
	if sortBy == "" {
		sortBy = "recent"
	}
	reviewerType := req.ReviewerType
	if reviewerType == "" {
		reviewerType = "all_reviews"
	}
	item := map[string]interface{}{
		"asin":         req.ASIN,
		"domainCode":   req.Marketplace,
		"sortBy":       sortBy,
		"maxPages":     maxPages,
		"reviewerType": reviewerType,
	}
	// The actor treats an absent filterByStar as all stars.
	if req.StarFilter != "" && req.StarFilter != "all_stars" {
		item["filterByStar"] = req.StarFilter
	}
	if req.KeywordFilter != "" {
		item["filterByKeyword"] = req.KeywordFilter
	}
	input := map[string]interface{}{
		"input": []map[string]interface{}{item},
	}

	raw, err := c.runActor(ctx, reviewsActorID, input)
	if err != nil {
		return nil, err
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, &Error{Op: "dataset", Status: "decode", Message: err.Error()}
	}
	records := make([]ReviewRecord, 0, len(items))
	for _, item := range items {
		var rec ReviewRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			continue
		}
		rec.Raw = item
		records = append(records, rec)
	}
	return records, nil
}

// ScrapeProducts runs the product details actor for a batch of ASINs.
func (c *Client) ScrapeProducts(ctx context.Context, req ProductRequest) ([]ProductRecord, error) {
	inputs := make([]map[string]interface{}, 0, len(req.ASINs))
	for _, asin := range req.ASINs {
		inputs = append(inputs, map[string]interface{}{
			"asin":       asin,
			"domainCode": req.Marketplace,
		})
	}
	input := map[string]interface{}{"input": inputs}

	raw, err := c.runActor(ctx, productActorID, input)
	if err != nil {
		return nil, err
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, &Error{Op: "dataset", Status: "decode", Message: err.Error()}
	}
	records := make([]ProductRecord, 0, len(items))
	for _, item := range items {
		var rec ProductRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			continue
		}
		rec.Raw = item
		records = append(records, rec)
	}
	return records, nil
}

// runActor starts an actor run, waits for it to finish and returns the raw
// dataset items. The client timeout caps the whole sequence so a run stuck
// in RUNNING cannot be polled forever.
func (c *Client) runActor(ctx context.Context, actorID string, input interface{}) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	runID, err := c.startActorRun(ctx, actorID, input)
	if err != nil {
		return nil, err
	}
	datasetID, err := c.waitForRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	return c.datasetItems(ctx, datasetID)
}

func (c *Client) startActorRun(ctx context.Context, actorID string, input interface{}) (string, error) {
	url := fmt.Sprintf("%s/acts/%s/runs?token=%s", c.baseURL, actorID, c.token)

	body, err := json.Marshal(input)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &Error{Op: "start", Status: "request", Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return "", &Error{Op: "start", Status: resp.Status, Message: string(respBody)}
	}

	var result struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", &Error{Op: "start", Status: "decode", Message: err.Error()}
	}
	return result.Data.ID, nil
}

func (c *Client) waitForRun(ctx context.Context, runID string) (string, error) {
	statusURL := fmt.Sprintf("%s/actor-runs/%s?token=%s", c.baseURL, runID, c.token)

	for {
		select {
		case <-ctx.Done():
			// A deadline here means the run outlived the scrape timeout,
			// which counts as a provider failure like any other bad run.
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return "", &Error{Op: "poll", Status: "timeout", Message: "actor run did not finish in time"}
			}
			return "", ctx.Err()
		case <-time.After(c.pollInterval):
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
		if err != nil {
			return "", err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return "", &Error{Op: "poll", Status: "request", Message: err.Error()}
		}

		var status struct {
			Data struct {
				Status           string `json:"status"`
				DefaultDatasetID string `json:"defaultDatasetId"`
			} `json:"data"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
			resp.Body.Close()
			return "", &Error{Op: "poll", Status: "decode", Message: err.Error()}
		}
		resp.Body.Close()

		switch status.Data.Status {
		case "SUCCEEDED":
			return status.Data.DefaultDatasetID, nil
		case "FAILED", "ABORTED", "TIMED-OUT":
			return "", &Error{Op: "poll", Status: status.Data.Status, Message: "actor run did not succeed"}
		}
		// Still running, keep polling.
	}
}

func (c *Client) datasetItems(ctx context.Context, datasetID string) ([]byte, error) {
	url := fmt.Sprintf("%s/datasets/%s/items?token=%s", c.baseURL, datasetID, c.token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Op: "dataset", Status: "request", Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &Error{Op: "dataset", Status: resp.Status, Message: string(respBody)}
	}
	return io.ReadAll(resp.Body)
}
