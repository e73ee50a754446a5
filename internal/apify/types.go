// Package apify talks to the Apify platform's REST API to run the Amazon
// review and product detail scraper actors.
package apify

import (
	"context"
	"encoding/json"
	"fmt"
)

// Error is returned when an actor run fails or the API responds with an
// unexpected status. It carries enough detail to store on a job item.
type Error struct {
	Op      string // "start", "poll", "dataset"
	Status  string // terminal run status or HTTP status text
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("apify %s: %s: %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("apify %s: %s", e.Op, e.Status)
}

// ReviewRequest scrapes reviews for a single ASIN with one star filter.
type ReviewRequest struct {
	ASIN          string
	Marketplace   string // Amazon domain suffix, e.g. "com", "co.uk", "de"
	StarFilter    string // "all_stars", "one_star" ... "five_star"
	MaxReviews    int
	SortBy        string // "recent" or "helpful", defaults to "recent"
	KeywordFilter string // restricts reviews to ones mentioning the keyword
	ReviewerType  string // "all_reviews" or "avp_only_reviews"
}

// ProductRequest scrapes product details for a batch of ASINs.
type ProductRequest struct {
	ASINs       []string
	Marketplace string
}

// ReviewRecord is one review item returned by the reviews actor.
type ReviewRecord struct {
	ReviewID        string `json:"reviewId"`
	Title           string `json:"title"`
	Text            string `json:"text"`
	RatingText      string `json:"rating"` // e.g. "4.0 out of 5 stars"
	UserName        string `json:"userName"`
	Date            string `json:"date"`
	Verified        bool   `json:"verified"`
	NumberOfHelpful int    `json:"numberOfHelpful"`
	Variation       string `json:"variation"`
	ProductTitle    string `json:"productTitle"`

	Raw json.RawMessage `json:"-"`
}

// Rating returns the numeric star rating parsed from RatingText, or nil.
func (r *ReviewRecord) Rating() *float64 {
	return ParseRating(r.RatingText)
}

// ProductRecord is one product item returned by the details actor.
// StatusCode mirrors the HTTP status the actor saw when fetching the
// product page; anything other than 200 means the item failed.
type ProductRecord struct {
	ASIN          string   `json:"asin"`
	URL           string   `json:"url"`
	StatusCode    int      `json:"statusCode"`
	StatusMessage string   `json:"statusMessage"`
	ProductTitle  string   `json:"productTitle"`
	Manufacturer  string   `json:"manufacturer"`
	Price         *float64 `json:"price"`
	RetailPrice   *float64 `json:"retailPrice"`
	ShippingPrice *float64 `json:"shippingPrice"`
	Currency      string   `json:"currency"`
	PricePerUnit  string   `json:"pricePerUnit"` // e.g. "$0.25 / Fl Oz"
	RatingText    string   `json:"productRating"`
	CountReview   int      `json:"countReview"`
	Availability  string   `json:"warehouseAvailability"`
	SoldBy        string   `json:"soldBy"`
	FulfilledBy   string   `json:"fulfilledBy"`
	Prime         bool     `json:"prime"`
	ImageURLs     []string `json:"imageUrlList"`

	Raw json.RawMessage `json:"-"`
}

// Rating returns the numeric star rating parsed from RatingText, or nil.
func (p *ProductRecord) Rating() *float64 {
	return ParseRating(p.RatingText)
}

// UnitPrice returns the numeric part of PricePerUnit, or nil.
func (p *ProductRecord) UnitPrice() *float64 {
	return ParsePrice(p.PricePerUnit)
}

// MainImageURL returns the first product image, or empty.
func (p *ProductRecord) MainImageURL() string {
	if len(p.ImageURLs) > 0 {
		return p.ImageURLs[0]
	}
	return ""
}

// ResolvedASIN returns the record's ASIN, falling back to the one embedded
// in the product URL when the actor omits the field.
func (p *ProductRecord) ResolvedASIN() string {
	if p.ASIN != "" {
		return p.ASIN
	}
	return ASINFromURL(p.URL)
}

// OK reports whether the actor fetched the product page successfully.
func (p *ProductRecord) OK() bool {
	return p.StatusCode == 200
}

// Provider is the scraping backend used by the worker. The production
// implementation is Client; tests substitute a fake.
type Provider interface {
	ScrapeReviews(ctx context.Context, req ReviewRequest) ([]ReviewRecord, error)
	ScrapeProducts(ctx context.Context, req ProductRequest) ([]ProductRecord, error)
}
