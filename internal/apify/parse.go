package apify

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	ratingRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*out of`)
	priceRe  = regexp.MustCompile(`\d+(?:\.\d+)?`)
	asinRe   = regexp.MustCompile(`(?i)/dp/([A-Z0-9]{10})`)
)

// ParseRating extracts the numeric rating from strings like
// "4.5 out of 5 stars". Returns nil when no rating is present.
func ParseRating(s string) *float64 {
	m := ratingRe.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	return &v
}

// ParsePrice extracts the first numeric value from a price string like
// "$12.99" or "$0.25 / Fl Oz". Returns nil when no number is present.
func ParsePrice(s string) *float64 {
	s = strings.ReplaceAll(s, ",", "")
	m := priceRe.FindString(s)
	if m == "" {
		return nil
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return nil
	}
	return &v
}

// ASINFromURL recovers the ASIN from an Amazon product URL
// ("https://www.amazon.com/dp/B0ABC12345"). The match is case-insensitive
// and the result is uppercased so it compares equal to stored ASINs.
// Returns empty when the URL does not contain a /dp/ segment.
func ASINFromURL(url string) string {
	m := asinRe.FindStringSubmatch(url)
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1])
}
