package apify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRating(t *testing.T) {
	r := ParseRating("4.5 out of 5 stars")
	require.NotNil(t, r)
	assert.Equal(t, 4.5, *r)

	r = ParseRating("5 out of 5 stars")
	require.NotNil(t, r)
	assert.Equal(t, 5.0, *r)

	assert.Nil(t, ParseRating(""))
	assert.Nil(t, ParseRating("no rating here"))
}

func TestParsePrice(t *testing.T) {
	p := ParsePrice("$12.99")
	require.NotNil(t, p)
	assert.Equal(t, 12.99, *p)

	p = ParsePrice("$0.25 / Fl Oz")
	require.NotNil(t, p)
	assert.Equal(t, 0.25, *p)

	p = ParsePrice("1,299.00")
	require.NotNil(t, p)
	assert.Equal(t, 1299.00, *p)

	assert.Nil(t, ParsePrice(""))
	assert.Nil(t, ParsePrice("free"))
}

func TestASINFromURL(t *testing.T) {
	assert.Equal(t, "B0ABC12345", ASINFromURL("https://www.amazon.com/dp/B0ABC12345"))
	assert.Equal(t, "B0ABC12345", ASINFromURL("https://www.amazon.co.uk/Some-Product/dp/B0ABC12345?ref=x"))
	assert.Equal(t, "B0ABC12345", ASINFromURL("https://www.amazon.com/DP/b0abc12345"))
	assert.Equal(t, "", ASINFromURL("https://www.amazon.com/gp/help"))
	assert.Equal(t, "", ASINFromURL(""))
}

func TestProductRecordHelpers(t *testing.T) {
	rec := ProductRecord{
		URL:          "https://www.amazon.com/dp/B0XYZ99999",
		RatingText:   "3.8 out of 5 stars",
		PricePerUnit: "$0.10 / Count",
		ImageURLs:    []string{"https://img/1.jpg", "https://img/2.jpg"},
		StatusCode:   200,
	}
	assert.Equal(t, "B0XYZ99999", rec.ResolvedASIN())
	require.NotNil(t, rec.Rating())
	assert.Equal(t, 3.8, *rec.Rating())
	require.NotNil(t, rec.UnitPrice())
	assert.Equal(t, 0.10, *rec.UnitPrice())
	assert.Equal(t, "https://img/1.jpg", rec.MainImageURL())
	assert.True(t, rec.OK())

	rec.ASIN = "B0AAAAAAAA"
	assert.Equal(t, "B0AAAAAAAA", rec.ResolvedASIN())

	rec.StatusCode = 404
	assert.False(t, rec.OK())
}
