// Package model defines the database models used throughout the application.
// These models work with both PostgreSQL and SQLite via GORM.
package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Sku represents a parent SKU used to group channel listings, competitors
// and scrape jobs for one of our products.
type Sku struct {
	ID          string    `gorm:"primaryKey;type:text" json:"id"`
	SkuCode     string    `gorm:"column:sku_code;uniqueIndex;not null;type:text" json:"sku_code"`
	Description *string   `gorm:"type:text" json:"description,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	ChannelSkus []ChannelSku `gorm:"foreignKey:SkuID" json:"-"`
	Competitors []Competitor `gorm:"foreignKey:SkuID" json:"-"`
}

func (Sku) TableName() string { return "skus" }

func (s *Sku) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}

// ChannelSku represents one of our own Amazon listings. The worker writes
// the latest scraped metrics into it whenever a scan item completes.
type ChannelSku struct {
	ID                string     `gorm:"primaryKey;type:text" json:"id"`
	SkuID             *string    `gorm:"column:sku_id;type:text;index" json:"sku_id,omitempty"`
	ChannelSkuCode    string     `gorm:"column:channel_sku_code;not null;type:text;uniqueIndex:idx_channel_sku_code_marketplace" json:"channel_sku_code"`
	Marketplace       string     `gorm:"not null;type:text;default:com;uniqueIndex:idx_channel_sku_code_marketplace" json:"marketplace"`
	CurrentASIN       string     `gorm:"column:current_asin;not null;type:text" json:"current_asin"`
	PackSize          int        `gorm:"column:pack_size;default:1" json:"pack_size"`
	ProductTitle      *string    `gorm:"column:product_title;type:text" json:"product_title,omitempty"`
	LatestRating      *float64   `gorm:"column:latest_rating" json:"latest_rating,omitempty"`
	LatestReviewCount *int       `gorm:"column:latest_review_count" json:"latest_review_count,omitempty"`
	LastScrapedAt     *time.Time `gorm:"column:last_scraped_at" json:"last_scraped_at,omitempty"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	Sku         *Sku                    `gorm:"foreignKey:SkuID" json:"-"`
	AsinHistory []ChannelSkuAsinHistory `gorm:"foreignKey:ChannelSkuID" json:"-"`
}

func (ChannelSku) TableName() string { return "channel_skus" }

func (c *ChannelSku) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// ChannelSkuAsinHistory records an ASIN change detected for a channel SKU.
// Rows are append-only; the scan job that detected the change is referenced
// for traceability.
type ChannelSkuAsinHistory struct {
	ID             string    `gorm:"primaryKey;type:text" json:"id"`
	ChannelSkuID   string    `gorm:"column:channel_sku_id;not null;type:text;index" json:"channel_sku_id"`
	ASIN           string    `gorm:"column:asin;not null;type:text" json:"asin"`
	ChangedByJobID *string   `gorm:"column:changed_by_job_id;type:text" json:"changed_by_job_id,omitempty"`
	ChangedAt      time.Time `gorm:"autoCreateTime" json:"changed_at"`

	ChannelSku *ChannelSku `gorm:"foreignKey:ChannelSkuID" json:"-"`
}

func (ChannelSkuAsinHistory) TableName() string { return "channel_sku_asin_history" }

func (h *ChannelSkuAsinHistory) BeforeCreate(tx *gorm.DB) error {
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	return nil
}

// Schedule represents how often a competitor is automatically re-scraped.
type Schedule string

const (
	ScheduleNone       Schedule = "none"
	ScheduleDaily      Schedule = "daily"
	ScheduleEvery2Days Schedule = "every_2_days"
	ScheduleEvery3Days Schedule = "every_3_days"
	ScheduleWeekly     Schedule = "weekly"
	ScheduleMonthly    Schedule = "monthly"
)

// Interval returns the duration between scheduled scrapes, or zero for
// ScheduleNone and unknown values.
func (s Schedule) Interval() time.Duration {
	switch s {
	case ScheduleDaily:
		return 24 * time.Hour
	case ScheduleEvery2Days:
		return 48 * time.Hour
	case ScheduleEvery3Days:
		return 72 * time.Hour
	case ScheduleWeekly:
		return 7 * 24 * time.Hour
	case ScheduleMonthly:
		return 30 * 24 * time.Hour
	}
	return 0
}

// Valid reports whether s is one of the known schedule values.
func (s Schedule) Valid() bool {
	switch s {
	case ScheduleNone, ScheduleDaily, ScheduleEvery2Days, ScheduleEvery3Days, ScheduleWeekly, ScheduleMonthly:
		return true
	}
	return false
}

// Competitor represents a tracked competitor ASIN. Its cached metrics live
// in CompetitorData and are only written by the worker; identity and
// schedule fields are edited through the API.
type Competitor struct {
	ID           string     `gorm:"primaryKey;type:text" json:"id"`
	SkuID        *string    `gorm:"column:sku_id;type:text;index" json:"sku_id,omitempty"`
	ASIN         string     `gorm:"column:asin;not null;type:text;uniqueIndex:idx_competitor_asin_marketplace" json:"asin"`
	Marketplace  string     `gorm:"not null;type:text;default:com;uniqueIndex:idx_competitor_asin_marketplace" json:"marketplace"`
	PackSize     int        `gorm:"column:pack_size;default:1" json:"pack_size"`
	DisplayName  *string    `gorm:"column:display_name;type:text" json:"display_name,omitempty"`
	Schedule     string     `gorm:"not null;type:text;default:none;index:idx_competitor_schedule" json:"schedule"`
	NextScrapeAt *time.Time `gorm:"column:next_scrape_at;index:idx_competitor_schedule" json:"next_scrape_at,omitempty"`
	IsActive     bool       `gorm:"column:is_active;default:true" json:"is_active"`
	Notes        *string    `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	Sku          *Sku                     `gorm:"foreignKey:SkuID" json:"-"`
	Data         *CompetitorData          `gorm:"foreignKey:CompetitorID" json:"data,omitempty"`
	PriceHistory []CompetitorPriceHistory `gorm:"foreignKey:CompetitorID" json:"-"`
}

func (Competitor) TableName() string { return "competitors" }

func (c *Competitor) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// CompetitorData holds the latest scraped metrics for a competitor
// (1:1 with Competitor). Overwritten on each successful scrape.
type CompetitorData struct {
	ID            string          `gorm:"primaryKey;type:text" json:"id"`
	CompetitorID  string          `gorm:"column:competitor_id;uniqueIndex;not null;type:text" json:"competitor_id"`
	Title         *string         `gorm:"type:text" json:"title,omitempty"`
	Brand         *string         `gorm:"type:text" json:"brand,omitempty"`
	Price         *float64        `json:"price,omitempty"`
	RetailPrice   *float64        `gorm:"column:retail_price" json:"retail_price,omitempty"`
	ShippingPrice *float64        `gorm:"column:shipping_price" json:"shipping_price,omitempty"`
	Currency      *string         `gorm:"type:text" json:"currency,omitempty"`
	UnitPrice     *float64        `gorm:"column:unit_price" json:"unit_price,omitempty"`
	Rating        *float64        `json:"rating,omitempty"`
	ReviewCount   *int            `gorm:"column:review_count" json:"review_count,omitempty"`
	Availability  *string         `gorm:"type:text" json:"availability,omitempty"`
	SoldBy        *string         `gorm:"column:sold_by;type:text" json:"sold_by,omitempty"`
	FulfilledBy   *string         `gorm:"column:fulfilled_by;type:text" json:"fulfilled_by,omitempty"`
	IsPrime       bool            `gorm:"column:is_prime;default:false" json:"is_prime"`
	MainImageURL  *string         `gorm:"column:main_image_url;type:text" json:"main_image_url,omitempty"`
	RawData       json.RawMessage `gorm:"column:raw_data;type:text" json:"-"`
	ScrapedAt     time.Time       `gorm:"column:scraped_at" json:"scraped_at"`

	Competitor *Competitor `gorm:"foreignKey:CompetitorID" json:"-"`
}

func (CompetitorData) TableName() string { return "competitor_data" }

func (d *CompetitorData) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	return nil
}

// CompetitorPriceHistory is an append-only snapshot of a competitor's
// metrics, recorded each time a competitor scrape item completes.
type CompetitorPriceHistory struct {
	ID            string    `gorm:"primaryKey;type:text" json:"id"`
	CompetitorID  string    `gorm:"column:competitor_id;not null;type:text;index" json:"competitor_id"`
	Price         *float64  `json:"price,omitempty"`
	UnitPrice     *float64  `gorm:"column:unit_price" json:"unit_price,omitempty"`
	ShippingPrice *float64  `gorm:"column:shipping_price" json:"shipping_price,omitempty"`
	Availability  *string   `gorm:"type:text" json:"availability,omitempty"`
	Rating        *float64  `json:"rating,omitempty"`
	ReviewCount   *int      `gorm:"column:review_count" json:"review_count,omitempty"`
	ScrapedAt     time.Time `gorm:"column:scraped_at;autoCreateTime;index" json:"scraped_at"`

	Competitor *Competitor `gorm:"foreignKey:CompetitorID" json:"-"`
}

func (CompetitorPriceHistory) TableName() string { return "competitor_price_history" }

func (h *CompetitorPriceHistory) BeforeCreate(tx *gorm.DB) error {
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	return nil
}

// Keyword represents a tracked search keyword for competitor research.
type Keyword struct {
	ID          string    `gorm:"primaryKey;type:text" json:"id"`
	SkuID       *string   `gorm:"column:sku_id;type:text;index" json:"sku_id,omitempty"`
	Keyword     string    `gorm:"not null;type:text" json:"keyword"`
	Marketplace string    `gorm:"not null;type:text;default:com" json:"marketplace"`
	Notes       *string   `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Sku             *Sku                `gorm:"foreignKey:SkuID" json:"-"`
	ChannelSkuLinks []KeywordChannelSku `gorm:"foreignKey:KeywordID" json:"-"`
	CompetitorLinks []KeywordCompetitor `gorm:"foreignKey:KeywordID" json:"-"`
}

func (Keyword) TableName() string { return "keywords" }

func (k *Keyword) BeforeCreate(tx *gorm.DB) error {
	if k.ID == "" {
		k.ID = uuid.New().String()
	}
	return nil
}

// KeywordChannelSku links a keyword to one of our channel SKUs.
type KeywordChannelSku struct {
	ID           string    `gorm:"primaryKey;type:text" json:"id"`
	KeywordID    string    `gorm:"column:keyword_id;not null;type:text;uniqueIndex:idx_keyword_channel_sku" json:"keyword_id"`
	ChannelSkuID string    `gorm:"column:channel_sku_id;not null;type:text;uniqueIndex:idx_keyword_channel_sku" json:"channel_sku_id"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`

	Keyword    *Keyword    `gorm:"foreignKey:KeywordID" json:"-"`
	ChannelSku *ChannelSku `gorm:"foreignKey:ChannelSkuID" json:"-"`
}

func (KeywordChannelSku) TableName() string { return "keyword_channel_skus" }

func (l *KeywordChannelSku) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	return nil
}

// KeywordCompetitor links a keyword to a tracked competitor.
type KeywordCompetitor struct {
	ID           string    `gorm:"primaryKey;type:text" json:"id"`
	KeywordID    string    `gorm:"column:keyword_id;not null;type:text;uniqueIndex:idx_keyword_competitor" json:"keyword_id"`
	CompetitorID string    `gorm:"column:competitor_id;not null;type:text;uniqueIndex:idx_keyword_competitor" json:"competitor_id"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`

	Keyword    *Keyword    `gorm:"foreignKey:KeywordID" json:"-"`
	Competitor *Competitor `gorm:"foreignKey:CompetitorID" json:"-"`
}

func (KeywordCompetitor) TableName() string { return "keyword_competitors" }

func (l *KeywordCompetitor) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	return nil
}

// AllModels returns all model types for migration.
func AllModels() []interface{} {
	return []interface{}{
		&Sku{},
		&ChannelSku{},
		&ChannelSkuAsinHistory{},
		&Competitor{},
		&CompetitorData{},
		&CompetitorPriceHistory{},
		&Keyword{},
		&KeywordChannelSku{},
		&KeywordCompetitor{},
		&ReviewJob{},
		&JobAsin{},
		&Review{},
		&AsinHistory{},
		&ScanJob{},
		&ScanItem{},
		&CompetitorJob{},
		&CompetitorItem{},
	}
}
