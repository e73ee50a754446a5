package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JobStatus represents the lifecycle state of a scrape job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusPartial   JobStatus = "partial"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether a job in this status will never be picked up
// by the worker again.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusPartial, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// ItemStatus represents the state of a single unit of work within a job.
type ItemStatus string

const (
	ItemStatusPending   ItemStatus = "pending"
	ItemStatusRunning   ItemStatus = "running"
	ItemStatusCompleted ItemStatus = "completed"
	ItemStatusFailed    ItemStatus = "failed"
)

// FinalJobStatus derives the terminal status of a job from its item
// counters: all failures means failed, any failure alongside successes
// means partial, otherwise completed.
func FinalJobStatus(completed, failed int) JobStatus {
	switch {
	case failed > 0 && completed == 0:
		return JobStatusFailed
	case failed > 0:
		return JobStatusPartial
	default:
		return JobStatusCompleted
	}
}

// ReviewJob is a request to scrape Amazon reviews for a set of ASINs.
// One JobAsin row per requested ASIN tracks per-ASIN progress.
type ReviewJob struct {
	ID             string          `gorm:"primaryKey;type:text" json:"id"`
	Name           *string         `gorm:"type:text" json:"name,omitempty"`
	Marketplace    string          `gorm:"not null;type:text;default:com" json:"marketplace"`
	Status         JobStatus       `gorm:"not null;type:text;default:queued;index" json:"status"`
	StarFilters    json.RawMessage `gorm:"column:star_filters;type:text" json:"star_filters,omitempty"`
	MaxReviews     int             `gorm:"column:max_reviews;default:100" json:"max_reviews"`
	SortBy         string          `gorm:"column:sort_by;type:text;default:recent" json:"sort_by"`
	KeywordFilter  *string         `gorm:"column:keyword_filter;type:text" json:"keyword_filter,omitempty"`
	ReviewerType   string          `gorm:"column:reviewer_type;type:text;default:all_reviews" json:"reviewer_type"`
	TotalAsins     int             `gorm:"column:total_asins;default:0" json:"total_asins"`
	CompletedAsins int             `gorm:"column:completed_asins;default:0" json:"completed_asins"`
	FailedAsins    int             `gorm:"column:failed_asins;default:0" json:"failed_asins"`
	TotalReviews   int             `gorm:"column:total_reviews;default:0" json:"total_reviews"`
	ErrorMessage   *string         `gorm:"column:error_message;type:text" json:"error_message,omitempty"`
	CreatedAt      time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	StartedAt      *time.Time      `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt    *time.Time      `gorm:"column:completed_at" json:"completed_at,omitempty"`

	Asins []JobAsin `gorm:"foreignKey:JobID" json:"asins,omitempty"`
}

func (ReviewJob) TableName() string { return "review_jobs" }

func (j *ReviewJob) BeforeCreate(tx *gorm.DB) error {
	if j.ID == "" {
		j.ID = uuid.New().String()
	}
	return nil
}

// StarFilterList decodes the job's star filters, defaulting to all_stars
// when none were requested.
func (j *ReviewJob) StarFilterList() []string {
	var filters []string
	if len(j.StarFilters) > 0 {
		if err := json.Unmarshal(j.StarFilters, &filters); err == nil && len(filters) > 0 {
			return filters
		}
	}
	return []string{"all_stars"}
}

// JobAsin tracks the progress of one ASIN within a review job.
type JobAsin struct {
	ID           string     `gorm:"primaryKey;type:text" json:"id"`
	JobID        string     `gorm:"column:job_id;not null;type:text;index" json:"job_id"`
	ASIN         string     `gorm:"column:asin;not null;type:text" json:"asin"`
	Status       ItemStatus `gorm:"not null;type:text;default:pending" json:"status"`
	ReviewCount  int        `gorm:"column:review_count;default:0" json:"review_count"`
	ProductTitle *string    `gorm:"column:product_title;type:text" json:"product_title,omitempty"`
	ErrorMessage *string    `gorm:"column:error_message;type:text" json:"error_message,omitempty"`
	ScrapedAt    *time.Time `gorm:"column:scraped_at" json:"scraped_at,omitempty"`

	Job *ReviewJob `gorm:"foreignKey:JobID" json:"-"`
}

func (JobAsin) TableName() string { return "job_asins" }

func (a *JobAsin) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}

// Review is a single scraped Amazon review. ReviewID is the Amazon-side
// identifier and is unique per (asin, review_id) within a job's scrape.
type Review struct {
	ID                string          `gorm:"primaryKey;type:text" json:"id"`
	JobID             string          `gorm:"column:job_id;not null;type:text;index" json:"job_id"`
	ASIN              string          `gorm:"column:asin;not null;type:text;index" json:"asin"`
	ReviewID          string          `gorm:"column:review_id;not null;type:text;index" json:"review_id"`
	Title             *string         `gorm:"type:text" json:"title,omitempty"`
	Text              *string         `gorm:"type:text" json:"text,omitempty"`
	Rating            *float64        `json:"rating,omitempty"`
	ReviewerName      *string         `gorm:"column:reviewer_name;type:text" json:"reviewer_name,omitempty"`
	Date              *string         `gorm:"type:text" json:"date,omitempty"`
	VerifiedPurchase  bool            `gorm:"column:verified_purchase;default:false" json:"verified_purchase"`
	HelpfulVotes      *int            `gorm:"column:helpful_votes" json:"helpful_votes,omitempty"`
	VariantAttributes *string         `gorm:"column:variant_attributes;type:text" json:"variant_attributes,omitempty"`
	RawData           json.RawMessage `gorm:"column:raw_data;type:text" json:"-"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (Review) TableName() string { return "reviews" }

func (r *Review) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

// AsinHistory records aggregate metrics observed for an ASIN each time a
// review scrape for it completes. Append-only.
type AsinHistory struct {
	ID           string    `gorm:"primaryKey;type:text" json:"id"`
	ASIN         string    `gorm:"column:asin;not null;type:text;index" json:"asin"`
	JobID        *string   `gorm:"column:job_id;type:text" json:"job_id,omitempty"`
	ProductTitle *string   `gorm:"column:product_title;type:text" json:"product_title,omitempty"`
	ReviewCount  int       `gorm:"column:review_count;default:0" json:"review_count"`
	ScrapedAt    time.Time `gorm:"column:scraped_at;autoCreateTime;index" json:"scraped_at"`
}

func (AsinHistory) TableName() string { return "asin_history" }

func (h *AsinHistory) BeforeCreate(tx *gorm.DB) error {
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	return nil
}

// ScanJob is a request to refresh product metrics for a set of channel SKUs.
type ScanJob struct {
	ID             string     `gorm:"primaryKey;type:text" json:"id"`
	Name           *string    `gorm:"type:text" json:"name,omitempty"`
	Marketplace    string     `gorm:"not null;type:text;default:com" json:"marketplace"`
	Status         JobStatus  `gorm:"not null;type:text;default:queued;index" json:"status"`
	TotalItems     int        `gorm:"column:total_items;default:0" json:"total_items"`
	CompletedItems int        `gorm:"column:completed_items;default:0" json:"completed_items"`
	FailedItems    int        `gorm:"column:failed_items;default:0" json:"failed_items"`
	ErrorMessage   *string    `gorm:"column:error_message;type:text" json:"error_message,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	StartedAt      *time.Time `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt    *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`

	Items []ScanItem `gorm:"foreignKey:JobID" json:"items,omitempty"`
}

func (ScanJob) TableName() string { return "scan_jobs" }

func (j *ScanJob) BeforeCreate(tx *gorm.DB) error {
	if j.ID == "" {
		j.ID = uuid.New().String()
	}
	return nil
}

// ScanItem tracks one channel SKU within a scan job. The ASIN is snapshotted
// at creation time so a later ASIN edit does not change what gets scraped.
type ScanItem struct {
	ID           string     `gorm:"primaryKey;type:text" json:"id"`
	JobID        string     `gorm:"column:job_id;not null;type:text;index" json:"job_id"`
	ChannelSkuID string     `gorm:"column:channel_sku_id;not null;type:text;index" json:"channel_sku_id"`
	ASIN         string     `gorm:"column:asin;not null;type:text" json:"asin"`
	Status       ItemStatus `gorm:"not null;type:text;default:pending" json:"status"`
	Rating       *float64   `json:"rating,omitempty"`
	ReviewCount  *int       `gorm:"column:review_count" json:"review_count,omitempty"`
	ProductTitle *string    `gorm:"column:product_title;type:text" json:"product_title,omitempty"`
	ScrapedASIN  *string    `gorm:"column:scraped_asin;type:text" json:"scraped_asin,omitempty"`
	ErrorMessage *string    `gorm:"column:error_message;type:text" json:"error_message,omitempty"`
	ScrapedAt    *time.Time `gorm:"column:scraped_at" json:"scraped_at,omitempty"`

	Job        *ScanJob    `gorm:"foreignKey:JobID" json:"-"`
	ChannelSku *ChannelSku `gorm:"foreignKey:ChannelSkuID" json:"-"`
}

func (ScanItem) TableName() string { return "scan_items" }

func (i *ScanItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.New().String()
	}
	return nil
}

// CompetitorJobType distinguishes user-created competitor jobs from ones
// created by the scheduler sweep.
type CompetitorJobType string

const (
	CompetitorJobManual    CompetitorJobType = "manual"
	CompetitorJobScheduled CompetitorJobType = "scheduled"
)

// CompetitorJob is a request to scrape product details for a set of
// tracked competitors.
type CompetitorJob struct {
	ID             string            `gorm:"primaryKey;type:text" json:"id"`
	Name           *string           `gorm:"type:text" json:"name,omitempty"`
	Marketplace    string            `gorm:"not null;type:text;default:com" json:"marketplace"`
	JobType        CompetitorJobType `gorm:"column:job_type;not null;type:text;default:manual" json:"job_type"`
	Status         JobStatus         `gorm:"not null;type:text;default:queued;index" json:"status"`
	TotalItems     int               `gorm:"column:total_items;default:0" json:"total_items"`
	CompletedItems int               `gorm:"column:completed_items;default:0" json:"completed_items"`
	FailedItems    int               `gorm:"column:failed_items;default:0" json:"failed_items"`
	ErrorMessage   *string           `gorm:"column:error_message;type:text" json:"error_message,omitempty"`
	CreatedAt      time.Time         `gorm:"autoCreateTime;index" json:"created_at"`
	StartedAt      *time.Time        `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt    *time.Time        `gorm:"column:completed_at" json:"completed_at,omitempty"`

	Items []CompetitorItem `gorm:"foreignKey:JobID" json:"items,omitempty"`
}

func (CompetitorJob) TableName() string { return "competitor_jobs" }

func (j *CompetitorJob) BeforeCreate(tx *gorm.DB) error {
	if j.ID == "" {
		j.ID = uuid.New().String()
	}
	return nil
}

// CompetitorItem tracks one competitor within a competitor job. The ASIN is
// snapshotted at creation time.
type CompetitorItem struct {
	ID           string     `gorm:"primaryKey;type:text" json:"id"`
	JobID        string     `gorm:"column:job_id;not null;type:text;index" json:"job_id"`
	CompetitorID string     `gorm:"column:competitor_id;not null;type:text;index" json:"competitor_id"`
	ASIN         string     `gorm:"column:asin;not null;type:text" json:"asin"`
	Status       ItemStatus `gorm:"not null;type:text;default:pending" json:"status"`
	ErrorMessage *string    `gorm:"column:error_message;type:text" json:"error_message,omitempty"`
	ScrapedAt    *time.Time `gorm:"column:scraped_at" json:"scraped_at,omitempty"`

	Job        *CompetitorJob `gorm:"foreignKey:JobID" json:"-"`
	Competitor *Competitor    `gorm:"foreignKey:CompetitorID" json:"-"`
}

func (CompetitorItem) TableName() string { return "competitor_items" }

func (i *CompetitorItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.New().String()
	}
	return nil
}
