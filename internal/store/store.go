// Package store provides database operations using GORM.
package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/shelfwatch/shelfwatch/internal/model"
)

// Common errors
var (
	ErrNotFound = errors.New("record not found")
)

// Store wraps GORM DB for database operations.
type Store struct {
	db *gorm.DB
}

// New creates a new Store with the given GORM DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying GORM DB for advanced queries.
func (s *Store) DB() *gorm.DB {
	return s.db
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// --- SKUs ---

func (s *Store) GetSku(ctx context.Context, id string) (*model.Sku, error) {
	var sku model.Sku
	if err := s.db.WithContext(ctx).First(&sku, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &sku, nil
}

func (s *Store) GetSkuByCode(ctx context.Context, code string) (*model.Sku, error) {
	var sku model.Sku
	if err := s.db.WithContext(ctx).First(&sku, "sku_code = ?", code).Error; err != nil {
		return nil, notFound(err)
	}
	return &sku, nil
}

func (s *Store) ListSkus(ctx context.Context) ([]*model.Sku, error) {
	var skus []*model.Sku
	err := s.db.WithContext(ctx).Order("sku_code").Find(&skus).Error
	return skus, err
}

func (s *Store) CreateSku(ctx context.Context, sku *model.Sku) error {
	return s.db.WithContext(ctx).Create(sku).Error
}

func (s *Store) UpdateSku(ctx context.Context, sku *model.Sku) error {
	return s.db.WithContext(ctx).Save(sku).Error
}

func (s *Store) DeleteSku(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Delete(&model.Sku{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Channel SKUs ---

func (s *Store) GetChannelSku(ctx context.Context, id string) (*model.ChannelSku, error) {
	var cs model.ChannelSku
	if err := s.db.WithContext(ctx).First(&cs, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &cs, nil
}

func (s *Store) ListChannelSkus(ctx context.Context, marketplace string) ([]*model.ChannelSku, error) {
	var skus []*model.ChannelSku
	q := s.db.WithContext(ctx).Order("channel_sku_code")
	if marketplace != "" {
		q = q.Where("marketplace = ?", marketplace)
	}
	err := q.Find(&skus).Error
	return skus, err
}

func (s *Store) ListChannelSkusByIDs(ctx context.Context, ids []string) ([]*model.ChannelSku, error) {
	var skus []*model.ChannelSku
	err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&skus).Error
	return skus, err
}

// FindChannelSkuByASIN returns the channel SKU currently assigned the given
// ASIN in a marketplace, used to match scrape results back to items.
func (s *Store) FindChannelSkuByASIN(ctx context.Context, asin, marketplace string) (*model.ChannelSku, error) {
	var cs model.ChannelSku
	if err := s.db.WithContext(ctx).First(&cs, "current_asin = ? AND marketplace = ?", asin, marketplace).Error; err != nil {
		return nil, notFound(err)
	}
	return &cs, nil
}

func (s *Store) CreateChannelSku(ctx context.Context, cs *model.ChannelSku) error {
	return s.db.WithContext(ctx).Create(cs).Error
}

func (s *Store) UpdateChannelSku(ctx context.Context, cs *model.ChannelSku) error {
	return s.db.WithContext(ctx).Save(cs).Error
}

func (s *Store) DeleteChannelSku(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Delete(&model.ChannelSku{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) CreateChannelSkuAsinHistory(ctx context.Context, h *model.ChannelSkuAsinHistory) error {
	return s.db.WithContext(ctx).Create(h).Error
}

func (s *Store) ListChannelSkuAsinHistory(ctx context.Context, channelSkuID string) ([]*model.ChannelSkuAsinHistory, error) {
	var history []*model.ChannelSkuAsinHistory
	err := s.db.WithContext(ctx).
		Where("channel_sku_id = ?", channelSkuID).
		Order("changed_at DESC").
		Find(&history).Error
	return history, err
}

// --- Competitors ---

func (s *Store) GetCompetitor(ctx context.Context, id string) (*model.Competitor, error) {
	var c model.Competitor
	if err := s.db.WithContext(ctx).Preload("Data").First(&c, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (s *Store) ListCompetitors(ctx context.Context, marketplace string, activeOnly bool) ([]*model.Competitor, error) {
	var competitors []*model.Competitor
	q := s.db.WithContext(ctx).Preload("Data").Order("created_at")
	if marketplace != "" {
		q = q.Where("marketplace = ?", marketplace)
	}
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	err := q.Find(&competitors).Error
	return competitors, err
}

func (s *Store) ListCompetitorsByIDs(ctx context.Context, ids []string) ([]*model.Competitor, error) {
	var competitors []*model.Competitor
	err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&competitors).Error
	return competitors, err
}

func (s *Store) CreateCompetitor(ctx context.Context, c *model.Competitor) error {
	return s.db.WithContext(ctx).Create(c).Error
}

func (s *Store) UpdateCompetitor(ctx context.Context, c *model.Competitor) error {
	return s.db.WithContext(ctx).Save(c).Error
}

func (s *Store) DeleteCompetitor(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&model.CompetitorData{}, "competitor_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&model.CompetitorPriceHistory{}, "competitor_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&model.KeywordCompetitor{}, "competitor_id = ?", id).Error; err != nil {
			return err
		}
		result := tx.Delete(&model.Competitor{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// DueCompetitors returns active competitors whose schedule is due at the
// given time. Competitors with no schedule or no next_scrape_at are skipped.
func (s *Store) DueCompetitors(ctx context.Context, now time.Time) ([]*model.Competitor, error) {
	var competitors []*model.Competitor
	err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Where("schedule <> ?", string(model.ScheduleNone)).
		Where("next_scrape_at IS NOT NULL AND next_scrape_at <= ?", now).
		Find(&competitors).Error
	return competitors, err
}

// UpsertCompetitorData replaces the cached latest metrics for a competitor.
func (s *Store) UpsertCompetitorData(ctx context.Context, data *model.CompetitorData) error {
	var existing model.CompetitorData
	err := s.db.WithContext(ctx).First(&existing, "competitor_id = ?", data.CompetitorID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.db.WithContext(ctx).Create(data).Error
	}
	if err != nil {
		return err
	}
	data.ID = existing.ID
	return s.db.WithContext(ctx).Save(data).Error
}

func (s *Store) CreateCompetitorPriceHistory(ctx context.Context, h *model.CompetitorPriceHistory) error {
	return s.db.WithContext(ctx).Create(h).Error
}

func (s *Store) ListCompetitorPriceHistory(ctx context.Context, competitorID string, since *time.Time) ([]*model.CompetitorPriceHistory, error) {
	var history []*model.CompetitorPriceHistory
	q := s.db.WithContext(ctx).Where("competitor_id = ?", competitorID)
	if since != nil {
		q = q.Where("scraped_at >= ?", *since)
	}
	err := q.Order("scraped_at").Find(&history).Error
	return history, err
}

// --- Keywords ---

func (s *Store) GetKeyword(ctx context.Context, id string) (*model.Keyword, error) {
	var k model.Keyword
	if err := s.db.WithContext(ctx).First(&k, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &k, nil
}

func (s *Store) ListKeywords(ctx context.Context, marketplace string) ([]*model.Keyword, error) {
	var keywords []*model.Keyword
	q := s.db.WithContext(ctx).Order("keyword")
	if marketplace != "" {
		q = q.Where("marketplace = ?", marketplace)
	}
	err := q.Find(&keywords).Error
	return keywords, err
}

func (s *Store) CreateKeyword(ctx context.Context, k *model.Keyword) error {
	return s.db.WithContext(ctx).Create(k).Error
}

func (s *Store) UpdateKeyword(ctx context.Context, k *model.Keyword) error {
	return s.db.WithContext(ctx).Save(k).Error
}

func (s *Store) DeleteKeyword(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&model.KeywordChannelSku{}, "keyword_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&model.KeywordCompetitor{}, "keyword_id = ?", id).Error; err != nil {
			return err
		}
		result := tx.Delete(&model.Keyword{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *Store) LinkKeywordChannelSku(ctx context.Context, keywordID, channelSkuID string) error {
	link := &model.KeywordChannelSku{KeywordID: keywordID, ChannelSkuID: channelSkuID}
	return s.db.WithContext(ctx).
		Where("keyword_id = ? AND channel_sku_id = ?", keywordID, channelSkuID).
		FirstOrCreate(link).Error
}

func (s *Store) UnlinkKeywordChannelSku(ctx context.Context, keywordID, channelSkuID string) error {
	return s.db.WithContext(ctx).
		Delete(&model.KeywordChannelSku{}, "keyword_id = ? AND channel_sku_id = ?", keywordID, channelSkuID).Error
}

func (s *Store) LinkKeywordCompetitor(ctx context.Context, keywordID, competitorID string) error {
	link := &model.KeywordCompetitor{KeywordID: keywordID, CompetitorID: competitorID}
	return s.db.WithContext(ctx).
		Where("keyword_id = ? AND competitor_id = ?", keywordID, competitorID).
		FirstOrCreate(link).Error
}

func (s *Store) UnlinkKeywordCompetitor(ctx context.Context, keywordID, competitorID string) error {
	return s.db.WithContext(ctx).
		Delete(&model.KeywordCompetitor{}, "keyword_id = ? AND competitor_id = ?", keywordID, competitorID).Error
}

func (s *Store) ListKeywordChannelSkus(ctx context.Context, keywordID string) ([]*model.KeywordChannelSku, error) {
	var links []*model.KeywordChannelSku
	err := s.db.WithContext(ctx).Preload("ChannelSku").Where("keyword_id = ?", keywordID).Find(&links).Error
	return links, err
}

func (s *Store) ListKeywordCompetitors(ctx context.Context, keywordID string) ([]*model.KeywordCompetitor, error) {
	var links []*model.KeywordCompetitor
	err := s.db.WithContext(ctx).Preload("Competitor").Where("keyword_id = ?", keywordID).Find(&links).Error
	return links, err
}

// --- Reviews and ASIN history ---

func (s *Store) CreateReviews(ctx context.Context, reviews []*model.Review) error {
	if len(reviews) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Create(reviews).Error
}

func (s *Store) ListReviews(ctx context.Context, jobID, asin string) ([]*model.Review, error) {
	var reviews []*model.Review
	q := s.db.WithContext(ctx).Where("job_id = ?", jobID)
	if asin != "" {
		q = q.Where("asin = ?", asin)
	}
	err := q.Order("created_at").Find(&reviews).Error
	return reviews, err
}

func (s *Store) CreateAsinHistory(ctx context.Context, h *model.AsinHistory) error {
	return s.db.WithContext(ctx).Create(h).Error
}

func (s *Store) ListAsinHistory(ctx context.Context, asin string) ([]*model.AsinHistory, error) {
	var history []*model.AsinHistory
	err := s.db.WithContext(ctx).Where("asin = ?", asin).Order("scraped_at DESC").Find(&history).Error
	return history, err
}
