// internal/services/partner_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/partner-catalog/internal/apperr"
	"github.com/javajoker/partner-catalog/internal/feed"
	"github.com/javajoker/partner-catalog/internal/metrics"
	"github.com/javajoker/partner-catalog/internal/models"
	"github.com/javajoker/partner-catalog/internal/utils"
)

var ErrShopNotFound = errors.New("shop not found")

// FeedArchiver stores the raw bytes of an applied feed.
type FeedArchiver interface {
	ArchiveFeed(ctx context.Context, shopID uuid.UUID, raw []byte) (string, error)
}

type UpdateRequest struct {
	URL string `json:"url" validate:"required,feed_url,max=2048"`
}

type StateRequest struct {
	State *bool `json:"state" validate:"required"`
}

type ShopState struct {
	ShopID uuid.UUID `json:"shop_id"`
	Name   string    `json:"name"`
	URL    string    `json:"url"`
	State  bool      `json:"state"`
}

// PartnerService runs the fetch, parse and apply pipeline for shop principals
// and serves their own catalog data back to them.
type PartnerService struct {
	db      *gorm.DB
	fetcher feed.Fetcher
	catalog *CatalogService
	archive FeedArchiver
}

// NewPartnerService wires the pipeline. A nil archive disables archiving.
func NewPartnerService(db *gorm.DB, fetcher feed.Fetcher, catalog *CatalogService, archive FeedArchiver) *PartnerService {
	return &PartnerService{
		db:      db,
		fetcher: fetcher,
		catalog: catalog,
		archive: archive,
	}
}

// Authorize checks the principal in gate order: identity first, then role.
func Authorize(principal Principal) error {
	if principal.UserID == uuid.Nil {
		return apperr.Unauthenticated("authentication required")
	}
	if principal.Role != models.UserTypeShop {
		return apperr.Forbidden("only shop accounts can manage feeds")
	}
	return nil
}

// ValidateFeedURL accepts absolute http and https URLs only.
func ValidateFeedURL(raw string) error {
	if raw == "" {
		return apperr.BadRequest("url is required")
	}
	if err := utils.ValidateStruct(&UpdateRequest{URL: raw}); err != nil {
		return apperr.BadRequest("url must be an absolute http or https URL")
	}
	return nil
}

// UpdateFromURL replaces the principal's catalog with the feed at rawURL.
// Gate failures return before anything is fetched or recorded. Every run
// that passes the gate leaves a FeedImport row.
func (s *PartnerService) UpdateFromURL(ctx context.Context, principal Principal, rawURL string, trigger models.ImportTrigger) (*IngestResult, error) {
	if err := Authorize(principal); err != nil {
		return nil, err
	}
	if err := ValidateFeedURL(rawURL); err != nil {
		return nil, err
	}

	imp := &models.FeedImport{
		UserID:    principal.UserID,
		URL:       rawURL,
		Trigger:   trigger,
		StartedAt: time.Now(),
	}

	raw, result, err := s.run(ctx, principal, rawURL)
	imp.FinishedAt = time.Now()
	duration := imp.FinishedAt.Sub(imp.StartedAt)

	logger := logrus.WithFields(logrus.Fields{
		"user_id":     principal.UserID,
		"url":         rawURL,
		"trigger":     trigger,
		"duration_ms": duration.Milliseconds(),
	})

	if raw != nil {
		imp.Checksum = utils.HashBytes(raw)
	}

	// History must survive a client disconnect
	recordCtx := context.WithoutCancel(ctx)

	if err != nil {
		appErr := apperr.As(err)
		imp.Status = models.ImportStatusFailed
		imp.ErrorCode = string(appErr.Kind)
		imp.ErrorMessage = appErr.Error()
		imp.ShopID = s.shopIDFor(recordCtx, principal.UserID)
		s.recordImport(recordCtx, imp)

		metrics.RecordIngestion(string(trigger), string(appErr.Kind), 0, duration)
		logger.WithError(appErr).WithField("kind", appErr.Kind).Warn("Feed ingestion rejected")
		return nil, appErr
	}

	imp.Status = models.ImportStatusSucceeded
	imp.ShopID = &result.ShopID
	imp.Categories = result.Categories
	imp.Products = result.ProductsCreated
	imp.Offers = result.Offers
	imp.Parameters = result.Parameters

	if s.archive != nil {
		key, err := s.archive.ArchiveFeed(recordCtx, result.ShopID, raw)
		if err != nil {
			logger.WithError(err).Warn("Failed to archive feed")
		} else {
			imp.ArchiveKey = key
		}
	}
	s.recordImport(recordCtx, imp)

	metrics.RecordIngestion(string(trigger), "ok", result.Offers, duration)
	logger.WithFields(logrus.Fields{
		"shop_id":          result.ShopID,
		"categories":       result.Categories,
		"products_created": result.ProductsCreated,
		"offers":           result.Offers,
		"parameters":       result.Parameters,
	}).Info("Feed ingested")

	return result, nil
}

// run fetches, parses and applies the feed. Fetch and parse errors happen
// before the store is touched.
func (s *PartnerService) run(ctx context.Context, principal Principal, rawURL string) ([]byte, *IngestResult, error) {
	raw, err := s.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, nil, err
	}

	doc, err := feed.Parse(raw)
	if err != nil {
		return raw, nil, err
	}

	result, err := s.catalog.Ingest(ctx, principal, rawURL, doc)
	return raw, result, err
}

func (s *PartnerService) shopIDFor(ctx context.Context, userID uuid.UUID) *uuid.UUID {
	var shop models.Shop
	if err := s.db.WithContext(ctx).Select("id").Where("user_id = ?", userID).First(&shop).Error; err != nil {
		return nil
	}
	return &shop.ID
}

func (s *PartnerService) recordImport(ctx context.Context, imp *models.FeedImport) {
	if err := s.db.WithContext(ctx).Create(imp).Error; err != nil {
		logrus.WithError(err).WithField("user_id", imp.UserID).Error("Failed to record feed import")
	}
}

func (s *PartnerService) findShop(userID uuid.UUID) (*models.Shop, error) {
	var shop models.Shop
	if err := s.db.Where("user_id = ?", userID).First(&shop).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrShopNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &shop, nil
}

func (s *PartnerService) GetState(principal Principal) (*ShopState, error) {
	shop, err := s.findShop(principal.UserID)
	if err != nil {
		return nil, err
	}
	return toShopState(shop), nil
}

// SetState toggles whether the shop accepts orders. Offers are untouched.
func (s *PartnerService) SetState(principal Principal, state bool) (*ShopState, error) {
	shop, err := s.findShop(principal.UserID)
	if err != nil {
		return nil, err
	}

	if err := s.db.Model(shop).Update("state", state).Error; err != nil {
		return nil, fmt.Errorf("failed to update shop state: %w", err)
	}
	shop.State = state

	return toShopState(shop), nil
}

func toShopState(shop *models.Shop) *ShopState {
	return &ShopState{
		ShopID: shop.ID,
		Name:   shop.Name,
		URL:    shop.URL,
		State:  shop.State,
	}
}

func (s *PartnerService) ListOffers(principal Principal, params utils.PaginationParams) ([]models.ProductInfo, int64, error) {
	shop, err := s.findShop(principal.UserID)
	if err != nil {
		return nil, 0, err
	}

	query := s.db.Model(&models.ProductInfo{}).Where("shop_id = ?", shop.ID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count offers: %w", err)
	}

	var offers []models.ProductInfo
	query = utils.ApplySort(query, params, []string{"created_at", "external_id", "price", "quantity"})
	query = utils.ApplyPagination(query, params)
	if err := query.
		Preload("Product.Category").
		Preload("Parameters.Parameter").
		Find(&offers).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list offers: %w", err)
	}

	return offers, total, nil
}

func (s *PartnerService) ListImports(principal Principal, params utils.PaginationParams) ([]models.FeedImport, int64, error) {
	query := s.db.Model(&models.FeedImport{}).Where("user_id = ?", principal.UserID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count imports: %w", err)
	}

	var imports []models.FeedImport
	query = utils.ApplySort(query, params, []string{"created_at", "started_at"})
	query = utils.ApplyPagination(query, params)
	if err := query.Find(&imports).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list imports: %w", err)
	}

	return imports, total, nil
}

// ShopsWithFeeds returns every shop that has submitted a feed URL, with its
// owner loaded.
func (s *PartnerService) ShopsWithFeeds(ctx context.Context) ([]models.Shop, error) {
	var shops []models.Shop
	if err := s.db.WithContext(ctx).
		Preload("User").
		Where("url <> ''").
		Order("created_at").
		Find(&shops).Error; err != nil {
		return nil, fmt.Errorf("failed to list shops: %w", err)
	}
	return shops, nil
}
