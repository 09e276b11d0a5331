// internal/services/catalog_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/javajoker/partner-catalog/internal/apperr"
	"github.com/javajoker/partner-catalog/internal/database"
	"github.com/javajoker/partner-catalog/internal/feed"
	"github.com/javajoker/partner-catalog/internal/models"
)

const (
	insertBatchSize = 500
	lookupChunkSize = 1000
)

// Principal is the authenticated actor a request runs as.
type Principal struct {
	UserID uuid.UUID
	Role   models.UserType
}

type IngestResult struct {
	ShopID          uuid.UUID `json:"shop_id"`
	Categories      int       `json:"categories"`
	ProductsCreated int       `json:"products_created"`
	Offers          int       `json:"offers"`
	Parameters      int       `json:"parameters"`
}

// CatalogService applies validated feeds to the shared catalog.
type CatalogService struct {
	db *gorm.DB
}

func NewCatalogService(db *gorm.DB) *CatalogService {
	return &CatalogService{db: db}
}

type productKey struct {
	name       string
	categoryID uint
}

// ingestRun holds per-run lookup caches. It lives for one transaction.
type ingestRun struct {
	tx         *gorm.DB
	shop       *models.Shop
	result     *IngestResult
	categories map[uint]bool
	products   map[productKey]uuid.UUID
	parameters map[string]uuid.UUID
}

// Ingest replaces the principal's offer set with the feed's goods and merges
// categories, products and parameters into the shared catalog. Everything
// happens in one transaction: on error the store is left as it was.
func (s *CatalogService) Ingest(ctx context.Context, principal Principal, sourceURL string, doc *feed.Document) (*IngestResult, error) {
	if principal.UserID == uuid.Nil {
		return nil, apperr.Unauthenticated("principal is required")
	}

	result := &IngestResult{}
	err := database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		run := &ingestRun{
			tx:         tx,
			result:     result,
			categories: make(map[uint]bool),
			products:   make(map[productKey]uuid.UUID),
			parameters: make(map[string]uuid.UUID),
		}

		shop, err := run.resolveShop(principal.UserID, doc.Shop(), sourceURL)
		if err != nil {
			return err
		}
		run.shop = shop
		result.ShopID = shop.ID

		if err := run.mergeCategories(doc.Categories()); err != nil {
			return err
		}
		if err := run.deleteOffers(); err != nil {
			return err
		}
		return run.insertOffers(doc.Goods())
	})
	if err != nil {
		return nil, classifyIngestError(err)
	}

	return result, nil
}

func classifyIngestError(err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	if apperr.IsUniqueViolation(err) {
		return apperr.Conflict("catalog rows were changed concurrently, retry the update")
	}
	return apperr.Internal("failed to apply feed", err)
}

// resolveShop finds or creates the principal's shop and locks its row until
// the transaction ends, so runs for the same shop never interleave.
func (r *ingestRun) resolveShop(userID uuid.UUID, name, sourceURL string) (*models.Shop, error) {
	candidate := models.Shop{UserID: userID, Name: name, URL: sourceURL, State: true}
	err := r.tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&candidate).Error
	if err != nil {
		if apperr.IsUniqueViolation(err) {
			return nil, apperr.Conflict(fmt.Sprintf("shop name %q belongs to another partner", name))
		}
		return nil, fmt.Errorf("failed to create shop: %w", err)
	}

	var shop models.Shop
	if err := r.tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&shop).Error; err != nil {
		return nil, fmt.Errorf("failed to lock shop: %w", err)
	}

	if shop.Name != name || shop.URL != sourceURL {
		err := r.tx.Model(&shop).Updates(map[string]interface{}{
			"name": name,
			"url":  sourceURL,
		}).Error
		if err != nil {
			if apperr.IsUniqueViolation(err) {
				return nil, apperr.Conflict(fmt.Sprintf("shop name %q belongs to another partner", name))
			}
			return nil, fmt.Errorf("failed to update shop: %w", err)
		}
		shop.Name, shop.URL = name, sourceURL
	}

	return &shop, nil
}

func (r *ingestRun) mergeCategories(categories []feed.Category) error {
	for _, c := range categories {
		category := models.Category{ID: c.ID, Name: c.Name}
		if err := r.tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&category).Error; err != nil {
			return fmt.Errorf("failed to create category %d: %w", c.ID, err)
		}

		err := r.tx.Model(&models.Category{}).
			Where("id = ? AND name <> ?", c.ID, c.Name).
			Update("name", c.Name).Error
		if err != nil {
			return fmt.Errorf("failed to rename category %d: %w", c.ID, err)
		}

		link := models.CategoryShop{CategoryID: c.ID, ShopID: r.shop.ID}
		if err := r.tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error; err != nil {
			return fmt.Errorf("failed to link category %d: %w", c.ID, err)
		}

		r.categories[c.ID] = true
	}

	r.result.Categories = len(categories)
	return nil
}

func (r *ingestRun) deleteOffers() error {
	offerIDs := r.tx.Model(&models.ProductInfo{}).Select("id").Where("shop_id = ?", r.shop.ID)

	if err := r.tx.Where("product_info_id IN (?)", offerIDs).Delete(&models.ProductParameter{}).Error; err != nil {
		return fmt.Errorf("failed to delete offer parameters: %w", err)
	}
	if err := r.tx.Where("shop_id = ?", r.shop.ID).Delete(&models.ProductInfo{}).Error; err != nil {
		return fmt.Errorf("failed to delete offers: %w", err)
	}
	return nil
}

func (r *ingestRun) insertOffers(goods []feed.Good) error {
	if err := r.checkExternalIDs(goods); err != nil {
		return err
	}

	offers := make([]models.ProductInfo, 0, len(goods))
	var params []models.ProductParameter

	for i, g := range goods {
		productID, err := r.resolveProduct(i, g)
		if err != nil {
			return err
		}

		offer := models.ProductInfo{
			ExternalID: g.ID,
			Model:      g.Model,
			Quantity:   g.Quantity,
			Price:      g.Price,
			PriceRRC:   g.PriceRRC,
			ProductID:  productID,
			ShopID:     r.shop.ID,
		}
		offer.ID = uuid.New()
		offers = append(offers, offer)

		for _, p := range g.Parameters() {
			parameterID, err := r.resolveParameter(p.Name)
			if err != nil {
				return err
			}
			param := models.ProductParameter{
				ProductInfoID: offer.ID,
				ParameterID:   parameterID,
				Value:         p.Value,
			}
			param.ID = uuid.New()
			params = append(params, param)
		}
	}

	if len(offers) > 0 {
		if err := r.tx.CreateInBatches(&offers, insertBatchSize).Error; err != nil {
			if apperr.IsUniqueViolation(err) {
				return apperr.Conflict("an external id in the feed is already used by another shop")
			}
			return fmt.Errorf("failed to insert offers: %w", err)
		}
	}
	if len(params) > 0 {
		if err := r.tx.CreateInBatches(&params, insertBatchSize).Error; err != nil {
			return fmt.Errorf("failed to insert offer parameters: %w", err)
		}
	}

	r.result.Offers = len(offers)
	r.result.Parameters = len(params)
	return nil
}

// checkExternalIDs rejects feeds whose ids are live offers of another shop.
// The shop's own offers are already gone at this point.
func (r *ingestRun) checkExternalIDs(goods []feed.Good) error {
	var taken []uint64
	for start := 0; start < len(goods); start += lookupChunkSize {
		end := start + lookupChunkSize
		if end > len(goods) {
			end = len(goods)
		}

		ids := make([]uint64, 0, end-start)
		for _, g := range goods[start:end] {
			ids = append(ids, g.ID)
		}

		var chunk []uint64
		err := r.tx.Model(&models.ProductInfo{}).
			Where("external_id IN ? AND shop_id <> ?", ids, r.shop.ID).
			Pluck("external_id", &chunk).Error
		if err != nil {
			return fmt.Errorf("failed to check external ids: %w", err)
		}
		taken = append(taken, chunk...)
	}

	if len(taken) > 0 {
		sort.Slice(taken, func(i, j int) bool { return taken[i] < taken[j] })
		return apperr.Conflict(fmt.Sprintf("external ids already used by another shop: %v", taken))
	}
	return nil
}

// resolveProduct finds the product by (name, category). A product with the
// same name under another category is reused unchanged.
func (r *ingestRun) resolveProduct(index int, g feed.Good) (uuid.UUID, error) {
	key := productKey{name: g.Name, categoryID: g.CategoryID}
	if id, ok := r.products[key]; ok {
		return id, nil
	}

	if err := r.requireCategory(index, g.CategoryID); err != nil {
		return uuid.Nil, err
	}

	var product models.Product
	err := r.tx.Where("name = ? AND category_id = ?", g.Name, g.CategoryID).First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = r.tx.Where("name = ?", g.Name).Order("created_at, id").First(&product).Error
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		product, err = r.createProduct(g.Name, g.CategoryID)
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to resolve product %q: %w", g.Name, err)
	}

	r.products[key] = product.ID
	return product.ID, nil
}

func (r *ingestRun) createProduct(name string, categoryID uint) (models.Product, error) {
	product := models.Product{Name: name, CategoryID: categoryID}
	res := r.tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&product)
	if res.Error != nil {
		return product, res.Error
	}
	if res.RowsAffected == 1 {
		r.result.ProductsCreated++
		return product, nil
	}

	// Lost the race to a concurrent run
	var existing models.Product
	err := r.tx.Where("name = ? AND category_id = ?", name, categoryID).First(&existing).Error
	return existing, err
}

func (r *ingestRun) requireCategory(index int, categoryID uint) error {
	if known, ok := r.categories[categoryID]; ok {
		if known {
			return nil
		}
	} else {
		var count int64
		if err := r.tx.Model(&models.Category{}).Where("id = ?", categoryID).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to look up category %d: %w", categoryID, err)
		}
		r.categories[categoryID] = count > 0
		if count > 0 {
			return nil
		}
	}

	return apperr.Schema(fmt.Sprintf("goods[%d].category", index), fmt.Sprintf("unknown category %d", categoryID))
}

func (r *ingestRun) resolveParameter(name string) (uuid.UUID, error) {
	if id, ok := r.parameters[name]; ok {
		return id, nil
	}

	var parameter models.Parameter
	err := r.tx.Where("name = ?", name).First(&parameter).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		parameter = models.Parameter{Name: name}
		if err = r.tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&parameter).Error; err == nil {
			err = r.tx.Where("name = ?", name).First(&parameter).Error
		}
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to resolve parameter %q: %w", name, err)
	}

	r.parameters[name] = parameter.ID
	return parameter.ID, nil
}
