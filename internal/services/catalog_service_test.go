package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/javajoker/partner-catalog/internal/apperr"
	"github.com/javajoker/partner-catalog/internal/database/dbtest"
	"github.com/javajoker/partner-catalog/internal/feed"
	"github.com/javajoker/partner-catalog/internal/models"
)

const acmeFeed = `shop: Acme
categories:
  - id: 1
    name: Tools
goods:
  - id: 100
    category: 1
    name: Hammer
    model: H1
    price: 500
    price_rrc: 600
    quantity: 10
    parameters:
      Weight: 1kg
`

const acmeSecondFeed = `shop: Acme
categories:
  - id: 1
    name: Tools
  - id: 2
    name: Garden
goods:
  - id: 101
    category: 1
    name: Screwdriver
    price: 150
    price_rrc: 200
    quantity: 3
    parameters:
      Length: 20cm
      Tip: PH2
  - id: 102
    category: 2
    name: Rake
    price: 900
    price_rrc: 990
    quantity: 1
    parameters: {}
`

const feedURL = "https://acme.example/feed.yaml"

func createPrincipal(t *testing.T, db *gorm.DB, username string, role models.UserType) Principal {
	t.Helper()
	user := &models.User{
		Username: username,
		Email:    username + "@example.com",
		UserType: role,
		Status:   models.UserStatusActive,
	}
	if err := user.SetPassword("Secret123!"); err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return Principal{UserID: user.ID, Role: role}
}

func parseFeed(t *testing.T, raw string) *feed.Document {
	t.Helper()
	doc, err := feed.Parse([]byte(raw))
	if err != nil {
		t.Fatalf("failed to parse feed: %v", err)
	}
	return doc
}

// catalogSnapshot is a comparable view of the store used to assert that
// failed runs change nothing.
type catalogSnapshot struct {
	Shops      []string
	Categories []string
	Links      []string
	Products   []string
	Offers     []string
	Params     []string
}

func snapshot(db *gorm.DB) catalogSnapshot {
	var s catalogSnapshot
	db.Model(&models.Shop{}).Order("name").
		Select("name || '|' || url").Scan(&s.Shops)
	db.Model(&models.Category{}).Order("id").
		Select("CAST(id AS TEXT) || '|' || name").Scan(&s.Categories)
	db.Table("category_shops").Joins("JOIN shops ON shops.id = category_shops.shop_id").
		Order("category_id, shops.name").
		Select("CAST(category_id AS TEXT) || '|' || shops.name").Scan(&s.Links)
	db.Model(&models.Product{}).Order("name, category_id").
		Select("name || '|' || CAST(category_id AS TEXT)").Scan(&s.Products)
	db.Table("product_infos").Joins("JOIN shops ON shops.id = product_infos.shop_id").
		Order("external_id").
		Select("CAST(external_id AS TEXT) || '|' || shops.name || '|' || CAST(price AS TEXT)").Scan(&s.Offers)
	db.Table("product_parameters").
		Joins("JOIN parameters ON parameters.id = product_parameters.parameter_id").
		Joins("JOIN product_infos ON product_infos.id = product_parameters.product_info_id").
		Order("product_infos.external_id, parameters.name").
		Select("CAST(product_infos.external_id AS TEXT) || '|' || parameters.name || '|' || product_parameters.value").
		Scan(&s.Params)
	return s
}

type CatalogServiceTestSuite struct {
	suite.Suite
	db      *gorm.DB
	service *CatalogService
	ctx     context.Context
}

func (suite *CatalogServiceTestSuite) SetupTest() {
	suite.db = dbtest.Open(suite.T())
	suite.service = NewCatalogService(suite.db)
	suite.ctx = context.Background()
}

func (suite *CatalogServiceTestSuite) ingest(p Principal, raw string) (*IngestResult, error) {
	return suite.service.Ingest(suite.ctx, p, feedURL, parseFeed(suite.T(), raw))
}

func (suite *CatalogServiceTestSuite) count(model interface{}) int64 {
	var n int64
	suite.Require().NoError(suite.db.Model(model).Count(&n).Error)
	return n
}

func (suite *CatalogServiceTestSuite) TestAcmeEndToEnd() {
	acme := createPrincipal(suite.T(), suite.db, "acme_user", models.UserTypeShop)

	result, err := suite.ingest(acme, acmeFeed)
	suite.Require().NoError(err)
	suite.Equal(1, result.Categories)
	suite.Equal(1, result.ProductsCreated)
	suite.Equal(1, result.Offers)
	suite.Equal(1, result.Parameters)

	var shop models.Shop
	suite.Require().NoError(suite.db.Preload("Categories").First(&shop, "user_id = ?", acme.UserID).Error)
	suite.Equal("Acme", shop.Name)
	suite.Equal(feedURL, shop.URL)
	suite.True(shop.State)
	suite.Equal(result.ShopID, shop.ID)
	suite.Require().Len(shop.Categories, 1)
	suite.Equal("Tools", shop.Categories[0].Name)

	var offer models.ProductInfo
	suite.Require().NoError(suite.db.
		Preload("Product.Category").
		Preload("Parameters.Parameter").
		First(&offer, "external_id = ?", 100).Error)
	suite.Equal(shop.ID, offer.ShopID)
	suite.Equal(uint(500), offer.Price)
	suite.Equal(uint(600), offer.PriceRRC)
	suite.Equal(uint(10), offer.Quantity)
	suite.Equal("H1", offer.Model)
	suite.Equal("Hammer", offer.Product.Name)
	suite.Equal(uint(1), offer.Product.CategoryID)
	suite.Equal("Tools", offer.Product.Category.Name)
	suite.Require().Len(offer.Parameters, 1)
	suite.Equal("Weight", offer.Parameters[0].Parameter.Name)
	suite.Equal("1kg", offer.Parameters[0].Value)

	suite.Equal(int64(1), suite.count(&models.Product{}))
	suite.Equal(int64(1), suite.count(&models.Parameter{}))
}

func (suite *CatalogServiceTestSuite) TestIngestIsIdempotent() {
	acme := createPrincipal(suite.T(), suite.db, "acme_user", models.UserTypeShop)

	_, err := suite.ingest(acme, acmeSecondFeed)
	suite.Require().NoError(err)
	first := snapshot(suite.db)

	result, err := suite.ingest(acme, acmeSecondFeed)
	suite.Require().NoError(err)
	suite.Equal(0, result.ProductsCreated)
	suite.Equal(first, snapshot(suite.db))
	suite.Equal(int64(1), suite.count(&models.Shop{}))
}

func (suite *CatalogServiceTestSuite) TestIngestReplacesOfferSet() {
	acme := createPrincipal(suite.T(), suite.db, "acme_user", models.UserTypeShop)

	_, err := suite.ingest(acme, acmeFeed)
	suite.Require().NoError(err)
	_, err = suite.ingest(acme, acmeSecondFeed)
	suite.Require().NoError(err)

	var externalIDs []uint64
	suite.db.Model(&models.ProductInfo{}).Order("external_id").Pluck("external_id", &externalIDs)
	suite.Equal([]uint64{101, 102}, externalIDs)

	// Offer parameters of the replaced offer are gone, shared rows stay
	suite.Equal(int64(2), suite.count(&models.ProductParameter{}))
	suite.Equal(int64(3), suite.count(&models.Parameter{}))
	suite.Equal(int64(3), suite.count(&models.Product{}))
}

func (suite *CatalogServiceTestSuite) TestEmptyGoodsClearsOffers() {
	acme := createPrincipal(suite.T(), suite.db, "acme_user", models.UserTypeShop)

	_, err := suite.ingest(acme, acmeFeed)
	suite.Require().NoError(err)

	result, err := suite.ingest(acme, "shop: Acme\ncategories: []\ngoods: []\n")
	suite.Require().NoError(err)
	suite.Equal(0, result.Offers)
	suite.Zero(suite.count(&models.ProductInfo{}))
	suite.Zero(suite.count(&models.ProductParameter{}))
	suite.Equal(int64(1), suite.count(&models.Category{}), "categories are never removed")
}

func (suite *CatalogServiceTestSuite) TestCategoriesAreSharedBetweenShops() {
	acme := createPrincipal(suite.T(), suite.db, "acme_user", models.UserTypeShop)
	bolt := createPrincipal(suite.T(), suite.db, "bolt_user", models.UserTypeShop)

	_, err := suite.ingest(acme, acmeFeed)
	suite.Require().NoError(err)
	_, err = suite.ingest(bolt, `shop: Bolt
categories:
  - id: 1
    name: Hand Tools
goods:
  - id: 200
    category: 1
    name: Wrench
    price: 300
    price_rrc: 350
    quantity: 4
    parameters: {}
`)
	suite.Require().NoError(err)

	suite.Equal(int64(1), suite.count(&models.Category{}))
	suite.Equal(int64(2), suite.count(&models.CategoryShop{}))

	var category models.Category
	suite.Require().NoError(suite.db.First(&category, 1).Error)
	suite.Equal("Hand Tools", category.Name, "last writer names the category")

	// Re-ingesting Acme keeps Bolt's link
	_, err = suite.ingest(acme, acmeFeed)
	suite.Require().NoError(err)
	suite.Equal(int64(2), suite.count(&models.CategoryShop{}))
}

func (suite *CatalogServiceTestSuite) TestExternalIDOwnedByAnotherShopConflicts() {
	acme := createPrincipal(suite.T(), suite.db, "acme_user", models.UserTypeShop)
	bolt := createPrincipal(suite.T(), suite.db, "bolt_user", models.UserTypeShop)

	_, err := suite.ingest(acme, acmeFeed)
	suite.Require().NoError(err)
	_, err = suite.ingest(bolt, `shop: Bolt
categories:
  - id: 3
    name: Fasteners
goods:
  - id: 300
    category: 3
    name: Bolt M8
    price: 10
    price_rrc: 12
    quantity: 1000
    parameters:
      Thread: M8
`)
	suite.Require().NoError(err)
	before := snapshot(suite.db)

	_, err = suite.ingest(bolt, `shop: Bolt
categories:
  - id: 3
    name: Fasteners
goods:
  - id: 100
    category: 3
    name: Nut M8
    price: 5
    price_rrc: 6
    quantity: 10
    parameters: {}
`)
	suite.Require().Error(err)
	suite.Equal(apperr.KindConflict, apperr.KindOf(err))
	suite.Contains(err.Error(), "100")

	suite.Equal(before, snapshot(suite.db))
}

func (suite *CatalogServiceTestSuite) TestFailureMidwayLeavesStoreUntouched() {
	acme := createPrincipal(suite.T(), suite.db, "acme_user", models.UserTypeShop)

	_, err := suite.ingest(acme, acmeFeed)
	suite.Require().NoError(err)
	before := snapshot(suite.db)

	err = suite.db.Callback().Create().Before("gorm:create").Register("test:fail_offer_parameters", func(tx *gorm.DB) {
		if tx.Statement.Table == "product_parameters" {
			tx.AddError(errors.New("disk full"))
		}
	})
	suite.Require().NoError(err)

	_, err = suite.ingest(acme, acmeSecondFeed)
	suite.Require().Error(err)
	suite.Equal(apperr.KindInternal, apperr.KindOf(err))
	suite.ErrorContains(err, "disk full")

	suite.Equal(before, snapshot(suite.db))
}

func (suite *CatalogServiceTestSuite) TestProductIsReusedAcrossCategories() {
	acme := createPrincipal(suite.T(), suite.db, "acme_user", models.UserTypeShop)
	bolt := createPrincipal(suite.T(), suite.db, "bolt_user", models.UserTypeShop)

	_, err := suite.ingest(acme, acmeFeed)
	suite.Require().NoError(err)

	result, err := suite.ingest(bolt, `shop: Bolt
categories:
  - id: 7
    name: Carpentry
goods:
  - id: 700
    category: 7
    name: Hammer
    price: 450
    price_rrc: 500
    quantity: 2
    parameters: {}
`)
	suite.Require().NoError(err)
	suite.Equal(0, result.ProductsCreated)

	var products []models.Product
	suite.Require().NoError(suite.db.Find(&products).Error)
	suite.Require().Len(products, 1)
	suite.Equal(uint(1), products[0].CategoryID, "existing product keeps its category")

	var offer models.ProductInfo
	suite.Require().NoError(suite.db.First(&offer, "external_id = ?", 700).Error)
	suite.Equal(products[0].ID, offer.ProductID)
}

func (suite *CatalogServiceTestSuite) TestSameNameInOneFeedResolvesToOneProduct() {
	acme := createPrincipal(suite.T(), suite.db, "acme_user", models.UserTypeShop)

	var goods string
	for i := 0; i < 3; i++ {
		goods += fmt.Sprintf(`  - id: %d
    category: 1
    name: Hammer
    model: H%d
    price: 500
    price_rrc: 600
    quantity: 1
    parameters:
      Weight: 1kg
`, 100+i, i)
	}

	result, err := suite.ingest(acme, "shop: Acme\ncategories:\n  - id: 1\n    name: Tools\ngoods:\n"+goods)
	suite.Require().NoError(err)
	suite.Equal(1, result.ProductsCreated)
	suite.Equal(3, result.Offers)
	suite.Equal(3, result.Parameters)
	suite.Equal(int64(1), suite.count(&models.Product{}))
	suite.Equal(int64(1), suite.count(&models.Parameter{}))
}

func (suite *CatalogServiceTestSuite) TestUnknownCategoryIsSchemaError() {
	acme := createPrincipal(suite.T(), suite.db, "acme_user", models.UserTypeShop)

	_, err := suite.ingest(acme, `shop: Acme
categories:
  - id: 1
    name: Tools
goods:
  - id: 100
    category: 9
    name: Hammer
    price: 500
    price_rrc: 600
    quantity: 10
    parameters: {}
`)
	suite.Require().Error(err)
	appErr := apperr.As(err)
	suite.Equal(apperr.KindSchema, appErr.Kind)
	suite.Equal("goods[0].category", appErr.Field)

	suite.Zero(suite.count(&models.Shop{}))
	suite.Zero(suite.count(&models.Category{}))
}

func (suite *CatalogServiceTestSuite) TestCategoryKnownFromAnotherFeedIsAccepted() {
	acme := createPrincipal(suite.T(), suite.db, "acme_user", models.UserTypeShop)
	bolt := createPrincipal(suite.T(), suite.db, "bolt_user", models.UserTypeShop)

	_, err := suite.ingest(acme, acmeFeed)
	suite.Require().NoError(err)

	_, err = suite.ingest(bolt, `shop: Bolt
categories: []
goods:
  - id: 200
    category: 1
    name: Chisel
    price: 100
    price_rrc: 120
    quantity: 1
    parameters: {}
`)
	suite.Require().NoError(err)
	suite.Equal(int64(1), suite.count(&models.CategoryShop{}), "no link without a category entry")
}

func (suite *CatalogServiceTestSuite) TestShopNameOwnedByAnotherPrincipalConflicts() {
	acme := createPrincipal(suite.T(), suite.db, "acme_user", models.UserTypeShop)
	impostor := createPrincipal(suite.T(), suite.db, "impostor", models.UserTypeShop)

	_, err := suite.ingest(acme, acmeFeed)
	suite.Require().NoError(err)
	before := snapshot(suite.db)

	_, err = suite.ingest(impostor, "shop: Acme\ncategories: []\ngoods: []\n")
	suite.Require().Error(err)
	suite.Equal(apperr.KindConflict, apperr.KindOf(err))
	suite.Equal(before, snapshot(suite.db))
}

func (suite *CatalogServiceTestSuite) TestShopIsRenamedFromFeed() {
	acme := createPrincipal(suite.T(), suite.db, "acme_user", models.UserTypeShop)

	first, err := suite.ingest(acme, acmeFeed)
	suite.Require().NoError(err)
	second, err := suite.ingest(acme, "shop: Acme Tools\ncategories: []\ngoods: []\n")
	suite.Require().NoError(err)

	suite.Equal(first.ShopID, second.ShopID)
	var shop models.Shop
	suite.Require().NoError(suite.db.First(&shop, "id = ?", second.ShopID).Error)
	suite.Equal("Acme Tools", shop.Name)
}

func (suite *CatalogServiceTestSuite) TestMissingPrincipalIsUnauthenticated() {
	_, err := suite.ingest(Principal{UserID: uuid.Nil}, acmeFeed)
	suite.Equal(apperr.KindUnauthenticated, apperr.KindOf(err))
}

// ingestConcurrently runs each feed for its principal in its own goroutine
// and returns the errors in input order.
func (suite *CatalogServiceTestSuite) ingestConcurrently(principals []Principal, feeds []string) []error {
	docs := make([]*feed.Document, len(feeds))
	for i, raw := range feeds {
		docs[i] = parseFeed(suite.T(), raw)
	}

	errs := make([]error, len(feeds))
	var wg sync.WaitGroup
	for i := range docs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = suite.service.Ingest(suite.ctx, principals[i], feedURL, docs[i])
		}(i)
	}
	wg.Wait()
	return errs
}

func (suite *CatalogServiceTestSuite) TestConcurrentFeedsForOneShopDoNotInterleave() {
	acme := createPrincipal(suite.T(), suite.db, "acme_user", models.UserTypeShop)

	for round := 0; round < 5; round++ {
		errs := suite.ingestConcurrently(
			[]Principal{acme, acme},
			[]string{acmeFeed, acmeSecondFeed},
		)
		suite.Require().NoError(errs[0])
		suite.Require().NoError(errs[1])

		var externalIDs []uint64
		suite.db.Model(&models.ProductInfo{}).Order("external_id").Pluck("external_id", &externalIDs)
		suite.Contains([][]uint64{{100}, {101, 102}}, externalIDs, "offers must match exactly one feed")

		var params int64
		suite.Require().NoError(suite.db.Model(&models.ProductParameter{}).Count(&params).Error)
		if len(externalIDs) == 1 {
			suite.Equal(int64(1), params)
		} else {
			suite.Equal(int64(2), params)
		}
		suite.Equal(int64(1), suite.count(&models.Shop{}))
	}
}

func (suite *CatalogServiceTestSuite) TestConcurrentShopsShareNewCategory() {
	acme := createPrincipal(suite.T(), suite.db, "acme_user", models.UserTypeShop)
	bolt := createPrincipal(suite.T(), suite.db, "bolt_user", models.UserTypeShop)

	errs := suite.ingestConcurrently([]Principal{acme, bolt}, []string{acmeFeed, `shop: Bolt
categories:
  - id: 1
    name: Tools
goods:
  - id: 200
    category: 1
    name: Wrench
    price: 300
    price_rrc: 350
    quantity: 4
    parameters: {}
`})
	suite.Require().NoError(errs[0])
	suite.Require().NoError(errs[1])

	var categories int64
	suite.Require().NoError(suite.db.Model(&models.Category{}).Where("id = ?", 1).Count(&categories).Error)
	suite.Equal(int64(1), categories)

	var links int64
	suite.Require().NoError(suite.db.Model(&models.CategoryShop{}).Where("category_id = ?", 1).Count(&links).Error)
	suite.Equal(int64(2), links)

	suite.Equal([]string{"1|Acme", "1|Bolt"}, snapshot(suite.db).Links)
}

func TestCatalogServiceSuite(t *testing.T) {
	suite.Run(t, new(CatalogServiceTestSuite))
}
