// internal/models/catalog.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Category ids come from partner feeds and are authoritative.
type Category struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Name      string    `json:"name" gorm:"size:50;not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Shops []Shop `json:"shops,omitempty" gorm:"many2many:category_shops"`
}

type CategoryShop struct {
	CategoryID uint      `gorm:"primaryKey"`
	ShopID     uuid.UUID `gorm:"type:uuid;primaryKey"`
}

func (CategoryShop) TableName() string { return "category_shops" }

type Product struct {
	CatalogModel
	Name       string `json:"name" gorm:"size:100;not null;uniqueIndex:idx_products_name_category"`
	CategoryID uint   `json:"category_id" gorm:"not null;uniqueIndex:idx_products_name_category"`

	Category *Category `json:"category,omitempty" gorm:"foreignKey:CategoryID;constraint:OnDelete:CASCADE"`
}

// ProductInfo is a shop's offer for a product. ExternalID is the feed's key.
type ProductInfo struct {
	CatalogModel
	ExternalID uint64    `json:"external_id" gorm:"not null;uniqueIndex"`
	Model      string    `json:"model" gorm:"size:80"`
	Quantity   uint      `json:"quantity" gorm:"not null"`
	Price      uint      `json:"price" gorm:"not null"`
	PriceRRC   uint      `json:"price_rrc" gorm:"column:price_rrc;not null"`
	ProductID  uuid.UUID `json:"product_id" gorm:"type:uuid;not null;index"`
	ShopID     uuid.UUID `json:"shop_id" gorm:"type:uuid;not null;index"`

	Product    *Product           `json:"product,omitempty" gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	Shop       *Shop              `json:"-" gorm:"foreignKey:ShopID;constraint:OnDelete:CASCADE"`
	Parameters []ProductParameter `json:"parameters,omitempty" gorm:"foreignKey:ProductInfoID;constraint:OnDelete:CASCADE"`
}

type Parameter struct {
	CatalogModel
	Name string `json:"name" gorm:"size:50;not null;uniqueIndex"`
}

type ProductParameter struct {
	CatalogModel
	ProductInfoID uuid.UUID `json:"product_info_id" gorm:"type:uuid;not null;uniqueIndex:idx_product_parameters_offer_param"`
	ParameterID   uuid.UUID `json:"parameter_id" gorm:"type:uuid;not null;uniqueIndex:idx_product_parameters_offer_param"`
	Value         string    `json:"value" gorm:"size:100;not null"`

	Parameter *Parameter `json:"parameter,omitempty" gorm:"foreignKey:ParameterID;constraint:OnDelete:CASCADE"`
}
