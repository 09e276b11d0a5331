// internal/models/shop.go
package models

import (
	"github.com/google/uuid"
)

// Shop is the supplier storefront. One per principal, never deleted by ingestion.
type Shop struct {
	CatalogModel
	Name   string    `json:"name" gorm:"size:50;not null;uniqueIndex"`
	URL    string    `json:"url" gorm:"size:2048"`
	State  bool      `json:"state" gorm:"not null;default:true"`
	UserID uuid.UUID `json:"user_id" gorm:"type:uuid;not null;uniqueIndex"`

	// Relationships
	User       *User      `json:"user,omitempty" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Categories []Category `json:"categories,omitempty" gorm:"many2many:category_shops"`
}
