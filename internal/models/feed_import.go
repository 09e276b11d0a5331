// internal/models/feed_import.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// FeedImport is one ingestion run, successful or not.
type FeedImport struct {
	CatalogModel
	UserID       uuid.UUID     `json:"user_id" gorm:"type:uuid;not null;index"`
	ShopID       *uuid.UUID    `json:"shop_id" gorm:"type:uuid;index"`
	URL          string        `json:"url" gorm:"size:2048;not null"`
	Trigger      ImportTrigger `json:"trigger" gorm:"type:varchar(20);not null"`
	Status       ImportStatus  `json:"status" gorm:"type:varchar(20);not null;index"`
	ErrorCode    string        `json:"error_code,omitempty" gorm:"size:50"`
	ErrorMessage string        `json:"error_message,omitempty" gorm:"type:text"`
	Checksum     string        `json:"checksum,omitempty" gorm:"size:64"`
	ArchiveKey   string        `json:"archive_key,omitempty" gorm:"size:512"`
	Categories   int           `json:"categories"`
	Products     int           `json:"products_created"`
	Offers       int           `json:"offers"`
	Parameters   int           `json:"parameters"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
}

type AuditLog struct {
	CatalogModel
	UserID       *uuid.UUID `json:"user_id" gorm:"type:uuid;index"`
	Action       string     `json:"action" gorm:"size:100;not null;index"`
	ResourceType string     `json:"resource_type" gorm:"size:50;not null;index"`
	Status       int        `json:"status"`
	NewValues    JSONB      `json:"new_values" gorm:"type:jsonb"`
	IPAddress    string     `json:"ip_address" gorm:"size:45"`
	UserAgent    string     `json:"user_agent" gorm:"type:text"`
}
