// internal/services/admin_service.go
package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/partner-catalog/internal/models"
	"github.com/javajoker/partner-catalog/internal/utils"
)

var ErrAdminTargetProtected = errors.New("cannot modify admin user status")

type AdminService struct {
	db *gorm.DB
}

type AdminDashboardStats struct {
	TotalUsers        int64 `json:"total_users"`
	ActiveUsers       int64 `json:"active_users"`
	TotalShops        int64 `json:"total_shops"`
	OpenShops         int64 `json:"open_shops"`
	TotalCategories   int64 `json:"total_categories"`
	TotalProducts     int64 `json:"total_products"`
	TotalOffers       int64 `json:"total_offers"`
	ImportsLast24h    int64 `json:"imports_last_24h"`
	FailedImports24h  int64 `json:"failed_imports_last_24h"`
	ShopsNeverUpdated int64 `json:"shops_never_updated"`
}

type AdminUserFilter struct {
	utils.PaginationParams
	UserType *models.UserType   `json:"user_type,omitempty"`
	Status   *models.UserStatus `json:"status,omitempty"`
	Search   string             `json:"search,omitempty"`
}

type AdminImportFilter struct {
	utils.PaginationParams
	Status    *models.ImportStatus `json:"status,omitempty"`
	ShopID    *uuid.UUID           `json:"shop_id,omitempty"`
	ErrorCode string               `json:"error_code,omitempty"`
}

type UserStatusRequest struct {
	Status models.UserStatus `json:"status" validate:"required,oneof=active suspended banned"`
	Reason string            `json:"reason,omitempty" validate:"max=500"`
}

func NewAdminService(db *gorm.DB) *AdminService {
	return &AdminService{db: db}
}

// Dashboard Statistics
func (s *AdminService) GetDashboardStats() (*AdminDashboardStats, error) {
	stats := &AdminDashboardStats{}
	since := time.Now().Add(-24 * time.Hour)

	counts := []struct {
		query *gorm.DB
		dest  *int64
	}{
		{s.db.Model(&models.User{}), &stats.TotalUsers},
		{s.db.Model(&models.User{}).Where("status = ?", models.UserStatusActive), &stats.ActiveUsers},
		{s.db.Model(&models.Shop{}), &stats.TotalShops},
		{s.db.Model(&models.Shop{}).Where("state = ?", true), &stats.OpenShops},
		{s.db.Model(&models.Category{}), &stats.TotalCategories},
		{s.db.Model(&models.Product{}), &stats.TotalProducts},
		{s.db.Model(&models.ProductInfo{}), &stats.TotalOffers},
		{s.db.Model(&models.FeedImport{}).Where("started_at >= ?", since), &stats.ImportsLast24h},
		{s.db.Model(&models.FeedImport{}).
			Where("started_at >= ? AND status = ?", since, models.ImportStatusFailed), &stats.FailedImports24h},
		{s.db.Model(&models.Shop{}).Where("url = ''"), &stats.ShopsNeverUpdated},
	}

	for _, c := range counts {
		if err := c.query.Count(c.dest).Error; err != nil {
			return nil, fmt.Errorf("failed to compute dashboard stats: %w", err)
		}
	}

	return stats, nil
}

// User Management
func (s *AdminService) GetUsers(filter AdminUserFilter) ([]models.User, int64, error) {
	query := s.db.Model(&models.User{})

	// Apply filters
	if filter.UserType != nil {
		query = query.Where("user_type = ?", *filter.UserType)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Search != "" {
		searchTerm := "%" + strings.ToLower(filter.Search) + "%"
		query = query.Where("LOWER(username) LIKE ? OR LOWER(email) LIKE ?", searchTerm, searchTerm)
	}

	// Get total count
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	allowedSortFields := []string{"created_at", "updated_at", "username", "email", "user_type", "status"}
	query = utils.ApplySort(query, filter.PaginationParams, allowedSortFields)
	query = utils.ApplyPagination(query, filter.PaginationParams)

	var users []models.User
	if err := query.Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch users: %w", err)
	}

	return users, total, nil
}

// UpdateUserStatus suspends or reactivates an account. Scheduled refresh
// skips shops whose owner is not active.
func (s *AdminService) UpdateUserStatus(userID uuid.UUID, req UserStatusRequest, adminID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	// Admins can only change their own status
	if user.UserType == models.UserTypeAdmin && user.ID != adminID {
		return nil, ErrAdminTargetProtected
	}

	oldStatus := user.Status
	if err := s.db.Model(&user).Update("status", req.Status).Error; err != nil {
		return nil, fmt.Errorf("failed to update user status: %w", err)
	}
	user.Status = req.Status

	s.createAuditLog(adminID, "UPDATE_USER_STATUS", "user", models.JSONB{
		"user_id":    userID.String(),
		"old_status": string(oldStatus),
		"status":     string(req.Status),
		"reason":     req.Reason,
	})

	return &user, nil
}

// GetImports lists feed runs across all shops, newest first by default.
func (s *AdminService) GetImports(filter AdminImportFilter) ([]models.FeedImport, int64, error) {
	query := s.db.Model(&models.FeedImport{})

	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.ShopID != nil {
		query = query.Where("shop_id = ?", *filter.ShopID)
	}
	if filter.ErrorCode != "" {
		query = query.Where("error_code = ?", filter.ErrorCode)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count imports: %w", err)
	}

	query = utils.ApplySort(query, filter.PaginationParams, []string{"started_at", "finished_at", "offers"})
	query = utils.ApplyPagination(query, filter.PaginationParams)

	var imports []models.FeedImport
	if err := query.Find(&imports).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch imports: %w", err)
	}

	return imports, total, nil
}

// Helper methods
func (s *AdminService) createAuditLog(userID uuid.UUID, action, resourceType string, values models.JSONB) {
	auditLog := &models.AuditLog{
		UserID:       &userID,
		Action:       action,
		ResourceType: resourceType,
		NewValues:    values,
	}

	if err := s.db.Create(auditLog).Error; err != nil {
		logrus.WithError(err).WithField("action", action).Warn("Failed to write audit log")
	}
}
