// internal/handlers/admin.go
package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/partner-catalog/internal/i18n"
	"github.com/javajoker/partner-catalog/internal/models"
	"github.com/javajoker/partner-catalog/internal/services"
	"github.com/javajoker/partner-catalog/internal/utils"
)

type AdminHandler struct {
	adminService *services.AdminService
}

func NewAdminHandler(adminService *services.AdminService) *AdminHandler {
	return &AdminHandler{
		adminService: adminService,
	}
}

// GET /admin/dashboard/stats
func (h *AdminHandler) GetDashboardStats(c *gin.Context) {
	stats, err := h.adminService.GetDashboardStats()
	if err != nil {
		logrus.WithError(err).Error("Failed to compute dashboard stats")
		utils.InternalErrorResponse(c, "")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"stats": stats,
	})
}

// GET /admin/users
func (h *AdminHandler) GetUsers(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	filter := services.AdminUserFilter{
		PaginationParams: params,
		Search:           c.Query("search"),
	}
	if userType := c.Query("user_type"); userType != "" {
		uType := models.UserType(userType)
		filter.UserType = &uType
	}
	if status := c.Query("status"); status != "" {
		uStatus := models.UserStatus(status)
		filter.Status = &uStatus
	}

	users, total, err := h.adminService.GetUsers(filter)
	if err != nil {
		logrus.WithError(err).Error("Failed to list users")
		utils.InternalErrorResponse(c, "")
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(users, total, params))
}

// PUT /admin/users/:id/status
func (h *AdminHandler) UpdateUserStatus(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "id"), nil)
		return
	}

	admin := currentPrincipal(c)
	if admin.UserID == uuid.Nil {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var req services.UserStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	// Validate request
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	user, err := h.adminService.UpdateUserStatus(userID, req, admin.UserID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUserNotFound):
			utils.NotFoundResponse(c, i18n.KeyAuthUserNotFound)
		case errors.Is(err, services.ErrAdminTargetProtected):
			utils.ForbiddenResponse(c, i18n.T(lang, i18n.KeyAdminTargetProtected))
		default:
			logrus.WithError(err).Error("Failed to update user status")
			utils.InternalErrorResponse(c, "")
		}
		return
	}

	utils.SuccessResponse(c, gin.H{
		"user": user,
	})
}

// GET /admin/imports
func (h *AdminHandler) GetImports(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	params := utils.GetPaginationParams(c)
	if params.Sort == "created_at" {
		params.Sort = "started_at"
	}

	filter := services.AdminImportFilter{
		PaginationParams: params,
		ErrorCode:        c.Query("error_code"),
	}
	if status := c.Query("status"); status != "" {
		iStatus := models.ImportStatus(status)
		filter.Status = &iStatus
	}
	if shopID := c.Query("shop_id"); shopID != "" {
		id, err := uuid.Parse(shopID)
		if err != nil {
			utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "shop_id"), nil)
			return
		}
		filter.ShopID = &id
	}

	imports, total, err := h.adminService.GetImports(filter)
	if err != nil {
		logrus.WithError(err).Error("Failed to list feed imports")
		utils.InternalErrorResponse(c, "")
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(imports, total, params))
}
