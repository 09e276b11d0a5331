// internal/handlers/partner.go
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

type PartnerHandler struct {
	partnerService *services.PartnerService
}

func NewPartnerHandler(partnerService *services.PartnerService) *PartnerHandler {
	return &PartnerHandler{
		partnerService: partnerService,
	}
}

// currentPrincipal reads the identity AuthRequired put in the context. A
// missing or malformed identity yields the zero Principal.
func currentPrincipal(c *gin.Context) services.Principal {
	userIDStr, _ := utils.GetUserIDFromContext(c)
	userType, _ := utils.GetUserTypeFromContext(c)

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return services.Principal{}
	}
	return services.Principal{UserID: userID, Role: models.UserType(userType)}
}

// POST /partner/update
func (h *PartnerHandler) Update(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	var req services.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyPartnerInvalidURL), err.Error())
		return
	}

	_, err := h.partnerService.UpdateFromURL(c.Request.Context(), currentPrincipal(c), req.URL, models.ImportTriggerRequest)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, nil)
}

// GET /partner/state
func (h *PartnerHandler) GetState(c *gin.Context) {
	state, err := h.partnerService.GetState(currentPrincipal(c))
	if err != nil {
		h.respondShopError(c, err)
		return
	}

	utils.SuccessResponse(c, state)
}

// POST /partner/state
func (h *PartnerHandler) SetState(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	var req services.StateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "state"), err.Error())
		return
	}

	// Validate request
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	state, err := h.partnerService.SetState(currentPrincipal(c), *req.State)
	if err != nil {
		h.respondShopError(c, err)
		return
	}

	utils.SuccessResponse(c, state)
}

// GET /partner/offers
func (h *PartnerHandler) ListOffers(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	offers, total, err := h.partnerService.ListOffers(currentPrincipal(c), params)
	if err != nil {
		h.respondShopError(c, err)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(offers, total, params))
}

// GET /partner/imports
func (h *PartnerHandler) ListImports(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	if params.Sort == "created_at" {
		params.Sort = "started_at"
	}

	imports, total, err := h.partnerService.ListImports(currentPrincipal(c), params)
	if err != nil {
		logrus.WithError(err).Error("Failed to list feed imports")
		utils.InternalErrorResponse(c, "")
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(imports, total, params))
}

func (h *PartnerHandler) respondShopError(c *gin.Context, err error) {
	if errors.Is(err, services.ErrShopNotFound) {
		utils.NotFoundResponse(c, i18n.KeyPartnerShopNotFound)
		return
	}
	logrus.WithError(err).Error("Partner request failed")
	utils.InternalErrorResponse(c, "")
}
