package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"crm-service/internal/apperr"
	"crm-service/internal/middleware"
	"crm-service/internal/model"
	"crm-service/pkg/logger"
	"crm-service/prometheus"
)

// GetCompany returns the caller's own company.
func (h *Handler) GetCompany(c echo.Context) error {
	company, err := h.Store.CompanyByID(c.Request().Context(), middleware.CallerCompanyID(c))
	if err != nil {
		return respondError(c, err)
	}
	if company == nil {
		return respondError(c, &apperr.Error{Kind: apperr.NotFound, Msg: "company not found"})
	}
	return c.JSON(http.StatusOK, company)
}

// PatchCompany partially updates the caller's own company. Admin only;
// an alias change re-checks global uniqueness.
func (h *Handler) PatchCompany(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("company", "update")

	if middleware.CallerRole(c) != model.RoleAdmin {
		return respondError(c, &apperr.Error{Kind: apperr.Forbidden, Msg: "access denied"})
	}

	var patch model.Patch
	if err := c.Bind(&patch); err != nil {
		log.Error("Failed to parse company patch", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	defer prometheus.TrackStoreOperation("update")(time.Now())
	updated, err := h.Store.PatchCompany(c.Request().Context(), middleware.CallerCompanyID(c), patch)
	if err != nil {
		return respondError(c, err)
	}

	log.Info("Company updated", zap.String("company_id", updated.ID))
	return c.JSON(http.StatusOK, updated)
}

// DeleteCompany removes the caller's company. Admin only, and the store
// refuses while any user record remains.
func (h *Handler) DeleteCompany(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("company", "delete")

	if middleware.CallerRole(c) != model.RoleAdmin {
		return respondError(c, &apperr.Error{Kind: apperr.Forbidden, Msg: "access denied"})
	}

	defer prometheus.TrackStoreOperation("delete")(time.Now())
	if err := h.Store.DeleteCompany(c.Request().Context(), middleware.CallerCompanyID(c)); err != nil {
		return respondError(c, err)
	}

	log.Info("Company deleted", zap.String("company_id", middleware.CallerCompanyID(c)))
	return c.NoContent(http.StatusNoContent)
}
