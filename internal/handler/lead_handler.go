package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"crm-service/internal/middleware"
	"crm-service/internal/model"
	"crm-service/pkg/logger"
	"crm-service/prometheus"
)

// ListLeads lists the caller's company leads, newest first. With a ?q=
// term it switches to the tenant-scoped normalized search over name,
// phone and email.
func (h *Handler) ListLeads(c echo.Context) error {
	companyID := middleware.CallerCompanyID(c)
	defer prometheus.TrackStoreOperation("query")(time.Now())

	if term := c.QueryParam("q"); term != "" {
		matches, err := h.Store.SearchLeads(c.Request().Context(), companyID, term)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, echo.Map{"items": matches})
	}

	pageSize, cursor := pageParams(c)
	leads, next, more, err := h.Store.LeadsByCompany(c.Request().Context(), companyID, pageSize, cursor)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, pageResponse(leads, next, more))
}

// ListLeadsByProperty lists the leads interested in one property.
func (h *Handler) ListLeadsByProperty(c echo.Context) error {
	pageSize, cursor := pageParams(c)
	defer prometheus.TrackStoreOperation("query")(time.Now())
	leads, next, more, err := h.Store.LeadsByProperty(c.Request().Context(),
		c.Param("id"), middleware.CallerCompanyID(c), pageSize, cursor)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, pageResponse(leads, next, more))
}

// GetLead fetches one lead in the caller's company.
func (h *Handler) GetLead(c echo.Context) error {
	lead, err := h.Store.LeadForCompany(c.Request().Context(), c.Param("id"), middleware.CallerCompanyID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, lead)
}

// CreateLead adds a lead to the caller's company.
func (h *Handler) CreateLead(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("lead", "create")

	var lead model.Lead
	if err := c.Bind(&lead); err != nil {
		log.Error("Failed to parse lead", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if lead.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}
	lead.CompanyID = middleware.CallerCompanyID(c)
	lead.History = nil

	defer prometheus.TrackStoreOperation("insert")(time.Now())
	if err := h.Store.CreateLead(c.Request().Context(), &lead); err != nil {
		return respondError(c, err)
	}

	log.Info("Lead created", zap.String("lead_id", lead.ID))
	return c.JSON(http.StatusCreated, lead)
}

// PatchLead partially updates a lead in the caller's company. The actor
// is recorded in the lead's history.
func (h *Handler) PatchLead(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("lead", "update")

	var patch model.Patch
	if err := c.Bind(&patch); err != nil {
		log.Error("Failed to parse lead patch", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	defer prometheus.TrackStoreOperation("update")(time.Now())
	updated, err := h.Store.PatchLead(c.Request().Context(), c.Param("id"),
		middleware.CallerCompanyID(c), patch, middleware.CallerUserID(c))
	if err != nil {
		return respondError(c, err)
	}

	log.Info("Lead updated", zap.String("lead_id", updated.ID))
	return c.JSON(http.StatusOK, updated)
}

// DeleteLead removes a lead from the caller's company.
func (h *Handler) DeleteLead(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("lead", "delete")

	defer prometheus.TrackStoreOperation("delete")(time.Now())
	if err := h.Store.DeleteLead(c.Request().Context(), c.Param("id"), middleware.CallerCompanyID(c)); err != nil {
		return respondError(c, err)
	}

	log.Info("Lead deleted", zap.String("lead_id", c.Param("id")))
	return c.NoContent(http.StatusNoContent)
}

// AttachLeadFile registers a file on a lead; bytes go to the object
// store, only metadata enters the entity.
func (h *Handler) AttachLeadFile(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("lead", "attach_file")

	var req struct {
		Name string `json:"name"`
		Type string `json:"type"`
		Size int64  `json:"size"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse file metadata", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}

	companyID := middleware.CallerCompanyID(c)
	leadID := c.Param("id")
	key := fmt.Sprintf("%s/leads/%s/%s", companyID, leadID, req.Name)

	uploadURL, err := h.Blob.PresignUpload(c.Request().Context(), key, req.Type, h.PresignTTL)
	if err != nil {
		log.Error("Presign failed", zap.String("key", key), zap.Error(err))
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "object store unavailable"})
	}
	downloadURL, err := h.Blob.PresignDownload(c.Request().Context(), key, h.PresignTTL)
	if err != nil {
		log.Error("Presign failed", zap.String("key", key), zap.Error(err))
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "object store unavailable"})
	}

	file := model.FileMeta{
		Name:  req.Name,
		Type:  req.Type,
		Size:  req.Size,
		URL:   downloadURL,
		S3Key: key,
	}

	defer prometheus.TrackStoreOperation("update")(time.Now())
	updated, err := h.Store.AttachLeadFile(c.Request().Context(), leadID, companyID, file)
	if err != nil {
		return respondError(c, err)
	}

	log.Info("Lead file attached", zap.String("lead_id", leadID), zap.String("key", key))
	return c.JSON(http.StatusCreated, echo.Map{
		"lead":      updated,
		"uploadUrl": uploadURL,
	})
}
