package handler

import (
	"fmt"
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

func requireManageProperties(c echo.Context) error {
	if !model.HasPermission(middleware.CallerRole(c), model.CapManageProperties) {
		return &apperr.Error{Kind: apperr.Forbidden, Msg: "access denied"}
	}
	return nil
}

// ListProperties lists the caller's company properties, newest first.
// With a ?q= term it switches to the tenant-scoped normalized search
// over name and address.
func (h *Handler) ListProperties(c echo.Context) error {
	companyID := middleware.CallerCompanyID(c)
	defer prometheus.TrackStoreOperation("query")(time.Now())

	if term := c.QueryParam("q"); term != "" {
		matches, err := h.Store.SearchProperties(c.Request().Context(), companyID, term)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, echo.Map{"items": matches})
	}

	pageSize, cursor := pageParams(c)
	properties, next, more, err := h.Store.PropertiesByCompany(c.Request().Context(), companyID, pageSize, cursor)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, pageResponse(properties, next, more))
}

// GetProperty fetches one property in the caller's company.
func (h *Handler) GetProperty(c echo.Context) error {
	property, err := h.Store.PropertyForCompany(c.Request().Context(), c.Param("id"), middleware.CallerCompanyID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, property)
}

// CreateProperty adds a property to the caller's company.
func (h *Handler) CreateProperty(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("property", "create")

	if err := requireManageProperties(c); err != nil {
		return respondError(c, err)
	}

	var property model.Property
	if err := c.Bind(&property); err != nil {
		log.Error("Failed to parse property", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if property.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}
	property.CompanyID = middleware.CallerCompanyID(c)

	defer prometheus.TrackStoreOperation("insert")(time.Now())
	if err := h.Store.CreateProperty(c.Request().Context(), &property); err != nil {
		return respondError(c, err)
	}

	log.Info("Property created", zap.String("property_id", property.ID))
	return c.JSON(http.StatusCreated, property)
}

// PatchProperty partially updates a property in the caller's company.
func (h *Handler) PatchProperty(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("property", "update")

	if err := requireManageProperties(c); err != nil {
		return respondError(c, err)
	}

	var patch model.Patch
	if err := c.Bind(&patch); err != nil {
		log.Error("Failed to parse property patch", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	defer prometheus.TrackStoreOperation("update")(time.Now())
	updated, err := h.Store.PatchProperty(c.Request().Context(), c.Param("id"), middleware.CallerCompanyID(c), patch)
	if err != nil {
		return respondError(c, err)
	}

	log.Info("Property updated", zap.String("property_id", updated.ID))
	return c.JSON(http.StatusOK, updated)
}

// DeleteProperty removes a property from the caller's company.
func (h *Handler) DeleteProperty(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("property", "delete")

	if err := requireManageProperties(c); err != nil {
		return respondError(c, err)
	}

	defer prometheus.TrackStoreOperation("delete")(time.Now())
	if err := h.Store.DeleteProperty(c.Request().Context(), c.Param("id"), middleware.CallerCompanyID(c)); err != nil {
		return respondError(c, err)
	}

	log.Info("Property deleted", zap.String("property_id", c.Param("id")))
	return c.NoContent(http.StatusNoContent)
}

// PublicProperty serves the storefront view of a property. Behind
// OptionalAuth: members of the owning company get the full record,
// everyone else (anonymous included) gets the public fields only.
func (h *Handler) PublicProperty(c echo.Context) error {
	property, err := h.Store.PropertyByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	if property == nil {
		return respondError(c, &apperr.Error{Kind: apperr.NotFound, Msg: "property not found"})
	}

	if !middleware.IsAnonymous(c) && middleware.CallerCompanyID(c) == property.CompanyID {
		return c.JSON(http.StatusOK, property)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"id":          property.ID,
		"name":        property.Name,
		"address":     property.Address,
		"mainImage":   property.MainImage,
		"images":      property.Images,
		"description": property.Description,
		"coordinates": property.Coordinates,
	})
}

// AttachPropertyFile registers a file on a property: the bytes go to the
// object store through a presigned upload URL, only the metadata record
// enters the entity.
func (h *Handler) AttachPropertyFile(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("property", "attach_file")

	if err := requireManageProperties(c); err != nil {
		return respondError(c, err)
	}

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
	propertyID := c.Param("id")
	key := fmt.Sprintf("%s/properties/%s/%s", companyID, propertyID, req.Name)

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
	updated, err := h.Store.AttachPropertyFile(c.Request().Context(), propertyID, companyID, file)
	if err != nil {
		return respondError(c, err)
	}

	log.Info("Property file attached", zap.String("property_id", propertyID), zap.String("key", key))
	return c.JSON(http.StatusCreated, echo.Map{
		"property":  updated,
		"uploadUrl": uploadURL,
	})
}
