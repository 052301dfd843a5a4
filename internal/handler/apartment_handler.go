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

// ListApartments lists the caller's company apartments, newest first.
// With a ?q= term it switches to the tenant-scoped normalized search
// over apartmentNumber and propertyId.
func (h *Handler) ListApartments(c echo.Context) error {
	companyID := middleware.CallerCompanyID(c)
	defer prometheus.TrackStoreOperation("query")(time.Now())

	if term := c.QueryParam("q"); term != "" {
		matches, err := h.Store.SearchApartments(c.Request().Context(), companyID, term)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, echo.Map{"items": matches})
	}

	pageSize, cursor := pageParams(c)
	apartments, next, more, err := h.Store.ApartmentsByCompany(c.Request().Context(), companyID, pageSize, cursor)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, pageResponse(apartments, next, more))
}

// ListApartmentsByProperty lists the apartments of one property.
func (h *Handler) ListApartmentsByProperty(c echo.Context) error {
	pageSize, cursor := pageParams(c)
	defer prometheus.TrackStoreOperation("query")(time.Now())
	apartments, next, more, err := h.Store.ApartmentsByProperty(c.Request().Context(),
		c.Param("id"), middleware.CallerCompanyID(c), pageSize, cursor)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, pageResponse(apartments, next, more))
}

// GetApartment fetches one apartment in the caller's company.
func (h *Handler) GetApartment(c echo.Context) error {
	apartment, err := h.Store.ApartmentForCompany(c.Request().Context(), c.Param("id"), middleware.CallerCompanyID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, apartment)
}

// CreateApartment adds an apartment to the caller's company. The
// referenced property must exist in the same company.
func (h *Handler) CreateApartment(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("apartment", "create")

	if err := requireManageProperties(c); err != nil {
		return respondError(c, err)
	}

	var apartment model.Apartment
	if err := c.Bind(&apartment); err != nil {
		log.Error("Failed to parse apartment", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if apartment.PropertyID == "" || apartment.ApartmentNumber == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "propertyId and apartmentNumber are required"})
	}
	apartment.CompanyID = middleware.CallerCompanyID(c)

	defer prometheus.TrackStoreOperation("insert")(time.Now())
	if err := h.Store.CreateApartment(c.Request().Context(), &apartment); err != nil {
		return respondError(c, err)
	}

	log.Info("Apartment created",
		zap.String("apartment_id", apartment.ID),
		zap.String("property_id", apartment.PropertyID))
	return c.JSON(http.StatusCreated, apartment)
}

// PatchApartment partially updates an apartment in the caller's company.
func (h *Handler) PatchApartment(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("apartment", "update")

	if err := requireManageProperties(c); err != nil {
		return respondError(c, err)
	}

	var patch model.Patch
	if err := c.Bind(&patch); err != nil {
		log.Error("Failed to parse apartment patch", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	defer prometheus.TrackStoreOperation("update")(time.Now())
	updated, err := h.Store.PatchApartment(c.Request().Context(), c.Param("id"), middleware.CallerCompanyID(c), patch)
	if err != nil {
		return respondError(c, err)
	}

	log.Info("Apartment updated", zap.String("apartment_id", updated.ID))
	return c.JSON(http.StatusOK, updated)
}

// DeleteApartment removes an apartment from the caller's company.
func (h *Handler) DeleteApartment(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("apartment", "delete")

	if err := requireManageProperties(c); err != nil {
		return respondError(c, err)
	}

	defer prometheus.TrackStoreOperation("delete")(time.Now())
	if err := h.Store.DeleteApartment(c.Request().Context(), c.Param("id"), middleware.CallerCompanyID(c)); err != nil {
		return respondError(c, err)
	}

	log.Info("Apartment deleted", zap.String("apartment_id", c.Param("id")))
	return c.NoContent(http.StatusNoContent)
}

// AttachApartmentDocument registers a document on an apartment and runs
// the text-extraction collaborator over it; whatever structured fields
// come back are merged into the document's extractedData unvalidated.
func (h *Handler) AttachApartmentDocument(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("apartment", "attach_document")

	if err := requireManageProperties(c); err != nil {
		return respondError(c, err)
	}

	var req struct {
		Name string `json:"name"`
		Type string `json:"type"`
		Size int64  `json:"size"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse document metadata", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}

	companyID := middleware.CallerCompanyID(c)
	apartmentID := c.Param("id")
	key := fmt.Sprintf("%s/apartments/%s/%s", companyID, apartmentID, req.Name)

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

	doc := model.FileMeta{
		Name:  req.Name,
		Type:  req.Type,
		Size:  req.Size,
		URL:   downloadURL,
		S3Key: key,
	}

	if extraction, err := h.Extractor.Extract(c.Request().Context(), key); err != nil {
		// Extraction is best-effort; the document is stored regardless.
		log.Warn("Text extraction failed", zap.String("key", key), zap.Error(err))
	} else if len(extraction.Fields) > 0 {
		doc.ExtractedData = extraction.Fields
	}

	defer prometheus.TrackStoreOperation("update")(time.Now())
	updated, err := h.Store.AttachApartmentDocument(c.Request().Context(), apartmentID, companyID, doc)
	if err != nil {
		return respondError(c, err)
	}

	log.Info("Apartment document attached", zap.String("apartment_id", apartmentID), zap.String("key", key))
	return c.JSON(http.StatusCreated, echo.Map{
		"apartment": updated,
		"uploadUrl": uploadURL,
	})
}
