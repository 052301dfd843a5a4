package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"crm-service/internal/apperr"
	"crm-service/internal/middleware"
	"crm-service/internal/model"
	"crm-service/pkg/logger"
	"crm-service/prometheus"
)

// ListUsers lists the caller's company users, newest first.
func (h *Handler) ListUsers(c echo.Context) error {
	if !model.HasPermission(middleware.CallerRole(c), model.CapManageUsers) {
		return respondError(c, &apperr.Error{Kind: apperr.Forbidden, Msg: "access denied"})
	}

	pageSize, cursor := pageParams(c)
	defer prometheus.TrackStoreOperation("query")(time.Now())
	users, next, more, err := h.Store.UsersByCompany(c.Request().Context(), middleware.CallerCompanyID(c), pageSize, cursor)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, pageResponse(users, next, more))
}

// GetUser fetches one user in the caller's company.
func (h *Handler) GetUser(c echo.Context) error {
	user, err := h.Store.UserForCompany(c.Request().Context(), c.Param("id"), middleware.CallerCompanyID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, user)
}

// CreateUser adds a user to the caller's company. Requires manage_users;
// the caller must outrank the new user's role.
func (h *Handler) CreateUser(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("user", "create")

	role := middleware.CallerRole(c)
	if !model.HasPermission(role, model.CapManageUsers) {
		return respondError(c, &apperr.Error{Kind: apperr.Forbidden, Msg: "access denied"})
	}

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse user creation request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Username == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "username and password are required"})
	}

	newRole, ok := model.ParseRole(req.Role)
	if !ok {
		return respondError(c, &apperr.Error{Kind: apperr.InvalidArgument, Msg: "unknown role"})
	}
	if !role.CanModify(newRole) {
		return respondError(c, &apperr.Error{Kind: apperr.Forbidden, Msg: "cannot assign a role at or above your own rank"})
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("Failed to hash password", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "user creation failed"})
	}

	caller, err := h.Store.UserForCompany(c.Request().Context(), middleware.CallerUserID(c), middleware.CallerCompanyID(c))
	if err != nil {
		return respondError(c, err)
	}

	user := &model.User{
		Username:     req.Username,
		PasswordHash: string(hashedPassword),
		CompanyID:    caller.CompanyID,
		CompanyAlias: caller.CompanyAlias,
		Role:         newRole,
	}

	defer prometheus.TrackStoreOperation("insert")(time.Now())
	if err := h.Store.CreateUser(c.Request().Context(), user); err != nil {
		log.Error("User creation failed", zap.String("username", req.Username), zap.Error(err))
		return respondError(c, err)
	}

	log.Info("User created", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
	return c.JSON(http.StatusCreated, user)
}

// PatchUser partially updates a user in the caller's company. Requires
// manage_users; the caller must outrank the target's current role, and
// for a role change also the new role.
func (h *Handler) PatchUser(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("user", "update")

	role := middleware.CallerRole(c)
	if !model.HasPermission(role, model.CapManageUsers) {
		return respondError(c, &apperr.Error{Kind: apperr.Forbidden, Msg: "access denied"})
	}

	var patch model.Patch
	if err := c.Bind(&patch); err != nil {
		log.Error("Failed to parse user patch", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	companyID := middleware.CallerCompanyID(c)
	target, err := h.Store.UserForCompany(c.Request().Context(), c.Param("id"), companyID)
	if err != nil {
		return respondError(c, err)
	}
	if !role.CanModify(target.Role) {
		return respondError(c, &apperr.Error{Kind: apperr.Forbidden, Msg: "cannot modify a user at or above your own rank"})
	}
	if rawRole, ok := patch["role"].(string); ok {
		newRole, ok := model.ParseRole(rawRole)
		if !ok {
			return respondError(c, &apperr.Error{Kind: apperr.InvalidArgument, Msg: "unknown role"})
		}
		if !role.CanModify(newRole) {
			return respondError(c, &apperr.Error{Kind: apperr.Forbidden, Msg: "cannot assign a role at or above your own rank"})
		}
	}

	defer prometheus.TrackStoreOperation("update")(time.Now())
	updated, err := h.Store.PatchUser(c.Request().Context(), target.ID, companyID, patch)
	if err != nil {
		return respondError(c, err)
	}

	log.Info("User updated", zap.String("user_id", updated.ID))
	return c.JSON(http.StatusOK, updated)
}

// DeleteUser removes a user from the caller's company. Self-deletion is
// always refused, regardless of role.
func (h *Handler) DeleteUser(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("user", "delete")

	role := middleware.CallerRole(c)
	if !model.HasPermission(role, model.CapManageUsers) {
		return respondError(c, &apperr.Error{Kind: apperr.Forbidden, Msg: "access denied"})
	}

	targetID := c.Param("id")
	if targetID == middleware.CallerUserID(c) {
		return respondError(c, &apperr.Error{Kind: apperr.Forbidden, Msg: "cannot delete your own user"})
	}

	companyID := middleware.CallerCompanyID(c)
	target, err := h.Store.UserForCompany(c.Request().Context(), targetID, companyID)
	if err != nil {
		if apperr.KindOf(err) == apperr.NotFound {
			// Idempotent delete: absence is not an error.
			return c.NoContent(http.StatusNoContent)
		}
		return respondError(c, err)
	}
	if !role.CanModify(target.Role) {
		return respondError(c, &apperr.Error{Kind: apperr.Forbidden, Msg: "cannot delete a user at or above your own rank"})
	}

	defer prometheus.TrackStoreOperation("delete")(time.Now())
	if err := h.Store.DeleteUser(c.Request().Context(), targetID, companyID); err != nil {
		return respondError(c, err)
	}

	log.Info("User deleted", zap.String("user_id", targetID))
	return c.NoContent(http.StatusNoContent)
}
