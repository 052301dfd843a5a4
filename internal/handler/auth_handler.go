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
	"crm-service/pkg/jwtutil"
	"crm-service/pkg/logger"
	"crm-service/prometheus"
)

// Signup creates a company together with its first admin user.
func (h *Handler) Signup(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.SignupCounter.Inc()

	var req struct {
		CompanyName string `json:"companyName"`
		Alias       string `json:"alias"`
		Username    string `json:"username"`
		Password    string `json:"password"`
		Role        string `json:"role,omitempty"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse signup request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.CompanyName == "" || req.Alias == "" || req.Username == "" || req.Password == "" {
		log.Error("Invalid signup data", zap.String("alias", req.Alias))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "companyName, alias, username and password are required"})
	}

	if req.Role != "" {
		// Legacy registration vocabulary: only admin (or its dead alias
		// agent) is meaningful here; the first user is always the admin.
		if _, ok := model.ParseRole(req.Role); !ok && req.Role != "admin" {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown role"})
		}
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("Failed to hash password", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "signup failed"})
	}

	company := &model.Company{
		Name:  req.CompanyName,
		Alias: req.Alias,
	}
	admin := &model.User{
		Username:     req.Username,
		PasswordHash: string(hashedPassword),
	}

	defer prometheus.TrackStoreOperation("insert")(time.Now())
	if err := h.Store.SignupCompany(c.Request().Context(), company, admin); err != nil {
		log.Error("Signup failed", zap.String("alias", req.Alias), zap.Error(err))
		return respondError(c, err)
	}

	log.Info("Company signed up",
		zap.String("company_id", company.ID),
		zap.String("alias", company.Alias),
		zap.String("admin", admin.Username))

	return c.JSON(http.StatusCreated, echo.Map{
		"company": company,
		"user":    admin,
	})
}

// Login verifies username + companyAlias + password and issues a session
// token.
func (h *Handler) Login(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.LoginCounter.Inc()

	var req struct {
		Username     string `json:"username"`
		CompanyAlias string `json:"companyAlias"`
		Password     string `json:"password"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse login request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	defer prometheus.TrackStoreOperation("query")(time.Now())
	user, err := h.Store.UserByName(c.Request().Context(), req.CompanyAlias, req.Username)
	if err != nil {
		log.Error("Login lookup failed", zap.Error(err))
		return respondError(c, err)
	}
	if user == nil {
		log.Error("User not found", zap.String("username", req.Username), zap.String("company_alias", req.CompanyAlias))
		prometheus.RecordAuthError("user_not_found")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		log.Error("Invalid password", zap.String("username", req.Username))
		prometheus.RecordAuthError("invalid_password")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	token, err := jwtutil.GenerateToken(user)
	if err != nil {
		log.Error("Failed to generate token", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token error"})
	}

	prometheus.IncreaseActiveTokens()
	log.Info("User logged in",
		zap.String("username", user.Username),
		zap.String("company_alias", user.CompanyAlias),
		zap.String("role", string(user.Role)))

	return c.JSON(http.StatusOK, echo.Map{
		"token": token,
		"user":  user,
	})
}

// Refresh re-issues a token from the currently attached identity without
// re-checking the password.
func (h *Handler) Refresh(c echo.Context) error {
	log := logger.FromContext(c)

	user, err := h.Store.UserForCompany(c.Request().Context(),
		middleware.CallerUserID(c), middleware.CallerCompanyID(c))
	if err != nil {
		return respondError(c, err)
	}

	token, err := jwtutil.GenerateToken(user)
	if err != nil {
		log.Error("Failed to refresh token", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token error"})
	}

	prometheus.IncreaseActiveTokens()
	return c.JSON(http.StatusOK, echo.Map{"token": token})
}

// ChangePassword changes the caller's own password, or another user's
// when the caller holds change_passwords and outranks the target. The
// generic patch path never touches password hashes.
func (h *Handler) ChangePassword(c echo.Context) error {
	log := logger.FromContext(c)

	var req struct {
		UserID          string `json:"userId,omitempty"`
		CurrentPassword string `json:"currentPassword,omitempty"`
		NewPassword     string `json:"newPassword"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse change-password request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.NewPassword == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "newPassword is required"})
	}

	callerID := middleware.CallerUserID(c)
	companyID := middleware.CallerCompanyID(c)
	targetID := req.UserID
	if targetID == "" {
		targetID = callerID
	}

	target, err := h.Store.UserForCompany(c.Request().Context(), targetID, companyID)
	if err != nil {
		return respondError(c, err)
	}

	if targetID == callerID {
		if err := bcrypt.CompareHashAndPassword([]byte(target.PasswordHash), []byte(req.CurrentPassword)); err != nil {
			log.Error("Current password mismatch", zap.String("user_id", callerID))
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
		}
	} else {
		role := middleware.CallerRole(c)
		if !model.HasPermission(role, model.CapChangePasswords) || !role.CanModify(target.Role) {
			return respondError(c, &apperr.Error{Kind: apperr.Forbidden, Msg: "access denied"})
		}
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Error("Failed to hash password", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "password change failed"})
	}

	defer prometheus.TrackStoreOperation("update")(time.Now())
	if err := h.Store.SetUserPassword(c.Request().Context(), target.ID, companyID, string(hashedPassword)); err != nil {
		return respondError(c, err)
	}

	log.Info("Password changed", zap.String("user_id", target.ID))
	return c.JSON(http.StatusOK, echo.Map{"message": "password changed"})
}
