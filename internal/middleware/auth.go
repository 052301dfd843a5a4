package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"crm-service/internal/apperr"
	"crm-service/internal/model"
	"crm-service/internal/store"
	"crm-service/pkg/jwtutil"
	"crm-service/pkg/logger"
	"crm-service/prometheus"
)

// Context keys set by the auth middleware.
const (
	CtxUserID       = "user_id"
	CtxUsername     = "username"
	CtxCompanyAlias = "company_alias"
	CtxCompanyID    = "company_id"
	CtxUserRole     = "user_role"
	CtxAnonymous    = "anonymous"
)

// Auth validates the bearer token from the Authorization header, then
// re-validates liveness against the store: the user must still exist.
// The company id is attached fresh from the store record, never trusted
// from the token.
func Auth(st *store.Store) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, err := resolveCaller(c, st)
			if err != nil {
				kind := apperr.KindOf(err)
				return c.JSON(apperr.HTTPStatus(kind), echo.Map{
					"error": apperr.Message(err),
					"code":  string(kind),
				})
			}

			attachIdentity(c, user)
			return next(c)
		}
	}
}

// OptionalAuth behaves like Auth but degrades to an anonymous caller on
// any failure instead of rejecting the request. Used by endpoints that
// answer differently for authenticated and anonymous callers.
func OptionalAuth(st *store.Store) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, err := resolveCaller(c, st)
			if err != nil {
				c.Set(CtxAnonymous, true)
				return next(c)
			}
			attachIdentity(c, user)
			return next(c)
		}
	}
}

// RequireCompanyContext rejects any caller whose company id is unset
// before any entity lookup occurs. Applied as router-level middleware on
// every entity-scoped route group.
func RequireCompanyContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		companyID, ok := c.Get(CtxCompanyID).(string)
		if !ok || companyID == "" {
			logger.FromContext(c).Error("Caller has no company context")
			prometheus.TenantDeniedCounter.Inc()
			return c.JSON(http.StatusForbidden, echo.Map{
				"error": "access denied",
				"code":  string(apperr.Forbidden),
			})
		}
		return next(c)
	}
}

func resolveCaller(c echo.Context, st *store.Store) (*model.User, error) {
	log := logger.FromContext(c)

	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		log.Debug("Missing Authorization header")
		prometheus.RecordAuthError("missing_token")
		return nil, &apperr.Error{Kind: apperr.Unauthenticated, Msg: "missing authorization token"}
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		log.Debug("Invalid Authorization header format")
		prometheus.RecordAuthError("invalid_auth_format")
		return nil, &apperr.Error{Kind: apperr.Unauthenticated, Msg: "invalid authorization format, expected Bearer token"}
	}

	claims, err := jwtutil.ValidateToken(parts[1])
	if err != nil {
		if apperr.KindOf(err) == apperr.TokenExpired {
			log.Debug("Expired JWT token")
			prometheus.RecordAuthError("token_expired")
		} else {
			log.Debug("Invalid JWT token", zap.Error(err))
			prometheus.RecordAuthError("invalid_token")
		}
		return nil, err
	}

	// Liveness: the token may outlive the user record.
	user, err := st.UserByID(c.Request().Context(), claims.UserID)
	if err != nil {
		log.Error("Failed to resolve token user", zap.Error(err))
		return nil, err
	}
	if user == nil {
		log.Debug("Token user no longer exists", zap.String("user_id", claims.UserID))
		prometheus.RecordAuthError("user_not_found")
		return nil, &apperr.Error{Kind: apperr.Unauthenticated, Msg: "user not found"}
	}

	return user, nil
}

func attachIdentity(c echo.Context, user *model.User) {
	c.Set(CtxUserID, user.ID)
	c.Set(CtxUsername, user.Username)
	c.Set(CtxCompanyAlias, user.CompanyAlias)
	c.Set(CtxCompanyID, user.CompanyID)
	c.Set(CtxUserRole, user.Role)

	// Propagate tenant context to downstream services.
	c.Request().Header.Set("X-Company-ID", user.CompanyID)
	c.Request().Header.Set("X-Company-Alias", user.CompanyAlias)
	c.Request().Header.Set("X-User-Role", string(user.Role))
}

// CallerCompanyID returns the company id attached by Auth, empty when
// the caller is anonymous.
func CallerCompanyID(c echo.Context) string {
	companyID, _ := c.Get(CtxCompanyID).(string)
	return companyID
}

// CallerUserID returns the user id attached by Auth.
func CallerUserID(c echo.Context) string {
	userID, _ := c.Get(CtxUserID).(string)
	return userID
}

// CallerRole returns the role attached by Auth.
func CallerRole(c echo.Context) model.Role {
	role, _ := c.Get(CtxUserRole).(model.Role)
	return role
}

// IsAnonymous reports whether OptionalAuth downgraded the caller.
func IsAnonymous(c echo.Context) bool {
	anon, _ := c.Get(CtxAnonymous).(bool)
	return anon
}
