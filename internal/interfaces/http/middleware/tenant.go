package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/edubill/backend/internal/domain/agency"
	"github.com/edubill/backend/internal/domain/shared"
	"github.com/edubill/backend/internal/infrastructure/logger"
	"github.com/edubill/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Tenant headers. The account id is the tenant; the agency header narrows the
// caller to one agency and its sub-agencies.
const (
	TenantHeaderKey = "X-Tenant-ID"
	AgencyHeaderKey = "X-Agency-ID"
	UserHeaderKey   = "X-User-ID"
	RoleHeaderKey   = "X-User-Role"

	// PrivilegedRole grants access to hidden audit records
	PrivilegedRole = "admin"

	callerKey = "caller"
)

// AccountChecker rejects callers whose account is unknown or inactive
type AccountChecker interface {
	CheckAccount(ctx context.Context, scope agency.Scope) error
}

// TenantMiddlewareConfig holds configuration for tenant middleware
type TenantMiddlewareConfig struct {
	// SkipPaths are paths that don't require tenant context (e.g., health check)
	SkipPaths []string
	// Checker optionally verifies the account before the handler runs
	Checker AccountChecker
	// Logger for middleware logging
	Logger *zap.Logger
}

// DefaultTenantConfig returns default tenant middleware configuration
func DefaultTenantConfig() TenantMiddlewareConfig {
	return TenantMiddlewareConfig{
		SkipPaths: []string{"/health", "/healthz", "/ready", "/api/v1/health"},
	}
}

// TenantMiddleware builds the caller from the tenant headers
func TenantMiddleware() gin.HandlerFunc {
	return TenantMiddlewareWithConfig(DefaultTenantConfig())
}

// TenantMiddlewareWithConfig returns tenant middleware with custom configuration
func TenantMiddlewareWithConfig(cfg TenantMiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, skipPath := range cfg.SkipPaths {
			if path == skipPath || strings.HasPrefix(path, skipPath+"/") {
				c.Next()
				return
			}
		}

		caller, err := callerFromHeaders(c)
		if err != nil {
			respondUnauthorized(c, err.Error())
			return
		}

		if cfg.Checker != nil {
			if err := cfg.Checker.CheckAccount(c.Request.Context(), caller.Scope); err != nil {
				log := cfg.Logger
				if log == nil {
					log = logger.FromContext(c.Request.Context())
				}
				log.Warn("Tenant validation failed",
					zap.String("account_id", caller.AccountID.String()),
					zap.Error(err),
				)
				respondTenantError(c, err)
				return
			}
		}

		scope := logger.Scope{AccountID: caller.AccountID.String(), ActorID: caller.ActorID.String()}
		c.Set(logger.GinAccountIDKey, scope.AccountID)
		c.Set(logger.GinActorIDKey, scope.ActorID)
		if caller.AgencyID != nil {
			scope.AgencyID = caller.AgencyID.String()
			c.Set(logger.GinAgencyIDKey, scope.AgencyID)
		}
		c.Set(callerKey, caller)

		ctx, _ := logger.WithScope(c.Request.Context(), logger.FromContext(c.Request.Context()), scope)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

func callerFromHeaders(c *gin.Context) (agency.Caller, error) {
	var caller agency.Caller

	accountID, err := parseHeaderUUID(c, TenantHeaderKey, true)
	if err != nil {
		return caller, err
	}
	actorID, err := parseHeaderUUID(c, UserHeaderKey, true)
	if err != nil {
		return caller, err
	}
	agencyID, err := parseHeaderUUID(c, AgencyHeaderKey, false)
	if err != nil {
		return caller, err
	}

	var agencyPtr *uuid.UUID
	if agencyID != uuid.Nil {
		agencyPtr = &agencyID
	}
	caller.Scope = agency.NewScope(accountID, agencyPtr)
	caller.ActorID = actorID
	caller.Privileged = strings.EqualFold(strings.TrimSpace(c.GetHeader(RoleHeaderKey)), PrivilegedRole)
	return caller, nil
}

func parseHeaderUUID(c *gin.Context, header string, required bool) (uuid.UUID, error) {
	raw := strings.TrimSpace(c.GetHeader(header))
	if raw == "" {
		if required {
			return uuid.Nil, errors.New(header + " header is required")
		}
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, errors.New("invalid " + header + " format")
	}
	return id, nil
}

// respondUnauthorized sends an unauthorized response
func respondUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized,
		dto.NewErrorResponseWithRequestID(dto.ErrCodeUnauthorized, message, c.GetString(logger.GinRequestIDKey)))
}

func respondTenantError(c *gin.Context, err error) {
	requestID := c.GetString(logger.GinRequestIDKey)
	var de *shared.DomainError
	if !errors.As(err, &de) {
		c.AbortWithStatusJSON(http.StatusInternalServerError,
			dto.NewErrorResponseWithRequestID(dto.ErrCodeInternal, "An unexpected error occurred", requestID))
		return
	}
	c.AbortWithStatusJSON(dto.GetHTTPStatus(de.Code),
		dto.NewDomainErrorResponse(de.Code, de.Message, requestID, de.Details))
}

// GetCaller retrieves the caller built by the tenant middleware
func GetCaller(c *gin.Context) (agency.Caller, bool) {
	v, ok := c.Get(callerKey)
	if !ok {
		return agency.Caller{}, false
	}
	caller, ok := v.(agency.Caller)
	return caller, ok
}

// GetTenantID retrieves the account id from gin.Context
func GetTenantID(c *gin.Context) string {
	return c.GetString(logger.GinAccountIDKey)
}
