package middleware

import (
	"net/http"
	"strings"

	"mediastore/internal/domain/media"
	jwtsvc "mediastore/internal/pkg/jwt"
	"mediastore/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

// Context key the resolved access scope is stored under.
const AccessContextKey = "access_ctx"

// Auth validates the bearer token and attaches the resolved access context.
// Downstream handlers treat the context as opaque and already validated.
func Auth(jwt *jwtsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			response.AbortError(c, http.StatusUnauthorized, media.CodeValidation, "missing bearer token")
			return
		}

		tokenStr := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
		claims, err := jwt.ValidateToken(tokenStr)
		if err != nil {
			response.AbortError(c, http.StatusUnauthorized, media.CodeValidation, "invalid token")
			return
		}

		access := claims.Access
		if access == "" {
			access = media.AccessPrivate
		}

		c.Set(AccessContextKey, media.AccessContext{
			Access:      access,
			UserID:      claims.UserID,
			CompanyID:   claims.CompanyID,
			IsAdmin:     claims.IsAdmin,
			UserHash:    claims.UserHash,
			CompanyHash: claims.CompanyHash,
		})
		c.Next()
	}
}

// MustAccessContext pulls the access context set by Auth. Routes registered
// without the middleware have no scope and get an unauthorized response.
func MustAccessContext(c *gin.Context) (media.AccessContext, bool) {
	v, ok := c.Get(AccessContextKey)
	if !ok {
		response.AbortError(c, http.StatusUnauthorized, media.CodeValidation, "unauthorized")
		return media.AccessContext{}, false
	}
	actx, ok := v.(media.AccessContext)
	if !ok {
		response.AbortError(c, http.StatusUnauthorized, media.CodeValidation, "unauthorized")
		return media.AccessContext{}, false
	}
	return actx, true
}
