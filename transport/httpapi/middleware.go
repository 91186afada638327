package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	goIAM "github.com/MrEthical07/goIAM"
)

const contextUserKey = "goiam.active_user"

// Authenticate verifies the bearer access token and stores the identity on
// both the gin context and the request context.
func (h *Handler) Authenticate(c *gin.Context) {
	token := extractBearer(c.GetHeader("Authorization"))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Code: "UNAUTHORIZED", Message: "missing token"})
		return
	}

	user, err := h.svc.VerifyAccess(c.Request.Context(), token)
	if err != nil {
		h.writeError(c, "authenticate", err)
		return
	}

	c.Set(contextUserKey, user)
	c.Request = c.Request.WithContext(goIAM.WithActiveUser(c.Request.Context(), user))
	c.Next()
}

// RequireRole aborts with 403 unless the authenticated role is one of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := goIAM.ActiveUserFromContext(c.Request.Context())
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Code: "UNAUTHORIZED", Message: "unauthorized"})
			return
		}
		for _, role := range roles {
			if strings.EqualFold(user.Role, role) {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, errorResponse{Code: "FORBIDDEN", Message: "forbidden"})
	}
}

func activeUser(c *gin.Context) goIAM.ActiveUser {
	if v, ok := c.Get(contextUserKey); ok {
		if user, ok := v.(goIAM.ActiveUser); ok {
			return user
		}
	}
	user, _ := goIAM.ActiveUserFromContext(c.Request.Context())
	return user
}

func extractBearer(header string) string {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
