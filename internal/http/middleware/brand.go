package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/apercky/documinds-sub000/internal/brand"
	"github.com/apercky/documinds-sub000/internal/domain"
)

const brandContextKey = "brandContext"

// RequireBrand resolves the brand code from the route parameter (or the
// X-Brand-Code header for routes without one) and rejects unknown or
// inactive tenants before the handler runs.
func RequireBrand(resolver *brand.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		code := strings.TrimSpace(c.Param("code"))
		if code == "" {
			code = strings.TrimSpace(c.Request.Header.Get("X-Brand-Code"))
		}

		company, err := resolver.Resolve(c.Request.Context(), code)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":             "server_error",
				"error_description": "Brand lookup failed.",
			})
			return
		}
		if company == nil {
			_ = c.Error(domain.ErrBrandNotSupported)
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
				"error":             "brand_not_supported",
				"error_description": "Brand not supported, contact your administrator.",
			})
			return
		}

		c.Set(brandContextKey, company)
		c.Next()
	}
}

// GetBrand returns the company resolved by RequireBrand.
func GetBrand(c *gin.Context) (*domain.Company, bool) {
	value, ok := c.Get(brandContextKey)
	if !ok {
		return nil, false
	}
	company, ok := value.(*domain.Company)
	return company, ok
}
