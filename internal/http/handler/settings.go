package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/apercky/documinds-sub000/internal/domain"
	"github.com/apercky/documinds-sub000/internal/http/middleware"
	"github.com/apercky/documinds-sub000/internal/settings"
)

// SettingsHandler exposes the per-brand configuration endpoints.
type SettingsHandler struct {
	Settings *settings.Service
	Logger   *zap.Logger
}

func (h *SettingsHandler) logger() *zap.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return zap.L()
}

// List returns the brand's settings shaped for the admin UI. Secret values
// are masked; only presence is reported.
func (h *SettingsHandler) List(c *gin.Context) {
	company, ok := middleware.GetBrand(c)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "brand_not_supported", "error_description": "Brand not resolved."})
		return
	}

	items, err := h.Settings.ListForUI(c.Request.Context(), company.BrandCode)
	if err != nil {
		h.logger().Error("list brand settings", zap.String("brand", company.BrandCode), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Could not load settings."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"brand": company.BrandCode, "settings": items})
}

type upsertSettingsRequest struct {
	Settings map[string]string `json:"settings" binding:"required"`
}

// Upsert stores one or more settings for the brand in a single request.
// Unknown keys reject the whole request before anything is written.
func (h *SettingsHandler) Upsert(c *gin.Context) {
	company, ok := middleware.GetBrand(c)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "brand_not_supported", "error_description": "Brand not resolved."})
		return
	}
	authCtx, ok := middleware.GetAuthContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "error_description": "Authentication required."})
		return
	}

	var req upsertSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Settings) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "settings must be a non-empty object."})
		return
	}

	for rawKey := range req.Settings {
		if _, known := domain.IsSecretSetting(domain.SettingKey(rawKey)); !known {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_setting", "error_description": "Unknown setting key: " + rawKey})
			return
		}
	}

	for rawKey, value := range req.Settings {
		if strings.TrimSpace(value) == "" {
			continue
		}
		key := domain.SettingKey(rawKey)
		// A round-tripped list payload carries the mask, not the secret;
		// writing it would destroy the stored value.
		if secret, _ := domain.IsSecretSetting(key); secret && value == settings.MaskedValue {
			continue
		}
		if _, err := h.Settings.Upsert(c.Request.Context(), company.BrandCode, key, value, authCtx.Subject); err != nil {
			if errors.Is(err, domain.ErrUnknownSettingKey) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_setting", "error_description": "Unknown setting key: " + rawKey})
				return
			}
			h.logger().Error("upsert brand setting",
				zap.String("brand", company.BrandCode),
				zap.String("key", rawKey),
				zap.Error(err),
			)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Could not save settings."})
			return
		}
	}

	items, err := h.Settings.ListForUI(c.Request.Context(), company.BrandCode)
	if err != nil {
		h.logger().Error("reload brand settings", zap.String("brand", company.BrandCode), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Settings saved but could not be reloaded."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"brand": company.BrandCode, "settings": items})
}
