package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/licensegate/backend/internal/audit"
	"github.com/licensegate/backend/internal/service"
)

// LegacyHandler 兼容旧版路径风格（GET /create/:key/:days 等）的处理器
type LegacyHandler struct {
	licenses LicenseService
}

// NewLegacyHandler 创建LegacyHandler实例
func NewLegacyHandler(licenses LicenseService) *LegacyHandler {
	return &LegacyHandler{licenses: licenses}
}

// legacyLicense 旧版许可证表示
type legacyLicense struct {
	Key     string `json:"key"`
	Expires string `json:"expires"`
	HWID    string `json:"hwid"`
	Blocked bool   `json:"blocked"`
}

// Create GET /create/:key/:days
func (h *LegacyHandler) Create(c *gin.Context) {
	key := c.Param("key")
	audit.Mark(c, service.ActionCreate, key)

	days, ok := parseDays(c)
	if !ok {
		return
	}

	license, err := h.licenses.Create(c.Request.Context(), key, days)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":      true,
		"action":  service.ActionCreate,
		"key":     license.Key,
		"expires": FormatTime(license.ExpiresAt),
	})
}

// Extend GET /extend/:key/:days
func (h *LegacyHandler) Extend(c *gin.Context) {
	key := c.Param("key")
	audit.Mark(c, service.ActionExtend, key)

	days, ok := parseDays(c)
	if !ok {
		return
	}

	expiresAt, err := h.licenses.Extend(c.Request.Context(), key, days)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":          true,
		"action":      service.ActionExtend,
		"key":         key,
		"new_expires": FormatTime(expiresAt),
	})
}

// Reset GET /reset/:key
func (h *LegacyHandler) Reset(c *gin.Context) {
	key := c.Param("key")
	audit.Mark(c, service.ActionResetHWID, key)

	if err := h.licenses.ResetHWID(c.Request.Context(), key); err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "action": service.ActionResetHWID, "key": key})
}

// Block GET /block/:key
func (h *LegacyHandler) Block(c *gin.Context) {
	key := c.Param("key")
	audit.Mark(c, service.ActionBlock, key)

	if err := h.licenses.Block(c.Request.Context(), key); err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "action": service.ActionBlock, "key": key})
}

// Info GET /info/:key
func (h *LegacyHandler) Info(c *gin.Context) {
	license, err := h.licenses.Info(c.Request.Context(), c.Param("key"))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":      true,
		"key":     license.Key,
		"expires": FormatTime(license.ExpiresAt),
		"hwid":    license.HardwareID,
		"blocked": license.Blocked,
	})
}

// List GET /list
func (h *LegacyHandler) List(c *gin.Context) {
	licenses, err := h.licenses.List(c.Request.Context())
	if err != nil {
		handleServiceError(c, err)
		return
	}

	data := make([]legacyLicense, len(licenses))
	for i, l := range licenses {
		data[i] = legacyLicense{
			Key:     l.Key,
			Expires: FormatTime(l.ExpiresAt),
			HWID:    l.HardwareID,
			Blocked: l.Blocked,
		}
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "licenses": data})
}

func parseDays(c *gin.Context) (int, bool) {
	days, err := strconv.Atoi(c.Param("days"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid_input", "days must be an integer")
		return 0, false
	}
	return days, true
}
