package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/licensegate/backend/internal/audit"
	"github.com/licensegate/backend/internal/service"
)

// AdminHandler 许可证管理处理器
type AdminHandler struct {
	licenses LicenseService
}

// NewAdminHandler 创建AdminHandler实例
func NewAdminHandler(licenses LicenseService) *AdminHandler {
	return &AdminHandler{licenses: licenses}
}

// CreateLicenseRequest 创建许可证请求
type CreateLicenseRequest struct {
	Key          string `json:"key"`
	ValidityDays *int   `json:"validity_days"`
}

// ExtendLicenseRequest 续期请求
type ExtendLicenseRequest struct {
	ValidityDays *int `json:"validity_days"`
}

// ActionResponse 管理操作响应
type ActionResponse struct {
	OK        bool   `json:"ok"`
	Action    string `json:"action"`
	Key       string `json:"key"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

// LicenseResponse 单个许可证响应
type LicenseResponse struct {
	OK      bool        `json:"ok"`
	License LicenseView `json:"license"`
}

// LicenseListResponse 许可证列表响应
type LicenseListResponse struct {
	OK       bool          `json:"ok"`
	Licenses []LicenseView `json:"licenses"`
}

// CreateLicense godoc
// @Summary      创建许可证
// @Description  创建许可证，已存在时覆盖（清除绑定与封禁）
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        request  body  CreateLicenseRequest  true  "许可证密钥与有效天数"
// @Success      201  {object}  ActionResponse
// @Failure      400  {object}  ErrorResponse
// @Router       /api/v1/admin/licenses [post]
func (h *AdminHandler) CreateLicense(c *gin.Context) {
	var req CreateLicenseRequest
	err := c.ShouldBindJSON(&req)
	audit.Mark(c, service.ActionCreate, req.Key)
	if err != nil || req.ValidityDays == nil {
		respondError(c, http.StatusBadRequest, "invalid_input", "key and validity_days are required")
		return
	}

	license, err := h.licenses.Create(c.Request.Context(), req.Key, *req.ValidityDays)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, ActionResponse{
		OK:        true,
		Action:    service.ActionCreate,
		Key:       license.Key,
		ExpiresAt: FormatTime(license.ExpiresAt),
	})
}

// ExtendLicense godoc
// @Summary      设置许可证有效期
// @Description  将到期时间设置为当前时间起 validity_days 天后
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        key      path  string                true  "许可证密钥"
// @Param        request  body  ExtendLicenseRequest  true  "有效天数"
// @Success      200  {object}  ActionResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /api/v1/admin/licenses/{key}/extend [post]
func (h *AdminHandler) ExtendLicense(c *gin.Context) {
	key := c.Param("key")
	audit.Mark(c, service.ActionExtend, key)

	var req ExtendLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ValidityDays == nil {
		respondError(c, http.StatusBadRequest, "invalid_input", "validity_days is required")
		return
	}

	expiresAt, err := h.licenses.Extend(c.Request.Context(), key, *req.ValidityDays)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, ActionResponse{
		OK:        true,
		Action:    service.ActionExtend,
		Key:       key,
		ExpiresAt: FormatTime(expiresAt),
	})
}

// ResetHWID godoc
// @Summary      重置硬件绑定
// @Tags         admin
// @Produce      json
// @Param        key  path  string  true  "许可证密钥"
// @Success      200  {object}  ActionResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /api/v1/admin/licenses/{key}/reset-hwid [post]
func (h *AdminHandler) ResetHWID(c *gin.Context) {
	key := c.Param("key")
	audit.Mark(c, service.ActionResetHWID, key)

	if err := h.licenses.ResetHWID(c.Request.Context(), key); err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, ActionResponse{OK: true, Action: service.ActionResetHWID, Key: key})
}

// BlockLicense godoc
// @Summary      封禁许可证
// @Tags         admin
// @Produce      json
// @Param        key  path  string  true  "许可证密钥"
// @Success      200  {object}  ActionResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /api/v1/admin/licenses/{key}/block [post]
func (h *AdminHandler) BlockLicense(c *gin.Context) {
	key := c.Param("key")
	audit.Mark(c, service.ActionBlock, key)

	if err := h.licenses.Block(c.Request.Context(), key); err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, ActionResponse{OK: true, Action: service.ActionBlock, Key: key})
}

// GetLicense godoc
// @Summary      查询许可证
// @Tags         admin
// @Produce      json
// @Param        key  path  string  true  "许可证密钥"
// @Success      200  {object}  LicenseResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /api/v1/admin/licenses/{key} [get]
func (h *AdminHandler) GetLicense(c *gin.Context) {
	license, err := h.licenses.Info(c.Request.Context(), c.Param("key"))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, LicenseResponse{OK: true, License: NewLicenseView(license)})
}

// ListLicenses godoc
// @Summary      列出全部许可证
// @Description  按创建顺序返回
// @Tags         admin
// @Produce      json
// @Success      200  {object}  LicenseListResponse
// @Router       /api/v1/admin/licenses [get]
func (h *AdminHandler) ListLicenses(c *gin.Context) {
	licenses, err := h.licenses.List(c.Request.Context())
	if err != nil {
		handleServiceError(c, err)
		return
	}

	views := make([]LicenseView, len(licenses))
	for i := range licenses {
		views[i] = NewLicenseView(&licenses[i])
	}

	c.JSON(http.StatusOK, LicenseListResponse{OK: true, Licenses: views})
}
