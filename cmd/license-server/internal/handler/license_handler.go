package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/licensegate/backend/internal/domain"
	"go.uber.org/zap"
)

// LicenseService 处理器依赖的许可证操作
type LicenseService interface {
	Activate(ctx context.Context, key, hwid string) (domain.Status, error)
	Create(ctx context.Context, key string, validityDays int) (*domain.License, error)
	Extend(ctx context.Context, key string, validityDays int) (time.Time, error)
	ResetHWID(ctx context.Context, key string) error
	Block(ctx context.Context, key string) error
	Info(ctx context.Context, key string) (*domain.License, error)
	List(ctx context.Context) ([]domain.License, error)
}

// LicenseHandler 设备激活处理器
type LicenseHandler struct {
	licenses LicenseService
	logger   *zap.Logger
}

// NewLicenseHandler 创建LicenseHandler实例
func NewLicenseHandler(licenses LicenseService, logger *zap.Logger) *LicenseHandler {
	return &LicenseHandler{
		licenses: licenses,
		logger:   logger.Named("activation"),
	}
}

// ActivateRequest 激活请求
type ActivateRequest struct {
	Key  *string `json:"key"`
	HWID *string `json:"hwid"`
}

// ActivateResponse 激活响应
type ActivateResponse struct {
	Status domain.Status `json:"status"`
}

// Activate godoc
// @Summary      激活许可证
// @Description  校验许可证并在首次激活时绑定硬件ID
// @Tags         licenses
// @Accept       json
// @Produce      json
// @Param        request  body  ActivateRequest  true  "许可证密钥与硬件ID"
// @Success      200  {object}  ActivateResponse
// @Failure      400  {object}  ErrorResponse
// @Router       /api/v1/activate [post]
func (h *LicenseHandler) Activate(c *gin.Context) {
	log := h.logger.With(zap.String("request_id", c.GetString("request_id")), zap.String("client_ip", c.ClientIP()))

	var req ActivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Debug("Rejected activation request", zap.Error(err))
		respondError(c, http.StatusBadRequest, "invalid_input", "request body must be JSON with key and hwid")
		return
	}
	if req.Key == nil || req.HWID == nil {
		log.Debug("Rejected activation request", zap.String("reason", "missing fields"))
		respondError(c, http.StatusBadRequest, "invalid_input", "key and hwid are required")
		return
	}

	status, err := h.licenses.Activate(c.Request.Context(), *req.Key, *req.HWID)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			log.Debug("Rejected activation request", zap.Error(err))
		} else {
			log.Error("Activation request failed", zap.Error(err))
		}
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, ActivateResponse{Status: status})
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// LicenseView 许可证对外表示
type LicenseView struct {
	Key       string `json:"key"`
	ExpiresAt string `json:"expires_at"`
	HWID      string `json:"hwid"`
	Blocked   bool   `json:"blocked"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// NewLicenseView 将许可证记录转换为对外表示
func NewLicenseView(l *domain.License) LicenseView {
	return LicenseView{
		Key:       l.Key,
		ExpiresAt: FormatTime(l.ExpiresAt),
		HWID:      l.HardwareID,
		Blocked:   l.Blocked,
		CreatedAt: FormatTime(l.CreatedAt),
		UpdatedAt: FormatTime(l.UpdatedAt),
	}
}

// FormatTime 时间统一以UTC的RFC 3339格式输出
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, ErrorResponse{OK: false, Error: code, Message: message})
}

// handleServiceError 将服务层错误映射为HTTP响应
func handleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		respondError(c, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		respondError(c, http.StatusNotFound, "not_found", "license not found")
	default:
		_ = c.Error(err)
		respondError(c, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
