package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ValidationConfig 验证配置
type ValidationConfig struct {
	// 最大请求体大小（字节）
	MaxBodySize int64
	// 允许的Content-Type列表
	AllowedContentTypes []string
}

// Validator 验证中间件
type Validator struct {
	config *ValidationConfig
}

// NewValidator 创建验证中间件
func NewValidator(config *ValidationConfig) *Validator {
	if config.MaxBodySize == 0 {
		config.MaxBodySize = 64 * 1024
	}
	if len(config.AllowedContentTypes) == 0 {
		config.AllowedContentTypes = []string{"application/json"}
	}

	return &Validator{
		config: config,
	}
}

// Middleware 验证中间件处理函数
func (v *Validator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
			c.Next()
			return
		}

		contentType := c.ContentType()
		if contentType != "" && !v.isAllowedContentType(contentType) {
			abortWithError(c, http.StatusUnsupportedMediaType, "invalid_content_type",
				fmt.Sprintf("Content-Type '%s' is not supported", contentType))
			return
		}

		if c.Request.ContentLength > v.config.MaxBodySize {
			abortWithError(c, http.StatusRequestEntityTooLarge, "request_too_large",
				fmt.Sprintf("Request body exceeds maximum size of %d bytes", v.config.MaxBodySize))
			return
		}

		// 分块传输时 ContentLength 为 -1，由 MaxBytesReader 兜底
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, v.config.MaxBodySize)
		c.Next()
	}
}

// isAllowedContentType 检查Content-Type是否允许
func (v *Validator) isAllowedContentType(contentType string) bool {
	contentType = strings.TrimSpace(strings.Split(contentType, ";")[0])

	for _, allowed := range v.config.AllowedContentTypes {
		if strings.EqualFold(contentType, allowed) {
			return true
		}
	}
	return false
}

// abortWithError 以统一错误体终止请求
func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"ok":      false,
		"error":   code,
		"message": message,
	})
}
