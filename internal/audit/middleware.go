package audit

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 处理器通过这些键声明需要审计的操作
const (
	ActionKey   = "audit_action"
	ResourceKey = "audit_resource"
)

// Entry 审计记录
type Entry struct {
	ID        uuid.UUID
	Action    string
	Resource  string
	Status    int
	OK        bool
	Error     string
	ClientIP  string
	UserAgent string
	RequestID string
	Duration  time.Duration
	At        time.Time
}

// AuditMiddleware 审计日志中间件
type AuditMiddleware struct {
	logger *zap.Logger
}

// NewAuditMiddleware 创建审计日志中间件
func NewAuditMiddleware(logger *zap.Logger) *AuditMiddleware {
	return &AuditMiddleware{
		logger: logger.Named("audit"),
	}
}

// Mark 声明当前请求为一次可审计的管理操作
func Mark(c *gin.Context, action, resource string) {
	c.Set(ActionKey, action)
	c.Set(ResourceKey, resource)
}

// Middleware Gin中间件函数
func (am *AuditMiddleware) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		responseWriter := &responseBodyWriter{
			ResponseWriter: c.Writer,
			body:           &bytes.Buffer{},
		}
		c.Writer = responseWriter

		startTime := time.Now()

		c.Next()

		action := c.GetString(ActionKey)
		if action == "" {
			return
		}

		entry := am.createEntry(c, responseWriter, action, startTime)
		am.write(entry)
	}
}

// createEntry 根据请求与响应生成审计记录
func (am *AuditMiddleware) createEntry(c *gin.Context, rw *responseBodyWriter, action string, startTime time.Time) Entry {
	entry := Entry{
		ID:        uuid.New(),
		Action:    action,
		Resource:  c.GetString(ResourceKey),
		Status:    rw.Status(),
		ClientIP:  c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		RequestID: c.GetString("request_id"),
		Duration:  time.Since(startTime),
		At:        startTime.UTC(),
	}

	var body struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rw.body.Bytes(), &body); err == nil {
		entry.OK = body.OK
		entry.Error = body.Error
	}

	return entry
}

func (am *AuditMiddleware) write(e Entry) {
	fields := []zap.Field{
		zap.String("audit_id", e.ID.String()),
		zap.String("action", e.Action),
		zap.String("license_key", e.Resource),
		zap.Int("status", e.Status),
		zap.Bool("ok", e.OK),
		zap.String("client_ip", e.ClientIP),
		zap.String("user_agent", e.UserAgent),
		zap.String("request_id", e.RequestID),
		zap.Duration("duration", e.Duration),
		zap.Time("at", e.At),
	}
	if e.Error != "" {
		fields = append(fields, zap.String("error", e.Error))
	}

	am.logger.Info("Admin operation", fields...)
}

// responseBodyWriter 包装ResponseWriter以捕获响应body
type responseBodyWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseBodyWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *responseBodyWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
