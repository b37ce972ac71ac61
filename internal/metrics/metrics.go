package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 应用指标
type Metrics struct {
	// HTTP请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 许可证指标
	ActivationsTotal     *prometheus.CounterVec
	AdminOperationsTotal *prometheus.CounterVec
	Licenses             *prometheus.GaugeVec

	// 仓储指标
	StoreOperationDuration *prometheus.HistogramVec
}

// NewRegistry 创建带有进程与Go运行时指标的注册表（Fx兼容）
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// NewMetrics 在注册表上创建指标收集器（Fx兼容）
func NewMetrics(reg *prometheus.Registry) *Metrics {
	return New(reg)
}

// New 创建指标收集器
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "licensegate_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "licensegate_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		ActivationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "licensegate_activations_total",
				Help: "Total number of activation requests by outcome",
			},
			[]string{"status"},
		),

		AdminOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "licensegate_admin_operations_total",
				Help: "Total number of administrative license operations",
			},
			[]string{"action", "result"},
		),

		Licenses: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "licensegate_licenses",
				Help: "Number of licenses by state at the last expiry report",
			},
			[]string{"state"}, // "total", "bound", "blocked", "expired", "expiring"
		),

		StoreOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "licensegate_store_operation_duration_seconds",
				Help:    "License store operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"backend", "operation"},
		),
	}
}

// RecordHTTPRequest 记录HTTP请求
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration float64) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// RecordActivation 记录激活结果
func (m *Metrics) RecordActivation(status string) {
	m.ActivationsTotal.WithLabelValues(status).Inc()
}

// RecordAdminOperation 记录管理操作
func (m *Metrics) RecordAdminOperation(action, result string) {
	m.AdminOperationsTotal.WithLabelValues(action, result).Inc()
}

// SetLicenseCount 更新某一状态的许可证数量
func (m *Metrics) SetLicenseCount(state string, count int) {
	m.Licenses.WithLabelValues(state).Set(float64(count))
}

// ObserveStoreOperation 记录仓储操作耗时
func (m *Metrics) ObserveStoreOperation(backend, operation string, seconds float64) {
	m.StoreOperationDuration.WithLabelValues(backend, operation).Observe(seconds)
}
