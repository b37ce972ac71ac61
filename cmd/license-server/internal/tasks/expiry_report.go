package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/licensegate/backend/internal/clock"
	"github.com/licensegate/backend/internal/config"
	"github.com/licensegate/backend/internal/domain"
	"github.com/licensegate/backend/internal/logger"
	"github.com/licensegate/backend/internal/metrics"
	"go.uber.org/zap"
)

// LicenseLister 任务只需要全量快照
type LicenseLister interface {
	List(ctx context.Context) ([]domain.License, error)
}

// Report 一次到期检查的统计结果
type Report struct {
	Total    int
	Bound    int
	Blocked  int
	Expired  int
	Expiring int
}

// ExpiryReportTask 许可证到期检查任务
type ExpiryReportTask struct {
	licenses LicenseLister
	clock    clock.Clock
	metrics  *metrics.Metrics
	logger   *zap.Logger
	window   time.Duration
}

// NewExpiryReportTask 创建到期检查任务
func NewExpiryReportTask(
	licenses LicenseLister,
	clk clock.Clock,
	m *metrics.Metrics,
	logger *zap.Logger,
	cfg *config.Config,
) *ExpiryReportTask {
	return &ExpiryReportTask{
		licenses: licenses,
		clock:    clk,
		metrics:  m,
		logger:   logger.Named("expiry_report"),
		window:   cfg.Worker.WarningWindow,
	}
}

// Run 统计许可证状态并提示即将到期的许可证
func (t *ExpiryReportTask) Run(ctx context.Context) (Report, error) {
	licenses, err := t.licenses.List(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("failed to list licenses: %w", err)
	}

	now := t.clock.Now()
	threshold := now.Add(t.window)

	var report Report
	for i := range licenses {
		l := &licenses[i]
		report.Total++
		if l.IsBound() {
			report.Bound++
		}
		if l.Blocked {
			report.Blocked++
			continue
		}
		if l.IsExpired(now) {
			report.Expired++
			continue
		}
		if !l.ExpiresAt.After(threshold) {
			report.Expiring++
			logger.ForLicense(t.logger, l.Key).Warn("License expiring soon",
				zap.Time("expires_at", l.ExpiresAt),
				zap.Duration("remaining", l.ExpiresAt.Sub(now)),
			)
		}
	}

	t.metrics.SetLicenseCount("total", report.Total)
	t.metrics.SetLicenseCount("bound", report.Bound)
	t.metrics.SetLicenseCount("blocked", report.Blocked)
	t.metrics.SetLicenseCount("expired", report.Expired)
	t.metrics.SetLicenseCount("expiring", report.Expiring)

	t.logger.Info("Expiry report completed",
		zap.Int("total", report.Total),
		zap.Int("bound", report.Bound),
		zap.Int("blocked", report.Blocked),
		zap.Int("expired", report.Expired),
		zap.Int("expiring", report.Expiring),
	)

	return report, nil
}
