package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/licensegate/backend/internal/clock"
	"github.com/licensegate/backend/internal/config"
	"github.com/licensegate/backend/internal/domain"
	"github.com/licensegate/backend/internal/logger"
	"github.com/licensegate/backend/internal/metrics"
	"github.com/licensegate/backend/internal/repository"
	"go.uber.org/zap"
)

// 管理操作名称，与响应中的 action 字段一致
const (
	ActionCreate    = "create"
	ActionExtend    = "extend"
	ActionResetHWID = "reset_hwid"
	ActionBlock     = "block"
)

// LicenseService 许可证服务
type LicenseService struct {
	repo            repository.LicenseRepository
	clock           clock.Clock
	metrics         *metrics.Metrics
	logger          *zap.Logger
	rejectEmptyHWID bool
}

// NewLicenseService 创建许可证服务实例
func NewLicenseService(
	repo repository.LicenseRepository,
	clk clock.Clock,
	m *metrics.Metrics,
	log *zap.Logger,
	cfg *config.Config,
) *LicenseService {
	return &LicenseService{
		repo:            repo,
		clock:           clk,
		metrics:         m,
		logger:          log.Named("license"),
		rejectEmptyHWID: cfg.License.RejectEmptyHWID,
	}
}

// Activate 激活许可证：判定与绑定在同一个原子步骤内完成
func (s *LicenseService) Activate(ctx context.Context, key, hwid string) (domain.Status, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return "", err
	}

	hwid = strings.TrimSpace(hwid)
	if hwid == "" && s.rejectEmptyHWID {
		return "", fmt.Errorf("%w: hardware id must not be empty", domain.ErrInvalidInput)
	}

	log := logger.ForActivation(s.logger, key, hwid)
	now := s.clock.Now()
	var bound bool
	status, err := s.repo.CompareAndApply(ctx, key, func(current *domain.License) (domain.Status, *domain.Mutation) {
		status, mut := domain.Evaluate(current, hwid, now)
		bound = mut != nil
		return status, mut
	})
	if err != nil {
		log.Error("Activation failed", zap.Error(err))
		return "", fmt.Errorf("failed to activate license: %w", err)
	}

	s.metrics.RecordActivation(string(status))
	if bound {
		log.Info("License bound to hardware")
	} else {
		log.Debug("License activation evaluated", zap.String("status", string(status)))
	}

	return status, nil
}

// Create 创建（或覆盖）许可证，有效期从当前时间起算
func (s *LicenseService) Create(ctx context.Context, key string, validityDays int) (*domain.License, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return nil, s.adminFailed(ActionCreate, err)
	}
	now := s.clock.Now()
	if _, err := domain.ExpiryFrom(now, validityDays); err != nil {
		return nil, s.adminFailed(ActionCreate, err)
	}

	license := domain.NewLicense(key, validityDays, now)
	if err := s.repo.Put(ctx, &license); err != nil {
		return nil, s.adminFailed(ActionCreate, fmt.Errorf("failed to create license: %w", err))
	}

	s.metrics.RecordAdminOperation(ActionCreate, "ok")
	logger.ForLicense(s.logger, key).Info("License created",
		zap.Int("validity_days", validityDays),
		zap.Time("expires_at", license.ExpiresAt),
	)
	return &license, nil
}

// Extend 将到期时间重新设置为当前时间起 validityDays 天后
func (s *LicenseService) Extend(ctx context.Context, key string, validityDays int) (time.Time, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return time.Time{}, s.adminFailed(ActionExtend, err)
	}
	now := s.clock.Now()
	expiresAt, err := domain.ExpiryFrom(now, validityDays)
	if err != nil {
		return time.Time{}, s.adminFailed(ActionExtend, err)
	}

	updated, err := s.repo.Modify(ctx, key, domain.ExtendTo(expiresAt, now))
	if err != nil {
		return time.Time{}, s.adminFailed(ActionExtend, fmt.Errorf("failed to extend license: %w", err))
	}

	s.metrics.RecordAdminOperation(ActionExtend, "ok")
	logger.ForLicense(s.logger, key).Info("License extended", zap.Time("expires_at", updated.ExpiresAt))
	return updated.ExpiresAt, nil
}

// ResetHWID 清除许可证绑定的硬件ID
func (s *LicenseService) ResetHWID(ctx context.Context, key string) error {
	key, err := normalizeKey(key)
	if err != nil {
		return s.adminFailed(ActionResetHWID, err)
	}

	if _, err := s.repo.Modify(ctx, key, domain.ResetHardware(s.clock.Now())); err != nil {
		return s.adminFailed(ActionResetHWID, fmt.Errorf("failed to reset hardware id: %w", err))
	}

	s.metrics.RecordAdminOperation(ActionResetHWID, "ok")
	logger.ForLicense(s.logger, key).Info("License hardware id reset")
	return nil
}

// Block 封禁许可证
func (s *LicenseService) Block(ctx context.Context, key string) error {
	key, err := normalizeKey(key)
	if err != nil {
		return s.adminFailed(ActionBlock, err)
	}

	if _, err := s.repo.Modify(ctx, key, domain.BlockLicense(s.clock.Now())); err != nil {
		return s.adminFailed(ActionBlock, fmt.Errorf("failed to block license: %w", err))
	}

	s.metrics.RecordAdminOperation(ActionBlock, "ok")
	logger.ForLicense(s.logger, key).Info("License blocked")
	return nil
}

// Info 获取许可证快照
func (s *LicenseService) Info(ctx context.Context, key string) (*domain.License, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}

	license, err := s.repo.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get license: %w", err)
	}
	return license, nil
}

// List 按创建顺序返回全部许可证快照
func (s *LicenseService) List(ctx context.Context) ([]domain.License, error) {
	licenses, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list licenses: %w", err)
	}
	return licenses, nil
}

// adminFailed 记录失败的管理操作并原样返回错误
func (s *LicenseService) adminFailed(action string, err error) error {
	result := "error"
	switch {
	case errors.Is(err, domain.ErrNotFound):
		result = "not_found"
	case errors.Is(err, domain.ErrInvalidInput):
		result = "invalid_input"
	default:
		s.logger.Error("Admin operation failed", zap.String("action", action), zap.Error(err))
	}
	s.metrics.RecordAdminOperation(action, result)
	return err
}

func normalizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("%w: license key must not be empty", domain.ErrInvalidInput)
	}
	return key, nil
}
