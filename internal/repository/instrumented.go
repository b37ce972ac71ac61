package repository

import (
	"context"
	"time"

	"github.com/licensegate/backend/internal/domain"
	"github.com/licensegate/backend/internal/metrics"
)

// instrumentedLicenseRepository 记录每次仓储操作耗时的装饰器
type instrumentedLicenseRepository struct {
	next    LicenseRepository
	backend string
	metrics *metrics.Metrics
}

// NewInstrumentedLicenseRepository 为仓储包装耗时指标
func NewInstrumentedLicenseRepository(next LicenseRepository, backend string, m *metrics.Metrics) LicenseRepository {
	return &instrumentedLicenseRepository{next: next, backend: backend, metrics: m}
}

func (r *instrumentedLicenseRepository) observe(operation string, start time.Time) {
	r.metrics.ObserveStoreOperation(r.backend, operation, time.Since(start).Seconds())
}

func (r *instrumentedLicenseRepository) Get(ctx context.Context, key string) (*domain.License, error) {
	defer r.observe("get", time.Now())
	return r.next.Get(ctx, key)
}

func (r *instrumentedLicenseRepository) Put(ctx context.Context, license *domain.License) error {
	defer r.observe("put", time.Now())
	return r.next.Put(ctx, license)
}

func (r *instrumentedLicenseRepository) List(ctx context.Context) ([]domain.License, error) {
	defer r.observe("list", time.Now())
	return r.next.List(ctx)
}

func (r *instrumentedLicenseRepository) CompareAndApply(ctx context.Context, key string, decide Decider) (domain.Status, error) {
	defer r.observe("compare_and_apply", time.Now())
	return r.next.CompareAndApply(ctx, key, decide)
}

func (r *instrumentedLicenseRepository) Modify(ctx context.Context, key string, mut domain.Mutation) (*domain.License, error) {
	defer r.observe("modify", time.Now())
	return r.next.Modify(ctx, key, mut)
}
