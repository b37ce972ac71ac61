package repository

import (
	"context"
	"sync"

	"github.com/licensegate/backend/internal/domain"
)

// memoryEntry 单个密钥的记录及其独占锁
type memoryEntry struct {
	mu      sync.Mutex
	license domain.License
}

// memoryLicenseRepository 进程内许可证仓储。
// mu 只在查找或插入条目时短暂持有；记录的读写只持有对应条目的锁。
type memoryLicenseRepository struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	order   []*memoryEntry
}

// NewMemoryLicenseRepository 创建内存许可证仓储实例
func NewMemoryLicenseRepository() LicenseRepository {
	return &memoryLicenseRepository{
		entries: make(map[string]*memoryEntry),
	}
}

func (r *memoryLicenseRepository) lookup(key string) *memoryEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[key]
}

func (r *memoryLicenseRepository) Get(_ context.Context, key string) (*domain.License, error) {
	e := r.lookup(key)
	if e == nil {
		return nil, domain.ErrNotFound
	}

	e.mu.Lock()
	license := e.license
	e.mu.Unlock()
	return &license, nil
}

func (r *memoryLicenseRepository) Put(_ context.Context, license *domain.License) error {
	e := r.lookup(license.Key)
	if e == nil {
		r.mu.Lock()
		if e = r.entries[license.Key]; e == nil {
			// 条目在发布前已写入完整记录，读者不会看到空记录
			e = &memoryEntry{license: *license}
			e.license.Seq = int64(len(r.order) + 1)
			r.entries[license.Key] = e
			r.order = append(r.order, e)
			r.mu.Unlock()
			return nil
		}
		r.mu.Unlock()
	}

	// 覆盖已有密钥时保留其插入位置
	e.mu.Lock()
	seq := e.license.Seq
	e.license = *license
	e.license.Seq = seq
	e.mu.Unlock()
	return nil
}

func (r *memoryLicenseRepository) List(_ context.Context) ([]domain.License, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// 同时持有全部条目锁，得到时间点一致的快照；拷贝完成后立即释放
	for _, e := range r.order {
		e.mu.Lock()
	}
	licenses := make([]domain.License, len(r.order))
	for i, e := range r.order {
		licenses[i] = e.license
	}
	for _, e := range r.order {
		e.mu.Unlock()
	}
	return licenses, nil
}

func (r *memoryLicenseRepository) CompareAndApply(_ context.Context, key string, decide Decider) (domain.Status, error) {
	e := r.lookup(key)
	if e == nil {
		status, _ := decide(nil)
		return status, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	current := e.license
	status, mut := decide(&current)
	if mut != nil {
		mut.ApplyTo(&e.license)
	}
	return status, nil
}

func (r *memoryLicenseRepository) Modify(_ context.Context, key string, mut domain.Mutation) (*domain.License, error) {
	e := r.lookup(key)
	if e == nil {
		return nil, domain.ErrNotFound
	}

	e.mu.Lock()
	mut.ApplyTo(&e.license)
	license := e.license
	e.mu.Unlock()
	return &license, nil
}
