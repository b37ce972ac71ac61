package repository

import (
	"context"
	"errors"

	"github.com/licensegate/backend/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Decider 根据当前记录（nil 表示不存在）给出激活结果以及需要一并提交的变更
type Decider func(current *domain.License) (domain.Status, *domain.Mutation)

// LicenseRepository 许可证仓储接口。
// 同一密钥上的 CompareAndApply/Modify/Put 互斥执行，不同密钥之间互不阻塞。
type LicenseRepository interface {
	// Get 查询许可证，不存在时返回 domain.ErrNotFound
	Get(ctx context.Context, key string) (*domain.License, error)
	// Put 创建或覆盖许可证
	Put(ctx context.Context, license *domain.License) error
	// List 按插入顺序返回所有许可证的一致快照
	List(ctx context.Context) ([]domain.License, error)
	// CompareAndApply 原子地读取记录、调用 decide 并写回其变更
	CompareAndApply(ctx context.Context, key string, decide Decider) (domain.Status, error)
	// Modify 原子地对已存在的许可证应用变更，不存在时返回 domain.ErrNotFound
	Modify(ctx context.Context, key string, mut domain.Mutation) (*domain.License, error)
}

type licenseRepository struct {
	db *gorm.DB
}

// NewLicenseRepository 创建基于PostgreSQL的许可证仓储实例
func NewLicenseRepository(db *gorm.DB) LicenseRepository {
	return &licenseRepository{db: db}
}

func (r *licenseRepository) Get(ctx context.Context, key string) (*domain.License, error) {
	var license domain.License
	err := r.db.WithContext(ctx).Take(&license, "license_key = ?", key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &license, nil
}

func (r *licenseRepository) Put(ctx context.Context, license *domain.License) error {
	// 重复创建视为全新记录，但保留原插入序号
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "license_key"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"expires_at", "hardware_id", "blocked", "created_at", "updated_at",
			}),
		}).
		Create(license).Error
}

func (r *licenseRepository) List(ctx context.Context) ([]domain.License, error) {
	var licenses []domain.License
	err := r.db.WithContext(ctx).Order("seq ASC").Find(&licenses).Error
	return licenses, err
}

func (r *licenseRepository) CompareAndApply(ctx context.Context, key string, decide Decider) (domain.Status, error) {
	var status domain.Status
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := lockLicense(tx, key)
		if err != nil {
			return err
		}

		var mut *domain.Mutation
		status, mut = decide(current)
		if current == nil || mut == nil {
			return nil
		}

		mut.ApplyTo(current)
		return saveMutation(tx, current)
	})
	if err != nil {
		return "", err
	}
	return status, nil
}

func (r *licenseRepository) Modify(ctx context.Context, key string, mut domain.Mutation) (*domain.License, error) {
	var updated *domain.License
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := lockLicense(tx, key)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotFound
		}

		mut.ApplyTo(current)
		if err := saveMutation(tx, current); err != nil {
			return err
		}
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// lockLicense 以 SELECT ... FOR UPDATE 读取记录，不存在时返回 nil
func lockLicense(tx *gorm.DB, key string) (*domain.License, error) {
	var license domain.License
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Take(&license, "license_key = ?", key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &license, nil
}

func saveMutation(tx *gorm.DB, license *domain.License) error {
	return tx.Model(&domain.License{}).
		Where("license_key = ?", license.Key).
		Updates(map[string]interface{}{
			"expires_at":  license.ExpiresAt,
			"hardware_id": license.HardwareID,
			"blocked":     license.Blocked,
			"updated_at":  license.UpdatedAt,
		}).Error
}
