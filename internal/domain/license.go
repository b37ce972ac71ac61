package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound 许可证不存在
	ErrNotFound = errors.New("license not found")
	// ErrInvalidInput 输入无效（例如去除空白后为空的许可证密钥）
	ErrInvalidInput = errors.New("invalid input")
)

// 到期时间必须能以四位年份的 RFC 3339 表示
var (
	MinExpiry = time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC)
	MaxExpiry = time.Date(9999, time.December, 31, 23, 59, 59, 999999000, time.UTC)
)

// 超过该跨度的天数必然越界，提前拒绝以避免日期运算溢出
const maxValidityDaysSpan = 3_700_000

// TimestampPrecision 存储层（PostgreSQL timestamptz）保留的时间精度
const TimestampPrecision = time.Microsecond

// License 许可证记录实体，每个许可证密钥对应一条
type License struct {
	Seq        int64     `gorm:"type:bigserial;->" json:"-"`
	Key        string    `gorm:"column:license_key;type:text;primaryKey" json:"key"`
	ExpiresAt  time.Time `gorm:"not null;index" json:"expires_at"`
	HardwareID string    `gorm:"column:hardware_id;type:text;not null" json:"hwid"`
	Blocked    bool      `gorm:"not null" json:"blocked"`
	CreatedAt  time.Time `gorm:"not null;autoCreateTime:false" json:"created_at"`
	UpdatedAt  time.Time `gorm:"not null;autoUpdateTime:false" json:"updated_at"`
}

// TableName 指定表名
func (License) TableName() string {
	return "licenses"
}

// Timestamp 截断到存储精度，使返回给调用方的时间与持久化后读回的一致
func Timestamp(t time.Time) time.Time {
	return t.Truncate(TimestampPrecision)
}

// NewLicense 创建有效期从 now 起算 validityDays 天的未绑定许可证
// validityDays 须已通过 ExpiryFrom 校验
func NewLicense(key string, validityDays int, now time.Time) License {
	now = Timestamp(now)
	return License{
		Key:       key,
		ExpiresAt: addDays(now, validityDays),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ExpiryFrom 计算从 now 起 validityDays 天后的到期时间，允许零或负数
// 结果超出 MinExpiry..MaxExpiry 时返回 ErrInvalidInput
func ExpiryFrom(now time.Time, validityDays int) (time.Time, error) {
	if validityDays > maxValidityDaysSpan || validityDays < -maxValidityDaysSpan {
		return time.Time{}, fmt.Errorf("%w: validity days %d out of range", ErrInvalidInput, validityDays)
	}
	expiresAt := addDays(now, validityDays)
	if expiresAt.Before(MinExpiry) || expiresAt.After(MaxExpiry) {
		return time.Time{}, fmt.Errorf("%w: expiry %d days from now is outside years 1-9999", ErrInvalidInput, validityDays)
	}
	return expiresAt, nil
}

func addDays(now time.Time, days int) time.Time {
	return Timestamp(now.AddDate(0, 0, days))
}

// IsBound 是否已绑定硬件ID
func (l *License) IsBound() bool {
	return l.HardwareID != ""
}

// IsExpired 检查许可证在 now 时刻是否已过期（到期时刻本身仍有效）
func (l *License) IsExpired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}

// Mutation 对许可证记录的一次变更，零值字段表示不修改
type Mutation struct {
	HardwareID *string
	ExpiresAt  *time.Time
	Block      bool
	At         time.Time
}

// BindHardware 绑定硬件ID
func BindHardware(hwid string, at time.Time) *Mutation {
	return &Mutation{HardwareID: &hwid, At: Timestamp(at)}
}

// ResetHardware 清除已绑定的硬件ID
func ResetHardware(at time.Time) Mutation {
	unbound := ""
	return Mutation{HardwareID: &unbound, At: Timestamp(at)}
}

// ExtendTo 将到期时间设置为 expiresAt
func ExtendTo(expiresAt, at time.Time) Mutation {
	return Mutation{ExpiresAt: &expiresAt, At: Timestamp(at)}
}

// BlockLicense 封禁许可证（不可逆）
func BlockLicense(at time.Time) Mutation {
	return Mutation{Block: true, At: Timestamp(at)}
}

// ApplyTo 将变更写入记录
func (m Mutation) ApplyTo(l *License) {
	if m.HardwareID != nil {
		l.HardwareID = *m.HardwareID
	}
	if m.ExpiresAt != nil {
		l.ExpiresAt = *m.ExpiresAt
	}
	if m.Block {
		l.Blocked = true
	}
	if !m.At.IsZero() {
		l.UpdatedAt = m.At
	}
}
