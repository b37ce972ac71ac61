package clock

import (
	"sync"
	"time"
)

// Clock 提供当前时间，便于在测试中替换
type Clock interface {
	Now() time.Time
}

// System 系统时钟（UTC）
type System struct{}

// NewSystem 创建系统时钟（Fx兼容）
func NewSystem() Clock {
	return System{}
}

// Now 返回当前UTC时间
func (System) Now() time.Time {
	return time.Now().UTC()
}

// Manual 手动时钟，仅在显式调用 Set/Advance 时前进
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual 创建固定在 t 的手动时钟
func NewManual(t time.Time) *Manual {
	return &Manual{now: t.UTC()}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set 将时钟设置为 t
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t.UTC()
	m.mu.Unlock()
}

// Advance 将时钟向前推进 d
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}
