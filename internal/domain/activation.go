package domain

import (
	"strings"
	"time"
)

// Status 激活结果
type Status string

const (
	StatusActive       Status = "active"
	StatusInvalid      Status = "invalid"
	StatusBlocked      Status = "blocked"
	StatusExpired      Status = "expired"
	StatusHWIDMismatch Status = "hwid_mismatch"
)

// Statuses 全部激活结果，按判定顺序排列
var Statuses = []Status{StatusInvalid, StatusBlocked, StatusExpired, StatusHWIDMismatch, StatusActive}

// Evaluate 根据记录快照判定一次激活请求的结果及需要写回的变更。
// 判定顺序固定：不存在 > 已封禁 > 已过期 > 硬件不匹配 > 首次绑定 > 已绑定同一硬件。
// rec 为 nil 表示许可证不存在。函数无副作用。
func Evaluate(rec *License, hwid string, now time.Time) (Status, *Mutation) {
	if rec == nil {
		return StatusInvalid, nil
	}
	if rec.Blocked {
		return StatusBlocked, nil
	}
	if rec.IsExpired(now) {
		return StatusExpired, nil
	}

	hwid = strings.TrimSpace(hwid)
	switch {
	case rec.IsBound() && rec.HardwareID != hwid:
		return StatusHWIDMismatch, nil
	case !rec.IsBound() && hwid != "":
		return StatusActive, BindHardware(hwid, now)
	default:
		// 已绑定同一硬件，或空硬件ID（绑定空值等同于不绑定）
		return StatusActive, nil
	}
}
