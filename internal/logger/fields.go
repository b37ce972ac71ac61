package logger

import (
	"encoding/hex"

	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

// Fingerprint 返回硬件ID的短摘要，日志中不落明文
func Fingerprint(hwid string) string {
	if hwid == "" {
		return ""
	}
	sum := blake2b.Sum256([]byte(hwid))
	return hex.EncodeToString(sum[:8])
}

// HWID 硬件ID日志字段
func HWID(hwid string) zap.Field {
	return zap.String("hwid_fp", Fingerprint(hwid))
}

// LicenseKey 许可证日志字段
func LicenseKey(key string) zap.Field {
	return zap.String("license_key", key)
}
