package constants

import "time"

const (
	// SessionTTL 会话缓存默认有效期
	SessionTTL = 30 * time.Minute

	// FingerprintLength 会话指纹长度（十六进制字符）
	FingerprintLength = 16

	// ReconstructedSuffix 重构结果下载文件名后缀
	ReconstructedSuffix = "_reconstructed.txt"

	// ModeFast 快速重构模式
	ModeFast = "fast"
	// ModeFull 完整重构模式
	ModeFull = "full"
)
