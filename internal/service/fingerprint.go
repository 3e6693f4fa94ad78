package service

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint trả về SHA-256 hex của frame bytes, dùng làm cache key và
// token de-duplication cho single-flight. Hash theo byte chính xác: hai frame
// giống hệt nhau mới trùng key (perceptual hash cho frame gần giống là
// cải tiến tương lai, không phải yêu cầu).
func Fingerprint(frame []byte) string {
	sum := sha256.Sum256(frame)
	return hex.EncodeToString(sum[:])
}

// shortFP rút gọn fingerprint cho log.
func shortFP(fp string) string {
	if len(fp) <= 8 {
		return fp
	}
	return fp[:8]
}
