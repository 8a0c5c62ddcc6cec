package utils

import (
	"strings"

	"github.com/google/uuid"
)

const maxInviteCodeLength = 32

// NewInviteCode 生成 length 位小写十六进制邀请码，length 超出 [1, 32] 时按边界截断
func NewInviteCode(length int) string {
	if length <= 0 {
		length = 1
	}
	if length > maxInviteCodeLength {
		length = maxInviteCodeLength
	}
	code := strings.ReplaceAll(uuid.NewString(), "-", "")
	return code[:length]
}
