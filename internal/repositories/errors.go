package repositories

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// 仓储层通用错误，服务层据此映射到业务错误类型
var (
	// ErrNotFound 请求的记录不存在
	ErrNotFound = errors.New("repository: record not found")
	// ErrDuplicateEntry 违反唯一约束
	ErrDuplicateEntry = errors.New("repository: duplicate entry")
	// ErrInviteCodeTaken 邀请码冲突，调用方应换一个邀请码重试
	ErrInviteCodeTaken = fmt.Errorf("%w: invite code", ErrDuplicateEntry)
)

const pgUniqueViolation = "23505"

// translateError 将 gorm / pgx 错误翻译为仓储层错误，其他错误原样返回
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateEntry
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrDuplicateEntry
	}
	return err
}
