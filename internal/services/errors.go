package services

import (
	"errors"
	"fmt"

	"github.com/Gopher0727/ShoppingRoom/internal/repositories"
)

// Kind 业务错误分类，handler 层据此映射 HTTP 状态码
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindForbidden
	KindConflict
	KindBadRequest
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindBadRequest:
		return "bad_request"
	default:
		return "internal"
	}
}

// Error 服务层返回的唯一错误类型
type Error struct {
	Kind    Kind
	Message string
	Err     error // 原始错误，仅用于日志，不会返回给调用方
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 让 errors.Is(err, ErrRoomNotFound) 之类的比较只看 Kind 与 Message
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

var (
	ErrRoomNotFound     = &Error{Kind: KindNotFound, Message: "room not found"}
	ErrInviteNotFound   = &Error{Kind: KindNotFound, Message: "invite code not found"}
	ErrItemNotFound     = &Error{Kind: KindNotFound, Message: "item not found"}
	ErrUserNotFound     = &Error{Kind: KindNotFound, Message: "user not found"}
	ErrNotMember        = &Error{Kind: KindNotFound, Message: "user is not a member of this room"}
	ErrNotOwner         = &Error{Kind: KindForbidden, Message: "you are not the owner of this room"}
	ErrAccessDenied     = &Error{Kind: KindForbidden, Message: "you are not a member of this room"}
	ErrOwnerNotRemoved  = &Error{Kind: KindForbidden, Message: "the owner cannot be removed from the room"}
	ErrAlreadyMember    = &Error{Kind: KindConflict, Message: "user is already a member of this room"}
	ErrOwnerCannotLeave = &Error{Kind: KindBadRequest, Message: "owner cannot leave the room, delete it instead"}
	ErrInviteExhausted  = &Error{Kind: KindInternal, Message: "could not allocate a unique invite code"}
	ErrTicketsDisabled  = &Error{Kind: KindNotFound, Message: "connection tickets are not enabled"}
)

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func badRequest(format string, args ...any) *Error {
	return newError(KindBadRequest, format, args...)
}

// internal 包装无法归因于调用方的存储错误
func internal(op string, err error) *Error {
	return &Error{Kind: KindInternal, Message: op + " failed", Err: err}
}

// KindOf 返回错误分类，非 *Error 一律视为 Internal
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind 判断 err 是否属于给定分类
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// PublicMessage 返回可以展示给调用方的信息，Internal 错误不暴露细节
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Message
	}
	return "internal server error"
}

// fromRepo 将仓储层 ErrNotFound 映射为 notFound，其余错误视为 Internal
func fromRepo(op string, err error, notFound *Error) error {
	if err == nil {
		return nil
	}
	if notFound != nil && errors.Is(err, repositories.ErrNotFound) {
		return notFound
	}
	return internal(op, err)
}
