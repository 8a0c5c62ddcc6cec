package services

import (
	"context"
)

// MembershipChecker 由 repositories.RoomRepository 实现
type MembershipChecker interface {
	IsMember(ctx context.Context, roomID, userID uint) (bool, error)
}

// AccessControl 回答 "用户是否是房间成员"，不产生副作用
type AccessControl struct {
	members MembershipChecker
}

func NewAccessControl(members MembershipChecker) *AccessControl {
	return &AccessControl{members: members}
}

// IsMember 非成员是正常的否定结果，只有存储故障才返回 error
func (a *AccessControl) IsMember(ctx context.Context, userID, roomID uint) (bool, error) {
	ok, err := a.members.IsMember(ctx, roomID, userID)
	if err != nil {
		return false, internal("membership check", err)
	}
	return ok, nil
}

// Require 非成员返回 ErrAccessDenied
func (a *AccessControl) Require(ctx context.Context, userID, roomID uint) error {
	ok, err := a.IsMember(ctx, userID, roomID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAccessDenied
	}
	return nil
}
