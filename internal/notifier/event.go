package notifier

import (
	"errors"
	"fmt"
	"time"
)

// Kind 房间事件类型
type Kind string

const (
	RoomCreated   Kind = "room_created"
	RoomRenamed   Kind = "room_renamed"
	RoomDeleted   Kind = "room_deleted"
	MemberJoined  Kind = "member_joined"
	MemberLeft    Kind = "member_left"
	MemberAdded   Kind = "member_added"
	MemberRemoved Kind = "member_removed"
	ItemAdded     Kind = "item_added"
	ItemUpdated   Kind = "item_updated"
	ItemDeleted   Kind = "item_deleted"
)

// Event 描述一次已提交的状态变更。字段按事件类型选填
type Event struct {
	Kind     Kind      `json:"kind"`
	RoomID   uint      `json:"room_id"`
	RoomName string    `json:"room_name,omitempty"`
	OldName  string    `json:"old_name,omitempty"` // 房间或条目改名前的名字
	Actor    string    `json:"actor,omitempty"`    // 触发操作的用户
	Target   string    `json:"target,omitempty"`   // 被添加/移除的成员
	ItemName string    `json:"item_name,omitempty"`
	Category string    `json:"category,omitempty"`
	At       time.Time `json:"at"`
}

var errMissingField = errors.New("missing event field")

// Format 生成人类可读的事件描述，必填字段缺失时返回错误
func Format(e Event) (string, error) {
	need := func(fields ...string) error {
		for _, f := range fields {
			if f == "" {
				return fmt.Errorf("%w for %s", errMissingField, e.Kind)
			}
		}
		return nil
	}

	switch e.Kind {
	case RoomCreated:
		if err := need(e.RoomName); err != nil {
			return "", err
		}
		return fmt.Sprintf("Room %q was created by %s", e.RoomName, nameOr(e.Actor)), nil
	case RoomRenamed:
		if err := need(e.OldName, e.RoomName); err != nil {
			return "", err
		}
		return fmt.Sprintf("Room %q was renamed to %q", e.OldName, e.RoomName), nil
	case RoomDeleted:
		if err := need(e.RoomName); err != nil {
			return "", err
		}
		return fmt.Sprintf("Room %q was deleted by %s", e.RoomName, nameOr(e.Actor)), nil
	case MemberJoined:
		if err := need(e.Actor); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s joined the room%s", e.Actor, roomSuffix(e.RoomName)), nil
	case MemberLeft:
		if err := need(e.Actor); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s left the room%s", e.Actor, roomSuffix(e.RoomName)), nil
	case MemberAdded:
		if err := need(e.Target); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s was added to the room%s by %s", e.Target, roomSuffix(e.RoomName), nameOr(e.Actor)), nil
	case MemberRemoved:
		if err := need(e.Target); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s was removed from the room%s by %s", e.Target, roomSuffix(e.RoomName), nameOr(e.Actor)), nil
	case ItemAdded:
		if err := need(e.ItemName); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s added %q%s", nameOr(e.Actor), e.ItemName, categorySuffix(e.Category)), nil
	case ItemUpdated:
		if err := need(e.ItemName); err != nil {
			return "", err
		}
		if e.OldName != "" && e.OldName != e.ItemName {
			return fmt.Sprintf("%s renamed %q to %q%s", nameOr(e.Actor), e.OldName, e.ItemName, categorySuffix(e.Category)), nil
		}
		return fmt.Sprintf("%s updated %q%s", nameOr(e.Actor), e.ItemName, categorySuffix(e.Category)), nil
	case ItemDeleted:
		if err := need(e.ItemName); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s removed %q", nameOr(e.Actor), e.ItemName), nil
	}
	return "", fmt.Errorf("unknown event kind %q", e.Kind)
}

// Generic 格式化失败时的兜底描述
func Generic(e Event) string {
	return fmt.Sprintf("Room %d was updated", e.RoomID)
}

func nameOr(name string) string {
	if name == "" {
		return "someone"
	}
	return name
}

func roomSuffix(room string) string {
	if room == "" {
		return ""
	}
	return fmt.Sprintf(" %q", room)
}

func categorySuffix(category string) string {
	if category == "" {
		return ""
	}
	return " (" + category + ")"
}
