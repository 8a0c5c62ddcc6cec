package utils

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidTicket = errors.New("invalid ticket")
	ErrExpiredTicket = errors.New("ticket has expired")
	ErrTicketRoom    = errors.New("ticket was issued for another room")
)

// TicketClaims 房间连接凭证，只对签发时的房间有效
type TicketClaims struct {
	UserID uint `json:"user_id"`
	RoomID uint `json:"room_id"`
	jwt.RegisteredClaims
}

// TicketManager 签发和校验 WebSocket 连接凭证
type TicketManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTicketManager(secret string, ttl time.Duration) *TicketManager {
	return &TicketManager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Enabled 未配置密钥时不签发凭证
func (tm *TicketManager) Enabled() bool {
	return tm != nil && len(tm.secret) > 0
}

func (tm *TicketManager) Issue(userID, roomID uint) (string, time.Time, error) {
	now := tm.now()
	exp := now.Add(tm.ttl)
	claims := TicketClaims{
		UserID: userID,
		RoomID: roomID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Verify 校验凭证并确认它属于 roomID，返回持有者的用户 ID
func (tm *TicketManager) Verify(ticket string, roomID uint) (uint, error) {
	token, err := jwt.ParseWithClaims(ticket, &TicketClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidTicket
		}
		return tm.secret, nil
	}, jwt.WithTimeFunc(tm.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, ErrExpiredTicket
		}
		return 0, ErrInvalidTicket
	}

	claims, ok := token.Claims.(*TicketClaims)
	if !ok || !token.Valid {
		return 0, ErrInvalidTicket
	}
	if claims.RoomID != roomID {
		return 0, ErrTicketRoom
	}
	return claims.UserID, nil
}
