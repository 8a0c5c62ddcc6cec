package services

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/Gopher0727/ShoppingRoom/internal/models"
	logger "github.com/Gopher0727/ShoppingRoom/middleware/log"
)

const maxExternalIDLen = 64

type UserService struct {
	users UserStore
	log   *zap.Logger
}

func NewUserService(users UserStore, log *zap.Logger) *UserService {
	if log == nil {
		log = zap.NewNop()
	}
	return &UserService{users: users, log: log}
}

// Resolve 把外部账号解析为用户，首次出现时创建；name 非空时刷新用户名
func (s *UserService) Resolve(ctx context.Context, externalID, name string) (*models.User, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, badRequest("missing caller identity")
	}
	if len(externalID) > maxExternalIDLen {
		return nil, badRequest("caller identity is too long")
	}

	user, created, err := s.users.GetOrCreate(ctx, externalID, strings.TrimSpace(name))
	if err != nil {
		return nil, internal("resolve user", err)
	}
	if created {
		s.log.Info("user created",
			zap.Uint("user_id", user.ID),
			zap.String("external_id", externalID),
			logger.TraceField(ctx),
		)
	}
	return user, nil
}

// GetByID 供 WebSocket 凭证校验后加载用户
func (s *UserService) GetByID(ctx context.Context, id uint) (*models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fromRepo("get user", err, ErrUserNotFound)
	}
	return user, nil
}
