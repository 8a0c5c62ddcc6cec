package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Gopher0727/ShoppingRoom/internal/models"
	"github.com/Gopher0727/ShoppingRoom/internal/services"
)

// ItemAPI 由 services.ItemService 实现
type ItemAPI interface {
	AddItem(ctx context.Context, actor *models.User, req *services.AddItemRequest) (*services.ItemResponse, error)
	UpdateItem(ctx context.Context, actor *models.User, itemID uint, req *services.UpdateItemRequest) (*services.ItemResponse, error)
	DeleteItem(ctx context.Context, actor *models.User, itemID uint) error
	ListItems(ctx context.Context, user *models.User, roomID uint) ([]services.ItemResponse, error)
}

type ItemHandler struct {
	items ItemAPI
	log   *zap.Logger
}

func NewItemHandler(items ItemAPI, log *zap.Logger) *ItemHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ItemHandler{items: items, log: log}
}

// AddItem POST /shopping
func (h *ItemHandler) AddItem(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	var req services.AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	resp, err := h.items.AddItem(c.Request.Context(), user, &req)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	success(c, resp)
}

// ListItems GET /shopping/:room_id
func (h *ItemHandler) ListItems(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	roomID, ok := pathID(c, "room_id")
	if !ok {
		return
	}
	resp, err := h.items.ListItems(c.Request.Context(), user, roomID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	success(c, resp)
}

// UpdateItem PUT /shopping/:item_id
func (h *ItemHandler) UpdateItem(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	itemID, ok := pathID(c, "item_id")
	if !ok {
		return
	}
	var req services.UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	resp, err := h.items.UpdateItem(c.Request.Context(), user, itemID, &req)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	success(c, resp)
}

// DeleteItem DELETE /shopping/:item_id
func (h *ItemHandler) DeleteItem(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	itemID, ok := pathID(c, "item_id")
	if !ok {
		return
	}
	if err := h.items.DeleteItem(c.Request.Context(), user, itemID); err != nil {
		writeError(c, h.log, err)
		return
	}
	success(c, gin.H{"item_id": itemID})
}
