package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	domain "github.com/npquoc/mallcore/internal/entity"
	"github.com/npquoc/mallcore/internal/usecase"
)

type OrderHandler struct {
	lifecycle *usecase.OrderLifecycle
	ledger    *usecase.CouponLedger
}

func NewOrderHandler(lc *usecase.OrderLifecycle, ledger *usecase.CouponLedger) *OrderHandler {
	return &OrderHandler{lifecycle: lc, ledger: ledger}
}

type orderItemReq struct {
	SkuID          string `json:"skuId" binding:"required"`
	Qty            int64  `json:"qty" binding:"required,gt=0"`
	UnitPriceCents int64  `json:"unitPriceCents" binding:"required,gt=0"`
}

type createOrderReq struct {
	UserID           string         `json:"userId" binding:"required"`
	StoreID          string         `json:"storeId"`
	Items            []orderItemReq `json:"items" binding:"required,min=1"`
	CouponInstanceID string         `json:"couponInstanceId"`
}

type orderResp struct {
	OrderID    string `json:"orderId"`
	Status     string `json:"status"`
	TotalCents int64  `json:"totalCents"`
}

// CreateOrder handler: translate to use case input.
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req createOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}

	items := make([]domain.OrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, domain.OrderItem{SkuID: it.SkuID, Qty: it.Qty, UnitPriceCents: it.UnitPriceCents})
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	o, err := h.lifecycle.CreateOrder(ctx, usecase.CreateOrderInput{
		UserID:           req.UserID,
		StoreID:          req.StoreID,
		Items:            items,
		CouponInstanceID: req.CouponInstanceID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, orderResp{OrderID: o.ID, Status: string(o.Status), TotalCents: o.TotalCents})
}

func (h *OrderHandler) Pay(c *gin.Context) {
	h.transition(c, func(ctx context.Context, id string) (*domain.Order, error) {
		return h.lifecycle.Pay(ctx, id)
	})
}

func (h *OrderHandler) Cancel(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "cancelled by user"
	}
	h.transition(c, func(ctx context.Context, id string) (*domain.Order, error) {
		return h.lifecycle.Cancel(ctx, id, req.Reason)
	})
}

func (h *OrderHandler) Complete(c *gin.Context) {
	h.transition(c, func(ctx context.Context, id string) (*domain.Order, error) {
		return h.lifecycle.Complete(ctx, id)
	})
}

func (h *OrderHandler) transition(c *gin.Context, fn func(context.Context, string) (*domain.Order, error)) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	o, err := fn(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderResp{OrderID: o.ID, Status: string(o.Status), TotalCents: o.TotalCents})
}

func (h *OrderHandler) GetOrderByID(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	o, err := h.lifecycle.GetOrder(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":                 o.ID,
		"user_id":            o.UserID,
		"store_id":           o.StoreID,
		"status":             o.Status,
		"total_cents":        o.TotalCents,
		"coupon_instance_id": o.CouponInstanceID,
		"created_at":         o.CreatedAt,
	})
}

// GetOrderStatus is the cheap polling endpoint: status only, served from
// the cache projection when it is warm.
func (h *OrderHandler) GetOrderStatus(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	st, err := h.lifecycle.OrderStatus(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "status": st})
}

type claimCouponReq struct {
	UserID string `json:"userId" binding:"required"`
}

// ClaimCoupon issues one instance of a template to the user.
func (h *OrderHandler) ClaimCoupon(c *gin.Context) {
	var req claimCouponReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	inst, err := h.ledger.Issue(ctx, c.Param("id"), req.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"couponInstanceId": inst.ID,
		"templateId":       inst.TemplateID,
		"status":           inst.Status,
	})
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrInvalidCoupon):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrCouponUnavailable):
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
