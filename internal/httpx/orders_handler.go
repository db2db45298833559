package httpx

import (
	"context"
	"encoding/json"
	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
	"github.com/ariefcatur/go-order-fulfillment/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"net/http"
	"time"
)

// OrdersHandler exposes the lifecycle engine. Redis is optional; the store
// stays the source of truth for idempotency and status.
type OrdersHandler struct {
	Orders *orders.Service
	Redis  *redis.Client
	Log    *zap.Logger
}

type CheckoutResp struct {
	Order      orders.Order `json:"order"`
	Idempotent bool         `json:"idempotent"`
}

type batchReq struct {
	Reason string               `json:"reason"`
	Items  []orders.ItemRequest `json:"items"`
}

type reasonReq struct {
	Reason string `json:"reason"`
}

type resolveReq struct {
	Approve bool   `json:"approve"`
	Reason  string `json:"reason"`
}

type bulkStatusReq struct {
	OrderIDs []string      `json:"order_ids"`
	Status   orders.Status `json:"status"`
}

type supportReq struct {
	CustomerID string `json:"customer_id"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/checkout", h.checkout)
	r.Get("/orders/{id}", h.getOrder)
	r.Post("/orders/{id}/returns", h.requestReturn)
	r.Post("/orders/{id}/return-rejection", h.rejectReturns)
	r.Post("/orders/{id}/cancellations", h.requestCancellation)
	r.Post("/orders/{id}/cancel", h.cancelOrder)
	r.Post("/order-items/{id}/return-resolution", h.resolveReturn)
	r.Post("/admin/orders/status", h.bulkStatus)
	r.Post("/support/assignments", h.assignSupport)
	r.Post("/support/assignments/{id}/close", h.closeSupport)
}

func (h *OrdersHandler) checkout(w http.ResponseWriter, r *http.Request) {
	var req orders.CheckoutRequest
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// Fast-path idempotency via Redis; a miss or a stale key falls through to the store.
	if req.ExternalID != "" && req.CustomerID != "" && h.Redis != nil {
		id, err := redisx.GetString(ctx, h.Redis, redisx.IdemCheckoutKey(req.CustomerID, req.ExternalID))
		if err != nil {
			h.Log.Warn("idempotency lookup failed", zap.Error(err))
		}
		if id != "" {
			if o, err := h.Orders.Order(ctx, id); err == nil && o.CustomerID == req.CustomerID {
				writeJSON(w, http.StatusOK, CheckoutResp{Order: o, Idempotent: true})
				return
			}
		}
	}

	o, replayed, err := h.Orders.Checkout(ctx, req)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if req.ExternalID != "" && h.Redis != nil {
		if err := h.Redis.Set(ctx, redisx.IdemCheckoutKey(req.CustomerID, req.ExternalID), o.ID, redisx.TTLIdempotency).Err(); err != nil {
			h.Log.Warn("idempotency key write failed", zap.String("order_id", o.ID), zap.Error(err))
		}
	}
	h.cache(ctx, o)
	code := http.StatusCreated
	if replayed {
		code = http.StatusOK
	}
	writeJSON(w, code, CheckoutResp{Order: o, Idempotent: replayed})
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 1) coba cache
	if h.Redis != nil {
		if s, err := redisx.GetString(ctx, h.Redis, redisx.OrderStatusKey(orderID)); err == nil && s != "" {
			writeJSON(w, http.StatusOK, json.RawMessage(s))
			return
		}
	}

	// 2) fallback store
	o, err := h.Orders.Order(ctx, orderID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	h.cache(ctx, o)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) cache(ctx context.Context, o orders.Order) {
	if h.Redis == nil {
		return
	}
	b, err := json.Marshal(o)
	if err != nil {
		return
	}
	if err := h.Redis.Set(ctx, redisx.OrderStatusKey(o.ID), b, redisx.TTLStatusCache).Err(); err != nil {
		h.Log.Warn("status cache write failed", zap.String("order_id", o.ID), zap.Error(err))
	}
}

func (h *OrdersHandler) invalidate(ctx context.Context, orderIDs ...string) {
	if h.Redis == nil || len(orderIDs) == 0 {
		return
	}
	keys := make([]string, 0, len(orderIDs))
	for _, id := range orderIDs {
		keys = append(keys, redisx.OrderStatusKey(id))
	}
	if err := h.Redis.Del(ctx, keys...).Err(); err != nil {
		h.Log.Warn("status cache invalidation failed", zap.Strings("order_ids", orderIDs), zap.Error(err))
	}
}

func (h *OrdersHandler) writeBatch(ctx context.Context, w http.ResponseWriter, res orders.BatchResult, err error) {
	if err == nil || len(res.Accepted) > 0 {
		h.invalidate(ctx, res.OrderID)
	}
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, newBatchBody(res))
}

func (h *OrdersHandler) requestReturn(w http.ResponseWriter, r *http.Request) {
	var req batchReq
	if !decode(w, r, &req) {
		return
	}
	res, err := h.Orders.RequestReturn(r.Context(), chi.URLParam(r, "id"), req.Reason, req.Items)
	h.writeBatch(r.Context(), w, res, err)
}

func (h *OrdersHandler) requestCancellation(w http.ResponseWriter, r *http.Request) {
	var req batchReq
	if !decode(w, r, &req) {
		return
	}
	res, err := h.Orders.RequestCancellation(r.Context(), chi.URLParam(r, "id"), req.Reason, req.Items)
	h.writeBatch(r.Context(), w, res, err)
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var req reasonReq
	if !decode(w, r, &req) {
		return
	}
	res, err := h.Orders.CancelOrder(r.Context(), chi.URLParam(r, "id"), req.Reason)
	h.writeBatch(r.Context(), w, res, err)
}

func (h *OrdersHandler) rejectReturns(w http.ResponseWriter, r *http.Request) {
	var req reasonReq
	if !decode(w, r, &req) {
		return
	}
	o, err := h.Orders.RejectReturns(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	h.invalidate(r.Context(), o.ID)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) resolveReturn(w http.ResponseWriter, r *http.Request) {
	var req resolveReq
	if !decode(w, r, &req) {
		return
	}
	o, err := h.Orders.ResolveReturn(r.Context(), chi.URLParam(r, "id"), req.Approve, req.Reason)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	h.invalidate(r.Context(), o.ID)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) bulkStatus(w http.ResponseWriter, r *http.Request) {
	var req bulkStatusReq
	if !decode(w, r, &req) {
		return
	}
	updated, err := h.Orders.BulkSetStatus(r.Context(), req.OrderIDs, req.Status)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	h.invalidate(r.Context(), req.OrderIDs...)
	writeJSON(w, http.StatusOK, map[string]any{"orders": updated})
}

func (h *OrdersHandler) assignSupport(w http.ResponseWriter, r *http.Request) {
	var req supportReq
	if !decode(w, r, &req) {
		return
	}
	a, err := h.Orders.AssignSupport(r.Context(), req.CustomerID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (h *OrdersHandler) closeSupport(w http.ResponseWriter, r *http.Request) {
	a, err := h.Orders.CloseSupport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}
