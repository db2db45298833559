package httpx

import (
	"github.com/ariefcatur/go-order-fulfillment/internal/inventory"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"net/http"
	"time"
)

type InventoryHandler struct {
	Stock *inventory.Service
	Log   *zap.Logger
}

type receiveReq struct {
	Quantity   int             `json:"quantity"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	ReceivedAt *time.Time      `json:"received_at,omitempty"`
}

// adjustReq moves stock outside an order: a negative delta consumes FIFO, a
// positive one restocks into the lot chosen by policy (default oldest_lot).
type adjustReq struct {
	Delta  int    `json:"delta"`
	Policy string `json:"policy,omitempty"`
}

type adjustResp struct {
	VariantID string           `json:"variant_id"`
	Delta     int              `json:"delta"`
	Takes     []inventory.Take `json:"takes,omitempty"`
	Lot       *lotResp         `json:"lot,omitempty"`
}

type lotResp struct {
	ID                string          `json:"id"`
	VariantID         string          `json:"variant_id"`
	ReceivedAt        time.Time       `json:"received_at"`
	QuantityRemaining int             `json:"quantity_remaining"`
	UnitCost          decimal.Decimal `json:"unit_cost"`
}

type levelResp struct {
	VariantID string    `json:"variant_id"`
	OnHand    int       `json:"on_hand"`
	Lots      []lotResp `json:"lots"`
}

func toLotResp(l inventory.Lot) lotResp {
	return lotResp{ID: l.ID, VariantID: l.VariantID, ReceivedAt: l.ReceivedAt, QuantityRemaining: l.QuantityRemaining, UnitCost: l.UnitCost}
}

func (h *InventoryHandler) Register(r chi.Router) {
	r.Post("/inventory/variants/{id}/lots", h.receive)
	r.Post("/inventory/variants/{id}/adjustments", h.adjust)
	r.Get("/inventory/variants/{id}", h.level)
}

func (h *InventoryHandler) receive(w http.ResponseWriter, r *http.Request) {
	var req receiveReq
	if !decode(w, r, &req) {
		return
	}
	at := time.Now().UTC()
	if req.ReceivedAt != nil {
		at = req.ReceivedAt.UTC()
	}
	lot, err := h.Stock.Receive(r.Context(), chi.URLParam(r, "id"), req.Quantity, req.UnitCost, at)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLotResp(lot))
}

func (h *InventoryHandler) level(w http.ResponseWriter, r *http.Request) {
	lvl, err := h.Stock.Level(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	out := levelResp{VariantID: lvl.VariantID, OnHand: lvl.OnHand, Lots: make([]lotResp, 0, len(lvl.Lots))}
	for _, l := range lvl.Lots {
		out.Lots = append(out.Lots, toLotResp(l))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *InventoryHandler) adjust(w http.ResponseWriter, r *http.Request) {
	var req adjustReq
	if !decode(w, r, &req) {
		return
	}
	variantID := chi.URLParam(r, "id")
	out := adjustResp{VariantID: variantID, Delta: req.Delta}
	switch {
	case req.Delta < 0:
		c, err := h.Stock.Consume(r.Context(), variantID, -req.Delta)
		if err != nil {
			writeError(w, h.Log, err)
			return
		}
		out.Takes = c.Takes
	case req.Delta > 0:
		policy := inventory.OldestLot
		if req.Policy != "" {
			var err error
			if policy, err = inventory.ParsePolicy(req.Policy); err != nil {
				writeError(w, h.Log, err)
				return
			}
		}
		lot, err := h.Stock.Restock(r.Context(), variantID, req.Delta, policy)
		if err != nil {
			writeError(w, h.Log, err)
			return
		}
		lr := toLotResp(lot)
		out.Lot = &lr
	default:
		writeError(w, h.Log, inventory.ErrInvalidQuantity)
		return
	}
	h.Log.Info("stock adjusted", zap.String("variant_id", variantID), zap.Int("delta", req.Delta))
	writeJSON(w, http.StatusOK, out)
}
