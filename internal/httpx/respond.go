package httpx

import (
	"encoding/json"
	"errors"
	"github.com/ariefcatur/go-order-fulfillment/internal/inventory"
	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
	"go.uber.org/zap"
	"net/http"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return false
	}
	return true
}

type itemFailure struct {
	OrderItemID string `json:"order_item_id"`
	Error       string `json:"error"`
}

type batchBody struct {
	orders.BatchResult
	Failures []itemFailure `json:"failures,omitempty"`
}

func newBatchBody(res orders.BatchResult) batchBody {
	b := batchBody{BatchResult: res}
	for _, f := range res.Failures {
		b.Failures = append(b.Failures, itemFailure{OrderItemID: f.OrderItemID, Error: f.Err.Error()})
	}
	return b
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, orders.ErrValidation), errors.Is(err, inventory.ErrInvalidQuantity),
		errors.Is(err, inventory.ErrInvalidCost), errors.Is(err, inventory.ErrUnknownPolicy):
		return http.StatusBadRequest
	case errors.Is(err, orders.ErrNotFound), errors.Is(err, inventory.ErrUnknownVariant):
		return http.StatusNotFound
	case errors.Is(err, orders.ErrConflict), errors.Is(err, orders.ErrInsufficientStock),
		errors.Is(err, inventory.ErrNoLots):
		return http.StatusConflict
	case errors.Is(err, orders.ErrNoHandlerAvailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, orders.ErrPartialBatch):
		return http.StatusMultiStatus
	case errors.Is(err, orders.ErrBatchRejected):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	code := statusFor(err)
	var be *orders.BatchError
	if errors.As(err, &be) {
		writeJSON(w, code, newBatchBody(be.Result))
		return
	}
	if code == http.StatusInternalServerError {
		log.Error("request failed", zap.Error(err))
		writeJSON(w, code, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
