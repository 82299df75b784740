// internal/handler/health_handler.go
package handler

import (
	"context"
	"net/http"
	"time"
)

type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler reports database reachability and the receipt backlog.
type HealthHandler struct {
	DB       Pinger
	Receipts ReceiptQueue
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]interface{}{
		"ok":   true,
		"time": time.Now().UTC(),
	}
	if h.Receipts != nil {
		status["pendingReceipts"] = h.Receipts.Pending()
	}
	if h.DB != nil {
		if err := h.DB.PingContext(ctx); err != nil {
			status["ok"] = false
			status["db"] = err.Error()
			respondJSON(w, http.StatusServiceUnavailable, status)
			return
		}
	}
	respondJSON(w, http.StatusOK, status)
}
