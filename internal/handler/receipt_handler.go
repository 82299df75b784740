// internal/handler/receipt_handler.go
package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/minicrm-backend/internal/model"
)

// ReceiptQueue is the reconciler side of the receipt callback.
type ReceiptQueue interface {
	Ingest(r model.Receipt) error
	ProcessNow() int
	Pending() int
}

// ReceiptHandler accepts vendor delivery receipts over HTTP
type ReceiptHandler struct {
	Queue ReceiptQueue
}

func NewReceiptHandler(q ReceiptQueue) *ReceiptHandler {
	return &ReceiptHandler{Queue: q}
}

func (h *ReceiptHandler) Routes(r chi.Router) {
	r.Post("/delivery-receipts", h.IngestReceipts)
	r.Post("/delivery-receipts/process", h.ProcessReceipts)
}

// IngestReceipts queues one receipt, or a JSON array of them, for reconciliation.
func (h *ReceiptHandler) IngestReceipts(w http.ResponseWriter, r *http.Request) {
	receipts, err := decodeReceipts(r)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	for i, rc := range receipts {
		if err := checkReceipt(rc); err != nil {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("receipt %d: %v", i, err)})
			return
		}
	}

	for _, rc := range receipts {
		if err := h.Queue.Ingest(rc); err != nil {
			log.Printf("⚠️ [receipts] rejecting receipt %s: %v", rc.MessageID, err)
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "receipt queue is closed"})
			return
		}
	}

	log.Printf("📩 [receipts] %d receipt(s) queued", len(receipts))
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"queued":  len(receipts),
		"message": "Receipt queued for processing",
	})
}

// ProcessReceipts starts a reconciliation pass without waiting for the interval.
func (h *ReceiptHandler) ProcessReceipts(w http.ResponseWriter, r *http.Request) {
	pending := h.Queue.ProcessNow()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"pending": pending,
	})
}

func decodeReceipts(r *http.Request) ([]model.Receipt, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid body: %w", err)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var receipts []model.Receipt
		if err := json.Unmarshal(raw, &receipts); err != nil {
			return nil, fmt.Errorf("invalid body: %w", err)
		}
		if len(receipts) == 0 {
			return nil, fmt.Errorf("no receipts in body")
		}
		return receipts, nil
	}
	var rc model.Receipt
	if err := json.Unmarshal(raw, &rc); err != nil {
		return nil, fmt.Errorf("invalid body: %w", err)
	}
	return []model.Receipt{rc}, nil
}

func checkReceipt(rc model.Receipt) error {
	if strings.TrimSpace(rc.MessageID) == "" {
		return fmt.Errorf("messageId is required")
	}
	if rc.Status != model.ReceiptDelivered && rc.Status != model.ReceiptFailed {
		return fmt.Errorf("status must be delivered or failed, got %q", rc.Status)
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("⚠️ [api] encoding response: %v", err)
	}
}
