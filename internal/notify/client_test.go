package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOrderPlaced(t *testing.T) {
	var gotPath string
	var gotEvent OrderPlacedEvent

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content-type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotEvent); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)

	err := c.OrderPlaced(context.Background(), OrderPlacedEvent{
		OrderNumber: "ORD-DEADBEEF",
		Total:       2400.00,
		RiskLevel:   "NONE",
	})
	if err != nil {
		t.Fatalf("OrderPlaced error: %v", err)
	}

	if gotPath != "/api/events/order-placed" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotEvent.OrderNumber != "ORD-DEADBEEF" || gotEvent.Total != 2400.00 {
		t.Fatalf("unexpected event: %+v", gotEvent)
	}
}

func TestLowStockErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)

	err := c.LowStock(context.Background(), LowStockEvent{SKU: "AUD-NC-001", QuantityOnHand: 2})
	if err == nil {
		t.Fatalf("expected error for 500 response")
	}
	if !strings.Contains(err.Error(), "unexpected status") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNotConfigured(t *testing.T) {
	var c *Client
	if err := c.OrderPlaced(context.Background(), OrderPlacedEvent{}); err == nil {
		t.Fatalf("nil client must return error")
	}

	c = NewClient("")
	if err := c.LowStock(context.Background(), LowStockEvent{}); err == nil {
		t.Fatalf("unconfigured client must return error")
	}
}

func TestAddressWithoutScheme(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	addr := strings.TrimPrefix(srv.URL, "http://")
	c := NewClient(addr)

	if err := c.OrderPlaced(context.Background(), OrderPlacedEvent{OrderNumber: "ORD-1"}); err != nil {
		t.Fatalf("OrderPlaced error: %v", err)
	}
}
