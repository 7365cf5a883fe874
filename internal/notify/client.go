// Package notify отправляет события магазина на настроенный webhook.
// Отправка необязательна и никогда не влияет на результат операции.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client инкапсулирует HTTP-доставку уведомлений магазина.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// OrderPlacedEvent — уведомление об оформленном заказе.
type OrderPlacedEvent struct {
	OrderNumber string  `json:"order_number"`
	Total       float64 `json:"total"`
	RiskLevel   string  `json:"risk_level,omitempty"`
}

// LowStockEvent — уведомление о товаре с остатком на пороге дозаказа.
type LowStockEvent struct {
	SKU            string `json:"sku"`
	Name           string `json:"name"`
	QuantityOnHand int64  `json:"quantity_on_hand"`
	ReorderLevel   int64  `json:"reorder_level"`
}

// NewClient создаёт клиент доставки уведомлений на указанный адрес.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// OrderPlaced отправляет уведомление об оформленном заказе.
func (c *Client) OrderPlaced(ctx context.Context, event OrderPlacedEvent) error {
	return c.post(ctx, "/api/events/order-placed", event)
}

// LowStock отправляет уведомление о низком остатке товара.
func (c *Client) LowStock(ctx context.Context, event LowStockEvent) error {
	return c.post(ctx, "/api/events/low-stock", event)
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("notify client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	return nil
}
