package middleware

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// echoCartHandler читает JSON-тело позиции корзины и возвращает его обратно,
// имитируя обработчик добавления в корзину.
func echoCartHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var line struct {
		SKU      string `json:"sku"`
		Quantity int64  `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&line); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"sku":      line.SKU,
		"quantity": line.Quantity,
	})
}

func gzipBody(t *testing.T, payload string) io.Reader {
	t.Helper()

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(payload)); err != nil {
		t.Fatalf("write gzip body: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close gzip writer: %v", err)
	}
	return &buf
}

func TestGzipMiddleware_CompressesWhenAccepted(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/cart/items",
		strings.NewReader(`{"sku":"LAPTOP-01","quantity":2}`))
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	GzipMiddleware(http.HandlerFunc(echoCartHandler)).ServeHTTP(rec, req)

	res := rec.Result()
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if ce := res.Header.Get("Content-Encoding"); ce != "gzip" {
		t.Fatalf("content-encoding = %q, want gzip", ce)
	}

	zr, err := gzip.NewReader(res.Body)
	if err != nil {
		t.Fatalf("new gzip reader: %v", err)
	}
	defer zr.Close()

	var resp struct {
		SKU      string `json:"sku"`
		Quantity int64  `json:"quantity"`
	}
	if err := json.NewDecoder(zr).Decode(&resp); err != nil {
		t.Fatalf("decode compressed response: %v", err)
	}
	if resp.SKU != "LAPTOP-01" || resp.Quantity != 2 {
		t.Fatalf("unexpected payload: %+v", resp)
	}
}

func TestGzipMiddleware_PlainWhenNotAccepted(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/cart/items",
		strings.NewReader(`{"sku":"TSHIRT-01","quantity":1}`))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	GzipMiddleware(http.HandlerFunc(echoCartHandler)).ServeHTTP(rec, req)

	res := rec.Result()
	defer res.Body.Close()

	if ce := res.Header.Get("Content-Encoding"); ce != "" {
		t.Fatalf("content-encoding = %q, want empty", ce)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), "TSHIRT-01") {
		t.Fatalf("body = %q, want echoed sku", string(body))
	}
}

func TestGzipMiddleware_DecompressesRequestBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/cart/items",
		gzipBody(t, `{"sku":"MOUSE-01","quantity":3}`))
	req.Header.Set("Content-Encoding", "gzip")
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	GzipMiddleware(http.HandlerFunc(echoCartHandler)).ServeHTTP(rec, req)

	res := rec.Result()
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), `"quantity":3`) {
		t.Fatalf("body = %q, want decompressed quantity echoed", string(body))
	}
}

func TestGzipMiddleware_CorruptRequestBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/cart/items",
		strings.NewReader("definitely not gzip"))
	req.Header.Set("Content-Encoding", "gzip")

	rec := httptest.NewRecorder()
	GzipMiddleware(http.HandlerFunc(echoCartHandler)).ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusBadRequest)
	}
}
