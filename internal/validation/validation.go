// Package validation содержит функции валидации входных данных.
package validation

import (
	"strconv"
	"strings"
)

// ShippingInput — адресные поля, обязательные при оформлении заказа.
type ShippingInput struct {
	Address string
	City    string
	State   string
	Zip     string
}

// MissingShippingFields возвращает список незаполненных обязательных полей доставки.
func MissingShippingFields(in ShippingInput) []string {
	var missing []string
	if strings.TrimSpace(in.Address) == "" {
		missing = append(missing, "shipping_address")
	}
	if strings.TrimSpace(in.City) == "" {
		missing = append(missing, "shipping_city")
	}
	if strings.TrimSpace(in.State) == "" {
		missing = append(missing, "shipping_state")
	}
	if strings.TrimSpace(in.Zip) == "" {
		missing = append(missing, "shipping_zip")
	}
	return missing
}

// IsValidSKU проверяет артикул: непустой, без пробелов,
// из печатных ASCII-символов, не длиннее 50.
func IsValidSKU(sku string) bool {
	if sku == "" || len(sku) > 50 {
		return false
	}
	for _, ch := range sku {
		if ch <= ' ' || ch > '~' {
			return false
		}
	}
	return true
}

// CartLineKey строит ключ позиции корзины: SKU товара,
// для вариации — с суффиксом "-V<id>".
func CartLineKey(sku string, variantID *int64) string {
	if variantID == nil {
		return sku
	}
	return sku + "-V" + strconv.FormatInt(*variantID, 10)
}

// ParseCartLineKey разбирает ключ позиции корзины на SKU и идентификатор вариации.
func ParseCartLineKey(key string) (sku string, variantID *int64, ok bool) {
	idx := strings.LastIndex(key, "-V")
	if idx <= 0 {
		if !IsValidSKU(key) {
			return "", nil, false
		}
		return key, nil, true
	}

	id, err := strconv.ParseInt(key[idx+2:], 10, 64)
	if err != nil || id <= 0 {
		// Суффикс не является номером вариации, ключ — обычный SKU.
		if !IsValidSKU(key) {
			return "", nil, false
		}
		return key, nil, true
	}

	sku = key[:idx]
	if !IsValidSKU(sku) {
		return "", nil, false
	}
	return sku, &id, true
}
