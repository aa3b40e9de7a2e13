package util

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// GenerateOrderNumber 產生訂單編號
// uuid4 去掉連字號後轉大寫，32 碼 hex
func GenerateOrderNumber() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))
}

// FormatWeightKey 組商品鍵值
// kg 商品只用重量字串，其他單位加後綴，例: "16", "16.5", "35lb"
func FormatWeightKey(weight decimal.Decimal, unit string) string {
	if unit == "" || unit == "kg" {
		return weight.String()
	}
	return weight.String() + unit
}

// ParseWeightKey 把商品鍵值解析回 (重量, 單位)
// 沒有單位後綴時視為 kg
func ParseWeightKey(key string) (decimal.Decimal, string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return decimal.Decimal{}, "", fmt.Errorf("empty product key")
	}

	// 從尾端取出字母後綴當單位
	i := len(key)
	for i > 0 && unicode.IsLetter(rune(key[i-1])) {
		i--
	}
	numberPart, unit := key[:i], key[i:]
	if unit == "" {
		unit = "kg"
	}
	if unit != "kg" && unit != "lb" {
		return decimal.Decimal{}, "", fmt.Errorf("unknown weight unit %q in key %q", unit, key)
	}

	weight, err := decimal.NewFromString(numberPart)
	if err != nil {
		return decimal.Decimal{}, "", fmt.Errorf("invalid weight in key %q: %w", key, err)
	}
	if weight.Sign() <= 0 {
		return decimal.Decimal{}, "", fmt.Errorf("weight must be positive in key %q", key)
	}
	return weight, unit, nil
}

// ParseProductLabel 從訂單明細的商品名稱解析出 (重量, 單位)
// 舊資料的明細沒有 product id，只能靠名稱還原，例: "48 kg (£82.00)" -> 48, kg
func ParseProductLabel(name string) (decimal.Decimal, string, error) {
	parts := strings.Fields(strings.TrimSpace(name))
	if len(parts) < 2 {
		return decimal.Decimal{}, "", fmt.Errorf("unparseable product name %q", name)
	}

	weight, err := decimal.NewFromString(parts[0])
	if err != nil {
		return decimal.Decimal{}, "", fmt.Errorf("invalid weight in product name %q: %w", name, err)
	}

	unit := parts[1]
	if unit != "kg" && unit != "lb" {
		return decimal.Decimal{}, "", fmt.Errorf("unknown weight unit in product name %q", name)
	}
	return weight, unit, nil
}
