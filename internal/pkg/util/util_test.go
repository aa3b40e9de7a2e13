package util

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateOrderNumber(t *testing.T) {
	number := GenerateOrderNumber()

	assert.Len(t, number, 32)
	assert.Equal(t, number, func() string {
		upper := ""
		for _, r := range number {
			if (r >= '0' && r <= '9') || (r >= 'A' && r <= 'F') {
				upper += string(r)
			}
		}
		return upper
	}(), "order number should be uppercase hex")

	// 兩次產生不應相同
	assert.NotEqual(t, number, GenerateOrderNumber())
}

func TestFormatWeightKey(t *testing.T) {
	tests := []struct {
		weight string
		unit   string
		want   string
	}{
		{"16", "kg", "16"},
		{"16.5", "kg", "16.5"},
		{"35", "lb", "35lb"},
		{"8", "", "8"},
	}

	for _, tt := range tests {
		weight, err := decimal.NewFromString(tt.weight)
		require.NoError(t, err)
		assert.Equal(t, tt.want, FormatWeightKey(weight, tt.unit))
	}
}

func TestParseWeightKey(t *testing.T) {
	weight, unit, err := ParseWeightKey("16")
	require.NoError(t, err)
	assert.Equal(t, "kg", unit)
	assert.True(t, weight.Equal(decimal.NewFromInt(16)))

	weight, unit, err = ParseWeightKey("16.5")
	require.NoError(t, err)
	assert.Equal(t, "kg", unit)
	assert.True(t, weight.Equal(decimal.RequireFromString("16.5")))

	weight, unit, err = ParseWeightKey("35lb")
	require.NoError(t, err)
	assert.Equal(t, "lb", unit)
	assert.True(t, weight.Equal(decimal.NewFromInt(35)))
}

func TestParseWeightKeyErrors(t *testing.T) {
	_, _, err := ParseWeightKey("")
	assert.Error(t, err)

	_, _, err = ParseWeightKey("abc")
	assert.Error(t, err)

	// 不支援的單位
	_, _, err = ParseWeightKey("16oz")
	assert.Error(t, err)

	_, _, err = ParseWeightKey("-5")
	assert.Error(t, err)

	_, _, err = ParseWeightKey("0")
	assert.Error(t, err)
}

func TestFormatParseRoundTrip(t *testing.T) {
	for _, key := range []string{"16", "16.5", "48", "35lb", "52.5lb"} {
		weight, unit, err := ParseWeightKey(key)
		require.NoError(t, err)
		assert.Equal(t, key, FormatWeightKey(weight, unit))
	}
}

func TestParseProductLabel(t *testing.T) {
	weight, unit, err := ParseProductLabel("48 kg (£82.00)")
	require.NoError(t, err)
	assert.Equal(t, "kg", unit)
	assert.True(t, weight.Equal(decimal.NewFromInt(48)))

	weight, unit, err = ParseProductLabel("35 lb (£60.00)")
	require.NoError(t, err)
	assert.Equal(t, "lb", unit)
	assert.True(t, weight.Equal(decimal.NewFromInt(35)))

	// 價格段落缺漏也要能解析
	weight, unit, err = ParseProductLabel("16.5 kg")
	require.NoError(t, err)
	assert.Equal(t, "kg", unit)
	assert.True(t, weight.Equal(decimal.RequireFromString("16.5")))
}

func TestParseProductLabelErrors(t *testing.T) {
	_, _, err := ParseProductLabel("")
	assert.Error(t, err)

	_, _, err = ParseProductLabel("just-a-name")
	assert.Error(t, err)

	_, _, err = ParseProductLabel("16 stone (£10.00)")
	assert.Error(t, err)
}
