package bulk

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omnibus_dev_v1_202610/internal/model"
)

func decodeValue(t *testing.T, raw string) DiscountValue {
	t.Helper()
	v, err := DecodeDiscountValue(json.RawMessage(raw))
	require.NoError(t, err)
	return v
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		name      string
		raw       string
		want      Normalized
		supported bool
	}{
		{"整数百分比", `{"__typename":"DiscountPercentage","percentage":10}`, Normalized{model.DiscountTypePercentage, 10}, true},
		{"百分之百", `{"__typename":"DiscountPercentage","percentage":100}`, Normalized{model.DiscountTypePercentage, 100}, true},
		{"1.0 不换算", `{"__typename":"DiscountPercentage","percentage":1.0}`, Normalized{model.DiscountTypePercentage, 1}, true},
		{"0.99 四舍五入", `{"__typename":"DiscountPercentage","percentage":0.99}`, Normalized{model.DiscountTypePercentage, 1}, true},
		{"0.4 舍去", `{"__typename":"DiscountPercentage","percentage":0.4}`, Normalized{model.DiscountTypePercentage, 0}, true},
		{"12.5 进位", `{"__typename":"DiscountPercentage","percentage":12.5}`, Normalized{model.DiscountTypePercentage, 13}, true},
		{"固定金额", `{"__typename":"DiscountAmount","amount":{"amount":"19.99","currencyCode":"EUR"}}`, Normalized{model.DiscountTypeFixedAmount, 1999}, true},
		{"金额四舍五入", `{"__typename":"DiscountAmount","amount":{"amount":"0.125"}}`, Normalized{model.DiscountTypeFixedAmount, 13}, true},
		{"未知类型", `{"__typename":"DiscountOnQuantity"}`, Normalized{model.DiscountTypePercentage, 0}, false},
		{"缺失", `null`, Normalized{model.DiscountTypePercentage, 0}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, supported := Normalize(decodeValue(t, c.raw))
			assert.Equal(t, c.want, got)
			assert.Equal(t, c.supported, supported)
		})
	}
}

func TestDecodeDiscountValue_Variants(t *testing.T) {
	v := decodeValue(t, `{"__typename":"DiscountAmount","amount":{"amount":"5.00","currencyCode":"USD"}}`)
	amount, ok := v.(AmountValue)
	require.True(t, ok)
	assert.True(t, amount.Amount.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, "USD", amount.CurrencyCode)

	_, err := DecodeDiscountValue(json.RawMessage(`{"__typename":`))
	assert.Error(t, err)
}

func TestDecodeTargetScope(t *testing.T) {
	single := `{"__typename":"DiscountProducts","products":{"nodes":[{"id":"gid://shopify/Product/2"},{"id":"gid://shopify/Product/1"}]}}`
	scope, bad, err := DecodeTargetScope(json.RawMessage(single))
	require.NoError(t, err)
	assert.Zero(t, bad)
	assert.Equal(t, []int64{2, 1}, scope.ProductIDs)
	assert.False(t, scope.Sitewide())

	list := `[{"__typename":"DiscountCollections","collections":{"edges":[{"node":{"id":"gid://shopify/Collection/7"}},{"node":{"id":"bad"}}]}},{"__typename":"AllDiscountItems"}]`
	scope, bad, err = DecodeTargetScope(json.RawMessage(list))
	require.NoError(t, err)
	assert.Equal(t, 1, bad)
	assert.Equal(t, []int64{7}, scope.CollectionIDs)
	assert.True(t, scope.Sitewide())

	scope, _, err = DecodeTargetScope(nil)
	require.NoError(t, err)
	assert.Empty(t, scope.Kinds)
}

func TestAppliesTo(t *testing.T) {
	assert.Equal(t, model.AppliesToProduct, AppliesTo(2, 0))
	assert.Equal(t, model.AppliesToCollection, AppliesTo(2, 1))
	assert.Equal(t, model.AppliesToCollection, AppliesTo(0, 1))
	assert.Equal(t, model.AppliesToCollection, AppliesTo(0, 0), "全店折扣")
}

func TestDiscountKind(t *testing.T) {
	kind, err := DiscountKind("DiscountCodeBasic")
	require.NoError(t, err)
	assert.Equal(t, model.DiscountKindCode, kind)

	_, err = DiscountKind("DiscountCodeBxgy")
	assert.ErrorIs(t, err, ErrUnsupportedDiscountArchetype)
}
