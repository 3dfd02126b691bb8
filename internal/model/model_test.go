package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestIDArray_Union(t *testing.T) {
	got := IDArray{5, 1}.Union(3, 1, 5, 2)
	assert.Equal(t, IDArray{1, 2, 3, 5}, got)
	assert.Equal(t, IDArray{}, IDArray(nil).Union())
}

func TestIDArray_ValueScan(t *testing.T) {
	v, err := IDArray{1, 22}.Value()
	require.NoError(t, err)
	assert.Equal(t, "{1,22}", v)

	empty, err := IDArray(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "{}", empty)

	var back IDArray
	require.NoError(t, back.Scan("{7,8}"))
	assert.Equal(t, IDArray{7, 8}, back)
}

func TestMapProductStatus(t *testing.T) {
	assert.Equal(t, ProductStatusActive, MapProductStatus("ACTIVE"))
	assert.Equal(t, ProductStatusArchived, MapProductStatus("DRAFT"))
	assert.Equal(t, ProductStatusArchived, MapProductStatus(""))
}

func TestShop_SettingsAndMarket(t *testing.T) {
	s := &Shop{CurrencyCode: "EUR"}
	assert.Equal(t, 30, s.ResolveSettings(30).Timeframe)
	assert.Equal(t, "EUR", s.Market("USD"))

	s.Settings = datatypes.JSON(`{"timeframe":14,"currencyCode":"PLN"}`)
	assert.Equal(t, 14, s.ResolveSettings(30).Timeframe)
	assert.Equal(t, "PLN", s.Market("USD"))

	assert.Equal(t, "USD", (&Shop{}).Market("USD"))
}
