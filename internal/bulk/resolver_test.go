package bulk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omnibus_dev_v1_202610/internal/model"
)

func TestResolver_AttachAndDedupe(t *testing.T) {
	r := NewResolver()
	r.Register(DiscountRoot{
		DiscountID: 1,
		ParentKeys: []string{"gid://shopify/DiscountCodeNode/1", "gid://shopify/DiscountCodeBasic/77", ""},
		Normalized: Normalized{Type: model.DiscountTypePercentage, Amount: 10},
	})

	require.NoError(t, r.AttachProduct("gid://shopify/DiscountCodeNode/1", 5))
	require.NoError(t, r.AttachProduct("gid://shopify/DiscountCodeNode/1", 5))
	require.NoError(t, r.AttachProduct("gid://shopify/DiscountCodeBasic/77", 3))

	aggs := r.Aggregates()
	require.Len(t, aggs, 1)
	assert.Equal(t, []int64{3, 5}, aggs[0].ProductIDs())
	assert.Equal(t, model.AppliesToProduct, aggs[0].AppliesTo())
}

func TestResolver_UnknownParent(t *testing.T) {
	r := NewResolver()
	err := r.AttachProduct("gid://shopify/DiscountCodeNode/9", 9)
	assert.ErrorIs(t, err, ErrUnresolvedTarget)
	assert.Zero(t, r.Len())
}

func TestResolver_ReRegisterUpdatesInPlace(t *testing.T) {
	r := NewResolver()
	key := "gid://shopify/DiscountAutomaticNode/2"
	r.Register(DiscountRoot{DiscountID: 2, ParentKeys: []string{key}, Normalized: Normalized{model.DiscountTypePercentage, 5}})
	require.NoError(t, r.AttachCollection(key, 100))

	r.Register(DiscountRoot{DiscountID: 2, ParentKeys: []string{key}, Normalized: Normalized{model.DiscountTypeFixedAmount, 500}})

	aggs := r.Aggregates()
	require.Len(t, aggs, 1)
	assert.Equal(t, Normalized{model.DiscountTypeFixedAmount, 500}, aggs[0].Normalized)
	assert.Equal(t, []int64{100}, aggs[0].CollectionIDs(), "重复注册不能丢失已收集的目标")

	d := aggs[0].ToModel("demo.myshopify.com")
	assert.Equal(t, model.AppliesToCollection, d.AppliesTo)
	assert.Equal(t, model.IDArray{100}, d.CollectionIDs)
	assert.Equal(t, model.IDArray{}, d.ProductIDs)
}

func TestRunTransitions(t *testing.T) {
	rn := &run{state: model.RunStateStreaming}
	assert.ErrorIs(t, rn.transition(model.RunStateDone), ErrInvalidRunState)
	require.NoError(t, rn.transition(model.RunStateFinalizing))
	require.NoError(t, rn.transition(model.RunStateDone))
	assert.ErrorIs(t, rn.transition(model.RunStateFailed), ErrInvalidRunState)
}
