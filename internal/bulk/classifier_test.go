package bulk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		line string
		want Kind
	}{
		{`{"id":"gid://shopify/Product/1","status":"ACTIVE","handle":"shirt"}`, KindProduct},
		{`{"id":"gid://shopify/Product/1","handle":"shirt"}`, KindUnrecognized},
		{`{"id":"gid://shopify/ProductVariant/11","price":"9.99","__parentId":"gid://shopify/Product/1"}`, KindVariant},
		{`{"id":"gid://shopify/ProductVariant/11"}`, KindUnrecognized},
		{`{"id":"gid://shopify/Collection/5","handle":"summer"}`, KindCollection},
		{`{"id":"gid://shopify/Product/1","__parentId":"gid://shopify/Collection/5"}`, KindProductCollectionLink},
		// 带 handle 的子行仍按父节点归类
		{`{"id":"gid://shopify/Product/1","handle":"shirt","status":"ACTIVE","__parentId":"gid://shopify/Collection/5"}`, KindProductCollectionLink},
		{`{"id":"gid://shopify/DiscountCodeNode/3","discount":{"__typename":"DiscountCodeBasic"}}`, KindDiscountRoot},
		{`{"id":"gid://shopify/DiscountAutomaticNode/4","discount":{"__typename":"DiscountAutomaticBasic"}}`, KindDiscountRoot},
		{`{"id":"gid://shopify/DiscountNode/5","discount":{"__typename":"DiscountCodeBasic"}}`, KindDiscountRoot},
		{`{"id":"gid://shopify/Product/1","__parentId":"gid://shopify/DiscountCodeNode/3"}`, KindDiscountTargetProduct},
		{`{"id":"gid://shopify/Collection/5","handle":"summer","__parentId":"gid://shopify/DiscountAutomaticNode/4"}`, KindDiscountTargetCollection},
		// 父节点为内嵌的折扣对象
		{`{"id":"gid://shopify/Product/5","__parentId":"gid://shopify/DiscountCodeBasic/77"}`, KindDiscountTargetProduct},
		{`{"id":"gid://shopify/Collection/6","__parentId":"gid://shopify/DiscountAutomaticBasic/78"}`, KindDiscountTargetCollection},
		{`{"id":"gid://shopify/ProductVariant/11","__parentId":"gid://shopify/DiscountCodeNode/3"}`, KindUnrecognized},
		{`{"id":"gid://shopify/DiscountCodeNode/3"}`, KindUnrecognized},
		{`{"id":"gid://shopify/Order/1"}`, KindUnrecognized},
		{`{"handle":"no-id"}`, KindUnrecognized},
	}
	for _, c := range cases {
		rec, err := DecodeRecord(c.line)
		require.NoError(t, err, c.line)
		got, err := Classify(rec)
		require.NoError(t, err, c.line)
		assert.Equal(t, c.want, got, c.line)
	}
}

func TestClassify_UnsupportedArchetype(t *testing.T) {
	rec, err := DecodeRecord(`{"id":"gid://shopify/DiscountCodeNode/3","discount":{"__typename":"DiscountCodeBxgy"}}`)
	require.NoError(t, err)
	_, err = Classify(rec)
	assert.ErrorIs(t, err, ErrUnsupportedDiscountArchetype)
}

func TestDecodeRecord(t *testing.T) {
	_, err := DecodeRecord(`{"id":`)
	assert.ErrorIs(t, err, ErrMalformedLine)

	rec, err := DecodeRecord(`{"id":123,"price":19.99,"compareAtPrice":null}`)
	require.NoError(t, err)
	assert.Equal(t, RawID("123"), rec.ID)
	assert.True(t, rec.Price.Valid)
	assert.False(t, rec.CompareAtPrice.Valid)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "discount_root", KindDiscountRoot.String())
	assert.Equal(t, "unknown", Kind(99).String())
}
