package bulk

import (
	"omnibus_dev_v1_202610/pkg/shopify"
)

// Kind 行的类型
type Kind int

const (
	KindUnrecognized Kind = iota
	KindProduct
	KindVariant
	KindCollection
	KindDiscountRoot
	KindDiscountTargetProduct
	KindDiscountTargetCollection
	KindProductCollectionLink
)

var kindNames = [...]string{
	KindUnrecognized:             "unrecognized",
	KindProduct:                  "product",
	KindVariant:                  "variant",
	KindCollection:               "collection",
	KindDiscountRoot:             "discount_root",
	KindDiscountTargetProduct:    "discount_target_product",
	KindDiscountTargetCollection: "discount_target_collection",
	KindProductCollectionLink:    "product_collection_link",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Classify 根据结构判断行类型
//
// 判定顺序固定：
//  1. 没有 id -> Unrecognized
//  2. 折扣节点 + discount 对象 -> DiscountRoot（非基础折扣类型返回 ErrUnsupportedDiscountArchetype）
//  3. 变体 id + 商品父节点 -> Variant
//  4. 商品 id + 无父节点 + status/handle -> Product
//  5. 集合 id + 无父节点 + handle -> Collection
//  6. 父节点为折扣节点或内嵌折扣对象 -> 折扣目标（商品 / 集合），能否解析由 Resolver 决定
//  7. 商品 id + 集合父节点 -> ProductCollectionLink
//  8. 其余 -> Unrecognized
func Classify(rec *Record) (Kind, error) {
	if rec == nil || rec.ID == "" {
		return KindUnrecognized, nil
	}

	idKind := shopify.KindOf(string(rec.ID))
	parentKind := ""
	if rec.ParentID != "" {
		parentKind = shopify.KindOf(string(rec.ParentID))
	}

	if rec.Discount != nil && shopify.IsDiscountNodeKind(idKind) {
		if _, err := DiscountKind(rec.Discount.TypeName); err != nil {
			return KindDiscountRoot, err
		}
		return KindDiscountRoot, nil
	}

	switch {
	case idKind == shopify.KindProductVariant && parentKind == shopify.KindProduct:
		return KindVariant, nil
	case idKind == shopify.KindProduct && rec.ParentID == "" && rec.Status != nil && rec.Handle != nil:
		return KindProduct, nil
	case idKind == shopify.KindCollection && rec.ParentID == "" && rec.Handle != nil:
		return KindCollection, nil
	}

	if shopify.IsDiscountParentKind(parentKind) {
		switch idKind {
		case shopify.KindProduct:
			return KindDiscountTargetProduct, nil
		case shopify.KindCollection:
			return KindDiscountTargetCollection, nil
		}
		return KindUnrecognized, nil
	}

	if idKind == shopify.KindProduct && parentKind == shopify.KindCollection {
		return KindProductCollectionLink, nil
	}
	return KindUnrecognized, nil
}
