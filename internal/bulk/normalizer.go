package bulk

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"omnibus_dev_v1_202610/internal/model"
	"omnibus_dev_v1_202610/pkg/shopify"
)

// ==================== 折扣值（封闭的标签联合） ====================

// DiscountValue customerGets.value 的联合类型
// 只有 PercentageValue / AmountValue / UnsupportedValue 三种实现
type DiscountValue interface {
	isDiscountValue()
}

// PercentageValue 百分比折扣
type PercentageValue struct {
	Percentage decimal.Decimal
}

// AmountValue 固定金额折扣
type AmountValue struct {
	Amount       decimal.Decimal
	CurrencyCode string
}

// UnsupportedValue 无法识别的值类型（或缺失）
type UnsupportedValue struct {
	TypeName string
}

func (PercentageValue) isDiscountValue()  {}
func (AmountValue) isDiscountValue()      {}
func (UnsupportedValue) isDiscountValue() {}

// DecodeDiscountValue 按 __typename 解码一次，之后调用方只做类型分支
func DecodeDiscountValue(raw json.RawMessage) (DiscountValue, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return UnsupportedValue{}, nil
	}

	var env struct {
		TypeName   string          `json:"__typename"`
		Percentage decimal.Decimal `json:"percentage"`
		Amount     struct {
			Amount       decimal.Decimal `json:"amount"`
			CurrencyCode string          `json:"currencyCode"`
		} `json:"amount"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("解析折扣值失败: %w", err)
	}

	switch env.TypeName {
	case "DiscountPercentage":
		return PercentageValue{Percentage: env.Percentage}, nil
	case "DiscountAmount":
		return AmountValue{Amount: env.Amount.Amount, CurrencyCode: env.Amount.CurrencyCode}, nil
	default:
		return UnsupportedValue{TypeName: env.TypeName}, nil
	}
}

// ==================== 归一化 ====================

// Normalized 统一的折扣形态
type Normalized struct {
	Type   string // model.DiscountTypePercentage / model.DiscountTypeFixedAmount
	Amount int64  // 百分比为整数百分点，固定金额为最小货币单位
}

// Normalize 返回统一形态；supported=false 表示值类型无法识别，结果为 {percentage, 0}
// 百分比按原值取整，不做比例换算（10 -> 10，0.99 -> 1）
func Normalize(v DiscountValue) (n Normalized, supported bool) {
	switch val := v.(type) {
	case PercentageValue:
		return Normalized{Type: model.DiscountTypePercentage, Amount: val.Percentage.Round(0).IntPart()}, true
	case AmountValue:
		return Normalized{Type: model.DiscountTypeFixedAmount, Amount: ToMinorUnits(val.Amount)}, true
	default:
		return Normalized{Type: model.DiscountTypePercentage, Amount: 0}, false
	}
}

// ToMinorUnits 金额转最小货币单位 round(x * 10^2)
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// ==================== 折扣适用范围 ====================

// 适用范围类型（customerGets.items.__typename）
const (
	ScopeProducts    = "DiscountProducts"
	ScopeCollections = "DiscountCollections"
	ScopeAllItems    = "AllDiscountItems"
)

// TargetScope customerGets.items 解析结果
// 批量导出中目标以子行出现，这里只有类型；单条查询时节点直接内嵌
type TargetScope struct {
	Kinds         []string
	ProductIDs    []int64
	CollectionIDs []int64
}

// Sitewide 是否为全店折扣
func (s TargetScope) Sitewide() bool {
	for _, k := range s.Kinds {
		if k == ScopeAllItems {
			return true
		}
	}
	return false
}

type idConnection struct {
	Nodes []struct {
		ID RawID `json:"id"`
	} `json:"nodes"`
	Edges []struct {
		Node struct {
			ID RawID `json:"id"`
		} `json:"node"`
	} `json:"edges"`
}

func (c *idConnection) ids() ([]int64, int) {
	var out []int64
	bad := 0
	add := func(raw RawID) {
		if raw == "" {
			return
		}
		id, err := shopify.ParseID(string(raw))
		if err != nil {
			bad++
			return
		}
		out = append(out, id)
	}
	for _, n := range c.Nodes {
		add(n.ID)
	}
	for _, e := range c.Edges {
		add(e.Node.ID)
	}
	return out, bad
}

type scopeItem struct {
	TypeName    string        `json:"__typename"`
	Products    *idConnection `json:"products"`
	Collections *idConnection `json:"collections"`
}

// DecodeTargetScope 解析 items（单个对象或数组），返回无法解析的 ID 数量
func DecodeTargetScope(raw json.RawMessage) (TargetScope, int, error) {
	var scope TargetScope
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return scope, 0, nil
	}

	var items []scopeItem
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(raw, &items); err != nil {
			return scope, 0, fmt.Errorf("解析折扣范围失败: %w", err)
		}
	} else {
		var one scopeItem
		if err := json.Unmarshal(raw, &one); err != nil {
			return scope, 0, fmt.Errorf("解析折扣范围失败: %w", err)
		}
		items = []scopeItem{one}
	}

	badIDs := 0
	for _, it := range items {
		if it.TypeName == "" {
			continue
		}
		scope.Kinds = append(scope.Kinds, it.TypeName)
		if it.Products != nil {
			ids, bad := it.Products.ids()
			scope.ProductIDs = append(scope.ProductIDs, ids...)
			badIDs += bad
		}
		if it.Collections != nil {
			ids, bad := it.Collections.ids()
			scope.CollectionIDs = append(scope.CollectionIDs, ids...)
			badIDs += bad
		}
	}
	return scope, badIDs, nil
}

// AppliesTo 有商品目标且没有集合目标时为 PRODUCT，其余（含全店）为 COLLECTION
func AppliesTo(productTargets, collectionTargets int) string {
	if productTargets > 0 && collectionTargets == 0 {
		return model.AppliesToProduct
	}
	return model.AppliesToCollection
}

// ==================== 折扣类型 ====================

// 支持端到端处理的折扣类型
var supportedArchetypes = map[string]string{
	"DiscountCodeBasic":      model.DiscountKindCode,
	"DiscountAutomaticBasic": model.DiscountKindAutomatic,
}

// DiscountKind 折扣来源（code / automatic），不支持时返回 ErrUnsupportedDiscountArchetype
func DiscountKind(typeName string) (string, error) {
	kind, ok := supportedArchetypes[typeName]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedDiscountArchetype, typeName)
	}
	return kind, nil
}

// ==================== 单条折扣 ====================

// NormalizeDiscountNode 把单条查询得到的折扣对象转换为持久化对象
// 目标直接取自内嵌的 products / collections 节点
func NormalizeDiscountNode(shop string, discountID int64, d *DiscountPayload) (*model.Discount, error) {
	kind, err := DiscountKind(d.TypeName)
	if err != nil {
		return nil, err
	}

	value, err := DecodeDiscountValue(d.CustomerGets.Value)
	if err != nil {
		return nil, err
	}
	normalized, _ := Normalize(value)

	scope, _, err := DecodeTargetScope(d.CustomerGets.Items)
	if err != nil {
		return nil, err
	}
	productIDs := model.IDArray(scope.ProductIDs).Union()
	collectionIDs := model.IDArray(scope.CollectionIDs).Union()

	return &model.Discount{
		DiscountID:    discountID,
		Shop:          shop,
		Kind:          kind,
		Title:         d.Title,
		Status:        d.Status,
		StartsAt:      d.StartsAt,
		EndsAt:        d.EndsAt,
		Type:          normalized.Type,
		Amount:        normalized.Amount,
		AppliesTo:     AppliesTo(len(productIDs), len(collectionIDs)),
		ProductIDs:    productIDs,
		CollectionIDs: collectionIDs,
	}, nil
}
