package bulk

import (
	"fmt"
	"sort"
	"time"

	"omnibus_dev_v1_202610/internal/model"
)

// Aggregate 一次运行中正在累积的折扣
type Aggregate struct {
	DiscountID int64
	Kind       string
	Title      string
	Status     string
	StartsAt   *time.Time
	EndsAt     *time.Time
	Normalized Normalized

	productIDs    map[int64]struct{}
	collectionIDs map[int64]struct{}
}

// ProductIDs 升序
func (a *Aggregate) ProductIDs() []int64 {
	return sortedKeys(a.productIDs)
}

// CollectionIDs 升序
func (a *Aggregate) CollectionIDs() []int64 {
	return sortedKeys(a.collectionIDs)
}

// AppliesTo 只看本次运行收集到的目标
func (a *Aggregate) AppliesTo() string {
	return AppliesTo(len(a.productIDs), len(a.collectionIDs))
}

// ToModel 转换为持久化对象
func (a *Aggregate) ToModel(shop string) *model.Discount {
	return &model.Discount{
		DiscountID:    a.DiscountID,
		Shop:          shop,
		Kind:          a.Kind,
		Title:         a.Title,
		Status:        a.Status,
		StartsAt:      a.StartsAt,
		EndsAt:        a.EndsAt,
		Type:          a.Normalized.Type,
		Amount:        a.Normalized.Amount,
		AppliesTo:     a.AppliesTo(),
		ProductIDs:    model.IDArray(a.ProductIDs()),
		CollectionIDs: model.IDArray(a.CollectionIDs()),
	}
}

// Resolver 折扣目标解析器（运行级状态，不加锁）
// byParent: 父标识符 -> 折扣 ID；aggregates: 折扣 ID -> 聚合
type Resolver struct {
	byParent   map[string]int64
	aggregates map[int64]*Aggregate
}

// NewResolver 创建解析器
func NewResolver() *Resolver {
	return &Resolver{
		byParent:   make(map[string]int64),
		aggregates: make(map[int64]*Aggregate),
	}
}

// DiscountRoot 注册折扣根节点所需的数据
type DiscountRoot struct {
	DiscountID int64
	ParentKeys []string // 根节点 id，以及内嵌 discount 对象的 id（如果有）
	Kind       string
	Title      string
	Status     string
	StartsAt   *time.Time
	EndsAt     *time.Time
	Normalized Normalized
}

// Register 注册折扣根节点；重复注册时原地更新，已收集的目标保留
func (r *Resolver) Register(root DiscountRoot) *Aggregate {
	agg, ok := r.aggregates[root.DiscountID]
	if !ok {
		agg = &Aggregate{
			DiscountID:    root.DiscountID,
			productIDs:    make(map[int64]struct{}),
			collectionIDs: make(map[int64]struct{}),
		}
		r.aggregates[root.DiscountID] = agg
	}

	agg.Kind = root.Kind
	agg.Title = root.Title
	agg.Status = root.Status
	agg.StartsAt = root.StartsAt
	agg.EndsAt = root.EndsAt
	agg.Normalized = root.Normalized

	for _, key := range root.ParentKeys {
		if key != "" {
			r.byParent[key] = root.DiscountID
		}
	}
	return agg
}

// AttachProduct 将商品目标挂到父折扣上，父节点未知时返回 ErrUnresolvedTarget
func (r *Resolver) AttachProduct(parentKey string, productID int64) error {
	agg, err := r.lookup(parentKey)
	if err != nil {
		return err
	}
	agg.productIDs[productID] = struct{}{}
	return nil
}

// AttachCollection 将集合目标挂到父折扣上
func (r *Resolver) AttachCollection(parentKey string, collectionID int64) error {
	agg, err := r.lookup(parentKey)
	if err != nil {
		return err
	}
	agg.collectionIDs[collectionID] = struct{}{}
	return nil
}

func (r *Resolver) lookup(parentKey string) (*Aggregate, error) {
	id, ok := r.byParent[parentKey]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnresolvedTarget, parentKey)
	}
	return r.aggregates[id], nil
}

// Aggregates 按折扣 ID 升序返回
func (r *Resolver) Aggregates() []*Aggregate {
	out := make([]*Aggregate, 0, len(r.aggregates))
	for _, agg := range r.aggregates {
		out = append(out, agg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DiscountID < out[j].DiscountID })
	return out
}

// Len 折扣数量
func (r *Resolver) Len() int {
	return len(r.aggregates)
}

func sortedKeys(m map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
