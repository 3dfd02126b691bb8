package shopify

import "encoding/json"

// Credentials 访问某个店铺 Admin API 所需的信息
type Credentials struct {
	Domain      string
	AccessToken string
}

// ==================== 批量操作 ====================

// 批量操作状态
const (
	BulkStatusCompleted = "COMPLETED"
	BulkStatusFailed    = "FAILED"
	BulkStatusCanceled  = "CANCELED"
	BulkStatusRunning   = "RUNNING"
)

// BulkOperation 批量导出任务
type BulkOperation struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	ErrorCode      string `json:"errorCode"`
	URL            string `json:"url"`
	PartialDataURL string `json:"partialDataUrl"`
	ObjectCount    string `json:"objectCount"`
}

// Ready 任务已完成且有可下载的结果
func (b *BulkOperation) Ready() bool {
	return b != nil && b.Status == BulkStatusCompleted && b.URL != ""
}

// ==================== 集合 ====================

// PageInfo 游标分页信息
type PageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

// CollectionNode 集合及其包含的商品 ID
type CollectionNode struct {
	ID       string `json:"id"`
	Handle   string `json:"handle"`
	Title    string `json:"title"`
	Products struct {
		Nodes []struct {
			ID string `json:"id"`
		} `json:"nodes"`
		PageInfo PageInfo `json:"pageInfo"`
	} `json:"products"`
}

// ProductIDs 集合中商品的 GID 列表
func (c *CollectionNode) ProductIDs() []string {
	ids := make([]string, 0, len(c.Products.Nodes))
	for _, n := range c.Products.Nodes {
		ids = append(ids, n.ID)
	}
	return ids
}

// CollectionPage 一页集合
type CollectionPage struct {
	Nodes    []CollectionNode `json:"nodes"`
	PageInfo PageInfo         `json:"pageInfo"`
}

// ==================== 折扣 ====================

// DiscountNode 折扣节点，Discount 为原始 JSON
type DiscountNode struct {
	ID       string          `json:"id"`
	Discount json.RawMessage `json:"discount"`
}

// ==================== 店铺 ====================

// ShopInfo 店铺基础信息
type ShopInfo struct {
	Name         string `json:"name"`
	CurrencyCode string `json:"currencyCode"`
}

// graphQLResponse 通用 GraphQL 响应包
type graphQLResponse[T any] struct {
	Data   T             `json:"data"`
	Errors GraphQLErrors `json:"errors"`
}
