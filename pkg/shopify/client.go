package shopify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"omnibus_dev_v1_202610/pkg/metrics"
)

// DefaultAPIVersion 默认 Admin API 版本
const DefaultAPIVersion = "2025-07"

// CollectionPageSize 集合分页大小（平台上限）
const CollectionPageSize = 250

// ClientConfig Shopify 客户端配置
type ClientConfig struct {
	APIVersion        string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	Debug             bool
	// BaseURL 非空时替代 https://<shop> 前缀，测试时指向 httptest 服务
	BaseURL string
}

// Client Shopify Admin GraphQL 客户端
// api 用于普通 GraphQL 请求（带超时），download 用于流式下载导出文件（只受 ctx 控制）
type Client struct {
	api        *resty.Client
	download   *resty.Client
	apiVersion string
	baseURL    string
	limiter    *rate.Limiter
	log        *zap.SugaredLogger
}

// NewClient 创建客户端
func NewClient(cfg ClientConfig, log *zap.SugaredLogger) *Client {
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 2
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 4
	}

	api := resty.New().
		SetDebug(cfg.Debug).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "Omnibus-Go-App/1.0").
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			// 429 与 5xx 重试，其余交给调用方
			return err == nil && (r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500)
		})

	download := resty.New().
		SetHeader("User-Agent", "Omnibus-Go-App/1.0")

	return &Client{
		api:        api,
		download:   download,
		apiVersion: cfg.APIVersion,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		log:        log,
	}
}

func (c *Client) endpoint(domain string) string {
	path := fmt.Sprintf("/admin/api/%s/graphql.json", c.apiVersion)
	if c.baseURL != "" {
		return c.baseURL + path
	}
	return "https://" + domain + path
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// doGraphQL 发送 GraphQL 请求并解析 data 字段
func doGraphQL[T any](ctx context.Context, c *Client, creds Credentials, op, query string, vars map[string]any) (*T, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("等待请求配额失败: %w", err)
	}

	var out graphQLResponse[T]
	resp, err := c.api.R().
		SetContext(ctx).
		SetHeader("X-Shopify-Access-Token", creds.AccessToken).
		SetBody(graphQLRequest{Query: query, Variables: vars}).
		SetResult(&out).
		Post(c.endpoint(creds.Domain))
	if err != nil {
		metrics.ShopifyRequestsTotal.WithLabelValues(op, "error").Inc()
		return nil, fmt.Errorf("请求 Shopify 失败 [%s]: %w", op, err)
	}
	metrics.ShopifyRequestsTotal.WithLabelValues(op, strconv.Itoa(resp.StatusCode())).Inc()

	if resp.IsError() {
		return nil, fmt.Errorf("Shopify 拒绝请求 [%s] (Status %d): %s", op, resp.StatusCode(), resp.String())
	}
	if len(out.Errors) > 0 {
		return nil, out.Errors
	}
	return &out.Data, nil
}

// ==================== 批量操作 ====================

const bulkOperationQuery = `query BulkOperation($id: ID!) {
  node(id: $id) {
    ... on BulkOperation { id status errorCode url partialDataUrl objectCount }
  }
}`

// GetBulkOperation 查询批量操作状态
func (c *Client) GetBulkOperation(ctx context.Context, creds Credentials, id string) (*BulkOperation, error) {
	type payload struct {
		Node *BulkOperation `json:"node"`
	}
	data, err := doGraphQL[payload](ctx, c, creds, "bulk_operation", bulkOperationQuery, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	if data.Node == nil {
		return nil, fmt.Errorf("批量操作 %s 不存在", id)
	}
	return data.Node, nil
}

// ==================== 集合 ====================

const collectionFields = `id handle title
      products(first: 250) { nodes { id } pageInfo { hasNextPage endCursor } }`

const collectionsQuery = `query Collections($first: Int!, $after: String) {
  collections(first: $first, after: $after) {
    nodes { ` + collectionFields + ` }
    pageInfo { hasNextPage endCursor }
  }
}`

const collectionQuery = `query Collection($id: ID!) {
  collection(id: $id) { ` + collectionFields + ` }
}`

// ListCollections 获取一页集合（含每个集合的前 250 个商品）
func (c *Client) ListCollections(ctx context.Context, creds Credentials, after string) (*CollectionPage, error) {
	type payload struct {
		Collections CollectionPage `json:"collections"`
	}
	vars := map[string]any{"first": CollectionPageSize}
	if after != "" {
		vars["after"] = after
	}
	data, err := doGraphQL[payload](ctx, c, creds, "collections", collectionsQuery, vars)
	if err != nil {
		return nil, err
	}
	return &data.Collections, nil
}

// WalkCollections 遍历全部集合页，fn 返回错误时停止
func (c *Client) WalkCollections(ctx context.Context, creds Credentials, fn func(*CollectionNode) error) error {
	cursor := ""
	for {
		page, err := c.ListCollections(ctx, creds, cursor)
		if err != nil {
			return err
		}
		for i := range page.Nodes {
			if err := fn(&page.Nodes[i]); err != nil {
				return err
			}
		}
		if !page.PageInfo.HasNextPage || page.PageInfo.EndCursor == "" {
			return nil
		}
		cursor = page.PageInfo.EndCursor
	}
}

// GetCollection 查询单个集合，不存在时返回 nil, nil
func (c *Client) GetCollection(ctx context.Context, creds Credentials, id string) (*CollectionNode, error) {
	type payload struct {
		Collection *CollectionNode `json:"collection"`
	}
	data, err := doGraphQL[payload](ctx, c, creds, "collection", collectionQuery, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	return data.Collection, nil
}

// ==================== 折扣 ====================

const discountBasicFields = `title status startsAt endsAt
      customerGets {
        value {
          __typename
          ... on DiscountPercentage { percentage }
          ... on DiscountAmount { amount { amount currencyCode } }
        }
        items {
          __typename
          ... on DiscountProducts { products(first: 250) { nodes { id } } }
          ... on DiscountCollections { collections(first: 250) { nodes { id } } }
        }
      }`

const discountQuery = `query Discount($id: ID!) {
  discountNode(id: $id) {
    id
    discount {
      __typename
      ... on DiscountCodeBasic { ` + discountBasicFields + ` }
      ... on DiscountAutomaticBasic { ` + discountBasicFields + ` }
    }
  }
}`

// GetDiscount 查询单个折扣节点，不存在时返回 nil, nil
// discount 字段保持原始 JSON，由调用方按 __typename 解码
func (c *Client) GetDiscount(ctx context.Context, creds Credentials, id string) (*DiscountNode, error) {
	type payload struct {
		DiscountNode *DiscountNode `json:"discountNode"`
	}
	data, err := doGraphQL[payload](ctx, c, creds, "discount", discountQuery, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	return data.DiscountNode, nil
}

// ==================== 店铺 ====================

const shopQuery = `query { shop { name currencyCode } }`

// GetShop 查询店铺信息（主要用于币种）
func (c *Client) GetShop(ctx context.Context, creds Credentials) (*ShopInfo, error) {
	type payload struct {
		Shop ShopInfo `json:"shop"`
	}
	data, err := doGraphQL[payload](ctx, c, creds, "shop", shopQuery, nil)
	if err != nil {
		return nil, err
	}
	return &data.Shop, nil
}

// ==================== 导出文件下载 ====================

// OpenExport 打开导出文件的流式响应体，调用方负责 Close
// 非 2xx 或没有响应体时返回 *TransportError
func (c *Client) OpenExport(ctx context.Context, url string) (io.ReadCloser, error) {
	resp, err := c.download.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		return nil, &TransportError{URL: url, Err: err}
	}

	body := resp.RawBody()
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		if body != nil {
			_ = body.Close()
		}
		return nil, &TransportError{URL: url, StatusCode: resp.StatusCode(), Err: errors.New("状态码异常")}
	}
	if body == nil || body == http.NoBody {
		return nil, &TransportError{URL: url, StatusCode: resp.StatusCode(), Err: errors.New("响应体为空")}
	}

	c.log.Debugf("[Shopify] 已打开导出文件流 (Status %d)", resp.StatusCode())
	return body, nil
}
