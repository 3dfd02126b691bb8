package shopify

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ErrMalformedIdentifier 标识符中找不到可用的数字 ID
var ErrMalformedIdentifier = errors.New("标识符格式错误")

// 资源类型（GID 路径中的类型段）
const (
	KindProduct           = "Product"
	KindProductVariant    = "ProductVariant"
	KindCollection        = "Collection"
	KindDiscountNode      = "DiscountNode"
	KindDiscountCodeNode  = "DiscountCodeNode"
	KindDiscountAutomatic = "DiscountAutomaticNode"
	KindDiscountCodeBasic = "DiscountCodeBasic"
	KindDiscountAutoBasic = "DiscountAutomaticBasic"
	KindBulkOperation     = "BulkOperation"
)

const gidPrefix = "gid://shopify/"

var trailingDigits = regexp.MustCompile(`(\d+)$`)

// GID 解析后的全局 ID
type GID struct {
	Kind string
	ID   int64
}

func (g GID) String() string {
	return FormatGID(g.Kind, g.ID)
}

// FormatGID 拼接全局 ID，例如 FormatGID("Product", 1) => gid://shopify/Product/1
func FormatGID(kind string, id int64) string {
	return fmt.Sprintf("%s%s/%d", gidPrefix, kind, id)
}

// ParseGID 解析 "gid://shopify/<Kind>/<digits>"
// Kind 取最后一个 "/" 之前的路径段，ID 取结尾的数字
func ParseGID(raw string) (GID, error) {
	id, err := ParseID(raw)
	if err != nil {
		return GID{}, err
	}
	return GID{Kind: KindOf(raw), ID: id}, nil
}

// KindOf 返回 GID 的资源类型，无法识别时返回空串
func KindOf(raw string) string {
	s := strings.TrimSpace(raw)
	if q := strings.IndexAny(s, "?#"); q >= 0 {
		s = s[:q]
	}
	s = strings.TrimSuffix(s, "/")
	last := strings.LastIndex(s, "/")
	if last <= 0 {
		return ""
	}
	head := s[:last]
	return head[strings.LastIndex(head, "/")+1:]
}

// IsDiscountNodeKind 折扣节点（通用 / 码 / 自动）
func IsDiscountNodeKind(kind string) bool {
	return kind == KindDiscountNode || kind == KindDiscountCodeNode || kind == KindDiscountAutomatic
}

// IsDiscountParentKind 折扣目标行的父节点：折扣节点或内嵌的折扣对象（DiscountCodeBasic 等）
func IsDiscountParentKind(kind string) bool {
	return strings.HasPrefix(kind, "Discount")
}

// IsKind 判断 raw 是否为指定类型的 GID
func IsKind(raw, kind string) bool {
	return raw != "" && KindOf(raw) == kind
}

// ParseID 将平台标识符转换为 64 位整数
// 接受 GID 字符串（取结尾连续数字）、纯数字字符串、整数、整数值的浮点数以及 json.Number
func ParseID(raw any) (int64, error) {
	switch v := raw.(type) {
	case string:
		return parseIDString(v)
	case json.Number:
		return parseIDString(v.String())
	case int:
		return nonNegative(int64(v), raw)
	case int32:
		return nonNegative(int64(v), raw)
	case int64:
		return nonNegative(v, raw)
	case uint32:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("%w: %d 超出范围", ErrMalformedIdentifier, v)
		}
		return int64(v), nil
	case float64:
		if v < 0 || v != math.Trunc(v) || v > math.MaxInt64 {
			return 0, fmt.Errorf("%w: %v", ErrMalformedIdentifier, v)
		}
		return int64(v), nil
	case nil:
		return 0, fmt.Errorf("%w: 空值", ErrMalformedIdentifier)
	default:
		return 0, fmt.Errorf("%w: 不支持的类型 %T", ErrMalformedIdentifier, raw)
	}
}

func parseIDString(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if q := strings.IndexAny(s, "?#"); q >= 0 {
		s = s[:q]
	}
	m := trailingDigits.FindString(s)
	if m == "" {
		return 0, fmt.Errorf("%w: %q", ErrMalformedIdentifier, s)
	}
	id, err := strconv.ParseInt(m, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q 超出范围", ErrMalformedIdentifier, s)
	}
	return id, nil
}

func nonNegative(v int64, raw any) (int64, error) {
	if v < 0 {
		return 0, fmt.Errorf("%w: %v", ErrMalformedIdentifier, raw)
	}
	return v, nil
}
