package bulk

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RawID 标识符原文，兼容字符串与数字两种 JSON 形式
type RawID string

func (r *RawID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	switch {
	case s == "null":
		*r = ""
		return nil
	case strings.HasPrefix(s, `"`):
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*r = RawID(strings.TrimSpace(v))
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return err
		}
		*r = RawID(n.String())
		return nil
	}
}

// Record 导出文件中的一行
// 导出是扁平的，子对象通过 __parentId 指向父对象
type Record struct {
	ID       RawID `json:"id"`
	ParentID RawID `json:"__parentId"`

	// 商品 / 集合
	Status *string `json:"status"`
	Handle *string `json:"handle"`
	Title  string  `json:"title"`

	// 变体
	Price          decimal.NullDecimal `json:"price"`
	CompareAtPrice decimal.NullDecimal `json:"compareAtPrice"`

	// 折扣节点
	Discount *DiscountPayload `json:"discount"`
}

// DiscountPayload 折扣节点下的 discount 对象（DiscountCodeBasic / DiscountAutomaticBasic 等）
type DiscountPayload struct {
	ID       RawID      `json:"id"`
	TypeName string     `json:"__typename"`
	Title    string     `json:"title"`
	Status   string     `json:"status"`
	StartsAt *time.Time `json:"startsAt"`
	EndsAt   *time.Time `json:"endsAt"`

	CustomerGets struct {
		Value json.RawMessage `json:"value"`
		Items json.RawMessage `json:"items"`
	} `json:"customerGets"`
}

// DecodeRecord 解析一行，失败时返回 ErrMalformedLine
func DecodeRecord(line string) (*Record, error) {
	var rec Record
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedLine, err)
	}
	return &rec, nil
}
