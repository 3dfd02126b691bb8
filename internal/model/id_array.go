package model

import (
	"database/sql/driver"
	"slices"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// IDArray 平台数字 ID 列表
// postgres 下为 bigint[]，其他驱动以 "{1,2}" 文本存储，编解码统一交给 pq
type IDArray []int64

func (a IDArray) Value() (driver.Value, error) {
	if a == nil {
		return pq.Int64Array{}.Value()
	}
	return pq.Int64Array(a).Value()
}

func (a *IDArray) Scan(src any) error {
	return (*pq.Int64Array)(a).Scan(src)
}

func (IDArray) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "bigint[]"
	}
	return "text"
}

// Union 合并并去重，结果升序
func (a IDArray) Union(other ...int64) IDArray {
	out := make(IDArray, 0, len(a)+len(other))
	out = append(out, a...)
	out = append(out, other...)
	slices.Sort(out)
	return slices.Compact(out)
}
