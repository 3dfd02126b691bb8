package model

import "time"

// 折扣类型
const (
	DiscountTypePercentage  = "percentage"
	DiscountTypeFixedAmount = "fixed_amount"
)

// 折扣作用范围
const (
	AppliesToProduct    = "PRODUCT"
	AppliesToCollection = "COLLECTION"
)

// 折扣来源
const (
	DiscountKindCode      = "code"
	DiscountKindAutomatic = "automatic"
)

// Discount 归一化后的折扣
// ProductIDs / CollectionIDs 只增不减（合并写入），升序且无重复
type Discount struct {
	BaseModel
	DiscountID int64  `gorm:"uniqueIndex;not null" json:"discount_id"`
	Shop       string `gorm:"size:255;index;not null" json:"shop"`
	Kind       string `gorm:"size:20" json:"kind"`
	Title      string `gorm:"size:255" json:"title"`
	Status     string `gorm:"size:20" json:"status"`

	StartsAt *time.Time `json:"starts_at"`
	EndsAt   *time.Time `json:"ends_at"`

	Type      string `gorm:"size:20;not null" json:"type"` // percentage: 整数百分比; fixed_amount: 最小货币单位
	Amount    int64  `gorm:"not null;default:0" json:"amount"`
	AppliesTo string `gorm:"size:20;not null" json:"applies_to"`

	ProductIDs    IDArray `gorm:"not null" json:"product_ids"`
	CollectionIDs IDArray `gorm:"not null" json:"collection_ids"`
}

func (Discount) TableName() string {
	return "discounts"
}
