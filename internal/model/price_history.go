package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceHistory 价格快照，只追加不修改
// postgres 下按 date 月分区，见 pkg/database/partitions/price_histories.sql
type PriceHistory struct {
	ID           int64     `gorm:"primaryKey" json:"id"`
	VariantRowID int64     `gorm:"index:idx_price_histories_variant_date,priority:1;not null" json:"variant_row_id"` // variants.id
	Date         time.Time `gorm:"index:idx_price_histories_variant_date,priority:2;not null" json:"date"`
	Market       string    `gorm:"size:8;not null" json:"market"` // 币种

	Price          decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"price"`
	CompareAtPrice decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"compare_at_price"`

	PriceWithDiscounts          decimal.NullDecimal `gorm:"type:numeric(14,2)" json:"price_with_discounts"`
	CompareAtPriceWithDiscounts decimal.NullDecimal `gorm:"type:numeric(14,2)" json:"compare_at_price_with_discounts"`

	RunID     string    `gorm:"size:36" json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (PriceHistory) TableName() string {
	return "price_histories"
}
