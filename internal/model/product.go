package model

import "time"

// 商品状态
const (
	ProductStatusActive   = "active"
	ProductStatusArchived = "archived"
)

// MapProductStatus 平台状态 -> 本地状态，只有 ACTIVE 视为在售
func MapProductStatus(platformStatus string) string {
	if platformStatus == "ACTIVE" || platformStatus == ProductStatusActive {
		return ProductStatusActive
	}
	return ProductStatusArchived
}

// Product 商品
type Product struct {
	BaseModel
	ProductID int64  `gorm:"uniqueIndex;not null" json:"product_id"` // 平台商品 ID
	Shop      string `gorm:"size:255;index;not null" json:"shop"`
	Handle    string `gorm:"size:255" json:"handle"`
	Status    string `gorm:"size:20;index;default:'archived'" json:"status"` // active / archived
}

func (Product) TableName() string {
	return "products"
}

// 合规状态（由合规计算服务写入）
const (
	ComplianceUnknown      = "unknown"
	ComplianceCompliant    = "compliant"
	ComplianceNonCompliant = "non_compliant"
)

// Variant 商品变体，(shop, variant_id) 唯一
type Variant struct {
	BaseModel
	Shop      string `gorm:"size:255;not null;uniqueIndex:idx_shop_variant" json:"shop"`
	VariantID int64  `gorm:"not null;uniqueIndex:idx_shop_variant" json:"variant_id"`
	ProductID int64  `gorm:"index;not null" json:"product_id"`
	Status    string `gorm:"size:20;default:'archived'" json:"status"`

	// --- 合规计算结果，对账不覆盖 ---
	ComplianceStatus         string     `gorm:"size:20;default:'unknown'" json:"compliance_status"`
	CurrentDiscountStartedAt *time.Time `json:"current_discount_started_at"`
}

func (Variant) TableName() string {
	return "variants"
}
