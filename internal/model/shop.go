package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// 店铺状态
const (
	ShopStatusActive      = 1 // 正常
	ShopStatusUninstalled = 2 // 已卸载
)

// DefaultTimeframe 默认比较周期（天）
const DefaultTimeframe = 30

// ShopSettings 店铺级合规设置
type ShopSettings struct {
	Timeframe    int    `json:"timeframe"`              // 最低价回看天数
	CurrencyCode string `json:"currencyCode,omitempty"` // 覆盖店铺币种
}

type Shop struct {
	BaseModel
	Domain       string `gorm:"size:255;uniqueIndex;not null" json:"domain"` // xxx.myshopify.com
	Name         string `gorm:"size:255" json:"name"`
	CurrencyCode string `gorm:"size:8" json:"currency_code"`
	AccessToken  string `gorm:"size:255" json:"-"`
	Status       int    `gorm:"default:1;comment:状态 1-正常 2-已卸载" json:"status"`

	Settings datatypes.JSON `json:"settings"`

	// 对账 + 合规计算进行中
	CalculationInProgress bool       `gorm:"default:false" json:"calculation_in_progress"`
	LastBulkOperationID   string     `gorm:"size:100" json:"last_bulk_operation_id"`
	LastSyncedAt          *time.Time `json:"last_synced_at"`
}

func (Shop) TableName() string {
	return "shops"
}

// ResolveSettings 解析设置，缺省值填充
func (s *Shop) ResolveSettings(defaultTimeframe int) ShopSettings {
	var out ShopSettings
	if len(s.Settings) > 0 {
		_ = json.Unmarshal(s.Settings, &out)
	}
	if out.Timeframe <= 0 {
		out.Timeframe = defaultTimeframe
	}
	if out.Timeframe <= 0 {
		out.Timeframe = DefaultTimeframe
	}
	return out
}

// Market 价格历史使用的市场币种：设置覆盖 > 店铺币种 > 默认
func (s *Shop) Market(fallback string) string {
	settings := s.ResolveSettings(DefaultTimeframe)
	switch {
	case settings.CurrencyCode != "":
		return settings.CurrencyCode
	case s.CurrencyCode != "":
		return s.CurrencyCode
	default:
		return fallback
	}
}
