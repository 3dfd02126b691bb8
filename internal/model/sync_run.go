package model

import (
	"time"

	"gorm.io/datatypes"
)

// 运行状态
const (
	RunStateStreaming  = "streaming"
	RunStateFinalizing = "finalizing"
	RunStateDone       = "done"
	RunStateFailed     = "failed"
)

// 运行来源
const (
	RunSourceWebhook = "webhook"
	RunSourceManual  = "manual"
	RunSourceCLI     = "cli"
)

// SyncRun 一次对账运行的记录
type SyncRun struct {
	BaseModel
	RunID           string         `gorm:"size:36;uniqueIndex;not null" json:"run_id"`
	Shop            string         `gorm:"size:255;index;not null" json:"shop"`
	Source          string         `gorm:"size:20" json:"source"`
	BulkOperationID string         `gorm:"size:100" json:"bulk_operation_id"`
	State           string         `gorm:"size:20;index" json:"state"`
	Stats           datatypes.JSON `json:"stats"`
	Error           string         `gorm:"type:text" json:"error"`
	StartedAt       time.Time      `json:"started_at"`
	FinishedAt      *time.Time     `json:"finished_at"`
}

func (SyncRun) TableName() string {
	return "sync_runs"
}

// AllModels 普通表（AutoMigrate）
func AllModels() []interface{} {
	return []interface{}{
		&Shop{},
		&Product{},
		&Variant{},
		&Collection{},
		&ProductCollection{},
		&Discount{},
		&SyncRun{},
	}
}

// PartitionedModels 分区表（postgres 下由 SQL 文件建表）
func PartitionedModels() []interface{} {
	return []interface{}{&PriceHistory{}}
}
