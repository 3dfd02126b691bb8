package model

import "time"

// Collection 商品集合
type Collection struct {
	BaseModel
	CollectionID int64  `gorm:"uniqueIndex;not null" json:"collection_id"`
	Shop         string `gorm:"size:255;index;not null" json:"shop"`
	Handle       string `gorm:"size:255" json:"handle"`
	Title        string `gorm:"size:255" json:"title"`
}

func (Collection) TableName() string {
	return "collections"
}

// ProductCollection 商品与集合的多对多关系（平台 ID）
type ProductCollection struct {
	ProductID    int64     `gorm:"primaryKey;autoIncrement:false" json:"product_id"`
	CollectionID int64     `gorm:"primaryKey;autoIncrement:false;index" json:"collection_id"`
	CreatedAt    time.Time `json:"created_at"`
}

func (ProductCollection) TableName() string {
	return "product_collections"
}
