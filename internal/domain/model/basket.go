package model

import (
	"github.com/shopspring/decimal"
)

// 一個登入用戶只會有一個購物籃
type Basket struct {
	BasketID uint         `gorm:"primaryKey" json:"basket_id"`
	UserID   int          `gorm:"not null;uniqueIndex" json:"user_id"`
	Items    []BasketItem `gorm:"foreignKey:BasketID;constraint:OnDelete:CASCADE" json:"items"`
	BaseModel
}

// 同一個購物籃內同一個商品只會有一列，數量用更新的
type BasketItem struct {
	BasketID      uint            `gorm:"primaryKey" json:"basket_id"`
	ProductID     uint            `gorm:"primaryKey" json:"product_id"`
	Quantity      int             `gorm:"not null" json:"quantity"`
	PriceSnapshot decimal.Decimal `gorm:"not null;type:decimal(7,2)" json:"price_snapshot"` // 加入購物籃當下的單價
	Product       Product         `gorm:"foreignKey:ProductID" json:"product"`
	BaseModel
}

// BasketView 購物籃內容的唯讀檢視，給頁面與結帳摘要使用
type BasketView struct {
	Lines     []BasketLine    `json:"lines"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int             `json:"item_count"`
}

type BasketLine struct {
	ProductKey  string          `json:"product_key"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}
