package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	WeightUnitKg = "kg"
	WeightUnitLb = "lb"
)

// 商品以重量當作身分識別，(weight, weight_unit) 組合必須唯一
type Product struct {
	ProductID  uint            `gorm:"primaryKey" json:"product_id"`
	Weight     decimal.Decimal `gorm:"not null;type:decimal(5,2);uniqueIndex:idx_weight_unit" json:"weight"`
	WeightUnit string          `gorm:"not null;type:varchar(2);default:kg;uniqueIndex:idx_weight_unit" json:"weight_unit"`
	Price      decimal.Decimal `gorm:"not null;type:decimal(7,2)" json:"price"`
	Stock      uint            `gorm:"not null;type:int;default:0" json:"stock"`
	LineItems  []OrderLineItem `gorm:"foreignKey:ProductID;constraint:OnDelete:SET NULL"` // 商品刪除時保留訂單明細
	BaseModel
}

// Key 回傳商品在購物籃裡使用的鍵值
// kg 商品只用重量字串 ("16", "16.5")，其他單位加上後綴 ("35lb")
func (p *Product) Key() string {
	if p.WeightUnit == WeightUnitKg {
		return p.Weight.String()
	}
	return p.Weight.String() + p.WeightUnit
}

// Label 商品顯示名稱，訂單明細的 product_name 也使用這個格式
func (p *Product) Label() string {
	return fmt.Sprintf("%s %s (£%s)", p.Weight.String(), p.WeightUnit, p.Price.StringFixed(2))
}
