package model

import (
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrValidationFailed 輸入資料驗證失敗
	ErrValidationFailed = errors.New("validation failed")
	// ErrInvalidStateTransition 訂單狀態不允許此轉換
	ErrInvalidStateTransition = errors.New("invalid order state transition")
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"    // 已建立，等待付款
	OrderStatusPaid       OrderStatus = "PAID"       // 已付款，庫存已調整
	OrderStatusDispatched OrderStatus = "DISPATCHED" // 已出貨
	OrderStatusFailed     OrderStatus = "FAILED"     // 已取消或付款失敗
)

// 合法的狀態轉換
// PENDING -> PAID -> DISPATCHED
// PENDING -> FAILED
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending: {OrderStatusPaid, OrderStatusFailed},
	OrderStatusPaid:    {OrderStatusDispatched},
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Order struct {
	OrderID     uint   `gorm:"primaryKey" json:"order_id"`
	OrderNumber string `gorm:"not null;type:varchar(32);uniqueIndex" json:"order_number"`
	UserID      *int   `gorm:"index" json:"user_id"` // 匿名訂單為 null

	FullName       string `gorm:"not null;type:varchar(50)" json:"full_name"`
	Email          string `gorm:"not null;type:varchar(254)" json:"email"`
	PhoneNumber    string `gorm:"not null;type:varchar(20)" json:"phone_number"`
	Country        string `gorm:"not null;type:varchar(40)" json:"country"`
	Postcode       string `gorm:"type:varchar(20)" json:"postcode"`
	TownOrCity     string `gorm:"not null;type:varchar(40)" json:"town_or_city"`
	StreetAddress1 string `gorm:"not null;type:varchar(80)" json:"street_address1"`
	StreetAddress2 string `gorm:"type:varchar(80)" json:"street_address2"`
	County         string `gorm:"type:varchar(80)" json:"county"`

	OrderDate      time.Time       `gorm:"not null" json:"order_date"`
	Total          decimal.Decimal `gorm:"not null;type:decimal(9,2);default:0" json:"total"`
	OriginalBasket string          `gorm:"not null;type:text;default:''" json:"original_basket"` // 下單當下的購物籃快照，冪等比對用
	Status         OrderStatus     `gorm:"not null;type:varchar(20);default:PENDING" json:"status"`
	Paid           bool            `gorm:"not null;default:false" json:"paid"`
	StockAdjusted  bool            `gorm:"not null;default:false" json:"stock_adjusted"` // 庫存只能被扣一次

	LineItems []OrderLineItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"line_items"`
	BaseModel
}

// TransitionTo 依狀態機轉換訂單狀態
func (o *Order) TransitionTo(next OrderStatus) error {
	if !o.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, o.Status, next)
	}
	o.Status = next
	return nil
}

// IsOwnedBy 訂單擁有權檢查
// 帳號訂單看 user id，匿名訂單由呼叫端比對 session 的 pending order token
func (o *Order) IsOwnedBy(userID int) bool {
	if o.UserID == nil {
		return false
	}
	return *o.UserID == userID
}

// 訂單明細，建立後不再變動
// ProductID 是弱參考，商品下架後保留 ProductName 供對帳
type OrderLineItem struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	OrderID     uint            `gorm:"not null;index" json:"order_id"`
	ProductID   *uint           `gorm:"index" json:"product_id"`
	ProductName string          `gorm:"not null;type:varchar(254)" json:"product_name"`
	Quantity    int             `gorm:"not null" json:"quantity"`
	Price       decimal.Decimal `gorm:"not null;type:decimal(7,2)" json:"price"` // 下單當下單價
	BaseModel
}

// ContactInfo 結帳時填寫的聯絡與收件資訊
type ContactInfo struct {
	FullName       string `json:"full_name"`
	Email          string `json:"email"`
	PhoneNumber    string `json:"phone_number"`
	Country        string `json:"country"`
	Postcode       string `json:"postcode"`
	TownOrCity     string `json:"town_or_city"`
	StreetAddress1 string `json:"street_address1"`
	StreetAddress2 string `json:"street_address2"`
	County         string `json:"county"`
}

// Validate 檢查必填欄位與 email 格式
func (c ContactInfo) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"full_name", c.FullName},
		{"email", c.Email},
		{"phone_number", c.PhoneNumber},
		{"country", c.Country},
		{"town_or_city", c.TownOrCity},
		{"street_address1", c.StreetAddress1},
	}
	for _, field := range required {
		if field.value == "" {
			return fmt.Errorf("%w: %s is required", ErrValidationFailed, field.name)
		}
	}

	if _, err := mail.ParseAddress(c.Email); err != nil {
		return fmt.Errorf("%w: invalid email %q", ErrValidationFailed, c.Email)
	}
	return nil
}

// ApplyTo 把聯絡資訊寫進訂單欄位
// 重複結帳沿用同一張訂單時，聯絡資訊以最後一次提交為準
func (c ContactInfo) ApplyTo(order *Order) {
	order.FullName = c.FullName
	order.Email = c.Email
	order.PhoneNumber = c.PhoneNumber
	order.Country = c.Country
	order.Postcode = c.Postcode
	order.TownOrCity = c.TownOrCity
	order.StreetAddress1 = c.StreetAddress1
	order.StreetAddress2 = c.StreetAddress2
	order.County = c.County
}
