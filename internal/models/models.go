package models

import (
	"time"

	"gorm.io/gorm"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusReturn    OrderStatus = "return"
	OrderStatusShipment  OrderStatus = "shipment"
	OrderStatusPickup    OrderStatus = "pickup"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusCompleted OrderStatus = "completed"
)

type PaymentMode string

const (
	PaymentModeCash PaymentMode = "cash"
	PaymentModeCard PaymentMode = "card"
)

type PaymentStatus string

const (
	PaymentStatusUnknown    PaymentStatus = "unknown"
	PaymentStatusSuccess    PaymentStatus = "success"
	PaymentStatusError      PaymentStatus = "error"
	PaymentStatusReversed   PaymentStatus = "reversed"
	PaymentStatusFailure    PaymentStatus = "failure"
	PaymentStatusProcessing PaymentStatus = "processing"
)

// Recognized reports whether s is one of the statuses the payment gateway is
// documented to send.
func (s PaymentStatus) Recognized() bool {
	switch s {
	case PaymentStatusSuccess, PaymentStatusError, PaymentStatusReversed,
		PaymentStatusFailure, PaymentStatusProcessing:
		return true
	}
	return false
}

type User struct {
	ID           uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Email        string `gorm:"unique;not null"          json:"email"`
	PasswordHash string `gorm:"not null"                 json:"-"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	PhoneNumber  string `json:"phone_number"`
	Role         string `gorm:"not null;default:user"    json:"role"`
}

type RefreshToken struct {
	ID        uint   `gorm:"primaryKey"          json:"id"`
	Token     string `gorm:"unique;not null"     json:"token"`
	UserID    uint   `gorm:"index;not null"      json:"user_id"`
	Role      string `gorm:"not null"            json:"role"`
	ExpiresAt int64  `gorm:"not null"            json:"expires_at"`
	Revoked   bool   `gorm:"default:false"       json:"revoked"`
}

type Category struct {
	ID       uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Name     string `gorm:"unique;not null"          json:"name"`
	Slug     string `gorm:"unique;not null"          json:"slug"`
	ParentID *uint  `gorm:"index"                    json:"parent_id"`
	Hide     bool   `gorm:"default:false"            json:"-"`
}

type Product struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	CategoryID    uint      `gorm:"index;not null"           json:"category_id"`
	Name          string    `gorm:"not null"                 json:"name"`
	Slug          string    `gorm:"unique;not null"          json:"slug"`
	Price         float64   `gorm:"not null"                 json:"price"`
	DiscountPrice *float64  `json:"discount_price"`
	Description   string    `json:"description"`
	IsPublished   bool      `gorm:"default:true"             json:"is_published"`
	CreatedAt     time.Time `json:"created_at"`
}

// EffectivePrice is the price the customer actually pays.
func (p *Product) EffectivePrice() float64 {
	if p.DiscountPrice != nil {
		return *p.DiscountPrice
	}
	return p.Price
}

// Option is a facet dimension, e.g. "RAM size".
type Option struct {
	ID   uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Name string `gorm:"not null"                 json:"name"`
}

// Value is one concrete setting of an Option, e.g. "16 GB".
type Value struct {
	ID       uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	OptionID uint   `gorm:"index;not null"           json:"option_id"`
	Name     string `gorm:"not null"                 json:"name"`
}

// TableName avoids the reserved word "values".
func (Value) TableName() string { return "option_values" }

type ProductOptionValue struct {
	ID        uint `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID uint `gorm:"index;not null"           json:"product_id"`
	OptionID  uint `gorm:"index;not null"           json:"option_id"`
	ValueID   uint `gorm:"index;not null"           json:"value_id"`
}

// ProductFilter controls which options are offered as facet filters for a
// category and in which order.
type ProductFilter struct {
	ID         uint `gorm:"primaryKey;autoIncrement"                        json:"id"`
	CategoryID uint `gorm:"uniqueIndex:idx_filter_category_option;not null" json:"category_id"`
	OptionID   uint `gorm:"uniqueIndex:idx_filter_category_option;not null" json:"option_id"`
	Position   uint `json:"position"`
	Hide       bool `gorm:"default:false" json:"-"`
}

type Favorite struct {
	ID        uint `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID uint `gorm:"index;not null"           json:"product_id"`
	UserID    uint `gorm:"index;not null"           json:"user_id"`
}

type Order struct {
	ID            uint          `gorm:"primaryKey;autoIncrement" json:"id"`
	CustomerID    *uint         `gorm:"index"                    json:"customer_id"`
	FirstName     string        `json:"first_name"`
	LastName      string        `json:"last_name"`
	PhoneNumber   string        `json:"phone_number"`
	OrderStatus   OrderStatus   `gorm:"not null;default:pending" json:"order_status"`
	PaymentMode   PaymentMode   `gorm:"not null;default:card"    json:"payment_mode"`
	PaymentStatus PaymentStatus `gorm:"not null;default:unknown" json:"payment_status"`
	Address       string        `json:"address"`
	City          string        `json:"city"`
	Paid          bool          `gorm:"default:false"            json:"paid"`
	TotalCost     float64       `json:"total_cost"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	Items         []OrderItem   `gorm:"foreignKey:OrderID"       json:"items"`
}

// BeforeSave keeps the paid flag in lockstep with the payment status on every
// write, not only on the transition.
func (o *Order) BeforeSave(tx *gorm.DB) error {
	o.Paid = o.PaymentStatus == PaymentStatusSuccess
	return nil
}

// OrderItem snapshots the product prices at checkout time so later product
// edits never alter historical orders.
type OrderItem struct {
	ID            uint     `gorm:"primaryKey;autoIncrement"   json:"id"`
	OrderID       uint     `gorm:"index;not null"             json:"order_id"`
	ProductID     uint     `gorm:"not null"                   json:"product_id"`
	Price         float64  `gorm:"not null"                   json:"price"`
	DiscountPrice *float64 `json:"discount_price"`
	Quantity      uint     `gorm:"default:1;check:quantity>0" json:"quantity"`
	Cost          float64  `gorm:"not null"                   json:"cost"`
}

// PaymentData keeps the raw gateway callback payload for audit, one row per
// order.
type PaymentData struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID   uint      `gorm:"uniqueIndex;not null"     json:"order_id"`
	Data      string    `gorm:"not null"                 json:"data"`
	CreatedAt time.Time `json:"created_at"`
}

// All lists every model for automigration.
func All() []any {
	return []any{
		&User{}, &RefreshToken{},
		&Category{}, &Product{}, &Option{}, &Value{}, &ProductOptionValue{},
		&ProductFilter{}, &Favorite{},
		&Order{}, &OrderItem{}, &PaymentData{},
	}
}
