package domain

import "time"

type Customer struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Email     string    `json:"email,omitempty" yaml:"email"`
	Phone     string    `json:"phone,omitempty" yaml:"phone"`
	Location  string    `json:"location,omitempty" yaml:"location"`
	CreatedAt time.Time `json:"createdAt" yaml:"created_at"`
}

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderInTransit  OrderStatus = "in_transit"
	OrderDelivered  OrderStatus = "delivered"
	OrderReturned   OrderStatus = "returned"
)

type Order struct {
	ID             string      `json:"id" yaml:"id"`
	CustomerID     string      `json:"customerId" yaml:"customer_id"`
	Status         OrderStatus `json:"status" yaml:"status"`
	TrackingNumber string      `json:"trackingNumber,omitempty" yaml:"tracking_number"`
	Amount         float64     `json:"amount" yaml:"amount"`
	CreatedAt      time.Time   `json:"createdAt" yaml:"created_at"`
	UpdatedAt      time.Time   `json:"updatedAt" yaml:"updated_at"`
}

// CustomerContext is the profile and order history handed to the analyzers.
// RecentOrders is newest first.
type CustomerContext struct {
	Customer     Customer `json:"customer"`
	RecentOrders []Order  `json:"recentOrders"`
}

// LatestOrder returns the most recent order, if any.
func (c *CustomerContext) LatestOrder() (Order, bool) {
	if c == nil || len(c.RecentOrders) == 0 {
		return Order{}, false
	}
	return c.RecentOrders[0], true
}

type Article struct {
	ID        string    `json:"id" yaml:"id"`
	Category  string    `json:"category" yaml:"category"`
	Title     string    `json:"title" yaml:"title"`
	Content   string    `json:"content" yaml:"content"`
	CreatedAt time.Time `json:"createdAt" yaml:"-"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"-"`
}
