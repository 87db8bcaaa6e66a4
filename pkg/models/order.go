package models

import "time"

// OrderStatus lifecycle status of an order
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderConfirmed  OrderStatus = "confirmed"
	OrderProcessing OrderStatus = "processing"
	OrderCompleted  OrderStatus = "completed"
	OrderException  OrderStatus = "exception"
)

// Valid reports whether s is a known order status
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderConfirmed, OrderProcessing, OrderCompleted, OrderException:
		return true
	default:
		return false
	}
}

// UnknownCustomer is stored when extraction found no customer name
const UnknownCustomer = "unknown"

// Order represents an order created from an email attachment
type Order struct {
	ID              int64       `db:"id" json:"id"`
	OrderNumber     string      `db:"order_number" json:"orderNumber"`
	CustomerName    string      `db:"customer_name" json:"customerName"`
	CustomerEmail   *string     `db:"customer_email" json:"customerEmail,omitempty"`
	OrderDate       time.Time   `db:"order_date" json:"orderDate"`
	DeliveryDate    *time.Time  `db:"delivery_date" json:"deliveryDate,omitempty"`
	Status          OrderStatus `db:"status" json:"status"`
	SourceEmailID   string      `db:"source_email_id" json:"sourceEmailId"`
	AttachmentName  string      `db:"attachment_name" json:"attachmentName"`
	AttachmentIndex int         `db:"attachment_index" json:"attachmentIndex"`
	AIConfidence    int         `db:"ai_confidence" json:"aiConfidence"` // 0-100
	AttachmentURL   string      `db:"attachment_url" json:"attachmentUrl"`
	Notes           *string     `db:"notes" json:"notes,omitempty"` // Validation failure reasons
	CreatedAt       time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time   `db:"updated_at" json:"updatedAt"`
}

// OrderItem represents a single line of an order
type OrderItem struct {
	ID            int64     `db:"id" json:"id"`
	OrderID       int64     `db:"order_id" json:"orderId"`
	ProductCode   string    `db:"product_code" json:"productCode"`
	Quantity      int       `db:"quantity" json:"quantity"`
	Specification *string   `db:"specification" json:"specification,omitempty"`
	UnitPrice     *int64    `db:"unit_price" json:"unitPrice,omitempty"`   // Minor currency units
	TotalPrice    *int64    `db:"total_price" json:"totalPrice,omitempty"` // Minor currency units
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}

// OrderWithItems an order together with its items
type OrderWithItems struct {
	Order *Order       `json:"order"`
	Items []*OrderItem `json:"items"`
}

// DashboardStats aggregate counters for the review dashboard
type DashboardStats struct {
	TotalOrders         int `db:"total_orders" json:"totalOrders"`
	PendingOrders       int `db:"pending_orders" json:"pendingOrders"`
	ExceptionOrders     int `db:"exception_orders" json:"exceptionOrders"`
	CompletedOrders     int `db:"completed_orders" json:"completedOrders"`
	TotalProcessed      int `db:"total_processed" json:"totalProcessed"`
	SuccessfulProcessed int `db:"successful_processed" json:"successfulProcessed"`
	FailedProcessed     int `db:"failed_processed" json:"failedProcessed"`
	SuccessRate         int `db:"-" json:"successRate"` // Percent, rounded
}
