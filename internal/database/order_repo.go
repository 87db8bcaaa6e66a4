package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Gardner-Chu/order-automation-system/pkg/models"
)

// CreateOrder creates an order and its items in one transaction.
// Item order ids are overwritten with the generated order id.
func (db *DB) CreateOrder(ctx context.Context, order *models.Order, items []*models.OrderItem) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO orders (order_number, customer_name, customer_email, order_date, delivery_date, status, source_email_id, attachment_name, attachment_index, ai_confidence, attachment_url, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := tx.ExecContext(ctx, query,
		order.OrderNumber,
		order.CustomerName,
		order.CustomerEmail,
		order.OrderDate,
		order.DeliveryDate,
		order.Status,
		order.SourceEmailID,
		order.AttachmentName,
		order.AttachmentIndex,
		order.AIConfidence,
		order.AttachmentURL,
		order.Notes,
		now,
		now,
	)
	if err != nil {
		if isErrUnique(err) {
			return fmt.Errorf("order %s from %s part %d: %w", order.OrderNumber, order.SourceEmailID, order.AttachmentIndex, ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create order: %w", err)
	}

	orderID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	itemQuery := `
		INSERT INTO order_items (order_id, product_code, quantity, specification, unit_price, total_price, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	for _, item := range items {
		item.OrderID = orderID
		res, err := tx.ExecContext(ctx, itemQuery,
			item.OrderID,
			item.ProductCode,
			item.Quantity,
			item.Specification,
			item.UnitPrice,
			item.TotalPrice,
			now,
		)
		if err != nil {
			return fmt.Errorf("failed to create order item: %w", err)
		}
		itemID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		item.ID = itemID
		item.CreatedAt = now
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit order: %w", err)
	}

	order.ID = orderID
	order.CreatedAt = now
	order.UpdatedAt = now
	return nil
}

// GetOrderByID returns an order with its items
func (db *DB) GetOrderByID(ctx context.Context, id int64) (*models.OrderWithItems, error) {
	var order models.Order
	query := `SELECT * FROM orders WHERE id = ?`
	err := db.GetContext(ctx, &order, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	items := []*models.OrderItem{}
	query = `SELECT * FROM order_items WHERE order_id = ? ORDER BY id`
	if err := db.SelectContext(ctx, &items, query, id); err != nil {
		return nil, fmt.Errorf("failed to get order items: %w", err)
	}

	return &models.OrderWithItems{Order: &order, Items: items}, nil
}

// ListOrders returns orders newest first, optionally filtered by status
func (db *DB) ListOrders(ctx context.Context, params ListParams) ([]*models.Order, error) {
	params = params.normalized()

	orders := []*models.Order{}
	var err error
	if params.Status != "" {
		query := `SELECT * FROM orders WHERE status = ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
		err = db.SelectContext(ctx, &orders, query, params.Status, params.Limit, params.Offset)
	} else {
		query := `SELECT * FROM orders ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
		err = db.SelectContext(ctx, &orders, query, params.Limit, params.Offset)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

// CountOrderItems returns the number of items attached to an order
func (db *DB) CountOrderItems(ctx context.Context, orderID int64) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM order_items WHERE order_id = ?`
	if err := db.GetContext(ctx, &count, query, orderID); err != nil {
		return 0, fmt.Errorf("failed to count order items: %w", err)
	}
	return count, nil
}

// UpdateOrderStatus sets the order status. Notes are replaced only when non-nil.
func (db *DB) UpdateOrderStatus(ctx context.Context, id int64, status models.OrderStatus, notes *string) error {
	if !status.Valid() {
		return fmt.Errorf("invalid order status %q", status)
	}

	query := `UPDATE orders SET status = ?, notes = COALESCE(?, notes), updated_at = ? WHERE id = ?`
	result, err := db.ExecContext(ctx, query, status, notes, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
