package database

import (
	"context"
	"fmt"

	"github.com/Gardner-Chu/order-automation-system/pkg/models"
)

// GetDashboardStats aggregates order and processing counters
func (db *DB) GetDashboardStats(ctx context.Context) (*models.DashboardStats, error) {
	var stats models.DashboardStats

	orderQuery := `
		SELECT
			COUNT(*) AS total_orders,
			COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0) AS pending_orders,
			COALESCE(SUM(CASE WHEN status = 'exception' THEN 1 ELSE 0 END), 0) AS exception_orders,
			COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0) AS completed_orders
		FROM orders
	`
	if err := db.GetContext(ctx, &stats, orderQuery); err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}

	logQuery := `
		SELECT
			COUNT(*) AS total_processed,
			COALESCE(SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END), 0) AS successful_processed,
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0) AS failed_processed
		FROM processing_logs
	`
	if err := db.GetContext(ctx, &stats, logQuery); err != nil {
		return nil, fmt.Errorf("failed to count processing logs: %w", err)
	}

	if stats.TotalProcessed > 0 {
		stats.SuccessRate = (stats.SuccessfulProcessed*100 + stats.TotalProcessed/2) / stats.TotalProcessed
	}

	return &stats, nil
}
