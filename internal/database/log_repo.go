package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Gardner-Chu/order-automation-system/pkg/models"
)

// LogUpdate terminal update of a processing log.
// Nil fields keep their stored value.
type LogUpdate struct {
	Status       models.ProcessingStatus
	ErrorMessage *string
	AIResponse   *string
	OrderID      *int64
}

// CreateProcessingLog creates a new processing log entry
func (db *DB) CreateProcessingLog(ctx context.Context, entry *models.ProcessingLog) error {
	query := `
		INSERT INTO processing_logs (order_id, email_id, email_subject, email_from, attachment_name, attachment_type, status, error_message, ai_response, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	if entry.Status == "" {
		entry.Status = models.ProcessingPending
	}

	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		entry.OrderID,
		entry.EmailID,
		entry.EmailSubject,
		entry.EmailFrom,
		entry.AttachmentName,
		entry.AttachmentType,
		entry.Status,
		entry.ErrorMessage,
		entry.AIResponse,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create processing log: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	entry.ID = id
	entry.CreatedAt = now
	return nil
}

// UpdateProcessingLogStatus moves a log entry out of pending/processing.
// Entries that are already terminal are left untouched and ErrNotFound is returned.
func (db *DB) UpdateProcessingLogStatus(ctx context.Context, id int64, update LogUpdate) error {
	if !update.Status.IsTerminal() {
		return fmt.Errorf("processing log %d: %q is not a terminal status", id, update.Status)
	}

	query := `
		UPDATE processing_logs
		SET status = ?,
			error_message = COALESCE(?, error_message),
			ai_response = COALESCE(?, ai_response),
			order_id = COALESCE(?, order_id)
		WHERE id = ? AND status IN ('pending', 'processing')
	`
	result, err := db.ExecContext(ctx, query,
		update.Status,
		update.ErrorMessage,
		update.AIResponse,
		update.OrderID,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update processing log: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("processing log %d not open: %w", id, ErrNotFound)
	}
	return nil
}

// GetProcessingLogByID returns a processing log entry by ID
func (db *DB) GetProcessingLogByID(ctx context.Context, id int64) (*models.ProcessingLog, error) {
	var entry models.ProcessingLog
	query := `SELECT * FROM processing_logs WHERE id = ?`
	err := db.GetContext(ctx, &entry, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get processing log: %w", err)
	}
	return &entry, nil
}

// ListProcessingLogs returns log entries newest first, optionally filtered by status
func (db *DB) ListProcessingLogs(ctx context.Context, params ListParams) ([]*models.ProcessingLog, error) {
	params = params.normalized()

	logs := []*models.ProcessingLog{}
	var err error
	if params.Status != "" {
		query := `SELECT * FROM processing_logs WHERE status = ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
		err = db.SelectContext(ctx, &logs, query, params.Status, params.Limit, params.Offset)
	} else {
		query := `SELECT * FROM processing_logs ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
		err = db.SelectContext(ctx, &logs, query, params.Limit, params.Offset)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list processing logs: %w", err)
	}
	return logs, nil
}
