package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Gardner-Chu/order-automation-system/pkg/models"
)

// CreateMailboxConfig creates a new mailbox configuration
func (db *DB) CreateMailboxConfig(ctx context.Context, cfg *models.MailboxConfig) error {
	query := `
		INSERT INTO mailbox_configs (name, host, port, username, password, use_tls, folder, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		cfg.Name,
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.UseTLS,
		cfg.FolderOrDefault(),
		cfg.IsActive,
		now,
		now,
	)
	if err != nil {
		if isErrUnique(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to create mailbox config: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	cfg.ID = id
	cfg.Folder = cfg.FolderOrDefault()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now
	return nil
}

// UpsertMailboxConfig creates a mailbox configuration or updates the one with the same name
func (db *DB) UpsertMailboxConfig(ctx context.Context, cfg *models.MailboxConfig) error {
	query := `
		INSERT INTO mailbox_configs (name, host, port, username, password, use_tls, folder, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			host = excluded.host,
			port = excluded.port,
			username = excluded.username,
			password = excluded.password,
			use_tls = excluded.use_tls,
			folder = excluded.folder,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at
	`
	now := time.Now()
	_, err := db.ExecContext(ctx, query,
		cfg.Name,
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.UseTLS,
		cfg.FolderOrDefault(),
		cfg.IsActive,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert mailbox config: %w", err)
	}

	// LastInsertId is unreliable for the update branch
	stored, err := db.GetMailboxConfigByName(ctx, cfg.Name)
	if err != nil {
		return err
	}
	*cfg = *stored
	return nil
}

// GetMailboxConfigByID returns a mailbox configuration by ID
func (db *DB) GetMailboxConfigByID(ctx context.Context, id int64) (*models.MailboxConfig, error) {
	var cfg models.MailboxConfig
	query := `SELECT * FROM mailbox_configs WHERE id = ?`
	err := db.GetContext(ctx, &cfg, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mailbox config: %w", err)
	}
	return &cfg, nil
}

// GetMailboxConfigByName returns a mailbox configuration by its unique name
func (db *DB) GetMailboxConfigByName(ctx context.Context, name string) (*models.MailboxConfig, error) {
	var cfg models.MailboxConfig
	query := `SELECT * FROM mailbox_configs WHERE name = ?`
	err := db.GetContext(ctx, &cfg, query, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mailbox config: %w", err)
	}
	return &cfg, nil
}

// ListMailboxConfigs returns all mailbox configurations
func (db *DB) ListMailboxConfigs(ctx context.Context) ([]*models.MailboxConfig, error) {
	var configs []*models.MailboxConfig
	query := `SELECT * FROM mailbox_configs ORDER BY name`
	err := db.SelectContext(ctx, &configs, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get mailbox configs: %w", err)
	}
	return configs, nil
}

// ListActiveMailboxConfigs returns all active mailbox configurations
func (db *DB) ListActiveMailboxConfigs(ctx context.Context) ([]*models.MailboxConfig, error) {
	var configs []*models.MailboxConfig
	query := `SELECT * FROM mailbox_configs WHERE is_active = true ORDER BY id`
	err := db.SelectContext(ctx, &configs, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get active mailbox configs: %w", err)
	}
	return configs, nil
}

// UpdateMailboxConfigLastSync sets the last successful sync time
func (db *DB) UpdateMailboxConfigLastSync(ctx context.Context, id int64, at time.Time) error {
	query := `UPDATE mailbox_configs SET last_sync_at = ?, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, at, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update last sync: %w", err)
	}
	return nil
}

// SetMailboxConfigActive sets the active flag of a mailbox configuration
func (db *DB) SetMailboxConfigActive(ctx context.Context, id int64, active bool) error {
	query := `UPDATE mailbox_configs SET is_active = ?, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, active, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set mailbox config active: %w", err)
	}
	return nil
}

// DeleteMailboxConfig deletes a mailbox configuration
func (db *DB) DeleteMailboxConfig(ctx context.Context, id int64) error {
	query := `DELETE FROM mailbox_configs WHERE id = ?`
	_, err := db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete mailbox config: %w", err)
	}
	return nil
}
