package models

import "time"

// MailboxConfig represents an IMAP mailbox the listener sweeps for orders
type MailboxConfig struct {
	ID         int64      `db:"id" json:"id"`
	Name       string     `db:"name" json:"name"` // Unique configuration name
	Host       string     `db:"host" json:"host"` // e.g., imap.gmail.com
	Port       int        `db:"port" json:"port"`
	User       string     `db:"username" json:"user"`
	Password   string     `db:"password" json:"-"`
	UseTLS     bool       `db:"use_tls" json:"useTls"`
	Folder     string     `db:"folder" json:"folder"` // Defaults to INBOX
	IsActive   bool       `db:"is_active" json:"isActive"`
	LastSyncAt *time.Time `db:"last_sync_at" json:"lastSyncAt,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updatedAt"`
}

// FolderOrDefault returns the configured folder or INBOX
func (c *MailboxConfig) FolderOrDefault() string {
	if c.Folder == "" {
		return "INBOX"
	}
	return c.Folder
}
