package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Gardner-Chu/order-automation-system/pkg/models"
)

// MailboxSeed mirrors one entry of the mailbox seed file
type MailboxSeed struct {
	Name     string `yaml:"name"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	UseTLS   *bool  `yaml:"tls"`
	Folder   string `yaml:"folder"`
	Active   *bool  `yaml:"active"`
}

type mailboxFile struct {
	Mailboxes []MailboxSeed `yaml:"mailboxes"`
}

// LoadMailboxSeed reads mailbox configurations from a YAML file.
// ${VAR} references are expanded from the environment so secrets stay out of the file.
func LoadMailboxSeed(path string) ([]*models.MailboxConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mailbox seed %s: %w", path, err)
	}

	return ParseMailboxSeed([]byte(os.ExpandEnv(string(data))))
}

// ParseMailboxSeed parses an already expanded mailbox seed document
func ParseMailboxSeed(data []byte) ([]*models.MailboxConfig, error) {
	var raw mailboxFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse mailbox seed: %w", err)
	}

	configs := make([]*models.MailboxConfig, 0, len(raw.Mailboxes))
	for i, m := range raw.Mailboxes {
		// Host may be left out; it is derived from the user address later
		if m.Name == "" || m.User == "" {
			return nil, fmt.Errorf("mailbox %d: name and user are required", i+1)
		}

		cfg := &models.MailboxConfig{
			Name:     m.Name,
			Host:     m.Host,
			Port:     m.Port,
			User:     m.User,
			Password: m.Password,
			UseTLS:   true,
			Folder:   m.Folder,
			IsActive: true,
		}
		if cfg.Port == 0 {
			cfg.Port = 993
		}
		if cfg.Folder == "" {
			cfg.Folder = "INBOX"
		}
		if m.UseTLS != nil {
			cfg.UseTLS = *m.UseTLS
		}
		if m.Active != nil {
			cfg.IsActive = *m.Active
		}

		configs = append(configs, cfg)
	}

	return configs, nil
}
