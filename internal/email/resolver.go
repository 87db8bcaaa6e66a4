package email

import (
	"fmt"
	"strings"

	"github.com/Gardner-Chu/order-automation-system/pkg/models"
)

// DefaultIMAPSPort implicit TLS IMAP port
const DefaultIMAPSPort = 993

// IMAP hosts of popular email providers
var knownIMAPHosts = map[string]string{
	"gmail.com":      "imap.gmail.com",
	"googlemail.com": "imap.gmail.com",
	"outlook.com":    "outlook.office365.com",
	"hotmail.com":    "outlook.office365.com",
	"live.com":       "outlook.office365.com",
	"msn.com":        "outlook.office365.com",
	"yahoo.com":      "imap.mail.yahoo.com",
	"yahoo.co.uk":    "imap.mail.yahoo.com",
	"icloud.com":     "imap.mail.me.com",
	"me.com":         "imap.mail.me.com",
	"mac.com":        "imap.mail.me.com",
	"aol.com":        "imap.aol.com",
	"zoho.com":       "imap.zoho.com",
	"fastmail.com":   "imap.fastmail.com",
	"gmx.com":        "imap.gmx.com",
	"gmx.de":         "imap.gmx.net",
	"web.de":         "imap.web.de",
	"t-online.de":    "secureimap.t-online.de",
	"qq.com":         "imap.qq.com",
	"163.com":        "imap.163.com",
	"126.com":        "imap.126.com",
	"aliyun.com":     "imap.aliyun.com",
}

// ResolveIMAPHost determines the IMAP host for an email address.
// Unknown domains fall back to imap.<domain>.
func ResolveIMAPHost(address string) (string, error) {
	domain := GetDomainFromEmail(address)
	if domain == "" {
		return "", fmt.Errorf("invalid email format: %q", address)
	}

	if host, ok := knownIMAPHosts[domain]; ok {
		return host, nil
	}
	return "imap." + domain, nil
}

// FillServer sets host and port of cfg from its user address when they are missing
func FillServer(cfg *models.MailboxConfig) error {
	if cfg.Host == "" {
		host, err := ResolveIMAPHost(cfg.User)
		if err != nil {
			return fmt.Errorf("mailbox %s: %w", cfg.Name, err)
		}
		cfg.Host = host
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultIMAPSPort
	}
	return nil
}

// GetDomainFromEmail extracts domain from email address
func GetDomainFromEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 || parts[1] == "" {
		return ""
	}
	return strings.ToLower(parts[1])
}
