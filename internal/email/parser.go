package email

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

const (
	defaultSubject  = "(no subject)"
	defaultFrom     = "(unknown sender)"
	defaultFilename = "unnamed-attachment"
)

// Attachment a file carried by a message
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// ParsedMessage the parts of a message the ingestion needs
type ParsedMessage struct {
	MessageID   string
	Subject     string
	From        string
	Date        time.Time
	Attachments []*Attachment
}

// Parse reads a raw RFC 5322 message. Parts with an attachment disposition and
// inline parts carrying a filename are returned as attachments, in message order.
func Parse(raw []byte) (*ParsedMessage, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("failed to create mail reader: %w", err)
	}
	defer mr.Close()

	msg := &ParsedMessage{
		Subject: defaultSubject,
		From:    defaultFrom,
	}

	if subject, err := mr.Header.Subject(); err == nil && strings.TrimSpace(subject) != "" {
		msg.Subject = subject
	}
	if from := formatFrom(&mr.Header); from != "" {
		msg.From = from
	}
	if date, err := mr.Header.Date(); err == nil {
		msg.Date = date
	}
	if id, err := mr.Header.MessageID(); err == nil {
		msg.MessageID = id
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return msg, fmt.Errorf("failed to read part: %w", err)
		}

		var header *mail.AttachmentHeader
		switch h := part.Header.(type) {
		case *mail.AttachmentHeader:
			header = h
		case *mail.InlineHeader:
			// Inline images and files still count when they are named
			candidate := &mail.AttachmentHeader{Header: h.Header}
			if name, _ := candidate.Filename(); name == "" {
				continue
			}
			header = candidate
		default:
			continue
		}

		content, err := io.ReadAll(part.Body)
		if err != nil {
			return msg, fmt.Errorf("failed to read attachment: %w", err)
		}

		filename, _ := header.Filename()
		if strings.TrimSpace(filename) == "" {
			filename = defaultFilename
		}
		contentType, _, _ := header.ContentType()
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		msg.Attachments = append(msg.Attachments, &Attachment{
			Filename:    filename,
			ContentType: contentType,
			Content:     content,
		})
	}

	return msg, nil
}

func formatFrom(h *mail.Header) string {
	addrs, err := h.AddressList("From")
	if err == nil && len(addrs) > 0 {
		addr := addrs[0]
		if addr.Name != "" {
			return fmt.Sprintf("%s <%s>", addr.Name, addr.Address)
		}
		return addr.Address
	}

	from, _ := h.Text("From")
	return strings.TrimSpace(from)
}
