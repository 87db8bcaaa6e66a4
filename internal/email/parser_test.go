package email

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(strings.TrimLeft(s, "\n"), "\n", "\r\n"))
}

const multipartOrder = `
From: "Buyer, Acme" <buyer@acme.example>
To: orders@example.com
Subject: =?ISO-8859-1?Q?Bestellung_M=E4rz?=
Date: Mon, 04 Mar 2024 10:00:00 +0100
Message-ID: <po-1@acme.example>
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="outer"

--outer
Content-Type: multipart/alternative; boundary="inner"

--inner
Content-Type: text/plain; charset=utf-8

Please find our order attached.
--inner
Content-Type: text/html; charset=utf-8

<p>Please find our order attached.</p>
--inner--
--outer
Content-Type: application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
Content-Disposition: attachment; filename="order.xlsx"
Content-Transfer-Encoding: base64

c2hlZXQ=
--outer
Content-Type: image/png; name="scan.png"
Content-Disposition: inline
Content-Transfer-Encoding: base64

iVBORw==
--outer
Content-Type: application/octet-stream
Content-Disposition: attachment
Content-Transfer-Encoding: base64

AAE=
--outer--
`

func TestParseMultipart(t *testing.T) {
	msg, err := Parse(crlf(multipartOrder))
	require.NoError(t, err)

	assert.Equal(t, "Bestellung März", msg.Subject)
	assert.Equal(t, "Buyer, Acme <buyer@acme.example>", msg.From)
	assert.Equal(t, "po-1@acme.example", msg.MessageID)
	assert.Equal(t, 2024, msg.Date.Year())

	require.Len(t, msg.Attachments, 3)

	assert.Equal(t, "order.xlsx", msg.Attachments[0].Filename)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", msg.Attachments[0].ContentType)
	assert.Equal(t, []byte("sheet"), msg.Attachments[0].Content)

	assert.Equal(t, "scan.png", msg.Attachments[1].Filename)
	assert.Equal(t, "image/png", msg.Attachments[1].ContentType)

	assert.Equal(t, "unnamed-attachment", msg.Attachments[2].Filename)
	assert.Equal(t, []byte{0x00, 0x01}, msg.Attachments[2].Content)
}

func TestParseWithoutAttachments(t *testing.T) {
	raw := crlf(`
To: orders@example.com
Content-Type: text/plain; charset=utf-8

Just saying hello.
`)

	msg, err := Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "(no subject)", msg.Subject)
	assert.Equal(t, "(unknown sender)", msg.From)
	assert.Empty(t, msg.Attachments)
}

func TestParseSinglePartAttachment(t *testing.T) {
	raw := crlf(`
From: buyer@acme.example
Subject: PO
Content-Type: application/pdf
Content-Disposition: attachment; filename="order.pdf"
Content-Transfer-Encoding: base64

JVBERg==
`)

	msg, err := Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "buyer@acme.example", msg.From)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "order.pdf", msg.Attachments[0].Filename)
	assert.Equal(t, []byte("%PDF"), msg.Attachments[0].Content)
}
