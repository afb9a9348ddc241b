package mailscan_test

import (
	"strings"
	"testing"

	"github.com/ogulcanaydogan/credit-guardian/pkg/mailscan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const multipartMessage = "From: Billing <billing@example.com>\r\n" +
	"To: ops@example.com\r\n" +
	"Subject: =?UTF-8?B?44CQ6Zi/6YeM5LqR44CR5L2Z6aKd5LiN6Laz?=\r\n" +
	"Date: Tue, 04 Mar 2025 10:00:00 +0800\r\n" +
	"Message-ID: <abc123@example.com>\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=BOUNDARY\r\n" +
	"\r\n" +
	"--BOUNDARY\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Plain part\r\n" +
	"--BOUNDARY\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>HTML <b>part</b></p>\r\n" +
	"--BOUNDARY\r\n" +
	"Content-Type: text/plain\r\n" +
	"Content-Disposition: attachment; filename=\"invoice.txt\"\r\n" +
	"\r\n" +
	"attachment secret\r\n" +
	"--BOUNDARY--\r\n"

func TestParseMessageMultipart(t *testing.T) {
	msg, err := mailscan.ParseMessage(strings.NewReader(multipartMessage))
	require.NoError(t, err)

	assert.Equal(t, "【阿里云】余额不足", msg.Subject)
	assert.Equal(t, "abc123@example.com", msg.MessageID)
	assert.Contains(t, msg.From, "billing@example.com")
	assert.Equal(t, 2025, msg.Date.Year())
	assert.Contains(t, msg.Body, "Plain part")
	assert.Contains(t, msg.Body, "HTML part")
	assert.NotContains(t, msg.Body, "attachment secret")
	assert.Equal(t, "mid:abc123@example.com", msg.DedupKey())
}

func TestParseMessageSinglePart(t *testing.T) {
	raw := "From: a@example.com\r\nSubject: Payment overdue\r\nDate: Tue, 04 Mar 2025 10:00:00 +0000\r\n" +
		"Content-Type: text/plain\r\n\r\nPlease pay 10 元\r\n"

	msg, err := mailscan.ParseMessage(strings.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "Payment overdue", msg.Subject)
	assert.Contains(t, msg.Body, "Please pay 10 元")
	assert.Empty(t, msg.MessageID)
}

func TestDedupKeyFallback(t *testing.T) {
	a := mailscan.Message{Subject: "s", From: "f", DateHeader: "d"}
	b := mailscan.Message{Subject: "s", From: "f", DateHeader: "d"}
	c := mailscan.Message{Subject: "s", From: "g", DateHeader: "d"}

	assert.Equal(t, a.DedupKey(), b.DedupKey())
	assert.NotEqual(t, a.DedupKey(), c.DedupKey())
	assert.True(t, strings.HasPrefix(a.DedupKey(), "sha:"))
}
