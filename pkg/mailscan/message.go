package mailscan

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

const maxPartSize = 1 << 20

// Message is the decoded subset of an email the scanner inspects.
type Message struct {
	MessageID  string
	Subject    string
	From       string
	Date       time.Time
	DateHeader string
	Body       string
}

// DedupKey prefers the Message-ID and falls back to a hash of date, subject and sender.
func (m Message) DedupKey() string {
	if id := strings.Trim(strings.TrimSpace(m.MessageID), "<>"); id != "" {
		return "mid:" + id
	}
	sum := sha256.Sum256([]byte(m.DateHeader + "|" + m.Subject + "|" + m.From))
	return "sha:" + hex.EncodeToString(sum[:])
}

// ParseMessage decodes an RFC 5322 message. Text parts are concatenated; HTML
// parts are tag-stripped; attachments are skipped. Unknown charsets are
// tolerated and read as-is.
func ParseMessage(r io.Reader) (Message, error) {
	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return Message{}, fmt.Errorf("parse message: %w", err)
	}
	defer mr.Close()

	h := mr.Header
	msg := Message{DateHeader: h.Get("Date"), From: h.Get("From")}
	if s, err := h.Subject(); err == nil {
		msg.Subject = s
	} else {
		msg.Subject = h.Get("Subject")
	}
	if id, err := h.MessageID(); err == nil {
		msg.MessageID = id
	}
	if d, err := h.Date(); err == nil {
		msg.Date = d
	}
	if addrs, err := h.AddressList("From"); err == nil && len(addrs) > 0 {
		msg.From = addrs[0].String()
	}

	var parts []string
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) {
				continue
			}
			if len(parts) == 0 {
				return msg, fmt.Errorf("read message body: %w", err)
			}
			break
		}

		inline, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		if disp, _, _ := inline.ContentDisposition(); disp == "attachment" {
			continue
		}
		ct, _, _ := inline.ContentType()
		if ct != "text/plain" && ct != "text/html" {
			continue
		}
		b, err := io.ReadAll(io.LimitReader(p.Body, maxPartSize))
		if err != nil && len(b) == 0 {
			continue
		}
		text := string(b)
		if ct == "text/html" {
			text = StripHTML(text)
		}
		parts = append(parts, text)
	}
	msg.Body = strings.Join(parts, "\n")
	return msg, nil
}
