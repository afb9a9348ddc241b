package mailscan

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"
	"github.com/ogulcanaydogan/credit-guardian/pkg/model"
)

// DefaultOpTimeout bounds every IMAP round trip.
const DefaultOpTimeout = 30 * time.Second

const inbox = "INBOX"

// IMAPDialer returns a Dialer backed by go-imap. Each command runs under
// opTimeout; cancelling the scan context terminates the connection.
func IMAPDialer(opTimeout time.Duration) Dialer {
	if opTimeout <= 0 {
		opTimeout = DefaultOpTimeout
	}
	return func(ctx context.Context, mb model.MailboxConfig) (Client, error) {
		port := mb.Port
		if port == 0 {
			port = 993
			if !mb.TLS() {
				port = 143
			}
		}
		addr := net.JoinHostPort(mb.Host, strconv.Itoa(port))
		dialer := &net.Dialer{Timeout: opTimeout}
		if deadline, ok := ctx.Deadline(); ok {
			dialer.Deadline = deadline
		}

		var (
			c   *imapclient.Client
			err error
		)
		if mb.TLS() {
			c, err = imapclient.DialWithDialerTLS(dialer, addr, &tls.Config{ServerName: mb.Host, MinVersion: tls.VersionTLS12})
		} else {
			c, err = imapclient.DialWithDialer(dialer, addr)
		}
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", addr, err)
		}
		c.Timeout = opTimeout

		ic := &imapClient{c: c}
		ic.stop = context.AfterFunc(ctx, func() { _ = c.Terminate() })

		if err := c.Login(mb.Username, mb.Password); err != nil {
			_ = ic.Logout()
			return nil, fmt.Errorf("login %s: %w", mb.Username, err)
		}
		if _, err := c.Select(inbox, true); err != nil {
			_ = ic.Logout()
			return nil, fmt.Errorf("select %s: %w", inbox, err)
		}
		return ic, nil
	}
}

type imapClient struct {
	c    *imapclient.Client
	stop func() bool
}

func (ic *imapClient) Search(ctx context.Context, since time.Time) ([]uint32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	criteria := imap.NewSearchCriteria()
	criteria.Since = since
	ids, err := ic.c.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("search since %s: %w", since.Format("02-Jan-2006"), err)
	}
	return ids, nil
}

func (ic *imapClient) Fetch(ctx context.Context, seqNums []uint32, fn func(uint32, io.Reader) error) error {
	if len(seqNums) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(seqNums...)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{section.FetchItem()}

	messages := make(chan *imap.Message, 16)
	done := make(chan error, 1)
	go func() {
		done <- ic.c.Fetch(seqset, items, messages)
	}()

	var cbErr error
	for msg := range messages {
		if cbErr != nil {
			continue
		}
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		cbErr = fn(msg.SeqNum, body)
	}
	if err := <-done; err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	return cbErr
}

func (ic *imapClient) Logout() error {
	if ic.stop != nil {
		ic.stop()
	}
	err := ic.c.Logout()
	if errors.Is(err, imapclient.ErrAlreadyLoggedOut) {
		return nil
	}
	return err
}
