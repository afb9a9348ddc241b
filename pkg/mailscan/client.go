package mailscan

import (
	"context"
	"io"
	"time"

	"github.com/ogulcanaydogan/credit-guardian/pkg/model"
)

// Client is the slice of IMAP the scanner needs. Implementations operate on a
// mailbox already selected read-only.
type Client interface {
	// Search returns sequence numbers of messages received since the given time, ascending.
	Search(ctx context.Context, since time.Time) ([]uint32, error)

	// Fetch streams each message's raw RFC 5322 body to fn.
	Fetch(ctx context.Context, seqNums []uint32, fn func(seq uint32, body io.Reader) error) error

	// Logout ends the session and closes the connection.
	Logout() error
}

// Dialer connects, authenticates and selects the inbox.
type Dialer func(ctx context.Context, mailbox model.MailboxConfig) (Client, error)
