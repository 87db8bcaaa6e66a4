package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/Gardner-Chu/order-automation-system/pkg/models"
)

// ConnectParams describes how to reach and authenticate to a mailbox
type ConnectParams struct {
	Host        string
	Port        int
	User        string
	Password    string
	UseTLS      bool
	AuthTimeout time.Duration // Dial and login timeout
}

// Address returns host:port
func (p ConnectParams) Address() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// ParamsFromConfig builds connect parameters for a stored mailbox configuration
func ParamsFromConfig(cfg *models.MailboxConfig, authTimeout time.Duration) ConnectParams {
	return ConnectParams{
		Host:        cfg.Host,
		Port:        cfg.Port,
		User:        cfg.User,
		Password:    cfg.Password,
		UseTLS:      cfg.UseTLS,
		AuthTimeout: authTimeout,
	}
}

// FetchedMessage a raw RFC 5322 message and its UID
type FetchedMessage struct {
	UID uint32
	Raw []byte
}

// Dialer opens authenticated mailbox sessions
type Dialer interface {
	Dial(ctx context.Context, params ConnectParams) (Session, error)
}

// Session is an authenticated connection to one mailbox server.
// Sessions are used from a single goroutine.
type Session interface {
	OpenFolder(ctx context.Context, name string) error
	// SearchUnseen returns unseen messages of the open folder without setting \Seen
	SearchUnseen(ctx context.Context) ([]*FetchedMessage, error)
	MarkSeen(ctx context.Context, uid uint32) error
	Close() error
}

// IMAPDialer dials IMAP servers
type IMAPDialer struct {
	logger *slog.Logger
}

// NewIMAPDialer creates a new IMAP dialer
func NewIMAPDialer(logger *slog.Logger) *IMAPDialer {
	return &IMAPDialer{logger: logger.With("component", "imap")}
}

// Dial connects to the IMAP server and logs in
func (d *IMAPDialer) Dial(ctx context.Context, params ConnectParams) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger := d.logger.With("server", params.Address(), "user", params.User)
	logger.Debug("connecting to IMAP server")

	timeout := params.AuthTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	conn, err := dialConn(ctx, params, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	imapClient, err := client.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create IMAP client: %w", err)
	}

	// Login is bounded by the auth timeout, fetches are not
	imapClient.Timeout = timeout
	if err := imapClient.Login(params.User, params.Password); err != nil {
		imapClient.Logout()
		return nil, fmt.Errorf("failed to login: %w", err)
	}
	imapClient.Timeout = 0

	logger.Debug("connected to IMAP server")
	return &imapSession{client: imapClient, logger: logger}, nil
}

// dialConn opens the transport, with implicit TLS when requested. ctx cancels the
// dial and the TLS handshake.
func dialConn(ctx context.Context, params ConnectParams, timeout time.Duration) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: timeout}
	if !params.UseTLS {
		return dialer.DialContext(ctx, "tcp", params.Address())
	}

	tlsDialer := &tls.Dialer{
		NetDialer: dialer,
		Config:    &tls.Config{ServerName: params.Host},
	}
	return tlsDialer.DialContext(ctx, "tcp", params.Address())
}

type imapSession struct {
	client *client.Client
	logger *slog.Logger
	folder string
}

// OpenFolder selects a mailbox read-write
func (s *imapSession) OpenFolder(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := s.client.Select(name, false); err != nil {
		return fmt.Errorf("failed to select %s: %w", name, err)
	}
	s.folder = name
	return nil
}

// SearchUnseen fetches full bodies with BODY.PEEK[] so flags stay untouched
func (s *imapSession) SearchUnseen(ctx context.Context) ([]*FetchedMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.folder == "" {
		return nil, fmt.Errorf("no folder selected")
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	uids, err := s.client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)

	go func() {
		done <- s.client.UidFetch(seqSet, items, messages)
	}()

	var fetched []*FetchedMessage
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			s.logger.Warn("server returned no body", "uid", msg.Uid)
			continue
		}

		raw, err := io.ReadAll(body)
		if err != nil {
			s.logger.Warn("failed to read message body", "uid", msg.Uid, "error", err)
			continue
		}

		fetched = append(fetched, &FetchedMessage{UID: msg.Uid, Raw: raw})
	}

	if err := <-done; err != nil {
		return fetched, fmt.Errorf("failed to fetch: %w", err)
	}

	sort.Slice(fetched, func(i, j int) bool { return fetched[i].UID < fetched[j].UID })
	return fetched, nil
}

// MarkSeen adds the \Seen flag
func (s *imapSession) MarkSeen(ctx context.Context, uid uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.SeenFlag}

	if err := s.client.UidStore(seqSet, item, flags, nil); err != nil {
		return fmt.Errorf("failed to mark as read: %w", err)
	}

	return nil
}

// Close logs out, forcing the connection closed if logout does not finish
func (s *imapSession) Close() error {
	done := make(chan error, 1)
	go func() {
		done <- s.client.Logout()
	}()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, client.ErrAlreadyLoggedOut) {
			return fmt.Errorf("failed to logout: %w", err)
		}
		return nil
	case <-time.After(2 * time.Second):
		return s.client.Terminate()
	}
}
