// Package imapmail is a mail transport for plain IMAP accounts. Unread means
// "without \Seen", the conversation identifier is the Message-ID of the
// original message, and drafts are appended to the drafts mailbox.
package imapmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/bassamadnan/tdraft/mailbox"
	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"
	"github.com/rs/zerolog"
)

const inbox = "INBOX"

// DefaultDraftsMailbox is used when no drafts mailbox is configured.
const DefaultDraftsMailbox = "Drafts"

// Config describes how to reach the IMAP account.
type Config struct {
	Host          string
	Port          int
	Username      string
	Password      string
	TLS           bool // implicit TLS; STARTTLS otherwise
	DraftsMailbox string
}

// Client keeps one logged-in session open across poll cycles. The session is
// checked with NOOP before reuse and dropped after any failed command, so the
// next call dials again.
type Client struct {
	cfg  Config
	log  zerolog.Logger
	dial func(addr string) (*imapclient.Client, error)

	mu      sync.Mutex
	session *imapclient.Client
}

func NewClient(cfg Config, log zerolog.Logger) *Client {
	if cfg.DraftsMailbox == "" {
		cfg.DraftsMailbox = DefaultDraftsMailbox
	}
	c := &Client{cfg: cfg, log: log}
	c.dial = func(addr string) (*imapclient.Client, error) {
		if cfg.TLS {
			return imapclient.DialTLS(addr, nil)
		}
		return imapclient.DialStartTLS(addr, nil)
	}
	return c
}

// sessionLocked returns the open session, logging in first when there is
// none or the old one stopped answering. Callers must hold mu.
func (c *Client) sessionLocked(ctx context.Context) (*imapclient.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.session != nil {
		err := c.session.Noop().Wait()
		if err == nil {
			return c.session, nil
		}
		c.log.Debug().Err(err).Msg("IMAP session went stale, reconnecting")
		c.dropLocked()
	}

	addr := c.cfg.Host + ":" + strconv.Itoa(c.cfg.Port)
	client, err := c.dial(addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}
	if err := client.Login(c.cfg.Username, c.cfg.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("authentication failed for %s: %w", c.cfg.Username, err)
	}
	c.log.Debug().Str("addr", addr).Msg("IMAP session opened")
	c.session = client
	return client, nil
}

// dropLocked closes the session without a LOGOUT round trip.
func (c *Client) dropLocked() {
	if c.session == nil {
		return
	}
	if err := c.session.Close(); err != nil {
		c.log.Debug().Err(err).Msg("Closing IMAP connection failed")
	}
	c.session = nil
}

// Close logs out of the open session, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	err := c.session.Logout().Wait()
	if err != nil {
		c.log.Debug().Err(err).Msg("IMAP logout failed")
	}
	c.dropLocked()
	return err
}

// fail drops the session and wraps err for op. Callers must hold mu.
func (c *Client) fail(op string, err error) error {
	c.dropLocked()
	return mailbox.WrapTransport(op, err)
}

// ListUnread returns up to max unseen INBOX messages, newest first.
func (c *Client) ListUnread(ctx context.Context, max int) ([]mailbox.MessageRef, error) {
	const op = "list unread"
	c.mu.Lock()
	defer c.mu.Unlock()

	client, err := c.sessionLocked(ctx)
	if err != nil {
		return nil, mailbox.WrapTransport(op, err)
	}

	if _, err := client.Select(inbox, &imap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
		return nil, c.fail(op, fmt.Errorf("selecting %s: %w", inbox, err))
	}

	criteria := &imap.SearchCriteria{NotFlag: []imap.Flag{imap.FlagSeen}}
	data, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, c.fail(op, fmt.Errorf("searching unseen: %w", err))
	}

	uids := newestFirst(data.AllUIDs(), max)
	refs := make([]mailbox.MessageRef, 0, len(uids))
	for _, uid := range uids {
		refs = append(refs, mailbox.MessageRef{ID: strconv.FormatUint(uint64(uid), 10)})
	}
	return refs, nil
}

// GetMetadata fetches the envelope of the message with UID id.
func (c *Client) GetMetadata(ctx context.Context, id string) (mailbox.Metadata, error) {
	op := "get message " + id
	uid, err := parseUID(id)
	if err != nil {
		return mailbox.Metadata{}, mailbox.WrapTransport(op, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	client, err := c.sessionLocked(ctx)
	if err != nil {
		return mailbox.Metadata{}, mailbox.WrapTransport(op, err)
	}

	if _, err := client.Select(inbox, &imap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
		return mailbox.Metadata{}, c.fail(op, fmt.Errorf("selecting %s: %w", inbox, err))
	}

	fetchCmd := client.Fetch(imap.UIDSetNum(uid), &imap.FetchOptions{Envelope: true, UID: true})
	msg := fetchCmd.Next()
	if msg == nil {
		if err := fetchCmd.Close(); err != nil {
			return mailbox.Metadata{}, c.fail(op, fmt.Errorf("fetching UID %d: %w", uid, err))
		}
		return mailbox.Metadata{}, mailbox.WrapTransport(op, fmt.Errorf("message UID %d not found", uid))
	}
	buf, err := msg.Collect()
	if err != nil {
		_ = fetchCmd.Close()
		return mailbox.Metadata{}, c.fail(op, fmt.Errorf("collecting message data: %w", err))
	}
	if err := fetchCmd.Close(); err != nil {
		return mailbox.Metadata{}, c.fail(op, fmt.Errorf("closing fetch: %w", err))
	}

	return metadataFromEnvelope(id, buf.Envelope), nil
}

// CreateDraft appends the decoded draft to the drafts mailbox flagged \Draft.
// userID is implied by the IMAP login and ignored.
func (c *Client) CreateDraft(ctx context.Context, _ string, d mailbox.Draft) (mailbox.DraftResult, error) {
	const op = "create draft"
	raw, err := base64.URLEncoding.DecodeString(d.Raw)
	if err != nil {
		return mailbox.DraftResult{}, mailbox.WrapTransport(op, fmt.Errorf("decoding raw message: %w", err))
	}
	raw = withThreadHeaders(raw, d.ThreadID)

	c.mu.Lock()
	defer c.mu.Unlock()

	client, err := c.sessionLocked(ctx)
	if err != nil {
		return mailbox.DraftResult{}, mailbox.WrapTransport(op, err)
	}

	appendCmd := client.Append(c.cfg.DraftsMailbox, int64(len(raw)), &imap.AppendOptions{
		Flags: []imap.Flag{imap.FlagDraft},
	})
	if _, err := appendCmd.Write(raw); err != nil {
		_ = appendCmd.Close()
		return mailbox.DraftResult{}, c.fail(op, fmt.Errorf("writing message: %w", err))
	}
	if err := appendCmd.Close(); err != nil {
		return mailbox.DraftResult{}, c.fail(op, fmt.Errorf("closing append: %w", err))
	}
	data, err := appendCmd.Wait()
	if err != nil {
		return mailbox.DraftResult{}, c.fail(op, fmt.Errorf("appending to %s: %w", c.cfg.DraftsMailbox, err))
	}

	res := mailbox.DraftResult{ThreadID: d.ThreadID}
	if data != nil && data.UID != 0 {
		res.ID = strconv.FormatUint(uint64(data.UID), 10)
	}
	return res, nil
}

func parseUID(id string) (imap.UID, error) {
	n, err := strconv.ParseUint(id, 10, 32)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid message UID %q", id)
	}
	return imap.UID(n), nil
}

// newestFirst keeps the max highest UIDs, highest first.
func newestFirst(uids []imap.UID, max int) []imap.UID {
	if max > 0 && len(uids) > max {
		uids = uids[len(uids)-max:]
	}
	out := make([]imap.UID, len(uids))
	for i, uid := range uids {
		out[len(uids)-1-i] = uid
	}
	return out
}

func metadataFromEnvelope(id string, env *imap.Envelope) mailbox.Metadata {
	md := mailbox.Metadata{ID: id, Headers: make(map[string]string)}
	if env == nil {
		return md
	}
	if len(env.From) > 0 {
		md.Headers[mailbox.HeaderFrom] = formatAddress(env.From[0])
	}
	if env.Subject != "" {
		md.Headers[mailbox.HeaderSubject] = env.Subject
	}
	md.ThreadID = strings.Trim(env.MessageID, "<>")
	return md
}

func formatAddress(a imap.Address) string {
	addr := &mail.Address{Name: a.Name, Address: a.Addr()}
	if a.Name == "" {
		return addr.Address
	}
	return addr.String()
}

// withThreadHeaders prepends In-Reply-To and References so clients thread
// the draft under the original message.
func withThreadHeaders(raw []byte, messageID string) []byte {
	if messageID == "" {
		return raw
	}
	ref := "<" + strings.Trim(messageID, "<>") + ">"
	var b bytes.Buffer
	b.WriteString("In-Reply-To: " + ref + "\r\n")
	b.WriteString("References: " + ref + "\r\n")
	b.Write(raw)
	return b.Bytes()
}
