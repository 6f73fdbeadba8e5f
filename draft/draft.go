// Package draft assembles reply drafts and hands them to the mail transport.
package draft

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/bassamadnan/tdraft/mailbox"
	"github.com/emersion/go-message"
)

// Request is everything needed to build one reply draft.
type Request struct {
	To       string
	From     string
	Subject  string
	Body     string
	ThreadID string
}

// Creator is the part of a mail client that stores drafts.
type Creator interface {
	CreateDraft(ctx context.Context, userID string, draft mailbox.Draft) (mailbox.DraftResult, error)
}

// Compose renders req as a plain-text message and wraps it in a transport envelope.
func Compose(req Request) (mailbox.Draft, error) {
	raw, err := renderMessage(req)
	if err != nil {
		return mailbox.Draft{}, err
	}
	return mailbox.Draft{
		Raw:      base64.URLEncoding.EncodeToString(raw),
		ThreadID: req.ThreadID,
	}, nil
}

// Create composes a draft and submits it through client. The client's result
// and error are returned as is.
func Create(ctx context.Context, client Creator, userID, to, subject, body, threadID string) (mailbox.DraftResult, error) {
	d, err := Compose(Request{
		To:       to,
		From:     userID,
		Subject:  subject,
		Body:     body,
		ThreadID: threadID,
	})
	if err != nil {
		return mailbox.DraftResult{}, err
	}
	return client.CreateDraft(ctx, userID, d)
}

func renderMessage(req Request) ([]byte, error) {
	var h message.Header
	// textproto writes fields in reverse insertion order.
	h.SetText(mailbox.HeaderSubject, req.Subject)
	h.Set(mailbox.HeaderFrom, req.From)
	h.Set("To", req.To)
	if !isASCII(req.Body) {
		h.Set("Content-Transfer-Encoding", "quoted-printable")
	}
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	h.Set("MIME-Version", "1.0")

	var buf bytes.Buffer
	w, err := message.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("creating message writer: %w", err)
	}
	if _, err := io.WriteString(w, req.Body); err != nil {
		return nil, fmt.Errorf("writing message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing message writer: %w", err)
	}
	return buf.Bytes(), nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
