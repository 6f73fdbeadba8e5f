package mailbox

import (
	"context"
	"errors"
	"fmt"
)

// Header names the loop reads from every unread message.
const (
	HeaderFrom    = "From"
	HeaderSubject = "Subject"
)

// MessageRef is an opaque message identifier returned by a list query.
type MessageRef struct {
	ID string
}

// Metadata holds the header fields of a message plus its conversation identifier.
type Metadata struct {
	ID       string
	Headers  map[string]string
	ThreadID string // empty when the transport reports none
}

// Header returns the named header value, or "" when it is missing.
func (m Metadata) Header(name string) string {
	if m.Headers == nil {
		return ""
	}
	return m.Headers[name]
}

// Draft is the transport-ready envelope of a reply draft.
type Draft struct {
	Raw      string `json:"raw"`                // URL-safe base64 of the full RFC 822 message
	ThreadID string `json:"threadId,omitempty"` // links the draft to an existing conversation
}

// DraftResult is whatever the transport reports back for a created draft.
type DraftResult struct {
	ID        string
	MessageID string
	ThreadID  string
}

// Client is an authenticated mail transport.
type Client interface {
	ListUnread(ctx context.Context, max int) ([]MessageRef, error)
	GetMetadata(ctx context.Context, id string) (Metadata, error)
	CreateDraft(ctx context.Context, userID string, draft Draft) (DraftResult, error)
}

// TransportError marks a failure talking to the mail transport.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("mail transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// WrapTransport wraps err as a TransportError for op. A nil err stays nil.
func WrapTransport(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{Op: op, Err: err}
}

// IsTransportError reports whether err, or anything it wraps, is a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
