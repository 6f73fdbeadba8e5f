package mailbox

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransportError(t *testing.T) {
	base := errors.New("503 backend unavailable")
	wrapped := WrapTransport("list unread", base)

	assert.True(t, IsTransportError(wrapped))
	assert.True(t, IsTransportError(fmt.Errorf("cycle: %w", wrapped)))
	assert.ErrorIs(t, wrapped, base)
	assert.False(t, IsTransportError(base))
	assert.False(t, IsTransportError(nil))
	assert.NoError(t, WrapTransport("noop", nil))
	assert.Equal(t, "mail transport: list unread: 503 backend unavailable", wrapped.Error())
}

func TestMetadataHeader(t *testing.T) {
	md := Metadata{Headers: map[string]string{HeaderFrom: "a@example.com"}}
	assert.Equal(t, "a@example.com", md.Header(HeaderFrom))
	assert.Equal(t, "", md.Header(HeaderSubject))
	assert.Equal(t, "", Metadata{}.Header(HeaderFrom))
}
