package draft

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/bassamadnan/tdraft/mailbox"
	"github.com/emersion/go-message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingCreator struct {
	userID string
	drafts []mailbox.Draft
	result mailbox.DraftResult
	err    error
}

func (r *recordingCreator) CreateDraft(_ context.Context, userID string, d mailbox.Draft) (mailbox.DraftResult, error) {
	r.userID = userID
	r.drafts = append(r.drafts, d)
	return r.result, r.err
}

func decode(t *testing.T, raw string) (*message.Entity, string) {
	t.Helper()
	b, err := base64.URLEncoding.DecodeString(raw)
	require.NoError(t, err)
	e, err := message.Read(bytes.NewReader(b))
	require.NoError(t, err)
	body, err := io.ReadAll(e.Body)
	require.NoError(t, err)
	return e, string(body)
}

func TestComposeHeadersAndBody(t *testing.T) {
	cases := []Request{
		{To: "to@example.com", From: "me", Subject: "Hello", Body: "Body"},
		{To: "Jane Doe <jane@example.com>", From: "me", Subject: "Re: Quarterly numbers", Body: "Thanks,\nI'll take a look.\n"},
		{To: "pierre@example.fr", From: "me", Subject: "Re: Réunion demain", Body: "Merci, à demain."},
	}
	for _, req := range cases {
		t.Run(req.Subject, func(t *testing.T) {
			d, err := Compose(req)
			require.NoError(t, err)

			e, body := decode(t, d.Raw)
			assert.Equal(t, req.To, e.Header.Get("To"))
			assert.Equal(t, req.From, e.Header.Get("From"))
			subject, err := e.Header.Text("Subject")
			require.NoError(t, err)
			assert.Equal(t, req.Subject, subject)
			assert.Equal(t, req.Body, body)

			mediaType, _, err := e.Header.ContentType()
			require.NoError(t, err)
			assert.Equal(t, "text/plain", mediaType)
		})
	}
}

func TestComposeKeepsPadding(t *testing.T) {
	d, err := Compose(Request{To: "a@example.com", From: "me", Subject: "x", Body: "y"})
	require.NoError(t, err)
	_, err = base64.URLEncoding.DecodeString(d.Raw)
	require.NoError(t, err)
	assert.NotContains(t, d.Raw, "+")
	assert.NotContains(t, d.Raw, "/")
}

func TestComposeThreadLinkage(t *testing.T) {
	linked, err := Compose(Request{To: "a@example.com", From: "me", Subject: "s", Body: "b", ThreadID: "t123"})
	require.NoError(t, err)
	out, err := json.Marshal(linked)
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(out, &fields))
	assert.Equal(t, "t123", fields["threadId"])
	assert.Contains(t, fields, "raw")

	unlinked, err := Compose(Request{To: "a@example.com", From: "me", Subject: "s", Body: "b"})
	require.NoError(t, err)
	out, err = json.Marshal(unlinked)
	require.NoError(t, err)
	fields = nil
	require.NoError(t, json.Unmarshal(out, &fields))
	assert.NotContains(t, fields, "threadId")
}

func TestCreateDelegatesToClient(t *testing.T) {
	c := &recordingCreator{result: mailbox.DraftResult{ID: "draft1"}}

	res, err := Create(context.Background(), c, "me", "to@example.com", "Hello", "Body", "t123")
	require.NoError(t, err)
	assert.Equal(t, mailbox.DraftResult{ID: "draft1"}, res)
	assert.Equal(t, "me", c.userID)
	require.Len(t, c.drafts, 1)
	assert.Equal(t, "t123", c.drafts[0].ThreadID)

	e, body := decode(t, c.drafts[0].Raw)
	assert.Equal(t, "to@example.com", e.Header.Get("To"))
	assert.Equal(t, "me", e.Header.Get("From"))
	assert.Equal(t, "Body", body)
}

func TestCreatePropagatesClientError(t *testing.T) {
	boom := mailbox.WrapTransport("create draft", errors.New("quota exceeded"))
	c := &recordingCreator{err: boom}

	_, err := Create(context.Background(), c, "me", "to@example.com", "Hello", "Body", "")
	assert.Same(t, boom, err)
	require.Len(t, c.drafts, 1)
	assert.Empty(t, c.drafts[0].ThreadID)
}
