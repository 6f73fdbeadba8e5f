package gmail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/bassamadnan/tdraft/mailbox"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const unreadLabel = "UNREAD"

// Scopes requested for the authorized session: read/modify mail and compose drafts.
var Scopes = []string{gmail.GmailModifyScope, gmail.GmailComposeScope}

type Client struct {
	srv  *gmail.Service
	user string
	log  zerolog.Logger
}

// NewClient authorizes with the OAuth client secret in credentialsFile and the
// cached token in tokenFile, running the browser flow when no token is cached.
func NewClient(ctx context.Context, credentialsFile, tokenFile string, log zerolog.Logger) (*Client, error) {
	oauthConfig, err := loadOAuthConfig(credentialsFile)
	if err != nil {
		return nil, err
	}
	httpClient, err := getOAuthClient(ctx, oauthConfig, tokenFile, log)
	if err != nil {
		return nil, err
	}
	return NewClientWithOptions(ctx, log, option.WithHTTPClient(httpClient))
}

// NewClientWithOptions builds a client on an already-authenticated transport.
func NewClientWithOptions(ctx context.Context, log zerolog.Logger, opts ...option.ClientOption) (*Client, error) {
	srv, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	return &Client{srv: srv, user: "me", log: log}, nil
}

// Authorize runs the browser flow unconditionally and stores the new token.
func Authorize(ctx context.Context, credentialsFile, tokenFile string) error {
	oauthConfig, err := loadOAuthConfig(credentialsFile)
	if err != nil {
		return err
	}
	tok, err := getTokenFromWeb(ctx, oauthConfig)
	if err != nil {
		return err
	}
	return saveToken(tokenFile, tok)
}

func loadOAuthConfig(credentialsFile string) (*oauth2.Config, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret file: %w", err)
	}
	oauthConfig, err := google.ConfigFromJSON(b, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	return oauthConfig, nil
}

func getOAuthClient(ctx context.Context, config *oauth2.Config, tokenFile string, log zerolog.Logger) (*http.Client, error) {
	tok, err := tokenFromFile(tokenFile)
	if err != nil {
		log.Info().Str("token_file", tokenFile).Msg("No cached token, starting authorization flow")
		tok, err = getTokenFromWeb(ctx, config)
		if err != nil {
			return nil, err
		}
		if err := saveToken(tokenFile, tok); err != nil {
			return nil, err
		}
	}
	return config.Client(ctx, tok), nil
}

func getTokenFromWeb(ctx context.Context, config *oauth2.Config) (*oauth2.Token, error) {
	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Printf("Go to the following link in your browser then type the "+
		"authorization code: \n%v\n", authURL)
	var authCode string
	if _, err := fmt.Scan(&authCode); err != nil {
		return nil, fmt.Errorf("unable to read authorization code: %w", err)
	}
	tok, err := config.Exchange(ctx, authCode)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve token from web: %w", err)
	}
	return tok, nil
}

func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

func saveToken(path string, token *oauth2.Token) error {
	fmt.Printf("Saving credential file to: %s\n", path)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("unable to save oauth token: %w", err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(token); err != nil {
		return fmt.Errorf("unable to encode oauth token: %w", err)
	}
	return nil
}

// ListUnread returns up to max messages carrying the UNREAD label, newest first.
func (c *Client) ListUnread(ctx context.Context, max int) ([]mailbox.MessageRef, error) {
	resp, err := c.srv.Users.Messages.List(c.user).
		LabelIds(unreadLabel).
		MaxResults(int64(max)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, wrap("list unread", err)
	}
	refs := make([]mailbox.MessageRef, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		refs = append(refs, mailbox.MessageRef{ID: m.Id})
	}
	c.log.Debug().Int("count", len(refs)).Msg("Listed unread messages")
	return refs, nil
}

// GetMetadata fetches the From and Subject headers and thread of message id.
func (c *Client) GetMetadata(ctx context.Context, id string) (mailbox.Metadata, error) {
	msg, err := c.srv.Users.Messages.Get(c.user, id).
		Format("metadata").
		MetadataHeaders(mailbox.HeaderFrom, mailbox.HeaderSubject).
		Context(ctx).
		Do()
	if err != nil {
		return mailbox.Metadata{}, wrap("get message "+id, err)
	}
	return metadataFromMessage(msg), nil
}

// CreateDraft stores d in the drafts of userID.
func (c *Client) CreateDraft(ctx context.Context, userID string, d mailbox.Draft) (mailbox.DraftResult, error) {
	draft := &gmail.Draft{
		Message: &gmail.Message{Raw: d.Raw, ThreadId: d.ThreadID},
	}
	created, err := c.srv.Users.Drafts.Create(userID, draft).Context(ctx).Do()
	if err != nil {
		return mailbox.DraftResult{}, wrap("create draft", err)
	}
	res := mailbox.DraftResult{ID: created.Id}
	if created.Message != nil {
		res.MessageID = created.Message.Id
		res.ThreadID = created.Message.ThreadId
	}
	return res, nil
}

func metadataFromMessage(msg *gmail.Message) mailbox.Metadata {
	md := mailbox.Metadata{
		ID:       msg.Id,
		Headers:  make(map[string]string),
		ThreadID: msg.ThreadId,
	}
	if msg.Payload == nil {
		return md
	}
	for _, header := range msg.Payload.Headers {
		md.Headers[header.Name] = header.Value
	}
	return md
}

func wrap(op string, err error) error {
	if code := StatusCode(err); code != 0 {
		err = fmt.Errorf("gmail API %d: %w", code, err)
	}
	return mailbox.WrapTransport(op, err)
}

// StatusCode returns the HTTP status of a Gmail API failure wrapped in err, or 0.
func StatusCode(err error) int {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}
