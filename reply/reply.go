// Package reply derives the body text of an automated reply.
package reply

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// FallbackText is used whenever the generation backend cannot produce a reply.
const FallbackText = "Thank you for your email."

const defaultMaxTokens = 150

// ErrNoBackend is reported when no generation backend could be initialized.
var ErrNoBackend = errors.New("no generation backend configured")

// ErrEmptyReply is reported when the backend answers with blank text.
var ErrEmptyReply = errors.New("generation backend returned an empty reply")

// Source tells where a reply's text came from.
type Source int

const (
	SourceGenerated Source = iota
	SourceFallback
)

func (s Source) String() string {
	switch s {
	case SourceGenerated:
		return "generated"
	case SourceFallback:
		return "fallback"
	default:
		return fmt.Sprintf("Source(%d)", int(s))
	}
}

// Result is the outcome of one Generate call. Text is never empty.
type Result struct {
	Text   string
	Source Source
	Err    error // why the fallback was used; nil for generated replies
}

// Backend is a language-generation service.
type Backend interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Generator turns a sender and subject into reply text.
type Generator struct {
	backend   Backend
	maxTokens int
	breaker   *gobreaker.CircuitBreaker
	log       zerolog.Logger

	breakerEnabled bool
}

// Option configures a Generator.
type Option func(*Generator)

// WithMaxTokens bounds the length of generated replies.
func WithMaxTokens(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxTokens = n
		}
	}
}

// WithLogger sets the logger used to report fallbacks.
func WithLogger(log zerolog.Logger) Option {
	return func(g *Generator) { g.log = log }
}

// WithCircuitBreaker guards the backend with a breaker that stops calling it
// after 5 consecutive failures. Without it every Generate call reaches the
// backend exactly once.
func WithCircuitBreaker() Option {
	return func(g *Generator) { g.breakerEnabled = true }
}

// WithBreakerSettings guards the backend with a breaker built from st.
func WithBreakerSettings(st gobreaker.Settings) Option {
	return func(g *Generator) { g.breaker = gobreaker.NewCircuitBreaker(st) }
}

// NewGenerator returns a Generator calling backend. A nil backend is allowed:
// every reply then uses FallbackText.
func NewGenerator(backend Backend, opts ...Option) *Generator {
	g := &Generator{
		backend:   backend,
		maxTokens: defaultMaxTokens,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.breaker == nil && g.breakerEnabled {
		g.breaker = gobreaker.NewCircuitBreaker(defaultBreakerSettings(g.log))
	}
	return g
}

func defaultBreakerSettings(log zerolog.Logger) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        "reply-backend",
		MaxRequests: 1,
		Interval:    10 * time.Minute,
		Timeout:     5 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
		},
	}
}

// Generate returns reply text for a message from sender with the given subject.
// Backend failures never escape: they are logged and FallbackText is used.
func (g *Generator) Generate(ctx context.Context, sender, subject string) Result {
	if g.backend == nil {
		return g.fallback(sender, ErrNoBackend)
	}

	call := func() (interface{}, error) {
		text, err := g.backend.Complete(ctx, Prompt(sender, subject), g.maxTokens)
		if err != nil {
			return nil, err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return nil, ErrEmptyReply
		}
		return text, nil
	}

	var out interface{}
	var err error
	if g.breaker != nil {
		out, err = g.breaker.Execute(call)
	} else {
		out, err = call()
	}
	if err != nil {
		return g.fallback(sender, err)
	}
	return Result{Text: out.(string), Source: SourceGenerated}
}

func (g *Generator) fallback(sender string, err error) Result {
	g.log.Warn().Err(err).Str("sender", sender).Msg("Reply generation failed, using fallback text")
	return Result{Text: FallbackText, Source: SourceFallback, Err: err}
}

// Prompt builds the instruction sent to the generation backend.
func Prompt(sender, subject string) string {
	var sb strings.Builder
	sb.WriteString("You are drafting a short, polite email reply on behalf of the mailbox owner.\n")
	sb.WriteString(fmt.Sprintf("The original email is from %s", sender))
	if subject != "" {
		sb.WriteString(fmt.Sprintf(" with the subject %q", subject))
	}
	sb.WriteString(".\n")
	sb.WriteString("Acknowledge the message and say a full response will follow. ")
	sb.WriteString("Reply with the email body only, without a subject line or signature.")
	return sb.String()
}
