// Package poller runs the poll, generate and draft pipeline on a fixed interval.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bassamadnan/tdraft/draft"
	"github.com/bassamadnan/tdraft/mailbox"
	"github.com/bassamadnan/tdraft/reply"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	DefaultInterval = 600 * time.Second
	DefaultMaxBatch = 10
	DefaultUserID   = "me"
	replyPrefix     = "Re: "
)

// Config is fixed for the lifetime of a Loop.
type Config struct {
	Interval time.Duration
	MaxBatch int
	UserID   string
	// IsolateMessages keeps a transport failure on one message from
	// abandoning the rest of the batch.
	IsolateMessages bool
}

func (c Config) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", c.Interval)
	}
	if c.MaxBatch <= 0 {
		return fmt.Errorf("max batch must be positive, got %d", c.MaxBatch)
	}
	if c.UserID == "" {
		return errors.New("user id must not be empty")
	}
	return nil
}

// Replier produces reply text for a message.
type Replier interface {
	Generate(ctx context.Context, sender, subject string) reply.Result
}

// Filter reports whether a message should be left without a draft.
type Filter func(from, subject string) bool

type EventKind int

const (
	EventDrafted EventKind = iota
	EventSkipped
	EventFailed
	EventCycleDone
)

func (k EventKind) String() string {
	switch k {
	case EventDrafted:
		return "drafted"
	case EventSkipped:
		return "skipped"
	case EventFailed:
		return "failed"
	case EventCycleDone:
		return "cycle-done"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event reports progress to an optional observer such as the dashboard.
type Event struct {
	Kind    EventKind
	CycleID string
	Time    time.Time

	MessageID string
	ThreadID  string
	From      string
	Subject   string
	Reply     reply.Result
	Draft     mailbox.DraftResult

	Drafted int // EventCycleDone only
	Err     error
}

type Loop struct {
	client  mailbox.Client
	replier Replier
	cfg     Config
	clock   Clock
	filter  Filter
	events  chan<- Event
	log     zerolog.Logger
}

type Option func(*Loop)

func WithClock(c Clock) Option { return func(l *Loop) { l.clock = c } }

func WithLogger(log zerolog.Logger) Option { return func(l *Loop) { l.log = log } }

func WithFilter(f Filter) Option { return func(l *Loop) { l.filter = f } }

// WithEvents sends progress events on ch. Sends block until received or the
// loop's context is cancelled.
func WithEvents(ch chan<- Event) Option { return func(l *Loop) { l.events = ch } }

func New(client mailbox.Client, replier Replier, cfg Config, opts ...Option) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l := &Loop{
		client:  client,
		replier: replier,
		cfg:     cfg,
		clock:   realClock{},
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Run repeats cycles until ctx is cancelled, waiting the configured interval
// after each one. Transport errors end only the current cycle; any other
// error is returned. On cancellation Run returns ctx.Err().
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info().Dur("interval", l.cfg.Interval).Int("max_batch", l.cfg.MaxBatch).Msg("Poll loop starting")
	for {
		if err := ctx.Err(); err != nil {
			l.log.Info().Msg("Poll loop stopping")
			return err
		}
		if err := l.RunCycle(ctx); err != nil {
			if !mailbox.IsTransportError(err) {
				return err
			}
			l.log.Error().Err(err).Msg("Cycle abandoned after transport error")
		}
		if err := ctx.Err(); err != nil {
			l.log.Info().Msg("Poll loop stopping")
			return err
		}
		select {
		case <-ctx.Done():
			l.log.Info().Msg("Poll loop stopping")
			return ctx.Err()
		case <-l.clock.After(l.cfg.Interval):
		}
	}
}

// RunCycle lists unread messages and drafts a reply for each, in list order.
func (l *Loop) RunCycle(ctx context.Context) error {
	cycleID := uuid.NewString()
	log := l.log.With().Str("cycle", cycleID).Logger()

	refs, err := l.client.ListUnread(ctx, l.cfg.MaxBatch)
	if err != nil {
		err = fmt.Errorf("listing unread messages: %w", err)
		l.emit(ctx, Event{Kind: EventCycleDone, CycleID: cycleID, Time: time.Now(), Err: err})
		return err
	}
	if len(refs) == 0 {
		log.Debug().Msg("No unread messages")
	} else {
		log.Info().Int("count", len(refs)).Msg("Processing unread messages")
	}

	drafted := 0
	seen := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		if _, dup := seen[ref.ID]; dup {
			log.Debug().Str("message", ref.ID).Msg("Duplicate message in batch, skipping")
			continue
		}
		seen[ref.ID] = struct{}{}

		ok, err := l.processMessage(ctx, log, cycleID, ref)
		if err != nil {
			if l.cfg.IsolateMessages && mailbox.IsTransportError(err) {
				log.Warn().Err(err).Str("message", ref.ID).Msg("Message failed, continuing batch")
				continue
			}
			l.emit(ctx, Event{Kind: EventCycleDone, CycleID: cycleID, Time: time.Now(), Drafted: drafted, Err: err})
			return err
		}
		if ok {
			drafted++
		}
	}

	log.Info().Int("drafted", drafted).Msg("Cycle complete")
	l.emit(ctx, Event{Kind: EventCycleDone, CycleID: cycleID, Time: time.Now(), Drafted: drafted})
	return nil
}

// processMessage reports whether a draft was created for ref.
func (l *Loop) processMessage(ctx context.Context, log zerolog.Logger, cycleID string, ref mailbox.MessageRef) (bool, error) {
	md, err := l.client.GetMetadata(ctx, ref.ID)
	if err != nil {
		l.emit(ctx, Event{Kind: EventFailed, CycleID: cycleID, Time: time.Now(), MessageID: ref.ID, Err: err})
		return false, fmt.Errorf("fetching message %s: %w", ref.ID, err)
	}

	ev := Event{
		CycleID:   cycleID,
		MessageID: ref.ID,
		ThreadID:  md.ThreadID,
		From:      md.Header(mailbox.HeaderFrom),
		Subject:   md.Header(mailbox.HeaderSubject),
	}

	if l.filter != nil && l.filter(ev.From, ev.Subject) {
		log.Info().Str("message", ref.ID).Str("from", ev.From).Msg("Message matches skip filter")
		ev.Kind = EventSkipped
		ev.Time = time.Now()
		l.emit(ctx, ev)
		return false, nil
	}

	ev.Reply = l.replier.Generate(ctx, ev.From, ev.Subject)

	res, err := draft.Create(ctx, l.client, l.cfg.UserID, ev.From, replyPrefix+ev.Subject, ev.Reply.Text, md.ThreadID)
	if err != nil {
		ev.Kind = EventFailed
		ev.Time = time.Now()
		ev.Err = err
		l.emit(ctx, ev)
		return false, fmt.Errorf("drafting reply to %s: %w", ref.ID, err)
	}

	log.Info().
		Str("message", ref.ID).
		Str("thread", md.ThreadID).
		Str("draft", res.ID).
		Stringer("reply", ev.Reply.Source).
		Msg("Draft created")
	ev.Kind = EventDrafted
	ev.Time = time.Now()
	ev.Draft = res
	l.emit(ctx, ev)
	return true, nil
}

func (l *Loop) emit(ctx context.Context, ev Event) {
	if l.events == nil {
		return
	}
	select {
	case l.events <- ev:
	case <-ctx.Done():
	}
}
