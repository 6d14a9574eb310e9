// Package bot ties chat events to dashboard queries. A single goroutine
// owns all session state: inbound chat events and the auto-report timer
// are multiplexed onto one loop, so per-chat handling never races with a
// scheduler tick.
package bot

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gidra39/tensorbot/session"
	"github.com/gidra39/tensorbot/types"

	"github.com/rs/zerolog/log"
)

// MetricsSource lists runs and scalars and fetches scalar histories.
// Implementations fail soft: errors show up as empty results.
type MetricsSource interface {
	Runs(ctx context.Context) []string
	Scalars(ctx context.Context, run string) []string
	Series(ctx context.Context, run, tag string) types.Series
}

// Gateway is the chat side: text, photos and the run selection menu.
type Gateway interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendPhoto(ctx context.Context, chatID int64, image []byte) error
	SendRunMenu(ctx context.Context, chatID int64, runs []string) error
	EditMessageText(ctx context.Context, chatID, messageID int64, text string) error
	AnswerCallbackQuery(ctx context.Context, callbackID string) error
}

// Renderer turns a scalar history into an image.
type Renderer interface {
	Render(metric string, series types.Series) ([]byte, error)
}

// Notifier fans auto-report text out to the configured channels.
type Notifier interface {
	Notify(ctx context.Context, chatID int64, text string) error
}

// Event is one inbound chat event, already stripped of transport detail.
type Event struct {
	ChatID       int64
	Text         string
	MessageID    int64
	Callback     bool
	CallbackID   string
	CallbackData string
}

type Bot struct {
	source     MetricsSource
	gateway    Gateway
	renderer   Renderer
	notifier   Notifier
	sessions   *session.Manager
	defaultRun string
	now        func() time.Time
}

func New(source MetricsSource, gateway Gateway, renderer Renderer, notifier Notifier,
	sessions *session.Manager, defaultRun string) *Bot {
	return &Bot{
		source:     source,
		gateway:    gateway,
		renderer:   renderer,
		notifier:   notifier,
		sessions:   sessions,
		defaultRun: defaultRun,
		now:        time.Now,
	}
}

// Run drives the dispatcher until ctx is cancelled or events closes.
// The timer tracks the earliest session due time. Inbound chat events
// may pull the deadline forward (an interval update can make a session
// due sooner) but never push it back, so steady chat traffic cannot
// starve the scheduler.
func (b *Bot) Run(ctx context.Context, events <-chan Event) error {
	deadline := b.nextTick()
	timer := time.NewTimer(deadline.Sub(b.now()))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				return nil
			}
			b.Handle(ctx, event)
			if next := b.nextTick(); next.Before(deadline) {
				deadline = next
				timer.Reset(deadline.Sub(b.now()))
			}
		case <-timer.C:
			b.Tick(ctx)
			deadline = b.nextTick()
			timer.Reset(deadline.Sub(b.now()))
		}
	}
}

func (b *Bot) nextTick() time.Time {
	return b.sessions.NextTick(b.now())
}

func formatLatest(metric string, sample types.Sample) string {
	return fmt.Sprintf("%s - Iteration: %d, Value: %s",
		metric, sample.Iteration, strconv.FormatFloat(sample.Value, 'g', -1, 64))
}

func (b *Bot) send(ctx context.Context, chatID int64, text string) {
	if err := b.gateway.SendMessage(ctx, chatID, text); err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("failed to send message")
	}
}
