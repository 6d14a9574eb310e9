package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/gidra39/tensorbot/bot"
	"github.com/gidra39/tensorbot/config"
	"github.com/gidra39/tensorbot/messaging"
	"github.com/gidra39/tensorbot/plot"
	"github.com/gidra39/tensorbot/session"
	"github.com/gidra39/tensorbot/slack"
	"github.com/gidra39/tensorbot/telegram"
	"github.com/gidra39/tensorbot/tensorboard"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	runName := flag.String("run", "", "TensorBoard run to preselect (skips the selection menu)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	configuration := config.LoadConfig(".env", "config.json", "config.yaml")
	log.Info().Str("url", configuration.TensorboardURL).Msg("using TensorBoard instance")

	defaultRun := configuration.DefaultRun
	if *runName != "" {
		defaultRun = *runName
	}
	if defaultRun != "" {
		log.Info().Str("run", defaultRun).Msg("run preselected, selection menu disabled")
	}

	board := tensorboard.NewClient(configuration.TensorboardURL, configuration.RequestTimeout())
	gateway := telegram.NewBot(configuration.TelegramBotToken)
	notifier := messaging.NewService(configuration.MessageChannels, gateway,
		slack.NewClient(configuration.SlackWebhookURL))
	sessions := session.NewManager(configuration.ReportInterval(), configuration.WatchMetricList())
	tensorbot := bot.New(board, gateway, plot.Renderer{}, notifier, sessions, defaultRun)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	updates := make(chan telegram.Update, 16)
	events := make(chan bot.Event, 16)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		defer close(updates)
		return gateway.Poll(ctx, updates)
	})
	group.Go(func() error {
		defer close(events)
		return forwardEvents(ctx, updates, events)
	})
	group.Go(func() error {
		return tensorbot.Run(ctx, events)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("tensorbot terminated")
	}
	log.Info().Msg("tensorbot stopped")
}

// forwardEvents translates updates into dispatcher events. The send
// honors ctx so a full buffer cannot outlive the dispatcher at shutdown.
func forwardEvents(ctx context.Context, updates <-chan telegram.Update, events chan<- bot.Event) error {
	for update := range updates {
		event, ok := eventFromUpdate(update)
		if !ok {
			continue
		}
		select {
		case events <- event:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// eventFromUpdate strips Telegram transport detail down to the event
// shape the dispatcher works with.
func eventFromUpdate(update telegram.Update) (bot.Event, bool) {
	if update.CallbackQuery != nil {
		event := bot.Event{
			Callback:     true,
			CallbackID:   update.CallbackQuery.ID,
			CallbackData: update.CallbackQuery.Data,
		}
		if update.CallbackQuery.Message != nil {
			event.ChatID = update.CallbackQuery.Message.Chat.ID
			event.MessageID = update.CallbackQuery.Message.MessageID
		}
		return event, event.ChatID != 0
	}
	if update.Message != nil && update.Message.Text != "" {
		return bot.Event{
			ChatID:    update.Message.Chat.ID,
			MessageID: update.Message.MessageID,
			Text:      update.Message.Text,
		}, true
	}
	return bot.Event{}, false
}
