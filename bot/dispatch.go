package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/gidra39/tensorbot/fuzzymatch"
	"github.com/gidra39/tensorbot/session"

	"github.com/rs/zerolog/log"
)

const (
	msgGreeting      = "Hey, I am now your tensorbot"
	msgNoRunYet      = "It seems like you have not selected a run, please do that now. You can later switch the run with /run"
	msgSelectedRun   = "Selected run: %s. You can now query scalars"
	msgUnknownRun    = "%s is not in the list of available runs"
	msgNoRuns        = "No runs found on the dashboard yet, try again later"
	msgSelectFirst   = "Please select a run first with /run"
	msgNotAvailable  = "%s is not in the list of available scalars"
	msgNoData        = "%s has no recorded data yet"
	msgRenderFailed  = "Could not render a plot for %s"
	msgNoScalars     = "I do not know any scalars for this run yet, try /run to pick a run with data"
	msgBadInterval   = "The interval must be a positive number of seconds"
	msgIntervalSet   = "Report interval set to %d seconds"
	msgUsageValue    = "Usage: /value <scalar name>"
	msgUsagePlot     = "Usage: /plot <scalar name>"
	msgUsageInterval = "Usage: /interval <seconds>"
	msgFarewell      = "Goodbye! I will stop reporting to this chat"
	msgInactive      = "This session is inactive"
)

// Handle processes one inbound chat event through the state machine.
// Nothing it does may panic or return an error upward; every failure
// ends in a log line or a chat message.
func (b *Bot) Handle(ctx context.Context, event Event) {
	if event.Callback {
		b.handleRunChosen(ctx, event)
		return
	}

	text := strings.TrimSpace(event.Text)
	command, argText, _ := strings.Cut(text, " ")
	args := strings.TrimSpace(argText)

	if command == "/start" {
		b.handleStart(ctx, event.ChatID)
		return
	}

	st := b.sessions.Lookup(event.ChatID)
	if st == nil {
		log.Info().Int64("chat_id", event.ChatID).Str("text", text).
			Msg("ignoring event for chat without a session, /start required")
		return
	}
	if !st.Active {
		b.send(ctx, st.ChatID, msgInactive)
		return
	}

	switch command {
	case "/run":
		b.presentRunMenu(ctx, st.ChatID)
	case "/stop":
		b.handleStop(ctx, st)
	case "/interval":
		b.handleInterval(ctx, st, args)
	case "/value":
		b.handleValue(ctx, st, args)
	case "/plot":
		b.handlePlot(ctx, st, args)
	default:
		b.handleFreeText(ctx, st, text)
	}
}

func (b *Bot) handleStart(ctx context.Context, chatID int64) {
	st := b.sessions.GetOrCreate(chatID)
	if !st.Active {
		b.send(ctx, chatID, msgInactive)
		return
	}

	b.send(ctx, chatID, msgGreeting)

	// A repeat /start keeps the selected run; the greeting is enough.
	if st.CurrentRun != "" {
		return
	}

	if b.defaultRun != "" {
		b.sessions.SetLastRuns(chatID, []string{b.defaultRun})
		if err := b.sessions.SelectRun(chatID, b.defaultRun, b.metricLister(ctx)); err != nil {
			log.Error().Err(err).Str("run", b.defaultRun).Msg("failed to select preconfigured run")
			return
		}
		b.send(ctx, chatID, fmt.Sprintf(msgSelectedRun, b.defaultRun))
		return
	}

	b.send(ctx, chatID, msgNoRunYet)
	b.presentRunMenu(ctx, chatID)
}

// presentRunMenu re-enumerates runs and either auto-selects the only
// run or presents the selection keyboard. Known metrics stay untouched
// until a new run is confirmed.
func (b *Bot) presentRunMenu(ctx context.Context, chatID int64) {
	runs := b.source.Runs(ctx)
	if len(runs) == 0 {
		b.send(ctx, chatID, msgNoRuns)
		return
	}

	b.sessions.SetLastRuns(chatID, runs)

	if len(runs) == 1 {
		if err := b.sessions.SelectRun(chatID, runs[0], b.metricLister(ctx)); err != nil {
			log.Error().Err(err).Str("run", runs[0]).Msg("failed to select sole run")
			return
		}
		b.send(ctx, chatID, fmt.Sprintf(msgSelectedRun, runs[0]))
		return
	}

	if err := b.gateway.SendRunMenu(ctx, chatID, runs); err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("failed to send run menu")
		return
	}
	b.sessions.SetPhase(chatID, session.AwaitingRun)
}

func (b *Bot) handleRunChosen(ctx context.Context, event Event) {
	if err := b.gateway.AnswerCallbackQuery(ctx, event.CallbackID); err != nil {
		log.Warn().Err(err).Msg("failed to answer callback query")
	}

	st := b.sessions.Lookup(event.ChatID)
	if st == nil {
		log.Info().Int64("chat_id", event.ChatID).Msg("ignoring run selection for chat without a session")
		return
	}
	if !st.Active {
		b.send(ctx, st.ChatID, msgInactive)
		return
	}

	run := event.CallbackData
	if err := b.sessions.SelectRun(st.ChatID, run, b.metricLister(ctx)); err != nil {
		log.Warn().Err(err).Str("run", run).Msg("rejected run selection")
		b.send(ctx, st.ChatID, fmt.Sprintf(msgUnknownRun, run))
		return
	}

	confirmation := fmt.Sprintf(msgSelectedRun, run)
	if event.MessageID != 0 {
		if err := b.gateway.EditMessageText(ctx, st.ChatID, event.MessageID, confirmation); err != nil {
			log.Warn().Err(err).Msg("failed to edit run menu message")
			b.send(ctx, st.ChatID, confirmation)
		}
		return
	}
	b.send(ctx, st.ChatID, confirmation)
}

func (b *Bot) handleValue(ctx context.Context, st *session.State, metric string) {
	if metric == "" {
		b.send(ctx, st.ChatID, msgUsageValue)
		return
	}
	if st.Phase != session.Ready {
		b.send(ctx, st.ChatID, msgSelectFirst)
		return
	}
	if !st.Knows(metric) {
		b.send(ctx, st.ChatID, fmt.Sprintf(msgNotAvailable, metric))
		return
	}

	series := b.source.Series(ctx, st.CurrentRun, metric)
	latest, ok := series.Latest()
	if !ok {
		b.send(ctx, st.ChatID, fmt.Sprintf(msgNoData, metric))
		return
	}
	b.send(ctx, st.ChatID, formatLatest(metric, latest))
}

func (b *Bot) handlePlot(ctx context.Context, st *session.State, metric string) {
	if metric == "" {
		b.send(ctx, st.ChatID, msgUsagePlot)
		return
	}
	if st.Phase != session.Ready {
		b.send(ctx, st.ChatID, msgSelectFirst)
		return
	}
	if !st.Knows(metric) {
		b.send(ctx, st.ChatID, fmt.Sprintf(msgNotAvailable, metric))
		return
	}
	b.sendPlot(ctx, st, metric)
}

// sendPlot fetches, renders and delivers the plot plus the latest value
// text. The pair goes out together or not at all.
func (b *Bot) sendPlot(ctx context.Context, st *session.State, metric string) {
	series := b.source.Series(ctx, st.CurrentRun, metric)
	latest, ok := series.Latest()
	if !ok {
		b.send(ctx, st.ChatID, fmt.Sprintf(msgNoData, metric))
		return
	}

	image, err := b.renderer.Render(metric, series)
	if err != nil {
		log.Error().Err(err).Str("metric", metric).Msg("failed to render plot")
		b.send(ctx, st.ChatID, fmt.Sprintf(msgRenderFailed, metric))
		return
	}
	if err := b.gateway.SendPhoto(ctx, st.ChatID, image); err != nil {
		log.Error().Err(err).Int64("chat_id", st.ChatID).Msg("failed to send plot")
		return
	}
	b.send(ctx, st.ChatID, formatLatest(metric, latest))
}

func (b *Bot) handleFreeText(ctx context.Context, st *session.State, text string) {
	if st.Phase != session.Ready {
		b.send(ctx, st.ChatID, msgSelectFirst)
		return
	}

	metric, ok := fuzzymatch.Resolve(text, st.KnownMetrics)
	if !ok {
		b.send(ctx, st.ChatID, msgNoScalars)
		return
	}
	log.Info().Str("text", text).Str("metric", metric).Msg("matched free text to scalar")
	b.sendPlot(ctx, st, metric)
}

func (b *Bot) handleInterval(ctx context.Context, st *session.State, args string) {
	if args == "" {
		b.send(ctx, st.ChatID, msgUsageInterval)
		return
	}

	seconds, err := strconv.Atoi(args)
	if err != nil || seconds <= 0 {
		b.send(ctx, st.ChatID, msgBadInterval)
		return
	}
	if err := b.sessions.SetInterval(st.ChatID, seconds); err != nil {
		log.Error().Err(err).Int64("chat_id", st.ChatID).Msg("failed to update interval")
		b.send(ctx, st.ChatID, msgBadInterval)
		return
	}
	b.send(ctx, st.ChatID, fmt.Sprintf(msgIntervalSet, seconds))
}

func (b *Bot) handleStop(ctx context.Context, st *session.State) {
	b.send(ctx, st.ChatID, msgFarewell)
	b.sessions.Deactivate(st.ChatID)
}

func (b *Bot) metricLister(ctx context.Context) func(run string) []string {
	return func(run string) []string {
		return b.source.Scalars(ctx, run)
	}
}
