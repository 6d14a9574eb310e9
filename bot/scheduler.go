package bot

import (
	"context"

	"github.com/gidra39/tensorbot/session"

	"github.com/rs/zerolog/log"
)

// Tick runs one auto-report pass over every session whose report is due.
// Failures are isolated per session and per metric; a dead fetch for one
// chat never skips the remaining chats.
func (b *Bot) Tick(ctx context.Context) {
	now := b.now()
	for _, st := range b.sessions.Due(now) {
		b.reportSession(ctx, st)
		b.sessions.MarkTicked(st.ChatID, now)
	}
}

func (b *Bot) reportSession(ctx context.Context, st *session.State) {
	if st.CurrentRun == "" {
		log.Debug().Int64("chat_id", st.ChatID).Msg("skipping auto-report, no run selected")
		return
	}

	b.sessions.SetKnownMetrics(st.ChatID, b.source.Scalars(ctx, st.CurrentRun))

	for _, metric := range st.Watchlist {
		series := b.source.Series(ctx, st.CurrentRun, metric)
		latest, ok := series.Latest()
		if !ok {
			log.Debug().Str("run", st.CurrentRun).Str("metric", metric).
				Msg("skipping auto-report, no data yet")
			continue
		}

		// Push suppression: an unchanged iteration means nothing new to say.
		if lastSeen, reported := st.LastSeenStep[metric]; reported && lastSeen == latest.Iteration {
			continue
		}

		image, err := b.renderer.Render(metric, series)
		if err != nil {
			log.Error().Err(err).Str("metric", metric).Msg("auto-report render failed")
			continue
		}
		if err := b.gateway.SendPhoto(ctx, st.ChatID, image); err != nil {
			log.Error().Err(err).Int64("chat_id", st.ChatID).Str("metric", metric).
				Msg("auto-report photo send failed")
			continue
		}
		if err := b.notifier.Notify(ctx, st.ChatID, formatLatest(metric, latest)); err != nil {
			log.Error().Err(err).Int64("chat_id", st.ChatID).Str("metric", metric).
				Msg("auto-report notification failed")
		}
		b.sessions.MarkReported(st.ChatID, metric, latest.Iteration)
	}
}
