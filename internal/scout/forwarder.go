package scout

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/blockedby/telescout/internal/logger"
	"github.com/blockedby/telescout/internal/telegram"
)

const (
	truncationNotice = "\n\n[Message truncated for security]"
	hiddenNotice     = "[Message too long, content hidden for security]"

	// room reserved beyond the header when truncating a long body
	truncationReserve = 100
)

// Sender delivers composed text to the destination entity.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// Forwarder composes and sends match notifications. It honors flood-wait
// backoff by sleeping out the requested duration, but never retries; a
// flood-waited message is reported as a failed forward.
type Forwarder struct {
	sender    Sender
	maxLength int
	log       *logger.Logger
}

// NewForwarder creates a forwarder that truncates bodies to maxLength.
func NewForwarder(sender Sender, maxLength int) *Forwarder {
	return &Forwarder{
		sender:    sender,
		maxLength: maxLength,
		log:       logger.Get(),
	}
}

// Forward sends msg to the destination with a contextual header.
// A nil return means the message was delivered.
func (f *Forwarder) Forward(ctx context.Context, msg telegram.Message, sourceTitle, summary string, historical bool) error {
	text := f.compose(msg, sourceTitle, summary, historical)

	if err := f.sender.Send(ctx, text); err != nil {
		if wait := telegram.FloodWaitSeconds(err); wait > 0 {
			f.log.Warn().Int("wait_seconds", wait).Msg("flood wait from telegram, backing off")
			if sleepErr := sleepCtx(ctx, time.Duration(wait)*time.Second); sleepErr != nil {
				return sleepErr
			}
			return err
		}
		f.log.Error().Err(err).Str("channel", sourceTitle).Msg("failed to forward message")
		return err
	}

	f.log.Info().Str("channel", sourceTitle).Str("match", summary).Msg("forwarded message")
	return nil
}

// compose builds the outbound text: header, separator, then the (possibly
// truncated) body.
func (f *Forwarder) compose(msg telegram.Message, sourceTitle, summary string, historical bool) string {
	var b strings.Builder
	b.WriteString("🎯 Match\n")
	b.WriteString("📺 Channel: " + sourceTitle + "\n")
	b.WriteString("⏰ Time: " + FormatTime(msg.Date) + "\n")
	b.WriteString("🔍 " + summary + "\n")
	if historical {
		b.WriteString("📚 Historical message\n")
	}
	b.WriteString(strings.Repeat("=", 50) + "\n\n")
	header := b.String()

	body := msg.Text
	if len(body) > f.maxLength {
		room := f.maxLength - len(header) - truncationReserve
		if room > 0 {
			// back off to a rune boundary so the cut never splits a character
			for room > 0 && !utf8.RuneStart(body[room]) {
				room--
			}
			f.log.Warn().Int("length", len(msg.Text)).Int("max", f.maxLength).Msg("message too long, truncating")
			body = body[:room] + truncationNotice
		} else {
			f.log.Warn().Int("length", len(msg.Text)).Int("max", f.maxLength).Msg("message too long, hiding content")
			body = hiddenNotice
		}
	}

	return header + body
}

// sleepCtx sleeps for d or until ctx is canceled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
