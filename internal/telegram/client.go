// Package telegram wraps the MTProto client behind the operations the
// pipeline needs: authentication, source resolution, history iteration,
// live subscription and outbound sends.
package telegram

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/blockedby/telescout/internal/config"
	"github.com/blockedby/telescout/internal/logger"
	"github.com/celestix/gotgproto"
	"github.com/celestix/gotgproto/dispatcher/handlers"
	"github.com/celestix/gotgproto/dispatcher/handlers/filters"
	"github.com/celestix/gotgproto/ext"
	"github.com/gotd/td/tg"
)

// historyBatchSize is the page size for MessagesGetHistory (api maximum).
const historyBatchSize = 100

// Client wraps a gotgproto client and provides the high-level telegram
// operations used by the scan orchestrator.
type Client struct {
	cfg     *config.Config
	proto   *gotgproto.Client
	limiter *apiLimiter
	dest    tg.InputPeerClass
	log     *logger.Logger
}

// NewClient creates an unconnected client. Call Start to authenticate.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		cfg:     cfg,
		limiter: newAPILimiter(),
		log:     logger.Get(),
	}
}

// Start authenticates the session and resolves the forward destination.
// First-run authentication prompts for the login code interactively.
func (c *Client) Start(ctx context.Context) error {
	proto, err := newProtoClient(c.cfg)
	if err != nil {
		return err
	}
	c.proto = proto

	me := proto.Self
	c.log.Info().Str("name", me.FirstName).Int64("id", me.ID).Msg("authenticated")

	if err := c.resolveDestination(ctx); err != nil {
		return fmt.Errorf("resolve destination: %w", err)
	}

	c.SecureSessionFiles()
	return nil
}

// Stop disconnects the client.
func (c *Client) Stop() {
	if c.proto != nil {
		c.proto.Stop()
	}
}

// api returns the raw tg.Client for direct API calls.
func (c *Client) api() *tg.Client {
	return c.proto.API()
}

// resolveDestination prepares the input peer messages are forwarded to.
// The operator's own id maps to Saved Messages; any other user must already
// be present in the session's peer cache.
func (c *Client) resolveDestination(_ context.Context) error {
	destID := c.cfg.ForwardToUserID

	if destID == c.proto.Self.ID {
		c.dest = &tg.InputPeerSelf{}
		c.log.Info().Msg("destination is yourself, messages will be sent to Saved Messages")
		return nil
	}

	peer := c.proto.PeerStorage.GetPeerById(destID)
	if peer == nil || peer.ID == 0 {
		return fmt.Errorf("destination %d not found in peer cache: exchange a message with it once, or forward to your own id", destID)
	}

	c.dest = &tg.InputPeerUser{
		UserID:     peer.ID,
		AccessHash: peer.AccessHash,
	}
	c.log.Info().Int64("id", destID).Msg("destination user found")
	return nil
}

// ResolveSource resolves a configured channel identifier, either a username
// (with or without @) or a numeric channel id.
func (c *Client) ResolveSource(ctx context.Context, identifier string) (*Source, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	if id, err := strconv.ParseInt(identifier, 10, 64); err == nil {
		return c.resolveByID(ctx, identifier, id)
	}
	return c.resolveByUsername(ctx, identifier)
}

func (c *Client) resolveByUsername(ctx context.Context, identifier string) (*Source, error) {
	username := strings.TrimPrefix(identifier, "@")

	resolved, err := c.api().ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{
		Username: username,
	})
	if err != nil {
		c.noteFloodWait(err)
		return nil, fmt.Errorf("resolve username %s: %w", username, err)
	}

	if len(resolved.Chats) == 0 {
		return nil, fmt.Errorf("channel not found: %s", username)
	}

	ch, ok := resolved.Chats[0].(*tg.Channel)
	if !ok {
		return nil, fmt.Errorf("not a channel: %s", username)
	}

	return &Source{
		ID:         ch.ID,
		AccessHash: ch.AccessHash,
		Identifier: identifier,
		Title:      ch.Title,
	}, nil
}

func (c *Client) resolveByID(ctx context.Context, identifier string, id int64) (*Source, error) {
	chats, err := c.api().ChannelsGetChannels(ctx, []tg.InputChannelClass{
		&tg.InputChannel{ChannelID: id},
	})
	if err != nil {
		c.noteFloodWait(err)
		return nil, fmt.Errorf("resolve channel id %d: %w", id, err)
	}

	for _, chat := range chats.GetChats() {
		if ch, ok := chat.(*tg.Channel); ok && ch.ID == id {
			return &Source{
				ID:         ch.ID,
				AccessHash: ch.AccessHash,
				Identifier: identifier,
				Title:      ch.Title,
			}, nil
		}
	}
	return nil, fmt.Errorf("channel not found: %d", id)
}

// History returns the source's messages with timestamps at or after since,
// ordered oldest to newest. The API only pages newest-first, so pages are
// buffered until the cutoff is crossed and then reversed.
func (c *Client) History(ctx context.Context, src *Source, since time.Time) ([]Message, error) {
	var collected []Message
	offsetID := 0

	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		history, err := c.api().MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
			Peer: &tg.InputPeerChannel{
				ChannelID:  src.ID,
				AccessHash: src.AccessHash,
			},
			OffsetID: offsetID,
			Limit:    historyBatchSize,
		})
		if err != nil {
			c.noteFloodWait(err)
			return nil, fmt.Errorf("get history: %w", err)
		}

		batch := extractMessages(history, src)
		if len(batch) == 0 {
			break
		}

		reachedCutoff := false
		for _, msg := range batch {
			if msg.Date.Before(since) {
				reachedCutoff = true
				break
			}
			collected = append(collected, msg)
		}
		if reachedCutoff {
			break
		}

		offsetID = batch[len(batch)-1].ID
	}

	// newest-first to oldest-first
	for i, j := 0, len(collected)-1; i < j; i, j = i+1, j-1 {
		collected[i], collected[j] = collected[j], collected[i]
	}
	return collected, nil
}

// Subscribe installs a dispatcher handler delivering new text messages from
// the given sources. Must be called before Run.
func (c *Client) Subscribe(sourceIDs []int64, handler func(ctx context.Context, msg Message)) {
	allowed := make(map[int64]bool, len(sourceIDs))
	for _, id := range sourceIDs {
		allowed[id] = true
	}

	c.proto.Dispatcher.AddHandler(handlers.NewMessage(filters.Message.Text, func(ctx *ext.Context, update *ext.Update) error {
		m := update.EffectiveMessage
		if m == nil {
			return nil
		}
		chat := update.EffectiveChat()
		if chat == nil || !allowed[chat.GetID()] {
			return nil
		}

		handler(ctx, Message{
			ID:       m.ID,
			SourceID: chat.GetID(),
			Text:     m.Text,
			Date:     time.Unix(int64(m.Date), 0).UTC(),
		})
		return nil
	}))
}

// Run blocks processing updates until ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		c.proto.Stop()
	}()
	return c.proto.Idle()
}

// Send delivers text to the resolved destination as a single message.
func (c *Client) Send(ctx context.Context, text string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	_, err := c.api().MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
		Peer:     c.dest,
		Message:  text,
		RandomID: rand.Int63(),
	})
	if err != nil {
		c.noteFloodWait(err)
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// SecureSessionFiles restricts session files to owner read/write.
// Best effort; failures are logged and ignored.
func (c *Client) SecureSessionFiles() {
	pattern := c.cfg.Telegram.SessionName + ".session*"
	files, err := filepath.Glob(pattern)
	if err != nil || len(files) == 0 {
		return
	}

	for _, f := range files {
		if err := os.Chmod(f, 0600); err != nil {
			c.log.Warn().Err(err).Str("file", f).Msg("could not secure session file permissions")
		} else {
			c.log.Debug().Str("file", f).Msg("set secure permissions on session file")
		}
	}
}

// noteFloodWait feeds FLOOD_WAIT penalties back into the request pacer.
func (c *Client) noteFloodWait(err error) {
	if wait := FloodWaitSeconds(err); wait > 0 {
		c.log.Warn().Int("wait_seconds", wait).Msg("FLOOD_WAIT from telegram api, deferring requests")
		c.limiter.SetFloodWait(wait)
	}
}

// extractMessages converts a history response into our Message type,
// preserving the api's newest-first order.
func extractMessages(messagesClass tg.MessagesMessagesClass, src *Source) []Message {
	var out []Message

	var raw []tg.MessageClass
	switch h := messagesClass.(type) {
	case *tg.MessagesChannelMessages:
		raw = h.Messages
	case *tg.MessagesMessages:
		raw = h.Messages
	}

	for _, msg := range raw {
		m, ok := msg.(*tg.Message)
		if !ok {
			continue
		}
		out = append(out, Message{
			ID:       m.ID,
			SourceID: src.ID,
			Text:     m.Message,
			Date:     time.Unix(int64(m.Date), 0).UTC(),
		})
	}
	return out
}
