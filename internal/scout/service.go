// Package scout implements the match-and-forward pipeline: keyword
// matching, duplicate suppression, rate limiting and the historical /
// live scan orchestration.
package scout

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blockedby/telescout/internal/config"
	"github.com/blockedby/telescout/internal/logger"
	"github.com/blockedby/telescout/internal/matcher"
	"github.com/blockedby/telescout/internal/metrics"
	"github.com/blockedby/telescout/internal/telegram"
)

// ErrNoSources is returned when none of the configured sources resolve.
var ErrNoSources = errors.New("no valid channels found to monitor")

// Status represents the orchestrator state.
type Status string

// Status constants define the orchestrator lifecycle.
const (
	StatusIdle       Status = "IDLE"
	StatusStarting   Status = "STARTING"
	StatusResolving  Status = "RESOLVING"
	StatusHistorical Status = "HISTORICAL"
	StatusLive       Status = "LIVE"
	StatusStopping   Status = "STOPPING"
)

// Client defines the platform operations used by the orchestrator.
type Client interface {
	Sender
	ResolveSource(ctx context.Context, identifier string) (*telegram.Source, error)
	History(ctx context.Context, src *telegram.Source, since time.Time) ([]telegram.Message, error)
	Subscribe(sourceIDs []int64, handler func(ctx context.Context, msg telegram.Message))
	Run(ctx context.Context) error
}

// EventPublisher publishes forward events for external consumers.
type EventPublisher interface {
	PublishForward(ctx context.Context, event ForwardEvent) error
}

// ForwardEvent describes one successful forward.
type ForwardEvent struct {
	SourceID    int64     `json:"source_id"`
	SourceTitle string    `json:"source_title"`
	MessageID   int       `json:"message_id"`
	Matched     string    `json:"matched"`
	Historical  bool      `json:"historical"`
	ForwardedAt time.Time `json:"forwarded_at"`
}

// Stats is a point-in-time pipeline snapshot for the admin UI.
type Stats struct {
	Status    Status     `json:"status"`
	Forwarded int64      `json:"messages_forwarded"`
	Sources   int        `json:"sources_monitored"`
	Keywords  int        `json:"keywords"`
	Rate      RateStatus `json:"rate"`
}

// Service orchestrates source resolution, the historical backfill and live
// tailing. The pipeline runs on a single goroutine; the mutex exists only so
// the admin UI can take consistent snapshots.
type Service struct {
	cfg       *config.Config
	client    Client
	matcher   *matcher.Matcher
	forwarder *Forwarder
	publisher EventPublisher
	log       *logger.Logger

	mu          sync.Mutex
	status      Status
	limiter     *HourlyLimiter
	dedup       *DedupSet
	lastForward map[int64]time.Time
	sources     []*telegram.Source
	titles      map[int64]string

	forwarded atomic.Int64

	// onForwarded notifies the UI of a new forward. It must be fast and
	// must not call back into the pipeline.
	onForwarded func()

	now func() time.Time
}

// NewService wires the pipeline components from config.
// publisher may be nil to disable event publishing.
func NewService(cfg *config.Config, client Client, publisher EventPublisher) (*Service, error) {
	m, err := matcher.New(cfg.Keywords)
	if err != nil {
		return nil, err
	}

	return &Service{
		cfg:         cfg,
		client:      client,
		matcher:     m,
		forwarder:   NewForwarder(client, cfg.MaxMessageLength),
		publisher:   publisher,
		log:         logger.Get(),
		status:      StatusIdle,
		limiter:     NewHourlyLimiter(cfg.MaxMessagesPerHour, cfg.MaxMessagesPerChannelPerHour),
		dedup:       NewDedupSet(DefaultDedupCapacity),
		lastForward: make(map[int64]time.Time),
		titles:      make(map[int64]string),
		now:         time.Now,
	}, nil
}

// SetOnForwarded registers the UI notification callback.
func (s *Service) SetOnForwarded(fn func()) {
	s.onForwarded = fn
}

// Status returns the current orchestrator state.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Stats returns a snapshot for the admin UI.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Status:    s.status,
		Forwarded: s.forwarded.Load(),
		Sources:   len(s.sources),
		Keywords:  len(s.matcher.Keywords()),
		Rate:      s.limiter.Status(),
	}
}

func (s *Service) setStatus(st Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

// Resolve looks up every configured source. Individual failures are logged
// and skipped; an empty result is fatal.
func (s *Service) Resolve(ctx context.Context) error {
	s.setStatus(StatusResolving)

	var resolved []*telegram.Source
	for _, identifier := range s.cfg.Channels {
		src, err := s.client.ResolveSource(ctx, identifier)
		if err != nil {
			s.log.Error().Err(err).Str("channel", identifier).Msg("could not resolve channel, skipping")
			continue
		}
		resolved = append(resolved, src)
		s.log.Info().Str("channel", src.Title).Str("identifier", identifier).Msg("monitoring channel")
	}

	if len(resolved) == 0 {
		s.setStatus(StatusIdle)
		return ErrNoSources
	}

	s.mu.Lock()
	s.sources = resolved
	for _, src := range resolved {
		s.titles[src.ID] = src.Title
	}
	s.mu.Unlock()
	return nil
}

// ScanHistorical runs the bounded backfill over the configured window.
// Sources are processed strictly sequentially in configured order; within a
// source, messages arrive oldest to newest. A no-op when no window is set.
func (s *Service) ScanHistorical(ctx context.Context) error {
	if s.cfg.TimeWindowHours == 0 {
		s.log.Info().Msg("no time window specified, skipping historical scan")
		return nil
	}

	s.setStatus(StatusHistorical)
	start := s.now()
	defer metrics.ObserveScanDuration(start)

	cutoff := start.UTC().Add(-time.Duration(s.cfg.TimeWindowHours) * time.Hour)
	s.log.Info().
		Int("window_hours", s.cfg.TimeWindowHours).
		Str("cutoff", FormatTime(cutoff)).
		Msg("scanning historical messages")

	totalProcessed := 0
	totalMatched := 0

	for _, src := range s.sources {
		processed := 0
		matched := 0

		messages, err := s.client.History(ctx, src, cutoff)
		if err != nil {
			s.log.Error().Err(err).Str("channel", src.Title).Msg("error scanning historical messages")
			continue
		}

		for _, msg := range messages {
			select {
			case <-ctx.Done():
				s.log.Info().Msg("historical scan cancelled")
				return ctx.Err()
			default:
			}

			if msg.Date.Before(cutoff) {
				continue
			}
			processed++

			if s.process(ctx, msg, true) {
				matched++
				if err := sleepCtx(ctx, time.Duration(s.cfg.ForwardDelay)*time.Second); err != nil {
					return err
				}
			}
		}

		s.log.Info().
			Str("channel", src.Title).
			Int("processed", processed).
			Int("matched", matched).
			Msg("channel scan complete")
		totalProcessed += processed
		totalMatched += matched
	}

	s.log.Info().
		Int("processed", totalProcessed).
		Int("matched", totalMatched).
		Str("took", FormatDuration(s.now().Sub(start))).
		Msg("historical scan complete")
	return nil
}

// Monitor installs the live subscription over the resolved sources and
// blocks until ctx is cancelled.
func (s *Service) Monitor(ctx context.Context) error {
	ids := make([]int64, len(s.sources))
	for i, src := range s.sources {
		ids[i] = src.ID
	}

	s.client.Subscribe(ids, func(ctx context.Context, msg telegram.Message) {
		s.process(ctx, msg, false)
	})

	s.setStatus(StatusLive)
	s.log.Info().Int("channels", len(ids)).Msg("real-time monitoring active")

	err := s.client.Run(ctx)

	s.setStatus(StatusStopping)
	defer s.setStatus(StatusIdle)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// process pushes one message through the gate chain and forwards it when
// every gate passes. Returns true only for a successful forward.
//
// Gate order is load-bearing: dedup runs before rate limiting, so a message
// dropped by the limiter is not remembered and may forward if it is seen
// again on a later scan.
func (s *Service) process(ctx context.Context, msg telegram.Message, historical bool) bool {
	if msg.Text == "" {
		return false
	}
	if !s.matcher.Matches(msg.Text) {
		return false
	}

	key := ForwardKey{SourceID: msg.SourceID, MessageID: msg.ID}

	s.mu.Lock()
	if s.dedup.Seen(key) {
		s.mu.Unlock()
		s.log.Debug().Int64("channel_id", msg.SourceID).Int("message_id", msg.ID).Msg("already forwarded, skipping duplicate")
		metrics.DropsTotal.WithLabelValues(metrics.DropDuplicate).Inc()
		return false
	}

	if !s.limiter.CanSend(msg.SourceID) {
		s.mu.Unlock()
		s.log.Warn().Int64("channel_id", msg.SourceID).Msg("rate limit exceeded, skipping message forward")
		metrics.DropsTotal.WithLabelValues(metrics.DropRateLimited).Inc()
		return false
	}

	now := s.now()
	if last, ok := s.lastForward[msg.SourceID]; ok {
		if gap := now.Sub(last); gap < time.Duration(s.cfg.ForwardDelay)*time.Second {
			s.mu.Unlock()
			s.log.Debug().Dur("since_last", gap).Msg("forward spacing not elapsed, skipping")
			metrics.DropsTotal.WithLabelValues(metrics.DropSpacing).Inc()
			return false
		}
	}
	title := s.titles[msg.SourceID]
	s.mu.Unlock()

	summary := s.matcher.Summary(msg.Text)

	// send happens outside the lock so UI snapshots stay responsive
	// during flood-wait sleeps
	if err := s.forwarder.Forward(ctx, msg, title, summary, historical); err != nil {
		metrics.DropsTotal.WithLabelValues(metrics.DropSendError).Inc()
		return false
	}

	s.mu.Lock()
	s.lastForward[msg.SourceID] = now
	s.dedup.Remember(key)
	s.limiter.Record(msg.SourceID)
	s.mu.Unlock()

	s.forwarded.Add(1)
	metrics.ForwardsTotal.Inc()

	if s.publisher != nil {
		event := ForwardEvent{
			SourceID:    msg.SourceID,
			SourceTitle: title,
			MessageID:   msg.ID,
			Matched:     summary,
			Historical:  historical,
			ForwardedAt: now,
		}
		if err := s.publisher.PublishForward(ctx, event); err != nil {
			s.log.Warn().Err(err).Msg("failed to publish forward event")
		}
	}

	if s.onForwarded != nil {
		s.onForwarded()
	}
	return true
}
