package scout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/blockedby/telescout/internal/config"
	"github.com/blockedby/telescout/internal/telegram"
)

// fakeClient implements Client in memory.
type fakeClient struct {
	sources    map[string]*telegram.Source
	resolveErr map[string]error
	history    map[int64][]telegram.Message
	sent       []string
	sendErrs   []error

	mu         sync.Mutex
	handler    func(ctx context.Context, msg telegram.Message)
	subscribed []int64
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		sources: map[string]*telegram.Source{
			"@technews": {ID: 42, AccessHash: 7, Identifier: "@technews", Title: "TechNews"},
		},
		resolveErr: map[string]error{},
		history:    map[int64][]telegram.Message{},
	}
}

func (f *fakeClient) ResolveSource(_ context.Context, identifier string) (*telegram.Source, error) {
	if err := f.resolveErr[identifier]; err != nil {
		return nil, err
	}
	src, ok := f.sources[identifier]
	if !ok {
		return nil, fmt.Errorf("channel not found: %s", identifier)
	}
	return src, nil
}

func (f *fakeClient) History(_ context.Context, src *telegram.Source, _ time.Time) ([]telegram.Message, error) {
	return f.history[src.ID], nil
}

func (f *fakeClient) Subscribe(sourceIDs []int64, handler func(ctx context.Context, msg telegram.Message)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = sourceIDs
	f.handler = handler
}

func (f *fakeClient) subscription() (func(ctx context.Context, msg telegram.Message), []int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handler, f.subscribed
}

func (f *fakeClient) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeClient) Send(_ context.Context, text string) error {
	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		if err != nil {
			return err
		}
	}
	f.sent = append(f.sent, text)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		ForwardToUserID:              1,
		Channels:                     []string{"@technews"},
		Keywords:                     []string{"deploy"},
		ForwardDelay:                 0,
		MaxMessagesPerHour:           60,
		MaxMessagesPerChannelPerHour: 20,
		MaxMessageLength:             4000,
	}
}

func newTestService(t *testing.T, cfg *config.Config, fc *fakeClient) *Service {
	t.Helper()
	svc, err := NewService(cfg, fc, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if err := svc.Resolve(context.Background()); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return svc
}

func liveMessage(id int, text string) telegram.Message {
	return telegram.Message{
		ID:       id,
		SourceID: 42,
		Text:     text,
		Date:     time.Date(2025, 8, 5, 12, 0, 0, 0, time.UTC),
	}
}

func TestService_ForwardsMatchingMessage(t *testing.T) {
	fc := newFakeClient()
	svc := newTestService(t, testConfig(), fc)

	if !svc.process(context.Background(), liveMessage(1000, "We deploy at noon."), false) {
		t.Fatal("matching message should be forwarded")
	}

	if len(fc.sent) != 1 {
		t.Fatalf("sent %d, want 1", len(fc.sent))
	}
	if !strings.Contains(fc.sent[0], "Keyword matched: 'deploy'") {
		t.Errorf("header missing match summary:\n%s", fc.sent[0])
	}
	if svc.Stats().Forwarded != 1 {
		t.Errorf("Forwarded = %d, want 1", svc.Stats().Forwarded)
	}
}

func TestService_NoMatchOnSubstring(t *testing.T) {
	cfg := testConfig()
	cfg.Keywords = []string{"bot"}
	fc := newFakeClient()
	svc := newTestService(t, cfg, fc)

	if svc.process(context.Background(), liveMessage(1, "robot"), false) {
		t.Error("substring must not match")
	}
	if len(fc.sent) != 0 {
		t.Errorf("sent %d, want 0", len(fc.sent))
	}
}

func TestService_IgnoresEmptyText(t *testing.T) {
	fc := newFakeClient()
	svc := newTestService(t, testConfig(), fc)

	if svc.process(context.Background(), liveMessage(1, ""), false) {
		t.Error("empty message must be rejected")
	}
}

func TestService_DedupOnReplay(t *testing.T) {
	fc := newFakeClient()
	svc := newTestService(t, testConfig(), fc)

	msg := liveMessage(1000, "deploy now")
	if !svc.process(context.Background(), msg, true) {
		t.Fatal("first delivery should forward")
	}
	if svc.process(context.Background(), msg, true) {
		t.Error("replayed message must be suppressed")
	}
	if len(fc.sent) != 1 {
		t.Errorf("sent %d, want exactly 1", len(fc.sent))
	}
}

func TestService_GlobalCap(t *testing.T) {
	cfg := testConfig()
	cfg.MaxMessagesPerHour = 3
	fc := newFakeClient()
	svc := newTestService(t, cfg, fc)

	forwarded := 0
	for i := 0; i < 4; i++ {
		if svc.process(context.Background(), liveMessage(i, "deploy"), false) {
			forwarded++
		}
	}

	if forwarded != 3 {
		t.Errorf("forwarded %d, want 3", forwarded)
	}
	if len(fc.sent) != 3 {
		t.Errorf("sent %d, want 3", len(fc.sent))
	}
}

func TestService_PerSourceSpacing(t *testing.T) {
	cfg := testConfig()
	cfg.ForwardDelay = 5
	fc := newFakeClient()
	svc := newTestService(t, cfg, fc)

	clock := newFakeClock()
	svc.now = clock.now
	svc.limiter.now = clock.now

	if !svc.process(context.Background(), liveMessage(1, "deploy"), false) {
		t.Fatal("first forward should pass")
	}

	clock.advance(time.Second)
	if svc.process(context.Background(), liveMessage(2, "deploy"), false) {
		t.Error("second forward 1s later must be dropped by spacing")
	}

	clock.advance(5 * time.Second)
	if !svc.process(context.Background(), liveMessage(3, "deploy"), false) {
		t.Error("forward after the spacing window should pass")
	}
}

func TestService_FloodWaitLeavesStateUntouched(t *testing.T) {
	fc := newFakeClient()
	fc.sendErrs = []error{errors.New("rpc error code 420: FLOOD_WAIT_1")}
	svc := newTestService(t, testConfig(), fc)

	msg := liveMessage(1000, "deploy")
	start := time.Now()
	if svc.process(context.Background(), msg, false) {
		t.Fatal("flood-waited message must not count as forwarded")
	}
	if elapsed := time.Since(start); elapsed < 900*time.Millisecond {
		t.Errorf("expected flood-wait sleep, took %v", elapsed)
	}

	key := ForwardKey{SourceID: msg.SourceID, MessageID: msg.ID}
	if svc.dedup.Seen(key) {
		t.Error("failed forward must not be remembered as a duplicate")
	}
	if svc.limiter.GlobalCount() != 0 {
		t.Error("failed forward must not count against the rate limit")
	}
	if _, ok := svc.lastForward[msg.SourceID]; ok {
		t.Error("failed forward must not update the spacing gate")
	}

	// the same message may be retried later
	if !svc.process(context.Background(), msg, false) {
		t.Error("message should forward once the flood wait passed")
	}
}

func TestService_TruncationEndToEnd(t *testing.T) {
	cfg := testConfig()
	cfg.MaxMessageLength = 400
	fc := newFakeClient()
	svc := newTestService(t, cfg, fc)

	body := "deploy " + strings.Repeat("x", 500)
	if !svc.process(context.Background(), liveMessage(1, body), false) {
		t.Fatal("long matching message should still forward")
	}

	got := fc.sent[0]
	if !strings.HasSuffix(got, "[Message truncated for security]") {
		t.Errorf("expected truncation notice:\n%s", got)
	}
	if len(got) > 400 {
		t.Errorf("sent %d bytes, want <= 400", len(got))
	}
}

func TestService_ResolveSkipsFailedSources(t *testing.T) {
	fc := newFakeClient()
	fc.sources["@down"] = nil
	fc.resolveErr["@down"] = errors.New("FLOOD_WAIT_0 username invalid")

	cfg := testConfig()
	cfg.Channels = []string{"@down", "@technews"}

	svc, err := NewService(cfg, fc, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if err := svc.Resolve(context.Background()); err != nil {
		t.Fatalf("Resolve should tolerate single failures: %v", err)
	}
	if got := svc.Stats().Sources; got != 1 {
		t.Errorf("Sources = %d, want 1", got)
	}
}

func TestService_ResolveFailsWhenAllSourcesFail(t *testing.T) {
	fc := newFakeClient()
	cfg := testConfig()
	cfg.Channels = []string{"@missing"}

	svc, err := NewService(cfg, fc, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if err := svc.Resolve(context.Background()); !errors.Is(err, ErrNoSources) {
		t.Errorf("Resolve = %v, want ErrNoSources", err)
	}
}

func TestService_HistoricalScan(t *testing.T) {
	cfg := testConfig()
	cfg.TimeWindowHours = 24
	fc := newFakeClient()

	now := time.Now().UTC()
	fc.history[42] = []telegram.Message{
		// oldest first, as the client contract promises; the first entry
		// is outside the window and must be ignored
		{ID: 1, SourceID: 42, Text: "deploy old", Date: now.Add(-30 * time.Hour)},
		{ID: 2, SourceID: 42, Text: "deploy first", Date: now.Add(-3 * time.Hour)},
		{ID: 3, SourceID: 42, Text: "no match here", Date: now.Add(-2 * time.Hour)},
		{ID: 4, SourceID: 42, Text: "deploy second", Date: now.Add(-1 * time.Hour)},
	}

	svc := newTestService(t, cfg, fc)
	if err := svc.ScanHistorical(context.Background()); err != nil {
		t.Fatalf("ScanHistorical: %v", err)
	}

	if len(fc.sent) != 2 {
		t.Fatalf("sent %d, want 2", len(fc.sent))
	}
	if !strings.Contains(fc.sent[0], "deploy first") || !strings.Contains(fc.sent[1], "deploy second") {
		t.Errorf("historical forwards out of order: %q then %q", fc.sent[0], fc.sent[1])
	}
	for i, sent := range fc.sent {
		if !strings.Contains(sent, "📚 Historical message") {
			t.Errorf("forward %d missing historical marker", i)
		}
	}
}

func TestService_HistoricalScanSkippedWithoutWindow(t *testing.T) {
	fc := newFakeClient()
	fc.history[42] = []telegram.Message{
		{ID: 1, SourceID: 42, Text: "deploy", Date: time.Now().UTC()},
	}

	svc := newTestService(t, testConfig(), fc)
	if err := svc.ScanHistorical(context.Background()); err != nil {
		t.Fatalf("ScanHistorical: %v", err)
	}
	if len(fc.sent) != 0 {
		t.Error("no window configured: nothing should be scanned")
	}
}

func TestService_MonitorSubscribesAndStops(t *testing.T) {
	fc := newFakeClient()
	svc := newTestService(t, testConfig(), fc)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Monitor(ctx) }()

	// wait for the subscription to be installed
	deadline := time.After(2 * time.Second)
	handler, subscribed := fc.subscription()
	for handler == nil {
		select {
		case <-deadline:
			t.Fatal("subscription was never installed")
		case <-time.After(10 * time.Millisecond):
			handler, subscribed = fc.subscription()
		}
	}

	if len(subscribed) != 1 || subscribed[0] != 42 {
		t.Errorf("subscribed to %v, want [42]", subscribed)
	}

	handler(ctx, liveMessage(1000, "deploy now"))

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Monitor returned %v on clean cancellation", err)
	}
	if len(fc.sent) != 1 {
		t.Errorf("sent %d, want 1", len(fc.sent))
	}
	if got := svc.Status(); got != StatusIdle {
		t.Errorf("Status after stop = %s, want %s", got, StatusIdle)
	}
}

func TestService_ForwardCallback(t *testing.T) {
	fc := newFakeClient()
	svc := newTestService(t, testConfig(), fc)

	calls := 0
	svc.SetOnForwarded(func() { calls++ })

	svc.process(context.Background(), liveMessage(1, "deploy"), false)
	svc.process(context.Background(), liveMessage(1, "deploy"), false) // duplicate
	svc.process(context.Background(), liveMessage(2, "nothing"), false)

	if calls != 1 {
		t.Errorf("callback fired %d times, want 1", calls)
	}
}

type capturePublisher struct {
	events []ForwardEvent
}

func (p *capturePublisher) PublishForward(_ context.Context, event ForwardEvent) error {
	p.events = append(p.events, event)
	return nil
}

func TestService_PublishesForwardEvents(t *testing.T) {
	fc := newFakeClient()
	pub := &capturePublisher{}
	svc, err := NewService(testConfig(), fc, pub)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if err := svc.Resolve(context.Background()); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	svc.process(context.Background(), liveMessage(1000, "deploy"), true)

	if len(pub.events) != 1 {
		t.Fatalf("published %d events, want 1", len(pub.events))
	}
	ev := pub.events[0]
	if ev.SourceID != 42 || ev.MessageID != 1000 || !ev.Historical {
		t.Errorf("unexpected event: %+v", ev)
	}
	if ev.SourceTitle != "TechNews" {
		t.Errorf("SourceTitle = %q, want TechNews", ev.SourceTitle)
	}
}
