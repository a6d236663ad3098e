// Package scheduler runs the relay's two polling loops: the heartbeat loop
// that lets the agent proactively reach out, and the cron loop that executes
// scheduled jobs. Each loop owns an atomic busy flag so a slow invocation
// never produces two overlapping ticks; a tick that finds the flag set logs
// and returns without queueing.
package scheduler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/channels"
	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/claude"
	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/constants"
	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/intent"
	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/logger"
	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/metrics"
	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/store"
)

// sessionScopeHeartbeat is the session store scope for the heartbeat's
// continuation token.
const sessionScopeHeartbeat = "heartbeat"

// HeartbeatConfig holds heartbeat loop settings.
type HeartbeatConfig struct {
	Enabled  bool
	Interval time.Duration
	// ActiveHoursStart/End bound when heartbeats may fire, in "15:04"
	// clock format. The window may wrap past midnight ("22:00" to
	// "06:00"). Empty values mean always active.
	ActiveHoursStart string
	ActiveHoursEnd   string
	Location         *time.Location
	// ChatID is where heartbeat messages are delivered.
	ChatID string
	// DedupWindow suppresses a message identical to one delivered within
	// this lookback.
	DedupWindow time.Duration
}

// Heartbeat is the proactive check-in loop.
type Heartbeat struct {
	cfg      HeartbeatConfig
	invoker  claude.Invoker
	gate     *intent.Gate
	sender   channels.Sender
	events   store.EventLog
	sessions store.SessionStore
	log      *logger.Logger
	metrics  *metrics.Metrics

	busy    atomic.Bool
	now     func() time.Time
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	mu      sync.Mutex
}

// NewHeartbeat creates the heartbeat loop.
func NewHeartbeat(cfg HeartbeatConfig, invoker claude.Invoker, gate *intent.Gate, sender channels.Sender, events store.EventLog, sessions store.SessionStore, log *logger.Logger, m *metrics.Metrics) *Heartbeat {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = constants.DefaultDedupWindow
	}
	return &Heartbeat{
		cfg:      cfg,
		invoker:  invoker,
		gate:     gate,
		sender:   sender,
		events:   events,
		sessions: sessions,
		log:      log,
		metrics:  m,
		now:      time.Now,
	}
}

// Start begins the heartbeat loop. Starting an already started loop is a
// no-op.
func (h *Heartbeat) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return
	}
	h.ctx, h.cancel = context.WithCancel(context.Background())
	h.started = true

	h.log.Info("heartbeat loop started",
		logger.Field{Key: "interval", Value: h.cfg.Interval.String()},
		logger.Field{Key: "enabled", Value: h.cfg.Enabled},
	)
	go h.run()
}

// Stop halts the loop. An in-flight tick finishes on its own.
func (h *Heartbeat) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.started {
		return
	}
	h.cancel()
	h.started = false
	h.log.Info("heartbeat loop stopped")
}

func (h *Heartbeat) run() {
	ticker := time.NewTicker(h.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			h.Tick(h.ctx)
		}
	}
}

// Tick performs one heartbeat check.
func (h *Heartbeat) Tick(ctx context.Context) {
	if !h.busy.CompareAndSwap(false, true) {
		h.log.Info("heartbeat tick skipped, previous tick still running")
		h.metrics.RecordTick("heartbeat", "skipped")
		h.record(ctx, store.EventTickSkipped, "heartbeat tick overlapped", nil)
		return
	}
	defer h.busy.Store(false)

	if !h.cfg.Enabled {
		h.log.Debug("heartbeat disabled, skipping check")
		h.metrics.RecordTick("heartbeat", "disabled")
		return
	}

	now := h.now().In(h.cfg.Location)
	if !withinActiveHours(now, h.cfg.ActiveHoursStart, h.cfg.ActiveHoursEnd) {
		h.log.Debug("heartbeat outside active hours",
			logger.Field{Key: "now", Value: now.Format("15:04")},
		)
		h.metrics.RecordTick("heartbeat", "inactive_hours")
		return
	}
	h.metrics.RecordTick("heartbeat", "fired")

	token, err := h.sessions.LoadSession(ctx, sessionScopeHeartbeat)
	if err != nil {
		h.log.Warn("session load failed, starting fresh",
			logger.Field{Key: "error", Value: err.Error()},
		)
		token = ""
	}

	started := h.now()
	res, err := h.invoker.Invoke(ctx, claude.Request{
		Prompt:      constants.HeartbeatPrompt,
		ResumeToken: token,
	})
	if err != nil {
		h.handleInvokeError(ctx, res, err, time.Since(started))
		return
	}
	h.metrics.RecordInvocation("ok", time.Since(started))
	h.record(ctx, store.EventInvocationOK, "", map[string]string{"loop": "heartbeat"})
	if res.Retried {
		h.record(ctx, store.EventInvocationRetried, "", map[string]string{"loop": "heartbeat"})
	}

	h.saveSession(ctx, res.SessionID)

	text := strings.TrimSpace(res.Text)
	if text == "" {
		h.log.Warn("heartbeat returned no result text")
		return
	}
	if isHeartbeatOK(text) {
		h.log.Info("heartbeat check: nothing to report")
		return
	}

	out := h.gate.Process(ctx, text, intent.ContextHeartbeat, h.cfg.ChatID)
	if out.CleanedText == "" {
		return
	}

	if h.isDuplicate(ctx, out.CleanedText) {
		h.log.Info("heartbeat message suppressed as duplicate")
		h.record(ctx, store.EventHeartbeatSuppressed, truncateContent(out.CleanedText), nil)
		return
	}

	if err := h.sender.Send(ctx, h.cfg.ChatID, out.CleanedText); err != nil {
		h.log.Error("heartbeat delivery failed", err)
		return
	}
	h.record(ctx, store.EventHeartbeatDelivered, truncateContent(out.CleanedText), map[string]string{
		"hash": messageHash(out.CleanedText),
	})
}

func (h *Heartbeat) handleInvokeError(ctx context.Context, res *claude.Result, err error, elapsed time.Duration) {
	if errors.Is(err, claude.ErrInactivityTimeout) {
		h.log.Error("heartbeat invocation timed out", err)
		h.metrics.RecordInvocation("timeout", elapsed)
		h.record(ctx, store.EventInvocationTimeout, "", map[string]string{"loop": "heartbeat"})
		if res != nil {
			h.saveSession(ctx, res.SessionID)
		}
		return
	}
	h.log.Error("heartbeat invocation failed", err)
	h.metrics.RecordInvocation("error", elapsed)
}

// saveSession persists the continuation token. Failure is logged only; the
// heartbeat already ran and its outcome should not be discarded over this.
func (h *Heartbeat) saveSession(ctx context.Context, sessionID string) {
	if sessionID == "" {
		return
	}
	if err := h.sessions.SaveSession(ctx, sessionScopeHeartbeat, sessionID); err != nil {
		h.log.Error("session save failed", err,
			logger.Field{Key: "session_id", Value: sessionID},
		)
	}
}

// isDuplicate checks the delivered-message log for the same content within
// the dedup window. A failed lookup reports not-duplicate.
func (h *Heartbeat) isDuplicate(ctx context.Context, text string) bool {
	since := h.now().Add(-h.cfg.DedupWindow)
	delivered, err := h.events.Query(ctx, store.EventHeartbeatDelivered, since)
	if err != nil {
		h.log.Warn("dedup lookup failed, delivering anyway",
			logger.Field{Key: "error", Value: err.Error()},
		)
		return false
	}

	hash := messageHash(text)
	for _, ev := range delivered {
		if ev.Metadata["hash"] == hash {
			return true
		}
	}
	return false
}

func (h *Heartbeat) record(ctx context.Context, eventType store.EventType, content string, metadata map[string]string) {
	event := store.Event{
		Type:      eventType,
		Content:   content,
		Metadata:  metadata,
		CreatedAt: h.now().UTC(),
	}
	if err := h.events.Append(ctx, event); err != nil {
		h.log.Warn("event append failed", logger.Field{Key: "event", Value: string(eventType)})
	}
}

// isHeartbeatOK reports whether the response is the literal nothing-to-report
// token, alone or with surrounding whitespace.
func isHeartbeatOK(text string) bool {
	return strings.TrimSpace(text) == constants.HeartbeatOKToken
}

// withinActiveHours reports whether t falls inside the [start, end) clock
// window. A window whose end precedes its start wraps past midnight.
func withinActiveHours(t time.Time, start, end string) bool {
	if start == "" || end == "" || start == end {
		return true
	}
	startMin, ok := clockMinutes(start)
	if !ok {
		return true
	}
	endMin, ok := clockMinutes(end)
	if !ok {
		return true
	}

	nowMin := t.Hour()*60 + t.Minute()
	if startMin < endMin {
		return nowMin >= startMin && nowMin < endMin
	}
	return nowMin >= startMin || nowMin < endMin
}

func clockMinutes(clock string) (int, bool) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}

func messageHash(text string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(sum[:])
}

func truncateContent(s string) string {
	runes := []rune(s)
	if len(runes) <= 80 {
		return s
	}
	return string(runes[:80])
}
