// Package intent turns tagged directives in agent output into side effects.
// Parsing and policy are separate stages: the parser yields raw directives,
// then the gate applies the context allowlist, per-response caps,
// deduplication and type-specific validation before touching storage.
package intent

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/constants"
	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/logger"
	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/metrics"
	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/store"
)

// Caps are per-response limits per directive type. A response that exceeds a
// cap has the excess dropped, bounding the blast radius of a single
// adversarial or malfunctioning response.
type Caps struct {
	Remember  int
	Goal      int
	Done      int
	Milestone int
	Forget    int
	Cron      int
}

// DefaultCaps returns the standard per-response limits.
func DefaultCaps() Caps {
	return Caps{
		Remember:  constants.DefaultRememberCap,
		Goal:      constants.DefaultGoalCap,
		Done:      constants.DefaultDoneCap,
		Milestone: constants.DefaultMilestoneCap,
		Forget:    constants.DefaultForgetCap,
		Cron:      constants.DefaultCronCap,
	}
}

// Config holds gate policy settings.
type Config struct {
	Caps Caps
	// MaxFacts and MaxGoals are storage capacities; inserting past them
	// evicts the oldest entries of that type first.
	MaxFacts int
	MaxGoals int
	// ForgetMinLength rejects FORGET search text shorter than this many
	// runes before any storage lookup.
	ForgetMinLength int
}

// Outcome is the result of processing one response.
type Outcome struct {
	// CleanedText is the response with every directive tag stripped,
	// honored or not.
	CleanedText string
	// VoiceReply is set when the response asked to be delivered as voice.
	VoiceReply bool
	// Accepted counts directives that were executed.
	Accepted int
}

// Gate applies directive policy and executes accepted side effects.
type Gate struct {
	cfg       Config
	memory    store.MemoryStore
	events    store.EventLog
	approvals *ApprovalFlow
	log       *logger.Logger
	metrics   *metrics.Metrics
}

// NewGate creates a gate. approvals may be nil when schedule creation is not
// wired (every cron directive is then rejected); metrics may be nil.
func NewGate(cfg Config, memory store.MemoryStore, events store.EventLog, approvals *ApprovalFlow, log *logger.Logger, m *metrics.Metrics) *Gate {
	if cfg.ForgetMinLength <= 0 {
		cfg.ForgetMinLength = constants.ForgetMinLength
	}
	return &Gate{
		cfg:       cfg,
		memory:    memory,
		events:    events,
		approvals: approvals,
		log:       log,
		metrics:   m,
	}
}

// Process scans text for directives, applies policy under the given context
// and executes the survivors. destination is where approval requests for
// agent-proposed jobs are sent. Side-effect failures are logged and skipped;
// the cleaned text is always returned.
func (g *Gate) Process(ctx context.Context, text string, ec ExecutionContext, destination string) *Outcome {
	directives, cleaned := Parse(text)
	out := &Outcome{CleanedText: cleaned}
	if len(directives) == 0 {
		return out
	}

	counts := make(map[DirectiveType]int)
	seen := make(map[string]bool)

	for _, d := range directives {
		if !ec.Allows(d.Type) {
			g.decide(store.EventDirectiveBlocked, d, "not allowed in "+string(ec))
			continue
		}

		if limit := g.capFor(d.Type); limit > 0 && counts[d.Type] >= limit {
			g.decide(store.EventDirectiveCapped, d, "per-response cap reached")
			continue
		}

		if key, dedupe := g.dedupKey(d); dedupe {
			if seen[key] {
				g.decide(store.EventDirectiveDeduped, d, "duplicate in same response")
				continue
			}
			seen[key] = true
		}

		if g.execute(ctx, d, ec, destination, out) {
			counts[d.Type]++
			out.Accepted++
			g.decide(store.EventDirectiveAccepted, d, "")
		}
	}

	return out
}

// execute applies one directive that passed allowlist, cap and dedup checks.
// It returns false when validation or storage rejected it.
func (g *Gate) execute(ctx context.Context, d Directive, ec ExecutionContext, destination string, out *Outcome) bool {
	switch d.Type {
	case DirectiveRemember:
		return g.insert(ctx, d, store.EntryFact, g.cfg.MaxFacts)
	case DirectiveGoal:
		return g.insert(ctx, d, store.EntryGoal, g.cfg.MaxGoals)
	case DirectiveDone:
		return g.insert(ctx, d, store.EntryDone, 0)
	case DirectiveMilestone:
		return g.insert(ctx, d, store.EntryMilestone, 0)
	case DirectiveForget:
		return g.forget(ctx, d)
	case DirectiveCron:
		return g.proposeJob(ctx, d, destination)
	case DirectiveVoiceReply:
		out.VoiceReply = true
		return true
	default:
		return false
	}
}

// insert stores a memory entry, evicting oldest entries of the type first
// when a capacity is configured and reached.
func (g *Gate) insert(ctx context.Context, d Directive, entryType store.EntryType, capacity int) bool {
	if capacity > 0 {
		count, err := g.memory.CountByType(ctx, entryType)
		if err != nil {
			g.log.Error("memory count failed", err, logger.Field{Key: "type", Value: string(entryType)})
			g.decide(store.EventDirectiveRejected, d, "storage error")
			return false
		}
		if count >= capacity {
			if err := g.memory.DeleteOldest(ctx, entryType, count-capacity+1); err != nil {
				g.log.Error("memory eviction failed", err, logger.Field{Key: "type", Value: string(entryType)})
				g.decide(store.EventDirectiveRejected, d, "storage error")
				return false
			}
		}
	}

	entry := store.MemoryEntry{
		ID:        uuid.NewString(),
		Type:      entryType,
		Content:   d.Content,
		CreatedAt: time.Now().UTC(),
	}
	if err := g.memory.InsertEntry(ctx, entry); err != nil {
		g.log.Error("memory insert failed", err, logger.Field{Key: "type", Value: string(entryType)})
		g.decide(store.EventDirectiveRejected, d, "storage error")
		return false
	}
	return true
}

// forget deletes the first stored entry sufficiently similar to the search
// text. Deletion fails closed: short or vague search text, no match, and
// storage errors all reject the directive without deleting anything.
func (g *Gate) forget(ctx context.Context, d Directive) bool {
	if len([]rune(d.Content)) < g.cfg.ForgetMinLength {
		g.decide(store.EventDirectiveRejected, d, "search text too short")
		return false
	}
	words := significantWords(d.Content)
	if len(words) == 0 {
		g.decide(store.EventDirectiveRejected, d, "no significant words")
		return false
	}

	for _, entryType := range []store.EntryType{store.EntryFact, store.EntryGoal} {
		// Candidates are gathered per word; the search text as a whole
		// rarely appears verbatim in the stored content.
		candidates, err := g.searchByWords(ctx, entryType, words)
		if err != nil {
			g.log.Error("memory search failed", err, logger.Field{Key: "type", Value: string(entryType)})
			g.decide(store.EventDirectiveRejected, d, "storage error")
			return false
		}
		for _, entry := range candidates {
			if !wordsOverlap(d.Content, entry.Content) {
				continue
			}
			if err := g.memory.DeleteEntry(ctx, entry.ID); err != nil {
				g.log.Error("memory delete failed", err, logger.Field{Key: "entry_id", Value: entry.ID})
				g.decide(store.EventDirectiveRejected, d, "storage error")
				return false
			}
			return true
		}
	}

	g.decide(store.EventDirectiveRejected, d, "no sufficiently similar entry")
	return false
}

// searchByWords unions the store's substring search over each word,
// preserving first-seen order.
func (g *Gate) searchByWords(ctx context.Context, entryType store.EntryType, words []string) ([]store.MemoryEntry, error) {
	var candidates []store.MemoryEntry
	seen := make(map[string]bool)
	for _, w := range words {
		entries, err := g.memory.Search(ctx, entryType, w)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if seen[e.ID] {
				continue
			}
			seen[e.ID] = true
			candidates = append(candidates, e)
		}
	}
	return candidates, nil
}

func (g *Gate) proposeJob(ctx context.Context, d Directive, destination string) bool {
	if g.approvals == nil {
		g.decide(store.EventDirectiveRejected, d, "schedule creation not available")
		return false
	}
	if _, err := g.approvals.Propose(ctx, d.Schedule, d.Prompt, destination); err != nil {
		g.log.Error("job proposal failed", err, logger.Field{Key: "schedule", Value: d.Schedule})
		g.decide(store.EventDirectiveRejected, d, "invalid schedule or storage error")
		return false
	}
	return true
}

func (g *Gate) capFor(t DirectiveType) int {
	switch t {
	case DirectiveRemember:
		return g.cfg.Caps.Remember
	case DirectiveGoal:
		return g.cfg.Caps.Goal
	case DirectiveDone:
		return g.cfg.Caps.Done
	case DirectiveMilestone:
		return g.cfg.Caps.Milestone
	case DirectiveForget:
		return g.cfg.Caps.Forget
	case DirectiveCron:
		return g.cfg.Caps.Cron
	default:
		return 0
	}
}

// dedupKey returns the per-response dedup key for insert-style directives.
// Repeated near-identical additions are low-value; other types pass through.
func (g *Gate) dedupKey(d Directive) (string, bool) {
	switch d.Type {
	case DirectiveRemember, DirectiveGoal, DirectiveDone, DirectiveMilestone:
		return string(d.Type) + ":" + normalize(d.Content), true
	default:
		return "", false
	}
}

// decide records one policy decision to the audit log, the metrics and the
// structured log. The event append runs detached so a slow store never
// blocks the response pipeline.
func (g *Gate) decide(eventType store.EventType, d Directive, reason string) {
	decision := strings.TrimPrefix(string(eventType), "directive_")
	g.metrics.RecordDirective(string(d.Type), decision)

	fields := []logger.Field{
		{Key: "directive", Value: string(d.Type)},
		{Key: "content", Value: truncate(d.Content, 80)},
	}
	if reason != "" {
		fields = append(fields, logger.Field{Key: "reason", Value: reason})
	}
	g.log.Info("directive "+decision, fields...)

	event := store.Event{
		Type:    eventType,
		Content: truncate(d.Content, 80),
		Metadata: map[string]string{
			"directive": string(d.Type),
			"reason":    reason,
		},
		CreatedAt: time.Now().UTC(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := g.events.Append(ctx, event); err != nil {
			g.log.Warn("audit event append failed", logger.Field{Key: "event", Value: string(eventType)})
		}
	}()
}

// normalize casefolds and canonicalizes content for comparison. NFKC keeps
// visually identical unicode variants from defeating dedup.
func normalize(s string) string {
	return norm.NFKC.String(strings.ToLower(strings.TrimSpace(s)))
}

// significantWords returns the normalized words of s longer than two runes.
func significantWords(s string) []string {
	var words []string
	for _, w := range strings.Fields(normalize(s)) {
		w = strings.Trim(w, `.,!?;:"'()[]`)
		if len([]rune(w)) >= 3 {
			words = append(words, w)
		}
	}
	return words
}

// wordsOverlap reports whether at least half of the search text's
// significant words appear in the target content.
func wordsOverlap(search, content string) bool {
	searchWords := significantWords(search)
	if len(searchWords) == 0 {
		return false
	}

	contentWords := make(map[string]bool)
	for _, w := range significantWords(content) {
		contentWords[w] = true
	}

	matched := 0
	for _, w := range searchWords {
		if contentWords[w] {
			matched++
		}
	}
	return matched*2 >= len(searchWords)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
