package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/claude"
	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/intent"
	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/logger"
	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/store"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "text", Output: "stderr"})
	require.NoError(t, err)
	return log
}

// newTestGate builds an intent gate over in-memory mocks, enough for the
// loops to pipe responses through.
func newTestGate(t *testing.T, events store.EventLog) *intent.Gate {
	t.Helper()
	return intent.NewGate(intent.Config{
		Caps:     intent.DefaultCaps(),
		MaxFacts: 200,
		MaxGoals: 50,
	}, newMockMemory(), events, nil, testLogger(t), nil)
}

type mockInvoker struct {
	mu       sync.Mutex
	requests []claude.Request
	results  []*claude.Result
	errs     []error
	// block, when set, is closed by the test to release a hanging Invoke.
	block chan struct{}
}

func (m *mockInvoker) Invoke(_ context.Context, req claude.Request) (*claude.Result, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	call := len(m.requests) - 1
	block := m.block
	m.mu.Unlock()

	if block != nil {
		<-block
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var res *claude.Result
	if call < len(m.results) {
		res = m.results[call]
	} else if len(m.results) > 0 {
		res = m.results[len(m.results)-1]
	} else {
		res = &claude.Result{Text: "ok"}
	}
	var err error
	if call < len(m.errs) {
		err = m.errs[call]
	}
	return res, err
}

func (m *mockInvoker) calls(t *testing.T) []claude.Request {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]claude.Request, len(m.requests))
	copy(out, m.requests)
	return out
}

type mockSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

type sentMessage struct {
	destination string
	text        string
}

func (m *mockSender) Send(_ context.Context, destination, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMessage{destination: destination, text: text})
	return nil
}

func (m *mockSender) messages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]sentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

type mockEvents struct {
	mu       sync.Mutex
	events   []store.Event
	queryErr error
}

func (m *mockEvents) Append(_ context.Context, event store.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *mockEvents) Query(_ context.Context, eventType store.EventType, since time.Time) ([]store.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	var out []store.Event
	for _, e := range m.events {
		if e.Type == eventType && e.CreatedAt.After(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockEvents) countByType(eventType store.EventType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, e := range m.events {
		if e.Type == eventType {
			count++
		}
	}
	return count
}

type mockSessions struct {
	mu      sync.Mutex
	tokens  map[string]string
	loadErr error
	saveErr error
}

func newMockSessions() *mockSessions {
	return &mockSessions{tokens: make(map[string]string)}
}

func (m *mockSessions) SaveSession(_ context.Context, scope, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.tokens[scope] = token
	return nil
}

func (m *mockSessions) LoadSession(_ context.Context, scope string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return "", m.loadErr
	}
	return m.tokens[scope], nil
}

type mockJobs struct {
	mu        sync.Mutex
	jobs      map[string]store.Job
	listErr   error
	listCalls int
}

func newMockJobs() *mockJobs {
	return &mockJobs{jobs: make(map[string]store.Job)}
}

func (m *mockJobs) CreateJob(_ context.Context, job store.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
	return nil
}

func (m *mockJobs) GetJob(_ context.Context, id string) (store.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return store.Job{}, fmt.Errorf("job %s not found", id)
	}
	return job, nil
}

func (m *mockJobs) ListJobs(_ context.Context, filter store.JobFilter) ([]store.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []store.Job
	for _, job := range m.jobs {
		if filter.EnabledOnly && !job.Enabled {
			continue
		}
		if filter.Source != "" && job.Source != filter.Source {
			continue
		}
		out = append(out, job)
	}
	return out, nil
}

func (m *mockJobs) UpdateJob(_ context.Context, job store.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; !ok {
		return fmt.Errorf("job %s not found", job.ID)
	}
	m.jobs[job.ID] = job
	return nil
}

func (m *mockJobs) SetJobEnabled(_ context.Context, id string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return fmt.Errorf("job %s not found", id)
	}
	job.Enabled = enabled
	m.jobs[id] = job
	return nil
}

func (m *mockJobs) DeleteJob(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
	return nil
}

func (m *mockJobs) get(t *testing.T, id string) store.Job {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	require.True(t, ok, "job %s not found", id)
	return job
}

// mockMemory backs the test gate; the scheduler tests only need inserts to
// succeed.
type mockMemory struct {
	mu      sync.Mutex
	entries []store.MemoryEntry
}

func newMockMemory() *mockMemory {
	return &mockMemory{}
}

func (m *mockMemory) InsertEntry(_ context.Context, entry store.MemoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockMemory) CountByType(_ context.Context, entryType store.EntryType) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, e := range m.entries {
		if e.Type == entryType {
			count++
		}
	}
	return count, nil
}

func (m *mockMemory) DeleteOldest(_ context.Context, _ store.EntryType, _ int) error {
	return nil
}

func (m *mockMemory) Search(_ context.Context, entryType store.EntryType, substring string) ([]store.MemoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.MemoryEntry
	for _, e := range m.entries {
		if e.Type == entryType && strings.Contains(strings.ToLower(e.Content), strings.ToLower(substring)) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockMemory) DeleteEntry(_ context.Context, _ string) error {
	return nil
}
