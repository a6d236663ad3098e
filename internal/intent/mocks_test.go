package intent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/logger"
	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/store"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "text", Output: "stderr"})
	require.NoError(t, err)
	return log
}

type mockMemory struct {
	mu          sync.Mutex
	entries     []store.MemoryEntry
	insertErr   error
	searchErr   error
	searchCalls int
	evictions   map[store.EntryType]int
}

func newMockMemory() *mockMemory {
	return &mockMemory{evictions: make(map[store.EntryType]int)}
}

func (m *mockMemory) InsertEntry(_ context.Context, entry store.MemoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
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

func (m *mockMemory) DeleteOldest(_ context.Context, entryType store.EntryType, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictions[entryType] += n
	kept := m.entries[:0]
	deleted := 0
	for _, e := range m.entries {
		if e.Type == entryType && deleted < n {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
	return nil
}

func (m *mockMemory) Search(_ context.Context, entryType store.EntryType, substring string) ([]store.MemoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searchCalls++
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	var found []store.MemoryEntry
	for _, e := range m.entries {
		if e.Type == entryType && strings.Contains(strings.ToLower(e.Content), strings.ToLower(substring)) {
			found = append(found, e)
		}
	}
	return found, nil
}

func (m *mockMemory) DeleteEntry(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.entries {
		if e.ID == id {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("entry %s not found", id)
}

func (m *mockMemory) byType(entryType store.EntryType) []store.MemoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.MemoryEntry
	for _, e := range m.entries {
		if e.Type == entryType {
			out = append(out, e)
		}
	}
	return out
}

type mockEvents struct {
	mu     sync.Mutex
	events []store.Event
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

type mockJobs struct {
	mu   sync.Mutex
	jobs map[string]store.Job
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
	if _, ok := m.jobs[id]; !ok {
		return fmt.Errorf("job %s not found", id)
	}
	delete(m.jobs, id)
	return nil
}

func (m *mockJobs) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

func (m *mockJobs) single(t *testing.T) store.Job {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.Len(t, m.jobs, 1)
	for _, job := range m.jobs {
		return job
	}
	return store.Job{}
}

type mockSender struct {
	mu   sync.Mutex
	sent []string
}

func (m *mockSender) Send(_ context.Context, destination, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, destination+": "+text)
	return nil
}

func (m *mockSender) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}
