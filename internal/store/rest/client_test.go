package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/logger"
	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/store"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	log, err := logger.New(logger.Config{Level: "error", Format: "text", Output: "stderr"})
	require.NoError(t, err)

	return New(Config{BaseURL: srv.URL, APIKey: "test-key"}, log), srv
}

func TestCreateJobSendsAuthAndBody(t *testing.T) {
	var gotAuth string
	var gotJob store.Job

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/jobs", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotJob))
		w.WriteHeader(http.StatusCreated)
	}))

	job := store.Job{ID: "j1", Name: "morning", Schedule: "0 9 * * *", Type: store.ScheduleCron, Enabled: true}
	err := client.CreateJob(context.Background(), job)

	require.NoError(t, err)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "j1", gotJob.ID)
	assert.Equal(t, store.ScheduleCron, gotJob.Type)
}

func TestListJobsFilter(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("enabled"))
		assert.Equal(t, "file", r.URL.Query().Get("source"))
		json.NewEncoder(w).Encode([]store.Job{{ID: "a"}, {ID: "b"}})
	}))

	jobs, err := client.ListJobs(context.Background(), store.JobFilter{EnabledOnly: true, Source: store.SourceFile})
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
}

func TestRetriesOnServerError(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	client.retry.InitialBackoff = time.Millisecond

	err := client.SetJobEnabled(context.Background(), "j1", true)
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestNoRetryOnNotFound(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	client.retry.InitialBackoff = time.Millisecond

	_, err := client.GetJob(context.Background(), "missing")
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCountByType(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "fact", r.URL.Query().Get("type"))
		json.NewEncoder(w).Encode(map[string]int{"count": 42})
	}))

	count, err := client.CountByType(context.Background(), store.EntryFact)
	require.NoError(t, err)
	assert.Equal(t, 42, count)
}

func TestQueryEventsSince(t *testing.T) {
	since := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "heartbeat_delivered", r.URL.Query().Get("type"))
		assert.Equal(t, since.Format(time.RFC3339), r.URL.Query().Get("since"))
		json.NewEncoder(w).Encode([]store.Event{{Type: store.EventHeartbeatDelivered, Content: "hi"}})
	}))

	events, err := client.Query(context.Background(), store.EventHeartbeatDelivered, since)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "hi", events[0].Content)
}

func TestSessionRoundTrip(t *testing.T) {
	var saved string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			saved = body["token"]
			w.WriteHeader(http.StatusOK)
		case http.MethodGet:
			json.NewEncoder(w).Encode(map[string]string{"token": saved})
		}
	}))

	ctx := context.Background()
	require.NoError(t, client.SaveSession(ctx, "heartbeat", "sess-123"))

	token, err := client.LoadSession(ctx, "heartbeat")
	require.NoError(t, err)
	assert.Equal(t, "sess-123", token)
}
