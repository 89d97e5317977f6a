package counsel_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/littlegabriel/gabriel"
	"github.com/littlegabriel/gabriel/counsel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, handler http.Handler, cfg counsel.Config) *counsel.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	if cfg.APIKey == "" {
		cfg.APIKey = "sk-test"
	}
	cfg.BaseURL = srv.URL
	cfg.PollInterval = time.Millisecond
	return counsel.NewClient(cfg, counsel.WithBackoff(0))
}

func sse(w http.ResponseWriter, deltas ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, d := range deltas {
		raw, _ := json.Marshal(map[string]any{
			"choices": []any{map[string]any{"delta": map[string]string{"content": d}}},
		})
		fmt.Fprintf(w, "data: %s\n\n", raw)
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

func TestClient_StreamCleansDeltas(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, true, body["stream"])

		sse(w, "\n\nBlessed ", "are the meek【3:1†source】", "\n\n\n\nfor they")
	}), counsel.Config{})

	var parts []string
	err := client.Stream(context.Background(), []counsel.Message{{Role: "user", Content: "hi"}}, func(d string) error {
		parts = append(parts, d)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Blessed are the meek\n\nfor they", strings.Join(parts, ""))
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  Amen"}}]}`))
	}), counsel.Config{MaxRetries: 2})

	text, err := client.Complete(context.Background(), []counsel.Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "Amen", text)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided"}}`))
	}), counsel.Config{MaxRetries: 3})

	_, err := client.Complete(context.Background(), []counsel.Message{{Role: "user", Content: "hi"}})
	require.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, http.StatusBadGateway, richErr.Code)
	assert.Equal(t, "Incorrect API key provided", richErr.Message)
}

func TestClient_MissingKey(t *testing.T) {
	client := counsel.NewClient(counsel.Config{})
	err := client.Ping(context.Background())
	assert.Equal(t, http.StatusServiceUnavailable, gabriel.StatusFromError(err))
}

func TestClient_ContextCancelStopsStream(t *testing.T) {
	release := make(chan struct{})
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"first\"}}]}\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}), counsel.Config{})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	var got []string
	err := client.Stream(ctx, []counsel.Message{{Role: "user", Content: "hi"}}, func(d string) error {
		got = append(got, d)
		cancel()
		return nil
	})
	require.Error(t, err)
	assert.True(t, counsel.IsCanceled(err))
	assert.Equal(t, []string{"first"}, got)
}

type assistantServer struct {
	pendingPolls int32
	finalStatus  string
	polls        int32
}

func (s *assistantServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("OpenAI-Beta") != "assistants=v2" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/threads":
		var body struct {
			Messages []counsel.Message `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		for _, m := range body.Messages {
			if m.Role == counsel.RoleSystem {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
		}
		_, _ = w.Write([]byte(`{"id":"thread_1"}`))
	case r.Method == http.MethodPost && r.URL.Path == "/threads/thread_1/runs":
		_, _ = w.Write([]byte(`{"id":"run_1","status":"queued"}`))
	case r.Method == http.MethodGet && r.URL.Path == "/threads/thread_1/runs/run_1":
		n := atomic.AddInt32(&s.polls, 1)
		status := counsel.RunInProgress
		if n > s.pendingPolls {
			status = s.finalStatus
		}
		fmt.Fprintf(w, `{"id":"run_1","status":%q}`, status)
	case r.Method == http.MethodGet && r.URL.Path == "/threads/thread_1/messages":
		_, _ = w.Write([]byte(`{"data":[{"role":"assistant","content":[{"type":"text","text":{"value":"Be still【1:0†source】 and know."}}]},{"role":"user","content":[]}]}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func TestClient_RunAssistant(t *testing.T) {
	srv := &assistantServer{pendingPolls: 2, finalStatus: counsel.RunCompleted}
	client := newClient(t, srv, counsel.Config{AssistantID: "asst_1", PollAttempts: 5})

	text, err := client.RunAssistant(context.Background(), []counsel.Message{
		{Role: counsel.RoleSystem, Content: "ignored"},
		{Role: counsel.RoleUser, Content: "I feel anxious"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Be still and know.", text)
	assert.EqualValues(t, 3, atomic.LoadInt32(&srv.polls))
}

func TestClient_RunAssistantTimesOut(t *testing.T) {
	srv := &assistantServer{pendingPolls: 100, finalStatus: counsel.RunCompleted}
	client := newClient(t, srv, counsel.Config{AssistantID: "asst_1", PollAttempts: 3})

	_, err := client.RunAssistant(context.Background(), []counsel.Message{{Role: "user", Content: "hi"}})
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, counsel.TextCodeUpstreamTimeout, richErr.TextCode)
	assert.EqualValues(t, 3, atomic.LoadInt32(&srv.polls))
}

func TestClient_RunAssistantClientTimeout(t *testing.T) {
	srv := &assistantServer{pendingPolls: 1 << 30, finalStatus: counsel.RunCompleted}
	client := newClient(t, srv, counsel.Config{AssistantID: "asst_1", PollAttempts: 1 << 30, Timeout: 50 * time.Millisecond})

	_, err := client.RunAssistant(context.Background(), []counsel.Message{{Role: "user", Content: "hi"}})
	require.Error(t, err)
	assert.False(t, counsel.IsCanceled(err))

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, counsel.TextCodeUpstreamTimeout, richErr.TextCode)
}

func TestClient_RunAssistantFailed(t *testing.T) {
	srv := &assistantServer{pendingPolls: 0, finalStatus: counsel.RunFailed}
	client := newClient(t, srv, counsel.Config{AssistantID: "asst_1", PollAttempts: 3})

	_, err := client.RunAssistant(context.Background(), []counsel.Message{{Role: "user", Content: "hi"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed")
}
