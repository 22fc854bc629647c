package testsupport

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// ChatReply is one canned response from a ChatServer.
type ChatReply struct {
	Status     int
	Content    string
	Body       string
	RetryAfter string
	Delay      time.Duration
}

// ChatRequest is what a ChatServer observed.
type ChatRequest struct {
	Method        string
	Path          string
	Authorization string
	Body          map[string]any
	Started       time.Time
	Finished      time.Time
}

// ChatServer is an OpenAI-compatible fake that replays queued replies. When
// the queue is empty it answers 200 with "ok".
type ChatServer struct {
	*httptest.Server

	mu       sync.Mutex
	replies  []ChatReply
	requests []ChatRequest
}

// NewChatServer starts a fake and closes it at test cleanup.
func NewChatServer(t testing.TB, replies ...ChatReply) *ChatServer {
	t.Helper()

	cs := &ChatServer{replies: replies}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		var body map[string]any
		if raw, _ := io.ReadAll(r.Body); len(raw) > 0 {
			if err := json.Unmarshal(raw, &body); err != nil {
				t.Errorf("decode request body: %v", err)
			}
		}

		reply := cs.next()
		if reply.Delay > 0 {
			time.Sleep(reply.Delay)
		}
		if reply.RetryAfter != "" {
			w.Header().Set("Retry-After", reply.RetryAfter)
		}
		status := reply.Status
		if status == 0 {
			status = http.StatusOK
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		switch {
		case reply.Body != "":
			_, _ = io.WriteString(w, reply.Body)
		case status < http.StatusMultipleChoices:
			_ = json.NewEncoder(w).Encode(ChatCompletionBody(reply.Content))
		default:
			_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": http.StatusText(status)}})
		}

		cs.mu.Lock()
		cs.requests = append(cs.requests, ChatRequest{
			Method:        r.Method,
			Path:          r.URL.Path,
			Authorization: r.Header.Get("Authorization"),
			Body:          body,
			Started:       started,
			Finished:      time.Now(),
		})
		cs.mu.Unlock()
	}))
	t.Cleanup(cs.Server.Close)
	return cs
}

func (cs *ChatServer) next() ChatReply {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if len(cs.replies) == 0 {
		return ChatReply{Content: "ok"}
	}
	reply := cs.replies[0]
	cs.replies = cs.replies[1:]
	return reply
}

// Requests returns a snapshot of observed requests in arrival order.
func (cs *ChatServer) Requests() []ChatRequest {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return append([]ChatRequest(nil), cs.requests...)
}

// ChatCompletionBody builds a minimal chat completions response.
func ChatCompletionBody(content string) map[string]any {
	return map[string]any{
		"choices": []any{
			map[string]any{
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			},
		},
	}
}
