package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/assistflow-backend/internal/pkg/logger"
)

func newTestServer(t *testing.T, posted chan<- map[string]any) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/threads", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "thread_1", "object": "thread"})
	})
	mux.HandleFunc("/v1/threads/thread_1/runs/run_1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "run_1",
			"status": "requires_action",
			"required_action": map[string]any{
				"type": "submit_tool_outputs",
				"submit_tool_outputs": map[string]any{
					"tool_calls": []map[string]any{{
						"id":       "call_1",
						"type":     "function",
						"function": map[string]any{"name": "get_current_date", "arguments": "{}"},
					}},
				},
			},
		})
	})
	mux.HandleFunc("/v1/threads/thread_1/messages", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			var body map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			posted <- body
			_ = json.NewEncoder(w).Encode(map[string]any{"id": "m3", "object": "thread.message", "role": "user"})
			return
		}
		assert.Equal(t, "desc", r.URL.Query().Get("order"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"id": "m2", "created_at": 20, "role": "assistant", "content": []map[string]any{{"type": "text", "text": map[string]any{"value": "Olá!"}}}},
				{"id": "m1", "created_at": 10, "role": "user", "content": []map[string]any{{"type": "text", "text": map[string]any{"value": "oi"}}}},
			},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestAssistantsClient(t *testing.T) {
	srv := newTestServer(t, make(chan map[string]any, 1))
	a := NewAssistants(logger.Nop(), Config{BaseURL: srv.URL + "/v1"})
	ctx := context.Background()

	id, err := a.CreateThread(ctx, "sk-test")
	require.NoError(t, err)
	assert.Equal(t, "thread_1", id)

	run, err := a.RetrieveRun(ctx, "sk-test", "thread_1", "run_1")
	require.NoError(t, err)
	assert.Equal(t, RunRequiresAction, run.Status)
	require.Len(t, run.ToolCalls, 1)
	assert.Equal(t, ToolCall{ID: "call_1", Name: "get_current_date", Arguments: "{}"}, run.ToolCalls[0])

	msgs, err := a.ListMessages(ctx, "sk-test", "thread_1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "assistant", msgs[1].Role)
	assert.Equal(t, "Olá!", msgs[1].Text)
}

func TestMissingCredential(t *testing.T) {
	a := NewAssistants(logger.Nop(), Config{})
	_, err := a.CreateThread(context.Background(), " ")
	require.Error(t, err)
}

func TestUserMessageKeepsImageParts(t *testing.T) {
	posted := make(chan map[string]any, 2)
	srv := newTestServer(t, posted)
	a := NewAssistants(logger.Nop(), Config{BaseURL: srv.URL + "/v1"})

	err := a.AddUserMessage(context.Background(), "sk-test", "thread_1", []MessagePart{
		TextPart("veja"),
		ImagePart("https://cdn.example.com/a.png"),
	})
	require.NoError(t, err)

	body := <-posted
	assert.Equal(t, "user", body["role"])
	content, ok := body["content"].([]any)
	require.True(t, ok, "content is an array: %v", body["content"])
	require.Len(t, content, 2)
	assert.Equal(t, map[string]any{"type": "text", "text": "veja"}, content[0])
	assert.Equal(t, map[string]any{
		"type":      "image_url",
		"image_url": map[string]any{"url": "https://cdn.example.com/a.png"},
	}, content[1])
}

func TestTextOnlyUserMessage(t *testing.T) {
	posted := make(chan map[string]any, 2)
	srv := newTestServer(t, posted)
	a := NewAssistants(logger.Nop(), Config{BaseURL: srv.URL + "/v1"})

	require.NoError(t, a.AddUserMessage(context.Background(), "sk-test", "thread_1", []MessagePart{TextPart("oi")}))

	body := <-posted
	assert.Equal(t, "oi", body["content"])
}
