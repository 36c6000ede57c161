package llmclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"diary-assistant/config"
	apperrors "diary-assistant/errors"
)

func newTestClient(serverURL string) *Client {
	logger, _ := zap.NewDevelopment()
	cfg := &config.Config{
		OllamaHost:        serverURL,
		MaxRetries:        2,
		RetryDelaySeconds: time.Millisecond,
		LLMRequestTimeout: 5 * time.Second,
	}
	return New(cfg, logger)
}

func TestSamplingParamsOptions(t *testing.T) {
	tests := []struct {
		name   string
		params SamplingParams
		want   map[string]any
	}{
		{
			name:   "zero_value_sends_no_options",
			params: SamplingParams{},
			want:   map[string]any{},
		},
		{
			name:   "all_fields_set",
			params: SamplingParams{Temperature: 0.7, TopP: 0.8, TopK: 20, RepeatPenalty: 1.5},
			want:   map[string]any{"temperature": 0.7, "top_p": 0.8, "top_k": 20, "repeat_penalty": 1.5},
		},
		{
			name:   "partial",
			params: SamplingParams{Temperature: 0.2},
			want:   map[string]any{"temperature": 0.2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.params.options()
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("options() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestChat(t *testing.T) {
	var gotReq chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(chatChunk{
			Message: Message{Role: "assistant", Content: "xin chào"},
			Done:    true,
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	got, err := client.Chat(context.Background(), "qwen3:4b",
		[]Message{{Role: "user", Content: "chào"}},
		SamplingParams{Temperature: 0.7})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got != "xin chào" {
		t.Errorf("Chat() = %q", got)
	}
	if gotReq.Model != "qwen3:4b" || gotReq.Stream {
		t.Errorf("request = %+v, want non-streaming qwen3:4b", gotReq)
	}
	if gotReq.Options["temperature"] != 0.7 {
		t.Errorf("options = %v", gotReq.Options)
	}
}

func TestChatStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for _, content := range []string{"một ", "hai ", "ba"} {
			json.NewEncoder(w).Encode(chatChunk{Message: Message{Content: content}})
			flusher.Flush()
		}
		json.NewEncoder(w).Encode(chatChunk{Done: true})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	stream, streamErrs, err := client.ChatStream(context.Background(), "qwen3:4b",
		[]Message{{Role: "user", Content: "đếm"}}, SamplingParams{})
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}

	var got string
	for chunk := range stream {
		got += chunk
	}
	if got != "một hai ba" {
		t.Errorf("streamed %q, want %q", got, "một hai ba")
	}
	if err := <-streamErrs; err != nil {
		t.Errorf("completed stream reported error: %v", err)
	}
}

func TestChatStreamDaemonError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		json.NewEncoder(w).Encode(chatChunk{Message: Message{Content: "một "}})
		flusher.Flush()
		json.NewEncoder(w).Encode(chatChunk{Error: "out of memory"})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	stream, streamErrs, err := client.ChatStream(context.Background(), "qwen3:4b", nil, SamplingParams{})
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}

	for range stream {
	}
	err = <-streamErrs
	if !errors.Is(err, apperrors.ErrModelUnavailable) {
		t.Errorf("error = %v, want ErrModelUnavailable", err)
	}
	if err == nil || !strings.Contains(err.Error(), "out of memory") {
		t.Errorf("error = %v, want daemon message preserved", err)
	}
}

func TestChatStreamDisconnectBeforeDone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Connection drops before the final done chunk arrives.
		json.NewEncoder(w).Encode(chatChunk{Message: Message{Content: "một "}})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	stream, streamErrs, err := client.ChatStream(context.Background(), "qwen3:4b", nil, SamplingParams{})
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}

	for range stream {
	}
	if err := <-streamErrs; err == nil {
		t.Error("truncated stream reported no error")
	}
}

func TestChatModelNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Chat(context.Background(), "không-tồn-tại", nil, SamplingParams{})
	if !errors.Is(err, apperrors.ErrModelUnavailable) {
		t.Errorf("error = %v, want ErrModelUnavailable", err)
	}
}

func TestChatRetriesWhileModelLoading(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			http.Error(w, "loading", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(chatChunk{Message: Message{Content: "sẵn sàng"}, Done: true})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	got, err := client.Chat(context.Background(), "qwen3:4b", nil, SamplingParams{})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got != "sẵn sàng" {
		t.Errorf("Chat() = %q", got)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestEmbed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req embedRequest
		json.NewDecoder(r.Body).Decode(&req)
		resp := embedResponse{Embeddings: make([][]float32, len(req.Input))}
		for i := range req.Input {
			resp.Embeddings[i] = []float32{float32(i), 1}
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	vectors, err := client.Embed(context.Background(), "nomic-embed-text", []string{"một", "hai"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("got %d vectors, want 2", len(vectors))
	}
	if vectors[1][0] != 1 {
		t.Errorf("vectors[1] = %v", vectors[1])
	}
}

func TestEmbedCountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{1}}})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	if _, err := client.Embed(context.Background(), "nomic-embed-text", []string{"một", "hai"}); err == nil {
		t.Fatal("expected error on vector count mismatch")
	}
}

func TestListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("path = %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"models":[{"name":"qwen3:4b"},{"name":"nomic-embed-text"}]}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	models, err := client.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	want := []string{"qwen3:4b", "nomic-embed-text"}
	if !reflect.DeepEqual(models, want) {
		t.Errorf("ListModels() = %v, want %v", models, want)
	}
}

func TestListModelsFallsBackWhenUnreachable(t *testing.T) {
	client := newTestClient("http://127.0.0.1:1")

	models, err := client.ListModels(context.Background())
	if err == nil {
		t.Fatal("expected error when daemon unreachable")
	}
	if !reflect.DeepEqual(models, defaultModels) {
		t.Errorf("ListModels() = %v, want fallback %v", models, defaultModels)
	}
}
