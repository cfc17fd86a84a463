package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/loqalabs/loqa-converse/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

var conversation = []Message{
	{Role: RoleSystem, Content: "You are Qwen, created by Alibaba Cloud. You are a helpful assistant."},
	{Role: RoleUser, Content: "今天天气怎么样"},
}

func TestApplyChatTemplate(t *testing.T) {
	got := ApplyChatTemplate(conversation, true)
	want := "<|im_start|>system\nYou are Qwen, created by Alibaba Cloud. You are a helpful assistant.<|im_end|>\n" +
		"<|im_start|>user\n今天天气怎么样<|im_end|>\n" +
		"<|im_start|>assistant\n"
	if got != want {
		t.Fatalf("unexpected template:\n%q\nwant\n%q", got, want)
	}
	if noGen := ApplyChatTemplate(conversation, false); noGen != want[:len(want)-len("<|im_start|>assistant\n")] {
		t.Fatalf("unexpected template without generation prompt: %q", noGen)
	}
}

func TestStripSpecialTokens(t *testing.T) {
	if got := StripSpecialTokens("晴天，25度<|im_end|><|endoftext|>"); got != "晴天，25度" {
		t.Fatalf("unexpected %q", got)
	}
	if got := StripSpecialTokens("a < b | c > d"); got != "a < b | c > d" {
		t.Fatalf("plain text altered: %q", got)
	}
}

func TestServiceReplyWithMock(t *testing.T) {
	svc := NewService(config.Default().LLM, NewMockGenerator("晴天，25度"), newLogger())
	reply, err := svc.Reply(context.Background(), "turn-1", conversation)
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if reply != "晴天，25度" {
		t.Fatalf("unexpected reply %q", reply)
	}
}

func TestOllamaGeneratorStreams(t *testing.T) {
	var got ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"晴天，"},"done":false}`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"25度"},"done":false}`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":""},"done":true,"eval_count":7,"prompt_eval_count":30}`)
	}))
	defer srv.Close()

	cfg := config.Default().LLM
	cfg.Mode = "ollama"
	cfg.Endpoint = srv.URL
	gen, err := NewGenerator(cfg)
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}
	reply, err := NewService(cfg, gen, newLogger()).Reply(context.Background(), "turn-2", conversation)
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if reply != "晴天，25度" {
		t.Fatalf("unexpected reply %q", reply)
	}
	if got.Options.NumPredict != 512 {
		t.Fatalf("expected num_predict 512, got %d", got.Options.NumPredict)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != RoleSystem {
		t.Fatalf("unexpected messages %+v", got.Messages)
	}
}

func TestOllamaGeneratorStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	gen := NewOllamaGenerator(srv.URL, "missing")
	err := gen.Generate(context.Background(), Request{Messages: conversation}, func(Chunk) error { return nil })
	if err == nil {
		t.Fatalf("expected error for 404")
	}
}

func TestExecGeneratorStripsTokens(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("requires /bin/sh")
	}
	gen, err := NewExecGenerator(`/bin/sh -c 'cat >/dev/null; echo "{\"content\":\"晴天<|im_end|>\"}"'`)
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}
	var content string
	err = gen.Generate(context.Background(), Request{Messages: conversation, MaxTokens: 16}, func(c Chunk) error {
		content += c.Content
		return nil
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if content != "晴天" {
		t.Fatalf("unexpected content %q", content)
	}
}

func TestOpenAIGenerator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"晴天，25度"},"finish_reason":"stop"}],"usage":{"prompt_tokens":30,"completion_tokens":6,"total_tokens":36}}`)
	}))
	defer srv.Close()

	gen := NewOpenAIGenerator(srv.URL+"/v1", "test-key", "qwen2.5")
	var content string
	err := gen.Generate(context.Background(), Request{Messages: conversation, MaxTokens: 512}, func(c Chunk) error {
		content += c.Content
		return nil
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if content != "晴天，25度" {
		t.Fatalf("unexpected content %q", content)
	}
}
