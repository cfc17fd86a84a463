package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Recorder.SampleRate != 44100 {
		t.Fatalf("expected 44100 Hz recording, got %d", cfg.Recorder.SampleRate)
	}
	if cfg.TTS.SampleRate != 22050 {
		t.Fatalf("expected 22050 Hz synthesis, got %d", cfg.TTS.SampleRate)
	}
	if cfg.LLM.MaxTokens != 512 {
		t.Fatalf("expected 512 max tokens, got %d", cfg.LLM.MaxTokens)
	}
	if cfg.Output.Directory != "./out_answer" {
		t.Fatalf("unexpected output directory %q", cfg.Output.Directory)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LOQA_RECORDER_SAMPLE_RATE", "16000")
	t.Setenv("LOQA_OUTPUT_DIRECTORY", "/tmp/answers")
	t.Setenv("LOQA_TTS_VOICE", "英文男")
	t.Setenv("LOQA_LLM_MAX_TOKENS", "128")
	t.Setenv("LOQA_LLM_REPLY_CHAR_BUDGET", "30")
	t.Setenv("LOQA_LOOP_MAX_TURNS", "3")
	t.Setenv("LOQA_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Recorder.SampleRate != 16000 {
		t.Fatalf("expected sample rate override, got %d", cfg.Recorder.SampleRate)
	}
	if cfg.Output.Directory != "/tmp/answers" {
		t.Fatalf("expected output directory override")
	}
	if cfg.TTS.Voice != "英文男" {
		t.Fatalf("expected voice override, got %q", cfg.TTS.Voice)
	}
	if cfg.LLM.MaxTokens != 128 || cfg.LLM.ReplyCharBudget != 30 {
		t.Fatalf("expected llm overrides, got %d/%d", cfg.LLM.MaxTokens, cfg.LLM.ReplyCharBudget)
	}
	if cfg.Loop.MaxTurns != 3 {
		t.Fatalf("expected max turns override")
	}
	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.LLM.APIKey != "sk-test" || cfg.STT.APIKey != "sk-test" {
		t.Fatalf("expected api key fallback")
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loqa-converse.yaml")
	data := []byte(`stt:
  mode: exec
  command: sensevoice --json
  language: zh
llm:
  mode: ollama
  model: qwen2.5:7b
tts:
  voice: 粤语女
  stream: true
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.STT.Mode != "exec" || cfg.STT.Language != "zh" {
		t.Fatalf("unexpected stt config: %+v", cfg.STT)
	}
	if cfg.LLM.Mode != "ollama" || cfg.LLM.Model != "qwen2.5:7b" {
		t.Fatalf("unexpected llm config: %+v", cfg.LLM)
	}
	if cfg.LLM.Endpoint != "http://localhost:11434" {
		t.Fatalf("expected default endpoint kept")
	}
	if cfg.TTS.Voice != "粤语女" || !cfg.TTS.Stream {
		t.Fatalf("unexpected tts config: %+v", cfg.TTS)
	}
}

func TestLoadOptionalMissingFile(t *testing.T) {
	cfg, err := LoadOptional(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RuntimeName != "loqa-converse" {
		t.Fatalf("expected defaults")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for explicit missing file")
	}
}

func TestValidateRejectsUnknownVoice(t *testing.T) {
	t.Setenv("LOQA_TTS_VOICE", "robot")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected validation error for unknown voice")
	}
}

func TestValidateRejectsUnknownLanguage(t *testing.T) {
	t.Setenv("LOQA_STT_LANGUAGE", "fr")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected validation error for unsupported language")
	}
}

func TestValidateExecRequiresCommand(t *testing.T) {
	t.Setenv("LOQA_LLM_MODE", "exec")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error when exec mode has no command")
	}
}
