package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	TraceExporter  string `yaml:"trace_exporter"` // none, stdout, otlp
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type Config struct {
	RuntimeName string          `yaml:"runtime_name"`
	Environment string          `yaml:"environment"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	Recorder    RecorderConfig  `yaml:"recorder"`
	STT         STTConfig       `yaml:"stt"`
	LLM         LLMConfig       `yaml:"llm"`
	TTS         TTSConfig       `yaml:"tts"`
	Output      OutputConfig    `yaml:"output"`
	Loop        LoopConfig      `yaml:"loop"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
	SubjectPrefix  string   `yaml:"subject_prefix"`
}

type RecorderConfig struct {
	Path         string `yaml:"path"`
	Command      string `yaml:"command"`
	SampleFormat string `yaml:"sample_format"` // s16le, f32le
	SampleRate   int    `yaml:"sample_rate"`
	Channels     int    `yaml:"channels"`
	FrameSamples int    `yaml:"frame_samples"`
	FrameQueue   int    `yaml:"frame_queue"`
	Retain       bool   `yaml:"retain"`
}

type STTConfig struct {
	Mode      string `yaml:"mode"` // mock, exec, openai
	Command   string `yaml:"command"`
	ModelPath string `yaml:"model_path"`
	Language  string `yaml:"language"`
	UseITN    bool   `yaml:"use_itn"`
	Endpoint  string `yaml:"endpoint"`
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	MockText  string `yaml:"mock_text"`
}

type LLMConfig struct {
	Mode            string  `yaml:"mode"` // mock, exec, ollama, openai
	Endpoint        string  `yaml:"endpoint"`
	APIKey          string  `yaml:"api_key"`
	Command         string  `yaml:"command"`
	Model           string  `yaml:"model"`
	SystemPrompt    string  `yaml:"system_prompt"`
	InstructionTmpl string  `yaml:"instruction_template"`
	ReplyCharBudget int     `yaml:"reply_char_budget"`
	MaxTokens       int     `yaml:"max_tokens"`
	Temperature     float64 `yaml:"temperature"`
}

type TTSConfig struct {
	Mode       string `yaml:"mode"` // mock, exec
	Command    string `yaml:"command"`
	Voice      string `yaml:"voice"`
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
	Stream     bool   `yaml:"stream"`
	MockChunks int    `yaml:"mock_chunks"`
}

type OutputConfig struct {
	Directory      string `yaml:"directory"`
	PlayCommand    string `yaml:"play_command"`
	PollIntervalMS int    `yaml:"poll_interval_ms"`
	ClearOnExit    bool   `yaml:"clear_on_exit"`
}

type LoopConfig struct {
	MaxTurns       int `yaml:"max_turns"`
	StageTimeoutMS int `yaml:"stage_timeout_ms"`
}

// Languages accepted as a recognition hint.
var Languages = []string{"auto", "zh", "en", "yue", "ja", "ko", "nospeech"}

// Voices are the built-in speaker identifiers of the synthesis model.
var Voices = []string{"中文女", "中文男", "日语男", "粤语女", "英文女", "英文男", "韩语女"}

func Default() Config {
	return Config{
		RuntimeName: "loqa-converse",
		Environment: "development",
		Telemetry: TelemetryConfig{
			LogLevel:      "info",
			TraceExporter: "none",
			OTLPInsecure:  true,
		},
		Bus: BusConfig{
			Enabled:        true,
			Embedded:       true,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
			SubjectPrefix:  "converse",
		},
		Recorder: RecorderConfig{
			Path:         "my_recording.wav",
			Command:      "arecord -q -t raw -f S16_LE -c 1 -r 44100",
			SampleFormat: "s16le",
			SampleRate:   44100,
			Channels:     1,
			FrameSamples: 1024,
			FrameQueue:   64,
			Retain:       false,
		},
		STT: STTConfig{
			Mode:     "mock",
			Language: "auto",
			Model:    "whisper-1",
			MockText: "<|zh|><|NEUTRAL|><|Speech|><|woitn|>今天天气怎么样",
		},
		LLM: LLMConfig{
			Mode:            "mock",
			Endpoint:        "http://localhost:11434",
			Model:           "qwen2.5:1.5b-instruct",
			SystemPrompt:    "You are Qwen, created by Alibaba Cloud. You are a helpful assistant.",
			InstructionTmpl: "，回答简短一些，保持%d字以内！",
			ReplyCharBudget: 50,
			MaxTokens:       512,
			Temperature:     0.7,
		},
		TTS: TTSConfig{
			Mode:       "mock",
			Voice:      "中文女",
			SampleRate: 22050,
			Channels:   1,
			Stream:     false,
			MockChunks: 1,
		},
		Output: OutputConfig{
			Directory:      "./out_answer",
			PlayCommand:    "aplay -q",
			PollIntervalMS: 1000,
			ClearOnExit:    false,
		},
	}
}

// Load reads the YAML file at path (if any), applies LOQA_* environment
// overrides and validates the result. A missing file is only an error when
// the caller asked for it explicitly; see LoadOptional.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadOptional behaves like Load but treats a missing file as "use defaults".
func LoadOptional(path string) (Config, error) {
	if path != "" {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return Load("")
		}
	}
	return Load(path)
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "LOQA_RUNTIME_NAME")
	overrideString(&cfg.Environment, "LOQA_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.Telemetry.LogLevel, "LOQA_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.TraceExporter, "LOQA_TELEMETRY_TRACE_EXPORTER")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "LOQA_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "LOQA_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "LOQA_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Enabled, "LOQA_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "LOQA_BUS_EMBEDDED")
	overrideStringSlice(&cfg.Bus.Servers, "LOQA_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "LOQA_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "LOQA_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "LOQA_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "LOQA_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "LOQA_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Bus.SubjectPrefix, "LOQA_BUS_SUBJECT_PREFIX")
	overrideString(&cfg.Recorder.Path, "LOQA_RECORDER_PATH")
	overrideString(&cfg.Recorder.Command, "LOQA_RECORDER_COMMAND")
	overrideString(&cfg.Recorder.SampleFormat, "LOQA_RECORDER_SAMPLE_FORMAT")
	overrideInt(&cfg.Recorder.SampleRate, "LOQA_RECORDER_SAMPLE_RATE")
	overrideInt(&cfg.Recorder.Channels, "LOQA_RECORDER_CHANNELS")
	overrideInt(&cfg.Recorder.FrameSamples, "LOQA_RECORDER_FRAME_SAMPLES")
	overrideInt(&cfg.Recorder.FrameQueue, "LOQA_RECORDER_FRAME_QUEUE")
	overrideBool(&cfg.Recorder.Retain, "LOQA_RECORDER_RETAIN")
	overrideString(&cfg.STT.Mode, "LOQA_STT_MODE")
	overrideString(&cfg.STT.Command, "LOQA_STT_COMMAND")
	overrideString(&cfg.STT.ModelPath, "LOQA_STT_MODEL_PATH")
	overrideString(&cfg.STT.Language, "LOQA_STT_LANGUAGE")
	overrideBool(&cfg.STT.UseITN, "LOQA_STT_USE_ITN")
	overrideString(&cfg.STT.Endpoint, "LOQA_STT_ENDPOINT")
	overrideString(&cfg.STT.APIKey, "LOQA_STT_API_KEY")
	overrideString(&cfg.STT.Model, "LOQA_STT_MODEL")
	overrideString(&cfg.STT.MockText, "LOQA_STT_MOCK_TEXT")
	overrideString(&cfg.LLM.Mode, "LOQA_LLM_MODE")
	overrideString(&cfg.LLM.Endpoint, "LOQA_LLM_ENDPOINT")
	overrideString(&cfg.LLM.APIKey, "LOQA_LLM_API_KEY")
	overrideString(&cfg.LLM.Command, "LOQA_LLM_COMMAND")
	overrideString(&cfg.LLM.Model, "LOQA_LLM_MODEL")
	overrideString(&cfg.LLM.SystemPrompt, "LOQA_LLM_SYSTEM_PROMPT")
	overrideString(&cfg.LLM.InstructionTmpl, "LOQA_LLM_INSTRUCTION_TEMPLATE")
	overrideInt(&cfg.LLM.ReplyCharBudget, "LOQA_LLM_REPLY_CHAR_BUDGET")
	overrideInt(&cfg.LLM.MaxTokens, "LOQA_LLM_MAX_TOKENS")
	overrideFloat(&cfg.LLM.Temperature, "LOQA_LLM_TEMPERATURE")
	overrideString(&cfg.TTS.Mode, "LOQA_TTS_MODE")
	overrideString(&cfg.TTS.Command, "LOQA_TTS_COMMAND")
	overrideString(&cfg.TTS.Voice, "LOQA_TTS_VOICE")
	overrideInt(&cfg.TTS.SampleRate, "LOQA_TTS_SAMPLE_RATE")
	overrideInt(&cfg.TTS.Channels, "LOQA_TTS_CHANNELS")
	overrideBool(&cfg.TTS.Stream, "LOQA_TTS_STREAM")
	overrideInt(&cfg.TTS.MockChunks, "LOQA_TTS_MOCK_CHUNKS")
	overrideString(&cfg.Output.Directory, "LOQA_OUTPUT_DIRECTORY")
	overrideString(&cfg.Output.PlayCommand, "LOQA_OUTPUT_PLAY_COMMAND")
	overrideInt(&cfg.Output.PollIntervalMS, "LOQA_OUTPUT_POLL_INTERVAL_MS")
	overrideBool(&cfg.Output.ClearOnExit, "LOQA_OUTPUT_CLEAR_ON_EXIT")
	overrideInt(&cfg.Loop.MaxTurns, "LOQA_LOOP_MAX_TURNS")
	overrideInt(&cfg.Loop.StageTimeoutMS, "LOQA_LOOP_STAGE_TIMEOUT_MS")

	// API keys fall back to the conventional variable used by OpenAI clients.
	if key, ok := os.LookupEnv("OPENAI_API_KEY"); ok {
		if cfg.STT.APIKey == "" {
			cfg.STT.APIKey = key
		}
		if cfg.LLM.APIKey == "" {
			cfg.LLM.APIKey = key
		}
	}
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func contains(set []string, value string) bool {
	for _, v := range set {
		if v == value {
			return true
		}
	}
	return false
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	switch cfg.Telemetry.TraceExporter {
	case "", "none", "stdout", "otlp":
	default:
		return errors.New("telemetry.trace_exporter must be one of none|stdout|otlp")
	}
	if cfg.Telemetry.TraceExporter == "otlp" && cfg.Telemetry.OTLPEndpoint == "" {
		return errors.New("telemetry.otlp_endpoint must be set when trace_exporter=otlp")
	}
	if cfg.Bus.Enabled && !cfg.Bus.Embedded && len(cfg.Bus.Servers) == 0 {
		return errors.New("bus.servers must not be empty when embedded mode is disabled")
	}
	if cfg.Recorder.Path == "" {
		return errors.New("recorder.path must not be empty")
	}
	if cfg.Recorder.Command == "" {
		return errors.New("recorder.command must not be empty")
	}
	switch cfg.Recorder.SampleFormat {
	case "s16le", "f32le":
	default:
		return errors.New("recorder.sample_format must be one of s16le|f32le")
	}
	if cfg.Recorder.SampleRate <= 0 {
		return errors.New("recorder.sample_rate must be positive")
	}
	if cfg.Recorder.Channels != 1 {
		return errors.New("recorder.channels must be 1")
	}
	if cfg.Recorder.FrameSamples <= 0 {
		return errors.New("recorder.frame_samples must be positive")
	}
	if cfg.Recorder.FrameQueue <= 0 {
		return errors.New("recorder.frame_queue must be >= 1")
	}
	switch cfg.STT.Mode {
	case "mock", "exec", "openai":
	default:
		return errors.New("stt.mode must be one of mock|exec|openai")
	}
	if cfg.STT.Mode == "exec" && cfg.STT.Command == "" {
		return errors.New("stt.command must be set when mode=exec")
	}
	if !contains(Languages, cfg.STT.Language) {
		return fmt.Errorf("stt.language must be one of %s", strings.Join(Languages, "|"))
	}
	switch cfg.LLM.Mode {
	case "mock", "exec", "ollama", "openai":
	default:
		return errors.New("llm.mode must be one of mock|exec|ollama|openai")
	}
	if cfg.LLM.Mode == "ollama" && cfg.LLM.Endpoint == "" {
		return errors.New("llm.endpoint must be set when mode=ollama")
	}
	if cfg.LLM.Mode == "exec" && cfg.LLM.Command == "" {
		return errors.New("llm.command must be set when mode=exec")
	}
	if cfg.LLM.MaxTokens <= 0 {
		return errors.New("llm.max_tokens must be positive")
	}
	if cfg.LLM.ReplyCharBudget <= 0 {
		return errors.New("llm.reply_char_budget must be positive")
	}
	switch cfg.TTS.Mode {
	case "mock", "exec":
	default:
		return errors.New("tts.mode must be one of mock|exec")
	}
	if cfg.TTS.Mode == "exec" && cfg.TTS.Command == "" {
		return errors.New("tts.command must be set when mode=exec")
	}
	if !contains(Voices, cfg.TTS.Voice) {
		return fmt.Errorf("tts.voice must be one of %s", strings.Join(Voices, "|"))
	}
	if cfg.TTS.SampleRate <= 0 {
		return errors.New("tts.sample_rate must be positive")
	}
	if cfg.TTS.Channels <= 0 {
		return errors.New("tts.channels must be positive")
	}
	if cfg.Output.Directory == "" {
		return errors.New("output.directory must not be empty")
	}
	if cfg.Output.PlayCommand == "" {
		return errors.New("output.play_command must not be empty")
	}
	if cfg.Output.PollIntervalMS <= 0 {
		return errors.New("output.poll_interval_ms must be positive")
	}
	if cfg.Loop.MaxTurns < 0 {
		return errors.New("loop.max_turns must be >= 0")
	}
	if cfg.Loop.StageTimeoutMS < 0 {
		return errors.New("loop.stage_timeout_ms must be >= 0")
	}
	return nil
}
