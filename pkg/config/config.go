// Package config provides configuration types and defaults for Wira services
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Wira configuration
type Config struct {
	Gateway      GatewayConfig      `yaml:"gateway"`
	Bot          BotConfig          `yaml:"bot"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	LLM          LLMConfig          `yaml:"llm"`
	Retrieval    RetrievalConfig    `yaml:"retrieval"`
	Storage      StorageConfig      `yaml:"storage"`
	KV           KVConfig           `yaml:"kv"`
	Contacts     ContactsConfig     `yaml:"contacts"`
	Planner      PlannerConfig      `yaml:"planner"`
}

// GatewayConfig holds the webchat gateway parameters
type GatewayConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxWSConns   int           `yaml:"maxWsConns"`
}

// BotConfig holds assistant identity and engagement parameters
type BotConfig struct {
	OwnerNumber string `yaml:"ownerNumber"` // owner phone number, reminder target
	ReplyHeader string `yaml:"replyHeader"` // fixed header prepended to every reply
	Prefix      string `yaml:"prefix"`      // command prefix that forces a response (e.g. "!wira")
	Timezone    string `yaml:"timezone"`    // IANA timezone for prompt timestamps
	ActiveOnBoot bool  `yaml:"activeOnBoot"`
}

// OrchestratorConfig holds the per-conversation timing parameters
type OrchestratorConfig struct {
	DebounceWindow   time.Duration `yaml:"debounceWindow"`   // quiet period before a flush
	SummaryWindow    time.Duration `yaml:"summaryWindow"`    // inactivity before history rollover
	CooldownInterval time.Duration `yaml:"cooldownInterval"` // min gap between status notifications
	ReplyDelayText   time.Duration `yaml:"replyDelayText"`   // pre-reply delay, text turns
	ReplyDelayMedia  time.Duration `yaml:"replyDelayMedia"`  // pre-reply delay, media turns
	NotifyDelay      time.Duration `yaml:"notifyDelay"`      // delay before the secondary send
	HistoryLines     int           `yaml:"historyLines"`     // history entries fed into the prompt
}

// LLMConfig holds generation capability parameters
type LLMConfig struct {
	GeminiAPIKey  string  `yaml:"geminiApiKey"`
	GeminiModel   string  `yaml:"geminiModel"`
	GroqAPIKey    string  `yaml:"groqApiKey"`
	GroqBaseURL   string  `yaml:"groqBaseUrl"`
	VisionModel   string  `yaml:"visionModel"`
	VoiceModel    string  `yaml:"voiceModel"`
	Temperature   float32 `yaml:"temperature"`
	MaxTokens     int     `yaml:"maxTokens"`
	HistoryTokens int     `yaml:"historyTokens"` // tiktoken budget for the history section
	Timeout       time.Duration `yaml:"timeout"`
}

// RetrievalConfig holds lexical index parameters
type RetrievalConfig struct {
	CorpusPath  string `yaml:"corpusPath"`
	MaxChunkLen int    `yaml:"maxChunkLen"`
	TopK        int    `yaml:"topK"`
}

// StorageConfig holds SQLite parameters
type StorageConfig struct {
	DBPath       string `yaml:"dbPath"`
	WalMode      bool   `yaml:"walMode"`
	SyncMode     string `yaml:"syncMode"`
	MaxMessages  int    `yaml:"maxMessages"`  // bounded trim: raw entries kept per conversation store
	MaxSummaries int    `yaml:"maxSummaries"` // bounded trim: summaries kept
}

// KVConfig holds BadgerDB parameters
type KVConfig struct {
	Dir        string `yaml:"dir"`
	MemoryMode bool   `yaml:"memoryMode"`
}

// ContactsConfig holds special-contact parameters
type ContactsConfig struct {
	SpecialContactsPath string `yaml:"specialContactsPath"`
}

// PlannerConfig holds agenda and reminder parameters
type PlannerConfig struct {
	ReminderInterval time.Duration `yaml:"reminderInterval"` // how often to check upcoming events
	ReminderWindow   time.Duration `yaml:"reminderWindow"`   // remind this long before an event
	AgendaDays       int           `yaml:"agendaDays"`       // days of upcoming events in the prompt
	AgendaLimit      int           `yaml:"agendaLimit"`      // max events in the prompt
	TaskLimit        int           `yaml:"taskLimit"`        // max pending tasks in the prompt
}

// DefaultDataDir returns the default data directory
func DefaultDataDir() string {
	if d := os.Getenv("WIRA_DATA_DIR"); d != "" {
		return d
	}
	exe, _ := os.Executable()
	return filepath.Join(filepath.Dir(exe), "data")
}

// Default returns the default configuration
func Default() *Config {
	dataDir := DefaultDataDir()
	return &Config{
		Gateway: GatewayConfig{
			Host:         "0.0.0.0",
			Port:         55010,
			ReadTimeout:  120 * time.Second,
			WriteTimeout: 180 * time.Second,
			MaxWSConns:   200,
		},
		Bot: BotConfig{
			ReplyHeader:  "*Wira (AI Assistant)*",
			Prefix:       "!wira",
			Timezone:     "Asia/Jakarta",
			ActiveOnBoot: false,
		},
		Orchestrator: OrchestratorConfig{
			DebounceWindow:   10 * time.Second,
			SummaryWindow:    60 * time.Minute,
			CooldownInterval: 60 * time.Minute,
			ReplyDelayText:   2 * time.Second,
			ReplyDelayMedia:  3 * time.Second,
			NotifyDelay:      time.Second,
			HistoryLines:     20,
		},
		LLM: LLMConfig{
			GeminiModel:   "gemma-3-27b-it",
			GroqBaseURL:   "https://api.groq.com/openai/v1",
			VisionModel:   "llama-3.2-11b-vision-instruct",
			VoiceModel:    "whisper-large-v3-turbo",
			Temperature:   0.4,
			MaxTokens:     2048,
			HistoryTokens: 1500,
			Timeout:       120 * time.Second,
		},
		Retrieval: RetrievalConfig{
			CorpusPath:  filepath.Join(dataDir, "knowledge_base.txt"),
			MaxChunkLen: 800,
			TopK:        3,
		},
		Storage: StorageConfig{
			DBPath:       filepath.Join(dataDir, "wira.db"),
			WalMode:      true,
			SyncMode:     "NORMAL",
			MaxMessages:  1000,
			MaxSummaries: 500,
		},
		KV: KVConfig{
			Dir: filepath.Join(dataDir, "kv"),
		},
		Contacts: ContactsConfig{
			SpecialContactsPath: filepath.Join(dataDir, "special_contacts.json"),
		},
		Planner: PlannerConfig{
			ReminderInterval: time.Minute,
			ReminderWindow:   15 * time.Minute,
			AgendaDays:       7,
			AgendaLimit:      15,
			TaskLimit:        10,
		},
	}
}

// Load reads a YAML config file over the defaults, then applies env.config
// overrides from the same directory if present. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		cfg.applyEnvFile(filepath.Join(filepath.Dir(path), "env.config"))
	}
	cfg.applyEnv()
	return cfg, nil
}

// applyEnvFile overlays KEY=VALUE pairs from an env.config file
func (c *Config) applyEnvFile(path string) {
	env := ReadEnvConfig(path)
	if v, ok := env["GEMINI_API_KEY"]; ok {
		c.LLM.GeminiAPIKey = v
	}
	if v, ok := env["GROQ_API_KEY"]; ok {
		c.LLM.GroqAPIKey = v
	}
	if v, ok := env["OWNER_NUMBER"]; ok {
		c.Bot.OwnerNumber = v
	}
	if v, ok := env["WIRA_PORT"]; ok {
		if p, err := strconv.Atoi(v); err == nil {
			c.Gateway.Port = p
		}
	}
}

// applyEnv overlays process environment variables
func (c *Config) applyEnv() {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.LLM.GeminiAPIKey = v
	}
	if v := os.Getenv("GROQ_API_KEY"); v != "" {
		c.LLM.GroqAPIKey = v
	}
	if v := os.Getenv("OWNER_NUMBER"); v != "" {
		c.Bot.OwnerNumber = v
	}
}
