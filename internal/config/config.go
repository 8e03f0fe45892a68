package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	DefaultModeID            = "general"
	DefaultGeneration        = "E1"
	DefaultRoleName          = "Consciousness"
	DefaultProactiveInterval = "90s"
	DefaultProvider          = "google"
	DefaultLogLevel          = "info"

	DefaultGoogleModel    = "gemini-2.5-flash"
	DefaultGoogleEmbed    = "text-embedding-004"
	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultOpenAIEmbed    = "text-embedding-3-small"
	DefaultAnthropicModel = "claude-sonnet-4-5-20250929"
	DefaultMaxTokens      = 4096
	DefaultTemperature    = 0.7

	DefaultDedupThreshold = 0.92
	DefaultCandidateLimit = 30
	DefaultFinalLimit     = 5
	DefaultHalfLifeHours  = 72.0
	DefaultFrequencyCap   = 10.0
	DefaultWeightSim      = 0.45
	DefaultWeightValue    = 0.25
	DefaultWeightRecency  = 0.20
	DefaultWeightFreq     = 0.10
	DefaultEmotionBonus   = 0.05
	DefaultMinStoreWeight = 0.2
	DefaultSnippetSize    = 6
	DefaultMemoryPoll     = "5s"

	DefaultMonologueInterval = "20s"
	DefaultMonologueKeep     = 5

	DefaultIncubator = "n"
)

type Config struct {
	Agent     AgentConfig               `json:"agent"`
	Providers map[string]ProviderConfig `json:"providers"`
	LLM       LLMConfig                 `json:"llm"`
	Memory    MemoryConfig              `json:"memory"`
	Monologue MonologueConfig           `json:"monologue"`
	Channels  ChannelsConfig            `json:"channels"`
	Project   ProjectConfig             `json:"project"`
	Log       LogConfig                 `json:"log"`
}

type AgentConfig struct {
	DataDir           string `json:"dataDir"`
	DefaultMode       string `json:"defaultMode"`
	ModesFile         string `json:"modesFile,omitempty"`
	ProactiveInterval string `json:"proactiveInterval"`
	Generation        string `json:"generation"`
	RoleName          string `json:"roleName"`
}

// ProviderConfig describes one entry of the LLM provider registry.
type ProviderConfig struct {
	Type        string  `json:"type"` // "google", "openai", "anthropic" or "embedding"
	APIKey      string  `json:"apiKey"`
	BaseURL     string  `json:"baseUrl,omitempty"`
	Model       string  `json:"model,omitempty"`
	EmbedModel  string  `json:"embedModel,omitempty"`
	MaxTokens   int     `json:"maxTokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

type LLMConfig struct {
	DefaultProvider  string `json:"defaultProvider"`
	EmbedProvider    string `json:"embedProvider,omitempty"`
	CreativeProvider string `json:"creativeProvider,omitempty"`
	// Timeout bounds a single gateway call; empty means no bound.
	Timeout string `json:"timeout,omitempty"`
}

type MemoryConfig struct {
	DBPath         string        `json:"dbPath,omitempty"`
	DedupThreshold float64       `json:"dedupThreshold"`
	CandidateLimit int           `json:"candidateLimit"`
	FinalLimit     int           `json:"finalLimit"`
	HalfLifeHours  float64       `json:"halfLifeHours"`
	FrequencyCap   float64       `json:"frequencyCap"`
	Weights        WeightsConfig `json:"weights"`
	MinStoreWeight float64       `json:"minStoreWeight"`
	SnippetSize    int           `json:"snippetSize"`
	PollInterval   string        `json:"pollInterval"`
}

type WeightsConfig struct {
	Similarity   float64 `json:"similarity"`
	Value        float64 `json:"value"`
	Recency      float64 `json:"recency"`
	Frequency    float64 `json:"frequency"`
	EmotionBonus float64 `json:"emotionBonus"`
}

type MonologueConfig struct {
	Enabled  bool   `json:"enabled"`
	Interval string `json:"interval"`
	Keep     int    `json:"keep"`
}

type ChannelsConfig struct {
	Console  ConsoleConfig  `json:"console"`
	Telegram TelegramConfig `json:"telegram"`
}

type ConsoleConfig struct {
	Enabled bool `json:"enabled"`
}

type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allowFrom"`
	Proxy     string   `json:"proxy,omitempty"`
}

type ProjectConfig struct {
	Root      string `json:"root,omitempty"`
	Incubator string `json:"incubator"`
}

type LogConfig struct {
	Level       string `json:"level"`
	Development bool   `json:"development"`
}

func DefaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{
			DataDir:           filepath.Join(ConfigDir(), "data"),
			DefaultMode:       DefaultModeID,
			ProactiveInterval: DefaultProactiveInterval,
			Generation:        DefaultGeneration,
			RoleName:          DefaultRoleName,
		},
		Providers: map[string]ProviderConfig{
			"google": {
				Type:       "google",
				Model:      DefaultGoogleModel,
				EmbedModel: DefaultGoogleEmbed,
			},
			"openai": {
				Type:       "openai",
				Model:      DefaultOpenAIModel,
				EmbedModel: DefaultOpenAIEmbed,
				MaxTokens:  DefaultMaxTokens,
			},
			"anthropic": {
				Type:      "anthropic",
				Model:     DefaultAnthropicModel,
				MaxTokens: DefaultMaxTokens,
			},
		},
		LLM: LLMConfig{
			DefaultProvider:  DefaultProvider,
			EmbedProvider:    DefaultProvider,
			CreativeProvider: "openai",
		},
		Memory: MemoryConfig{
			DedupThreshold: DefaultDedupThreshold,
			CandidateLimit: DefaultCandidateLimit,
			FinalLimit:     DefaultFinalLimit,
			HalfLifeHours:  DefaultHalfLifeHours,
			FrequencyCap:   DefaultFrequencyCap,
			Weights: WeightsConfig{
				Similarity:   DefaultWeightSim,
				Value:        DefaultWeightValue,
				Recency:      DefaultWeightRecency,
				Frequency:    DefaultWeightFreq,
				EmotionBonus: DefaultEmotionBonus,
			},
			MinStoreWeight: DefaultMinStoreWeight,
			SnippetSize:    DefaultSnippetSize,
			PollInterval:   DefaultMemoryPoll,
		},
		Monologue: MonologueConfig{
			Enabled:  true,
			Interval: DefaultMonologueInterval,
			Keep:     DefaultMonologueKeep,
		},
		Channels: ChannelsConfig{
			Console: ConsoleConfig{Enabled: true},
		},
		Project: ProjectConfig{
			Incubator: DefaultIncubator,
		},
		Log: LogConfig{
			Level: DefaultLogLevel,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".mindloop")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func LoadConfig() (*Config, error) {
	return LoadConfigFrom(ConfigPath())
}

func LoadConfigFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if dir := os.Getenv("MINDLOOP_DATA_DIR"); dir != "" {
		cfg.Agent.DataDir = dir
	}
	if mode := os.Getenv("MINDLOOP_DEFAULT_MODE"); mode != "" {
		cfg.Agent.DefaultMode = mode
	}
	if level := os.Getenv("MINDLOOP_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if dbPath := os.Getenv("MINDLOOP_DB_PATH"); dbPath != "" {
		cfg.Memory.DBPath = dbPath
	}
	if provider := os.Getenv("MINDLOOP_PROVIDER"); provider != "" {
		cfg.LLM.DefaultProvider = provider
	}
	if token := os.Getenv("MINDLOOP_TELEGRAM_TOKEN"); token != "" {
		cfg.Channels.Telegram.Token = token
	}

	if cfg.Providers == nil {
		cfg.Providers = map[string]ProviderConfig{}
	}
	fillKey(cfg, "google", os.Getenv("GEMINI_API_KEY"))
	fillKey(cfg, "google", os.Getenv("GOOGLE_API_KEY"))
	fillKey(cfg, "openai", os.Getenv("OPENAI_API_KEY"))
	fillKey(cfg, "anthropic", os.Getenv("ANTHROPIC_API_KEY"))
	if url := os.Getenv("OPENAI_BASE_URL"); url != "" {
		if p, ok := cfg.Providers["openai"]; ok && p.BaseURL == "" {
			p.BaseURL = url
			cfg.Providers["openai"] = p
		}
	}
}

// fillKey sets the api key of every provider of the given type that has none yet.
func fillKey(cfg *Config, providerType, key string) {
	if key == "" {
		return
	}
	for id, p := range cfg.Providers {
		if p.Type == providerType && p.APIKey == "" {
			p.APIKey = key
			cfg.Providers[id] = p
		}
	}
}

func applyDefaults(cfg *Config) {
	def := DefaultConfig()
	if cfg.Agent.DataDir == "" {
		cfg.Agent.DataDir = def.Agent.DataDir
	}
	if cfg.Agent.DefaultMode == "" {
		cfg.Agent.DefaultMode = DefaultModeID
	}
	if cfg.Agent.Generation == "" {
		cfg.Agent.Generation = DefaultGeneration
	}
	if cfg.Agent.RoleName == "" {
		cfg.Agent.RoleName = DefaultRoleName
	}
	if cfg.LLM.DefaultProvider == "" {
		cfg.LLM.DefaultProvider = DefaultProvider
	}
	if cfg.LLM.EmbedProvider == "" {
		cfg.LLM.EmbedProvider = cfg.LLM.DefaultProvider
	}
	if cfg.LLM.CreativeProvider == "" {
		cfg.LLM.CreativeProvider = cfg.LLM.DefaultProvider
	}
	if cfg.Memory.DBPath == "" {
		cfg.Memory.DBPath = filepath.Join(cfg.Agent.DataDir, "memory.db")
	}
	if cfg.Memory.DedupThreshold <= 0 {
		cfg.Memory.DedupThreshold = DefaultDedupThreshold
	}
	if cfg.Memory.CandidateLimit <= 0 {
		cfg.Memory.CandidateLimit = DefaultCandidateLimit
	}
	if cfg.Memory.FinalLimit <= 0 {
		cfg.Memory.FinalLimit = DefaultFinalLimit
	}
	if cfg.Memory.HalfLifeHours <= 0 {
		cfg.Memory.HalfLifeHours = DefaultHalfLifeHours
	}
	if cfg.Memory.FrequencyCap <= 0 {
		cfg.Memory.FrequencyCap = DefaultFrequencyCap
	}
	if cfg.Memory.Weights == (WeightsConfig{}) {
		cfg.Memory.Weights = def.Memory.Weights
	}
	if cfg.Memory.SnippetSize <= 0 {
		cfg.Memory.SnippetSize = DefaultSnippetSize
	}
	if cfg.Monologue.Keep <= 0 {
		cfg.Monologue.Keep = DefaultMonologueKeep
	}
	if strings.TrimSpace(cfg.Project.Incubator) == "" {
		cfg.Project.Incubator = DefaultIncubator
	}
	if cfg.Project.Root == "" {
		cfg.Project.Root = filepath.Join(cfg.Agent.DataDir, "project")
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0644)
}

// Duration parses value and falls back to def when it is empty or invalid.
func Duration(value, def string) time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && d > 0 {
		return d
	}
	d, _ := time.ParseDuration(def)
	return d
}

func (c *Config) ProactiveInterval() time.Duration {
	return Duration(c.Agent.ProactiveInterval, DefaultProactiveInterval)
}

func (c *Config) MemoryPollInterval() time.Duration {
	return Duration(c.Memory.PollInterval, DefaultMemoryPoll)
}

func (c *Config) MonologueInterval() time.Duration {
	return Duration(c.Monologue.Interval, DefaultMonologueInterval)
}

// LLMTimeout returns zero when no bound is configured.
func (c *Config) LLMTimeout() time.Duration {
	if strings.TrimSpace(c.LLM.Timeout) == "" {
		return 0
	}
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil || d < 0 {
		return 0
	}
	return d
}
