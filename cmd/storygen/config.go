package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/CTAG07/storychain/pkg/markov"
	"github.com/natefinch/atomic"
)

const (
	modeBatch = "batch"
	modeServe = "serve"
)

// ServerConfig holds process-level settings: how the program runs, where it
// logs and where the chain cache lives.
type ServerConfig struct {
	Mode               string `json:"mode"`
	ApiAddr            string `json:"api_addr"`
	LogLevel           string `json:"log_level"`
	DataDir            string `json:"data_dir"`
	MarkovDatabasePath string `json:"markov_database_path"`
	CacheModels        bool   `json:"cache_models"`
	ExportDir          string `json:"export_dir"`
}

// StoryConfig holds the generation parameters and the list of stories a batch
// run processes.
type StoryConfig struct {
	ChainLength    int      `json:"chain_length"`
	NumOutputWords int      `json:"num_output_words"`
	OutputWidth    int      `json:"output_width"`
	RandomSeed     int64    `json:"random_seed"`
	CorpusDir      string   `json:"corpus_dir"`
	Stories        []string `json:"stories"`
	Parallel       bool     `json:"parallel"`
	MaxWorkers     int      `json:"max_workers"`
}

// Config is the top-level configuration struct that aggregates all other configs.
type Config struct {
	Server *ServerConfig `json:"server_config"`
	Story  *StoryConfig  `json:"story_config"`
}

// DefaultServerConfig creates a server configuration with default values.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Mode:               modeBatch,
		ApiAddr:            ":7278",
		LogLevel:           "info",
		DataDir:            "./data",
		MarkovDatabasePath: "./data/storychain_markov.db?_journal_mode=WAL&_busy_timeout=5000",
		CacheModels:        true,
		ExportDir:          "",
	}
}

// DefaultStoryConfig creates a story configuration with default values.
func DefaultStoryConfig() *StoryConfig {
	return &StoryConfig{
		ChainLength:    2,
		NumOutputWords: 500,
		OutputWidth:    70,
		RandomSeed:     0,
		CorpusDir:      "./data/corpus",
		Stories:        []string{},
		Parallel:       false,
		MaxWorkers:     4,
	}
}

// DefaultConfig returns a fully populated configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: DefaultServerConfig(),
		Story:  DefaultStoryConfig(),
	}
}

// Validate rejects settings the program cannot run with and clamps the ones
// that have a sensible minimum.
func (c *Config) Validate() error {
	if c.Server == nil {
		c.Server = DefaultServerConfig()
	}
	if c.Story == nil {
		c.Story = DefaultStoryConfig()
	}
	switch c.Server.Mode {
	case modeBatch, modeServe:
	case "":
		c.Server.Mode = modeBatch
	default:
		return fmt.Errorf("unknown mode %q, expected %q or %q", c.Server.Mode, modeBatch, modeServe)
	}
	if c.Story.ChainLength < 1 {
		return fmt.Errorf("chain_length %d: %w", c.Story.ChainLength, markov.ErrInvalidOrder)
	}
	if c.Story.OutputWidth < 1 {
		c.Story.OutputWidth = 1
	}
	if c.Story.NumOutputWords < 0 {
		c.Story.NumOutputWords = 0
	}
	if c.Story.MaxWorkers < 1 {
		c.Story.MaxWorkers = 1
	}
	return nil
}

// LoadConfig reads the configuration from a JSON file at the given path.
// If the file doesn't exist, it creates one with default values.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		// If the file doesn't exist, create it with the default config.
		if os.IsNotExist(err) {
			var data []byte
			data, err = json.MarshalIndent(config, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("failed to marshal default config: %w", err)
			}
			if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
				// The program can still run with defaults.
				fmt.Printf("warning: failed to write default config file: %v\n", err)
			}
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err = json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err = config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}

	return config, nil
}

// ConfigManager handles thread-safe access to the configuration.
type ConfigManager struct {
	config     *Config
	mu         sync.RWMutex
	configPath string
	logger     *slog.Logger
}

// NewConfigManager loads the config and initializes the manager.
func NewConfigManager(path string) (*ConfigManager, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	return &ConfigManager{
		config:     cfg,
		configPath: path,
		// Log to stdout before the application-specific logger is set.
		logger: slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{})),
	}, nil
}

// SetLogger sets the logger.
func (cm *ConfigManager) SetLogger(logger *slog.Logger) {
	if logger != nil {
		cm.logger = logger
	}
}

// Get returns a copy of the current configuration. The sections are copied
// too, so callers can't modify the live config through the returned value.
func (cm *ConfigManager) Get() Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	server := *cm.config.Server
	story := *cm.config.Story
	story.Stories = append([]string(nil), cm.config.Story.Stories...)
	return Config{Server: &server, Story: &story}
}

// Update validates the new configuration, replaces the live one and saves it
// to disk.
func (cm *ConfigManager) Update(newConfig Config) error {
	if err := newConfig.Validate(); err != nil {
		return err
	}

	// Keep our own copy so the caller's sections can't alias the live config.
	server := *newConfig.Server
	story := *newConfig.Story
	story.Stories = append([]string(nil), newConfig.Story.Stories...)

	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.config = &Config{Server: &server, Story: &story}

	data, err := json.MarshalIndent(cm.config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err = atomic.WriteFile(cm.configPath, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	cm.logger.Info("Configuration updated", slog.String("path", cm.configPath))
	return nil
}

// parseLogLevel maps the configured level name to a slog level, defaulting to info.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
