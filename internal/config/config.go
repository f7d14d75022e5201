// Package config loads and hot-reloads docmill configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

// RedisConfig configures the queue backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
}

// QueueConfig names the Redis keys backing the job queue.
type QueueConfig struct {
	PendingKey        string        `mapstructure:"pending_key" yaml:"pending_key"`
	ProcessingKey     string        `mapstructure:"processing_key" yaml:"processing_key"`
	DeadLetterKey     string        `mapstructure:"dead_letter_key" yaml:"dead_letter_key"`
	ReceiptsKey       string        `mapstructure:"receipts_key" yaml:"receipts_key"`
	ClaimsKey         string        `mapstructure:"claims_key" yaml:"claims_key"`
	MaxReceive        int           `mapstructure:"max_receive" yaml:"max_receive"`
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout" yaml:"visibility_timeout"`
}

// BucketConfig points at the object-store roots used by the pipeline.
type BucketConfig struct {
	Source   string `mapstructure:"source" yaml:"source"`
	Analysis string `mapstructure:"analysis" yaml:"analysis"`
	Output   string `mapstructure:"output" yaml:"output"`
}

// WorkerConfig sizes the worker pool.
type WorkerConfig struct {
	Count      int           `mapstructure:"count" yaml:"count"`
	PollWait   time.Duration `mapstructure:"poll_wait" yaml:"poll_wait"`
	LivenessIv time.Duration `mapstructure:"liveness_interval" yaml:"liveness_interval"`
	StatusAddr string        `mapstructure:"status_addr" yaml:"status_addr"`
}

// AnalysisConfig drives the chunked analysis orchestrator.
type AnalysisConfig struct {
	Endpoint     string        `mapstructure:"endpoint" yaml:"endpoint"`
	APIKey       string        `mapstructure:"api_key" yaml:"api_key"`
	ChunkSize    int           `mapstructure:"chunk_size" yaml:"chunk_size"`
	Parallelism  int           `mapstructure:"parallelism" yaml:"parallelism"`
	MaxAttempts  int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	RetryDelay   time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	PollBudget   int           `mapstructure:"poll_budget" yaml:"poll_budget"`
}

// VisionConfig drives the figure-analysis stage.
type VisionConfig struct {
	Enabled     bool          `mapstructure:"enabled" yaml:"enabled"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	Model       string        `mapstructure:"model" yaml:"model"`
	Concurrency int           `mapstructure:"concurrency" yaml:"concurrency"`
	Retries     int           `mapstructure:"retries" yaml:"retries"`
	KeepImages  bool          `mapstructure:"keep_images" yaml:"keep_images"`
	WaitBudget  time.Duration `mapstructure:"wait_budget" yaml:"wait_budget"`
	RenderDPI   int           `mapstructure:"render_dpi" yaml:"render_dpi"`
}

// ClassifyConfig carries the page classification thresholds.
// They map 1:1 onto classify.Policy.
type ClassifyConfig struct {
	TextRatioMax    float64 `mapstructure:"text_ratio_max" yaml:"text_ratio_max"`
	TextLenMax      int     `mapstructure:"text_len_max" yaml:"text_len_max"`
	WordCountMax    int     `mapstructure:"word_count_max" yaml:"word_count_max"`
	VarianceMin     float64 `mapstructure:"variance_min" yaml:"variance_min"`
	VarianceHigh    float64 `mapstructure:"variance_high" yaml:"variance_high"`
	TextlessLen     int     `mapstructure:"textless_len" yaml:"textless_len"`
	OCRTriggerLen   int     `mapstructure:"ocr_trigger_len" yaml:"ocr_trigger_len"`
	OCRMinChars     int     `mapstructure:"ocr_min_chars" yaml:"ocr_min_chars"`
	FailsafeTextLen int     `mapstructure:"failsafe_text_len" yaml:"failsafe_text_len"`
	FailsafeWords   int     `mapstructure:"failsafe_words" yaml:"failsafe_words"`
	TesseractPath   string  `mapstructure:"tesseract_path" yaml:"tesseract_path"`
}

// ConvertConfig configures document-to-PDF conversion.
type ConvertConfig struct {
	SofficePath string `mapstructure:"soffice_path" yaml:"soffice_path"`
}

// Config is the full docmill configuration.
type Config struct {
	Redis       RedisConfig    `mapstructure:"redis" yaml:"redis"`
	Queue       QueueConfig    `mapstructure:"queue" yaml:"queue"`
	Buckets     BucketConfig   `mapstructure:"buckets" yaml:"buckets"`
	Worker      WorkerConfig   `mapstructure:"worker" yaml:"worker"`
	Analysis    AnalysisConfig `mapstructure:"analysis" yaml:"analysis"`
	Vision      VisionConfig   `mapstructure:"vision" yaml:"vision"`
	Classify    ClassifyConfig `mapstructure:"classify" yaml:"classify"`
	Convert     ConvertConfig  `mapstructure:"convert" yaml:"convert"`
	MaxPages    int            `mapstructure:"max_pages" yaml:"max_pages"`
	StoreRoot   string         `mapstructure:"store_root" yaml:"store_root"`
	Bookkeeping string         `mapstructure:"bookkeeping" yaml:"bookkeeping"`
}

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
}

// NewManager creates a new config manager and loads initial config.
func NewManager(cfgFile string) (*Manager, error) {
	cm := &Manager{}

	if err := cm.initViper(cfgFile); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// initViper sets up viper with defaults and config file.
func (cm *Manager) initViper(cfgFile string) error {
	defaults := DefaultConfig()
	viper.SetDefault("redis", defaults.Redis)
	viper.SetDefault("queue", defaults.Queue)
	viper.SetDefault("buckets", defaults.Buckets)
	viper.SetDefault("worker", defaults.Worker)
	viper.SetDefault("analysis", defaults.Analysis)
	viper.SetDefault("vision", defaults.Vision)
	viper.SetDefault("classify", defaults.Classify)
	viper.SetDefault("convert", defaults.Convert)
	viper.SetDefault("max_pages", defaults.MaxPages)
	viper.SetDefault("store_root", defaults.StoreRoot)
	viper.SetDefault("bookkeeping", defaults.Bookkeeping)

	viper.SetEnvPrefix("DOCMILL")
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.docmill")
	}

	// Config file is optional; defaults and env cover everything.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration.
func (cm *Manager) WatchConfig() {
	viper.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	viper.WatchConfig()
}

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	pattern := regexp.MustCompile(`\$\{([^}]+)\}`)
	return pattern.ReplaceAllStringFunc(value, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# docmill configuration
# API keys use ${ENV_VAR} syntax to reference environment variables
# Set these in your shell: export OPENAI_API_KEY=xxx ANALYSIS_API_KEY=xxx

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
