package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"esg-pipeline/internal/models"
)

const (
	defaultDriver          = "pgdriver"
	defaultLLMBaseURL      = "https://openrouter.ai/api/v1"
	defaultLLMModel        = "deepseek/deepseek-r1-distill-llama-70b:free"
	defaultLLMTimeout      = 120 * time.Second
	defaultMinInterval     = 3 * time.Second
	defaultMaxAttempts     = 3
	defaultInitialBackoff  = 2 * time.Second
	defaultMaxBackoff      = 30 * time.Second
	defaultWorkers         = 2
	defaultCompanyWorkers  = 1
	defaultDownloadTimeout = 60 * time.Second
	defaultIndexPath       = "./chromemdb"
	defaultCollection      = "esg_evidence"
	defaultEmbedModel      = "text-embedding-3-small"
)

type Config struct {
	Database  DatabaseConfig    `yaml:"database"`
	LLM       LLMConfig         `yaml:"llm"`
	EmbedLLM  LLMConfig         `yaml:"embed_llm"`
	Pipeline  PipelineConfig    `yaml:"pipeline"`
	Index     IndexConfig       `yaml:"index"`
	Companies []models.Resource `yaml:"companies"`
}

type DatabaseConfig struct {
	// DSN is the Supabase Postgres connection string.
	DSN      string `yaml:"dsn"`
	Password string `yaml:"password"`
	// Driver selects pgdriver (default) or pq.
	Driver string `yaml:"driver"`
	Debug  bool   `yaml:"debug"`
}

type LLMConfig struct {
	// Provider is openai (any OpenAI compatible endpoint) or ollama. Only embeddings honour ollama.
	Provider string        `yaml:"provider"`
	BaseURL  string        `yaml:"base_url"`
	Key      string        `yaml:"key"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
	// MinInterval is the minimum gap between two outbound calls, process wide.
	MinInterval    time.Duration `yaml:"min_interval"`
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	RepairJSON     bool          `yaml:"repair_json"`
}

type PipelineConfig struct {
	ChunkSize int `yaml:"chunk_size"`
	// Workers bounds per-chunk and per-pillar fan-out. 1 runs everything sequentially.
	Workers         int           `yaml:"workers"`
	CompanyWorkers  int           `yaml:"company_workers"`
	DownloadTimeout time.Duration `yaml:"download_timeout"`
	TempDir         string        `yaml:"temp_dir"`
}

type IndexConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path"`
	Collection string `yaml:"collection"`
	InMemory   bool   `yaml:"in_memory"`
}

// LoadConfig reads the YAML file at path. A .env file next to the working directory is
// loaded first and ${VAR} references in the YAML are expanded from the environment.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML config data and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = defaultDriver
	}

	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	if c.LLM.Timeout <= 0 {
		c.LLM.Timeout = defaultLLMTimeout
	}
	if c.LLM.MinInterval < 0 {
		c.LLM.MinInterval = 0
	} else if c.LLM.MinInterval == 0 {
		c.LLM.MinInterval = defaultMinInterval
	}
	if c.LLM.MaxAttempts <= 0 {
		c.LLM.MaxAttempts = defaultMaxAttempts
	}
	if c.LLM.InitialBackoff <= 0 {
		c.LLM.InitialBackoff = defaultInitialBackoff
	}
	if c.LLM.MaxBackoff <= 0 {
		c.LLM.MaxBackoff = defaultMaxBackoff
	}

	// embedding calls share the chat endpoint unless configured separately
	if c.EmbedLLM.BaseURL == "" {
		c.EmbedLLM.BaseURL = c.LLM.BaseURL
	}
	if c.EmbedLLM.Key == "" {
		c.EmbedLLM.Key = c.LLM.Key
	}
	if c.EmbedLLM.Model == "" {
		c.EmbedLLM.Model = defaultEmbedModel
	}
	if c.EmbedLLM.Timeout <= 0 {
		c.EmbedLLM.Timeout = c.LLM.Timeout
	}

	if c.Pipeline.ChunkSize <= 0 {
		c.Pipeline.ChunkSize = models.DefaultChunkSize
	}
	if c.Pipeline.Workers <= 0 {
		c.Pipeline.Workers = defaultWorkers
	}
	if c.Pipeline.CompanyWorkers <= 0 {
		c.Pipeline.CompanyWorkers = defaultCompanyWorkers
	}
	if c.Pipeline.DownloadTimeout <= 0 {
		c.Pipeline.DownloadTimeout = defaultDownloadTimeout
	}

	if c.Index.Path == "" {
		c.Index.Path = defaultIndexPath
	}
	if c.Index.Collection == "" {
		c.Index.Collection = defaultCollection
	}
}
