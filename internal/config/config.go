// Package config loads and validates the service configuration from a TOML
// file, environment variables, and built-in defaults. Discovery order:
// --config flag, RAG_CONFIG env var, ./config.toml, packaged defaults.
package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Embeddings     EmbeddingsConfig     `mapstructure:"embeddings"`
	Chunking       ChunkingConfig       `mapstructure:"chunking"`
	LLM            LLMConfig            `mapstructure:"llm"`
	OpenAI         OpenAIConfig         `mapstructure:"openai"`
	VectorDB       VectorDBConfig       `mapstructure:"vector_db"`
	DocumentStore  DocumentStoreConfig  `mapstructure:"document_store"`
	Knowledge      KnowledgeConfig      `mapstructure:"knowledge"`
	Jobs           JobsConfig           `mapstructure:"jobs"`
	ExternalParser ExternalParserConfig `mapstructure:"external_parser"`
}

type ServerConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	MaxUploadSize int64  `mapstructure:"max_upload_size"`
}

type EmbeddingsConfig struct {
	Provider   string `mapstructure:"provider"` // ollama | openai
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
	BatchSize  int    `mapstructure:"batch_size"`
	MaxLength  int    `mapstructure:"max_length"`
}

type ChunkingConfig struct {
	ChunkSize        int  `mapstructure:"chunk_size"`
	ChunkOverlap     int  `mapstructure:"chunk_overlap"`
	MinChunkSize     int  `mapstructure:"min_chunk_size"`
	RespectSentences bool `mapstructure:"respect_sentences"`
}

type LLMConfig struct {
	Provider      string        `mapstructure:"provider"` // ollama | openai
	BaseURL       string        `mapstructure:"base_url"`
	EmbedModel    string        `mapstructure:"embed_model"`
	GenerateModel string        `mapstructure:"generate_model"`
	Temperature   float64       `mapstructure:"temperature"`
	Timeout       time.Duration `mapstructure:"timeout_secs"`
	MaxRetries    int           `mapstructure:"max_retries"`
	ContextSize   int           `mapstructure:"context_size"`
}

type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

type VectorDBConfig struct {
	Provider         string `mapstructure:"provider"` // hnsw | qdrant
	StoragePath      string `mapstructure:"storage_path"`
	HNSWM            int    `mapstructure:"hnsw_m"`
	HNSWEfConstruct  int    `mapstructure:"hnsw_ef_construction"`
	HNSWEfSearch     int    `mapstructure:"hnsw_ef_search"`
	QdrantURL        string `mapstructure:"qdrant_url"`
	QdrantCollection string `mapstructure:"qdrant_collection"`
}

type DocumentStoreConfig struct {
	Provider string `mapstructure:"provider"` // local | s3
	RootDir  string `mapstructure:"root_dir"`
	S3Bucket string `mapstructure:"s3_bucket"`
	S3Region string `mapstructure:"s3_region"`
	S3Prefix string `mapstructure:"s3_prefix"`
}

type KnowledgeConfig struct {
	StorePath        string        `mapstructure:"store_path"`
	RegistryPath     string        `mapstructure:"registry_path"`
	CacheCapacity    int           `mapstructure:"cache_capacity"`
	CacheTTL         time.Duration `mapstructure:"cache_ttl"`
	LearningExamples int           `mapstructure:"learning_examples"`
}

type JobsConfig struct {
	Workers          int           `mapstructure:"workers"`
	QueueSize        int           `mapstructure:"queue_size"`
	Retention        time.Duration `mapstructure:"retention"`
	EmbedConcurrency int           `mapstructure:"embed_concurrency"`
}

type ExternalParserConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Command string        `mapstructure:"command"`
	Args    []string      `mapstructure:"args"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Load reads configuration using the documented discovery order. An empty
// configPath falls back to RAG_CONFIG, then ./config.toml, then defaults
// only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")

	if configPath == "" {
		configPath = os.Getenv("RAG_CONFIG")
	}
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}

	setDefaults(v)
	v.SetEnvPrefix("RAGSERVE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// A file was named but could not be read or parsed.
			if configPath != "" {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_upload_size", int64(64<<20))

	v.SetDefault("embeddings.provider", "ollama")
	v.SetDefault("embeddings.model", "nomic-embed-text")
	v.SetDefault("embeddings.dimensions", 768)
	v.SetDefault("embeddings.batch_size", 32)
	v.SetDefault("embeddings.max_length", 8192)

	v.SetDefault("chunking.chunk_size", 1024)
	v.SetDefault("chunking.chunk_overlap", 200)
	v.SetDefault("chunking.min_chunk_size", 100)
	v.SetDefault("chunking.respect_sentences", true)

	v.SetDefault("llm.provider", "ollama")
	v.SetDefault("llm.base_url", "http://localhost:11434")
	v.SetDefault("llm.embed_model", "nomic-embed-text")
	v.SetDefault("llm.generate_model", "qwen3")
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.timeout_secs", "120s")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.context_size", 8192)

	v.SetDefault("vector_db.provider", "hnsw")
	v.SetDefault("vector_db.storage_path", "./data/vectors.hnsw")
	v.SetDefault("vector_db.hnsw_m", 16)
	v.SetDefault("vector_db.hnsw_ef_construction", 200)
	v.SetDefault("vector_db.hnsw_ef_search", 64)
	v.SetDefault("vector_db.qdrant_url", "localhost:6334")
	v.SetDefault("vector_db.qdrant_collection", "ragserve")

	v.SetDefault("document_store.provider", "local")
	v.SetDefault("document_store.root_dir", "./data/documents")

	v.SetDefault("knowledge.store_path", "./data/knowledge.jsonl")
	v.SetDefault("knowledge.registry_path", "./data/registry.db")
	v.SetDefault("knowledge.cache_capacity", 256)
	v.SetDefault("knowledge.cache_ttl", "24h")
	v.SetDefault("knowledge.learning_examples", 3)

	v.SetDefault("jobs.workers", runtime.NumCPU())
	v.SetDefault("jobs.queue_size", 64)
	v.SetDefault("jobs.retention", "24h")
	v.SetDefault("jobs.embed_concurrency", 8)

	v.SetDefault("external_parser.enabled", false)
	v.SetDefault("external_parser.timeout", "60s")
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}

	switch c.Embeddings.Provider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("unknown embeddings provider: %s", c.Embeddings.Provider)
	}
	if c.Embeddings.Dimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive: %d", c.Embeddings.Dimensions)
	}
	if c.Embeddings.BatchSize <= 0 {
		return fmt.Errorf("embedding batch size must be positive: %d", c.Embeddings.BatchSize)
	}

	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive: %d", c.Chunking.ChunkSize)
	}
	if c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("chunk overlap must be between 0 and chunk size: %d", c.Chunking.ChunkOverlap)
	}
	if c.Chunking.MinChunkSize < 0 {
		return fmt.Errorf("min chunk size cannot be negative: %d", c.Chunking.MinChunkSize)
	}

	switch c.LLM.Provider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("unknown llm provider: %s", c.LLM.Provider)
	}
	if c.LLM.BaseURL == "" {
		return fmt.Errorf("llm base URL cannot be empty")
	}
	if c.LLM.GenerateModel == "" {
		return fmt.Errorf("llm generate model cannot be empty")
	}
	if c.LLM.MaxRetries < 0 {
		return fmt.Errorf("llm max retries cannot be negative: %d", c.LLM.MaxRetries)
	}

	switch c.VectorDB.Provider {
	case "hnsw":
		if c.VectorDB.StoragePath == "" {
			return fmt.Errorf("vector_db storage path cannot be empty")
		}
	case "qdrant":
		if c.VectorDB.QdrantURL == "" {
			return fmt.Errorf("qdrant url cannot be empty")
		}
	default:
		return fmt.Errorf("unknown vector_db provider: %s", c.VectorDB.Provider)
	}

	switch c.DocumentStore.Provider {
	case "local":
		if c.DocumentStore.RootDir == "" {
			return fmt.Errorf("document store root dir cannot be empty")
		}
	case "s3":
		if c.DocumentStore.S3Bucket == "" {
			return fmt.Errorf("document store s3 bucket cannot be empty")
		}
	default:
		return fmt.Errorf("unknown document store provider: %s", c.DocumentStore.Provider)
	}

	if c.Jobs.Workers <= 0 {
		return fmt.Errorf("job workers must be positive: %d", c.Jobs.Workers)
	}
	if c.Jobs.QueueSize <= 0 {
		return fmt.Errorf("job queue size must be positive: %d", c.Jobs.QueueSize)
	}
	if c.Jobs.EmbedConcurrency <= 0 {
		return fmt.Errorf("embed concurrency must be positive: %d", c.Jobs.EmbedConcurrency)
	}

	if c.ExternalParser.Enabled && c.ExternalParser.Command == "" {
		return fmt.Errorf("external parser enabled but no command configured")
	}

	return nil
}
