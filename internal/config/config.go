package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "./configs/config.yaml"

type LLMConfig struct {
	Provider    string        `yaml:"provider" validate:"required,oneof=openai ollama googleai hash"`
	BaseURL     string        `yaml:"base_url" validate:"omitempty,url"`
	Key         string        `yaml:"key"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature" validate:"gte=0,lte=2"`
	Dimension   int           `yaml:"dimension" validate:"gte=0"`
	Timeout     time.Duration `yaml:"timeout" validate:"gte=0"`
}

type CorpusConfig struct {
	Dir string `yaml:"dir" validate:"required"`
}

type IndexConfig struct {
	Dir           string `yaml:"dir" validate:"required"`
	Collection    string `yaml:"collection" validate:"required"`
	Compress      bool   `yaml:"compress"`
	EncryptionKey string `yaml:"encryption_key" validate:"omitempty,len=32"`
	KeepSnapshots int    `yaml:"keep_snapshots" validate:"gte=1"`
}

type RAGConfig struct {
	ChunkSize     int `yaml:"chunk_size" validate:"gt=0"`
	ChunkOverlap  int `yaml:"chunk_overlap" validate:"gte=0,ltfield=ChunkSize"`
	TopK          int `yaml:"top_k" validate:"gt=0"`
	SnippetLength int `yaml:"snippet_length" validate:"gt=0"`
}

type CaseLawConfig struct {
	BaseURL    string        `yaml:"base_url" validate:"required,url"`
	APIKey     string        `yaml:"api_key"`
	AuthScheme string        `yaml:"auth_scheme" validate:"required"`
	MaxResults int           `yaml:"max_results" validate:"gt=0"`
	Timeout    time.Duration `yaml:"timeout" validate:"gt=0"`
}

// WebSearchConfig points at a Serper compatible search endpoint. Without an
// API key the web_search tool answers with a notice instead of results.
type WebSearchConfig struct {
	BaseURL    string        `yaml:"base_url" validate:"required,url"`
	APIKey     string        `yaml:"api_key"`
	MaxResults int           `yaml:"max_results" validate:"gt=0"`
	Timeout    time.Duration `yaml:"timeout" validate:"gt=0"`
}

type IterationConfig struct {
	Extraction int `yaml:"extraction" validate:"gte=1"`
	Statutes   int `yaml:"statutes" validate:"gte=1"`
	Precedents int `yaml:"precedents" validate:"gte=1"`
	Reasoning  int `yaml:"reasoning" validate:"gte=1"`
	Report     int `yaml:"report" validate:"gte=1"`
}

type PipelineConfig struct {
	CaseTextLimit       int             `yaml:"case_text_limit" validate:"gt=0"`
	CallTimeout         time.Duration   `yaml:"call_timeout" validate:"gt=0"`
	MaxRetries          int             `yaml:"max_retries" validate:"gte=0"`
	RetryInterval       time.Duration   `yaml:"retry_interval" validate:"gte=0"`
	SequentialRetrieval bool            `yaml:"sequential_retrieval"`
	RetrievalMode       string          `yaml:"retrieval_mode" validate:"oneof=direct agent"`
	BatchConcurrency    int             `yaml:"batch_concurrency" validate:"gte=1"`
	MaxHitsPerSource    int             `yaml:"max_hits_per_source" validate:"gte=1"`
	MaxIterations       IterationConfig `yaml:"max_iterations"`
}

type CacheConfig struct {
	RedisAddr string        `yaml:"redis_addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	TTL       time.Duration `yaml:"ttl" validate:"gte=0"`
}

type OutputConfig struct {
	Type       string `yaml:"type" validate:"oneof=local s3"`
	Dir        string `yaml:"dir"`
	Bucket     string `yaml:"bucket" validate:"required_if=Type s3"`
	Region     string `yaml:"region"`
	Endpoint   string `yaml:"endpoint"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	RenderHTML bool   `yaml:"render_html"`
}

type DatabaseConfig struct {
	DSN   string `yaml:"dsn"`
	Debug bool   `yaml:"debug"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" validate:"oneof=console json"`
}

// Config is built once at startup and handed to constructors by value.
type Config struct {
	Corpus       CorpusConfig    `yaml:"corpus"`
	Index        IndexConfig     `yaml:"index"`
	EmbedLLM     LLMConfig       `yaml:"embed_llm"`
	InferenceLLM LLMConfig       `yaml:"inference_llm"`
	RAG          RAGConfig       `yaml:"rag"`
	CaseLaw      CaseLawConfig   `yaml:"caselaw"`
	WebSearch    WebSearchConfig `yaml:"web_search"`
	Pipeline     PipelineConfig  `yaml:"pipeline"`
	Cache        CacheConfig     `yaml:"cache"`
	Output       OutputConfig    `yaml:"output"`
	Database     DatabaseConfig  `yaml:"database"`
	Log          LogConfig       `yaml:"log"`
}

func Default() Config {
	return Config{
		Corpus: CorpusConfig{Dir: "./data/corpus"},
		Index: IndexConfig{
			Dir:           "./data/vectorstore",
			Collection:    "legal-corpus",
			Compress:      true,
			KeepSnapshots: 3,
		},
		EmbedLLM: LLMConfig{
			Provider: "ollama",
			BaseURL:  "http://localhost:11434",
			Model:    "nomic-embed-text",
			Timeout:  30 * time.Second,
		},
		InferenceLLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			Temperature: 0.2,
			Timeout:     2 * time.Minute,
		},
		RAG: RAGConfig{
			ChunkSize:     1200,
			ChunkOverlap:  200,
			TopK:          6,
			SnippetLength: 500,
		},
		CaseLaw: CaseLawConfig{
			BaseURL:    "https://api.indiankanoon.org/search/",
			AuthScheme: "Bearer",
			MaxResults: 5,
			Timeout:    20 * time.Second,
		},
		WebSearch: WebSearchConfig{
			BaseURL:    "https://google.serper.dev/search",
			MaxResults: 5,
			Timeout:    10 * time.Second,
		},
		Pipeline: PipelineConfig{
			CaseTextLimit:    8000,
			CallTimeout:      2 * time.Minute,
			MaxRetries:       2,
			RetryInterval:    500 * time.Millisecond,
			RetrievalMode:    "direct",
			BatchConcurrency: 2,
			MaxHitsPerSource: 12,
			MaxIterations: IterationConfig{
				Extraction: 1,
				Statutes:   10,
				Precedents: 8,
				Reasoning:  2,
				Report:     1,
			},
		},
		Cache: CacheConfig{TTL: 24 * time.Hour},
		Output: OutputConfig{
			Type:       "local",
			Dir:        "./outputs",
			RenderHTML: true,
		},
		Log: LogConfig{Level: "info", Format: "console"},
	}
}

// LoadConfig layers the YAML file at path and the environment over Default.
// A missing file is not an error; the defaults and environment still apply.
func LoadConfig(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			log.Debug().Str("path", path).Msg("config file not found, using defaults")
		case err != nil:
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.InferenceLLM.Provider == "hash" {
		return fmt.Errorf("invalid config: inference_llm.provider %q cannot generate text", c.InferenceLLM.Provider)
	}
	return nil
}

// applyEnv maps the deployment environment onto cfg. Variable names follow the
// names operators already export for the hosted model and case-law APIs.
func applyEnv(cfg *Config) error {
	setString(&cfg.Corpus.Dir, "CORPUS_DIR")
	setString(&cfg.Index.Dir, "VECTORSTORE_DIR")
	setString(&cfg.Index.EncryptionKey, "INDEX_ENCRYPTION_KEY")
	setString(&cfg.EmbedLLM.Provider, "EMBEDDING_PROVIDER")
	setString(&cfg.EmbedLLM.Model, "EMBEDDING_MODEL")
	setString(&cfg.EmbedLLM.BaseURL, "EMBEDDING_BASE_URL")
	setString(&cfg.InferenceLLM.Provider, "LLM_PROVIDER")
	setString(&cfg.InferenceLLM.Model, "LLM_MODEL")
	setString(&cfg.InferenceLLM.BaseURL, "LLM_BASE_URL")
	if os.Getenv("LLM_PROVIDER") != "" && os.Getenv("LLM_MODEL") == "" {
		if m, ok := defaultInferenceModels[cfg.InferenceLLM.Provider]; ok {
			cfg.InferenceLLM.Model = m
		}
	}
	// a vendor key only reaches the provider it was issued for
	setString(&cfg.InferenceLLM.Key, "LLM_API_KEY")
	setString(&cfg.InferenceLLM.Key, providerKeys[cfg.InferenceLLM.Provider])
	setString(&cfg.EmbedLLM.Key, "EMBEDDING_API_KEY")
	setString(&cfg.EmbedLLM.Key, providerKeys[cfg.EmbedLLM.Provider])
	setString(&cfg.CaseLaw.APIKey, "INDIAN_KANOON_API_KEY")
	setString(&cfg.CaseLaw.BaseURL, "CASELAW_BASE_URL")
	setString(&cfg.WebSearch.APIKey, "SERPER_API_KEY")
	setString(&cfg.Cache.RedisAddr, "REDIS_ADDR")
	setString(&cfg.Database.DSN, "DATABASE_URL")
	setString(&cfg.Output.Dir, "OUTPUT_DIR")
	setString(&cfg.Output.Bucket, "S3_BUCKET")
	setString(&cfg.Log.Level, "LOG_LEVEL")

	if v := os.Getenv("RAG_TOP_K"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid RAG_TOP_K %q: %w", v, err)
		}
		cfg.RAG.TopK = n
	}
	return nil
}

var providerKeys = map[string]string{
	"openai":   "OPENAI_API_KEY",
	"googleai": "GOOGLE_API_KEY",
}

var defaultInferenceModels = map[string]string{
	"openai":   "gpt-4o-mini",
	"googleai": "gemini-1.5-flash",
}

func setString(dst *string, name string) {
	if name == "" {
		return
	}
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}
