// Package config loads go-quill settings.
//
// Values are layered: built-in defaults, then an optional YAML file named by
// QUILL_CONFIG, then environment variables. A .env file in the working
// directory is loaded into the environment first when present.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"

	"github.com/quill-ai/go-quill/pkg/helpers"
)

// Config is the full service configuration.
type Config struct {
	Server    Server    `yaml:"server"`
	Log       Log       `yaml:"log"`
	Chunking  Chunking  `yaml:"chunking"`
	Gemini    Gemini    `yaml:"gemini"`
	OpenAI    OpenAI    `yaml:"openai"`
	Search    Search    `yaml:"search"`
	Ollama    Ollama    `yaml:"ollama"`
	Embedding Embedding `yaml:"embedding"`
	Index     Index     `yaml:"index"`
	Ledger    Ledger    `yaml:"ledger"`
	Memory    Memory    `yaml:"memory"`
	Research  Research  `yaml:"research"`
	Telemetry Telemetry `yaml:"telemetry"`
}

// Server configures the HTTP surface.
type Server struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
}

// Log selects level and output format ("json" or "console").
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Chunking is the splitter profile.
type Chunking struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// Gemini holds Google GenAI settings.
type Gemini struct {
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	EmbeddingModel string `yaml:"embedding_model"`
}

// OpenAI holds OpenAI settings.
type OpenAI struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	EmbeddingModel string `yaml:"embedding_model"`
}

// Search configures the web search model used by research steps. It speaks
// the OpenAI chat protocol (Perplexity by default).
type Search struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// Ollama holds local model settings.
type Ollama struct {
	Host           string `yaml:"host"`
	Model          string `yaml:"model"`
	EmbeddingModel string `yaml:"embedding_model"`
}

// Embedding selects the embedding provider and its cache.
type Embedding struct {
	Provider  string        `yaml:"provider"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
	RateLimit int           `yaml:"rate_limit"`
}

// Index selects the vector backend.
type Index struct {
	Backend   string   `yaml:"backend"`
	Dimension int      `yaml:"dimension"`
	Weaviate  Weaviate `yaml:"weaviate"`
	Qdrant    Qdrant   `yaml:"qdrant"`
	PGVector  PGVector `yaml:"pgvector"`
}

// Weaviate connection settings.
type Weaviate struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
}

// Qdrant connection settings.
type Qdrant struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
}

// PGVector connection settings.
type PGVector struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

// Ledger selects where chunk ledgers and chat history live.
type Ledger struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// Memory configures conversation history.
type Memory struct {
	Window int           `yaml:"window"`
	TTL    time.Duration `yaml:"ttl"`
}

// Research configures the research agent.
type Research struct {
	PlannerProvider string `yaml:"planner_provider"`
	MaxSteps        int    `yaml:"max_steps"`
	KeywordDetector bool   `yaml:"keyword_detector"`
}

// Telemetry configures tracing export.
type Telemetry struct {
	ServiceName  string `yaml:"service_name"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPProtocol string `yaml:"otlp_protocol"`
}

var (
	indexBackends    = []string{"memory", "weaviate", "qdrant", "pgvector"}
	ledgerBackends   = []string{"memory", "badger"}
	providers        = []string{"gemini", "openai", "ollama", "mock"}
	logFormats       = []string{"json", "console"}
	errInvalidConfig = errors.New("invalid config")
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: Server{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
			MaxBodyBytes:    4 << 20,
		},
		Log:      Log{Level: "info", Format: "json"},
		Chunking: Chunking{Size: 1000, Overlap: 200},
		Gemini: Gemini{
			Model:          "gemini-2.5-flash",
			EmbeddingModel: "gemini-embedding-001",
		},
		OpenAI: OpenAI{
			Model:          "gpt-4o-mini",
			EmbeddingModel: "text-embedding-3-small",
		},
		Search: Search{
			BaseURL: "https://api.perplexity.ai",
			Model:   "sonar",
		},
		Ollama: Ollama{
			Host:           "http://localhost:11434",
			Model:          "llama3.2",
			EmbeddingModel: "nomic-embed-text",
		},
		Embedding: Embedding{Provider: "gemini", CacheTTL: time.Hour},
		Index: Index{
			Backend:   "memory",
			Dimension: 768,
			Weaviate:  Weaviate{URL: "http://localhost:8080"},
			Qdrant:    Qdrant{URL: "http://localhost:6334"},
			PGVector:  PGVector{Table: "quill_chunks"},
		},
		Ledger:    Ledger{Backend: "memory", Path: "./data/ledger"},
		Memory:    Memory{Window: 5, TTL: time.Hour},
		Research:  Research{PlannerProvider: "gemini", MaxSteps: 3},
		Telemetry: Telemetry{ServiceName: "go-quill", OTLPProtocol: "grpc"},
	}
}

// Load builds a Config from defaults, the optional YAML file and the
// environment, then validates it.
//
// Example:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
func Load() (Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("QUILL_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile reads path over the defaults without consulting the environment.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Addr = helpers.GetStringFromEnv("QUILL_ADDR", c.Server.Addr)
	c.Server.ReadTimeout = helpers.GetDurationFromEnv("QUILL_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = helpers.GetDurationFromEnv("QUILL_WRITE_TIMEOUT", c.Server.WriteTimeout)

	c.Log.Level = helpers.GetStringFromEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = helpers.GetStringFromEnv("LOG_FORMAT", c.Log.Format)

	c.Chunking.Size = helpers.GetIntFromEnv("CHUNK_SIZE", c.Chunking.Size)
	c.Chunking.Overlap = helpers.GetIntFromEnv("CHUNK_OVERLAP", c.Chunking.Overlap)

	c.Gemini.APIKey = helpers.GetStringFromEnv("GOOGLE_API_KEY", c.Gemini.APIKey)
	c.Gemini.Model = helpers.GetStringFromEnv("GEMINI_MODEL", c.Gemini.Model)
	c.Gemini.EmbeddingModel = helpers.GetStringFromEnv("GEMINI_EMBEDDING_MODEL", c.Gemini.EmbeddingModel)

	c.OpenAI.APIKey = helpers.GetStringFromEnv("OPENAI_API_KEY", c.OpenAI.APIKey)
	c.OpenAI.BaseURL = helpers.GetStringFromEnv("OPENAI_BASE_URL", c.OpenAI.BaseURL)
	c.OpenAI.Model = helpers.GetStringFromEnv("OPENAI_MODEL", c.OpenAI.Model)
	c.OpenAI.EmbeddingModel = helpers.GetStringFromEnv("OPENAI_EMBEDDING_MODEL", c.OpenAI.EmbeddingModel)

	c.Search.APIKey = helpers.GetStringFromEnv("PERPLEXITY_API_KEY", c.Search.APIKey)
	c.Search.BaseURL = helpers.GetStringFromEnv("SEARCH_BASE_URL", c.Search.BaseURL)
	c.Search.Model = helpers.GetStringFromEnv("SEARCH_MODEL", c.Search.Model)

	c.Ollama.Host = helpers.GetStringFromEnv("OLLAMA_HOST", c.Ollama.Host)
	c.Ollama.Model = helpers.GetStringFromEnv("OLLAMA_MODEL", c.Ollama.Model)
	c.Ollama.EmbeddingModel = helpers.GetStringFromEnv("OLLAMA_EMBEDDING_MODEL", c.Ollama.EmbeddingModel)

	c.Embedding.Provider = helpers.GetStringFromEnv("EMBEDDING_PROVIDER", c.Embedding.Provider)
	c.Embedding.CacheTTL = helpers.GetDurationFromEnv("EMBEDDING_CACHE_TTL", c.Embedding.CacheTTL)
	c.Embedding.RateLimit = helpers.GetIntFromEnv("EMBEDDING_RATE_LIMIT", c.Embedding.RateLimit)

	c.Index.Backend = helpers.GetStringFromEnv("INDEX_BACKEND", c.Index.Backend)
	c.Index.Dimension = helpers.GetIntFromEnv("INDEX_DIMENSION", c.Index.Dimension)
	c.Index.Weaviate.URL = helpers.GetStringFromEnv("WEAVIATE_URL", c.Index.Weaviate.URL)
	c.Index.Weaviate.APIKey = helpers.GetStringFromEnv("WEAVIATE_API_KEY", c.Index.Weaviate.APIKey)
	c.Index.Qdrant.URL = helpers.GetStringFromEnv("QDRANT_URL", c.Index.Qdrant.URL)
	c.Index.Qdrant.APIKey = helpers.GetStringFromEnv("QDRANT_API_KEY", c.Index.Qdrant.APIKey)
	c.Index.PGVector.DSN = helpers.GetStringFromEnv("PGVECTOR_DSN", c.Index.PGVector.DSN)
	c.Index.PGVector.Table = helpers.GetStringFromEnv("PGVECTOR_TABLE", c.Index.PGVector.Table)

	c.Ledger.Backend = helpers.GetStringFromEnv("LEDGER_BACKEND", c.Ledger.Backend)
	c.Ledger.Path = helpers.GetStringFromEnv("LEDGER_PATH", c.Ledger.Path)

	c.Memory.Window = helpers.GetIntFromEnv("MEMORY_WINDOW", c.Memory.Window)
	c.Memory.TTL = helpers.GetDurationFromEnv("MEMORY_TTL", c.Memory.TTL)

	c.Research.PlannerProvider = helpers.GetStringFromEnv("RESEARCH_PLANNER", c.Research.PlannerProvider)
	c.Research.MaxSteps = helpers.GetIntFromEnv("RESEARCH_MAX_STEPS", c.Research.MaxSteps)
	c.Research.KeywordDetector = helpers.GetBoolFromEnv("RESEARCH_KEYWORD_DETECTOR", c.Research.KeywordDetector)

	c.Telemetry.ServiceName = helpers.GetStringFromEnv("OTEL_SERVICE_NAME", c.Telemetry.ServiceName)
	c.Telemetry.OTLPEndpoint = helpers.GetStringFromEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.Telemetry.OTLPEndpoint)
	c.Telemetry.OTLPProtocol = helpers.GetStringFromEnv("OTEL_EXPORTER_OTLP_PROTOCOL", c.Telemetry.OTLPProtocol)
}

// Validate reports every problem found, joined into one error.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{errInvalidConfig}, args...)...))
	}

	if c.Chunking.Size <= 0 {
		add("chunking.size must be positive, got %d", c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		add("chunking.overlap must be in [0, size), got %d", c.Chunking.Overlap)
	}
	if !oneOf(c.Index.Backend, indexBackends) {
		add("index.backend %q is not one of %s", c.Index.Backend, strings.Join(indexBackends, ", "))
	}
	if !oneOf(c.Ledger.Backend, ledgerBackends) {
		add("ledger.backend %q is not one of %s", c.Ledger.Backend, strings.Join(ledgerBackends, ", "))
	}
	if !oneOf(c.Embedding.Provider, providers) {
		add("embedding.provider %q is not one of %s", c.Embedding.Provider, strings.Join(providers, ", "))
	}
	if !oneOf(c.Research.PlannerProvider, providers) {
		add("research.planner_provider %q is not one of %s", c.Research.PlannerProvider, strings.Join(providers, ", "))
	}
	if !oneOf(c.Log.Format, logFormats) {
		add("log.format %q is not one of %s", c.Log.Format, strings.Join(logFormats, ", "))
	}
	if c.Index.Dimension <= 0 {
		add("index.dimension must be positive, got %d", c.Index.Dimension)
	}
	if c.Index.Backend == "pgvector" && c.Index.PGVector.DSN == "" {
		add("index.pgvector.dsn is required for the pgvector backend")
	}
	if c.Ledger.Backend == "badger" && c.Ledger.Path == "" {
		add("ledger.path is required for the badger backend")
	}
	if c.Memory.Window <= 0 {
		add("memory.window must be positive, got %d", c.Memory.Window)
	}
	if c.Research.MaxSteps <= 0 {
		add("research.max_steps must be positive, got %d", c.Research.MaxSteps)
	}

	return errors.Join(errs...)
}

// IsInvalid reports whether err came from Validate.
func IsInvalid(err error) bool {
	return errors.Is(err, errInvalidConfig)
}

func oneOf(v string, options []string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}
