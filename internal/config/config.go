// Package config loads the core's runtime configuration from environment
// variables at startup, following the teacher's ServiceEndpoint env-loader
// pattern (internal/config/config.go's loadServiceEndpointFromEnv), scoped to
// this core's own domain dependencies rather than the teacher's full product
// surface.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the immutable snapshot loaded once at startup (spec §4.11).
// Per-request Options (datasets, scope, budget overrides) overlay a subset of
// this and are passed separately by the caller.
type Config struct {
	Server   ServerConfig
	Services ServicesConfig
	Budget   BudgetConfig
	CRAG     CRAGConfig
	Fusion   FusionConfig
	Logging  LoggingConfig
}

// ServerConfig holds the ambient process-level settings the core itself
// cares about: nothing network-facing (the core owns no network surface per
// spec §1), just request-scoped defaults.
type ServerConfig struct {
	RequestTimeout time.Duration
	DefaultTenant  string
}

// ServiceEndpoint represents a configurable service endpoint that can be
// local or remote, mirroring the teacher's ServiceEndpoint exactly.
type ServiceEndpoint struct {
	Host       string        `yaml:"host"`
	Port       string        `yaml:"port"`
	URL        string        `yaml:"url"`
	Enabled    bool          `yaml:"enabled"`
	Required   bool          `yaml:"required"`
	HealthPath string        `yaml:"health_path"`
	HealthType string        `yaml:"health_type"`
	Timeout    time.Duration `yaml:"timeout"`
	RetryCount int           `yaml:"retry_count"`
	APIKey     string        `yaml:"-"`
}

// ResolvedURL builds the full URL from host:port or returns the URL field if set.
func (e *ServiceEndpoint) ResolvedURL() string {
	if e.URL != "" {
		return e.URL
	}
	if e.Host == "" {
		return ""
	}
	if e.Port == "" {
		return e.Host
	}
	return e.Host + ":" + e.Port
}

// ServicesConfig holds configuration for every backing store and sink this
// core talks to (spec §4.12 domain stack).
type ServicesConfig struct {
	Qdrant     ServiceEndpoint `yaml:"qdrant"`
	Neo4j      ServiceEndpoint `yaml:"neo4j"`
	Redis      ServiceEndpoint `yaml:"redis"`
	PostgreSQL ServiceEndpoint `yaml:"postgresql"`
	Kafka      ServiceEndpoint `yaml:"kafka"`
	RabbitMQ   ServiceEndpoint `yaml:"rabbitmq"`
	MinIO      ServiceEndpoint `yaml:"minio"`
	ChromaDB   ServiceEndpoint `yaml:"chromadb"`
}

// BudgetConfig mirrors budget.Limits' field names so it can be loaded from
// the environment and copied into a budget.Limits field by field; the token
// fields are int here and int64 in budget.Limits.
type BudgetConfig struct {
	MaxLLMCallsPerRequest int
	MaxTokensPerRequest   int
	MaxWallTime           time.Duration
	SoftWarnLLMCalls      int
	SoftWarnTokens        int
}

// CRAGConfig mirrors crag.Config's tunable thresholds.
type CRAGConfig struct {
	MinBestScore     float64
	MinAvgScore      float64
	StrongBestThresh float64
	StrongAvgThresh  float64
	MaxRetryRounds   int
}

// FusionConfig controls RRF and reranking defaults.
type FusionConfig struct {
	RRFK            int
	RerankTopK      int
	RerankModel     string
	RerankEndpoint  string
}

// LoggingConfig controls the logrus setup shared by every package.
type LoggingConfig struct {
	Level  string
	Format string // "text" or "json"
}

// Load builds a Config from environment variables, following the teacher's
// getEnv/getIntEnv/getDurationEnv helper pattern.
func Load() *Config {
	cfg := &Config{
		Server: ServerConfig{
			RequestTimeout: getDurationEnv("REQUEST_TIMEOUT", 30*time.Second),
			DefaultTenant:  getEnv("DEFAULT_TENANT", ""),
		},
		Budget: BudgetConfig{
			MaxLLMCallsPerRequest: getIntEnv("BUDGET_MAX_LLM_CALLS", 12),
			MaxTokensPerRequest:   getIntEnv("BUDGET_MAX_TOKENS", 32000),
			MaxWallTime:           getDurationEnv("BUDGET_MAX_WALL_TIME", 30*time.Second),
			SoftWarnLLMCalls:      getIntEnv("BUDGET_SOFT_WARN_LLM_CALLS", 8),
			SoftWarnTokens:        getIntEnv("BUDGET_SOFT_WARN_TOKENS", 20000),
		},
		CRAG: CRAGConfig{
			MinBestScore:     getFloatEnv("CRAG_MIN_BEST_SCORE", 0.35),
			MinAvgScore:      getFloatEnv("CRAG_MIN_AVG_SCORE", 0.25),
			StrongBestThresh: getFloatEnv("CRAG_STRONG_BEST_THRESHOLD", 0.65),
			StrongAvgThresh:  getFloatEnv("CRAG_STRONG_AVG_THRESHOLD", 0.50),
			MaxRetryRounds:   getIntEnv("CRAG_MAX_RETRY_ROUNDS", 2),
		},
		Fusion: FusionConfig{
			RRFK:           getIntEnv("FUSION_RRF_K", 60),
			RerankTopK:     getIntEnv("FUSION_RERANK_TOP_K", 20),
			RerankModel:    getEnv("FUSION_RERANK_MODEL", "BAAI/bge-reranker-v2-m3"),
			RerankEndpoint: getEnv("FUSION_RERANK_ENDPOINT", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
		Services: DefaultServicesConfig(),
	}

	LoadServicesFromEnv(&cfg.Services)
	return cfg
}

// DefaultServicesConfig returns the default configuration for every
// infrastructure service this core can be wired to.
func DefaultServicesConfig() ServicesConfig {
	return ServicesConfig{
		Qdrant: ServiceEndpoint{
			Host: "localhost", Port: "6334", Enabled: true, Required: true,
			HealthType: "grpc", Timeout: 5 * time.Second, RetryCount: 3,
		},
		Neo4j: ServiceEndpoint{
			Host: "localhost", Port: "7687", Enabled: true, Required: false,
			HealthType: "bolt", Timeout: 5 * time.Second, RetryCount: 3,
		},
		Redis: ServiceEndpoint{
			Host: "localhost", Port: "6379", Enabled: true, Required: false,
			HealthType: "redis", Timeout: 5 * time.Second, RetryCount: 3,
		},
		PostgreSQL: ServiceEndpoint{
			Host: "localhost", Port: "5432", Enabled: false, Required: false,
			HealthType: "pgx", Timeout: 10 * time.Second, RetryCount: 3,
		},
		Kafka: ServiceEndpoint{
			Host: "localhost", Port: "9092", Enabled: false, Required: false,
			HealthType: "tcp", Timeout: 5 * time.Second, RetryCount: 3,
		},
		RabbitMQ: ServiceEndpoint{
			Host: "localhost", Port: "5672", Enabled: false, Required: false,
			HealthType: "tcp", Timeout: 5 * time.Second, RetryCount: 3,
		},
		MinIO: ServiceEndpoint{
			Host: "localhost", Port: "9000", Enabled: false, Required: false,
			HealthType: "http", HealthPath: "/minio/health/live", Timeout: 5 * time.Second, RetryCount: 3,
		},
		ChromaDB: ServiceEndpoint{
			Host: "localhost", Port: "8001", Enabled: false, Required: false,
			HealthType: "http", HealthPath: "/api/v2/heartbeat", Timeout: 5 * time.Second, RetryCount: 3,
		},
	}
}

// LoadServicesFromEnv applies environment variable overrides to the services
// config. Environment variables follow the pattern SVC_<SERVICE>_<FIELD>.
func LoadServicesFromEnv(cfg *ServicesConfig) {
	loadServiceEndpointFromEnv("SVC_QDRANT", &cfg.Qdrant)
	loadServiceEndpointFromEnv("SVC_NEO4J", &cfg.Neo4j)
	loadServiceEndpointFromEnv("SVC_REDIS", &cfg.Redis)
	loadServiceEndpointFromEnv("SVC_POSTGRESQL", &cfg.PostgreSQL)
	loadServiceEndpointFromEnv("SVC_KAFKA", &cfg.Kafka)
	loadServiceEndpointFromEnv("SVC_RABBITMQ", &cfg.RabbitMQ)
	loadServiceEndpointFromEnv("SVC_MINIO", &cfg.MinIO)
	loadServiceEndpointFromEnv("SVC_CHROMADB", &cfg.ChromaDB)
}

// LoadServicesFromYAML overlays cfg with service endpoints read from a YAML
// manifest (e.g. a deployment's docker-compose-adjacent services.yaml),
// mirroring the teacher's own ServiceEndpoint YAML tags. Missing fields in
// the file leave cfg's existing values untouched, since yaml.Unmarshal only
// sets fields present in the document. Call before LoadServicesFromEnv so
// environment variables still take precedence over the file.
func LoadServicesFromYAML(data []byte, cfg *ServicesConfig) error {
	return yaml.Unmarshal(data, cfg)
}

func loadServiceEndpointFromEnv(prefix string, ep *ServiceEndpoint) {
	if v := os.Getenv(prefix + "_HOST"); v != "" {
		ep.Host = v
	}
	if v := os.Getenv(prefix + "_PORT"); v != "" {
		ep.Port = v
	}
	if v := os.Getenv(prefix + "_URL"); v != "" {
		ep.URL = v
	}
	if v := os.Getenv(prefix + "_API_KEY"); v != "" {
		ep.APIKey = v
	}
	if v := os.Getenv(prefix + "_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			ep.Enabled = b
		}
	}
	if v := os.Getenv(prefix + "_REQUIRED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			ep.Required = b
		}
	}
	if v := os.Getenv(prefix + "_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			ep.Timeout = d
		}
	}
	if v := os.Getenv(prefix + "_RETRY_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			ep.RetryCount = n
		}
	}
}

// AllEndpoints returns all service endpoints as a name->endpoint map.
func (s *ServicesConfig) AllEndpoints() map[string]ServiceEndpoint {
	return map[string]ServiceEndpoint{
		"qdrant":     s.Qdrant,
		"neo4j":      s.Neo4j,
		"redis":      s.Redis,
		"postgresql": s.PostgreSQL,
		"kafka":      s.Kafka,
		"rabbitmq":   s.RabbitMQ,
		"minio":      s.MinIO,
		"chromadb":   s.ChromaDB,
	}
}

// RequiredEndpoints returns only the enabled and required service endpoints.
func (s *ServicesConfig) RequiredEndpoints() map[string]ServiceEndpoint {
	required := make(map[string]ServiceEndpoint)
	for name, ep := range s.AllEndpoints() {
		if ep.Enabled && ep.Required {
			required[name] = ep
		}
	}
	return required
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
