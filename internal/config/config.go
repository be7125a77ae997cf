// Package config 提供配置加载和管理功能
package config

import (
	"time"
)

// Config 应用配置根结构
type Config struct {
	App           AppConfig           `yaml:"app" mapstructure:"app"`
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Database      DatabaseConfig      `yaml:"database" mapstructure:"database"`
	Cache         CacheConfig         `yaml:"cache" mapstructure:"cache"`
	Vector        VectorConfig        `yaml:"vector" mapstructure:"vector"`
	Graph         GraphConfig         `yaml:"graph" mapstructure:"graph"`
	Embedding     EmbeddingConfig     `yaml:"embedding" mapstructure:"embedding"`
	Rerank        RerankConfig        `yaml:"rerank" mapstructure:"rerank"`
	Pipeline      PipelineConfig      `yaml:"pipeline" mapstructure:"pipeline"`
	Relay         RelayConfig         `yaml:"relay" mapstructure:"relay"`
	Search        SearchConfig        `yaml:"search" mapstructure:"search"`
	Ingest        IngestConfig        `yaml:"ingest" mapstructure:"ingest"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
	Security      SecurityConfig      `yaml:"security" mapstructure:"security"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name    string `yaml:"name" mapstructure:"name"`
	Version string `yaml:"version" mapstructure:"version"`
	Env     string `yaml:"env" mapstructure:"env"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTP HTTPServerConfig `yaml:"http" mapstructure:"http"`
}

// HTTPServerConfig HTTP 服务器配置
type HTTPServerConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Postgres PostgresConfig `yaml:"postgres" mapstructure:"postgres"`
}

// PostgresConfig PostgreSQL 配置
type PostgresConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	User            string        `yaml:"user" mapstructure:"user"`
	Password        string        `yaml:"password" mapstructure:"password"`
	Database        string        `yaml:"database" mapstructure:"database"`
	SSLMode         string        `yaml:"ssl_mode" mapstructure:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Redis RedisConfig `yaml:"redis" mapstructure:"redis"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	Password     string        `yaml:"password" mapstructure:"password"`
	DB           int           `yaml:"db" mapstructure:"db"`
	PoolSize     int           `yaml:"pool_size" mapstructure:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

// VectorConfig 向量数据库配置
type VectorConfig struct {
	Milvus MilvusConfig `yaml:"milvus" mapstructure:"milvus"`
}

// MilvusConfig Milvus 配置
type MilvusConfig struct {
	Host               string `yaml:"host" mapstructure:"host"`
	Port               int    `yaml:"port" mapstructure:"port"`
	User               string `yaml:"user" mapstructure:"user"`
	Password           string `yaml:"password" mapstructure:"password"`
	CollectionPrefix   string `yaml:"collection_prefix" mapstructure:"collection_prefix"`
	IndexType          string `yaml:"index_type" mapstructure:"index_type"`
	MetricType         string `yaml:"metric_type" mapstructure:"metric_type"`
	HNSWM              int    `yaml:"hnsw_m" mapstructure:"hnsw_m"`
	HNSWEfConstruction int    `yaml:"hnsw_ef_construction" mapstructure:"hnsw_ef_construction"`
}

// GraphConfig 图数据库配置 (FalkorDB)
type GraphConfig struct {
	Host        string        `yaml:"host" mapstructure:"host"`
	Port        int           `yaml:"port" mapstructure:"port"`
	Password    string        `yaml:"password" mapstructure:"password"`
	GraphName   string        `yaml:"graph_name" mapstructure:"graph_name"`
	DialTimeout time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
}

// EmbeddingConfig 嵌入提供方配置
type EmbeddingConfig struct {
	Endpoint  string        `yaml:"endpoint" mapstructure:"endpoint"`
	APIKey    string        `yaml:"api_key" mapstructure:"api_key"`
	Model     string        `yaml:"model" mapstructure:"model"`
	Dimension int           `yaml:"dimension" mapstructure:"dimension"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// RerankConfig 重排序提供方配置
type RerankConfig struct {
	Enabled  bool          `yaml:"enabled" mapstructure:"enabled"`
	Endpoint string        `yaml:"endpoint" mapstructure:"endpoint"`
	APIKey   string        `yaml:"api_key" mapstructure:"api_key"`
	Model    string        `yaml:"model" mapstructure:"model"`
	Timeout  time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// PipelineConfig 嵌入流水线配置
type PipelineConfig struct {
	MaxBatchSize      int           `yaml:"max_batch_size" mapstructure:"max_batch_size"`
	MaxTokensPerBatch int           `yaml:"max_tokens_per_batch" mapstructure:"max_tokens_per_batch"`
	RetryMax          int           `yaml:"retry_max" mapstructure:"retry_max"`
	PollInterval      time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`
	BreakerThreshold  int           `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldown   time.Duration `yaml:"breaker_cooldown" mapstructure:"breaker_cooldown"`
	StaleClaimAfter   time.Duration `yaml:"stale_claim_after" mapstructure:"stale_claim_after"`
}

// RelayConfig Outbox 中继配置
type RelayConfig struct {
	BatchSize    int           `yaml:"batch_size" mapstructure:"batch_size"`
	MaxAttempts  int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`
}

// SearchConfig 混合检索配置
type SearchConfig struct {
	CandidateLimit  int           `yaml:"candidate_limit" mapstructure:"candidate_limit"`
	RRFK            int           `yaml:"rrf_k" mapstructure:"rrf_k"`
	FulltextWeight  float64       `yaml:"fulltext_weight" mapstructure:"fulltext_weight"`
	VectorWeight    float64       `yaml:"vector_weight" mapstructure:"vector_weight"`
	RerankMin       int           `yaml:"rerank_min" mapstructure:"rerank_min"`
	RerankOverfetch int           `yaml:"rerank_overfetch" mapstructure:"rerank_overfetch"`
	MaxQueryRunes   int           `yaml:"max_query_runes" mapstructure:"max_query_runes"`
	DefaultLimit    int           `yaml:"default_limit" mapstructure:"default_limit"`
	MaxLimit        int           `yaml:"max_limit" mapstructure:"max_limit"`
	SnippetRunes    int           `yaml:"snippet_runes" mapstructure:"snippet_runes"`
	CacheBackend    string        `yaml:"cache_backend" mapstructure:"cache_backend"`
	CacheTTL        time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
	CacheMaxEntries int           `yaml:"cache_max_entries" mapstructure:"cache_max_entries"`
}

// IngestConfig 文档摄入配置
type IngestConfig struct {
	ChunkRunes   int `yaml:"chunk_runes" mapstructure:"chunk_runes"`
	ChunkOverlap int `yaml:"chunk_overlap" mapstructure:"chunk_overlap"`
}

// ObservabilityConfig 可观测性配置
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
	Output string `yaml:"output" mapstructure:"output"`
}

// TracingConfig 追踪配置
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Exporter   string  `yaml:"exporter" mapstructure:"exporter"`
	Endpoint   string  `yaml:"endpoint" mapstructure:"endpoint"`
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Port    int    `yaml:"port" mapstructure:"port"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors" mapstructure:"cors"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerSecond int  `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int  `yaml:"burst" mapstructure:"burst"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" mapstructure:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" mapstructure:"allowed_headers"`
}
