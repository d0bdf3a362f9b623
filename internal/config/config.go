// Package config loads the engine's process-wide configuration, following the
// teacher's viper-based LoadConfig with ${ENV_VAR} interpolation.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config is the engine's top-level, immutable configuration tree. It is built
// once at startup by LoadConfig and passed explicitly through the dig
// container; nothing in the core reads viper directly after this point.
type Config struct {
	Embedding *EmbeddingConfig `yaml:"embedding" json:"embedding"`
	Retrieval *RetrievalConfig `yaml:"retrieval" json:"retrieval"`
	Cache     *CacheConfig     `yaml:"cache" json:"cache"`
	Episodic  *EpisodicConfig  `yaml:"episodic" json:"episodic"`
	Optimizer *OptimizerConfig `yaml:"optimizer" json:"optimizer"`
	Store     *StoreConfig     `yaml:"store" json:"store"`
	Pool      *PoolConfig      `yaml:"pool" json:"pool"`
}

// EmbeddingConfig controls the Embedding Service (spec.md §6).
type EmbeddingConfig struct {
	DimSemantic int    `yaml:"dim_semantic" json:"dim_semantic" default:"1536"`
	DimEpisodic int    `yaml:"dim_episodic" json:"dim_episodic" default:"384"`
	Source      string `yaml:"source" json:"source"` // "openai" | "ollama" | "fallback"
	BaseURL     string `yaml:"base_url" json:"base_url"`
	ModelName   string `yaml:"model_name" json:"model_name"`
	APIKey      string `yaml:"api_key" json:"api_key"`
}

// RetrievalConfig controls the Hybrid Retriever (spec.md §4.D, §6).
type RetrievalConfig struct {
	KFetchMin    int     `yaml:"k_fetch_min" json:"k_fetch_min" default:"50"`
	WeightVector float64 `yaml:"weight_vector" json:"weight_vector" default:"0.7"`
	WeightLex    float64 `yaml:"weight_lex" json:"weight_lex" default:"0.3"`
	RRFConstant  int     `yaml:"rrf_constant" json:"rrf_constant" default:"60"`
	HalfLifeDays float64 `yaml:"half_life_days" json:"half_life_days" default:"30"`
}

// CacheConfig controls the Semantic Cache (spec.md §4.F, §6).
type CacheConfig struct {
	PersonaTTLSeconds      int     `yaml:"persona_ttl_s" json:"persona_ttl_s" default:"3600"`
	QueryTTLSeconds        int     `yaml:"query_ttl_s" json:"query_ttl_s" default:"1800"`
	InputTTLSeconds        int     `yaml:"input_ttl_s" json:"input_ttl_s" default:"300"`
	SemanticMatchThreshold float64 `yaml:"semantic_match_threshold" json:"semantic_match_threshold" default:"0.85"`
	MaxQueryPerUser        int     `yaml:"max_query_per_user" json:"max_query_per_user" default:"10"`
}

// EpisodicConfig controls the Episodic Pipeline (spec.md §4.E, §6).
type EpisodicConfig struct {
	WindowSeconds     int    `yaml:"window_seconds" json:"window_seconds" default:"21600"`
	IdleGapSeconds    int    `yaml:"idle_gap_seconds" json:"idle_gap_seconds" default:"120"`
	SuperChatCap      int    `yaml:"super_chat_cap" json:"super_chat_cap" default:"50"`
	DeepDiveCap       int    `yaml:"deep_dive_cap" json:"deep_dive_cap" default:"30"`
	RetentionDays     int    `yaml:"retention_days" json:"retention_days" default:"30"`
	CompressAfterDays int    `yaml:"compress_after_days" json:"compress_after_days" default:"90"`
	EpisodizeCron     string `yaml:"episodize_cron" json:"episodize_cron" default:"0 */6 * * *"`
	InstancizeCron    string `yaml:"instancize_cron" json:"instancize_cron" default:"0 3 * * *"`
	GroupRetryBudget  int    `yaml:"group_retry_budget" json:"group_retry_budget" default:"3"`
}

// OptimizerConfig controls the Context Optimizer (spec.md §4.G, §6).
type OptimizerConfig struct {
	Profile             string  `yaml:"profile" json:"profile" default:"balanced"`
	SimilarityThreshold float64 `yaml:"similarity_threshold" json:"similarity_threshold" default:"0.80"`
	ContradictionLo     float64 `yaml:"contradiction_lo" json:"contradiction_lo" default:"0.70"`
	ContradictionHi     float64 `yaml:"contradiction_hi" json:"contradiction_hi" default:"0.90"`
	MaxPerSource        int     `yaml:"max_per_source" json:"max_per_source" default:"3"`
	EntropyMin          float64 `yaml:"entropy_min" json:"entropy_min" default:"0.3"`
	MinContentLength    int     `yaml:"min_content_length" json:"min_content_length" default:"10"`
	CompressionWindow   int     `yaml:"context_window" json:"context_window" default:"1"`
	CompressTokenShare  float64 `yaml:"compress_token_share" json:"compress_token_share" default:"0.25"`
	RerankThresholdBase float64 `yaml:"rerank_threshold_base" json:"rerank_threshold_base" default:"0.65"`
	MaxIterations       int     `yaml:"max_iterations" json:"max_iterations" default:"3"`
	MinKept             int     `yaml:"min_kept" json:"min_kept" default:"3"`
	MaxContextTokens    int     `yaml:"max_context_tokens" json:"max_context_tokens" default:"4000"`
	MaxCandidates       int     `yaml:"max_candidates" json:"max_candidates" default:"200"`
}

// StoreConfig selects and configures the Vector Store backend.
type StoreConfig struct {
	Driver string `yaml:"driver" json:"driver"` // "postgres" | "qdrant" | "memory"
}

// PoolConfig bounds shared connection pools (spec.md §5 "Shared resources").
type PoolConfig struct {
	MaxConnections int           `yaml:"max_connections" json:"max_connections" default:"20"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout" json:"acquire_timeout" default:"5s"`
}

// LoadConfig reads config.yaml (searched in ".", "./config", "$HOME/.layeredmemory",
// "/etc/layeredmemory/"), interpolates ${ENV_VAR} references, unmarshals into
// Config and applies defaults for any field left unset.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("$HOME/.layeredmemory")
	viper.AddConfigPath("/etc/layeredmemory/")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		content, err := os.ReadFile(used)
		if err != nil {
			return nil, fmt.Errorf("error reading config file content: %w", err)
		}
		re := regexp.MustCompile(`\${([^}]+)}`)
		resolved := re.ReplaceAllStringFunc(string(content), func(match string) string {
			envVar := match[2 : len(match)-1]
			if value := os.Getenv(envVar); value != "" {
				return value
			}
			return match
		})
		if err := viper.ReadConfig(strings.NewReader(resolved)); err != nil {
			return nil, fmt.Errorf("error re-reading interpolated config: %w", err)
		}
	}

	cfg := Default()
	if err := viper.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
	}); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	return cfg, nil
}

// Default returns a Config populated with every default from spec.md §6.
func Default() *Config {
	return &Config{
		Embedding: &EmbeddingConfig{DimSemantic: 1536, DimEpisodic: 384, Source: "fallback"},
		Retrieval: &RetrievalConfig{KFetchMin: 50, WeightVector: 0.7, WeightLex: 0.3, RRFConstant: 60, HalfLifeDays: 30},
		Cache: &CacheConfig{
			PersonaTTLSeconds: 3600, QueryTTLSeconds: 1800, InputTTLSeconds: 300,
			SemanticMatchThreshold: 0.85, MaxQueryPerUser: 10,
		},
		Episodic: &EpisodicConfig{
			WindowSeconds: 21600, IdleGapSeconds: 120, SuperChatCap: 50, DeepDiveCap: 30,
			RetentionDays: 30, CompressAfterDays: 90,
			EpisodizeCron: "0 */6 * * *", InstancizeCron: "0 3 * * *", GroupRetryBudget: 3,
		},
		Optimizer: &OptimizerConfig{
			Profile: "balanced", SimilarityThreshold: 0.80, ContradictionLo: 0.70, ContradictionHi: 0.90,
			MaxPerSource: 3, EntropyMin: 0.3, MinContentLength: 10, CompressionWindow: 1,
			CompressTokenShare: 0.25, RerankThresholdBase: 0.65, MaxIterations: 3, MinKept: 3,
			MaxContextTokens: 4000, MaxCandidates: 200,
		},
		Store: &StoreConfig{Driver: "memory"},
		Pool:  &PoolConfig{MaxConnections: 20, AcquireTimeout: 5 * time.Second},
	}
}
