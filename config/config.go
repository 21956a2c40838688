// Package config defines the environment-driven service configuration
package config

import (
	"fmt"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"rubromatch-api"`
	Port                          int      `env:"PORT" env-default:"3004"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"30"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	MaxHeaderBytes                int      `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST"`

	// Reference catalog
	CatalogPath              string `env:"CATALOG_PATH" env-default:"data/wbs_catalog.csv"`
	CatalogCodeColumn        string `env:"CATALOG_CODE_COLUMN" env-default:"codigo"`
	CatalogDescriptionColumn string `env:"CATALOG_DESCRIPTION_COLUMN" env-default:"descripcion"`
	CatalogUnitColumn        string `env:"CATALOG_UNIT_COLUMN" env-default:"unidad"`
	CatalogCategoryColumn    string `env:"CATALOG_CATEGORY_COLUMN" env-default:"categoria"`
	UnitSynonymsPath         string `env:"UNIT_SYNONYMS_PATH" env-default:""`

	// Embedding backend
	EmbeddingBaseURL        string        `env:"EMBEDDING_BASE_URL" env-default:"http://localhost:11434"`
	EmbeddingModel          string        `env:"EMBEDDING_MODEL" env-default:"nomic-embed-text"`
	EmbeddingDimensions     int           `env:"EMBEDDING_DIMENSIONS" env-default:"768"`
	EmbeddingTimeout        time.Duration `env:"EMBEDDING_TIMEOUT" env-default:"30s"`
	EmbeddingBatchSize      int           `env:"EMBEDDING_BATCH_SIZE" env-default:"32"`
	EmbeddingBatchTimeout   time.Duration `env:"EMBEDDING_BATCH_TIMEOUT" env-default:"60s"`
	EmbeddingWorkerCount    int           `env:"EMBEDDING_WORKER_COUNT" env-default:"4"`
	EmbeddingCacheDir       string        `env:"EMBEDDING_CACHE_DIR" env-default:".cache/embeddings"`

	// Matching
	MatchThreshold        float64 `env:"MATCH_THRESHOLD" env-default:"0.75"`
	AmbiguityMargin       float64 `env:"MATCH_AMBIGUITY_MARGIN" env-default:"0.05"`
	ManualReviewThreshold float64 `env:"MATCH_MANUAL_REVIEW_THRESHOLD" env-default:"0.50"`
	FuzzyHighThreshold    float64 `env:"FUZZY_HIGH_THRESHOLD" env-default:"80"`
	MatchTopK             int     `env:"MATCH_TOP_K" env-default:"5"`
	MatchWorkerCount      int     `env:"MATCH_WORKER_COUNT" env-default:"4"`
	IndexApproxThreshold  int     `env:"INDEX_APPROX_THRESHOLD" env-default:"1000"`

	// Scoring weights
	WeightSemantic float64 `env:"WEIGHT_SEMANTIC" env-default:"0.70"`
	WeightFuzzy    float64 `env:"WEIGHT_FUZZY" env-default:"0.20"`
	WeightCode     float64 `env:"WEIGHT_CODE" env-default:"0.05"`
	WeightUnit     float64 `env:"WEIGHT_UNIT" env-default:"0.05"`

	// Deduplication
	DedupeEnableMerge         bool    `env:"DEDUPE_ENABLE_MERGE" env-default:"true"`
	DedupeEnableSplit         bool    `env:"DEDUPE_ENABLE_SPLIT" env-default:"true"`
	DedupeEnableHash          bool    `env:"DEDUPE_ENABLE_HASH" env-default:"true"`
	DedupeNearDuplicateMerge  bool    `env:"DEDUPE_NEAR_DUPLICATE_MERGE" env-default:"false"`
	DedupeSimilarityThreshold float64 `env:"DEDUPE_SIMILARITY_THRESHOLD" env-default:"0.95"`
	DedupeWorkerCount         int     `env:"DEDUPE_WORKER_COUNT" env-default:"4"`

	// Kafka Consumer (extracted rubro batches - ingestion)
	KafkaBrokers         []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaInputTopic      string   `env:"KAFKA_INPUT_TOPIC" env-default:"extracted-rubros"`
	KafkaConsumerGroup   string   `env:"KAFKA_CONSUMER_GROUP" env-default:"rubromatch-consumer"`
	KafkaConsumerEnabled bool     `env:"KAFKA_CONSUMER_ENABLED" env-default:"true"`

	// Kafka Producer settings
	KafkaOutputTopic  string `env:"KAFKA_OUTPUT_TOPIC" env-default:"rubro-events"`
	KafkaBatchSize    int    `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout int    `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks int    `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression  string `env:"KAFKA_COMPRESSION" env-default:"snappy"`
}

// Load reads configuration from the environment, with .env as an
// optional local override
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to bind config from environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// weightSumTolerance allows floating point drift when validating weights
const weightSumTolerance = 0.01

// Validate rejects inconsistent configurations at startup
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	sum := c.WeightSemantic + c.WeightFuzzy + c.WeightCode + c.WeightUnit
	if sum < 1.0-weightSumTolerance || sum > 1.0+weightSumTolerance {
		return fmt.Errorf("scoring weights must sum to 1.0, got %f", sum)
	}
	if c.MatchThreshold <= 0 || c.MatchThreshold > 1 {
		return fmt.Errorf("MATCH_THRESHOLD %f out of range (0,1]", c.MatchThreshold)
	}
	if c.AmbiguityMargin < 0 || c.AmbiguityMargin >= c.MatchThreshold {
		return fmt.Errorf("MATCH_AMBIGUITY_MARGIN %f must be in [0, MATCH_THRESHOLD)", c.AmbiguityMargin)
	}
	if c.ManualReviewThreshold < 0 || c.ManualReviewThreshold > c.MatchThreshold {
		return fmt.Errorf("MATCH_MANUAL_REVIEW_THRESHOLD %f must be in [0, MATCH_THRESHOLD]", c.ManualReviewThreshold)
	}
	if c.FuzzyHighThreshold < 0 || c.FuzzyHighThreshold > 100 {
		return fmt.Errorf("FUZZY_HIGH_THRESHOLD %f out of range [0,100]", c.FuzzyHighThreshold)
	}
	if c.MatchTopK < 1 {
		return fmt.Errorf("MATCH_TOP_K must be at least 1, got %d", c.MatchTopK)
	}
	if c.DedupeSimilarityThreshold <= 0 || c.DedupeSimilarityThreshold > 1 {
		return fmt.Errorf("DEDUPE_SIMILARITY_THRESHOLD %f out of range (0,1]", c.DedupeSimilarityThreshold)
	}
	if c.EmbeddingBatchSize < 1 {
		return fmt.Errorf("EMBEDDING_BATCH_SIZE must be at least 1, got %d", c.EmbeddingBatchSize)
	}
	return nil
}
