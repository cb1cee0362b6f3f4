package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig
	SQLite       SQLiteConfig
	Redis        RedisConfig
	Milvus       MilvusConfig
	Neo4j        Neo4jConfig
	LLM          LLMConfig
	CrossEncoder CrossEncoderConfig
	Retrieval    RetrievalConfig
	Fusion       FusionConfig
	Evaluator    EvaluatorConfig
	Cache        CacheConfig
	Lexicon      LexiconConfig
	Features     FeaturesConfig
	Logging      LoggingConfig
}

type ServerConfig struct {
	Host                 string
	Port                 int
	ReadTimeout          int
	WriteTimeout         int
	BodyLimit            int
	Environment          string
	MaxRequestsPerMinute int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type MilvusConfig struct {
	Endpoint       string
	APIKey         string
	CollectionName string
	VectorDim      int
}

type Neo4jConfig struct {
	Enabled  bool
	URI      string
	Username string
	Password string
	Database string
}

type LLMConfig struct {
	Provider       string
	Model          string
	APIKey         string
	Temperature    float32
	MaxTokens      int
	EmbeddingModel string
	EmbeddingDim   int
}

type CrossEncoderConfig struct {
	Endpoint   string
	TimeoutSec int
}

// RetrievalConfig carries the empirical constants of the retrieval pipeline.
// Values are tuned, not derived; override via config file or env.
type RetrievalConfig struct {
	TopK                  int
	MinScore              float64
	ClassifyTimeoutSec    int
	ChunkTimeoutSec       int
	EmbedTimeoutSec       int
	LLMFallbackThreshold  float64
	QACandidateLimit      int
	QASimilarityFloor     float64
	DirectAnswerThreshold float64
	QACacheTopN           int
	QAReturnTopN          int
	ContextMaxChars       int
	GraphExpansionLimit   int
	GraphRelevanceFactor  float64
}

type FusionConfig struct {
	ChunkWeight  float64
	KBWeight     float64
	QAWeight     float64
	ChunkLimit   int
	QALimit      int
	QAFloor      float64
	RRFConstant  int
	DefaultStyle string
}

type EvaluatorConfig struct {
	IncorrectThreshold float64
	CorrectThreshold   float64
	FilterThreshold    float64
}

type CacheConfig struct {
	ClassificationTTLHours int
	QASimilarityTTLHours   int
	EmbeddingTTLHours      int
}

type LexiconConfig struct {
	Path string
}

type FeaturesConfig struct {
	Defaults map[string]bool
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func (c RetrievalConfig) ClassifyTimeout() time.Duration {
	return time.Duration(c.ClassifyTimeoutSec) * time.Second
}

func (c RetrievalConfig) ChunkTimeout() time.Duration {
	return time.Duration(c.ChunkTimeoutSec) * time.Second
}

func (c RetrievalConfig) EmbedTimeout() time.Duration {
	return time.Duration(c.EmbedTimeoutSec) * time.Second
}

func (c CacheConfig) ClassificationTTL() time.Duration {
	return time.Duration(c.ClassificationTTLHours) * time.Hour
}

func (c CacheConfig) QASimilarityTTL() time.Duration {
	return time.Duration(c.QASimilarityTTLHours) * time.Hour
}

func (c CacheConfig) EmbeddingTTL() time.Duration {
	return time.Duration(c.EmbeddingTTLHours) * time.Hour
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/tutor-agent")

	viper.SetEnvPrefix("TUTOR_AGENT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 90)
	viper.SetDefault("server.bodyLimit", 1048576)
	viper.SetDefault("server.environment", "development")
	viper.SetDefault("server.maxRequestsPerMinute", 120)

	viper.SetDefault("sqlite.path", "./data/tutor.db")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("milvus.endpoint", "localhost:19530")
	viper.SetDefault("milvus.collectionName", "course_chunks")
	viper.SetDefault("milvus.vectorDim", 1536)

	viper.SetDefault("neo4j.enabled", false)
	viper.SetDefault("neo4j.uri", "bolt://localhost:7687")
	viper.SetDefault("neo4j.username", "neo4j")
	viper.SetDefault("neo4j.password", "password")
	viper.SetDefault("neo4j.database", "neo4j")

	viper.SetDefault("llm.provider", "openai")
	viper.SetDefault("llm.model", "gpt-4o-mini")
	viper.SetDefault("llm.temperature", 0.1)
	viper.SetDefault("llm.maxTokens", 512)
	viper.SetDefault("llm.embeddingModel", "text-embedding-3-small")
	viper.SetDefault("llm.embeddingDim", 1536)

	viper.SetDefault("crossencoder.endpoint", "http://localhost:8501")
	viper.SetDefault("crossencoder.timeoutSec", 30)

	viper.SetDefault("retrieval.topK", 5)
	viper.SetDefault("retrieval.minScore", 0.3)
	viper.SetDefault("retrieval.classifyTimeoutSec", 10)
	viper.SetDefault("retrieval.chunkTimeoutSec", 60)
	viper.SetDefault("retrieval.embedTimeoutSec", 30)
	viper.SetDefault("retrieval.llmFallbackThreshold", 0.7)
	viper.SetDefault("retrieval.qaCandidateLimit", 50)
	viper.SetDefault("retrieval.qaSimilarityFloor", 0.75)
	viper.SetDefault("retrieval.directAnswerThreshold", 0.90)
	viper.SetDefault("retrieval.qaCacheTopN", 10)
	viper.SetDefault("retrieval.qaReturnTopN", 5)
	viper.SetDefault("retrieval.contextMaxChars", 8000)
	viper.SetDefault("retrieval.graphExpansionLimit", 3)
	viper.SetDefault("retrieval.graphRelevanceFactor", 0.6)

	viper.SetDefault("fusion.chunkWeight", 0.4)
	viper.SetDefault("fusion.kbWeight", 0.3)
	viper.SetDefault("fusion.qaWeight", 0.3)
	viper.SetDefault("fusion.chunkLimit", 8)
	viper.SetDefault("fusion.qaLimit", 3)
	viper.SetDefault("fusion.qaFloor", 0.85)
	viper.SetDefault("fusion.rrfConstant", 60)
	viper.SetDefault("fusion.defaultStyle", "weighted")

	viper.SetDefault("evaluator.incorrectThreshold", 0.3)
	viper.SetDefault("evaluator.correctThreshold", 0.7)
	viper.SetDefault("evaluator.filterThreshold", 0.5)

	viper.SetDefault("cache.classificationTTLHours", 168)
	viper.SetDefault("cache.qaSimilarityTTLHours", 720)
	viper.SetDefault("cache.embeddingTTLHours", 24)

	viper.SetDefault("lexicon.path", "")

	viper.SetDefault("features.defaults", map[string]bool{
		"retrieval":                 true,
		"retrieval.knowledge_base":  true,
		"retrieval.qa_pairs":        true,
		"retrieval.graph_expansion": false,
		"evaluation":                true,
		"evaluation.reranker":       false,
	})

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
