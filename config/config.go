package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete scheduler configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Feature       FeatureConfig
	Predictor     PredictorConfig
	Optimizer     OptimizerConfig
	Scheduler     SchedulerConfig
	Observability ObservabilityConfig
	Environment   string

	// BackendRegistryPath points to the YAML file describing the
	// backend pool (identifier, tier, pricing, capacity)
	BackendRegistryPath string

	// EstimatorArtifactPath points to the trained-estimator artifact,
	// loaded once and treated as immutable for the process lifetime
	EstimatorArtifactPath string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration for the reference
// corpus and batch audit records. When ConnectionString is set it
// takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// FeatureConfig holds feature extraction parameters
type FeatureConfig struct {
	// EmbeddingDim is the dimensionality of the hashed embedding
	EmbeddingDim int

	// MaxQueryBytes bounds the accepted query payload size
	MaxQueryBytes int
}

// PredictorConfig holds the calibration parameters of the capability/
// cost predictor. These are tuned offline and must never be hard-coded.
type PredictorConfig struct {
	// TrainedConfidenceThreshold is the confidence above which the
	// trained estimator is used alone, without blending
	TrainedConfidenceThreshold float64

	// RetrievalK is the number of nearest reference records consulted
	// by the retrieval estimator
	RetrievalK int
}

// OptimizerConfig holds assignment-solver parameters
type OptimizerConfig struct {
	// ExactBatchLimit is the batch size up to which the exact
	// branch-and-bound solver runs; larger batches use the greedy
	// heuristic with bounded displacement
	ExactBatchLimit int
}

// SchedulerConfig holds orchestrator parameters
type SchedulerConfig struct {
	// Parallelism bounds the worker pool used for feature extraction
	// and per-pair prediction
	Parallelism int

	// DefaultQualityFloor applies to queries without an explicit floor
	DefaultQualityFloor float64

	// RelaxTolerance is the unassignable fraction above which the
	// orchestrator re-optimizes with relaxed quality floors
	RelaxTolerance float64

	// RelaxStep is the stepwise quality-floor reduction per relaxation
	// round; zero disables relaxation entirely
	RelaxStep float64

	// MaxRelaxSteps bounds the number of relaxation rounds
	MaxRelaxSteps int

	// BatchTimeout abandons a batch that exceeds this duration
	BatchTimeout time.Duration
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or text
}

// New creates a new Config instance by loading environment variables
func New() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8084),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: loadDatabaseConfig(),
		Feature: FeatureConfig{
			EmbeddingDim:  getEnvAsInt("FEATURE_EMBEDDING_DIM", 64),
			MaxQueryBytes: getEnvAsInt("FEATURE_MAX_QUERY_BYTES", 32768),
		},
		Predictor: PredictorConfig{
			TrainedConfidenceThreshold: getEnvAsFloat("PREDICTOR_CONFIDENCE_THRESHOLD", 0.7),
			RetrievalK:                 getEnvAsInt("PREDICTOR_RETRIEVAL_K", 5),
		},
		Optimizer: OptimizerConfig{
			ExactBatchLimit: getEnvAsInt("OPTIMIZER_EXACT_BATCH_LIMIT", 12),
		},
		Scheduler: SchedulerConfig{
			Parallelism:         getEnvAsInt("SCHEDULER_PARALLELISM", 8),
			DefaultQualityFloor: getEnvAsFloat("SCHEDULER_DEFAULT_QUALITY_FLOOR", 0.5),
			RelaxTolerance:      getEnvAsFloat("SCHEDULER_RELAX_TOLERANCE", 0.25),
			RelaxStep:           getEnvAsFloat("SCHEDULER_RELAX_STEP", 0.05),
			MaxRelaxSteps:       getEnvAsInt("SCHEDULER_MAX_RELAX_STEPS", 3),
			BatchTimeout:        getEnvAsDuration("SCHEDULER_BATCH_TIMEOUT", 10*time.Second),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
		BackendRegistryPath:   getEnv("BACKEND_REGISTRY_PATH", "configs/backends.yaml"),
		EstimatorArtifactPath: getEnv("ESTIMATOR_ARTIFACT_PATH", "configs/estimator.yaml"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent
func (c *Config) Validate() error {
	if c.Feature.EmbeddingDim <= 0 {
		return fmt.Errorf("feature embedding dimension must be positive")
	}
	if c.Feature.MaxQueryBytes <= 0 {
		return fmt.Errorf("max query bytes must be positive")
	}
	if c.Predictor.TrainedConfidenceThreshold < 0 || c.Predictor.TrainedConfidenceThreshold > 1 {
		return fmt.Errorf("trained confidence threshold must be in [0,1]")
	}
	if c.Predictor.RetrievalK <= 0 {
		return fmt.Errorf("retrieval k must be positive")
	}
	if c.Scheduler.Parallelism <= 0 {
		return fmt.Errorf("scheduler parallelism must be positive")
	}
	if c.Scheduler.DefaultQualityFloor < 0 || c.Scheduler.DefaultQualityFloor > 1 {
		return fmt.Errorf("default quality floor must be in [0,1]")
	}
	if c.Scheduler.RelaxTolerance < 0 || c.Scheduler.RelaxTolerance > 1 {
		return fmt.Errorf("relax tolerance must be in [0,1]")
	}
	if c.Scheduler.RelaxStep < 0 {
		return fmt.Errorf("relax step must not be negative")
	}
	if c.Scheduler.MaxRelaxSteps < 0 {
		return fmt.Errorf("max relax steps must not be negative")
	}
	if c.Optimizer.ExactBatchLimit < 0 {
		return fmt.Errorf("exact batch limit must not be negative")
	}
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}
	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// DSN returns the PostgreSQL connection string. Uses ConnectionString
// when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Configured reports whether any database settings are present. The
// scheduler can run without a database; the retrieval estimator then
// starts with an empty reference set.
func (c *DatabaseConfig) Configured() bool {
	return c.ConnectionString != "" || c.Host != ""
}

// LogString returns a connection description safe for logging
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		return "connection string (redacted)"
	}
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s", c.Host, c.Port, c.Database, c.User)
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func loadDatabaseConfig() DatabaseConfig {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL != "" {
		return DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		}
	}
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", ""),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "scheduler"),
		Password:        getEnv("DB_PASSWORD", ""),
		Database:        getEnv("DB_NAME", "scheduler"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
