package config

import (
    "os"
    "strconv"
    "strings"
    "time"

    "github.com/joho/godotenv"
    "github.com/rs/zerolog/log"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
    Level        string
    Pretty       bool
    File         string
    MaxSizeMB    int
    MaxBackups   int
    MaxAgeDays   int
    Compress     bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
    Send          bool
    APIKey        string
    OrgID         string
    Dataset       string
    FlushInterval time.Duration
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
    Port            string
    MaxUploadMB     int64
    ReadTimeout     time.Duration
    WriteTimeout    time.Duration
    ShutdownTimeout time.Duration
    TrustProxy      bool // honour X-Forwarded-For when fingerprinting callers
}

// RedisConfig defines Redis connectivity. An empty URL disables Redis; the
// usage ledger then counts locally and job status stays in memory.
type RedisConfig struct {
    URL       string
    StatusTTL time.Duration
}

// UsageConfig defines the per-tool usage quota.
type UsageConfig struct {
    Quota         int64
    Period        time.Duration
    KeyPrefix     string
    MaxInflight   int
    BreakerBase   time.Duration // first cooldown after a remote counter failure
    BreakerMax    time.Duration
}

// EngineConfig defines assembly engine behaviour.
type EngineConfig struct {
    JPEGQuality      int
    ParseConcurrency int
    RelaxedPDF       bool
    PDFSizeHintMB    int64
    ImageSizeHintMB  int64
    PreviewDPI       float64
    PreviewMaxDPI    float64
}

// StorageConfig selects where produced artifacts are published besides the
// HTTP response.
type StorageConfig struct {
    Sink            string // "none"|"local"|"s3"|"gcs"
    LocalDir        string
    Retention       time.Duration
    Prefix          string
    S3Bucket        string
    S3Region        string
    S3AccessKey     string
    S3SecretKey     string
    S3Endpoint      string
    GCSBucket       string
}

// Config is the top-level configuration.
type Config struct {
    Logging LoggingConfig
    Axiom   AxiomConfig
    Server  ServerConfig
    Redis   RedisConfig
    Usage   UsageConfig
    Engine  EngineConfig
    Storage StorageConfig
}

// Load reads an optional .env file and then the environment.
func Load() Config {
    if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
        log.Warn().Err(err).Msg("failed to read .env file")
    }
    return FromEnv()
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
    cfg := Config{}

    // Logging defaults
    cfg.Logging = LoggingConfig{
        Level:      getEnv("LOG_LEVEL", "info"),
        Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
        File:       getEnv("LOG_FILE", "logs/pdfassembler.log"),
        MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
        MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
        MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
        Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
    }

    // Axiom defaults
    baseDataset := getEnv("AXIOM_DATASET", "dev")
    cfg.Axiom = AxiomConfig{
        Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
        APIKey:        getEnv("AXIOM_API_KEY", ""),
        OrgID:         getEnv("AXIOM_ORG_ID", ""),
        Dataset:       baseDataset + "_pdfassembler",
        FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
    }

    cfg.Server = ServerConfig{
        Port:            getEnv("PORT", "8080"),
        MaxUploadMB:     int64(parseInt(getEnv("MAX_UPLOAD_MB", "64"), 64)),
        ReadTimeout:     parseDuration(getEnv("HTTP_READ_TIMEOUT", "60s"), 60*time.Second),
        WriteTimeout:    parseDuration(getEnv("HTTP_WRITE_TIMEOUT", "120s"), 120*time.Second),
        ShutdownTimeout: parseDuration(getEnv("HTTP_SHUTDOWN_TIMEOUT", "15s"), 15*time.Second),
        TrustProxy:      parseBool(getEnv("TRUST_PROXY", "false")),
    }

    cfg.Redis = RedisConfig{
        URL:       getEnv("REDIS_URL", ""),
        StatusTTL: parseDuration(getEnv("JOB_STATUS_TTL", "24h"), 24*time.Hour),
    }

    cfg.Usage = UsageConfig{
        Quota:       int64(parseInt(getEnv("USAGE_QUOTA", "3"), 3)),
        Period:      parseDuration(getEnv("USAGE_PERIOD", "24h"), 24*time.Hour),
        KeyPrefix:   getEnv("USAGE_KEY_PREFIX", "usage"),
        MaxInflight: parseInt(getEnv("USAGE_MAX_INFLIGHT", "1"), 1),
        BreakerBase: parseDuration(getEnv("USAGE_BREAKER_BASE", "5s"), 5*time.Second),
        BreakerMax:  parseDuration(getEnv("USAGE_BREAKER_MAX", "2m"), 2*time.Minute),
    }
    if cfg.Usage.Period <= 0 { cfg.Usage.Period = 24 * time.Hour }

    cfg.Engine = EngineConfig{
        JPEGQuality:      parseInt(getEnv("JPEG_QUALITY", "92"), 92),
        ParseConcurrency: parseInt(getEnv("PARSE_CONCURRENCY", "4"), 4),
        RelaxedPDF:       parseBool(getEnv("PDF_RELAXED_VALIDATION", "true")),
        PDFSizeHintMB:    int64(parseInt(getEnv("PDF_SIZE_HINT_MB", "50"), 50)),
        ImageSizeHintMB:  int64(parseInt(getEnv("IMAGE_SIZE_HINT_MB", "20"), 20)),
        PreviewDPI:       parseFloat(getEnv("PREVIEW_DPI", "72"), 72),
        PreviewMaxDPI:    parseFloat(getEnv("PREVIEW_MAX_DPI", "200"), 200),
    }
    if cfg.Engine.JPEGQuality < 1 || cfg.Engine.JPEGQuality > 100 { cfg.Engine.JPEGQuality = 92 }
    if cfg.Engine.ParseConcurrency < 1 { cfg.Engine.ParseConcurrency = 1 }

    cfg.Storage = StorageConfig{
        Sink:        strings.ToLower(getEnv("ARTIFACT_SINK", "none")),
        LocalDir:    getEnv("ARTIFACT_DIR", "/tmp/pdfassembler"),
        Retention:   parseDuration(getEnv("ARTIFACT_RETENTION", "24h"), 24*time.Hour),
        Prefix:      getEnv("ARTIFACT_PREFIX", "artifacts"),
        S3Bucket:    getEnv("S3_BUCKET", ""),
        S3Region:    getEnv("AWS_REGION", "us-east-1"),
        S3AccessKey: getEnv("AWS_ACCESS_KEY_ID", ""),
        S3SecretKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
        S3Endpoint:  getEnv("S3_ENDPOINT", ""),
        GCSBucket:   getEnv("GCS_BUCKET", ""),
    }

    return cfg
}

// Helpers
func getEnv(key, def string) string {
    if v := os.Getenv(key); v != "" {
        return v
    }
    return def
}

func parseInt(s string, def int) int {
    if s == "" { return def }
    if n, err := strconv.Atoi(s); err == nil { return n }
    return def
}

func parseFloat(s string, def float64) float64 {
    if s == "" { return def }
    if f, err := strconv.ParseFloat(s, 64); err == nil { return f }
    return def
}

func parseBool(s string) bool {
    v := strings.ToLower(strings.TrimSpace(s))
    return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
    if s == "" { return def }
    if d, err := time.ParseDuration(s); err == nil { return d }
    return def
}

func devDefaultPretty() string {
    env := strings.ToLower(os.Getenv("ENVIRONMENT"))
    if env == "dev" || env == "development" || env == "local" { return "true" }
    return "false"
}
