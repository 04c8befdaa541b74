package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds runtime configuration for the concat service.
type Config struct {
	Env      string
	HTTPPort string

	// WorkDir is the parent directory for per-job workspaces.
	WorkDir string

	// Publishing. If S3Bucket is set the artifact is uploaded there,
	// otherwise it is copied into PublishDir.
	PublishDir  string
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3PathStyle bool

	// Segment fetching.
	DownloadTimeout time.Duration
	SegmentMaxBytes int64
	DownloadRetries int
	RetryBackoff    time.Duration

	// External ffmpeg invocation.
	FFmpegBin     string
	ConcatTimeout time.Duration

	// ThumbnailWidth of the published poster frame; 0 disables thumbnails.
	ThumbnailWidth int

	MaxConcurrentJobs int

	// PostgresDSN is optional; when empty job records are kept in memory.
	PostgresDSN string

	// Redis-backed per-campaign rate limiting; disabled when RedisAddr is empty.
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	RateLimitCapacity int
	RateLimitRefill   float64
}

// Load reads configuration from environment variables with sane defaults for local development.
func Load() Config {
	return Config{
		Env:               getEnv("APP_ENV", "dev"),
		HTTPPort:          getEnv("HTTP_PORT", "8080"),
		WorkDir:           getEnv("WORK_DIR", filepath.Join(os.TempDir(), "concat")),
		PublishDir:        getEnv("PUBLISH_DIR", "./output"),
		S3Bucket:          getEnv("S3_BUCKET", ""),
		S3Region:          getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:        getEnv("S3_ENDPOINT", ""),
		S3PathStyle:       getEnvBool("S3_PATH_STYLE", false),
		DownloadTimeout:   getEnvDuration("DOWNLOAD_TIMEOUT", 60*time.Second),
		SegmentMaxBytes:   getEnvInt64("SEGMENT_MAX_BYTES", 512*1024*1024),
		DownloadRetries:   getEnvInt("DOWNLOAD_RETRIES", 0),
		RetryBackoff:      getEnvDuration("RETRY_BACKOFF", 2*time.Second),
		FFmpegBin:         getEnv("FFMPEG_BIN", "ffmpeg"),
		ConcatTimeout:     getEnvDuration("CONCAT_TIMEOUT", 5*time.Minute),
		ThumbnailWidth:    getEnvInt("THUMBNAIL_WIDTH", 480),
		MaxConcurrentJobs: getEnvInt("MAX_CONCURRENT_JOBS", 4),
		PostgresDSN:       getEnv("POSTGRES_DSN", ""),
		RedisAddr:         getEnv("REDIS_ADDR", ""),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisDB:           getEnvInt("REDIS_DB", 0),
		RateLimitCapacity: getEnvInt("RATE_LIMIT_CAPACITY", 30),
		RateLimitRefill:   getEnvFloat("RATE_LIMIT_REFILL_PER_SEC", 1),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
