// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL      string
	DBConnectRetries int

	// Ingest
	DatasetDir           string
	IngestStopAtUser     string
	IngestMaxTrackPoints int
	IngestReset          bool
	IngestSkipMalformed  bool

	// Server
	ServerPort       string
	RateLimitGeneral int

	// Logging
	LogLevel string

	// Export
	ExportPath string

	// Report（固定クエリのパラメータ）
	ReportUserID    string
	ReportYear      int
	ReportMode      string
	ReportTaxiMode  string
	ReportRegionLat float64
	ReportRegionLon float64
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.DBConnectRetries = getEnvInt("DB_CONNECT_RETRIES", 5)
	cfg.DatasetDir = getEnvString("DATASET_DIR", "./dataset")
	cfg.IngestStopAtUser = getEnvString("INGEST_STOP_AT_USER", "")
	cfg.IngestMaxTrackPoints = getEnvInt("INGEST_MAX_TRACKPOINTS", 2500)
	cfg.IngestReset = getEnvBool("INGEST_RESET", true)
	cfg.IngestSkipMalformed = getEnvBool("INGEST_SKIP_MALFORMED", false)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ExportPath = getEnvString("EXPORT_PATH", "trackpoints.parquet")
	cfg.ReportUserID = getEnvString("REPORT_USER_ID", "112")
	cfg.ReportYear = getEnvInt("REPORT_YEAR", 2008)
	cfg.ReportMode = getEnvString("REPORT_MODE", "walk")
	cfg.ReportTaxiMode = getEnvString("REPORT_TAXI_MODE", "taxi")
	cfg.ReportRegionLat = getEnvFloat("REPORT_REGION_LAT", 39.916)
	cfg.ReportRegionLon = getEnvFloat("REPORT_REGION_LON", 116.397)

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}
