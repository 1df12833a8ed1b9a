package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds application configuration
// アプリケーション設定を保持
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	API      APIConfig      `yaml:"api"`
	Auth     AuthConfig     `yaml:"auth"`
	Batch    BatchConfig    `yaml:"batch"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DatabaseConfig holds database configuration
// データベース設定を保持
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// APIConfig holds API server configuration
// APIサーバー設定を保持
type APIConfig struct {
	Port          int           `yaml:"port"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
	EnableCORS    bool          `yaml:"enable_cors"`
	EnableMetrics bool          `yaml:"enable_metrics"`
}

// AuthConfig holds authentication configuration
// 認証設定を保持
type AuthConfig struct {
	Enabled     bool          `yaml:"enabled"`      // 無効の場合は操作者が "system" になる
	JWTSecret   string        `yaml:"jwt_secret"`   // 有効時は必須
	TokenExpiry time.Duration `yaml:"token_expiry"` // トークン有効期間
}

// BatchConfig holds batch lifecycle configuration
// バッチライフサイクル固有の設定を保持
type BatchConfig struct {
	RequirePassedQualityCheck bool `yaml:"require_passed_quality_check"` // 承認に合格検査を必須とするか
	NotesMaxLength            int  `yaml:"notes_max_length"`             // 備考・検査メモの最大文字数
	DefaultPageSize           int  `yaml:"default_page_size"`            // 一覧のデフォルトページサイズ
	MaxPageSize               int  `yaml:"max_page_size"`                // 一覧の最大ページサイズ
	HistoryLimit              int  `yaml:"history_limit"`                // 監査履歴取得のデフォルト上限
}

// LoggingConfig holds logging configuration
// ログ設定を保持
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, console
	Output string `yaml:"output"` // stdout, file
}

// Load loads configuration from environment variables, optionally layered on
// top of a YAML file named by CONFIG_FILE. Environment variables win.
// 環境変数から設定を読み込む。CONFIG_FILEが指定されていればYAMLファイルを
// 下敷きにし、環境変数が優先される。
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("設定ファイル読み込みに失敗しました: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("設定ファイルのパースに失敗しました: %w", err)
		}
	}

	applyEnv(cfg)

	// バリデーション
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定バリデーションに失敗しました: %w", err)
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "lotgo",
			Password: "password",
			DBName:   "lotgo_db",
			SSLMode:  "disable",
		},
		API: APIConfig{
			Port:          8080,
			ReadTimeout:   30 * time.Second,
			WriteTimeout:  30 * time.Second,
			IdleTimeout:   60 * time.Second,
			EnableCORS:    true,
			EnableMetrics: true,
		},
		Auth: AuthConfig{
			Enabled:     false,
			TokenExpiry: 24 * time.Hour,
		},
		Batch: BatchConfig{
			RequirePassedQualityCheck: false,
			NotesMaxLength:            300,
			DefaultPageSize:           20,
			MaxPageSize:               100,
			HistoryLimit:              100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnvAsInt("DB_PORT", cfg.Database.Port)
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.DBName = getEnv("DB_NAME", cfg.Database.DBName)
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", cfg.Database.SSLMode)

	cfg.API.Port = getEnvAsInt("API_PORT", cfg.API.Port)
	cfg.API.ReadTimeout = getEnvAsDuration("API_READ_TIMEOUT", cfg.API.ReadTimeout)
	cfg.API.WriteTimeout = getEnvAsDuration("API_WRITE_TIMEOUT", cfg.API.WriteTimeout)
	cfg.API.IdleTimeout = getEnvAsDuration("API_IDLE_TIMEOUT", cfg.API.IdleTimeout)
	cfg.API.EnableCORS = getEnvAsBool("API_ENABLE_CORS", cfg.API.EnableCORS)
	cfg.API.EnableMetrics = getEnvAsBool("API_ENABLE_METRICS", cfg.API.EnableMetrics)

	cfg.Auth.Enabled = getEnvAsBool("AUTH_ENABLED", cfg.Auth.Enabled)
	cfg.Auth.JWTSecret = getEnv("AUTH_JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.TokenExpiry = getEnvAsDuration("AUTH_TOKEN_EXPIRY", cfg.Auth.TokenExpiry)

	cfg.Batch.RequirePassedQualityCheck = getEnvAsBool("BATCH_REQUIRE_PASSED_QC", cfg.Batch.RequirePassedQualityCheck)
	cfg.Batch.NotesMaxLength = getEnvAsInt("BATCH_NOTES_MAX_LENGTH", cfg.Batch.NotesMaxLength)
	cfg.Batch.DefaultPageSize = getEnvAsInt("BATCH_DEFAULT_PAGE_SIZE", cfg.Batch.DefaultPageSize)
	cfg.Batch.MaxPageSize = getEnvAsInt("BATCH_MAX_PAGE_SIZE", cfg.Batch.MaxPageSize)
	cfg.Batch.HistoryLimit = getEnvAsInt("BATCH_HISTORY_LIMIT", cfg.Batch.HistoryLimit)

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)
	cfg.Logging.Output = getEnv("LOG_OUTPUT", cfg.Logging.Output)
}

// Validate validates the configuration
// 設定をバリデーション
func (c *Config) Validate() error {
	// データベース設定チェック
	if c.Database.Host == "" {
		return fmt.Errorf("データベースホストが指定されていません")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("無効なデータベースポート: %d", c.Database.Port)
	}
	if c.Database.User == "" {
		return fmt.Errorf("データベースユーザーが指定されていません")
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("データベース名が指定されていません")
	}

	// API設定チェック
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("無効なAPIポート: %d", c.API.Port)
	}

	// 認証設定チェック
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("認証が有効ですがJWTシークレットが指定されていません")
	}

	// バッチ設定チェック
	if c.Batch.NotesMaxLength <= 0 {
		return fmt.Errorf("備考の最大文字数は正の値である必要があります")
	}
	if c.Batch.DefaultPageSize <= 0 || c.Batch.MaxPageSize <= 0 {
		return fmt.Errorf("ページサイズは正の値である必要があります")
	}
	if c.Batch.DefaultPageSize > c.Batch.MaxPageSize {
		return fmt.Errorf("デフォルトページサイズが最大ページサイズを超えています")
	}

	// ログ設定チェック
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("無効なログレベル: %s", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true, "console": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("無効なログフォーマット: %s", c.Logging.Format)
	}

	return nil
}

// DSN generates PostgreSQL Data Source Name
// PostgreSQLデータソース名を生成
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
		c.Database.SSLMode,
	)
}

// ヘルパー関数

// getEnv gets environment variable with default value
// デフォルト値付きで環境変数を取得
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets environment variable as integer with default value
// デフォルト値付きで環境変数を整数として取得
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsBool gets environment variable as boolean with default value
// デフォルト値付きで環境変数をbooleanとして取得
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsDuration gets environment variable as duration with default value
// デフォルト値付きで環境変数をdurationとして取得
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
