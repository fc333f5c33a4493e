package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port        int                   `json:"port"`
	JWTSecret   string                `json:"jwt_secret"`
	Database    DatabaseConfig        `json:"database"`
	LogConfig   logger.LogConfig      `json:"log_config"`
	FileStore   FileStoreConfig       `json:"file_store"`
	Vault       VaultConfig           `json:"vault"`
	Import      ImportConfig          `json:"import"`
	Plans       map[string]PlanConfig `json:"plans"`
	RateLimit   RateLimitConfig       `json:"rate_limit"`
	Redis       RedisConfig           `json:"redis"`
	Providers   ProvidersConfig       `json:"providers"`
	Jobs        JobsConfig            `json:"jobs"`
	CORSOrigins []string              `json:"cors_origins"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`

	MaxOpenConns int `json:"max_open_conns"`
	MaxIdleConns int `json:"max_idle_conns"`
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type VaultConfig struct {
	MasterSecret      string   `json:"master_secret"`
	CurrentVersion    string   `json:"current_version"`
	SupportedVersions []string `json:"supported_versions"`
	KeyCacheSize      int      `json:"key_cache_size"`
	KeyCacheTTLSecond int64    `json:"key_cache_ttl_second"`
}

type ImportConfig struct {
	MaxUploadBytes     int64  `json:"max_upload_bytes"`
	MaxRows            int    `json:"max_rows"`
	MaxTitleChars      int    `json:"max_title_chars"`
	MaxBodyChars       int    `json:"max_body_chars"`
	MaxIssues          int    `json:"max_issues"`
	MaxAttachments     int    `json:"max_attachments"`
	MaxAutoBoards      int    `json:"max_auto_boards"`
	MaxGroupNameChars  int    `json:"max_group_name_chars"`
	MaxScore           int    `json:"max_score"`
	DefaultBoard       string `json:"default_board"`
	MaxRemotePages     int    `json:"max_remote_pages"`
	RemotePageSize     int    `json:"remote_page_size"`
	MaxMarkdownBytes   int    `json:"max_markdown_bytes"`
	MaxHTMLBytes       int    `json:"max_html_bytes"`
	MaxNormalizedBytes int    `json:"max_normalized_bytes"`
	PageTimeoutSecond  int64  `json:"page_timeout_second"`
	ArchiveUploads     bool   `json:"archive_uploads"`
}

type PlanConfig struct {
	// PostLimit <= 0 means unlimited.
	PostLimit int `json:"post_limit"`
}

type RateLimitConfig struct {
	Backend string              `json:"backend"`
	Rules   map[string]RateRule `json:"rules"`
}

type RateRule struct {
	WindowSecond int64 `json:"window_second"`
	PerActor     int   `json:"per_actor"`
	PerWorkspace int   `json:"per_workspace"`
}

type RedisConfig struct {
	URL string `json:"url"`
}

type ProvidersConfig struct {
	Notra NotraConfig `json:"notra"`
}

type NotraConfig struct {
	BaseURL       string `json:"base_url"`
	TimeoutSecond int64  `json:"timeout_second"`
	MaxRetries    int    `json:"max_retries"`
}

type JobsConfig struct {
	RunCleanupSpec     string `json:"run_cleanup_spec"`
	RunRetentionHours  int64  `json:"run_retention_hours"`
	ActionLogPruneSpec string `json:"action_log_prune_spec"`
}

const (
	ActionImportCSV   = "imports.csv"
	ActionImportNotra = "imports.notra"
)

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() error {
	if c.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required")
	}
	if c.Database.DSN == "" && c.Database.Host == "" {
		return fmt.Errorf("database.dsn or database.host is required")
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = 20
	}
	if c.Database.MaxIdleConns <= 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.LogConfig.Level == "" {
		c.LogConfig.Level = "info"
	}
	if c.FileStore.Type == "" {
		c.FileStore.Type = "local"
	}
	if err := c.Vault.normalize(); err != nil {
		return err
	}
	c.Import.ApplyDefaults()
	if len(c.Plans) == 0 {
		c.Plans = map[string]PlanConfig{
			"free": {PostLimit: 100},
			"pro":  {PostLimit: 0},
		}
	}
	if err := c.RateLimit.normalize(c.Redis); err != nil {
		return err
	}
	if c.Providers.Notra.BaseURL == "" {
		c.Providers.Notra.BaseURL = "https://api.usenotra.com"
	}
	if c.Providers.Notra.TimeoutSecond <= 0 {
		c.Providers.Notra.TimeoutSecond = 20
	}
	if c.Jobs.RunCleanupSpec == "" {
		c.Jobs.RunCleanupSpec = "17 3 * * *"
	}
	if c.Jobs.RunRetentionHours <= 0 {
		c.Jobs.RunRetentionHours = 24 * 30
	}
	if c.Jobs.ActionLogPruneSpec == "" {
		c.Jobs.ActionLogPruneSpec = "*/30 * * * *"
	}
	return nil
}

func (v *VaultConfig) normalize() error {
	if len(v.MasterSecret) < 32 {
		return fmt.Errorf("vault.master_secret must be at least 32 characters")
	}
	v.CurrentVersion = strings.TrimSpace(v.CurrentVersion)
	if v.CurrentVersion == "" {
		v.CurrentVersion = "v1"
	}
	found := false
	for _, version := range v.SupportedVersions {
		if version == v.CurrentVersion {
			found = true
			break
		}
	}
	if !found {
		v.SupportedVersions = append(v.SupportedVersions, v.CurrentVersion)
	}
	if v.KeyCacheSize <= 0 {
		v.KeyCacheSize = 16
	}
	if v.KeyCacheTTLSecond <= 0 {
		v.KeyCacheTTLSecond = 600
	}
	return nil
}

// ApplyDefaults fills every unset limit with its default.
func (i *ImportConfig) ApplyDefaults() {
	setInt64 := func(dst *int64, def int64) {
		if *dst <= 0 {
			*dst = def
		}
	}
	setInt := func(dst *int, def int) {
		if *dst <= 0 {
			*dst = def
		}
	}
	setInt64(&i.MaxUploadBytes, 5*1024*1024)
	setInt(&i.MaxRows, 5000)
	setInt(&i.MaxTitleChars, 200)
	setInt(&i.MaxBodyChars, 20000)
	setInt(&i.MaxIssues, 50)
	setInt(&i.MaxAttachments, 10)
	setInt(&i.MaxAutoBoards, 20)
	setInt(&i.MaxGroupNameChars, 64)
	setInt(&i.MaxScore, 1000000)
	setInt(&i.MaxRemotePages, 20)
	setInt(&i.RemotePageSize, 50)
	setInt(&i.MaxMarkdownBytes, 100000)
	setInt(&i.MaxHTMLBytes, 200000)
	setInt(&i.MaxNormalizedBytes, 100000)
	setInt64(&i.PageTimeoutSecond, 15)
	if strings.TrimSpace(i.DefaultBoard) == "" {
		i.DefaultBoard = "Feedback"
	}
}

func (r *RateLimitConfig) normalize(redis RedisConfig) error {
	r.Backend = strings.ToLower(strings.TrimSpace(r.Backend))
	if r.Backend == "" {
		r.Backend = "db"
	}
	switch r.Backend {
	case "db", "memory":
	case "redis":
		if redis.URL == "" {
			return fmt.Errorf("redis.url is required for rate_limit.backend=redis")
		}
	default:
		return fmt.Errorf("rate_limit.backend must be db, redis or memory")
	}
	if r.Rules == nil {
		r.Rules = map[string]RateRule{}
	}
	defaults := map[string]RateRule{
		ActionImportCSV:   {WindowSecond: 3600, PerActor: 10, PerWorkspace: 30},
		ActionImportNotra: {WindowSecond: 3600, PerActor: 5, PerWorkspace: 10},
	}
	for action, rule := range defaults {
		if _, ok := r.Rules[action]; !ok {
			r.Rules[action] = rule
		}
	}
	for action, rule := range r.Rules {
		if rule.WindowSecond <= 0 {
			return fmt.Errorf("rate_limit.rules.%s.window_second must be positive", action)
		}
	}
	return nil
}
