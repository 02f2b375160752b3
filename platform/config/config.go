// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
	GetDatabaseMaxConns() int
}

// SchedulerConfig provides Redis/asynq settings for background work.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// EngineConfig provides the cascade engine cadences and policy defaults.
type EngineConfig interface {
	GetTickInterval() time.Duration
	GetTickBatchSize() int
	GetTickWorkers() int
	GetTickLockTTL() time.Duration
	GetNotifyTimeout() time.Duration
	GetEscalationGrace() time.Duration
	GetRetentionInterval() time.Duration
	GetRetentionWindow() time.Duration
	GetReportCron() string
	GetTimezone() string
	GetPhoneRegion() string
	GetMatchWindow() time.Duration
	GetAutomationConfigSeed() string
}

// EmailConfig provides settings for SMTP email delivery.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
}

// WhatsAppConfig provides settings for the WhatsApp gateway.
type WhatsAppConfig interface {
	GetWhatsAppURL() string
	GetWhatsAppKey() string
	GetWhatsAppDeviceID() string
}

// NotificationConfig provides settings for notification content.
type NotificationConfig interface {
	GetAppBaseURL() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetMetricsAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                  string
	HTTPAddr             string
	MetricsAddr          string
	DatabaseURL          string
	DatabaseMaxConns     int
	CORSAllowAll         bool
	CORSOrigins          []string
	CORSAllowCreds       bool
	AppBaseURL           string
	RedisURL             string
	RedisTLSInsecure     bool
	AsynqQueueName       string
	AsynqConcurrency     int
	TickInterval         time.Duration
	TickBatchSize        int
	TickWorkers          int
	TickLockTTL          time.Duration
	NotifyTimeout        time.Duration
	EscalationGrace      time.Duration
	RetentionInterval    time.Duration
	RetentionWindow      time.Duration
	ReportCron           string
	Timezone             string
	PhoneRegion          string
	MatchWindow          time.Duration
	AutomationConfigSeed string
	EmailEnabled         bool
	SMTPHost             string
	SMTPPort             int
	SMTPUsername         string
	SMTPPassword         string
	EmailFromName        string
	EmailFromAddress     string
	WhatsAppURL          string
	WhatsAppKey          string
	WhatsAppDeviceID     string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string   { return c.DatabaseURL }
func (c *Config) GetDatabaseMaxConns() int { return c.DatabaseMaxConns }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// EngineConfig implementation
func (c *Config) GetTickInterval() time.Duration      { return c.TickInterval }
func (c *Config) GetTickBatchSize() int               { return c.TickBatchSize }
func (c *Config) GetTickWorkers() int                 { return c.TickWorkers }
func (c *Config) GetTickLockTTL() time.Duration       { return c.TickLockTTL }
func (c *Config) GetNotifyTimeout() time.Duration     { return c.NotifyTimeout }
func (c *Config) GetEscalationGrace() time.Duration   { return c.EscalationGrace }
func (c *Config) GetRetentionInterval() time.Duration { return c.RetentionInterval }
func (c *Config) GetRetentionWindow() time.Duration   { return c.RetentionWindow }
func (c *Config) GetReportCron() string               { return c.ReportCron }
func (c *Config) GetTimezone() string                 { return c.Timezone }
func (c *Config) GetPhoneRegion() string              { return c.PhoneRegion }
func (c *Config) GetMatchWindow() time.Duration       { return c.MatchWindow }
func (c *Config) GetAutomationConfigSeed() string     { return c.AutomationConfigSeed }

// EmailConfig implementation
func (c *Config) GetEmailEnabled() bool       { return c.EmailEnabled }
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }

// WhatsAppConfig implementation
func (c *Config) GetWhatsAppURL() string      { return c.WhatsAppURL }
func (c *Config) GetWhatsAppKey() string      { return c.WhatsAppKey }
func (c *Config) GetWhatsAppDeviceID() string { return c.WhatsAppDeviceID }

// NotificationConfig implementation
func (c *Config) GetAppBaseURL() string { return c.AppBaseURL }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetMetricsAddr() string   { return c.MetricsAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	smtpHost := getEnv("SMTP_HOST", "")
	emailEnabled := strings.EqualFold(getEnv("EMAIL_ENABLED", "true"), "true")

	cfg := &Config{
		Env:                  getEnv("APP_ENV", "development"),
		HTTPAddr:             getEnv("HTTP_ADDR", ":8080"),
		MetricsAddr:          getEnv("METRICS_ADDR", ":9090"),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		DatabaseMaxConns:     int(mustInt64(getEnv("DATABASE_MAX_CONNS", "20"))),
		CORSAllowAll:         corsAllowAll,
		CORSOrigins:          corsOrigins,
		CORSAllowCreds:       strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "false"), "true"),
		AppBaseURL:           getEnv("APP_BASE_URL", "http://localhost:4200"),
		RedisURL:             getEnv("REDIS_URL", ""),
		RedisTLSInsecure:     strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:       getEnv("ASYNQ_QUEUE", "cascade"),
		AsynqConcurrency:     int(mustInt64(getEnv("ASYNQ_CONCURRENCY", "10"))),
		TickInterval:         mustDuration(getEnv("CASCADE_TICK_INTERVAL", "1m")),
		TickBatchSize:        int(mustInt64(getEnv("CASCADE_TICK_BATCH_SIZE", "200"))),
		TickWorkers:          int(mustInt64(getEnv("CASCADE_TICK_WORKERS", "8"))),
		TickLockTTL:          mustDuration(getEnv("CASCADE_TICK_LOCK_TTL", "5m")),
		NotifyTimeout:        mustDuration(getEnv("CASCADE_NOTIFY_TIMEOUT", "10s")),
		EscalationGrace:      mustDuration(getEnv("CASCADE_ESCALATION_GRACE", "24h")),
		RetentionInterval:    mustDuration(getEnv("CASCADE_RETENTION_INTERVAL", "1h")),
		RetentionWindow:      time.Duration(mustInt64(getEnv("CASCADE_RETENTION_DAYS", "30"))) * 24 * time.Hour,
		ReportCron:           getEnv("CASCADE_REPORT_CRON", "0 8 * * *"),
		Timezone:             getEnv("CASCADE_TIMEZONE", "UTC"),
		PhoneRegion:          getEnv("CASCADE_PHONE_REGION", "BR"),
		MatchWindow:          time.Duration(mustInt64(getEnv("CASCADE_MATCH_WINDOW_DAYS", "90"))) * 24 * time.Hour,
		AutomationConfigSeed: getEnv("AUTOMATION_CONFIG_SEED", ""),
		EmailEnabled:         emailEnabled && smtpHost != "",
		SMTPHost:             smtpHost,
		SMTPPort:             int(mustInt64(getEnv("SMTP_PORT", "587"))),
		SMTPUsername:         getEnv("SMTP_USERNAME", ""),
		SMTPPassword:         getEnv("SMTP_PASSWORD", ""),
		EmailFromName:        getEnv("EMAIL_FROM_NAME", "Cascade"),
		EmailFromAddress:     getEnv("EMAIL_FROM_ADDRESS", ""),
		WhatsAppURL:          getEnv("WHATSAPP_URL", ""),
		WhatsAppKey:          getEnv("WHATSAPP_KEY", ""),
		WhatsAppDeviceID:     getEnv("WHATSAPP_DEVICE_ID", ""),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.EmailEnabled && cfg.EmailFromAddress == "" {
		return nil, fmt.Errorf("EMAIL_FROM_ADDRESS is required when email is enabled")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	if cfg.DatabaseMaxConns <= 0 {
		return nil, fmt.Errorf("DATABASE_MAX_CONNS must be positive")
	}
	if cfg.TickInterval <= 0 {
		return nil, fmt.Errorf("CASCADE_TICK_INTERVAL must be a positive duration")
	}
	if cfg.RetentionWindow <= 0 {
		return nil, fmt.Errorf("CASCADE_RETENTION_DAYS must be positive")
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("CASCADE_TIMEZONE is invalid: %w", err)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt64(value string) int64 {
	result, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
