package config

import (
	"fmt"
	"log"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var clockPattern = regexp.MustCompile(`^([01]\d|2[0-3]):([0-5]\d)$`)

type Config struct {
	Port            string `yaml:"port"`
	Env             string `yaml:"env"`
	AppSecret       string `yaml:"app_secret"`
	AuthSessionDays int    `yaml:"auth_session_days"`

	DBDriver   string `yaml:"db_driver"`
	DBPath     string `yaml:"db_path"`
	DBHost     string `yaml:"db_host"`
	DBPort     string `yaml:"db_port"`
	DBUser     string `yaml:"db_user"`
	DBPassword string `yaml:"db_password"`
	DBName     string `yaml:"db_name"`
	DBSSLMode  string `yaml:"db_sslmode"`

	WhatsAppToken      string `yaml:"whatsapp_access_token"`
	PhoneNumberID      string `yaml:"whatsapp_phone_number_id"`
	VerifyToken        string `yaml:"whatsapp_verify_token"`
	WhatsAppAppSecret  string `yaml:"whatsapp_app_secret"`
	WhatsAppAPIBase    string `yaml:"whatsapp_api_base"`
	Timezone           string `yaml:"timezone"`
	BusinessHoursStart string `yaml:"business_hours_start"`
	BusinessHoursEnd   string `yaml:"business_hours_end"`
	ReminderSchedule   string `yaml:"reminder_schedule"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
	FrontendDist       string `yaml:"frontend_dist"`
	LegacyDataFile     string `yaml:"legacy_data_file"`

	// CORSOrigins lists the browser origins, besides the server's own, that
	// may call the API and open /ws with the session cookie.
	CORSOrigins []string `yaml:"cors_origins"`
}

// Defaults returns the configuration used when neither the environment nor a
// config file provide a value.
func Defaults() *Config {
	return &Config{
		Port:               "3001",
		Env:                "development",
		AuthSessionDays:    7,
		DBDriver:           "sqlite",
		DBPath:             "./whatsapp-crm.db",
		DBHost:             "localhost",
		DBPort:             "5432",
		DBUser:             "postgres",
		DBName:             "whatsapp_crm",
		DBSSLMode:          "disable",
		VerifyToken:        "verify-token",
		WhatsAppAPIBase:    "https://graph.facebook.com/v21.0",
		Timezone:           "Asia/Kolkata",
		BusinessHoursStart: "09:00",
		BusinessHoursEnd:   "19:00",
		ReminderSchedule:   "@every 60s",
		RateLimitPerMinute: 60,
		FrontendDist:       "../frontend/dist",
	}
}

// LoadConfig reads .env, then the optional YAML file named by CONFIG_FILE, then
// the process environment. Environment variables take precedence.
func LoadConfig() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Println("Warning: Error loading .env file")
	}

	cfg := Defaults()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse unmarshals YAML bytes over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.Env = getEnv("APP_ENV", c.Env)
	c.AppSecret = getEnv("APP_SECRET", c.AppSecret)
	c.AuthSessionDays = getEnvInt("AUTH_SESSION_DAYS", c.AuthSessionDays)

	c.DBDriver = getEnv("DB_DRIVER", c.DBDriver)
	c.DBPath = getEnv("DB_PATH", c.DBPath)
	c.DBHost = getEnv("DB_HOST", c.DBHost)
	c.DBPort = getEnv("DB_PORT", c.DBPort)
	c.DBUser = getEnv("DB_USER", c.DBUser)
	c.DBPassword = getEnv("DB_PASSWORD", c.DBPassword)
	c.DBName = getEnv("DB_NAME", c.DBName)
	c.DBSSLMode = getEnv("DB_SSLMODE", c.DBSSLMode)

	c.WhatsAppToken = getEnv("WHATSAPP_ACCESS_TOKEN", c.WhatsAppToken)
	c.PhoneNumberID = getEnv("WHATSAPP_PHONE_NUMBER_ID", c.PhoneNumberID)
	c.VerifyToken = getEnv("WHATSAPP_VERIFY_TOKEN", c.VerifyToken)
	c.WhatsAppAppSecret = getEnv("WHATSAPP_APP_SECRET", c.WhatsAppAppSecret)
	c.WhatsAppAPIBase = getEnv("WHATSAPP_API_BASE", c.WhatsAppAPIBase)
	c.Timezone = getEnv("APP_TIMEZONE", c.Timezone)
	c.BusinessHoursStart = getEnv("BUSINESS_HOURS_START", c.BusinessHoursStart)
	c.BusinessHoursEnd = getEnv("BUSINESS_HOURS_END", c.BusinessHoursEnd)
	c.ReminderSchedule = getEnv("REMINDER_SCHEDULE", c.ReminderSchedule)
	c.RateLimitPerMinute = getEnvInt("RATE_LIMIT_PER_MINUTE", c.RateLimitPerMinute)
	c.FrontendDist = getEnv("FRONTEND_DIST", c.FrontendDist)
	c.LegacyDataFile = getEnv("LEGACY_DATA_FILE", c.LegacyDataFile)
	if value, exists := os.LookupEnv("CORS_ORIGINS"); exists {
		c.CORSOrigins = splitList(value)
	}
}

func (c *Config) validate() error {
	var errs []string
	if strings.TrimSpace(c.Port) == "" {
		errs = append(errs, "port is required")
	}
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("db_driver %q is not supported (use sqlite or postgres)", c.DBDriver))
	}
	if c.DBDriver == "sqlite" && strings.TrimSpace(c.DBPath) == "" {
		errs = append(errs, "db_path is required for sqlite")
	}
	if c.AuthSessionDays < 1 {
		errs = append(errs, "auth_session_days must be at least 1")
	}
	if !clockPattern.MatchString(c.BusinessHoursStart) {
		errs = append(errs, "business_hours_start must be HH:MM")
	}
	if !clockPattern.MatchString(c.BusinessHoursEnd) {
		errs = append(errs, "business_hours_end must be HH:MM")
	}
	if c.RateLimitPerMinute < 1 {
		errs = append(errs, "rate_limit_per_minute must be at least 1")
	}
	for _, origin := range c.CORSOrigins {
		if origin == "*" {
			errs = append(errs, "cors_origins cannot contain * because requests carry the session cookie")
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// IsProduction reports whether cookies should be marked Secure.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// PostgresDSN builds the libpq-style connection string used by the postgres driver.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort, c.DBSSLMode)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		log.Printf("Warning: %s=%q is not a number, using %d", key, value, fallback)
		return fallback
	}
	return parsed
}
