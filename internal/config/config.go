package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// Config holds all configuration for the application
type Config struct {
	Port           string
	AllowedOrigins []string
	LogLevel       string

	WSReadTimeout  time.Duration
	WSWriteTimeout time.Duration
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64

	PrefsDir          string
	ColumnConfigFile  string
	SelectedNamesFile string
	SessionStateFile  string

	PortalURL       string
	TickInterval    time.Duration
	SSEPollInterval time.Duration
	LoginTimeout    time.Duration

	WindowCommand string
	WindowURL     string
}

// Load loads configuration from the environment (and a .env file if
// present), then applies command line overrides from args
func Load(args ...string) (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		Port:              getEnv("PORT", "8080"),
		AllowedOrigins:    strings.Split(getEnv("ALLOWED_ORIGINS", "http://localhost:8080"), ","),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		PrefsDir:          getEnv("PREFS_DIR", "."),
		ColumnConfigFile:  getEnv("COLUMN_CONFIG_FILE", "column_config.json"),
		SelectedNamesFile: getEnv("SELECTED_NAMES_FILE", "selected_names.json"),
		SessionStateFile:  getEnv("SESSION_STATE_FILE", "storage.json"),
		PortalURL:         getEnv("PORTAL_URL", "https://ccm01.lrg.co.uk/ignite"),
		WindowCommand:     os.Getenv("WINDOW_COMMAND"),
	}

	flags := pflag.NewFlagSet("portalwatch", pflag.ContinueOnError)
	flags.StringVar(&config.Port, "port", config.Port, "HTTP listen port")
	flags.StringVar(&config.PrefsDir, "prefs-dir", config.PrefsDir, "directory holding preference files")
	flags.StringVar(&config.LogLevel, "log-level", config.LogLevel, "log level (debug, info, warn, error)")
	if err := flags.Parse(args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	var err error
	if config.WSReadTimeout, err = seconds("WS_READ_TIMEOUT", "60"); err != nil {
		return nil, err
	}
	if config.WSWriteTimeout, err = seconds("WS_WRITE_TIMEOUT", "10"); err != nil {
		return nil, err
	}
	if config.TickInterval, err = millis("TICK_INTERVAL_MS", "1000"); err != nil {
		return nil, err
	}
	if config.SSEPollInterval, err = millis("SSE_POLL_INTERVAL_MS", "100"); err != nil {
		return nil, err
	}
	if config.LoginTimeout, err = millis("LOGIN_TIMEOUT_MS", "5000"); err != nil {
		return nil, err
	}

	// Calculate WebSocket constants
	config.PongWait = config.WSReadTimeout
	config.PingPeriod = (config.PongWait * 9) / 10 // Must be less than pongWait
	config.WriteWait = config.WSWriteTimeout
	config.MaxMessageSize = 4096

	config.WindowURL = getEnv("WINDOW_URL", "http://localhost:"+config.Port)

	for i, origin := range config.AllowedOrigins {
		config.AllowedOrigins[i] = strings.TrimSpace(origin)
	}

	return config, nil
}

// SessionStatePath is where the browser session is persisted
func (c *Config) SessionStatePath() string {
	return filepath.Join(c.PrefsDir, c.SessionStateFile)
}

func seconds(key, defaultValue string) (time.Duration, error) {
	n, err := positiveInt(key, defaultValue)
	return time.Duration(n) * time.Second, err
}

func millis(key, defaultValue string) (time.Duration, error) {
	n, err := positiveInt(key, defaultValue)
	return time.Duration(n) * time.Millisecond, err
}

func positiveInt(key, defaultValue string) (int, error) {
	n, err := strconv.Atoi(getEnv(key, defaultValue))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return n, nil
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
