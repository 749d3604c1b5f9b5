package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	baseApiUrl    = "https://api.groq.com/openai/v1"
	defaultModel  = "gemma2-9b-it"
	envPrefix     = "VP"
	configName    = "config"
	configType    = "toml"
	dataDirName   = ".virtualparent"
	localStoreKey = "local_store"
)

// Local store backends.
const (
	LocalStoreTOML   = "toml"
	LocalStoreSQLite = "sqlite"
)

type Config struct {
	// Completion provider
	BaseURL        string
	APIKey         string
	Model          string
	ClientID       string
	ClientSecret   string
	AuthURL        string
	AuthScope      string
	Retries        int
	RetryDelay     time.Duration
	RequestTimeout time.Duration

	// Persistence service, as seen by the client
	HistoryURL   string
	HistoryToken string
	UserID       string

	// Local durable storage
	DataDir    string
	LocalStore string

	// Persistence service, as served
	ListenAddr   string
	DatabasePath string
	RequireToken bool

	ContextWindow int
	LogLevel      slog.Level

	SpeakCommand  string
	ListenCommand string
}

// UsesOAuth reports whether provider tokens come from client credentials
// rather than a static API key.
func (c *Config) UsesOAuth() bool {
	return c.APIKey == "" && c.ClientID != "" && c.ClientSecret != ""
}

// LocalStorePath returns the location of the local store file for the
// configured backend.
func (c *Config) LocalStorePath() string {
	if c.LocalStore == LocalStoreSQLite {
		return filepath.Join(c.DataDir, "local.db")
	}
	return filepath.Join(c.DataDir, "local.toml")
}

// HistoryFile returns the REPL input history location.
func (c *Config) HistoryFile() string {
	return filepath.Join(c.DataDir, "input_history")
}

// Load reads .env, the optional config.toml in the data directory and VP_*
// environment variables, in increasing precedence.
func Load(v *viper.Viper) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if v == nil {
		v = viper.New()
	}
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	dataDir, err := expandHome(v.GetString("data_dir"))
	if err != nil {
		return nil, err
	}

	v.SetConfigName(configName)
	v.SetConfigType(configType)
	v.AddConfigPath(dataDir)
	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{
		BaseURL:        strings.TrimRight(v.GetString("base_url"), "/"),
		APIKey:         v.GetString("api_key"),
		Model:          v.GetString("model"),
		ClientID:       v.GetString("client_id"),
		ClientSecret:   v.GetString("client_secret"),
		AuthURL:        v.GetString("auth_url"),
		AuthScope:      v.GetString("auth_scope"),
		Retries:        v.GetInt("retries"),
		RetryDelay:     v.GetDuration("retry_delay"),
		RequestTimeout: v.GetDuration("request_timeout"),

		HistoryURL:   strings.TrimRight(v.GetString("history_url"), "/"),
		HistoryToken: v.GetString("history_token"),
		UserID:       v.GetString("user_id"),

		DataDir:    dataDir,
		LocalStore: strings.ToLower(v.GetString(localStoreKey)),

		ListenAddr:   v.GetString("listen_addr"),
		DatabasePath: v.GetString("database"),
		RequireToken: v.GetBool("require_token"),

		ContextWindow: v.GetInt("context_window"),

		SpeakCommand:  v.GetString("speak_command"),
		ListenCommand: v.GetString("listen_command"),
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = filepath.Join(dataDir, "chats.db")
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(v.GetString("log_level"))); err != nil {
		return nil, fmt.Errorf("parse log_level: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	if c.BaseURL == "" {
		errs = append(errs, errors.New("base_url must be set"))
	}
	if c.HistoryURL == "" {
		errs = append(errs, errors.New("history_url must be set"))
	}
	if c.LocalStore != LocalStoreTOML && c.LocalStore != LocalStoreSQLite {
		errs = append(errs, fmt.Errorf("local_store must be %q or %q, got %q", LocalStoreTOML, LocalStoreSQLite, c.LocalStore))
	}
	if c.Retries < 0 {
		errs = append(errs, errors.New("retries must not be negative"))
	}
	if c.RetryDelay < 0 {
		errs = append(errs, errors.New("retry_delay must not be negative"))
	}
	if c.ContextWindow <= 0 {
		errs = append(errs, errors.New("context_window must be positive"))
	}
	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("base_url", baseApiUrl)
	v.SetDefault("model", defaultModel)
	v.SetDefault("auth_url", "https://ngw.devices.sberbank.ru:9443/api/v2/oauth")
	v.SetDefault("auth_scope", "GIGACHAT_API_PERS")
	v.SetDefault("retries", 2)
	v.SetDefault("retry_delay", 500*time.Millisecond)
	v.SetDefault("request_timeout", 60*time.Second)
	v.SetDefault("history_url", "http://localhost:5000")
	v.SetDefault("data_dir", filepath.Join("~", dataDirName))
	v.SetDefault(localStoreKey, LocalStoreTOML)
	v.SetDefault("listen_addr", ":5000")
	v.SetDefault("require_token", false)
	v.SetDefault("context_window", 20)
	v.SetDefault("log_level", "info")

	// AutomaticEnv only resolves keys viper knows about.
	for _, key := range []string{"api_key", "client_id", "client_secret", "history_token", "user_id", "database", "speak_command", "listen_command"} {
		v.SetDefault(key, "")
	}
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
