// Package config resolves scanner settings from flags, environment
// variables, an optional sitterscan.yaml, and an optional .env file.
//
// Precedence, highest first: command-line flags, process environment,
// config file, .env, built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultBaseURL      = "http://localhost:8080/api/v1"
	DefaultPollInterval = 5 * time.Second
	DefaultMaxPolls     = 20
	DefaultHTTPTimeout  = 30 * time.Second
	DefaultJournalPath  = ".sitterscan/journal.db"

	// ConfigName is the config file base name searched for in the working
	// directory.
	ConfigName = "sitterscan"
)

// Config is the resolved scanner configuration.
type Config struct {
	APIKey         string
	OrganizationID string
	ReportID       string
	BaseURL        string
	PollInterval   time.Duration
	MaxPolls       int
	HTTPTimeout    time.Duration
	LogLevel       string
	LogFormat      string
	JournalPath    string
}

// setting ties a viper key to its environment variable and flag names.
type setting struct {
	key   string
	env   string
	flag  string
	alias string
}

var settings = []setting{
	{"api_key", "API_KEY", "api-key", ""},
	{"organization_id", "ORGANIZATION_ID", "org", "organization-id"},
	{"report_id", "REPORT_ID", "report-id", ""},
	{"api_base_url", "API_BASE_URL", "base-url", ""},
	{"poll_interval", "POLL_INTERVAL", "poll-interval", ""},
	{"max_polls", "MAX_POLLS", "max-polls", ""},
	{"http_timeout", "HTTP_TIMEOUT", "http-timeout", ""},
	{"log_level", "LOG_LEVEL", "log-level", ""},
	{"log_format", "LOG_FORMAT", "log-format", ""},
	{"journal_path", "JOURNAL_PATH", "journal", ""},
}

// Options controls where Load looks for files.
type Options struct {
	// Dir is searched for sitterscan.yaml and .env. Defaults to ".".
	Dir string
	// ConfigFile, when set, must exist and replaces the search in Dir.
	ConfigFile string
}

// RegisterFlags adds the configuration flags to cmd's persistent flags.
// Flag defaults are empty so unset flags never shadow lower layers.
func RegisterFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.String("api-key", "", "API key for the findings service (env API_KEY)")
	f.String("org", "", "organization identifier (env ORGANIZATION_ID)")
	f.String("organization-id", "", "alias for --org")
	f.String("report-id", "", "reuse an existing report instead of opening one (env REPORT_ID)")
	f.String("base-url", "", "findings service base URL (env API_BASE_URL, default "+DefaultBaseURL+")")
	f.String("poll-interval", "", "delay between rounds, seconds or a duration like 30s (env POLL_INTERVAL, default 5)")
	f.Int("max-polls", 0, "number of polling rounds, 0 opens the report without polling (env MAX_POLLS, default 20)")
	f.String("http-timeout", "", "per-request timeout (env HTTP_TIMEOUT, default 30s)")
	f.String("log-level", "", "debug, info, warn or error (env LOG_LEVEL)")
	f.String("log-format", "", "text or json (env LOG_FORMAT)")
	f.String("journal", "", "scan journal database path (env JOURNAL_PATH, default "+DefaultJournalPath+")")
	f.String("config", "", "config file (default ./sitterscan.yaml when present)")
}

// Load resolves the configuration. cmd may be nil when no flags apply.
func Load(cmd *cobra.Command, opts Options) (*Config, error) {
	dir := opts.Dir
	if dir == "" {
		dir = "."
	}

	v := viper.New()
	v.SetDefault("api_base_url", DefaultBaseURL)
	v.SetDefault("poll_interval", DefaultPollInterval.String())
	v.SetDefault("max_polls", DefaultMaxPolls)
	v.SetDefault("http_timeout", DefaultHTTPTimeout.String())
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("journal_path", DefaultJournalPath)

	// .env values sit just above the defaults; they never override the
	// process environment.
	dotenv, err := readDotenv(filepath.Join(dir, ".env"))
	if err != nil {
		return nil, err
	}
	for _, s := range settings {
		if val, ok := dotenv[s.env]; ok {
			v.SetDefault(s.key, val)
		}
	}

	configFile := opts.ConfigFile
	if configFile == "" && cmd != nil {
		if fl := cmd.Flags().Lookup("config"); fl != nil {
			configFile = fl.Value.String()
		}
	}
	if err := readConfigFile(v, dir, configFile); err != nil {
		return nil, err
	}

	for _, s := range settings {
		_ = v.BindEnv(s.key, s.env)
		if cmd == nil {
			continue
		}
		if fl := changedFlag(cmd, s.flag, s.alias); fl != nil {
			if err := v.BindPFlag(s.key, fl); err != nil {
				return nil, fmt.Errorf("config: bind flag %s: %w", fl.Name, err)
			}
		}
	}

	cfg := &Config{
		APIKey:         v.GetString("api_key"),
		OrganizationID: v.GetString("organization_id"),
		ReportID:       v.GetString("report_id"),
		BaseURL:        v.GetString("api_base_url"),
		MaxPolls:       v.GetInt("max_polls"),
		LogLevel:       v.GetString("log_level"),
		LogFormat:      v.GetString("log_format"),
		JournalPath:    v.GetString("journal_path"),
	}
	if cfg.PollInterval, err = ParseInterval(v.GetString("poll_interval")); err != nil {
		return nil, fmt.Errorf("config: poll_interval: %w", err)
	}
	if cfg.HTTPTimeout, err = ParseInterval(v.GetString("http_timeout")); err != nil {
		return nil, fmt.Errorf("config: http_timeout: %w", err)
	}
	return cfg, nil
}

// changedFlag returns the first of names that was set on the command line.
func changedFlag(cmd *cobra.Command, names ...string) *pflag.Flag {
	for _, name := range names {
		if name == "" {
			continue
		}
		if fl := cmd.Flags().Lookup(name); fl != nil && fl.Changed {
			return fl
		}
	}
	return nil
}

func readDotenv(path string) (map[string]string, error) {
	vals, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return vals, nil
}

func readConfigFile(v *viper.Viper, dir, explicit string) error {
	if explicit != "" {
		v.SetConfigFile(explicit)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("config: read %s: %w", explicit, err)
		}
		return nil
	}

	v.SetConfigName(ConfigName)
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", ConfigName+".yaml", err)
	}
	return nil
}

// ParseInterval accepts a bare integer number of seconds or a Go duration
// string.
func ParseInterval(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q", s)
	}
	return d, nil
}

// ValidateService checks the settings the polling commands need.
func (c *Config) ValidateService() error {
	var errs []error
	if c.APIKey == "" {
		errs = append(errs, errors.New("API_KEY is required"))
	}
	if c.OrganizationID == "" {
		errs = append(errs, errors.New("ORGANIZATION_ID is required"))
	}
	if c.BaseURL == "" {
		errs = append(errs, errors.New("API_BASE_URL must not be empty"))
	}
	if c.MaxPolls < 0 {
		errs = append(errs, fmt.Errorf("MAX_POLLS must not be negative, got %d", c.MaxPolls))
	}
	if c.PollInterval < 0 {
		errs = append(errs, fmt.Errorf("POLL_INTERVAL must not be negative, got %s", c.PollInterval))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
