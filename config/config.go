package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/ktappdev/ytstats/retry"
)

// ErrMissingAPIKey is returned by Validate when no API key was configured.
var ErrMissingAPIKey = errors.New("YouTube API key not found: set api_key or YOUTUBE_API_KEY, or pass --api-key")

// Config holds the command-line configuration and API key
type Config struct {
	Input         string
	FilePath      string
	ListMode      bool
	NoSheets      bool
	NoTranscripts bool
	ShowHelp      bool

	APIKey            string
	Database          string
	SpreadsheetID     string
	Worksheet         string
	CredentialsFile   string
	LogLevel          string
	LogFormat         string
	RequestsPerSecond float64
	MaxAttempts       int

	// ConfigFile is the settings file that was loaded, if any.
	ConfigFile string
}

// Log output formats.
const (
	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

// Defaults returns the built-in settings.
func Defaults() Config {
	return Config{
		Database:          "youtube_data.db",
		Worksheet:         "Sheet1",
		CredentialsFile:   "credentials.json",
		LogLevel:          "info",
		LogFormat:         LogFormatConsole,
		RequestsPerSecond: 5,
		MaxAttempts:       retry.DefaultPolicy().MaxAttempts,
	}
}

// fileConfig is the JSON layout of ytstats.json.
type fileConfig struct {
	APIKey            string  `json:"api_key"`
	Database          string  `json:"database"`
	SpreadsheetID     string  `json:"spreadsheet_id"`
	Worksheet         string  `json:"worksheet"`
	Credentials       string  `json:"credentials"`
	LogLevel          string  `json:"log_level"`
	LogFormat         string  `json:"log_format"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	MaxAttempts       int     `json:"max_attempts"`
}

// Load builds a Config. Later sources win: defaults, settings file,
// environment, flags.
func Load(args []string, getenv func(string) string) (*Config, error) {
	var flags Config
	var configPath string

	fs := pflag.NewFlagSet("ytstats", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVarP(&flags.FilePath, "file", "f", "", "Path to file containing channels or videos, one per line")
	fs.BoolVarP(&flags.ListMode, "list", "l", false, "List stored videos instead of fetching")
	fs.BoolVar(&flags.NoSheets, "no-sheets", false, "Skip Google Sheets export")
	fs.BoolVar(&flags.NoTranscripts, "no-transcripts", false, "Skip transcript retrieval")
	fs.StringVar(&flags.APIKey, "api-key", "", "YouTube Data API key")
	fs.StringVar(&flags.Database, "db", "", "SQLite path or postgres:// URL")
	fs.StringVar(&flags.SpreadsheetID, "spreadsheet", "", "Google Spreadsheet ID")
	fs.StringVar(&flags.Worksheet, "worksheet", "", "Worksheet name")
	fs.StringVar(&flags.CredentialsFile, "credentials", "", "Service account key file")
	fs.StringVar(&flags.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.StringVar(&flags.LogFormat, "log-format", "", "Log output: console or json")
	fs.Float64Var(&flags.RequestsPerSecond, "rps", 0, "Maximum YouTube API requests per second")
	fs.IntVar(&flags.MaxAttempts, "max-attempts", 0, "Attempts per API call when rate limited")
	fs.StringVar(&configPath, "config", "", "Settings file (JSON)")
	fs.BoolVarP(&flags.ShowHelp, "help", "h", false, "Show help message")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := Defaults()

	if configPath == "" {
		configPath = getenv("YTSTATS_CONFIG")
	}
	if err := cfg.loadFile(configPath); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}
	cfg.applyFlags(fs, flags)

	switch fs.NArg() {
	case 0:
	case 1:
		cfg.Input = fs.Arg(0)
	default:
		return nil, fmt.Errorf("expected at most one channel or video, got %d", fs.NArg())
	}
	return &cfg, nil
}

// loadFile reads path, or the first settings file found in the default
// locations when path is empty. A missing default file is not an error.
func (c *Config) loadFile(path string) error {
	explicit := path != ""
	candidates := []string{path}
	if !explicit {
		candidates = defaultConfigPaths()
	}

	for _, p := range candidates {
		data, err := os.ReadFile(p)
		if err != nil {
			if !explicit && errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("error reading config file: %w", err)
		}

		var fc fileConfig
		if err := json.Unmarshal(data, &fc); err != nil {
			return fmt.Errorf("error parsing config file %s: %w", p, err)
		}
		c.mergeFile(fc)
		c.ConfigFile = p
		return nil
	}
	return nil
}

func defaultConfigPaths() []string {
	paths := []string{"ytstats.json"}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "ytstats", "ytstats.json"))
	}
	return paths
}

func (c *Config) mergeFile(fc fileConfig) {
	setString(&c.APIKey, fc.APIKey)
	setString(&c.Database, fc.Database)
	setString(&c.SpreadsheetID, fc.SpreadsheetID)
	setString(&c.Worksheet, fc.Worksheet)
	setString(&c.CredentialsFile, fc.Credentials)
	setString(&c.LogLevel, fc.LogLevel)
	setString(&c.LogFormat, fc.LogFormat)
	if fc.RequestsPerSecond != 0 {
		c.RequestsPerSecond = fc.RequestsPerSecond
	}
	if fc.MaxAttempts != 0 {
		c.MaxAttempts = fc.MaxAttempts
	}
}

func (c *Config) applyEnv(getenv func(string) string) error {
	setString(&c.CredentialsFile, getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	setString(&c.APIKey, getenv("YOUTUBE_API_KEY"))
	setString(&c.APIKey, getenv("api_key"))
	setString(&c.Database, getenv("YTSTATS_DB"))
	setString(&c.SpreadsheetID, getenv("YTSTATS_SPREADSHEET_ID"))
	setString(&c.Worksheet, getenv("YTSTATS_WORKSHEET"))
	setString(&c.CredentialsFile, getenv("YTSTATS_CREDENTIALS"))
	setString(&c.LogLevel, getenv("YTSTATS_LOG_LEVEL"))
	setString(&c.LogFormat, getenv("YTSTATS_LOG_FORMAT"))

	if v := getenv("YTSTATS_RPS"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid YTSTATS_RPS %q: %w", v, err)
		}
		c.RequestsPerSecond = rps
	}
	return nil
}

func (c *Config) applyFlags(fs *pflag.FlagSet, flags Config) {
	c.FilePath = flags.FilePath
	c.ListMode = flags.ListMode
	c.NoSheets = flags.NoSheets
	c.NoTranscripts = flags.NoTranscripts
	c.ShowHelp = flags.ShowHelp

	if fs.Changed("api-key") {
		c.APIKey = flags.APIKey
	}
	if fs.Changed("db") {
		c.Database = flags.Database
	}
	if fs.Changed("spreadsheet") {
		c.SpreadsheetID = flags.SpreadsheetID
	}
	if fs.Changed("worksheet") {
		c.Worksheet = flags.Worksheet
	}
	if fs.Changed("credentials") {
		c.CredentialsFile = flags.CredentialsFile
	}
	if fs.Changed("log-level") {
		c.LogLevel = flags.LogLevel
	}
	if fs.Changed("log-format") {
		c.LogFormat = flags.LogFormat
	}
	if fs.Changed("rps") {
		c.RequestsPerSecond = flags.RequestsPerSecond
	}
	if fs.Changed("max-attempts") {
		c.MaxAttempts = flags.MaxAttempts
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Validate checks the settings for the selected mode.
func (c *Config) Validate() error {
	if c.ShowHelp {
		return nil
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	if c.LogFormat != LogFormatConsole && c.LogFormat != LogFormatJSON {
		return fmt.Errorf("invalid log format %q, want console or json", c.LogFormat)
	}
	if c.Database == "" {
		return errors.New("database path must not be empty")
	}
	if c.FilePath != "" && c.Input != "" {
		return errors.New("use either --file or a channel argument, not both")
	}
	if c.ListMode && c.FilePath != "" {
		return errors.New("--list cannot be combined with --file")
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests per second must not be negative, got %v", c.RequestsPerSecond)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if !c.ListMode && c.APIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// SheetsEnabled reports whether a spreadsheet export should be attempted.
func (c *Config) SheetsEnabled() bool {
	return !c.NoSheets && c.SpreadsheetID != ""
}

// RetryPolicy returns the rate-limit retry policy for API calls.
func (c *Config) RetryPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	p.MaxAttempts = c.MaxAttempts
	return p
}

// ShowHelp displays the help message with all available commands and flags
func ShowHelp(w io.Writer) {
	fmt.Fprintln(w, "YouTube Channel Stats")
	fmt.Fprintln(w, "=====================")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  ytstats [flags] [channel-or-video]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  Accepts a channel ID, video ID, channel or video URL, or @handle.")
	fmt.Fprintln(w, "  With no argument, prompts for one.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "FLAGS:")
	fmt.Fprintln(w, "      --no-sheets             Skip Google Sheets export (database only)")
	fmt.Fprintln(w, "      --no-transcripts        Skip transcript retrieval")
	fmt.Fprintln(w, "  -f, --file <path>           Process channels or videos from file (one per line, or first CSV column)")
	fmt.Fprintln(w, "  -l, --list                  List stored videos, optionally for one channel")
	fmt.Fprintln(w, "      --db <path|url>         SQLite path or postgres:// URL (default: youtube_data.db)")
	fmt.Fprintln(w, "      --spreadsheet <id>      Google Spreadsheet ID")
	fmt.Fprintln(w, "      --worksheet <name>      Worksheet name (default: Sheet1)")
	fmt.Fprintln(w, "      --credentials <path>    Service account key file (default: credentials.json)")
	fmt.Fprintln(w, "      --api-key <key>         YouTube Data API key")
	fmt.Fprintln(w, "      --rps <n>               Maximum API requests per second (default: 5)")
	fmt.Fprintln(w, "      --max-attempts <n>      Attempts per API call when rate limited (default: 4)")
	fmt.Fprintln(w, "      --config <path>         Settings file (default: ./ytstats.json or ~/.config/ytstats/ytstats.json)")
	fmt.Fprintln(w, "      --log-level <level>     debug, info, warn or error (default: info)")
	fmt.Fprintln(w, "      --log-format <format>   console or json (default: console)")
	fmt.Fprintln(w, "  -h, --help                  Show this help message")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "EXAMPLES:")
	fmt.Fprintln(w, "  ytstats UCPix8N6PMRI4KzgyjuZeF0g --no-sheets")
	fmt.Fprintln(w, "  ytstats https://www.youtube.com/@mkbhd")
	fmt.Fprintln(w, "  ytstats \"https://www.youtube.com/watch?v=dQw4w9WgXcQ\"")
	fmt.Fprintln(w, "  ytstats -f channels.txt --no-transcripts")
	fmt.Fprintln(w, "  ytstats --list UCPix8N6PMRI4KzgyjuZeF0g")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "ENVIRONMENT:")
	fmt.Fprintln(w, "  api_key, YOUTUBE_API_KEY    YouTube Data API key")
	fmt.Fprintln(w, "  YTSTATS_DB                  Database path or URL")
	fmt.Fprintln(w, "  YTSTATS_SPREADSHEET_ID      Google Spreadsheet ID")
	fmt.Fprintln(w, "  YTSTATS_WORKSHEET           Worksheet name")
	fmt.Fprintln(w, "  YTSTATS_CREDENTIALS         Service account key file")
	fmt.Fprintln(w, "  YTSTATS_LOG_LEVEL           Log level")
	fmt.Fprintln(w, "  YTSTATS_LOG_FORMAT          Log output, console or json")
	fmt.Fprintln(w, "  YTSTATS_RPS                 Maximum API requests per second")
	fmt.Fprintln(w, "  YTSTATS_CONFIG              Settings file")
}
