package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mssola/useragent"
	"gopkg.in/yaml.v3"

	dErrors "mutuals/pkg/domain-errors"
)

const envPrefix = "MUTUALS_"

// DefaultUserAgent is a desktop Firefox identification string.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:103.0) Gecko/20100101 Firefox/103.0"

// Config is the full run configuration. Zero values are never used directly;
// Load always starts from Default.
type Config struct {
	HARPath    string `yaml:"har_path" validate:"required"`
	OutputPath string `yaml:"output_path" validate:"required"`

	FetchGroups      bool `yaml:"fetch_groups"`
	FetchConnections bool `yaml:"fetch_connections"`

	APIBaseURL string `yaml:"api_base_url" validate:"required,url"`
	UserAgent  string `yaml:"user_agent" validate:"required"`
	Referer    string `yaml:"referer" validate:"omitempty,url"`

	AttemptDelay        time.Duration `yaml:"attempt_delay" validate:"gte=0"`
	RequestTimeout      time.Duration `yaml:"request_timeout" validate:"gt=0"`
	TransportRetries    int           `yaml:"transport_retries" validate:"gte=0,lte=10"`
	TransportRetryDelay time.Duration `yaml:"transport_retry_delay" validate:"gte=0"`

	ProgressEvery         int `yaml:"progress_every" validate:"gte=1"`
	ConsoleMinGroups      int `yaml:"console_min_groups" validate:"gte=0"`
	ConsoleMinConnections int `yaml:"console_min_connections" validate:"gte=0"`

	LogLevel    string `yaml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat   string `yaml:"log_format" validate:"oneof=text json"`
	MetricsAddr string `yaml:"metrics_addr" validate:"omitempty,hostname_port"`
}

// Default reads requests.har, writes results.txt, queries both lookups and
// waits 2s per attempt.
func Default() Config {
	return Config{
		HARPath:               "requests.har",
		OutputPath:            "results.txt",
		FetchGroups:           true,
		FetchConnections:      true,
		APIBaseURL:            "https://discord.com/api/v9",
		UserAgent:             DefaultUserAgent,
		Referer:               "https://discord.com/",
		AttemptDelay:          2 * time.Second,
		RequestTimeout:        15 * time.Second,
		TransportRetries:      2,
		TransportRetryDelay:   time.Second,
		ProgressEvery:         5,
		ConsoleMinGroups:      2,
		ConsoleMinConnections: 1,
		LogLevel:              "info",
		LogFormat:             "text",
	}
}

var validate = validator.New()

// Load builds a Config from defaults, an optional YAML file and MUTUALS_*
// environment variables, in that order of precedence, then validates it.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "read config file")
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeValidation, "parse config file")
		}
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct constraints plus the rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return dErrors.Wrap(formatValidationError(err), dErrors.CodeValidation, "invalid config")
	}
	if !c.FetchGroups && !c.FetchConnections {
		return dErrors.New(dErrors.CodeValidation, "at least one of fetch_groups or fetch_connections must be enabled")
	}
	if !isBrowserUserAgent(c.UserAgent) {
		return dErrors.New(dErrors.CodeValidation, "user_agent must identify a browser")
	}
	return nil
}

func isBrowserUserAgent(s string) bool {
	ua := useragent.New(s)
	if ua.Bot() || ua.Mozilla() == "" {
		return false
	}
	name, _ := ua.Browser()
	return name != ""
}

func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Field(), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"HAR_PATH":     &cfg.HARPath,
		"OUTPUT_PATH":  &cfg.OutputPath,
		"API_BASE_URL": &cfg.APIBaseURL,
		"USER_AGENT":   &cfg.UserAgent,
		"REFERER":      &cfg.Referer,
		"LOG_LEVEL":    &cfg.LogLevel,
		"LOG_FORMAT":   &cfg.LogFormat,
		"METRICS_ADDR": &cfg.MetricsAddr,
	}
	for key, dst := range strs {
		if v, ok := lookup(envPrefix + key); ok {
			*dst = v
		}
	}

	bools := map[string]*bool{
		"FETCH_GROUPS":      &cfg.FetchGroups,
		"FETCH_CONNECTIONS": &cfg.FetchConnections,
	}
	for key, dst := range bools {
		v, ok := lookup(envPrefix + key)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeValidation, envPrefix+key)
		}
		*dst = b
	}

	durations := map[string]*time.Duration{
		"ATTEMPT_DELAY":         &cfg.AttemptDelay,
		"REQUEST_TIMEOUT":       &cfg.RequestTimeout,
		"TRANSPORT_RETRY_DELAY": &cfg.TransportRetryDelay,
	}
	for key, dst := range durations {
		v, ok := lookup(envPrefix + key)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeValidation, envPrefix+key)
		}
		*dst = d
	}
	return nil
}
