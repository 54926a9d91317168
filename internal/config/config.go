// Package config provides functionality for managing configuration options
// for the gateway and the command-line client using command-line flags,
// environment variables and an optional config file.
//
// Precedence, lowest first: built-in defaults, config file, environment,
// flags given explicitly on the command line.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/atinyakov/veil/internal/codec"
)

// DefaultUpstream is the card search backend the web client talks to.
const DefaultUpstream = "https://mtg-ai-backend.onrender.com"

// Options holds the configuration values for the gateway.
type Options struct {
	// Address defines the server's listening address (ip:port).
	Address string `json:"address" yaml:"address" envconfig:"SERVER_ADDRESS"`

	// DatabaseDSN holds the audit database connection string. Empty disables auditing.
	DatabaseDSN string `json:"database_dsn" yaml:"database_dsn" envconfig:"DATABASE_DSN"`

	// Upstream is the base URL of the plaintext backend requests are relayed to.
	Upstream string `json:"upstream" yaml:"upstream" envconfig:"UPSTREAM_URL"`

	// Key is the shared obfuscation secret.
	Key string `json:"key" yaml:"key" envconfig:"VEIL_KEY"`

	// MaxAge rejects envelopes whose timestamp is further than this from now.
	// Zero disables the check.
	MaxAge Duration `json:"max_age" yaml:"max_age" envconfig:"VEIL_MAX_AGE"`

	// AuditRetention is how long audit rows are kept.
	AuditRetention Duration `json:"audit_retention" yaml:"audit_retention" envconfig:"AUDIT_RETENTION"`

	// AuditEndpoint mounts GET /api/audit. The endpoint has no access control
	// and is meant for operators on a private network only.
	AuditEndpoint bool `json:"audit_endpoint" yaml:"audit_endpoint" envconfig:"AUDIT_ENDPOINT"`

	// LogLevel is passed to the logger.
	LogLevel string `json:"log_level" yaml:"log_level" envconfig:"LOG_LEVEL"`

	// TLSCert and TLSKey enable HTTPS when both are set.
	TLSCert string `json:"tls_cert" yaml:"tls_cert" envconfig:"TLS_CERT"`
	TLSKey  string `json:"tls_key" yaml:"tls_key" envconfig:"TLS_KEY"`

	// Config is the path to the config file.
	Config string `json:"-" yaml:"-" envconfig:"CONFIG"`
}

// ClientOptions holds the configuration values for the command-line client.
type ClientOptions struct {
	Command  string `json:"-" yaml:"-" ignored:"true"`
	BaseURL  string `json:"url" yaml:"url" envconfig:"VEIL_URL"`
	CAFile   string `json:"ca" yaml:"ca" envconfig:"VEIL_CA"`
	Key      string `json:"key" yaml:"key" envconfig:"VEIL_KEY"`
	APIKey   string `json:"api_key" yaml:"api_key" envconfig:"MTG_AI_API_KEY"`
	Model    string `json:"model" yaml:"model" envconfig:"MTG_AI_MODEL"`
	Provider string `json:"provider" yaml:"provider" envconfig:"MTG_AI_PROVIDER"`
	Language string `json:"language" yaml:"language" envconfig:"MTG_AI_LANGUAGE"`
	Sort     string `json:"sort" yaml:"sort" ignored:"true"`
	Order    string `json:"order" yaml:"order" ignored:"true"`
	// Plain disables envelopes and talks to the server in clear JSON.
	Plain   bool     `json:"plain" yaml:"plain" envconfig:"VEIL_PLAIN"`
	Sign    bool     `json:"sign" yaml:"sign" envconfig:"VEIL_SIGN"`
	Timeout Duration `json:"timeout" yaml:"timeout" envconfig:"VEIL_TIMEOUT"`
	Version bool     `json:"-" yaml:"-" ignored:"true"`
	Config  string   `json:"-" yaml:"-" envconfig:"CONFIG"`
}

func defaultOptions() *Options {
	return &Options{
		Address:        "localhost:8080",
		Upstream:       DefaultUpstream,
		Key:            codec.DefaultKey,
		AuditRetention: Duration(30 * 24 * time.Hour),
		LogLevel:       "info",
		Config:         "config.json",
	}
}

func defaultClientOptions() *ClientOptions {
	return &ClientOptions{
		BaseURL:  "http://localhost:8080",
		Key:      codec.DefaultKey,
		Language: "en",
		Sort:     "name",
		Order:    "asc",
		Timeout:  Duration(30 * time.Second),
		Config:   "client.json",
	}
}

func bindFlags(fs *pflag.FlagSet, o *Options) {
	fs.StringVarP(&o.Address, "address", "a", o.Address, "run on ip:port server")
	fs.StringVarP(&o.DatabaseDSN, "dsn", "d", o.DatabaseDSN, "audit db address")
	fs.StringVarP(&o.Upstream, "upstream", "u", o.Upstream, "plaintext backend base URL")
	fs.StringVarP(&o.Key, "key", "k", o.Key, "shared obfuscation key")
	fs.Var(&o.MaxAge, "max-age", "reject envelopes older than this (0 disables)")
	fs.Var(&o.AuditRetention, "audit-retention", "how long to keep audit rows")
	fs.BoolVar(&o.AuditEndpoint, "audit-endpoint", o.AuditEndpoint, "expose GET /api/audit (no access control)")
	fs.StringVarP(&o.LogLevel, "log-level", "l", o.LogLevel, "log level")
	fs.StringVar(&o.TLSCert, "tls-cert", o.TLSCert, "path to TLS certificate")
	fs.StringVar(&o.TLSKey, "tls-key", o.TLSKey, "path to TLS key")
	fs.StringVarP(&o.Config, "config", "c", o.Config, "path to config file")
}

func bindClientFlags(fs *pflag.FlagSet, o *ClientOptions) {
	fs.StringVar(&o.Command, "cmd", o.Command, "command: search | examples | models | validate | wrap | unwrap | sign")
	fs.StringVar(&o.BaseURL, "url", o.BaseURL, "server base URL")
	fs.StringVar(&o.CAFile, "ca", o.CAFile, "path to CA cert")
	fs.StringVarP(&o.Key, "key", "k", o.Key, "shared obfuscation key")
	fs.StringVar(&o.APIKey, "api-key", o.APIKey, "AI provider API key")
	fs.StringVar(&o.Model, "model", o.Model, "AI model id")
	fs.StringVar(&o.Provider, "provider", o.Provider, "AI provider")
	fs.StringVar(&o.Language, "lang", o.Language, "answer language (en | zh)")
	fs.StringVar(&o.Sort, "sort", o.Sort, "sort field")
	fs.StringVar(&o.Order, "order", o.Order, "sort order (asc | desc)")
	fs.BoolVar(&o.Plain, "plain", o.Plain, "send plaintext JSON instead of envelopes")
	fs.BoolVar(&o.Sign, "sign", o.Sign, "attach payload signatures")
	fs.Var(&o.Timeout, "timeout", "request timeout")
	fs.BoolVar(&o.Version, "version", o.Version, "show build version and date")
	fs.StringVarP(&o.Config, "config", "c", o.Config, "path to config file")
}

// Parse builds the gateway Options from args (without the program name).
func Parse(args []string) (*Options, error) {
	opts := defaultOptions()
	if _, err := load(args, opts, bindFlags, defaultOptions); err != nil {
		return nil, err
	}
	if opts.Key == "" {
		return nil, errors.New("config: obfuscation key must not be empty")
	}
	return opts, nil
}

// ParseClient builds the client options from args (without the program name)
// and returns the remaining positional arguments.
func ParseClient(args []string) (*ClientOptions, []string, error) {
	opts := defaultClientOptions()
	rest, err := load(args, opts, bindClientFlags, defaultClientOptions)
	if err != nil {
		return nil, nil, err
	}
	if opts.Key == "" && !opts.Plain {
		return nil, nil, errors.New("config: obfuscation key must not be empty")
	}
	return opts, rest, nil
}

// load applies defaults, file, environment and explicit flags to dst in that order.
func load[T any](args []string, dst *T, bind func(*pflag.FlagSet, *T), defaults func() *T) ([]string, error) {
	fs := pflag.NewFlagSet("veil", pflag.ContinueOnError)
	bind(fs, defaults())
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	path := fs.Lookup("config").Value.String()
	if env := os.Getenv("CONFIG"); env != "" && !fs.Changed("config") {
		path = env
	}
	if err := readFile(path, dst); err != nil {
		return nil, err
	}

	if err := envconfig.Process("", dst); err != nil {
		return nil, fmt.Errorf("error while reading environment: %w", err)
	}

	// Re-apply only the flags the user actually typed.
	final := pflag.NewFlagSet("veil", pflag.ContinueOnError)
	bind(final, dst)
	var setErr error
	fs.Visit(func(f *pflag.Flag) {
		if err := final.Set(f.Name, f.Value.String()); err != nil && setErr == nil {
			setErr = err
		}
	})
	return fs.Args(), setErr
}

// readFile loads a JSON (comments and trailing commas allowed) or YAML file.
// A missing file is not an error.
func readFile(path string, dst any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("error while reading config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, dst)
	default:
		err = json.Unmarshal(jsonc.ToJSON(data), dst)
	}
	if err != nil {
		return fmt.Errorf("error while parsing config file: %w", err)
	}
	return nil
}
