package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	TransportGmail = "gmail"
	TransportIMAP  = "imap"
)

// GmailSettings locates the OAuth client secret and cached token.
type GmailSettings struct {
	CredentialsFile string `mapstructure:"credentials_file"`
	TokenFile       string `mapstructure:"token_file"`
}

// IMAPSettings describes a plain IMAP account. The password is looked up
// through the credential store, never from this file.
type IMAPSettings struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	Username      string `mapstructure:"username"`
	TLS           bool   `mapstructure:"tls"`
	DraftsMailbox string `mapstructure:"drafts_mailbox"`
}

// AISettings configures the reply generation backend.
type AISettings struct {
	Model     string `mapstructure:"model"`
	MaxTokens int    `mapstructure:"max_tokens"`
	BaseURL   string `mapstructure:"base_url"`

	// CircuitBreaker stops calling the backend after repeated failures.
	CircuitBreaker bool `mapstructure:"circuit_breaker"`
}

// Settings is the process configuration. It is read once at startup.
type Settings struct {
	PollIntervalSec int    `mapstructure:"poll_interval_sec"`
	MaxBatch        int    `mapstructure:"max_batch"`
	UserID          string `mapstructure:"user_id"`
	IsolateMessages bool   `mapstructure:"isolate_messages"`
	Transport       string `mapstructure:"transport"`
	FiltersPath     string `mapstructure:"filters_path"`
	LogFile         string `mapstructure:"log_file"`
	LogLevel        string `mapstructure:"log_level"`

	Gmail GmailSettings `mapstructure:"gmail"`
	IMAP  IMAPSettings  `mapstructure:"imap"`
	AI    AISettings    `mapstructure:"ai"`
}

var defaults = map[string]any{
	"poll_interval_sec":      600,
	"max_batch":              10,
	"user_id":                "me",
	"isolate_messages":       false,
	"transport":              TransportGmail,
	"filters_path":           "filters.json",
	"log_file":               "tdraft.log",
	"log_level":              "info",
	"gmail.credentials_file": "credentials.json",
	"gmail.token_file":       "token.json",
	"imap.host":              "",
	"imap.port":              993,
	"imap.username":          "",
	"imap.tls":               true,
	"imap.drafts_mailbox":    "Drafts",
	"ai.model":               "gpt-4o-mini",
	"ai.max_tokens":          150,
	"ai.base_url":            "",
	"ai.circuit_breaker":     false,
}

// flagKeys maps command-line flag names to settings keys.
var flagKeys = map[string]string{
	"interval":  "poll_interval_sec",
	"max-batch": "max_batch",
	"transport": "transport",
	"isolate":   "isolate_messages",
	"log-level": "log_level",
	"log-file":  "log_file",
	"filters":   "filters_path",

	"circuit-breaker": "ai.circuit_breaker",
}

// Load reads settings from defaults, the YAML file at path (optional), TDRAFT_*
// environment variables and any changed flags in fs, in increasing priority.
func Load(path string, fs *pflag.FlagSet) (*Settings, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix("TDRAFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding flag %s: %w", name, err)
				}
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) Validate() error {
	if s.PollIntervalSec <= 0 {
		return fmt.Errorf("poll_interval_sec must be positive, got %d", s.PollIntervalSec)
	}
	if s.MaxBatch <= 0 {
		return fmt.Errorf("max_batch must be positive, got %d", s.MaxBatch)
	}
	if s.UserID == "" {
		return errors.New("user_id must not be empty")
	}
	switch s.Transport {
	case TransportGmail:
	case TransportIMAP:
		if s.IMAP.Host == "" || s.IMAP.Username == "" {
			return errors.New("imap transport needs imap.host and imap.username")
		}
		if s.IMAP.Port <= 0 {
			return fmt.Errorf("imap.port must be positive, got %d", s.IMAP.Port)
		}
	default:
		return fmt.Errorf("unknown transport %q (want %q or %q)", s.Transport, TransportGmail, TransportIMAP)
	}
	return nil
}

func (s *Settings) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalSec) * time.Second
}
