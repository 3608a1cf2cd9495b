package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/autosendmail/autosendmail/internal/identity"
)

// Account holds the configuration for a single sending account.
// Each account has its own schedule and prompt; the name doubles as the
// scheduler job identifier, so it must be unique.
type Account struct {
	Name          string `json:"name"`
	FromEmail     string `json:"from_email"`
	FromName      string `json:"from_name"`
	ToEmail       string `json:"to_email"`
	Cron          string `json:"cron"`
	AIPrompt      string `json:"ai_prompt"`
	SubjectPrefix string `json:"subject_prefix"`
}

// AIConfig holds the chat-completion API settings
type AIConfig struct {
	APIKey  string
	APIBase string
	Model   string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string
	Format string
}

// Config holds all configuration for the daemon
type Config struct {
	ResendAPIKey string
	AI           AIConfig
	Timezone     string
	TGBotToken   string
	TGChatID     string
	Log          LogConfig
	Accounts     []Account
}

// Load reads configuration from environment variables.
// Required: RESEND_API_KEY, AI_API_KEY and a non-empty ACCOUNTS JSON array.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		ResendAPIKey: v.GetString("RESEND_API_KEY"),
		AI: AIConfig{
			APIKey:  v.GetString("AI_API_KEY"),
			APIBase: v.GetString("AI_API_BASE"),
			Model:   v.GetString("AI_MODEL"),
		},
		Timezone:   v.GetString("TZ"),
		TGBotToken: v.GetString("TG_BOT_TOKEN"),
		TGChatID:   v.GetString("TG_CHAT_ID"),
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
	}

	if cfg.ResendAPIKey == "" {
		return nil, fmt.Errorf("missing required environment variable RESEND_API_KEY")
	}
	if cfg.AI.APIKey == "" {
		return nil, fmt.Errorf("missing required environment variable AI_API_KEY")
	}

	accounts, err := parseAccounts(
		v.GetString("ACCOUNTS"),
		v.GetString("DEFAULT_EMAIL_DOMAIN"),
		v.GetString("DEFAULT_FROM_NAME"),
		v.GetString("DEFAULT_AI_PROMPT"),
	)
	if err != nil {
		return nil, err
	}
	cfg.Accounts = accounts

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("AI_API_BASE", "https://api.openai.com/v1")
	v.SetDefault("AI_MODEL", "gpt-4o-mini")
	v.SetDefault("TZ", "Asia/Shanghai")
	v.SetDefault("ACCOUNTS", "[]")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

// parseAccounts decodes the ACCOUNTS JSON array and applies the identity
// and prompt fallbacks before validating each account.
func parseAccounts(raw, defaultDomain, defaultFromName, defaultPrompt string) ([]Account, error) {
	var accounts []Account
	if err := json.Unmarshal([]byte(raw), &accounts); err != nil {
		return nil, fmt.Errorf("failed to parse ACCOUNTS as a JSON array: %w", err)
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("at least one account must be configured in ACCOUNTS")
	}

	seen := make(map[string]struct{}, len(accounts))
	for i := range accounts {
		acc := &accounts[i]

		if acc.Name == "" {
			acc.Name = fmt.Sprintf("account_%d", i)
		}

		// Fall back to a generated sender identity when the account does
		// not bring its own.
		if strings.TrimSpace(acc.FromEmail) == "" && defaultDomain != "" {
			email, name := identity.Random(defaultDomain)
			acc.FromEmail = email
			if strings.TrimSpace(acc.FromName) == "" {
				acc.FromName = name
			}
		}
		if strings.TrimSpace(acc.FromName) == "" && defaultFromName != "" {
			acc.FromName = defaultFromName
		}
		if strings.TrimSpace(acc.AIPrompt) == "" {
			acc.AIPrompt = defaultPrompt
		}

		if err := acc.validate(); err != nil {
			return nil, fmt.Errorf("ACCOUNTS[%d]: %w", i, err)
		}

		if _, ok := seen[acc.Name]; ok {
			return nil, fmt.Errorf("ACCOUNTS[%d]: duplicate account name %q", i, acc.Name)
		}
		seen[acc.Name] = struct{}{}
	}

	return accounts, nil
}

// validate checks the per-account invariants
func (a *Account) validate() error {
	required := map[string]string{
		"name":       a.Name,
		"from_email": a.FromEmail,
		"to_email":   a.ToEmail,
		"cron":       a.Cron,
		"ai_prompt":  a.AIPrompt,
	}
	for _, field := range []string{"name", "from_email", "to_email", "cron", "ai_prompt"} {
		if strings.TrimSpace(required[field]) == "" {
			return fmt.Errorf("missing required field %q", field)
		}
	}

	if fields := strings.Fields(a.Cron); len(fields) != 5 {
		return fmt.Errorf(
			"cron expression must have 5 fields (minute hour day month weekday), got %d: %q",
			len(fields), a.Cron,
		)
	}

	return nil
}
