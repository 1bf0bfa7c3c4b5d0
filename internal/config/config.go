package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"autorenew/internal/models"
)

// Default returns the built-in configuration before environment overrides
func Default() models.Config {
	return models.Config{
		Env:             "prod",
		ProviderBaseURL: "https://support.euserv.com",
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) " +
			"Chrome/95.0.4638.69 Safari/537.36",
		RequestTimeout: 30 * time.Second,

		CaptchaBaseURL:    "https://api.apitruecaptcha.org",
		CheckCaptchaUsage: true,

		IMAPAddr:          "imap.gmail.com:993",
		SenderFilter:      "EUserv Support",
		SenderFallback:    "euserv.com",
		SubjectFilter:     "EUserv - PIN for the Confirmation of a Security Check",
		MaxMailCandidates: 10,
		PollInterval:      2 * time.Second,
		PinWait:           15 * time.Second,

		TelegramAPIHost: "https://api.telegram.org",

		LoginMaxRetry:   5,
		LoginBackoff:    5 * time.Second,
		SettleDelay:     15 * time.Second,
		PostRenewPause:  5 * time.Second,
		VerifyDelay:     15 * time.Second,
		AccountCooldown: 5 * time.Second,
	}
}

// Load builds the configuration from the environment. An optional .env file
// is read first; real environment variables win over file entries.
func Load(envFile string) (models.Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return models.Config{}, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg := Default()
	cfg.Env = env("AUTORENEW_ENV", cfg.Env)
	cfg.ProviderBaseURL = env("AUTORENEW_PROVIDER_URL", cfg.ProviderBaseURL)
	cfg.UserAgent = env("AUTORENEW_USER_AGENT", cfg.UserAgent)
	cfg.RequestTimeout = envDur("AUTORENEW_REQUEST_TIMEOUT_SEC", cfg.RequestTimeout)

	cfg.CaptchaBaseURL = env("TRUECAPTCHA_API_URL", cfg.CaptchaBaseURL)
	cfg.CaptchaUserID = env("TRUECAPTCHA_USERID", "")
	cfg.CaptchaAPIKey = env("TRUECAPTCHA_APIKEY", "")
	cfg.CheckCaptchaUsage = envBool("TRUECAPTCHA_CHECK_USAGE", cfg.CheckCaptchaUsage)

	cfg.IMAPAddr = env("AUTORENEW_IMAP_ADDR", cfg.IMAPAddr)
	cfg.MailAddress = env("AUTORENEW_MAIL_ADDRESS", "")
	cfg.MailPassword = env("AUTORENEW_MAIL_PASSWORD", "")
	cfg.SenderFilter = env("AUTORENEW_SENDER_FILTER", cfg.SenderFilter)
	cfg.SenderFallback = env("AUTORENEW_SENDER_FALLBACK", cfg.SenderFallback)
	cfg.SubjectFilter = env("AUTORENEW_SUBJECT_FILTER", cfg.SubjectFilter)
	cfg.MaxMailCandidates = envInt("AUTORENEW_MAX_MAILS", cfg.MaxMailCandidates)
	cfg.PollInterval = envDur("AUTORENEW_POLL_INTERVAL_SEC", cfg.PollInterval)
	cfg.PinWait = envDur("AUTORENEW_PIN_WAIT_SEC", cfg.PinWait)

	cfg.TelegramAPIHost = env("TG_API_HOST", cfg.TelegramAPIHost)
	cfg.TelegramBotToken = env("TG_BOT_TOKEN", "")
	cfg.TelegramChatID = env("TG_USER_ID", "")

	cfg.LoginMaxRetry = envInt("AUTORENEW_LOGIN_MAX_RETRY", cfg.LoginMaxRetry)
	cfg.LoginBackoff = envDur("AUTORENEW_LOGIN_BACKOFF_SEC", cfg.LoginBackoff)
	cfg.SettleDelay = envDur("AUTORENEW_SETTLE_DELAY_SEC", cfg.SettleDelay)
	cfg.HistoryDBPath = env("AUTORENEW_HISTORY_DB", "")

	if accountsFile := env("AUTORENEW_ACCOUNTS_FILE", ""); accountsFile != "" {
		accounts, err := LoadAccountsFile(accountsFile)
		if err != nil {
			return models.Config{}, err
		}
		cfg.Accounts = accounts
	} else {
		cfg.Accounts = pairAccounts(
			strings.Fields(env("AUTORENEW_USERS", "")),
			strings.Fields(env("AUTORENEW_SECRETS", "")),
		)
	}

	return cfg, nil
}

// LoadAccountsFile reads the account list from a YAML file
func LoadAccountsFile(path string) ([]models.Account, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read accounts file: %w", err)
	}

	var doc struct {
		Accounts []models.Account `yaml:"accounts"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse accounts file: %w", err)
	}
	return doc.Accounts, nil
}

// Validate is the single fatal startup gate. Anything it rejects aborts the
// run before the first network call.
func Validate(cfg models.Config) error {
	if len(cfg.Accounts) == 0 {
		return fmt.Errorf("no accounts configured")
	}
	for i, account := range cfg.Accounts {
		if account.Identifier == "" || account.Secret == "" {
			return fmt.Errorf("account %d is missing identifier or secret", i+1)
		}
	}
	if cfg.ProviderBaseURL == "" {
		return fmt.Errorf("provider base URL is empty")
	}
	if (cfg.CaptchaUserID == "") != (cfg.CaptchaAPIKey == "") {
		return fmt.Errorf("captcha credentials are incomplete: both userid and apikey are required")
	}
	if cfg.MailAddress == "" || cfg.MailPassword == "" {
		return fmt.Errorf("mailbox credentials are not configured")
	}
	if cfg.LoginMaxRetry < 1 {
		return fmt.Errorf("login retry budget must be at least 1")
	}
	return nil
}

// pairAccounts zips the parallel identifier/secret lists. A length mismatch
// is left for Validate to reject: the shorter list produces incomplete
// accounts rather than silently dropping the surplus entries.
func pairAccounts(users, secrets []string) []models.Account {
	n := len(users)
	if len(secrets) > n {
		n = len(secrets)
	}
	accounts := make([]models.Account, 0, n)
	for i := 0; i < n; i++ {
		var account models.Account
		if i < len(users) {
			account.Identifier = users[i]
		}
		if i < len(secrets) {
			account.Secret = secrets[i]
		}
		accounts = append(accounts, account)
	}
	return accounts
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDur(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return time.Duration(i) * time.Second
		}
	}
	return def
}
