package models

import "time"

// Config represents the application configuration
type Config struct {
	Env string

	// Provider portal
	ProviderBaseURL string
	UserAgent       string
	RequestTimeout  time.Duration

	// Captcha solving API
	CaptchaBaseURL    string
	CaptchaUserID     string
	CaptchaAPIKey     string
	CheckCaptchaUsage bool

	// Mailbox receiving the out-of-band PINs
	IMAPAddr          string
	MailAddress       string
	MailPassword      string
	SenderFilter      string
	SenderFallback    string
	SubjectFilter     string
	MaxMailCandidates int
	PollInterval      time.Duration
	PinWait           time.Duration

	// Notification channel
	TelegramAPIHost  string
	TelegramBotToken string
	TelegramChatID   string

	// Accounts to process, strictly in order
	Accounts []Account

	// Pacing and budgets
	LoginMaxRetry   int
	LoginBackoff    time.Duration
	SettleDelay     time.Duration
	PostRenewPause  time.Duration
	VerifyDelay     time.Duration
	AccountCooldown time.Duration

	// Optional run-history database, disabled when empty
	HistoryDBPath string
}
