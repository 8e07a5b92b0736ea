// Package config loads esimcore's runtime configuration from environment
// variables (spec §6).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration, loaded from environment
// variables.
type Config struct {
	// Mode selects the runtime mode: "api", "worker", or "reconcile".
	Mode string `env:"ESIMCORE_MODE" envDefault:"api"`

	// Server
	Host string `env:"ESIMCORE_HOST" envDefault:"0.0.0.0"`
	Port int    `env:"ESIMCORE_PORT" envDefault:"8080"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Document store (PocketBase)
	PocketBaseURL      string `env:"POCKETBASE_URL" envDefault:"http://localhost:8090"`
	PocketBaseEmail    string `env:"POCKETBASE_ADMIN_EMAIL"`
	PocketBasePassword string `env:"POCKETBASE_ADMIN_PASSWORD"`

	// Redis (circuit breaker TTL cache)
	RedisURL string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// Admin API bearer token (§6: "Admin endpoints require a bearer token").
	AdminBearerToken string `env:"ESIMCORE_ADMIN_TOKEN"`

	// Payment/channel webhook signature secrets (HMAC-SHA256, §6).
	StripeSecretKey       string `env:"STRIPE_SECRET_KEY"`
	PaymentWebhookSecret  string `env:"PAYMENT_WEBHOOK_SECRET"`
	TalkTalkWebhookSecret string `env:"NAVER_TALKTALK_WEBHOOK_SECRET"`
	KakaoWebhookSecret    string `env:"KAKAO_WEBHOOK_SECRET"`

	// Naver Commerce (sales + SmartStore inquiry channel)
	NaverCommerceAppID         string `env:"NAVER_COMMERCE_APP_ID"`
	NaverCommerceAppSecret     string `env:"NAVER_COMMERCE_APP_SECRET"`
	NaverCommerceWebhookSecret string `env:"NAVER_COMMERCE_WEBHOOK_SECRET"`
	NaverCommerceBaseURL       string `env:"NAVER_COMMERCE_BASE_URL" envDefault:"https://api.commerce.naver.com"`
	NaverCommerceTokenURL      string `env:"NAVER_COMMERCE_TOKEN_URL" envDefault:"https://api.commerce.naver.com/external/v1/oauth2/token"`

	// Naver TalkTalk (inquiry channel)
	TalkTalkClientID  string `env:"NAVER_TALKTALK_CLIENT_ID"`
	TalkTalkSecret    string `env:"NAVER_TALKTALK_SECRET"`
	TalkTalkChannelID string `env:"NAVER_TALKTALK_CHANNEL_ID"`
	TalkTalkBaseURL   string `env:"NAVER_TALKTALK_BASE_URL" envDefault:"https://gw.talk.naver.com"`
	TalkTalkTokenURL  string `env:"NAVER_TALKTALK_TOKEN_URL" envDefault:"https://api.commerce.naver.com/external/v1/oauth2/token"`

	// Kakao (inquiry channel)
	KakaoRESTAPIKey string `env:"KAKAO_REST_API_KEY"`
	KakaoBaseURL    string `env:"KAKAO_BASE_URL" envDefault:"https://center-api.kakao.com"`

	// Email inquiry channel (outbound SMTP relay; inbound is polled through
	// InboxRelayURL since no mailbox SDK appears anywhere in the retrieval
	// pack).
	EmailInquiryInboxAddress string `env:"EMAIL_INQUIRY_INBOX_ADDRESS"`
	EmailSMTPHost            string `env:"EMAIL_SMTP_HOST"`
	EmailSMTPPort            int    `env:"EMAIL_SMTP_PORT" envDefault:"587"`
	EmailSMTPUsername        string `env:"EMAIL_SMTP_USERNAME"`
	EmailSMTPPassword        string `env:"EMAIL_SMTP_PASSWORD"`
	EmailFromAddress         string `env:"EMAIL_FROM_ADDRESS"`
	EmailInboxRelayURL       string `env:"EMAIL_INBOX_RELAY_URL"`

	// Manual fulfillment terminal (C7).
	DiscordWebhookURL string `env:"DISCORD_WEBHOOK_URL"`

	// Provider slugs to construct adapters for, in priority order
	// (earlier entries rank higher per §3's Provider Config priority
	// attribute); active is derived per-adapter from credential presence,
	// since provider_configs is not among §6's persisted collections.
	ProviderSlugs []string `env:"ESIMCORE_PROVIDER_SLUGS" envDefault:"airalo,esimcard,mobimatter,redteago" envSeparator:","`

	// Fulfillment deadline budget, inherited from the triggering webhook
	// (§4.10). 25s default leaves headroom inside a typical 30s webhook
	// budget. The value is parsed as a Go duration string (e.g. "25s"), not
	// as a bare millisecond count.
	FulfillmentBudget time.Duration `env:"FULFILLMENT_BUDGET_MS" envDefault:"25s"`

	// Reconciliation sweep (Open Question (b)): minimum requirement is to
	// pick up orders stuck in fulfillment_started older than one deadline
	// budget.
	ReconcileInterval   time.Duration `env:"RECONCILE_INTERVAL" envDefault:"60s"`
	ReconcileStaleAfter time.Duration `env:"RECONCILE_STALE_AFTER" envDefault:"25s"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config from env: %w", err)
	}
	return cfg, nil
}

// ListenAddr returns the address the HTTP server should listen on.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ProviderCredentials resolves the <SLUG>_API_KEY / _API_SECRET / _API_URL
// environment triple for a given provider slug. Absence of the key or URL
// means the provider is unconfigured and its adapter must report disabled
// (§6: absence of credentials marks an adapter disabled without crashing
// the process).
func ProviderCredentials(slug string) (apiKey, apiSecret, apiURL string) {
	prefix := strings.ToUpper(strings.ReplaceAll(slug, "-", "_"))
	return os.Getenv(prefix + "_API_KEY"), os.Getenv(prefix + "_API_SECRET"), os.Getenv(prefix + "_API_URL")
}
