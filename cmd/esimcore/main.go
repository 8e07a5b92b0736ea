package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/haneulsim/esimcore/internal/automationlog"
	"github.com/haneulsim/esimcore/internal/config"
	"github.com/haneulsim/esimcore/internal/httpserver"
	"github.com/haneulsim/esimcore/internal/platform"
	"github.com/haneulsim/esimcore/internal/reconcile"
	"github.com/haneulsim/esimcore/internal/store"
	"github.com/haneulsim/esimcore/internal/telemetry"
	"github.com/haneulsim/esimcore/internal/webhook"
	"github.com/haneulsim/esimcore/pkg/breaker"
	"github.com/haneulsim/esimcore/pkg/cascade"
	"github.com/haneulsim/esimcore/pkg/channel"
	"github.com/haneulsim/esimcore/pkg/credential"
	"github.com/haneulsim/esimcore/pkg/fulfillment"
	"github.com/haneulsim/esimcore/pkg/inquiry"
	"github.com/haneulsim/esimcore/pkg/inquirychannel/email"
	"github.com/haneulsim/esimcore/pkg/inquirychannel/kakao"
	"github.com/haneulsim/esimcore/pkg/inquirychannel/smartstore"
	"github.com/haneulsim/esimcore/pkg/inquirychannel/talktalk"
	"github.com/haneulsim/esimcore/pkg/manual"
	"github.com/haneulsim/esimcore/pkg/order"
	"github.com/haneulsim/esimcore/pkg/provider/airalo"
	"github.com/haneulsim/esimcore/pkg/provider/esimcard"
	"github.com/haneulsim/esimcore/pkg/provider/mobimatter"
	"github.com/haneulsim/esimcore/pkg/provider/redteago"
)

func main() {
	mode := flag.String("mode", "", "run mode: api, worker, or reconcile (overrides ESIMCORE_MODE)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: loading config: %v\n", err)
		os.Exit(1)
	}

	if *mode != "" {
		cfg.Mode = *mode
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting esimcore", "mode", cfg.Mode, "listen", cfg.ListenAddr())

	docStore := store.NewPocketBaseStore(cfg.PocketBaseURL, cfg.PocketBaseEmail, cfg.PocketBasePassword)

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	metricsReg := telemetry.NewMetricsRegistry()

	orderRepo := order.NewRepository(docStore.Collection(order.CollectionName))
	productMapper := order.NewStoreProductMapper(docStore.Collection("product_mappings"))
	breakerStore := breaker.New(docStore.Collection(breaker.CollectionName), rdb, logger)

	providers := buildProviders(cfg)
	cascadeProviders := func() []cascade.ProviderConfig { return providers(logger) }

	manualNotifier := manual.NewNotifier(cfg.DiscordWebhookURL, &http.Client{Timeout: 10 * time.Second}, logger)

	logWriter := automationlog.NewWriter(docStore.Collection(automationlog.CollectionName), logger)
	logWriter.Start(ctx)
	defer logWriter.Close()

	fulfillmentSvc := &fulfillment.Service{
		Machine:        orderRepo.Machine(),
		Breaker:        breakerStore,
		ManualNotifier: manualNotifier,
		EmailPort:      stubEmailPort{logger: logger},
		AutomationLog:  logWriter,
	}

	inquiryRegistry := buildInquiryChannels(cfg, logger)
	inquiryService := inquiry.NewService(
		docStore.Collection(inquiry.InquiriesCollection),
		docStore.Collection(inquiry.MessagesCollection),
		inquiryRegistry,
	)

	srv := httpserver.NewServer(cfg, logger, docStore, rdb, metricsReg)

	orderHandler := order.NewHandler(logger, orderRepo, stubEmailPort{logger: logger})
	srv.AdminRouter.Mount("/orders", orderHandler.Routes())

	inquiryHandler := inquiry.NewHandler(logger, inquiryService)
	srv.AdminRouter.Mount("/inquiries", inquiryHandler.Routes())

	paymentSecret := cfg.PaymentWebhookSecret
	if paymentSecret == "" {
		paymentSecret = cfg.StripeSecretKey
	}
	paymentHandler := webhook.New(logger, orderRepo, productMapper, fulfillmentSvc, cascadeProviders, cfg.FulfillmentBudget, paymentSecret)
	srv.Router.Mount("/", paymentHandler.Routes())

	channelHandler := webhook.NewChannelHandler(logger, inquiryService, channelVerifiers(inquiryRegistry))
	srv.Router.Mount("/", channelHandler.Routes())

	sweeper := reconcile.New(orderRepo, fulfillmentSvc, cascadeProviders, logger, cfg.ReconcileInterval, cfg.ReconcileStaleAfter, cfg.FulfillmentBudget)

	switch cfg.Mode {
	case "api":
		go func() {
			if err := sweeper.Run(ctx); err != nil {
				logger.Error("reconcile sweeper stopped", "error", err)
			}
		}()
		return runAPI(ctx, cfg, logger, srv)
	case "worker", "reconcile":
		return sweeper.Run(ctx)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, srv *httpserver.Server) error {
	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// buildProviders constructs the eSIM supplier adapters from <SLUG>_API_KEY /
// _API_SECRET / _API_URL env triples (config.ProviderCredentials), in the
// priority order given by ESIMCORE_PROVIDER_SLUGS. OAuth2 adapters (airalo,
// mobimatter) derive their token endpoint from <slug>_API_URL + "/oauth/token"
// since the env schema carries only one URL per provider; an adapter whose
// credentials are absent still gets constructed; its own IsEnabled() then
// reports it inactive and cascade.Run filters it out.
func buildProviders(cfg *config.Config) func(logger *slog.Logger) []cascade.ProviderConfig {
	tokens := credential.NewCache()

	return func(logger *slog.Logger) []cascade.ProviderConfig {
		out := make([]cascade.ProviderConfig, 0, len(cfg.ProviderSlugs))
		for i, slug := range cfg.ProviderSlugs {
			apiKey, apiSecret, apiURL := config.ProviderCredentials(slug)
			priority := len(cfg.ProviderSlugs) - i

			var adapter channel.Provider
			switch slug {
			case "airalo":
				adapter = airalo.New(airalo.Config{
					ClientID:     apiKey,
					ClientSecret: apiSecret,
					BaseURL:      apiURL,
					TokenURL:     apiURL + "/oauth/token",
				}, tokens)
			case "esimcard":
				adapter = esimcard.New(esimcard.Config{APIKey: apiKey, BaseURL: apiURL})
			case "mobimatter":
				adapter = mobimatter.New(mobimatter.Config{
					ClientID:     apiKey,
					ClientSecret: apiSecret,
					BaseURL:      apiURL,
					TokenURL:     apiURL + "/oauth/token",
				}, tokens)
			case "redteago":
				adapter = redteago.New(redteago.Config{APIKey: apiKey, BaseURL: apiURL})
			default:
				logger.Warn("unknown provider slug in ESIMCORE_PROVIDER_SLUGS, skipping", "slug", slug)
				continue
			}

			out = append(out, cascade.ProviderConfig{
				Slug:       slug,
				Priority:   priority,
				Active:     adapter.IsEnabled(),
				Adapter:    adapter,
				MaxRetries: 2,
			})
		}
		return out
	}
}

// buildInquiryChannels constructs every inquiry channel adapter and
// registers it regardless of whether its credentials are present — each
// adapter's own IsEnabled() gates it out of sync/webhook handling, matching
// the supplier adapters' disabled-without-crashing contract.
func buildInquiryChannels(cfg *config.Config, logger *slog.Logger) *channel.InquiryChannelRegistry {
	tokens := credential.NewCache()
	registry := channel.NewInquiryChannelRegistry()

	registry.Register(smartstore.New(smartstore.Config{
		AppID:         cfg.NaverCommerceAppID,
		AppSecret:     cfg.NaverCommerceAppSecret,
		WebhookSecret: cfg.NaverCommerceWebhookSecret,
		BaseURL:       cfg.NaverCommerceBaseURL,
		TokenURL:      cfg.NaverCommerceTokenURL,
	}, tokens))

	registry.Register(talktalk.New(talktalk.Config{
		ClientID:      cfg.TalkTalkClientID,
		ClientSecret:  cfg.TalkTalkSecret,
		ChannelID:     cfg.TalkTalkChannelID,
		WebhookSecret: cfg.TalkTalkWebhookSecret,
		BaseURL:       cfg.TalkTalkBaseURL,
		TokenURL:      cfg.TalkTalkTokenURL,
	}, tokens))

	registry.Register(kakao.New(kakao.Config{
		RestAPIKey:    cfg.KakaoRESTAPIKey,
		WebhookSecret: cfg.KakaoWebhookSecret,
		BaseURL:       cfg.KakaoBaseURL,
	}))

	registry.Register(email.New(email.Config{
		SMTPHost:      cfg.EmailSMTPHost,
		SMTPPort:      cfg.EmailSMTPPort,
		SMTPUsername:  cfg.EmailSMTPUsername,
		SMTPPassword:  cfg.EmailSMTPPassword,
		FromAddress:   cfg.EmailFromAddress,
		InboxRelayURL: cfg.EmailInboxRelayURL,
	}))

	logger.Info("inquiry channels registered",
		"channels", []string{"smartstore", "talktalk", "kakao", "email"})
	return registry
}

// channelVerifiers narrows the registry down to the adapters that can
// authenticate an inbound webhook push (TalkTalk, Kakao — SmartStore and
// email are poll-only in this wiring).
func channelVerifiers(registry *channel.InquiryChannelRegistry) map[string]webhook.ChannelVerifier {
	out := map[string]webhook.ChannelVerifier{}
	for _, slug := range []string{"talktalk", "kakao"} {
		if c, err := registry.Get(slug); err == nil {
			if v, ok := c.(webhook.ChannelVerifier); ok {
				out[slug] = v
			}
		}
	}
	return out
}

// stubEmailPort is the injected delivery-email side effect (out of scope
// per spec.md §1: "the email/notification transports themselves"). It logs
// the send rather than dispatching anything, which is enough to exercise
// the Fulfillment Service's email step without a real SMTP/API dependency.
type stubEmailPort struct {
	logger *slog.Logger
}

func (s stubEmailPort) SendDeliveryEmail(ctx context.Context, o order.Order) (string, error) {
	messageID := "stub-" + o.ID
	s.logger.Info("delivery email dispatch (stub)", "order_id", o.ID, "message_id", messageID)
	return messageID, nil
}
