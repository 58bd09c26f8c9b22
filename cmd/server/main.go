package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/Dev-Aaron27/premium/internal/authflow"
	"github.com/Dev-Aaron27/premium/internal/crm"
	"github.com/Dev-Aaron27/premium/internal/discord"
	"github.com/Dev-Aaron27/premium/internal/payment"
	"github.com/Dev-Aaron27/premium/internal/session"
	"github.com/Dev-Aaron27/premium/internal/sessionpg"
	"github.com/Dev-Aaron27/premium/internal/web"
	webassets "github.com/Dev-Aaron27/premium/web"
)

var serveHTTP = func(server *http.Server) error {
	return server.ListenAndServe()
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "premium-server",
		Short:   "OAuth2 login gateway with subscription gating, guild enrollment, and checkout",
		PreRunE: prepareServerConfig,
		RunE:    runServer,
	}

	rootCmd.Flags().String("listen_addr", ":8080", "HTTP listen address")
	rootCmd.Flags().String("provider_client_id", "", "OAuth2 client id issued by the identity provider")
	rootCmd.Flags().String("provider_client_secret", "", "OAuth2 client secret issued by the identity provider")
	rootCmd.Flags().String("redirect_uri", "", "Callback URL registered with the identity provider")
	rootCmd.Flags().String("provider_base_url", discord.DefaultBaseURL, "Identity provider API origin")
	rootCmd.Flags().StringSlice("scopes", []string{"identify", "email", "guilds.join"}, "OAuth2 scopes requested at login")
	rootCmd.Flags().String("frontend_url", "", "Frontend base URL for post-login redirects; empty falls back to /?logged_in=1")
	rootCmd.Flags().String("output_mode", "redirect", "Callback success rendering: redirect, html, or json")
	rootCmd.Flags().String("webhook_url", "", "Webhook URL for login and purchase notifications; empty disables them")
	rootCmd.Flags().String("bot_token", "", "Bot token used for guild enrollment; empty disables the mutation stage")
	rootCmd.Flags().String("guild_id", "", "Guild the logged-in user is added to")
	rootCmd.Flags().String("role_id", "", "Optional role granted on guild enrollment")
	rootCmd.Flags().String("mutation_failure_policy", "best-effort", "Guild enrollment failure handling: best-effort or abort")
	rootCmd.Flags().String("crm_base_url", "", "CRM API origin for the subscription check; empty disables gating")
	rootCmd.Flags().String("crm_api_key", "", "CRM API key")
	rootCmd.Flags().String("payment_client_id", "", "Payment provider client id; empty disables checkout routes")
	rootCmd.Flags().String("payment_secret", "", "Payment provider secret")
	rootCmd.Flags().String("payment_mode", "sandbox", "Payment environment: sandbox or live")
	rootCmd.Flags().String("session_secret", "", "HS256 signing secret for the session cookie")
	rootCmd.Flags().Duration("session_ttl", 24*time.Hour, "Session lifetime")
	rootCmd.Flags().String("cookie_domain", "", "Cookie domain; empty for host-only")
	rootCmd.Flags().String("database_url", "", "Database URL for sessions (postgres:// or sqlite://; leave empty for in-memory store)")
	rootCmd.Flags().String("database_driver", "gorm", "Database access layer for postgres URLs: gorm or pgx")
	rootCmd.Flags().Bool("enable_cors", false, "Enable CORS for cross-origin clients (required to set SameSite=None cookies)")
	rootCmd.Flags().StringSlice("cors_allowed_origins", []string{}, "Allowed origins when CORS is enabled (required if enable_cors is true)")
	rootCmd.Flags().Duration("outbound_timeout", 10*time.Second, "Timeout applied to provider, CRM, webhook, and payment calls")
	rootCmd.Flags().Bool("dev_insecure_http", false, "Allow insecure HTTP for local dev")

	for _, flagName := range []string{
		"listen_addr", "provider_client_id", "provider_client_secret", "redirect_uri",
		"provider_base_url", "scopes", "frontend_url", "output_mode", "webhook_url",
		"bot_token", "guild_id", "role_id", "mutation_failure_policy",
		"crm_base_url", "crm_api_key", "payment_client_id", "payment_secret", "payment_mode",
		"session_secret", "session_ttl", "cookie_domain", "database_url", "database_driver",
		"enable_cors", "cors_allowed_origins", "outbound_timeout", "dev_insecure_http",
	} {
		_ = viper.BindPFlag(flagName, rootCmd.Flags().Lookup(flagName))
	}

	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()

	return rootCmd
}

const (
	cookieIssuer = "premium-gateway"

	configCodeMissingProviderClientID     = "config.missing_provider_client_id"
	configCodeMissingProviderClientSecret = "config.missing_provider_client_secret"
	configCodeMissingRedirectURI          = "config.missing_redirect_uri"
	configCodeMissingSessionSecret        = "config.missing_session_secret"
	configCodeInvalidSessionTTL           = "config.invalid_session_ttl"
	configCodeInvalidOutboundTimeout      = "config.invalid_outbound_timeout"
	configCodeInvalidOutputMode           = "config.invalid_output_mode"
	configCodeInvalidMutationPolicy       = "config.invalid_mutation_failure_policy"
	configCodeIncompleteMembership        = "config.incomplete_membership"
	configCodeIncompleteCRM               = "config.incomplete_crm"
	configCodeIncompletePayment           = "config.incomplete_payment"
	configCodeInvalidDatabaseDriver       = "config.invalid_database_driver"
	configCodeUninitializedServerConf     = "config.uninitialized_server_config"
)

type contextKey string

const serverConfigContextKey contextKey = "serverConfig"

// ServerConfig is the validated runtime configuration assembled from flags
// and APP_-prefixed environment variables.
type ServerConfig struct {
	ListenAddr           string
	ProviderClientID     string
	ProviderClientSecret string
	RedirectURI          string
	ProviderBaseURL      string
	Scopes               []string
	FrontendURL          string
	OutputMode           authflow.OutputMode
	WebhookURL           string
	BotToken             string
	GuildID              string
	RoleID               string
	MutationPolicy       authflow.MutationPolicy
	CRMBaseURL           string
	CRMAPIKey            string
	PaymentClientID      string
	PaymentSecret        string
	PaymentMode          string
	SessionSecret        []byte
	SessionTTL           time.Duration
	CookieDomain         string
	DatabaseURL          string
	DatabaseDriver       string
	EnableCORS           bool
	CORSAllowedOrigins   []string
	OutboundTimeout      time.Duration
	DevInsecureHTTP      bool
}

func prepareServerConfig(command *cobra.Command, arguments []string) error {
	serverConfig, loadErr := LoadServerConfig()
	if loadErr != nil {
		return loadErr
	}
	existingContext := command.Context()
	if existingContext == nil {
		existingContext = context.Background()
	}
	command.SetContext(context.WithValue(existingContext, serverConfigContextKey, serverConfig))
	return nil
}

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

// LoadServerConfig reads all settings from viper and validates them as a
// group, so an operator sees every problem in one pass.
func LoadServerConfig() (ServerConfig, error) {
	var validationErrs *multierror.Error

	providerClientID := viper.GetString("provider_client_id")
	if providerClientID == "" {
		validationErrs = multierror.Append(validationErrs,
			configError(configCodeMissingProviderClientID, "provider_client_id must be provided"))
	}

	providerClientSecret := viper.GetString("provider_client_secret")
	if providerClientSecret == "" {
		validationErrs = multierror.Append(validationErrs,
			configError(configCodeMissingProviderClientSecret, "provider_client_secret must be provided"))
	}

	redirectURI := viper.GetString("redirect_uri")
	if redirectURI == "" {
		validationErrs = multierror.Append(validationErrs,
			configError(configCodeMissingRedirectURI, "redirect_uri must be provided"))
	}

	sessionSecret := viper.GetString("session_secret")
	if sessionSecret == "" {
		validationErrs = multierror.Append(validationErrs,
			configError(configCodeMissingSessionSecret, "session_secret must be provided"))
	}

	sessionTTL := viper.GetDuration("session_ttl")
	if sessionTTL <= 0 {
		validationErrs = multierror.Append(validationErrs,
			configError(configCodeInvalidSessionTTL, "session_ttl must be greater than zero"))
	}

	outboundTimeout := viper.GetDuration("outbound_timeout")
	if outboundTimeout <= 0 {
		validationErrs = multierror.Append(validationErrs,
			configError(configCodeInvalidOutboundTimeout, "outbound_timeout must be greater than zero"))
	}

	outputMode, outputModeErr := authflow.ParseOutputMode(viper.GetString("output_mode"))
	if outputModeErr != nil {
		validationErrs = multierror.Append(validationErrs,
			configError(configCodeInvalidOutputMode, outputModeErr.Error()))
	}

	mutationPolicy, mutationPolicyErr := authflow.ParseMutationPolicy(viper.GetString("mutation_failure_policy"))
	if mutationPolicyErr != nil {
		validationErrs = multierror.Append(validationErrs,
			configError(configCodeInvalidMutationPolicy, mutationPolicyErr.Error()))
	}

	botToken := viper.GetString("bot_token")
	guildID := viper.GetString("guild_id")
	if (botToken == "") != (guildID == "") {
		validationErrs = multierror.Append(validationErrs,
			configError(configCodeIncompleteMembership, "bot_token and guild_id must be set together"))
	}

	crmBaseURL := viper.GetString("crm_base_url")
	crmAPIKey := viper.GetString("crm_api_key")
	if crmBaseURL != "" && crmAPIKey == "" {
		validationErrs = multierror.Append(validationErrs,
			configError(configCodeIncompleteCRM, "crm_api_key must be set when crm_base_url is set"))
	}

	paymentClientID := viper.GetString("payment_client_id")
	paymentSecret := viper.GetString("payment_secret")
	if (paymentClientID == "") != (paymentSecret == "") {
		validationErrs = multierror.Append(validationErrs,
			configError(configCodeIncompletePayment, "payment_client_id and payment_secret must be set together"))
	}

	databaseDriver := strings.ToLower(strings.TrimSpace(viper.GetString("database_driver")))
	switch databaseDriver {
	case "", "gorm", "pgx":
	default:
		validationErrs = multierror.Append(validationErrs,
			configError(configCodeInvalidDatabaseDriver, fmt.Sprintf("database_driver %q not recognized; use gorm or pgx", databaseDriver)))
	}

	if aggregated := validationErrs.ErrorOrNil(); aggregated != nil {
		return ServerConfig{}, aggregated
	}

	return ServerConfig{
		ListenAddr:           viper.GetString("listen_addr"),
		ProviderClientID:     providerClientID,
		ProviderClientSecret: providerClientSecret,
		RedirectURI:          redirectURI,
		ProviderBaseURL:      strings.TrimRight(viper.GetString("provider_base_url"), "/"),
		Scopes:               viper.GetStringSlice("scopes"),
		FrontendURL:          viper.GetString("frontend_url"),
		OutputMode:           outputMode,
		WebhookURL:           viper.GetString("webhook_url"),
		BotToken:             botToken,
		GuildID:              guildID,
		RoleID:               viper.GetString("role_id"),
		MutationPolicy:       mutationPolicy,
		CRMBaseURL:           crmBaseURL,
		CRMAPIKey:            crmAPIKey,
		PaymentClientID:      paymentClientID,
		PaymentSecret:        paymentSecret,
		PaymentMode:          viper.GetString("payment_mode"),
		SessionSecret:        []byte(sessionSecret),
		SessionTTL:           sessionTTL,
		CookieDomain:         viper.GetString("cookie_domain"),
		DatabaseURL:          viper.GetString("database_url"),
		DatabaseDriver:       databaseDriver,
		EnableCORS:           viper.GetBool("enable_cors"),
		CORSAllowedOrigins:   viper.GetStringSlice("cors_allowed_origins"),
		OutboundTimeout:      outboundTimeout,
		DevInsecureHTTP:      viper.GetBool("dev_insecure_http"),
	}, nil
}

func buildSessionStore(ctx context.Context, serverConfig ServerConfig, logger *zap.Logger) (session.Store, error) {
	if serverConfig.DatabaseURL == "" {
		logger.Info("using in-memory session store")
		return session.NewMemoryStore(), nil
	}
	if serverConfig.DatabaseDriver == "pgx" {
		pool, poolErr := sessionpg.BuildPool(ctx, serverConfig.DatabaseURL)
		if poolErr != nil {
			return nil, poolErr
		}
		if schemaErr := sessionpg.EnsureSchema(ctx, pool); schemaErr != nil {
			pool.Close()
			return nil, schemaErr
		}
		logger.Info("using persistent session store", zap.String("driver", "pgx"))
		return sessionpg.NewPostgresSessionStore(pool), nil
	}
	persistentStore, storeErr := session.NewDatabaseStore(ctx, serverConfig.DatabaseURL)
	if storeErr != nil {
		return nil, storeErr
	}
	logger.Info("using persistent session store", zap.String("driver", persistentStore.Driver()))
	return persistentStore, nil
}

func runServer(command *cobra.Command, arguments []string) error {
	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	commandContext := command.Context()
	var contextValue any
	if commandContext != nil {
		contextValue = commandContext.Value(serverConfigContextKey)
	}
	serverConfig, ok := contextValue.(ServerConfig)
	if !ok {
		return configError(configCodeUninitializedServerConf, "server configuration not prepared; PreRunE must execute before RunE")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(zapLoggerMiddleware(logger))

	if serverConfig.EnableCORS {
		corsMiddleware, corsErr := web.ConfigureCORS(logger, serverConfig.CORSAllowedOrigins)
		if corsErr != nil {
			return corsErr
		}
		router.Use(corsMiddleware)
	}

	outboundClient := cleanhttp.DefaultPooledClient()
	outboundClient.Timeout = serverConfig.OutboundTimeout

	sessionStore, storeErr := buildSessionStore(context.Background(), serverConfig, logger)
	if storeErr != nil {
		return storeErr
	}

	sameSiteMode := http.SameSiteLaxMode
	if serverConfig.EnableCORS {
		sameSiteMode = http.SameSiteNoneMode
	}
	cookieConfig := session.CookieConfig{
		Name:              session.DefaultCookieName,
		SigningKey:        serverConfig.SessionSecret,
		Issuer:            cookieIssuer,
		Domain:            serverConfig.CookieDomain,
		TTL:               serverConfig.SessionTTL,
		SameSiteMode:      sameSiteMode,
		AllowInsecureHTTP: serverConfig.DevInsecureHTTP,
	}

	providerClient := discord.NewClient(discord.ClientConfig{
		BaseURL:      serverConfig.ProviderBaseURL,
		ClientID:     serverConfig.ProviderClientID,
		ClientSecret: serverConfig.ProviderClientSecret,
		RedirectURI:  serverConfig.RedirectURI,
		Scopes:       serverConfig.Scopes,
		HTTPClient:   outboundClient,
	}, logger)

	var notifier *discord.Notifier
	if serverConfig.WebhookURL != "" {
		notifier = discord.NewNotifier(serverConfig.WebhookURL, outboundClient, logger)
	} else {
		logger.Info("webhook notifications disabled", zap.String("reason", "webhook_url not configured"))
	}

	var crmClient *crm.Client
	if serverConfig.CRMBaseURL != "" {
		crmClient = crm.NewClient(serverConfig.CRMBaseURL, serverConfig.CRMAPIKey, outboundClient, logger)
	} else {
		logger.Info("subscription gating disabled", zap.String("reason", "crm_base_url not configured"))
	}

	var membership *authflow.MembershipConfig
	if serverConfig.BotToken != "" {
		membership = &authflow.MembershipConfig{
			BotToken: serverConfig.BotToken,
			GuildID:  serverConfig.GuildID,
			RoleID:   serverConfig.RoleID,
		}
	} else {
		logger.Info("guild enrollment disabled", zap.String("reason", "bot_token not configured"))
	}

	metricsRecorder := authflow.NewCounterMetrics()

	orchestrator := authflow.NewOrchestrator(authflow.Config{
		OAuth: oauth2.Config{
			ClientID:     serverConfig.ProviderClientID,
			ClientSecret: serverConfig.ProviderClientSecret,
			RedirectURL:  serverConfig.RedirectURI,
			Scopes:       serverConfig.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  serverConfig.ProviderBaseURL + "/oauth2/authorize",
				TokenURL: serverConfig.ProviderBaseURL + "/api/oauth2/token",
			},
		},
		Provider:       providerClient,
		CRM:            crmClient,
		Notifier:       notifier,
		Membership:     membership,
		MutationPolicy: serverConfig.MutationPolicy,
		OutputMode:     serverConfig.OutputMode,
		FrontendURL:    serverConfig.FrontendURL,
		Sessions:       sessionStore,
		Cookie:         cookieConfig,
	}, logger, metricsRecorder)

	authflow.MountAuthRoutes(router, orchestrator)

	if serverConfig.PaymentClientID != "" {
		paymentClient := payment.NewClient(payment.ClientConfig{
			ClientID: serverConfig.PaymentClientID,
			Secret:   serverConfig.PaymentSecret,
			Mode:     serverConfig.PaymentMode,
		}, outboundClient, logger)
		payment.MountPaymentRoutes(router, payment.RoutesConfig{
			Client:   paymentClient,
			Sessions: sessionStore,
			Cookie:   cookieConfig,
			Notifier: notifier,
		}, logger)
	} else {
		logger.Info("checkout routes disabled", zap.String("reason", "payment_client_id not configured"))
	}

	router.GET("/api/me", web.HandleWhoAmI(sessionStore, cookieConfig, logger))

	router.GET("/static/checkout-client.js", func(contextGin *gin.Context) {
		web.ServeEmbeddedStaticJS(contextGin, webassets.FS, "checkout-client.js")
	})

	router.GET("/checkout/config.js", func(contextGin *gin.Context) {
		web.ServeCheckoutConfig(contextGin, web.CheckoutConfig{
			LoginPath: "/auth/login",
		})
	})

	server := &http.Server{
		Addr:              serverConfig.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	go func() {
		stopSignals := make(chan os.Signal, 1)
		signal.Notify(stopSignals, syscall.SIGINT, syscall.SIGTERM)
		<-stopSignals
		graceCtx, graceCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		defer graceCancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", serverConfig.ListenAddr))
	if err := serveHTTP(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen error: %w", err)
	}
	return nil
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		startTime := time.Now()
		contextGin.Next()
		duration := time.Since(startTime)
		logger.Info("http",
			zap.String("method", contextGin.Request.Method),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Int("status", contextGin.Writer.Status()),
			zap.String("ip", contextGin.ClientIP()),
			zap.Duration("elapsed", duration),
		)
	}
}
