package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/mailauth/broker/bridges/email"
	"github.com/mailauth/broker/bridges/oidc"
	"github.com/mailauth/broker/broker"
	"github.com/mailauth/broker/internal/config"
	"github.com/mailauth/broker/limiter"
	"github.com/mailauth/broker/server"
	"github.com/mailauth/broker/sessions"
	"github.com/mailauth/broker/token"
	"github.com/mailauth/broker/webfinger"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	for {
		if err := run(); err != nil {
			log.Error().Err(err).Msg("error running server, restarting")
			time.Sleep(1 * time.Second)
			continue
		}
		break
	}
	log.Info().Msg("server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	setupLogging(c)
	displayAppname(c.GetAppName())

	handler, err := buildServer(c)
	if err != nil {
		return err
	}

	httpServer := &http.Server{Addr: c.GetPort(), Handler: handler}
	go listenAndServe(httpServer)
	waitForStopSignal()
	returnError = shutdown(httpServer)
	return returnError
}

func buildServer(c config.Config) (*server.Server, error) {
	publicURL := c.GetPublicURL()

	sessionRepo, addrLimiter, err := buildStores(c)
	if err != nil {
		return nil, err
	}

	tokens, err := buildTokenManager(c, publicURL)
	if err != nil {
		return nil, err
	}

	mailer, err := email.NewSMTPMailer(
		c.GetSmtpHost(), c.GetSmtpPort(),
		c.GetSmtpAccount(), c.GetSmtpPassword(),
		c.GetFromAddress(),
	)
	if err != nil {
		return nil, err
	}

	emailBridge, err := email.NewBridge(publicURL, sessionRepo, mailer,
		email.WithSessionTTL(c.GetSessionTTL()))
	if err != nil {
		return nil, err
	}

	oidcBridge, err := oidc.NewBridge(publicURL, sessionRepo,
		oidc.WithSessionTTL(c.GetSessionTTL()))
	if err != nil {
		return nil, err
	}

	discovererOptions := make([]webfinger.ClientOption, 0)
	for domain, links := range webfinger.DefaultOverrides() {
		discovererOptions = append(discovererOptions, webfinger.WithOverride(domain, links))
	}

	authService, err := broker.NewService(publicURL, broker.Deps{
		Discoverer: webfinger.NewClient(discovererOptions...),
		Limiter:    addrLimiter,
		OIDC:       oidcBridge,
		Email:      emailBridge,
	}, broker.WithAllowedOrigins(c.GetAllowedOrigins()))
	if err != nil {
		return nil, err
	}

	return server.New(c, authService, tokens, sessionRepo, oidcBridge, emailBridge)
}

// buildStores selects Redis-backed session and limiter stores when a Redis
// URL is configured, in-process stores otherwise.
func buildStores(c config.Config) (sessions.Repo, broker.AddrLimiter, error) {
	limitCfg := limiter.Config{
		MaxAttempts: c.GetLimitPerEmail(),
		Window:      c.GetLimitWindow(),
	}

	redisURL := c.GetRedisURL()
	if redisURL == "" {
		log.Warn().Msg("no redis configured, using in-process session and limiter stores")
		return sessions.NewMemoryRepo(), limiter.NewMemoryLimiter(limitCfg), nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, errors.Wrap(err, "[buildStores] parsing redis url")
	}
	client := redis.NewClient(opts)
	return sessions.NewRedisRepo(client), limiter.New(client, limitCfg), nil
}

// buildTokenManager loads the signing key from KEY_FILE, or generates an
// ephemeral one. Ephemeral keys invalidate outstanding tokens on restart.
func buildTokenManager(c config.Config, publicURL string) (*token.Manager, error) {
	keyFile := c.GetKeyFile()
	if keyFile == "" {
		log.Warn().Msg("no key file configured, generating an ephemeral signing key")
		return token.NewManager(publicURL)
	}

	pemData, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, errors.Wrapf(err, "[buildTokenManager] reading %s", keyFile)
	}
	return token.NewManagerFromPEM(publicURL, pemData)
}

func setupLogging(c config.Config) {
	if c.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
