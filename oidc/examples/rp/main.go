// Command rp is a small relying party web app which signs users in with an
// OIDC provider using the authorization code flow.
//
// Configuration is read from the environment, optionally loaded from a .env
// file in the working directory:
//
//	OIDC_ISSUER          provider issuer (or set OIDC_ACCOUNT to discover it)
//	OIDC_ACCOUNT         account used for WebFinger issuer discovery
//	OIDC_CLIENT_ID       relying party client id
//	OIDC_CLIENT_SECRET   relying party client secret
//	OIDC_AUTH_URL        authorization endpoint (default ${issuer}/authorize)
//	OIDC_TOKEN_URL       token endpoint (default ${issuer}/token)
//	OIDC_USERINFO_URL    optional userinfo endpoint
//	OIDC_JWKS_URL        optional JWKS url used to verify id_token signatures
//	OIDC_UI_LOCALES      optional space separated ui_locales
//	OIDC_PORT            listen port (default 3000)
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/go-hclog"
	"github.com/joho/godotenv"
	"github.com/openrp/rp/jwt"
	"github.com/openrp/rp/oidc"
	"golang.org/x/text/language"
)

const attemptExp = 2 * time.Minute

type envConfig struct {
	issuer       string
	account      string
	clientID     string
	clientSecret oidc.ClientSecret
	authURL      string
	tokenURL     string
	userInfoURL  string
	jwksURL      string
	uiLocales    []language.Tag
	port         string
}

func loadEnvConfig() (*envConfig, error) {
	const op = "loadEnvConfig"
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: unable to load .env: %w", op, err)
	}
	c := &envConfig{
		issuer:       os.Getenv("OIDC_ISSUER"),
		account:      os.Getenv("OIDC_ACCOUNT"),
		clientID:     os.Getenv("OIDC_CLIENT_ID"),
		clientSecret: oidc.ClientSecret(os.Getenv("OIDC_CLIENT_SECRET")),
		authURL:      os.Getenv("OIDC_AUTH_URL"),
		tokenURL:     os.Getenv("OIDC_TOKEN_URL"),
		userInfoURL:  os.Getenv("OIDC_USERINFO_URL"),
		jwksURL:      os.Getenv("OIDC_JWKS_URL"),
		port:         os.Getenv("OIDC_PORT"),
	}
	if c.port == "" {
		c.port = "3000"
	}
	for _, l := range strings.Fields(os.Getenv("OIDC_UI_LOCALES")) {
		tag, err := language.Parse(l)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid ui locale %q: %w", op, l, err)
		}
		c.uiLocales = append(c.uiLocales, tag)
	}
	switch {
	case c.issuer == "" && c.account == "":
		return nil, fmt.Errorf("%s: OIDC_ISSUER or OIDC_ACCOUNT is required", op)
	case c.clientID == "":
		return nil, fmt.Errorf("%s: OIDC_CLIENT_ID is empty", op)
	case c.clientSecret == "":
		return nil, fmt.Errorf("%s: OIDC_CLIENT_SECRET is empty", op)
	}
	return c, nil
}

func main() {
	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "rp",
		Level: hclog.LevelFromString(os.Getenv("LOG_LEVEL")),
	})
	if err := run(logger); err != nil {
		logger.Error("exiting", "error", err)
		os.Exit(1)
	}
}

func run(logger hclog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	env, err := loadEnvConfig()
	if err != nil {
		return err
	}

	issuer := env.issuer
	if issuer == "" {
		issuer, err = oidc.Discover(ctx, env.account, oidc.WithLogger(logger))
		if err != nil {
			return err
		}
	}
	issuer = strings.TrimSuffix(issuer, "/")
	if env.authURL == "" {
		env.authURL = issuer + "/authorize"
	}
	if env.tokenURL == "" {
		env.tokenURL = issuer + "/token"
	}
	redirectURL := fmt.Sprintf("http://localhost:%s/callback", env.port)

	var configOpts []oidc.Option
	if env.userInfoURL != "" {
		configOpts = append(configOpts, oidc.WithUserInfoEndpoint(env.userInfoURL))
	}
	pc, err := oidc.NewConfig(issuer, env.clientID, env.clientSecret, env.authURL, env.tokenURL, redirectURL, configOpts...)
	if err != nil {
		return err
	}

	providerOpts := []oidc.Option{oidc.WithLogger(logger)}
	if env.jwksURL != "" {
		ks, err := jwt.NewJSONWebKeySet(ctx, env.jwksURL, "")
		if err != nil {
			return err
		}
		providerOpts = append(providerOpts, oidc.WithKeySet(ks))
	}
	p, err := oidc.NewProvider(pc, providerOpts...)
	if err != nil {
		return err
	}

	rc := newRequestCache()
	callback, err := callbackHandler(ctx, p, rc, logger)
	if err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/login", loginHandler(ctx, p, rc, attemptExp, env.uiLocales, logger))
	r.HandleFunc("/callback", callback)
	r.Get("/userinfo", userInfoHandler(ctx, p, rc, logger))

	srv := &http.Server{
		Addr:              "localhost:" + env.port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srvCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr, "login", "http://"+srv.Addr+"/login")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvCh <- err
		}
		close(srvCh)
	}()

	select {
	case err := <-srvCh:
		return err
	case <-ctx.Done():
		logger.Info("interrupted, shutting down")
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		return srv.Shutdown(shutdownCtx)
	}
}
