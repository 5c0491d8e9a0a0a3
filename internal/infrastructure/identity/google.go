package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/jhoicas/mercado-local/internal/domain"
	"github.com/jhoicas/mercado-local/pkg/config"
	"github.com/jhoicas/mercado-local/pkg/logger"
)

// GoogleCredential resultado del flujo de Google: ID token OIDC ya verificado.
type GoogleCredential struct {
	IDToken string
	Subject string
	Name    string
	Email   string
}

// DeviceCode lo que el usuario necesita para autorizar el dispositivo.
type DeviceCode struct {
	UserCode        string
	VerificationURI string
	CompleteURI     string
}

// DevicePrompt muestra el código al usuario. Lo provee el host (CLI).
type DevicePrompt func(DeviceCode)

// GoogleSignIn inicio de sesión con Google mediante el device authorization
// grant. El descubrimiento OIDC se hace en el primer uso, no al construir.
type GoogleSignIn struct {
	clientID     string
	clientSecret string
	issuerURL    string
	prompt       DevicePrompt
	log          *logger.Logger
	oidcConfig   oidc.Config

	mu       sync.Mutex
	oauth    *oauth2.Config
	verifier *oidc.IDTokenVerifier
}

var _ ThirdPartySignIn = (*GoogleSignIn)(nil)

type googleClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

// NewGoogleSignIn devuelve nil si no hay client id: el proveedor queda sin terceros.
func NewGoogleSignIn(cfg config.GoogleConfig, prompt DevicePrompt, log *logger.Logger) *GoogleSignIn {
	if !cfg.Enabled() {
		return nil
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &GoogleSignIn{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		issuerURL:    cfg.IssuerURL,
		prompt:       prompt,
		log:          log.Component("google"),
		oidcConfig:   oidc.Config{ClientID: cfg.ClientID},
	}
}

// ProviderID identificador del IdP para signInWithIdp.
func (g *GoogleSignIn) ProviderID() string {
	return "google.com"
}

// SignIn ejecuta el flujo completo y bloquea hasta que el usuario autoriza,
// rechaza o se cancela ctx.
func (g *GoogleSignIn) SignIn(ctx context.Context) (GoogleCredential, error) {
	conf, verifier, err := g.discover(ctx)
	if err != nil {
		return GoogleCredential{}, err
	}

	da, err := conf.DeviceAuth(ctx)
	if err != nil {
		return GoogleCredential{}, mapOAuthError(ctx, err)
	}
	if g.prompt != nil {
		g.prompt(DeviceCode{
			UserCode:        da.UserCode,
			VerificationURI: da.VerificationURI,
			CompleteURI:     da.VerificationURIComplete,
		})
	}

	tok, err := conf.DeviceAccessToken(ctx, da)
	if err != nil {
		return GoogleCredential{}, mapOAuthError(ctx, err)
	}
	rawID, _ := tok.Extra("id_token").(string)
	if rawID == "" {
		return GoogleCredential{}, &domain.ProviderError{Reason: "MISSING_ID_TOKEN", Kind: domain.ErrProviderUnavailable}
	}

	idToken, err := verifier.Verify(ctx, rawID)
	if err != nil {
		return GoogleCredential{}, &domain.ProviderError{Reason: err.Error(), Kind: domain.ErrProviderUnavailable}
	}
	var claims googleClaims
	if err := idToken.Claims(&claims); err != nil {
		return GoogleCredential{}, fmt.Errorf("google: leer claims: %w", err)
	}
	g.log.Info().Bool("email_verified", claims.EmailVerified).Msg("dispositivo autorizado")
	return GoogleCredential{
		IDToken: rawID,
		Subject: idToken.Subject,
		Name:    claims.Name,
		Email:   claims.Email,
	}, nil
}

func (g *GoogleSignIn) discover(ctx context.Context) (*oauth2.Config, *oidc.IDTokenVerifier, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.oauth != nil {
		return g.oauth, g.verifier, nil
	}
	provider, err := oidc.NewProvider(ctx, g.issuerURL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, &domain.ProviderError{Reason: err.Error(), Kind: domain.ErrProviderUnavailable}
	}
	endpoint := provider.Endpoint()
	if endpoint.DeviceAuthURL == "" {
		return nil, nil, &domain.ProviderError{Reason: "DEVICE_FLOW_UNSUPPORTED", Kind: domain.ErrNotConfigured}
	}
	g.oauth = &oauth2.Config{
		ClientID:     g.clientID,
		ClientSecret: g.clientSecret,
		Endpoint:     endpoint,
		Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
	}
	g.verifier = provider.Verifier(&g.oidcConfig)
	return g.oauth, g.verifier, nil
}

func mapOAuthError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", domain.ErrUserCancelled, ctx.Err())
	}
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		switch re.ErrorCode {
		case "access_denied", "expired_token":
			return &domain.ProviderError{Reason: re.ErrorCode, Kind: domain.ErrUserCancelled}
		case "invalid_client", "unauthorized_client":
			return &domain.ProviderError{Reason: re.ErrorCode, Kind: domain.ErrNotConfigured}
		case "slow_down":
			return &domain.ProviderError{Reason: re.ErrorCode, Kind: domain.ErrTooManyRequests}
		}
		return &domain.ProviderError{Reason: re.ErrorCode, Kind: domain.ErrProviderUnavailable}
	}
	return &domain.ProviderError{Reason: err.Error(), Kind: domain.ErrProviderUnavailable}
}
