package idtoken

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/jhoicas/mercado-local/internal/application/ports"
	"github.com/jhoicas/mercado-local/internal/domain/entity"
	"github.com/jhoicas/mercado-local/pkg/jwt"
)

var (
	_ ports.IdentityVerifier = (*OIDCVerifier)(nil)
	_ ports.IdentityVerifier = (*DemoVerifier)(nil)
	_ ports.IdentityVerifier = Chain(nil)
)

// ErrInvalidToken el token no fue aceptado por ningún verificador.
var ErrInvalidToken = errors.New("token de identidad inválido")

// securetokenIssuer emisor de los ID tokens de Firebase Auth.
const securetokenIssuer = "https://securetoken.google.com/"

// OIDCVerifier verifica ID tokens de Firebase contra el JWKS publicado por el emisor.
// El discovery se hace en la primera verificación.
type OIDCVerifier struct {
	issuer   string
	clientID string

	mu       sync.Mutex
	verifier *oidc.IDTokenVerifier
}

// NewFirebaseVerifier verificador para el proyecto de Firebase dado.
func NewFirebaseVerifier(projectID string) *OIDCVerifier {
	return NewOIDCVerifier(securetokenIssuer+projectID, projectID)
}

// NewOIDCVerifier verificador genérico (emulador o IdP de pruebas).
func NewOIDCVerifier(issuer, clientID string) *OIDCVerifier {
	return &OIDCVerifier{issuer: strings.TrimRight(issuer, "/"), clientID: clientID}
}

// firebaseClaims campos del ID token que interesan al servicio.
type firebaseClaims struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone_number"`
	Firebase struct {
		SignInProvider string `json:"sign_in_provider"`
	} `json:"firebase"`
}

// Verify valida firma, emisor, audiencia y expiración.
func (v *OIDCVerifier) Verify(ctx context.Context, identityToken string) (*entity.VerifiedIdentity, error) {
	verifier, err := v.idTokenVerifier(ctx)
	if err != nil {
		return nil, err
	}
	tok, err := verifier.Verify(ctx, identityToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	var c firebaseClaims
	if err := tok.Claims(&c); err != nil {
		return nil, fmt.Errorf("%w: claims: %v", ErrInvalidToken, err)
	}
	return &entity.VerifiedIdentity{
		Provider: providerFromSignIn(c.Firebase.SignInProvider),
		Subject:  tok.Subject,
		Name:     c.Name,
		Email:    c.Email,
		Phone:    c.Phone,
	}, nil
}

func (v *OIDCVerifier) idTokenVerifier(ctx context.Context) (*oidc.IDTokenVerifier, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.verifier != nil {
		return v.verifier, nil
	}
	provider, err := oidc.NewProvider(ctx, v.issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery %s: %w", v.issuer, err)
	}
	v.verifier = provider.Verifier(&oidc.Config{ClientID: v.clientID})
	return v.verifier, nil
}

// providerFromSignIn traduce firebase.sign_in_provider a los proveedores del dominio.
func providerFromSignIn(p string) string {
	switch p {
	case "phone":
		return entity.ProviderPhone
	case "google.com":
		return entity.ProviderGoogle
	case "password":
		return entity.ProviderPassword
	default:
		return p
	}
}

// DemoVerifier acepta los tokens de identidad fija firmados con el secreto demo.
type DemoVerifier struct {
	secret string
}

// NewDemoVerifier construye el verificador del modo demo.
func NewDemoVerifier(secret string) *DemoVerifier {
	return &DemoVerifier{secret: secret}
}

// Verify valida firma HS256 y emisor demo.
func (v *DemoVerifier) Verify(_ context.Context, identityToken string) (*entity.VerifiedIdentity, error) {
	claims, err := jwt.ParseIdentity(v.secret, identityToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Issuer != jwt.DemoIssuer {
		return nil, fmt.Errorf("%w: emisor %q", ErrInvalidToken, claims.Issuer)
	}
	provider := claims.Provider
	if provider == "" {
		provider = entity.ProviderDemo
	}
	return &entity.VerifiedIdentity{
		Provider: provider,
		Subject:  claims.Subject,
		Name:     claims.Name,
		Email:    claims.Email,
		Phone:    claims.Phone,
	}, nil
}

// Chain prueba los verificadores en orden y devuelve el primero que acepta el token.
type Chain []ports.IdentityVerifier

// Verify sin verificadores configurados siempre rechaza.
func (c Chain) Verify(ctx context.Context, identityToken string) (*entity.VerifiedIdentity, error) {
	if len(c) == 0 {
		return nil, fmt.Errorf("%w: sin verificadores configurados", ErrInvalidToken)
	}
	var errs []error
	for _, v := range c {
		id, err := v.Verify(ctx, identityToken)
		if err == nil {
			return id, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		errs = append(errs, err)
	}
	return nil, errors.Join(errs...)
}
