package ports

import (
	"context"

	"github.com/jhoicas/mercado-local/internal/domain/entity"
)

// CredentialProvider unifica OTP telefónico, inicio con terceros (Google) y
// email/password en una ExternalIdentity. Implementaciones: Firebase, demo.
type CredentialProvider interface {
	// StartPhoneVerification envía el código. Algunos proveedores verifican el
	// número automáticamente: en ese caso el resultado trae Identity y no Pending.
	StartPhoneVerification(ctx context.Context, req entity.PhoneVerificationRequest) (entity.VerificationOutcome, error)
	ConfirmPhoneCode(ctx context.Context, pending entity.PendingVerification, code string) (entity.ExternalIdentity, error)

	// IsThirdPartyAvailable permite ocultar el botón en lugar de fallar al pulsarlo.
	IsThirdPartyAvailable() bool
	SignInWithThirdParty(ctx context.Context) (entity.ExternalIdentity, error)

	SignInWithEmailPassword(ctx context.Context, email, password string) (entity.ExternalIdentity, error)
	CreateAccountWithEmailPassword(ctx context.Context, email, password string) (entity.ExternalIdentity, error)

	// CurrentIdentityToken devuelve un token vigente (refrescándolo si hace falta)
	// de la identidad enlazada, o "" si no hay ninguna.
	CurrentIdentityToken(ctx context.Context) (string, error)
	SignOut(ctx context.Context) error
}
