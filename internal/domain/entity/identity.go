package entity

import "time"

// Proveedores de identidad externos.
const (
	ProviderPhone    = "phone"
	ProviderGoogle   = "google"
	ProviderPassword = "password"
	ProviderDemo     = "demo"
)

// ExternalIdentity credencial avalada por un tercero. No da acceso a la app
// por sí sola: debe canjearse en el backend.
type ExternalIdentity struct {
	Provider       string
	Token          string
	ProviderUserID string
	Name           string
	Email          string
	Phone          string
}

// PendingVerification estado efímero entre el envío del OTP y su confirmación.
type PendingVerification struct {
	VerificationID string
	ResendToken    string
	Phone          string
	RequestedAt    time.Time
}

// PhoneVerificationRequest solicitud de envío (o reenvío) de código.
type PhoneVerificationRequest struct {
	Phone       string
	ResendToken string
}

// VerificationOutcome resultado de iniciar la verificación telefónica: o bien
// quedó un código pendiente, o el proveedor verificó el número automáticamente.
type VerificationOutcome struct {
	Pending  *PendingVerification
	Identity *ExternalIdentity
}

// AutoVerified indica el atajo de verificación automática.
func (o VerificationOutcome) AutoVerified() bool {
	return o.Identity != nil
}

// VerifiedIdentity identidad ya validada por el servicio de usuarios.
type VerifiedIdentity struct {
	Provider string
	Subject  string
	Name     string
	Email    string
	Phone    string
}
