package domain

import (
	"errors"
	"fmt"
)

// Errores de dominio (sin dependencias externas).
// Los adaptadores envuelven estos sentinels con %w; los llamadores comparan con errors.Is.
var (
	// Red / backend
	ErrBackendUnreachable = errors.New("no se pudo contactar al servidor")
	ErrBackendRejected    = errors.New("el servidor rechazó la credencial")
	ErrServerError        = errors.New("error interno del servidor")

	// Entrada corregible por el usuario
	ErrInvalidCredentials = errors.New("credenciales inválidas")
	ErrInvalidCode        = errors.New("código de verificación inválido")
	ErrInvalidPhoneFormat = errors.New("número de teléfono inválido")
	ErrValidation         = errors.New("datos inválidos")

	// Proveedor de identidad / entorno
	ErrProviderUnavailable = errors.New("proveedor de identidad no disponible")
	ErrNotConfigured       = errors.New("método de inicio de sesión no configurado")
	ErrQuotaExceeded       = errors.New("cuota de verificaciones agotada")
	ErrTooManyRequests     = errors.New("demasiados intentos, intente más tarde")
	ErrUserCancelled       = errors.New("inicio de sesión cancelado")
	ErrSessionExpired      = errors.New("la verificación expiró")

	// Conflictos
	ErrAccountExists    = errors.New("la cuenta ya existe")
	ErrAccountNotFound  = errors.New("la cuenta no existe")
	ErrDuplicateAccount = errors.New("cuenta duplicada")

	// Uso indebido del protocolo de sesión
	ErrRoleAlreadySet        = errors.New("el rol ya fue elegido para esta sesión")
	ErrNotAuthenticated      = errors.New("no hay sesión iniciada")
	ErrNoPendingVerification = errors.New("no hay verificación pendiente")

	// Servicio de usuarios
	ErrUserNotFound       = errors.New("usuario no encontrado")
	ErrEmailAlreadyExists = errors.New("el email ya está registrado")
	ErrInvalidInput       = errors.New("entrada inválida")
	ErrUnauthorized       = errors.New("no autorizado")
	ErrForbidden          = errors.New("acceso denegado")
)

// BackendError detalle de una respuesta no exitosa del backend.
// Kind es el sentinel de la taxonomía; errors.Is(err, Kind) funciona a través de Unwrap.
type BackendError struct {
	Status  int
	Code    string
	Message string
	Kind    error
}

func (e *BackendError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%v (HTTP %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%v (HTTP %d)", e.Kind, e.Status)
}

func (e *BackendError) Unwrap() error {
	return e.Kind
}

// ProviderError detalle de un fallo del proveedor de identidad.
type ProviderError struct {
	Reason string // código textual del proveedor, p. ej. INVALID_CODE
	Kind   error
}

func (e *ProviderError) Error() string {
	if e.Reason == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Reason)
}

func (e *ProviderError) Unwrap() error {
	return e.Kind
}
