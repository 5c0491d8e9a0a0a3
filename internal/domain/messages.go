package domain

import (
	"context"
	"errors"
)

type userMessage struct {
	kind error
	msg  string
}

// Orden relevante: el primer sentinel que coincide gana.
var userMessages = []userMessage{
	{ErrBackendUnreachable, "Sin conexión con el servidor. Revisa tu red e intenta de nuevo."},
	{ErrInvalidCredentials, "Email o contraseña incorrectos."},
	{ErrInvalidCode, "El código ingresado no es correcto."},
	{ErrInvalidPhoneFormat, "Ingresa el número con código de país, por ejemplo +573001234567."},
	{ErrValidation, "Revisa los datos ingresados."},
	{ErrProviderUnavailable, "El servicio de verificación no está disponible en este momento."},
	{ErrNotConfigured, "Este método de inicio de sesión no está disponible."},
	{ErrQuotaExceeded, "Se alcanzó el límite de mensajes de verificación. Intenta más tarde."},
	{ErrTooManyRequests, "Demasiados intentos. Espera unos minutos e intenta de nuevo."},
	{ErrUserCancelled, "Inicio de sesión cancelado."},
	{ErrSessionExpired, "El código expiró. Solicita uno nuevo."},
	{ErrAccountExists, "Ya existe una cuenta con ese email."},
	{ErrAccountNotFound, "No encontramos una cuenta con esos datos."},
	{ErrDuplicateAccount, "Tu cuenta ya está registrada."},
	{ErrBackendRejected, "Tu sesión no es válida. Inicia sesión de nuevo."},
	{ErrServerError, "El servidor tuvo un problema. Intenta más tarde."},
	{ErrRoleAlreadySet, "Tu tipo de cuenta ya fue elegido."},
	{ErrNotAuthenticated, "Primero inicia sesión."},
	{ErrNoPendingVerification, "Solicita primero un código de verificación."},
}

// UserMessage traduce cualquier error a un mensaje apto para mostrar al usuario.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return "Operación cancelada."
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "La operación tardó demasiado. Intenta de nuevo."
	}
	for _, m := range userMessages {
		if errors.Is(err, m.kind) {
			return m.msg
		}
	}
	return "Ocurrió un error inesperado."
}

// ShouldHidePath indica fallos de entorno/configuración: la UI debe ocultar
// el camino afectado en lugar de ofrecer reintentos indefinidos.
func ShouldHidePath(err error) bool {
	return errors.Is(err, ErrNotConfigured) || errors.Is(err, ErrProviderUnavailable)
}
