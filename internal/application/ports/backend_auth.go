package ports

import (
	"context"

	"github.com/jhoicas/mercado-local/internal/domain/entity"
)

// BackendAuth cliente de autenticación del servicio de usuarios.
// Cada operación es de un solo intento; reintentar es decisión del llamador.
type BackendAuth interface {
	ExchangeIdentityForSession(ctx context.Context, identityToken string) (entity.BackendSession, error)
	RegisterUser(ctx context.Context, name string, role entity.Role, identityToken string) (entity.BackendUser, error)
	LoginTraditional(ctx context.Context, email, password string) (entity.BackendSession, error)
	RegisterTraditional(ctx context.Context, name, email, password string, role entity.Role) (entity.BackendUser, error)
	FetchProfile(ctx context.Context, accessToken string) (entity.BackendUser, error)
	// AssignRole fija el rol con el access token y devuelve la sesión reemitida con ese rol.
	AssignRole(ctx context.Context, accessToken string, role entity.Role) (entity.BackendSession, error)
}
