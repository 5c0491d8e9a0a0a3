package repository

import (
	"context"

	"github.com/jhoicas/mercado-local/internal/domain/entity"
)

// UserRepository define el puerto de persistencia para User (DIP).
// Las búsquedas devuelven (nil, nil) cuando no hay coincidencia.
type UserRepository interface {
	Create(ctx context.Context, user *entity.User) error
	GetByID(ctx context.Context, id string) (*entity.User, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	GetByProviderID(ctx context.Context, providerID string) (*entity.User, error)
	Update(ctx context.Context, user *entity.User) error
	// SetRoleIfEmpty fija el rol solo si aún no tiene uno; false si ya estaba elegido.
	SetRoleIfEmpty(ctx context.Context, id string, role entity.Role, name string) (bool, error)
}
