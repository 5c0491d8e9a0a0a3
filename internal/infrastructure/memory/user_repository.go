package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jhoicas/mercado-local/internal/domain"
	"github.com/jhoicas/mercado-local/internal/domain/entity"
	"github.com/jhoicas/mercado-local/internal/domain/repository"
)

var _ repository.UserRepository = (*UserRepo)(nil)

// UserRepo implementación en memoria del puerto UserRepository.
// La usa el servicio de usuarios cuando no hay base de datos configurada (modo demo) y los tests.
// Respeta las mismas restricciones de unicidad que schema.sql.
type UserRepo struct {
	mu    sync.RWMutex
	users map[string]entity.User
}

// NewUserRepository repositorio vacío.
func NewUserRepository() *UserRepo {
	return &UserRepo{users: make(map[string]entity.User)}
}

// Create persiste un nuevo usuario.
func (r *UserRepo) Create(_ context.Context, user *entity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := *user
	u.Email = strings.ToLower(u.Email)
	for _, existing := range r.users {
		if u.ProviderID != "" && existing.ProviderID == u.ProviderID {
			return domain.ErrDuplicateAccount
		}
		if u.Email != "" && existing.Email == u.Email {
			return domain.ErrEmailAlreadyExists
		}
	}
	if _, ok := r.users[u.ID]; ok {
		return domain.ErrDuplicateAccount
	}
	r.users[u.ID] = u
	return nil
}

// GetByID obtiene un usuario por ID.
func (r *UserRepo) GetByID(_ context.Context, id string) (*entity.User, error) {
	return r.find(func(u *entity.User) bool { return u.ID == id }), nil
}

// GetByEmail obtiene un usuario por email (sin distinguir mayúsculas).
func (r *UserRepo) GetByEmail(_ context.Context, email string) (*entity.User, error) {
	email = strings.ToLower(email)
	if email == "" {
		return nil, nil
	}
	return r.find(func(u *entity.User) bool { return u.Email == email }), nil
}

// GetByProviderID obtiene el usuario enlazado a un subject del proveedor.
func (r *UserRepo) GetByProviderID(_ context.Context, providerID string) (*entity.User, error) {
	if providerID == "" {
		return nil, nil
	}
	return r.find(func(u *entity.User) bool { return u.ProviderID == providerID }), nil
}

// Update actualiza los datos de perfil. El rol no se toca.
func (r *UserRepo) Update(_ context.Context, user *entity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.users[user.ID]
	if !ok {
		return domain.ErrUserNotFound
	}
	email := strings.ToLower(user.Email)
	for id, existing := range r.users {
		if id != user.ID && email != "" && existing.Email == email {
			return domain.ErrEmailAlreadyExists
		}
	}
	current.Email = email
	current.PasswordHash = user.PasswordHash
	current.Name = user.Name
	current.Phone = user.Phone
	current.Status = user.Status
	current.UpdatedAt = user.UpdatedAt
	r.users[user.ID] = current
	return nil
}

// SetRoleIfEmpty fija rol (y nombre si viene) solo si aún no tiene uno.
func (r *UserRepo) SetRoleIfEmpty(_ context.Context, id string, role entity.Role, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok || u.Role != entity.RoleNone {
		return false, nil
	}
	u.Role = role
	if name != "" {
		u.Name = name
	}
	u.UpdatedAt = time.Now()
	r.users[id] = u
	return true, nil
}

func (r *UserRepo) find(match func(*entity.User) bool) *entity.User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if match(&u) {
			found := u
			return &found
		}
	}
	return nil
}
