package entity

import "time"

// Estados de User.
const (
	UserStatusActive    = "active"
	UserStatusSuspended = "suspended"
)

// User cuenta persistida por el servicio de usuarios.
type User struct {
	ID           string
	Email        string
	PasswordHash string // bcrypt; vacío para cuentas creadas solo con proveedor externo
	Name         string
	Phone        string
	Role         Role   // vacío hasta que el usuario elige
	ProviderID   string // subject del proveedor de identidad, si lo hay
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
