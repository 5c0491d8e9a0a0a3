package entity

import (
	"fmt"
	"strings"

	"github.com/jhoicas/mercado-local/internal/domain"
)

// Role tipo de cuenta dentro del marketplace. Vacío significa "aún no elegido".
type Role string

// Roles válidos.
const (
	RoleNone     Role = ""
	RoleCustomer Role = "customer"
	RoleSeller   Role = "seller"
	RoleAdmin    Role = "admin"
)

// Variantes heredadas que aún envían algunos servicios/pantallas.
var roleAliases = map[string]Role{
	"customer":      RoleCustomer,
	"user":          RoleCustomer,
	"buyer":         RoleCustomer,
	"cliente":       RoleCustomer,
	"seller":        RoleSeller,
	"vendor":        RoleSeller,
	"vendedor":      RoleSeller,
	"merchant":      RoleSeller,
	"admin":         RoleAdmin,
	"administrator": RoleAdmin,
	"administrador": RoleAdmin,
}

// ParseRole normaliza el rol recibido del backend o del almacén local.
// Acepta mayúsculas y alias heredados; vacío devuelve RoleNone.
func ParseRole(s string) (Role, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if key == "" {
		return RoleNone, nil
	}
	if r, ok := roleAliases[key]; ok {
		return r, nil
	}
	return RoleNone, fmt.Errorf("rol %q desconocido: %w", s, domain.ErrValidation)
}

// Valid indica si es uno de los tres roles canónicos (RoleNone no lo es).
func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleSeller || r == RoleAdmin
}

func (r Role) String() string {
	return string(r)
}
