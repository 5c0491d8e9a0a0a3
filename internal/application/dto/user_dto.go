package dto

import "time"

// RegisterRequest registro tradicional email/password. El rol es opcional:
// si falta, el usuario lo elige después.
type RegisterRequest struct {
	Name     string `json:"name" validate:"omitempty,max=200"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"omitempty,oneof=customer seller"`
}

// LoginRequest entrada para login email/password.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginData datos del login tradicional (dentro de Envelope.Data).
type LoginData struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// ExchangeRequest canje de un token del proveedor de identidad.
type ExchangeRequest struct {
	IdentityToken string `json:"identity_token" validate:"required"`
}

// ExchangeResponse sesión emitida tras el canje.
type ExchangeResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	UserID      string       `json:"user_id"`
	Role        string       `json:"role"`
	User        UserResponse `json:"user"`
}

// RegisterWithIdentityRequest alta (o elección de rol) de un usuario ya
// autenticado con el proveedor; el token viaja en Authorization.
type RegisterWithIdentityRequest struct {
	Name string `json:"name" validate:"omitempty,max=200"`
	Role string `json:"role" validate:"required,oneof=customer seller"`
}

// AssignRoleRequest elección de rol con el access token; la respuesta trae un
// token nuevo que ya incluye el rol.
type AssignRoleRequest struct {
	Name string `json:"name" validate:"omitempty,max=200"`
	Role string `json:"role" validate:"required,oneof=customer seller"`
}

// UserResponse salida de un usuario (sin password).
type UserResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Role      string    `json:"role"`
	Status    string    `json:"status,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
