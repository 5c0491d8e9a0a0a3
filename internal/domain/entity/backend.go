package entity

// BackendUser perfil devuelto por el servicio de usuarios, con rol canónico.
type BackendUser struct {
	ID    string
	Name  string
	Email string
	Phone string
	Role  Role
}

// BackendSession sesión emitida por el backend.
type BackendSession struct {
	AccessToken string
	TokenType   string
	User        BackendUser
}
