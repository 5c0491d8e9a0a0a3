package entity

// Session estado de autenticación del proceso. El valor cero es "sin sesión".
// Un campo vacío equivale a ausente.
type Session struct {
	AccessToken        string
	UserID             string
	Role               Role
	DisplayName        string
	Email              string
	Phone              string
	ExternalProviderID string // subject del proveedor de identidad, solo referencia
}

// LoggedOut devuelve la sesión vacía.
func LoggedOut() Session {
	return Session{}
}

// IsAuthenticated hay sesión si y solo si hay access token.
func (s Session) IsAuthenticated() bool {
	return s.AccessToken != ""
}

// NeedsRole autenticado pero sin rol elegido.
func (s Session) NeedsRole() bool {
	return s.IsAuthenticated() && s.Role == RoleNone
}
