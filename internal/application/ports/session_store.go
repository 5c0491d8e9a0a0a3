package ports

// Claves persistidas de la sesión, todas bajo un mismo dominio de preferencias.
const (
	KeyAccessToken        = "access_token"
	KeyUserID             = "user_id"
	KeyUserRole           = "user_role"
	KeyUserName           = "user_name"
	KeyUserEmail          = "user_email"
	KeyUserPhone          = "user_phone"
	KeyExternalProviderID = "external_provider_id"
)

// SessionKeys todas las claves de sesión, en orden de escritura (access_token al final).
var SessionKeys = []string{
	KeyUserID,
	KeyUserRole,
	KeyUserName,
	KeyUserEmail,
	KeyUserPhone,
	KeyExternalProviderID,
	KeyAccessToken,
}

// SessionStore almacén clave-valor durable de la sesión.
// Cada Set es una escritura independiente: no hay transacciones entre claves,
// por eso un access_token ausente significa "sin sesión" sin importar el resto.
type SessionStore interface {
	// Get devuelve el valor y si la clave existe.
	Get(key string) (string, bool, error)
	// Set escribe el valor; el string vacío elimina la clave.
	Set(key, value string) error
	// Clear elimina todas las claves del dominio.
	Clear() error
}
