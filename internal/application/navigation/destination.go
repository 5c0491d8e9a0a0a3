package navigation

import "github.com/jhoicas/mercado-local/internal/domain/entity"

// Destination pantalla de aterrizaje tras evaluar la sesión.
type Destination int

const (
	Landing Destination = iota
	RoleSelection
	CustomerHome
	SellerHome
	AdminHome
)

var destinationNames = [...]string{
	Landing:       "landing",
	RoleSelection: "role_selection",
	CustomerHome:  "customer_home",
	SellerHome:    "seller_home",
	AdminHome:     "admin_home",
}

func (d Destination) String() string {
	if d < 0 || int(d) >= len(destinationNames) {
		return "unknown"
	}
	return destinationNames[d]
}

// DestinationFor decide el destino a partir de la sesión. Función pura y total:
// un rol no canónico (no debería llegar aquí) se trata como rol sin elegir.
func DestinationFor(s entity.Session) Destination {
	if !s.IsAuthenticated() {
		return Landing
	}
	switch s.Role {
	case entity.RoleCustomer:
		return CustomerHome
	case entity.RoleSeller:
		return SellerHome
	case entity.RoleAdmin:
		return AdminHome
	default:
		return RoleSelection
	}
}
