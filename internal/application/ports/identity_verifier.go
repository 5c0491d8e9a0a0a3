package ports

import (
	"context"

	"github.com/jhoicas/mercado-local/internal/domain/entity"
)

// IdentityVerifier valida, del lado del servicio de usuarios, el token de
// identidad emitido por el proveedor externo.
type IdentityVerifier interface {
	Verify(ctx context.Context, identityToken string) (*entity.VerifiedIdentity, error)
}
