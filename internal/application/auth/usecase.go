package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/jhoicas/mercado-local/internal/application/dto"
	"github.com/jhoicas/mercado-local/internal/application/ports"
	"github.com/jhoicas/mercado-local/internal/domain"
	"github.com/jhoicas/mercado-local/internal/domain/entity"
	"github.com/jhoicas/mercado-local/internal/domain/repository"
	"github.com/jhoicas/mercado-local/pkg/jwt"
)

// JWTConfig configuración para generación de tokens.
type JWTConfig struct {
	Secret     string
	ExpMinutes int
	Issuer     string
}

// AuthUseCase casos de uso de autenticación del servicio de usuarios:
// canje de identidad externa, registro y login tradicional.
type AuthUseCase struct {
	userRepo repository.UserRepository
	verifier ports.IdentityVerifier
	jwtCfg   JWTConfig
	now      func() time.Time
}

// NewAuthUseCase construye el caso de uso de auth.
func NewAuthUseCase(userRepo repository.UserRepository, verifier ports.IdentityVerifier, jwtCfg JWTConfig) *AuthUseCase {
	return &AuthUseCase{userRepo: userRepo, verifier: verifier, jwtCfg: jwtCfg, now: time.Now}
}

// ExchangeIdentity verifica el token del proveedor y emite un access token.
// La primera vez que se ve un subject se provisiona el usuario sin rol.
func (uc *AuthUseCase) ExchangeIdentity(ctx context.Context, in dto.ExchangeRequest) (*dto.ExchangeResponse, error) {
	if strings.TrimSpace(in.IdentityToken) == "" {
		return nil, domain.ErrInvalidInput
	}
	user, err := uc.userForIdentity(ctx, in.IdentityToken)
	if err != nil {
		return nil, err
	}
	if user.Status != entity.UserStatusActive {
		return nil, domain.ErrForbidden
	}
	return uc.sessionFor(user)
}

// RegisterWithIdentity fija el rol (y opcionalmente el nombre) del usuario dueño
// del token de identidad. El rol no se puede cambiar una vez elegido.
func (uc *AuthUseCase) RegisterWithIdentity(ctx context.Context, identityToken string, in dto.RegisterWithIdentityRequest) (*dto.UserResponse, error) {
	role, err := selfAssignableRole(in.Role)
	if err != nil {
		return nil, err
	}
	user, err := uc.userForIdentity(ctx, identityToken)
	if err != nil {
		return nil, err
	}
	if user.Role == role {
		// Reintento del cliente tras un fallo de red: idempotente.
		return toUserResponse(user), nil
	}
	if user.Role != entity.RoleNone {
		return nil, domain.ErrDuplicateAccount
	}
	ok, err := uc.userRepo.SetRoleIfEmpty(ctx, user.ID, role, strings.TrimSpace(in.Name))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrDuplicateAccount
	}
	updated, err := uc.userRepo.GetByID(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, domain.ErrUserNotFound
	}
	return toUserResponse(updated), nil
}

// AssignRole fija el rol del usuario dueño del access token y emite un token
// nuevo con ese rol. Repetir el mismo rol es idempotente.
func (uc *AuthUseCase) AssignRole(ctx context.Context, userID string, in dto.AssignRoleRequest) (*dto.ExchangeResponse, error) {
	role, err := selfAssignableRole(in.Role)
	if err != nil {
		return nil, err
	}
	user, err := uc.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	if user.Status != entity.UserStatusActive {
		return nil, domain.ErrForbidden
	}
	if user.Role != role {
		if user.Role != entity.RoleNone {
			return nil, domain.ErrDuplicateAccount
		}
		ok, err := uc.userRepo.SetRoleIfEmpty(ctx, user.ID, role, strings.TrimSpace(in.Name))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, domain.ErrDuplicateAccount
		}
		if user, err = uc.userRepo.GetByID(ctx, userID); err != nil {
			return nil, err
		}
		if user == nil {
			return nil, domain.ErrUserNotFound
		}
	}
	return uc.sessionFor(user)
}

// RegisterUser crea un usuario email/password: hashea con bcrypt y persiste.
func (uc *AuthUseCase) RegisterUser(ctx context.Context, in dto.RegisterRequest) (*dto.UserResponse, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, domain.ErrInvalidInput
	}
	if len(in.Password) < 8 {
		return nil, domain.ErrInvalidInput
	}
	role := entity.RoleNone
	if in.Role != "" {
		r, err := selfAssignableRole(in.Role)
		if err != nil {
			return nil, err
		}
		role = r
	}

	existing, err := uc.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrEmailAlreadyExists
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	now := uc.now()
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = email
	}
	user := &entity.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: string(hash),
		Name:         name,
		Role:         role,
		Status:       entity.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := uc.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	return toUserResponse(user), nil
}

// Login verifica email/password y genera el access token.
func (uc *AuthUseCase) Login(ctx context.Context, in dto.LoginRequest) (*dto.LoginData, error) {
	user, err := uc.userRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(in.Email)))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	if user.PasswordHash == "" {
		// Cuenta creada con proveedor externo: no tiene password propio.
		return nil, domain.ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		return nil, domain.ErrUnauthorized
	}
	if user.Status != entity.UserStatusActive {
		return nil, domain.ErrForbidden
	}
	token, err := uc.issue(user)
	if err != nil {
		return nil, err
	}
	return &dto.LoginData{
		Token:  token,
		UserID: user.ID,
		Name:   user.Name,
		Email:  user.Email,
		Role:   user.Role.String(),
	}, nil
}

// Me perfil del usuario autenticado.
func (uc *AuthUseCase) Me(ctx context.Context, userID string) (*dto.UserResponse, error) {
	return uc.GetUser(ctx, userID)
}

// GetUser perfil de cualquier usuario (uso administrativo).
func (uc *AuthUseCase) GetUser(ctx context.Context, userID string) (*dto.UserResponse, error) {
	user, err := uc.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	return toUserResponse(user), nil
}

// userForIdentity verifica el token y devuelve el usuario enlazado, creándolo si no existe.
func (uc *AuthUseCase) userForIdentity(ctx context.Context, identityToken string) (*entity.User, error) {
	verified, err := uc.verifier.Verify(ctx, identityToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	providerID := verified.Provider + ":" + verified.Subject

	user, err := uc.userRepo.GetByProviderID(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}

	now := uc.now()
	user = &entity.User{
		ID:         uuid.New().String(),
		Email:      strings.ToLower(verified.Email),
		Name:       firstNonEmpty(verified.Name, verified.Phone, verified.Email),
		Phone:      verified.Phone,
		Role:       entity.RoleNone,
		ProviderID: providerID,
		Status:     entity.UserStatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := uc.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrEmailAlreadyExists) {
			// El email ya pertenece a una cuenta tradicional: no se enlaza automáticamente.
			return nil, domain.ErrDuplicateAccount
		}
		if errors.Is(err, domain.ErrDuplicateAccount) {
			// Alta concurrente del mismo subject.
			return uc.userRepo.GetByProviderID(ctx, providerID)
		}
		return nil, err
	}
	return user, nil
}

// sessionFor emite el access token con el rol vigente del usuario.
func (uc *AuthUseCase) sessionFor(user *entity.User) (*dto.ExchangeResponse, error) {
	token, err := uc.issue(user)
	if err != nil {
		return nil, err
	}
	return &dto.ExchangeResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		UserID:      user.ID,
		Role:        user.Role.String(),
		User:        *toUserResponse(user),
	}, nil
}

func (uc *AuthUseCase) issue(user *entity.User) (string, error) {
	return jwt.Generate(uc.jwtCfg.Secret, user.ID, user.Role.String(), uc.jwtCfg.Issuer, uc.jwtCfg.ExpMinutes)
}

// selfAssignableRole solo customer y seller se eligen desde la app.
func selfAssignableRole(s string) (entity.Role, error) {
	role, err := entity.ParseRole(s)
	if err != nil || role == entity.RoleNone {
		return entity.RoleNone, domain.ErrInvalidInput
	}
	if role == entity.RoleAdmin {
		return entity.RoleNone, domain.ErrForbidden
	}
	return role, nil
}

func toUserResponse(u *entity.User) *dto.UserResponse {
	if u == nil {
		return nil
	}
	return &dto.UserResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Phone:     u.Phone,
		Role:      u.Role.String(),
		Status:    u.Status,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
