package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jhoicas/mercado-local/internal/domain"
	"github.com/jhoicas/mercado-local/internal/domain/entity"
	"github.com/jhoicas/mercado-local/internal/domain/repository"
)

var _ repository.UserRepository = (*UserRepo)(nil)

const userColumns = `id, email, password_hash, name, phone, role, provider_id, status, created_at, updated_at`

// Nombre del índice único de provider_id en schema.sql.
const providerIDConstraint = "users_provider_id_key"

// UserRepo implementación del puerto UserRepository sobre PostgreSQL.
// email, phone y provider_id se guardan como NULL cuando están vacíos para
// que los índices únicos parciales no choquen entre cuentas sin ese dato.
type UserRepo struct {
	pool *pgxpool.Pool
}

// NewUserRepository construye el adaptador de persistencia para usuarios.
func NewUserRepository(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

// Create persiste un nuevo usuario.
func (r *UserRepo) Create(ctx context.Context, user *entity.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.pool.Exec(ctx, query,
		user.ID, nullable(strings.ToLower(user.Email)), user.PasswordHash, user.Name, nullable(user.Phone),
		user.Role.String(), nullable(user.ProviderID), user.Status, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			if violatedConstraint(err) == providerIDConstraint {
				return domain.ErrDuplicateAccount
			}
			return domain.ErrEmailAlreadyExists
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByID obtiene un usuario por ID.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*entity.User, error) {
	return r.findOne(ctx, "get user by id", `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByEmail obtiene un usuario por email (sin distinguir mayúsculas).
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	return r.findOne(ctx, "get user by email",
		`SELECT `+userColumns+` FROM users WHERE email = $1 LIMIT 1`, strings.ToLower(email))
}

// GetByProviderID obtiene el usuario enlazado a un subject del proveedor de identidad.
func (r *UserRepo) GetByProviderID(ctx context.Context, providerID string) (*entity.User, error) {
	return r.findOne(ctx, "get user by provider id",
		`SELECT `+userColumns+` FROM users WHERE provider_id = $1`, providerID)
}

// Update actualiza los datos de perfil de un usuario. El rol se fija con SetRoleIfEmpty.
func (r *UserRepo) Update(ctx context.Context, user *entity.User) error {
	query := `
		UPDATE users SET email = $2, password_hash = $3, name = $4, phone = $5, status = $6, updated_at = $7
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query,
		user.ID, nullable(strings.ToLower(user.Email)), user.PasswordHash, user.Name, nullable(user.Phone),
		user.Status, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrEmailAlreadyExists
		}
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// SetRoleIfEmpty fija rol (y nombre si viene) en una sola sentencia condicional.
func (r *UserRepo) SetRoleIfEmpty(ctx context.Context, id string, role entity.Role, name string) (bool, error) {
	query := `
		UPDATE users SET role = $2, name = COALESCE(NULLIF($3, ''), name), updated_at = NOW()
		WHERE id = $1 AND role = ''`
	tag, err := r.pool.Exec(ctx, query, id, role.String(), name)
	if err != nil {
		return false, fmt.Errorf("set user role: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *UserRepo) findOne(ctx context.Context, op, query string, arg any) (*entity.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

func scanUser(row pgx.Row) (*entity.User, error) {
	var (
		u                      entity.User
		email, phone, provider *string
		role                   string
	)
	if err := row.Scan(
		&u.ID, &email, &u.PasswordHash, &u.Name, &phone, &role, &provider, &u.Status,
		&u.CreatedAt, &u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	u.Email = deref(email)
	u.Phone = deref(phone)
	u.ProviderID = deref(provider)
	u.Role = entity.Role(role)
	return &u, nil
}
