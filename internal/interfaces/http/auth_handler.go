package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/mercado-local/internal/application/auth"
	"github.com/jhoicas/mercado-local/internal/application/dto"
	"github.com/jhoicas/mercado-local/internal/domain"
)

// AuthHandler maneja canje de identidad, registro y login.
type AuthHandler struct {
	uc *auth.AuthUseCase
}

// NewAuthHandler construye el handler de auth.
func NewAuthHandler(uc *auth.AuthUseCase) *AuthHandler {
	return &AuthHandler{uc: uc}
}

// Exchange godoc
// @Summary      Canjear token de identidad por sesión
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body  dto.ExchangeRequest  true  "identity_token"
// @Success      200   {object}  dto.ExchangeResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      401   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Router       /api/auth/exchange [post]
func (h *AuthHandler) Exchange(c *fiber.Ctx) error {
	var in dto.ExchangeRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	out, err := h.uc.ExchangeIdentity(c.UserContext(), in)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidInput):
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "identity_token es requerido"})
		case errors.Is(err, domain.ErrUnauthorized):
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "INVALID_IDENTITY", Message: "token de identidad inválido o expirado"})
		case errors.Is(err, domain.ErrForbidden):
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Code: "FORBIDDEN", Message: "cuenta inactiva o suspendida"})
		case errors.Is(err, domain.ErrDuplicateAccount):
			return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "ACCOUNT_CONFLICT", Message: "el email ya pertenece a otra cuenta"})
		}
		return internalError(c, err)
	}
	return c.JSON(out)
}

// Register godoc
// @Summary      Registrar usuario
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body  dto.RegisterRequest  true  "name, email, password, role"
// @Success      201   {object}  dto.Envelope{data=dto.UserResponse}
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Router       /api/auth/register [post]
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var in dto.RegisterRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	if in.Email == "" || in.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "email y password son requeridos"})
	}
	if len(in.Password) < 8 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "password debe tener al menos 8 caracteres"})
	}
	user, err := h.uc.RegisterUser(c.UserContext(), in)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrEmailAlreadyExists):
			return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "EMAIL_EXISTS", Message: "el email ya está registrado"})
		case errors.Is(err, domain.ErrInvalidInput):
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "email o rol inválido"})
		case errors.Is(err, domain.ErrForbidden):
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Code: "FORBIDDEN", Message: "rol no permitido"})
		}
		return internalError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.Envelope{Status: "success", Message: "usuario registrado", Data: user})
}

// Login godoc
// @Summary      Iniciar sesión
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body  dto.LoginRequest  true  "email, password"
// @Success      200   {object}  dto.Envelope{data=dto.LoginData}
// @Failure      401   {object}  dto.ErrorResponse
// @Failure      403   {object}  dto.ErrorResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Router       /api/auth/login [post]
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var in dto.LoginRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	if in.Email == "" || in.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "email y password son requeridos"})
	}
	out, err := h.uc.Login(c.UserContext(), in)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUserNotFound):
			// El cliente usa el 404 para ofrecer el registro.
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "ACCOUNT_NOT_FOUND", Message: "no existe una cuenta con ese email"})
		case errors.Is(err, domain.ErrUnauthorized):
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "credenciales inválidas"})
		case errors.Is(err, domain.ErrForbidden):
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Code: "FORBIDDEN", Message: "cuenta inactiva o suspendida"})
		}
		return internalError(c, err)
	}
	return c.JSON(dto.Envelope{Status: "success", Data: out})
}

// internalError responde 500 sin filtrar detalles; el error queda en el log de la petición.
func internalError(c *fiber.Ctx, err error) error {
	requestLogger(c).Error().Err(err).Str("path", c.Path()).Msg("error interno")
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: "error interno"})
}
