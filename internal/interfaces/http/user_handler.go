package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/mercado-local/internal/application/auth"
	"github.com/jhoicas/mercado-local/internal/application/dto"
	"github.com/jhoicas/mercado-local/internal/domain"
)

// UserHandler maneja alta con identidad externa y perfil.
type UserHandler struct {
	uc *auth.AuthUseCase
}

// NewUserHandler construye el handler de usuarios.
func NewUserHandler(uc *auth.AuthUseCase) *UserHandler {
	return &UserHandler{uc: uc}
}

// RegisterWithIdentity godoc
// @Summary      Elegir rol del usuario autenticado con el proveedor
// @Description  El token del proveedor de identidad viaja en Authorization (no el access token).
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body  dto.RegisterWithIdentityRequest  true  "name, role"
// @Success      201   {object}  dto.UserResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      401   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Router       /api/users/register [post]
func (h *UserHandler) RegisterWithIdentity(c *fiber.Ctx) error {
	identityToken, errResp := bearerToken(c)
	if errResp != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(errResp)
	}
	var in dto.RegisterWithIdentityRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	if in.Role == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "role es requerido"})
	}
	user, err := h.uc.RegisterWithIdentity(c.UserContext(), identityToken, in)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidInput):
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "role debe ser customer o seller"})
		case errors.Is(err, domain.ErrForbidden):
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Code: "FORBIDDEN", Message: "rol no permitido"})
		case errors.Is(err, domain.ErrUnauthorized):
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "INVALID_IDENTITY", Message: "token de identidad inválido o expirado"})
		case errors.Is(err, domain.ErrDuplicateAccount):
			return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "ROLE_ALREADY_SET", Message: "el usuario ya eligió su rol"})
		}
		return internalError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(user)
}

// Me godoc
// @Summary      Perfil del usuario autenticado
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  dto.UserResponse
// @Failure      401  {object}  dto.ErrorResponse
// @Router       /api/users/me [get]
func (h *UserHandler) Me(c *fiber.Ctx) error {
	user, err := h.uc.Me(c.UserContext(), GetUserID(c))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			// Token válido de un usuario borrado: la sesión ya no sirve.
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "USER_NOT_FOUND", Message: "el usuario ya no existe"})
		}
		return internalError(c, err)
	}
	return c.JSON(user)
}

// AssignRole godoc
// @Summary      Elegir rol con el access token
// @Description  Fija el rol una sola vez y devuelve un access token nuevo que lo incluye.
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body  dto.AssignRoleRequest  true  "name, role"
// @Success      200   {object}  dto.ExchangeResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      401   {object}  dto.ErrorResponse
// @Failure      403   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Router       /api/users/me/role [put]
func (h *UserHandler) AssignRole(c *fiber.Ctx) error {
	var in dto.AssignRoleRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	if in.Role == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "role es requerido"})
	}
	resp, err := h.uc.AssignRole(c.UserContext(), GetUserID(c), in)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidInput):
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "role debe ser customer o seller"})
		case errors.Is(err, domain.ErrForbidden):
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Code: "FORBIDDEN", Message: "rol no permitido"})
		case errors.Is(err, domain.ErrUserNotFound):
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "USER_NOT_FOUND", Message: "el usuario ya no existe"})
		case errors.Is(err, domain.ErrDuplicateAccount):
			return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "ROLE_ALREADY_SET", Message: "el usuario ya eligió su rol"})
		}
		return internalError(c, err)
	}
	return c.JSON(resp)
}

// GetByID godoc
// @Summary      Obtener usuario por ID (admin)
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        id   path  string  true  "ID del usuario"
// @Success      200  {object}  dto.UserResponse
// @Failure      403  {object}  dto.ErrorResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/users/{id} [get]
func (h *UserHandler) GetByID(c *fiber.Ctx) error {
	user, err := h.uc.GetUser(c.UserContext(), c.Params("id"))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "usuario no encontrado"})
		}
		return internalError(c, err)
	}
	return c.JSON(user)
}
