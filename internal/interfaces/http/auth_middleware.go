package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/mercado-local/internal/application/dto"
	"github.com/jhoicas/mercado-local/internal/domain/entity"
	"github.com/jhoicas/mercado-local/pkg/jwt"
)

// Locals keys para UserID y Role en Fiber.
const (
	LocalUserID = "user_id"
	LocalRole   = "role"
)

// AuthMiddleware valida el Bearer Token JWT y extrae UserID y Role a c.Locals.
func AuthMiddleware(jwtSecret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString, errResp := bearerToken(c)
		if errResp != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(errResp)
		}
		userID, role, err := jwt.Parse(jwtSecret, tokenString)
		if err != nil || userID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "INVALID_TOKEN", Message: "token inválido o expirado"})
		}
		c.Locals(LocalUserID, userID)
		c.Locals(LocalRole, role)
		return c.Next()
	}
}

// RequireRole autoriza solo los roles indicados. Va DESPUÉS de AuthMiddleware.
// Token sin rol → 401 MISSING_ROLE (el usuario aún no eligió); rol no permitido → 403.
func RequireRole(roles ...string) fiber.Handler {
	allowed := make(map[entity.Role]struct{}, len(roles))
	for _, r := range roles {
		if parsed, err := entity.ParseRole(r); err == nil && parsed != entity.RoleNone {
			allowed[parsed] = struct{}{}
		}
	}
	return func(c *fiber.Ctx) error {
		raw := GetRole(c)
		if raw == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "MISSING_ROLE", Message: "el token no incluye rol"})
		}
		role, err := entity.ParseRole(raw)
		if err != nil {
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Code: "FORBIDDEN", Message: "rol desconocido"})
		}
		if _, ok := allowed[role]; !ok {
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Code: "FORBIDDEN", Message: "rol sin permiso para este recurso"})
		}
		return c.Next()
	}
}

// GetUserID devuelve el UserID del contexto (después del middleware de auth).
func GetUserID(c *fiber.Ctx) string {
	return localString(c, LocalUserID)
}

// GetRole devuelve el rol del token tal como vino (después del middleware de auth).
func GetRole(c *fiber.Ctx) string {
	return localString(c, LocalRole)
}

func localString(c *fiber.Ctx, key string) string {
	v := c.Locals(key)
	if v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

// bearerToken extrae el token del header Authorization.
func bearerToken(c *fiber.Ctx) (string, *dto.ErrorResponse) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return "", &dto.ErrorResponse{Code: "MISSING_TOKEN", Message: "Authorization header requerido"}
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", &dto.ErrorResponse{Code: "INVALID_TOKEN", Message: "formato: Bearer <token>"}
	}
	tokenString := strings.TrimSpace(parts[1])
	if tokenString == "" {
		return "", &dto.ErrorResponse{Code: "MISSING_TOKEN", Message: "token vacío"}
	}
	return tokenString, nil
}
