package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/mercado-local/internal/application/auth"
	"github.com/jhoicas/mercado-local/internal/domain/entity"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	AuthUC    *auth.AuthUseCase
	JWTSecret string
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api")

	// Auth (público)
	authGroup := api.Group("/auth")
	authHandler := NewAuthHandler(deps.AuthUC)
	authGroup.Post("/exchange", authHandler.Exchange)
	authGroup.Post("/register", authHandler.Register)
	authGroup.Post("/login", authHandler.Login)

	users := api.Group("/users")
	userHandler := NewUserHandler(deps.AuthUC)

	// Autenticado con el token del proveedor, no con el access token
	users.Post("/register", userHandler.RegisterWithIdentity)

	// Rutas protegidas (requieren Bearer Token)
	requireAuth := AuthMiddleware(deps.JWTSecret)
	users.Get("/me", requireAuth, userHandler.Me)
	users.Put("/me/role", requireAuth, userHandler.AssignRole)
	users.Get("/:id", requireAuth, RequireRole(entity.RoleAdmin.String()), userHandler.GetByID)
}
