package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/jhoicas/mercado-local/internal/application/auth"
	"github.com/jhoicas/mercado-local/internal/application/ports"
	"github.com/jhoicas/mercado-local/internal/domain/repository"
	"github.com/jhoicas/mercado-local/internal/infrastructure/idtoken"
	"github.com/jhoicas/mercado-local/internal/infrastructure/memory"
	"github.com/jhoicas/mercado-local/internal/infrastructure/postgres"
	httpRouter "github.com/jhoicas/mercado-local/internal/interfaces/http"
	"github.com/jhoicas/mercado-local/pkg/config"
	"github.com/jhoicas/mercado-local/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.App.LogLevel,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Msg("iniciando servicio de usuarios")

	if cfg.JWT.Secret == "" {
		log.Fatal().Msg("JWT_SECRET es obligatorio")
	}

	ctx := context.Background()

	var userRepo repository.UserRepository
	if cfg.DB.InMemory {
		log.Warn().Msg("usuarios en memoria: se pierden al reiniciar")
		userRepo = memory.NewUserRepository()
	} else {
		pool, err := postgres.NewPool(ctx, cfg.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("conexión a PostgreSQL")
		}
		defer pool.Close()
		if err := postgres.Migrate(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("migrar esquema")
		}
		userRepo = postgres.NewUserRepository(pool)
	}

	// Verificadores de identidad: Firebase (producción) y/o tokens demo.
	var verifiers idtoken.Chain
	if cfg.Firebase.ProjectID != "" {
		verifiers = append(verifiers, idtoken.NewFirebaseVerifier(cfg.Firebase.ProjectID))
	}
	if cfg.Demo.Enabled {
		log.Warn().Msg("modo demo: se aceptan tokens de identidad fija")
		verifiers = append(verifiers, idtoken.NewDemoVerifier(cfg.Demo.Secret))
	}
	if len(verifiers) == 0 {
		log.Warn().Msg("sin FIREBASE_PROJECT_ID ni modo demo: el canje de identidad rechazará todo")
	}
	var verifier ports.IdentityVerifier = verifiers

	authUC := auth.NewAuthUseCase(userRepo, verifier, auth.JWTConfig{
		Secret:     cfg.JWT.Secret,
		ExpMinutes: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(httpRouter.RequestLogger(log))

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "Mercado Local Users API",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		AuthUC:    authUC,
		JWTSecret: cfg.JWT.Secret,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("servicio detenido")
}
