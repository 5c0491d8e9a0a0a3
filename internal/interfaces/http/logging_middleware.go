package http

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/mercado-local/pkg/logger"
)

// LocalLogger key del logger por petición en Fiber.
const LocalLogger = "logger"

// RequestLogger registra cada petición (método, ruta, estado, latencia) y deja
// en Locals un logger con el request id para los handlers.
func RequestLogger(log *logger.Logger) fiber.Handler {
	if log == nil {
		log = logger.NewNop()
	}
	return func(c *fiber.Ctx) error {
		start := time.Now()
		reqLog := log.Component("http")
		if id, ok := c.Locals("requestid").(string); ok && id != "" {
			reqLog = reqLog.WithStr("request_id", id)
		}
		c.Locals(LocalLogger, reqLog)

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		ev := reqLog.Info()
		if status >= fiber.StatusInternalServerError {
			ev = reqLog.Error().Err(err)
		}
		ev.Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("request")
		return err
	}
}

// requestLogger logger de la petición; no-op si RequestLogger no está montado.
func requestLogger(c *fiber.Ctx) *logger.Logger {
	if l, ok := c.Locals(LocalLogger).(*logger.Logger); ok && l != nil {
		return l
	}
	return logger.NewNop()
}
