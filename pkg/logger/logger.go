package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config opciones para el logger.
type Config struct {
	Env    string    // development -> consola legible; production -> JSON
	Level  string    // trace, debug, info, warn, error
	Output io.Writer // por defecto os.Stderr (stdout queda libre para la salida de la CLI)
}

// Logger wrapper sobre zerolog para inyección y consistencia.
type Logger struct {
	zl zerolog.Logger
}

// New crea un logger estructurado. En development usa salida legible; en production JSON.
func New(cfg Config) *Logger {
	var w io.Writer = os.Stderr
	if cfg.Output != nil {
		w = cfg.Output
	}
	if cfg.Env == "development" {
		w = zerolog.ConsoleWriter{Out: w}
	}

	zl := zerolog.New(w).Level(ParseLevel(cfg.Level)).With().Timestamp().Logger()

	// Redirigir el logger global de zerolog para librerías que lo usen
	log.Logger = zl

	return &Logger{zl: zl}
}

// NewNop devuelve un logger que descarta todo; pensado para tests.
func NewNop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// ParseLevel traduce el nivel textual; cualquier valor desconocido es info.
func ParseLevel(s string) zerolog.Level {
	switch s {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Trace, Debug, Info, Warn, Error delegados a zerolog.
func (l *Logger) Trace() *zerolog.Event { return l.zl.Trace() }
func (l *Logger) Debug() *zerolog.Event { return l.zl.Debug() }
func (l *Logger) Info() *zerolog.Event  { return l.zl.Info() }
func (l *Logger) Warn() *zerolog.Event  { return l.zl.Warn() }
func (l *Logger) Error() *zerolog.Event { return l.zl.Error() }
func (l *Logger) Fatal() *zerolog.Event { return l.zl.Fatal() }

// With crea un sublogger con campos fijos.
func (l *Logger) With() zerolog.Context {
	return l.zl.With()
}

// Component devuelve un sublogger etiquetado con el componente que escribe.
func (l *Logger) Component(name string) *Logger {
	return &Logger{zl: l.zl.With().Str("component", name).Logger()}
}

// WithStr sublogger con un campo de texto fijo (p. ej. request_id).
func (l *Logger) WithStr(key, value string) *Logger {
	return &Logger{zl: l.zl.With().Str(key, value).Logger()}
}

// Zerolog devuelve el logger interno por si se necesita la API directa.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zl
}

// Leveled adapta el logger a la interfaz LeveledLogger de go-retryablehttp.
func (l *Logger) Leveled() *LeveledLogger {
	return &LeveledLogger{l: l}
}

// LeveledLogger implementa retryablehttp.LeveledLogger sobre zerolog.
type LeveledLogger struct {
	l *Logger
}

func (ll *LeveledLogger) Error(msg string, keysAndValues ...interface{}) {
	withFields(ll.l.Error(), keysAndValues).Msg(msg)
}

func (ll *LeveledLogger) Info(msg string, keysAndValues ...interface{}) {
	withFields(ll.l.Info(), keysAndValues).Msg(msg)
}

func (ll *LeveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	withFields(ll.l.Debug(), keysAndValues).Msg(msg)
}

func (ll *LeveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	withFields(ll.l.Warn(), keysAndValues).Msg(msg)
}

func withFields(ev *zerolog.Event, keysAndValues []interface{}) *zerolog.Event {
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key := fmt.Sprint(keysAndValues[i])
		ev = ev.Interface(key, keysAndValues[i+1])
	}
	return ev
}
