package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jhoicas/mercado-local/internal/application/ports"
	"github.com/jhoicas/mercado-local/internal/application/session"
	"github.com/jhoicas/mercado-local/internal/domain"
	"github.com/jhoicas/mercado-local/internal/infrastructure/backend"
	"github.com/jhoicas/mercado-local/internal/infrastructure/identity"
	"github.com/jhoicas/mercado-local/internal/infrastructure/prefs"
	"github.com/jhoicas/mercado-local/pkg/config"
	"github.com/jhoicas/mercado-local/pkg/logger"
)

// app raíz de composición de la CLI: un manager de sesión por proceso.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	store    ports.SessionStore
	closer   io.Closer
	provider ports.CredentialProvider
	manager  *session.Manager
	prompt   *prompter
}

type appOptions struct {
	ephemeral bool
	logLevel  string
}

// newApp carga config, abre el almacén, elige el proveedor de identidad y
// construye el manager. Hidrata la sesión persistida antes de devolver.
func newApp(ctx context.Context, opts appOptions, p *prompter, stderr io.Writer) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("cargar configuración: %w", err)
	}
	level := cfg.App.LogLevel
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	log := logger.New(logger.Config{Env: cfg.App.Env, Level: level, Output: stderr})

	a := &app{cfg: cfg, log: log, prompt: p}
	if opts.ephemeral {
		a.store = prefs.NewMemoryStore()
	} else {
		bolt, err := prefs.Open(cfg.Store.Path, cfg.Store.Domain)
		if err != nil {
			return nil, fmt.Errorf("abrir almacén de sesión: %w", err)
		}
		a.store, a.closer = bolt, bolt
	}

	a.provider, err = a.credentialProvider()
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	client := backend.NewAuthClient(cfg.Services.UserURL, cfg.HTTPClient.Timeout, log)
	a.manager = session.NewManager(a.store, a.provider, client, session.WithLogger(log))

	if _, err := a.manager.Hydrate(ctx); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("cargar sesión: %w", err)
	}
	return a, nil
}

// credentialProvider modo demo o Firebase; nunca ambos.
func (a *app) credentialProvider() (ports.CredentialProvider, error) {
	if a.cfg.Demo.Enabled {
		a.log.Warn().Msg("modo demo: identidad fija")
		return identity.NewFixed(a.cfg.Demo), nil
	}
	if !a.cfg.Firebase.Enabled() {
		return nil, fmt.Errorf("configure FIREBASE_API_KEY o DEMO_ENABLED: %w", domain.ErrNotConfigured)
	}
	// Interfaz nil (no puntero nil) cuando Google no está configurado.
	var thirdParty identity.ThirdPartySignIn
	if g := identity.NewGoogleSignIn(a.cfg.Google, a.prompt.deviceCode, a.log); g != nil {
		thirdParty = g
	}
	return identity.NewFirebase(a.cfg.Firebase, a.cfg.HTTPClient, thirdParty, a.log), nil
}

// Close libera el almacén persistente.
func (a *app) Close() error {
	if a == nil || a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

// userError error de una operación de sesión, para mostrar con domain.UserMessage.
type userError struct {
	err error
}

func (e *userError) Error() string { return e.err.Error() }
func (e *userError) Unwrap() error { return e.err }

func userFacing(err error) error {
	if err == nil {
		return nil
	}
	return &userError{err: err}
}

// Message texto para el usuario: mensajes de dominio para fallos de sesión y el
// error literal para uso incorrecto de la CLI.
func Message(err error) string {
	var ue *userError
	if !errors.As(err, &ue) {
		return err.Error()
	}
	msg := domain.UserMessage(ue.err)
	if domain.ShouldHidePath(ue.err) {
		msg += " Prueba otro método de inicio de sesión."
	}
	return msg
}
