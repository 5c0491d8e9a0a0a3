package cli_test

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/mercado-local/internal/application/auth"
	"github.com/jhoicas/mercado-local/internal/cli"
	"github.com/jhoicas/mercado-local/internal/domain"
	"github.com/jhoicas/mercado-local/internal/infrastructure/idtoken"
	"github.com/jhoicas/mercado-local/internal/infrastructure/memory"
	apphttp "github.com/jhoicas/mercado-local/internal/interfaces/http"
)

const (
	demoSecret = "cli-demo-secret"
	jwtSecret  = "cli-jwt-secret"
)

// setupDemo levanta el servicio de usuarios en memoria y apunta la CLI a él en modo demo.
func setupDemo(t *testing.T) {
	t.Helper()
	repo := memory.NewUserRepository()
	uc := auth.NewAuthUseCase(repo, idtoken.NewDemoVerifier(demoSecret), auth.JWTConfig{
		Secret:     jwtSecret,
		ExpMinutes: 60,
		Issuer:     "cli-test",
	})
	app := fiber.New()
	apphttp.Router(app, apphttp.RouterDeps{AuthUC: uc, JWTSecret: jwtSecret})
	srv := httptest.NewServer(adaptor.FiberApp(app))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("DEMO_ENABLED", "true")
	t.Setenv("DEMO_SECRET", demoSecret)
	t.Setenv("DEMO_AUTO_VERIFY", "false")
	t.Setenv("USER_SERVICE_URL", srv.URL)
	t.Setenv("STORE_PATH", filepath.Join(dir, "session.db"))
	t.Setenv("LOG_LEVEL", "error")
}

func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := cli.Execute(context.Background(), args, strings.NewReader(stdin), &out, &errOut)
	return out.String(), errOut.String(), err
}

// ──────────────────────────────────────────────────────────────────────────────
// Flujos completos
// ──────────────────────────────────────────────────────────────────────────────

func TestLoginTelefono_ConRol_PersisteEntreEjecuciones(t *testing.T) {
	setupDemo(t)

	out, _, err := run(t, "", "login", "phone", "+1 555 123 4567", "--code", "123456", "--role", "seller")
	require.NoError(t, err)
	assert.Contains(t, out, "Código enviado a +15551234567")
	assert.Contains(t, out, "seller_home")

	out, _, err = run(t, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "iniciada")
	assert.Contains(t, out, "+15551234567")
	assert.Contains(t, out, "seller_home")

	out, _, err = run(t, "", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Sesión cerrada.")

	out, _, err = run(t, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "no iniciada")
	assert.Contains(t, out, "landing")
}

func TestLoginTelefono_CodeDesdeEntrada(t *testing.T) {
	setupDemo(t)

	out, _, err := run(t, "123456\n", "login", "phone", "+15550001111")
	require.NoError(t, err)
	assert.Contains(t, out, "Código: ")
	assert.Contains(t, out, "role_selection")

	out, _, err = run(t, "", "role", "cliente")
	require.NoError(t, err)
	assert.Contains(t, out, "customer_home")

	// El rol queda en el servicio: el perfil remoto lo confirma.
	out, _, err = run(t, "", "profile")
	require.NoError(t, err)
	assert.Contains(t, out, "customer_home")

	_, _, err = run(t, "", "role", "seller")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRoleAlreadySet)
	assert.Equal(t, domain.UserMessage(domain.ErrRoleAlreadySet), cli.Message(err))
}

func TestLoginTelefono_CodigoIncorrecto(t *testing.T) {
	setupDemo(t)

	_, _, err := run(t, "", "login", "phone", "+15551234567", "--code", "000000")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidCode)
	assert.Equal(t, domain.UserMessage(domain.ErrInvalidCode), cli.Message(err))

	out, _, err := run(t, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "no iniciada")
}

func TestLoginTelefono_EntradaVaciaCancela(t *testing.T) {
	setupDemo(t)

	_, _, err := run(t, "\n", "login", "phone", "+15551234567")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUserCancelled)
}

func TestLoginTelefono_NumeroInvalido(t *testing.T) {
	setupDemo(t)

	_, _, err := run(t, "", "login", "phone", "abc")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidPhoneFormat)
}

func TestLoginEmailDirecto_RegistraSiNoExiste(t *testing.T) {
	setupDemo(t)

	out, _, err := run(t, "", "login", "email", "nuevo@mercado.local", "--password", "secreto-largo", "--direct")
	require.NoError(t, err)
	assert.Contains(t, out, "nuevo@mercado.local")
	assert.Contains(t, out, "role_selection")

	// Segunda vez ya existe: solo inicia sesión.
	_, _, err = run(t, "", "logout")
	require.NoError(t, err)
	out, _, err = run(t, "", "login", "email", "nuevo@mercado.local", "--password", "secreto-largo", "--direct")
	require.NoError(t, err)
	assert.Contains(t, out, "iniciada")
}

func TestRegister_ConRol(t *testing.T) {
	setupDemo(t)

	out, _, err := run(t, "secreto-largo\n", "register", "tienda@mercado.local", "--name", "Tienda", "--role", "vendedor")
	require.NoError(t, err)
	assert.Contains(t, out, "Tienda")
	assert.Contains(t, out, "seller_home")
}

func TestLoginGoogle_Demo(t *testing.T) {
	setupDemo(t)

	out, _, err := run(t, "", "login", "google", "--role", "customer")
	require.NoError(t, err)
	assert.Contains(t, out, "customer_home")

	out, _, err = run(t, "", "profile")
	require.NoError(t, err)
	assert.Contains(t, out, "demo@mercado.local")
}

func TestEphemeral_NoPersiste(t *testing.T) {
	setupDemo(t)

	out, _, err := run(t, "", "--ephemeral", "login", "phone", "+15551234567", "--code", "123456")
	require.NoError(t, err)
	assert.Contains(t, out, "iniciada")

	out, _, err = run(t, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "no iniciada")
}

func TestMethods(t *testing.T) {
	setupDemo(t)

	out, _, err := run(t, "", "methods")
	require.NoError(t, err)
	assert.Equal(t, "phone\nemail\ngoogle\n", out)

	t.Setenv("DEMO_THIRD_PARTY", "false")
	out, _, err = run(t, "", "methods")
	require.NoError(t, err)
	assert.Equal(t, "phone\nemail\n", out)
}

func TestSinProveedorConfigurado(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("DEMO_ENABLED", "false")
	t.Setenv("FIREBASE_API_KEY", "")
	t.Setenv("STORE_PATH", filepath.Join(t.TempDir(), "session.db"))

	_, _, err := run(t, "", "status")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
}

func TestProfile_SinSesion(t *testing.T) {
	setupDemo(t)

	out, _, err := run(t, "", "profile")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)
	assert.Contains(t, out, "landing")
}
