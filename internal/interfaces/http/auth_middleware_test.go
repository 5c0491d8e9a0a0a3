package http_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apphttp "github.com/jhoicas/mercado-local/internal/interfaces/http"
	pkgjwt "github.com/jhoicas/mercado-local/pkg/jwt"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers de test
// ──────────────────────────────────────────────────────────────────────────────

const (
	testJWTSecret = "test-secret-key-for-unit-tests"
	testUserID    = "00000000-0000-0000-0000-000000000001"
	testIssuer    = "mercado-local-test"
	testExpMin    = 60
)

// buildTestApp construye una aplicación Fiber mínima con:
//   - AuthMiddleware para parsear el JWT y cargar locals
//   - RequireRole para autorizar el acceso
//   - Un handler dummy que devuelve 200 si pasa los middlewares
func buildTestApp(allowedRoles ...string) *fiber.App {
	app := fiber.New(fiber.Config{
		// Silenciar errores internos en los tests
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})
	// Ruta protegida: JWT + RBAC
	app.Get("/protected",
		apphttp.AuthMiddleware(testJWTSecret),
		apphttp.RequireRole(allowedRoles...),
		func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusOK).JSON(fiber.Map{
				"ok":   true,
				"role": apphttp.GetRole(c),
			})
		},
	)
	return app
}

// tokenForRole genera un JWT con el rol indicado.
func tokenForRole(t *testing.T, role string) string {
	t.Helper()
	tok, err := pkgjwt.Generate(testJWTSecret, testUserID, role, testIssuer, testExpMin)
	require.NoError(t, err, "debe generarse un token JWT válido")
	return "Bearer " + tok
}

// doRequest lanza una petición GET /protected y devuelve la respuesta.
func doRequest(t *testing.T, app *fiber.App, authHeader string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

// ──────────────────────────────────────────────────────────────────────────────
// Tests RequireRole
// ──────────────────────────────────────────────────────────────────────────────

// Caso 1: El usuario tiene el rol requerido → debe pasar (HTTP 200).
func TestRequireRole_AdminAccedeRutaAdmin(t *testing.T) {
	app := buildTestApp("admin")
	resp := doRequest(t, app, tokenForRole(t, "admin"))
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode,
		"admin debe poder acceder a ruta restringida a admin")

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, true, body["ok"], "la respuesta debe incluir ok:true")
	assert.Equal(t, "admin", body["role"], "el role debe ser admin")
}

// Caso 1b: El usuario tiene uno de los roles permitidos (multi-rol) → HTTP 200.
func TestRequireRole_SellerAccedeRutaAdminOSeller(t *testing.T) {
	app := buildTestApp("admin", "seller")
	resp := doRequest(t, app, tokenForRole(t, "seller"))
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode,
		"seller debe poder acceder a ruta que permite admin o seller")
}

// Caso 1c: Alias heredado en el token ("vendedor") se normaliza a seller.
func TestRequireRole_AliasHeredadoSeNormaliza(t *testing.T) {
	app := buildTestApp("seller")
	resp := doRequest(t, app, tokenForRole(t, "Vendedor"))
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// Caso 2: El usuario tiene un rol diferente al requerido → HTTP 403 Forbidden.
func TestRequireRole_CustomerBloqueadoEnRutaAdmin(t *testing.T) {
	app := buildTestApp("admin")
	resp := doRequest(t, app, tokenForRole(t, "customer"))
	defer resp.Body.Close()

	assert.Equal(t, http.StatusForbidden, resp.StatusCode,
		"customer no debe poder acceder a ruta restringida a admin")

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "FORBIDDEN",
		"la respuesta de error debe incluir el código FORBIDDEN")
}

// Caso 2b: rol desconocido en el token → HTTP 403.
func TestRequireRole_RolDesconocido_Retorna403(t *testing.T) {
	app := buildTestApp("seller")
	resp := doRequest(t, app, tokenForRole(t, "bodeguero"))
	defer resp.Body.Close()

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

// Caso 3: Token sin rol (usuario que aún no eligió) → HTTP 401.
func TestRequireRole_TokenSinRol_Retorna401(t *testing.T) {
	app := buildTestApp("admin")
	resp := doRequest(t, app, tokenForRole(t, ""))
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode,
		"token sin rol debe retornar 401")

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "MISSING_ROLE",
		"la respuesta debe indicar el código MISSING_ROLE")
}

// Caso 4: Sin header Authorization → HTTP 401 MISSING_TOKEN.
func TestRequireRole_SinAuthHeader_Retorna401(t *testing.T) {
	app := buildTestApp("admin")
	resp := doRequest(t, app, "") // sin header
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "MISSING_TOKEN")
}

// Caso 5: Token inválido / malformado → HTTP 401 INVALID_TOKEN.
func TestRequireRole_TokenInvalido_Retorna401(t *testing.T) {
	app := buildTestApp("admin")
	resp := doRequest(t, app, "Bearer token.invalido.aqui")
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "INVALID_TOKEN")
}

// Caso 6: Esquema distinto de Bearer → HTTP 401 INVALID_TOKEN.
func TestAuthMiddleware_EsquemaNoBearer(t *testing.T) {
	app := buildTestApp("admin")
	resp := doRequest(t, app, "Basic dXNlcjpwYXNz")
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// ──────────────────────────────────────────────────────────────────────────────
// Tests AuthMiddleware: extracción de claims del token
// ──────────────────────────────────────────────────────────────────────────────

func TestAuthMiddleware_ExtractaClaims(t *testing.T) {
	app := fiber.New()
	app.Get("/me", apphttp.AuthMiddleware(testJWTSecret), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"user_id": apphttp.GetUserID(c),
			"role":    apphttp.GetRole(c),
		})
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", tokenForRole(t, "admin"))
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, testUserID, body["user_id"])
	assert.Equal(t, "admin", body["role"])
}

// ──────────────────────────────────────────────────────────────────────────────
// Tests JWT pkg: integridad del generate/parse con role
// ──────────────────────────────────────────────────────────────────────────────

func TestJWT_TokenExpirado_Retorna401(t *testing.T) {
	// Token con expiración -1 minuto (ya expirado)
	tok, err := pkgjwt.Generate(testJWTSecret, testUserID, "admin", testIssuer, -1)
	require.NoError(t, err)

	resp := doRequest(t, buildTestApp("admin"), "Bearer "+tok)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "token expirado debe retornar 401")
}

func TestJWT_SecretIncorrecto_Retorna401(t *testing.T) {
	tok, err := pkgjwt.Generate("otro-secret-completamente-distinto", testUserID, "admin", testIssuer, testExpMin)
	require.NoError(t, err)

	resp := doRequest(t, buildTestApp("admin"), "Bearer "+tok)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "secret incorrecto debe invalidar el token")
}
