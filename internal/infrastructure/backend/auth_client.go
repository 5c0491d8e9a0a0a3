package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jhoicas/mercado-local/internal/application/ports"
	"github.com/jhoicas/mercado-local/internal/domain"
	"github.com/jhoicas/mercado-local/internal/domain/entity"
	"github.com/jhoicas/mercado-local/pkg/jwt"
	"github.com/jhoicas/mercado-local/pkg/logger"
)

// Verificar en tiempo de compilación que AuthClient implementa BackendAuth.
var _ ports.BackendAuth = (*AuthClient)(nil)

const maxResponseBytes = 64 * 1024

// AuthClient adaptador HTTP/JSON del servicio de usuarios.
// Cada llamada es de un solo intento: el manager de sesión decide si reintentar.
type AuthClient struct {
	baseURL    string
	httpClient *http.Client
	log        *logger.Logger
}

// NewAuthClient construye el cliente. timeout se aplica a cada request.
func NewAuthClient(baseURL string, timeout time.Duration, log *logger.Logger) *AuthClient {
	if log == nil {
		log = logger.NewNop()
	}
	return &AuthClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		log:        log.Component("backend"),
	}
}

// ── Estructuras del protocolo ─────────────────────────────────────────────────

type userPayload struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
	Role  string `json:"role"`
}

type exchangeResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	UserID      string       `json:"user_id"`
	Role        string       `json:"role"`
	User        *userPayload `json:"user"`
}

type loginData struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

type envelope[T any] struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ── Implementación del puerto ─────────────────────────────────────────────────

// ExchangeIdentityForSession canjea el token del proveedor por una sesión del backend.
func (c *AuthClient) ExchangeIdentityForSession(ctx context.Context, identityToken string) (entity.BackendSession, error) {
	var resp exchangeResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/exchange", "", map[string]string{
		"identity_token": identityToken,
	}, &resp, mapStatus); err != nil {
		return entity.BackendSession{}, fmt.Errorf("exchange: %w", err)
	}
	bs, err := toSession(resp)
	if err != nil {
		return entity.BackendSession{}, fmt.Errorf("exchange: %w", err)
	}
	return bs, nil
}

// AssignRole fija el rol del usuario dueño del access token; el backend
// responde con un token nuevo que ya lleva el rol.
func (c *AuthClient) AssignRole(ctx context.Context, accessToken string, role entity.Role) (entity.BackendSession, error) {
	var resp exchangeResponse
	if err := c.do(ctx, http.MethodPut, "/api/users/me/role", accessToken, map[string]string{
		"role": role.String(),
	}, &resp, mapStatus); err != nil {
		return entity.BackendSession{}, fmt.Errorf("asignar rol: %w", err)
	}
	bs, err := toSession(resp)
	if err != nil {
		return entity.BackendSession{}, fmt.Errorf("asignar rol: %w", err)
	}
	return bs, nil
}

func toSession(resp exchangeResponse) (entity.BackendSession, error) {
	u := userPayload{ID: resp.UserID, Role: resp.Role}
	if resp.User != nil {
		u = *resp.User
		if u.ID == "" {
			u.ID = resp.UserID
		}
		if u.Role == "" {
			u.Role = resp.Role
		}
	}
	user, err := toUser(u)
	if err != nil {
		return entity.BackendSession{}, err
	}
	if user.ID == "" {
		user.ID = subjectOf(resp.AccessToken)
	}
	return entity.BackendSession{
		AccessToken: resp.AccessToken,
		TokenType:   firstNonEmpty(resp.TokenType, "Bearer"),
		User:        user,
	}, nil
}

// RegisterUser registra al usuario autenticado con el proveedor, con su rol.
func (c *AuthClient) RegisterUser(ctx context.Context, name string, role entity.Role, identityToken string) (entity.BackendUser, error) {
	var resp userPayload
	if err := c.do(ctx, http.MethodPost, "/api/users/register", identityToken, map[string]string{
		"name": name,
		"role": role.String(),
	}, &resp, mapStatus); err != nil {
		return entity.BackendUser{}, fmt.Errorf("registrar usuario: %w", err)
	}
	user, err := toUser(resp)
	if err != nil {
		return entity.BackendUser{}, fmt.Errorf("registrar usuario: %w", err)
	}
	return user, nil
}

// LoginTraditional login email/password contra el backend.
func (c *AuthClient) LoginTraditional(ctx context.Context, email, password string) (entity.BackendSession, error) {
	var resp envelope[loginData]
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	}, &resp, mapLoginStatus); err != nil {
		return entity.BackendSession{}, fmt.Errorf("login: %w", err)
	}

	d := resp.Data
	role, err := entity.ParseRole(d.Role)
	if err != nil {
		return entity.BackendSession{}, fmt.Errorf("login: %w", err)
	}
	userID := d.UserID
	if userID == "" {
		userID = subjectOf(d.Token)
	}
	return entity.BackendSession{
		AccessToken: d.Token,
		TokenType:   "Bearer",
		User: entity.BackendUser{
			ID:    userID,
			Name:  d.Name,
			Email: firstNonEmpty(d.Email, email),
			Role:  role,
		},
	}, nil
}

// RegisterTraditional crea la cuenta email/password en el backend.
func (c *AuthClient) RegisterTraditional(ctx context.Context, name, email, password string, role entity.Role) (entity.BackendUser, error) {
	var resp envelope[userPayload]
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
		"role":     role.String(),
	}, &resp, mapStatus); err != nil {
		return entity.BackendUser{}, fmt.Errorf("registro: %w", err)
	}
	user, err := toUser(resp.Data)
	if err != nil {
		return entity.BackendUser{}, fmt.Errorf("registro: %w", err)
	}
	return user, nil
}

// FetchProfile perfil del usuario dueño del access token.
func (c *AuthClient) FetchProfile(ctx context.Context, accessToken string) (entity.BackendUser, error) {
	var resp userPayload
	if err := c.do(ctx, http.MethodGet, "/api/users/me", accessToken, nil, &resp, mapStatus); err != nil {
		return entity.BackendUser{}, fmt.Errorf("perfil: %w", err)
	}
	user, err := toUser(resp)
	if err != nil {
		return entity.BackendUser{}, fmt.Errorf("perfil: %w", err)
	}
	return user, nil
}

// ── Transporte ───────────────────────────────────────────────────────────────

func (c *AuthClient) do(ctx context.Context, method, path, bearer string, in, out any, mapFn func(int) error) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("serializar request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("crear request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// La cancelación explícita del llamador no es un fallo de red.
		if errors.Is(ctx.Err(), context.Canceled) {
			return ctx.Err()
		}
		c.log.Warn().Err(err).Str("path", path).Msg("backend inalcanzable")
		return fmt.Errorf("%w: %v", domain.ErrBackendUnreachable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: leer respuesta: %v", domain.ErrBackendUnreachable, err)
	}
	c.log.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).Msg("backend")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		be := &domain.BackendError{Status: resp.StatusCode, Kind: mapFn(resp.StatusCode)}
		var eb errorBody
		if json.Unmarshal(raw, &eb) == nil {
			be.Code, be.Message = eb.Code, eb.Message
		}
		return be
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: respuesta ilegible: %v", domain.ErrServerError, err)
	}
	return nil
}

func mapStatus(status int) error {
	switch {
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return domain.ErrValidation
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.ErrBackendRejected
	case status == http.StatusConflict:
		return domain.ErrDuplicateAccount
	case status == http.StatusNotFound:
		return domain.ErrAccountNotFound
	case status == http.StatusTooManyRequests:
		return domain.ErrTooManyRequests
	case status >= 500:
		return domain.ErrServerError
	default:
		return domain.ErrServerError
	}
}

func mapLoginStatus(status int) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.ErrInvalidCredentials
	case http.StatusNotFound:
		return domain.ErrAccountNotFound
	default:
		return mapStatus(status)
	}
}

func toUser(p userPayload) (entity.BackendUser, error) {
	role, err := entity.ParseRole(p.Role)
	if err != nil {
		return entity.BackendUser{}, err
	}
	return entity.BackendUser{ID: p.ID, Name: p.Name, Email: p.Email, Phone: p.Phone, Role: role}, nil
}

func subjectOf(token string) string {
	if token == "" {
		return ""
	}
	sub, err := jwt.Subject(token)
	if err != nil {
		return ""
	}
	return sub
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
