package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/jhoicas/mercado-local/internal/application/ports"
	"github.com/jhoicas/mercado-local/internal/domain"
	"github.com/jhoicas/mercado-local/internal/domain/entity"
	"github.com/jhoicas/mercado-local/pkg/config"
	"github.com/jhoicas/mercado-local/pkg/logger"
)

// Verificar en tiempo de compilación que Firebase implementa CredentialProvider.
var _ ports.CredentialProvider = (*Firebase)(nil)

// Margen antes del vencimiento del ID token en que se pide uno nuevo.
const refreshSkew = time.Minute

// ThirdPartySignIn inicio de sesión interactivo con un IdP externo; devuelve el
// ID token OIDC que Firebase acepta en signInWithIdp.
type ThirdPartySignIn interface {
	SignIn(ctx context.Context) (GoogleCredential, error)
	ProviderID() string
}

// Firebase adaptador de la API REST de Identity Toolkit.
// Mantiene en memoria el usuario enlazado (ID token y refresh token).
type Firebase struct {
	apiKey         string
	baseURL        string
	tokenURL       string
	recaptchaToken string

	httpClient  *http.Client
	retryClient *retryablehttp.Client
	thirdParty  ThirdPartySignIn
	log         *logger.Logger
	now         func() time.Time

	mu   sync.Mutex
	user *firebaseUser
}

type firebaseUser struct {
	localID      string
	idToken      string
	refreshToken string
	expiresAt    time.Time
}

// NewFirebase construye el adaptador. thirdParty puede ser nil (Google no configurado).
func NewFirebase(cfg config.FirebaseConfig, hc config.HTTPClientConfig, thirdParty ThirdPartySignIn, log *logger.Logger) *Firebase {
	if log == nil {
		log = logger.NewNop()
	}
	log = log.Component("firebase")

	rc := retryablehttp.NewClient()
	rc.RetryMax = hc.RetryMax
	rc.RetryWaitMin = hc.RetryWaitMin
	rc.RetryWaitMax = hc.RetryWaitMax
	rc.HTTPClient.Timeout = hc.Timeout
	rc.Logger = log.Leveled()

	return &Firebase{
		apiKey:         cfg.APIKey,
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		tokenURL:       cfg.TokenURL,
		recaptchaToken: cfg.RecaptchaToken,
		httpClient:     &http.Client{Timeout: hc.Timeout},
		retryClient:    rc,
		thirdParty:     thirdParty,
		log:            log,
		now:            time.Now,
	}
}

// ── Estructuras del protocolo Identity Toolkit ───────────────────────────────

type sendCodeRequest struct {
	PhoneNumber    string `json:"phoneNumber"`
	RecaptchaToken string `json:"recaptchaToken,omitempty"`
}

type sendCodeResponse struct {
	SessionInfo string `json:"sessionInfo"`
}

type signInPhoneRequest struct {
	SessionInfo string `json:"sessionInfo"`
	Code        string `json:"code"`
}

type signInIdpRequest struct {
	PostBody          string `json:"postBody"`
	RequestURI        string `json:"requestUri"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type passwordRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

// signInResponse respuesta común de los endpoints signIn*/signUp.
type signInResponse struct {
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName"`
	FullName     string `json:"fullName"`
	PhoneNumber  string `json:"phoneNumber"`
}

type refreshResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
	UserID       string `json:"user_id"`
}

type firebaseErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ── Implementación del puerto ─────────────────────────────────────────────────

// StartPhoneVerification valida el número y pide el envío del SMS.
// La API REST no distingue reenvío: con ResendToken se pide un código nuevo.
func (f *Firebase) StartPhoneVerification(ctx context.Context, req entity.PhoneVerificationRequest) (entity.VerificationOutcome, error) {
	phone, err := NormalizePhone(req.Phone)
	if err != nil {
		return entity.VerificationOutcome{}, err
	}
	var resp sendCodeResponse
	if err := f.call(ctx, "accounts:sendVerificationCode", sendCodeRequest{
		PhoneNumber:    phone,
		RecaptchaToken: f.recaptchaToken,
	}, &resp); err != nil {
		return entity.VerificationOutcome{}, err
	}
	if resp.SessionInfo == "" {
		return entity.VerificationOutcome{}, &domain.ProviderError{Reason: "EMPTY_SESSION_INFO", Kind: domain.ErrProviderUnavailable}
	}
	return entity.VerificationOutcome{Pending: &entity.PendingVerification{
		VerificationID: resp.SessionInfo,
		ResendToken:    resp.SessionInfo,
		Phone:          phone,
		RequestedAt:    f.now(),
	}}, nil
}

// ConfirmPhoneCode canjea sessionInfo + código por un usuario de Firebase.
func (f *Firebase) ConfirmPhoneCode(ctx context.Context, pending entity.PendingVerification, code string) (entity.ExternalIdentity, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return entity.ExternalIdentity{}, &domain.ProviderError{Reason: "MISSING_CODE", Kind: domain.ErrInvalidCode}
	}
	var resp signInResponse
	if err := f.call(ctx, "accounts:signInWithPhoneNumber", signInPhoneRequest{
		SessionInfo: pending.VerificationID,
		Code:        code,
	}, &resp); err != nil {
		return entity.ExternalIdentity{}, err
	}
	id := f.bind(resp, entity.ProviderPhone)
	if id.Phone == "" {
		id.Phone = pending.Phone
	}
	return id, nil
}

// IsThirdPartyAvailable hay inicio con Google si se configuró el cliente OAuth.
func (f *Firebase) IsThirdPartyAvailable() bool {
	return f.thirdParty != nil
}

// SignInWithThirdParty flujo interactivo de Google y enlace de la credencial en Firebase.
func (f *Firebase) SignInWithThirdParty(ctx context.Context) (entity.ExternalIdentity, error) {
	if f.thirdParty == nil {
		return entity.ExternalIdentity{}, domain.ErrNotConfigured
	}
	cred, err := f.thirdParty.SignIn(ctx)
	if err != nil {
		return entity.ExternalIdentity{}, err
	}
	postBody := url.Values{
		"id_token":   {cred.IDToken},
		"providerId": {f.thirdParty.ProviderID()},
	}.Encode()

	var resp signInResponse
	if err := f.call(ctx, "accounts:signInWithIdp", signInIdpRequest{
		PostBody:          postBody,
		RequestURI:        "http://localhost",
		ReturnSecureToken: true,
	}, &resp); err != nil {
		return entity.ExternalIdentity{}, err
	}
	id := f.bind(resp, entity.ProviderGoogle)
	id.Name = firstNonEmpty(id.Name, cred.Name)
	id.Email = firstNonEmpty(id.Email, cred.Email)
	return id, nil
}

// SignInWithEmailPassword inicio con email/password en Firebase.
func (f *Firebase) SignInWithEmailPassword(ctx context.Context, email, password string) (entity.ExternalIdentity, error) {
	return f.passwordFlow(ctx, "accounts:signInWithPassword", email, password)
}

// CreateAccountWithEmailPassword alta de cuenta email/password en Firebase.
func (f *Firebase) CreateAccountWithEmailPassword(ctx context.Context, email, password string) (entity.ExternalIdentity, error) {
	return f.passwordFlow(ctx, "accounts:signUp", email, password)
}

func (f *Firebase) passwordFlow(ctx context.Context, method, email, password string) (entity.ExternalIdentity, error) {
	var resp signInResponse
	if err := f.call(ctx, method, passwordRequest{
		Email:             strings.TrimSpace(email),
		Password:          password,
		ReturnSecureToken: true,
	}, &resp); err != nil {
		return entity.ExternalIdentity{}, err
	}
	id := f.bind(resp, entity.ProviderPassword)
	id.Email = firstNonEmpty(id.Email, email)
	return id, nil
}

// CurrentIdentityToken ID token del usuario enlazado; lo refresca si está por vencer.
func (f *Firebase) CurrentIdentityToken(ctx context.Context) (string, error) {
	f.mu.Lock()
	u := f.user
	f.mu.Unlock()
	if u == nil {
		return "", nil
	}
	if f.now().Add(refreshSkew).Before(u.expiresAt) {
		return u.idToken, nil
	}
	return f.refresh(ctx, u)
}

// SignOut olvida el usuario enlazado. Firebase no tiene endpoint de logout.
func (f *Firebase) SignOut(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.user = nil
	return nil
}

// ── Internos ─────────────────────────────────────────────────────────────────

func (f *Firebase) bind(resp signInResponse, provider string) entity.ExternalIdentity {
	f.mu.Lock()
	f.user = &firebaseUser{
		localID:      resp.LocalID,
		idToken:      resp.IDToken,
		refreshToken: resp.RefreshToken,
		expiresAt:    f.now().Add(parseSeconds(resp.ExpiresIn)),
	}
	f.mu.Unlock()

	return entity.ExternalIdentity{
		Provider:       provider,
		Token:          resp.IDToken,
		ProviderUserID: resp.LocalID,
		Name:           firstNonEmpty(resp.DisplayName, resp.FullName),
		Email:          resp.Email,
		Phone:          resp.PhoneNumber,
	}
}

// refresh usa el cliente con reintentos: el canje de refresh token es idempotente.
func (f *Firebase) refresh(ctx context.Context, u *firebaseUser) (string, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {u.refreshToken},
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost,
		f.tokenURL+"?key="+url.QueryEscape(f.apiKey), strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("firebase: crear request de refresh: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := f.retryClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &domain.ProviderError{Reason: err.Error(), Kind: domain.ErrProviderUnavailable}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return "", &domain.ProviderError{Reason: err.Error(), Kind: domain.ErrProviderUnavailable}
	}
	if resp.StatusCode != http.StatusOK {
		return "", decodeFirebaseError(resp.StatusCode, raw)
	}
	var rr refreshResponse
	if err := json.Unmarshal(raw, &rr); err != nil {
		return "", fmt.Errorf("firebase: deserializar refresh: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.user != u {
		// SignOut o un login nuevo mientras refrescábamos.
		return "", nil
	}
	f.user = &firebaseUser{
		localID:      firstNonEmpty(rr.UserID, u.localID),
		idToken:      rr.IDToken,
		refreshToken: firstNonEmpty(rr.RefreshToken, u.refreshToken),
		expiresAt:    f.now().Add(parseSeconds(rr.ExpiresIn)),
	}
	f.log.Debug().Msg("ID token refrescado")
	return rr.IDToken, nil
}

// call POST de un solo intento a Identity Toolkit.
func (f *Firebase) call(ctx context.Context, method string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("firebase: serializar request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/%s?key=%s", f.baseURL, method, url.QueryEscape(f.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("firebase: crear request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return ctx.Err()
		}
		f.log.Warn().Err(err).Str("method", method).Msg("firebase inalcanzable")
		return &domain.ProviderError{Reason: err.Error(), Kind: domain.ErrProviderUnavailable}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return &domain.ProviderError{Reason: err.Error(), Kind: domain.ErrProviderUnavailable}
	}
	if resp.StatusCode != http.StatusOK {
		perr := decodeFirebaseError(resp.StatusCode, raw)
		f.log.Info().Str("method", method).Str("reason", perr.Reason).Msg("firebase rechazó la solicitud")
		return perr
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("firebase: deserializar respuesta: %w", err)
	}
	return nil
}

// Prefijos de error de Identity Toolkit. El mensaje puede traer detalle
// tras " : ", p. ej. "TOO_MANY_ATTEMPTS_TRY_LATER : Access temporarily disabled".
var firebaseErrors = []struct {
	prefix string
	kind   error
}{
	{"INVALID_PHONE_NUMBER", domain.ErrInvalidPhoneFormat},
	{"MISSING_PHONE_NUMBER", domain.ErrInvalidPhoneFormat},
	{"QUOTA_EXCEEDED", domain.ErrQuotaExceeded},
	{"TOO_MANY_ATTEMPTS_TRY_LATER", domain.ErrTooManyRequests},
	{"INVALID_CODE", domain.ErrInvalidCode},
	{"MISSING_CODE", domain.ErrInvalidCode},
	{"SESSION_EXPIRED", domain.ErrSessionExpired},
	{"CODE_EXPIRED", domain.ErrSessionExpired},
	{"INVALID_SESSION_INFO", domain.ErrSessionExpired},
	{"EMAIL_EXISTS", domain.ErrAccountExists},
	{"EMAIL_NOT_FOUND", domain.ErrAccountNotFound},
	{"USER_NOT_FOUND", domain.ErrAccountNotFound},
	{"INVALID_PASSWORD", domain.ErrInvalidCredentials},
	{"INVALID_LOGIN_CREDENTIALS", domain.ErrInvalidCredentials},
	{"INVALID_EMAIL", domain.ErrInvalidCredentials},
	{"WEAK_PASSWORD", domain.ErrValidation},
	{"USER_DISABLED", domain.ErrInvalidCredentials},
	{"INVALID_IDP_RESPONSE", domain.ErrUserCancelled},
	{"OPERATION_NOT_ALLOWED", domain.ErrNotConfigured},
	{"API_KEY_INVALID", domain.ErrNotConfigured},
	{"CAPTCHA_CHECK_FAILED", domain.ErrProviderUnavailable},
	{"MISSING_RECAPTCHA_TOKEN", domain.ErrNotConfigured},
	{"TOKEN_EXPIRED", domain.ErrSessionExpired},
	{"INVALID_REFRESH_TOKEN", domain.ErrSessionExpired},
}

func decodeFirebaseError(status int, raw []byte) *domain.ProviderError {
	var body firebaseErrorBody
	_ = json.Unmarshal(raw, &body)
	msg := strings.TrimSpace(body.Error.Message)
	for _, e := range firebaseErrors {
		if strings.HasPrefix(msg, e.prefix) {
			return &domain.ProviderError{Reason: msg, Kind: e.kind}
		}
	}
	if msg == "" {
		msg = "HTTP " + strconv.Itoa(status)
	}
	return &domain.ProviderError{Reason: msg, Kind: domain.ErrProviderUnavailable}
}

func parseSeconds(s string) time.Duration {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return time.Hour
	}
	return time.Duration(n) * time.Second
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
